package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/campusconnect/internal/db"
	"github.com/lalith-99/campusconnect/internal/models"
	"github.com/lalith-99/campusconnect/internal/repository"
)

const (
	pendingConstraint = "connection_requests_one_pending"
	requestColumns    = `id, sender_id, receiver_id, status, created_at, updated_at`
)

type RequestStore struct {
	pool *pgxpool.Pool
}

func NewRequestStore(pool *pgxpool.Pool) *RequestStore {
	return &RequestStore{pool: pool}
}

var _ repository.RequestRepository = (*RequestStore)(nil)

func (s *RequestStore) CreatePending(ctx context.Context, senderID, receiverID uuid.UUID) (*models.ConnectionRequest, error) {
	// INSERT ... SELECT ... WHERE NOT EXISTS folds the "already connected"
	// check into the same statement. The partial unique index is the
	// duplicate guard; two concurrent inserts for the same pair cannot both
	// commit.
	query := `
		INSERT INTO connection_requests (sender_id, receiver_id, status, created_at, updated_at)
		SELECT $1, $2, 'pending', now(), now()
		WHERE NOT EXISTS (
			SELECT 1 FROM user_connections
			WHERE user_id = $1 AND peer_id = $2
		)
		RETURNING ` + requestColumns

	var req *models.ConnectionRequest
	err := db.Retry(ctx, func(ctx context.Context) error {
		var err error
		req, err = scanRequest(s.pool.QueryRow(ctx, query, senderID, receiverID))
		return err
	})
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return nil, repository.ErrAlreadyConnected
		case db.IsUniqueViolation(err, pendingConstraint):
			return nil, repository.ErrDuplicatePending
		case isForeignKeyViolation(err):
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("insert connection request: %w", db.Classify(err))
	}
	return req, nil
}

func (s *RequestStore) GetByID(ctx context.Context, requestID uuid.UUID) (*models.ConnectionRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM connection_requests WHERE id = $1`

	var req *models.ConnectionRequest
	err := db.Retry(ctx, func(ctx context.Context) error {
		var err error
		req, err = scanRequest(s.pool.QueryRow(ctx, query, requestID))
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get connection request: %w", db.Classify(err))
	}
	return req, nil
}

func (s *RequestStore) Accept(ctx context.Context, requestID uuid.UUID) (*models.ConnectionRequest, error) {
	var req *models.ConnectionRequest
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var err error
		req, err = transition(ctx, tx, requestID, models.RequestAccepted)
		if err != nil {
			return err
		}

		// Both directions in one statement. ON CONFLICT keeps accept
		// idempotent with respect to an edge that already exists, e.g. when
		// both users had requested each other.
		_, err = tx.Exec(ctx, `
			INSERT INTO user_connections (user_id, peer_id, created_at)
			VALUES ($1, $2, now()), ($2, $1, now())
			ON CONFLICT (user_id, peer_id) DO NOTHING`,
			req.SenderID, req.ReceiverID,
		)
		if err != nil {
			return fmt.Errorf("insert connection edge: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, classifyTransition(err)
	}
	return req, nil
}

func (s *RequestStore) Reject(ctx context.Context, requestID uuid.UUID) (*models.ConnectionRequest, error) {
	var req *models.ConnectionRequest
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var err error
		req, err = transition(ctx, tx, requestID, models.RequestRejected)
		return err
	})
	if err != nil {
		return nil, classifyTransition(err)
	}
	return req, nil
}

func (s *RequestStore) ListPendingIncoming(ctx context.Context, userID uuid.UUID) ([]models.PendingRequest, error) {
	query := `
		SELECT r.id, r.sender_id, r.receiver_id, r.status, r.created_at, r.updated_at,
		       u.id, u.name, u.department, u.role
		FROM connection_requests r
		JOIN users u ON u.id = r.sender_id
		WHERE r.receiver_id = $1 AND r.status = 'pending'
		ORDER BY r.created_at DESC, r.id`

	var out []models.PendingRequest
	err := db.Retry(ctx, func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx, query, userID)
		if err != nil {
			return fmt.Errorf("list pending requests: %w", err)
		}
		defer rows.Close()

		out = make([]models.PendingRequest, 0)
		for rows.Next() {
			var (
				p      models.PendingRequest
				status string
				role   string
			)
			if err := rows.Scan(
				&p.ID,
				&p.SenderID,
				&p.ReceiverID,
				&status,
				&p.CreatedAt,
				&p.UpdatedAt,
				&p.Sender.ID,
				&p.Sender.Name,
				&p.Sender.Department,
				&role,
			); err != nil {
				return fmt.Errorf("scan pending request: %w", err)
			}
			p.Status = models.RequestStatus(status)
			p.Sender.Role = models.Role(role)
			out = append(out, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, db.Classify(err)
	}
	return out, nil
}

func (s *RequestStore) ListPendingOutgoing(ctx context.Context, userID uuid.UUID) ([]models.ConnectionRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM connection_requests
		WHERE sender_id = $1 AND status = 'pending'
		ORDER BY created_at DESC, id`

	var out []models.ConnectionRequest
	err := db.Retry(ctx, func(ctx context.Context) error {
		var err error
		out, err = queryRequests(ctx, s.pool, query, userID)
		return err
	})
	if err != nil {
		return nil, db.Classify(err)
	}
	return out, nil
}

// transition moves a pending request to status. The WHERE status = 'pending'
// makes the flip conditional, so of two racing transitions exactly one
// updates a row; the loser sees zero rows and gets ErrNotPending.
func transition(ctx context.Context, tx pgx.Tx, requestID uuid.UUID, status models.RequestStatus) (*models.ConnectionRequest, error) {
	query := `
		UPDATE connection_requests
		SET status = $2, updated_at = now()
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + requestColumns

	req, err := scanRequest(tx.QueryRow(ctx, query, requestID, string(status)))
	if err == nil {
		return req, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("update connection request: %w", err)
	}

	var exists bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM connection_requests WHERE id = $1)`,
		requestID,
	).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check connection request: %w", err)
	}
	if !exists {
		return nil, repository.ErrNotFound
	}
	return nil, repository.ErrNotPending
}

func classifyTransition(err error) error {
	if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrNotPending) {
		return err
	}
	return db.Classify(err)
}

func queryRequests(ctx context.Context, q querier, query string, args ...any) ([]models.ConnectionRequest, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list connection requests: %w", err)
	}
	defer rows.Close()

	out := make([]models.ConnectionRequest, 0)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan connection request: %w", err)
		}
		out = append(out, *req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate connection requests: %w", err)
	}
	return out, nil
}

func scanRequest(row pgx.Row) (*models.ConnectionRequest, error) {
	var (
		req    models.ConnectionRequest
		status string
	)
	if err := row.Scan(
		&req.ID,
		&req.SenderID,
		&req.ReceiverID,
		&status,
		&req.CreatedAt,
		&req.UpdatedAt,
	); err != nil {
		return nil, err
	}
	req.Status = models.RequestStatus(status)
	return &req, nil
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
