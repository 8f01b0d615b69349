package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/campusconnect/internal/db"
	"github.com/lalith-99/campusconnect/internal/models"
	"github.com/lalith-99/campusconnect/internal/repository"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so the same scan
// helpers serve plain reads and reads inside a transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// The peer set is folded into the user row with a correlated ARRAY(...),
// cast to text so it scans into []string regardless of uuid codec setup.
const userSelect = `
	SELECT u.id, u.name, u.department, u.location, u.role, u.interests, u.created_at,
	       ARRAY(
	           SELECT c.peer_id::text FROM user_connections c
	           WHERE c.user_id = u.id
	           ORDER BY c.peer_id
	       )
	FROM users u`

type UserStore struct {
	pool *pgxpool.Pool
}

func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

var _ repository.UserRepository = (*UserStore)(nil)

func (s *UserStore) GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var u *models.User
	err := db.Retry(ctx, func(ctx context.Context) error {
		var err error
		u, err = getUser(ctx, s.pool, userID)
		return err
	})
	if err != nil {
		return nil, db.Classify(err)
	}
	return u, nil
}

func (s *UserStore) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]models.User, error) {
	if len(ids) == 0 {
		return make([]models.User, 0), nil
	}
	var users []models.User
	err := db.Retry(ctx, func(ctx context.Context) error {
		var err error
		users, err = queryUsers(ctx, s.pool, userSelect+` WHERE u.id = ANY($1::uuid[])`, uuidStrings(ids))
		return err
	})
	if err != nil {
		return nil, db.Classify(err)
	}
	return users, nil
}

func (s *UserStore) ListConnections(ctx context.Context, userID uuid.UUID) ([]models.User, error) {
	query := userSelect + `
		JOIN user_connections uc ON uc.peer_id = u.id
		WHERE uc.user_id = $1
		ORDER BY u.name, u.id`

	var users []models.User
	err := db.Retry(ctx, func(ctx context.Context) error {
		var err error
		users, err = queryUsers(ctx, s.pool, query, userID)
		return err
	})
	if err != nil {
		return nil, db.Classify(err)
	}
	return users, nil
}

func getUser(ctx context.Context, q querier, userID uuid.UUID) (*models.User, error) {
	u, err := scanUser(q.QueryRow(ctx, userSelect+` WHERE u.id = $1`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func queryUsers(ctx context.Context, q querier, query string, args ...any) ([]models.User, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]models.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

func scanUser(row pgx.Row) (*models.User, error) {
	var (
		u         models.User
		role      string
		interests []string
		peers     []string
	)
	if err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Department,
		&u.Location,
		&role,
		&interests,
		&u.CreatedAt,
		&peers,
	); err != nil {
		return nil, err
	}

	u.Role = models.Role(role)
	u.Interests = make([]models.Interest, 0, len(interests))
	for _, i := range interests {
		u.Interests = append(u.Interests, models.Interest(i))
	}
	ids, err := parseUUIDs(peers)
	if err != nil {
		return nil, fmt.Errorf("parse connected peers: %w", err)
	}
	u.ConnectedPeers = ids
	return &u, nil
}

func parseUUIDs(raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
