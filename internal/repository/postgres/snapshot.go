package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/campusconnect/internal/db"
	"github.com/lalith-99/campusconnect/internal/repository"
)

// SnapshotStore reads the social graph for the recommender.
type SnapshotStore struct {
	pool *pgxpool.Pool
}

func NewSnapshotStore(pool *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

var _ repository.SnapshotReader = (*SnapshotStore)(nil)

// Snapshot runs all three reads in one REPEATABLE READ transaction. Accept
// commits the status flip and both edge rows together, so a snapshot either
// sees the request pending and no edge, or accepted and the edge.
func (s *SnapshotStore) Snapshot(ctx context.Context, userID uuid.UUID) (*repository.GraphSnapshot, error) {
	var snap *repository.GraphSnapshot
	err := db.Retry(ctx, func(ctx context.Context) error {
		return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{
			IsoLevel:   pgx.RepeatableRead,
			AccessMode: pgx.ReadOnly,
		}, func(tx pgx.Tx) error {
			user, err := getUser(ctx, tx, userID)
			if err != nil {
				return err
			}

			users, err := queryUsers(ctx, tx, userSelect+` ORDER BY u.id`)
			if err != nil {
				return err
			}

			rows, err := tx.Query(ctx, `
				SELECT receiver_id::text FROM connection_requests
				WHERE sender_id = $1 AND status = 'pending'`,
				userID,
			)
			if err != nil {
				return fmt.Errorf("list outgoing pending: %w", err)
			}
			raw, err := pgx.CollectRows(rows, pgx.RowTo[string])
			if err != nil {
				return fmt.Errorf("scan outgoing pending: %w", err)
			}
			outgoing, err := parseUUIDs(raw)
			if err != nil {
				return fmt.Errorf("parse outgoing pending: %w", err)
			}

			snap = &repository.GraphSnapshot{
				User:              *user,
				Users:             users,
				OutgoingPendingTo: outgoing,
			}
			return nil
		})
	})
	if err != nil {
		return nil, db.Classify(err)
	}
	return snap, nil
}
