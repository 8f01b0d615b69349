package db

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lalith-99/campusconnect/internal/apperr"
)

const (
	retryAttempts  = 3
	retryBaseDelay = 25 * time.Millisecond
)

// IsTransient reports whether err is a backing-store failure that may succeed
// on a second attempt: lost connections, server shutdown, serialization
// conflicts and deadlocks. Constraint violations and cancellations are not.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "40001", // serialization_failure
			pgErr.Code == "40P01", // deadlock_detected
			pgErr.Code == "53300", // too_many_connections
			pgErr.Code == "57P01", // admin_shutdown
			len(pgErr.Code) == 5 && pgErr.Code[:2] == "08": // connection exception class
			return true
		}
		return false
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	return pgconn.SafeToRetry(err) || pgconn.Timeout(err)
}

// IsUniqueViolation reports whether err is a unique constraint violation,
// optionally on a specific constraint (empty name matches any).
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// Classify tags transient errors as apperr.StoreUnavailable and returns every
// other error unchanged.
func Classify(err error) error {
	if IsTransient(err) {
		return apperr.StoreUnavailable(err)
	}
	return err
}

// Retry runs fn up to three times while it fails with a transient error.
// Only use it around idempotent reads or writes guarded by a constraint, so a
// replay after an ambiguous failure cannot double-apply.
func Retry(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt < retryAttempts; attempt++ {
		if err = fn(ctx); err == nil || !IsTransient(err) {
			return err
		}
		if attempt == retryAttempts-1 {
			break
		}

		delay := retryBaseDelay << attempt
		delay += rand.N(delay)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(err, ctx.Err())
		case <-timer.C:
		}
	}
	return err
}
