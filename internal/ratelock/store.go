package ratelock

import (
	"context"
	"time"

	"ican-workers/internal/models"
)

// Store runs rate-lock operations in transactions.
type Store interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

type Tx interface {
	// GetLock returns a NOT_FOUND error for unknown ids.
	GetLock(ctx context.Context, id string, forUpdate bool) (*models.ExchangeRateLock, error)
	// ActiveLockForTx returns nil, nil when txID has no active lock.
	ActiveLockForTx(ctx context.Context, txID string) (*models.ExchangeRateLock, error)
	// InsertLock returns false when txID already holds an active lock.
	InsertLock(ctx context.Context, lock *models.ExchangeRateLock) (bool, error)
	// UpdateLockStatus moves a lock from one status to another only if it is
	// still in from. at is stored as consumed_at for consumed locks.
	UpdateLockStatus(ctx context.Context, id string, from, to models.RateLockStatus, at time.Time) (bool, error)
	// ExpireActiveBefore marks active locks with expires_at < now as expired.
	ExpireActiveBefore(ctx context.Context, now time.Time) (int, error)
}
