package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	apperrors "ican-workers/internal/common/errors"
	"ican-workers/internal/models"
	"ican-workers/internal/ratelock"
)

// RateLockStore implements ratelock.Store.
type RateLockStore struct{ d *DB }

var _ ratelock.Store = (*RateLockStore)(nil)

func (s *RateLockStore) WithinTx(ctx context.Context, fn func(ratelock.Tx) error) error {
	return s.d.withTx(ctx, nil, func(t *tx) error { return fn(t) })
}

const lockColumns = `id, tx_id, tx_type, from_currency, to_currency, locked_rate, rate_source, status, locked_at, expires_at, consumed_at`

func scanLock(row scanner) (*models.ExchangeRateLock, error) {
	var (
		l                      models.ExchangeRateLock
		txType, source, status string
		consumed               sql.NullTime
	)
	if err := row.Scan(&l.ID, &l.TxID, &txType, &l.FromCurrency, &l.ToCurrency, &l.LockedRate, &source, &status, &l.LockedAt, &l.ExpiresAt, &consumed); err != nil {
		return nil, err
	}
	l.TxType = models.TxType(txType)
	l.RateSource = models.RateSource(source)
	l.Status = models.RateLockStatus(status)
	if consumed.Valid {
		at := consumed.Time
		l.ConsumedAt = &at
	}
	return &l, nil
}

func (t *tx) GetLock(ctx context.Context, id string, lock bool) (*models.ExchangeRateLock, error) {
	l, err := scanLock(t.tx.QueryRowContext(ctx, forUpdate(`SELECT `+lockColumns+` FROM exchange_rate_locks WHERE id = $1`, lock), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("rate lock", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get rate lock: %w", err)
	}
	return l, nil
}

func (t *tx) ActiveLockForTx(ctx context.Context, txID string) (*models.ExchangeRateLock, error) {
	l, err := scanLock(t.tx.QueryRowContext(ctx, `SELECT `+lockColumns+` FROM exchange_rate_locks WHERE tx_id = $1 AND status = 'active' FOR UPDATE`, txID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active rate lock: %w", err)
	}
	return l, nil
}

func (t *tx) InsertLock(ctx context.Context, l *models.ExchangeRateLock) (bool, error) {
	ok, err := affected(t.tx.ExecContext(ctx, `
		INSERT INTO exchange_rate_locks (id, tx_id, tx_type, from_currency, to_currency, locked_rate, rate_source, status, locked_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT DO NOTHING`,
		l.ID, l.TxID, string(l.TxType), l.FromCurrency, l.ToCurrency, l.LockedRate, string(l.RateSource), string(l.Status), l.LockedAt, l.ExpiresAt,
	))
	if err != nil {
		return false, fmt.Errorf("insert rate lock: %w", err)
	}
	return ok, nil
}

func (t *tx) UpdateLockStatus(ctx context.Context, id string, from, to models.RateLockStatus, at time.Time) (bool, error) {
	var consumed sql.NullTime
	if to == models.RateLockConsumed {
		consumed = sql.NullTime{Time: at, Valid: true}
	}
	ok, err := affected(t.tx.ExecContext(ctx, `
		UPDATE exchange_rate_locks
		SET status = $3, consumed_at = COALESCE($4, consumed_at)
		WHERE id = $1 AND status = $2`,
		id, string(from), string(to), consumed,
	))
	if err != nil {
		return false, fmt.Errorf("update rate lock: %w", err)
	}
	return ok, nil
}

func (t *tx) ExpireActiveBefore(ctx context.Context, now time.Time) (int, error) {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE exchange_rate_locks SET status = 'expired'
		WHERE status = 'active' AND expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("expire rate locks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
