package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ican-workers/internal/allocation"
	apperrors "ican-workers/internal/common/errors"
	"ican-workers/internal/models"

	"github.com/shopspring/decimal"
)

// AllocationStore implements allocation.Store.
type AllocationStore struct{ d *DB }

var _ allocation.Store = (*AllocationStore)(nil)

// investorLockTxOptions must stay READ COMMITTED so statements after the
// advisory lock see the previous holder's committed allocations.
var investorLockTxOptions = &sql.TxOptions{Isolation: sql.LevelReadCommitted}

// WithinInvestorLock runs fn holding a transaction-scoped advisory lock on
// the investor/business pair.
func (s *AllocationStore) WithinInvestorLock(ctx context.Context, investorID, businessID string, fn func(allocation.Tx) error) error {
	return s.d.withTx(ctx, investorLockTxOptions, func(t *tx) error {
		if _, err := t.tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, investorID+"|"+businessID); err != nil {
			return fmt.Errorf("advisory lock: %w", err)
		}
		return fn(t)
	})
}

func (s *AllocationStore) WithinTx(ctx context.Context, fn func(allocation.Tx) error) error {
	return s.d.withTx(ctx, nil, func(t *tx) error { return fn(t) })
}

// PutPitch inserts or updates a pitch.
func (d *DB) PutPitch(ctx context.Context, p models.Pitch) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO pitches (id, business_id, target_funding)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET business_id = EXCLUDED.business_id, target_funding = EXCLUDED.target_funding`,
		p.ID, p.BusinessID, p.TargetFunding,
	)
	return classify("put pitch", err)
}

func (t *tx) GetPitch(ctx context.Context, pitchID string) (*models.Pitch, error) {
	var p models.Pitch
	err := t.tx.QueryRowContext(ctx, `SELECT id, business_id, target_funding FROM pitches WHERE id = $1`, pitchID).
		Scan(&p.ID, &p.BusinessID, &p.TargetFunding)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("pitch", pitchID)
	}
	if err != nil {
		return nil, fmt.Errorf("get pitch: %w", err)
	}
	return &p, nil
}

func (t *tx) SumAllocations(ctx context.Context, investorID, businessID string) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := t.tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(ican_amount), 0)
		FROM allocations
		WHERE investor_id = $1 AND business_id = $2 AND status <> 'void'`, investorID, businessID).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum allocations: %w", err)
	}
	return total, nil
}

func (t *tx) InsertAllocation(ctx context.Context, rec *models.AllocationRecord) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO allocations (id, investor_id, business_id, pitch_id, ican_amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, rec.InvestorID, rec.BusinessID, rec.PitchID, rec.ICANAmount, string(rec.Status), rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert allocation: %w", err)
	}
	return nil
}

func (t *tx) GetAllocation(ctx context.Context, id string, lock bool) (*models.AllocationRecord, error) {
	var (
		a      models.AllocationRecord
		status string
		conv   []byte
	)
	err := t.tx.QueryRowContext(ctx, forUpdate(`
		SELECT id, investor_id, business_id, pitch_id, ican_amount, status, COALESCE(rate_lock_id, ''), conversion, created_at, updated_at
		FROM allocations WHERE id = $1`, lock), id).
		Scan(&a.ID, &a.InvestorID, &a.BusinessID, &a.PitchID, &a.ICANAmount, &status, &a.RateLockID, &conv, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("allocation", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get allocation: %w", err)
	}
	a.Status = models.AllocationStatus(status)
	if len(conv) > 0 {
		var c models.ConversionBreakdown
		if err := json.Unmarshal(conv, &c); err != nil {
			return nil, fmt.Errorf("decode conversion: %w", err)
		}
		a.Conversion = &c
	}
	return &a, nil
}

func (t *tx) TransitionAllocation(ctx context.Context, id string, from, to models.AllocationStatus, at time.Time) (bool, error) {
	ok, err := affected(t.tx.ExecContext(ctx, `
		UPDATE allocations SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2`,
		id, string(from), string(to), at,
	))
	if err != nil {
		return false, fmt.Errorf("transition allocation: %w", err)
	}
	return ok, nil
}

func (t *tx) AttachConversion(ctx context.Context, id, rateLockID string, conv *models.ConversionBreakdown, at time.Time) (bool, error) {
	data, err := json.Marshal(conv)
	if err != nil {
		return false, fmt.Errorf("encode conversion: %w", err)
	}
	ok, err := affected(t.tx.ExecContext(ctx, `
		UPDATE allocations SET rate_lock_id = $2, conversion = $3, updated_at = $4
		WHERE id = $1 AND status = 'reserved' AND rate_lock_id IS NULL`,
		id, rateLockID, string(data), at,
	))
	if err != nil {
		return false, fmt.Errorf("attach conversion: %w", err)
	}
	return ok, nil
}
