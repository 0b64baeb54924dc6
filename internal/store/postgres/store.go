// Package postgres implements the membership, allocation and rate-lock stores
// on PostgreSQL through lib/pq.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	apperrors "ican-workers/internal/common/errors"
	"ican-workers/internal/models"

	"github.com/lib/pq"
)

//go:embed schema.sql
var schema string

// Migrate creates missing tables and indexes. It is safe to run repeatedly.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// DB is the shared handle behind the per-domain stores.
type DB struct {
	db *sql.DB
}

func New(db *sql.DB) *DB {
	return &DB{db: db}
}

func (d *DB) Membership() *MembershipStore { return &MembershipStore{d} }
func (d *DB) Allocation() *AllocationStore { return &AllocationStore{d} }
func (d *DB) RateLock() *RateLockStore     { return &RateLockStore{d} }

// withTx runs fn in a transaction, committing on success.
func (d *DB) withTx(ctx context.Context, opts *sql.TxOptions, fn func(*tx) error) error {
	sqlTx, err := d.db.BeginTx(ctx, opts)
	if err != nil {
		return classify("begin", err)
	}

	if err := fn(&tx{tx: sqlTx}); err != nil {
		_ = sqlTx.Rollback()
		return classify("tx", err)
	}

	if err := sqlTx.Commit(); err != nil {
		return classify("commit", err)
	}
	return nil
}

// Postgres SQLSTATE codes the stores react to.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeUniqueViolation      = "23505"
)

// classify maps driver errors onto application errors. Errors that already
// carry a code pass through unchanged.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var stdErr *apperrors.StandardError
	if errors.As(err, &stdErr) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case codeSerializationFailure, codeDeadlockDetected, codeUniqueViolation:
			return apperrors.NewConflictError(err).WithMetadata("sqlstate", string(pqErr.Code))
		}
	}
	return apperrors.NewDatabaseError(op, err)
}

// tx implements membership.Tx, allocation.Tx and ratelock.Tx on a *sql.Tx.
type tx struct {
	tx *sql.Tx
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func forUpdate(query string, lock bool) string {
	if lock {
		return query + " FOR UPDATE"
	}
	return query
}

func affected(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (t *tx) AppendAudit(ctx context.Context, e models.AuditEntry) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO audit_entries (id, event_type, resource_type, resource_id, actor_id, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`,
		e.ID, e.EventType, e.ResourceType, e.ResourceID, nullString(e.ActorID), string(e.Payload), e.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// AuditTrail returns the entries recorded for resourceID, oldest first.
func (d *DB) AuditTrail(ctx context.Context, resourceID string) ([]models.AuditEntry, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, event_type, resource_type, resource_id, COALESCE(actor_id, ''), payload, occurred_at
		FROM audit_entries
		WHERE resource_id = $1
		ORDER BY occurred_at, id`, resourceID)
	if err != nil {
		return nil, classify("audit trail", err)
	}
	defer rows.Close()

	var out []models.AuditEntry
	for rows.Next() {
		var (
			e       models.AuditEntry
			payload []byte
		)
		if err := rows.Scan(&e.ID, &e.EventType, &e.ResourceType, &e.ResourceID, &e.ActorID, &payload, &e.OccurredAt); err != nil {
			return nil, classify("audit trail", err)
		}
		e.Payload = json.RawMessage(payload)
		out = append(out, e)
	}
	return out, classify("audit trail", rows.Err())
}
