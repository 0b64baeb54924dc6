package allocation

import (
	"context"
	"time"

	"ican-workers/internal/models"

	"github.com/shopspring/decimal"
)

// Store runs allocation operations in transactions.
type Store interface {
	// WithinInvestorLock runs fn in a transaction that holds an exclusive
	// lock on (investorID, businessID) until it ends. Concurrent callers for
	// the same key run one after another, and each sees the allocations
	// committed by the callers before it.
	WithinInvestorLock(ctx context.Context, investorID, businessID string, fn func(tx Tx) error) error
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

type Tx interface {
	// GetPitch returns a NOT_FOUND error for unknown pitches.
	GetPitch(ctx context.Context, pitchID string) (*models.Pitch, error)
	// SumAllocations totals the non-void allocations of investorID in businessID.
	SumAllocations(ctx context.Context, investorID, businessID string) (decimal.Decimal, error)
	InsertAllocation(ctx context.Context, rec *models.AllocationRecord) error
	// GetAllocation returns a NOT_FOUND error for unknown ids.
	GetAllocation(ctx context.Context, id string, forUpdate bool) (*models.AllocationRecord, error)
	// TransitionAllocation changes status only if the record is still in from.
	TransitionAllocation(ctx context.Context, id string, from, to models.AllocationStatus, at time.Time) (bool, error)
	// AttachConversion stores the finalize outcome on a reserved record that
	// has none yet.
	AttachConversion(ctx context.Context, id, rateLockID string, conv *models.ConversionBreakdown, at time.Time) (bool, error)
	AppendAudit(ctx context.Context, entry models.AuditEntry) error
}
