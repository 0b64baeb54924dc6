// Package allocation enforces the per-investor allocation cap on business
// pitches and drives reserved allocations through settlement.
package allocation

import (
	"context"
	"strings"
	"time"

	"ican-workers/internal/audit"
	apperrors "ican-workers/internal/common/errors"
	"ican-workers/internal/common/logger"
	"ican-workers/internal/common/metrics"
	"ican-workers/internal/models"
	"ican-workers/internal/notify"
	"ican-workers/internal/ratelock"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	DefaultCapRatio = decimal.RequireFromString("0.60")
	hundred         = decimal.NewFromInt(100)
)

// RateLocker is the exchange-rate side of Finalize.
type RateLocker interface {
	LockRate(ctx context.Context, fromCurrency, toCurrency, txID string, txType models.TxType) (*models.ExchangeRateLock, error)
	ConsumeLock(ctx context.Context, lockID string) (*models.ExchangeRateLock, error)
	CalculateConversion(icanAmount, lockedRate decimal.Decimal, countryCode string, txType models.TxType) (*models.ConversionBreakdown, error)
	Country(code string) (ratelock.Country, bool)
}

type Options struct {
	Store              Store
	Rates              RateLocker
	Notifier           notify.Notifier
	Mirror             audit.Mirror
	Logger             logger.Logger
	Clock              func() time.Time
	CapRatio           decimal.Decimal
	SettlementCurrency string
	PriceCurrency      string
	NewID              func() string
}

type Enforcer struct {
	store      Store
	rates      RateLocker
	notifier   notify.Notifier
	mirror     audit.Mirror
	logger     logger.Logger
	clock      func() time.Time
	capRatio   decimal.Decimal
	settlement string
	price      string
	newID      func() string
}

func NewEnforcer(opts Options) *Enforcer {
	e := &Enforcer{
		store:      opts.Store,
		rates:      opts.Rates,
		notifier:   opts.Notifier,
		mirror:     opts.Mirror,
		logger:     logger.Component(opts.Logger, "allocation"),
		clock:      opts.Clock,
		capRatio:   opts.CapRatio,
		settlement: opts.SettlementCurrency,
		price:      opts.PriceCurrency,
		newID:      opts.NewID,
	}
	if e.notifier == nil {
		e.notifier = notify.Nop{}
	}
	if e.mirror == nil {
		e.mirror = audit.NopMirror{}
	}
	if e.clock == nil {
		e.clock = time.Now
	}
	if !e.capRatio.IsPositive() {
		e.capRatio = DefaultCapRatio
	}
	if e.settlement == "" {
		e.settlement = "ICAN"
	}
	if e.price == "" {
		e.price = "UGX"
	}
	if e.newID == nil {
		e.newID = uuid.NewString
	}
	return e
}

func (e *Enforcer) now() time.Time { return e.clock().UTC() }

// Decision is the outcome of a cap check.
type Decision struct {
	Allowed    bool                     `json:"allowed"`
	Details    models.CapDetails        `json:"details"`
	Allocation *models.AllocationRecord `json:"allocation,omitempty"`
}

// Err returns a CAP_EXCEEDED error for a denied decision and nil otherwise.
func (d *Decision) Err() error {
	if d == nil || d.Allowed {
		return nil
	}
	return apperrors.NewCapExceededError("totalAfter "+d.Details.TotalAfter.String()+" exceeds cap "+d.Details.Cap.String()).
		WithMetadata("existingTotal", d.Details.ExistingTotal.String()).
		WithMetadata("cap", d.Details.Cap.String()).
		WithMetadata("remaining", d.Details.Remaining.String())
}

// ====================
// Cap check
// ====================

// CheckAndReserve reserves proposed for the investor if the running total stays
// within the cap. The read and the insert happen under one per-investor lock.
func (e *Enforcer) CheckAndReserve(ctx context.Context, investorID, businessID, pitchID string, proposed decimal.Decimal) (*Decision, error) {
	investorID = strings.TrimSpace(investorID)
	businessID = strings.TrimSpace(businessID)
	pitchID = strings.TrimSpace(pitchID)
	if investorID == "" || businessID == "" || pitchID == "" {
		return nil, apperrors.NewValidationError("investorId, businessId and pitchId are required")
	}
	if !proposed.IsPositive() {
		return nil, apperrors.NewValidationError("proposedIcan must be positive")
	}

	var (
		rec      audit.Recorder
		decision *Decision
	)
	err := e.store.WithinInvestorLock(ctx, investorID, businessID, func(tx Tx) error {
		details, err := e.capDetails(ctx, tx, investorID, businessID, pitchID, proposed)
		if err != nil {
			return err
		}
		decision = &Decision{Details: details}
		if details.TotalAfter.GreaterThan(details.Cap) {
			return nil
		}

		now := e.now()
		alloc := &models.AllocationRecord{
			ID:         e.newID(),
			InvestorID: investorID,
			BusinessID: businessID,
			PitchID:    pitchID,
			ICANAmount: proposed,
			Status:     models.AllocationReserved,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := tx.InsertAllocation(ctx, alloc); err != nil {
			return err
		}
		if err := rec.Record(ctx, tx, models.AuditAllocationReserved, models.ResourceAllocation, alloc.ID, investorID, map[string]interface{}{
			"businessId":    businessID,
			"pitchId":       pitchID,
			"icanAmount":    proposed.String(),
			"existingTotal": details.ExistingTotal.String(),
			"cap":           details.Cap.String(),
		}, now); err != nil {
			return err
		}
		decision.Allowed = true
		decision.Allocation = alloc
		return nil
	})
	if err != nil {
		metrics.AllocationDecisions.WithLabelValues("error").Inc()
		return nil, err
	}

	fields := map[string]interface{}{
		"investorId":    investorID,
		"businessId":    businessID,
		"pitchId":       pitchID,
		"proposedIcan":  proposed.String(),
		"existingTotal": decision.Details.ExistingTotal.String(),
		"cap":           decision.Details.Cap.String(),
	}
	if !decision.Allowed {
		metrics.AllocationDecisions.WithLabelValues("cap_exceeded").Inc()
		e.logger.Info("allocation denied by cap", fields)
		return decision, nil
	}

	metrics.AllocationDecisions.WithLabelValues("allowed").Inc()
	metrics.AllocationTransitions.WithLabelValues(string(models.AllocationReserved)).Inc()
	rec.Flush(ctx, e.mirror)
	fields["allocationId"] = decision.Allocation.ID
	e.logger.Info("allocation reserved", fields)

	e.notifier.Notify(ctx, models.Notification{
		Type:         models.NotifyAllocationReserved,
		RecipientIDs: []string{investorID},
		ResourceID:   decision.Allocation.ID,
		Data: map[string]interface{}{
			"businessId": businessID,
			"pitchId":    pitchID,
			"icanAmount": proposed.String(),
		},
	})
	return decision, nil
}

func (e *Enforcer) capDetails(ctx context.Context, tx Tx, investorID, businessID, pitchID string, proposed decimal.Decimal) (models.CapDetails, error) {
	pitch, err := tx.GetPitch(ctx, pitchID)
	if err != nil {
		return models.CapDetails{}, err
	}
	if pitch.BusinessID != businessID {
		return models.CapDetails{}, apperrors.NewValidationError("pitch " + pitchID + " does not belong to business " + businessID)
	}

	existing, err := tx.SumAllocations(ctx, investorID, businessID)
	if err != nil {
		return models.CapDetails{}, err
	}
	return ComputeCap(existing, proposed, pitch.TargetFunding, e.capRatio), nil
}

// ComputeCap evaluates proposed against ratio of targetFunding given the
// investor's existing total.
func ComputeCap(existing, proposed, targetFunding, ratio decimal.Decimal) models.CapDetails {
	capAmount := targetFunding.Mul(ratio)
	totalAfter := existing.Add(proposed)
	remaining := capAmount.Sub(existing)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}

	d := models.CapDetails{
		ExistingTotal: existing,
		ProposedICAN:  proposed,
		TotalAfter:    totalAfter,
		Cap:           capAmount,
		Remaining:     remaining,
		TargetFunding: targetFunding,
		CapPercentage: ratio.Mul(hundred),
	}
	if targetFunding.IsPositive() {
		d.TotalAfterPercentage = totalAfter.Mul(hundred).Div(targetFunding).Round(2)
	}
	return d
}

// Summary reports the investor's current headroom without reserving anything.
func (e *Enforcer) Summary(ctx context.Context, investorID, businessID, pitchID string) (*models.CapDetails, error) {
	if strings.TrimSpace(investorID) == "" || strings.TrimSpace(businessID) == "" || strings.TrimSpace(pitchID) == "" {
		return nil, apperrors.NewValidationError("investorId, businessId and pitchId are required")
	}
	var details models.CapDetails
	err := e.store.WithinTx(ctx, func(tx Tx) error {
		var err error
		details, err = e.capDetails(ctx, tx, investorID, businessID, pitchID, decimal.Zero)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &details, nil
}

// ====================
// Settlement
// ====================

// Finalize pins an exchange rate for a reserved allocation, converts it into
// the investor's local currency and records the breakdown. Finalizing an
// allocation that already carries a conversion returns it unchanged.
func (e *Enforcer) Finalize(ctx context.Context, allocationID, countryCode string) (*models.AllocationRecord, error) {
	if strings.TrimSpace(allocationID) == "" {
		return nil, apperrors.NewValidationError("allocationId is required")
	}
	if e.rates == nil {
		return nil, apperrors.NewUpstreamUnavailableError("rate-lock", nil)
	}
	if _, ok := e.rates.Country(countryCode); !ok {
		return nil, apperrors.NewValidationError("unsupported country " + countryCode)
	}

	alloc, err := e.GetAllocation(ctx, allocationID)
	if err != nil {
		return nil, err
	}
	if alloc.Status != models.AllocationReserved {
		return nil, apperrors.NewStateError("allocation " + allocationID + " is " + string(alloc.Status) + ", expected reserved")
	}
	if alloc.Conversion != nil {
		return alloc, nil
	}

	lock, err := e.rates.LockRate(ctx, e.settlement, e.price, alloc.ID, models.TxInvestment)
	if err != nil {
		return nil, err
	}
	conv, err := e.rates.CalculateConversion(alloc.ICANAmount, lock.LockedRate, countryCode, models.TxInvestment)
	if err != nil {
		return nil, err
	}
	if _, err := e.rates.ConsumeLock(ctx, lock.ID); err != nil {
		return nil, err
	}

	var rec audit.Recorder
	err = e.store.WithinTx(ctx, func(tx Tx) error {
		now := e.now()
		ok, err := tx.AttachConversion(ctx, alloc.ID, lock.ID, conv, now)
		if err != nil {
			return err
		}
		if !ok {
			current, err := tx.GetAllocation(ctx, alloc.ID, false)
			if err != nil {
				return err
			}
			return apperrors.NewStateError("allocation " + alloc.ID + " changed during finalize, now " + string(current.Status))
		}
		alloc.RateLockID = lock.ID
		alloc.Conversion = conv
		alloc.UpdatedAt = now
		return rec.Record(ctx, tx, models.AuditAllocationFinalized, models.ResourceAllocation, alloc.ID, alloc.InvestorID, map[string]interface{}{
			"rateLockId":    lock.ID,
			"lockedRate":    lock.LockedRate.String(),
			"countryCode":   conv.CountryCode,
			"localCurrency": conv.LocalCurrency,
			"netIcan":       conv.NetICAN.String(),
			"netLocal":      conv.NetLocal.String(),
		}, now)
	})
	if err != nil {
		return nil, err
	}

	rec.Flush(ctx, e.mirror)
	e.logger.Info("allocation finalized", map[string]interface{}{
		"allocationId":  alloc.ID,
		"rateLockId":    lock.ID,
		"localCurrency": conv.LocalCurrency,
		"netLocal":      conv.NetLocal.String(),
	})
	e.notifier.Notify(ctx, models.Notification{
		Type:         models.NotifyAllocationFinalized,
		RecipientIDs: []string{alloc.InvestorID},
		ResourceID:   alloc.ID,
		Data: map[string]interface{}{
			"localCurrency": conv.LocalCurrency,
			"netLocal":      conv.NetLocal.String(),
		},
	})
	return alloc, nil
}

// Complete marks a reserved allocation settled.
func (e *Enforcer) Complete(ctx context.Context, allocationID string) (*models.AllocationRecord, error) {
	return e.settle(ctx, allocationID, models.AllocationCompleted, models.AuditAllocationCompleted)
}

// Void releases a reserved allocation; it no longer counts toward the cap.
func (e *Enforcer) Void(ctx context.Context, allocationID string) (*models.AllocationRecord, error) {
	return e.settle(ctx, allocationID, models.AllocationVoid, models.AuditAllocationVoided)
}

func (e *Enforcer) settle(ctx context.Context, allocationID string, to models.AllocationStatus, event string) (*models.AllocationRecord, error) {
	if strings.TrimSpace(allocationID) == "" {
		return nil, apperrors.NewValidationError("allocationId is required")
	}

	var (
		rec   audit.Recorder
		alloc *models.AllocationRecord
	)
	err := e.store.WithinTx(ctx, func(tx Tx) error {
		var err error
		alloc, err = tx.GetAllocation(ctx, allocationID, true)
		if err != nil {
			return err
		}
		if alloc.Status != models.AllocationReserved {
			return apperrors.NewStateError("allocation " + allocationID + " is " + string(alloc.Status) + ", expected reserved")
		}

		now := e.now()
		ok, err := tx.TransitionAllocation(ctx, allocationID, models.AllocationReserved, to, now)
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.NewConflictError(nil).WithMetadata("allocationId", allocationID)
		}
		alloc.Status = to
		alloc.UpdatedAt = now
		return rec.Record(ctx, tx, event, models.ResourceAllocation, allocationID, alloc.InvestorID, map[string]interface{}{
			"status":     string(to),
			"icanAmount": alloc.ICANAmount.String(),
		}, now)
	})
	if err != nil {
		return nil, err
	}

	metrics.AllocationTransitions.WithLabelValues(string(to)).Inc()
	rec.Flush(ctx, e.mirror)
	e.logger.Info("allocation settled", map[string]interface{}{"allocationId": allocationID, "status": to})
	return alloc, nil
}

func (e *Enforcer) GetAllocation(ctx context.Context, allocationID string) (*models.AllocationRecord, error) {
	if strings.TrimSpace(allocationID) == "" {
		return nil, apperrors.NewValidationError("allocationId is required")
	}
	var alloc *models.AllocationRecord
	err := e.store.WithinTx(ctx, func(tx Tx) error {
		var err error
		alloc, err = tx.GetAllocation(ctx, allocationID, false)
		return err
	})
	return alloc, err
}
