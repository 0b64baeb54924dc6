// internal/models/allocation.go
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type AllocationStatus string

const (
	AllocationReserved  AllocationStatus = "reserved"
	AllocationCompleted AllocationStatus = "completed"
	AllocationVoid      AllocationStatus = "void"
)

func (s AllocationStatus) Valid() bool {
	switch s {
	case AllocationReserved, AllocationCompleted, AllocationVoid:
		return true
	}
	return false
}

// CountsTowardCap reports whether the record holds part of the investor's cap.
func (s AllocationStatus) CountsTowardCap() bool { return s != AllocationVoid }

// Pitch is the funding request of a business. TargetFunding is expressed in
// the same unit as allocation amounts.
type Pitch struct {
	ID            string          `json:"id"`
	BusinessID    string          `json:"businessId"`
	TargetFunding decimal.Decimal `json:"targetFunding"`
}

// AllocationRecord is an investor's reservation against a business's pitch.
type AllocationRecord struct {
	ID         string               `json:"id"`
	InvestorID string               `json:"investorId"`
	BusinessID string               `json:"businessId"`
	PitchID    string               `json:"pitchId"`
	ICANAmount decimal.Decimal      `json:"icanAmount"`
	Status     AllocationStatus     `json:"status"`
	RateLockID string               `json:"rateLockId,omitempty"`
	Conversion *ConversionBreakdown `json:"conversion,omitempty"`
	CreatedAt  time.Time            `json:"createdAt"`
	UpdatedAt  time.Time            `json:"updatedAt"`
}

// CapDetails explains a cap check outcome.
type CapDetails struct {
	ExistingTotal        decimal.Decimal `json:"existingTotal"`
	ProposedICAN         decimal.Decimal `json:"proposedIcan"`
	TotalAfter           decimal.Decimal `json:"totalAfter"`
	Cap                  decimal.Decimal `json:"cap"`
	Remaining            decimal.Decimal `json:"remaining"`
	TargetFunding        decimal.Decimal `json:"targetFunding"`
	TotalAfterPercentage decimal.Decimal `json:"totalAfterPercentage"`
	CapPercentage        decimal.Decimal `json:"capPercentage"`
}
