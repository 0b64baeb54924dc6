// internal/workers/investment/check-and-reserve-allocation/models.go
package checkandreserveallocation

import (
	"ican-workers/internal/models"

	"github.com/shopspring/decimal"
)

// ThrowOnExceededHeader is the task header that turns a denied reservation
// into a CAP_EXCEEDED BPMN error instead of allowed=false.
const ThrowOnExceededHeader = "throwOnCapExceeded"

type Input struct {
	InvestorID string          `json:"investorId"`
	BusinessID string          `json:"businessId"`
	PitchID    string          `json:"pitchId"`
	ICANAmount decimal.Decimal `json:"icanAmount"`
}

type Output struct {
	Allowed      bool              `json:"allowed"`
	AllocationID string            `json:"allocationId,omitempty"`
	CapDetails   models.CapDetails `json:"capDetails"`
	Reason       string            `json:"reason,omitempty"`
}
