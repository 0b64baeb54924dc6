// internal/workers/investment/finalize-allocation/models.go
package finalizeallocation

import (
	"ican-workers/internal/models"

	"github.com/shopspring/decimal"
)

type Input struct {
	AllocationID string `json:"allocationId"`
	CountryCode  string `json:"countryCode"`
}

type Output struct {
	Allocation    *models.AllocationRecord `json:"allocation"`
	RateLockID    string                   `json:"rateLockId"`
	LocalCurrency string                   `json:"localCurrency"`
	NetLocal      decimal.Decimal          `json:"netLocal"`
}
