// internal/workers/exchange/calculate-conversion/models.go
package calculateconversion

import (
	"ican-workers/internal/models"

	"github.com/shopspring/decimal"
)

type Input struct {
	ICANAmount  decimal.Decimal `json:"icanAmount"`
	LockedRate  decimal.Decimal `json:"lockedRate"`
	CountryCode string          `json:"countryCode"`
	TxType      string          `json:"txType"`
}

type Output struct {
	Conversion    *models.ConversionBreakdown `json:"conversion"`
	NetICAN       decimal.Decimal             `json:"netIcan"`
	NetLocal      decimal.Decimal             `json:"netLocal"`
	LocalCurrency string                      `json:"localCurrency"`
}
