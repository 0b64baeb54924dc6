// internal/workers/exchange/lock-exchange-rate/models.go
package lockexchangerate

import (
	"time"

	"ican-workers/internal/models"

	"github.com/shopspring/decimal"
)

type Input struct {
	FromCurrency string `json:"fromCurrency"`
	ToCurrency   string `json:"toCurrency"`
	TxID         string `json:"txId"`
	TxType       string `json:"txType"`
}

type Output struct {
	RateLock   *models.ExchangeRateLock `json:"rateLock"`
	RateLockID string                   `json:"rateLockId"`
	LockedRate decimal.Decimal          `json:"lockedRate"`
	ExpiresAt  time.Time                `json:"expiresAt"`
	RateSource string                   `json:"rateSource"`
}
