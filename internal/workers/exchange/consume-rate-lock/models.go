// internal/workers/exchange/consume-rate-lock/models.go
package consumeratelock

import "ican-workers/internal/models"

type Input struct {
	RateLockID string `json:"rateLockId"`
}

type Output struct {
	RateLock       *models.ExchangeRateLock `json:"rateLock"`
	RateLockID     string                   `json:"rateLockId"`
	RateLockStatus string                   `json:"rateLockStatus"`
}
