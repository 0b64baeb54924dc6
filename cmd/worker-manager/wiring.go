// cmd/worker-manager/wiring.go
package main

import (
	"context"
	"fmt"
	"strings"

	"ican-workers/internal/common/config"
	"ican-workers/internal/models"
	"ican-workers/internal/ratelock"
	"ican-workers/internal/store/postgres"

	"github.com/shopspring/decimal"
)

// pairPolicies converts the configured pair bounds. Values were validated
// when the config was loaded; empty values stay zero.
func pairPolicies(cfg config.RateLockConfig) (map[models.CurrencyPair]ratelock.PairPolicy, error) {
	out := make(map[models.CurrencyPair]ratelock.PairPolicy, len(cfg.Pairs))
	for _, p := range cfg.Pairs {
		minRate, err := optionalDecimal(p.MinRate)
		if err != nil {
			return nil, fmt.Errorf("pair %s/%s min_rate: %w", p.Base, p.Quote, err)
		}
		defaultRate, err := optionalDecimal(p.DefaultRate)
		if err != nil {
			return nil, fmt.Errorf("pair %s/%s default_rate: %w", p.Base, p.Quote, err)
		}
		out[models.NewCurrencyPair(p.Base, p.Quote)] = ratelock.PairPolicy{MinRate: minRate, DefaultRate: defaultRate}
	}
	return out, nil
}

func countries(cfg config.RateLockConfig) (ratelock.Countries, error) {
	out := make(ratelock.Countries, len(cfg.Countries))
	for _, c := range cfg.Countries {
		rate, err := decimal.NewFromString(c.Rate)
		if err != nil {
			return nil, fmt.Errorf("country %s rate: %w", c.Code, err)
		}
		code := strings.ToUpper(strings.TrimSpace(c.Code))
		out[code] = ratelock.Country{Code: code, Currency: strings.ToUpper(strings.TrimSpace(c.Currency)), Rate: rate}
	}
	return out, nil
}

func optionalDecimal(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}

// postgresTrail serves audit lookups from Postgres when the search mirror is off.
type postgresTrail struct {
	db *postgres.DB
}

func (p postgresTrail) Trail(ctx context.Context, resourceID string, size int) ([]models.AuditEntry, error) {
	entries, err := p.db.AuditTrail(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	if size > 0 && len(entries) > size {
		entries = entries[:size]
	}
	return entries, nil
}
