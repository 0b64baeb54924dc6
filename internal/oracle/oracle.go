// Package oracle fetches market prices and keeps the last good price in Redis.
package oracle

import (
	"context"
	"fmt"
	"net/url"
	"time"

	apperrors "ican-workers/internal/common/errors"
	commonhttp "ican-workers/internal/common/http"
	"ican-workers/internal/models"

	"github.com/shopspring/decimal"
)

// Quote is a price for one unit of Pair.Base in Pair.Quote.
type Quote struct {
	Pair  models.CurrencyPair `json:"pair"`
	Price decimal.Decimal     `json:"price"`
	AsOf  time.Time           `json:"asOf"`
}

// PriceOracle returns a live quote for a pair.
type PriceOracle interface {
	Quote(ctx context.Context, pair models.CurrencyPair) (Quote, error)
}

type priceResponse struct {
	Price decimal.Decimal `json:"price"`
	AsOf  time.Time       `json:"asOf"`
}

// HTTPOracle queries GET {baseURL}/v1/price?base=..&quote=..
type HTTPOracle struct {
	baseURL string
	apiKey  string
	client  *commonhttp.Client
}

func NewHTTPOracle(baseURL, apiKey string, timeout time.Duration) *HTTPOracle {
	return &HTTPOracle{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  commonhttp.NewClient(timeout),
	}
}

func (o *HTTPOracle) Quote(ctx context.Context, pair models.CurrencyPair) (Quote, error) {
	q := url.Values{}
	q.Set("base", pair.Base)
	q.Set("quote", pair.Quote)
	endpoint := fmt.Sprintf("%s/v1/price?%s", o.baseURL, q.Encode())

	headers := map[string]string{}
	if o.apiKey != "" {
		headers["X-API-Key"] = o.apiKey
	}

	var resp priceResponse
	if err := o.client.GetJSON(ctx, endpoint, headers, &resp); err != nil {
		return Quote{}, apperrors.NewUpstreamUnavailableError("price-oracle", err)
	}
	if !resp.Price.IsPositive() {
		return Quote{}, apperrors.NewUpstreamUnavailableError("price-oracle", fmt.Errorf("non-positive price %s", resp.Price))
	}
	if resp.AsOf.IsZero() {
		resp.AsOf = time.Now().UTC()
	}
	return Quote{Pair: pair, Price: resp.Price, AsOf: resp.AsOf}, nil
}
