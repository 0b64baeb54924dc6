package oracle

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	apperrors "ican-workers/internal/common/errors"
	"ican-workers/internal/common/logger"
	"ican-workers/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var icanUGX = models.NewCurrencyPair("ICAN", "UGX")

func TestHTTPOracle_Quote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/price", r.URL.Path)
		assert.Equal(t, "ICAN", r.URL.Query().Get("base"))
		assert.Equal(t, "UGX", r.URL.Query().Get("quote"))
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"price":"5012.5","asOf":"2024-05-01T09:00:00Z"}`))
	}))
	defer srv.Close()

	o := NewHTTPOracle(srv.URL, "secret", time.Second)
	q, err := o.Quote(context.Background(), icanUGX)
	require.NoError(t, err)
	assert.True(t, q.Price.Equal(decimal.RequireFromString("5012.5")))
	assert.Equal(t, 2024, q.AsOf.Year())
	assert.Equal(t, icanUGX, q.Pair)
}

func TestHTTPOracle_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusBadGateway, `oops`},
		{"zero price", http.StatusOK, `{"price":"0"}`},
		{"garbage", http.StatusOK, `{"price":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewHTTPOracle(srv.URL, "", time.Second).Quote(context.Background(), icanUGX)
			assert.True(t, errors.Is(err, apperrors.ErrUpstreamUnavailable), "got %v", err)
		})
	}
}

type countingOracle struct {
	calls int32
	price decimal.Decimal
}

func (c *countingOracle) Quote(_ context.Context, p models.CurrencyPair) (Quote, error) {
	atomic.AddInt32(&c.calls, 1)
	return Quote{Pair: p, Price: c.price, AsOf: time.Now().UTC()}, nil
}

func TestCachedOracle_ServesFromCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	next := &countingOracle{price: decimal.NewFromInt(5000)}
	c := NewCachedOracle(next, rdb, 30*time.Second, logger.NewTestLogger(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		q, err := c.Quote(ctx, icanUGX)
		require.NoError(t, err)
		assert.True(t, q.Price.Equal(decimal.NewFromInt(5000)))
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&next.calls))

	mr.FastForward(31 * time.Second)
	_, err := c.Quote(ctx, icanUGX)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&next.calls))
}

func TestCachedOracle_RedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	mr.Close()

	next := &countingOracle{price: decimal.NewFromInt(5000)}
	c := NewCachedOracle(next, rdb, 30*time.Second, logger.NewNoOpLogger())

	q, err := c.Quote(context.Background(), icanUGX)
	require.NoError(t, err)
	assert.True(t, q.Price.Equal(decimal.NewFromInt(5000)))
}

func TestPriceHistory_RoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	h := NewPriceHistory(rdb, 24*time.Hour)
	ctx := context.Background()

	_, ok, err := h.LastKnownGood(ctx, icanUGX)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, h.Remember(ctx, Quote{Pair: icanUGX, Price: decimal.RequireFromString("4999.99")}))

	q, ok, err := h.LastKnownGood(ctx, icanUGX)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, q.Price.Equal(decimal.RequireFromString("4999.99")))
	assert.True(t, mr.Exists("oracle:lkg:ICAN/UGX"))
	assert.Equal(t, 24*time.Hour, mr.TTL("oracle:lkg:ICAN/UGX"))
}

func TestPriceHistory_Errors(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	h := NewPriceHistory(rdb, time.Hour)
	ctx := context.Background()

	mock.ExpectGet("oracle:lkg:ICAN/UGX").SetErr(errors.New("connection reset"))
	_, _, err := h.LastKnownGood(ctx, icanUGX)
	assert.ErrorContains(t, err, "connection reset")

	mock.ExpectGet("oracle:lkg:ICAN/UGX").SetVal("not json")
	_, _, err = h.LastKnownGood(ctx, icanUGX)
	assert.ErrorContains(t, err, "decode")

	assert.NoError(t, mock.ExpectationsWereMet())
}
