package ratelock_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	apperrors "ican-workers/internal/common/errors"
	"ican-workers/internal/common/logger"
	"ican-workers/internal/models"
	"ican-workers/internal/oracle"
	"ican-workers/internal/ratelock"
	"ican-workers/internal/store/memory"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pair = models.NewCurrencyPair("ICAN", "UGX")

type stubOracle struct {
	mu    sync.Mutex
	price decimal.Decimal
	err   error
	calls int
}

func (s *stubOracle) Quote(_ context.Context, p models.CurrencyPair) (oracle.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return oracle.Quote{}, s.err
	}
	return oracle.Quote{Pair: p, Price: s.price, AsOf: time.Now()}, nil
}

type memHistory struct {
	mu     sync.Mutex
	quotes map[models.CurrencyPair]oracle.Quote
}

func (h *memHistory) LastKnownGood(_ context.Context, p models.CurrencyPair) (oracle.Quote, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	q, ok := h.quotes[p]
	return q, ok, nil
}

func (h *memHistory) Remember(_ context.Context, q oracle.Quote) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.quotes[q.Pair] = q
	return nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	mgr     *ratelock.Manager
	oracle  *stubOracle
	history *memHistory
	clock   *clock
}

func newFixture(t *testing.T, policy ratelock.PairPolicy) *fixture {
	t.Helper()
	f := &fixture{
		oracle:  &stubOracle{price: decimal.RequireFromString("5000")},
		history: &memHistory{quotes: map[models.CurrencyPair]oracle.Quote{}},
		clock:   &clock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)},
	}
	var n int
	var mu sync.Mutex
	f.mgr = ratelock.NewManager(ratelock.Options{
		Store:    memory.New().RateLock(),
		Oracle:   f.oracle,
		History:  f.history,
		Policies: map[models.CurrencyPair]ratelock.PairPolicy{pair: policy},
		Countries: ratelock.Countries{
			"UG": {Code: "UG", Currency: "UGX", Rate: decimal.NewFromInt(1)},
			"KE": {Code: "KE", Currency: "KES", Rate: decimal.RequireFromString("0.035")},
		},
		Logger: logger.NewTestLogger(t),
		Clock:  f.clock.Now,
		NewID: func() string {
			mu.Lock()
			defer mu.Unlock()
			n++
			return fmt.Sprintf("lock-%d", n)
		},
	})
	return f
}

func defaultPolicy() ratelock.PairPolicy {
	return ratelock.PairPolicy{MinRate: decimal.NewFromInt(1), DefaultRate: decimal.NewFromInt(4800)}
}

func TestLockRate_FromOracle(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	ctx := context.Background()

	lock, err := f.mgr.LockRate(ctx, "ican", "ugx", "tx-1", models.TxInvestment)
	require.NoError(t, err)
	assert.True(t, lock.LockedRate.Equal(decimal.NewFromInt(5000)))
	assert.Equal(t, models.RateSourceOracle, lock.RateSource)
	assert.Equal(t, models.RateLockActive, lock.Status)
	assert.Equal(t, "ICAN", lock.FromCurrency)
	assert.Equal(t, f.clock.Now().Add(30*time.Minute), lock.ExpiresAt)

	_, ok, _ := f.history.LastKnownGood(ctx, pair)
	assert.True(t, ok, "fresh price must be remembered")
}

func TestLockRate_IdempotentPerTx(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	ctx := context.Background()

	first, err := f.mgr.LockRate(ctx, "ICAN", "UGX", "tx-1", models.TxInvestment)
	require.NoError(t, err)

	f.oracle.price = decimal.NewFromInt(6000)
	second, err := f.mgr.LockRate(ctx, "ICAN", "UGX", "tx-1", models.TxInvestment)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.LockedRate.Equal(decimal.NewFromInt(5000)))

	f.clock.Advance(31 * time.Minute)
	third, err := f.mgr.LockRate(ctx, "ICAN", "UGX", "tx-1", models.TxInvestment)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, third.ID)
	assert.True(t, third.LockedRate.Equal(decimal.NewFromInt(6000)))

	old, err := f.mgr.GetLock(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RateLockExpired, old.Status)
}

func TestLockRate_RejectsMismatchedReuse(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	ctx := context.Background()

	lock, err := f.mgr.LockRate(ctx, "ICAN", "UGX", "tx-1", models.TxInvestment)
	require.NoError(t, err)

	_, err = f.mgr.LockRate(ctx, "ICAN", "UGX", "tx-1", models.TxCMMSPayment)
	assert.True(t, errors.Is(err, apperrors.ErrValidation))
	_, err = f.mgr.LockRate(ctx, "ICAN", "KES", "tx-1", models.TxInvestment)
	assert.True(t, errors.Is(err, apperrors.ErrValidation))

	same, err := f.mgr.LockRate(ctx, "ican", "ugx", "tx-1", models.TxInvestment)
	require.NoError(t, err)
	assert.Equal(t, lock.ID, same.ID)
}

func TestLockRate_Fallbacks(t *testing.T) {
	ctx := context.Background()

	t.Run("last known good when oracle fails", func(t *testing.T) {
		f := newFixture(t, defaultPolicy())
		require.NoError(t, f.history.Remember(ctx, oracle.Quote{Pair: pair, Price: decimal.NewFromInt(4900)}))
		f.oracle.err = errors.New("connection refused")

		lock, err := f.mgr.LockRate(ctx, "ICAN", "UGX", "tx-1", models.TxTrustContribution)
		require.NoError(t, err)
		assert.Equal(t, models.RateSourceLastKnownGood, lock.RateSource)
		assert.True(t, lock.LockedRate.Equal(decimal.NewFromInt(4900)))
	})

	t.Run("price below floor is ignored", func(t *testing.T) {
		f := newFixture(t, ratelock.PairPolicy{MinRate: decimal.NewFromInt(1000), DefaultRate: decimal.NewFromInt(4800)})
		f.oracle.price = decimal.RequireFromString("0.5")

		lock, err := f.mgr.LockRate(ctx, "ICAN", "UGX", "tx-1", models.TxTrustContribution)
		require.NoError(t, err)
		assert.Equal(t, models.RateSourceDefault, lock.RateSource)
		assert.True(t, lock.LockedRate.Equal(decimal.NewFromInt(4800)))

		_, ok, _ := f.history.LastKnownGood(ctx, pair)
		assert.False(t, ok)
	})

	t.Run("no fallback left", func(t *testing.T) {
		f := newFixture(t, ratelock.PairPolicy{})
		f.oracle.err = errors.New("timeout")

		_, err := f.mgr.LockRate(ctx, "ICAN", "UGX", "tx-1", models.TxTrustContribution)
		assert.True(t, errors.Is(err, apperrors.ErrUpstreamUnavailable))
	})
}

func TestLockRate_Validation(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	ctx := context.Background()

	_, err := f.mgr.LockRate(ctx, "", "UGX", "tx", models.TxInvestment)
	assert.True(t, errors.Is(err, apperrors.ErrValidation))
	_, err = f.mgr.LockRate(ctx, "ICAN", "UGX", " ", models.TxInvestment)
	assert.True(t, errors.Is(err, apperrors.ErrValidation))
	_, err = f.mgr.LockRate(ctx, "ICAN", "UGX", "tx", "gift")
	assert.True(t, errors.Is(err, apperrors.ErrValidation))
	assert.Equal(t, 0, f.oracle.calls)
}

func TestConsumeLock(t *testing.T) {
	ctx := context.Background()

	t.Run("within ttl", func(t *testing.T) {
		f := newFixture(t, defaultPolicy())
		lock, err := f.mgr.LockRate(ctx, "ICAN", "UGX", "tx-1", models.TxInvestment)
		require.NoError(t, err)

		f.clock.Advance(30 * time.Minute)
		consumed, err := f.mgr.ConsumeLock(ctx, lock.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RateLockConsumed, consumed.Status)
		require.NotNil(t, consumed.ConsumedAt)

		_, err = f.mgr.ConsumeLock(ctx, lock.ID)
		assert.True(t, errors.Is(err, apperrors.ErrState))
	})

	t.Run("after expiry", func(t *testing.T) {
		f := newFixture(t, defaultPolicy())
		lock, err := f.mgr.LockRate(ctx, "ICAN", "UGX", "tx-1", models.TxInvestment)
		require.NoError(t, err)

		f.clock.Advance(30*time.Minute + time.Second)
		_, err = f.mgr.ConsumeLock(ctx, lock.ID)
		assert.True(t, errors.Is(err, apperrors.ErrRateLockExpired))

		stored, err := f.mgr.GetLock(ctx, lock.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RateLockExpired, stored.Status)

		_, err = f.mgr.ConsumeLock(ctx, lock.ID)
		assert.True(t, errors.Is(err, apperrors.ErrRateLockExpired))
	})

	t.Run("after sweep", func(t *testing.T) {
		f := newFixture(t, defaultPolicy())
		lock, err := f.mgr.LockRate(ctx, "ICAN", "UGX", "tx-1", models.TxInvestment)
		require.NoError(t, err)

		f.clock.Advance(31 * time.Minute)
		n, err := f.mgr.ExpireStale(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, n)

		_, err = f.mgr.ConsumeLock(ctx, lock.ID)
		assert.True(t, errors.Is(err, apperrors.ErrRateLockExpired))
		assert.Equal(t, apperrors.ErrCodeRateLockExpired, apperrors.CodeOf(err))
	})

	t.Run("after relock of the same tx", func(t *testing.T) {
		f := newFixture(t, defaultPolicy())
		first, err := f.mgr.LockRate(ctx, "ICAN", "UGX", "tx-1", models.TxInvestment)
		require.NoError(t, err)

		f.clock.Advance(31 * time.Minute)
		second, err := f.mgr.LockRate(ctx, "ICAN", "UGX", "tx-1", models.TxInvestment)
		require.NoError(t, err)
		require.NotEqual(t, first.ID, second.ID)

		_, err = f.mgr.ConsumeLock(ctx, first.ID)
		assert.True(t, errors.Is(err, apperrors.ErrRateLockExpired))
		_, err = f.mgr.ConsumeLock(ctx, second.ID)
		assert.NoError(t, err)
	})

	t.Run("unknown lock", func(t *testing.T) {
		f := newFixture(t, defaultPolicy())
		_, err := f.mgr.ConsumeLock(ctx, "nope")
		assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	})
}

func TestConsumeLock_ConcurrentOnce(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	ctx := context.Background()
	lock, err := f.mgr.LockRate(ctx, "ICAN", "UGX", "tx-1", models.TxInvestment)
	require.NoError(t, err)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.mgr.ConsumeLock(ctx, lock.ID); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, ok)
}

func TestExpireStale(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	ctx := context.Background()

	_, err := f.mgr.LockRate(ctx, "ICAN", "UGX", "tx-1", models.TxInvestment)
	require.NoError(t, err)
	f.clock.Advance(10 * time.Minute)
	_, err = f.mgr.LockRate(ctx, "ICAN", "UGX", "tx-2", models.TxInvestment)
	require.NoError(t, err)

	f.clock.Advance(25 * time.Minute)
	n, err := f.mgr.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestManagerCalculateConversion(t *testing.T) {
	f := newFixture(t, defaultPolicy())

	conv, err := f.mgr.CalculateConversion(decimal.NewFromInt(10), decimal.NewFromInt(5000), "ke", models.TxTrustContribution)
	require.NoError(t, err)
	assert.Equal(t, "KES", conv.LocalCurrency)

	_, err = f.mgr.CalculateConversion(decimal.NewFromInt(10), decimal.NewFromInt(5000), "ZZ", models.TxTrustContribution)
	assert.True(t, errors.Is(err, apperrors.ErrValidation))
}
