// Package ratelock pins exchange rates for the duration of a transaction and
// converts ICAN amounts into local currency with the platform fee schedule.
package ratelock

import (
	"context"
	"fmt"
	"strings"
	"time"

	apperrors "ican-workers/internal/common/errors"
	"ican-workers/internal/common/logger"
	"ican-workers/internal/common/metrics"
	"ican-workers/internal/models"
	"ican-workers/internal/oracle"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const DefaultTTL = 30 * time.Minute

// PriceHistory keeps the last validated oracle price per pair.
type PriceHistory interface {
	LastKnownGood(ctx context.Context, pair models.CurrencyPair) (oracle.Quote, bool, error)
	Remember(ctx context.Context, q oracle.Quote) error
}

// PairPolicy bounds the prices accepted for one pair. A zero MinRate accepts
// any positive price; a zero DefaultRate disables the last-resort fallback.
type PairPolicy struct {
	MinRate     decimal.Decimal
	DefaultRate decimal.Decimal
}

type Options struct {
	Store     Store
	Oracle    oracle.PriceOracle
	History   PriceHistory
	Policies  map[models.CurrencyPair]PairPolicy
	Countries Countries
	TTL       time.Duration
	Logger    logger.Logger
	Clock     func() time.Time
	NewID     func() string
}

type Manager struct {
	store     Store
	oracle    oracle.PriceOracle
	history   PriceHistory
	policies  map[models.CurrencyPair]PairPolicy
	countries Countries
	ttl       time.Duration
	logger    logger.Logger
	clock     func() time.Time
	newID     func() string
}

func NewManager(opts Options) *Manager {
	m := &Manager{
		store:     opts.Store,
		oracle:    opts.Oracle,
		history:   opts.History,
		policies:  opts.Policies,
		countries: opts.Countries,
		ttl:       opts.TTL,
		logger:    logger.Component(opts.Logger, "ratelock"),
		clock:     opts.Clock,
		newID:     opts.NewID,
	}
	if m.ttl <= 0 {
		m.ttl = DefaultTTL
	}
	if m.clock == nil {
		m.clock = time.Now
	}
	if m.newID == nil {
		m.newID = uuid.NewString
	}
	if m.countries == nil {
		m.countries = Countries{}
	}
	return m
}

func (m *Manager) now() time.Time { return m.clock().UTC() }

// LockRate pins the current price of from/to for txID. A txID that already
// holds an unexpired active lock gets that lock back, provided the pair and
// txType match; otherwise VALIDATION_ERROR.
func (m *Manager) LockRate(ctx context.Context, fromCurrency, toCurrency, txID string, txType models.TxType) (*models.ExchangeRateLock, error) {
	pair := models.NewCurrencyPair(fromCurrency, toCurrency)
	txID = strings.TrimSpace(txID)
	if pair.Base == "" || pair.Quote == "" || txID == "" {
		return nil, apperrors.NewValidationError("fromCurrency, toCurrency and txId are required")
	}
	if _, err := models.ParseTxType(string(txType)); err != nil {
		return nil, apperrors.NewValidationError(err.Error())
	}

	existing, err := m.activeLock(ctx, txID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if err := matchesRequest(existing, pair, txType); err != nil {
			return nil, err
		}
		return existing, nil
	}

	rate, source, err := m.resolvePrice(ctx, pair)
	if err != nil {
		return nil, err
	}

	now := m.now()
	lock := &models.ExchangeRateLock{
		ID:           m.newID(),
		TxID:         txID,
		TxType:       txType,
		FromCurrency: pair.Base,
		ToCurrency:   pair.Quote,
		LockedRate:   rate,
		RateSource:   source,
		Status:       models.RateLockActive,
		LockedAt:     now,
		ExpiresAt:    now.Add(m.ttl),
	}

	var result *models.ExchangeRateLock
	err = m.store.WithinTx(ctx, func(tx Tx) error {
		current, err := tx.ActiveLockForTx(ctx, txID)
		if err != nil {
			return err
		}
		if current != nil && !current.ExpiredAt(now) {
			if err := matchesRequest(current, pair, txType); err != nil {
				return err
			}
			result = current
			return nil
		}
		if current != nil {
			if _, err := tx.UpdateLockStatus(ctx, current.ID, models.RateLockActive, models.RateLockExpired, now); err != nil {
				return err
			}
		}

		inserted, err := tx.InsertLock(ctx, lock)
		if err != nil {
			return err
		}
		if !inserted {
			return apperrors.NewConflictError(nil).WithMetadata("txId", txID)
		}
		result = lock
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result == lock {
		metrics.RateLocksCreated.WithLabelValues(string(source)).Inc()
		m.logger.Info("rate locked", map[string]interface{}{
			"lockId":     lock.ID,
			"txId":       txID,
			"pair":       pair.String(),
			"lockedRate": rate.String(),
			"source":     source,
			"expiresAt":  lock.ExpiresAt,
		})
	}
	return result, nil
}

// matchesRequest rejects reuse of a txId's lock for a different pair or
// transaction type.
func matchesRequest(l *models.ExchangeRateLock, pair models.CurrencyPair, txType models.TxType) error {
	if l.FromCurrency == pair.Base && l.ToCurrency == pair.Quote && l.TxType == txType {
		return nil
	}
	return apperrors.NewValidationError(fmt.Sprintf(
		"txId %s already holds lock %s for %s/%s %s",
		l.TxID, l.ID, l.FromCurrency, l.ToCurrency, l.TxType,
	)).WithMetadata("lockId", l.ID)
}

func (m *Manager) activeLock(ctx context.Context, txID string) (*models.ExchangeRateLock, error) {
	var lock *models.ExchangeRateLock
	err := m.store.WithinTx(ctx, func(tx Tx) error {
		l, err := tx.ActiveLockForTx(ctx, txID)
		if err != nil {
			return err
		}
		if l != nil && !l.ExpiredAt(m.now()) {
			lock = l
		}
		return nil
	})
	return lock, err
}

// resolvePrice walks oracle, last known good, then configured default.
func (m *Manager) resolvePrice(ctx context.Context, pair models.CurrencyPair) (decimal.Decimal, models.RateSource, error) {
	policy := m.policies[pair]

	var lastErr error
	if m.oracle != nil {
		q, err := m.oracle.Quote(ctx, pair)
		switch {
		case err != nil:
			lastErr = err
			m.fallback(pair, "oracle_error", err)
		case !passesFloor(q.Price, policy.MinRate):
			lastErr = apperrors.NewUpstreamUnavailableError("price-oracle", nil).
				WithMetadata("price", q.Price.String())
			m.fallback(pair, "below_floor", lastErr)
		default:
			if m.history != nil {
				if err := m.history.Remember(ctx, q); err != nil {
					m.logger.Warn("failed to store last known good price", map[string]interface{}{"pair": pair.String(), "error": err})
				}
			}
			return q.Price, models.RateSourceOracle, nil
		}
	}

	if m.history != nil {
		q, ok, err := m.history.LastKnownGood(ctx, pair)
		if err != nil {
			m.fallback(pair, "history_error", err)
		} else if ok && passesFloor(q.Price, policy.MinRate) {
			return q.Price, models.RateSourceLastKnownGood, nil
		}
	}

	if policy.DefaultRate.IsPositive() {
		m.fallback(pair, "default_rate", lastErr)
		return policy.DefaultRate, models.RateSourceDefault, nil
	}

	return decimal.Zero, "", apperrors.NewUpstreamUnavailableError("price-oracle", lastErr).
		WithMetadata("pair", pair.String())
}

func passesFloor(price, floor decimal.Decimal) bool {
	return price.IsPositive() && price.GreaterThanOrEqual(floor)
}

func (m *Manager) fallback(pair models.CurrencyPair, reason string, err error) {
	metrics.OracleFallbacks.WithLabelValues(reason).Inc()
	fields := map[string]interface{}{"pair": pair.String(), "reason": reason}
	if err != nil {
		fields["error"] = err
	}
	m.logger.Warn("price fallback", fields)
}

// ConsumeLock marks an active lock consumed. Consuming at exactly expiresAt
// succeeds. A lock past expiresAt, or already marked expired by a sweep or a
// re-lock, returns RATE_LOCK_EXPIRED; a consumed lock returns STATE_ERROR.
func (m *Manager) ConsumeLock(ctx context.Context, lockID string) (*models.ExchangeRateLock, error) {
	if strings.TrimSpace(lockID) == "" {
		return nil, apperrors.NewValidationError("lockId is required")
	}

	var (
		lock    *models.ExchangeRateLock
		expired bool
	)
	err := m.store.WithinTx(ctx, func(tx Tx) error {
		var err error
		lock, err = tx.GetLock(ctx, lockID, true)
		if err != nil {
			return err
		}
		now := m.now()
		switch {
		case lock.Status == models.RateLockConsumed:
			return apperrors.NewStateError("rate lock " + lockID + " is already consumed")
		case lock.Status == models.RateLockExpired:
			expired = true
			return nil
		case lock.ExpiredAt(now):
			if _, err := tx.UpdateLockStatus(ctx, lockID, models.RateLockActive, models.RateLockExpired, now); err != nil {
				return err
			}
			lock.Status = models.RateLockExpired
			expired = true
			return nil
		}

		ok, err := tx.UpdateLockStatus(ctx, lockID, models.RateLockActive, models.RateLockConsumed, now)
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.NewConflictError(nil).WithMetadata("lockId", lockID)
		}
		lock.Status = models.RateLockConsumed
		lock.ConsumedAt = &now
		return nil
	})
	if err != nil {
		metrics.RateLocksConsumed.WithLabelValues(string(apperrors.CodeOf(err))).Inc()
		return nil, err
	}
	if expired {
		metrics.RateLocksConsumed.WithLabelValues(string(apperrors.ErrCodeRateLockExpired)).Inc()
		return nil, apperrors.NewRateLockExpiredError(lockID, lock.ExpiresAt)
	}

	metrics.RateLocksConsumed.WithLabelValues("consumed").Inc()
	m.logger.Info("rate lock consumed", map[string]interface{}{"lockId": lockID, "txId": lock.TxID})
	return lock, nil
}

func (m *Manager) GetLock(ctx context.Context, lockID string) (*models.ExchangeRateLock, error) {
	if strings.TrimSpace(lockID) == "" {
		return nil, apperrors.NewValidationError("lockId is required")
	}
	var lock *models.ExchangeRateLock
	err := m.store.WithinTx(ctx, func(tx Tx) error {
		var err error
		lock, err = tx.GetLock(ctx, lockID, false)
		return err
	})
	return lock, err
}

// ExpireStale marks past-due active locks expired and returns how many changed.
func (m *Manager) ExpireStale(ctx context.Context) (int, error) {
	var n int
	err := m.store.WithinTx(ctx, func(tx Tx) error {
		var err error
		n, err = tx.ExpireActiveBefore(ctx, m.now())
		return err
	})
	if err == nil && n > 0 {
		m.logger.Info("expired stale rate locks", map[string]interface{}{"count": n})
	}
	return n, err
}

// CalculateConversion applies the country table configured on m.
func (m *Manager) CalculateConversion(icanAmount, lockedRate decimal.Decimal, countryCode string, txType models.TxType) (*models.ConversionBreakdown, error) {
	country, ok := m.countries.Lookup(countryCode)
	if !ok {
		return nil, apperrors.NewValidationError("unsupported country " + countryCode)
	}
	return CalculateConversion(icanAmount, lockedRate, country, txType)
}

// Country returns the configured entry for code.
func (m *Manager) Country(code string) (Country, bool) {
	return m.countries.Lookup(code)
}
