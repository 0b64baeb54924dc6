// internal/models/ratelock.go
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TxType selects the fee schedule applied to a conversion.
type TxType string

const (
	TxTrustContribution TxType = "trust_contribution"
	TxInvestment        TxType = "investment"
	TxCMMSPayment       TxType = "cmms_payment"
)

func ParseTxType(s string) (TxType, error) {
	switch t := TxType(strings.TrimSpace(s)); t {
	case TxTrustContribution, TxInvestment, TxCMMSPayment:
		return t, nil
	}
	return "", fmt.Errorf("unknown transaction type %q", s)
}

type RateLockStatus string

const (
	RateLockActive   RateLockStatus = "active"
	RateLockExpired  RateLockStatus = "expired"
	RateLockConsumed RateLockStatus = "consumed"
)

// RateSource records where a locked rate came from.
type RateSource string

const (
	RateSourceOracle        RateSource = "oracle"
	RateSourceLastKnownGood RateSource = "last_known_good"
	RateSourceDefault       RateSource = "default"
)

// CurrencyPair is priced as units of Quote per one unit of Base.
type CurrencyPair struct {
	Base  string `json:"base"`
	Quote string `json:"quote"`
}

func NewCurrencyPair(base, quote string) CurrencyPair {
	return CurrencyPair{
		Base:  strings.ToUpper(strings.TrimSpace(base)),
		Quote: strings.ToUpper(strings.TrimSpace(quote)),
	}
}

func (p CurrencyPair) String() string { return p.Base + "/" + p.Quote }

// ExchangeRateLock pins a rate for one transaction until ExpiresAt.
type ExchangeRateLock struct {
	ID           string          `json:"id"`
	TxID         string          `json:"txId"`
	TxType       TxType          `json:"txType"`
	FromCurrency string          `json:"fromCurrency"`
	ToCurrency   string          `json:"toCurrency"`
	LockedRate   decimal.Decimal `json:"lockedRate"`
	RateSource   RateSource      `json:"rateSource"`
	Status       RateLockStatus  `json:"status"`
	LockedAt     time.Time       `json:"lockedAt"`
	ExpiresAt    time.Time       `json:"expiresAt"`
	ConsumedAt   *time.Time      `json:"consumedAt,omitempty"`
}

// ExpiredAt reports whether the lock is past its expiry at now. A lock is
// still valid at exactly ExpiresAt.
func (l ExchangeRateLock) ExpiredAt(now time.Time) bool {
	return now.After(l.ExpiresAt)
}

// FeeBreakdown splits the transaction fee into its components.
type FeeBreakdown struct {
	PlatformPercent      decimal.Decimal `json:"platformPercent"`
	BlockchainPercent    decimal.Decimal `json:"blockchainPercent"`
	SmartContractPercent decimal.Decimal `json:"smartContractPercent"`
	TotalPercent         decimal.Decimal `json:"totalPercent"`

	PlatformICAN      decimal.Decimal `json:"platformIcan"`
	BlockchainICAN    decimal.Decimal `json:"blockchainIcan"`
	SmartContractICAN decimal.Decimal `json:"smartContractIcan"`
	TotalICAN         decimal.Decimal `json:"totalIcan"`

	PlatformLocal      decimal.Decimal `json:"platformLocal"`
	BlockchainLocal    decimal.Decimal `json:"blockchainLocal"`
	SmartContractLocal decimal.Decimal `json:"smartContractLocal"`
	TotalLocal         decimal.Decimal `json:"totalLocal"`
}

// ConversionBreakdown is the audit record of converting ICAN into local currency.
type ConversionBreakdown struct {
	TxType        TxType          `json:"txType"`
	CountryCode   string          `json:"countryCode"`
	LocalCurrency string          `json:"localCurrency"`
	LockedRate    decimal.Decimal `json:"lockedRate"`
	CountryRate   decimal.Decimal `json:"countryRate"`
	GrossICAN     decimal.Decimal `json:"grossIcan"`
	GrossLocal    decimal.Decimal `json:"grossLocal"`
	Fees          FeeBreakdown    `json:"fees"`
	NetICAN       decimal.Decimal `json:"netIcan"`
	NetLocal      decimal.Decimal `json:"netLocal"`
}
