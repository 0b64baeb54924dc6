package ratelock

import (
	"strings"

	apperrors "ican-workers/internal/common/errors"
	"ican-workers/internal/models"

	"github.com/shopspring/decimal"
)

const (
	// TokenPlaces is the precision ICAN amounts are rounded to.
	TokenPlaces = 8
	// LocalPlaces is the precision local-currency amounts are rounded to.
	LocalPlaces = 2
)

// FeeSchedule holds fee percentages of the ICAN amount.
type FeeSchedule struct {
	Platform      decimal.Decimal
	Blockchain    decimal.Decimal
	SmartContract decimal.Decimal
}

func (f FeeSchedule) Total() decimal.Decimal {
	return f.Platform.Add(f.Blockchain).Add(f.SmartContract)
}

var feeSchedules = map[models.TxType]FeeSchedule{
	models.TxTrustContribution: {
		Platform:      decimal.RequireFromString("2.0"),
		Blockchain:    decimal.RequireFromString("0.4"),
		SmartContract: decimal.Zero,
	},
	models.TxInvestment: {
		Platform:      decimal.RequireFromString("2.0"),
		Blockchain:    decimal.RequireFromString("0.4"),
		SmartContract: decimal.RequireFromString("0.6"),
	},
	models.TxCMMSPayment: {
		Platform:      decimal.RequireFromString("2.0"),
		Blockchain:    decimal.RequireFromString("0.5"),
		SmartContract: decimal.RequireFromString("0.2"),
	},
}

// Fees returns the schedule for txType.
func Fees(txType models.TxType) (FeeSchedule, bool) {
	f, ok := feeSchedules[txType]
	return f, ok
}

// Country converts amounts in the price currency to a local currency.
type Country struct {
	Code     string
	Currency string
	Rate     decimal.Decimal
}

// Countries is keyed by upper-case ISO country code.
type Countries map[string]Country

func (c Countries) Lookup(code string) (Country, bool) {
	country, ok := c[strings.ToUpper(strings.TrimSpace(code))]
	return country, ok
}

var hundred = decimal.NewFromInt(100)

// CalculateConversion converts icanAmount to the country's currency at
// lockedRate and applies the fee schedule of txType. It has no side effects.
func CalculateConversion(icanAmount, lockedRate decimal.Decimal, country Country, txType models.TxType) (*models.ConversionBreakdown, error) {
	if !icanAmount.IsPositive() {
		return nil, apperrors.NewValidationError("icanAmount must be positive")
	}
	if !lockedRate.IsPositive() {
		return nil, apperrors.NewValidationError("lockedRate must be positive")
	}
	if !country.Rate.IsPositive() {
		return nil, apperrors.NewValidationError("country " + country.Code + " has no usable rate")
	}
	sched, ok := Fees(txType)
	if !ok {
		return nil, apperrors.NewValidationError("unknown txType " + string(txType))
	}

	toLocal := lockedRate.Mul(country.Rate)
	pct := func(p decimal.Decimal) decimal.Decimal {
		return icanAmount.Mul(p).Div(hundred)
	}
	local := func(ican decimal.Decimal) decimal.Decimal {
		return ican.Mul(toLocal).Round(LocalPlaces)
	}

	platform := pct(sched.Platform)
	blockchain := pct(sched.Blockchain)
	contract := pct(sched.SmartContract)
	totalFee := platform.Add(blockchain).Add(contract)
	net := icanAmount.Sub(totalFee)

	return &models.ConversionBreakdown{
		TxType:        txType,
		CountryCode:   country.Code,
		LocalCurrency: country.Currency,
		LockedRate:    lockedRate,
		CountryRate:   country.Rate,
		GrossICAN:     icanAmount.Round(TokenPlaces),
		GrossLocal:    local(icanAmount),
		Fees: models.FeeBreakdown{
			PlatformPercent:      sched.Platform,
			BlockchainPercent:    sched.Blockchain,
			SmartContractPercent: sched.SmartContract,
			TotalPercent:         sched.Total(),

			PlatformICAN:      platform.Round(TokenPlaces),
			BlockchainICAN:    blockchain.Round(TokenPlaces),
			SmartContractICAN: contract.Round(TokenPlaces),
			TotalICAN:         totalFee.Round(TokenPlaces),

			PlatformLocal:      local(platform),
			BlockchainLocal:    local(blockchain),
			SmartContractLocal: local(contract),
			TotalLocal:         local(totalFee),
		},
		NetICAN:  net.Round(TokenPlaces),
		NetLocal: local(net),
	}, nil
}
