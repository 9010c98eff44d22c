package rates

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/veilcare/settlement-backend/pkg/config"
	"github.com/veilcare/settlement-backend/pkg/enums"
	pkgerrors "github.com/veilcare/settlement-backend/pkg/errors"
)

// weiPerWhole is the number of base units in one whole unit of the
// settlement asset (18 decimals for ETH).
var weiPerWhole = decimal.New(1, 18)

// Converter translates fiat intent amounts into settlement-asset base units.
type Converter interface {
	Asset() enums.Asset
	ToBaseUnits(amountCents int, currency enums.Currency) (decimal.Decimal, error)
}

type converter struct {
	asset         enums.Asset
	centsPerWhole decimal.Decimal
}

// NewConverter builds a fixed-rate converter from configuration. The rate is
// expressed as USD cents per whole unit of the settlement asset.
func NewConverter(cfg config.RatesConfig) (Converter, error) {
	asset, err := enums.ParseAsset(cfg.Asset)
	if err != nil {
		return nil, err
	}
	centsPerWhole, err := decimal.NewFromString(cfg.USDCentsPerWhole)
	if err != nil {
		return nil, fmt.Errorf("invalid rate %q: %w", cfg.USDCentsPerWhole, err)
	}
	if !centsPerWhole.IsPositive() {
		return nil, fmt.Errorf("rate must be positive, got %s", centsPerWhole)
	}
	return &converter{asset: asset, centsPerWhole: centsPerWhole}, nil
}

func (c *converter) Asset() enums.Asset {
	return c.asset
}

// ToBaseUnits converts an intent amount to wei, truncating any sub-wei
// remainder. Truncation keeps the custodial ledger from ever crediting more
// than the fiat amount covers.
func (c *converter) ToBaseUnits(amountCents int, currency enums.Currency) (decimal.Decimal, error) {
	if amountCents <= 0 {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if currency != enums.CurrencyUSD {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("no conversion rate for currency %s", currency))
	}
	cents := decimal.NewFromInt(int64(amountCents))
	quotient, _ := cents.Mul(weiPerWhole).QuoRem(c.centsPerWhole, 0)
	return quotient, nil
}
