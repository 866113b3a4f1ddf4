package services

import (
	"errors"

	"github.com/shopspring/decimal"
)

// PriceOracle converts between EUR and the smallest currency unit at a fixed
// rate. A live price feed can replace it behind the same methods.
type PriceOracle struct {
	EURPerCoin   decimal.Decimal
	UnitsPerCoin int64
}

func NewPriceOracle(eurPerCoin decimal.Decimal, unitsPerCoin int64) (*PriceOracle, error) {
	if !eurPerCoin.IsPositive() {
		return nil, errors.New("price per coin must be positive")
	}
	if unitsPerCoin <= 0 {
		return nil, errors.New("units per coin must be positive")
	}
	return &PriceOracle{EURPerCoin: eurPerCoin, UnitsPerCoin: unitsPerCoin}, nil
}

// EURToUnits rounds down, like the wallet does
func (o *PriceOracle) EURToUnits(eur decimal.Decimal) int64 {
	return eur.Div(o.EURPerCoin).Mul(decimal.NewFromInt(o.UnitsPerCoin)).Floor().IntPart()
}

func (o *PriceOracle) UnitsToEUR(units int64) decimal.Decimal {
	return decimal.NewFromInt(units).Div(decimal.NewFromInt(o.UnitsPerCoin)).Mul(o.EURPerCoin).Round(2)
}

// UnitsToCoins renders an amount in whole coins for display
func (o *PriceOracle) UnitsToCoins(units int64) string {
	return decimal.New(units, 0).Div(decimal.NewFromInt(o.UnitsPerCoin)).String()
}
