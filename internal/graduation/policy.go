// =============================
// File: internal/graduation/policy.go
// =============================
package graduation

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/rovshanmuradov/fairlaunch/internal/pricing"
)

// Policy описывает, когда пул считается выпускным и сколько базовой
// валюты уходит в AMM при миграции.
type Policy struct {
	// ThresholdBase - порог резерва базовой валюты. 0 отключает проверку.
	ThresholdBase uint64
	// MarketCapUSD - порог рыночной капитализации. Ноль отключает проверку.
	MarketCapUSD decimal.Decimal
	// BasePriceUSD - цена единицы базовой валюты в USD.
	BasePriceUSD decimal.Decimal
	// SupplyFactor переводит цену за единицу токена в капитализацию.
	SupplyFactor decimal.Decimal
	// SeedBase - стартовая базовая ликвидность, не облагаемая комиссией миграции.
	SeedBase        uint64
	MigrationFeeBps uint16
}

// DefaultPolicy returns the launch defaults: 5000 USD market cap with a
// 5% migration fee over a 30 SOL seed.
func DefaultPolicy() Policy {
	return Policy{
		MarketCapUSD:    decimal.NewFromInt(5000),
		BasePriceUSD:    decimal.NewFromInt(150),
		SupplyFactor:    decimal.NewFromInt(1_000_000),
		SeedBase:        30_000_000_000,
		MigrationFeeBps: 500,
	}
}

func (p Policy) Validate() error {
	if p.MigrationFeeBps > pricing.BasisPoints {
		return fmt.Errorf("migration fee %d bps exceeds %d", p.MigrationFeeBps, pricing.BasisPoints)
	}
	if p.ThresholdBase == 0 && !p.MarketCapUSD.IsPositive() {
		return errors.New("graduation policy has no threshold")
	}
	if p.MarketCapUSD.IsPositive() && !p.BasePriceUSD.IsPositive() {
		return errors.New("base price must be positive when a market cap threshold is set")
	}
	return nil
}

// MarketCap оценивает капитализацию пула в USD по спотовой цене.
func (p Policy) MarketCap(reserveToken, reserveBase uint64) decimal.Decimal {
	return pricing.SpotPrice(reserveToken, reserveBase).
		Mul(p.SupplyFactor).
		Mul(p.BasePriceUSD)
}

// Reached reports whether either enabled threshold is crossed.
func (p Policy) Reached(reserveToken, reserveBase uint64) bool {
	if p.ThresholdBase > 0 && reserveBase >= p.ThresholdBase {
		return true
	}
	if p.MarketCapUSD.IsPositive() && reserveToken > 0 {
		return p.MarketCap(reserveToken, reserveBase).GreaterThan(p.MarketCapUSD)
	}
	return false
}

// InitBaseAmount returns the base amount seeded into the AMM:
// (reserveBase - seed) * (10000 - fee) / 10000 + seed.
// At or below the seed the whole reserve is seeded.
func (p Policy) InitBaseAmount(reserveBase uint64) uint64 {
	if reserveBase <= p.SeedBase {
		return reserveBase
	}
	growth := uint256.NewInt(reserveBase - p.SeedBase)
	growth.Mul(growth, uint256.NewInt(uint64(pricing.BasisPoints-p.MigrationFeeBps)))
	growth.Div(growth, uint256.NewInt(uint64(pricing.BasisPoints)))
	// growth <= reserveBase - seed, so the sum fits.
	return growth.Uint64() + p.SeedBase
}
