// =============================
// File: internal/pricing/price.go
// =============================
package pricing

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// SpotPrice returns the marginal price in base units per token unit.
// Zero when the pool holds no tokens.
func SpotPrice(reserveToken, reserveBase uint64) decimal.Decimal {
	if reserveToken == 0 {
		return decimal.Zero
	}
	return Decimal(reserveBase).Div(Decimal(reserveToken))
}

// Decimal converts a raw amount into a decimal.
func Decimal(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}
