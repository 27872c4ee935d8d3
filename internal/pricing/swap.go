// =============================
// File: internal/pricing/swap.go
// =============================
package pricing

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/rovshanmuradov/fairlaunch/internal/ledger"
)

// BasisPoints - знаменатель комиссии.
const BasisPoints = 10_000

// Direction - направление свапа. Значения совпадают с полем style в инструкции swap.
type Direction uint8

const (
	// DirectionTokenToBase - продажа токена за базовую валюту (style = 1).
	DirectionTokenToBase Direction = 1
	// DirectionBaseToToken - покупка токена за базовую валюту (style = 2).
	DirectionBaseToToken Direction = 2
)

// ParseDirection converts a wire style value into a Direction.
func ParseDirection(style uint8) (Direction, error) {
	d := Direction(style)
	if !d.Valid() {
		return 0, fmt.Errorf("%w: unknown swap style %d", ledger.ErrInvalidAmount, style)
	}
	return d, nil
}

func (d Direction) Valid() bool {
	return d == DirectionTokenToBase || d == DirectionBaseToToken
}

func (d Direction) String() string {
	switch d {
	case DirectionTokenToBase:
		return "sell"
	case DirectionBaseToToken:
		return "buy"
	default:
		return fmt.Sprintf("direction(%d)", uint8(d))
	}
}

// InputAsset returns the pool side the trader pays in.
func (d Direction) InputAsset() ledger.Asset {
	if d == DirectionBaseToToken {
		return ledger.AssetBase
	}
	return ledger.AssetToken
}

// OutputAsset returns the pool side the trader receives.
func (d Direction) OutputAsset() ledger.Asset {
	if d == DirectionBaseToToken {
		return ledger.AssetToken
	}
	return ledger.AssetBase
}

// Quote - результат расчёта свапа по текущим резервам.
type Quote struct {
	Direction        Direction
	AmountIn         uint64
	AmountInAfterFee uint64
	Fee              uint64
	AmountOut        uint64
	ReserveToken     uint64
	ReserveBase      uint64
}

// Apply returns the reserves after the quoted swap: the input side grows by the
// full AmountIn (fee stays in the pool), the output side shrinks by AmountOut.
func (q Quote) Apply() (newToken, newBase uint64) {
	if q.Direction == DirectionBaseToToken {
		return q.ReserveToken - q.AmountOut, q.ReserveBase + q.AmountIn
	}
	return q.ReserveToken + q.AmountIn, q.ReserveBase - q.AmountOut
}

// AmountAfterFee вычитает комиссию из входной суммы: floor(amount * (10000 - fee) / 10000).
func AmountAfterFee(amountIn uint64, feeBps uint16) (uint64, error) {
	if feeBps > BasisPoints {
		return 0, fmt.Errorf("%w: fee %d bps exceeds %d", ledger.ErrInvalidAmount, feeBps, BasisPoints)
	}
	v := new(uint256.Int).Mul(uint256.NewInt(amountIn), uint256.NewInt(uint64(BasisPoints-feeBps)))
	v.Div(v, uint256.NewInt(BasisPoints))
	return v.Uint64(), nil
}

// ComputeSwapOutput рассчитывает выход свапа по формуле constant product.
//
// amountOut = reserveOut - ceil(reserveIn * reserveOut / (reserveIn + amountInAfterFee))
//
// Округление вверх в делении гарантирует, что произведение резервов не уменьшается.
func ComputeSwapOutput(amountIn uint64, direction Direction, reserveToken, reserveBase uint64, feeBps uint16) (Quote, error) {
	if !direction.Valid() {
		return Quote{}, fmt.Errorf("%w: unknown swap direction %d", ledger.ErrInvalidAmount, uint8(direction))
	}

	q := Quote{
		Direction:    direction,
		AmountIn:     amountIn,
		ReserveToken: reserveToken,
		ReserveBase:  reserveBase,
	}
	if amountIn == 0 {
		return q, nil
	}

	reserveIn, reserveOut := reserveToken, reserveBase
	if direction == DirectionBaseToToken {
		reserveIn, reserveOut = reserveBase, reserveToken
	}

	if reserveIn+amountIn < reserveIn {
		return Quote{}, fmt.Errorf("input reserve %d + %d: %w", reserveIn, amountIn, ledger.ErrArithmeticOverflow)
	}

	afterFee, err := AmountAfterFee(amountIn, feeBps)
	if err != nil {
		return Quote{}, err
	}
	q.AmountInAfterFee = afterFee
	q.Fee = amountIn - afterFee

	k := new(uint256.Int).Mul(uint256.NewInt(reserveIn), uint256.NewInt(reserveOut))
	denominator := new(uint256.Int).Add(uint256.NewInt(reserveIn), uint256.NewInt(afterFee))

	var newOut *uint256.Int
	if denominator.IsZero() {
		newOut = uint256.NewInt(reserveOut)
	} else {
		newOut = ceilDiv(k, denominator)
	}
	if !newOut.IsUint64() {
		return Quote{}, fmt.Errorf("new output reserve: %w", ledger.ErrArithmeticOverflow)
	}

	if newOut.Uint64() > reserveOut {
		return Quote{}, fmt.Errorf("new output reserve above current: %w", ledger.ErrArithmeticOverflow)
	}
	amountOut := reserveOut - newOut.Uint64()
	if amountOut >= reserveOut {
		return Quote{}, fmt.Errorf("swap %d %s would drain %d: %w", amountIn, direction, reserveOut, ledger.ErrLiquidityExhausted)
	}
	q.AmountOut = amountOut
	return q, nil
}

func ceilDiv(x, y *uint256.Int) *uint256.Int {
	quo := new(uint256.Int).Div(x, y)
	if !new(uint256.Int).Mod(x, y).IsZero() {
		quo.AddUint64(quo, 1)
	}
	return quo
}
