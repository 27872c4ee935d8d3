// =============================
// File: internal/liquidity/controller.go
// =============================
package liquidity

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/fairlaunch/internal/ledger"
)

// Receipt - итог пополнения пула.
type Receipt struct {
	Provider     solana.PublicKey
	AmountToken  uint64
	AmountBase   uint64
	Shares       uint64
	Initial      bool
	ReserveToken uint64
	ReserveBase  uint64
	LPSupply     uint64
}

// Controller управляет пополнением резервов пула.
type Controller struct {
	logger *zap.Logger
}

func NewController(logger *zap.Logger) *Controller {
	return &Controller{logger: logger.Named("liquidity")}
}

// AddLiquidity вносит токены и базовую валюту провайдера в пул.
//
// Первый депозит задаёт резервы ровно равными внесённым суммам. Последующие
// депозиты добавляются к резервам как есть: соотношение не проверяется.
func (c *Controller) AddLiquidity(ctx context.Context, l *ledger.Ledger, provider solana.PublicKey, amountToken, amountBase uint64) (Receipt, error) {
	if err := l.EnsureBonding(); err != nil {
		return Receipt{}, err
	}
	if err := l.CheckCounterparty(provider); err != nil {
		return Receipt{}, err
	}
	if amountToken == 0 || amountBase == 0 {
		return Receipt{}, fmt.Errorf("deposit %d token / %d base: %w", amountToken, amountBase, ledger.ErrInvalidAmount)
	}

	reserveToken, reserveBase := l.Reserves()
	initial := reserveToken == 0 && reserveBase == 0

	newToken := reserveToken + amountToken
	if newToken < reserveToken {
		return Receipt{}, fmt.Errorf("token reserve: %w", ledger.ErrArithmeticOverflow)
	}
	newBase := reserveBase + amountBase
	if newBase < reserveBase {
		return Receipt{}, fmt.Errorf("base reserve: %w", ledger.ErrArithmeticOverflow)
	}

	shares, err := Shares(amountToken, amountBase, reserveToken, reserveBase, l.LPSupply())
	if err != nil {
		return Receipt{}, err
	}

	if err := l.Deposit(ctx, provider, ledger.AssetToken, amountToken); err != nil {
		return Receipt{}, err
	}
	if err := l.Deposit(ctx, provider, ledger.AssetBase, amountBase); err != nil {
		return Receipt{}, err
	}
	l.UpdateReserves(newToken, newBase)
	if err := l.MintShares(provider, shares); err != nil {
		return Receipt{}, err
	}

	c.logger.Debug("Liquidity added",
		zap.String("pool", l.Address().String()),
		zap.String("provider", provider.String()),
		zap.Uint64("amount_token", amountToken),
		zap.Uint64("amount_base", amountBase),
		zap.Uint64("shares", shares),
		zap.Bool("initial", initial))

	return Receipt{
		Provider:     provider,
		AmountToken:  amountToken,
		AmountBase:   amountBase,
		Shares:       shares,
		Initial:      initial,
		ReserveToken: newToken,
		ReserveBase:  newBase,
		LPSupply:     l.LPSupply(),
	}, nil
}

// BurnAll уничтожает все LP-позиции пула. Используется только миграцией.
func (c *Controller) BurnAll(l *ledger.Ledger) uint64 {
	burned := l.BurnPositions()
	c.logger.Debug("LP positions burned",
		zap.String("pool", l.Address().String()),
		zap.Uint64("burned", burned))
	return burned
}

// Shares computes the LP shares minted for a deposit. The first deposit mints
// isqrt(token*base); later deposits mint the smaller proportional claim.
func Shares(amountToken, amountBase, reserveToken, reserveBase, supply uint64) (uint64, error) {
	if supply == 0 || reserveToken == 0 || reserveBase == 0 {
		v := new(uint256.Int).Mul(uint256.NewInt(amountToken), uint256.NewInt(amountBase))
		return v.Sqrt(v).Uint64(), nil
	}

	byToken := new(uint256.Int).Mul(uint256.NewInt(amountToken), uint256.NewInt(supply))
	byToken.Div(byToken, uint256.NewInt(reserveToken))
	byBase := new(uint256.Int).Mul(uint256.NewInt(amountBase), uint256.NewInt(supply))
	byBase.Div(byBase, uint256.NewInt(reserveBase))

	shares := byToken
	if byBase.Lt(byToken) {
		shares = byBase
	}
	if !shares.IsUint64() {
		return 0, fmt.Errorf("lp shares: %w", ledger.ErrArithmeticOverflow)
	}
	return shares.Uint64(), nil
}
