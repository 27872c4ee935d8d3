// =============================
// File: internal/migration/orchestrator.go
// =============================
package migration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/fairlaunch/internal/amm"
	"github.com/rovshanmuradov/fairlaunch/internal/authority"
	"github.com/rovshanmuradov/fairlaunch/internal/ledger"
	"github.com/rovshanmuradov/fairlaunch/internal/liquidity"
)

var ErrMissingFeeDestination = errors.New("fee destination is required")

// Request - параметры миграции пула во внешний AMM.
type Request struct {
	InitBaseAmount uint64
	Nonce          uint8
	FeeDestination solana.PublicKey
	// ResidualDestination получает токены, не попавшие в AMM. Пустой адрес
	// оставляет их на аккаунте программы.
	ResidualDestination solana.PublicKey
}

// Record - итог миграции.
type Record struct {
	Pool           solana.PublicKey
	Mint           solana.PublicKey
	InitBaseAmount uint64
	CoinAmount     uint64
	FeeAmount      uint64
	ResidualToken  uint64
	ResidualPaid   bool
	BurnedShares   uint64
	OpenTime       uint64
	AMM            amm.InitializeResult
	MigratedAt     time.Time
}

// Option настраивает Orchestrator.
type Option func(*Orchestrator)

// WithClock подменяет источник времени (open time пула AMM).
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// Orchestrator переносит ликвидность пула во внешний AMM.
type Orchestrator struct {
	initializer amm.Initializer
	signer      authority.Signer
	ammProgram  solana.PublicKey
	pcMint      solana.PublicKey
	liquidity   *liquidity.Controller
	now         func() time.Time
	logger      *zap.Logger
}

func NewOrchestrator(
	initializer amm.Initializer,
	signer authority.Signer,
	ammProgram solana.PublicKey,
	lc *liquidity.Controller,
	logger *zap.Logger,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		initializer: initializer,
		signer:      signer,
		ammProgram:  ammProgram,
		pcMint:      solana.SolMint,
		liquidity:   lc,
		now:         time.Now,
		logger:      logger.Named("migration"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ComputeCoinAmount returns floor(initBase * reserveToken / reserveBase).
func ComputeCoinAmount(initBase, reserveToken, reserveBase uint64) (uint64, error) {
	if reserveBase == 0 {
		return 0, fmt.Errorf("empty base reserve: %w", ledger.ErrInsufficientReserve)
	}
	v := new(uint256.Int).Mul(uint256.NewInt(initBase), uint256.NewInt(reserveToken))
	v.Div(v, uint256.NewInt(reserveBase))
	if !v.IsUint64() {
		return 0, fmt.Errorf("coin amount: %w", ledger.ErrArithmeticOverflow)
	}
	return v.Uint64(), nil
}

// Migrate создаёт пул во внешнем AMM из резервов пула и закрывает bonding-фазу.
//
// Вызов AMM выполняется до любых локальных изменений. Любая ошибка
// возвращается вызывающему, и единица работы откатывается целиком.
func (o *Orchestrator) Migrate(ctx context.Context, l *ledger.Ledger, req Request) (Record, error) {
	if err := l.EnsureBonding(); err != nil {
		return Record{}, err
	}
	if req.FeeDestination.IsZero() {
		return Record{}, ErrMissingFeeDestination
	}
	if req.InitBaseAmount == 0 {
		return Record{}, fmt.Errorf("init base amount: %w", ledger.ErrInvalidAmount)
	}

	reserveToken, reserveBase := l.Reserves()
	if req.InitBaseAmount > reserveBase {
		return Record{}, fmt.Errorf("init base %d above reserve %d: %w", req.InitBaseAmount, reserveBase, ledger.ErrInsufficientReserve)
	}

	coinAmount, err := ComputeCoinAmount(req.InitBaseAmount, reserveToken, reserveBase)
	if err != nil {
		return Record{}, err
	}
	if coinAmount == 0 {
		return Record{}, fmt.Errorf("coin amount rounds to zero: %w", ledger.ErrInvalidAmount)
	}

	if err := o.checkCustody(ctx, l, reserveToken, reserveBase); err != nil {
		return Record{}, err
	}

	vault, err := authority.TokenVault(o.signer, l.Mint())
	if err != nil {
		return Record{}, err
	}

	openTime := uint64(o.now().Unix())
	logger := o.logger.With(
		zap.String("pool", l.Address().String()),
		zap.String("mint", l.Mint().String()),
		zap.Uint64("init_base_amount", req.InitBaseAmount),
		zap.Uint64("coin_amount", coinAmount),
	)
	logger.Info("Initializing AMM pool",
		zap.Uint64("reserve_token", reserveToken),
		zap.Uint64("reserve_base", reserveBase))

	result, err := o.initializer.InitializePool(ctx, amm.InitializeRequest{
		ProgramID:      o.ammProgram,
		CoinMint:       l.Mint(),
		PcMint:         o.pcMint,
		Signer:         o.signer,
		SourceCoin:     vault,
		SourcePc:       o.signer.Address(),
		Nonce:          req.Nonce,
		OpenTime:       openTime,
		InitCoinAmount: coinAmount,
		InitPcAmount:   req.InitBaseAmount,
	})
	if err != nil {
		logger.Error("AMM initialize failed", zap.Error(err))
		return Record{}, &ledger.ExternalCallError{
			Program:       o.ammProgram,
			Operation:     "initialize2",
			OriginalError: err,
		}
	}

	// Seed amounts go to the AMM vaults.
	if err := l.TransferTokenFromPool(ctx, result.CoinVault, coinAmount); err != nil {
		return Record{}, fmt.Errorf("seed coin vault: %w", err)
	}
	if err := l.TransferBaseFromPool(ctx, result.PcVault, req.InitBaseAmount); err != nil {
		return Record{}, fmt.Errorf("seed pc vault: %w", err)
	}

	feeAmount := reserveBase - req.InitBaseAmount
	if err := l.TransferBaseFromPool(ctx, req.FeeDestination, feeAmount); err != nil {
		return Record{}, fmt.Errorf("transfer migration fee: %w", err)
	}

	residual := reserveToken - coinAmount
	paid := false
	if residual > 0 && !req.ResidualDestination.IsZero() {
		if err := l.TransferTokenFromPool(ctx, req.ResidualDestination, residual); err != nil {
			return Record{}, fmt.Errorf("pay residual tokens: %w", err)
		}
		paid = true
	}

	burned := o.liquidity.BurnAll(l)
	l.UpdateReserves(0, 0)
	if err := l.MarkMigrated(); err != nil {
		return Record{}, err
	}

	logger.Info("Pool migrated",
		zap.String("amm_pool", result.Pool.String()),
		zap.Uint64("fee_amount", feeAmount),
		zap.Uint64("residual_token", residual),
		zap.Uint64("burned_shares", burned))

	return Record{
		Pool:           l.Address(),
		Mint:           l.Mint(),
		InitBaseAmount: req.InitBaseAmount,
		CoinAmount:     coinAmount,
		FeeAmount:      feeAmount,
		ResidualToken:  residual,
		ResidualPaid:   paid,
		BurnedShares:   burned,
		OpenTime:       openTime,
		AMM:            result,
		MigratedAt:     o.now(),
	}, nil
}

// checkCustody verifies the pool custody actually holds the reserves before
// anything irreversible happens.
func (o *Orchestrator) checkCustody(ctx context.Context, l *ledger.Ledger, reserveToken, reserveBase uint64) error {
	c := l.Custody()
	heldToken, err := c.Balance(ctx, l.Custodian(), l.AssetMint(ledger.AssetToken))
	if err != nil {
		return fmt.Errorf("read token custody: %w", err)
	}
	heldBase, err := c.Balance(ctx, l.Custodian(), l.AssetMint(ledger.AssetBase))
	if err != nil {
		return fmt.Errorf("read base custody: %w", err)
	}
	if heldToken < reserveToken || heldBase < reserveBase {
		return fmt.Errorf("custody holds %d token / %d base for reserves %d / %d: %w",
			heldToken, heldBase, reserveToken, reserveBase, ledger.ErrInsufficientReserve)
	}
	return nil
}
