// =============================
// File: internal/amm/raydium/initializer.go
// =============================
package raydium

import (
	"context"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/fairlaunch/internal/amm"
	"github.com/rovshanmuradov/fairlaunch/internal/authority"
)

// Sender выполняет инструкцию с подписью глобального PDA программы
// (invoke_signed с сидами signer.Seeds()).
type Sender interface {
	Invoke(ctx context.Context, ix solana.Instruction, signer authority.Signer) (solana.Signature, error)
}

// MarketResolver находит OpenBook-маркет пары.
type MarketResolver interface {
	Market(ctx context.Context, coinMint, pcMint solana.PublicKey) (solana.PublicKey, error)
}

// MarketResolverFunc adapts a function to MarketResolver.
type MarketResolverFunc func(ctx context.Context, coinMint, pcMint solana.PublicKey) (solana.PublicKey, error)

func (f MarketResolverFunc) Market(ctx context.Context, coinMint, pcMint solana.PublicKey) (solana.PublicKey, error) {
	return f(ctx, coinMint, pcMint)
}

// Options настраивает Initializer.
type Options struct {
	MarketProgram solana.PublicKey
	FeeReceiver   solana.PublicKey
}

// DefaultOptions возвращает mainnet-адреса.
func DefaultOptions() Options {
	return Options{
		MarketProgram: OpenBookProgramID,
		FeeReceiver:   CreatePoolFeeAddress,
	}
}

// Initializer создаёт пул AMM v4 инструкцией initialize2.
type Initializer struct {
	sender  Sender
	markets MarketResolver
	opts    Options
	logger  *zap.Logger
}

func NewInitializer(sender Sender, markets MarketResolver, logger *zap.Logger, opts ...Options) *Initializer {
	options := DefaultOptions()
	if len(opts) > 0 {
		options = opts[0]
	}
	return &Initializer{
		sender:  sender,
		markets: markets,
		opts:    options,
		logger:  logger.Named("raydium_initializer"),
	}
}

// BuildInstruction resolves every account and builds initialize2 without sending it.
func (i *Initializer) BuildInstruction(ctx context.Context, req amm.InitializeRequest) (solana.Instruction, amm.Keys, error) {
	if err := req.Validate(); err != nil {
		return nil, amm.Keys{}, err
	}

	market, err := i.markets.Market(ctx, req.CoinMint, req.PcMint)
	if err != nil {
		return nil, amm.Keys{}, fmt.Errorf("resolve market: %w", err)
	}
	keys, err := amm.DeriveKeys(req.ProgramID, market)
	if err != nil {
		return nil, amm.Keys{}, err
	}
	if err := keys.CheckNonce(req.Nonce); err != nil {
		return nil, amm.Keys{}, err
	}

	wallet := req.Signer.Address()
	userPc, _, err := solana.FindAssociatedTokenAddress(wallet, req.PcMint)
	if err != nil {
		return nil, amm.Keys{}, fmt.Errorf("derive pc account: %w", err)
	}
	userLP, _, err := solana.FindAssociatedTokenAddress(wallet, keys.LPMint)
	if err != nil {
		return nil, amm.Keys{}, fmt.Errorf("derive lp account: %w", err)
	}

	accounts := Initialize2AccountSet{
		Amm:           keys.Pool,
		AmmAuthority:  keys.Authority,
		OpenOrders:    keys.OpenOrders,
		LPMint:        keys.LPMint,
		CoinMint:      req.CoinMint,
		PcMint:        req.PcMint,
		CoinVault:     keys.CoinVault,
		PcVault:       keys.PcVault,
		TargetOrders:  keys.TargetOrders,
		AmmConfig:     keys.Config,
		FeeReceiver:   i.opts.FeeReceiver,
		MarketProgram: i.opts.MarketProgram,
		Market:        market,
		UserWallet:    wallet,
		UserTokenCoin: req.SourceCoin,
		UserTokenPc:   userPc,
		UserTokenLP:   userLP,
	}
	ix, err := BuildInitialize2Instruction(req.ProgramID, accounts, Initialize2Params{
		Nonce:          req.Nonce,
		OpenTime:       req.OpenTime,
		InitPcAmount:   req.InitPcAmount,
		InitCoinAmount: req.InitCoinAmount,
	})
	if err != nil {
		return nil, amm.Keys{}, fmt.Errorf("%w: %v", amm.ErrInsufficientAccounts, err)
	}
	return ix, keys, nil
}

// InitializePool реализует amm.Initializer.
func (i *Initializer) InitializePool(ctx context.Context, req amm.InitializeRequest) (amm.InitializeResult, error) {
	logger := i.logger.With(
		zap.String("coin_mint", req.CoinMint.String()),
		zap.Uint64("init_coin_amount", req.InitCoinAmount),
		zap.Uint64("init_pc_amount", req.InitPcAmount),
	)
	logger.Debug("Building initialize2 instruction")

	ix, keys, err := i.BuildInstruction(ctx, req)
	if err != nil {
		return amm.InitializeResult{}, err
	}

	sig, err := i.sender.Invoke(ctx, ix, req.Signer)
	if err != nil {
		logger.Warn("initialize2 failed", zap.Error(err))
		return amm.InitializeResult{}, classifyError(err)
	}

	logger.Info("AMM pool created",
		zap.String("amm", keys.Pool.String()),
		zap.String("signature", sig.String()))

	return amm.InitializeResult{
		Pool:         keys.Pool,
		Authority:    keys.Authority,
		CoinVault:    keys.CoinVault,
		PcVault:      keys.PcVault,
		LPMint:       keys.LPMint,
		OpenOrders:   keys.OpenOrders,
		TargetOrders: keys.TargetOrders,
		Signature:    sig,
	}, nil
}

// classifyError сопоставляет ошибки программы со структурированными отказами AMM.
func classifyError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "already in use"), strings.Contains(msg, "AlreadyInUse"):
		return fmt.Errorf("%w: %v", amm.ErrPoolAlreadyInitialized, err)
	case strings.Contains(msg, "NotEnoughAccountKeys"), strings.Contains(msg, "WrongAccountsNumber"):
		return fmt.Errorf("%w: %v", amm.ErrInsufficientAccounts, err)
	case strings.Contains(msg, "InvalidProgramAddress"), strings.Contains(msg, "nonce"):
		return fmt.Errorf("%w: %v", amm.ErrBadNonce, err)
	default:
		return err
	}
}
