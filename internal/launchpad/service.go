// =============================
// File: internal/launchpad/service.go
// =============================
package launchpad

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/fairlaunch/internal/authority"
	"github.com/rovshanmuradov/fairlaunch/internal/events"
	"github.com/rovshanmuradov/fairlaunch/internal/ledger"
	"github.com/rovshanmuradov/fairlaunch/internal/liquidity"
	"github.com/rovshanmuradov/fairlaunch/internal/logger"
	"github.com/rovshanmuradov/fairlaunch/internal/migration"
	"github.com/rovshanmuradov/fairlaunch/internal/pricing"
	"github.com/rovshanmuradov/fairlaunch/internal/store"
)

// Options настраивает Service.
type Options struct {
	FeeBps              uint16
	FeeDestination      solana.PublicKey
	ResidualDestination solana.PublicKey
	Clock               func() time.Time
	// Durations, если задан, получает длительность каждой операции.
	Durations DurationObserver
}

// DurationObserver records operation latency.
type DurationObserver interface {
	ObserveDuration(operation string, d time.Duration)
}

// Service - внешняя поверхность пула: каждая операция выполняется
// одной единицей работы над пулом минта.
type Service struct {
	store     store.Store
	signer    authority.Signer
	liquidity *liquidity.Controller
	migrator  *migration.Orchestrator
	events    events.Publisher
	opts      Options
	seq       atomic.Uint64
	logger    *zap.Logger
}

func NewService(
	st store.Store,
	signer authority.Signer,
	lc *liquidity.Controller,
	migrator *migration.Orchestrator,
	publisher events.Publisher,
	log *zap.Logger,
	opts Options,
) (*Service, error) {
	if err := signer.Verify(); err != nil {
		return nil, fmt.Errorf("program authority: %w", err)
	}
	if opts.FeeBps > pricing.BasisPoints {
		return nil, fmt.Errorf("fee %d bps exceeds %d", opts.FeeBps, pricing.BasisPoints)
	}
	if opts.FeeDestination.IsZero() {
		return nil, migration.ErrMissingFeeDestination
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if publisher == nil {
		publisher = events.Discard{}
	}
	return &Service{
		store:     st,
		signer:    signer,
		liquidity: lc,
		migrator:  migrator,
		events:    publisher,
		opts:      opts,
		logger:    log.Named("launchpad"),
	}, nil
}

// ProgramID returns the program the pools are derived under.
func (s *Service) ProgramID() solana.PublicKey {
	return s.signer.Program()
}

// FeeBps returns the swap fee in basis points.
func (s *Service) FeeBps() uint16 {
	return s.opts.FeeBps
}

// PoolAddress returns the pool account of mint.
func (s *Service) PoolAddress(mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := authority.DerivePool(s.signer.Program(), mint)
	return addr, err
}

// InitializePool создаёт пустой пул для минта.
func (s *Service) InitializePool(ctx context.Context, mint solana.PublicKey) (ledger.Pool, error) {
	const op = "initialize_pool"
	if mint.IsZero() {
		return ledger.Pool{}, s.fail(op, mint, fmt.Errorf("%w: empty mint", ledger.ErrInvalidAmount))
	}
	address, bump, err := authority.DerivePool(s.signer.Program(), mint)
	if err != nil {
		return ledger.Pool{}, s.fail(op, mint, err)
	}

	defer s.observe(op, time.Now())
	var created ledger.Pool
	err = s.store.Update(ctx, address, func(_ context.Context, tx store.Tx) error {
		if existing, err := tx.Pool(); err == nil && existing.IsMigrated() {
			return fmt.Errorf("pool %s: %w", address, ledger.ErrAlreadyMigrated)
		}
		pool := ledger.NewPool(address, mint, bump, s.opts.Clock())
		if err := tx.CreatePool(pool); err != nil {
			return err
		}
		created = *pool.Clone()
		return nil
	})
	if err != nil {
		return ledger.Pool{}, s.fail(op, mint, err)
	}

	s.logger.Info("Pool initialized",
		zap.String("pool", address.String()),
		zap.String("mint", mint.String()))
	s.publish(events.PoolInitializedEvent{
		BaseEvent: s.base(events.PoolInitialized, address),
		Pool:      address,
		Mint:      mint,
	})
	return created, nil
}

// AddLiquidity вносит ликвидность провайдера в пул минта.
func (s *Service) AddLiquidity(ctx context.Context, mint, provider solana.PublicKey, amountToken, amountBase uint64) (liquidity.Receipt, error) {
	const op = "add_liquidity"
	var receipt liquidity.Receipt
	err := s.withLedger(ctx, op, mint, func(ctx context.Context, l *ledger.Ledger) error {
		if err := l.EnsureBonding(); err != nil {
			return err
		}
		if err := s.checkAccount(ctx, provider); err != nil {
			return err
		}
		var err error
		receipt, err = s.liquidity.AddLiquidity(ctx, l, provider, amountToken, amountBase)
		return err
	})
	if err != nil {
		return liquidity.Receipt{}, err
	}

	address, _ := s.PoolAddress(mint)
	s.publish(events.LiquidityAddedEvent{
		BaseEvent:    s.base(events.LiquidityAdded, address),
		Pool:         address,
		Mint:         mint,
		Provider:     provider,
		AmountToken:  amountToken,
		AmountBase:   amountBase,
		Shares:       receipt.Shares,
		ReserveToken: receipt.ReserveToken,
		ReserveBase:  receipt.ReserveBase,
	})
	return receipt, nil
}

// Swap обменивает amountIn в направлении direction по текущим резервам.
// Нулевой вход ничего не меняет и возвращает нулевую котировку.
func (s *Service) Swap(ctx context.Context, mint, trader solana.PublicKey, amountIn uint64, direction pricing.Direction) (pricing.Quote, error) {
	const op = "swap"
	var quote pricing.Quote
	err := s.withLedger(ctx, op, mint, func(ctx context.Context, l *ledger.Ledger) error {
		if err := l.EnsureBonding(); err != nil {
			return err
		}
		if err := s.checkAccount(ctx, trader); err != nil {
			return err
		}
		if err := l.CheckCounterparty(trader); err != nil {
			return err
		}
		reserveToken, reserveBase := l.Reserves()
		q, err := pricing.ComputeSwapOutput(amountIn, direction, reserveToken, reserveBase, s.opts.FeeBps)
		if err != nil {
			return err
		}
		quote = q
		if amountIn == 0 {
			return nil
		}

		if err := l.Deposit(ctx, trader, direction.InputAsset(), q.AmountIn); err != nil {
			return err
		}
		if err := l.Payout(ctx, trader, direction.OutputAsset(), q.AmountOut); err != nil {
			return err
		}
		l.UpdateReserves(q.Apply())
		return nil
	})
	if err != nil {
		return pricing.Quote{}, err
	}
	if amountIn == 0 {
		return quote, nil
	}

	newToken, newBase := quote.Apply()
	s.logger.Debug("Swap executed",
		zap.String("mint", mint.String()),
		zap.String("trader", trader.String()),
		zap.Stringer("direction", quote.Direction),
		zap.Uint64("amount_in", quote.AmountIn),
		zap.Uint64("amount_out", quote.AmountOut),
		zap.Uint64("reserve_token", newToken),
		zap.Uint64("reserve_base", newBase))

	address, _ := s.PoolAddress(mint)
	s.publish(events.SwappedEvent{
		BaseEvent:    s.base(events.Swapped, address),
		Pool:         address,
		Mint:         mint,
		Trader:       trader,
		Style:        uint8(direction),
		AmountIn:     quote.AmountIn,
		AmountOut:    quote.AmountOut,
		ReserveToken: newToken,
		ReserveBase:  newBase,
	})
	return quote, nil
}

// Migrate переносит ликвидность пула во внешний AMM.
func (s *Service) Migrate(ctx context.Context, mint solana.PublicKey, initBaseAmount uint64, nonce uint8) (migration.Record, error) {
	const op = "migrate"
	end := logger.TrackPerformance(s.logger, op)
	defer end()

	var record migration.Record
	err := s.withLedger(ctx, op, mint, func(ctx context.Context, l *ledger.Ledger) error {
		var err error
		record, err = s.migrator.Migrate(ctx, l, migration.Request{
			InitBaseAmount:      initBaseAmount,
			Nonce:               nonce,
			FeeDestination:      s.opts.FeeDestination,
			ResidualDestination: s.opts.ResidualDestination,
		})
		return err
	})
	if err != nil {
		return migration.Record{}, err
	}

	s.publish(events.MigratedEvent{
		BaseEvent:      s.base(events.Migrated, record.Pool),
		Pool:           record.Pool,
		Mint:           mint,
		AMMPool:        record.AMM.Pool,
		InitBaseAmount: record.InitBaseAmount,
		CoinAmount:     record.CoinAmount,
		FeeAmount:      record.FeeAmount,
	})
	return record, nil
}

// Pool returns the committed state of the pool of mint.
func (s *Service) Pool(ctx context.Context, mint solana.PublicKey) (ledger.Pool, error) {
	address, err := s.PoolAddress(mint)
	if err != nil {
		return ledger.Pool{}, err
	}
	p, err := s.store.View(ctx, address)
	if err != nil {
		return ledger.Pool{}, err
	}
	return *p, nil
}

func (s *Service) withLedger(ctx context.Context, op string, mint solana.PublicKey, fn func(context.Context, *ledger.Ledger) error) error {
	defer s.observe(op, time.Now())
	address, err := s.PoolAddress(mint)
	if err != nil {
		return s.fail(op, mint, err)
	}
	err = s.store.Update(ctx, address, func(ctx context.Context, tx store.Tx) error {
		pool, err := tx.Pool()
		if err != nil {
			return fmt.Errorf("pool for mint %s: %w", mint, err)
		}
		// Резервы каждого пула лежат на адресе самого пула.
		return fn(ctx, ledger.New(pool, pool.Address, tx.Custody(), s.opts.Clock))
	})
	if err != nil {
		return s.fail(op, mint, err)
	}
	return nil
}

func (s *Service) fail(op string, mint solana.PublicKey, err error) error {
	kind := ledger.Kind(err)
	log := s.logger.Warn
	if kind == "Internal" || kind == "ExternalCallFailed" {
		log = s.logger.Error
	}
	log("Operation failed",
		zap.String("operation", op),
		zap.String("mint", mint.String()),
		zap.String("kind", kind),
		zap.Error(err))

	address, _, derr := authority.DerivePool(s.signer.Program(), mint)
	if derr != nil {
		address = solana.PublicKey{}
	}
	s.publish(events.OperationFailedEvent{
		BaseEvent: s.base(events.OperationFailed, address),
		Operation: op,
		Mint:      mint,
		Kind:      kind,
		Error:     err,
	})
	return err
}

// checkAccount rejects the program authority and any pool account as a
// trading account: their balances back pool reserves.
func (s *Service) checkAccount(ctx context.Context, account solana.PublicKey) error {
	if account.Equals(s.signer.Address()) {
		return fmt.Errorf("account %s is the program authority: %w", account, ledger.ErrInvalidAmount)
	}
	_, err := s.store.View(ctx, account)
	switch {
	case err == nil:
		return fmt.Errorf("account %s is a pool: %w", account, ledger.ErrInvalidAmount)
	case errors.Is(err, ledger.ErrPoolNotFound):
		return nil
	default:
		return err
	}
}

func (s *Service) observe(op string, start time.Time) {
	if s.opts.Durations != nil {
		s.opts.Durations.ObserveDuration(op, time.Since(start))
	}
}

func (s *Service) base(typ events.EventType, pool solana.PublicKey) events.BaseEvent {
	return events.NewBase(typ, pool, s.seq.Add(1), s.opts.Clock())
}

func (s *Service) publish(e events.Event) {
	if err := s.events.Publish(e); err != nil && !errors.Is(err, events.ErrBusClosed) {
		s.logger.Warn("Event not published",
			zap.String("event_type", string(e.Type())),
			zap.Error(err))
	}
}
