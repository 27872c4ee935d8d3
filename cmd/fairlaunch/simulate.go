package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/fairlaunch/internal/amm"
	"github.com/rovshanmuradov/fairlaunch/internal/authority"
	"github.com/rovshanmuradov/fairlaunch/internal/custody"
	"github.com/rovshanmuradov/fairlaunch/internal/events"
	"github.com/rovshanmuradov/fairlaunch/internal/graduation"
	"github.com/rovshanmuradov/fairlaunch/internal/launchpad"
	"github.com/rovshanmuradov/fairlaunch/internal/ledger"
	"github.com/rovshanmuradov/fairlaunch/internal/liquidity"
	"github.com/rovshanmuradov/fairlaunch/internal/metrics"
	"github.com/rovshanmuradov/fairlaunch/internal/migration"
	"github.com/rovshanmuradov/fairlaunch/internal/pricing"
)

const (
	defaultLaunchToken = 1_000_000_000_000_000
	defaultLaunchBase  = 30_000_000_000
)

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run an in-process fair launch with random traders until graduation",
		RunE:  runSimulate,
	}
	cmd.Flags().Int("traders", 4, "concurrent traders")
	cmd.Flags().Int("swaps", 50, "swaps per trader")
	cmd.Flags().Uint64("trader-base", 20_000_000_000, "base lamports credited to each trader")
	cmd.Flags().Uint64("max-buy", 2_000_000_000, "largest single buy in base lamports")
	cmd.Flags().Uint64("launch-token", defaultLaunchToken, "token amount of the initial deposit")
	cmd.Flags().Uint64("launch-base", defaultLaunchBase, "base amount of the initial deposit")
	cmd.Flags().Uint64("seed", 0, "random seed, 0 picks one")
	cmd.Flags().String("journal", "", "append events to this CSV file")
	cmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().Uint16("fee-bps", 100, "swap fee in basis points")
	cmd.Flags().String("fee-destination", "", "receiver of the migration fee")
	return cmd
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	rt, err := setup(cmd)
	if err != nil {
		return err
	}
	defer rt.close()
	log := rt.logger
	cfg := rt.cfg

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	traders, _ := cmd.Flags().GetInt("traders")
	swaps, _ := cmd.Flags().GetInt("swaps")
	traderBase, _ := cmd.Flags().GetUint64("trader-base")
	maxBuy, _ := cmd.Flags().GetUint64("max-buy")
	launchToken, _ := cmd.Flags().GetUint64("launch-token")
	launchBase, _ := cmd.Flags().GetUint64("launch-base")
	seed, _ := cmd.Flags().GetUint64("seed")
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	if maxBuy == 0 {
		return errors.New("max-buy must be positive")
	}

	st, closeStore, err := rt.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	signer, err := authority.NewSigner(cfg.Program)
	if err != nil {
		return err
	}
	nonce, err := rt.nonce()
	if err != nil {
		return err
	}
	feeDest := cfg.FeeDest
	if feeDest.IsZero() {
		feeDest = solana.NewWallet().PublicKey()
	}

	bus := events.NewBus(log, cfg.EventBuffer)
	if path := cfg.Journal; path != "" {
		journal, err := events.NewCSVJournal(path)
		if err != nil {
			return err
		}
		defer journal.Close()
		journal.Attach(bus)
	}

	collector := metrics.NewCollector()
	collector.Attach(bus)
	if cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: collector.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Metrics server failed", zap.Error(err))
			}
		}()
		defer func() { _ = srv.Close() }()
		log.Info("Serving metrics", zap.String("addr", cfg.MetricsAddr))
	}

	lc := liquidity.NewController(log)
	orch := migration.NewOrchestrator(amm.NewMemory(log), signer, cfg.AMM, lc, log)
	svc, err := launchpad.NewService(st, signer, lc, orch, bus, log, launchpad.Options{
		FeeBps:              cfg.FeeBps,
		FeeDestination:      feeDest,
		ResidualDestination: cfg.Residual,
		Durations:           collector,
	})
	if err != nil {
		return err
	}

	policy, err := cfg.Policy()
	if err != nil {
		return err
	}
	wcfg := cfg.Watcher()
	wcfg.Nonce = nonce
	watcher, err := graduation.NewWatcher(policy, svc, log, wcfg)
	if err != nil {
		return err
	}
	watcher.Attach(bus)

	watchCtx, stopWatch := context.WithCancel(ctx)
	watchDone := make(chan error, 1)
	go func() { watchDone <- watcher.Run(watchCtx) }()

	book := st.Custody()
	mint := solana.NewWallet().PublicKey()
	creator := solana.NewWallet().PublicKey()
	if err := book.Credit(ctx, creator, mint, launchToken); err != nil {
		return err
	}
	if err := book.Credit(ctx, creator, custody.NativeMint, launchBase); err != nil {
		return err
	}
	if _, err := svc.InitializePool(ctx, mint); err != nil {
		return err
	}
	if _, err := svc.AddLiquidity(ctx, mint, creator, launchToken, launchBase); err != nil {
		return err
	}

	log.Info("Simulation started",
		zap.String("mint", mint.String()),
		zap.Int("traders", traders),
		zap.Int("swaps", swaps),
		zap.Uint64("seed", seed))

	g, gCtx := errgroup.WithContext(ctx)
	for i := 0; i < traders; i++ {
		trader := solana.NewWallet().PublicKey()
		if err := book.Credit(ctx, trader, custody.NativeMint, traderBase); err != nil {
			return err
		}
		rng := rand.New(rand.NewPCG(seed, uint64(i)))
		g.Go(func() error {
			return trade(gCtx, svc, book, mint, trader, rng, swaps, maxBuy)
		})
	}
	tradeErr := g.Wait()

	// Последний свап мог пересечь порог уже после остановки трейдеров.
	pool, err := svc.Pool(ctx, mint)
	if err == nil && !pool.IsMigrated() && policy.Reached(pool.ReserveToken, pool.ReserveBase) {
		if _, err := watcher.Graduate(ctx, mint); err != nil && !errors.Is(err, ledger.ErrAlreadyMigrated) {
			log.Error("Final graduation failed", zap.Error(err))
		}
	}

	stopWatch()
	if err := <-watchDone; err != nil {
		log.Warn("Watcher stopped", zap.Error(err))
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := bus.Shutdown(shutdownCtx); err != nil {
		log.Warn("Event bus shutdown", zap.Error(err))
	}

	pool, err = svc.Pool(ctx, mint)
	if err != nil {
		return err
	}
	printPool(cmd.OutOrStdout(), cfg.Program, pool)
	for _, rec := range watcher.Graduated() {
		fmt.Fprintf(cmd.OutOrStdout(), "graduated: amm=%s init_base=%d coin=%d fee=%d residual=%d\n",
			rec.AMM.Pool, rec.InitBaseAmount, rec.CoinAmount, rec.FeeAmount, rec.ResidualToken)
	}
	stats := bus.Stats()
	log.Info("Simulation finished",
		zap.String("phase", pool.Phase.String()),
		zap.Uint64("events_published", stats.Published),
		zap.Uint64("events_dropped", stats.Dropped))
	return tradeErr
}

// trade выполняет случайные покупки и продажи, пока пул не мигрирует.
func trade(ctx context.Context, svc *launchpad.Service, book custody.Custody, mint, trader solana.PublicKey, rng *rand.Rand, swaps int, maxBuy uint64) error {
	for i := 0; i < swaps; i++ {
		if ctx.Err() != nil {
			return nil
		}
		direction := pricing.DirectionBaseToToken
		amount := rng.Uint64N(maxBuy) + 1
		if rng.IntN(4) == 0 {
			held, err := book.Balance(ctx, trader, mint)
			if err != nil {
				return err
			}
			if held > 0 {
				direction = pricing.DirectionTokenToBase
				amount = rng.Uint64N(held) + 1
			}
		}

		_, err := svc.Swap(ctx, mint, trader, amount, direction)
		switch {
		case err == nil:
		case errors.Is(err, ledger.ErrAlreadyMigrated):
			return nil
		case errors.Is(err, custody.ErrInsufficientBalance),
			errors.Is(err, ledger.ErrLiquidityExhausted):
			continue
		default:
			return err
		}
	}
	return nil
}
