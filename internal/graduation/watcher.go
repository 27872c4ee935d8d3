// =============================
// File: internal/graduation/watcher.go
// =============================
package graduation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/fairlaunch/internal/amm"
	"github.com/rovshanmuradov/fairlaunch/internal/events"
	"github.com/rovshanmuradov/fairlaunch/internal/ledger"
	"github.com/rovshanmuradov/fairlaunch/internal/migration"
)

var (
	// ErrNotReached is returned when a pool no longer crosses the policy thresholds.
	ErrNotReached = errors.New("graduation threshold not reached")
	// ErrQueueFull is returned when a candidate cannot be queued.
	ErrQueueFull = errors.New("graduation queue is full")
)

// Migrator - то, что watcher требует от сервиса пулов.
type Migrator interface {
	Pool(ctx context.Context, mint solana.PublicKey) (ledger.Pool, error)
	Migrate(ctx context.Context, mint solana.PublicKey, initBaseAmount uint64, nonce uint8) (migration.Record, error)
}

// Config настраивает Watcher.
type Config struct {
	Workers    int
	QueueSize  int
	MaxRetries uint
	RetryDelay time.Duration
	// Nonce передаётся в инструкцию инициализации AMM.
	Nonce uint8
}

func DefaultConfig() Config {
	return Config{
		Workers:    2,
		QueueSize:  64,
		MaxRetries: 3,
		RetryDelay: 500 * time.Millisecond,
	}
}

// Watcher следит за свапами и мигрирует пулы, пересёкшие порог.
type Watcher struct {
	policy   Policy
	migrator Migrator
	cfg      Config
	logger   *zap.Logger

	queue chan solana.PublicKey

	mu        sync.Mutex
	pending   map[solana.PublicKey]struct{}
	graduated []migration.Record
}

func NewWatcher(policy Policy, migrator Migrator, logger *zap.Logger, cfg Config) (*Watcher, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	return &Watcher{
		policy:   policy,
		migrator: migrator,
		cfg:      cfg,
		logger:   logger.Named("graduation"),
		queue:    make(chan solana.PublicKey, cfg.QueueSize),
		pending:  make(map[solana.PublicKey]struct{}),
	}, nil
}

// Attach subscribes the watcher to swap events of the bus.
func (w *Watcher) Attach(bus *events.Bus) events.Subscription {
	return bus.SubscribeFunc(events.Swapped, w.Handle)
}

// Handle проверяет свап и ставит минт в очередь при достижении порога.
func (w *Watcher) Handle(_ context.Context, event events.Event) error {
	swap, ok := event.(events.SwappedEvent)
	if !ok {
		return nil
	}
	if !w.policy.Reached(swap.ReserveToken, swap.ReserveBase) {
		return nil
	}
	w.logger.Info("Graduation threshold reached",
		zap.String("mint", swap.Mint.String()),
		zap.Uint64("reserve_token", swap.ReserveToken),
		zap.Uint64("reserve_base", swap.ReserveBase),
		zap.String("market_cap_usd", w.policy.MarketCap(swap.ReserveToken, swap.ReserveBase).StringFixed(2)))
	return w.Enqueue(swap.Mint)
}

// Enqueue queues mint once; a mint already waiting is ignored.
func (w *Watcher) Enqueue(mint solana.PublicKey) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.pending[mint]; ok {
		return nil
	}
	select {
	case w.queue <- mint:
		w.pending[mint] = struct{}{}
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrQueueFull, mint)
	}
}

// Run обрабатывает очередь до отмены контекста.
func (w *Watcher) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)
	for i := 0; i < w.cfg.Workers; i++ {
		worker := i
		g.Go(func() error {
			return w.work(gCtx, worker)
		})
	}
	return g.Wait()
}

func (w *Watcher) work(ctx context.Context, worker int) error {
	log := w.logger.With(zap.Int("worker", worker))
	for {
		select {
		case <-ctx.Done():
			return nil
		case mint := <-w.queue:
			_, err := w.Graduate(ctx, mint)
			switch {
			case err == nil, errors.Is(err, context.Canceled):
			case errors.Is(err, ledger.ErrAlreadyMigrated), errors.Is(err, ErrNotReached):
				log.Debug("Graduation skipped", zap.String("mint", mint.String()), zap.Error(err))
			default:
				log.Error("Graduation failed", zap.String("mint", mint.String()), zap.Error(err))
			}
			w.mu.Lock()
			delete(w.pending, mint)
			w.mu.Unlock()
		}
	}
}

// Graduate мигрирует пул минта, повторяя попытку только при сбое вызова AMM.
// Резервы перечитываются перед каждой попыткой.
func (w *Watcher) Graduate(ctx context.Context, mint solana.PublicKey) (migration.Record, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = w.cfg.RetryDelay
	policy.MaxInterval = w.cfg.RetryDelay * 10

	notify := func(err error, d time.Duration) {
		w.logger.Warn("Retrying migration",
			zap.String("mint", mint.String()),
			zap.Error(err),
			zap.Duration("backoff", d))
	}

	operation := func() (migration.Record, error) {
		pool, err := w.migrator.Pool(ctx, mint)
		if err != nil {
			return migration.Record{}, backoff.Permanent(err)
		}
		if pool.IsMigrated() {
			return migration.Record{}, backoff.Permanent(ledger.ErrAlreadyMigrated)
		}
		if !w.policy.Reached(pool.ReserveToken, pool.ReserveBase) {
			return migration.Record{}, backoff.Permanent(ErrNotReached)
		}
		initBase := w.policy.InitBaseAmount(pool.ReserveBase)
		record, err := w.migrator.Migrate(ctx, mint, initBase, w.cfg.Nonce)
		if err != nil {
			if retryable(err) {
				return migration.Record{}, err
			}
			return migration.Record{}, backoff.Permanent(err)
		}
		return record, nil
	}

	record, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(w.cfg.MaxRetries),
		backoff.WithNotify(notify))
	if err != nil {
		return migration.Record{}, err
	}

	w.logger.Info("Pool graduated",
		zap.String("mint", mint.String()),
		zap.String("amm_pool", record.AMM.Pool.String()),
		zap.Uint64("init_base", record.InitBaseAmount),
		zap.Uint64("coin", record.CoinAmount),
		zap.Uint64("fee", record.FeeAmount))

	w.mu.Lock()
	w.graduated = append(w.graduated, record)
	w.mu.Unlock()
	return record, nil
}

// retryable reports whether a failed migration may succeed on another attempt.
// Rejections the AMM will repeat verbatim are final.
func retryable(err error) bool {
	switch {
	case !errors.Is(err, ledger.ErrExternalCallFailed):
		return false
	case errors.Is(err, amm.ErrPoolAlreadyInitialized),
		errors.Is(err, amm.ErrBadNonce),
		errors.Is(err, amm.ErrInsufficientAccounts):
		return false
	}
	return true
}

// Graduated returns the migrations completed so far.
func (w *Watcher) Graduated() []migration.Record {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]migration.Record, len(w.graduated))
	copy(out, w.graduated)
	return out
}
