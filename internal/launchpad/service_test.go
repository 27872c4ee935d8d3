package launchpad

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/fairlaunch/internal/amm"
	"github.com/rovshanmuradov/fairlaunch/internal/authority"
	"github.com/rovshanmuradov/fairlaunch/internal/custody"
	"github.com/rovshanmuradov/fairlaunch/internal/events"
	"github.com/rovshanmuradov/fairlaunch/internal/ledger"
	"github.com/rovshanmuradov/fairlaunch/internal/liquidity"
	"github.com/rovshanmuradov/fairlaunch/internal/migration"
	"github.com/rovshanmuradov/fairlaunch/internal/pricing"
	"github.com/rovshanmuradov/fairlaunch/internal/store"
)

var (
	testProgram    = solana.MPK("6fDcuCmcBiJepAQkboGpVC4icLbeSMX88UMTwNDLGM5z")
	testAMMProgram = solana.MPK("675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8")
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) ofType(typ events.EventType) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Event
	for _, e := range p.events {
		if e.Type() == typ {
			out = append(out, e)
		}
	}
	return out
}

type harness struct {
	svc      *Service
	book     *custody.Memory
	amm      *amm.Memory
	events   *recordingPublisher
	signer   authority.Signer
	mint     solana.PublicKey
	provider solana.PublicKey
	trader   solana.PublicKey
	feeDest  solana.PublicKey
	nonce    uint8
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	log := zaptest.NewLogger(t)

	signer, err := authority.NewSigner(testProgram)
	require.NoError(t, err)
	nonce, err := amm.AuthorityNonce(testAMMProgram)
	require.NoError(t, err)

	book := custody.NewMemory()
	sim := amm.NewMemory(log)
	lc := liquidity.NewController(log)
	clock := func() time.Time { return time.Unix(1_700_000_000, 0) }
	orch := migration.NewOrchestrator(sim, signer, testAMMProgram, lc, log, migration.WithClock(clock))
	pub := &recordingPublisher{}

	h := &harness{
		book:     book,
		amm:      sim,
		events:   pub,
		signer:   signer,
		mint:     solana.NewWallet().PublicKey(),
		provider: solana.NewWallet().PublicKey(),
		trader:   solana.NewWallet().PublicKey(),
		feeDest:  solana.NewWallet().PublicKey(),
		nonce:    nonce,
	}
	h.svc, err = NewService(store.NewMemory(book), signer, lc, orch, pub, log, Options{
		FeeBps:         100,
		FeeDestination: h.feeDest,
		Clock:          clock,
	})
	require.NoError(t, err)

	require.NoError(t, book.Credit(ctx, h.provider, h.mint, 1_000_000))
	require.NoError(t, book.Credit(ctx, h.provider, custody.NativeMint, 500_000))
	require.NoError(t, book.Credit(ctx, h.trader, custody.NativeMint, 100_000))
	return h
}

func (h *harness) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	_, err := h.svc.InitializePool(ctx, h.mint)
	require.NoError(t, err)
	_, err = h.svc.AddLiquidity(ctx, h.mint, h.provider, 1_000_000, 500_000)
	require.NoError(t, err)
}

func (h *harness) pool(t *testing.T, mint solana.PublicKey) solana.PublicKey {
	t.Helper()
	addr, err := h.svc.PoolAddress(mint)
	require.NoError(t, err)
	return addr
}

func (h *harness) balance(t *testing.T, owner, asset solana.PublicKey) uint64 {
	t.Helper()
	v, err := h.book.Balance(context.Background(), owner, asset)
	require.NoError(t, err)
	return v
}

func TestInitializePool(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	pool, err := h.svc.InitializePool(ctx, h.mint)
	require.NoError(t, err)
	want, _, err := authority.DerivePool(testProgram, h.mint)
	require.NoError(t, err)
	assert.Equal(t, want, pool.Address)
	assert.True(t, pool.Empty())
	assert.Equal(t, ledger.PhaseBonding, pool.Phase)

	_, err = h.svc.InitializePool(ctx, h.mint)
	require.ErrorIs(t, err, ledger.ErrPoolExists)

	assert.Len(t, h.events.ofType(events.PoolInitialized), 1)
	failed := h.events.ofType(events.OperationFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, "PoolExists", failed[0].(events.OperationFailedEvent).Kind)
}

func TestOperationsOnMissingPool(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Swap(ctx, h.mint, h.trader, 10, pricing.DirectionBaseToToken)
	require.ErrorIs(t, err, ledger.ErrPoolNotFound)
	_, err = h.svc.Pool(ctx, h.mint)
	require.ErrorIs(t, err, ledger.ErrPoolNotFound)
}

func TestSwapBuyMovesCustodyAndReserves(t *testing.T) {
	h := newHarness(t)
	h.seed(t)
	ctx := context.Background()

	q, err := h.svc.Swap(ctx, h.mint, h.trader, 10_000, pricing.DirectionBaseToToken)
	require.NoError(t, err)
	assert.Equal(t, uint64(19_415), q.AmountOut)

	pool, err := h.svc.Pool(ctx, h.mint)
	require.NoError(t, err)
	assert.Equal(t, uint64(980_585), pool.ReserveToken)
	assert.Equal(t, uint64(510_000), pool.ReserveBase)

	assert.Equal(t, uint64(19_415), h.balance(t, h.trader, h.mint))
	assert.Equal(t, uint64(90_000), h.balance(t, h.trader, custody.NativeMint))
	assert.Equal(t, uint64(510_000), h.balance(t, h.pool(t, h.mint), custody.NativeMint))
	assert.Equal(t, uint64(980_585), h.balance(t, h.pool(t, h.mint), h.mint))

	swaps := h.events.ofType(events.Swapped)
	require.Len(t, swaps, 1)
	e := swaps[0].(events.SwappedEvent)
	assert.Equal(t, uint8(2), e.Style)
	assert.Equal(t, uint64(510_000), e.ReserveBase)
}

func TestSwapZeroInputIsNoOp(t *testing.T) {
	h := newHarness(t)
	h.seed(t)
	ctx := context.Background()

	q, err := h.svc.Swap(ctx, h.mint, h.trader, 0, pricing.DirectionTokenToBase)
	require.NoError(t, err)
	assert.Zero(t, q.AmountOut)

	pool, err := h.svc.Pool(ctx, h.mint)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), pool.ReserveToken)
	assert.Equal(t, uint64(500_000), pool.ReserveBase)
	assert.Empty(t, h.events.ofType(events.Swapped))
}

func TestSwapFailureIsAtomic(t *testing.T) {
	h := newHarness(t)
	h.seed(t)
	ctx := context.Background()

	// The trader holds no tokens, so the input leg fails.
	_, err := h.svc.Swap(ctx, h.mint, h.trader, 1_000, pricing.DirectionTokenToBase)
	require.ErrorIs(t, err, custody.ErrInsufficientBalance)

	pool, err := h.svc.Pool(ctx, h.mint)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), pool.ReserveToken)
	assert.Equal(t, uint64(500_000), pool.ReserveBase)
	assert.Equal(t, uint64(100_000), h.balance(t, h.trader, custody.NativeMint))
}

func TestSwapOnEmptyPoolExhausted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.svc.InitializePool(ctx, h.mint)
	require.NoError(t, err)

	_, err = h.svc.Swap(ctx, h.mint, h.trader, 100, pricing.DirectionBaseToToken)
	require.ErrorIs(t, err, ledger.ErrLiquidityExhausted)

	pool, err := h.svc.Pool(ctx, h.mint)
	require.NoError(t, err)
	assert.True(t, pool.Empty())
	assert.Equal(t, uint64(100_000), h.balance(t, h.trader, custody.NativeMint))
}

func TestMigrateThenEverythingFails(t *testing.T) {
	h := newHarness(t)
	h.seed(t)
	ctx := context.Background()

	rec, err := h.svc.Migrate(ctx, h.mint, 100_000, h.nonce)
	require.NoError(t, err)
	assert.Equal(t, uint64(200_000), rec.CoinAmount)
	assert.Equal(t, uint64(400_000), rec.FeeAmount)
	assert.Equal(t, uint64(400_000), h.balance(t, h.feeDest, custody.NativeMint))

	pool, err := h.svc.Pool(ctx, h.mint)
	require.NoError(t, err)
	assert.True(t, pool.Empty())
	assert.Equal(t, ledger.PhaseMigrated, pool.Phase)
	assert.Empty(t, pool.Positions)
	assert.Len(t, h.events.ofType(events.Migrated), 1)

	_, err = h.svc.Swap(ctx, h.mint, h.trader, 10, pricing.DirectionBaseToToken)
	require.ErrorIs(t, err, ledger.ErrAlreadyMigrated)
	_, err = h.svc.Swap(ctx, h.mint, h.trader, 0, pricing.DirectionBaseToToken)
	require.ErrorIs(t, err, ledger.ErrAlreadyMigrated)
	_, err = h.svc.AddLiquidity(ctx, h.mint, h.trader, 10, 10)
	require.ErrorIs(t, err, ledger.ErrAlreadyMigrated)
	_, err = h.svc.Migrate(ctx, h.mint, 1, h.nonce)
	require.ErrorIs(t, err, ledger.ErrAlreadyMigrated)

	_, err = h.svc.InitializePool(ctx, h.mint)
	require.ErrorIs(t, err, ledger.ErrAlreadyMigrated)
	assert.NotErrorIs(t, err, ledger.ErrPoolExists)
	pool, err = h.svc.Pool(ctx, h.mint)
	require.NoError(t, err)
	assert.Equal(t, ledger.PhaseMigrated, pool.Phase)
}

func TestMigrateExternalFailureRollsBack(t *testing.T) {
	h := newHarness(t)
	h.seed(t)
	ctx := context.Background()
	h.amm.FailNext(amm.ErrInsufficientAccounts)

	_, err := h.svc.Migrate(ctx, h.mint, 100_000, h.nonce)
	require.ErrorIs(t, err, ledger.ErrExternalCallFailed)

	pool, err := h.svc.Pool(ctx, h.mint)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), pool.ReserveToken)
	assert.Equal(t, uint64(500_000), pool.ReserveBase)
	assert.Equal(t, ledger.PhaseBonding, pool.Phase)
	assert.Zero(t, h.balance(t, h.feeDest, custody.NativeMint))
	assert.Equal(t, uint64(500_000), h.balance(t, h.pool(t, h.mint), custody.NativeMint))

	failed := h.events.ofType(events.OperationFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, "ExternalCallFailed", failed[0].(events.OperationFailedEvent).Kind)

	// A retry after the AMM recovers succeeds.
	_, err = h.svc.Migrate(ctx, h.mint, 100_000, h.nonce)
	require.NoError(t, err)
}

func TestPoolBackingCannotBeBorrowed(t *testing.T) {
	h := newHarness(t)
	h.seed(t)
	ctx := context.Background()
	poolB := h.pool(t, h.mint)

	mintA := solana.NewWallet().PublicKey()
	require.NoError(t, h.book.Credit(ctx, h.provider, mintA, 1_000))
	require.NoError(t, h.book.Credit(ctx, h.provider, custody.NativeMint, 1_000))
	_, err := h.svc.InitializePool(ctx, mintA)
	require.NoError(t, err)
	_, err = h.svc.AddLiquidity(ctx, mintA, h.provider, 1_000, 1_000)
	require.NoError(t, err)
	poolA := h.pool(t, mintA)

	for _, account := range []solana.PublicKey{h.signer.Address(), poolA, poolB} {
		_, err = h.svc.Swap(ctx, mintA, account, 400_000, pricing.DirectionBaseToToken)
		require.ErrorIs(t, err, ledger.ErrInvalidAmount)
		_, err = h.svc.AddLiquidity(ctx, mintA, account, 10, 10)
		require.ErrorIs(t, err, ledger.ErrInvalidAmount)
	}

	a, err := h.svc.Pool(ctx, mintA)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000), a.ReserveBase)
	assert.Equal(t, uint64(1_000), h.balance(t, poolA, custody.NativeMint))
	assert.Equal(t, uint64(500_000), h.balance(t, poolB, custody.NativeMint))
	assert.Zero(t, h.balance(t, h.signer.Address(), custody.NativeMint))

	// Each pool still migrates from its own backing.
	_, err = h.svc.Migrate(ctx, h.mint, 100_000, h.nonce)
	require.NoError(t, err)
	_, err = h.svc.Migrate(ctx, mintA, 500, h.nonce)
	require.NoError(t, err)
}

func TestNewServiceValidates(t *testing.T) {
	log := zaptest.NewLogger(t)
	signer, err := authority.NewSigner(testProgram)
	require.NoError(t, err)

	_, err = NewService(store.NewMemory(nil), signer, nil, nil, nil, log, Options{FeeBps: 10_001, FeeDestination: signer.Address()})
	require.Error(t, err)
	_, err = NewService(store.NewMemory(nil), signer, nil, nil, nil, log, Options{FeeBps: 100})
	require.ErrorIs(t, err, migration.ErrMissingFeeDestination)
	_, err = NewService(store.NewMemory(nil), authority.Signer{}, nil, nil, nil, log, Options{FeeDestination: signer.Address()})
	require.ErrorIs(t, err, authority.ErrSignerMismatch)
}

func TestConcurrentSwapsKeepProduct(t *testing.T) {
	h := newHarness(t)
	h.seed(t)
	ctx := context.Background()

	traders := make([]solana.PublicKey, 8)
	for i := range traders {
		traders[i] = solana.NewWallet().PublicKey()
		require.NoError(t, h.book.Credit(ctx, traders[i], custody.NativeMint, 50_000))
	}

	var wg sync.WaitGroup
	for _, tr := range traders {
		wg.Add(1)
		go func(trader solana.PublicKey) {
			defer wg.Done()
			for i := 0; i < 5; i++ {
				_, err := h.svc.Swap(ctx, h.mint, trader, 1_000, pricing.DirectionBaseToToken)
				assert.NoError(t, err)
			}
		}(tr)
	}
	wg.Wait()

	pool, err := h.svc.Pool(ctx, h.mint)
	require.NoError(t, err)
	assert.Equal(t, uint64(540_000), pool.ReserveBase)
	assert.Equal(t, pool.ReserveBase, h.balance(t, h.pool(t, h.mint), custody.NativeMint))
	assert.Equal(t, pool.ReserveToken, h.balance(t, h.pool(t, h.mint), h.mint))
	initial := uint256.NewInt(1_000_000)
	initial.Mul(initial, uint256.NewInt(500_000))
	assert.False(t, pool.Product().Lt(initial))
	assert.Len(t, h.events.ofType(events.Swapped), 40)
}
