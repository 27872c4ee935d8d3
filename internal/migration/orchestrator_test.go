package migration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/fairlaunch/internal/amm"
	"github.com/rovshanmuradov/fairlaunch/internal/authority"
	"github.com/rovshanmuradov/fairlaunch/internal/custody"
	"github.com/rovshanmuradov/fairlaunch/internal/ledger"
	"github.com/rovshanmuradov/fairlaunch/internal/liquidity"
)

var (
	testProgram    = solana.MPK("6fDcuCmcBiJepAQkboGpVC4icLbeSMX88UMTwNDLGM5z")
	testAMMProgram = solana.MPK("675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8")
)

type fixture struct {
	book     *custody.Memory
	amm      *amm.Memory
	ledger   *ledger.Ledger
	orch     *Orchestrator
	provider solana.PublicKey
	nonce    uint8
}

func newFixture(t *testing.T, reserveToken, reserveBase uint64) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	signer, err := authority.NewSigner(testProgram)
	require.NoError(t, err)
	nonce, err := amm.AuthorityNonce(testAMMProgram)
	require.NoError(t, err)

	mint := solana.NewWallet().PublicKey()
	address, bump, err := authority.DerivePool(testProgram, mint)
	require.NoError(t, err)

	book := custody.NewMemory()
	provider := solana.NewWallet().PublicKey()
	require.NoError(t, book.Credit(ctx, provider, mint, reserveToken))
	require.NoError(t, book.Credit(ctx, provider, custody.NativeMint, reserveBase))

	l := ledger.New(ledger.NewPool(address, mint, bump, time.Unix(0, 0)), address, book, nil)
	lc := liquidity.NewController(logger)
	_, err = lc.AddLiquidity(ctx, l, provider, reserveToken, reserveBase)
	require.NoError(t, err)

	sim := amm.NewMemory(logger)
	clock := func() time.Time { return time.Unix(1_700_000_000, 0) }
	return &fixture{
		book:     book,
		amm:      sim,
		ledger:   l,
		orch:     NewOrchestrator(sim, signer, testAMMProgram, lc, logger, WithClock(clock)),
		provider: provider,
		nonce:    nonce,
	}
}

func (f *fixture) balance(t *testing.T, owner, asset solana.PublicKey) uint64 {
	t.Helper()
	v, err := f.book.Balance(context.Background(), owner, asset)
	require.NoError(t, err)
	return v
}

func TestMigrate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1_000_000, 500_000)
	feeDest := solana.NewWallet().PublicKey()
	creator := solana.NewWallet().PublicKey()

	rec, err := f.orch.Migrate(ctx, f.ledger, Request{
		InitBaseAmount:      100_000,
		Nonce:               f.nonce,
		FeeDestination:      feeDest,
		ResidualDestination: creator,
	})
	require.NoError(t, err)

	assert.Equal(t, uint64(200_000), rec.CoinAmount)
	assert.Equal(t, uint64(400_000), rec.FeeAmount)
	assert.Equal(t, uint64(800_000), rec.ResidualToken)
	assert.True(t, rec.ResidualPaid)
	assert.Equal(t, uint64(1_700_000_000), rec.OpenTime)
	assert.Equal(t, uint64(707_106), rec.BurnedShares)

	token, base := f.ledger.Reserves()
	assert.Zero(t, token)
	assert.Zero(t, base)
	snap := f.ledger.Snapshot()
	assert.True(t, snap.IsMigrated())
	assert.Zero(t, f.ledger.LPSupply())

	mint := f.ledger.Mint()
	assert.Equal(t, uint64(400_000), f.balance(t, feeDest, custody.NativeMint))
	assert.Equal(t, uint64(200_000), f.balance(t, rec.AMM.CoinVault, mint))
	assert.Equal(t, uint64(100_000), f.balance(t, rec.AMM.PcVault, custody.NativeMint))
	assert.Equal(t, uint64(800_000), f.balance(t, creator, mint))
	assert.Zero(t, f.balance(t, f.ledger.Custodian(), custody.NativeMint))

	state, ok := f.amm.Pool(rec.AMM.Pool)
	require.True(t, ok)
	assert.Equal(t, uint64(200_000), state.CoinReserve)
	assert.Equal(t, uint64(100_000), state.PcReserve)
}

func TestMigrateWithoutResidualDestination(t *testing.T) {
	f := newFixture(t, 1_000_000, 500_000)
	rec, err := f.orch.Migrate(context.Background(), f.ledger, Request{
		InitBaseAmount: 500_000,
		Nonce:          f.nonce,
		FeeDestination: solana.NewWallet().PublicKey(),
	})
	require.NoError(t, err)
	assert.Zero(t, rec.FeeAmount)
	assert.Equal(t, uint64(1_000_000), rec.CoinAmount)
	assert.Zero(t, rec.ResidualToken)
	assert.False(t, rec.ResidualPaid)
}

func TestMigrateGuards(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"zero init", Request{InitBaseAmount: 0}, ledger.ErrInvalidAmount},
		{"above reserve", Request{InitBaseAmount: 500_001}, ledger.ErrInsufficientReserve},
		{"coin rounds to zero", Request{InitBaseAmount: 1}, ledger.ErrInvalidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 1, 500_000)
			tt.req.FeeDestination = solana.NewWallet().PublicKey()
			tt.req.Nonce = f.nonce

			_, err := f.orch.Migrate(context.Background(), f.ledger, tt.req)
			require.ErrorIs(t, err, tt.want)
			assert.Zero(t, f.amm.Calls())

			token, base := f.ledger.Reserves()
			assert.Equal(t, uint64(1), token)
			assert.Equal(t, uint64(500_000), base)
		})
	}

	f := newFixture(t, 10, 10)
	_, err := f.orch.Migrate(context.Background(), f.ledger, Request{InitBaseAmount: 5})
	require.ErrorIs(t, err, ErrMissingFeeDestination)
}

func TestMigrateExternalFailureLeavesPoolUntouched(t *testing.T) {
	f := newFixture(t, 1_000_000, 500_000)
	f.amm.FailNext(amm.ErrPoolAlreadyInitialized)

	_, err := f.orch.Migrate(context.Background(), f.ledger, Request{
		InitBaseAmount: 100_000,
		Nonce:          f.nonce,
		FeeDestination: solana.NewWallet().PublicKey(),
	})
	require.ErrorIs(t, err, ledger.ErrExternalCallFailed)
	require.ErrorIs(t, err, amm.ErrPoolAlreadyInitialized)

	var callErr *ledger.ExternalCallError
	require.True(t, errors.As(err, &callErr))
	assert.Equal(t, testAMMProgram, callErr.Program)

	token, base := f.ledger.Reserves()
	assert.Equal(t, uint64(1_000_000), token)
	assert.Equal(t, uint64(500_000), base)
	snap := f.ledger.Snapshot()
	assert.False(t, snap.IsMigrated())
	assert.Equal(t, uint64(707_106), f.ledger.LPSupply())
	assert.Equal(t, uint64(500_000), f.balance(t, f.ledger.Custodian(), custody.NativeMint))
}

func TestMigrateBadNonce(t *testing.T) {
	f := newFixture(t, 1_000_000, 500_000)
	_, err := f.orch.Migrate(context.Background(), f.ledger, Request{
		InitBaseAmount: 100_000,
		Nonce:          f.nonce + 1,
		FeeDestination: solana.NewWallet().PublicKey(),
	})
	require.ErrorIs(t, err, ledger.ErrExternalCallFailed)
	require.ErrorIs(t, err, amm.ErrBadNonce)
}

func TestMigrateTwice(t *testing.T) {
	f := newFixture(t, 1_000_000, 500_000)
	req := Request{InitBaseAmount: 100_000, Nonce: f.nonce, FeeDestination: solana.NewWallet().PublicKey()}

	_, err := f.orch.Migrate(context.Background(), f.ledger, req)
	require.NoError(t, err)
	_, err = f.orch.Migrate(context.Background(), f.ledger, req)
	require.ErrorIs(t, err, ledger.ErrAlreadyMigrated)
	assert.Equal(t, 1, f.amm.Calls())
}

func TestComputeCoinAmount(t *testing.T) {
	got, err := ComputeCoinAmount(100_000, 1_000_000, 500_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(200_000), got)

	got, err = ComputeCoinAmount(^uint64(0), ^uint64(0), ^uint64(0))
	require.NoError(t, err)
	assert.Equal(t, ^uint64(0), got)

	_, err = ComputeCoinAmount(1, 1, 0)
	require.ErrorIs(t, err, ledger.ErrInsufficientReserve)
}
