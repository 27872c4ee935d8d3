package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/fairlaunch/internal/amm"
	"github.com/rovshanmuradov/fairlaunch/internal/amm/raydium"
	"github.com/rovshanmuradov/fairlaunch/internal/authority"
	"github.com/rovshanmuradov/fairlaunch/internal/config"
	"github.com/rovshanmuradov/fairlaunch/internal/ledger"
)

func planFixture(t *testing.T) (*raydium.Initializer, authority.Signer, solana.PublicKey, uint8, ledger.Pool) {
	t.Helper()
	program := solana.MPK(config.DefaultProgramID)
	ammProgram := solana.MPK(config.DefaultAMMProgramID)
	signer, err := authority.NewSigner(program)
	require.NoError(t, err)
	nonce, err := amm.AuthorityNonce(ammProgram)
	require.NoError(t, err)

	mint := solana.NewWallet().PublicKey()
	address, bump, err := authority.DerivePool(program, mint)
	require.NoError(t, err)
	pool := ledger.NewPool(address, mint, bump, time.Unix(0, 0))
	pool.ReserveToken = 1_000_000
	pool.ReserveBase = 500_000

	markets := raydium.MarketResolverFunc(func(_ context.Context, coin, pc solana.PublicKey) (solana.PublicKey, error) {
		return amm.SimulatedMarket(ammProgram, coin, pc)
	})
	return raydium.NewInitializer(noSender{}, markets, zaptest.NewLogger(t)), signer, ammProgram, nonce, *pool
}

func TestPlanMigrationLeavesPoolUntouched(t *testing.T) {
	initializer, signer, ammProgram, nonce, pool := planFixture(t)
	before := *pool.Clone()

	ix, err := planMigration(context.Background(), initializer, signer, ammProgram, pool, 100_000, nonce, time.Unix(1_700_000_000, 0))
	require.NoError(t, err)
	assert.Equal(t, ammProgram, ix.ProgramID())
	assert.Len(t, ix.Accounts(), raydium.Initialize2Accounts)
	assert.Equal(t, before, pool)

	var out bytes.Buffer
	require.NoError(t, writeInstruction(&out, ix))
	assert.Contains(t, out.String(), "init_pc_amount: 100000")
	assert.Contains(t, out.String(), "init_coin_amount: 200000")
	assert.Contains(t, out.String(), "open_time: 1700000000")
}

func TestPlanMigrationRejects(t *testing.T) {
	initializer, signer, ammProgram, nonce, pool := planFixture(t)
	ctx := context.Background()

	_, err := planMigration(ctx, initializer, signer, ammProgram, pool, 600_000, nonce, time.Now())
	require.ErrorIs(t, err, ledger.ErrInsufficientReserve)

	pool.Phase = ledger.PhaseMigrated
	_, err = planMigration(ctx, initializer, signer, ammProgram, pool, 100_000, nonce, time.Now())
	require.ErrorIs(t, err, ledger.ErrAlreadyMigrated)
}

func TestInitializerCannotSubmitFromCLI(t *testing.T) {
	initializer, signer, ammProgram, nonce, pool := planFixture(t)
	vault, err := authority.TokenVault(signer, pool.Mint)
	require.NoError(t, err)

	_, err = initializer.InitializePool(context.Background(), amm.InitializeRequest{
		ProgramID:      ammProgram,
		CoinMint:       pool.Mint,
		PcMint:         solana.SolMint,
		Signer:         signer,
		SourceCoin:     vault,
		SourcePc:       signer.Address(),
		Nonce:          nonce,
		InitCoinAmount: 200_000,
		InitPcAmount:   100_000,
	})
	require.ErrorIs(t, err, errNoSender)
}
