package amm

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/fairlaunch/internal/authority"
)

var (
	testAMMProgram = solana.MustPublicKeyFromBase58("675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8")
	testProgram    = solana.MustPublicKeyFromBase58("6fDcuCmcBiJepAQkboGpVC4icLbeSMX88UMTwNDLGM5z")
)

func newRequest(t *testing.T) InitializeRequest {
	t.Helper()
	signer, err := authority.NewSigner(testProgram)
	require.NoError(t, err)
	nonce, err := AuthorityNonce(testAMMProgram)
	require.NoError(t, err)
	mint := solana.NewWallet().PublicKey()
	vault, err := authority.TokenVault(signer, mint)
	require.NoError(t, err)

	return InitializeRequest{
		ProgramID:      testAMMProgram,
		CoinMint:       mint,
		PcMint:         solana.SolMint,
		Signer:         signer,
		SourceCoin:     vault,
		SourcePc:       signer.Address(),
		Nonce:          nonce,
		OpenTime:       1_700_000_000,
		InitCoinAmount: 400,
		InitPcAmount:   100,
	}
}

func TestMemoryInitializePool(t *testing.T) {
	m := NewMemory(zaptest.NewLogger(t))
	req := newRequest(t)

	res, err := m.InitializePool(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), res.LPAmount)
	assert.False(t, res.CoinVault.IsZero())
	assert.NotEqual(t, res.CoinVault, res.PcVault)

	state, ok := m.Pool(res.Pool)
	require.True(t, ok)
	assert.Equal(t, uint64(400), state.CoinReserve)
	assert.Equal(t, uint64(100), state.PcReserve)

	_, err = m.InitializePool(context.Background(), req)
	require.ErrorIs(t, err, ErrPoolAlreadyInitialized)
	assert.Equal(t, 2, m.Calls())
}

func TestMemoryRejectsBadRequests(t *testing.T) {
	m := NewMemory(zaptest.NewLogger(t))

	req := newRequest(t)
	req.Nonce++
	_, err := m.InitializePool(context.Background(), req)
	require.ErrorIs(t, err, ErrBadNonce)

	req = newRequest(t)
	req.SourceCoin = solana.PublicKey{}
	_, err = m.InitializePool(context.Background(), req)
	require.ErrorIs(t, err, ErrInsufficientAccounts)

	req = newRequest(t)
	req.Signer = authority.Signer{}
	_, err = m.InitializePool(context.Background(), req)
	require.ErrorIs(t, err, ErrInsufficientAccounts)

	req = newRequest(t)
	req.InitPcAmount = 0
	_, err = m.InitializePool(context.Background(), req)
	require.ErrorIs(t, err, ErrInvalidInitAmount)
}

func TestMemoryInjectedFailure(t *testing.T) {
	m := NewMemory(zaptest.NewLogger(t))
	boom := errors.New("rpc unavailable")
	m.FailNext(boom)

	req := newRequest(t)
	_, err := m.InitializePool(context.Background(), req)
	require.ErrorIs(t, err, boom)

	_, err = m.InitializePool(context.Background(), req)
	require.NoError(t, err)
}

func TestDeriveKeysDeterministic(t *testing.T) {
	market := solana.NewWallet().PublicKey()
	a, err := DeriveKeys(testAMMProgram, market)
	require.NoError(t, err)
	b, err := DeriveKeys(testAMMProgram, market)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	require.NoError(t, a.CheckNonce(a.AuthorityNonce))
	require.ErrorIs(t, a.CheckNonce(a.AuthorityNonce-1), ErrBadNonce)
}
