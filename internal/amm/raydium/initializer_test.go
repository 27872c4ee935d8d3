package raydium

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/fairlaunch/internal/amm"
	"github.com/rovshanmuradov/fairlaunch/internal/authority"
)

var testProgram = solana.MPK("6fDcuCmcBiJepAQkboGpVC4icLbeSMX88UMTwNDLGM5z")

type recordingSender struct {
	ix     solana.Instruction
	signer authority.Signer
	err    error
}

func (s *recordingSender) Invoke(_ context.Context, ix solana.Instruction, signer authority.Signer) (solana.Signature, error) {
	s.ix = ix
	s.signer = signer
	return solana.Signature{1}, s.err
}

func staticMarket(market solana.PublicKey) MarketResolver {
	return MarketResolverFunc(func(context.Context, solana.PublicKey, solana.PublicKey) (solana.PublicKey, error) {
		return market, nil
	})
}

func newRequest(t *testing.T) amm.InitializeRequest {
	t.Helper()
	signer, err := authority.NewSigner(testProgram)
	require.NoError(t, err)
	nonce, err := amm.AuthorityNonce(AmmV4ProgramID)
	require.NoError(t, err)
	mint := solana.NewWallet().PublicKey()
	vault, err := authority.TokenVault(signer, mint)
	require.NoError(t, err)
	return amm.InitializeRequest{
		ProgramID:      AmmV4ProgramID,
		CoinMint:       mint,
		PcMint:         WrappedSolMint,
		Signer:         signer,
		SourceCoin:     vault,
		SourcePc:       signer.Address(),
		Nonce:          nonce,
		OpenTime:       1_700_000_000,
		InitCoinAmount: 200_000,
		InitPcAmount:   100_000,
	}
}

func TestEncodeInitialize2(t *testing.T) {
	params := Initialize2Params{Nonce: 254, OpenTime: 7, InitPcAmount: 100_000, InitCoinAmount: 200_000}
	data, err := EncodeInitialize2(params)
	require.NoError(t, err)
	require.Len(t, data, Initialize2DataSize)
	assert.Equal(t, InstructionInitialize2, data[0])
	assert.Equal(t, uint8(254), data[1])
	assert.Equal(t, []byte{7, 0, 0, 0, 0, 0, 0, 0}, data[2:10])

	decoded, err := DecodeInitialize2(data)
	require.NoError(t, err)
	assert.Equal(t, params, decoded)

	_, err = DecodeInitialize2(data[:10])
	require.Error(t, err)
}

func TestInitializePoolInvokesWithSigner(t *testing.T) {
	sender := &recordingSender{}
	market := solana.NewWallet().PublicKey()
	init := NewInitializer(sender, staticMarket(market), zaptest.NewLogger(t))
	req := newRequest(t)

	res, err := init.InitializePool(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, solana.Signature{1}, res.Signature)
	assert.Equal(t, req.Signer.Address(), sender.signer.Address())

	keys, err := amm.DeriveKeys(AmmV4ProgramID, market)
	require.NoError(t, err)
	assert.Equal(t, keys.Pool, res.Pool)
	assert.Equal(t, keys.CoinVault, res.CoinVault)

	require.NotNil(t, sender.ix)
	assert.Equal(t, AmmV4ProgramID, sender.ix.ProgramID())
	accounts := sender.ix.Accounts()
	require.Len(t, accounts, Initialize2Accounts)
	assert.Equal(t, keys.Pool, accounts[4].PublicKey)
	assert.Equal(t, market, accounts[16].PublicKey)
	assert.Equal(t, req.Signer.Address(), accounts[17].PublicKey)
	assert.True(t, accounts[17].IsSigner)
	assert.Equal(t, req.SourceCoin, accounts[18].PublicKey)

	data, err := sender.ix.Data()
	require.NoError(t, err)
	params, err := DecodeInitialize2(data)
	require.NoError(t, err)
	assert.Equal(t, uint64(200_000), params.InitCoinAmount)
	assert.Equal(t, uint64(100_000), params.InitPcAmount)
}

func TestInitializePoolClassifiesErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"already initialized", errors.New("Allocate: account Address { address: x } already in use"), amm.ErrPoolAlreadyInitialized},
		{"accounts", errors.New("Program failed: NotEnoughAccountKeys"), amm.ErrInsufficientAccounts},
		{"nonce", errors.New("custom program error: InvalidProgramAddress"), amm.ErrBadNonce},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &recordingSender{err: tt.err}
			init := NewInitializer(sender, staticMarket(solana.NewWallet().PublicKey()), zaptest.NewLogger(t))
			_, err := init.InitializePool(context.Background(), newRequest(t))
			require.ErrorIs(t, err, tt.want)
		})
	}

	other := errors.New("blockhash not found")
	sender := &recordingSender{err: other}
	init := NewInitializer(sender, staticMarket(solana.NewWallet().PublicKey()), zaptest.NewLogger(t))
	_, err := init.InitializePool(context.Background(), newRequest(t))
	require.ErrorIs(t, err, other)
}

func TestInitializePoolRejectsBadNonce(t *testing.T) {
	sender := &recordingSender{}
	init := NewInitializer(sender, staticMarket(solana.NewWallet().PublicKey()), zaptest.NewLogger(t))
	req := newRequest(t)
	req.Nonce++

	_, err := init.InitializePool(context.Background(), req)
	require.ErrorIs(t, err, amm.ErrBadNonce)
	assert.Nil(t, sender.ix)
}
