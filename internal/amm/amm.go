// =============================
// File: internal/amm/amm.go
// =============================
package amm

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/rovshanmuradov/fairlaunch/internal/authority"
)

// Структурированные отказы внешнего AMM.
var (
	ErrInsufficientAccounts   = errors.New("insufficient accounts")
	ErrPoolAlreadyInitialized = errors.New("amm pool already initialized")
	ErrBadNonce               = errors.New("bad amm authority nonce")
)

// InitializeRequest - параметры создания пула во внешнем AMM.
type InitializeRequest struct {
	ProgramID solana.PublicKey
	CoinMint  solana.PublicKey
	PcMint    solana.PublicKey

	// Signer - право подписи глобального аккаунта программы, который
	// является владельцем исходных средств.
	Signer     authority.Signer
	SourceCoin solana.PublicKey
	SourcePc   solana.PublicKey

	Nonce          uint8
	OpenTime       uint64
	InitCoinAmount uint64
	InitPcAmount   uint64
}

// Validate checks that every account of the request is present.
func (r InitializeRequest) Validate() error {
	for _, check := range []struct {
		key  solana.PublicKey
		name string
	}{
		{r.ProgramID, "amm program"},
		{r.CoinMint, "coin mint"},
		{r.PcMint, "pc mint"},
		{r.SourceCoin, "source coin account"},
		{r.SourcePc, "source pc account"},
	} {
		if check.key.IsZero() {
			return fmt.Errorf("%w: %s is required", ErrInsufficientAccounts, check.name)
		}
	}
	if err := r.Signer.Verify(); err != nil {
		return fmt.Errorf("%w: %v", ErrInsufficientAccounts, err)
	}
	return nil
}

// InitializeResult описывает созданный пул AMM.
type InitializeResult struct {
	Pool         solana.PublicKey
	Authority    solana.PublicKey
	CoinVault    solana.PublicKey
	PcVault      solana.PublicKey
	LPMint       solana.PublicKey
	OpenOrders   solana.PublicKey
	TargetOrders solana.PublicKey
	LPAmount     uint64
	Signature    solana.Signature
}

// Initializer creates a pool in the external AMM.
type Initializer interface {
	InitializePool(ctx context.Context, req InitializeRequest) (InitializeResult, error)
}
