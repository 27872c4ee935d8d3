// =============================
// File: internal/amm/keys.go
// =============================
package amm

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// PDA seeds of the AMM v4 program.
const (
	SeedAmm          = "amm_associated_seed"
	SeedCoinVault    = "coin_vault_associated_seed"
	SeedPcVault      = "pc_vault_associated_seed"
	SeedLPMint       = "lp_mint_associated_seed"
	SeedOpenOrders   = "open_order_associated_seed"
	SeedTargetOrders = "target_associated_seed"
	SeedAuthority    = "amm authority"
	SeedConfig       = "amm_config_account_seed"
)

// Keys - адреса аккаунтов пула AMM, выводимые из (программа, маркет).
type Keys struct {
	Market         solana.PublicKey
	Pool           solana.PublicKey
	Authority      solana.PublicKey
	AuthorityNonce uint8
	CoinVault      solana.PublicKey
	PcVault        solana.PublicKey
	LPMint         solana.PublicKey
	OpenOrders     solana.PublicKey
	TargetOrders   solana.PublicKey
	Config         solana.PublicKey
}

// DeriveKeys выводит все адреса пула для маркета.
func DeriveKeys(programID, market solana.PublicKey) (Keys, error) {
	keys := Keys{Market: market}

	associated := func(seed string) (solana.PublicKey, error) {
		addr, _, err := solana.FindProgramAddress(
			[][]byte{programID.Bytes(), market.Bytes(), []byte(seed)},
			programID,
		)
		if err != nil {
			return solana.PublicKey{}, fmt.Errorf("derive %s: %w", seed, err)
		}
		return addr, nil
	}

	var err error
	for _, target := range []struct {
		seed string
		dst  *solana.PublicKey
	}{
		{SeedAmm, &keys.Pool},
		{SeedCoinVault, &keys.CoinVault},
		{SeedPcVault, &keys.PcVault},
		{SeedLPMint, &keys.LPMint},
		{SeedOpenOrders, &keys.OpenOrders},
		{SeedTargetOrders, &keys.TargetOrders},
	} {
		if *target.dst, err = associated(target.seed); err != nil {
			return Keys{}, err
		}
	}

	keys.Authority, keys.AuthorityNonce, err = solana.FindProgramAddress([][]byte{[]byte(SeedAuthority)}, programID)
	if err != nil {
		return Keys{}, fmt.Errorf("derive amm authority: %w", err)
	}
	keys.Config, _, err = solana.FindProgramAddress([][]byte{[]byte(SeedConfig)}, programID)
	if err != nil {
		return Keys{}, fmt.Errorf("derive amm config: %w", err)
	}
	return keys, nil
}

// AuthorityNonce returns the nonce the AMM expects in initialize2.
func AuthorityNonce(programID solana.PublicKey) (uint8, error) {
	_, nonce, err := solana.FindProgramAddress([][]byte{[]byte(SeedAuthority)}, programID)
	if err != nil {
		return 0, fmt.Errorf("derive amm authority: %w", err)
	}
	return nonce, nil
}

// CheckNonce returns ErrBadNonce unless nonce is the AMM authority bump.
func (k Keys) CheckNonce(nonce uint8) error {
	if nonce != k.AuthorityNonce {
		return fmt.Errorf("%w: got %d want %d", ErrBadNonce, nonce, k.AuthorityNonce)
	}
	return nil
}
