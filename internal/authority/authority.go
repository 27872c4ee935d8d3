// =============================
// File: internal/authority/authority.go
// =============================
package authority

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Сиды PDA программы.
const (
	SeedGlobal            = "global"
	SeedPool              = "liquidity_pool"
	SeedLiquidityProvider = "LiqudityProvider"
)

var ErrSignerMismatch = errors.New("signer seeds do not derive signer address")

// Signer - право подписи от имени глобального PDA программы.
// Закрытого ключа нет: подпись подтверждается сидами и bump.
type Signer struct {
	program solana.PublicKey
	address solana.PublicKey
	bump    uint8
}

// NewSigner derives the global authority of programID.
func NewSigner(programID solana.PublicKey) (Signer, error) {
	addr, bump, err := solana.FindProgramAddress([][]byte{[]byte(SeedGlobal)}, programID)
	if err != nil {
		return Signer{}, fmt.Errorf("derive global authority: %w", err)
	}
	return Signer{program: programID, address: addr, bump: bump}, nil
}

func (s Signer) Program() solana.PublicKey {
	return s.program
}

func (s Signer) Address() solana.PublicKey {
	return s.address
}

func (s Signer) Bump() uint8 {
	return s.bump
}

// Seeds returns the signer seeds including the bump.
func (s Signer) Seeds() [][]byte {
	return [][]byte{[]byte(SeedGlobal), {s.bump}}
}

// Verify checks that the seeds still derive the signer address under the program.
func (s Signer) Verify() error {
	if s.program.IsZero() {
		return fmt.Errorf("%w: empty program", ErrSignerMismatch)
	}
	addr, err := solana.CreateProgramAddress(s.Seeds(), s.program)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignerMismatch, err)
	}
	if !addr.Equals(s.address) {
		return fmt.Errorf("%w: got %s want %s", ErrSignerMismatch, addr, s.address)
	}
	return nil
}

// DerivePool возвращает адрес пула для минта.
func DerivePool(programID, mint solana.PublicKey) (solana.PublicKey, uint8, error) {
	addr, bump, err := solana.FindProgramAddress([][]byte{[]byte(SeedPool), mint.Bytes()}, programID)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("derive pool for %s: %w", mint, err)
	}
	return addr, bump, nil
}

// DeriveLiquidityProvider returns the LP position account of owner in pool.
func DeriveLiquidityProvider(programID, pool, owner solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress(
		[][]byte{[]byte(SeedLiquidityProvider), pool.Bytes(), owner.Bytes()},
		programID,
	)
}

// TokenVault returns the associated token account of the global authority for mint.
func TokenVault(s Signer, mint solana.PublicKey) (solana.PublicKey, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(s.address, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive token vault for %s: %w", mint, err)
	}
	return ata, nil
}
