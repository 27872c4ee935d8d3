// =============================
// File: internal/ledger/ledger.go
// =============================
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/rovshanmuradov/fairlaunch/internal/custody"
)

// Asset selects one side of the pool.
type Asset uint8

const (
	AssetToken Asset = iota
	AssetBase
)

func (a Asset) String() string {
	if a == AssetBase {
		return "base"
	}
	return "token"
}

// Ledger - единственная точка изменения состояния пула.
// Работает над копией пула внутри единицы работы; снаружи изменения
// становятся видны только после коммита.
type Ledger struct {
	pool      *Pool
	custodian solana.PublicKey
	custody   custody.Custody
	now       func() time.Time
}

// New оборачивает staged-копию пула. custodian - аккаунт, на котором лежат
// резервы только этого пула; у каждого пула он свой.
func New(pool *Pool, custodian solana.PublicKey, c custody.Custody, now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	if pool.Positions == nil {
		pool.Positions = make(map[solana.PublicKey]uint64)
	}
	return &Ledger{pool: pool, custodian: custodian, custody: c, now: now}
}

// Snapshot returns a detached copy of the staged pool.
func (l *Ledger) Snapshot() Pool {
	return *l.pool.Clone()
}

func (l *Ledger) Reserves() (token, base uint64) {
	return l.pool.ReserveToken, l.pool.ReserveBase
}

func (l *Ledger) Mint() solana.PublicKey {
	return l.pool.Mint
}

func (l *Ledger) Address() solana.PublicKey {
	return l.pool.Address
}

// Custodian returns the account holding this pool's reserves.
func (l *Ledger) Custodian() solana.PublicKey {
	return l.custodian
}

// CheckCounterparty rejects accounts that cannot trade with the pool: the
// empty key, the pool itself and its custodian.
func (l *Ledger) CheckCounterparty(account solana.PublicKey) error {
	switch {
	case account.IsZero():
		return fmt.Errorf("empty counterparty: %w", ErrInvalidAmount)
	case account.Equals(l.custodian), account.Equals(l.pool.Address):
		return fmt.Errorf("counterparty %s is the pool: %w", account, ErrInvalidAmount)
	}
	return nil
}

func (l *Ledger) LPSupply() uint64 {
	return l.pool.LPSupply
}

// Custody exposes the unit-of-work custody, for legs that leave the pool
// towards accounts the ledger does not own.
func (l *Ledger) Custody() custody.Custody {
	return l.custody
}

// EnsureBonding возвращает ErrAlreadyMigrated, если пул уже мигрирован.
func (l *Ledger) EnsureBonding() error {
	if l.pool.IsMigrated() {
		return fmt.Errorf("pool %s: %w", l.pool.Address, ErrAlreadyMigrated)
	}
	return nil
}

// AssetMint maps a pool side to the custody asset key.
func (l *Ledger) AssetMint(asset Asset) solana.PublicKey {
	if asset == AssetBase {
		return custody.NativeMint
	}
	return l.pool.Mint
}

// UpdateReserves устанавливает оба резерва одновременно.
func (l *Ledger) UpdateReserves(newToken, newBase uint64) {
	l.pool.ReserveToken = newToken
	l.pool.ReserveBase = newBase
	l.touch()
}

// TransferBaseFromPool переводит amount лампортов из кастоди пула на destination
// и уменьшает ReserveBase ровно на amount.
func (l *Ledger) TransferBaseFromPool(ctx context.Context, destination solana.PublicKey, amount uint64) error {
	if amount > l.pool.ReserveBase {
		return fmt.Errorf("transfer %d base from pool holding %d: %w", amount, l.pool.ReserveBase, ErrInsufficientReserve)
	}
	if err := l.Payout(ctx, destination, AssetBase, amount); err != nil {
		return err
	}
	l.pool.ReserveBase -= amount
	l.touch()
	return nil
}

// TransferTokenFromPool is the token-side counterpart of TransferBaseFromPool.
func (l *Ledger) TransferTokenFromPool(ctx context.Context, destination solana.PublicKey, amount uint64) error {
	if amount > l.pool.ReserveToken {
		return fmt.Errorf("transfer %d token from pool holding %d: %w", amount, l.pool.ReserveToken, ErrInsufficientReserve)
	}
	if err := l.Payout(ctx, destination, AssetToken, amount); err != nil {
		return err
	}
	l.pool.ReserveToken -= amount
	l.touch()
	return nil
}

// Deposit moves amount from the caller's account into pool custody.
// Reserves are not changed; the caller pairs it with UpdateReserves.
func (l *Ledger) Deposit(ctx context.Context, from solana.PublicKey, asset Asset, amount uint64) error {
	if err := l.CheckCounterparty(from); err != nil {
		return err
	}
	if err := custody.Transfer(ctx, l.custody, l.AssetMint(asset), from, l.custodian, amount); err != nil {
		return fmt.Errorf("deposit %d %s: %w", amount, asset, err)
	}
	return nil
}

// Payout moves amount from pool custody to the given account. Reserves are not changed.
func (l *Ledger) Payout(ctx context.Context, to solana.PublicKey, asset Asset, amount uint64) error {
	if err := l.CheckCounterparty(to); err != nil {
		return err
	}
	if err := custody.Transfer(ctx, l.custody, l.AssetMint(asset), l.custodian, to, amount); err != nil {
		return fmt.Errorf("payout %d %s: %w", amount, asset, err)
	}
	return nil
}

// MintShares начисляет LP-доли владельцу.
func (l *Ledger) MintShares(owner solana.PublicKey, shares uint64) error {
	supply := l.pool.LPSupply + shares
	if supply < l.pool.LPSupply {
		return fmt.Errorf("lp supply: %w", ErrArithmeticOverflow)
	}
	l.pool.LPSupply = supply
	l.pool.Positions[owner] += shares
	l.touch()
	return nil
}

// BurnPositions destroys every LP position and returns the burned supply.
func (l *Ledger) BurnPositions() uint64 {
	burned := l.pool.LPSupply
	l.pool.LPSupply = 0
	l.pool.Positions = make(map[solana.PublicKey]uint64)
	l.touch()
	return burned
}

// MarkMigrated переводит пул в фазу Migrated. Переход возможен один раз.
func (l *Ledger) MarkMigrated() error {
	if err := l.EnsureBonding(); err != nil {
		return err
	}
	l.pool.Phase = PhaseMigrated
	l.touch()
	return nil
}

func (l *Ledger) touch() {
	l.pool.UpdatedAt = l.now()
}
