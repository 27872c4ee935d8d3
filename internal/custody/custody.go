// =============================
// File: internal/custody/custody.go
// =============================
package custody

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrBalanceOverflow     = errors.New("balance overflow")
)

// NativeMint обозначает базовую валюту (лампорты), которая хранится прямо на аккаунте владельца.
var NativeMint = solana.SolMint

// Custody - хранилище балансов токенов и базовой валюты.
// Баланс адресуется парой (владелец, минт).
type Custody interface {
	Balance(ctx context.Context, owner, asset solana.PublicKey) (uint64, error)
	Debit(ctx context.Context, owner, asset solana.PublicKey, amount uint64) error
	Credit(ctx context.Context, owner, asset solana.PublicKey, amount uint64) error
}

// Applier applies a batch of entries all-or-nothing.
type Applier interface {
	Custody
	Apply(ctx context.Context, entries []Entry) error
}

// Key identifies one balance.
type Key struct {
	Owner solana.PublicKey
	Asset solana.PublicKey
}

// Entry is a single debit or credit.
type Entry struct {
	Owner  solana.PublicKey
	Asset  solana.PublicKey
	Amount uint64
	Credit bool
}

func (e Entry) Key() Key {
	return Key{Owner: e.Owner, Asset: e.Asset}
}

// Transfer перемещает amount единиц asset от from к to.
func Transfer(ctx context.Context, c Custody, asset, from, to solana.PublicKey, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if err := c.Debit(ctx, from, asset, amount); err != nil {
		return fmt.Errorf("debit %s: %w", from, err)
	}
	if err := c.Credit(ctx, to, asset, amount); err != nil {
		return fmt.Errorf("credit %s: %w", to, err)
	}
	return nil
}

// applyEntry folds one entry into a balance.
func applyEntry(balance uint64, e Entry) (uint64, error) {
	if e.Credit {
		next := balance + e.Amount
		if next < balance {
			return 0, fmt.Errorf("%w: %s/%s", ErrBalanceOverflow, e.Owner, e.Asset)
		}
		return next, nil
	}
	if balance < e.Amount {
		return 0, fmt.Errorf("%w: %s holds %d of %s, need %d",
			ErrInsufficientBalance, e.Owner, balance, e.Asset, e.Amount)
	}
	return balance - e.Amount, nil
}
