// =============================
// File: internal/store/store.go
// =============================
package store

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"github.com/rovshanmuradov/fairlaunch/internal/custody"
	"github.com/rovshanmuradov/fairlaunch/internal/ledger"
)

// Tx - единица работы над одним пулом. Всё, что изменено через Tx,
// применяется только если функция Update вернула nil.
type Tx interface {
	// Pool возвращает staged-копию пула или ledger.ErrPoolNotFound.
	Pool() (*ledger.Pool, error)
	// CreatePool регистрирует новый пул; ledger.ErrPoolExists, если он уже есть.
	CreatePool(pool *ledger.Pool) error
	// Custody возвращает кастоди, изменения которого коммитятся вместе с пулом.
	Custody() custody.Custody
}

// TxFunc is the body of a unit of work.
type TxFunc func(ctx context.Context, tx Tx) error

// Store сериализует операции над одним пулом и коммитит их атомарно.
type Store interface {
	Update(ctx context.Context, address solana.PublicKey, fn TxFunc) error
	View(ctx context.Context, address solana.PublicKey) (*ledger.Pool, error)
	List(ctx context.Context) ([]*ledger.Pool, error)
	// Custody returns the committed custody; writes through it apply immediately.
	Custody() custody.Custody
}
