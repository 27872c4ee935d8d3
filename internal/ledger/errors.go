// =============================
// File: internal/ledger/errors.go
// =============================
package ledger

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Ошибки ядра пула. Все операции возвращают их обёрнутыми через fmt.Errorf("...: %w").
var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInsufficientReserve = errors.New("insufficient reserve")
	ErrLiquidityExhausted  = errors.New("liquidity exhausted")
	ErrAlreadyMigrated     = errors.New("pool already migrated")
	ErrExternalCallFailed  = errors.New("external call failed")
	ErrArithmeticOverflow  = errors.New("arithmetic overflow")
	ErrPoolNotFound        = errors.New("pool not found")
	ErrPoolExists          = errors.New("pool already exists")
)

// ExternalCallError описывает неудачный вызов внешней программы (AMM).
type ExternalCallError struct {
	Program       solana.PublicKey
	Operation     string
	OriginalError error
}

func (e *ExternalCallError) Error() string {
	return fmt.Sprintf("external call %s on program %s failed: %v", e.Operation, e.Program, e.OriginalError)
}

func (e *ExternalCallError) Unwrap() error {
	return e.OriginalError
}

// Is lets errors.Is(err, ErrExternalCallFailed) match regardless of the wrapped cause.
func (e *ExternalCallError) Is(target error) bool {
	return target == ErrExternalCallFailed
}

// Kind returns a stable short name for a core error, used in events and logs.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidAmount):
		return "InvalidAmount"
	case errors.Is(err, ErrInsufficientReserve):
		return "InsufficientReserve"
	case errors.Is(err, ErrLiquidityExhausted):
		return "LiquidityExhausted"
	case errors.Is(err, ErrAlreadyMigrated):
		return "AlreadyMigrated"
	case errors.Is(err, ErrExternalCallFailed):
		return "ExternalCallFailed"
	case errors.Is(err, ErrArithmeticOverflow):
		return "ArithmeticOverflow"
	case errors.Is(err, ErrPoolNotFound):
		return "PoolNotFound"
	case errors.Is(err, ErrPoolExists):
		return "PoolExists"
	default:
		return "Internal"
	}
}
