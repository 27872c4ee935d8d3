// =============================
// File: internal/custody/memory.go
// =============================
package custody

import (
	"context"
	"sync"

	"github.com/gagliardetto/solana-go"
)

// Memory хранит балансы в памяти процесса.
type Memory struct {
	mu       sync.RWMutex
	balances map[Key]uint64
}

func NewMemory() *Memory {
	return &Memory{balances: make(map[Key]uint64)}
}

func (m *Memory) Balance(_ context.Context, owner, asset solana.PublicKey) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balances[Key{Owner: owner, Asset: asset}], nil
}

func (m *Memory) Debit(ctx context.Context, owner, asset solana.PublicKey, amount uint64) error {
	return m.Apply(ctx, []Entry{{Owner: owner, Asset: asset, Amount: amount}})
}

func (m *Memory) Credit(ctx context.Context, owner, asset solana.PublicKey, amount uint64) error {
	return m.Apply(ctx, []Entry{{Owner: owner, Asset: asset, Amount: amount, Credit: true}})
}

// Apply применяет пачку записей атомарно: либо все, либо ни одной.
func (m *Memory) Apply(_ context.Context, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := make(map[Key]uint64, len(entries))
	for _, e := range entries {
		k := e.Key()
		balance, ok := work[k]
		if !ok {
			balance = m.balances[k]
		}
		next, err := applyEntry(balance, e)
		if err != nil {
			return err
		}
		work[k] = next
	}

	for k, v := range work {
		if v == 0 {
			delete(m.balances, k)
			continue
		}
		m.balances[k] = v
	}
	return nil
}

// Snapshot returns a copy of every non-zero balance.
func (m *Memory) Snapshot() map[Key]uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[Key]uint64, len(m.balances))
	for k, v := range m.balances {
		out[k] = v
	}
	return out
}
