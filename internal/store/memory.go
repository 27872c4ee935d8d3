// =============================
// File: internal/store/memory.go
// =============================
package store

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/rovshanmuradov/fairlaunch/internal/custody"
	"github.com/rovshanmuradov/fairlaunch/internal/ledger"
)

// Memory - хранилище в памяти с мьютексом на каждый пул.
type Memory struct {
	mu      sync.Mutex
	pools   map[solana.PublicKey]*ledger.Pool
	locks   map[solana.PublicKey]*sync.Mutex
	custody *custody.Memory
}

func NewMemory(book *custody.Memory) *Memory {
	if book == nil {
		book = custody.NewMemory()
	}
	return &Memory{
		pools:   make(map[solana.PublicKey]*ledger.Pool),
		locks:   make(map[solana.PublicKey]*sync.Mutex),
		custody: book,
	}
}

type memoryTx struct {
	staged  *ledger.Pool
	journal *custody.Journal
}

func (t *memoryTx) Pool() (*ledger.Pool, error) {
	if t.staged == nil {
		return nil, ledger.ErrPoolNotFound
	}
	return t.staged, nil
}

func (t *memoryTx) CreatePool(pool *ledger.Pool) error {
	if t.staged != nil {
		return fmt.Errorf("pool %s: %w", pool.Address, ledger.ErrPoolExists)
	}
	t.staged = pool
	return nil
}

func (t *memoryTx) Custody() custody.Custody {
	return t.journal
}

func (m *Memory) lockFor(address solana.PublicKey) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[address]
	if !ok {
		l = &sync.Mutex{}
		m.locks[address] = l
	}
	return l
}

func (m *Memory) Update(ctx context.Context, address solana.PublicKey, fn TxFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	lock := m.lockFor(address)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	current := m.pools[address].Clone()
	m.mu.Unlock()

	tx := &memoryTx{staged: current, journal: custody.NewJournal(m.custody)}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.journal.Commit(ctx); err != nil {
		return err
	}
	if tx.staged != nil {
		m.mu.Lock()
		m.pools[address] = tx.staged.Clone()
		m.mu.Unlock()
	}
	return nil
}

func (m *Memory) View(_ context.Context, address solana.PublicKey) (*ledger.Pool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pools[address]
	if !ok {
		return nil, fmt.Errorf("pool %s: %w", address, ledger.ErrPoolNotFound)
	}
	return p.Clone(), nil
}

// List returns every pool ordered by address.
func (m *Memory) List(_ context.Context) ([]*ledger.Pool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*ledger.Pool, 0, len(m.pools))
	for _, p := range m.pools {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Address.Bytes(), out[j].Address.Bytes()) < 0
	})
	return out, nil
}

func (m *Memory) Custody() custody.Custody {
	return m.custody
}
