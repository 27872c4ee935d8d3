// =============================
// File: internal/custody/journal.go
// =============================
package custody

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

type delta struct {
	credit uint64
	debit  uint64
}

// Journal накапливает изменения балансов поверх базового хранилища
// и применяет их одной пачкой при Commit. До Commit база не меняется.
type Journal struct {
	base    Applier
	staged  map[Key]*delta
	entries []Entry
}

func NewJournal(base Applier) *Journal {
	return &Journal{base: base, staged: make(map[Key]*delta)}
}

func (j *Journal) Balance(ctx context.Context, owner, asset solana.PublicKey) (uint64, error) {
	balance, err := j.base.Balance(ctx, owner, asset)
	if err != nil {
		return 0, err
	}
	d, ok := j.staged[Key{Owner: owner, Asset: asset}]
	if !ok {
		return balance, nil
	}
	total := balance + d.credit
	if total < balance {
		return 0, fmt.Errorf("%w: %s/%s", ErrBalanceOverflow, owner, asset)
	}
	return total - d.debit, nil
}

func (j *Journal) Debit(ctx context.Context, owner, asset solana.PublicKey, amount uint64) error {
	return j.stage(ctx, Entry{Owner: owner, Asset: asset, Amount: amount})
}

func (j *Journal) Credit(ctx context.Context, owner, asset solana.PublicKey, amount uint64) error {
	return j.stage(ctx, Entry{Owner: owner, Asset: asset, Amount: amount, Credit: true})
}

func (j *Journal) stage(ctx context.Context, e Entry) error {
	if e.Amount == 0 {
		return nil
	}
	balance, err := j.Balance(ctx, e.Owner, e.Asset)
	if err != nil {
		return err
	}
	if _, err := applyEntry(balance, e); err != nil {
		return err
	}

	k := e.Key()
	d, ok := j.staged[k]
	if !ok {
		d = &delta{}
		j.staged[k] = d
	}
	if e.Credit {
		d.credit += e.Amount
	} else {
		d.debit += e.Amount
	}
	j.entries = append(j.entries, e)
	return nil
}

// Entries returns the staged entries in order.
func (j *Journal) Entries() []Entry {
	return append([]Entry(nil), j.entries...)
}

// Commit применяет накопленные записи к базе.
func (j *Journal) Commit(ctx context.Context) error {
	if len(j.entries) == 0 {
		return nil
	}
	if err := j.base.Apply(ctx, j.entries); err != nil {
		return fmt.Errorf("commit custody journal: %w", err)
	}
	j.entries = nil
	j.staged = make(map[Key]*delta)
	return nil
}
