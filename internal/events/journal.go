// internal/events/journal.go
package events

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

var journalHeader = []string{
	"timestamp", "event_id", "type", "pool", "mint", "account", "style", "amount_in", "amount_out", "reserve_token", "reserve_base",
}

// CSVJournal записывает события пула в CSV-файл. Подписывается на шину как Handler.
type CSVJournal struct {
	mu      sync.Mutex
	writer  *csv.Writer
	file    *os.File
	records uint64
}

func NewCSVJournal(path string) (*CSVJournal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	j := &CSVJournal{writer: csv.NewWriter(file), file: file}
	if stat.Size() == 0 {
		if err := j.writer.Write(journalHeader); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
	}
	return j, nil
}

// Attach subscribes the journal to every pool event type.
func (j *CSVJournal) Attach(bus *Bus) []Subscription {
	subs := make([]Subscription, 0, 4)
	for _, typ := range []EventType{PoolInitialized, LiquidityAdded, Swapped, Migrated} {
		subs = append(subs, bus.Subscribe(typ, j))
	}
	return subs
}

func (j *CSVJournal) Handle(_ context.Context, event Event) error {
	record := []string{event.Timestamp().UTC().Format(time.RFC3339Nano), event.ID(), string(event.Type())}
	u := func(v uint64) string { return strconv.FormatUint(v, 10) }

	switch e := event.(type) {
	case PoolInitializedEvent:
		record = append(record, e.Pool.String(), e.Mint.String(), "", "", "", "", "0", "0")
	case LiquidityAddedEvent:
		record = append(record, e.Pool.String(), e.Mint.String(), e.Provider.String(), "",
			u(e.AmountToken), u(e.AmountBase), u(e.ReserveToken), u(e.ReserveBase))
	case SwappedEvent:
		record = append(record, e.Pool.String(), e.Mint.String(), e.Trader.String(), strconv.Itoa(int(e.Style)),
			u(e.AmountIn), u(e.AmountOut), u(e.ReserveToken), u(e.ReserveBase))
	case MigratedEvent:
		record = append(record, e.Pool.String(), e.Mint.String(), e.AMMPool.String(), "",
			u(e.InitBaseAmount), u(e.CoinAmount), "0", "0")
	default:
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.writer.Write(record); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	j.records++
	return nil
}

// Flush writes buffered records to disk.
func (j *CSVJournal) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.writer.Flush()
	if err := j.writer.Error(); err != nil {
		return fmt.Errorf("CSV writer error: %w", err)
	}
	return j.file.Sync()
}

// Records returns the number of rows written, header excluded.
func (j *CSVJournal) Records() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.records
}

func (j *CSVJournal) Close() error {
	if err := j.Flush(); err != nil {
		return err
	}
	return j.file.Close()
}
