// internal/events/types.go
package events

import (
	"encoding/binary"
	"encoding/hex"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/zeebo/blake3"
)

// EventType represents the type of event.
type EventType string

const (
	// Pool lifecycle
	PoolInitialized EventType = "pool.initialized"
	LiquidityAdded  EventType = "pool.liquidity_added"
	Swapped         EventType = "pool.swapped"
	Migrated        EventType = "pool.migrated"

	// Operation events
	OperationFailed EventType = "operation.failed"
)

// Event is the base interface for all events.
type Event interface {
	Type() EventType
	Timestamp() time.Time
	ID() string
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	EventID   string
	EventType EventType
	EventTime time.Time
}

// Type returns the event type.
func (e BaseEvent) Type() EventType {
	return e.EventType
}

// Timestamp returns when the event occurred.
func (e BaseEvent) Timestamp() time.Time {
	return e.EventTime
}

// ID returns the event identifier.
func (e BaseEvent) ID() string {
	return e.EventID
}

// NewBase builds a BaseEvent whose id is the blake3 digest of (pool, type, seq).
func NewBase(typ EventType, pool solana.PublicKey, seq uint64, at time.Time) BaseEvent {
	h := blake3.New()
	_, _ = h.Write(pool.Bytes())
	_, _ = h.Write([]byte(typ))
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], seq)
	_, _ = h.Write(buf[:])
	sum := h.Sum(nil)

	return BaseEvent{
		EventID:   hex.EncodeToString(sum[:16]),
		EventType: typ,
		EventTime: at,
	}
}

// PoolInitializedEvent is emitted when a pool is created for a mint.
type PoolInitializedEvent struct {
	BaseEvent
	Pool solana.PublicKey
	Mint solana.PublicKey
}

// LiquidityAddedEvent is emitted after a deposit.
type LiquidityAddedEvent struct {
	BaseEvent
	Pool         solana.PublicKey
	Mint         solana.PublicKey
	Provider     solana.PublicKey
	AmountToken  uint64
	AmountBase   uint64
	Shares       uint64
	ReserveToken uint64
	ReserveBase  uint64
}

// SwappedEvent is emitted after every swap. Style is 1 for token->base, 2 for base->token.
type SwappedEvent struct {
	BaseEvent
	Pool         solana.PublicKey
	Mint         solana.PublicKey
	Trader       solana.PublicKey
	Style        uint8
	AmountIn     uint64
	AmountOut    uint64
	ReserveToken uint64
	ReserveBase  uint64
}

// MigratedEvent is emitted when the pool liquidity moved to the AMM.
type MigratedEvent struct {
	BaseEvent
	Pool           solana.PublicKey
	Mint           solana.PublicKey
	AMMPool        solana.PublicKey
	InitBaseAmount uint64
	CoinAmount     uint64
	FeeAmount      uint64
}

// OperationFailedEvent is emitted when an operation fails.
type OperationFailedEvent struct {
	BaseEvent
	Operation string
	Mint      solana.PublicKey
	Kind      string
	Error     error
}
