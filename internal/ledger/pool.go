// =============================
// File: internal/ledger/pool.go
// =============================
package ledger

import (
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"
)

// Phase - стадия жизненного цикла пула.
type Phase uint8

const (
	PhaseBonding Phase = iota
	PhaseMigrated
)

func (p Phase) String() string {
	switch p {
	case PhaseBonding:
		return "bonding"
	case PhaseMigrated:
		return "migrated"
	default:
		return "unknown"
	}
}

// Pool хранит состояние bonding-curve пула одного минта.
type Pool struct {
	Address      solana.PublicKey
	Mint         solana.PublicKey
	Bump         uint8
	ReserveToken uint64
	ReserveBase  uint64
	Phase        Phase
	LPSupply     uint64
	Positions    map[solana.PublicKey]uint64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewPool creates an empty pool in the bonding phase.
func NewPool(address, mint solana.PublicKey, bump uint8, now time.Time) *Pool {
	return &Pool{
		Address:   address,
		Mint:      mint,
		Bump:      bump,
		Phase:     PhaseBonding,
		Positions: make(map[solana.PublicKey]uint64),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone возвращает глубокую копию пула (включая позиции).
func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Positions = make(map[solana.PublicKey]uint64, len(p.Positions))
	for owner, shares := range p.Positions {
		cp.Positions[owner] = shares
	}
	return &cp
}

func (p *Pool) IsMigrated() bool {
	return p.Phase == PhaseMigrated
}

// Empty reports whether both reserves are zero.
func (p *Pool) Empty() bool {
	return p.ReserveToken == 0 && p.ReserveBase == 0
}

// Product returns reserve_token * reserve_base as a 256-bit integer.
func (p *Pool) Product() *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(p.ReserveToken), uint256.NewInt(p.ReserveBase))
}
