// =============================
// File: internal/amm/memory.go
// =============================
package amm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

var ErrInvalidInitAmount = errors.New("amm init amount must be positive")

// PoolState - состояние пула в симуляции AMM.
type PoolState struct {
	Keys
	CoinMint    solana.PublicKey
	PcMint      solana.PublicKey
	CoinReserve uint64
	PcReserve   uint64
	LPSupply    uint64
	OpenTime    uint64
	CreatedAt   time.Time
}

// Memory - внутрипроцессная симуляция AMM v4 для тестов и CLI.
type Memory struct {
	mu       sync.Mutex
	pools    map[solana.PublicKey]*PoolState
	failures []error
	calls    int
	logger   *zap.Logger
}

func NewMemory(logger *zap.Logger) *Memory {
	return &Memory{
		pools:  make(map[solana.PublicKey]*PoolState),
		logger: logger.Named("amm_memory"),
	}
}

// SimulatedMarket returns the market address the simulation uses for a mint pair.
func SimulatedMarket(programID, coinMint, pcMint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{coinMint.Bytes(), pcMint.Bytes(), []byte("market")}, programID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive simulated market: %w", err)
	}
	return addr, nil
}

// FailNext makes the next len(errs) calls fail with the given errors.
func (m *Memory) FailNext(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, errs...)
}

// Calls returns how many times InitializePool was invoked.
func (m *Memory) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Pool returns a copy of the pool state.
func (m *Memory) Pool(address solana.PublicKey) (PoolState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pools[address]
	if !ok {
		return PoolState{}, false
	}
	return *p, true
}

func (m *Memory) InitializePool(ctx context.Context, req InitializeRequest) (InitializeResult, error) {
	if err := ctx.Err(); err != nil {
		return InitializeResult{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	if len(m.failures) > 0 {
		err := m.failures[0]
		m.failures = m.failures[1:]
		m.logger.Debug("Injected failure", zap.Error(err))
		return InitializeResult{}, err
	}

	if err := req.Validate(); err != nil {
		return InitializeResult{}, err
	}
	if req.InitCoinAmount == 0 || req.InitPcAmount == 0 {
		return InitializeResult{}, ErrInvalidInitAmount
	}

	market, err := SimulatedMarket(req.ProgramID, req.CoinMint, req.PcMint)
	if err != nil {
		return InitializeResult{}, err
	}
	keys, err := DeriveKeys(req.ProgramID, market)
	if err != nil {
		return InitializeResult{}, err
	}
	if err := keys.CheckNonce(req.Nonce); err != nil {
		return InitializeResult{}, err
	}
	if _, exists := m.pools[keys.Pool]; exists {
		return InitializeResult{}, fmt.Errorf("%w: %s", ErrPoolAlreadyInitialized, keys.Pool)
	}

	lp := new(uint256.Int).Mul(uint256.NewInt(req.InitCoinAmount), uint256.NewInt(req.InitPcAmount))
	lp.Sqrt(lp)

	state := &PoolState{
		Keys:        keys,
		CoinMint:    req.CoinMint,
		PcMint:      req.PcMint,
		CoinReserve: req.InitCoinAmount,
		PcReserve:   req.InitPcAmount,
		LPSupply:    lp.Uint64(),
		OpenTime:    req.OpenTime,
		CreatedAt:   time.Unix(int64(req.OpenTime), 0).UTC(),
	}
	m.pools[keys.Pool] = state

	m.logger.Info("AMM pool initialized",
		zap.String("pool", keys.Pool.String()),
		zap.String("coin_mint", req.CoinMint.String()),
		zap.Uint64("init_coin_amount", req.InitCoinAmount),
		zap.Uint64("init_pc_amount", req.InitPcAmount),
		zap.Uint64("lp_supply", state.LPSupply))

	return InitializeResult{
		Pool:         keys.Pool,
		Authority:    keys.Authority,
		CoinVault:    keys.CoinVault,
		PcVault:      keys.PcVault,
		LPMint:       keys.LPMint,
		OpenOrders:   keys.OpenOrders,
		TargetOrders: keys.TargetOrders,
		LPAmount:     state.LPSupply,
	}, nil
}
