package state

import (
	"math/big"
	"sync"
	"time"
)

// EngineState is process-wide and mutated by the strategy's thread of
// control; the executor reads its gas price and records in-flight
// transaction hashes on it via TrackTx/UntrackTx (spec.md §3,
// "EngineState").
type EngineState struct {
	mu sync.RWMutex

	reserves map[Address]*PoolReserves // keyed by pool address
	prices   map[Address]*TokenPrice   // keyed by asset address

	gasPrice *big.Int // wei

	trackedTxs map[Hash]struct{}

	circuitBreaker bool

	lastUpdateBlock uint64

	historicalProfit *big.Int // base-asset units, lifetime total

	consecutiveFailures int
}

// NewEngineState returns an empty, ready-to-use state.
func NewEngineState() *EngineState {
	return &EngineState{
		reserves:         make(map[Address]*PoolReserves),
		prices:           make(map[Address]*TokenPrice),
		gasPrice:         big.NewInt(0),
		trackedTxs:       make(map[Hash]struct{}),
		historicalProfit: big.NewInt(0),
	}
}

func (s *EngineState) SetReserves(r *PoolReserves) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reserves[r.Pool] = r
}

func (s *EngineState) Reserves(pool Address) (*PoolReserves, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reserves[pool]
	return r, ok
}

// AllReserves returns a snapshot slice safe for the caller to range
// over without holding the lock.
func (s *EngineState) AllReserves() []*PoolReserves {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*PoolReserves, 0, len(s.reserves))
	for _, r := range s.reserves {
		out = append(out, r)
	}
	return out
}

func (s *EngineState) SetPrice(p *TokenPrice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[p.Asset] = p
}

func (s *EngineState) Price(asset Address) (*big.Int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prices[asset]
	if !ok {
		return nil, false
	}
	return p.Price, true
}

func (s *EngineState) SetGasPrice(wei *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gasPrice = wei
}

func (s *EngineState) GasPrice() *big.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return new(big.Int).Set(s.gasPrice)
}

func (s *EngineState) SetLastUpdateBlock(block uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUpdateBlock = block
}

func (s *EngineState) LastUpdateBlock() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdateBlock
}

func (s *EngineState) TrackTx(h Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trackedTxs[h] = struct{}{}
}

func (s *EngineState) UntrackTx(h Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.trackedTxs, h)
}

// CircuitBreakerTripped reports the current breaker flag.
func (s *EngineState) CircuitBreakerTripped() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.circuitBreaker
}

func (s *EngineState) TripCircuitBreaker() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.circuitBreaker = true
}

// ResetCircuitBreaker clears the breaker; called by an operator-driven
// reset path, never automatically.
func (s *EngineState) ResetCircuitBreaker() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.circuitBreaker = false
	s.consecutiveFailures = 0
}

// RecordSuccess clears the consecutive-failure streak.
func (s *EngineState) RecordSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutiveFailures = 0
}

// RecordFailure increments the consecutive-failure streak and reports
// whether it has now reached threshold.
func (s *EngineState) RecordFailure(threshold int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutiveFailures++
	return s.consecutiveFailures >= threshold
}

func (s *EngineState) AddHistoricalProfit(delta *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.historicalProfit = new(big.Int).Add(s.historicalProfit, delta)
}

func (s *EngineState) HistoricalProfit() *big.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return new(big.Int).Set(s.historicalProfit)
}

// StaleAfter reports whether the state hasn't synced within d of now,
// useful for health checks.
func (s *EngineState) StaleAfter(d time.Duration, lastSync time.Time) bool {
	return time.Since(lastSync) > d
}
