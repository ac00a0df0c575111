// Package engine is the runtime that fans a collector's event stream
// into the strategy and the strategy's actions into the executor
// (spec.md §2, §5). It owns no domain logic of its own; it is the
// single task that receives collector events sequentially and keeps
// the strategy's mutable state single-writer.
package engine

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/ridgeline-labs/chainrunner/internal/collector"
	"github.com/ridgeline-labs/chainrunner/internal/executor"
	"github.com/ridgeline-labs/chainrunner/internal/state"
	"github.com/ridgeline-labs/chainrunner/pkg/logger"
	"github.com/ridgeline-labs/chainrunner/pkg/metrics"
)

// Config controls the action dispatcher's concurrency.
type Config struct {
	// ActionConcurrency bounds how many in-flight actions the executor
	// may submit at once; default 1 (strictly serial), per spec.md §5.
	ActionConcurrency int64
}

// Engine wires one Collector into one Strategy into one Executor.
type Engine struct {
	logger    *logger.Logger
	metrics   *metrics.Registry
	collector *collector.Collector
	strategy  Strategy
	executor  Executor
	cfg       Config
}

// Strategy is the narrow surface engine needs from internal/strategy.Strategy.
type Strategy interface {
	ProcessEvent(ctx context.Context, ev collector.Event) (state.Action, error)
	RecordExecutionOutcome(success bool) state.Action
}

// Executor is the narrow surface engine needs from internal/executor.Executor.
type Executor interface {
	Execute(ctx context.Context, action state.Action) (*executor.Result, error)
}

// New builds an Engine.
func New(c *collector.Collector, s Strategy, e Executor, m *metrics.Registry, log *logger.Logger, cfg Config) *Engine {
	if cfg.ActionConcurrency <= 0 {
		cfg.ActionConcurrency = 1
	}
	return &Engine{
		logger:    log.Named("engine"),
		metrics:   m,
		collector: c,
		strategy:  s,
		executor:  e,
		cfg:       cfg,
	}
}

// Run streams collector events until ctx is canceled, dispatching every
// non-None action to the executor with bounded concurrency (spec.md
// §5: "the executor MAY process independent actions concurrently").
// Run blocks until the collector's stream closes and every dispatched
// action has completed.
func (e *Engine) Run(ctx context.Context) error {
	events := e.collector.Stream(ctx)
	sem := semaphore.NewWeighted(e.cfg.ActionConcurrency)
	var wg sync.WaitGroup

	for ev := range events {
		if ev.Kind == collector.KindError {
			e.logger.Warn("collector reported a poll error", zap.String("message", ev.Error.Message))
			continue
		}
		if ev.Kind == collector.KindHealthCheck {
			e.logger.Debug("health check", zap.Uint64("monitored_assets", ev.HealthCheck.MonitoredAssets))
			continue
		}

		action, err := e.strategy.ProcessEvent(ctx, ev)
		if err != nil {
			e.logger.Warn("strategy failed to process event", zap.String("kind", string(ev.Kind)), zap.Error(err))
			continue
		}
		if action.Kind == state.ActionNone {
			continue
		}
		if action.Kind == state.ActionTriggerCircuitBreaker {
			e.logger.Error("circuit breaker tripped", zap.String("reason", action.CircuitBreakerReason))
			continue
		}

		if e.metrics != nil {
			e.metrics.ActionsEmitted.WithLabelValues(action.Kind.String()).Inc()
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			return ctx.Err()
		}
		wg.Add(1)
		go func(a state.Action) {
			defer wg.Done()
			defer sem.Release(1)
			e.dispatch(ctx, a)
		}(action)
	}

	wg.Wait()
	return ctx.Err()
}

// dispatch submits one action and relays its outcome back into the
// strategy's failure-streak accounting (spec.md §4.2.6, §7).
func (e *Engine) dispatch(ctx context.Context, action state.Action) {
	result, err := e.executor.Execute(ctx, action)
	if err != nil {
		e.logger.Warn("action execution error", zap.String("kind", action.Kind.String()), zap.Error(err))
	}
	if result == nil {
		return
	}

	switch result.State {
	case executor.StateMinedSuccess:
		e.logger.Info("action mined", zap.String("kind", action.Kind.String()), zap.String("tx", result.TxHash.Hex()))
		e.strategy.RecordExecutionOutcome(true)
	case executor.StateMinedReverted, executor.StateFailed, executor.StateExpired:
		e.logger.Warn("action did not succeed",
			zap.String("kind", action.Kind.String()), zap.String("state", string(result.State)),
			zap.String("category", string(result.Category)))
		if trip := e.strategy.RecordExecutionOutcome(false); trip.Kind == state.ActionTriggerCircuitBreaker {
			e.logger.Error("circuit breaker armed by executor failure streak", zap.String("reason", trip.CircuitBreakerReason))
		}
	case executor.StateAborted:
		e.logger.Debug("action aborted before submission", zap.String("kind", action.Kind.String()), zap.String("category", string(result.Category)))
	}
}
