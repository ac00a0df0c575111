package executor

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ridgeline-labs/chainrunner/internal/state"
	"github.com/ridgeline-labs/chainrunner/pkg/chainclient"
	"github.com/ridgeline-labs/chainrunner/pkg/logger"
	"github.com/ridgeline-labs/chainrunner/pkg/metrics"
)

// SubmissionState names a node of spec.md §4.3's per-submission state
// machine:
//
//	BuildCalldata -> PriceGate -> Sign -> Submit ->(pending)-> Mined{success|reverted}
//	                                           \(timeout)-> Expired
//	                                           \(rpc err)-> Failed
type SubmissionState string

const (
	StateBuildCalldata SubmissionState = "build_calldata"
	StatePriceGate     SubmissionState = "price_gate"
	StateSign          SubmissionState = "sign"
	StateSubmit        SubmissionState = "submit"
	StatePending       SubmissionState = "pending"
	StateMinedSuccess  SubmissionState = "mined_success"
	StateMinedReverted SubmissionState = "mined_reverted"
	StateExpired       SubmissionState = "expired"
	StateFailed        SubmissionState = "failed"
	StateAborted       SubmissionState = "aborted"
)

// Result is the outcome of one execute(action) call.
type Result struct {
	State             SubmissionState
	TxHash            common.Hash
	GasUsed           uint64
	EffectiveGasPrice *big.Int
	Category          state.ErrorCategory
	Err               error

	// CircuitBreakerArmed reports the executor's own submission-failure
	// streak breaching its threshold (spec.md §4.3: "return
	// CircuitBreakerArmed so the strategy trips on its next tick").
	CircuitBreakerArmed bool
}

// Config is the executor's resolved runtime configuration.
type Config struct {
	LiquidatorContract common.Address
	ArbExecutor        common.Address
	JITProvider        common.Address

	ChainID             *big.Int
	MaxGasPriceWei      *big.Int
	PriorityMultiplier  decimal.Decimal
	SubmitTimeout       time.Duration // default 60s
	ReceiptPollInterval time.Duration // default 2s

	Simulation bool // --simulation: build/sign/gate but never submit
	Aggressive bool // --aggressive: prefer private relay + max priority fee

	FailureStreakThreshold int
}

// Executor is stateless aside from the signing key (spec.md §4.3).
type Executor struct {
	logger  *logger.Logger
	metrics *metrics.Registry
	chain   chainclient.ChainClient
	private chainclient.PrivateSubmitter
	abis    *ABIs
	engine  *state.EngineState

	privateKey *ecdsa.PrivateKey
	fromAddr   common.Address

	cfg Config

	consecutiveFailures int
}

// New builds an Executor. privateKeyHex is a 0x-optional hex-encoded
// ECDSA private key, matching the corpus's crypto.HexToECDSA usage.
func New(chain chainclient.ChainClient, private chainclient.PrivateSubmitter, abis *ABIs, engine *state.EngineState, privateKeyHex string, m *metrics.Registry, log *logger.Logger, cfg Config) (*Executor, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, state.NewError(state.CategoryFatal, fmt.Errorf("parse signing key: %w", err))
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 60 * time.Second
	}
	if cfg.ReceiptPollInterval <= 0 {
		cfg.ReceiptPollInterval = 2 * time.Second
	}

	return &Executor{
		logger:     log.Named("executor"),
		metrics:    m,
		chain:      chain,
		private:    private,
		abis:       abis,
		engine:     engine,
		privateKey: key,
		fromAddr:   crypto.PubkeyToAddress(key.PublicKey),
		cfg:        cfg,
	}, nil
}

// Execute converts action into calldata, prices it, signs, submits, and
// waits for a receipt (spec.md §4.3). Actions carrying no on-chain work
// (None, TriggerCircuitBreaker) are aborted immediately without consuming
// a nonce.
func (e *Executor) Execute(ctx context.Context, action state.Action) (*Result, error) {
	if action.Kind == state.ActionNone || action.Kind == state.ActionTriggerCircuitBreaker {
		return &Result{State: StateAborted}, nil
	}

	to, data, gasUnits, err := e.buildCalldata(action)
	if err != nil {
		return &Result{State: StateFailed, Category: state.CategoryFatal, Err: err}, err
	}

	gasPrice, aborted := e.priceGate(ctx)
	if aborted {
		return &Result{State: StateAborted, Category: state.CategoryPriceGateAbort}, nil
	}

	signedTx, err := e.sign(ctx, to, data, gasUnits, gasPrice)
	if err != nil {
		return &Result{State: StateFailed, Category: state.CategorySubmissionRejected, Err: err}, err
	}

	if e.cfg.Simulation {
		e.logger.Info("simulation mode: transaction built and signed but not submitted",
			zap.String("action", action.Kind.String()), zap.String("hash", signedTx.Hash().Hex()))
		return &Result{State: StateAborted, TxHash: signedTx.Hash()}, nil
	}

	result := e.submitAndAwait(ctx, action, signedTx)
	e.recordOutcome(result)
	return result, nil
}

func (e *Executor) buildCalldata(action state.Action) (common.Address, []byte, uint64, error) {
	switch action.Kind {
	case state.ActionExecuteLiquidation:
		if action.UseFlashbots {
			data, err := e.abis.BuildProtectedLiquidationCalldata(action.Liquidation, nil)
			return e.cfg.LiquidatorContract, data, gasLimitFor(action), err
		}
		data, err := e.abis.BuildLiquidationCalldata(action.Liquidation)
		return e.cfg.LiquidatorContract, data, gasLimitFor(action), err
	case state.ActionExecuteArbitrage:
		data, err := e.abis.BuildArbitrageCalldata(action.Arbitrage)
		return e.cfg.ArbExecutor, data, gasLimitFor(action), err
	case state.ActionExecuteJIT:
		data, err := e.abis.BuildJITCalldata([]*state.JITPlan{action.JIT})
		return e.cfg.JITProvider, data, gasLimitFor(action), err
	default:
		return common.Address{}, nil, 0, fmt.Errorf("unsupported action kind %q", action.Kind)
	}
}

// priceGate re-reads the live gas price immediately before submission
// and aborts if it has spiked past the ceiling since the strategy's
// decision (spec.md §4.3, §9: "race between decision and submission").
func (e *Executor) priceGate(ctx context.Context) (*big.Int, bool) {
	current, err := e.chain.GasPrice(ctx)
	if err != nil {
		// Fall back to the strategy's last-known gas price rather than
		// aborting on a transient RPC error here; the executor's own
		// submission path will surface the error if it persists.
		current = e.engine.GasPrice()
	}
	if e.cfg.MaxGasPriceWei != nil && e.cfg.MaxGasPriceWei.Sign() > 0 && current.Cmp(e.cfg.MaxGasPriceWei) > 0 {
		return nil, true
	}
	return priceFor(current, e.cfg.PriorityMultiplier, e.cfg.MaxGasPriceWei), false
}

func (e *Executor) sign(ctx context.Context, to common.Address, data []byte, gasUnits uint64, gasPrice *big.Int) (*types.Transaction, error) {
	nonce, err := e.chain.PendingNonceAt(ctx, e.fromAddr)
	if err != nil {
		return nil, fmt.Errorf("fetch nonce: %w", err)
	}
	tx := types.NewTransaction(nonce, to, big.NewInt(0), gasUnits, gasPrice, data)
	signed, err := types.SignTx(tx, types.NewEIP155Signer(e.cfg.ChainID), e.privateKey)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	return signed, nil
}

// submitAndAwait implements the Submit/Mined/Expired/Failed legs of the
// state machine, including the flashbots-vs-public path selection
// (spec.md §4.3).
func (e *Executor) submitAndAwait(ctx context.Context, action state.Action, tx *types.Transaction) *Result {
	hash := tx.Hash()

	if (action.UseFlashbots || e.cfg.Aggressive) && e.private != nil {
		hints := map[string]any{}
		if action.JIT != nil && action.JIT.VictimTxHash != (common.Hash{}) {
			hints["target_tx_hash"] = action.JIT.VictimTxHash.Hex()
		}
		if _, err := e.private.SendPrivate(ctx, tx, hints); err != nil {
			return &Result{State: StateFailed, TxHash: hash, Category: state.CategorySubmissionRejected, Err: err}
		}
	} else if err := e.chain.SendRawTransaction(ctx, tx); err != nil {
		return &Result{State: StateFailed, TxHash: hash, Category: state.CategorySubmissionRejected, Err: err}
	}

	e.engine.TrackTx(hash)
	defer e.engine.UntrackTx(hash)

	deadline := time.Now().Add(e.cfg.SubmitTimeout)
	ticker := time.NewTicker(e.cfg.ReceiptPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return &Result{State: StateExpired, TxHash: hash, Category: state.CategoryTransientChain, Err: ctx.Err()}
		case <-ticker.C:
			receipt, err := e.chain.TransactionReceipt(ctx, hash)
			if err != nil {
				if time.Now().After(deadline) {
					return &Result{State: StateExpired, TxHash: hash, Category: state.CategoryTransientChain}
				}
				continue
			}
			if receipt == nil {
				if time.Now().After(deadline) {
					return &Result{State: StateExpired, TxHash: hash, Category: state.CategoryTransientChain}
				}
				continue
			}
			if receipt.Status == types.ReceiptStatusSuccessful {
				return &Result{State: StateMinedSuccess, TxHash: hash, GasUsed: receipt.GasUsed, EffectiveGasPrice: tx.GasPrice()}
			}
			return &Result{State: StateMinedReverted, TxHash: hash, GasUsed: receipt.GasUsed, Category: state.CategorySubmissionRejected}
		}
	}
}

// recordOutcome updates metrics and the executor's own submission
// failure streak (spec.md §4.3, §7); breaching the configured threshold
// is reported on the Result for the caller to relay into the strategy.
func (e *Executor) recordOutcome(result *Result) {
	switch result.State {
	case StateMinedSuccess:
		e.consecutiveFailures = 0
		if e.metrics != nil {
			e.metrics.ExecutionSuccess.Inc()
		}
	case StateMinedReverted, StateFailed:
		e.consecutiveFailures++
		if e.metrics != nil {
			e.metrics.ExecutionFailure.WithLabelValues(string(result.Category)).Inc()
		}
		if e.cfg.FailureStreakThreshold > 0 && e.consecutiveFailures >= e.cfg.FailureStreakThreshold {
			result.CircuitBreakerArmed = true
		}
	}
}
