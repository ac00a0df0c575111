package collector

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ridgeline-labs/chainrunner/internal/state"
	"github.com/ridgeline-labs/chainrunner/pkg/chainclient"
	"github.com/ridgeline-labs/chainrunner/pkg/logger"
	"github.com/ridgeline-labs/chainrunner/pkg/metrics"
)

// Config controls tick cadence and the scan window.
type Config struct {
	BlockTickPeriod    time.Duration
	HealthTickPeriod   time.Duration // default 2x BlockTickPeriod
	LogScanWindowBlocks uint64       // default 10
	LiquidationTopic   common.Hash
	LendingPool        state.Address
	MonitoredAssets    []state.Address
	ChannelBuffer      int

	// HintSource is the optional private-relay hint stream (spec.md
	// §4.1: "surface external hints, when configured"). Nil disables it.
	HintSource <-chan MevHintEvent
}

// Collector wakes on two independent tickers and emits the envelopes
// spec.md §4.1 describes. Both tickers honor ctx cancellation; no
// pending work is flushed on shutdown.
type Collector struct {
	logger    *logger.Logger
	chain     chainclient.ChainClient
	lending   state.LendingPoolReader
	userIndex UserIndex
	metrics   *metrics.Registry
	cfg       Config
	limiter   *rate.Limiter
}

// New builds a Collector. limiter caps the health tick's per-user RPC
// fan-out so a large watch-list can't saturate the chain client.
func New(chain chainclient.ChainClient, lending state.LendingPoolReader, userIndex UserIndex, m *metrics.Registry, log *logger.Logger, cfg Config) *Collector {
	if cfg.HealthTickPeriod <= 0 {
		cfg.HealthTickPeriod = 2 * cfg.BlockTickPeriod
	}
	if cfg.LogScanWindowBlocks == 0 {
		cfg.LogScanWindowBlocks = 10
	}
	if cfg.ChannelBuffer <= 0 {
		cfg.ChannelBuffer = 256
	}
	return &Collector{
		logger:    log.Named("collector"),
		chain:     chain,
		lending:   lending,
		userIndex: userIndex,
		metrics:   m,
		cfg:       cfg,
		limiter:   rate.NewLimiter(rate.Limit(50), 50),
	}
}

// Stream multiplexes the block and health tickers into one channel,
// closing it when ctx is canceled (spec.md §4.1).
func (c *Collector) Stream(ctx context.Context) <-chan Event {
	out := make(chan Event, c.cfg.ChannelBuffer)
	go c.run(ctx, out)
	return out
}

func (c *Collector) run(ctx context.Context, out chan<- Event) {
	defer close(out)

	blockTicker := time.NewTicker(c.cfg.BlockTickPeriod)
	healthTicker := time.NewTicker(c.cfg.HealthTickPeriod)
	defer blockTicker.Stop()
	defer healthTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-blockTicker.C:
			c.blockTick(ctx, out)
		case <-healthTicker.C:
			c.healthTick(ctx, out)
		case hint, ok := <-c.cfg.HintSource:
			if !ok {
				c.cfg.HintSource = nil
				continue
			}
			c.emit(ctx, out, Event{Kind: KindMevHint, MevHint: &hint})
		}
	}
}

func (c *Collector) emit(ctx context.Context, out chan<- Event, e Event) {
	select {
	case out <- e:
	case <-ctx.Done():
	}
}

func (c *Collector) blockTick(ctx context.Context, out chan<- Event) {
	blockNum, err := c.chain.BlockNumber(ctx)
	if err != nil {
		c.pollError(ctx, out, fmt.Errorf("fetch block number: %w", err))
		return
	}

	fromBlock := int64(0)
	if blockNum > c.cfg.LogScanWindowBlocks {
		fromBlock = int64(blockNum - c.cfg.LogScanWindowBlocks)
	}

	logs, err := c.chain.FilterLogs(ctx, ethereum.FilterQuery{
		Addresses: []common.Address{common.Address(c.cfg.LendingPool)},
		Topics:    [][]common.Hash{{c.cfg.LiquidationTopic}},
		FromBlock: big.NewInt(fromBlock),
		ToBlock:   big.NewInt(int64(blockNum)),
	})
	if err != nil {
		c.pollError(ctx, out, fmt.Errorf("filter liquidation logs: %w", err))
		return
	}

	if len(logs) > 0 {
		c.emit(ctx, out, Event{
			Kind: KindLiquidationEvents,
			LiquidationEvents: &LiquidationEventsEvent{
				Events: uint64(len(logs)),
				Block:  blockNum,
			},
		})
		return
	}

	c.emit(ctx, out, Event{
		Kind: KindBlock,
		Block: &BlockEvent{
			BlockNumber: blockNum,
			Timestamp:   time.Now().Unix(),
		},
	})
}

func (c *Collector) healthTick(ctx context.Context, out chan<- Event) {
	found := false

	// collateralAsset mirrors the original Rust collector's
	// check_liquidation_opportunity, which always resolves collateral
	// to config.monitored_assets.first() regardless of which asset is
	// under inspection as the debt side.
	var collateralAsset state.Address
	if len(c.cfg.MonitoredAssets) > 0 {
		collateralAsset = c.cfg.MonitoredAssets[0]
	}

	for _, asset := range c.cfg.MonitoredAssets {
		users := c.userIndex.CandidateUsers(asset)
		for _, user := range users {
			if err := c.limiter.Wait(ctx); err != nil {
				return
			}

			totalCollateral, totalDebt, healthFactor, err := c.lending.GetUserAccountData(ctx, user)
			if err != nil {
				c.pollError(ctx, out, fmt.Errorf("get user account data for %s: %w", hexAddr(user), err))
				continue
			}

			if healthFactor.Cmp(state.OneE18) >= 0 {
				continue
			}

			bitmask, err := c.lending.GetReserveConfiguration(ctx, asset)
			if err != nil {
				c.pollError(ctx, out, fmt.Errorf("get reserve configuration for %s: %w", hexAddr(asset), err))
				continue
			}
			bonus := state.ExtractLiquidationBonusBps(bitmask)

			found = true
			c.emit(ctx, out, Event{
				Kind: KindLiquidationOpportunity,
				LiquidationOpportunity: &LiquidationOpportunityEvent{
					User:                hexAddr(user),
					CollateralAsset:     hexAddr(collateralAsset),
					DebtAsset:           hexAddr(asset),
					HealthFactor:        healthFactor.String(),
					TotalCollateral:     totalCollateral.String(),
					TotalDebt:           totalDebt.String(),
					LiquidationBonusBps: bonus,
				},
			})

			if c.metrics != nil {
				c.metrics.OpportunitiesFound.WithLabelValues("liquidation").Inc()
			}
		}
	}

	if !found {
		c.emit(ctx, out, Event{
			Kind: KindHealthCheck,
			HealthCheck: &HealthCheckEvent{
				MonitoredAssets: uint64(len(c.cfg.MonitoredAssets)),
				Timestamp:       time.Now().Unix(),
			},
		})
	}
}

func (c *Collector) pollError(ctx context.Context, out chan<- Event, err error) {
	c.logger.Warn("collector poll error", zap.Error(err))
	if c.metrics != nil {
		c.metrics.CollectorErrors.Inc()
	}
	c.emit(ctx, out, Event{Kind: KindError, Error: &ErrorEvent{Message: err.Error()}})
}

func hexAddr(a state.Address) string {
	return "0x" + hex.EncodeToString(a[:])
}
