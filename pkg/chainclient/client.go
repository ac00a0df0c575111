// Package chainclient is the concrete implementation of spec.md §6's
// "Chain client (consumed)" abstraction: synchronous read/write access
// to a blockchain node, wrapped with retry/failover the way
// crypto-wallet/internal/blockchain/rpc/client.go wraps ethclient.
package chainclient

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/ridgeline-labs/chainrunner/pkg/logger"
)

// ChainClient is the minimal abstraction the collector, strategy, and
// executor consume. A production engine backs it with Client below;
// tests back it with a fake.
type ChainClient interface {
	BlockNumber(ctx context.Context) (uint64, error)
	GasPrice(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	SendRawTransaction(ctx context.Context, tx *types.Transaction) error
}

// PrivateSubmitter is the optional protected-relay submission path.
type PrivateSubmitter interface {
	SendPrivate(ctx context.Context, tx *types.Transaction, hints map[string]any) (string, error)
}

// Config controls retry/failover behavior.
type Config struct {
	Endpoints  []string      `yaml:"endpoints"`
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
	Timeout    time.Duration `yaml:"timeout"`
}

// Client is a retrying, multi-endpoint ChainClient backed by
// go-ethereum's ethclient, grounded on the corpus's NodeManager
// pattern but trimmed to a simple round-robin over every endpoint that
// dialed successfully; endpoints are not health-checked.
type Client struct {
	logger  *logger.Logger
	cfg     Config
	clients []*ethclient.Client
	next    int
}

// Dial connects to every configured endpoint; at least one must
// succeed.
func Dial(ctx context.Context, cfg Config, log *logger.Logger) (*Client, error) {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	var clients []*ethclient.Client
	var lastErr error
	for _, ep := range cfg.Endpoints {
		c, err := ethclient.DialContext(ctx, ep)
		if err != nil {
			lastErr = err
			continue
		}
		clients = append(clients, c)
	}
	if len(clients) == 0 {
		return nil, fmt.Errorf("dial chain client: no endpoint reachable: %w", lastErr)
	}

	return &Client{
		logger:  log.Named("chain-client"),
		cfg:     cfg,
		clients: clients,
	}, nil
}

// execute runs fn against endpoints in round-robin order, retrying up
// to cfg.MaxRetries times before giving up; the delay between attempts
// starts at cfg.RetryDelay and doubles after each failure. Every RPC
// call is a suspension point (spec.md §5); nothing else yields.
func (c *Client) execute(ctx context.Context, op string, fn func(context.Context, *ethclient.Client) error) error {
	var lastErr error
	delay := c.cfg.RetryDelay
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		client := c.clients[c.next%len(c.clients)]
		c.next++

		callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		err := fn(callCtx, client)
		cancel()

		if err == nil {
			return nil
		}
		lastErr = err
		c.logger.Warn("rpc call failed", zap.String("op", op), zap.Int("attempt", attempt), zap.Error(err))

		if attempt == c.cfg.MaxRetries {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, c.cfg.MaxRetries+1, lastErr)
}

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var n uint64
	err := c.execute(ctx, "BlockNumber", func(callCtx context.Context, cl *ethclient.Client) error {
		v, err := cl.BlockNumber(callCtx)
		if err != nil {
			return err
		}
		n = v
		return nil
	})
	return n, err
}

func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	var p *big.Int
	err := c.execute(ctx, "GasPrice", func(callCtx context.Context, cl *ethclient.Client) error {
		v, err := cl.SuggestGasPrice(callCtx)
		if err != nil {
			return err
		}
		p = v
		return nil
	})
	return p, err
}

func (c *Client) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	var bal *big.Int
	err := c.execute(ctx, "BalanceAt", func(callCtx context.Context, cl *ethclient.Client) error {
		v, err := cl.BalanceAt(callCtx, account, nil)
		if err != nil {
			return err
		}
		bal = v
		return nil
	})
	return bal, err
}

func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	var n uint64
	err := c.execute(ctx, "PendingNonceAt", func(callCtx context.Context, cl *ethclient.Client) error {
		v, err := cl.PendingNonceAt(callCtx, account)
		if err != nil {
			return err
		}
		n = v
		return nil
	})
	return n, err
}

func (c *Client) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	var tx *types.Transaction
	var pending bool
	err := c.execute(ctx, "TransactionByHash", func(callCtx context.Context, cl *ethclient.Client) error {
		t, p, err := cl.TransactionByHash(callCtx, hash)
		if err != nil {
			return err
		}
		tx, pending = t, p
		return nil
	})
	return tx, pending, err
}

func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	var rcpt *types.Receipt
	err := c.execute(ctx, "TransactionReceipt", func(callCtx context.Context, cl *ethclient.Client) error {
		r, err := cl.TransactionReceipt(callCtx, hash)
		if err != nil {
			return err
		}
		rcpt = r
		return nil
	})
	return rcpt, err
}

func (c *Client) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	var logs []types.Log
	err := c.execute(ctx, "FilterLogs", func(callCtx context.Context, cl *ethclient.Client) error {
		l, err := cl.FilterLogs(callCtx, q)
		if err != nil {
			return err
		}
		logs = l
		return nil
	})
	return logs, err
}

func (c *Client) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	var out []byte
	err := c.execute(ctx, "CallContract", func(callCtx context.Context, cl *ethclient.Client) error {
		b, err := cl.CallContract(callCtx, call, blockNumber)
		if err != nil {
			return err
		}
		out = b
		return nil
	})
	return out, err
}

func (c *Client) SendRawTransaction(ctx context.Context, tx *types.Transaction) error {
	return c.execute(ctx, "SendRawTransaction", func(callCtx context.Context, cl *ethclient.Client) error {
		return cl.SendTransaction(callCtx, tx)
	})
}

// Close closes every underlying connection.
func (c *Client) Close() {
	for _, cl := range c.clients {
		cl.Close()
	}
}
