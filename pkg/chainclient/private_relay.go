package chainclient

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/ridgeline-labs/chainrunner/pkg/logger"
)

// PrivateRelayClient submits bundles to a Flashbots-dialect relay,
// bypassing the public mempool. Grounded on
// crypto-wallet/internal/defi/flashbots_client.go.
type PrivateRelayClient struct {
	relayURL   string
	httpClient *http.Client
	logger     *logger.Logger
	maxRetries int
	retryDelay time.Duration
}

// NewPrivateRelayClient builds a client against relayURL, defaulting to
// the public Flashbots relay when unset.
func NewPrivateRelayClient(relayURL string, log *logger.Logger) *PrivateRelayClient {
	if relayURL == "" {
		relayURL = "https://relay.flashbots.net"
	}
	return &PrivateRelayClient{
		relayURL:   relayURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     log.Named("private-relay"),
		maxRetries: 3,
		retryDelay: time.Second,
	}
}

type bundleRequest struct {
	Method string        `json:"method"`
	Params []any         `json:"params"`
	ID     int           `json:"id"`
	JSONRPC string       `json:"jsonrpc"`
}

type bundleParams struct {
	Txs               []string `json:"txs"`
	BlockNumber       string   `json:"blockNumber"`
	RevertingTxHashes []string `json:"revertingTxHashes,omitempty"`
}

type bundleResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	ID int `json:"id"`
}

// SendPrivate wraps tx in a single-tx bundle targeting the block in
// hints["target_block"] (a uint64; block 0 when absent) and submits it
// via eth_sendBundle. No other hint key, including a victim tx hash, is
// sent to the relay.
func (p *PrivateRelayClient) SendPrivate(ctx context.Context, tx *types.Transaction, hints map[string]any) (string, error) {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("marshal transaction: %w", err)
	}
	signedHex := "0x" + hex.EncodeToString(raw)

	blockNum, _ := hints["target_block"].(uint64)

	params := bundleParams{
		Txs:         []string{signedHex},
		BlockNumber: fmt.Sprintf("0x%x", blockNum),
	}

	p.logger.Info("submitting private bundle",
		zap.String("tx_hash", tx.Hash().Hex()),
		zap.Uint64("target_block", blockNum))

	resp, err := p.doWithRetry(ctx, "eth_sendBundle", []any{params})
	if err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", fmt.Errorf("relay rejected bundle: %s", resp.Error.Message)
	}

	var result struct {
		BundleHash string `json:"bundleHash"`
	}
	_ = json.Unmarshal(resp.Result, &result)
	return result.BundleHash, nil
}

func (p *PrivateRelayClient) doWithRetry(ctx context.Context, method string, params []any) (*bundleResponse, error) {
	req := bundleRequest{Method: method, Params: params, ID: 1, JSONRPC: "2.0"}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal relay request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		resp, err := p.do(ctx, body)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		p.logger.Warn("relay request failed", zap.Int("attempt", attempt), zap.Error(err))
		if attempt == p.maxRetries {
			break
		}
		select {
		case <-time.After(p.retryDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("relay request failed after %d attempts: %w", p.maxRetries+1, lastErr)
}

func (p *PrivateRelayClient) do(ctx context.Context, body []byte) (*bundleResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.relayURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}

	var resp bundleResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode relay response: %w", err)
	}
	return &resp, nil
}
