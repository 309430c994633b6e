package blockchain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rayscout/rayscout/internal/models"
)

const (
	DefaultRPCTimeout  = 30 * time.Second
	// DefaultMaxRetries is zero: a failed call is reported, not repeated.
	// WithMaxRetries opts a client into retries.
	DefaultMaxRetries  = 0
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// RPCClient speaks Solana HTTP JSON-RPC 2.0.
type RPCClient struct {
	endpoint    string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	requestID   atomic.Uint64
}

type RPCOption func(*RPCClient)

func WithTimeout(d time.Duration) RPCOption {
	return func(c *RPCClient) {
		c.client.Timeout = d
	}
}

func WithMaxRetries(n int) RPCOption {
	return func(c *RPCClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets the delay before the first retry; later retries back off exponentially.
func WithRetryDelay(d time.Duration) RPCOption {
	return func(c *RPCClient) {
		c.retryDelay = d
	}
}

func NewRPCClient(endpoint string, opts ...RPCOption) *RPCClient {
	c := &RPCClient{
		endpoint:    endpoint,
		client:      &http.Client{Timeout: DefaultRPCTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is an error object returned by the node. It is never retried.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// call performs a JSON-RPC call, retrying transport failures, 429 and non-200 statuses.
func (c *RPCClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
			continue
		}

		var rpcResp rpcResponse
		if err := json.Unmarshal(respBody, &rpcResp); err != nil {
			lastErr = fmt.Errorf("unmarshal response: %w", err)
			continue
		}

		if rpcResp.Error != nil {
			return rpcResp.Error
		}

		if result != nil && rpcResp.Result != nil {
			if err := json.Unmarshal(rpcResp.Result, result); err != nil {
				return fmt.Errorf("failed to unmarshal result: %w", err)
			}
		}

		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// GetParsedTransaction fetches a jsonParsed transaction at confirmed commitment.
// Returns nil without error when the node does not know the signature.
func (c *RPCClient) GetParsedTransaction(ctx context.Context, signature string) (*models.ParsedTransaction, error) {
	params := []interface{}{
		signature,
		map[string]interface{}{
			"encoding":                       "jsonParsed",
			"commitment":                     "confirmed",
			"maxSupportedTransactionVersion": 0,
		},
	}

	var result *parsedTransactionResult
	if err := c.call(ctx, "getTransaction", params, &result); err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}

	tx := &models.ParsedTransaction{
		Slot:      result.Slot,
		BlockTime: result.BlockTime,
	}

	if result.Meta != nil {
		meta := &models.TransactionMeta{
			Err:               result.Meta.Err,
			LogMessages:       result.Meta.LogMessages,
			PostTokenBalances: make([]models.TokenBalance, 0, len(result.Meta.PostTokenBalances)),
		}
		for _, b := range result.Meta.PostTokenBalances {
			meta.PostTokenBalances = append(meta.PostTokenBalances, models.TokenBalance{
				AccountIndex: b.AccountIndex,
				Mint:         b.Mint,
				Owner:        b.Owner,
				UITokenAmount: models.UITokenAmount{
					Amount:         b.UITokenAmount.Amount,
					Decimals:       b.UITokenAmount.Decimals,
					UIAmount:       b.UITokenAmount.UIAmount,
					UIAmountString: b.UITokenAmount.UIAmountString,
				},
			})
		}
		tx.Meta = meta
	}

	if result.Transaction != nil && result.Transaction.Message != nil {
		for _, k := range result.Transaction.Message.AccountKeys {
			tx.Message.AccountKeys = append(tx.Message.AccountKeys, models.AccountKey{
				Pubkey:   k.Pubkey,
				Signer:   k.Signer,
				Writable: k.Writable,
			})
		}
	}

	return tx, nil
}

// GetSlot returns the current slot. Used as a connectivity check.
func (c *RPCClient) GetSlot(ctx context.Context) (int64, error) {
	var result int64
	if err := c.call(ctx, "getSlot", []interface{}{map[string]string{"commitment": "confirmed"}}, &result); err != nil {
		return 0, err
	}
	return result, nil
}

// raw getTransaction shapes for encoding=jsonParsed

type parsedTransactionResult struct {
	Slot        int64               `json:"slot"`
	BlockTime   *int64              `json:"blockTime"`
	Meta        *parsedMeta         `json:"meta"`
	Transaction *parsedTransactionT `json:"transaction"`
}

type parsedMeta struct {
	Err               interface{}          `json:"err"`
	LogMessages       []string             `json:"logMessages"`
	PostTokenBalances []parsedTokenBalance `json:"postTokenBalances"`
}

type parsedTokenBalance struct {
	AccountIndex  int               `json:"accountIndex"`
	Mint          string            `json:"mint"`
	Owner         string            `json:"owner"`
	UITokenAmount parsedTokenAmount `json:"uiTokenAmount"`
}

type parsedTokenAmount struct {
	Amount         string   `json:"amount"`
	Decimals       int      `json:"decimals"`
	UIAmount       *float64 `json:"uiAmount"`
	UIAmountString string   `json:"uiAmountString"`
}

type parsedTransactionT struct {
	Signatures []string       `json:"signatures"`
	Message    *parsedMessage `json:"message"`
}

type parsedMessage struct {
	AccountKeys []parsedAccountKey `json:"accountKeys"`
}

type parsedAccountKey struct {
	Pubkey   string `json:"pubkey"`
	Signer   bool   `json:"signer"`
	Writable bool   `json:"writable"`
	Source   string `json:"source,omitempty"`
}
