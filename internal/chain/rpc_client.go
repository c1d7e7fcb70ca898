package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/rpcclient"
	"golang.org/x/time/rate"

	"github.com/shielded-scanner/internal/circuitbreaker"
	scanerrors "github.com/shielded-scanner/internal/errors"
	"github.com/shielded-scanner/internal/retry"
)

// RPCClient implements Client over the node's bitcoind-style JSON-RPC.
// All calls go through RawRequest because the verbose results carry
// shielded fields the typed btcjson commands do not decode. Calls are
// rate limited against the node and retried on transient failure.
type RPCClient struct {
	client  *rpcclient.Client
	limiter *rate.Limiter
	retry   *retry.Config
	breaker *circuitbreaker.CircuitBreaker
}

// RPCClientConfig holds configuration for the RPC client
type RPCClientConfig struct {
	Host     string
	User     string
	Password string
	// MaxRequestsPerSecond caps outbound calls; <= 0 disables limiting
	MaxRequestsPerSecond int
	// Retry overrides the default transient-failure retry policy
	Retry *retry.Config
}

// NewRPCClient creates a new chain RPC client
func NewRPCClient(cfg *RPCClientConfig) (*RPCClient, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("rpc host cannot be empty")
	}

	client, err := rpcclient.New(&rpcclient.ConnConfig{
		Host:         cfg.Host,
		User:         cfg.User,
		Pass:         cfg.Password,
		HTTPPostMode: true,
		DisableTLS:   true,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create rpc client: %w", err)
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.MaxRequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.MaxRequestsPerSecond), cfg.MaxRequestsPerSecond)
	}

	retryCfg := cfg.Retry
	if retryCfg == nil {
		retryCfg = retry.DefaultConfig()
	}

	return &RPCClient{
		client:  client,
		limiter: limiter,
		retry:   retryCfg,
		breaker: circuitbreaker.New(&circuitbreaker.Config{Name: "chain-rpc"}),
	}, nil
}

// Shutdown releases the underlying RPC connection
func (c *RPCClient) Shutdown() {
	c.client.Shutdown()
}

// call issues a raw JSON-RPC request with rate limiting and retry, behind
// a circuit breaker so a downed node fails fast instead of eating a full
// retry cycle per request. The unsupported-method class short-circuits the
// retry loop: repeating the call cannot make the node grow the method.
func (c *RPCClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	rawParams := make([]json.RawMessage, 0, len(params))
	for _, p := range params {
		encoded, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to marshal %s param: %w", method, err)
		}
		rawParams = append(rawParams, encoded)
	}

	var raw json.RawMessage
	err := c.breaker.Execute(ctx, func() error {
		return retry.DoWithConfig(ctx, c.retry, func(ctx context.Context, attempt int) error {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}

			res, err := c.client.RawRequest(method, rawParams)
			if err != nil {
				if mapped := mapRPCError(method, err); scanerrors.IsMethodUnsupported(mapped) {
					// not transient - stop the retry loop immediately
					raw = nil
					return nil
				} else if mapped != nil {
					return mapped
				}
			}

			raw = res
			return nil
		})
	})
	if err != nil {
		return &ClientError{Op: method, Err: err}
	}

	if raw == nil {
		return &ClientError{Op: method, Err: scanerrors.ErrMethodUnsupported}
	}

	if err := json.Unmarshal(raw, result); err != nil {
		return &ClientError{Op: method, Err: fmt.Errorf("failed to decode result: %w", err)}
	}

	return nil
}

// mapRPCError translates node error codes into the client error taxonomy
func mapRPCError(method string, err error) error {
	var rpcErr *btcjson.RPCError
	if errors.As(err, &rpcErr) && rpcErr.Code == btcjson.ErrRPCMethodNotFound.Code {
		return fmt.Errorf("%s: %w", method, scanerrors.ErrMethodUnsupported)
	}
	return err
}

// GetBlockCount returns the current chain height
func (c *RPCClient) GetBlockCount(ctx context.Context) (int64, error) {
	var count int64
	if err := c.call(ctx, "getblockcount", nil, &count); err != nil {
		return 0, err
	}
	return count, nil
}

// GetBlockHash returns the block hash at the given height
func (c *RPCClient) GetBlockHash(ctx context.Context, height int64) (string, error) {
	var hash string
	if err := c.call(ctx, "getblockhash", []interface{}{height}, &hash); err != nil {
		return "", err
	}
	return hash, nil
}

// GetBlock returns the verbose block for the given hash.
// Verbosity 1 lists transaction ids without decoding each transaction.
func (c *RPCClient) GetBlock(ctx context.Context, hash string) (*Block, error) {
	var block Block
	if err := c.call(ctx, "getblock", []interface{}{hash, 1}, &block); err != nil {
		return nil, err
	}
	return &block, nil
}

// GetRawTransaction returns the verbose raw transaction for the given txid
func (c *RPCClient) GetRawTransaction(ctx context.Context, txid string) (*RawTransaction, error) {
	var tx RawTransaction
	if err := c.call(ctx, "getrawtransaction", []interface{}{txid, 1}, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

var _ Client = (*RPCClient)(nil)
