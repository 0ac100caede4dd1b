// Package chain provides JSON-RPC blockchain access for the settlement
// pipeline: log and receipt fetching, contract reads, and the airdrop
// deployment capability.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/time/rate"

	apperrors "github.com/rewards-settlement/internal/errors"
	"github.com/rewards-settlement/internal/types"
)

// ErrNotFound is returned when the chain has no record of the requested
// entity. RPC transport failures are surfaced as ChainUnavailable instead.
var ErrNotFound = errors.New("not found on chain")

// Client is the JSON-RPC capability the settlement core depends on.
type Client interface {
	FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]ethtypes.Log, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*ethtypes.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// EthClient implements Client over a go-ethereum RPC connection with bounded
// per-call timeouts and a rate limiter that caps RPC burst rate. There is no
// automatic retry: a failed call surfaces immediately and the caller's
// watermark-based resumability substitutes for retry logic.
type EthClient struct {
	chainID types.ChainID
	client  *ethclient.Client
	limiter *rate.Limiter
	timeout time.Duration
}

// EthClientConfig holds configuration for creating an EthClient.
type EthClientConfig struct {
	ChainID      types.ChainID
	RPCURL       string
	RPCTimeout   time.Duration
	RatePerSec   int
}

// NewEthClient dials the RPC endpoint and wraps it with rate limiting.
func NewEthClient(cfg *EthClientConfig) (*EthClient, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url cannot be empty for chain %s", cfg.ChainID)
	}

	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, apperrors.NewChainUnavailableError("dial", err)
	}

	timeout := cfg.RPCTimeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	perSec := cfg.RatePerSec
	if perSec <= 0 {
		perSec = 10
	}

	return &EthClient{
		chainID: cfg.ChainID,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(perSec), perSec),
		timeout: timeout,
	}, nil
}

// Close releases the underlying RPC connection.
func (c *EthClient) Close() {
	c.client.Close()
}

func (c *EthClient) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := fn(callCtx)
	if err == nil {
		return nil
	}
	if errors.Is(err, ethereum.NotFound) {
		return ErrNotFound
	}
	return apperrors.NewChainUnavailableError(op, err)
}

// FilterLogs fetches logs matching the query via eth_getLogs.
func (c *EthClient) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]ethtypes.Log, error) {
	var logs []ethtypes.Log
	err := c.call(ctx, "eth_getLogs", func(ctx context.Context) error {
		var err error
		logs, err = c.client.FilterLogs(ctx, query)
		return err
	})
	return logs, err
}

// TransactionByHash fetches a transaction body by hash.
func (c *EthClient) TransactionByHash(ctx context.Context, hash common.Hash) (*ethtypes.Transaction, bool, error) {
	var tx *ethtypes.Transaction
	var pending bool
	err := c.call(ctx, "eth_getTransactionByHash", func(ctx context.Context) error {
		var err error
		tx, pending, err = c.client.TransactionByHash(ctx, hash)
		return err
	})
	return tx, pending, err
}

// TransactionReceipt fetches a transaction receipt by hash.
func (c *EthClient) TransactionReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	var receipt *ethtypes.Receipt
	err := c.call(ctx, "eth_getTransactionReceipt", func(ctx context.Context) error {
		var err error
		receipt, err = c.client.TransactionReceipt(ctx, hash)
		return err
	})
	return receipt, err
}

// HeaderByNumber fetches a block header, used for block timestamps.
func (c *EthClient) HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error) {
	var header *ethtypes.Header
	err := c.call(ctx, "eth_getBlockByNumber", func(ctx context.Context) error {
		var err error
		header, err = c.client.HeaderByNumber(ctx, number)
		return err
	})
	return header, err
}

// CallContract executes a read-only contract call at the given block
// (nil for latest).
func (c *EthClient) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	var out []byte
	err := c.call(ctx, "eth_call", func(ctx context.Context) error {
		var err error
		out, err = c.client.CallContract(ctx, msg, blockNumber)
		return err
	})
	return out, err
}

// BlockNumber returns the latest block number.
func (c *EthClient) BlockNumber(ctx context.Context) (uint64, error) {
	var n uint64
	err := c.call(ctx, "eth_blockNumber", func(ctx context.Context) error {
		var err error
		n, err = c.client.BlockNumber(ctx)
		return err
	})
	return n, err
}
