package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"taxScope/internal/model"
)

// ErrPending is returned for transactions that are not mined yet.
var ErrPending = errors.New("transaction is pending")

// Client wraps go-ethereum RPC and provides the chain data the decoder needs.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client

	mu      sync.RWMutex
	tsCache map[uint64]uint64
	chainID *big.Int
}

// NewClient creates a new chain client from the RPC URL.
func NewClient(ctx context.Context, rpcURL string) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}

	return &Client{
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
		tsCache:   make(map[uint64]uint64),
	}, nil
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// ChainID returns the chain ID, asking the node once.
func (c *Client) ChainID(ctx context.Context) (model.ChainID, error) {
	c.mu.RLock()
	cached := c.chainID
	c.mu.RUnlock()
	if cached != nil {
		return model.ChainID(cached.Uint64()), nil
	}

	id, err := c.ethClient.ChainID(ctx)
	if err != nil {
		return 0, err
	}
	if !id.IsUint64() {
		return 0, fmt.Errorf("chain id does not fit in uint64: %s", id)
	}
	c.mu.Lock()
	c.chainID = id
	c.mu.Unlock()
	return model.ChainID(id.Uint64()), nil
}

// LatestBlockNumber returns the latest block number.
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	return c.ethClient.BlockNumber(ctx)
}

// BlockTimestamp returns the block timestamp, using an in-memory cache.
func (c *Client) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	c.mu.RLock()
	ts, ok := c.tsCache[number]
	c.mu.RUnlock()
	if ok {
		return ts, nil
	}

	header, err := c.ethClient.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return 0, err
	}

	ts = header.Time
	c.mu.Lock()
	c.tsCache[number] = ts
	c.mu.Unlock()

	return ts, nil
}

// FilterLogs returns logs in the given range matching addresses and topics.
func (c *Client) FilterLogs(
	ctx context.Context,
	fromBlock uint64,
	toBlock uint64,
	addresses []common.Address,
	topics [][]common.Hash,
) ([]types.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: addresses,
		Topics:    topics,
	}
	return c.ethClient.FilterLogs(ctx, query)
}

// CallContract performs an eth_call for a contract method.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return c.ethClient.CallContract(ctx, msg, blockNumber)
}

// FetchBundle loads a mined transaction with its receipt and block time.
func (c *Client) FetchBundle(ctx context.Context, hash common.Hash) (model.TxBundle, error) {
	chainID, err := c.ChainID(ctx)
	if err != nil {
		return model.TxBundle{}, fmt.Errorf("chain id: %w", err)
	}
	tx, pending, err := c.ethClient.TransactionByHash(ctx, hash)
	if err != nil {
		return model.TxBundle{}, fmt.Errorf("transaction %s: %w", hash.Hex(), err)
	}
	if pending {
		return model.TxBundle{}, fmt.Errorf("transaction %s: %w", hash.Hex(), ErrPending)
	}
	receipt, err := c.ethClient.TransactionReceipt(ctx, hash)
	if err != nil {
		return model.TxBundle{}, fmt.Errorf("receipt %s: %w", hash.Hex(), err)
	}
	ts, err := c.BlockTimestamp(ctx, receipt.BlockNumber.Uint64())
	if err != nil {
		return model.TxBundle{}, fmt.Errorf("block %d timestamp: %w", receipt.BlockNumber.Uint64(), err)
	}
	from, err := c.sender(ctx, tx, receipt)
	if err != nil {
		return model.TxBundle{}, fmt.Errorf("sender of %s: %w", hash.Hex(), err)
	}
	return ToBundle(chainID, tx, receipt, from, ts), nil
}

// sender recovers the signer locally and asks the node only for transaction
// types the local signer does not know.
func (c *Client) sender(ctx context.Context, tx *types.Transaction, receipt *types.Receipt) (common.Address, error) {
	if from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx); err == nil {
		return from, nil
	}
	return c.ethClient.TransactionSender(ctx, tx, receipt.BlockHash, receipt.TransactionIndex)
}
