package decoding

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"taxScope/internal/model"
)

// ErrNotToken is returned when a contract does not answer token getters.
var ErrNotToken = errors.New("contract is not a token")

// TokenResolver looks up token metadata for the chain being decoded.
type TokenResolver interface {
	Token(ctx context.Context, address common.Address, kind model.TokenKind) (model.TokenMeta, error)
}

// ContractCaller is the eth_call surface of the chain client.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// TokenMetaCache caches token metadata by address.
type TokenMetaCache struct {
	mu   sync.RWMutex
	data map[common.Address]model.TokenMeta
}

func NewTokenMetaCache() *TokenMetaCache {
	return &TokenMetaCache{data: make(map[common.Address]model.TokenMeta)}
}

func (c *TokenMetaCache) Get(address common.Address) (model.TokenMeta, bool) {
	c.mu.RLock()
	meta, ok := c.data[address]
	c.mu.RUnlock()
	return meta, ok
}

func (c *TokenMetaCache) Set(address common.Address, meta model.TokenMeta) {
	c.mu.Lock()
	c.data[address] = meta
	c.mu.Unlock()
}

// ChainTokenResolver fetches metadata with eth_call and caches the result.
type ChainTokenResolver struct {
	chainID model.ChainID
	caller  ContractCaller
	cache   *TokenMetaCache
	logger  *zap.Logger
}

func NewChainTokenResolver(chainID model.ChainID, caller ContractCaller, cache *TokenMetaCache, logger *zap.Logger) *ChainTokenResolver {
	if cache == nil {
		cache = NewTokenMetaCache()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChainTokenResolver{chainID: chainID, caller: caller, cache: cache, logger: logger}
}

// Token returns cached metadata or fetches it from chain.
func (r *ChainTokenResolver) Token(ctx context.Context, address common.Address, kind model.TokenKind) (model.TokenMeta, error) {
	if meta, ok := r.cache.Get(address); ok {
		return meta, nil
	}
	meta, err := FetchTokenMeta(ctx, r.caller, r.chainID, address, kind, r.logger)
	if err != nil {
		return meta, err
	}
	r.cache.Set(address, meta)
	return meta, nil
}

// FetchTokenMeta loads token metadata via ERC20 getter calls. ERC721 contracts
// have no decimals. Transport failures are returned as RemoteError, reverts
// as ErrNotToken.
func FetchTokenMeta(ctx context.Context, caller ContractCaller, chainID model.ChainID, token common.Address, kind model.TokenKind, logger *zap.Logger) (model.TokenMeta, error) {
	meta := model.TokenMeta{Address: token.Hex(), ChainID: chainID, Kind: kind}
	if caller == nil {
		return meta, fmt.Errorf("contract caller is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	stringABI, err := tokenMetaStringABI.Get()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 string abi: %w", err)
	}
	bytes32ABI, err := tokenMetaBytes32ABI.Get()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 bytes32 abi: %w", err)
	}

	call := func(method string, parsed abi.ABI) ([]interface{}, error) {
		data, err := parsed.Pack(method)
		if err != nil {
			return nil, fmt.Errorf("pack %s: %w", method, err)
		}
		msg := ethereum.CallMsg{To: &token, Data: data}
		resp, err := caller.CallContract(ctx, msg, nil)
		if err != nil {
			var rpcErr rpc.Error
			if errors.As(err, &rpcErr) {
				return nil, fmt.Errorf("%w: call %s: %v", ErrNotToken, method, err)
			}
			return nil, NewRemoteError("call "+method, err)
		}
		values, err := parsed.Unpack(method, resp)
		if err != nil {
			return nil, fmt.Errorf("%w: unpack %s: %v", ErrNotToken, method, err)
		}
		return values, nil
	}

	if kind != model.TokenERC721 {
		values, err := call("decimals", stringABI)
		if err != nil {
			return meta, err
		}
		decimals, ok := values[0].(uint8)
		if !ok {
			return meta, fmt.Errorf("%w: unsupported decimals type %T", ErrNotToken, values[0])
		}
		meta.Decimals = decimals
	}

	if values, err := call("symbol", stringABI); err == nil {
		if symbol, ok := values[0].(string); ok {
			meta.Symbol = symbol
		}
	} else if errors.Is(err, ErrRemote) {
		return meta, err
	} else if values, err := call("symbol", bytes32ABI); err == nil {
		if symbol, ok := bytes32ToString(values[0]); ok {
			meta.Symbol = symbol
		}
	} else {
		logger.Debug("symbol call failed", zap.String("token", token.Hex()), zap.Error(err))
	}

	if values, err := call("name", stringABI); err == nil {
		if name, ok := values[0].(string); ok {
			meta.Name = name
		}
	} else if values, err := call("name", bytes32ABI); err == nil {
		if name, ok := bytes32ToString(values[0]); ok {
			meta.Name = name
		}
	} else {
		logger.Debug("name call failed", zap.String("token", token.Hex()), zap.Error(err))
	}

	return meta, nil
}

func bytes32ToString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case [32]byte:
		return string(bytes.TrimRight(v[:], "\x00")), true
	case []byte:
		return string(bytes.TrimRight(v, "\x00")), true
	default:
		return "", false
	}
}

// StaticTokens is a fixed resolver, handy for tests and offline decoding.
type StaticTokens map[common.Address]model.TokenMeta

func (s StaticTokens) Token(_ context.Context, address common.Address, kind model.TokenKind) (model.TokenMeta, error) {
	meta, ok := s[address]
	if !ok {
		return model.TokenMeta{}, fmt.Errorf("%w: %s", ErrNotToken, address.Hex())
	}
	if meta.Kind == "" {
		meta.Kind = kind
	}
	return meta, nil
}
