package protocols

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"taxScope/internal/accounting"
	"taxScope/internal/decoding"
	"taxScope/internal/model"
)

const CounterpartyUniswapV3 = "uniswap-v3"

// errNotPool marks contracts that emit a V3 topic but do not answer the pool
// getters.
var errNotPool = errors.New("contract is not a v3 pool")

// PoolMeta is the immutable part of a V3 pool.
type PoolMeta struct {
	Token0 common.Address
	Token1 common.Address
	Fee    uint32
}

// PoolMetaCache caches pool metadata by address.
type PoolMetaCache struct {
	mu   sync.RWMutex
	data map[common.Address]PoolMeta
}

func NewPoolMetaCache() *PoolMetaCache {
	return &PoolMetaCache{data: make(map[common.Address]PoolMeta)}
}

func (c *PoolMetaCache) Get(address common.Address) (PoolMeta, bool) {
	c.mu.RLock()
	meta, ok := c.data[address]
	c.mu.RUnlock()
	return meta, ok
}

func (c *PoolMetaCache) Set(address common.Address, meta PoolMeta) {
	c.mu.Lock()
	c.data[address] = meta
	c.mu.Unlock()
}

// UniswapV3 decodes pool swaps and liquidity changes. Pool tokens are read
// from chain once per pool.
type UniswapV3 struct {
	chainID model.ChainID
	caller  decoding.ContractCaller
	pools   *PoolMetaCache
	logger  *zap.Logger
}

func NewUniswapV3(deps decoding.PluginDeps) (decoding.Plugin, error) {
	return &UniswapV3{
		chainID: deps.ChainID,
		caller:  deps.Caller,
		pools:   NewPoolMetaCache(),
		logger:  pluginLogger(deps, CounterpartyUniswapV3),
	}, nil
}

func (u *UniswapV3) Name() string { return CounterpartyUniswapV3 }

func (u *UniswapV3) Counterparties() []model.CounterpartyDetails {
	return []model.CounterpartyDetails{{Identifier: CounterpartyUniswapV3, Label: "Uniswap V3", Image: "uniswap.svg"}}
}

func (u *UniswapV3) AddressRules() []decoding.AddressRule { return nil }

func (u *UniswapV3) DecodingRules() []decoding.GenericRule {
	return []decoding.GenericRule{{Name: "uniswap-v3-pool", Handler: u.decodePoolEvent}}
}

func (u *UniswapV3) EventSettings(accounting.ReportSettings) map[string]accounting.TxEventSettings {
	neutralOut := accounting.TxEventSettings{Method: accounting.MethodSpend}
	neutralIn := accounting.TxEventSettings{Method: accounting.MethodAcquisition}
	return map[string]accounting.TxEventSettings{
		model.TypeIdentifier(model.EventTypeDeposit, model.EventSubtypeDepositAsset, CounterpartyUniswapV3):   neutralOut,
		model.TypeIdentifier(model.EventTypeWithdrawal, model.EventSubtypeRemoveAsset, CounterpartyUniswapV3): neutralIn,
	}
}

func (u *UniswapV3) decodePoolEvent(dctx *decoding.DecoderContext) (decoding.DecodingOutput, error) {
	log := dctx.Log
	var (
		name  string
		claim func(pool PoolMeta) int
	)
	switch log.Topic0() {
	case v3SwapTopic:
		name = "Swap"
		claim = func(pool PoolMeta) int {
			return claimSwapLegs(dctx.Session, dctx.DecodedEvents, log.Address, CounterpartyUniswapV3, u.poolAssets(pool))
		}
	case v3MintTopic:
		name = "Mint"
		claim = func(pool PoolMeta) int {
			return u.claimLiquidity(dctx.DecodedEvents, log.Address, pool, model.EventTypeSpend, model.Classification{
				EventType:    model.EventTypeDeposit,
				EventSubtype: model.EventSubtypeDepositAsset,
				Counterparty: CounterpartyUniswapV3,
			})
		}
	case v3CollectTopic:
		name = "Collect"
		claim = func(pool PoolMeta) int {
			return u.claimLiquidity(dctx.DecodedEvents, log.Address, pool, model.EventTypeReceive, model.Classification{
				EventType:    model.EventTypeWithdrawal,
				EventSubtype: model.EventSubtypeRemoveAsset,
				Counterparty: CounterpartyUniswapV3,
			})
		}
	default:
		return decoding.NoOutput, nil
	}

	if _, err := unpackLog(v3PoolABI, name, log); err != nil {
		return decoding.NoOutput, err
	}
	pool, err := u.poolMeta(dctx.Context, log.Address)
	if errors.Is(err, errNotPool) {
		u.logger.Debug("v3 topic from non pool contract", zap.String("address", log.Address.Hex()), zap.Error(err))
		return decoding.NoOutput, nil
	}
	if err != nil {
		return decoding.NoOutput, err
	}
	if claim(pool) == 0 {
		return decoding.NoOutput, nil
	}
	return decoding.DecodingOutput{MatchedCounterparty: CounterpartyUniswapV3, ProcessSwaps: name == "Swap"}, nil
}

func (u *UniswapV3) poolAssets(pool PoolMeta) func(string) bool {
	token0 := erc20Asset(u.chainID, pool.Token0)
	token1 := erc20Asset(u.chainID, pool.Token1)
	return func(asset string) bool {
		return asset == token0 || asset == token1
	}
}

func (u *UniswapV3) claimLiquidity(events []*model.HistoryEvent, pool common.Address, meta PoolMeta, from model.HistoryEventType, c model.Classification) int {
	allow := u.poolAssets(meta)
	claimed := 0
	for _, event := range events {
		if event.EventType != from || event.EventSubtype != model.EventSubtypeNone {
			continue
		}
		if event.Address == nil || *event.Address != pool || !allow(event.Asset) {
			continue
		}
		if event.Claim(c) {
			claimed++
		}
	}
	return claimed
}

func (u *UniswapV3) poolMeta(ctx context.Context, pool common.Address) (PoolMeta, error) {
	if meta, ok := u.pools.Get(pool); ok {
		return meta, nil
	}
	meta, err := FetchPoolMeta(ctx, u.caller, pool)
	if err != nil {
		return PoolMeta{}, err
	}
	u.pools.Set(pool, meta)
	return meta, nil
}

// FetchPoolMeta loads token0, token1 and fee of a V3 pool.
func FetchPoolMeta(ctx context.Context, caller decoding.ContractCaller, pool common.Address) (PoolMeta, error) {
	if caller == nil {
		return PoolMeta{}, fmt.Errorf("contract caller is nil")
	}
	poolABI, err := v3PoolABI.Get()
	if err != nil {
		return PoolMeta{}, fmt.Errorf("parse pool abi: %w", err)
	}

	values, err := callPoolMethod(ctx, caller, pool, poolABI, "token0")
	if err != nil {
		return PoolMeta{}, err
	}
	token0, err := asAddress(values[0])
	if err != nil {
		return PoolMeta{}, fmt.Errorf("token0: %w", err)
	}

	values, err = callPoolMethod(ctx, caller, pool, poolABI, "token1")
	if err != nil {
		return PoolMeta{}, err
	}
	token1, err := asAddress(values[0])
	if err != nil {
		return PoolMeta{}, fmt.Errorf("token1: %w", err)
	}

	values, err = callPoolMethod(ctx, caller, pool, poolABI, "fee")
	if err != nil {
		return PoolMeta{}, err
	}
	fee, err := asBigInt(values[0])
	if err != nil {
		return PoolMeta{}, fmt.Errorf("fee: %w", err)
	}

	return PoolMeta{Token0: token0, Token1: token1, Fee: uint32(fee.Uint64())}, nil
}

func callPoolMethod(ctx context.Context, caller decoding.ContractCaller, pool common.Address, poolABI abi.ABI, method string) ([]interface{}, error) {
	data, err := poolABI.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	resp, err := caller.CallContract(ctx, ethereum.CallMsg{To: &pool, Data: data}, nil)
	if err != nil {
		var rpcErr rpc.Error
		if errors.As(err, &rpcErr) {
			return nil, fmt.Errorf("%w: call %s: %v", errNotPool, method, err)
		}
		return nil, decoding.NewRemoteError("call "+method, err)
	}
	values, err := poolABI.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("%w: unpack %s: %v", errNotPool, method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: empty %s result", errNotPool, method)
	}
	return values, nil
}
