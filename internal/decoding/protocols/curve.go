package protocols

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"taxScope/internal/decoding"
	"taxScope/internal/model"
)

const CounterpartyCurve = "curve"

// CurvePoolsKey is the Redis set holding the known pool addresses of a chain.
func CurvePoolsKey(chainID model.ChainID) string {
	return fmt.Sprintf("curve:pools:%d", chainID)
}

// Curve decodes exchanges in curve pools. The pool list lives in Redis and
// grows at runtime, so the plugin is reloadable.
type Curve struct {
	chainID model.ChainID
	redis   redis.Cmdable
	logger  *zap.Logger

	mu    sync.RWMutex
	pools map[common.Address]struct{}
}

func NewCurve(deps decoding.PluginDeps) (decoding.Plugin, error) {
	return &Curve{
		chainID: deps.ChainID,
		redis:   deps.Redis,
		logger:  pluginLogger(deps, CounterpartyCurve),
		pools:   make(map[common.Address]struct{}),
	}, nil
}

func (c *Curve) Name() string { return CounterpartyCurve }

func (c *Curve) Counterparties() []model.CounterpartyDetails {
	return []model.CounterpartyDetails{{Identifier: CounterpartyCurve, Label: "Curve.fi", Image: "curve.png"}}
}

func (c *Curve) AddressRules() []decoding.AddressRule {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rules := make([]decoding.AddressRule, 0, len(c.pools))
	for _, pool := range sortedAddresses(c.pools) {
		rules = append(rules, c.poolRule(pool))
	}
	return rules
}

// Reload reads the pool set and returns rules for pools not seen before.
func (c *Curve) Reload(ctx context.Context) ([]decoding.AddressRule, error) {
	if c.redis == nil {
		return nil, nil
	}
	key := CurvePoolsKey(c.chainID)
	members, err := c.redis.SMembers(ctx, key).Result()
	if err != nil {
		return nil, decoding.NewRemoteError("smembers "+key, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	fresh := make(map[common.Address]struct{})
	for _, member := range members {
		if !common.IsHexAddress(member) {
			c.logger.Warn("skip invalid curve pool address", zap.String("member", member))
			continue
		}
		pool := common.HexToAddress(member)
		if _, ok := c.pools[pool]; ok {
			continue
		}
		c.pools[pool] = struct{}{}
		fresh[pool] = struct{}{}
	}

	rules := make([]decoding.AddressRule, 0, len(fresh))
	for _, pool := range sortedAddresses(fresh) {
		rules = append(rules, c.poolRule(pool))
	}
	c.logger.Info("curve pools reloaded", zap.Int("pools", len(c.pools)), zap.Int("new", len(rules)))
	return rules, nil
}

// IsPool reports whether address is a known pool.
func (c *Curve) IsPool(address common.Address) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.pools[address]
	return ok
}

func (c *Curve) poolRule(pool common.Address) decoding.AddressRule {
	return decoding.AddressRule{Address: pool, Name: "curve-pool", Handler: c.decodeExchange}
}

func (c *Curve) decodeExchange(dctx *decoding.DecoderContext) (decoding.DecodingOutput, error) {
	log := dctx.Log
	if log.Topic0() != curveExchangeTopic || !c.IsPool(log.Address) {
		return decoding.NoOutput, nil
	}
	if _, err := unpackLog(curvePoolABI, "TokenExchange", log); err != nil {
		return decoding.NoOutput, err
	}
	buyer, err := decoding.TopicAddress(log.Topics, 1)
	if err != nil {
		return decoding.NoOutput, err
	}
	if !dctx.Session.IsTracked(buyer) && !dctx.Session.IsTracked(dctx.Transaction.FromAddress) {
		return decoding.NoOutput, nil
	}
	if claimSwapLegs(dctx.Session, dctx.DecodedEvents, log.Address, CounterpartyCurve, nil) == 0 {
		return decoding.NoOutput, nil
	}
	return decoding.DecodingOutput{MatchedCounterparty: CounterpartyCurve, ProcessSwaps: true}, nil
}

func sortedAddresses(set map[common.Address]struct{}) []common.Address {
	out := make([]common.Address, 0, len(set))
	for addr := range set {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hex() < out[j].Hex() })
	return out
}
