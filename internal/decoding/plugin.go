package decoding

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"taxScope/internal/model"
)

// Plugin is a protocol module. Every plugin declares its counterparties and
// the rules bound to its contract addresses; the other rule kinds are
// optional interfaces.
type Plugin interface {
	Name() string
	Counterparties() []model.CounterpartyDetails
	AddressRules() []AddressRule
}

// GenericRuleProvider contributes rules tried against every log.
type GenericRuleProvider interface {
	DecodingRules() []GenericRule
}

// EnricherProvider contributes transfer enrichers.
type EnricherProvider interface {
	EnricherRules() []EnricherRule
}

// PostDecodingProvider contributes post-decoding rules.
type PostDecodingProvider interface {
	PostDecodingRules() []PostRule
}

// CounterpartyAddressProvider maps contract addresses to a counterparty, so
// post rules run when the user calls the protocol directly.
type CounterpartyAddressProvider interface {
	AddressesToCounterparties() map[common.Address]string
}

// Reloadable plugins hold remote state. Reload returns only the address
// rules that were not known before.
type Reloadable interface {
	Plugin
	Reload(ctx context.Context) ([]AddressRule, error)
}

// PluginDeps are the collaborators handed to plugin constructors.
type PluginDeps struct {
	ChainID model.ChainID
	Tokens  TokenResolver
	Caller  ContractCaller
	Redis   redis.Cmdable
	Logger  *zap.Logger
}

// PluginConstructor builds one plugin for a chain.
type PluginConstructor func(deps PluginDeps) (Plugin, error)
