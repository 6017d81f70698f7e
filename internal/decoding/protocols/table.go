package protocols

import (
	"taxScope/internal/decoding"
	"taxScope/internal/model"
)

// constructors is the plugin list of each supported chain, in registration
// order.
var constructors = map[model.ChainID][]decoding.PluginConstructor{
	model.ChainEthereum: {NewUniswapV2, NewUniswapV3, NewCurve, NewPickleFinance, NewWeth, NewAirdrops},
	model.ChainOptimism: {NewUniswapV3, NewCurve, NewWeth},
	model.ChainArbitrum: {NewUniswapV3, NewCurve, NewWeth},
	model.ChainBase:     {NewUniswapV3, NewWeth},
	model.ChainPolygon:  {NewUniswapV3, NewCurve},
}

// Constructors returns the plugin constructors registered for chainID.
func Constructors(chainID model.ChainID) []decoding.PluginConstructor {
	ctors := constructors[chainID]
	out := make([]decoding.PluginConstructor, len(ctors))
	copy(out, ctors)
	return out
}

// BuildRegistry loads every plugin of chainID.
func BuildRegistry(chainID model.ChainID, deps decoding.PluginDeps) (*decoding.Registry, error) {
	return decoding.BuildRegistry(chainID, Constructors(chainID), deps)
}
