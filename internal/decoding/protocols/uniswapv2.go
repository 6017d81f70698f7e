package protocols

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"taxScope/internal/decoding"
	"taxScope/internal/model"
)

const CounterpartyUniswapV2 = "uniswap-v2"

var uniswapV2Routers = map[model.ChainID][]common.Address{
	model.ChainEthereum: {common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D")},
}

// UniswapV2 decodes pair swaps. Pairs are found by their Swap event, so no
// pair list is needed.
type UniswapV2 struct {
	chainID model.ChainID
	tokens  decoding.TokenResolver
	logger  *zap.Logger
}

func NewUniswapV2(deps decoding.PluginDeps) (decoding.Plugin, error) {
	return &UniswapV2{chainID: deps.ChainID, tokens: deps.Tokens, logger: pluginLogger(deps, CounterpartyUniswapV2)}, nil
}

func (u *UniswapV2) Name() string { return CounterpartyUniswapV2 }

func (u *UniswapV2) Counterparties() []model.CounterpartyDetails {
	return []model.CounterpartyDetails{{Identifier: CounterpartyUniswapV2, Label: "Uniswap V2", Image: "uniswap.svg"}}
}

func (u *UniswapV2) AddressRules() []decoding.AddressRule { return nil }

func (u *UniswapV2) DecodingRules() []decoding.GenericRule {
	return []decoding.GenericRule{{Name: "uniswap-v2-swap", Handler: u.decodeSwap}}
}

func (u *UniswapV2) PostDecodingRules() []decoding.PostRule {
	return []decoding.PostRule{{Counterparty: CounterpartyUniswapV2, Name: "uniswap-v2-swap-notes", Handler: u.swapNotes}}
}

func (u *UniswapV2) AddressesToCounterparties() map[common.Address]string {
	out := make(map[common.Address]string)
	for _, router := range uniswapV2Routers[u.chainID] {
		out[router] = CounterpartyUniswapV2
	}
	return out
}

func (u *UniswapV2) decodeSwap(dctx *decoding.DecoderContext) (decoding.DecodingOutput, error) {
	log := dctx.Log
	if log.Topic0() != v2SwapTopic {
		return decoding.NoOutput, nil
	}
	if _, err := unpackLog(v2PairABI, "Swap", log); err != nil {
		return decoding.NoOutput, err
	}
	if claimSwapLegs(dctx.Session, dctx.DecodedEvents, log.Address, CounterpartyUniswapV2, nil) == 0 {
		return decoding.NoOutput, nil
	}
	return decoding.DecodingOutput{MatchedCounterparty: CounterpartyUniswapV2, ProcessSwaps: true}, nil
}

// swapNotes rewrites the transfer notes of swap legs once both are known.
func (u *UniswapV2) swapNotes(pctx *decoding.PostContext) ([]*model.HistoryEvent, error) {
	for _, event := range pctx.Events {
		if event.Counterparty != CounterpartyUniswapV2 || event.EventType != model.EventTypeTrade {
			continue
		}
		symbol := symbolOf(pctx.Context, u.tokens, event.Asset)
		switch event.EventSubtype {
		case model.EventSubtypeSpend:
			event.Notes = fmt.Sprintf("Swap %s %s in uniswap-v2", event.Amount.String(), symbol)
		case model.EventSubtypeReceive:
			event.Notes = fmt.Sprintf("Receive %s %s as the result of a swap in uniswap-v2", event.Amount.String(), symbol)
		}
	}
	return pctx.Events, nil
}

func pluginLogger(deps decoding.PluginDeps, name string) *zap.Logger {
	if deps.Logger == nil {
		return zap.NewNop()
	}
	return deps.Logger.With(zap.String("plugin", name))
}
