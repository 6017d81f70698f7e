package protocols

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"taxScope/internal/decoding"
	"taxScope/internal/model"
)

var (
	v2SwapTopic         = crypto.Keccak256Hash([]byte("Swap(address,uint256,uint256,uint256,uint256,address)"))
	v3SwapTopic         = crypto.Keccak256Hash([]byte("Swap(address,address,int256,int256,uint160,uint128,int24)"))
	v3MintTopic         = crypto.Keccak256Hash([]byte("Mint(address,address,int24,int24,uint128,uint256,uint256)"))
	v3CollectTopic      = crypto.Keccak256Hash([]byte("Collect(address,address,int24,int24,uint128,uint128)"))
	curveExchangeTopic  = crypto.Keccak256Hash([]byte("TokenExchange(address,int128,uint256,int128,uint256)"))
	wethDepositTopic    = crypto.Keccak256Hash([]byte("Deposit(address,uint256)"))
	wethWithdrawalTopic = crypto.Keccak256Hash([]byte("Withdrawal(address,uint256)"))
)

// unpackLog checks the topic count of an event log and decodes its data.
func unpackLog(l *decoding.LazyABI, name string, log model.EvmTxReceiptLog) ([]interface{}, error) {
	parsed, err := l.Get()
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}
	event, ok := parsed.Events[name]
	if !ok {
		return nil, fmt.Errorf("event %s missing from abi", name)
	}
	if err := decoding.ExpectTopics(log.Topics, indexedCount(event.Inputs)+1); err != nil {
		return nil, err
	}
	return decoding.UnpackData(event, log.Data)
}

func indexedCount(args abi.Arguments) int {
	n := 0
	for _, arg := range args {
		if arg.Indexed {
			n++
		}
	}
	return n
}

func asBigInt(value interface{}) (*big.Int, error) {
	v, ok := value.(*big.Int)
	if !ok {
		return nil, decoding.Malformed("unexpected value type %T", value)
	}
	return v, nil
}

func asAddress(value interface{}) (common.Address, error) {
	v, ok := value.(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected address type %T", value)
	}
	return v, nil
}

// claimSwapLegs turns the bare transfers between a tracked account and pool
// into trade legs. Only assets accepted by allow are claimed; nil allows all.
// The legs move behind the other events, spends ahead of receives.
func claimSwapLegs(session *decoding.Session, events []*model.HistoryEvent, pool common.Address, counterparty string, allow func(asset string) bool) int {
	var spends, receives []*model.HistoryEvent
	for _, event := range events {
		if event.Address == nil || *event.Address != pool || event.EventSubtype != model.EventSubtypeNone {
			continue
		}
		if allow != nil && !allow(event.Asset) {
			continue
		}
		var subtype model.HistoryEventSubType
		switch event.EventType {
		case model.EventTypeSpend:
			subtype = model.EventSubtypeSpend
		case model.EventTypeReceive:
			subtype = model.EventSubtypeReceive
		default:
			continue
		}
		if !event.Claim(model.Classification{EventType: model.EventTypeTrade, EventSubtype: subtype, Counterparty: counterparty}) {
			continue
		}
		if subtype == model.EventSubtypeSpend {
			spends = append(spends, event)
		} else {
			receives = append(receives, event)
		}
	}
	session.Reshuffle(append(spends, receives...)...)
	return len(spends) + len(receives)
}

// findEvent returns the first unclassified event accepted by match.
func findEvent(events []*model.HistoryEvent, match func(*model.HistoryEvent) bool) *model.HistoryEvent {
	for _, event := range events {
		if !event.IsClassified() && match(event) {
			return event
		}
	}
	return nil
}

// assetAddress extracts the contract address of a token asset identifier.
func assetAddress(asset string) (common.Address, bool) {
	idx := strings.LastIndex(asset, ":")
	if idx < 0 || !common.IsHexAddress(asset[idx+1:]) {
		return common.Address{}, false
	}
	return common.HexToAddress(asset[idx+1:]), true
}

// symbolOf resolves a printable symbol for an asset identifier.
func symbolOf(ctx context.Context, tokens decoding.TokenResolver, asset string) string {
	addr, ok := assetAddress(asset)
	if !ok || tokens == nil {
		return asset
	}
	meta, err := tokens.Token(ctx, addr, model.TokenERC20)
	if err != nil {
		return asset
	}
	return meta.DisplaySymbol()
}

func erc20Asset(chainID model.ChainID, token common.Address) string {
	return model.TokenMeta{Address: token.Hex(), ChainID: chainID, Kind: model.TokenERC20}.AssetID()
}

func fromWei(raw *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(raw, -18)
}
