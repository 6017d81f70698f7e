package protocols

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"taxScope/internal/accounting"
	"taxScope/internal/decoding"
	"taxScope/internal/model"
)

const CounterpartyWeth = "weth"

var wethContracts = map[model.ChainID]common.Address{
	model.ChainEthereum: common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"),
	model.ChainOptimism: common.HexToAddress("0x4200000000000000000000000000000000000006"),
	model.ChainBase:     common.HexToAddress("0x4200000000000000000000000000000000000006"),
	model.ChainArbitrum: common.HexToAddress("0x82aF49447D8a07e3bd95BD0d56f35241523fBab1"),
}

// Weth decodes wrapping and unwrapping of the native asset. Neither emits a
// Transfer, so the wrapped side is created here.
type Weth struct {
	chainID model.ChainID
	address common.Address
	token   model.TokenMeta
	logger  *zap.Logger
}

func NewWeth(deps decoding.PluginDeps) (decoding.Plugin, error) {
	address, ok := wethContracts[deps.ChainID]
	if !ok {
		return nil, fmt.Errorf("no weth contract on chain %d", deps.ChainID)
	}
	return &Weth{
		chainID: deps.ChainID,
		address: address,
		token: model.TokenMeta{
			Address:  address.Hex(),
			ChainID:  deps.ChainID,
			Kind:     model.TokenERC20,
			Decimals: 18,
			Symbol:   "W" + deps.ChainID.NativeAsset(),
		},
		logger: pluginLogger(deps, CounterpartyWeth),
	}, nil
}

func (w *Weth) Name() string { return CounterpartyWeth }

func (w *Weth) Counterparties() []model.CounterpartyDetails {
	return []model.CounterpartyDetails{{Identifier: CounterpartyWeth, Label: "WETH", Image: "weth.svg"}}
}

func (w *Weth) AddressRules() []decoding.AddressRule {
	return []decoding.AddressRule{{Address: w.address, Name: "weth", Handler: w.decode}}
}

func (w *Weth) EventSettings(accounting.ReportSettings) map[string]accounting.TxEventSettings {
	swap := accounting.TxEventSettings{
		Method:             accounting.MethodSpend,
		Take:               2,
		MultitakeTreatment: accounting.TreatmentSwap,
	}
	return map[string]accounting.TxEventSettings{
		model.TypeIdentifier(model.EventTypeDeposit, model.EventSubtypeDepositAsset, CounterpartyWeth): swap,
		model.TypeIdentifier(model.EventTypeSpend, model.EventSubtypeReturnWrapped, CounterpartyWeth):  swap,
	}
}

func (w *Weth) decode(dctx *decoding.DecoderContext) (decoding.DecodingOutput, error) {
	switch dctx.Log.Topic0() {
	case wethDepositTopic:
		return w.wrap(dctx)
	case wethWithdrawalTopic:
		return w.unwrap(dctx)
	}
	return decoding.NoOutput, nil
}

func (w *Weth) amount(name string, dctx *decoding.DecoderContext) (common.Address, *model.HistoryEvent, error) {
	values, err := unpackLog(wethABI, name, dctx.Log)
	if err != nil {
		return common.Address{}, nil, err
	}
	wad, err := asBigInt(values[0])
	if err != nil {
		return common.Address{}, nil, err
	}
	account, err := decoding.TopicAddress(dctx.Log.Topics, 1)
	if err != nil {
		return common.Address{}, nil, err
	}
	event := model.NewEvmEvent(dctx.Transaction, dctx.Session.SequenceIndex(dctx.Log), w.token.AssetID(), fromWei(wad), account.Hex(), model.Classification{})
	addr := w.address
	event.Address = &addr
	return account, event, nil
}

func (w *Weth) wrap(dctx *decoding.DecoderContext) (decoding.DecodingOutput, error) {
	account, received, err := w.amount("Deposit", dctx)
	if err != nil {
		return decoding.NoOutput, err
	}
	if !dctx.Session.IsTracked(account) {
		return decoding.NoOutput, nil
	}
	native := w.chainID.NativeAsset()
	sent := findEvent(dctx.DecodedEvents, func(e *model.HistoryEvent) bool {
		return e.EventType == model.EventTypeSpend && e.Asset == native &&
			e.Address != nil && *e.Address == w.address && e.Amount.Equal(received.Amount)
	})
	if sent == nil {
		return decoding.NoOutput, nil
	}

	sent.Claim(model.Classification{
		EventType:    model.EventTypeDeposit,
		EventSubtype: model.EventSubtypeDepositAsset,
		Counterparty: CounterpartyWeth,
		Notes:        fmt.Sprintf("Wrap %s %s in %s", sent.Amount.String(), native, w.token.Symbol),
	})
	received.Reclassify(model.Classification{
		EventType:    model.EventTypeReceive,
		EventSubtype: model.EventSubtypeReceiveWrapped,
		Counterparty: CounterpartyWeth,
		Notes:        fmt.Sprintf("Receive %s %s", received.Amount.String(), w.token.Symbol),
	})
	return decoding.DecodingOutput{Events: []*model.HistoryEvent{received}, MatchedCounterparty: CounterpartyWeth}, nil
}

// unwrap creates both sides. They share the log's sequence index; the
// engine keeps insertion order on ties, so the pair stays adjacent.
func (w *Weth) unwrap(dctx *decoding.DecoderContext) (decoding.DecodingOutput, error) {
	account, returned, err := w.amount("Withdrawal", dctx)
	if err != nil {
		return decoding.NoOutput, err
	}
	if !dctx.Session.IsTracked(account) {
		return decoding.NoOutput, nil
	}
	native := w.chainID.NativeAsset()
	returned.Reclassify(model.Classification{
		EventType:    model.EventTypeSpend,
		EventSubtype: model.EventSubtypeReturnWrapped,
		Counterparty: CounterpartyWeth,
		Notes:        fmt.Sprintf("Unwrap %s %s", returned.Amount.String(), w.token.Symbol),
	})
	withdrawn := model.NewEvmEvent(dctx.Transaction, returned.SequenceIndex, native, returned.Amount, account.Hex(), model.Classification{
		EventType:    model.EventTypeWithdrawal,
		EventSubtype: model.EventSubtypeRemoveAsset,
		Counterparty: CounterpartyWeth,
		Notes:        fmt.Sprintf("Receive %s %s", returned.Amount.String(), native),
	})
	withdrawn.Address = returned.Address
	withdrawn.MarkClassified()
	return decoding.DecodingOutput{Events: []*model.HistoryEvent{returned, withdrawn}, MatchedCounterparty: CounterpartyWeth}, nil
}
