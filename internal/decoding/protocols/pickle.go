package protocols

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"taxScope/internal/accounting"
	"taxScope/internal/decoding"
	"taxScope/internal/model"
)

const CounterpartyPickle = "pickle-finance"

// PickleJars maps each jar to the token it accepts, per chain.
var PickleJars = map[model.ChainID]map[common.Address]common.Address{
	model.ChainEthereum: {
		// pDAI
		common.HexToAddress("0x6949Bb624E8e8A90F87cD2058139fcd77D2F3F87"): common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F"),
	},
}

// PickleFinance decodes deposits into and withdrawals from pickle jars. A jar
// is the token contract of its own receipt token.
type PickleFinance struct {
	chainID model.ChainID
	tokens  decoding.TokenResolver
	jars    map[common.Address]common.Address
	logger  *zap.Logger
}

func NewPickleFinance(deps decoding.PluginDeps) (decoding.Plugin, error) {
	return &PickleFinance{
		chainID: deps.ChainID,
		tokens:  deps.Tokens,
		jars:    PickleJars[deps.ChainID],
		logger:  pluginLogger(deps, CounterpartyPickle),
	}, nil
}

func (p *PickleFinance) Name() string { return CounterpartyPickle }

func (p *PickleFinance) Counterparties() []model.CounterpartyDetails {
	return []model.CounterpartyDetails{{Identifier: CounterpartyPickle, Label: "Pickle Finance", Image: "pickle.svg"}}
}

func (p *PickleFinance) AddressRules() []decoding.AddressRule {
	rules := make([]decoding.AddressRule, 0, len(p.jars))
	for jar, underlying := range p.jars {
		rules = append(rules, decoding.AddressRule{
			Address: jar,
			Name:    "pickle-jar",
			Handler: p.jarHandler(jar, underlying),
		})
	}
	return rules
}

func (p *PickleFinance) AddressesToCounterparties() map[common.Address]string {
	out := make(map[common.Address]string, len(p.jars))
	for jar := range p.jars {
		out[jar] = CounterpartyPickle
	}
	return out
}

func (p *PickleFinance) EventSettings(accounting.ReportSettings) map[string]accounting.TxEventSettings {
	swap := accounting.TxEventSettings{
		Method:             accounting.MethodSpend,
		Take:               2,
		MultitakeTreatment: accounting.TreatmentSwap,
	}
	return map[string]accounting.TxEventSettings{
		model.TypeIdentifier(model.EventTypeDeposit, model.EventSubtypeDepositAsset, CounterpartyPickle): swap,
		model.TypeIdentifier(model.EventTypeSpend, model.EventSubtypeReturnWrapped, CounterpartyPickle):  swap,
	}
}

func (p *PickleFinance) jarHandler(jar, underlying common.Address) decoding.Handler {
	return func(dctx *decoding.DecoderContext) (decoding.DecodingOutput, error) {
		log := dctx.Log
		if log.Topic0() != decoding.TransferTopic || len(log.Topics) != 3 {
			return decoding.NoOutput, nil
		}
		from, _ := decoding.TopicAddress(log.Topics, 1)
		to, _ := decoding.TopicAddress(log.Topics, 2)
		seq := dctx.Session.SequenceIndex(log)
		jarAsset := erc20Asset(p.chainID, jar)
		underlyingAsset := erc20Asset(p.chainID, underlying)

		switch {
		case from == (common.Address{}) && dctx.Session.IsTracked(to):
			return p.deposit(dctx, seq, to, jar, jarAsset, underlyingAsset)
		case to == (common.Address{}) && dctx.Session.IsTracked(from):
			return p.withdraw(dctx, seq, from, jarAsset, underlyingAsset)
		}
		return decoding.NoOutput, nil
	}
}

// deposit pairs the underlying sent to the jar with the minted jar tokens.
func (p *PickleFinance) deposit(dctx *decoding.DecoderContext, seq int, account, jar common.Address, jarAsset, underlyingAsset string) (decoding.DecodingOutput, error) {
	minted := findEvent(dctx.DecodedEvents, func(e *model.HistoryEvent) bool {
		return e.SequenceIndex == seq && e.EventType == model.EventTypeReceive && e.Asset == jarAsset
	})
	sent := findEvent(dctx.DecodedEvents, func(e *model.HistoryEvent) bool {
		return e.EventType == model.EventTypeSpend && e.Asset == underlyingAsset &&
			e.Address != nil && *e.Address == jar && e.LocationLabel == account.Hex()
	})
	if minted == nil || sent == nil {
		return decoding.NoOutput, nil
	}

	underlyingSymbol := symbolOf(dctx.Context, p.tokens, underlyingAsset)
	jarSymbol := symbolOf(dctx.Context, p.tokens, jarAsset)
	sent.Claim(model.Classification{
		EventType:    model.EventTypeDeposit,
		EventSubtype: model.EventSubtypeDepositAsset,
		Counterparty: CounterpartyPickle,
		Notes:        fmt.Sprintf("Deposit %s %s in pickle contract", sent.Amount.String(), underlyingSymbol),
	})
	minted.Claim(model.Classification{
		EventType:    model.EventTypeReceive,
		EventSubtype: model.EventSubtypeReceiveWrapped,
		Counterparty: CounterpartyPickle,
		Notes:        fmt.Sprintf("Receive %s %s after depositing in pickle contract", minted.Amount.String(), jarSymbol),
	})
	dctx.Session.Reshuffle(sent, minted)
	return decoding.DecodingOutput{MatchedCounterparty: CounterpartyPickle}, nil
}

// withdraw labels the burnt jar tokens. The underlying arrives in a later
// log, so it is matched with an action item.
func (p *PickleFinance) withdraw(dctx *decoding.DecoderContext, seq int, account common.Address, jarAsset, underlyingAsset string) (decoding.DecodingOutput, error) {
	burnt := findEvent(dctx.DecodedEvents, func(e *model.HistoryEvent) bool {
		return e.SequenceIndex == seq && e.EventType == model.EventTypeSpend && e.Asset == jarAsset
	})
	if burnt == nil {
		return decoding.NoOutput, nil
	}
	burnt.Claim(model.Classification{
		EventType:    model.EventTypeSpend,
		EventSubtype: model.EventSubtypeReturnWrapped,
		Counterparty: CounterpartyPickle,
		Notes:        fmt.Sprintf("Return %s %s to the pickle contract", burnt.Amount.String(), symbolOf(dctx.Context, p.tokens, jarAsset)),
	})
	item := model.ActionItem{
		Action:            model.ActionTransform,
		FromEventType:     model.EventTypeReceive,
		FromEventSubtype:  model.EventSubtypeNone,
		Asset:             underlyingAsset,
		LocationLabel:     account.Hex(),
		ToEventType:       model.EventTypeWithdrawal,
		ToEventSubtype:    model.EventSubtypeRemoveAsset,
		ToCounterparty:    CounterpartyPickle,
		ToNotes:           "Unstake {amount} {symbol} from the pickle contract",
		PairedEvents:      []*model.HistoryEvent{burnt},
		PairedEventsFirst: true,
	}
	return decoding.DecodingOutput{ActionItems: []model.ActionItem{item}, MatchedCounterparty: CounterpartyPickle}, nil
}
