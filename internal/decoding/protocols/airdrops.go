package protocols

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"taxScope/internal/accounting"
	"taxScope/internal/decoding"
	"taxScope/internal/model"
)

type airdrop struct {
	counterparty string
	label        string
}

var airdropDistributors = map[model.ChainID]map[common.Address]airdrop{
	model.ChainEthereum: {
		common.HexToAddress("0x090D4613473dEE047c3f2706764f49E0821D256e"): {counterparty: "uniswap", label: "Uniswap"},
	},
}

// Airdrops labels tokens received from known distributor contracts.
type Airdrops struct {
	distributors map[common.Address]airdrop
}

func NewAirdrops(deps decoding.PluginDeps) (decoding.Plugin, error) {
	return &Airdrops{distributors: airdropDistributors[deps.ChainID]}, nil
}

func (a *Airdrops) Name() string { return "airdrops" }

func (a *Airdrops) Counterparties() []model.CounterpartyDetails {
	seen := make(map[string]struct{})
	var out []model.CounterpartyDetails
	for _, drop := range a.distributors {
		if _, ok := seen[drop.counterparty]; ok {
			continue
		}
		seen[drop.counterparty] = struct{}{}
		out = append(out, model.CounterpartyDetails{Identifier: drop.counterparty, Label: drop.label})
	}
	return out
}

func (a *Airdrops) AddressRules() []decoding.AddressRule { return nil }

func (a *Airdrops) EnricherRules() []decoding.EnricherRule {
	return []decoding.EnricherRule{{Name: "airdrop-claim", Handler: a.enrich}}
}

func (a *Airdrops) EventSettings(report accounting.ReportSettings) map[string]accounting.TxEventSettings {
	out := make(map[string]accounting.TxEventSettings)
	for _, drop := range a.distributors {
		out[model.TypeIdentifier(model.EventTypeReceive, model.EventSubtypeAirdrop, drop.counterparty)] = accounting.TxEventSettings{
			Taxable:           report.TaxableAirdrops,
			CountCostBasisPnL: true,
			Method:            accounting.MethodAcquisition,
		}
	}
	return out
}

func (a *Airdrops) enrich(ectx *decoding.EnricherContext) (decoding.EnrichmentOutput, error) {
	event := ectx.Event
	if event.EventType != model.EventTypeReceive || event.Address == nil {
		return decoding.EnrichmentOutput{}, nil
	}
	drop, ok := a.distributors[*event.Address]
	if !ok {
		return decoding.EnrichmentOutput{}, nil
	}
	claimed := event.Claim(model.Classification{
		EventType:    model.EventTypeReceive,
		EventSubtype: model.EventSubtypeAirdrop,
		Counterparty: drop.counterparty,
		Notes:        fmt.Sprintf("Claim %s %s from %s airdrop", event.Amount.String(), ectx.Token.DisplaySymbol(), drop.label),
	})
	if !claimed {
		return decoding.EnrichmentOutput{}, nil
	}
	return decoding.EnrichmentOutput{MatchedCounterparty: drop.counterparty}, nil
}
