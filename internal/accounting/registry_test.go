package accounting

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"taxScope/internal/decoding"
	"taxScope/internal/model"
)

type airdropPlugin struct{ settingsPlugin }

func (p *airdropPlugin) EventSettings(report ReportSettings) map[string]TxEventSettings {
	return map[string]TxEventSettings{
		"RECEIVE.AIRDROP.uniswap": {Taxable: report.TaxableAirdrops, Method: MethodAcquisition},
	}
}

func TestSettingsRegistryLastPluginWins(t *testing.T) {
	first := &settingsPlugin{name: "a", settings: map[string]TxEventSettings{"TRADE.SPEND.x": {Take: 2}}}
	second := &settingsPlugin{name: "b", settings: map[string]TxEventSettings{"TRADE.SPEND.x": {Take: 3}}}
	registry := NewSettingsRegistry(zap.NewNop(), staticSource{first}, staticSource{second})

	assert.Zero(t, registry.Len())
	registry.Reset(ReportSettings{})

	settings, ok := registry.Lookup(&model.HistoryEvent{
		EventType:    model.EventTypeTrade,
		EventSubtype: model.EventSubtypeSpend,
		Counterparty: "x",
	})
	require.True(t, ok)
	assert.Equal(t, 3, settings.Take)
}

func TestSettingsRegistryFallsBackWithoutCounterparty(t *testing.T) {
	registry := NewSettingsRegistry(nil)
	registry.Reset(ReportSettings{})

	settings, ok := registry.Lookup(&model.HistoryEvent{
		EventType:    model.EventTypeTrade,
		EventSubtype: model.EventSubtypeSpend,
		Counterparty: "sushiswap",
	})
	require.True(t, ok)
	assert.Equal(t, TreatmentSwap, settings.MultitakeTreatment)

	_, ok = registry.Lookup(&model.HistoryEvent{EventType: model.EventTypeInformational, EventSubtype: model.EventSubtypeNone})
	assert.False(t, ok)
}

func TestSettingsRegistryRecomputedOnReset(t *testing.T) {
	plugin := &airdropPlugin{settingsPlugin{name: "uniswap"}}
	registry := NewSettingsRegistry(nil, staticSource{plugin})
	airdrop := &model.HistoryEvent{EventType: model.EventTypeReceive, EventSubtype: model.EventSubtypeAirdrop, Counterparty: "uniswap"}

	registry.Reset(ReportSettings{TaxableAirdrops: false})
	settings, _ := registry.Lookup(airdrop)
	assert.False(t, settings.Taxable)

	registry.Reset(ReportSettings{TaxableAirdrops: true})
	settings, _ = registry.Lookup(airdrop)
	assert.True(t, settings.Taxable)
}

func TestSettingsFromDecodingRegistry(t *testing.T) {
	registry := decoding.NewRegistry(model.ChainEthereum, zap.NewNop())
	require.NoError(t, registry.Register(pickleSettings()))

	settings := NewSettingsRegistry(nil, registry)
	settings.Reset(ReportSettings{})
	_, ok := settings.Lookup(&model.HistoryEvent{
		EventType:    model.EventTypeDeposit,
		EventSubtype: model.EventSubtypeDepositAsset,
		Counterparty: "pickle-finance",
	})
	assert.True(t, ok)
}
