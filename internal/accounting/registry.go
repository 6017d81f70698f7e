package accounting

import (
	"sync/atomic"

	"go.uber.org/zap"

	"taxScope/internal/decoding"
	"taxScope/internal/model"
)

// PluginSource lists loaded protocol plugins. *decoding.Registry implements it.
type PluginSource interface {
	Plugins() []decoding.Plugin
}

type settingsTable map[string]TxEventSettings

// SettingsRegistry merges the accounting settings of the default table and
// every plugin into one lookup table. Reset builds a fresh table and swaps it
// in whole, so lookups never see a half built table.
type SettingsRegistry struct {
	sources []PluginSource
	logger  *zap.Logger
	table   atomic.Pointer[settingsTable]
}

func NewSettingsRegistry(logger *zap.Logger, sources ...PluginSource) *SettingsRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &SettingsRegistry{sources: sources, logger: logger}
	empty := settingsTable{}
	r.table.Store(&empty)
	return r
}

// Reset recomputes every setting for report. Later plugins overwrite earlier
// ones on the same key.
func (r *SettingsRegistry) Reset(report ReportSettings) int {
	table := settingsTable(DefaultSettings(report))
	for _, source := range r.sources {
		for _, plugin := range source.Plugins() {
			provider, ok := plugin.(SettingsProvider)
			if !ok {
				continue
			}
			for key, settings := range provider.EventSettings(report) {
				if _, exists := table[key]; exists {
					r.logger.Debug("accounting settings overwritten",
						zap.String("type_identifier", key),
						zap.String("plugin", plugin.Name()),
					)
				}
				table[key] = settings
			}
		}
	}
	r.table.Store(&table)
	return len(table)
}

// Lookup finds the settings for event, falling back to the key without
// counterparty.
func (r *SettingsRegistry) Lookup(event *model.HistoryEvent) (TxEventSettings, bool) {
	table := *r.table.Load()
	if settings, ok := table[event.TypeIdentifier()]; ok {
		return settings, true
	}
	if event.Counterparty == "" {
		return TxEventSettings{}, false
	}
	settings, ok := table[model.TypeIdentifier(event.EventType, event.EventSubtype, "")]
	return settings, ok
}

// Len returns the size of the current table.
func (r *SettingsRegistry) Len() int {
	return len(*r.table.Load())
}
