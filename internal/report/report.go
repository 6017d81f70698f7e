package report

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"taxScope/internal/accounting"
	"taxScope/internal/accounting/costbasis"
	"taxScope/internal/model"
)

// Options configures one report run.
type Options struct {
	ProfitCurrency string
	Settings       accounting.ReportSettings
	Sources        []accounting.PluginSource
	Prices         accounting.PriceOracle
	Logger         *zap.Logger
}

// Report is the outcome of running the accountant over a set of events.
type Report struct {
	ID                  string                         `json:"id"`
	CreatedAt           time.Time                      `json:"created_at"`
	ProfitCurrency      string                         `json:"profit_currency"`
	From                *time.Time                     `json:"from,omitempty"`
	To                  *time.Time                     `json:"to,omitempty"`
	Events              int                            `json:"events"`
	Consumed            int                            `json:"consumed"`
	Totals              costbasis.Totals               `json:"totals"`
	Processed           []costbasis.ProcessedEvent     `json:"processed"`
	MissingPrices       []accounting.MissingPrice      `json:"missing_prices"`
	MissingAcquisitions []costbasis.MissingAcquisition `json:"missing_acquisitions"`
}

// Build books events in time order into a fresh FIFO pot. Events of one
// transaction keep their sequence order.
func Build(events []*model.HistoryEvent, opts Options) (Report, error) {
	if opts.Prices == nil {
		return Report{}, fmt.Errorf("price oracle is nil")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.New()
	logger = logger.With(zap.String("report_id", id.String()))

	ordered := make([]*model.HistoryEvent, len(events))
	copy(ordered, events)
	sortEvents(ordered)

	pot := costbasis.NewPot(logger)
	accountant := accounting.NewTransactionAccountant(accounting.NewSettingsRegistry(logger, opts.Sources...), pot, opts.Prices, logger)
	accountant.Reset(opts.Settings)

	items := make([]accounting.Item, len(ordered))
	for i, event := range ordered {
		items[i] = event
	}
	summary := accountant.ProcessAll(items)

	out := Report{
		ID:                  id.String(),
		CreatedAt:           time.Now().UTC(),
		ProfitCurrency:      opts.ProfitCurrency,
		Events:              summary.Items,
		Consumed:            summary.Consumed,
		Totals:              pot.Totals(),
		Processed:           pot.Processed(),
		MissingPrices:       accountant.MissingPrices(),
		MissingAcquisitions: pot.MissingAcquisitions(),
	}
	if !opts.Settings.From.IsZero() {
		from := opts.Settings.From
		out.From = &from
	}
	if !opts.Settings.To.IsZero() {
		to := opts.Settings.To
		out.To = &to
	}
	logger.Info("report built",
		zap.Int("events", out.Events),
		zap.Int("missing_prices", len(out.MissingPrices)),
		zap.String("taxable_pnl", out.Totals.Taxable.String()),
	)
	return out, nil
}

func sortEvents(events []*model.HistoryEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if a.Timestamp != b.Timestamp {
			return a.Timestamp < b.Timestamp
		}
		if a.EventIdentifier != b.EventIdentifier {
			return a.EventIdentifier < b.EventIdentifier
		}
		return a.SequenceIndex < b.SequenceIndex
	})
}
