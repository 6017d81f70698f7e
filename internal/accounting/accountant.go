package accounting

import (
	"go.uber.org/zap"

	"taxScope/internal/model"
	"taxScope/internal/price"
)

// TransactionAccountant books decoded events into a Pot. It is used by one
// report run at a time: Reset starts a run, Process is then called for each
// event in order.
type TransactionAccountant struct {
	settings *SettingsRegistry
	pot      Pot
	prices   PriceOracle
	logger   *zap.Logger

	report  ReportSettings
	missing []MissingPrice
}

func NewTransactionAccountant(settings *SettingsRegistry, pot Pot, prices PriceOracle, logger *zap.Logger) *TransactionAccountant {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TransactionAccountant{
		settings: settings,
		pot:      pot,
		prices:   prices,
		logger:   logger,
	}
}

// Reset rebuilds the settings table for report and forgets the missing
// prices of the previous run.
func (a *TransactionAccountant) Reset(report ReportSettings) {
	a.report = report
	a.missing = nil
	n := a.settings.Reset(report)
	a.logger.Info("accounting settings loaded", zap.Int("type_identifiers", n))
}

// MissingPrices lists actions skipped for lack of a price during this run.
func (a *TransactionAccountant) MissingPrices() []MissingPrice {
	out := make([]MissingPrice, len(a.missing))
	copy(out, a.missing)
	return out
}

// Process books event, pulling any further events its settings group with it
// from iter. It returns the number of events consumed, event included.
func (a *TransactionAccountant) Process(event *model.HistoryEvent, iter *Peekable) int {
	settings, ok := a.settings.Lookup(event)
	if !ok {
		a.logger.Debug("no accounting settings for event",
			zap.String("type_identifier", event.TypeIdentifier()),
			zap.String("event_identifier", event.EventIdentifier),
			zap.Int("sequence_index", event.SequenceIndex),
		)
		return 1
	}

	if settings.Accountant != nil {
		consumed := settings.Accountant(a.pot, event, iter)
		if consumed < 1 {
			consumed = 1
		}
		return consumed
	}

	group := a.takeGroup(event, settings, iter)
	if settings.MultitakeTreatment == TreatmentSwap {
		a.processSwap(group, settings)
		return len(group)
	}
	for _, member := range group {
		a.processSingle(member, settings)
	}
	return len(group)
}

// Summary counts what a run did.
type Summary struct {
	Items    int
	Consumed int
	Foreign  int
}

// ProcessAll runs every item of a report through the accountant.
func (a *TransactionAccountant) ProcessAll(items []Item) Summary {
	var summary Summary
	iter := NewPeekable(items)
	for {
		item, ok := iter.Next()
		if !ok {
			break
		}
		summary.Items++
		event, ok := item.(*model.HistoryEvent)
		if !ok {
			summary.Foreign++
			a.logger.Debug("skip non history event item", zap.Int64("timestamp", item.TimestampMS()))
			continue
		}
		consumed := a.Process(event, iter)
		summary.Consumed += consumed
		summary.Items += consumed - 1
	}
	return summary
}

// takeGroup pulls the events that settings group with event. A short stream,
// a foreign item or an event of another transaction ends the group early. Swap groups additionally absorb
// trailing fee legs of the same transaction.
func (a *TransactionAccountant) takeGroup(event *model.HistoryEvent, settings TxEventSettings, iter *Peekable) []*model.HistoryEvent {
	group := []*model.HistoryEvent{event}
	for len(group) < settings.take() {
		next, ok := peekEvent(iter)
		if !ok || next.EventIdentifier != event.EventIdentifier {
			a.logger.Warn("event group ended early",
				zap.String("event_identifier", event.EventIdentifier),
				zap.Int("take", settings.take()),
				zap.Int("got", len(group)),
			)
			return group
		}
		iter.Next()
		group = append(group, next)
	}
	if settings.MultitakeTreatment != TreatmentSwap || len(group) < 2 {
		return group
	}
	for {
		next, ok := peekEvent(iter)
		if !ok || next.EventIdentifier != event.EventIdentifier || next.EventSubtype != model.EventSubtypeFee {
			return group
		}
		if next.EventType != model.EventTypeTrade && next.EventType != model.EventTypeMultiTrade {
			return group
		}
		iter.Next()
		group = append(group, next)
	}
}

func peekEvent(iter *Peekable) (*model.HistoryEvent, bool) {
	item, ok := iter.Peek()
	if !ok {
		return nil, false
	}
	event, ok := item.(*model.HistoryEvent)
	return event, ok
}

// processSwap books the first event as the outflow and the second as the
// inflow of one exchange. Further legs are fees.
func (a *TransactionAccountant) processSwap(group []*model.HistoryEvent, settings TxEventSettings) {
	out := group[0]
	if len(group) < 2 {
		a.logger.Warn("swap without inflow leg",
			zap.String("event_identifier", out.EventIdentifier),
			zap.String("type_identifier", out.TypeIdentifier()),
		)
		return
	}
	in := group[1]
	fees := group[2:]

	query := price.SwapQuery{
		TimestampMS: out.Timestamp,
		AmountIn:    in.Amount,
		AssetIn:     in.Asset,
		AmountOut:   out.Amount,
		AssetOut:    out.Asset,
	}
	if len(fees) > 0 {
		query.Fee = &price.Fee{Amount: fees[0].Amount, Asset: fees[0].Asset}
	}
	prices, ok := a.prices.SwapPrices(query)
	if !ok {
		a.recordMissing(out, "swap of "+out.Asset+" for "+in.Asset)
		a.logger.Warn("skip swap without prices",
			zap.String("event_identifier", out.EventIdentifier),
			zap.String("asset_out", out.Asset),
			zap.String("asset_in", in.Asset),
		)
		return
	}

	taxable := settings.Taxable && a.report.InRange(out.Timestamp)
	a.pot.AddSpend(Action{
		Kind:              ActionSpend,
		TimestampMS:       out.Timestamp,
		Location:          out.Location,
		Asset:             out.Asset,
		Amount:            out.Amount,
		Price:             prices.Out,
		Taxable:           taxable,
		CountCostBasisPnL: settings.CountCostBasisPnL,
		Notes:             out.Notes,
		Extra:             txExtra(out),
	})
	a.pot.AddAcquisition(Action{
		Kind:              ActionAcquisition,
		TimestampMS:       in.Timestamp,
		Location:          in.Location,
		Asset:             in.Asset,
		Amount:            in.Amount,
		Price:             prices.In,
		CountCostBasisPnL: settings.CountCostBasisPnL,
		Notes:             in.Notes,
		Extra:             txExtra(in),
	})

	for _, fee := range fees {
		a.processSingle(fee, TxEventSettings{
			Taxable:                true,
			CountEntireAmountSpend: !a.report.IncludeFeesInCostBasis,
			CountCostBasisPnL:      true,
			Method:                 MethodSpend,
		})
	}
}

func (a *TransactionAccountant) processSingle(event *model.HistoryEvent, settings TxEventSettings) {
	p, ok := a.prices.Price(event.Asset, event.Timestamp)
	if !ok {
		a.recordMissing(event, event.Notes)
		a.logger.Warn("skip event without price",
			zap.String("event_identifier", event.EventIdentifier),
			zap.Int("sequence_index", event.SequenceIndex),
			zap.String("asset", event.Asset),
		)
		return
	}
	action := Action{
		TimestampMS:            event.Timestamp,
		Location:               event.Location,
		Asset:                  event.Asset,
		Amount:                 event.Amount,
		Price:                  p,
		Taxable:                settings.Taxable && a.report.InRange(event.Timestamp),
		CountEntireAmountSpend: settings.CountEntireAmountSpend,
		CountCostBasisPnL:      settings.CountCostBasisPnL,
		Notes:                  event.Notes,
		Extra:                  txExtra(event),
	}
	if settings.Method == MethodAcquisition {
		action.Kind = ActionAcquisition
		a.pot.AddAcquisition(action)
		return
	}
	action.Kind = ActionSpend
	a.pot.AddSpend(action)
}

func (a *TransactionAccountant) recordMissing(event *model.HistoryEvent, notes string) {
	missing := MissingPrice{Asset: event.Asset, TimestampMS: event.Timestamp, Notes: notes}
	if event.TxHash != nil {
		missing.TxHash = event.TxHash.Hex()
	}
	a.missing = append(a.missing, missing)
}

func txExtra(event *model.HistoryEvent) map[string]string {
	if event.TxHash == nil {
		return nil
	}
	return map[string]string{"tx_hash": event.TxHash.Hex()}
}
