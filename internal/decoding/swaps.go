package decoding

import (
	"go.uber.org/zap"

	"taxScope/internal/model"
)

var tradeSubtypes = []model.HistoryEventSubType{
	model.EventSubtypeSpend,
	model.EventSubtypeReceive,
	model.EventSubtypeFee,
}

func isTradeLeg(e *model.HistoryEvent, subtype model.HistoryEventSubType) bool {
	return e.EventType == model.EventTypeTrade && e.EventSubtype == subtype
}

// consolidateSwaps turns runs of TRADE spend, receive and fee legs into swap
// events. The input must be sorted. Within a group the legs get consecutive
// sequence indexes starting at the spend leg, and take the spend's
// counterparty and address. A group with more than one leg of a subtype
// becomes MULTI_TRADE. Incomplete groups are logged and kept as they are.
func consolidateSwaps(events []*model.HistoryEvent, logger *zap.Logger) []*model.HistoryEvent {
	out := make([]*model.HistoryEvent, 0, len(events))
	i := 0
	for i < len(events) {
		next := events[i]
		if next.EventType != model.EventTypeTrade || !isTradeSubtype(next.EventSubtype) {
			out = append(out, next)
			i++
			continue
		}

		var group []*model.HistoryEvent
		eventType := model.EventTypeTrade
		complete := true
		for _, subtype := range tradeSubtypes {
			start := i
			for i < len(events) && isTradeLeg(events[i], subtype) {
				i++
			}
			legs := events[start:i]
			if len(legs) > 1 {
				eventType = model.EventTypeMultiTrade
			}
			if len(legs) == 0 && subtype != model.EventSubtypeFee {
				complete = false
				break
			}
			group = append(group, legs...)
		}

		if !complete {
			logger.Error("incomplete or unordered swap event group",
				zap.String("event_identifier", next.EventIdentifier),
				zap.Int("sequence_index", next.SequenceIndex),
			)
			if len(group) == 0 {
				out = append(out, events[i])
				i++
			} else {
				out = append(out, group...)
			}
			continue
		}

		spend := group[0]
		for idx, leg := range group {
			leg.EntryType = model.EntryEvmSwapEvent
			leg.SequenceIndex = spend.SequenceIndex + idx
			leg.Reclassify(model.Classification{
				EventType:    eventType,
				EventSubtype: leg.EventSubtype,
				Counterparty: spend.Counterparty,
			})
			if leg.LocationLabel == "" {
				leg.LocationLabel = spend.LocationLabel
			}
			leg.Address = spend.Address
			out = append(out, leg)
		}
	}
	return out
}

func isTradeSubtype(subtype model.HistoryEventSubType) bool {
	for _, st := range tradeSubtypes {
		if st == subtype {
			return true
		}
	}
	return false
}
