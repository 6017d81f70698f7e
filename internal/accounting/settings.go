package accounting

import (
	"time"

	"taxScope/internal/model"
)

// Method is how a single event enters the cost-basis ledger.
type Method string

const (
	MethodSpend       Method = "spend"
	MethodAcquisition Method = "acquisition"
)

// MultitakeTreatment says how a group of events is booked.
type MultitakeTreatment string

const (
	TreatmentNone MultitakeTreatment = "NONE"
	TreatmentSwap MultitakeTreatment = "SWAP"
)

// AccountantFunc books an event itself and returns how many events it
// consumed, the event included.
type AccountantFunc func(pot Pot, event *model.HistoryEvent, iter *Peekable) int

// TxEventSettings is the accounting policy for one event type identifier.
type TxEventSettings struct {
	Taxable                bool
	CountEntireAmountSpend bool
	CountCostBasisPnL      bool
	Method                 Method
	// Take is the number of events, this one included, booked as one action.
	Take               int
	MultitakeTreatment MultitakeTreatment
	Accountant         AccountantFunc
}

func (s TxEventSettings) take() int {
	if s.Take < 1 {
		return 1
	}
	return s.Take
}

// ReportSettings are the user choices of one accounting report run.
type ReportSettings struct {
	TaxableAirdrops        bool
	IncludeFeesInCostBasis bool
	From                   time.Time
	To                     time.Time
}

// InRange reports whether timestampMS falls into the report period. A zero
// bound is open.
func (r ReportSettings) InRange(timestampMS int64) bool {
	ts := time.UnixMilli(timestampMS)
	if !r.From.IsZero() && ts.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && ts.After(r.To) {
		return false
	}
	return true
}

// SettingsProvider is implemented by protocol plugins that need their events
// booked.
type SettingsProvider interface {
	EventSettings(report ReportSettings) map[string]TxEventSettings
}

// DefaultSettings covers the events the generic decoder produces.
func DefaultSettings(report ReportSettings) map[string]TxEventSettings {
	id := model.TypeIdentifier
	spend := TxEventSettings{Taxable: true, CountCostBasisPnL: true, Method: MethodSpend}
	lost := TxEventSettings{Taxable: true, CountEntireAmountSpend: true, CountCostBasisPnL: true, Method: MethodSpend}
	received := TxEventSettings{CountCostBasisPnL: true, Method: MethodAcquisition}
	income := TxEventSettings{Taxable: true, CountCostBasisPnL: true, Method: MethodAcquisition}
	airdrop := TxEventSettings{Taxable: report.TaxableAirdrops, CountCostBasisPnL: true, Method: MethodAcquisition}
	swap := TxEventSettings{
		Taxable:            true,
		CountCostBasisPnL:  true,
		Method:             MethodSpend,
		Take:               2,
		MultitakeTreatment: TreatmentSwap,
	}

	return map[string]TxEventSettings{
		id(model.EventTypeSpend, model.EventSubtypeFee, "gas"):       lost,
		id(model.EventTypeSpend, model.EventSubtypeNone, ""):         spend,
		id(model.EventTypeSpend, model.EventSubtypeDonate, ""):       lost,
		id(model.EventTypeReceive, model.EventSubtypeNone, ""):       received,
		id(model.EventTypeReceive, model.EventSubtypeAirdrop, ""):    airdrop,
		id(model.EventTypeReceive, model.EventSubtypeReward, ""):     income,
		id(model.EventTypeReceive, model.EventSubtypeInterest, ""):   income,
		id(model.EventTypeStaking, model.EventSubtypeReward, ""):     income,
		id(model.EventTypeTrade, model.EventSubtypeSpend, ""):        swap,
		id(model.EventTypeMultiTrade, model.EventSubtypeSpend, ""):   spend,
		id(model.EventTypeMultiTrade, model.EventSubtypeReceive, ""): received,
		id(model.EventTypeLoss, model.EventSubtypeLiquidate, ""):     lost,
	}
}
