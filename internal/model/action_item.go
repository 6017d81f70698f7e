package model

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ActionItemAction selects what happens to the event an ActionItem matches.
type ActionItemAction string

const (
	ActionTransform   ActionItemAction = "transform"
	ActionSkip        ActionItemAction = "skip"
	ActionSkipAndKeep ActionItemAction = "skip & keep"
)

// amountTolerance absorbs rounding between log data and computed amounts.
var amountTolerance = decimal.New(1, -12)

// ActionItem is a deferred transformation for an event not decoded yet.
type ActionItem struct {
	Action           ActionItemAction
	FromEventType    HistoryEventType
	FromEventSubtype HistoryEventSubType
	// Asset and Amount are wildcards when empty.
	Asset         string
	Amount        *decimal.Decimal
	LocationLabel string

	ToEventType     HistoryEventType
	ToEventSubtype  HistoryEventSubType
	ToNotes         string
	ToCounterparty  string
	ToAddress       *common.Address
	ToLocationLabel string
	ExtraData       map[string]any

	// PairedEvents are reshuffled around the matched event so the group gets
	// consecutive sequence indexes. PairedEventsFirst puts them before it.
	PairedEvents      []*HistoryEvent
	PairedEventsFirst bool
	// PairWithNext makes the next pending item match the event right after.
	PairWithNext bool
}

// Matches reports whether the event fits the item's pattern.
func (a ActionItem) Matches(e *HistoryEvent) bool {
	if e.IsClassified() {
		return false
	}
	if e.EventType != a.FromEventType || e.EventSubtype != a.FromEventSubtype {
		return false
	}
	if a.Asset != "" && !strings.EqualFold(a.Asset, e.Asset) {
		return false
	}
	if a.Amount != nil && e.Amount.Sub(*a.Amount).Abs().GreaterThan(amountTolerance) {
		return false
	}
	if a.LocationLabel != "" && !strings.EqualFold(a.LocationLabel, e.LocationLabel) {
		return false
	}
	return true
}

// Apply transforms e per the item's target fields. The {amount} and {symbol}
// placeholders in ToNotes are filled from the event.
func (a ActionItem) Apply(e *HistoryEvent, symbol string) {
	c := Classification{
		EventType:    e.EventType,
		EventSubtype: e.EventSubtype,
		Counterparty: e.Counterparty,
	}
	if a.ToEventType != "" {
		c.EventType = a.ToEventType
	}
	if a.ToEventSubtype != "" {
		c.EventSubtype = a.ToEventSubtype
	}
	if a.ToCounterparty != "" {
		c.Counterparty = a.ToCounterparty
	}
	if a.ToNotes != "" {
		c.Notes = strings.NewReplacer(
			"{amount}", e.Amount.String(),
			"{symbol}", symbol,
		).Replace(a.ToNotes)
	}
	e.Claim(c)
	if a.ToAddress != nil {
		addr := *a.ToAddress
		e.Address = &addr
	}
	if a.ToLocationLabel != "" {
		e.LocationLabel = a.ToLocationLabel
	}
	for k, v := range a.ExtraData {
		e.SetExtra(k, v)
	}
}
