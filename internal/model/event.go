package model

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Classification is the semantic label a rule assigns to an event.
type Classification struct {
	EventType    HistoryEventType
	EventSubtype HistoryEventSubType
	Counterparty string
	Notes        string
}

// HistoryEvent is one classified financial event.
//
// Events produced by the generic transfer decoder start Unclassified and can be
// claimed exactly once by a protocol rule or ActionItem. Events built directly
// by a rule start Classified.
type HistoryEvent struct {
	EntryType       EntryType           `json:"entry_type"`
	EventIdentifier string              `json:"event_identifier"`
	SequenceIndex   int                 `json:"sequence_index"`
	Timestamp       int64               `json:"timestamp"`
	Location        Location            `json:"location"`
	LocationLabel   string              `json:"location_label,omitempty"`
	Asset           string              `json:"asset"`
	Amount          decimal.Decimal     `json:"amount"`
	EventType       HistoryEventType    `json:"event_type"`
	EventSubtype    HistoryEventSubType `json:"event_subtype"`
	Counterparty    string              `json:"counterparty,omitempty"`
	Notes           string              `json:"notes,omitempty"`
	Address         *common.Address     `json:"address,omitempty"`
	TxHash          *common.Hash        `json:"tx_hash,omitempty"`
	ExtraData       map[string]any      `json:"extra_data,omitempty"`

	classified bool
}

// NewEvmEvent builds an Unclassified chain event for a transaction.
func NewEvmEvent(tx EvmTransaction, sequenceIndex int, asset string, amount decimal.Decimal, label string, c Classification) *HistoryEvent {
	hash := tx.TxHash
	return &HistoryEvent{
		EntryType:       EntryEvmEvent,
		EventIdentifier: EventIdentifierForTx(tx.ChainID, tx.TxHash),
		SequenceIndex:   sequenceIndex,
		Timestamp:       tx.TimestampMS(),
		Location:        tx.ChainID.Location(),
		LocationLabel:   label,
		Asset:           asset,
		Amount:          amount,
		EventType:       c.EventType,
		EventSubtype:    c.EventSubtype,
		Counterparty:    c.Counterparty,
		Notes:           c.Notes,
		TxHash:          &hash,
	}
}

// EventIdentifierForTx groups all events of one transaction.
func EventIdentifierForTx(chain ChainID, hash common.Hash) string {
	return fmt.Sprintf("%d%s", chain, hash.Hex())
}

// IsClassified reports whether a rule already claimed the event.
func (e *HistoryEvent) IsClassified() bool {
	return e.classified
}

// MarkClassified freezes the current labels. Rules call it on events they build.
func (e *HistoryEvent) MarkClassified() *HistoryEvent {
	e.classified = true
	return e
}

// Claim applies c if the event is still Unclassified. Empty notes keep the
// existing ones. It returns false if another rule got there first.
func (e *HistoryEvent) Claim(c Classification) bool {
	if e.classified {
		return false
	}
	e.apply(c)
	e.classified = true
	return true
}

// ClaimIf claims the event only when match accepts it.
func (e *HistoryEvent) ClaimIf(match func(*HistoryEvent) bool, c Classification) bool {
	if e.classified || !match(e) {
		return false
	}
	return e.Claim(c)
}

// Reclassify overwrites the labels regardless of state. Only transaction scope
// passes (post-decoding rules, swap consolidation) should use it.
func (e *HistoryEvent) Reclassify(c Classification) {
	e.apply(c)
	e.classified = true
}

func (e *HistoryEvent) apply(c Classification) {
	e.EventType = c.EventType
	e.EventSubtype = c.EventSubtype
	e.Counterparty = c.Counterparty
	if c.Notes != "" {
		e.Notes = c.Notes
	}
}

// TimestampMS returns the event time in milliseconds.
func (e *HistoryEvent) TimestampMS() int64 {
	return e.Timestamp
}

// SetExtra stores a protocol specific value.
func (e *HistoryEvent) SetExtra(key string, value any) {
	if e.ExtraData == nil {
		e.ExtraData = make(map[string]any)
	}
	e.ExtraData[key] = value
}

// TypeIdentifier is the accounting lookup key: TYPE.SUBTYPE[.counterparty].
func (e *HistoryEvent) TypeIdentifier() string {
	return TypeIdentifier(e.EventType, e.EventSubtype, e.Counterparty)
}

// TypeIdentifier builds the accounting key for a type triple.
func TypeIdentifier(t HistoryEventType, st HistoryEventSubType, counterparty string) string {
	id := string(t) + "." + string(st)
	if counterparty != "" {
		id += "." + counterparty
	}
	return id
}
