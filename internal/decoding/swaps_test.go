package decoding

import (
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"taxScope/internal/model"
)

func leg(seq int, t model.HistoryEventType, st model.HistoryEventSubType) *model.HistoryEvent {
	event := model.NewEvmEvent(testTx(), seq, "ETH", decimal.NewFromInt(1), userAddr.Hex(), model.Classification{
		EventType:    t,
		EventSubtype: st,
		Counterparty: "dex",
	})
	return event.MarkClassified()
}

func TestConsolidateSwapsWithFee(t *testing.T) {
	events := []*model.HistoryEvent{
		leg(0, model.EventTypeSpend, model.EventSubtypeFee),
		leg(3, model.EventTypeTrade, model.EventSubtypeSpend),
		leg(7, model.EventTypeTrade, model.EventSubtypeReceive),
		leg(9, model.EventTypeTrade, model.EventSubtypeFee),
	}
	events[3].Counterparty = ""
	events[3].LocationLabel = ""
	router, pool := routerAddr, protocolAddr
	events[1].Address = &router
	events[2].Address = &pool

	out := consolidateSwaps(events, zap.NewNop())
	if len(out) != 4 {
		t.Fatalf("expected 4 events, got %d", len(out))
	}
	for i, want := range []int{0, 3, 4, 5} {
		if out[i].SequenceIndex != want {
			t.Fatalf("index %d mismatch: %d != %d", i, out[i].SequenceIndex, want)
		}
	}
	if out[3].Counterparty != "dex" || out[3].LocationLabel != userAddr.Hex() {
		t.Fatalf("fee leg should inherit spend counterparty and label: %+v", out[3])
	}
	if out[2].Address == nil || *out[2].Address != routerAddr {
		t.Fatalf("receive leg should take the spend address: %v", out[2].Address)
	}
	if out[3].Address == nil || *out[3].Address != routerAddr {
		t.Fatalf("fee leg should take the spend address: %v", out[3].Address)
	}
	if out[0].EntryType != model.EntryEvmEvent || out[1].EntryType != model.EntryEvmSwapEvent {
		t.Fatalf("entry types mismatch")
	}
}

func TestConsolidateMultiTrade(t *testing.T) {
	events := []*model.HistoryEvent{
		leg(1, model.EventTypeTrade, model.EventSubtypeSpend),
		leg(2, model.EventTypeTrade, model.EventSubtypeSpend),
		leg(5, model.EventTypeTrade, model.EventSubtypeReceive),
	}
	out := consolidateSwaps(events, zap.NewNop())
	for _, event := range out {
		if event.EventType != model.EventTypeMultiTrade {
			t.Fatalf("expected multi trade, got %s", event.EventType)
		}
	}
}

func TestConsolidateIncompleteGroupKept(t *testing.T) {
	events := []*model.HistoryEvent{
		leg(1, model.EventTypeTrade, model.EventSubtypeReceive),
		leg(2, model.EventTypeTrade, model.EventSubtypeSpend),
		leg(4, model.EventTypeReceive, model.EventSubtypeNone),
	}
	out := consolidateSwaps(events, zap.NewNop())
	if len(out) != 3 {
		t.Fatalf("expected all events kept, got %d", len(out))
	}
	for i, want := range []int{1, 2, 4} {
		if out[i].SequenceIndex != want || out[i].EntryType != model.EntryEvmEvent {
			t.Fatalf("incomplete group must be untouched: %+v", out[i])
		}
	}
}

func TestSessionReshuffleMovesGroupBehindLogs(t *testing.T) {
	logs := []model.EvmTxReceiptLog{{LogIndex: 0}, {LogIndex: 1}, {LogIndex: 2}}
	session := NewSession(testTx(), logs, NewTrackedAccounts(userAddr), nil)
	session.startLogs()

	spend := leg(session.SequenceIndex(logs[0]), model.EventTypeTrade, model.EventSubtypeSpend)
	approval := leg(session.SequenceIndex(logs[1]), model.EventTypeInformational, model.EventSubtypeApprove)
	receive := leg(session.SequenceIndex(logs[2]), model.EventTypeTrade, model.EventSubtypeReceive)

	session.Reshuffle(spend, nil, receive, spend)
	if spend.SequenceIndex != 3 || receive.SequenceIndex != 4 {
		t.Fatalf("group not moved behind the logs: spend=%d receive=%d", spend.SequenceIndex, receive.SequenceIndex)
	}

	events := []*model.HistoryEvent{spend, approval, receive}
	sortEvents(events)
	out := consolidateSwaps(events, zap.NewNop())
	if out[0] != approval || out[1] != spend || out[2] != receive {
		t.Fatalf("unexpected order after reshuffle")
	}
	if spend.EntryType != model.EntryEvmSwapEvent || receive.EntryType != model.EntryEvmSwapEvent {
		t.Fatalf("legs split by an approval must still consolidate")
	}
}

func TestSessionReshuffleSingleEventUntouched(t *testing.T) {
	session := NewSession(testTx(), []model.EvmTxReceiptLog{{LogIndex: 0}}, nil, nil)
	session.startLogs()
	only := leg(0, model.EventTypeTrade, model.EventSubtypeSpend)
	session.Reshuffle(only, nil)
	if only.SequenceIndex != 0 {
		t.Fatalf("single event moved to %d", only.SequenceIndex)
	}
}
