package model

import (
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

func sampleTx() EvmTransaction {
	return EvmTransaction{
		TxHash:    common.HexToHash("0x01"),
		ChainID:   ChainEthereum,
		Timestamp: 1700000000,
	}
}

func TestClaimOnlyOnce(t *testing.T) {
	event := NewEvmEvent(sampleTx(), 3, "ETH", decimal.NewFromInt(1), "0xabc", Classification{
		EventType:    EventTypeSpend,
		EventSubtype: EventSubtypeNone,
		Notes:        "Send 1 ETH",
	})

	if event.IsClassified() {
		t.Fatalf("new transfer event should be unclassified")
	}

	ok := event.Claim(Classification{
		EventType:    EventTypeDeposit,
		EventSubtype: EventSubtypeDepositAsset,
		Counterparty: "pickle-finance",
	})
	if !ok {
		t.Fatalf("first claim should succeed")
	}
	if event.Notes != "Send 1 ETH" {
		t.Fatalf("empty notes should keep existing notes, got %q", event.Notes)
	}

	if event.Claim(Classification{EventType: EventTypeReceive, EventSubtype: EventSubtypeNone}) {
		t.Fatalf("second claim should fail")
	}
	if event.EventType != EventTypeDeposit || event.Counterparty != "pickle-finance" {
		t.Fatalf("claimed labels changed: %+v", event)
	}
}

func TestClaimIfPredicate(t *testing.T) {
	event := NewEvmEvent(sampleTx(), 0, "ETH", decimal.NewFromInt(2), "0xabc", Classification{
		EventType:    EventTypeReceive,
		EventSubtype: EventSubtypeNone,
	})

	isSpend := func(e *HistoryEvent) bool { return e.EventType == EventTypeSpend }
	if event.ClaimIf(isSpend, Classification{EventType: EventTypeTrade, EventSubtype: EventSubtypeSpend}) {
		t.Fatalf("predicate mismatch should not claim")
	}
	if event.IsClassified() {
		t.Fatalf("failed claim must leave event unclassified")
	}
}

func TestReclassifyOverridesClaim(t *testing.T) {
	event := NewEvmEvent(sampleTx(), 0, "ETH", decimal.NewFromInt(2), "0xabc", Classification{})
	event.Claim(Classification{EventType: EventTypeSpend, EventSubtype: EventSubtypeNone})
	event.Reclassify(Classification{EventType: EventTypeTrade, EventSubtype: EventSubtypeSpend, Counterparty: "uniswap-v2"})
	if event.EventType != EventTypeTrade || event.Counterparty != "uniswap-v2" {
		t.Fatalf("reclassify did not apply: %+v", event)
	}
}

func TestTypeIdentifier(t *testing.T) {
	cases := []struct {
		t    HistoryEventType
		st   HistoryEventSubType
		cpt  string
		want string
	}{
		{EventTypeDeposit, EventSubtypeDepositAsset, "pickle-finance", "DEPOSIT.DEPOSIT_ASSET.pickle-finance"},
		{EventTypeSpend, EventSubtypeFee, "gas", "SPEND.FEE.gas"},
		{EventTypeReceive, EventSubtypeNone, "", "RECEIVE.NONE"},
	}
	for _, tc := range cases {
		if got := TypeIdentifier(tc.t, tc.st, tc.cpt); got != tc.want {
			t.Fatalf("type identifier mismatch: %s != %s", got, tc.want)
		}
	}
}

func TestHistoryEventJSONEnums(t *testing.T) {
	event := NewEvmEvent(sampleTx(), 1, "ETH", decimal.RequireFromString("0.5"), "0xabc", Classification{
		EventType:    EventTypeWithdrawal,
		EventSubtype: EventSubtypeRemoveAsset,
	})

	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded HistoryEvent
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded.EventType != EventTypeWithdrawal || decoded.EventSubtype != EventSubtypeRemoveAsset {
		t.Fatalf("enum mismatch: %+v", decoded)
	}
	if !decoded.Amount.Equal(event.Amount) {
		t.Fatalf("amount mismatch: %s != %s", decoded.Amount, event.Amount)
	}

	if err := json.Unmarshal([]byte(`{"event_type":"NOT_A_TYPE","event_subtype":"NONE"}`), &decoded); err == nil {
		t.Fatalf("expected error for unknown event type")
	}
}
