package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taxScope/internal/model"
)

func sampleEvents() []*model.HistoryEvent {
	tx := model.EvmTransaction{TxHash: common.HexToHash("0x01"), ChainID: model.ChainEthereum, Timestamp: 1700000000}
	gas := model.NewEvmEvent(tx, 0, "ETH", decimal.RequireFromString("0.0021"), "0x1000000000000000000000000000000000000001", model.Classification{
		EventType:    model.EventTypeSpend,
		EventSubtype: model.EventSubtypeFee,
		Counterparty: "gas",
	})
	recv := model.NewEvmEvent(tx, 1, "eip155:1/erc20:0x6B175474E89094C44Da98b954EedeAC495271d0F", decimal.NewFromInt(10), "0x1000000000000000000000000000000000000001", model.Classification{
		EventType:    model.EventTypeReceive,
		EventSubtype: model.EventSubtypeNone,
	})
	return []*model.HistoryEvent{gas, recv}
}

func TestJsonlRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "events.jsonl")
	sink := NewJsonlStorage(path)

	require.NoError(t, sink.PutEvents(context.Background(), sampleEvents()))
	require.NoError(t, sink.PutEvents(context.Background(), nil))

	events, err := ReadEvents(path)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, model.EventSubtypeFee, events[0].EventSubtype)
	assert.True(t, events[0].Amount.Equal(decimal.RequireFromString("0.0021")))
	assert.Equal(t, 1, events[1].SequenceIndex)
	assert.Equal(t, events[0].EventIdentifier, events[1].EventIdentifier)
}

func TestJsonlRedecodeReplacesTransaction(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	sink := NewJsonlStorage(path)
	ctx := context.Background()

	first := sampleEvents()
	other := model.EvmTransaction{TxHash: common.HexToHash("0x02"), ChainID: model.ChainEthereum, Timestamp: 1700000100}
	unrelated := model.NewEvmEvent(other, 0, "ETH", decimal.NewFromInt(1), "0x1000000000000000000000000000000000000001", model.Classification{
		EventType:    model.EventTypeReceive,
		EventSubtype: model.EventSubtypeNone,
	})
	require.NoError(t, sink.PutEvents(ctx, first))
	require.NoError(t, sink.PutEvents(ctx, []*model.HistoryEvent{unrelated}))

	// The second decode of tx 0x01 yields only the fee row.
	redecoded := sampleEvents()[:1]
	require.NoError(t, sink.PutEvents(ctx, redecoded))
	require.NoError(t, sink.PutEvents(ctx, redecoded))

	events, err := ReadEvents(path)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, unrelated.EventIdentifier, events[0].EventIdentifier)
	assert.Equal(t, first[0].EventIdentifier, events[1].EventIdentifier)
	assert.Equal(t, model.EventSubtypeFee, events[1].EventSubtype)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestJsonlReplacesRowsFromEarlierRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	require.NoError(t, NewJsonlStorage(path).PutEvents(context.Background(), sampleEvents()))

	require.NoError(t, NewJsonlStorage(path).PutEvents(context.Background(), sampleEvents()))

	events, err := ReadEvents(path)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestJsonlDecodeErrorsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	sink := NewJsonlStorage(path)

	err := sink.PutDecodeErrors(context.Background(), []model.DecodeError{{ChainID: model.ChainEthereum, TxHash: "0x01", Kind: "remote", Error: "timeout"}})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(filepath.Dir(path), "events.errors.jsonl"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"kind":"remote"`)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestReadEventsBadLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("\n{not json}\n"), 0o644))

	_, err := ReadEvents(path)
	assert.ErrorContains(t, err, "line 2")
}

type failingSink struct{ err error }

func (f failingSink) PutEvents(context.Context, []*model.HistoryEvent) error { return f.err }

func TestMultiSinkTriesEverySink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	boom := errors.New("boom")
	multi := MultiSink{failingSink{err: boom}, NewJsonlStorage(path)}

	err := multi.PutEvents(context.Background(), sampleEvents())
	assert.ErrorIs(t, err, boom)

	events, err := ReadEvents(path)
	require.NoError(t, err)
	assert.Len(t, events, 2)

	require.NoError(t, multi.PutDecodeErrors(context.Background(), []model.DecodeError{{TxHash: "0x02"}}))
}
