package indexer

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"taxScope/internal/chain"
)

func TestBlockRangeChunks(t *testing.T) {
	got, err := BlockRange{From: 100, To: 105}.Chunks(2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []BlockRange{
		{From: 100, To: 101},
		{From: 102, To: 103},
		{From: 104, To: 105},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("chunks mismatch: %+v != %+v", got, want)
	}
}

func TestBlockRangeChunksUneven(t *testing.T) {
	got, err := BlockRange{From: 5, To: 11}.Chunks(4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []BlockRange{{From: 5, To: 8}, {From: 9, To: 11}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("chunks mismatch: %+v != %+v", got, want)
	}
}

func TestBlockRangeChunksInvalid(t *testing.T) {
	if _, err := (BlockRange{From: 10, To: 9}).Chunks(1); err == nil {
		t.Fatalf("expected error for inverted range")
	}
	if _, err := (BlockRange{From: 1, To: 10}).Chunks(0); err == nil {
		t.Fatalf("expected error for zero chunk size")
	}
}

func TestBlockRangeResume(t *testing.T) {
	tests := []struct {
		name   string
		last   uint64
		ok     bool
		want   BlockRange
		remain bool
	}{
		{name: "no checkpoint", want: BlockRange{From: 100, To: 120}, remain: true},
		{name: "before range", last: 50, ok: true, want: BlockRange{From: 100, To: 120}, remain: true},
		{name: "inside range", last: 110, ok: true, want: BlockRange{From: 111, To: 120}, remain: true},
		{name: "done", last: 120, ok: true, want: BlockRange{From: 121, To: 120}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, remain := BlockRange{From: 100, To: 120}.resume(tt.last, tt.ok)
			if got != tt.want || remain != tt.remain {
				t.Fatalf("resume = %+v, %v; want %+v, %v", got, remain, tt.want, tt.remain)
			}
		})
	}
}

func TestBackoffStopsOnPending(t *testing.T) {
	calls := 0
	err := newBackoff(5, time.Nanosecond).Do(context.Background(), func(context.Context) error {
		calls++
		return fmt.Errorf("transaction 0x01: %w", chain.ErrPending)
	})
	if !errors.Is(err, chain.ErrPending) {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}

func TestBackoffRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := newBackoff(3, time.Nanosecond).Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection reset")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestBackoffHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := newBackoff(3, time.Hour).Do(ctx, func(context.Context) error {
		return errors.New("connection reset")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
