package storage

import (
	"context"
	"errors"

	"taxScope/internal/model"
)

// EventSink receives the decoded events of one or more transactions. Events
// of a transaction are always handed over in one call, so a sink may replace
// everything it stored for that transaction.
type EventSink interface {
	PutEvents(ctx context.Context, events []*model.HistoryEvent) error
}

// ErrorSink additionally records transactions that failed to decode.
type ErrorSink interface {
	PutDecodeErrors(ctx context.Context, errs []model.DecodeError) error
}

// MultiSink fans out to several sinks. Every sink is tried; the errors are
// joined.
type MultiSink []EventSink

func (m MultiSink) PutEvents(ctx context.Context, events []*model.HistoryEvent) error {
	var errs []error
	for _, sink := range m {
		if err := sink.PutEvents(ctx, events); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiSink) PutDecodeErrors(ctx context.Context, decodeErrs []model.DecodeError) error {
	var errs []error
	for _, sink := range m {
		errSink, ok := sink.(ErrorSink)
		if !ok {
			continue
		}
		if err := errSink.PutDecodeErrors(ctx, decodeErrs); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
