package natssink

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"taxScope/internal/model"
)

// Conn is the part of *nats.Conn the sink uses.
type Conn interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
}

// Sink publishes decoded events as JSON, one message per event, on
// <prefix>.<location>.
type Sink struct {
	conn   Conn
	prefix string
	logger *zap.Logger
	closer func()
}

// Connect dials NATS and returns a sink publishing under prefix.
func Connect(url, prefix string, logger *zap.Logger) (*Sink, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := nats.Connect(url,
		nats.Name("taxscope"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	sink := NewSink(conn, prefix, logger)
	sink.closer = conn.Close
	return sink, nil
}

func NewSink(conn Conn, prefix string, logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefix == "" {
		prefix = "taxscope.events"
	}
	return &Sink{conn: conn, prefix: strings.TrimSuffix(prefix, "."), logger: logger}
}

// Subject returns the subject events of location are published on.
func (s *Sink) Subject(location model.Location) string {
	return s.prefix + "." + string(location)
}

// PutEvents publishes events in order and waits for the server to ack the
// flush.
func (s *Sink) PutEvents(ctx context.Context, events []*model.HistoryEvent) error {
	if len(events) == 0 {
		return nil
	}
	for _, event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("marshal event %s/%d: %w", event.EventIdentifier, event.SequenceIndex, err)
		}
		if err := s.conn.Publish(s.Subject(event.Location), data); err != nil {
			return fmt.Errorf("publish event %s/%d: %w", event.EventIdentifier, event.SequenceIndex, err)
		}
	}
	if err := s.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush nats: %w", err)
	}
	s.logger.Debug("events published", zap.Int("events", len(events)))
	return nil
}

func (s *Sink) Close() {
	if s.closer != nil {
		s.closer()
	}
}
