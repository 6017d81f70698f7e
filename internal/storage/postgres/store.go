package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"taxScope/internal/model"
)

// Schema creates the tables the store writes to.
const Schema = `
CREATE TABLE IF NOT EXISTS history_events (
	event_identifier TEXT NOT NULL,
	sequence_index   INTEGER NOT NULL,
	entry_type       TEXT NOT NULL,
	timestamp_ms     BIGINT NOT NULL,
	location         TEXT NOT NULL,
	location_label   TEXT,
	asset            TEXT NOT NULL,
	amount           NUMERIC NOT NULL,
	event_type       TEXT NOT NULL,
	event_subtype    TEXT NOT NULL,
	counterparty     TEXT,
	notes            TEXT,
	address          TEXT,
	tx_hash          TEXT,
	extra_data       JSONB,
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (event_identifier, sequence_index)
);
CREATE TABLE IF NOT EXISTS decode_errors (
	chain_id     BIGINT NOT NULL,
	tx_hash      TEXT NOT NULL,
	block_number BIGINT,
	kind         TEXT NOT NULL,
	error        TEXT NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (chain_id, tx_hash)
);
CREATE TABLE IF NOT EXISTS indexer_state (
	name                 TEXT PRIMARY KEY,
	last_processed_block BIGINT NOT NULL,
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Store persists decoded history events in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates missing tables.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, Schema)
	return err
}

// PutEvents replaces the stored events of every transaction in events. Stale
// rows of a redecoded transaction are deleted first, then the new rows are
// upserted by (event_identifier, sequence_index), all in one transaction.
func (s *Store) PutEvents(ctx context.Context, events []*model.HistoryEvent) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, id := range eventIdentifiers(events) {
		batch.Queue(`DELETE FROM history_events WHERE event_identifier = $1`, id)
	}
	for _, e := range events {
		row, err := eventRow(e)
		if err != nil {
			return err
		}
		batch.Queue(`
			INSERT INTO history_events (
				event_identifier, sequence_index, entry_type, timestamp_ms, location, location_label,
				asset, amount, event_type, event_subtype, counterparty, notes, address, tx_hash, extra_data, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,now())
			ON CONFLICT (event_identifier, sequence_index)
			DO UPDATE SET
				entry_type = EXCLUDED.entry_type,
				timestamp_ms = EXCLUDED.timestamp_ms,
				location = EXCLUDED.location,
				location_label = EXCLUDED.location_label,
				asset = EXCLUDED.asset,
				amount = EXCLUDED.amount,
				event_type = EXCLUDED.event_type,
				event_subtype = EXCLUDED.event_subtype,
				counterparty = EXCLUDED.counterparty,
				notes = EXCLUDED.notes,
				address = EXCLUDED.address,
				tx_hash = EXCLUDED.tx_hash,
				extra_data = EXCLUDED.extra_data,
				updated_at = now()
		`, row...)
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		br := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("write history events: %w", err)
			}
		}
		return br.Close()
	})
}

// PutDecodeErrors upserts failed transactions.
func (s *Store) PutDecodeErrors(ctx context.Context, errs []model.DecodeError) error {
	if len(errs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range errs {
		batch.Queue(`
			INSERT INTO decode_errors (chain_id, tx_hash, block_number, kind, error, updated_at)
			VALUES ($1, $2, $3, $4, $5, now())
			ON CONFLICT (chain_id, tx_hash)
			DO UPDATE SET
				block_number = EXCLUDED.block_number,
				kind = EXCLUDED.kind,
				error = EXCLUDED.error,
				updated_at = now()
		`, int64(e.ChainID), e.TxHash, int64(e.BlockNumber), e.Kind, e.Error)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range errs {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadState returns the last processed block stored under name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var block int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_block FROM indexer_state WHERE name=$1`, name)
	if err := row.Scan(&block); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(block), true, nil
}

// SaveState upserts the last processed block for name.
func (s *Store) SaveState(ctx context.Context, name string, block uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO indexer_state (name, last_processed_block, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_block = EXCLUDED.last_processed_block, updated_at = now()
	`, name, int64(block))
	return err
}

// eventIdentifiers returns the distinct identifiers in first-seen order.
func eventIdentifiers(events []*model.HistoryEvent) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, e := range events {
		if _, ok := seen[e.EventIdentifier]; ok {
			continue
		}
		seen[e.EventIdentifier] = struct{}{}
		ids = append(ids, e.EventIdentifier)
	}
	return ids
}

func eventRow(e *model.HistoryEvent) ([]any, error) {
	var address, txHash *string
	if e.Address != nil {
		v := e.Address.Hex()
		address = &v
	}
	if e.TxHash != nil {
		v := e.TxHash.Hex()
		txHash = &v
	}
	var extra []byte
	if len(e.ExtraData) > 0 {
		var err error
		extra, err = json.Marshal(e.ExtraData)
		if err != nil {
			return nil, fmt.Errorf("marshal extra data of %s/%d: %w", e.EventIdentifier, e.SequenceIndex, err)
		}
	}
	return []any{
		e.EventIdentifier,
		e.SequenceIndex,
		string(e.EntryType),
		e.Timestamp,
		string(e.Location),
		nullable(e.LocationLabel),
		e.Asset,
		e.Amount.String(),
		string(e.EventType),
		string(e.EventSubtype),
		nullable(e.Counterparty),
		nullable(e.Notes),
		address,
		txHash,
		extra,
	}, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
