package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"logscope/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS pool_events (
	chain_id      BIGINT  NOT NULL,
	block_number  BIGINT  NOT NULL,
	block_hash    TEXT    NOT NULL,
	tx_hash       TEXT    NOT NULL,
	log_index     BIGINT  NOT NULL,
	address       TEXT    NOT NULL,
	event_name    TEXT    NOT NULL,
	block_ts      BIGINT,
	removed       BOOLEAN NOT NULL DEFAULT false,
	decoded       JSONB   NOT NULL,
	pool_meta     JSONB,
	raw           JSONB,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (chain_id, block_hash, log_index)
);
CREATE TABLE IF NOT EXISTS decode_errors (
	chain_id      BIGINT NOT NULL,
	block_number  BIGINT NOT NULL,
	tx_hash       TEXT   NOT NULL,
	log_index     BIGINT NOT NULL,
	address       TEXT   NOT NULL,
	topic0        TEXT   NOT NULL,
	data          TEXT   NOT NULL,
	error         TEXT   NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (chain_id, block_number, tx_hash, log_index)
);
CREATE TABLE IF NOT EXISTS indexer_state (
	name                 TEXT PRIMARY KEY,
	last_processed_block BIGINT NOT NULL,
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Store provides Postgres persistence for typed events and decode errors.
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

// EnsureSchema creates the tables used by the store if they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// PutEvents upserts typed events keyed by (chain_id, block_hash, log_index).
// A replayed event refreshes its removed flag and metadata.
func (s *Store) PutEvents(ctx context.Context, events []model.TypedEvent) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, event := range events {
		decoded, err := jsonText(event.Decoded)
		if err != nil {
			return fmt.Errorf("marshal decoded: %w", err)
		}
		poolMeta, err := jsonTextOrNil(event.PoolMeta)
		if err != nil {
			return fmt.Errorf("marshal pool meta: %w", err)
		}
		raw, err := jsonTextOrNil(event.Raw)
		if err != nil {
			return fmt.Errorf("marshal raw: %w", err)
		}
		var ts interface{}
		if event.Timestamp > 0 {
			ts = int64(event.Timestamp)
		}

		batch.Queue(`
			INSERT INTO pool_events (
				chain_id, block_number, block_hash, tx_hash, log_index, address, event_name,
				block_ts, removed, decoded, pool_meta, raw, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,now(),now())
			ON CONFLICT (chain_id, block_hash, log_index)
			DO UPDATE SET
				removed = EXCLUDED.removed,
				block_ts = COALESCE(EXCLUDED.block_ts, pool_events.block_ts),
				pool_meta = COALESCE(EXCLUDED.pool_meta, pool_events.pool_meta),
				updated_at = now()
		`,
			int64(event.ChainID),
			int64(event.BlockNumber),
			event.BlockHash,
			event.TxHash,
			int64(event.LogIndex),
			event.Address,
			event.EventName,
			ts,
			event.Removed,
			decoded,
			poolMeta,
			raw,
		)
	}

	return s.sendBatch(ctx, batch, len(events))
}

// PutDecodeErrors inserts decode error records, ignoring ones already stored.
func (s *Store) PutDecodeErrors(ctx context.Context, records []model.DecodeError) error {
	if len(records) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, record := range records {
		batch.Queue(`
			INSERT INTO decode_errors (
				chain_id, block_number, tx_hash, log_index, address, topic0, data, error, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now())
			ON CONFLICT (chain_id, block_number, tx_hash, log_index) DO NOTHING
		`,
			int64(record.ChainID),
			int64(record.BlockNumber),
			record.TxHash,
			int64(record.LogIndex),
			record.Address,
			record.Topic0,
			record.Data,
			record.Error,
		)
	}

	return s.sendBatch(ctx, batch, len(records))
}

func (s *Store) sendBatch(ctx context.Context, batch *pgx.Batch, n int) error {
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < n; i++ {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadState returns last_processed_block for a name.
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

// SaveState upserts last_processed_block for a name.
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

// StateCheckpoint adapts the indexer_state table to a named checkpoint.
type StateCheckpoint struct {
	store *Store
	name  string
}

// Checkpoint returns a checkpoint stored under name.
func (s *Store) Checkpoint(name string) *StateCheckpoint {
	return &StateCheckpoint{store: s, name: name}
}

func (c *StateCheckpoint) Load(ctx context.Context) (uint64, bool, error) {
	return c.store.LoadState(ctx, c.name)
}

func (c *StateCheckpoint) Save(ctx context.Context, lastProcessed uint64) error {
	return c.store.SaveState(ctx, c.name, lastProcessed)
}

func jsonText(value interface{}) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func jsonTextOrNil[T any](value *T) (interface{}, error) {
	if value == nil {
		return nil, nil
	}
	return jsonText(value)
}
