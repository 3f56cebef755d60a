package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"

	"logscope/internal/model"
)

// Store appends typed events and decode errors to two Redis streams.
type Store struct {
	client *redis.Client
	prefix string
	maxLen int64
}

// NewStore connects to Redis. Streams are named <prefix>events and
// <prefix>decode_errors and trimmed to roughly maxLen entries when maxLen > 0.
func NewStore(ctx context.Context, addr, password string, db int, prefix string, maxLen int64) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	if prefix == "" {
		prefix = "logscope:"
	}
	return &Store{client: rdb, prefix: prefix, maxLen: maxLen}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// EventsStream returns the stream key holding typed events.
func (s *Store) EventsStream() string {
	return s.prefix + "events"
}

// DecodeErrorsStream returns the stream key holding decode errors.
func (s *Store) DecodeErrorsStream() string {
	return s.prefix + "decode_errors"
}

func (s *Store) PutEvents(ctx context.Context, events []model.TypedEvent) error {
	if len(events) == 0 {
		return nil
	}

	pipe := s.client.TxPipeline()
	for _, event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}
		pipe.XAdd(ctx, s.args(s.EventsStream(), map[string]interface{}{
			"event":  event.EventName,
			"block":  event.BlockNumber,
			"record": data,
		}))
	}

	_, err := pipe.Exec(ctx)
	return err
}

func (s *Store) PutDecodeErrors(ctx context.Context, records []model.DecodeError) error {
	if len(records) == 0 {
		return nil
	}

	pipe := s.client.TxPipeline()
	for _, record := range records {
		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to marshal decode error: %w", err)
		}
		pipe.XAdd(ctx, s.args(s.DecodeErrorsStream(), map[string]interface{}{
			"block":  record.BlockNumber,
			"record": data,
		}))
	}

	_, err := pipe.Exec(ctx)
	return err
}

func (s *Store) args(stream string, values map[string]interface{}) *redis.XAddArgs {
	args := &redis.XAddArgs{
		Stream: stream,
		Values: values,
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	return args
}
