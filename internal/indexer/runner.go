package indexer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"logscope/internal/dex"
	"logscope/internal/metrics"
	"logscope/internal/model"
	"logscope/internal/storage"
	"logscope/internal/typedlogs"
)

// RunConfig holds runtime settings for the indexer.
type RunConfig struct {
	FromBlock    uint64
	ToBlock      uint64
	Addresses    []common.Address
	Topic0       []common.Hash
	BatchSize    uint64
	Follow       bool
	MaxRetries   int
	RetryBackoff time.Duration
}

// Runner backfills historical pool events and then follows new ones through
// a typed log subscription.
type Runner struct {
	cfg        RunConfig
	client     *typedlogs.Middleware
	decoder    typedlogs.Decoder[model.PoolEvent]
	enricher   *dex.Enricher
	sink       storage.Sink
	checkpoint Checkpointer
	logger     *zap.Logger
	retry      backoff

	chainID uint64
	next    uint64
	seen    map[uint64]map[string]struct{}
}

// dedupWindow is how many blocks behind the checkpoint stay in the dedup set.
// Overlapping backfills and replayed subscriptions only reach back this far.
const dedupWindow = 64

// NewRunner builds a Runner with its dependencies. checkpoint may be nil.
func NewRunner(cfg RunConfig, client *typedlogs.Middleware, decoder typedlogs.Decoder[model.PoolEvent], enricher *dex.Enricher, sink storage.Sink, checkpoint Checkpointer, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:        cfg,
		client:     client,
		decoder:    decoder,
		enricher:   enricher,
		sink:       sink,
		checkpoint: checkpoint,
		logger:     logger,
		retry:      newBackoff(cfg.MaxRetries, cfg.RetryBackoff),
		seen:       make(map[uint64]map[string]struct{}),
	}
}

// Run backfills up to the chain head and, when following, consumes the live
// subscription. A failed subscription is reopened after the missed range is
// backfilled again. Run returns nil once the subscription ends or, without
// Follow, once the backfill completes.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.validate(); err != nil {
		return err
	}

	var chainID *big.Int
	err := r.retry.do(ctx, func(ctx context.Context) error {
		var err error
		chainID, err = r.client.ChainID(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}
	if !chainID.IsUint64() {
		return fmt.Errorf("chain id does not fit in uint64: %s", chainID)
	}
	r.chainID = chainID.Uint64()

	r.next = r.cfg.FromBlock
	if r.checkpoint != nil {
		last, ok, err := r.checkpoint.Load(ctx)
		if err != nil {
			return err
		}
		if ok && last >= r.next {
			r.next = last + 1
			r.logger.Info("resume from checkpoint", zap.Uint64("last_processed", last), zap.Uint64("from", r.next))
		}
	}

	if !r.cfg.Follow {
		to := r.cfg.ToBlock
		if to == 0 {
			head, err := r.headWithRetry(ctx)
			if err != nil {
				return err
			}
			to = head
		}
		return r.backfill(ctx, to)
	}

	for {
		stream, err := r.subscribeWithRetry(ctx)
		if err != nil {
			return err
		}

		// The subscription is open before the head is read so no block falls
		// between the backfill and the first pushed log.
		head, err := r.headWithRetry(ctx)
		if err == nil {
			err = r.backfill(ctx, head)
		}
		if err != nil {
			stream.Close()
			return err
		}

		err = r.consume(ctx, stream)
		var streamErr *typedlogs.Error
		switch {
		case errors.Is(err, typedlogs.ErrStreamExhausted):
			r.logger.Info("subscription ended", zap.Uint64("next_block", r.next))
			return nil
		case errors.As(err, &streamErr) && streamErr.Op == "stream":
			r.logger.Warn("subscription dropped, resubscribing", zap.Error(err), zap.Uint64("from", r.next))
			continue
		default:
			return err
		}
	}
}

func (r *Runner) validate() error {
	if r.client == nil {
		return fmt.Errorf("chain client is nil")
	}
	if r.decoder == nil {
		return fmt.Errorf("decoder is nil")
	}
	if r.enricher == nil {
		return fmt.Errorf("enricher is nil")
	}
	if r.sink == nil {
		return fmt.Errorf("storage is nil")
	}
	if r.cfg.BatchSize == 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}
	if len(r.cfg.Addresses) == 0 {
		return fmt.Errorf("at least one address is required")
	}
	if r.cfg.Follow && !r.client.SupportsPubsub() {
		return fmt.Errorf("follow mode: %w", typedlogs.ErrPubsubUnsupported)
	}
	return nil
}

func (r *Runner) query() ethereum.FilterQuery {
	q := ethereum.FilterQuery{Addresses: r.cfg.Addresses}
	if len(r.cfg.Topic0) > 0 {
		q.Topics = [][]common.Hash{r.cfg.Topic0}
	}
	return q
}

func (r *Runner) backfill(ctx context.Context, to uint64) error {
	if r.next > to {
		r.logger.Debug("nothing to backfill", zap.Uint64("from", r.next), zap.Uint64("to", to))
		return nil
	}

	ranges, err := SplitRange(r.next, to, r.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, blockRange := range ranges {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		r.logger.Info("fetch logs", zap.Stringer("range", blockRange))

		envelopes, failures, err := r.filterWithRetry(ctx, blockRange)
		if err != nil {
			return fmt.Errorf("filter logs: %w", err)
		}

		events := make([]model.TypedEvent, 0, len(envelopes))
		for _, env := range envelopes {
			if r.isDuplicate(env.Log) {
				continue
			}
			event, err := r.enrich(ctx, env)
			if err != nil {
				return err
			}
			events = append(events, event)
		}

		if err := r.sink.PutEvents(ctx, events); err != nil {
			return fmt.Errorf("store events: %w", err)
		}
		if err := r.storeDecodeErrors(ctx, failures); err != nil {
			return err
		}
		if err := r.advance(ctx, blockRange.To+1); err != nil {
			return err
		}

		r.logger.Info("batch complete",
			zap.Int("events", len(events)),
			zap.Int("decode_errors", len(failures)),
			zap.Uint64("from", blockRange.From),
			zap.Uint64("to", blockRange.To),
		)
	}

	return nil
}

func (r *Runner) consume(ctx context.Context, stream *typedlogs.Stream[model.PoolEvent]) error {
	defer stream.Close()

	for {
		env, err := stream.NextEnvelope(ctx)
		var decodeErr *typedlogs.DecodeError
		switch {
		case err == nil:
		case errors.As(err, &decodeErr):
			if r.isDuplicate(decodeErr.Log) {
				continue
			}
			if err := r.storeDecodeErrors(ctx, []*typedlogs.DecodeError{decodeErr}); err != nil {
				return err
			}
			if err := r.follow(ctx, decodeErr.Log); err != nil {
				return err
			}
			continue
		default:
			return err
		}

		if r.isDuplicate(env.Log) {
			continue
		}
		event, err := r.enrich(ctx, env)
		if err != nil {
			return err
		}
		if err := r.sink.PutEvents(ctx, []model.TypedEvent{event}); err != nil {
			return fmt.Errorf("store events: %w", err)
		}
		if err := r.follow(ctx, env.Log); err != nil {
			return err
		}
	}
}

// follow advances the checkpoint once a live log from a later block arrives;
// the block it belongs to may still have logs in flight.
func (r *Runner) follow(ctx context.Context, log model.Log) error {
	if log.Pending() || log.IsRemoved() {
		return nil
	}
	block := log.BlockNumberValue()
	metrics.LastBlock.Set(float64(block))
	if block <= r.next {
		return nil
	}
	return r.advance(ctx, block)
}

// advance records that every block before next is processed.
func (r *Runner) advance(ctx context.Context, next uint64) error {
	r.next = next
	r.forget(next)
	if next == 0 {
		return nil
	}
	metrics.LastBlock.Set(float64(next - 1))
	if r.checkpoint == nil {
		return nil
	}
	return r.checkpoint.Save(ctx, next-1)
}

func (r *Runner) storeDecodeErrors(ctx context.Context, failures []*typedlogs.DecodeError) error {
	if len(failures) == 0 {
		return nil
	}
	records := make([]model.DecodeError, 0, len(failures))
	for _, failure := range failures {
		r.logger.Warn("decode failed",
			zap.String("address", failure.Log.Address.Hex()),
			zap.Uint64("block_number", failure.Log.BlockNumberValue()),
			zap.Uint64("log_index", failure.Log.LogIndexValue()),
			zap.Error(failure.Err),
		)
		records = append(records, model.NewDecodeError(r.chainID, failure.Log, failure.Err))
	}
	if err := r.sink.PutDecodeErrors(ctx, records); err != nil {
		return fmt.Errorf("store decode errors: %w", err)
	}
	return nil
}

func (r *Runner) enrich(ctx context.Context, env typedlogs.Envelope[model.PoolEvent]) (model.TypedEvent, error) {
	var event model.TypedEvent
	err := r.retry.do(ctx, func(ctx context.Context) error {
		var err error
		event, err = r.enricher.Enrich(ctx, env)
		if err != nil {
			r.logger.Warn("enrich failed", zap.Error(err), zap.Uint64("block_number", env.Log.BlockNumberValue()))
		}
		return err
	})
	if err != nil {
		return model.TypedEvent{}, fmt.Errorf("enrich %s at block %d: %w", env.Event.Name, env.Log.BlockNumberValue(), err)
	}
	return event, nil
}

func (r *Runner) filterWithRetry(ctx context.Context, blockRange BlockRange) ([]typedlogs.Envelope[model.PoolEvent], []*typedlogs.DecodeError, error) {
	q := r.query()
	q.FromBlock = new(big.Int).SetUint64(blockRange.From)
	q.ToBlock = new(big.Int).SetUint64(blockRange.To)

	var (
		envelopes []typedlogs.Envelope[model.PoolEvent]
		failures  []*typedlogs.DecodeError
	)
	err := r.retry.do(ctx, func(ctx context.Context) error {
		var err error
		envelopes, failures, err = typedlogs.FilterTypedLogs(ctx, r.client, q, r.decoder)
		if err != nil {
			r.logger.Warn("filter logs failed", zap.Error(err), zap.Stringer("range", blockRange))
		}
		return err
	})
	return envelopes, failures, err
}

func (r *Runner) subscribeWithRetry(ctx context.Context) (*typedlogs.Stream[model.PoolEvent], error) {
	var stream *typedlogs.Stream[model.PoolEvent]
	err := r.retry.do(ctx, func(ctx context.Context) error {
		var err error
		stream, err = typedlogs.SubscribeTypedLogs(ctx, r.client, r.query(), r.decoder)
		if err != nil {
			r.logger.Warn("subscribe failed", zap.Error(err))
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return stream, nil
}

func (r *Runner) headWithRetry(ctx context.Context) (uint64, error) {
	var head uint64
	err := r.retry.do(ctx, func(ctx context.Context) error {
		var err error
		head, err = r.client.BlockNumber(ctx)
		if err != nil {
			r.logger.Warn("latest block fetch failed", zap.Error(err))
		}
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("get latest block: %w", err)
	}
	return head, nil
}

// isDuplicate suppresses logs already handled by an overlapping backfill or a
// replayed subscription. Removal notices are tracked separately from the logs
// they retract.
func (r *Runner) isDuplicate(log model.Log) bool {
	if log.Pending() {
		return false
	}
	txHash := ""
	if log.TransactionHash != nil {
		txHash = log.TransactionHash.Hex()
	}
	block := log.BlockNumberValue()
	id := fmt.Sprintf("%s:%d:%t", txHash, log.LogIndexValue(), log.IsRemoved())
	ids, ok := r.seen[block]
	if !ok {
		ids = make(map[string]struct{})
		r.seen[block] = ids
	}
	if _, ok := ids[id]; ok {
		return true
	}
	ids[id] = struct{}{}
	return false
}

// forget drops dedup entries for blocks more than dedupWindow behind next.
func (r *Runner) forget(next uint64) {
	if next <= dedupWindow {
		return
	}
	floor := next - dedupWindow
	for block := range r.seen {
		if block < floor {
			delete(r.seen, block)
		}
	}
}
