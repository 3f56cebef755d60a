package dex

import (
	"context"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"logscope/internal/model"
	"logscope/internal/typedlogs"
)

// BlockTimestamper resolves block timestamps.
type BlockTimestamper interface {
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
}

// EnrichConfig provides shared dependencies for enrichment. Caller and
// Timestamps are optional; without them metadata and timestamps are omitted.
type EnrichConfig struct {
	ChainID         uint64
	Caller          ethereum.ContractCaller
	Timestamps      BlockTimestamper
	PoolMetaCache   *PoolMetaCache
	TokenMetaCache  *TokenMetaCache
	Logger          *zap.Logger
	IncludeLiveMeta bool
}

// Enricher turns decoded pool events into TypedEvent records.
type Enricher struct {
	cfg EnrichConfig
}

// NewEnricher builds an Enricher.
func NewEnricher(cfg EnrichConfig) *Enricher {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.PoolMetaCache == nil {
		cfg.PoolMetaCache = NewPoolMetaCache()
	}
	if cfg.TokenMetaCache == nil {
		cfg.TokenMetaCache = NewTokenMetaCache()
	}
	return &Enricher{cfg: cfg}
}

// Enrich attaches provenance, timestamp and pool metadata to a decoded event.
func (e *Enricher) Enrich(ctx context.Context, env typedlogs.Envelope[model.PoolEvent]) (model.TypedEvent, error) {
	log := env.Log
	event := model.TypedEvent{
		ChainID:     e.cfg.ChainID,
		BlockNumber: log.BlockNumberValue(),
		LogIndex:    log.LogIndexValue(),
		Address:     log.Address.Hex(),
		EventName:   env.Event.Name,
		Removed:     log.IsRemoved(),
		Pending:     log.Pending(),
		Decoded:     env.Event.Decoded,
		Raw:         &model.RawLogRef{Data: log.Data.String()},
	}
	if log.BlockHash != nil {
		event.BlockHash = log.BlockHash.Hex()
	}
	if log.TransactionHash != nil {
		event.TxHash = log.TransactionHash.Hex()
	}
	if len(log.Topics) > 0 {
		event.Raw.Topic0 = log.Topics[0].Hex()
	}

	if e.cfg.Timestamps != nil && !log.Pending() {
		ts, err := e.cfg.Timestamps.BlockTimestamp(ctx, event.BlockNumber)
		if err != nil {
			return model.TypedEvent{}, err
		}
		event.Timestamp = ts
	}

	if e.cfg.Caller != nil {
		meta, err := e.poolMeta(ctx, log.Address, event.BlockNumber)
		if err != nil {
			return model.TypedEvent{}, err
		}
		event.PoolMeta = &meta
	}

	return event, nil
}

func (e *Enricher) poolMeta(ctx context.Context, pool common.Address, blockNumber uint64) (model.PoolMeta, error) {
	meta, ok := e.cfg.PoolMetaCache.Get(pool)
	if !ok {
		var err error
		meta, err = FetchPoolMeta(ctx, e.cfg.Caller, pool, e.cfg.TokenMetaCache, e.cfg.Logger)
		if err != nil {
			return model.PoolMeta{}, err
		}
		e.cfg.PoolMetaCache.Set(pool, meta)
	}

	if e.cfg.IncludeLiveMeta {
		if live, err := FetchPoolOptionalMeta(ctx, e.cfg.Caller, pool, blockNumber, e.cfg.Logger); err == nil {
			meta = meta.WithLive(live)
		}
	}
	return meta, nil
}
