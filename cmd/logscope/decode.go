package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"logscope/internal/chain"
	"logscope/internal/config"
	"logscope/internal/dex"
	"logscope/internal/logfile"
	"logscope/internal/model"
	"logscope/internal/storage"
	"logscope/internal/typedlogs"
)

const decodeBatchSize = 500

func runDecode(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadDecode(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	decoder, err := dex.NewV3PoolDecoder(dex.DecoderConfig{Topic0Map: cfg.Topic0Map})
	if err != nil {
		return err
	}

	enrichCfg := dex.EnrichConfig{
		ChainID:         cfg.ChainID,
		Logger:          logger,
		IncludeLiveMeta: cfg.IncludeLiveMeta,
	}
	if cfg.RPCURL != "" {
		chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
		if err != nil {
			return fmt.Errorf("connect rpc: %w", err)
		}
		defer chainClient.Close()

		client := typedlogs.NewMiddleware(chainClient, logger)
		chainID, err := client.ChainID(ctx)
		if err != nil {
			return fmt.Errorf("get chain id: %w", err)
		}
		enrichCfg.ChainID = chainID.Uint64()
		enrichCfg.Caller = client
		enrichCfg.Timestamps = chainClient
	}
	enricher := dex.NewEnricher(enrichCfg)

	out, err := openSinks(ctx, cfg.Sinks, logger)
	if err != nil {
		return err
	}
	defer out.Close()

	var invalid atomic.Int64
	source := logfile.NewSource(cfg.In, func(line int, raw []byte, err error) {
		invalid.Add(1)
		record := model.DecodeError{
			ChainID: enrichCfg.ChainID,
			Data:    string(raw),
			Error:   fmt.Sprintf("line %d: %v", line, err),
		}
		if err := out.PutDecodeErrors(ctx, []model.DecodeError{record}); err != nil {
			logger.Warn("store invalid line", zap.Int("line", line), zap.Error(err))
		}
	}, logger)

	logger.Info("decode start",
		zap.String("rpc", cfg.RPCURL),
		zap.String("in", cfg.In),
		zap.Uint64("chain_id", enrichCfg.ChainID),
		zap.Bool("include_live_meta", cfg.IncludeLiveMeta),
	)

	stats, err := decodeFile(ctx, source, decoder, enricher, out, enrichCfg.ChainID, logger)
	if err != nil {
		return err
	}

	logger.Info("decode complete",
		zap.Int("decoded", stats.decoded),
		zap.Int("failed", stats.failed),
		zap.Int64("invalid_lines", invalid.Load()),
	)
	return nil
}

type decodeStats struct {
	decoded int
	failed  int
}

type logSource interface {
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)
}

// decodeFile runs every log the decoder knows through a typed stream and
// writes the results in batches.
func decodeFile(ctx context.Context, source logSource, decoder *dex.V3PoolDecoder, enricher *dex.Enricher, sink storage.Sink, chainID uint64, logger *zap.Logger) (decodeStats, error) {
	var stats decodeStats

	logs := make(chan types.Log)
	sub, err := source.SubscribeFilterLogs(ctx, ethereum.FilterQuery{Topics: [][]common.Hash{decoder.Topics()}}, logs)
	if err != nil {
		return stats, err
	}
	stream := typedlogs.NewStream[model.PoolEvent](sub, logs, decoder, logger)
	defer stream.Close()

	events := make([]model.TypedEvent, 0, decodeBatchSize)
	var failures []model.DecodeError
	flush := func() error {
		if err := sink.PutEvents(ctx, events); err != nil {
			return fmt.Errorf("store events: %w", err)
		}
		if err := sink.PutDecodeErrors(ctx, failures); err != nil {
			return fmt.Errorf("store decode errors: %w", err)
		}
		events = events[:0]
		failures = failures[:0]
		return nil
	}

	for {
		env, err := stream.NextEnvelope(ctx)
		var decodeErr *typedlogs.DecodeError
		switch {
		case errors.Is(err, typedlogs.ErrStreamExhausted):
			return stats, flush()
		case errors.As(err, &decodeErr):
			stats.failed++
			failures = append(failures, model.NewDecodeError(chainID, decodeErr.Log, decodeErr.Err))
		case err != nil:
			return stats, err
		default:
			event, err := enricher.Enrich(ctx, env)
			if err != nil {
				stats.failed++
				failures = append(failures, model.NewDecodeError(chainID, env.Log, err))
				break
			}
			stats.decoded++
			events = append(events, event)
		}

		if len(events)+len(failures) >= decodeBatchSize {
			if err := flush(); err != nil {
				return stats, err
			}
		}
	}
}
