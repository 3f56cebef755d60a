package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"logscope/internal/chain"
	"logscope/internal/config"
	"logscope/internal/dex"
	"logscope/internal/httpserver"
	"logscope/internal/indexer"
	"logscope/internal/typedlogs"
)

func runWatch(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadWatch(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}

	addresses, err := indexer.ParseAddresses(cfg.Addresses)
	if err != nil {
		return err
	}
	if len(addresses) == 0 {
		return fmt.Errorf("address list is required")
	}

	topic0, err := indexer.ParseTopic0(cfg.Topic0)
	if err != nil {
		return err
	}

	decoder, err := dex.NewV3PoolDecoder(dex.DecoderConfig{Topic0Map: cfg.Topic0Map})
	if err != nil {
		return err
	}
	if len(topic0) == 0 {
		topic0 = decoder.Topics()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	client := typedlogs.NewMiddleware(chainClient, logger)
	if cfg.Follow && !client.SupportsPubsub() {
		return fmt.Errorf("follow mode needs a ws, wss or ipc endpoint: %w", typedlogs.ErrPubsubUnsupported)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}

	out, err := openSinks(ctx, cfg.Sinks, logger)
	if err != nil {
		return err
	}
	defer out.Close()

	var checkpoint indexer.Checkpointer
	if cfg.CheckpointEnabled {
		switch cfg.CheckpointBackend {
		case "postgres":
			if out.pg == nil {
				return fmt.Errorf("postgres checkpoint backend requires pg-dsn")
			}
			checkpoint = out.pg.Checkpoint(cfg.CheckpointName)
		default:
			checkpoint = indexer.NewCheckpointStore(cfg.Checkpoint, true)
		}
	}

	enricher := dex.NewEnricher(dex.EnrichConfig{
		ChainID:         chainID.Uint64(),
		Caller:          client,
		Timestamps:      chainClient,
		Logger:          logger,
		IncludeLiveMeta: cfg.IncludeLiveMeta,
	})

	if cfg.MetricsAddr != "" {
		server := httpserver.NewServer(cfg.MetricsAddr, func() error {
			checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			defer cancel()
			_, err := client.BlockNumber(checkCtx)
			return err
		}, logger)
		go func() {
			if err := server.Start(); err != nil {
				logger.Error("http server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Stop(shutdownCtx); err != nil {
				logger.Warn("http server shutdown", zap.Error(err))
			}
		}()
	}

	runner := indexer.NewRunner(indexer.RunConfig{
		FromBlock:    cfg.FromBlock,
		ToBlock:      cfg.ToBlock,
		Addresses:    addresses,
		Topic0:       topic0,
		BatchSize:    cfg.BatchSize,
		Follow:       cfg.Follow,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	}, client, decoder, enricher, out, checkpoint, logger)

	logger.Info("watch start",
		zap.String("rpc", cfg.RPCURL),
		zap.Uint64("chain_id", chainID.Uint64()),
		zap.Uint64("from", cfg.FromBlock),
		zap.Bool("follow", cfg.Follow),
		zap.Int("addresses", len(addresses)),
		zap.Int("topic0", len(topic0)),
		zap.Uint64("batch_size", cfg.BatchSize),
		zap.Bool("checkpoint_enabled", cfg.CheckpointEnabled),
		zap.String("checkpoint_backend", cfg.CheckpointBackend),
	)

	if err := runner.Run(ctx); err != nil {
		if ctx.Err() != nil {
			logger.Info("watch stopped")
			return nil
		}
		return err
	}
	return nil
}
