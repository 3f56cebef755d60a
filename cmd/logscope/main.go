package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "logscope",
		Short:        "Typed event log watcher for V3 pools",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Backfill and follow pool events through a typed log subscription",
		RunE:  runWatch,
	}

	watchCmd.Flags().String("rpc", "", "node RPC URL (ws/wss/ipc for follow mode)")
	watchCmd.Flags().Uint64("from", 0, "start block (inclusive)")
	watchCmd.Flags().Uint64("to", 0, "end block for backfill-only runs, 0 means latest")
	watchCmd.Flags().StringSlice("address", nil, "pool addresses (comma-separated)")
	watchCmd.Flags().StringSlice("topic0", nil, "topic0 filter (comma-separated), defaults to every known pool event")
	watchCmd.Flags().String("topic0-map", "", "extra topic0->event mappings (comma-separated key=value)")
	watchCmd.Flags().Uint64("batch-size", 2000, "blocks per backfill batch")
	watchCmd.Flags().Bool("follow", true, "subscribe to new logs after the backfill")
	watchCmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	watchCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	watchCmd.Flags().String("checkpoint-backend", "file", "checkpoint backend (file, postgres)")
	watchCmd.Flags().String("checkpoint-name", "watch", "checkpoint name for the postgres backend")
	watchCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	watchCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	watchCmd.Flags().Bool("include-live-meta", false, "include optional slot0/liquidity at the event block")
	watchCmd.Flags().String("metrics-addr", ":9102", "listen address for /metrics and /healthz, empty disables")
	watchCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	addSinkFlags(watchCmd)

	root.AddCommand(watchCmd)

	decodeCmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode a JSONL file of raw logs into typed events",
		RunE:  runDecode,
	}

	decodeCmd.Flags().String("rpc", "", "optional node RPC URL for chain id and pool metadata")
	decodeCmd.Flags().String("in", "", "input raw logs JSONL")
	decodeCmd.Flags().Uint64("chain-id", 0, "chain id recorded in the output when no RPC is configured")
	decodeCmd.Flags().String("topic0-map", "", "extra topic0->event mappings (comma-separated key=value)")
	decodeCmd.Flags().Bool("include-live-meta", false, "include optional slot0/liquidity (requires archive RPC for historical accuracy)")
	decodeCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	addSinkFlags(decodeCmd)

	root.AddCommand(decodeCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addSinkFlags(cmd *cobra.Command) {
	cmd.Flags().String("out", "./data/typed_events.jsonl", "output typed events JSONL, empty disables")
	cmd.Flags().String("errors", "./data/decode_errors.jsonl", "decode errors JSONL")
	cmd.Flags().String("pg-dsn", "", "Postgres DSN for the pool_events and decode_errors tables")
	cmd.Flags().Bool("pg-migrate", false, "create Postgres tables if missing")
	cmd.Flags().String("redis-addr", "", "Redis address for the event streams")
	cmd.Flags().String("redis-password", "", "Redis password")
	cmd.Flags().Int("redis-db", 0, "Redis database")
	cmd.Flags().String("redis-prefix", "logscope:", "Redis stream key prefix")
	cmd.Flags().Int64("redis-maxlen", 0, "approximate Redis stream length cap, 0 disables")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
