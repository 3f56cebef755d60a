package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// SinkConfig selects where typed events and decode errors are written.
// Every configured sink receives every batch.
type SinkConfig struct {
	Out           string
	Errors        string
	PGDSN         string
	PGMigrate     bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
	RedisMaxLen   int64
}

// WatchConfig holds configuration for the watch command.
type WatchConfig struct {
	RPCURL            string
	FromBlock         uint64
	ToBlock           uint64
	Addresses         []string
	Topic0            []string
	Topic0Map         map[string]string
	BatchSize         uint64
	Follow            bool
	Checkpoint        string
	CheckpointEnabled bool
	CheckpointBackend string
	CheckpointName    string
	MaxRetries        int
	RetryBackoff      time.Duration
	IncludeLiveMeta   bool
	MetricsAddr       string
	LogLevel          string
	Sinks             SinkConfig
}

// LoadWatch merges config file, environment variables, and flags into WatchConfig.
func LoadWatch(cfgFile string, flags *pflag.FlagSet) (WatchConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"batch-size":         uint64(2000),
		"follow":             true,
		"out":                "./data/typed_events.jsonl",
		"errors":             "./data/decode_errors.jsonl",
		"checkpoint":         "./data/checkpoint.json",
		"checkpoint-enabled": true,
		"checkpoint-backend": "file",
		"checkpoint-name":    "watch",
		"max-retries":        5,
		"retry-backoff":      500 * time.Millisecond,
		"metrics-addr":       ":9102",
		"redis-prefix":       "logscope:",
		"log-level":          "info",
	})
	if err != nil {
		return WatchConfig{}, err
	}

	addresses, err := getStringSlice(v, "address")
	if err != nil {
		return WatchConfig{}, err
	}
	topic0, err := getStringSlice(v, "topic0")
	if err != nil {
		return WatchConfig{}, err
	}

	cfg := WatchConfig{
		RPCURL:            v.GetString("rpc"),
		FromBlock:         v.GetUint64("from"),
		ToBlock:           v.GetUint64("to"),
		Addresses:         addresses,
		Topic0:            topic0,
		Topic0Map:         getStringMap(v, "topic0-map"),
		BatchSize:         v.GetUint64("batch-size"),
		Follow:            v.GetBool("follow"),
		Checkpoint:        v.GetString("checkpoint"),
		CheckpointEnabled: v.GetBool("checkpoint-enabled"),
		CheckpointBackend: strings.ToLower(v.GetString("checkpoint-backend")),
		CheckpointName:    v.GetString("checkpoint-name"),
		MaxRetries:        v.GetInt("max-retries"),
		RetryBackoff:      v.GetDuration("retry-backoff"),
		IncludeLiveMeta:   v.GetBool("include-live-meta"),
		MetricsAddr:       v.GetString("metrics-addr"),
		LogLevel:          v.GetString("log-level"),
		Sinks:             loadSinks(v),
	}

	switch cfg.CheckpointBackend {
	case "file", "postgres":
	default:
		return WatchConfig{}, fmt.Errorf("unknown checkpoint backend: %s", cfg.CheckpointBackend)
	}
	if cfg.CheckpointBackend == "postgres" && cfg.Sinks.PGDSN == "" {
		return WatchConfig{}, fmt.Errorf("postgres checkpoint backend requires pg-dsn")
	}

	return cfg, nil
}

func loadSinks(v *viper.Viper) SinkConfig {
	return SinkConfig{
		Out:           v.GetString("out"),
		Errors:        v.GetString("errors"),
		PGDSN:         v.GetString("pg-dsn"),
		PGMigrate:     v.GetBool("pg-migrate"),
		RedisAddr:     v.GetString("redis-addr"),
		RedisPassword: v.GetString("redis-password"),
		RedisDB:       v.GetInt("redis-db"),
		RedisPrefix:   v.GetString("redis-prefix"),
		RedisMaxLen:   v.GetInt64("redis-maxlen"),
	}
}

func newViper(cfgFile string, flags *pflag.FlagSet, defaults map[string]interface{}) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("LOGSCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	return v, nil
}

// getStringSlice reads a list given as a comma-separated string or a list of
// strings. Non-string list items are rejected: YAML turns an unquoted 0x12
// into a number, which would silently become a different address.
func getStringSlice(v *viper.Viper, key string) ([]string, error) {
	if !v.IsSet(key) {
		return nil, nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed), nil
	case string:
		return splitAndClean(typed), nil
	case []interface{}:
		items := make([]string, 0, len(typed))
		for i, item := range typed {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s[%d]: expected a string, got %T %v (quote hex values)", key, i, item, item)
			}
			items = append(items, str)
		}
		return cleanStrings(items), nil
	default:
		return nil, fmt.Errorf("%s: unsupported list type %T", key, val)
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
