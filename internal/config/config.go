package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. TAXSCOPE_RPC_URL.
const EnvPrefix = "TAXSCOPE"

// ChainConfig is shared by the commands that talk to a node.
type ChainConfig struct {
	RPCURL    string
	ChainID   uint64
	Accounts  []string
	Exchanges map[string]string
	RedisAddr string
}

// SinkConfig selects where decoded events go. Output is always written; the
// database and NATS sinks are added when configured.
type SinkConfig struct {
	Output      string
	DBDSN       string
	NATSURL     string
	NATSSubject string
}

// SyncConfig holds configuration for the sync command.
type SyncConfig struct {
	Chain             ChainConfig
	Sink              SinkConfig
	FromBlock         uint64
	ToBlock           uint64
	ChunkSize         uint64
	Workers           int
	MaxRetries        int
	RetryBackoff      time.Duration
	Checkpoint        string
	CheckpointEnabled bool
	LogLevel          string
}

// LoadSync merges config file, environment variables, and flags into SyncConfig.
func LoadSync(cfgFile string, flags *pflag.FlagSet) (SyncConfig, error) {
	v, err := newViper(cfgFile, flags, func(v *viper.Viper) {
		setSinkDefaults(v)
		v.SetDefault("chunk-size", uint64(2000))
		v.SetDefault("workers", 4)
		v.SetDefault("max-retries", 5)
		v.SetDefault("retry-backoff", 500*time.Millisecond)
		v.SetDefault("checkpoint-file", "./data/checkpoint.json")
		v.SetDefault("checkpoint-enabled", true)
	})
	if err != nil {
		return SyncConfig{}, err
	}

	cfg := SyncConfig{
		Chain:             chainConfig(v),
		Sink:              sinkConfig(v),
		FromBlock:         v.GetUint64("from-block"),
		ToBlock:           v.GetUint64("to-block"),
		ChunkSize:         v.GetUint64("chunk-size"),
		Workers:           v.GetInt("workers"),
		MaxRetries:        v.GetInt("max-retries"),
		RetryBackoff:      v.GetDuration("retry-backoff"),
		Checkpoint:        v.GetString("checkpoint-file"),
		CheckpointEnabled: v.GetBool("checkpoint-enabled"),
		LogLevel:          v.GetString("log-level"),
	}
	if cfg.Chain.RPCURL == "" {
		return SyncConfig{}, fmt.Errorf("rpc-url is required")
	}
	if len(cfg.Chain.Accounts) == 0 {
		return SyncConfig{}, fmt.Errorf("at least one account is required")
	}
	return cfg, nil
}

func newViper(cfgFile string, flags *pflag.FlagSet, defaults func(v *viper.Viper)) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("log-level", "info")
	if defaults != nil {
		defaults(v)
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

func setSinkDefaults(v *viper.Viper) {
	v.SetDefault("output", "./data/events.jsonl")
	v.SetDefault("nats-subject", "taxscope.events")
	v.SetDefault("chain-id", uint64(1))
}

func chainConfig(v *viper.Viper) ChainConfig {
	return ChainConfig{
		RPCURL:    v.GetString("rpc-url"),
		ChainID:   v.GetUint64("chain-id"),
		Accounts:  getStringSlice(v, "accounts"),
		Exchanges: getStringMap(v, "exchange-addresses"),
		RedisAddr: v.GetString("redis-addr"),
	}
}

func sinkConfig(v *viper.Viper) SinkConfig {
	return SinkConfig{
		Output:      v.GetString("output"),
		DBDSN:       v.GetString("db-dsn"),
		NATSURL:     v.GetString("nats-url"),
		NATSSubject: v.GetString("nats-subject"),
	}
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
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
