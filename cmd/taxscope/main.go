package main

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "taxscope",
		Short:        "EVM transaction decoder and tax accountant",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			envFile, _ := cmd.Flags().GetString("env-file")
			if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			return nil
		},
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("env-file", ".env", "dotenv file with TAXSCOPE_* variables")

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Decode every transaction that moved or approved tokens of the tracked accounts",
		Long: `Decode every transaction that moved or approved tokens of the tracked accounts.

Transactions are discovered through their Transfer and Approval logs. Reverted
transactions and plain ETH transfers emit no such log, so their gas fees are
missed here; pass their hashes to "decode" instead.`,
		RunE: runSync,
	}
	chainFlags(syncCmd.Flags())
	sinkFlags(syncCmd.Flags())
	syncCmd.Flags().Uint64("from-block", 0, "start block (inclusive)")
	syncCmd.Flags().Uint64("to-block", 0, "end block (inclusive), 0 means latest")
	syncCmd.Flags().Uint64("chunk-size", 2000, "blocks per log query")
	syncCmd.Flags().Int("workers", 4, "transactions decoded in parallel")
	syncCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	syncCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	syncCmd.Flags().String("checkpoint-file", "./data/checkpoint.json", "checkpoint file path, unused when db-dsn is set")
	syncCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	root.AddCommand(syncCmd)

	decodeCmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode explicit transactions",
		RunE:  runDecode,
	}
	chainFlags(decodeCmd.Flags())
	sinkFlags(decodeCmd.Flags())
	decodeCmd.Flags().StringSlice("tx-hashes", nil, "transaction hashes (comma-separated)")
	decodeCmd.Flags().Int("workers", 4, "transactions decoded in parallel")
	decodeCmd.Flags().Int("max-retries", 3, "maximum retry attempts")
	decodeCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	root.AddCommand(decodeCmd)

	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Run the accountant over decoded events",
		RunE:  runReport,
	}
	reportCmd.Flags().String("input", "./data/events.jsonl", "decoded events JSONL")
	reportCmd.Flags().String("prices", "", "price table JSON")
	reportCmd.Flags().String("profit-currency", "EUR", "currency of prices and PnL")
	reportCmd.Flags().Bool("taxable-airdrops", true, "treat airdrops as income")
	reportCmd.Flags().Bool("include-fees", true, "add swap fees to the cost basis")
	reportCmd.Flags().String("report-from", "", "report start (RFC3339 or YYYY-MM-DD)")
	reportCmd.Flags().String("report-to", "", "report end (RFC3339 or YYYY-MM-DD)")
	reportCmd.Flags().Uint64("chain-id", 1, "chain whose protocol settings apply")
	reportCmd.Flags().String("output", "", "report JSON path, stdout when empty")
	reportCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(reportCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func chainFlags(flags *pflag.FlagSet) {
	flags.String("rpc-url", "", "JSON-RPC endpoint")
	flags.Uint64("chain-id", 0, "expected chain id, 0 accepts the node's")
	flags.StringSlice("accounts", nil, "tracked accounts (comma-separated)")
	flags.String("exchange-addresses", "", "known exchange wallets (comma-separated addr=name)")
	flags.String("redis-addr", "", "redis address holding protocol address sets")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
}

func sinkFlags(flags *pflag.FlagSet) {
	flags.String("output", "./data/events.jsonl", "output events JSONL path")
	flags.String("db-dsn", "", "Postgres DSN, enables the database sink")
	flags.String("nats-url", "", "NATS URL, enables publishing")
	flags.String("nats-subject", "taxscope.events", "NATS subject prefix")
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
