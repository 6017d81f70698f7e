package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"taxScope/internal/config"
	"taxScope/internal/indexer"
)

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

	hashes, err := indexer.ParseTxHashes(cfg.TxHashes)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := newPipeline(ctx, cfg.Chain, cfg.Sink, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	accounts, err := indexer.ParseAddresses(cfg.Chain.Accounts)
	if err != nil {
		return err
	}
	runner := indexer.NewRunner(indexer.RunConfig{
		Accounts:     accounts,
		Workers:      cfg.Workers,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	}, p.chain, p.engine, p.sink, nil, logger)

	result, err := runner.DecodeHashes(ctx, hashes)
	if err != nil {
		return err
	}
	logger.Info("decode done",
		zap.Int("transactions", len(hashes)),
		zap.Int("events", len(result.Events)),
		zap.Int("errors", len(result.Errors)),
	)
	return nil
}
