package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"taxScope/internal/config"
	"taxScope/internal/indexer"
)

func runSync(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadSync(cfgFile, cmd.Flags())
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

	p, err := newPipeline(ctx, cfg.Chain, cfg.Sink, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	accounts, err := indexer.ParseAddresses(cfg.Chain.Accounts)
	if err != nil {
		return err
	}

	var checkpoint indexer.Checkpointer = indexer.NewCheckpointStore(cfg.Checkpoint, cfg.CheckpointEnabled)
	if p.db != nil && cfg.CheckpointEnabled {
		checkpoint = indexer.StateCheckpoint{Store: p.db, Name: fmt.Sprintf("sync:%d", p.chainID)}
	}

	runner := indexer.NewRunner(indexer.RunConfig{
		FromBlock:    cfg.FromBlock,
		ToBlock:      cfg.ToBlock,
		Accounts:     accounts,
		BatchSize:    cfg.ChunkSize,
		Workers:      cfg.Workers,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	}, p.chain, p.engine, p.sink, checkpoint, logger)

	logger.Info("sync start",
		zap.Uint64("from_block", cfg.FromBlock),
		zap.Uint64("to_block", cfg.ToBlock),
		zap.Uint64("chunk_size", cfg.ChunkSize),
		zap.Int("workers", cfg.Workers),
	)
	return runner.Run(ctx)
}
