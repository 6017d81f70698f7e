package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"taxScope/internal/accounting"
	"taxScope/internal/config"
	"taxScope/internal/decoding"
	"taxScope/internal/decoding/protocols"
	"taxScope/internal/model"
	"taxScope/internal/price"
	"taxScope/internal/report"
	"taxScope/internal/storage"
)

func runReport(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadReport(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	events, err := storage.ReadEvents(cfg.Input)
	if err != nil {
		return err
	}

	prices := price.NewTable(cfg.ProfitCurrency, cfg.IncludeFees, logger)
	if cfg.Prices != "" {
		prices, err = price.LoadFile(cfg.Prices, cfg.ProfitCurrency, cfg.IncludeFees, logger)
		if err != nil {
			return err
		}
	}

	// Only the accounting settings of the plugins are used here.
	registry, err := protocols.BuildRegistry(model.ChainID(cfg.ChainID), decoding.PluginDeps{
		Tokens: decoding.StaticTokens{},
		Logger: logger,
	})
	if err != nil {
		return err
	}

	out, err := report.Build(events, report.Options{
		ProfitCurrency: cfg.ProfitCurrency,
		Settings: accounting.ReportSettings{
			TaxableAirdrops:        cfg.TaxableAirdrops,
			IncludeFeesInCostBasis: cfg.IncludeFees,
			From:                   cfg.From,
			To:                     cfg.To,
		},
		Sources: []accounting.PluginSource{registry},
		Prices:  prices,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	encoded, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	encoded = append(encoded, '\n')
	if cfg.Output == "" {
		_, err = os.Stdout.Write(encoded)
		return err
	}
	if err := os.WriteFile(cfg.Output, encoded, 0o644); err != nil {
		return err
	}
	logger.Info("report written", zap.String("path", cfg.Output), zap.String("report_id", out.ID))
	return nil
}
