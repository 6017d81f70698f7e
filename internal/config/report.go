package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ReportConfig holds configuration for the report command.
type ReportConfig struct {
	Input           string
	Prices          string
	ProfitCurrency  string
	TaxableAirdrops bool
	IncludeFees     bool
	From            time.Time
	To              time.Time
	ChainID         uint64
	Output          string
	LogLevel        string
}

// LoadReport merges config file, environment variables, and flags into ReportConfig.
func LoadReport(cfgFile string, flags *pflag.FlagSet) (ReportConfig, error) {
	v, err := newViper(cfgFile, flags, func(v *viper.Viper) {
		v.SetDefault("input", "./data/events.jsonl")
		v.SetDefault("profit-currency", "EUR")
		v.SetDefault("taxable-airdrops", true)
		v.SetDefault("include-fees", true)
		v.SetDefault("chain-id", uint64(1))
	})
	if err != nil {
		return ReportConfig{}, err
	}

	from, err := parseTime(v.GetString("report-from"))
	if err != nil {
		return ReportConfig{}, fmt.Errorf("report-from: %w", err)
	}
	to, err := parseTime(v.GetString("report-to"))
	if err != nil {
		return ReportConfig{}, fmt.Errorf("report-to: %w", err)
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return ReportConfig{}, fmt.Errorf("report-to must not be before report-from")
	}

	cfg := ReportConfig{
		Input:           v.GetString("input"),
		Prices:          v.GetString("prices"),
		ProfitCurrency:  strings.ToUpper(v.GetString("profit-currency")),
		TaxableAirdrops: v.GetBool("taxable-airdrops"),
		IncludeFees:     v.GetBool("include-fees"),
		From:            from,
		To:              to,
		ChainID:         v.GetUint64("chain-id"),
		Output:          v.GetString("output"),
		LogLevel:        v.GetString("log-level"),
	}
	if cfg.Input == "" {
		return ReportConfig{}, fmt.Errorf("input is required")
	}
	return cfg, nil
}

// parseTime accepts RFC3339 timestamps and plain dates. Empty is the zero time.
func parseTime(input string) (time.Time, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, input); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, input)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q", input)
	}
	return t.UTC(), nil
}
