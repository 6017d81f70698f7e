package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestLoadSyncFromEnvAndFlags(t *testing.T) {
	t.Setenv("TAXSCOPE_RPC_URL", "http://localhost:8545")
	t.Setenv("TAXSCOPE_ACCOUNTS", "0x1000000000000000000000000000000000000001, 0x2000000000000000000000000000000000000002")
	t.Setenv("TAXSCOPE_EXCHANGE_ADDRESSES", "0x28C6c06298d514Db089934071355E5743bf21d60=binance")

	flags := pflag.NewFlagSet("sync", pflag.ContinueOnError)
	flags.Uint64("from-block", 0, "")
	flags.Int("workers", 4, "")
	if err := flags.Parse([]string{"--from-block=100", "--workers=8"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := LoadSync("", flags)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Chain.RPCURL != "http://localhost:8545" || len(cfg.Chain.Accounts) != 2 {
		t.Fatalf("chain config mismatch: %+v", cfg.Chain)
	}
	if cfg.Chain.Exchanges["0x28C6c06298d514Db089934071355E5743bf21d60"] != "binance" {
		t.Fatalf("exchange map mismatch: %v", cfg.Chain.Exchanges)
	}
	if cfg.FromBlock != 100 || cfg.Workers != 8 || cfg.ChunkSize != 2000 {
		t.Fatalf("sync settings mismatch: %+v", cfg)
	}
	if cfg.Sink.Output != "./data/events.jsonl" || cfg.RetryBackoff != 500*time.Millisecond {
		t.Fatalf("defaults mismatch: %+v", cfg)
	}
}

func TestLoadSyncRequiresAccounts(t *testing.T) {
	t.Setenv("TAXSCOPE_RPC_URL", "http://localhost:8545")
	if _, err := LoadSync("", nil); err == nil {
		t.Fatalf("expected error without accounts")
	}
}

func TestLoadDecodeFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "taxscope.yaml")
	content := "rpc-url: http://node:8545\n" +
		"tx-hashes:\n  - 0x01\n  - 0x02\n" +
		"exchange-addresses:\n  \"0x28C6c06298d514Db089934071355E5743bf21d60\": binance\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadDecode(path, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.TxHashes) != 2 || cfg.Workers != 4 {
		t.Fatalf("decode config mismatch: %+v", cfg)
	}
	if len(cfg.Chain.Exchanges) != 1 {
		t.Fatalf("exchange map mismatch: %v", cfg.Chain.Exchanges)
	}
}

func TestLoadReportRange(t *testing.T) {
	t.Setenv("TAXSCOPE_REPORT_FROM", "2024-01-01")
	t.Setenv("TAXSCOPE_REPORT_TO", "2024-12-31T23:59:59Z")
	t.Setenv("TAXSCOPE_PROFIT_CURRENCY", "usd")

	cfg, err := LoadReport("", nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.From != time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) || cfg.To.Year() != 2024 {
		t.Fatalf("range mismatch: %v %v", cfg.From, cfg.To)
	}
	if cfg.ProfitCurrency != "USD" || !cfg.TaxableAirdrops {
		t.Fatalf("report settings mismatch: %+v", cfg)
	}
}

func TestLoadReportInvalidRange(t *testing.T) {
	t.Setenv("TAXSCOPE_REPORT_FROM", "2024-02-01")
	t.Setenv("TAXSCOPE_REPORT_TO", "2024-01-01")
	if _, err := LoadReport("", nil); err == nil {
		t.Fatalf("expected error for inverted range")
	}
}
