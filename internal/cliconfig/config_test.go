package cliconfig

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"missing RPC settings are allowed", func(c *Config) { c.RPCURL, c.ContractAddress = "", "" }, false},
		{"sqlite ledger", func(c *Config) { c.Ledger = LedgerSQLite }, false},
		{"sqlite ledger without DSN", func(c *Config) { c.Ledger, c.SQLiteDSN = LedgerSQLite, "" }, true},
		{"unknown ledger", func(c *Config) { c.Ledger = "postgres" }, true},
		{"no listen address", func(c *Config) { c.Listen = "" }, true},
		{"zero chain ID", func(c *Config) { c.RequiredChainID = 0 }, true},
		{"zero timeout", func(c *Config) { c.LookupTimeout = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateTrimsBaseURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BaseURL = "https://short.example/"
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.BaseURL != "https://short.example" {
		t.Errorf("expected trailing slash to be trimmed, got %q", cfg.BaseURL)
	}
}

func TestMasked(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PrivateKey = "0xsecret"

	if got := cfg.Masked().PrivateKey; got != "*****" {
		t.Errorf("expected masked key, got %q", got)
	}
	if cfg.PrivateKey != "0xsecret" {
		t.Error("Masked must not modify the original")
	}
}

func TestLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, "warn")
	log.Info().Msg("hidden")
	log.Warn().Msg("shown")

	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Errorf("unexpected output %q", buf.String())
	}

	buf.Reset()
	log = newLogger(&buf, "bogus")
	log.Debug().Msg("debug")
	log.Info().Msg("info")
	if strings.Contains(buf.String(), `"debug"`) || !strings.Contains(buf.String(), `"info"`) {
		t.Errorf("expected unknown level to fall back to info, got %q", buf.String())
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.RequiredChainID != 421614 || cfg.LookupTimeout != 30*time.Second || cfg.Ledger != LedgerRPC {
		t.Errorf("unexpected defaults %+v", cfg)
	}
}
