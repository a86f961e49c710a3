package cliconfig

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Ledger backends.
const (
	LedgerRPC    = "rpc"
	LedgerSQLite = "sqlite"
)

// Config holds CLI configuration for chainlinks.
type Config struct {
	Listen  string
	BaseURL string

	Ledger          string
	RPCURL          string
	ContractAddress string
	SQLiteDSN       string

	WalletConnectProjectID string
	RequiredChainID        int64
	PrivateKey             string

	LookupTimeout time.Duration
	LogLevel      string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Listen:          ":5656",
		BaseURL:         "http://localhost:5656",
		Ledger:          LedgerRPC,
		SQLiteDSN:       "file:chainlinks.sqlite?_journal_mode=wal",
		RequiredChainID: 421614, // Arbitrum Sepolia
		LookupTimeout:   30 * time.Second,
		LogLevel:        "info",
	}
}

// Validate checks the configuration for errors and sets derived defaults.
// Missing RPC settings are not an error here: the server starts anyway and
// reports them per request.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address is required")
	}

	switch c.Ledger {
	case LedgerRPC:
	case LedgerSQLite:
		if c.SQLiteDSN == "" {
			return fmt.Errorf("sqlite-dsn is required for the sqlite ledger")
		}
	default:
		return fmt.Errorf("unknown ledger %q (want %q or %q)", c.Ledger, LedgerRPC, LedgerSQLite)
	}

	if c.RequiredChainID <= 0 {
		return fmt.Errorf("required chain ID must be positive")
	}
	if c.LookupTimeout <= 0 {
		return fmt.Errorf("lookup timeout must be positive")
	}

	// Ensure no trailing slash
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")

	return nil
}

// Masked returns a copy safe for logging.
func (c Config) Masked() Config {
	if len(c.PrivateKey) > 0 {
		c.PrivateKey = "*****"
	}
	return c
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt64 sets an int64 value if positive and flag not changed.
func (s *configSetter) setInt64(flag string, value int64, dst *int64) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setInt64FromString parses a string to int64 and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setInt64FromString(flag, value string, dst *int64) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}
