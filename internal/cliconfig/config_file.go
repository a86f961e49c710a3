package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
// The private key is only read from the environment.
type FileConfig struct {
	Listen                 string `toml:"listen"`
	BaseURL                string `toml:"base_url"`
	Ledger                 string `toml:"ledger"`
	RPCURL                 string `toml:"rpc_url"`
	ContractAddress        string `toml:"contract_address"`
	SQLiteDSN              string `toml:"sqlite_dsn"`
	WalletConnectProjectID string `toml:"walletconnect_project_id"`
	RequiredChainID        int64  `toml:"required_chain_id"`
	LookupTimeout          string `toml:"lookup_timeout"`
	LogLevel               string `toml:"log_level"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns ~/.chainlinks/config.toml, or "" if the home
// directory cannot be determined.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".chainlinks", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("listen", fc.Listen, &cfg.Listen)
	s.setString("base-url", fc.BaseURL, &cfg.BaseURL)
	s.setString("ledger", fc.Ledger, &cfg.Ledger)
	s.setString("rpc-url", fc.RPCURL, &cfg.RPCURL)
	s.setString("contract", fc.ContractAddress, &cfg.ContractAddress)
	s.setString("sqlite-dsn", fc.SQLiteDSN, &cfg.SQLiteDSN)
	s.setString("walletconnect-project-id", fc.WalletConnectProjectID, &cfg.WalletConnectProjectID)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	s.setInt64("chain-id", fc.RequiredChainID, &cfg.RequiredChainID)

	if err := s.setDuration("lookup-timeout", fc.LookupTimeout, &cfg.LookupTimeout); err != nil {
		return err
	}

	return nil
}

// FileExists reports whether p exists and is a regular file.
func FileExists(p string) bool {
	st, err := os.Stat(p)
	return err == nil && st.Mode().IsRegular()
}
