package cliconfig

import "os"

// ApplyEnvConfig applies CHAINLINKS_* environment variables. They override
// the config file but not explicitly set flags.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("listen", os.Getenv("CHAINLINKS_LISTEN"), &cfg.Listen)
	s.setString("base-url", os.Getenv("CHAINLINKS_BASE_URL"), &cfg.BaseURL)
	s.setString("ledger", os.Getenv("CHAINLINKS_LEDGER"), &cfg.Ledger)
	s.setString("rpc-url", os.Getenv("CHAINLINKS_RPC_URL"), &cfg.RPCURL)
	s.setString("contract", os.Getenv("CHAINLINKS_CONTRACT_ADDRESS"), &cfg.ContractAddress)
	s.setString("sqlite-dsn", os.Getenv("CHAINLINKS_SQLITE_DSN"), &cfg.SQLiteDSN)
	s.setString("walletconnect-project-id", os.Getenv("CHAINLINKS_WALLETCONNECT_PROJECT_ID"), &cfg.WalletConnectProjectID)
	s.setString("log-level", os.Getenv("CHAINLINKS_LOG_LEVEL"), &cfg.LogLevel)
	s.setString("", os.Getenv("CHAINLINKS_PRIVATE_KEY"), &cfg.PrivateKey)

	if err := s.setInt64FromString("chain-id", os.Getenv("CHAINLINKS_REQUIRED_CHAIN_ID"), &cfg.RequiredChainID); err != nil {
		return err
	}
	if err := s.setDuration("lookup-timeout", os.Getenv("CHAINLINKS_LOOKUP_TIMEOUT"), &cfg.LookupTimeout); err != nil {
		return err
	}

	return nil
}
