package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"
	"golang.org/x/xerrors"

	"github.com/sauerbraten/chainlinks"
	"github.com/sauerbraten/chainlinks/internal/cliconfig"
)

func main() {
	cfg := cliconfig.DefaultConfig()
	var cfgPath string

	root := &cobra.Command{
		Use:           "chainlinks",
		Short:         "URL shortener backed by a smart contract",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.chainlinks/config.toml)")
	pf.StringVar(&cfg.Listen, "listen", cfg.Listen, "address to serve HTTP on")
	pf.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "public base URL short links are built on")
	pf.StringVar(&cfg.Ledger, "ledger", cfg.Ledger, "ledger backend: rpc or sqlite")
	pf.StringVar(&cfg.RPCURL, "rpc-url", cfg.RPCURL, "Ethereum JSON-RPC endpoint")
	pf.StringVar(&cfg.ContractAddress, "contract", cfg.ContractAddress, "URL shortener contract address")
	pf.StringVar(&cfg.SQLiteDSN, "sqlite-dsn", cfg.SQLiteDSN, "SQLite DSN for the development ledger")
	pf.StringVar(&cfg.WalletConnectProjectID, "walletconnect-project-id", cfg.WalletConnectProjectID, "wallet-connect project ID exposed to the front-end")
	pf.Int64Var(&cfg.RequiredChainID, "chain-id", cfg.RequiredChainID, "chain ID writes must be sent on")
	pf.DurationVar(&cfg.LookupTimeout, "lookup-timeout", cfg.LookupTimeout, "maximum time to wait for a contract read")
	pf.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")

	// load config file first, then environment, both overridden by explicitly set flags
	load := func(cmd *cobra.Command) (zerolog.Logger, error) {
		cfgFile := cfgPath
		if cfgFile == "" {
			cfgFile = cliconfig.DefaultConfigPath()
		}

		changed := map[string]bool{}
		cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

		if cfgFile != "" && cliconfig.FileExists(cfgFile) {
			fc, err := cliconfig.LoadFileConfig(cfgFile)
			if err != nil {
				return zerolog.Nop(), fmt.Errorf("load config: %w", err)
			}
			if err := cliconfig.ApplyFileConfig(&cfg, fc, changed); err != nil {
				return zerolog.Nop(), err
			}
		}

		if err := cliconfig.ApplyEnvConfig(&cfg, changed); err != nil {
			return zerolog.Nop(), err
		}

		if err := cfg.Validate(); err != nil {
			return zerolog.Nop(), err
		}

		log := cliconfig.Logger(cfg.LogLevel)
		log.Debug().Interface("config", cfg.Masked()).Msg("configuration")
		return log, nil
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Serve the resolver endpoint and redirect gateway",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				log, err := load(cmd)
				if err != nil {
					return err
				}
				return serve(cmd.Context(), cfg, log)
			},
		},
		&cobra.Command{
			Use:   "resolve <short code>",
			Short: "Look up the URL stored under a short code",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				log, err := load(cmd)
				if err != nil {
					return err
				}
				return resolve(cmd.Context(), cfg, log, args[0])
			},
		},
		&cobra.Command{
			Use:   "shorten <short code> <long URL>",
			Short: "Store a long URL under a short code with a contract transaction",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				log, err := load(cmd)
				if err != nil {
					return err
				}
				return shorten(cmd.Context(), cfg, log, args[0], args[1])
			},
		},
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

// openLedger builds the configured read ledger. With the rpc backend, missing
// settings come back as chainlinks.ErrConfiguration.
func openLedger(ctx context.Context, cfg cliconfig.Config) (chainlinks.Ledger, chainlinks.Target, func(), error) {
	switch cfg.Ledger {
	case cliconfig.LedgerSQLite:
		l, err := chainlinks.NewSQLiteLedger(cfg.SQLiteDSN, cfg.RequiredChainID)
		if err != nil {
			return nil, chainlinks.Target{}, func() {}, err
		}
		return l, chainlinks.Target{}, func() { l.Close() }, nil
	default:
		target := chainlinks.Target{RPCURL: cfg.RPCURL, ContractAddress: cfg.ContractAddress}
		l, err := chainlinks.NewRPCLedger(ctx, cfg.RPCURL, cfg.ContractAddress)
		if err != nil {
			return nil, target, func() {}, err
		}
		return l, target, l.Close, nil
	}
}

func serve(ctx context.Context, cfg cliconfig.Config, log zerolog.Logger) error {
	ledger, target, closeLedger, err := openLedger(ctx, cfg)
	if err != nil {
		if !xerrors.Is(err, chainlinks.ErrConfiguration) {
			return err
		}
		// keep serving; every lookup reports the configuration error
		log.Warn().Err(err).Msg("ledger not configured")
	}
	defer closeLedger()

	resolver := chainlinks.NewResolver(ledger, target, cfg.LookupTimeout)
	home := chainlinks.Home{
		ContractAddress:        cfg.ContractAddress,
		ChainID:                cfg.RequiredChainID,
		WalletConnectProjectID: cfg.WalletConnectProjectID,
	}
	if cfg.Ledger == cliconfig.LedgerSQLite {
		home.ContractAddress = ""
	}
	s := chainlinks.NewServer(resolver, home, &log)

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("listen", cfg.Listen).Str("ledger", cfg.Ledger).Msg("server running")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		log.Info().Msg("received signal, stopping...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func resolve(ctx context.Context, cfg cliconfig.Config, log zerolog.Logger, shortCode string) error {
	ledger, target, closeLedger, err := openLedger(ctx, cfg)
	if err != nil && !xerrors.Is(err, chainlinks.ErrConfiguration) {
		return err
	}
	defer closeLedger()

	longURL, err := chainlinks.NewResolver(ledger, target, cfg.LookupTimeout).Resolve(ctx, shortCode)
	if err != nil {
		var re *chainlinks.ResolveError
		if xerrors.As(err, &re) {
			debug, _ := json.MarshalIndent(re.Diagnostics, "", "  ")
			log.Debug().RawJSON("diagnostics", debug).Msg("lookup failed")
			return fmt.Errorf("%s: %w", re.Kind.PageMessage(), err)
		}
		return err
	}

	fmt.Println(longURL)
	return nil
}

func shorten(ctx context.Context, cfg cliconfig.Config, log zerolog.Logger, shortCode, longURL string) error {
	var wallet chainlinks.Wallet
	switch cfg.Ledger {
	case cliconfig.LedgerSQLite:
		l, err := chainlinks.NewSQLiteLedger(cfg.SQLiteDSN, cfg.RequiredChainID)
		if err != nil {
			return err
		}
		defer l.Close()
		wallet = l
	default:
		l, err := chainlinks.NewRPCLedger(ctx, cfg.RPCURL, cfg.ContractAddress)
		if err != nil {
			return err
		}
		defer l.Close()
		w, err := chainlinks.NewKeyWallet(l, cfg.PrivateKey)
		if err != nil {
			return err
		}
		wallet = w
	}

	session := chainlinks.NewSession(wallet, cfg.RequiredChainID)
	state, err := session.Connect(ctx)
	if err != nil {
		return err
	}
	log.Info().
		Str("address", state.Account.Address).
		Int64("chain_id", state.Account.ChainID).
		Msg("wallet connected")

	log.Info().Str("short_code", shortCode).Str("url", longURL).Msg("transaction pending...")
	receipt, err := session.Shorten(ctx, shortCode, longURL)
	if err != nil {
		return err
	}
	log.Info().
		Str("tx", receipt.TxHash).
		Uint64("block", receipt.BlockNumber).
		Msg("transaction successful")

	fmt.Println(chainlinks.Link(cfg.BaseURL, shortCode))
	return nil
}
