package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/hunterwarburton/solfleet/internal/config"
	"github.com/hunterwarburton/solfleet/internal/logger"
	chain "github.com/hunterwarburton/solfleet/internal/solana"
)

var (
	cfg    *config.Config
	client *chain.Client

	rpcURL      string
	debug       bool
	concurrency int
	journalPath string
)

func Execute() error {
	root := &cobra.Command{
		Use:          "fleet",
		Short:        "Manage a fleet of Solana wallets in batch",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("rpc") {
				loaded.RPCURL = rpcURL
			}
			if flags.Changed("concurrency") {
				loaded.Concurrency = concurrency
			}
			if flags.Changed("journal") {
				loaded.JournalPath = journalPath
			}
			if err := loaded.Validate(); err != nil {
				return err
			}
			cfg = loaded

			logger.Init(debug || cfg.Debug())
			if logger.IsDebugEnabled() {
				logger.Debug("Configuration loaded: RPC=%s, Concurrency=%d, RetryBackoff=%v, MaxAttempts=%d, SubmitDeadline=%v, Journal=%q, Telegram=%v",
					cfg.RPCURL, cfg.Concurrency, cfg.RetryBackoff, cfg.MaxAttempts, cfg.SubmitDeadline, cfg.JournalPath, cfg.NotifyEnabled())
			}

			client = chain.NewClient(chain.Options{
				Endpoint:          cfg.RPCURL,
				RequestsPerSecond: cfg.RPCRateLimit,
				ConfirmTimeout:    cfg.ConfirmTimeout,
				CacheDir:          cfg.CacheDir,
			})
			return nil
		},
	}

	root.PersistentFlags().StringVar(&rpcURL, "rpc", config.DefaultRPCURL, "network address of your RPC provider")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	root.PersistentFlags().IntVar(&concurrency, "concurrency", 20, "wallets processed at once")
	root.PersistentFlags().StringVar(&journalPath, "journal", "", "SQLite file recording every outcome")

	root.AddCommand(walletCmd(), distributeCmd(), collectCmd(), closeCmd(), convertCmd(), journalCmd())
	return root.ExecuteContext(context.Background())
}
