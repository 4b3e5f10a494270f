package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/hunterwarburton/solfleet/internal/batch"
	"github.com/hunterwarburton/solfleet/internal/core"
	"github.com/hunterwarburton/solfleet/internal/journal"
	"github.com/hunterwarburton/solfleet/internal/logger"
	"github.com/hunterwarburton/solfleet/internal/notify"
	"github.com/hunterwarburton/solfleet/internal/wallet"
)

const nativeDecimals = 9

// batchFlags are shared by the commands that walk a folder of sub wallets.
type batchFlags struct {
	subFolder string
	mainFile  string
	mint      string
	decimals  uint8
}

func (f *batchFlags) register(cmd *cobra.Command, withMain bool) {
	cmd.Flags().StringVar(&f.subFolder, "sub-keypair-folder", "", "your sub keypair folder location")
	_ = cmd.MarkFlagRequired("sub-keypair-folder")
	if withMain {
		cmd.Flags().StringVar(&f.mainFile, "main-keypair-file", "", "your main wallet keypair file's location")
		_ = cmd.MarkFlagRequired("main-keypair-file")
	}
	cmd.Flags().StringVar(&f.mint, "token-address", "", "SPL token mint address, default is SOL")
}

func (f *batchFlags) registerDecimals(cmd *cobra.Command) {
	cmd.Flags().Uint8Var(&f.decimals, "decimals", 0, "SPL token decimals, read from the mint when omitted")
}

func (f *batchFlags) mintKey() (solana.PublicKey, error) {
	mint, err := solana.PublicKeyFromBase58(f.mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid token address %q: %w", f.mint, err)
	}
	return mint, nil
}

// asset resolves the flags to an Asset, reading the mint's decimals from
// chain unless they were given.
func (f *batchFlags) asset(cmd *cobra.Command) (core.Asset, error) {
	if f.mint == "" {
		return core.Native(), nil
	}
	mint, err := f.mintKey()
	if err != nil {
		return core.Asset{}, err
	}
	if cmd.Flags().Lookup("decimals") != nil && cmd.Flags().Changed("decimals") {
		return core.Token(mint, f.decimals), nil
	}
	decimals, err := client.MintDecimals(cmd.Context(), mint)
	if err != nil {
		return core.Asset{}, err
	}
	logger.Debug("Mint %s has %d decimals", mint, decimals)
	return core.Token(mint, decimals), nil
}

func (f *batchFlags) mainWallet() (*core.Wallet, error) {
	if f.mainFile == "" {
		return nil, nil
	}
	return wallet.Load(f.mainFile)
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// runBatch wires the orchestrator to the configured reporters and notifier
// and runs op over every wallet in dir.
func runBatch(cmd *cobra.Command, dir string, op core.Operation, asset core.Asset, main *core.Wallet) (*core.BatchSummary, error) {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	reporters := batch.MultiReporter{batch.LogReporter{}}

	var run *journal.Run
	if cfg.JournalPath != "" {
		j, err := journal.Open(cfg.JournalPath)
		if err != nil {
			return nil, err
		}
		defer j.Close()
		run, err = j.BeginRun(op, asset)
		if err != nil {
			return nil, err
		}
		reporters = append(reporters, run)
	}

	orchestrator := batch.NewOrchestrator(client, reporters, batch.Options{
		Concurrency: cfg.Concurrency,
		Throttle:    cfg.Throttle,
		ItemTimeout: cfg.ItemTimeout,
		Retry: batch.RetryPolicy{
			Backoff:     cfg.RetryBackoff,
			MaxAttempts: cfg.MaxAttempts,
			Deadline:    cfg.SubmitDeadline,
		},
	})

	summary, err := orchestrator.RunSource(ctx, wallet.DirSource{}, dir, op, asset, main)
	if run != nil {
		if ferr := run.Finish(summary); ferr != nil {
			logger.Error("Failed to finish journal run: %v", ferr)
		}
	}
	if err != nil {
		return nil, err
	}

	if cfg.NotifyEnabled() {
		tg, err := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			logger.Error("Telegram notifier unavailable: %v", err)
		} else if err := tg.NotifySummary(context.WithoutCancel(ctx), summary); err != nil {
			logger.Error("Failed to notify: %v", err)
		}
	}
	return summary, nil
}

// formatAmount renders base units with the given number of decimals.
func formatAmount(amount uint64, decimals uint8) string {
	s := fmt.Sprintf("%d", amount)
	if decimals == 0 {
		return s
	}
	d := int(decimals)
	if len(s) <= d {
		s = strings.Repeat("0", d-len(s)+1) + s
	}
	whole, frac := s[:len(s)-d], strings.TrimRight(s[len(s)-d:], "0")
	if frac == "" {
		return whole
	}
	return whole + "." + frac
}

func printSummary(cmd *cobra.Command, summary *core.BatchSummary) {
	fmt.Fprintf(cmd.OutOrStdout(), "%d landed, %d skipped, %d abandoned\n",
		summary.Landed, summary.Skipped, summary.Abandoned)
}
