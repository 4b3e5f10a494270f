package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hunterwarburton/solfleet/internal/core"
	"github.com/hunterwarburton/solfleet/internal/logger"
	"github.com/hunterwarburton/solfleet/internal/wallet"
)

func walletCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "Check your wallet balance or create sub wallets",
	}
	cmd.AddCommand(walletCreateCmd(), walletBalanceCmd())
	return cmd
}

// wallet create --amount N -o DIR
func walletCreateCmd() *cobra.Command {
	var (
		amount int
		output string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create sub wallets",
		RunE: func(cmd *cobra.Command, args []string) error {
			if amount <= 0 {
				return fmt.Errorf("amount must be positive")
			}
			wallets, err := wallet.Generate(output, amount)
			if err != nil {
				return err
			}
			for _, w := range wallets {
				fmt.Fprintln(cmd.OutOrStdout(), w.Address())
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&amount, "amount", 0, "how many wallets to generate")
	cmd.Flags().StringVarP(&output, "output", "o", "", "folder the keypairs are stored in")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

// wallet balance --sub-keypair-folder DIR [--token-address MINT]
func walletBalanceCmd() *cobra.Command {
	var f batchFlags
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Sum the balances of your sub wallets",
		RunE: func(cmd *cobra.Command, args []string) error {
			asset, err := f.asset(cmd)
			if err != nil {
				return err
			}
			summary, err := runBatch(cmd, f.subFolder, core.QueryBalance(), asset, nil)
			if err != nil {
				return err
			}

			label, decimals := "SOL", uint8(nativeDecimals)
			if asset.IsToken() {
				decimals = asset.Decimals
				label = asset.Mint.String()
				info, err := client.TokenMetadata(cmd.Context(), asset.Mint)
				if err != nil {
					logger.Warn("No metadata for %s: %v", asset.Mint, err)
				} else if l := info.Label(); l != "" {
					label = l
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Total balance of %d sub wallets: %s %s\n",
				summary.Landed, formatAmount(summary.Total, decimals), label)
			if summary.Skipped+summary.Abandoned > 0 {
				printSummary(cmd, summary)
			}
			return nil
		},
	}
	f.register(cmd, false)
	return cmd
}
