package commands

import (
	"github.com/spf13/cobra"

	"github.com/hunterwarburton/solfleet/internal/core"
)

// close: reclaim rent from empty token accounts. Without --token-address every
// empty token account of each sub wallet is closed.
func closeCmd() *cobra.Command {
	var f batchFlags
	cmd := &cobra.Command{
		Use:   "close",
		Short: "Close the sub wallets' empty SPL token accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Closing never needs decimals, so the mint is not looked up.
			asset := core.Native()
			if f.mint != "" {
				mint, err := f.mintKey()
				if err != nil {
					return err
				}
				asset = core.Token(mint, 0)
			}
			main, err := f.mainWallet()
			if err != nil {
				return err
			}
			summary, err := runBatch(cmd, f.subFolder, core.CloseIfEmpty(), asset, main)
			if err != nil {
				return err
			}
			printSummary(cmd, summary)
			return nil
		},
	}
	f.register(cmd, true)
	return cmd
}
