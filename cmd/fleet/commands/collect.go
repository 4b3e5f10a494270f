package commands

import (
	"github.com/spf13/cobra"

	"github.com/hunterwarburton/solfleet/internal/core"
)

// collect: sweep every sub wallet back into the main wallet.
func collectCmd() *cobra.Command {
	var f batchFlags
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Collect all SOL or a token back to the main wallet",
		RunE: func(cmd *cobra.Command, args []string) error {
			asset, err := f.asset(cmd)
			if err != nil {
				return err
			}
			main, err := f.mainWallet()
			if err != nil {
				return err
			}
			summary, err := runBatch(cmd, f.subFolder, core.Collect(), asset, main)
			if err != nil {
				return err
			}
			printSummary(cmd, summary)
			return nil
		},
	}
	f.register(cmd, true)
	f.registerDecimals(cmd)
	return cmd
}
