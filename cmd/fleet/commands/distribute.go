package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hunterwarburton/solfleet/internal/core"
)

// distribute: send the same amount from the main wallet to every sub wallet.
func distributeCmd() *cobra.Command {
	var (
		f        batchFlags
		lamports uint64
	)
	cmd := &cobra.Command{
		Use:   "distribute",
		Short: "Transfer SOL or a token to every sub wallet",
		RunE: func(cmd *cobra.Command, args []string) error {
			if lamports == 0 {
				return fmt.Errorf("lamports must be positive")
			}
			asset, err := f.asset(cmd)
			if err != nil {
				return err
			}
			main, err := f.mainWallet()
			if err != nil {
				return err
			}
			summary, err := runBatch(cmd, f.subFolder, core.Distribute(lamports), asset, main)
			if err != nil {
				return err
			}
			printSummary(cmd, summary)
			return nil
		},
	}
	f.register(cmd, true)
	f.registerDecimals(cmd)
	cmd.Flags().Uint64Var(&lamports, "lamports", 0, "base units sent to each sub wallet")
	_ = cmd.MarkFlagRequired("lamports")
	return cmd
}
