package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hunterwarburton/solfleet/internal/journal"
)

func journalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect recorded batch runs",
	}
	cmd.AddCommand(journalShowCmd())
	return cmd
}

// journal show [--run ID]: list recent runs, or the outcomes of one run.
func journalShowCmd() *cobra.Command {
	var (
		runID int64
		limit int
	)
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show recent runs or the outcomes of one run",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.JournalPath == "" {
				return fmt.Errorf("no journal configured. use --journal or FLEET_JOURNAL")
			}
			j, err := journal.Open(cfg.JournalPath)
			if err != nil {
				return err
			}
			defer j.Close()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			defer w.Flush()

			if runID > 0 {
				outcomes, err := j.Outcomes(runID)
				if err != nil {
					return err
				}
				fmt.Fprintln(w, "ADDRESS\tOUTCOME\tAMOUNT\tSIGNATURE\tREASON")
				for _, o := range outcomes {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", o.Address, o.Kind, o.Amount, o.Signature, o.Reason)
				}
				return nil
			}

			runs, err := j.Runs(limit)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, "ID\tOPERATION\tASSET\tSTARTED\tLANDED\tSKIPPED\tABANDONED\tTOTAL")
			for _, r := range runs {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n", r.ID, r.Operation, r.Asset,
					r.Started.Format(time.DateTime), r.Landed, r.Skipped, r.Abandoned, r.Total)
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&runID, "run", 0, "show the outcomes of this run")
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to list")
	return cmd
}
