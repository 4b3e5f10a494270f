package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hunterwarburton/solfleet/internal/logger"
	"github.com/hunterwarburton/solfleet/internal/wallet"
)

func convertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert the wallet format",
	}
	cmd.AddCommand(convertBs58Cmd(), convertJSONCmd())
	return cmd
}

// convert bs58 --json-file FILE: print the base58 form of a keypair file.
func convertBs58Cmd() *cobra.Command {
	var jsonFile string
	cmd := &cobra.Command{
		Use:   "bs58",
		Short: "Convert a keypair JSON file to base58",
		RunE: func(cmd *cobra.Command, args []string) error {
			encoded, err := wallet.ToBase58(jsonFile)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), encoded)
			return nil
		},
	}
	cmd.Flags().StringVar(&jsonFile, "json-file", "", "keypair JSON file to convert")
	_ = cmd.MarkFlagRequired("json-file")
	return cmd
}

// convert json --bs58 KEY --output FILE: write a base58 key as a keypair file.
func convertJSONCmd() *cobra.Command {
	var (
		encoded string
		output  string
	)
	cmd := &cobra.Command{
		Use:   "json",
		Short: "Convert a base58 key to a keypair JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := wallet.FromBase58(encoded, output)
			if err != nil {
				return err
			}
			logger.Info("Wrote keypair %s to %s", key.PublicKey(), output)
			return nil
		},
	}
	cmd.Flags().StringVar(&encoded, "bs58", "", "base58 key to convert")
	cmd.Flags().StringVar(&output, "output", "", "output keypair JSON file")
	_ = cmd.MarkFlagRequired("bs58")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}
