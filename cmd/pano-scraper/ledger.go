package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/withObsrvr/obsrvr-pano-scraper/internal/acquirer"
	"github.com/withObsrvr/obsrvr-pano-scraper/internal/panorama"
	"github.com/withObsrvr/obsrvr-pano-scraper/internal/worklist"
)

func newLedgerCommand(cc *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the download ledger",
	}
	cmd.AddCommand(newLedgerStatusCommand(cc))
	return cmd
}

func newLedgerStatusCommand(cc *commandContext) *cobra.Command {
	var (
		worklistPath string
		verbose      bool
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Compare the ledger with the images in storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			store, err := cc.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			led, err := cc.openLedger()
			if err != nil {
				return err
			}
			defer led.Close()

			var specs []panorama.Spec
			if worklistPath != "" {
				if specs, err = worklist.LoadFile(worklistPath); err != nil {
					return err
				}
			}

			report, err := acquirer.Status(ctx, store, led, specs)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, renderStatus(report))

			if verbose {
				colorize := shouldColorize(out)
				for _, st := range []acquirer.State{acquirer.StateMissing, acquirer.StateUnrecorded} {
					for _, id := range report.IDs[st] {
						printStateLine(out, colorize, st, id)
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&worklistPath, "worklist", "w", "", "Restrict the report to a work list file")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "List ids whose ledger entry and image disagree")
	return cmd
}
