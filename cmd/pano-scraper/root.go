package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configFlag string

	cc := newCommandContext(&configFlag)

	rootCmd := &cobra.Command{
		Use:           "pano-scraper",
		Short:         "Download street-level panoramas, their metadata and depth maps",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return cc.setup()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return cc.close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newDownloadCommand(cc))
	rootCmd.AddCommand(newImagesCommand(cc))
	rootCmd.AddCommand(newMetadataCommand(cc))
	rootCmd.AddCommand(newDepthCommand(cc))
	rootCmd.AddCommand(newLedgerCommand(cc))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "pano-scraper %s (%s)\n", Version, GitSHA)
			return nil
		},
	}
}
