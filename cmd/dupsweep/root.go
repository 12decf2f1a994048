package main

import (
	"github.com/spf13/cobra"
	"github.com/steveyegge/dupsweep/internal/config"
)

func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "dupsweep",
		Short: "Find near-duplicate images and move them aside",
		Long: `dupsweep embeds every image under one or more directories with a model
server, finds pairs whose cosine similarity exceeds a threshold, and moves one
file of each pair into a target directory.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}

	addPersistentFlags(rootCmd)
	rootCmd.AddCommand(
		NewScanCmd(version),
		NewJournalCmd(),
		NewVersionCmd(version),
	)
	return rootCmd
}

func addPersistentFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().Bool("json", false, "Output in JSON format")
	cmd.PersistentFlags().String("config", "", "Config file, YAML or TOML (default: $DUPSWEEP_CONFIG or ./dupsweep.yaml)")
	cmd.PersistentFlags().String("journal", "", "Journal database path (default: $XDG_STATE_HOME/dupsweep/journal.db)")
}

// loadConfig builds the effective config and applies the persistent flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("journal") {
		cfg.Journal.Path, _ = cmd.Flags().GetString("journal")
	}
	return cfg, nil
}
