// Package commands implements the vecdb CLI commands.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/hupe1980/vecdb/config"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "vecdb",
	Short: "Embedded multi-library vector database tooling",
	Long: `vecdb manages and benchmarks an embedded vector database.

Settings are read from a YAML file passed with --config. Without it the
built-in defaults apply (in-memory store, flat index).`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to a YAML configuration file")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig returns the file named by --config, or the defaults.
func loadConfig() (*config.Config, error) {
	if configFile == "" {
		return config.Default(), nil
	}
	return config.Load(configFile)
}
