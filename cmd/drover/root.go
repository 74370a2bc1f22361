package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/drover-ai/drover/internal/config"
	"github.com/drover-ai/drover/internal/logging"
)

var (
	cfgFile string
	verbose bool
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "drover",
	Short: "Agent orchestration with remote tool execution",
	Long: `Drover routes requests to specialized model-driven workers, decomposes
complex work into a dependency graph of steps, and runs ready steps
concurrently under a fixed worker budget.

With no arguments, starts an interactive chat session in the current
directory. Tool calls run locally, or on a connected remote executor
when one is attached to the session.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfgFile != "" {
			cfg, err = config.LoadFromPath(cfgFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return err
		}

		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		logging.Init(logging.Config{Level: level, Pretty: cfg.Logging.Pretty})
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd)
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: XDG config plus .drover.yaml overrides)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	Execute()
}
