package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mathmotion/internal/config"
	"mathmotion/internal/logging"
)

var (
	// Global flags
	configPath string
	verbose    bool

	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "mathmotion",
	Short: "mathmotion - turn math concepts into explanatory Manim videos",
	Long: `mathmotion generates Manim scripts for mathematical concepts with an LLM,
statically vets them for safety, renders them in an isolated subprocess, and
feeds failures back to the model until a video comes out or the repair
budget runs dry.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if verbose {
			cfg.Logging.Debug = true
		}
		if err := logging.Initialize(cfg.Logging.Dir, cfg.Logging.Debug); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}
		logging.BootDebug("config loaded from %q", configPath)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "mathmotion.yaml", "path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(vetCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
