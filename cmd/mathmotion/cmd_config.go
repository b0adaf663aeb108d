package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mathmotion/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

// configInitCmd writes a default config file for editing
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(configPath); err == nil {
			return fmt.Errorf("%s already exists", configPath)
		}
		if err := config.DefaultConfig().Save(configPath); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", configPath)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
}
