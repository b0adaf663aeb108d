package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mathmotion/internal/guard"
)

// vetCmd statically checks a script without rendering it
var vetCmd = &cobra.Command{
	Use:   "vet [script.py]",
	Short: "Statically check a Manim script against the safety policy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read script: %w", err)
		}

		verdict := guard.New(cfg.Guard.AllowedModules).Vet(string(source))
		if verdict.Passed {
			fmt.Println("ok")
			return nil
		}
		for _, v := range verdict.Violations {
			fmt.Fprintf(os.Stderr, "%s:%d: [%s] %s\n", args[0], v.Line, v.Rule, v.Message)
		}
		return fmt.Errorf("%d violation(s)", len(verdict.Violations))
	},
}
