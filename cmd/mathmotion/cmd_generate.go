package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"mathmotion/internal/agent"
	"mathmotion/internal/embedding"
	"mathmotion/internal/guard"
	"mathmotion/internal/llm"
	"mathmotion/internal/logging"
	"mathmotion/internal/retrieval"
	"mathmotion/internal/sandbox"
)

var (
	outputDir  string
	quality    string
	style      string
	maxRepairs int
	noRetrieve bool
)

// generateCmd runs the full loop for one concept
var generateCmd = &cobra.Command{
	Use:   "generate [concept]",
	Short: "Generate an explanatory video for a math concept",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if outputDir != "" {
			cfg.Execution.OutputDir = outputDir
		}
		if quality != "" {
			cfg.Execution.Quality = quality
		}
		if cmd.Flags().Changed("max-repairs") {
			cfg.Agent.MaxRepairs = maxRepairs
		}
		if noRetrieve {
			cfg.Agent.RetrieveOnRepair = false
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		concept := strings.Join(args, " ")
		task := agent.NewTask(concept)
		task.Style = style

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		client := llm.NewGeminiClient(llm.GeminiConfig{
			APIKey:     cfg.LLM.APIKey,
			Model:      cfg.LLM.GeneratorModel,
			Timeout:    cfg.LLM.TimeoutDuration(),
			MaxRetries: cfg.LLM.MaxRetries,
		})
		vetter := guard.New(cfg.Guard.AllowedModules)
		runner := sandbox.NewRunner(sandbox.Config{
			ManimBinary: cfg.Execution.ManimBinary,
			Quality:     cfg.Execution.Quality,
			SceneName:   cfg.Execution.SceneName,
			OutputDir:   cfg.Execution.OutputDir,
			ScratchDir:  cfg.Execution.ScratchDir,
			RunID:       task.ID[:8],
			Timeout:     cfg.Execution.TimeoutDuration(),
		})

		var retriever agent.DocRetriever
		if cfg.Agent.RetrieveOnRepair {
			r, err := openRetriever()
			if err != nil {
				logging.Get(logging.CategoryBoot).Warn("passage index unavailable, repairs will not be grounded: %v", err)
			} else {
				retriever = r
			}
		}

		session := agent.NewSession(task, client, vetter, runner, retriever, agent.Config{
			MaxRepairs:       cfg.Agent.MaxRepairs,
			RetrieveOnRepair: cfg.Agent.RetrieveOnRepair,
			RetrieveTopK:     cfg.Retrieval.TopK,
		})

		outcome, err := session.Submit(ctx)
		switch outcome.State {
		case agent.StateSucceeded:
			fmt.Printf("Rendered after %d attempt(s): %s\n", len(outcome.Attempts), outcome.Artifact)
			return nil
		case agent.StateExhausted:
			fmt.Fprintf(os.Stderr, "Gave up after %d attempt(s). Last diagnostics:\n", len(outcome.Attempts))
			last := outcome.Attempts[len(outcome.Attempts)-1]
			for _, d := range last.Diagnostics {
				fmt.Fprintf(os.Stderr, "  [%s] %s\n", d.Kind, d.Message)
			}
			return fmt.Errorf("repair budget exhausted")
		default:
			return err
		}
	},
}

func openRetriever() (*retrieval.Retriever, error) {
	store, err := retrieval.OpenStore(cfg.Retrieval.IndexPath)
	if err != nil {
		return nil, err
	}
	engine, err := embedding.NewEngine(embedding.Config{
		Provider:       cfg.Embedding.Provider,
		OllamaEndpoint: cfg.Embedding.OllamaEndpoint,
		OllamaModel:    cfg.Embedding.OllamaModel,
		GenAIAPIKey:    cfg.Embedding.GenAIAPIKey,
		GenAIModel:     cfg.Embedding.GenAIModel,
		TaskType:       "RETRIEVAL_QUERY",
	})
	if err != nil {
		store.Close()
		return nil, err
	}
	return retrieval.NewRetriever(store, engine, cfg.Retrieval.TopK), nil
}

func init() {
	generateCmd.Flags().StringVarP(&outputDir, "out", "o", "", "output directory for rendered videos")
	generateCmd.Flags().StringVarP(&quality, "quality", "q", "", "render quality: l, m, h, or k")
	generateCmd.Flags().StringVar(&style, "style", "", "presentation instructions for the generated animation")
	generateCmd.Flags().IntVar(&maxRepairs, "max-repairs", 5, "repair rounds after the initial attempt")
	generateCmd.Flags().BoolVar(&noRetrieve, "no-retrieve", false, "disable documentation retrieval during repair")
}
