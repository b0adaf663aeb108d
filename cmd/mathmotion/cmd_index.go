package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mathmotion/internal/embedding"
	"mathmotion/internal/retrieval"
)

// indexCmd builds the documentation passage index
var indexCmd = &cobra.Command{
	Use:   "index [docs-dir]",
	Short: "Index a directory of Manim documentation for retrieval",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := retrieval.OpenStore(cfg.Retrieval.IndexPath)
		if err != nil {
			return err
		}
		defer store.Close()

		engine, err := embedding.NewEngine(embedding.Config{
			Provider:       cfg.Embedding.Provider,
			OllamaEndpoint: cfg.Embedding.OllamaEndpoint,
			OllamaModel:    cfg.Embedding.OllamaModel,
			GenAIAPIKey:    cfg.Embedding.GenAIAPIKey,
			GenAIModel:     cfg.Embedding.GenAIModel,
			TaskType:       "RETRIEVAL_DOCUMENT",
		})
		if err != nil {
			return err
		}

		n, err := retrieval.NewIndexer(store, engine).IndexDirectory(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		total, err := store.Count()
		if err != nil {
			return err
		}
		fmt.Printf("Indexed %d passage(s), %d total in %s\n", n, total, cfg.Retrieval.IndexPath)
		return nil
	},
}
