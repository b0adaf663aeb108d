// Package embedding generates vector embeddings for documentation passages
// and diagnostic queries. Two backends are supported: a local Ollama server
// and Google's Gemini embedding API.
package embedding

import (
	"context"
	"fmt"
	"math"
	"sort"

	"mathmotion/internal/logging"
)

// Engine generates vector embeddings for text.
type Engine interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the dimensionality of produced vectors.
	Dimensions() int

	// Name identifies the backend and model.
	Name() string
}

// Config selects and configures an embedding backend.
type Config struct {
	// Provider: "ollama" or "genai"
	Provider string

	OllamaEndpoint string // default http://localhost:11434
	OllamaModel    string // default embeddinggemma

	GenAIAPIKey string
	GenAIModel  string // default gemini-embedding-001

	// TaskType hints the GenAI backend: RETRIEVAL_QUERY for search queries,
	// RETRIEVAL_DOCUMENT when indexing passages.
	TaskType string
}

// NewEngine creates an embedding engine for the configured provider.
func NewEngine(cfg Config) (Engine, error) {
	logging.Embedding("creating embedding engine: provider=%s", cfg.Provider)

	switch cfg.Provider {
	case "ollama", "":
		return NewOllamaEngine(cfg.OllamaEndpoint, cfg.OllamaModel)
	case "genai":
		return NewGenAIEngine(cfg.GenAIAPIKey, cfg.GenAIModel, cfg.TaskType)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s (use 'ollama' or 'genai')", cfg.Provider)
	}
}

// CosineSimilarity computes the cosine similarity of two vectors. Returns an
// error on dimension mismatch and 0 for zero-magnitude vectors.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector dimension mismatch: %d != %d", len(a), len(b))
	}

	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB)), nil
}

// Match is one similarity search hit.
type Match struct {
	Index      int
	Similarity float64
}

// TopK returns the k corpus vectors most similar to the query, sorted by
// descending similarity with ties broken by ascending corpus index so
// results are deterministic. Vectors with mismatched dimensions are skipped.
func TopK(query []float32, corpus [][]float32, k int) []Match {
	if k <= 0 {
		return nil
	}

	matches := make([]Match, 0, len(corpus))
	skipped := 0
	for i, vec := range corpus {
		sim, err := CosineSimilarity(query, vec)
		if err != nil {
			skipped++
			continue
		}
		matches = append(matches, Match{Index: i, Similarity: sim})
	}
	if skipped > 0 {
		logging.Get(logging.CategoryEmbedding).Warn("TopK: skipped %d vectors with mismatched dimensions", skipped)
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].Index < matches[j].Index
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches
}
