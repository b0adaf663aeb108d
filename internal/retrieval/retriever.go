package retrieval

import (
	"context"
	"fmt"

	"mathmotion/internal/embedding"
	"mathmotion/internal/logging"
)

// Retriever answers semantic queries against the passage index.
type Retriever struct {
	store  *Store
	engine embedding.Engine
	topK   int
}

func NewRetriever(store *Store, engine embedding.Engine, topK int) *Retriever {
	if topK <= 0 {
		topK = 4
	}
	return &Retriever{store: store, engine: engine, topK: topK}
}

// Retrieve returns up to k passages most relevant to the query, ordered by
// descending similarity. k <= 0 uses the configured default. The same query
// against the same index always returns the same passages in the same order.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]Passage, error) {
	if k <= 0 {
		k = r.topK
	}

	timer := logging.StartTimer(logging.CategoryRetrieval, "Retrieve")
	defer timer.Stop()

	queryVec, err := r.engine.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	passages, vectors, err := r.store.corpus()
	if err != nil {
		return nil, err
	}
	if len(passages) == 0 {
		logging.Retrieval("passage index is empty, retrieving nothing")
		return nil, nil
	}

	matches := embedding.TopK(queryVec, vectors, k)
	out := make([]Passage, 0, len(matches))
	for _, m := range matches {
		out = append(out, passages[m.Index])
	}
	logging.Retrieval("retrieved %d/%d passages for query %q", len(out), len(passages), clip(query, 80))
	return out, nil
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
