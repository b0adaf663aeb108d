package embedding

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GenAIEngine generates embeddings through Google's Gemini embedding API.
type GenAIEngine struct {
	client   *genai.Client
	model    string
	taskType string
}

// NewGenAIEngine creates a Gemini-backed embedding engine.
func NewGenAIEngine(apiKey, model, taskType string) (*GenAIEngine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if model == "" {
		model = "gemini-embedding-001"
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GenAIEngine{client: client, model: model, taskType: normalizeTaskType(taskType)}, nil
}

// normalizeTaskType maps config values onto the task type strings the
// embedding API accepts.
func normalizeTaskType(taskType string) string {
	switch taskType {
	case "RETRIEVAL_QUERY", "RETRIEVAL_DOCUMENT", "SEMANTIC_SIMILARITY":
		return taskType
	default:
		return "SEMANTIC_SIMILARITY"
	}
}

func (e *GenAIEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return vecs[0], nil
}

// EmbedBatch uses the API's native batch support.
func (e *GenAIEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	result, err := e.client.Models.EmbedContent(ctx,
		e.model,
		contents,
		&genai.EmbedContentConfig{
			TaskType: e.taskType,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("GenAI embed failed: %w", err)
	}

	vecs := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		vecs[i] = emb.Values
	}
	return vecs, nil
}

// Dimensions reports the vector size. gemini-embedding-001 produces
// 768-dimensional vectors.
func (e *GenAIEngine) Dimensions() int {
	return 768
}

func (e *GenAIEngine) Name() string {
	return fmt.Sprintf("genai:%s", e.model)
}
