package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"mathmotion/internal/logging"
)

// GeminiConfig configures the Gemini completion client.
type GeminiConfig struct {
	APIKey          string
	BaseURL         string
	Model           string
	Timeout         time.Duration
	MaxRetries      int
	MaxOutputTokens int
}

// DefaultGeminiConfig returns sensible defaults for script generation.
func DefaultGeminiConfig(apiKey string) GeminiConfig {
	return GeminiConfig{
		APIKey:          apiKey,
		BaseURL:         "https://generativelanguage.googleapis.com/v1beta",
		Model:           "gemini-2.5-pro",
		Timeout:         2 * time.Minute,
		MaxRetries:      3,
		MaxOutputTokens: 65536,
	}
}

// GeminiClient implements Client against the Gemini generateContent API.
type GeminiClient struct {
	apiKey          string
	baseURL         string
	model           string
	maxRetries      int
	maxOutputTokens int
	httpClient      *http.Client

	mu          sync.Mutex
	lastRequest time.Time
}

func NewGeminiClient(cfg GeminiConfig) *GeminiClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-pro"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = 65536
	}
	return &GeminiClient{
		apiKey:          cfg.APIKey,
		baseURL:         cfg.BaseURL,
		model:           cfg.Model,
		maxRetries:      cfg.MaxRetries,
		maxOutputTokens: cfg.MaxOutputTokens,
		httpClient:      &http.Client{Timeout: cfg.Timeout},
	}
}

// Model returns the model this client completes with.
func (c *GeminiClient) Model() string {
	return c.model
}

func (c *GeminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

func (c *GeminiClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	start := time.Now()
	logging.APIDebug("[Gemini] completion: model=%s system_len=%d user_len=%d", c.model, len(systemPrompt), len(userPrompt))

	if c.apiKey == "" {
		return "", fmt.Errorf("%w: API key not configured", ErrUnavailable)
	}

	c.throttle()

	reqBody := geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: userPrompt}}},
		},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     1.0,
			MaxOutputTokens: c.maxOutputTokens,
		},
	}
	if systemPrompt != "" {
		reqBody.SystemInstruction = &geminiContent{
			Parts: []geminiPart{{Text: systemPrompt}},
		}
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		response, retryable, err := c.doRequest(ctx, url, reqBody)
		if err == nil {
			logging.API("[Gemini] completion done in %v response_len=%d", time.Since(start), len(response))
			return response, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !retryable {
			return "", err
		}
		lastErr = err
	}

	logging.Get(logging.CategoryAPI).Error("[Gemini] retries exhausted after %v: %v", time.Since(start), lastErr)
	return "", fmt.Errorf("%w: retries exhausted: %v", ErrUnavailable, lastErr)
}

// doRequest performs one API call. The second return reports whether the
// failure is worth retrying.
func (c *GeminiClient) doRequest(ctx context.Context, url string, reqBody geminiRequest) (string, bool, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", false, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", true, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", true, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", true, fmt.Errorf("rate limit exceeded (429)")
	case resp.StatusCode >= 500:
		return "", true, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	case resp.StatusCode != http.StatusOK:
		return "", false, fmt.Errorf("%w: API request failed with status %d: %s", ErrUnavailable, resp.StatusCode, string(body))
	}

	var geminiResp geminiResponse
	if err := json.Unmarshal(body, &geminiResp); err != nil {
		return "", false, fmt.Errorf("failed to parse response: %w", err)
	}
	if geminiResp.Error != nil {
		return "", false, fmt.Errorf("%w: API error: %s", ErrUnavailable, geminiResp.Error.Message)
	}
	if len(geminiResp.Candidates) == 0 || len(geminiResp.Candidates[0].Content.Parts) == 0 {
		return "", false, fmt.Errorf("%w: no completion returned", ErrUnavailable)
	}

	var result strings.Builder
	for _, part := range geminiResp.Candidates[0].Content.Parts {
		result.WriteString(part.Text)
	}
	return strings.TrimSpace(result.String()), false, nil
}

// throttle spaces requests at least 100ms apart.
func (c *GeminiClient) throttle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elapsed := time.Since(c.lastRequest); elapsed < 100*time.Millisecond {
		time.Sleep(100*time.Millisecond - elapsed)
	}
	c.lastRequest = time.Now()
}

type geminiRequest struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
