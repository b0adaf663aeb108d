package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(url string) *GeminiClient {
	return NewGeminiClient(GeminiConfig{
		APIKey:     "test-key",
		BaseURL:    url,
		Model:      "gemini-2.5-pro",
		Timeout:    5 * time.Second,
		MaxRetries: 2,
	})
}

func completionResponse(text string) map[string]any {
	return map[string]any{
		"candidates": []map[string]any{
			{"content": map[string]any{"parts": []map[string]any{{"text": text}}}},
		},
	}
}

func TestCompleteWithSystemSendsPrompts(t *testing.T) {
	var got geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "gemini-2.5-pro:generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(completionResponse("from manim import *"))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	out, err := c.CompleteWithSystem(context.Background(), "be brief", "draw a circle")
	if err != nil {
		t.Fatalf("CompleteWithSystem: %v", err)
	}
	if out != "from manim import *" {
		t.Errorf("completion = %q", out)
	}
	if got.SystemInstruction == nil || got.SystemInstruction.Parts[0].Text != "be brief" {
		t.Errorf("system instruction not sent: %+v", got.SystemInstruction)
	}
	if got.Contents[0].Parts[0].Text != "draw a circle" {
		t.Errorf("user prompt = %q", got.Contents[0].Parts[0].Text)
	}
}

func TestCompleteRetriesOnRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(completionResponse("ok"))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	out, err := c.Complete(context.Background(), "x")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "ok" {
		t.Errorf("completion = %q", out)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestCompleteDoesNotRetryClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	if _, err := c.Complete(context.Background(), "x"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 (no retry on 4xx)", calls.Load())
	}
}

func TestCompleteExhaustsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	if _, err := c.Complete(context.Background(), "x"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestCompleteMissingAPIKey(t *testing.T) {
	c := NewGeminiClient(GeminiConfig{})
	if _, err := c.Complete(context.Background(), "x"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestCompleteCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(5 * time.Second)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	c := newTestClient(srv.URL)
	if _, err := c.Complete(ctx, "x"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestNormalizeCode(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare code", "from manim import *", "from manim import *\n"},
		{"python fence", "```python\nx = 1\n```", "x = 1\n"},
		{"plain fence", "```\nx = 1\n```", "x = 1\n"},
		{"fence with chatter", "Here is the script:\n```python\nx = 1\n```\nHope that helps!", "x = 1\n"},
		{"unclosed fence", "```python\nx = 1", "x = 1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeCode(tt.in); got != tt.want {
				t.Errorf("NormalizeCode(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestBuildGenerationPrompt(t *testing.T) {
	p := BuildGenerationPrompt("the quadratic formula", "use a chalkboard aesthetic", "Relevant Manim documentation:\n## Circle\n...")
	if !strings.Contains(p, "quadratic formula") {
		t.Error("concept missing from prompt")
	}
	if !strings.Contains(p, "chalkboard aesthetic") {
		t.Error("style instructions missing from prompt")
	}
	if !strings.Contains(p, "HARD RULES") {
		t.Error("rules missing from prompt")
	}
	if !strings.Contains(p, "Relevant Manim documentation") {
		t.Error("doc context missing from prompt")
	}
}

func TestBuildGenerationPromptOmitsEmptySections(t *testing.T) {
	p := BuildGenerationPrompt("limits", "", "")
	if strings.Contains(p, "Presentation instructions") {
		t.Error("empty style should be omitted")
	}
	if strings.Contains(p, "Relevant Manim documentation") {
		t.Error("empty doc context should be omitted")
	}
}

func TestBuildRepairPromptCarriesHistory(t *testing.T) {
	p := BuildRepairPrompt("derivatives", "from manim import *\n", "### Attempt 1\n[runtime_exception] NameError: x", "")
	if !strings.Contains(p, "from manim import *") {
		t.Error("prior script missing")
	}
	if !strings.Contains(p, "NameError") {
		t.Error("diagnostic history missing")
	}
	if !strings.Contains(p, "complete corrected script") {
		t.Error("repair instruction missing")
	}
}
