// Package llm provides the completion client used to generate and repair
// Manim scripts, plus the prompt templates that drive it.
package llm

import (
	"context"
	"errors"
)

// ErrUnavailable marks completion failures that survived the retry budget.
// The generation loop treats these as fatal rather than repairable.
var ErrUnavailable = errors.New("llm unavailable")

// Client completes prompts. Implementations must honor ctx cancellation.
type Client interface {
	// Complete sends a prompt and returns the completion.
	Complete(ctx context.Context, prompt string) (string, error)

	// CompleteWithSystem sends a prompt with a system message.
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
