package retrieval

import (
	"fmt"
	"strings"
)

// previewLen caps how much of each passage is quoted into a prompt.
const previewLen = 400

// FormatContext renders retrieved passages as a documentation block for an
// LLM prompt. Passages from an already-seen source URL are dropped so one
// page cannot dominate the context window.
func FormatContext(passages []Passage) string {
	if len(passages) == 0 {
		return ""
	}

	seen := make(map[string]bool)
	var b strings.Builder
	b.WriteString("Relevant Manim documentation:\n")
	for _, p := range passages {
		if p.SourceURL != "" && seen[p.SourceURL] {
			continue
		}
		seen[p.SourceURL] = true

		preview := strings.TrimSpace(p.Content)
		if len(preview) > previewLen {
			preview = preview[:previewLen] + "..."
		}
		if p.Title != "" {
			fmt.Fprintf(&b, "\n## %s\n", p.Title)
		} else {
			b.WriteString("\n## (untitled)\n")
		}
		if p.SourceURL != "" {
			fmt.Fprintf(&b, "Source: %s\n", p.SourceURL)
		}
		b.WriteString(preview)
		b.WriteString("\n")
	}
	return b.String()
}
