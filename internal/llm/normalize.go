package llm

import "strings"

// NormalizeCode strips markdown code fences and surrounding chatter from a
// model completion, returning bare Python source. Models wrap output in
// fences no matter how firmly told not to.
func NormalizeCode(completion string) string {
	text := strings.TrimSpace(completion)
	if text == "" {
		return ""
	}

	// Fenced block present: keep only the first fenced region.
	if idx := strings.Index(text, "```"); idx >= 0 {
		rest := text[idx+3:]
		// Drop an optional language tag on the fence line.
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			first := strings.TrimSpace(rest[:nl])
			if first == "python" || first == "py" || first == "" {
				rest = rest[nl+1:]
			}
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			rest = rest[:end]
		}
		text = rest
	}

	return strings.TrimSpace(text) + "\n"
}
