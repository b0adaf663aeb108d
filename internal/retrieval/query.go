package retrieval

import (
	"regexp"
	"strings"

	"mathmotion/internal/diagnose"
)

var (
	// Manim API references in script source, e.g. manim.Circle, manim.animation
	manimRefRe = regexp.MustCompile(`manim[.\w]+`)

	// The part of an error message worth searching documentation for
	errorPhraseRe = regexp.MustCompile(`(?:AttributeError|TypeError|ValueError|LaTeX|ImportError|SyntaxError|NameError).*`)
)

// BuildQuery derives a documentation search query from the failure
// diagnostics and the failing script. API names referenced by the script and
// the salient error phrases are joined into a single query string. Returns
// "" when nothing query-worthy was found.
func BuildQuery(diags []diagnose.Diagnostic, source string) string {
	seen := make(map[string]bool)
	var terms []string
	add := func(t string) {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			return
		}
		seen[t] = true
		terms = append(terms, t)
	}

	for _, d := range diags {
		if phrase := errorPhraseRe.FindString(d.Message); phrase != "" {
			add(clip(phrase, 120))
		} else if d.Kind == diagnose.KindTimeout || d.Kind == diagnose.KindPolicyViolation {
			// Not documentation problems, nothing to search for.
			continue
		} else {
			add(clip(d.Message, 120))
		}
	}

	for _, ref := range manimRefRe.FindAllString(source, 8) {
		add(ref)
	}

	return strings.Join(terms, " ")
}
