// Package diagnose normalizes heterogeneous failure signals (guard
// violations, runtime tracebacks, timeouts) into one structured record the
// repair loop can feed back to the LLM.
package diagnose

import (
	"fmt"
	"strings"
)

// Kind classifies a diagnostic.
type Kind string

const (
	KindSyntaxError      Kind = "syntax_error"
	KindLintWarning      Kind = "lint_warning" // Reserved for static analyzers beyond the guard
	KindPolicyViolation  Kind = "policy_violation"
	KindRuntimeException Kind = "runtime_exception"
	KindTimeout          Kind = "timeout"
)

// Location points at a line in the candidate script.
type Location struct {
	File     string
	Line     int
	Function string
}

// Diagnostic is one normalized failure record.
type Diagnostic struct {
	Kind      Kind
	Message   string
	Location  *Location // nil when the failure has no actionable source line
	Snippet   string    // The failing source line, when the traceback marked one
	RawDetail string    // Unprocessed detail, typically the stderr tail
}

// String renders the diagnostic in the compact form used in repair prompts.
func (d Diagnostic) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", d.Kind, d.Message)
	if d.Location != nil {
		fmt.Fprintf(&b, " (line %d", d.Location.Line)
		if d.Location.Function != "" {
			fmt.Fprintf(&b, " in %s", d.Location.Function)
		}
		b.WriteString(")")
	}
	if d.Snippet != "" {
		fmt.Fprintf(&b, "\nfailing line: %s", d.Snippet)
	}
	if d.RawDetail != "" {
		fmt.Fprintf(&b, "\n%s", d.RawDetail)
	}
	return b.String()
}

// FormatHistory renders an ordered diagnostic history for an LLM prompt,
// oldest round first, so the model sees the trajectory of attempts.
func FormatHistory(rounds [][]Diagnostic) string {
	var b strings.Builder
	for i, round := range rounds {
		fmt.Fprintf(&b, "### Attempt %d\n", i+1)
		for _, d := range round {
			b.WriteString(d.String())
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
