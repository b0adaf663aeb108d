package diagnose

import (
	"fmt"
	"strings"

	"mathmotion/internal/guard"
	"mathmotion/internal/sandbox"
)

// Maximum stderr carried into RawDetail. Rich tracebacks from deep Manim
// stacks can run to hundreds of kilobytes.
const maxRawDetail = 16 * 1024

// FromVerdict converts guard violations into diagnostics. A syntax error
// keeps its own kind so the repair prompt can frame it differently from a
// policy rejection.
func FromVerdict(v guard.Verdict) []Diagnostic {
	if v.Passed {
		return nil
	}
	out := make([]Diagnostic, 0, len(v.Violations))
	for _, viol := range v.Violations {
		kind := KindPolicyViolation
		if viol.Rule == guard.RuleSyntaxError {
			kind = KindSyntaxError
		}
		d := Diagnostic{Kind: kind, Message: viol.Message}
		if viol.Line > 0 {
			d.Location = &Location{Line: viol.Line}
		}
		out = append(out, d)
	}
	return out
}

// FromResult converts a sandbox execution result into diagnostics.
// scriptName is the file name the candidate was written to, used to anchor
// the source location inside the script rather than inside Manim internals.
// A successful result yields nil.
func FromResult(r sandbox.Result, scriptName string) []Diagnostic {
	if r.TimedOut {
		return []Diagnostic{{
			Kind:      KindTimeout,
			Message:   fmt.Sprintf("render exceeded the %s wall-clock limit and was killed", r.Limit),
			RawDetail: truncate(lastLines(r.Stderr, 20)),
		}}
	}
	if r.ExitCode == 0 {
		return nil
	}

	tb := ParseTraceback(r.Stderr)
	if tb.Empty() {
		msg := lastNonEmptyLine(r.Stderr)
		if msg == "" {
			msg = fmt.Sprintf("renderer exited with code %d and produced no traceback", r.ExitCode)
		}
		return []Diagnostic{{
			Kind:      KindRuntimeException,
			Message:   msg,
			RawDetail: truncate(r.Stderr),
		}}
	}

	d := Diagnostic{
		Kind:      KindRuntimeException,
		Message:   tb.ErrorType,
		Snippet:   tb.Snippet,
		RawDetail: truncate(r.Stderr),
	}
	if tb.Message != "" {
		d.Message = tb.ErrorType + ": " + tb.Message
	}
	if f := BestFrame(tb.Frames, scriptName); f != nil {
		d.Location = &Location{File: f.File, Line: f.Line, Function: f.Function}
	}
	return []Diagnostic{d}
}

// HasErrorMarkers reports whether stderr shows signs of failure even though
// the process exited cleanly. Manim occasionally swallows exceptions from
// scene teardown.
func HasErrorMarkers(stderr string) bool {
	return strings.Contains(stderr, "Traceback (most recent call last)") ||
		excRe.MatchString(stderr)
}

func truncate(s string) string {
	if len(s) <= maxRawDetail {
		return s
	}
	return s[len(s)-maxRawDetail:]
}

func lastNonEmptyLine(s string) string {
	lines := strings.Split(s, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if t := strings.TrimSpace(lines[i]); t != "" {
			return t
		}
	}
	return ""
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
