package diagnose

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Frame is one stack frame pulled out of a Python traceback.
type Frame struct {
	File     string
	Line     int
	Function string
}

var (
	// Standard CPython frame: File "script.py", line 12, in construct
	stdFrameRe = regexp.MustCompile(`File\s+"([^"]+)",\s+line\s+(\d+)(?:,\s+in\s+(\S+))?`)

	// Rich-rendered frame header: /path/to/script.py:12 in construct
	// Left unanchored because Rich draws box borders at line start.
	richFrameRe = regexp.MustCompile(`([\w./\\-]+\.py):(\d+)(?:\s+in\s+(\S+))?`)

	// Terminal exception line: AttributeError: 'Circle' object has no ...
	excRe = regexp.MustCompile(`(?m)^\s*([A-Za-z_][A-Za-z0-9_.]*(?:Error|Exception))\s*:\s*(.*)$`)
)

// Traceback is the parsed shape of a Python error dump. Zero value means
// nothing recognizable was found.
type Traceback struct {
	Frames    []Frame
	ErrorType string
	Message   string

	// Snippet is the failing source line when Rich marked one in the dump.
	Snippet string
}

// Empty reports whether parsing recovered nothing usable.
func (t Traceback) Empty() bool {
	return t.ErrorType == "" && len(t.Frames) == 0
}

// ParseTraceback extracts stack frames and the final exception line from
// stderr text. It understands both the standard CPython format and the
// Rich-rendered tracebacks Manim emits by default.
func ParseTraceback(text string) Traceback {
	var tb Traceback

	for _, m := range stdFrameRe.FindAllStringSubmatch(text, -1) {
		tb.Frames = append(tb.Frames, frameFrom(m))
	}
	if len(tb.Frames) == 0 {
		for _, m := range richFrameRe.FindAllStringSubmatch(text, -1) {
			tb.Frames = append(tb.Frames, frameFrom(m))
		}
	}

	if matches := excRe.FindAllStringSubmatch(text, -1); len(matches) > 0 {
		last := matches[len(matches)-1]
		tb.ErrorType = last[1]
		tb.Message = strings.TrimSpace(last[2])
	}
	tb.Snippet = richSnippet(text)
	return tb
}

// richSnippet recovers the source line Rich points at with the ❱ marker.
// Returns the last marked line, stripped of box borders and its line number.
func richSnippet(text string) string {
	var snippet string
	for _, line := range strings.Split(text, "\n") {
		idx := strings.Index(line, "❱")
		if idx < 0 {
			continue
		}
		s := line[idx+len("❱"):]
		s = strings.TrimRight(s, " │|")
		s = strings.TrimSpace(s)
		// Drop the line number Rich prints after the marker, then the
		// indentation guides it draws for nested code.
		if i := strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' }); i > 0 {
			s = s[i:]
		}
		s = strings.TrimSpace(strings.TrimLeft(s, "│| \t"))
		if s != "" {
			snippet = s
		}
	}
	return snippet
}

func frameFrom(m []string) Frame {
	line, _ := strconv.Atoi(m[2])
	f := Frame{File: m[1], Line: line}
	if len(m) > 3 {
		f.Function = m[3]
	}
	return f
}

// BestFrame picks the frame most useful for repair: the deepest frame inside
// the candidate script itself. Frames from installed libraries are only used
// as a fallback when the script never appears on the stack, and site-packages
// frames are skipped even then.
func BestFrame(frames []Frame, scriptName string) *Frame {
	for i := len(frames) - 1; i >= 0; i-- {
		if filepath.Base(frames[i].File) == scriptName {
			return &frames[i]
		}
	}
	for i := len(frames) - 1; i >= 0; i-- {
		if !strings.Contains(frames[i].File, "site-packages") {
			return &frames[i]
		}
	}
	return nil
}
