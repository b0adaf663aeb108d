// Package sandbox executes candidate Manim scripts as isolated child
// processes with a wall-clock budget, captured output, and scratch
// directories that never outlive the attempt.
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"mathmotion/internal/logging"
)

// ErrEnvironment marks failures of the host environment rather than the
// candidate script: a missing renderer binary, an unwritable scratch
// directory. Callers treat these as non-retryable.
var ErrEnvironment = errors.New("sandbox environment failure")

// ScriptName is the file name every candidate is written to inside its
// scratch directory. Traceback locations are matched against it.
const ScriptName = "script.py"

// Config controls how candidates are rendered.
type Config struct {
	ManimBinary string        // renderer executable, resolved via PATH
	Quality     string        // one of l, m, h, k
	SceneName   string        // scene class invoked inside the script
	OutputDir   string        // where successful renders are moved
	ScratchDir  string        // parent for per-attempt scratch dirs ("" = system temp)
	RunID       string        // distinguishes this session's artifacts ("" = random)
	Timeout     time.Duration // wall-clock limit per render
}

// killGracePeriod bounds how long Wait may linger on output pipes a
// renderer subprocess still holds after the kill.
const killGracePeriod = 5 * time.Second

// Result captures one render attempt.
type Result struct {
	ExitCode     int // -1 when the process was killed or never ran
	Stdout       string
	Stderr       string
	WallClock    time.Duration
	TimedOut     bool
	Limit        time.Duration
	ArtifactPath string // final location of the rendered video, empty on failure
}

// Runner renders candidate scripts through the Manim CLI.
type Runner struct {
	cfg Config
}

func NewRunner(cfg Config) *Runner {
	if cfg.ManimBinary == "" {
		cfg.ManimBinary = "manim"
	}
	if cfg.Quality == "" {
		cfg.Quality = "l"
	}
	if cfg.SceneName == "" {
		cfg.SceneName = "GeneratedScene"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()[:8]
	}
	return &Runner{cfg: cfg}
}

// Run writes source into a fresh scratch directory, invokes the renderer on
// it, and reports the outcome. The scratch directory is removed on every
// exit path. A cancelled ctx kills the child and returns ctx.Err(); all
// other failures of the script itself are reported through Result, not
// through the error return.
func (r *Runner) Run(ctx context.Context, source string, attempt int) (Result, error) {
	res := Result{ExitCode: -1, Limit: r.cfg.Timeout}

	scratch, err := os.MkdirTemp(r.cfg.ScratchDir, fmt.Sprintf("mathmotion-%d-", attempt))
	if err != nil {
		return res, fmt.Errorf("%w: create scratch dir: %v", ErrEnvironment, err)
	}
	defer os.RemoveAll(scratch)

	scriptPath := filepath.Join(scratch, ScriptName)
	if err := os.WriteFile(scriptPath, []byte(source), 0o644); err != nil {
		return res, fmt.Errorf("%w: write script: %v", ErrEnvironment, err)
	}

	runCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	args := []string{
		"-q" + r.cfg.Quality,
		"--media_dir", scratch,
		ScriptName,
		r.cfg.SceneName,
	}
	cmd := exec.CommandContext(runCtx, r.cfg.ManimBinary, args...)
	cmd.Dir = scratch
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	// The renderer spawns its own subprocesses (ffmpeg, LaTeX). Killing
	// only the direct child would leave them holding the output pipes, and
	// Wait would block until they exit. Kill the whole process group on
	// cancellation, and cap how long Wait may drain the pipes regardless.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		return cmd.Process.Kill()
	}
	cmd.WaitDelay = killGracePeriod

	logging.Sandbox("render attempt %d: %s %s", attempt, r.cfg.ManimBinary, strings.Join(args, " "))
	timer := logging.StartTimer(logging.CategorySandbox, "render")
	start := time.Now()
	err = cmd.Run()
	timer.Stop()

	res.WallClock = time.Since(start)
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()

	if ctx.Err() != nil {
		return res, ctx.Err()
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		res.TimedOut = true
		logging.Sandbox("attempt %d timed out after %s", attempt, res.WallClock.Round(time.Millisecond))
		return res, nil
	}

	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.As(err, &exitErr):
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		case errors.Is(err, exec.ErrWaitDelay):
			// The renderer exited cleanly but a subprocess held the output
			// pipes past the grace period. Output may be truncated.
		case errors.Is(err, exec.ErrNotFound):
			return res, fmt.Errorf("%w: renderer %q not found in PATH", ErrEnvironment, r.cfg.ManimBinary)
		default:
			return res, fmt.Errorf("%w: launch renderer: %v", ErrEnvironment, err)
		}
	}

	res.ExitCode = 0
	artifact, err := r.collectArtifact(scratch, attempt)
	if err != nil {
		return res, err
	}
	res.ArtifactPath = artifact
	return res, nil
}

// collectArtifact finds the rendered video under the scratch media tree and
// moves it into the output directory before the scratch dir is destroyed.
func (r *Runner) collectArtifact(scratch string, attempt int) (string, error) {
	rendered := findVideo(scratch, r.cfg.SceneName)
	if rendered == "" {
		return "", fmt.Errorf("%w: renderer exited cleanly but produced no video", ErrEnvironment)
	}

	outDir := r.cfg.OutputDir
	if outDir == "" {
		outDir = "."
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create output dir: %v", ErrEnvironment, err)
	}
	dest := filepath.Join(outDir, fmt.Sprintf("%s-%s-attempt%d.mp4", r.cfg.SceneName, r.cfg.RunID, attempt))
	if err := moveFile(rendered, dest); err != nil {
		return "", fmt.Errorf("%w: move artifact: %v", ErrEnvironment, err)
	}
	logging.Sandbox("artifact saved to %s", dest)
	return dest, nil
}

// findVideo walks the media tree for the scene's mp4, falling back to any
// mp4 if the renderer named it differently.
func findVideo(root, sceneName string) string {
	var exact, any string
	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if filepath.Ext(path) != ".mp4" {
			return nil
		}
		// Partial movie segments are intermediate files, not the final cut.
		if strings.Contains(path, "partial_movie_files") {
			return nil
		}
		if strings.TrimSuffix(filepath.Base(path), ".mp4") == sceneName {
			exact = path
		}
		if any == "" {
			any = path
		}
		return nil
	})
	if exact != "" {
		return exact
	}
	return any
}

// moveFile renames, falling back to copy for cross-device scratch dirs.
func moveFile(src, dest string) error {
	if err := os.Rename(src, dest); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
