// Package agent drives the generate, vet, execute, diagnose, repair loop
// that turns a math concept into a rendered Manim video.
package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"mathmotion/internal/diagnose"
	"mathmotion/internal/guard"
	"mathmotion/internal/llm"
	"mathmotion/internal/logging"
	"mathmotion/internal/retrieval"
	"mathmotion/internal/sandbox"
)

// State is the session's position in the generation loop.
type State string

const (
	StateInit       State = "init"
	StateGenerating State = "generating"
	StateVetting    State = "vetting"
	StateExecuting  State = "executing"
	StateDiagnosing State = "diagnosing"
	StateRepairing  State = "repairing"
	StateSucceeded  State = "succeeded"
	StateExhausted  State = "exhausted"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

// Task is one explanation request.
type Task struct {
	ID      string
	Concept string
	Style   string // optional presentation instructions, "" for none
}

// NewTask creates a task with a fresh ID.
func NewTask(concept string) Task {
	return Task{ID: uuid.NewString(), Concept: concept}
}

// Attempt records one generated candidate and why it was rejected. A
// successful candidate has no diagnostics.
type Attempt struct {
	Iteration   int
	Parent      int // iteration this candidate repairs, -1 for the first
	Script      string
	Diagnostics []diagnose.Diagnostic
}

// Outcome is the terminal result of a session.
type Outcome struct {
	State    State
	Script   string // the script that succeeded, "" otherwise
	Artifact string // path to the rendered video, "" otherwise
	Attempts []Attempt
}

// Vetter statically checks a candidate before it may execute.
type Vetter interface {
	Vet(source string) guard.Verdict
}

// Runner executes a candidate and reports the result.
type Runner interface {
	Run(ctx context.Context, source string, attempt int) (sandbox.Result, error)
}

// DocRetriever fetches documentation passages for a query. Optional; a nil
// retriever disables grounding.
type DocRetriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]retrieval.Passage, error)
}

// Config tunes the repair loop.
type Config struct {
	// MaxRepairs is the number of repair rounds after the initial attempt,
	// inclusive: 5 allows up to 6 generations in total.
	MaxRepairs int

	// RetrieveOnRepair grounds repair prompts in retrieved documentation.
	RetrieveOnRepair bool

	// RetrieveTopK passages per repair query.
	RetrieveTopK int
}

// Session runs one task through the loop. Sessions are single-use.
type Session struct {
	id        string
	task      Task
	client    llm.Client
	vetter    Vetter
	runner    Runner
	retriever DocRetriever
	cfg       Config

	state    State
	attempts []Attempt
}

func NewSession(task Task, client llm.Client, vetter Vetter, runner Runner, retriever DocRetriever, cfg Config) *Session {
	if cfg.MaxRepairs < 0 {
		cfg.MaxRepairs = 0
	}
	if cfg.RetrieveTopK <= 0 {
		cfg.RetrieveTopK = 4
	}
	return &Session{
		id:        uuid.NewString(),
		task:      task,
		client:    client,
		vetter:    vetter,
		runner:    runner,
		retriever: retriever,
		cfg:       cfg,
		state:     StateInit,
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// State returns the session's current state.
func (s *Session) State() State { return s.state }

// Submit runs the loop to a terminal state. The returned error is nil for
// Succeeded and Exhausted; Failed carries the fatal cause and Cancelled the
// context error. Outcome.State is always set.
func (s *Session) Submit(ctx context.Context) (Outcome, error) {
	logging.Agent("session %s: task %s: %q", s.id, s.task.ID, clip(s.task.Concept, 80))

	iteration := 0
	docContext := s.retrieveConcept(ctx)

	for {
		if err := ctx.Err(); err != nil {
			return s.terminal(StateCancelled), err
		}

		source, err := s.generate(ctx, iteration, docContext)
		if err != nil {
			if ctx.Err() != nil {
				return s.terminal(StateCancelled), ctx.Err()
			}
			return s.terminal(StateFailed), fmt.Errorf("generation failed: %w", err)
		}

		diags, artifact, err := s.evaluate(ctx, source, iteration)
		if err != nil {
			if ctx.Err() != nil {
				return s.terminal(StateCancelled), ctx.Err()
			}
			return s.terminal(StateFailed), err
		}

		s.attempts = append(s.attempts, Attempt{
			Iteration:   iteration,
			Parent:      iteration - 1,
			Script:      source,
			Diagnostics: diags,
		})

		if len(diags) == 0 {
			logging.Agent("session %s: succeeded on iteration %d, artifact %s", s.id, iteration, artifact)
			out := s.terminal(StateSucceeded)
			out.Script = source
			out.Artifact = artifact
			return out, nil
		}

		logging.Agent("session %s: iteration %d rejected with %d diagnostics", s.id, iteration, len(diags))
		if iteration >= s.cfg.MaxRepairs {
			logging.Agent("session %s: repair budget of %d exhausted", s.id, s.cfg.MaxRepairs)
			return s.terminal(StateExhausted), nil
		}

		s.state = StateRepairing
		iteration++
		docContext = s.retrieveContext(ctx, diags, source)
	}
}

// generate produces the next candidate: a fresh script on iteration 0, a
// repair of the previous one after that.
func (s *Session) generate(ctx context.Context, iteration int, docContext string) (string, error) {
	s.state = StateGenerating

	var prompt string
	if iteration == 0 {
		prompt = llm.BuildGenerationPrompt(s.task.Concept, s.task.Style, docContext)
	} else {
		prior := s.attempts[len(s.attempts)-1]
		history := s.history()
		prompt = llm.BuildRepairPrompt(s.task.Concept, prior.Script, history, docContext)
	}

	completion, err := s.client.CompleteWithSystem(ctx, llm.GenerationSystemPrompt, prompt)
	if err != nil {
		return "", err
	}
	source := llm.NormalizeCode(completion)
	if source == "" || source == "\n" {
		return "", fmt.Errorf("%w: empty completion", llm.ErrUnavailable)
	}
	return source, nil
}

// evaluate vets and, if clean, executes the candidate. Returns the
// diagnostics that reject it (empty means success) and the artifact path on
// success. A guard rejection short-circuits execution entirely.
func (s *Session) evaluate(ctx context.Context, source string, iteration int) ([]diagnose.Diagnostic, string, error) {
	s.state = StateVetting
	verdict := s.vetter.Vet(source)
	if !verdict.Passed {
		s.state = StateDiagnosing
		return diagnose.FromVerdict(verdict), "", nil
	}

	s.state = StateExecuting
	result, err := s.runner.Run(ctx, source, iteration)
	if err != nil {
		if errors.Is(err, sandbox.ErrEnvironment) {
			return nil, "", fmt.Errorf("execution environment failure: %w", err)
		}
		return nil, "", err
	}

	s.state = StateDiagnosing
	diags := diagnose.FromResult(result, sandbox.ScriptName)
	if len(diags) == 0 && diagnose.HasErrorMarkers(result.Stderr) {
		// Clean exit code but an exception in stderr; some failures in scene
		// teardown are swallowed by the renderer.
		diags = diagnose.FromResult(sandbox.Result{ExitCode: 1, Stderr: result.Stderr, Limit: result.Limit}, sandbox.ScriptName)
	}
	if len(diags) == 0 {
		return nil, result.ArtifactPath, nil
	}
	return diags, "", nil
}

// retrieveConcept grounds the first generation in documentation matched
// against the task text itself. Best effort, like retrieveContext.
func (s *Session) retrieveConcept(ctx context.Context) string {
	if s.retriever == nil {
		return ""
	}
	passages, err := s.retriever.Retrieve(ctx, s.task.Concept, s.cfg.RetrieveTopK)
	if err != nil {
		logging.Get(logging.CategoryAgent).Warn("session %s: initial retrieval failed, generating without docs: %v", s.id, err)
		return ""
	}
	return retrieval.FormatContext(passages)
}

// retrieveContext fetches documentation relevant to the failure for the next
// repair prompt. Retrieval trouble degrades to an ungrounded repair rather
// than killing the session.
func (s *Session) retrieveContext(ctx context.Context, diags []diagnose.Diagnostic, source string) string {
	if !s.cfg.RetrieveOnRepair || s.retriever == nil {
		return ""
	}
	query := retrieval.BuildQuery(diags, source)
	if query == "" {
		return ""
	}
	passages, err := s.retriever.Retrieve(ctx, query, s.cfg.RetrieveTopK)
	if err != nil {
		logging.Get(logging.CategoryAgent).Warn("session %s: retrieval failed, repairing without docs: %v", s.id, err)
		return ""
	}
	return retrieval.FormatContext(passages)
}

// history renders every attempt's diagnostics, oldest first.
func (s *Session) history() string {
	rounds := make([][]diagnose.Diagnostic, 0, len(s.attempts))
	for _, a := range s.attempts {
		rounds = append(rounds, a.Diagnostics)
	}
	return diagnose.FormatHistory(rounds)
}

func (s *Session) terminal(state State) Outcome {
	s.state = state
	return Outcome{State: state, Attempts: s.attempts}
}

func clip(text string, n int) string {
	if len(text) <= n {
		return text
	}
	return text[:n] + "..."
}
