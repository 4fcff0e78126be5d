// Package sandbox executes artifacts in an isolated execution context with a
// hard wall-clock timeout and captured combined output. A timed-out run is
// terminated and reported; it is never silently retried. Successful runs are
// archived and, for template-backed artifacts, recorded as skills.
package sandbox

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"taskforge/internal/logging"
	"taskforge/internal/synth"
	"taskforge/internal/types"
)

// Recorder is the slice of the store the runner needs. Every execution is
// recorded for audit; archive and skill writes happen only on success.
type Recorder interface {
	ArchiveArtifact(artifactID, templateID, source string) (string, error)
	RecordExecution(res types.ExecutionResult) error
	RecordSkill(signature, templateID, source string, params map[string]string) error
	RecordSkillFailure(signature string) error
}

// Config holds runner limits.
type Config struct {
	Timeout        time.Duration
	MaxOutputBytes int
}

// DefaultConfig returns the default sandbox limits.
func DefaultConfig() Config {
	return Config{
		Timeout:        30 * time.Second,
		MaxOutputBytes: 1 << 20,
	}
}

// Runner executes artifacts. One Runner serves concurrent calls; every run
// gets its own capture buffer and deadline.
type Runner struct {
	cfg      Config
	recorder Recorder
	interp   *Interpreter
}

// New creates a Runner persisting through recorder. A nil recorder disables
// persistence, which tests use.
func New(cfg Config, recorder Recorder) *Runner {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = DefaultConfig().MaxOutputBytes
	}
	return &Runner{cfg: cfg, recorder: recorder, interp: NewInterpreter()}
}

// Run executes an artifact and returns its ExecutionResult. signature is
// empty for ad hoc runs; stub artifacts are executed but never recorded as
// skills.
func (r *Runner) Run(ctx context.Context, art synth.Artifact, sig string) types.ExecutionResult {
	timer := logging.StartTimer(logging.CategorySandbox, "Runner.Run")
	defer timer.Stop()

	res := types.ExecutionResult{
		ArtifactID: art.ID,
		Signature:  sig,
		TemplateID: art.TemplateID,
		Timestamp:  time.Now().UTC(),
	}
	if art.TemplateID == synth.TemplateUnsupported {
		res.Signature = "" // unsupported tasks carry no skill signature
	}

	out := newCaptureBuffer(r.cfg.MaxOutputBytes)
	start := time.Now()
	runErr := r.execute(ctx, art, out)
	res.Duration = time.Since(start)
	res.Output = out.String()

	switch {
	case runErr == nil && art.TemplateID == synth.TemplateUnsupported:
		res.Kind = types.ResultUnsupported
	case runErr == nil:
		res.Kind = types.ResultOK
	case isTimeout(runErr):
		res.Kind = types.ResultTimeout
		res.Error = runErr.Error()
		res.ExitStatus = 1
		logging.Sandbox("artifact %s timed out after %v", art.ID, r.cfg.Timeout)
	default:
		res.Kind = types.ResultExecError
		res.Error = runErr.Error()
		res.ExitStatus = 1
		logging.Sandbox("artifact %s failed: %v", art.ID, runErr)
	}

	r.persist(art, res)
	return res
}

// execute runs the artifact's native function (or, for source-only
// artifacts, the interpreter lane) under the configured deadline. The
// goroutine is abandoned on timeout; its output buffer stays valid because
// writes are capped and synchronized.
func (r *Runner) execute(parent context.Context, art synth.Artifact, out *captureBuffer) error {
	ctx, cancel := context.WithTimeout(parent, r.cfg.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- fmt.Errorf("panic: %v\n%s", rec, debug.Stack())
			}
		}()
		if art.Run != nil {
			done <- art.Run(ctx, out)
			return
		}
		text, err := r.interp.RunSource(ctx, art.Source)
		if err == nil {
			fmt.Fprintln(out, text)
		}
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return &types.SandboxError{Kind: types.ResultExecError, Trace: err.Error()}
		}
		return nil
	case <-ctx.Done():
		// Caller cancellation is not a deadline hit; only the latter is a
		// sandbox timeout.
		if ctx.Err() == context.Canceled {
			return &types.SandboxError{Kind: types.ResultExecError, Trace: "execution canceled"}
		}
		return &types.SandboxError{Kind: types.ResultTimeout, Trace: ctx.Err().Error()}
	}
}

// persist records the execution and, on success, archives the source and
// updates the skill table.
func (r *Runner) persist(art synth.Artifact, res types.ExecutionResult) {
	if r.recorder == nil {
		return
	}

	if err := r.recorder.RecordExecution(res); err != nil {
		logging.Get(logging.CategorySandbox).Error("recording execution: %v", err)
	}

	if res.Kind == types.ResultOK {
		if _, err := r.recorder.ArchiveArtifact(art.ID, art.TemplateID, art.Source); err != nil {
			logging.Get(logging.CategorySandbox).Error("archiving artifact: %v", err)
		}
		if art.Cacheable && res.Signature != "" {
			if err := r.recorder.RecordSkill(res.Signature, art.TemplateID, art.Source, art.Params); err != nil {
				logging.Get(logging.CategorySandbox).Error("recording skill: %v", err)
			}
		}
		return
	}

	if art.Cacheable && res.Signature != "" && res.Kind != types.ResultUnsupported {
		if err := r.recorder.RecordSkillFailure(res.Signature); err != nil {
			logging.Get(logging.CategorySandbox).Error("recording skill failure: %v", err)
		}
	}
}

// Replay interprets an archived artifact source and returns its result.
func (r *Runner) Replay(ctx context.Context, artifactID, templateID, source string) types.ExecutionResult {
	art := synth.Artifact{
		ID:         artifactID,
		TemplateID: templateID,
		Source:     source,
		Cacheable:  false, // replays never touch the skill table
	}
	return r.Run(ctx, art, "")
}

func isTimeout(err error) bool {
	se, ok := err.(*types.SandboxError)
	return ok && se.Kind == types.ResultTimeout
}

// captureBuffer is a size-capped, concurrency-safe output sink. The run
// goroutine may outlive a timed-out call, so writes stay synchronized with
// the reader.
type captureBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func newCaptureBuffer(max int) *captureBuffer {
	return &captureBuffer{max: max}
}

func (b *captureBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	room := b.max - len(b.buf)
	if room <= 0 {
		return len(p), nil // silently dropped past the cap
	}
	if len(p) > room {
		b.buf = append(b.buf, p[:room]...)
		return len(p), nil
	}
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *captureBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
