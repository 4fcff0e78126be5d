package sandbox

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskforge/internal/synth"
	"taskforge/internal/types"
)

// fakeRecorder captures persistence calls for assertions.
type fakeRecorder struct {
	mu         sync.Mutex
	executions []types.ExecutionResult
	archived   []string
	skills     []string
	failures   []string
}

func (f *fakeRecorder) ArchiveArtifact(artifactID, templateID, source string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.archived = append(f.archived, artifactID)
	return "key_" + artifactID, nil
}

func (f *fakeRecorder) RecordExecution(res types.ExecutionResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executions = append(f.executions, res)
	return nil
}

func (f *fakeRecorder) RecordSkill(signature, templateID, source string, params map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.skills = append(f.skills, signature)
	return nil
}

func (f *fakeRecorder) RecordSkillFailure(signature string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, signature)
	return nil
}

func nativeArtifact(id string, cacheable bool, run func(context.Context, io.Writer) error) synth.Artifact {
	return synth.Artifact{
		ID:         id,
		TemplateID: "math",
		Source:     "package main\n\nfunc RunTask() (string, error) { return \"\", nil }\n",
		Cacheable:  cacheable,
		Run:        run,
	}
}

func TestRunSuccessRecordsSkillAndArchives(t *testing.T) {
	rec := &fakeRecorder{}
	r := New(Config{Timeout: time.Second}, rec)

	art := nativeArtifact("a1", true, func(ctx context.Context, w io.Writer) error {
		fmt.Fprintln(w, "2500")
		return nil
	})
	res := r.Run(context.Background(), art, "calculate 100 * 25")

	assert.Equal(t, types.ResultOK, res.Kind)
	assert.True(t, res.Succeeded())
	assert.Equal(t, "2500\n", res.Output)
	assert.Equal(t, []string{"a1"}, rec.archived)
	assert.Equal(t, []string{"calculate 100 * 25"}, rec.skills)
	require.Len(t, rec.executions, 1)
}

func TestRunTimeoutKillsAndKeepsPartialOutput(t *testing.T) {
	rec := &fakeRecorder{}
	r := New(Config{Timeout: 50 * time.Millisecond}, rec)

	block := make(chan struct{})
	t.Cleanup(func() { close(block) })
	art := nativeArtifact("a2", true, func(ctx context.Context, w io.Writer) error {
		fmt.Fprintln(w, "started")
		<-block // never terminates on its own
		return nil
	})

	start := time.Now()
	res := r.Run(context.Background(), art, "sig")
	elapsed := time.Since(start)

	assert.Equal(t, types.ResultTimeout, res.Kind)
	assert.Contains(t, res.Output, "started", "partial output is attached")
	assert.NotZero(t, res.ExitStatus)
	assert.Less(t, elapsed, 600*time.Millisecond, "termination within the grace margin")
	// Failed runs are recorded for audit and bump the skill failure count.
	require.Len(t, rec.executions, 1)
	assert.Equal(t, []string{"sig"}, rec.failures)
	assert.Empty(t, rec.skills)
	assert.Empty(t, rec.archived)
}

func TestRunCallerCancellationIsNotATimeout(t *testing.T) {
	rec := &fakeRecorder{}
	r := New(Config{Timeout: 10 * time.Second}, rec)

	block := make(chan struct{})
	t.Cleanup(func() { close(block) })
	art := nativeArtifact("a2c", true, func(ctx context.Context, w io.Writer) error {
		<-block
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	res := r.Run(ctx, art, "sig")

	assert.Equal(t, types.ResultExecError, res.Kind, "cancellation must not report as a timeout")
	assert.Contains(t, res.Error, "canceled")
	require.Len(t, rec.executions, 1)
}

func TestRunExecutionError(t *testing.T) {
	rec := &fakeRecorder{}
	r := New(Config{Timeout: time.Second}, rec)

	art := nativeArtifact("a3", true, func(ctx context.Context, w io.Writer) error {
		fmt.Fprintln(w, "before failure")
		return fmt.Errorf("statfs failed")
	})
	res := r.Run(context.Background(), art, "sig")

	assert.Equal(t, types.ResultExecError, res.Kind)
	assert.Contains(t, res.Error, "statfs failed")
	assert.Contains(t, res.Output, "before failure")
	assert.Empty(t, rec.skills)
}

func TestRunRecoversPanic(t *testing.T) {
	r := New(Config{Timeout: time.Second}, nil)

	art := nativeArtifact("a4", true, func(ctx context.Context, w io.Writer) error {
		panic("boom")
	})
	res := r.Run(context.Background(), art, "")

	assert.Equal(t, types.ResultExecError, res.Kind)
	assert.Contains(t, res.Error, "boom")
}

func TestStubArtifactNeverRecordedAsSkill(t *testing.T) {
	rec := &fakeRecorder{}
	r := New(Config{Timeout: time.Second}, rec)

	art := synth.Artifact{
		ID:         "stub1",
		TemplateID: synth.TemplateUnsupported,
		Source:     "package main\n\nfunc RunTask() (string, error) { return \"unsupported\", nil }\n",
		Cacheable:  false,
		Run: func(ctx context.Context, w io.Writer) error {
			fmt.Fprintln(w, "unsupported task: compose a symphony")
			return nil
		},
	}
	res := r.Run(context.Background(), art, "compose a symphony")

	assert.Equal(t, types.ResultUnsupported, res.Kind)
	assert.Empty(t, res.Signature, "unsupported runs carry no skill signature")
	assert.Empty(t, rec.skills)
	assert.Empty(t, rec.failures)
	require.Len(t, rec.executions, 1, "stub runs are still audited")
}

func TestOutputCap(t *testing.T) {
	r := New(Config{Timeout: time.Second, MaxOutputBytes: 16}, nil)

	art := nativeArtifact("a5", false, func(ctx context.Context, w io.Writer) error {
		fmt.Fprint(w, strings.Repeat("x", 1000))
		return nil
	})
	res := r.Run(context.Background(), art, "")
	assert.Len(t, res.Output, 16)
}

func TestReplayInterpretsSource(t *testing.T) {
	r := New(Config{Timeout: 5 * time.Second}, nil)

	source := `package main

import "strconv"

func RunTask() (string, error) {
	return strconv.FormatInt(100*25, 10), nil
}
`
	res := r.Replay(context.Background(), "replay1", "math", source)
	require.Equal(t, types.ResultOK, res.Kind, "error: %s", res.Error)
	assert.Equal(t, "2500", strings.TrimSpace(res.Output))
}

func TestInterpreterRejectsForbiddenImports(t *testing.T) {
	ip := NewInterpreter()
	_, err := ip.RunSource(context.Background(), `package main

import "os"

func RunTask() (string, error) {
	return os.Getwd()
}
`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "forbidden imports")
}

func TestInterpreterSurfacesRunTaskError(t *testing.T) {
	ip := NewInterpreter()
	_, err := ip.RunSource(context.Background(), `package main

import "errors"

func RunTask() (string, error) {
	return "", errors.New("division by zero")
}
`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "division by zero")
}
