package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func collect(t *testing.T, inbox string) (chan string, context.CancelFunc, chan error) {
	t.Helper()
	tasks := make(chan string, 32)
	w := New(inbox, 30*time.Millisecond, func(_ context.Context, task string) {
		tasks <- task
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	return tasks, cancel, done
}

func waitFor(t *testing.T, tasks chan string, want string) {
	t.Helper()
	select {
	case got := <-tasks:
		require.Equal(t, want, got)
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for task %q", want)
	}
}

func appendLine(t *testing.T, path, line string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(line + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func shutdown(t *testing.T, cancel context.CancelFunc, done chan error) {
	t.Helper()
	cancel()
	select {
	case err := <-done:
		require.True(t, errors.Is(err, context.Canceled))
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatcherProcessesExistingLinesFirst(t *testing.T) {
	inbox := filepath.Join(t.TempDir(), "inbox", "tasks.txt")
	require.NoError(t, os.MkdirAll(filepath.Dir(inbox), 0o755))
	require.NoError(t, os.WriteFile(inbox, []byte("first task\nsecond task\n"), 0o644))

	tasks, cancel, done := collect(t, inbox)
	waitFor(t, tasks, "first task")
	waitFor(t, tasks, "second task")
	shutdown(t, cancel, done)
}

func TestWatcherHandsAppendedLinesInOrder(t *testing.T) {
	inbox := filepath.Join(t.TempDir(), "tasks.txt")
	tasks, cancel, done := collect(t, inbox)

	appendLine(t, inbox, "calculate 2 + 2")
	waitFor(t, tasks, "calculate 2 + 2")

	appendLine(t, inbox, "list files in /tmp")
	appendLine(t, inbox, "how much disk space")
	waitFor(t, tasks, "list files in /tmp")
	waitFor(t, tasks, "how much disk space")

	shutdown(t, cancel, done)
}

func TestWatcherSkipsBlankAndCommentLines(t *testing.T) {
	inbox := filepath.Join(t.TempDir(), "tasks.txt")
	tasks, cancel, done := collect(t, inbox)

	appendLine(t, inbox, "# a comment")
	appendLine(t, inbox, "")
	appendLine(t, inbox, "ORDER:")
	appendLine(t, inbox, "real task")
	waitFor(t, tasks, "real task")

	shutdown(t, cancel, done)
}

func TestWatcherStripsOrderPrefix(t *testing.T) {
	inbox := filepath.Join(t.TempDir(), "tasks.txt")
	tasks, cancel, done := collect(t, inbox)

	appendLine(t, inbox, "ORDER: calculate 2 + 2")
	waitFor(t, tasks, "calculate 2 + 2")

	shutdown(t, cancel, done)
}

func TestWatcherResetsOnTruncation(t *testing.T) {
	inbox := filepath.Join(t.TempDir(), "tasks.txt")
	tasks, cancel, done := collect(t, inbox)

	appendLine(t, inbox, "before truncate")
	waitFor(t, tasks, "before truncate")

	require.NoError(t, os.WriteFile(inbox, []byte("after truncate\n"), 0o644))
	waitFor(t, tasks, "after truncate")

	shutdown(t, cancel, done)
}

func TestWatcherCreatesMissingInbox(t *testing.T) {
	inbox := filepath.Join(t.TempDir(), "nested", "dir", "tasks.txt")
	_, cancel, done := collect(t, inbox)

	require.Eventually(t, func() bool {
		_, err := os.Stat(inbox)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	shutdown(t, cancel, done)
}
