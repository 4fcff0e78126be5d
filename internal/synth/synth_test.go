package synth

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSynth(t *testing.T) *Synthesizer {
	t.Helper()
	return New(Options{BaseDir: t.TempDir(), DiskVolume: "/"})
}

func runArtifact(t *testing.T, art Artifact) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	err := art.Run(context.Background(), &buf)
	return buf.String(), err
}

func TestMathExactArithmetic(t *testing.T) {
	s := newTestSynth(t)
	tests := []struct {
		task string
		want string
	}{
		{"Calculate 100 * 25", "2500"},
		{"calculate 100+25", "125"},
		{"calculate 100 - 25", "75"},
		{"calculate 100 / 25", "4"},
		{"calculate 7 divided by 2", "3.5"},
		{"what is 6 times 7 math", "42"},
		{"calculate 2.5 * 4", "10"},
	}
	for _, tt := range tests {
		t.Run(tt.task, func(t *testing.T) {
			art := s.Synthesize(tt.task)
			require.Equal(t, TemplateMath, art.TemplateID)
			require.True(t, art.Cacheable)
			out, err := runArtifact(t, art)
			require.NoError(t, err)
			assert.Equal(t, tt.want, strings.TrimSpace(out))
		})
	}
}

func TestMathDivisionByZeroReportsError(t *testing.T) {
	s := newTestSynth(t)
	art := s.Synthesize("calculate 10 / 0")
	require.Equal(t, TemplateMath, art.TemplateID)

	out, err := runArtifact(t, art)
	require.Error(t, err, "division by zero is a reported error, not a panic")
	assert.Contains(t, out, "division by zero")
}

func TestUnsupportedTaskProducesStub(t *testing.T) {
	s := newTestSynth(t)
	art := s.Synthesize("Compose a symphony")
	assert.Equal(t, TemplateUnsupported, art.TemplateID)
	assert.False(t, art.Cacheable, "stub artifacts must never be cached")

	out, err := runArtifact(t, art)
	require.NoError(t, err)
	assert.Contains(t, out, "unsupported task")
	assert.Contains(t, out, "Compose a symphony")
}

func TestListFilesTemplate(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("hi"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	s := New(Options{BaseDir: "."})
	art := s.Synthesize("list files in " + dir)
	require.Equal(t, TemplateListFiles, art.TemplateID)
	assert.Equal(t, dir, art.Params["path"])

	out, err := runArtifact(t, art)
	require.NoError(t, err)
	assert.Contains(t, out, "hello.txt (2 bytes)")
	assert.Contains(t, out, "sub/")
}

func TestListFilesDefaultsToBaseDir(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(base, "a.txt"), []byte("x"), 0o644))

	s := New(Options{BaseDir: base})
	art := s.Synthesize("list files please") // no path token
	out, err := runArtifact(t, art)
	require.NoError(t, err)
	assert.Contains(t, out, "a.txt")
}

func TestAnalyzeDirTemplate(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("abcd"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b.txt"), []byte("ef"), 0o644))

	s := New(Options{BaseDir: "."})
	art := s.Synthesize("analyze directory " + dir)
	require.Equal(t, TemplateAnalyzeDir, art.TemplateID)

	out, err := runArtifact(t, art)
	require.NoError(t, err)
	assert.Contains(t, out, "directories: 1")
	assert.Contains(t, out, "files: 2")
	assert.Contains(t, out, "6 B")
}

func TestFileCreateTemplate(t *testing.T) {
	base := t.TempDir()
	s := New(Options{BaseDir: base})

	art := s.Synthesize("create file named report.txt")
	require.Equal(t, TemplateFileCreate, art.TemplateID)
	assert.Equal(t, "report.txt", art.Params["filename"])

	out, err := runArtifact(t, art)
	require.NoError(t, err)
	assert.Contains(t, out, "created:")
	_, statErr := os.Stat(filepath.Join(base, "report.txt"))
	assert.NoError(t, statErr)
}

func TestSystemInfoTemplate(t *testing.T) {
	s := newTestSynth(t)
	art := s.Synthesize("show system info")
	require.Equal(t, TemplateSystemInfo, art.TemplateID)

	out, err := runArtifact(t, art)
	require.NoError(t, err)
	assert.Contains(t, out, "platform:")
	assert.Contains(t, out, "runtime: go")
}

func TestDiskSpaceTemplate(t *testing.T) {
	s := newTestSynth(t)
	art := s.Synthesize("check disk space")
	require.Equal(t, TemplateDiskSpace, art.TemplateID)

	out, err := runArtifact(t, art)
	require.NoError(t, err)
	assert.Contains(t, out, "total:")
	assert.Contains(t, out, "free:")
	assert.Contains(t, out, "%")
}

func TestWebSearchExtractsQuery(t *testing.T) {
	s := newTestSynth(t)
	art := s.Synthesize("search for golang generics tutorial")
	require.Equal(t, TemplateWebSearch, art.TemplateID)
	assert.Equal(t, "golang generics tutorial", art.Params["query"])

	out, err := runArtifact(t, art)
	require.NoError(t, err)
	assert.Contains(t, out, "golang generics tutorial")
}

func TestRebuildSkipsMatching(t *testing.T) {
	s := newTestSynth(t)

	art, ok := s.Rebuild(TemplateMath, map[string]string{"a": "100", "op": "*", "b": "25"})
	require.True(t, ok)
	out, err := runArtifact(t, art)
	require.NoError(t, err)
	assert.Equal(t, "2500", strings.TrimSpace(out))
}

func TestRebuildUnknownTemplate(t *testing.T) {
	s := newTestSynth(t)
	_, ok := s.Rebuild("no_such_template", nil)
	assert.False(t, ok)
	_, ok = s.Rebuild(TemplateUnsupported, nil)
	assert.False(t, ok, "the stub is not a rebuildable template")
}

func TestRenderedSourceCarriesParams(t *testing.T) {
	s := newTestSynth(t)
	art := s.Synthesize("Calculate 100 * 25")
	assert.Contains(t, art.Source, `"100"`)
	assert.Contains(t, art.Source, `"25"`)
	assert.Contains(t, art.Source, "RunTask")
	assert.True(t, strings.HasPrefix(art.Source, "package main"))
}

func TestCatalogOrderIsStable(t *testing.T) {
	s := newTestSynth(t)
	ids := s.TemplateIDs()
	require.Equal(t, []string{
		TemplateAnalyzeDir, TemplateListFiles, TemplateDiskSpace, TemplateFileCreate,
		TemplateMath, TemplateSystemInfo, TemplateWebSearch,
	}, ids)
}
