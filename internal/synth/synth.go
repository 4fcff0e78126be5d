// Package synth turns classified task text into executable artifacts. The
// catalog is an ordered list of skill templates; each template is a tagged
// variant backed by a native run function taking typed parameters, plus a
// rendered Go source body kept for the audit archive and interpreter replay.
// Literal code-text assembly never decides behavior, which removes the
// injection surface the generated-source approach would carry.
package synth

import (
	"context"
	"io"
	"strings"

	"github.com/google/uuid"

	"taskforge/internal/logging"
)

// TemplateUnsupported is the id of the fallback stub. Stub artifacts are
// executed so the caller still gets a structured result, but they are never
// recorded as skills: no working code exists to cache.
const TemplateUnsupported = "unsupported"

// Artifact is a synthesized (or cache-rebuilt) executable unit awaiting
// sandbox execution.
type Artifact struct {
	ID         string
	TemplateID string
	Params     map[string]string
	Source     string // rendered Go source, archived for audit/replay
	Cacheable  bool   // false for the unsupported stub
	Run        func(ctx context.Context, w io.Writer) error
}

// Template is one catalog entry: a predicate over task text, a parameter
// extractor, and a builder producing the native run function and rendered
// source for a parameter set.
type Template struct {
	ID      string
	Match   func(lowered string) bool
	Extract func(text string) map[string]string
	Build   func(params map[string]string, opts Options) (func(ctx context.Context, w io.Writer) error, string)
}

// Options carries the configured defaults templates need.
type Options struct {
	// BaseDir is the default path for path-taking templates.
	BaseDir string
	// DiskVolume is the fixed target volume for the disk-space template.
	DiskVolume string
}

// Synthesizer holds the ordered template catalog.
type Synthesizer struct {
	catalog []Template
	opts    Options
}

// New builds a Synthesizer with the default catalog.
func New(opts Options) *Synthesizer {
	if opts.BaseDir == "" {
		opts.BaseDir = "."
	}
	if opts.DiskVolume == "" {
		opts.DiskVolume = "/"
	}
	return &Synthesizer{catalog: defaultCatalog(), opts: opts}
}

// Synthesize walks the catalog in order and builds an artifact from the
// first template whose predicate matches. When nothing matches it returns
// the unsupported stub.
func (s *Synthesizer) Synthesize(text string) Artifact {
	lowered := strings.ToLower(text)

	for _, tpl := range s.catalog {
		if !tpl.Match(lowered) {
			continue
		}
		params := tpl.Extract(text)
		run, source := tpl.Build(params, s.opts)
		logging.Synth("template %q matched %q (params=%v)", tpl.ID, text, params)
		return Artifact{
			ID:         uuid.NewString(),
			TemplateID: tpl.ID,
			Params:     params,
			Source:     source,
			Cacheable:  true,
			Run:        run,
		}
	}

	logging.Synth("no template matched %q, producing stub", text)
	return s.stub(text)
}

// Rebuild reconstructs an artifact from a stored template id and parameter
// set. This is the cache-hit path: no predicate matching and no extraction
// runs, so reuse never re-invokes synthesis proper.
func (s *Synthesizer) Rebuild(templateID string, params map[string]string) (Artifact, bool) {
	for _, tpl := range s.catalog {
		if tpl.ID != templateID {
			continue
		}
		run, source := tpl.Build(params, s.opts)
		return Artifact{
			ID:         uuid.NewString(),
			TemplateID: templateID,
			Params:     params,
			Source:     source,
			Cacheable:  true,
			Run:        run,
		}, true
	}
	return Artifact{}, false
}

// TemplateIDs lists the catalog's template ids in match order.
func (s *Synthesizer) TemplateIDs() []string {
	out := make([]string, 0, len(s.catalog))
	for _, tpl := range s.catalog {
		out = append(out, tpl.ID)
	}
	return out
}

func (s *Synthesizer) stub(text string) Artifact {
	params := map[string]string{"task": text}
	run, source := buildStub(params)
	return Artifact{
		ID:         uuid.NewString(),
		TemplateID: TemplateUnsupported,
		Params:     params,
		Source:     source,
		Cacheable:  false,
		Run:        run,
	}
}
