// Package translator implements the PowerPoint structural translation
// engine: it walks a presentation's shape tree (including nested groups),
// captures every run of text together with its frame, paragraph, and
// run-level formatting, translates the text through an external [Service],
// and rebuilds the runs with the captured formatting reapplied, without
// disturbing the rest of the document.
//
// Failure handling is deliberately asymmetric. A failed translation call
// keeps the original text and the job continues (content must never be
// lost); a structural failure while processing a shape aborts the whole job
// (a half-rewritten document is worse than none). Formatting application is
// best-effort: an attribute that cannot be applied is skipped with a warning.
package translator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Paul60209/toolbench/internal/observe"
	"github.com/Paul60209/toolbench/pkg/pptx"
)

// DefaultOutputDir is where translated files are written when a Job does not
// name an output directory, relative to the process working directory.
const DefaultOutputDir = "output"

// Job describes one translation invocation. Jobs are transient: created per
// call, discarded once the output file is written or the job fails.
type Job struct {
	// SourcePath is the presentation to translate. The file is never
	// modified in place.
	SourcePath string

	// OutputDir is the directory the translated file is written to, created
	// if needed. Empty means [DefaultOutputDir].
	OutputDir string

	// SourceLang and TargetLang are free-form language names or codes; they
	// are passed through to the translation service verbatim.
	SourceLang string
	TargetLang string

	// Observer receives best-effort progress notifications. May be nil.
	Observer Observer
}

// PipelineOption configures a [Pipeline].
type PipelineOption func(*Pipeline)

// WithMetrics attaches OTel instruments that the pipeline records translation
// duration and slide counts to. When not set, nothing is recorded.
func WithMetrics(m *observe.Metrics) PipelineOption {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// Pipeline runs whole-presentation translation jobs. A Pipeline is stateless
// across jobs and safe for concurrent use; each job exclusively owns the
// presentation it opens.
type Pipeline struct {
	svc     Service
	metrics *observe.Metrics
}

// NewPipeline creates a Pipeline translating through svc.
func NewPipeline(svc Service, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{svc: svc}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run executes job and returns the path of the translated file.
func (p *Pipeline) Run(ctx context.Context, job Job) (string, error) {
	data, err := os.ReadFile(job.SourcePath)
	if err != nil {
		return "", fmt.Errorf("translator: read source %q: %w", job.SourcePath, err)
	}

	outDir := job.OutputDir
	if outDir == "" {
		outDir = DefaultOutputDir
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("translator: create output dir %q: %w", outDir, err)
	}

	translated, err := p.TranslateBytes(ctx, data, job.SourceLang, job.TargetLang, job.Observer)
	if err != nil {
		return "", err
	}

	base := filepath.Base(job.SourcePath)
	outPath := filepath.Join(outDir, "translated_"+base)
	if err := os.WriteFile(outPath, translated, 0o644); err != nil {
		return "", fmt.Errorf("translator: write output %q: %w", outPath, err)
	}

	slog.Info("presentation translated",
		"source", job.SourcePath,
		"output", outPath,
		"source_lang", job.SourceLang,
		"target_lang", job.TargetLang,
	)
	return outPath, nil
}

// TranslateBytes translates a presentation given as raw bytes and returns the
// translated document bytes. obs may be nil.
//
// Slides are processed strictly in document order. Before slide i (1-based)
// is processed the observer receives progress (i-1, total); after the last
// slide it receives (total, total). A shape-level failure aborts the job with
// the offending slide and shape identified in the error.
func (p *Pipeline) TranslateBytes(ctx context.Context, data []byte, sourceLang, targetLang string, obs Observer) ([]byte, error) {
	start := time.Now()

	prs, err := pptx.Open(data)
	if err != nil {
		return nil, err
	}

	slides := prs.Slides()
	total := len(slides)
	notify(obs, fmt.Sprintf("starting translation from %s to %s (%d slides)", sourceLang, targetLang, total))

	rt := NewRunTranslator(p.svc, sourceLang, targetLang, obs)
	st := NewShapeTranslator(rt, obs)

	for i, slide := range slides {
		reportProgress(obs, i, total)
		notify(obs, fmt.Sprintf("translating slide %d/%d", i+1, total))

		for _, shape := range slide.Shapes() {
			if err := st.Walk(ctx, i+1, shape); err != nil {
				notify(obs, "translation aborted: "+err.Error())
				p.recordJob(ctx, time.Since(start), total, "error")
				return nil, err
			}
		}
		p.recordSlide(ctx)
	}

	reportProgress(obs, total, total)
	notify(obs, "translation complete, generating file")

	out, err := prs.Bytes()
	if err != nil {
		p.recordJob(ctx, time.Since(start), total, "error")
		return nil, err
	}
	p.recordJob(ctx, time.Since(start), total, "ok")
	return out, nil
}

func (p *Pipeline) recordSlide(ctx context.Context) {
	if p.metrics == nil {
		return
	}
	p.metrics.SlidesProcessed.Add(ctx, 1)
}

func (p *Pipeline) recordJob(ctx context.Context, d time.Duration, slides int, status string) {
	if p.metrics == nil {
		return
	}
	p.metrics.TranslationDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("status", status),
		attribute.Int("slides", slides),
	))
}
