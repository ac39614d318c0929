package translator

import (
	"context"
	"fmt"
	"strings"

	"github.com/Paul60209/toolbench/pkg/pptx"
)

// maxGroupDepth bounds recursion through nested group shapes. The container
// format enforces a tree, so cycles are impossible, but the traversal is
// driven by untrusted input files and a runaway nesting depth should fail
// loudly instead of exhausting the stack.
const maxGroupDepth = 32

// ShapeTranslator rewrites the text of one text-bearing shape while keeping
// its formatting intact, and walks group shapes recursively to find the
// text-bearing leaves at any depth.
type ShapeTranslator struct {
	runs *RunTranslator
	obs  Observer
}

// NewShapeTranslator creates a ShapeTranslator delegating run text to rt.
// obs may be nil.
func NewShapeTranslator(rt *RunTranslator, obs Observer) *ShapeTranslator {
	return &ShapeTranslator{runs: rt, obs: obs}
}

// Walk processes shape and, for groups, every descendant shape in document
// order. Each text-bearing leaf is visited exactly once. Any error aborts the
// walk immediately.
func (st *ShapeTranslator) Walk(ctx context.Context, slideIndex int, shape *pptx.Shape) error {
	return st.walk(ctx, slideIndex, shape, 0)
}

func (st *ShapeTranslator) walk(ctx context.Context, slideIndex int, shape *pptx.Shape, depth int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if depth > maxGroupDepth {
		return &ShapeError{
			Slide: slideIndex,
			Shape: shape.Name(),
			Op:    "walk group",
			Err:   fmt.Errorf("group nesting exceeds %d levels", maxGroupDepth),
		}
	}

	// Groups are containers, not content: recurse into the children and do
	// not process the group shape itself.
	if shape.IsGroup() {
		for _, child := range shape.Children() {
			if err := st.walk(ctx, slideIndex, child, depth+1); err != nil {
				return err
			}
		}
		return nil
	}

	return st.translateShape(ctx, slideIndex, shape)
}

// translateShape rewrites one non-group shape. Shapes without a text frame,
// or whose text is blank, are skipped without mutation.
//
// The rewrite preserves structure by construction: frame and paragraph
// properties are captured before any mutation; each paragraph's run sequence
// is captured (text plus properties, in order), destroyed wholesale, and
// rebuilt in the original order; captured properties are reapplied from the
// inside out (runs, then paragraph, then frame).
func (st *ShapeTranslator) translateShape(ctx context.Context, slideIndex int, shape *pptx.Shape) error {
	tf := shape.TextFrame()
	if tf == nil || strings.TrimSpace(tf.Text()) == "" {
		return nil
	}

	frameProps := CaptureTextFrameProps(tf)

	for _, para := range tf.Paragraphs() {
		paraProps := CaptureParagraphProps(para)

		// Capture phase: read every run before touching any of them.
		type rebuiltRun struct {
			text  string
			props RunProps
		}
		var rebuilt []rebuiltRun
		for _, run := range para.Runs() {
			props := CaptureRunProps(run)
			text := run.Text()
			if strings.TrimSpace(text) != "" {
				text = st.runs.TranslateText(ctx, text)
			}
			rebuilt = append(rebuilt, rebuiltRun{text: text, props: props})
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		// Rebuild phase: destroy the run sequence and recreate it in order.
		para.RemoveRuns()
		for _, rr := range rebuilt {
			run := para.AddRun()
			run.SetText(rr.text)
			for _, warning := range ApplyRunProps(run, rr.props) {
				notify(st.obs, "formatting attribute skipped: "+warning)
			}
		}

		ApplyParagraphProps(para, paraProps)
	}

	ApplyTextFrameProps(tf, frameProps)
	return nil
}
