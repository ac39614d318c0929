package translator

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/Paul60209/toolbench/pkg/pptx"
)

// --- test services ---

// stubService applies fn to every translation request and counts the calls.
type stubService struct {
	mu    sync.Mutex
	calls []string
	fn    func(text string) (string, error)
}

func (s *stubService) Translate(_ context.Context, text, _ string) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, text)
	s.mu.Unlock()
	return s.fn(text)
}

func (s *stubService) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func upperService() *stubService {
	return &stubService{fn: func(text string) (string, error) {
		return strings.ToUpper(text), nil
	}}
}

func failingService() *stubService {
	return &stubService{fn: func(string) (string, error) {
		return "", errors.New("backend unavailable")
	}}
}

// recordingObserver captures notifications and progress reports.
type recordingObserver struct {
	mu       sync.Mutex
	messages []string
	progress [][2]int
}

func (o *recordingObserver) Notify(message string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.messages = append(o.messages, message)
}

func (o *recordingObserver) ReportProgress(done, total int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.progress = append(o.progress, [2]int{done, total})
}

// panickyObserver panics on every call, to prove observers are fire-and-forget.
type panickyObserver struct{}

func (panickyObserver) Notify(string)           { panic("observer gone wrong") }
func (panickyObserver) ReportProgress(int, int) { panic("observer gone wrong") }

// --- in-memory presentation fixtures ---

// buildDeck assembles a minimal .pptx with one slide per spTree body.
func buildDeck(t *testing.T, spTrees ...string) []byte {
	t.Helper()

	names := []string{"ppt/presentation.xml", "ppt/_rels/presentation.xml.rels"}
	parts := map[string]string{}

	var sldIDs, rels strings.Builder
	for i := range spTrees {
		name := fmt.Sprintf("ppt/slides/slide%d.xml", i+1)
		names = append(names, name)
		parts[name] = `<p:sld xmlns:p="urn:p" xmlns:a="urn:a"><p:cSld><p:spTree>` + spTrees[i] + `</p:spTree></p:cSld></p:sld>`
		fmt.Fprintf(&sldIDs, `<p:sldId id="%d" r:id="rId%d"/>`, 256+i, i+1)
		fmt.Fprintf(&rels, `<Relationship Id="rId%d" Type="slide" Target="slides/slide%d.xml"/>`, i+1, i+1)
	}
	parts["ppt/presentation.xml"] = `<p:presentation xmlns:p="urn:p" xmlns:r="urn:r"><p:sldIdLst>` + sldIDs.String() + `</p:sldIdLst></p:presentation>`
	parts["ppt/_rels/presentation.xml.rels"] = `<Relationships>` + rels.String() + `</Relationships>`

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create part %q: %v", name, err)
		}
		if _, err := w.Write([]byte(parts[name])); err != nil {
			t.Fatalf("write part %q: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close archive: %v", err)
	}
	return buf.Bytes()
}

func textShape(name string, paragraphs ...string) string {
	var sb strings.Builder
	sb.WriteString(`<p:sp><p:nvSpPr><p:cNvPr id="1" name="` + name + `"/></p:nvSpPr><p:txBody><a:bodyPr/>`)
	for _, p := range paragraphs {
		sb.WriteString(p)
	}
	sb.WriteString(`</p:txBody></p:sp>`)
	return sb.String()
}

func plainParagraph(text string) string {
	return `<a:p><a:r><a:t>` + text + `</a:t></a:r></a:p>`
}

func groupShape(children ...string) string {
	return `<p:grpSp><p:nvGrpSpPr><p:cNvPr id="9" name="Group"/></p:nvGrpSpPr>` + strings.Join(children, "") + `</p:grpSp>`
}

// openDeck parses deck bytes, failing the test on error.
func openDeck(t *testing.T, data []byte) *pptx.Presentation {
	t.Helper()
	prs, err := pptx.Open(data)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return prs
}

// collectTexts walks every shape (recursing into groups) and returns the
// text frame contents in document order.
func collectTexts(prs *pptx.Presentation) []string {
	var out []string
	var visit func(sh *pptx.Shape)
	visit = func(sh *pptx.Shape) {
		if sh.IsGroup() {
			for _, c := range sh.Children() {
				visit(c)
			}
			return
		}
		if tf := sh.TextFrame(); tf != nil {
			out = append(out, tf.Text())
		}
	}
	for _, slide := range prs.Slides() {
		for _, sh := range slide.Shapes() {
			visit(sh)
		}
	}
	return out
}
