package pptx

import (
	"strconv"
	"strings"
)

// Paragraph is one a:p element: paragraph-level formatting plus an ordered
// sequence of runs. Paragraph identity is its position within the TextFrame;
// mutation replaces its run sequence, never the paragraph itself.
type Paragraph struct {
	node *Node // a:p
}

// Text returns the concatenated text of the paragraph's runs.
func (p *Paragraph) Text() string {
	var sb strings.Builder
	for _, r := range p.Runs() {
		sb.WriteString(r.Text())
	}
	return sb.String()
}

// Runs returns the paragraph's text runs in document order. Line breaks
// (a:br) and fields (a:fld) are not runs and are left untouched by run
// mutation.
func (p *Paragraph) Runs() []*Run {
	nodes := p.node.ChildrenNamed("a:r")
	out := make([]*Run, len(nodes))
	for i, n := range nodes {
		out[i] = &Run{node: n}
	}
	return out
}

// RemoveRuns deletes every a:r element from the paragraph. Paragraph
// properties and the end-of-paragraph run properties are preserved.
func (p *Paragraph) RemoveRuns() {
	p.node.RemoveChildrenNamed("a:r")
}

// AddRun appends a new empty run. When the paragraph carries an
// a:endParaRPr element the run is inserted before it, as the schema requires.
func (p *Paragraph) AddRun() *Run {
	r := &Node{Name: "a:r"}
	p.node.InsertBefore(r, p.node.Child("a:endParaRPr"))
	return &Run{node: r}
}

// pPr returns the paragraph properties element, creating it as the first
// child when absent.
func (p *Paragraph) pPr() *Node {
	if pr := p.node.Child("a:pPr"); pr != nil {
		return pr
	}
	pr := &Node{Name: "a:pPr"}
	var first *Node
	if els := p.node.Elements(); len(els) > 0 {
		first = els[0]
	}
	p.node.InsertBefore(pr, first)
	return pr
}

// Alignment returns the algn attribute ("l", "ctr", "r", "just", …), or nil.
func (p *Paragraph) Alignment() *string {
	pr := p.node.Child("a:pPr")
	if pr == nil {
		return nil
	}
	if v, ok := pr.Attr("algn"); ok {
		return &v
	}
	return nil
}

// SetAlignment sets the algn attribute.
func (p *Paragraph) SetAlignment(v string) { p.pPr().SetAttr("algn", v) }

// Level returns the indent level (0-8), or nil when unset.
func (p *Paragraph) Level() *int {
	pr := p.node.Child("a:pPr")
	if pr == nil {
		return nil
	}
	v, ok := pr.Attr("lvl")
	if !ok {
		return nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return nil
	}
	return &i
}

// SetLevel sets the indent level.
func (p *Paragraph) SetLevel(v int) { p.pPr().SetAttr("lvl", strconv.Itoa(v)) }

// LineSpacing returns the paragraph's a:lnSpc value, or nil when unset.
func (p *Paragraph) LineSpacing() *Spacing { return p.spacing("a:lnSpc") }

// SpaceBefore returns the paragraph's a:spcBef value, or nil when unset.
func (p *Paragraph) SpaceBefore() *Spacing { return p.spacing("a:spcBef") }

// SpaceAfter returns the paragraph's a:spcAft value, or nil when unset.
func (p *Paragraph) SpaceAfter() *Spacing { return p.spacing("a:spcAft") }

// SetLineSpacing replaces the paragraph's a:lnSpc element with s.
func (p *Paragraph) SetLineSpacing(s *Spacing) { p.setSpacing("a:lnSpc", s) }

// SetSpaceBefore replaces the paragraph's a:spcBef element with s.
func (p *Paragraph) SetSpaceBefore(s *Spacing) { p.setSpacing("a:spcBef", s) }

// SetSpaceAfter replaces the paragraph's a:spcAft element with s.
func (p *Paragraph) SetSpaceAfter(s *Spacing) { p.setSpacing("a:spcAft", s) }

func (p *Paragraph) spacing(name string) *Spacing {
	pr := p.node.Child("a:pPr")
	if pr == nil {
		return nil
	}
	n := pr.Child(name)
	if n == nil {
		return nil
	}
	// The caller gets a deep copy so a captured value is immune to later
	// mutation of the paragraph.
	return &Spacing{node: n.Clone()}
}

func (p *Paragraph) setSpacing(name string, s *Spacing) {
	if s == nil {
		return
	}
	pr := p.pPr()
	pr.RemoveChildrenNamed(name)
	n := s.node.Clone()
	n.Name = name

	// The schema orders pPr children lnSpc, spcBef, spcAft before bullets and
	// defaults. Insert after any spacing elements that sort earlier.
	order := map[string]int{"a:lnSpc": 0, "a:spcBef": 1, "a:spcAft": 2}
	rank := order[name]
	var marker *Node
	for _, c := range pr.Elements() {
		if r, ok := order[c.Name]; ok && r < rank {
			continue
		}
		marker = c
		break
	}
	pr.InsertBefore(n, marker)
}

// Spacing is a captured paragraph spacing value (line spacing, space before,
// or space after). It wraps the underlying element verbatim so reapplying a
// captured value is exact, whether it was expressed in points or percent.
type Spacing struct {
	node *Node
}

// Points returns the spacing in points when expressed as a:spcPts, else nil.
func (s *Spacing) Points() *float64 {
	pts := s.node.Child("a:spcPts")
	if pts == nil {
		return nil
	}
	v, ok := pts.Attr("val")
	if !ok {
		return nil
	}
	i, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil
	}
	f := i / 100 // stored in hundredths of a point
	return &f
}

// Percent returns the spacing as a fraction (1.0 = single) when expressed as
// a:spcPct, else nil.
func (s *Spacing) Percent() *float64 {
	pct := s.node.Child("a:spcPct")
	if pct == nil {
		return nil
	}
	v, ok := pct.Attr("val")
	if !ok {
		return nil
	}
	i, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil
	}
	f := i / 100000 // stored in thousandths of a percent
	return &f
}

// SpacingPoints builds a point-valued Spacing, for constructing formatting in
// tests and callers that do not capture from an existing paragraph.
func SpacingPoints(points float64) *Spacing {
	return &Spacing{node: &Node{
		Name: "a:lnSpc",
		Children: []*Node{{
			Name:  "a:spcPts",
			Attrs: []Attr{{Name: "val", Value: strconv.Itoa(int(points * 100))}},
		}},
	}}
}
