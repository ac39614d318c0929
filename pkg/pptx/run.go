package pptx

import (
	"strconv"
)

// Run is one a:r element: the smallest text-bearing unit, a contiguous span
// of text sharing one set of character-level formatting.
//
// Formatting getters are tri-state: nil means the attribute is absent and the
// effective value is inherited from the paragraph, placeholder, or theme.
type Run struct {
	node *Node // a:r
}

// Text returns the run's text content.
func (r *Run) Text() string {
	t := r.node.Child("a:t")
	if t == nil {
		return ""
	}
	return t.InnerText()
}

// SetText replaces the run's text content, creating the a:t element when the
// run is freshly built.
func (r *Run) SetText(text string) {
	t := r.node.Child("a:t")
	if t == nil {
		t = &Node{Name: "a:t"}
		r.node.Append(t)
	}
	t.SetInnerText(text)
}

// rPr returns the run properties element, creating it before the text element
// when absent.
func (r *Run) rPr() *Node {
	if pr := r.node.Child("a:rPr"); pr != nil {
		return pr
	}
	pr := &Node{Name: "a:rPr"}
	r.node.InsertBefore(pr, r.node.Child("a:t"))
	return pr
}

// Size returns the font size in points, or nil when unset.
func (r *Run) Size() *float64 {
	pr := r.node.Child("a:rPr")
	if pr == nil {
		return nil
	}
	v, ok := pr.Attr("sz")
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

// SetSize sets the font size in points.
func (r *Run) SetSize(points float64) {
	r.rPr().SetAttr("sz", strconv.Itoa(int(points*100)))
}

// Bold returns the bold flag as a tri-state boolean.
func (r *Run) Bold() *bool { return r.boolAttr("b") }

// SetBold sets the bold flag explicitly.
func (r *Run) SetBold(v bool) { r.setBoolAttr("b", v) }

// Italic returns the italic flag as a tri-state boolean.
func (r *Run) Italic() *bool { return r.boolAttr("i") }

// SetItalic sets the italic flag explicitly.
func (r *Run) SetItalic(v bool) { r.setBoolAttr("i", v) }

// Underline returns the raw underline attribute value ("sng", "dbl", "none",
// …), or nil when unset. The raw value is kept so an exotic underline style
// survives a capture/apply cycle unchanged.
func (r *Run) Underline() *string {
	pr := r.node.Child("a:rPr")
	if pr == nil {
		return nil
	}
	if v, ok := pr.Attr("u"); ok {
		return &v
	}
	return nil
}

// SetUnderline sets the underline attribute to the given raw value.
func (r *Run) SetUnderline(v string) { r.rPr().SetAttr("u", v) }

// FontName returns the latin typeface name, or nil when unset.
func (r *Run) FontName() *string {
	pr := r.node.Child("a:rPr")
	if pr == nil {
		return nil
	}
	latin := pr.Child("a:latin")
	if latin == nil {
		return nil
	}
	if v, ok := latin.Attr("typeface"); ok {
		return &v
	}
	return nil
}

// SetFontName sets the latin typeface name.
func (r *Run) SetFontName(name string) {
	pr := r.rPr()
	latin := pr.Child("a:latin")
	if latin == nil {
		latin = &Node{Name: "a:latin"}
		pr.Append(latin)
	}
	latin.SetAttr("typeface", name)
}

// Color returns the run's font colour (the a:solidFill under its run
// properties), or nil when no explicit colour is set.
func (r *Run) Color() *Color {
	pr := r.node.Child("a:rPr")
	if pr == nil {
		return nil
	}
	sf := pr.Child("a:solidFill")
	if sf == nil {
		return nil
	}
	return &Color{node: sf}
}

// Highlight returns the run's text highlight colour, or nil when unset.
func (r *Run) Highlight() *Color {
	pr := r.node.Child("a:rPr")
	if pr == nil {
		return nil
	}
	hl := pr.Child("a:highlight")
	if hl == nil {
		return nil
	}
	return &Color{node: hl}
}

// colorContainer returns the named colour container under rPr, creating and
// positioning it when absent. a:solidFill precedes a:highlight which precedes
// the a:latin typeface element.
func (r *Run) colorContainer(name string) *Color {
	pr := r.rPr()
	c := pr.Child(name)
	if c == nil {
		c = &Node{Name: name}
		var marker *Node
		if name == "a:solidFill" {
			marker = pr.Child("a:highlight")
		}
		if marker == nil {
			marker = pr.Child("a:latin")
		}
		pr.InsertBefore(c, marker)
	}
	return &Color{node: c}
}

// EnsureColor returns the run's font colour container, creating it if needed.
func (r *Run) EnsureColor() *Color { return r.colorContainer("a:solidFill") }

// EnsureHighlight returns the run's highlight container, creating it if needed.
func (r *Run) EnsureHighlight() *Color { return r.colorContainer("a:highlight") }

func (r *Run) boolAttr(name string) *bool {
	pr := r.node.Child("a:rPr")
	if pr == nil {
		return nil
	}
	v, ok := pr.Attr(name)
	if !ok {
		return nil
	}
	b := v == "1" || v == "true"
	return &b
}

func (r *Run) setBoolAttr(name string, v bool) {
	if v {
		r.rPr().SetAttr(name, "1")
	} else {
		r.rPr().SetAttr(name, "0")
	}
}
