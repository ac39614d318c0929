package pptx

import (
	"strconv"
	"strings"
)

// AutoSize describes a text frame's auto-fit behaviour.
type AutoSize string

const (
	// AutoSizeNone disables auto-fit (a:noAutofit).
	AutoSizeNone AutoSize = "none"

	// AutoSizeShrinkText shrinks text to fit the shape (a:normAutofit).
	AutoSizeShrinkText AutoSize = "shrink"

	// AutoSizeFitShape grows the shape to fit the text (a:spAutoFit).
	AutoSizeFitShape AutoSize = "spAutoFit"
)

// autofitElements maps AutoSize values to their bodyPr child element names.
var autofitElements = map[AutoSize]string{
	AutoSizeNone:       "a:noAutofit",
	AutoSizeShrinkText: "a:normAutofit",
	AutoSizeFitShape:   "a:spAutoFit",
}

// TextFrame is the text-holding region of a shape: an ordered sequence of
// paragraphs plus frame-level formatting carried on the a:bodyPr element.
//
// All frame-level attributes are tri-state: a nil getter result means the
// attribute is absent from the XML and the effective value is inherited.
type TextFrame struct {
	node *Node // p:txBody
}

// Text returns the frame's full text: paragraph texts joined by newlines.
func (tf *TextFrame) Text() string {
	paras := tf.Paragraphs()
	parts := make([]string, len(paras))
	for i, p := range paras {
		parts[i] = p.Text()
	}
	return strings.Join(parts, "\n")
}

// Paragraphs returns the frame's paragraphs in document order.
func (tf *TextFrame) Paragraphs() []*Paragraph {
	nodes := tf.node.ChildrenNamed("a:p")
	out := make([]*Paragraph, len(nodes))
	for i, n := range nodes {
		out[i] = &Paragraph{node: n}
	}
	return out
}

// bodyPr returns the frame's a:bodyPr element, creating it as the first child
// when absent (the schema requires it to precede the paragraphs).
func (tf *TextFrame) bodyPr() *Node {
	if bp := tf.node.Child("a:bodyPr"); bp != nil {
		return bp
	}
	bp := &Node{Name: "a:bodyPr"}
	var first *Node
	if els := tf.node.Elements(); len(els) > 0 {
		first = els[0]
	}
	tf.node.InsertBefore(bp, first)
	return bp
}

// MarginLeft returns the left internal margin in EMU, or nil when unset.
func (tf *TextFrame) MarginLeft() *int64 { return tf.emuAttr("lIns") }

// MarginRight returns the right internal margin in EMU, or nil when unset.
func (tf *TextFrame) MarginRight() *int64 { return tf.emuAttr("rIns") }

// MarginTop returns the top internal margin in EMU, or nil when unset.
func (tf *TextFrame) MarginTop() *int64 { return tf.emuAttr("tIns") }

// MarginBottom returns the bottom internal margin in EMU, or nil when unset.
func (tf *TextFrame) MarginBottom() *int64 { return tf.emuAttr("bIns") }

// SetMarginLeft sets the left internal margin in EMU.
func (tf *TextFrame) SetMarginLeft(v int64) { tf.bodyPr().SetAttr("lIns", strconv.FormatInt(v, 10)) }

// SetMarginRight sets the right internal margin in EMU.
func (tf *TextFrame) SetMarginRight(v int64) { tf.bodyPr().SetAttr("rIns", strconv.FormatInt(v, 10)) }

// SetMarginTop sets the top internal margin in EMU.
func (tf *TextFrame) SetMarginTop(v int64) { tf.bodyPr().SetAttr("tIns", strconv.FormatInt(v, 10)) }

// SetMarginBottom sets the bottom internal margin in EMU.
func (tf *TextFrame) SetMarginBottom(v int64) { tf.bodyPr().SetAttr("bIns", strconv.FormatInt(v, 10)) }

// VerticalAnchor returns the anchor attribute ("t", "ctr", "b", …), or nil.
func (tf *TextFrame) VerticalAnchor() *string {
	bp := tf.node.Child("a:bodyPr")
	if bp == nil {
		return nil
	}
	if v, ok := bp.Attr("anchor"); ok {
		return &v
	}
	return nil
}

// SetVerticalAnchor sets the anchor attribute.
func (tf *TextFrame) SetVerticalAnchor(v string) { tf.bodyPr().SetAttr("anchor", v) }

// WordWrap reports the wrap attribute as a tri-state boolean: nil when unset,
// true for "square", false for "none".
func (tf *TextFrame) WordWrap() *bool {
	bp := tf.node.Child("a:bodyPr")
	if bp == nil {
		return nil
	}
	v, ok := bp.Attr("wrap")
	if !ok {
		return nil
	}
	b := v != "none"
	return &b
}

// SetWordWrap sets the wrap attribute.
func (tf *TextFrame) SetWordWrap(wrap bool) {
	if wrap {
		tf.bodyPr().SetAttr("wrap", "square")
	} else {
		tf.bodyPr().SetAttr("wrap", "none")
	}
}

// AutoSize returns the frame's auto-fit mode, or nil when no autofit element
// is present.
func (tf *TextFrame) AutoSize() *AutoSize {
	bp := tf.node.Child("a:bodyPr")
	if bp == nil {
		return nil
	}
	for as, el := range autofitElements {
		if bp.Child(el) != nil {
			v := as
			return &v
		}
	}
	return nil
}

// SetAutoSize replaces the frame's auto-fit element with the one for v.
// An existing a:normAutofit with scale attributes is kept as-is when v is
// already the current mode, so shrink factors survive a round trip.
func (tf *TextFrame) SetAutoSize(v AutoSize) {
	bp := tf.bodyPr()
	if cur := tf.AutoSize(); cur != nil && *cur == v {
		return
	}
	for _, el := range autofitElements {
		bp.RemoveChildrenNamed(el)
	}
	if el, ok := autofitElements[v]; ok {
		bp.Append(&Node{Name: el})
	}
}

// emuAttr reads an integer bodyPr attribute as a tri-state value.
func (tf *TextFrame) emuAttr(name string) *int64 {
	bp := tf.node.Child("a:bodyPr")
	if bp == nil {
		return nil
	}
	v, ok := bp.Attr(name)
	if !ok {
		return nil
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil
	}
	return &i
}
