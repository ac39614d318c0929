package pptx

// Slide is one slide part. Shapes are exposed in document order; the slide
// itself has no lifecycle beyond its Presentation's.
type Slide struct {
	partName string
	root     *Node
}

// PartName returns the slide's part name within the package, e.g.
// "ppt/slides/slide1.xml".
func (s *Slide) PartName() string {
	return s.partName
}

// Shapes returns the slide's top-level shapes in document order.
func (s *Slide) Shapes() []*Shape {
	cSld := s.root.Child("p:cSld")
	if cSld == nil {
		return nil
	}
	spTree := cSld.Child("p:spTree")
	if spTree == nil {
		return nil
	}
	return childShapes(spTree)
}

// childShapes collects the shape elements directly beneath a shape-tree or
// group element, skipping the non-visual bookkeeping children.
func childShapes(tree *Node) []*Shape {
	var out []*Shape
	for _, c := range tree.Elements() {
		switch c.Name {
		case "p:sp", "p:grpSp", "p:pic", "p:graphicFrame", "p:cxnSp":
			out = append(out, &Shape{node: c})
		}
	}
	return out
}

// Shape is one visual object on a slide. A shape is exactly one of: a group
// (nested child shapes), text-bearing (owns a TextFrame), or inert.
type Shape struct {
	node *Node
}

// IsGroup reports whether the shape is a group containing child shapes.
func (sh *Shape) IsGroup() bool {
	return sh.node.Name == "p:grpSp"
}

// Children returns a group's child shapes in document order. Non-group shapes
// return nil.
func (sh *Shape) Children() []*Shape {
	if !sh.IsGroup() {
		return nil
	}
	return childShapes(sh.node)
}

// HasTextFrame reports whether the shape carries a text body.
func (sh *Shape) HasTextFrame() bool {
	return sh.node.Child("p:txBody") != nil
}

// TextFrame returns the shape's text frame, or nil when the shape has none.
func (sh *Shape) TextFrame() *TextFrame {
	tb := sh.node.Child("p:txBody")
	if tb == nil {
		return nil
	}
	return &TextFrame{node: tb}
}

// Name returns the shape's author-visible name from its non-visual
// properties, or "" when absent. Useful in error messages.
func (sh *Shape) Name() string {
	var nv *Node
	switch sh.node.Name {
	case "p:sp":
		nv = sh.node.Child("p:nvSpPr")
	case "p:grpSp":
		nv = sh.node.Child("p:nvGrpSpPr")
	case "p:pic":
		nv = sh.node.Child("p:nvPicPr")
	case "p:graphicFrame":
		nv = sh.node.Child("p:nvGraphicFramePr")
	case "p:cxnSp":
		nv = sh.node.Child("p:nvCxnSpPr")
	}
	if nv == nil {
		return ""
	}
	cNvPr := nv.Child("p:cNvPr")
	if cNvPr == nil {
		return ""
	}
	name, _ := cNvPr.Attr("name")
	return name
}
