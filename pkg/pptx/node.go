package pptx

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// Node is a single element in a parsed XML part.
//
// Parsing is prefix-preserving: names are stored exactly as written in the
// document (e.g. "a:rPr", "p:spTree"), and namespace declarations are kept as
// ordinary attributes. Serialising an unmodified tree reproduces the original
// element structure, which is what keeps untouched document content intact
// across a load/save cycle.
//
// Text content is represented as child nodes with an empty Name, so mixed
// content keeps its original interleaving.
type Node struct {
	// Name is the prefixed element name as written ("a:t", "p:sp"). Empty for
	// text nodes.
	Name string

	// Attrs holds the element's attributes in document order, including any
	// xmlns declarations.
	Attrs []Attr

	// Children holds child elements and text nodes in document order.
	Children []*Node

	// Text is the character data of a text node. Unused for elements.
	Text string
}

// Attr is a single XML attribute with its name as written in the document.
type Attr struct {
	Name  string
	Value string
}

// parseXML reads an XML part into a Node tree. The returned node is the
// document's single root element; leading processing instructions and
// whitespace are discarded (the standard OOXML declaration is re-emitted on
// serialisation).
func parseXML(data []byte) (*Node, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))

	var root *Node
	var stack []*Node

	for {
		tok, err := dec.RawToken()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("pptx: parse xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			n := &Node{Name: rawName(t.Name)}
			for _, a := range t.Attr {
				n.Attrs = append(n.Attrs, Attr{Name: rawName(a.Name), Value: a.Value})
			}
			if len(stack) == 0 {
				if root != nil {
					return nil, fmt.Errorf("pptx: parse xml: multiple root elements")
				}
				root = n
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, n)
			}
			stack = append(stack, n)

		case xml.EndElement:
			if len(stack) == 0 {
				return nil, fmt.Errorf("pptx: parse xml: unexpected end element </%s>", rawName(t.Name))
			}
			open := stack[len(stack)-1]
			if open.Name != rawName(t.Name) {
				return nil, fmt.Errorf("pptx: parse xml: element <%s> closed by </%s>", open.Name, rawName(t.Name))
			}
			stack = stack[:len(stack)-1]

		case xml.CharData:
			if len(stack) == 0 {
				continue // inter-element whitespace outside the root
			}
			parent := stack[len(stack)-1]
			parent.Children = append(parent.Children, &Node{Text: string(t)})

		case xml.ProcInst, xml.Comment, xml.Directive:
			// Dropped; the writer emits the canonical OOXML declaration.
		}
	}

	if len(stack) != 0 {
		return nil, fmt.Errorf("pptx: parse xml: unclosed element <%s>", stack[len(stack)-1].Name)
	}
	if root == nil {
		return nil, fmt.Errorf("pptx: parse xml: no root element")
	}
	return root, nil
}

// rawName rejoins a prefix-split xml.Name into its written form.
func rawName(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}

// xmlHeader is the declaration OOXML tooling writes at the top of every part.
const xmlHeader = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\r\n"

// serialize renders the tree back to bytes, prefixed with the standard OOXML
// declaration.
func (n *Node) serialize() []byte {
	var buf bytes.Buffer
	buf.WriteString(xmlHeader)
	n.write(&buf)
	return buf.Bytes()
}

func (n *Node) write(buf *bytes.Buffer) {
	if n.Name == "" {
		_ = xml.EscapeText(buf, []byte(n.Text))
		return
	}

	buf.WriteByte('<')
	buf.WriteString(n.Name)
	for _, a := range n.Attrs {
		buf.WriteByte(' ')
		buf.WriteString(a.Name)
		buf.WriteString(`="`)
		_ = xml.EscapeText(buf, []byte(a.Value))
		buf.WriteByte('"')
	}
	if len(n.Children) == 0 {
		buf.WriteString("/>")
		return
	}
	buf.WriteByte('>')
	for _, c := range n.Children {
		c.write(buf)
	}
	buf.WriteString("</")
	buf.WriteString(n.Name)
	buf.WriteByte('>')
}

// Child returns the first child element with the given prefixed name, or nil.
func (n *Node) Child(name string) *Node {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ChildrenNamed returns all child elements with the given prefixed name, in
// document order.
func (n *Node) ChildrenNamed(name string) []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// Elements returns all child elements (skipping text nodes) in document order.
func (n *Node) Elements() []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Name != "" {
			out = append(out, c)
		}
	}
	return out
}

// Attr returns the value of the named attribute and whether it is present.
func (n *Node) Attr(name string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// SetAttr sets the named attribute, replacing an existing value or appending a
// new attribute at the end.
func (n *Node) SetAttr(name, value string) {
	for i, a := range n.Attrs {
		if a.Name == name {
			n.Attrs[i].Value = value
			return
		}
	}
	n.Attrs = append(n.Attrs, Attr{Name: name, Value: value})
}

// RemoveAttr deletes the named attribute if present.
func (n *Node) RemoveAttr(name string) {
	for i, a := range n.Attrs {
		if a.Name == name {
			n.Attrs = append(n.Attrs[:i], n.Attrs[i+1:]...)
			return
		}
	}
}

// RemoveChild deletes the first occurrence of child from n's child list.
func (n *Node) RemoveChild(child *Node) {
	for i, c := range n.Children {
		if c == child {
			n.Children = append(n.Children[:i], n.Children[i+1:]...)
			return
		}
	}
}

// RemoveChildrenNamed deletes every child element with the given name.
func (n *Node) RemoveChildrenNamed(name string) {
	kept := n.Children[:0]
	for _, c := range n.Children {
		if c.Name != name {
			kept = append(kept, c)
		}
	}
	n.Children = kept
}

// InsertBefore inserts child immediately before marker. When marker is nil or
// not found, child is appended at the end.
func (n *Node) InsertBefore(child, marker *Node) {
	if marker != nil {
		for i, c := range n.Children {
			if c == marker {
				n.Children = append(n.Children, nil)
				copy(n.Children[i+1:], n.Children[i:])
				n.Children[i] = child
				return
			}
		}
	}
	n.Children = append(n.Children, child)
}

// Append adds child at the end of n's child list.
func (n *Node) Append(child *Node) {
	n.Children = append(n.Children, child)
}

// Clone returns a deep copy of the node.
func (n *Node) Clone() *Node {
	cp := &Node{Name: n.Name, Text: n.Text}
	if len(n.Attrs) > 0 {
		cp.Attrs = make([]Attr, len(n.Attrs))
		copy(cp.Attrs, n.Attrs)
	}
	for _, c := range n.Children {
		cp.Children = append(cp.Children, c.Clone())
	}
	return cp
}

// InnerText concatenates the text nodes directly beneath n.
func (n *Node) InnerText() string {
	var sb strings.Builder
	for _, c := range n.Children {
		if c.Name == "" {
			sb.WriteString(c.Text)
		}
	}
	return sb.String()
}

// SetInnerText replaces n's children with a single text node.
func (n *Node) SetInnerText(text string) {
	n.Children = []*Node{{Text: text}}
}
