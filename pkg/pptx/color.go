package pptx

import (
	"strconv"
)

// ColorType identifies how a colour value is specified.
type ColorType int

const (
	// ColorTypeNone means the container holds no recognised colour element.
	ColorTypeNone ColorType = iota

	// ColorTypeRGB is an explicit sRGB value (a:srgbClr).
	ColorTypeRGB

	// ColorTypeTheme is a reference into the theme palette (a:schemeClr).
	ColorTypeTheme
)

// Color wraps a colour container element (a:solidFill or a:highlight) holding
// either an explicit sRGB value or a theme colour reference, optionally with
// a brightness adjustment expressed through luminance modulation.
type Color struct {
	node *Node
}

// colorElement returns the srgbClr or schemeClr child, or nil.
func (c *Color) colorElement() *Node {
	if n := c.node.Child("a:srgbClr"); n != nil {
		return n
	}
	return c.node.Child("a:schemeClr")
}

// Type reports how the colour is specified.
func (c *Color) Type() ColorType {
	switch {
	case c.node.Child("a:srgbClr") != nil:
		return ColorTypeRGB
	case c.node.Child("a:schemeClr") != nil:
		return ColorTypeTheme
	default:
		return ColorTypeNone
	}
}

// RGB returns the explicit colour value as an upper-case "RRGGBB" string, or
// "" when the colour is not RGB-typed.
func (c *Color) RGB() string {
	n := c.node.Child("a:srgbClr")
	if n == nil {
		return ""
	}
	v, _ := n.Attr("val")
	return v
}

// Theme returns the theme colour name ("accent1", "dk1", …), or "" when the
// colour is not theme-typed.
func (c *Color) Theme() string {
	n := c.node.Child("a:schemeClr")
	if n == nil {
		return ""
	}
	v, _ := n.Attr("val")
	return v
}

// Brightness returns the colour's brightness adjustment in [-1.0, 1.0]
// derived from its luminance modulation children. 0 means no adjustment.
func (c *Color) Brightness() float64 {
	el := c.colorElement()
	if el == nil {
		return 0
	}
	lumMod := lumValue(el, "a:lumMod")
	lumOff := lumValue(el, "a:lumOff")
	switch {
	case lumOff != nil:
		// Positive brightness: lumOff carries the lightening fraction.
		return *lumOff
	case lumMod != nil:
		// Negative brightness: lumMod < 1 darkens.
		return *lumMod - 1
	default:
		return 0
	}
}

// SetRGB replaces the colour with an explicit sRGB value ("RRGGBB").
func (c *Color) SetRGB(rgb string) {
	c.clear()
	c.node.Append(&Node{
		Name:  "a:srgbClr",
		Attrs: []Attr{{Name: "val", Value: rgb}},
	})
}

// SetTheme replaces the colour with a theme reference.
func (c *Color) SetTheme(theme string) {
	c.clear()
	c.node.Append(&Node{
		Name:  "a:schemeClr",
		Attrs: []Attr{{Name: "val", Value: theme}},
	})
}

// SetBrightness applies a brightness adjustment in [-1.0, 1.0] to the current
// colour element. Values outside the range are clamped.
func (c *Color) SetBrightness(b float64) {
	el := c.colorElement()
	if el == nil {
		return
	}
	if b > 1 {
		b = 1
	} else if b < -1 {
		b = -1
	}
	el.RemoveChildrenNamed("a:lumMod")
	el.RemoveChildrenNamed("a:lumOff")
	switch {
	case b > 0:
		appendLum(el, "a:lumMod", 1-b)
		appendLum(el, "a:lumOff", b)
	case b < 0:
		appendLum(el, "a:lumMod", 1+b)
	}
}

// clear removes any existing colour elements from the container.
func (c *Color) clear() {
	c.node.RemoveChildrenNamed("a:srgbClr")
	c.node.RemoveChildrenNamed("a:schemeClr")
}

// lumValue reads a luminance child value as a fraction, or nil when absent.
func lumValue(el *Node, name string) *float64 {
	n := el.Child(name)
	if n == nil {
		return nil
	}
	v, ok := n.Attr("val")
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

func appendLum(el *Node, name string, frac float64) {
	el.Append(&Node{
		Name:  name,
		Attrs: []Attr{{Name: "val", Value: strconv.Itoa(int(frac*100000 + 0.5))}},
	})
}
