package translator

import (
	"fmt"

	"github.com/Paul60209/toolbench/pkg/pptx"
)

// TextFrameProps is a snapshot of frame-level formatting. Nil fields were
// absent from the source and must not be forced onto the rebuilt frame:
// writing a value where none existed would turn an inherited style into an
// explicit override.
type TextFrameProps struct {
	MarginLeft     *int64
	MarginRight    *int64
	MarginTop      *int64
	MarginBottom   *int64
	VerticalAnchor *string
	WordWrap       *bool
	AutoSize       *pptx.AutoSize
}

// CaptureTextFrameProps reads every frame-level attribute from tf.
func CaptureTextFrameProps(tf *pptx.TextFrame) TextFrameProps {
	return TextFrameProps{
		MarginLeft:     tf.MarginLeft(),
		MarginRight:    tf.MarginRight(),
		MarginTop:      tf.MarginTop(),
		MarginBottom:   tf.MarginBottom(),
		VerticalAnchor: tf.VerticalAnchor(),
		WordWrap:       tf.WordWrap(),
		AutoSize:       tf.AutoSize(),
	}
}

// ApplyTextFrameProps writes the captured attributes back onto tf, skipping
// any field that was unset at capture time.
func ApplyTextFrameProps(tf *pptx.TextFrame, props TextFrameProps) {
	if props.MarginLeft != nil {
		tf.SetMarginLeft(*props.MarginLeft)
	}
	if props.MarginRight != nil {
		tf.SetMarginRight(*props.MarginRight)
	}
	if props.MarginTop != nil {
		tf.SetMarginTop(*props.MarginTop)
	}
	if props.MarginBottom != nil {
		tf.SetMarginBottom(*props.MarginBottom)
	}
	if props.VerticalAnchor != nil {
		tf.SetVerticalAnchor(*props.VerticalAnchor)
	}
	if props.WordWrap != nil {
		tf.SetWordWrap(*props.WordWrap)
	}
	if props.AutoSize != nil {
		tf.SetAutoSize(*props.AutoSize)
	}
}

// ParagraphProps is a snapshot of paragraph-level formatting.
type ParagraphProps struct {
	Alignment   *string
	Level       *int
	LineSpacing *pptx.Spacing
	SpaceBefore *pptx.Spacing
	SpaceAfter  *pptx.Spacing
}

// CaptureParagraphProps reads every paragraph-level attribute from p.
func CaptureParagraphProps(p *pptx.Paragraph) ParagraphProps {
	return ParagraphProps{
		Alignment:   p.Alignment(),
		Level:       p.Level(),
		LineSpacing: p.LineSpacing(),
		SpaceBefore: p.SpaceBefore(),
		SpaceAfter:  p.SpaceAfter(),
	}
}

// ApplyParagraphProps writes the captured attributes back onto p, skipping
// unset fields.
func ApplyParagraphProps(p *pptx.Paragraph, props ParagraphProps) {
	if props.Alignment != nil {
		p.SetAlignment(*props.Alignment)
	}
	if props.Level != nil {
		p.SetLevel(*props.Level)
	}
	if props.LineSpacing != nil {
		p.SetLineSpacing(props.LineSpacing)
	}
	if props.SpaceBefore != nil {
		p.SetSpaceBefore(props.SpaceBefore)
	}
	if props.SpaceAfter != nil {
		p.SetSpaceAfter(props.SpaceAfter)
	}
}

// ColorProps is a snapshot of one colour value. A nil *ColorProps means the
// colour container itself was absent.
type ColorProps struct {
	Type       pptx.ColorType
	RGB        string  // "RRGGBB" when Type is ColorTypeRGB
	Theme      string  // theme colour name when Type is ColorTypeTheme
	Brightness float64 // luminance adjustment in [-1, 1]
}

// CaptureColorProps reads a colour container, returning nil when c is nil.
func CaptureColorProps(c *pptx.Color) *ColorProps {
	if c == nil {
		return nil
	}
	return &ColorProps{
		Type:       c.Type(),
		RGB:        c.RGB(),
		Theme:      c.Theme(),
		Brightness: c.Brightness(),
	}
}

// ApplyColorProps writes a captured colour back onto c. Precedence follows
// the capture: an explicit RGB value wins over a theme reference; a theme
// reference is applied with its brightness when one was captured.
//
// Colour application is best-effort: a malformed captured value is reported
// as a warning string and the attribute is left as-is, never failing the run.
func ApplyColorProps(c *pptx.Color, props *ColorProps) (warnings []string) {
	if c == nil || props == nil {
		return nil
	}
	switch {
	case props.RGB != "":
		if len(props.RGB) != 6 {
			return []string{fmt.Sprintf("invalid rgb value %q ignored", props.RGB)}
		}
		c.SetRGB(props.RGB)
		if props.Brightness != 0 {
			c.SetBrightness(props.Brightness)
		}
	case props.Theme != "":
		c.SetTheme(props.Theme)
		if props.Brightness != 0 {
			c.SetBrightness(props.Brightness)
		}
	}
	return nil
}

// RunProps is a snapshot of run-level formatting. All fields are tri-state.
type RunProps struct {
	Size      *float64
	Name      *string
	Bold      *bool
	Italic    *bool
	Underline *string
	Color     *ColorProps
	Highlight *ColorProps
}

// CaptureRunProps reads every run-level attribute from r.
func CaptureRunProps(r *pptx.Run) RunProps {
	return RunProps{
		Size:      r.Size(),
		Name:      r.FontName(),
		Bold:      r.Bold(),
		Italic:    r.Italic(),
		Underline: r.Underline(),
		Color:     CaptureColorProps(r.Color()),
		Highlight: CaptureColorProps(r.Highlight()),
	}
}

// ApplyRunProps writes the captured attributes back onto r, skipping unset
// fields. Colour failures are returned as warnings and never abort the run.
func ApplyRunProps(r *pptx.Run, props RunProps) (warnings []string) {
	if props.Size != nil {
		r.SetSize(*props.Size)
	}
	if props.Name != nil {
		r.SetFontName(*props.Name)
	}
	if props.Bold != nil {
		r.SetBold(*props.Bold)
	}
	if props.Italic != nil {
		r.SetItalic(*props.Italic)
	}
	if props.Underline != nil {
		r.SetUnderline(*props.Underline)
	}
	if props.Color != nil {
		warnings = append(warnings, ApplyColorProps(r.EnsureColor(), props.Color)...)
	}
	if props.Highlight != nil {
		warnings = append(warnings, ApplyColorProps(r.EnsureHighlight(), props.Highlight)...)
	}
	return warnings
}
