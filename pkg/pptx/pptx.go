// Package pptx reads and writes PowerPoint (.pptx) presentations at the
// level of detail a structural translator needs: slides in document order,
// shapes (including nested groups), text frames, paragraphs, runs, and the
// formatting attributes attached to each tier.
//
// The package deliberately does not model the full OOXML feature set. Parts
// that are never touched (themes, layouts, media, charts) are carried through
// a load/save cycle byte-for-byte; slide parts are parsed into a
// prefix-preserving node tree so that only the elements a caller actually
// mutates change on save.
//
// Typical usage:
//
//	prs, err := pptx.Open(data)
//	for _, slide := range prs.Slides() {
//	    for _, shape := range slide.Shapes() {
//	        ...
//	    }
//	}
//	out, err := prs.Bytes()
package pptx

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
)

// ErrInvalidFormat indicates the input bytes are not a well-formed .pptx
// container (not a zip archive, or missing the presentation part).
var ErrInvalidFormat = errors.New("pptx: not a valid presentation file")

// presentationPart is the fixed location of the presentation root part.
const presentationPart = "ppt/presentation.xml"

// Presentation is an opened .pptx document. It is owned by a single caller
// for the duration of one job and is not safe for concurrent mutation.
type Presentation struct {
	partNames []string          // original part order
	parts     map[string][]byte // part name → raw bytes
	slides    []*Slide          // document order
}

// Open parses data as a .pptx container. It returns [ErrInvalidFormat]
// (possibly wrapped) when data is not a zip archive or lacks the required
// presentation parts.
func Open(data []byte) (*Presentation, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}

	p := &Presentation{parts: make(map[string][]byte, len(zr.File))}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: open part %q: %v", ErrInvalidFormat, f.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: read part %q: %v", ErrInvalidFormat, f.Name, err)
		}
		p.partNames = append(p.partNames, f.Name)
		p.parts[f.Name] = content
	}

	if _, ok := p.parts[presentationPart]; !ok {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidFormat, presentationPart)
	}
	if err := p.loadSlides(); err != nil {
		return nil, err
	}
	return p, nil
}

// OpenFile is a convenience wrapper around [Open] for presentations on disk.
func OpenFile(path string) (*Presentation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pptx: read %q: %w", path, err)
	}
	return Open(data)
}

// loadSlides resolves the slide parts referenced by the presentation's
// sldIdLst, in declaration order, and parses each into a node tree.
func (p *Presentation) loadSlides() error {
	root, err := parseXML(p.parts[presentationPart])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}

	rels, err := p.relationships(presentationPart)
	if err != nil {
		return err
	}

	sldIDLst := root.Child("p:sldIdLst")
	if sldIDLst == nil {
		return nil // a presentation with zero slides is legal
	}

	for _, sldID := range sldIDLst.ChildrenNamed("p:sldId") {
		rID, ok := sldID.Attr("r:id")
		if !ok {
			return fmt.Errorf("%w: p:sldId without r:id", ErrInvalidFormat)
		}
		target, ok := rels[rID]
		if !ok {
			return fmt.Errorf("%w: unresolved slide relationship %q", ErrInvalidFormat, rID)
		}
		partName := resolvePartName(presentationPart, target)
		data, ok := p.parts[partName]
		if !ok {
			return fmt.Errorf("%w: missing slide part %q", ErrInvalidFormat, partName)
		}
		slideRoot, err := parseXML(data)
		if err != nil {
			return fmt.Errorf("%w: slide part %q: %v", ErrInvalidFormat, partName, err)
		}
		p.slides = append(p.slides, &Slide{partName: partName, root: slideRoot})
	}
	return nil
}

// relationships parses the .rels part for partName into an Id → Target map.
func (p *Presentation) relationships(partName string) (map[string]string, error) {
	relsName := path.Join(path.Dir(partName), "_rels", path.Base(partName)+".rels")
	data, ok := p.parts[relsName]
	if !ok {
		return nil, fmt.Errorf("%w: missing relationships part %q", ErrInvalidFormat, relsName)
	}
	root, err := parseXML(data)
	if err != nil {
		return nil, fmt.Errorf("%w: relationships part %q: %v", ErrInvalidFormat, relsName, err)
	}
	rels := make(map[string]string)
	for _, rel := range root.Elements() {
		id, _ := rel.Attr("Id")
		target, _ := rel.Attr("Target")
		if id != "" && target != "" {
			rels[id] = target
		}
	}
	return rels, nil
}

// resolvePartName resolves a relationship target relative to the source part.
func resolvePartName(source, target string) string {
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(target, "/")
	}
	return path.Clean(path.Join(path.Dir(source), target))
}

// Slides returns the presentation's slides in document order. The returned
// slice is owned by the Presentation; callers must not modify it.
func (p *Presentation) Slides() []*Slide {
	return p.slides
}

// Bytes serialises the presentation, re-rendering slide parts from their node
// trees and copying every other part verbatim.
func (p *Presentation) Bytes() ([]byte, error) {
	modified := make(map[string][]byte, len(p.slides))
	for _, s := range p.slides {
		modified[s.partName] = s.root.serialize()
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range p.partNames {
		content := p.parts[name]
		if m, ok := modified[name]; ok {
			content = m
		}
		w, err := zw.Create(name)
		if err != nil {
			return nil, fmt.Errorf("pptx: write part %q: %w", name, err)
		}
		if _, err := w.Write(content); err != nil {
			return nil, fmt.Errorf("pptx: write part %q: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("pptx: finalize archive: %w", err)
	}
	return buf.Bytes(), nil
}

// Save writes the serialised presentation to path with 0644 permissions.
// The file the presentation was opened from is never touched.
func (p *Presentation) Save(path string) error {
	data, err := p.Bytes()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("pptx: save %q: %w", path, err)
	}
	return nil
}
