package translator

import "fmt"

// ShapeError reports a structural failure while processing one shape. Shape
// failures abort the whole job: a partially rewritten shape would leave the
// document in an inconsistent state, which is worse than an outright failure.
type ShapeError struct {
	// Slide is the 1-based slide index the shape belongs to.
	Slide int

	// Shape is the author-visible shape name, or "" when the shape has none.
	Shape string

	// Op names the operation that failed (e.g. "rebuild runs").
	Op string

	Err error
}

func (e *ShapeError) Error() string {
	if e.Shape != "" {
		return fmt.Sprintf("translator: slide %d, shape %q: %s: %v", e.Slide, e.Shape, e.Op, e.Err)
	}
	return fmt.Sprintf("translator: slide %d: %s: %v", e.Slide, e.Op, e.Err)
}

func (e *ShapeError) Unwrap() error {
	return e.Err
}
