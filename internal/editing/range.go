package editing

// TextRange is a span of text expressed in code-point offsets. Base is where
// the range started and Extent is where it ends; Extent may be smaller than
// Base for a backwards selection. A collapsed range (Base == Extent) is a
// caret.
type TextRange struct {
	Base   int
	Extent int
}

// Caret returns a collapsed range at the given offset.
func Caret(offset int) TextRange {
	return TextRange{Base: offset, Extent: offset}
}

// Start returns the lower of Base and Extent.
func (r TextRange) Start() int {
	if r.Extent < r.Base {
		return r.Extent
	}
	return r.Base
}

// End returns the higher of Base and Extent.
func (r TextRange) End() int {
	if r.Extent > r.Base {
		return r.Extent
	}
	return r.Base
}

// Length returns the number of code points covered by the range.
func (r TextRange) Length() int {
	return r.End() - r.Start()
}

// Collapsed reports whether the range is a caret.
func (r TextRange) Collapsed() bool {
	return r.Base == r.Extent
}
