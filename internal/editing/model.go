// Package editing implements the text buffer and selection state for a
// single text field. The model knows nothing about where edits come from;
// the session controller feeds it framework calls, key events, and IME
// composition updates, and forwards the resulting state to observers.
//
// All offsets are code-point indices, never byte offsets. The buffer is
// stored as a rune slice so inserts and deletes step over multi-byte
// characters correctly.
package editing

// Model holds the text buffer, the selection, and the in-progress IME
// composition region. Mutating operations report whether anything changed
// so callers can skip redundant state notifications.
//
// The composing flag and the composing range are tracked independently:
// the flag says whether the model is inside a BeginComposing/EndComposing
// bracket, the range says which span of the buffer the composition covers.
type Model struct {
	text      []rune
	selection TextRange

	composing         bool
	composingRange    TextRange
	hasComposingRange bool
}

// NewModel returns an empty model with a caret at offset 0.
func NewModel() *Model {
	return &Model{}
}

// Text returns the buffer contents.
func (m *Model) Text() string {
	return string(m.text)
}

// Selection returns the current selection.
func (m *Model) Selection() TextRange {
	return m.selection
}

// Composing reports whether the model is inside a composing bracket.
func (m *Model) Composing() bool {
	return m.composing
}

// ComposingRange returns the composition span, if one is tracked.
func (m *Model) ComposingRange() (TextRange, bool) {
	return m.composingRange, m.hasComposingRange
}

// SetText replaces the buffer wholesale. The selection and composing
// range are left untouched; stale offsets are clamped to the buffer at
// the next mutation.
func (m *Model) SetText(text string) bool {
	m.text = []rune(text)
	return true
}

// SetSelection replaces the selection wholesale. Out-of-range offsets are
// stored and reported verbatim; mutations clamp them to the buffer.
func (m *Model) SetSelection(selection TextRange) bool {
	m.selection = selection
	return true
}

// MoveCursorBack collapses the selection to a caret one code point before
// the current base. Returns false at the start of the buffer.
func (m *Model) MoveCursorBack() bool {
	if m.selection.Base <= 0 {
		return false
	}
	m.selection = Caret(m.selection.Base - 1)
	return true
}

// MoveCursorForward collapses the selection to a caret one code point after
// the current base. Returns false at the end of the buffer.
func (m *Model) MoveCursorForward() bool {
	if m.selection.Base >= len(m.text) {
		return false
	}
	m.selection = Caret(m.selection.Base + 1)
	return true
}

// MoveCursorToBeginning collapses the selection to a caret at offset 0.
func (m *Model) MoveCursorToBeginning() bool {
	if m.selection.Collapsed() && m.selection.Base == 0 {
		return false
	}
	m.selection = Caret(0)
	return true
}

// MoveCursorToEnd collapses the selection to a caret after the last code
// point.
func (m *Model) MoveCursorToEnd() bool {
	end := len(m.text)
	if m.selection.Collapsed() && m.selection.Base == end {
		return false
	}
	m.selection = Caret(end)
	return true
}

// Backspace deletes the selection, or the code point before the caret when
// the selection is collapsed. Returns false when the caret is at offset 0
// with nothing selected.
func (m *Model) Backspace() bool {
	if !m.selection.Collapsed() {
		m.deleteSelected()
		return true
	}
	pos := m.clamp(m.selection.Base)
	if pos <= 0 {
		return false
	}
	m.text = append(m.text[:pos-1], m.text[pos:]...)
	m.selection = Caret(pos - 1)
	return true
}

// Delete deletes the selection, or the code point after the caret when the
// selection is collapsed. Returns false when the caret is at the end of the
// buffer with nothing selected.
func (m *Model) Delete() bool {
	if !m.selection.Collapsed() {
		m.deleteSelected()
		return true
	}
	pos := m.clamp(m.selection.Base)
	if pos >= len(m.text) {
		return false
	}
	m.text = append(m.text[:pos], m.text[pos+1:]...)
	return true
}

// AddCodePoint inserts a single code point, replacing the selection if one
// is active, and leaves a caret after it.
func (m *Model) AddCodePoint(cp rune) bool {
	return m.AddText(string(cp))
}

// AddText inserts text at the caret, replacing the selection if one is
// active, and leaves a caret after the inserted text. Used for plain
// keyboard input and for IME commits outside a composing bracket.
func (m *Model) AddText(text string) bool {
	if !m.selection.Collapsed() {
		m.deleteSelected()
	}
	m.insertAt(m.selection.Base, []rune(text))
	return true
}

// BeginComposing marks the start of an IME composition at the current
// caret. The composing range starts empty and grows with each
// UpdateComposingText call.
func (m *Model) BeginComposing() {
	m.composing = true
	m.composingRange = Caret(m.selection.Base)
	m.hasComposingRange = true
}

// UpdateComposingText replaces the composing span with text, extends the
// composing range to cover it, and moves the caret to the end of the
// inserted text. Does nothing outside a composing bracket.
func (m *Model) UpdateComposingText(text string) bool {
	if !m.composing {
		return false
	}
	// The buffer may have been replaced under the bracket by a state
	// reassertion; a stale range must not slice past the new text.
	start := m.clamp(m.composingRange.Start())
	end := m.clamp(m.composingRange.End())
	m.text = append(m.text[:start], m.text[end:]...)
	inserted := m.insertAt(start, []rune(text))
	m.composingRange = TextRange{Base: start, Extent: start + inserted}
	return true
}

// EndComposing closes the composing bracket and forgets the composing
// range. The text is left as-is.
func (m *Model) EndComposing() {
	m.composing = false
	m.composingRange = TextRange{}
	m.hasComposingRange = false
}

// deleteSelected removes the selected span and collapses the selection to
// its start.
func (m *Model) deleteSelected() {
	start, end := m.clamp(m.selection.Start()), m.clamp(m.selection.End())
	m.text = append(m.text[:start], m.text[end:]...)
	m.selection = Caret(start)
}

// insertAt splices runes into the buffer and places the caret after them.
// Returns the number of code points inserted.
func (m *Model) insertAt(pos int, runes []rune) int {
	pos = m.clamp(pos)
	tail := append([]rune(nil), m.text[pos:]...)
	m.text = append(append(m.text[:pos], runes...), tail...)
	m.selection = Caret(pos + len(runes))
	return len(runes)
}

// clamp bounds a code-point offset to the buffer. The selection and
// composing range are stored verbatim, so every splice index passes
// through here first.
func (m *Model) clamp(offset int) int {
	if offset < 0 {
		return 0
	}
	if offset > len(m.text) {
		return len(m.text)
	}
	return offset
}
