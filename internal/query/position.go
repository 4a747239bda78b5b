package query

import (
	"sort"
	"unicode/utf16"
)

// Position is a zero-based line and character offset.
type Position struct {
	Line      int
	Character int
}

// Range is a half-open span between two positions.
type Range struct {
	Start Position
	End   Position
}

// Origin locates the first character of an embedded query inside its host
// document. The zero value means the query is the whole document.
type Origin struct {
	Line      int
	Character int
}

// TranslatePosition maps a query-local position into host coordinates. Only
// the first query line is shifted horizontally.
func (o Origin) TranslatePosition(p Position) Position {
	if p.Line == 0 {
		return Position{Line: o.Line, Character: o.Character + p.Character}
	}
	return Position{Line: o.Line + p.Line, Character: p.Character}
}

// Translate maps a query-local range into host coordinates.
func (o Origin) Translate(r Range) Range {
	return Range{
		Start: o.TranslatePosition(r.Start),
		End:   o.TranslatePosition(r.End),
	}
}

// LineIndex converts byte offsets into line/character positions. Characters
// are counted in UTF-16 code units, the unit LSP clients use.
type LineIndex struct {
	text string

	// starts holds the byte offset at which every line begins
	starts []int
}

// NewLineIndex indexes the line starts of text.
func NewLineIndex(text string) *LineIndex {
	starts := []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &LineIndex{text: text, starts: starts}
}

// Position returns the position of a byte offset. Offsets outside the text
// are clamped to it.
func (li *LineIndex) Position(offset int) Position {
	if offset < 0 {
		offset = 0
	}
	if offset > len(li.text) {
		offset = len(li.text)
	}
	line := sort.Search(len(li.starts), func(i int) bool {
		return li.starts[i] > offset
	}) - 1
	if line < 0 {
		line = 0
	}
	return Position{Line: line, Character: UTF16Len(li.text[li.starts[line]:offset])}
}

// UTF16Len returns the length of s in UTF-16 code units.
func UTF16Len(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}
