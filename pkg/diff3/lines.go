package diff3

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// DiffType classifies a line in an edit script.
type DiffType int

const (
	Equal  DiffType = iota // Line is unchanged between a and b.
	Insert                 // Line was inserted (present in b only).
	Delete                 // Line was deleted (present in a only).
)

func (t DiffType) String() string {
	switch t {
	case Insert:
		return "+"
	case Delete:
		return "-"
	default:
		return " "
	}
}

// DiffLine is a single line of a line-level edit script. Content keeps its
// trailing newline, if any.
type DiffLine struct {
	Type    DiffType
	Content string
}

// LineDiff computes a line-level edit script transforming a into b.
func LineDiff(a, b []byte) []DiffLine {
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0
	chars1, chars2, lineArray := dmp.DiffLinesToChars(string(a), string(b))
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(chars1, chars2, false), lineArray)

	var out []DiffLine
	for _, d := range diffs {
		typ := Equal
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			typ = Insert
		case diffmatchpatch.DiffDelete:
			typ = Delete
		}
		for _, line := range splitLines(d.Text) {
			out = append(out, DiffLine{Type: typ, Content: line})
		}
	}
	return out
}

// splitLines splits s after every newline. A final line without a newline
// is kept as is.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// change replaces base lines [start, end) with lines.
type change struct {
	start, end int
	lines      []string
}

// changes converts the edit script base -> side into replaced base ranges.
func changes(base, side []byte) []change {
	var out []change
	pos := 0
	var cur *change
	flush := func() {
		if cur != nil {
			out = append(out, *cur)
			cur = nil
		}
	}
	for _, l := range LineDiff(base, side) {
		switch l.Type {
		case Equal:
			flush()
			pos++
		case Delete:
			if cur == nil {
				cur = &change{start: pos, end: pos}
			}
			pos++
			cur.end = pos
		case Insert:
			if cur == nil {
				cur = &change{start: pos, end: pos}
			}
			cur.lines = append(cur.lines, l.Content)
		}
	}
	flush()
	return out
}
