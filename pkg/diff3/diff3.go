// Package diff3 implements line-based three-way merging of text.
package diff3

import (
	"bytes"
	"slices"
)

// Conflict markers written around unresolved regions.
const (
	MarkerOurs   = "<<<<<<< ours"
	MarkerSep    = "======="
	MarkerTheirs = ">>>>>>> theirs"
)

// binarySniffLen is how much of a blob is inspected for NUL bytes.
const binarySniffLen = 8000

// HunkType classifies a hunk in a three-way merge result.
type HunkType int

const (
	HunkClean    HunkType = iota // Hunk was merged cleanly.
	HunkConflict                 // Hunk has a conflict that requires manual resolution.
)

// Hunk represents a contiguous section of the merge output.
type Hunk struct {
	Type                       HunkType
	Base, Ours, Theirs, Merged []byte
}

// Result holds the outcome of a three-way merge.
type Result struct {
	Merged       []byte // Full merged content, with conflict markers if conflicts exist.
	HasConflicts bool
	Hunks        []Hunk // Individual hunks in document order.
}

// Merge performs a three-way merge of base, ours and theirs.
//
// Both sides are diffed against base. Changes from either side whose base
// ranges overlap are grouped into one region; a region changed by one side
// only, or identically by both, merges cleanly. Anything else is a conflict.
func Merge(base, ours, theirs []byte) Result {
	baseLines := splitLines(string(base))
	oc := changes(base, ours)
	tc := changes(base, theirs)

	var res Result
	var merged bytes.Buffer
	emit := func(h Hunk) {
		merged.Write(h.Merged)
		res.Hunks = append(res.Hunks, h)
	}

	pos := 0
	i, j := 0, 0
	for i < len(oc) || j < len(tc) {
		var start, end int
		if j >= len(tc) || (i < len(oc) && oc[i].start <= tc[j].start) {
			start, end = oc[i].start, oc[i].end
		} else {
			start, end = tc[j].start, tc[j].end
		}

		var ours, theirs []change
		for {
			grew := false
			if i < len(oc) && overlaps(oc[i], start, end) {
				ours = append(ours, oc[i])
				end = max(end, oc[i].end)
				i++
				grew = true
			}
			if j < len(tc) && overlaps(tc[j], start, end) {
				theirs = append(theirs, tc[j])
				end = max(end, tc[j].end)
				j++
				grew = true
			}
			if !grew {
				break
			}
		}

		if pos < start {
			unchanged := joinLines(baseLines[pos:start])
			emit(Hunk{Type: HunkClean, Base: unchanged, Merged: unchanged})
		}

		region := baseLines[start:end]
		oursOut := apply(baseLines, start, end, ours)
		theirsOut := apply(baseLines, start, end, theirs)
		h := Hunk{Base: joinLines(region), Ours: joinLines(oursOut), Theirs: joinLines(theirsOut)}
		switch {
		case len(theirs) == 0:
			h.Merged = h.Ours
		case len(ours) == 0:
			h.Merged = h.Theirs
		case slices.Equal(oursOut, theirsOut):
			h.Merged = h.Ours
		default:
			h.Type = HunkConflict
			h.Merged = conflictText(oursOut, theirsOut)
			res.HasConflicts = true
		}
		emit(h)
		pos = end
	}
	if pos < len(baseLines) {
		unchanged := joinLines(baseLines[pos:])
		emit(Hunk{Type: HunkClean, Base: unchanged, Merged: unchanged})
	}

	res.Merged = merged.Bytes()
	if res.Merged == nil {
		res.Merged = []byte{}
	}
	return res
}

// overlaps reports whether c touches the base region [start, end). Two
// insertions at the same point overlap.
func overlaps(c change, start, end int) bool {
	return c.start < end || (c.start == start && c.start == end)
}

// apply rewrites base[start:end] with the given changes, which all lie
// inside the range and are ordered.
func apply(base []string, start, end int, cs []change) []string {
	var out []string
	p := start
	for _, c := range cs {
		out = append(out, base[p:c.start]...)
		out = append(out, c.lines...)
		p = c.end
	}
	return append(out, base[p:end]...)
}

func conflictText(ours, theirs []string) []byte {
	var buf bytes.Buffer
	buf.WriteString(MarkerOurs + "\n")
	writeTerminated(&buf, ours)
	buf.WriteString(MarkerSep + "\n")
	writeTerminated(&buf, theirs)
	buf.WriteString(MarkerTheirs + "\n")
	return buf.Bytes()
}

// writeTerminated writes lines and makes sure the output ends in a newline
// so the following marker starts on its own line.
func writeTerminated(buf *bytes.Buffer, lines []string) {
	for _, l := range lines {
		buf.WriteString(l)
	}
	if n := len(lines); n > 0 && !bytes.HasSuffix([]byte(lines[n-1]), []byte("\n")) {
		buf.WriteByte('\n')
	}
}

func joinLines(lines []string) []byte {
	if len(lines) == 0 {
		return nil
	}
	var buf bytes.Buffer
	for _, l := range lines {
		buf.WriteString(l)
	}
	return buf.Bytes()
}

// IsBinary reports whether data looks like binary content: a NUL byte in
// the first 8000 bytes.
func IsBinary(data []byte) bool {
	if len(data) > binarySniffLen {
		data = data[:binarySniffLen]
	}
	return bytes.IndexByte(data, 0) >= 0
}
