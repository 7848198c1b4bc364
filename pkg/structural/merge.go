// Package structural merges source files declaration by declaration.
//
// Each version of a file is parsed with tree-sitter and cut at its top-level
// declarations. Declarations are matched across the ancestor, ours and
// theirs by kind and name, merged one at a time, and written back in ours'
// order with declarations only theirs added placed after their neighbour.
// Two sides adding different functions at the end of a file therefore merge
// cleanly, where a plain line merge would report a conflict.
//
// Files no grammar recognizes are handed to a line-level fallback.
package structural

import (
	"bytes"

	"github.com/odvcencio/weave/pkg/diff3"
	"github.com/odvcencio/weave/pkg/treemerge"
)

// Merger implements treemerge.ContentMerger.
type Merger struct {
	// Fallback merges files that cannot be parsed. nil means diff3.Merger.
	Fallback treemerge.ContentMerger
}

var _ treemerge.ContentMerger = Merger{}

func (m Merger) fallback() treemerge.ContentMerger {
	if m.Fallback != nil {
		return m.Fallback
	}
	return diff3.Merger{}
}

// MergeContent merges one file. Binary content is never merged.
func (m Merger) MergeContent(path string, ancestor, ours, theirs []byte) ([]byte, bool, error) {
	if diff3.IsBinary(ancestor) || diff3.IsBinary(ours) || diff3.IsBinary(theirs) {
		return nil, false, nil
	}
	var segs [3][]segment
	for i, src := range [][]byte{ancestor, ours, theirs} {
		s, err := split(path, src)
		if err != nil {
			return m.fallback().MergeContent(path, ancestor, ours, theirs)
		}
		segs[i] = s
	}
	merged, clean := mergeSegments(segs[0], segs[1], segs[2])
	return merged, clean, nil
}

type version struct {
	body    []byte
	present bool
}

func index(segs []segment) map[string][]byte {
	out := make(map[string][]byte, len(segs))
	for _, s := range segs {
		out[s.key] = s.body
	}
	return out
}

func lookup(m map[string][]byte, key string) version {
	b, ok := m[key]
	return version{body: b, present: ok}
}

func mergeSegments(aSegs, oSegs, tSegs []segment) ([]byte, bool) {
	a, o, t := index(aSegs), index(oSegs), index(tSegs)

	var buf bytes.Buffer
	clean := true
	for _, key := range order(a, oSegs, tSegs) {
		body, ok := mergeOne(lookup(a, key), lookup(o, key), lookup(t, key))
		if !ok {
			clean = false
		}
		buf.Write(body)
	}
	return buf.Bytes(), clean
}

// mergeOne resolves a single declaration. Sides that agree, or where only
// one side changed, resolve without a line merge.
func mergeOne(a, o, t version) ([]byte, bool) {
	switch {
	case o.present == t.present && bytes.Equal(o.body, t.body):
		return o.body, true
	case o.present == a.present && bytes.Equal(o.body, a.body):
		return t.body, true
	case t.present == a.present && bytes.Equal(t.body, a.body):
		return o.body, true
	}
	r := diff3.Merge(a.body, o.body, t.body)
	return r.Merged, !r.HasConflicts
}

// order lists every key in output order: ours' sequence, with keys missing
// from ours inserted after their predecessor in theirs, past any
// declarations only ours added there.
func order(a map[string][]byte, oSegs, tSegs []segment) []string {
	keys := make([]string, 0, len(oSegs)+len(tSegs))
	pos := make(map[string]bool, len(oSegs))
	for _, s := range oSegs {
		keys = append(keys, s.key)
		pos[s.key] = true
	}
	theirs := make(map[string]bool, len(tSegs))
	for _, s := range tSegs {
		theirs[s.key] = true
	}
	oursOnly := func(k string) bool {
		_, inBase := a[k]
		return !inBase && !theirs[k]
	}

	prev := ""
	for _, s := range tSegs {
		if pos[s.key] {
			prev = s.key
			continue
		}
		at := 0
		if prev != "" {
			for i, k := range keys {
				if k == prev {
					at = i + 1
					break
				}
			}
		} else if len(keys) > 0 && keys[0] == headerKey {
			at = 1
		}
		for at < len(keys) && oursOnly(keys[at]) {
			at++
		}
		keys = append(keys[:at], append([]string{s.key}, keys[at:]...)...)
		pos[s.key] = true
		prev = s.key
	}
	return keys
}
