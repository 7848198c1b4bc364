package treemerge

import (
	"fmt"
	"sort"

	"github.com/odvcencio/weave/pkg/object"
)

// Entry is one name in a merged directory. Exactly one of these holds:
// Hash references an existing object, Tree holds a merged subtree not yet
// written, or Data holds blob content produced by a line merge.
type Entry struct {
	Name string
	Mode string
	Hash object.Hash
	Tree *Tree
	Data []byte
}

// IsDir reports whether the entry is a directory.
func (e Entry) IsDir() bool { return e.Mode == object.TreeModeDir }

// Pending reports whether the entry still has to be written before it has
// a hash.
func (e Entry) Pending() bool { return e.Hash == "" }

// Tree is an in-memory merged directory. Hash is set when the directory is
// identical to one of the merge inputs, so callers can skip writing it.
type Tree struct {
	Hash    object.Hash
	Entries []Entry
}

// Find returns the entry with the given name.
func (t *Tree) Find(name string) (Entry, bool) {
	i := sort.Search(len(t.Entries), func(i int) bool { return t.Entries[i].Name >= name })
	if i < len(t.Entries) && t.Entries[i].Name == name {
		return t.Entries[i], true
	}
	return Entry{}, false
}

// Write stores every pending blob and subtree of t bottom-up and returns the
// root tree hash. Directories that already carry a hash are not rewritten.
func Write(w object.Writer, t *Tree) (object.Hash, error) {
	if t == nil {
		return w.WriteTree(&object.TreeObj{})
	}
	if t.Hash != "" {
		return t.Hash, nil
	}
	entries := make([]object.TreeEntry, 0, len(t.Entries))
	for _, e := range t.Entries {
		h := e.Hash
		switch {
		case h != "":
		case e.Tree != nil:
			sub, err := Write(w, e.Tree)
			if err != nil {
				return "", err
			}
			h = sub
		default:
			blob, err := w.WriteBlob(&object.Blob{Data: e.Data})
			if err != nil {
				return "", fmt.Errorf("write merged blob %q: %w", e.Name, err)
			}
			h = blob
		}
		entries = append(entries, object.TreeEntry{Name: e.Name, Mode: e.Mode, Hash: h})
	}
	h, err := w.WriteTree(&object.TreeObj{Entries: entries})
	if err != nil {
		return "", fmt.Errorf("write merged tree: %w", err)
	}
	return h, nil
}

func entryFrom(e *object.TreeEntry) Entry {
	return Entry{Name: e.Name, Mode: e.Mode, Hash: e.Hash}
}

// sameEntries reports whether the merged level references exactly the
// objects listed in an input tree.
func sameEntries(merged []Entry, in map[string]*object.TreeEntry) bool {
	if len(merged) != len(in) {
		return false
	}
	for _, e := range merged {
		if e.Hash == "" {
			return false
		}
		o, ok := in[e.Name]
		if !ok || o.Hash != e.Hash || o.Mode != e.Mode {
			return false
		}
	}
	return true
}
