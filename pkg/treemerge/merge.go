// Package treemerge performs a three-way merge of directory trees.
//
// Names present in any of the ancestor, ours and theirs trees are classified
// one directory level at a time. Sides that agree resolve immediately;
// directories changed on both sides are merged recursively; everything else
// becomes a Conflict. Conflicts are data, not errors: a merge with conflicts
// still returns a Result, with the ours side staged at each conflicted path.
//
// MergeTrees only reads the store. The merged tree is returned in memory and
// is persisted by the caller with Write.
package treemerge

import (
	"context"
	"fmt"
	"path"
	"sort"

	"github.com/odvcencio/weave/pkg/graph"
	"github.com/odvcencio/weave/pkg/object"
)

// ContentMerger attempts a line-level merge of one file changed on both
// sides. clean reports whether the result is free of conflicts; merged may
// hold conflict-marker text when it is not. A nil merged with clean false
// means the content could not be merged at all.
type ContentMerger interface {
	MergeContent(path string, ancestor, ours, theirs []byte) (merged []byte, clean bool, err error)
}

// ContentMergerFunc adapts a function to ContentMerger.
type ContentMergerFunc func(path string, ancestor, ours, theirs []byte) ([]byte, bool, error)

func (f ContentMergerFunc) MergeContent(path string, ancestor, ours, theirs []byte) ([]byte, bool, error) {
	return f(path, ancestor, ours, theirs)
}

// Options tunes MergeTrees.
type Options struct {
	// ContentMerger, when set, is tried for files modified on both sides.
	// Symlinks are never handed to it.
	ContentMerger ContentMerger
}

// MergeTrees merges the trees ours and theirs against their common ancestor.
// An empty hash stands for an empty tree on that side.
func MergeTrees(ctx context.Context, r object.Reader, ancestor, ours, theirs object.Hash, opts Options) (*Result, error) {
	m := &merger{r: r, opts: opts}
	tree, err := m.mergeDir(ctx, "", ancestor, ours, theirs)
	if err != nil {
		return nil, fmt.Errorf("merge trees: %w", err)
	}
	return &Result{Tree: tree, Conflicts: m.conflicts}, nil
}

type merger struct {
	r         object.Reader
	opts      Options
	conflicts []Conflict
}

func (m *merger) readDir(h object.Hash) (map[string]*object.TreeEntry, error) {
	out := make(map[string]*object.TreeEntry)
	if h == "" {
		return out, nil
	}
	tr, err := m.r.ReadTree(h)
	if err != nil {
		return nil, fmt.Errorf("read tree %s: %w", h, err)
	}
	for i := range tr.Entries {
		e := tr.Entries[i]
		out[e.Name] = &e
	}
	return out, nil
}

// whole returns an input directory unchanged.
func (m *merger) whole(h object.Hash) (*Tree, error) {
	dir, err := m.readDir(h)
	if err != nil {
		return nil, err
	}
	t := &Tree{Hash: h}
	for _, name := range sortedNames(dir) {
		t.Entries = append(t.Entries, entryFrom(dir[name]))
	}
	return t, nil
}

func (m *merger) mergeDir(ctx context.Context, prefix string, a, o, t object.Hash) (*Tree, error) {
	if err := graph.CheckContext(ctx); err != nil {
		return nil, err
	}
	if o == t {
		return m.whole(o)
	}

	base, err := m.readDir(a)
	if err != nil {
		return nil, err
	}
	ours, err := m.readDir(o)
	if err != nil {
		return nil, err
	}
	theirs, err := m.readDir(t)
	if err != nil {
		return nil, err
	}

	out := &Tree{}
	for _, name := range sortedNames(base, ours, theirs) {
		e, keep, err := m.mergeEntry(ctx, path.Join(prefix, name), base[name], ours[name], theirs[name])
		if err != nil {
			return nil, err
		}
		if keep {
			e.Name = name
			out.Entries = append(out.Entries, e)
		}
	}

	switch {
	case o != "" && sameEntries(out.Entries, ours):
		out.Hash = o
	case t != "" && sameEntries(out.Entries, theirs):
		out.Hash = t
	}
	return out, nil
}

func (m *merger) mergeEntry(ctx context.Context, p string, a, o, t *object.TreeEntry) (Entry, bool, error) {
	switch {
	case same(o, t):
		return present(o)
	case o != nil && t != nil && (o.IsDir() != t.IsDir() || o.IsGitlink() != t.IsGitlink()):
		m.record(p, ConflictTypeChange, a, o, t)
		return entryFrom(o), true, nil
	case same(a, o):
		return present(t)
	case same(a, t):
		return present(o)
	}

	switch {
	case o == nil:
		return m.deletedOnOneSide(ctx, p, a, t, false)
	case t == nil:
		return m.deletedOnOneSide(ctx, p, a, o, true)
	case o.IsDir():
		var ah object.Hash
		if a != nil && a.IsDir() {
			ah = a.Hash
		}
		return m.subtree(ctx, p, ah, o.Hash, t.Hash)
	}

	if a != nil && a.IsDir() {
		a = nil
	}
	return m.mergeFiles(p, a, o, t)
}

// deletedOnOneSide handles a path removed on one side and changed on the
// other. oursSurvived reports which side still has it.
func (m *merger) deletedOnOneSide(ctx context.Context, p string, a, survivor *object.TreeEntry, oursSurvived bool) (Entry, bool, error) {
	if a.IsDir() != survivor.IsDir() {
		// The survivor replaced the ancestor with something new; the
		// ancestor entry is gone on both sides.
		return entryFrom(survivor), true, nil
	}
	if survivor.IsDir() {
		if oursSurvived {
			return m.subtree(ctx, p, a.Hash, survivor.Hash, "")
		}
		return m.subtree(ctx, p, a.Hash, "", survivor.Hash)
	}
	if oursSurvived {
		m.record(p, ConflictModifyDelete, a, survivor, nil)
	} else {
		m.record(p, ConflictModifyDelete, a, nil, survivor)
	}
	return entryFrom(survivor), true, nil
}

func (m *merger) subtree(ctx context.Context, p string, a, o, t object.Hash) (Entry, bool, error) {
	sub, err := m.mergeDir(ctx, p, a, o, t)
	if err != nil {
		return Entry{}, false, err
	}
	if len(sub.Entries) == 0 {
		return Entry{}, false, nil
	}
	return Entry{Mode: object.TreeModeDir, Hash: sub.Hash, Tree: sub}, true, nil
}

// mergeFiles merges two differing non-directory entries. Content and mode
// are resolved independently; a nil ancestor means both sides added the path.
func (m *merger) mergeFiles(p string, a, o, t *object.TreeEntry) (Entry, bool, error) {
	var ah object.Hash
	var am string
	if a != nil {
		ah, am = a.Hash, a.Mode
	}
	hash, hashOK := resolve(ah, o.Hash, t.Hash)
	mode, modeOK := resolve(am, o.Mode, t.Mode)

	if hashOK {
		if !modeOK {
			m.record(p, ConflictMode, a, o, t)
		}
		return Entry{Mode: mode, Hash: hash}, true, nil
	}

	kind := ConflictContent
	if a == nil {
		kind = ConflictAddAdd
	}
	if a == nil || m.opts.ContentMerger == nil || !lineMergeable(a, o, t) {
		m.record(p, kind, a, o, t)
		return entryFrom(o), true, nil
	}

	merged, clean, err := m.lineMerge(p, a, o, t)
	if err != nil {
		return Entry{}, false, err
	}
	if merged == nil {
		m.record(p, kind, a, o, t)
		return entryFrom(o), true, nil
	}
	if !clean {
		m.record(p, kind, a, o, t)
		return Entry{Mode: o.Mode, Data: merged}, true, nil
	}
	if !modeOK {
		m.record(p, ConflictMode, a, o, t)
	}
	return Entry{Mode: mode, Data: merged}, true, nil
}

func (m *merger) lineMerge(p string, a, o, t *object.TreeEntry) ([]byte, bool, error) {
	var data [3][]byte
	for i, e := range []*object.TreeEntry{a, o, t} {
		b, err := m.r.ReadBlob(e.Hash)
		if err != nil {
			return nil, false, fmt.Errorf("read blob %s at %q: %w", e.Hash, p, err)
		}
		data[i] = b.Data
	}
	merged, clean, err := m.opts.ContentMerger.MergeContent(p, data[0], data[1], data[2])
	if err != nil {
		return nil, false, fmt.Errorf("merge content %q: %w", p, err)
	}
	return merged, clean, nil
}

// lineMergeable reports whether all sides hold file content. Symlink
// targets and submodule commits are never line-merged.
func lineMergeable(entries ...*object.TreeEntry) bool {
	for _, e := range entries {
		if e.IsSymlink() || e.IsGitlink() {
			return false
		}
	}
	return true
}

func (m *merger) record(p string, kind ConflictKind, a, o, t *object.TreeEntry) {
	m.conflicts = append(m.conflicts, Conflict{
		Path:     p,
		Kind:     kind,
		Ancestor: a,
		Ours:     o,
		Theirs:   t,
	})
}

// resolve picks the three-way winner of one attribute: the value both sides
// agree on, or the side that changed it. ok is false when both changed it
// differently; ours is returned then.
func resolve[T comparable](a, o, t T) (T, bool) {
	switch {
	case o == t:
		return o, true
	case a == o:
		return t, true
	case a == t:
		return o, true
	default:
		return o, false
	}
}

func same(x, y *object.TreeEntry) bool {
	if x == nil || y == nil {
		return x == nil && y == nil
	}
	return x.SameAs(*y)
}

func present(e *object.TreeEntry) (Entry, bool, error) {
	if e == nil {
		return Entry{}, false, nil
	}
	return entryFrom(e), true, nil
}

func sortedNames(dirs ...map[string]*object.TreeEntry) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, d := range dirs {
		for name := range d {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
