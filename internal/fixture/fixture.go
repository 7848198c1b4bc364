// Package fixture builds commit graphs and trees in memory for tests.
package fixture

import (
	"sort"
	"strconv"
	"strings"
	"testing"

	"github.com/odvcencio/weave/pkg/object"
)

// Graph names commits so tests can describe history by label.
type Graph struct {
	t     testing.TB
	Store *object.MemStore
	clock int64
	names map[string]object.Hash
	back  map[object.Hash]string
}

// New returns an empty graph over a SHA-256 memory store.
func New(t testing.TB) *Graph {
	return &Graph{
		t:     t,
		Store: object.NewMemStore(object.SHA256),
		clock: 1_700_000_000,
		names: make(map[string]object.Hash),
		back:  make(map[object.Hash]string),
	}
}

// Blob stores content and returns its hash.
func (g *Graph) Blob(content string) object.Hash {
	g.t.Helper()
	h, err := g.Store.WriteBlob(&object.Blob{Data: []byte(content)})
	if err != nil {
		g.t.Fatalf("WriteBlob: %v", err)
	}
	return h
}

// Tree builds a nested tree from slash-separated paths. A path ending in
// "*" is stored executable (the "*" is dropped); a value starting with "->"
// is stored as a symlink to the rest of the value.
func (g *Graph) Tree(files map[string]string) object.Hash {
	g.t.Helper()
	type node struct {
		files map[string]object.TreeEntry
		dirs  map[string]*node
	}
	newNode := func() *node {
		return &node{files: map[string]object.TreeEntry{}, dirs: map[string]*node{}}
	}
	root := newNode()
	for path, content := range files {
		mode := object.TreeModeFile
		if strings.HasSuffix(path, "*") {
			path = strings.TrimSuffix(path, "*")
			mode = object.TreeModeExecutable
		}
		if target, ok := strings.CutPrefix(content, "->"); ok {
			content = target
			mode = object.TreeModeSymlink
		}
		parts := strings.Split(path, "/")
		n := root
		for _, dir := range parts[:len(parts)-1] {
			child, ok := n.dirs[dir]
			if !ok {
				child = newNode()
				n.dirs[dir] = child
			}
			n = child
		}
		name := parts[len(parts)-1]
		n.files[name] = object.TreeEntry{Name: name, Mode: mode, Hash: g.Blob(content)}
	}

	var write func(n *node) object.Hash
	write = func(n *node) object.Hash {
		var entries []object.TreeEntry
		for _, e := range n.files {
			entries = append(entries, e)
		}
		for name, child := range n.dirs {
			entries = append(entries, object.TreeEntry{Name: name, Mode: object.TreeModeDir, Hash: write(child)})
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
		h, err := g.Store.WriteTree(&object.TreeObj{Entries: entries})
		if err != nil {
			g.t.Fatalf("WriteTree: %v", err)
		}
		return h
	}
	return write(root)
}

// EmptyTree returns the hash of a tree with no entries.
func (g *Graph) EmptyTree() object.Hash {
	return g.Tree(nil)
}

// Commit records a commit labelled name whose parents are earlier labels.
// Each commit is one second newer than the previous one.
func (g *Graph) Commit(name string, tree object.Hash, parents ...string) object.Hash {
	g.t.Helper()
	g.clock++
	return g.CommitAt(name, g.clock, tree, parents...)
}

// CommitAt is Commit with an explicit timestamp, for clock-skew scenarios.
func (g *Graph) CommitAt(name string, when int64, tree object.Hash, parents ...string) object.Hash {
	g.t.Helper()
	if tree == "" {
		tree = g.EmptyTree()
	}
	var ps []object.Hash
	for _, p := range parents {
		ps = append(ps, g.Hash(p))
	}
	h, err := g.Store.WriteCommit(&object.CommitObj{
		TreeHash:  tree,
		Parents:   ps,
		Author:    "fixture <fixture@example.com>",
		Timestamp: when,
		Message:   name + "\n",
	})
	if err != nil {
		g.t.Fatalf("WriteCommit(%s): %v", name, err)
	}
	g.names[name] = h
	g.back[h] = name
	return h
}

// Hash returns the hash recorded for a label.
func (g *Graph) Hash(name string) object.Hash {
	g.t.Helper()
	h, ok := g.names[name]
	if !ok {
		g.t.Fatalf("fixture: unknown commit %q", name)
	}
	return h
}

// Names maps hashes back to labels, sorted, for readable assertions.
func (g *Graph) Names(hashes []object.Hash) []string {
	out := make([]string, 0, len(hashes))
	for _, h := range hashes {
		if n, ok := g.back[h]; ok {
			out = append(out, n)
		} else {
			out = append(out, string(h))
		}
	}
	sort.Strings(out)
	return out
}

// Linear builds a chain of n commits labelled prefix0..prefix(n-1) on top of
// parent (which may be empty) and returns the tip label.
func (g *Graph) Linear(prefix string, n int, parent string) string {
	g.t.Helper()
	prev := parent
	for i := 0; i < n; i++ {
		name := prefix + strconv.Itoa(i)
		if prev == "" {
			g.Commit(name, "")
		} else {
			g.Commit(name, "", prev)
		}
		prev = name
	}
	return prev
}
