package object

import (
	"errors"
	"fmt"
)

// Hash is a lowercase hex-encoded content digest (40 or 64 characters).
type Hash string

// ObjectType identifies the kind of object stored.
type ObjectType string

const (
	TypeBlob   ObjectType = "blob"
	TypeTree   ObjectType = "tree"
	TypeCommit ObjectType = "commit"
)

const (
	// Tree mode constants compatible with Git's canonical mode strings.
	TreeModeDir        = "40000"
	TreeModeFile       = "100644"
	TreeModeExecutable = "100755"
	TreeModeSymlink    = "120000"
	// TreeModeGitlink marks a submodule: Hash names a commit in another
	// repository and is never read from this store.
	TreeModeGitlink = "160000"
)

// ErrObjectNotFound is returned (wrapped) by every store when a hash has no
// object. It signals repository corruption to merge code and is never retried.
var ErrObjectNotFound = errors.New("object not found")

// NotFound wraps ErrObjectNotFound with the missing hash.
func NotFound(h Hash) error {
	return fmt.Errorf("%w: %s", ErrObjectNotFound, h)
}

// Kind distinguishes file-like entries from directories.
type Kind int

const (
	KindBlob Kind = iota
	KindTree
)

func (k Kind) String() string {
	if k == KindTree {
		return "tree"
	}
	return "blob"
}

// Blob holds raw file data.
type Blob struct {
	Data []byte
}

// TreeEntry is one entry in a tree object.
type TreeEntry struct {
	Name string
	Mode string
	Hash Hash
}

// Kind reports whether the entry points at a subtree or a blob.
func (e TreeEntry) Kind() Kind {
	if e.Mode == TreeModeDir {
		return KindTree
	}
	return KindBlob
}

func (e TreeEntry) IsDir() bool { return e.Kind() == KindTree }

func (e TreeEntry) IsSymlink() bool { return e.Mode == TreeModeSymlink }

func (e TreeEntry) IsGitlink() bool { return e.Mode == TreeModeGitlink }

// SameAs reports whether two entries reference identical content with the
// same mode. Names are not compared.
func (e TreeEntry) SameAs(o TreeEntry) bool {
	return e.Hash == o.Hash && e.Mode == o.Mode
}

// TreeObj holds a sorted list of tree entries.
type TreeObj struct {
	Entries []TreeEntry // sorted by Name
}

// Find returns the entry with the given name.
func (t *TreeObj) Find(name string) (TreeEntry, bool) {
	for _, e := range t.Entries {
		if e.Name == name {
			return e, true
		}
	}
	return TreeEntry{}, false
}

// CommitObj represents a commit pointing to a tree with metadata.
type CommitObj struct {
	TreeHash           Hash
	Parents            []Hash
	Author             string
	Timestamp          int64
	Committer          string
	CommitterTimestamp int64
	Message            string
}

// When returns the commit time used to order history walks: the committer
// timestamp, or the author timestamp when no committer time was recorded.
func (c *CommitObj) When() int64 {
	if c.CommitterTimestamp != 0 {
		return c.CommitterTimestamp
	}
	return c.Timestamp
}

// Reader gives content-addressed read access to commits, trees and blobs.
// Implementations must be safe for concurrent use.
type Reader interface {
	ReadCommit(h Hash) (*CommitObj, error)
	ReadTree(h Hash) (*TreeObj, error)
	ReadBlob(h Hash) (*Blob, error)
}

// Writer stores new objects and returns their hashes.
type Writer interface {
	WriteBlob(b *Blob) (Hash, error)
	WriteTree(t *TreeObj) (Hash, error)
	WriteCommit(c *CommitObj) (Hash, error)
}

// Store is a readable and writable object store.
type Store interface {
	Reader
	Writer
}
