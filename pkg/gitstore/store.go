// Package gitstore reads and writes objects and references in an existing
// git repository through go-git. Hashes are SHA-1 and objects use git's own
// encoding, so trees and commits written here are visible to git itself.
package gitstore

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	gitobject "github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage"
	"github.com/go-git/go-git/v5/storage/memory"

	"github.com/odvcencio/weave/pkg/object"
	"github.com/odvcencio/weave/pkg/refs"
)

// Store implements object.Store and refs.Store over a go-git repository.
type Store struct {
	repo *git.Repository
	// mu serializes ref updates within this process; go-git's storers only
	// guard against changes made by other processes.
	mu sync.Mutex
}

var (
	_ object.Store = (*Store)(nil)
	_ refs.Store   = (*Store)(nil)
	_ refs.Lister  = (*Store)(nil)
	_ refs.Deleter = (*Store)(nil)
)

// Open opens the repository at path. path may be a worktree or a bare
// repository.
func Open(path string) (*Store, error) {
	r, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("open git repository %s: %w", path, err)
	}
	return New(r), nil
}

// NewInMemory returns a store over an empty in-memory repository.
func NewInMemory() (*Store, error) {
	r, err := git.Init(memory.NewStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("init in-memory git repository: %w", err)
	}
	return New(r), nil
}

// New wraps an already opened repository.
func New(r *git.Repository) *Store { return &Store{repo: r} }

// Repository exposes the underlying go-git repository.
func (s *Store) Repository() *git.Repository { return s.repo }

// Algorithm reports SHA-1, the only digest go-git repositories use here.
func (s *Store) Algorithm() object.Algorithm { return object.SHA1 }

func toGitHash(h object.Hash) (plumbing.Hash, bool) {
	if len(h) != 40 || !h.Valid() {
		return plumbing.ZeroHash, false
	}
	return plumbing.NewHash(string(h)), true
}

func fromGitHash(h plumbing.Hash) object.Hash { return object.Hash(h.String()) }

func notFound(h object.Hash, err error) error {
	if errors.Is(err, plumbing.ErrObjectNotFound) {
		return object.NotFound(h)
	}
	return err
}

// ReadCommit converts a git commit. Signatures are flattened to
// "Name <email>" and times to Unix seconds.
func (s *Store) ReadCommit(h object.Hash) (*object.CommitObj, error) {
	gh, ok := toGitHash(h)
	if !ok {
		return nil, object.NotFound(h)
	}
	c, err := s.repo.CommitObject(gh)
	if err != nil {
		return nil, fmt.Errorf("read commit %s: %w", h, notFound(h, err))
	}
	out := &object.CommitObj{
		TreeHash:           fromGitHash(c.TreeHash),
		Author:             formatSignature(c.Author),
		Timestamp:          c.Author.When.Unix(),
		Committer:          formatSignature(c.Committer),
		CommitterTimestamp: c.Committer.When.Unix(),
		Message:            c.Message,
	}
	for _, p := range c.ParentHashes {
		out.Parents = append(out.Parents, fromGitHash(p))
	}
	return out, nil
}

// ReadTree converts a git tree. Submodule entries keep their commit hash
// with object.TreeModeGitlink.
func (s *Store) ReadTree(h object.Hash) (*object.TreeObj, error) {
	gh, ok := toGitHash(h)
	if !ok {
		return nil, object.NotFound(h)
	}
	t, err := s.repo.TreeObject(gh)
	if err != nil {
		return nil, fmt.Errorf("read tree %s: %w", h, notFound(h, err))
	}
	out := &object.TreeObj{Entries: make([]object.TreeEntry, 0, len(t.Entries))}
	for _, e := range t.Entries {
		mode, err := fromFileMode(e.Mode)
		if err != nil {
			return nil, fmt.Errorf("read tree %s: entry %q: %w", h, e.Name, err)
		}
		out.Entries = append(out.Entries, object.TreeEntry{
			Name: e.Name,
			Mode: mode,
			Hash: fromGitHash(e.Hash),
		})
	}
	out.Entries = object.SortedEntries(out.Entries)
	return out, nil
}

// ReadBlob returns blob contents.
func (s *Store) ReadBlob(h object.Hash) (*object.Blob, error) {
	gh, ok := toGitHash(h)
	if !ok {
		return nil, object.NotFound(h)
	}
	b, err := s.repo.BlobObject(gh)
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", h, notFound(h, err))
	}
	rd, err := b.Reader()
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", h, err)
	}
	defer rd.Close()
	data, err := io.ReadAll(rd)
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", h, err)
	}
	return &object.Blob{Data: data}, nil
}

// WriteBlob stores b as a git blob.
func (s *Store) WriteBlob(b *object.Blob) (object.Hash, error) {
	obj := s.repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	w, err := obj.Writer()
	if err != nil {
		return "", fmt.Errorf("write blob: %w", err)
	}
	if _, err := w.Write(b.Data); err != nil {
		w.Close()
		return "", fmt.Errorf("write blob: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("write blob: %w", err)
	}
	return s.store(obj, "blob")
}

// WriteTree stores t in git's tree order, where directories sort as if
// their name ended in "/".
func (s *Store) WriteTree(t *object.TreeObj) (object.Hash, error) {
	tree := gitobject.Tree{Entries: make([]gitobject.TreeEntry, 0, len(t.Entries))}
	for _, e := range t.Entries {
		mode, err := toFileMode(e.Mode)
		if err != nil {
			return "", fmt.Errorf("write tree: entry %q: %w", e.Name, err)
		}
		gh, ok := toGitHash(e.Hash)
		if !ok {
			return "", fmt.Errorf("write tree: entry %q: hash %q is not a git object id", e.Name, e.Hash)
		}
		tree.Entries = append(tree.Entries, gitobject.TreeEntry{Name: e.Name, Mode: mode, Hash: gh})
	}
	sort.Slice(tree.Entries, func(i, j int) bool {
		return gitSortKey(tree.Entries[i]) < gitSortKey(tree.Entries[j])
	})
	obj := s.repo.Storer.NewEncodedObject()
	if err := tree.Encode(obj); err != nil {
		return "", fmt.Errorf("write tree: %w", err)
	}
	return s.store(obj, "tree")
}

// WriteCommit stores c. Author and committer strings of the form
// "Name <email>" become git signatures; a missing committer copies the
// author.
func (s *Store) WriteCommit(c *object.CommitObj) (object.Hash, error) {
	tree, ok := toGitHash(c.TreeHash)
	if !ok {
		return "", fmt.Errorf("write commit: tree %q is not a git object id", c.TreeHash)
	}
	committer, committed := c.Committer, c.CommitterTimestamp
	if strings.TrimSpace(committer) == "" {
		committer = c.Author
	}
	if committed == 0 {
		committed = c.Timestamp
	}
	commit := gitobject.Commit{
		Author:    parseSignature(c.Author, c.Timestamp),
		Committer: parseSignature(committer, committed),
		Message:   c.Message,
		TreeHash:  tree,
	}
	for _, p := range c.Parents {
		gp, ok := toGitHash(p)
		if !ok {
			return "", fmt.Errorf("write commit: parent %q is not a git object id", p)
		}
		commit.ParentHashes = append(commit.ParentHashes, gp)
	}
	obj := s.repo.Storer.NewEncodedObject()
	if err := commit.Encode(obj); err != nil {
		return "", fmt.Errorf("write commit: %w", err)
	}
	return s.store(obj, "commit")
}

func (s *Store) store(obj plumbing.EncodedObject, kind string) (object.Hash, error) {
	h, err := s.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return "", fmt.Errorf("write %s: %w", kind, err)
	}
	return fromGitHash(h), nil
}

// ReadRef resolves name to a commit, following symbolic references.
func (s *Store) ReadRef(name string) (object.Hash, error) {
	ref, err := s.repo.Reference(plumbing.ReferenceName(name), true)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return "", fmt.Errorf("read ref %q: %w", name, refs.ErrRefNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("read ref %q: %w", name, err)
	}
	return fromGitHash(ref.Hash()), nil
}

// CompareAndSwapRef moves name from expectedOld to newHash. git keeps no
// reflog through go-git, so reason is not recorded.
func (s *Store) CompareAndSwapRef(name string, expectedOld, newHash object.Hash, reason string) error {
	if err := refs.ValidateName(name); err != nil {
		return fmt.Errorf("update ref: %w", err)
	}
	target, ok := toGitHash(newHash)
	if !ok {
		return fmt.Errorf("update ref %q: hash %q is not a git object id", name, newHash)
	}
	refName := plumbing.ReferenceName(name)

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.repo.Storer.Reference(refName)
	if err != nil && !errors.Is(err, plumbing.ErrReferenceNotFound) {
		return fmt.Errorf("update ref %q: %w", name, err)
	}
	var found object.Hash
	if current != nil {
		found = fromGitHash(current.Hash())
	}
	if found != expectedOld {
		return refs.RaceError(name, expectedOld, found)
	}

	var old *plumbing.Reference
	if expectedOld != "" {
		gh, _ := toGitHash(expectedOld)
		old = plumbing.NewHashReference(refName, gh)
	}
	err = s.repo.Storer.CheckAndSetReference(plumbing.NewHashReference(refName, target), old)
	if errors.Is(err, storage.ErrReferenceHasChanged) {
		return refs.RaceError(name, expectedOld, "")
	}
	if err != nil {
		return fmt.Errorf("update ref %q: %w", name, err)
	}
	return nil
}

// DeleteRef removes name when it points at expectedOld.
func (s *Store) DeleteRef(name string, expectedOld object.Hash, reason string) error {
	if err := refs.ValidateName(name); err != nil {
		return fmt.Errorf("delete ref: %w", err)
	}
	refName := plumbing.ReferenceName(name)

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.repo.Storer.Reference(refName)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return fmt.Errorf("delete ref %q: %w", name, refs.ErrRefNotFound)
	}
	if err != nil {
		return fmt.Errorf("delete ref %q: %w", name, err)
	}
	if found := fromGitHash(current.Hash()); current.Type() != plumbing.HashReference || found != expectedOld {
		return refs.RaceError(name, expectedOld, found)
	}
	if err := s.repo.Storer.RemoveReference(refName); err != nil {
		return fmt.Errorf("delete ref %q: %w", name, err)
	}
	return nil
}

// ListRefs returns the references under prefix with symbolic references
// resolved. HEAD is skipped.
func (s *Store) ListRefs(prefix string) ([]refs.Ref, error) {
	iter, err := s.repo.References()
	if err != nil {
		return nil, fmt.Errorf("list refs: %w", err)
	}
	defer iter.Close()

	var out []refs.Ref
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		name := ref.Name().String()
		if ref.Name() == plumbing.HEAD || !strings.HasPrefix(name, prefix) {
			return nil
		}
		if ref.Type() == plumbing.SymbolicReference {
			resolved, err := s.repo.Reference(ref.Name(), true)
			if err != nil {
				return nil
			}
			ref = resolved
		}
		out = append(out, refs.Ref{Name: name, Hash: fromGitHash(ref.Hash())})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list refs: %w", err)
	}
	refs.SortRefs(out)
	return out, nil
}

func formatSignature(sig gitobject.Signature) string {
	if sig.Email == "" {
		return sig.Name
	}
	return fmt.Sprintf("%s <%s>", sig.Name, sig.Email)
}

func parseSignature(s string, unix int64) gitobject.Signature {
	sig := gitobject.Signature{Name: strings.TrimSpace(s), When: time.Unix(unix, 0).UTC()}
	open := strings.LastIndex(s, "<")
	end := strings.LastIndex(s, ">")
	if open >= 0 && end > open {
		sig.Name = strings.TrimSpace(s[:open])
		sig.Email = s[open+1 : end]
	}
	return sig
}

func fromFileMode(m filemode.FileMode) (string, error) {
	switch m {
	case filemode.Dir:
		return object.TreeModeDir, nil
	case filemode.Regular, filemode.Deprecated:
		return object.TreeModeFile, nil
	case filemode.Executable:
		return object.TreeModeExecutable, nil
	case filemode.Symlink:
		return object.TreeModeSymlink, nil
	case filemode.Submodule:
		return object.TreeModeGitlink, nil
	default:
		return "", fmt.Errorf("unsupported file mode %s", m)
	}
}

func toFileMode(mode string) (filemode.FileMode, error) {
	switch mode {
	case object.TreeModeDir:
		return filemode.Dir, nil
	case object.TreeModeFile, "":
		return filemode.Regular, nil
	case object.TreeModeExecutable:
		return filemode.Executable, nil
	case object.TreeModeSymlink:
		return filemode.Symlink, nil
	case object.TreeModeGitlink:
		return filemode.Submodule, nil
	default:
		return filemode.Empty, fmt.Errorf("unsupported mode %q", mode)
	}
}

func gitSortKey(e gitobject.TreeEntry) string {
	if e.Mode == filemode.Dir {
		return e.Name + "/"
	}
	return e.Name
}

// SymbolicHead returns the branch HEAD points at, or "" when HEAD is
// detached or missing.
func (s *Store) SymbolicHead() (string, error) {
	head, err := s.repo.Storer.Reference(plumbing.HEAD)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("head: %w", err)
	}
	if head.Type() != plumbing.SymbolicReference {
		return "", nil
	}
	return head.Target().String(), nil
}

// SetSymbolicHead points HEAD at a branch ref.
func (s *Store) SetSymbolicHead(target string) error {
	if err := refs.ValidateName(target); err != nil {
		return fmt.Errorf("set HEAD: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ref := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.ReferenceName(target))
	if err := s.repo.Storer.SetReference(ref); err != nil {
		return fmt.Errorf("set HEAD: %w", err)
	}
	return nil
}
