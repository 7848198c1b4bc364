package refs

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/odvcencio/weave/pkg/object"
)

const (
	refLockRetryDelay = 5 * time.Millisecond
	refLockWaitLimit  = 2 * time.Second
)

// FileStore keeps one file per reference under dir (dir/refs/heads/main)
// and an append-only reflog under dir/logs.
type FileStore struct {
	dir string
}

var (
	_ Store   = (*FileStore)(nil)
	_ Logger  = (*FileStore)(nil)
	_ Lister  = (*FileStore)(nil)
	_ Deleter = (*FileStore)(nil)
)

// NewFileStore returns a store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// ReadRef resolves a ref name to an object hash. A symbolic HEAD
// ("ref: refs/heads/main") is followed one level.
func (s *FileStore) ReadRef(name string) (object.Hash, error) {
	if err := ValidateName(name); err != nil {
		return "", fmt.Errorf("read ref: %w", err)
	}
	data, err := os.ReadFile(filepath.Join(s.dir, filepath.FromSlash(name)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("read ref %q: %w", name, ErrRefNotFound)
		}
		return "", fmt.Errorf("read ref %q: %w", name, err)
	}
	content := strings.TrimSpace(string(data))
	if target, ok := strings.CutPrefix(content, "ref: "); ok && name == "HEAD" {
		return s.ReadRef(target)
	}
	if content == "" {
		return "", fmt.Errorf("read ref %q: %w", name, ErrRefNotFound)
	}
	return object.Hash(content), nil
}

// SymbolicHead returns the branch HEAD points at, or "" when HEAD is
// detached or missing.
func (s *FileStore) SymbolicHead() (string, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, "HEAD"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("head: %w", err)
	}
	target, ok := strings.CutPrefix(strings.TrimSpace(string(data)), "ref: ")
	if !ok {
		return "", nil
	}
	return target, nil
}

// SetSymbolicHead points HEAD at a branch ref.
func (s *FileStore) SetSymbolicHead(target string) error {
	if err := ValidateName(target); err != nil {
		return fmt.Errorf("set HEAD: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("set HEAD: mkdir: %w", err)
	}
	return os.WriteFile(filepath.Join(s.dir, "HEAD"), []byte("ref: "+target+"\n"), 0o644)
}

// CompareAndSwapRef writes a hash to the named ref file using lockfile +
// rename atomic semantics. The update only succeeds when the current ref
// hash matches expectedOld.
//
// Reflog append happens after the ref rename; if reflog append fails, the ref
// update remains committed and an UpdateReflogError is returned.
func (s *FileStore) CompareAndSwapRef(name string, expectedOld, newHash object.Hash, reason string) error {
	if err := ValidateName(name); err != nil {
		return fmt.Errorf("update ref: %w", err)
	}
	refPath := filepath.Join(s.dir, filepath.FromSlash(name))

	if err := os.MkdirAll(filepath.Dir(refPath), 0o755); err != nil {
		return fmt.Errorf("update ref %q: mkdir: %w", name, err)
	}

	lockPath := refPath + ".lock"
	lockFile, err := acquireRefLock(lockPath)
	if err != nil {
		return fmt.Errorf("update ref %q: lock: %w", name, err)
	}
	cleanupLock := true
	defer func() {
		if lockFile != nil {
			_ = lockFile.Close()
		}
		if cleanupLock {
			_ = os.Remove(lockPath)
		}
	}()

	oldHash, err := readRefHash(refPath)
	if err != nil {
		return fmt.Errorf("update ref %q: read old hash: %w", name, err)
	}
	if oldHash != expectedOld {
		return RaceError(name, expectedOld, oldHash)
	}

	if _, err := lockFile.WriteString(string(newHash) + "\n"); err != nil {
		return fmt.Errorf("update ref %q: write: %w", name, err)
	}
	if err := lockFile.Sync(); err != nil {
		return fmt.Errorf("update ref %q: sync: %w", name, err)
	}
	if err := lockFile.Close(); err != nil {
		lockFile = nil
		return fmt.Errorf("update ref %q: close: %w", name, err)
	}
	lockFile = nil

	if err := os.Rename(lockPath, refPath); err != nil {
		return fmt.Errorf("update ref %q: rename: %w", name, err)
	}
	cleanupLock = false

	if err := s.appendReflog(name, oldHash, newHash, reason); err != nil {
		return &UpdateReflogError{
			Ref:     name,
			OldHash: oldHash,
			NewHash: newHash,
			Err:     err,
		}
	}
	return nil
}

// DeleteRef removes the ref file under the same lock CompareAndSwapRef
// uses. The deletion is recorded in the reflog.
func (s *FileStore) DeleteRef(name string, expectedOld object.Hash, reason string) error {
	if err := ValidateName(name); err != nil {
		return fmt.Errorf("delete ref: %w", err)
	}
	if name == "HEAD" {
		return fmt.Errorf("delete ref: refusing to delete HEAD")
	}
	refPath := filepath.Join(s.dir, filepath.FromSlash(name))
	lockPath := refPath + ".lock"
	if err := os.MkdirAll(filepath.Dir(refPath), 0o755); err != nil {
		return fmt.Errorf("delete ref %q: mkdir: %w", name, err)
	}
	lockFile, err := acquireRefLock(lockPath)
	if err != nil {
		return fmt.Errorf("delete ref %q: lock: %w", name, err)
	}
	defer func() {
		_ = lockFile.Close()
		_ = os.Remove(lockPath)
	}()

	oldHash, err := readRefHash(refPath)
	if err != nil {
		return fmt.Errorf("delete ref %q: read old hash: %w", name, err)
	}
	if oldHash == "" {
		return fmt.Errorf("delete ref %q: %w", name, ErrRefNotFound)
	}
	if oldHash != expectedOld {
		return RaceError(name, expectedOld, oldHash)
	}
	if err := os.Remove(refPath); err != nil {
		return fmt.Errorf("delete ref %q: %w", name, err)
	}
	if err := s.appendReflog(name, oldHash, "", reason); err != nil {
		return &UpdateReflogError{Ref: name, OldHash: oldHash, Err: err}
	}
	return nil
}

// ListRefs walks dir/refs and returns the references under prefix.
func (s *FileStore) ListRefs(prefix string) ([]Ref, error) {
	root := filepath.Join(s.dir, "refs")
	var out []Ref
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || strings.HasSuffix(path, ".lock") {
			return nil
		}
		rel, err := filepath.Rel(s.dir, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if !strings.HasPrefix(name, prefix) {
			return nil
		}
		h, err := readRefHash(path)
		if err != nil {
			return err
		}
		if h != "" {
			out = append(out, Ref{Name: name, Hash: h})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list refs: %w", err)
	}
	SortRefs(out)
	return out, nil
}

func acquireRefLock(lockPath string) (*os.File, error) {
	deadline := time.Now().Add(refLockWaitLimit)
	for {
		f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, nil
		}
		if os.IsExist(err) {
			if time.Now().After(deadline) {
				return nil, fmt.Errorf("timeout waiting for lock %q", lockPath)
			}
			time.Sleep(refLockRetryDelay)
			continue
		}
		return nil, err
	}
}

func readRefHash(refPath string) (object.Hash, error) {
	data, err := os.ReadFile(refPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return object.Hash(strings.TrimSpace(string(data))), nil
}

func (s *FileStore) appendReflog(ref string, oldHash, newHash object.Hash, reason string) error {
	logPath := filepath.Join(s.dir, "logs", filepath.FromSlash(ref))
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return fmt.Errorf("reflog mkdir: %w", err)
	}

	line := MarshalLogEntry(LogEntry{
		OldHash:   oldHash,
		NewHash:   newHash,
		Timestamp: time.Now().Unix(),
		Reason:    reason,
	}) + "\n"

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("reflog open: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("reflog write: %w", err)
	}
	return nil
}

// ReadReflog returns reflog entries for name, newest first.
func (s *FileStore) ReadReflog(name string, limit int) ([]LogEntry, error) {
	if err := ValidateName(name); err != nil {
		return nil, fmt.Errorf("read reflog: %w", err)
	}
	f, err := os.Open(filepath.Join(s.dir, "logs", filepath.FromSlash(name)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read reflog: %w", err)
	}
	defer f.Close()

	var entries []LogEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if e, ok := ParseLogEntry(name, scanner.Text()); ok {
			entries = append(entries, e)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read reflog: %w", err)
	}

	// Return newest first.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}
