package refs

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/odvcencio/weave/pkg/object"
)

// MemStore is an in-memory reference store with a reflog.
type MemStore struct {
	mu   sync.Mutex
	refs map[string]object.Hash
	logs map[string][]LogEntry
	now  func() time.Time
}

var (
	_ Store   = (*MemStore)(nil)
	_ Logger  = (*MemStore)(nil)
	_ Lister  = (*MemStore)(nil)
	_ Deleter = (*MemStore)(nil)
)

// NewMemStore returns an empty reference store.
func NewMemStore() *MemStore {
	return &MemStore{
		refs: make(map[string]object.Hash),
		logs: make(map[string][]LogEntry),
		now:  time.Now,
	}
}

// ReadRef returns the hash stored under name.
func (s *MemStore) ReadRef(name string) (object.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.refs[name]
	if !ok {
		return "", fmt.Errorf("read ref %q: %w", name, ErrRefNotFound)
	}
	return h, nil
}

// CompareAndSwapRef atomically moves name from expectedOld to newHash.
func (s *MemStore) CompareAndSwapRef(name string, expectedOld, newHash object.Hash, reason string) error {
	if err := ValidateName(name); err != nil {
		return fmt.Errorf("update ref: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.refs[name]
	if current != expectedOld {
		return RaceError(name, expectedOld, current)
	}
	s.refs[name] = newHash
	s.appendLog(name, current, newHash, reason)
	return nil
}

// DeleteRef removes name when it points at expectedOld.
func (s *MemStore) DeleteRef(name string, expectedOld object.Hash, reason string) error {
	if err := ValidateName(name); err != nil {
		return fmt.Errorf("delete ref: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.refs[name]
	if !ok {
		return fmt.Errorf("delete ref %q: %w", name, ErrRefNotFound)
	}
	if current != expectedOld {
		return RaceError(name, expectedOld, current)
	}
	delete(s.refs, name)
	s.appendLog(name, current, "", reason)
	return nil
}

func (s *MemStore) appendLog(name string, oldHash, newHash object.Hash, reason string) {
	if reason == "" {
		reason = "update"
	}
	s.logs[name] = append(s.logs[name], LogEntry{
		Ref:       name,
		OldHash:   oldHash,
		NewHash:   newHash,
		Timestamp: s.now().Unix(),
		Reason:    reason,
	})
}

// ListRefs returns the references under prefix, sorted by name.
func (s *MemStore) ListRefs(prefix string) ([]Ref, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Ref
	for name, h := range s.refs {
		if name == "HEAD" || !strings.HasPrefix(name, prefix) {
			continue
		}
		out = append(out, Ref{Name: name, Hash: h})
	}
	SortRefs(out)
	return out, nil
}

// ReadReflog returns reflog entries for name, newest first.
func (s *MemStore) ReadReflog(name string, limit int) ([]LogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src := s.logs[name]
	out := make([]LogEntry, 0, len(src))
	for i := len(src) - 1; i >= 0; i-- {
		out = append(out, src[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
