// Package refs stores named pointers to commits. Every backend updates
// references with an atomic compare-and-swap so concurrent writers cannot
// silently overwrite each other.
package refs

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/odvcencio/weave/pkg/object"
)

var (
	// ErrRefNotFound is returned by ReadRef for a reference that does not exist.
	ErrRefNotFound = errors.New("ref not found")
	// ErrRefUpdateRace is returned when the reference no longer holds the
	// expected prior value. Callers should re-resolve and retry.
	ErrRefUpdateRace = errors.New("ref update race")
	// ErrRefUpdatedButReflogAppendFailed is matched by UpdateReflogError.
	ErrRefUpdatedButReflogAppendFailed = errors.New("ref updated but reflog append failed")
)

// Store is a reference store.
type Store interface {
	// ReadRef returns the commit a reference points at.
	ReadRef(name string) (object.Hash, error)
	// CompareAndSwapRef moves name from expectedOld to newHash. An empty
	// expectedOld requires that the reference does not exist yet. reason is
	// recorded in the reflog where the backend keeps one.
	CompareAndSwapRef(name string, expectedOld, newHash object.Hash, reason string) error
}

// Ref is a named reference and the hash it points at.
type Ref struct {
	Name string
	Hash object.Hash
}

// Lister is implemented by stores that can enumerate their references.
type Lister interface {
	// ListRefs returns every reference whose name starts with prefix,
	// sorted by name. HEAD is never listed.
	ListRefs(prefix string) ([]Ref, error)
}

// Deleter is implemented by stores that can remove references.
type Deleter interface {
	// DeleteRef removes name if it still points at expectedOld.
	DeleteRef(name string, expectedOld object.Hash, reason string) error
}

// LogEntry is one reflog record.
type LogEntry struct {
	Ref       string
	OldHash   object.Hash
	NewHash   object.Hash
	Timestamp int64
	Reason    string
}

// Logger is implemented by stores that keep a reflog.
type Logger interface {
	ReadReflog(name string, limit int) ([]LogEntry, error)
}

// UpdateReflogError indicates the ref update succeeded, but appending the
// corresponding reflog entry failed.
type UpdateReflogError struct {
	Ref     string
	OldHash object.Hash
	NewHash object.Hash
	Err     error
}

func (e *UpdateReflogError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf(
		"update ref %q: %s (old=%s new=%s): %v",
		e.Ref,
		ErrRefUpdatedButReflogAppendFailed,
		e.OldHash,
		e.NewHash,
		e.Err,
	)
}

func (e *UpdateReflogError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *UpdateReflogError) Is(target error) bool {
	return target == ErrRefUpdatedButReflogAppendFailed
}

// NormalizeName expands a short branch name to refs/heads/<name>. HEAD and
// names already under refs/ are returned unchanged.
func NormalizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "HEAD" || strings.HasPrefix(name, "refs/") {
		return name
	}
	return "refs/heads/" + name
}

// ValidateName rejects names that could escape the ref namespace.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("ref name is required")
	}
	if name != "HEAD" && !strings.HasPrefix(name, "refs/") {
		return fmt.Errorf("ref name %q must be HEAD or start with refs/", name)
	}
	for _, part := range strings.Split(name, "/") {
		if part == "" || part == "." || part == ".." || strings.HasSuffix(part, ".lock") {
			return fmt.Errorf("invalid ref name %q", name)
		}
	}
	return nil
}

// SortRefs orders refs by name.
func SortRefs(rs []Ref) {
	sort.Slice(rs, func(i, j int) bool { return rs[i].Name < rs[j].Name })
}

// RaceError reports a failed compare-and-swap on name. It wraps
// ErrRefUpdateRace.
func RaceError(name string, expected, found object.Hash) error {
	return fmt.Errorf(
		"update ref %q: %w (expected %s, found %s)",
		name,
		ErrRefUpdateRace,
		displayHash(expected),
		displayHash(found),
	)
}

func displayHash(h object.Hash) string {
	if h == "" {
		return "<none>"
	}
	return string(h)
}

const zeroHash = "0000000000000000000000000000000000000000000000000000000000000000"

// MarshalLogEntry renders e as a single reflog line:
//
//	old new unix-seconds reason
//
// Missing hashes are written as zeros. Newlines in the reason are flattened.
func MarshalLogEntry(e LogEntry) string {
	reason := strings.TrimSpace(e.Reason)
	if reason == "" {
		reason = "update"
	}
	reason = strings.ReplaceAll(reason, "\n", " ")
	return fmt.Sprintf("%s %s %d %s", hashOrZero(e.OldHash), hashOrZero(e.NewHash), e.Timestamp, reason)
}

// ParseLogEntry parses a line written by MarshalLogEntry.
func ParseLogEntry(ref, line string) (LogEntry, bool) {
	parts := strings.SplitN(strings.TrimSpace(line), " ", 4)
	if len(parts) < 4 {
		return LogEntry{}, false
	}
	ts, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return LogEntry{}, false
	}
	return LogEntry{
		Ref:       ref,
		OldHash:   zeroOrHash(parts[0]),
		NewHash:   zeroOrHash(parts[1]),
		Timestamp: ts,
		Reason:    parts[3],
	}, true
}

func hashOrZero(h object.Hash) string {
	if h == "" {
		return zeroHash
	}
	return string(h)
}

func zeroOrHash(s string) object.Hash {
	if strings.Trim(s, "0") == "" {
		return ""
	}
	return object.Hash(s)
}
