// Package badgerstore keeps objects and references in a Badger database.
// Object values are zstd-compressed envelopes keyed by hash; references are
// updated inside optimistic transactions, so a concurrent writer surfaces as
// refs.ErrRefUpdateRace.
package badgerstore

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/odvcencio/weave/internal/logging"
	"github.com/odvcencio/weave/pkg/object"
	"github.com/odvcencio/weave/pkg/refs"
)

const (
	objectPrefix = "obj/"
	refPrefix    = "ref/"
	logPrefix    = "log/"
)

// Store implements object.Store, refs.Store and refs.Logger.
type Store struct {
	object.Typed
	db  *badger.DB
	alg object.Algorithm
	now func() time.Time
	seq atomic.Uint64
}

var (
	_ object.Store = (*Store)(nil)
	_ refs.Store   = (*Store)(nil)
	_ refs.Logger  = (*Store)(nil)
	_ refs.Lister  = (*Store)(nil)
	_ refs.Deleter = (*Store)(nil)
)

// Open opens or creates a database in dir. Badger's own logging goes to log
// at warning level and above.
func Open(dir string, alg object.Algorithm, log logrus.FieldLogger) (*Store, error) {
	return open(badger.DefaultOptions(dir), alg, log)
}

// OpenInMemory opens a database that lives only in memory.
func OpenInMemory(alg object.Algorithm, log logrus.FieldLogger) (*Store, error) {
	return open(badger.DefaultOptions("").WithInMemory(true), alg, log)
}

func open(opts badger.Options, alg object.Algorithm, log logrus.FieldLogger) (*Store, error) {
	opts = opts.WithLogger(logging.OrDiscard(log)).WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}
	s := &Store{db: db, alg: alg, now: time.Now}
	s.Typed = object.Typed{Raw: s}
	return s, nil
}

// Close releases the database.
func (s *Store) Close() error { return s.db.Close() }

// Algorithm reports the object hash algorithm.
func (s *Store) Algorithm() object.Algorithm { return s.alg }

// Write stores a serialized object. Writing an existing object is a no-op.
func (s *Store) Write(objType object.ObjectType, data []byte) (object.Hash, error) {
	h := s.alg.HashObject(objType, data)
	key := []byte(objectPrefix + string(h))
	value, err := object.CompressZstd(object.Envelope(objType, data))
	if err != nil {
		return "", fmt.Errorf("write object %s: %w", h, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err == nil {
			return nil
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, value)
	})
	if errors.Is(err, badger.ErrConflict) {
		// Another writer stored the same content first.
		return h, nil
	}
	if err != nil {
		return "", fmt.Errorf("write object %s: %w", h, err)
	}
	return h, nil
}

// Read returns the type and payload of an object.
func (s *Store) Read(h object.Hash) (object.ObjectType, []byte, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(objectPrefix + string(h)))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", nil, object.NotFound(h)
	}
	if err != nil {
		return "", nil, fmt.Errorf("read object %s: %w", h, err)
	}
	raw, err := object.DecompressZstd(value)
	if err != nil {
		return "", nil, fmt.Errorf("read object %s: %w", h, err)
	}
	return object.ParseEnvelope(h, raw)
}

// ReadRef returns the commit name points at.
func (s *Store) ReadRef(name string) (object.Hash, error) {
	var h object.Hash
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		h, err = readRef(txn, name)
		return err
	})
	if err != nil {
		return "", err
	}
	if h == "" {
		return "", fmt.Errorf("read ref %q: %w", name, refs.ErrRefNotFound)
	}
	return h, nil
}

func readRef(txn *badger.Txn, name string) (object.Hash, error) {
	item, err := txn.Get([]byte(refPrefix + name))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read ref %q: %w", name, err)
	}
	v, err := item.ValueCopy(nil)
	if err != nil {
		return "", fmt.Errorf("read ref %q: %w", name, err)
	}
	return object.Hash(v), nil
}

// CompareAndSwapRef moves name from expectedOld to newHash and appends a
// reflog entry in the same transaction.
func (s *Store) CompareAndSwapRef(name string, expectedOld, newHash object.Hash, reason string) error {
	if err := refs.ValidateName(name); err != nil {
		return fmt.Errorf("update ref: %w", err)
	}
	var current object.Hash
	now := s.now()
	err := s.db.Update(func(txn *badger.Txn) error {
		var err error
		current, err = readRef(txn, name)
		if err != nil {
			return err
		}
		if current != expectedOld {
			return refs.RaceError(name, expectedOld, current)
		}
		if err := txn.Set([]byte(refPrefix+name), []byte(newHash)); err != nil {
			return err
		}
		return s.appendLog(txn, name, current, newHash, reason, now)
	})
	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("update ref %q: %w (concurrent transaction)", name, refs.ErrRefUpdateRace)
	}
	if err != nil && !errors.Is(err, refs.ErrRefUpdateRace) {
		return fmt.Errorf("update ref %q: %w", name, err)
	}
	return err
}

// DeleteRef removes name when it points at expectedOld and records the
// deletion in the reflog.
func (s *Store) DeleteRef(name string, expectedOld object.Hash, reason string) error {
	if err := refs.ValidateName(name); err != nil {
		return fmt.Errorf("delete ref: %w", err)
	}
	now := s.now()
	err := s.db.Update(func(txn *badger.Txn) error {
		current, err := readRef(txn, name)
		if err != nil {
			return err
		}
		if current == "" {
			return fmt.Errorf("delete ref %q: %w", name, refs.ErrRefNotFound)
		}
		if current != expectedOld {
			return refs.RaceError(name, expectedOld, current)
		}
		if err := txn.Delete([]byte(refPrefix + name)); err != nil {
			return err
		}
		return s.appendLog(txn, name, current, "", reason, now)
	})
	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("delete ref %q: %w (concurrent transaction)", name, refs.ErrRefUpdateRace)
	}
	if err != nil && !errors.Is(err, refs.ErrRefUpdateRace) && !errors.Is(err, refs.ErrRefNotFound) {
		return fmt.Errorf("delete ref %q: %w", name, err)
	}
	return err
}

func (s *Store) appendLog(txn *badger.Txn, name string, oldHash, newHash object.Hash, reason string, at time.Time) error {
	line := refs.MarshalLogEntry(refs.LogEntry{
		OldHash:   oldHash,
		NewHash:   newHash,
		Timestamp: at.Unix(),
		Reason:    reason,
	})
	return txn.Set(s.logKey(name, at), []byte(line))
}

// logKey orders entries by time, then by a per-store sequence so two
// updates in the same nanosecond keep separate entries.
func (s *Store) logKey(name string, at time.Time) []byte {
	return []byte(fmt.Sprintf("%s%s\x00%020d.%020d", logPrefix, name, at.UnixNano(), s.seq.Add(1)))
}

// ReadReflog returns entries for name, newest first. limit <= 0 returns all.
func (s *Store) ReadReflog(name string, limit int) ([]refs.LogEntry, error) {
	prefix := []byte(logPrefix + name + "\x00")
	var out []refs.LogEntry
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(append([]byte(nil), prefix...), 0xff)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			v, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			if e, ok := refs.ParseLogEntry(name, string(v)); ok {
				out = append(out, e)
			}
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read reflog %q: %w", name, err)
	}
	return out, nil
}

// ListRefs returns every reference whose name starts with prefix, sorted
// by name.
func (s *Store) ListRefs(prefix string) ([]refs.Ref, error) {
	var out []refs.Ref
	err := s.db.View(func(txn *badger.Txn) error {
		p := []byte(refPrefix + prefix)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = p
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.ValidForPrefix(p); it.Next() {
			name := strings.TrimPrefix(string(it.Item().Key()), refPrefix)
			if name == "HEAD" {
				continue
			}
			v, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			out = append(out, refs.Ref{Name: name, Hash: object.Hash(v)})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list refs: %w", err)
	}
	return out, nil
}
