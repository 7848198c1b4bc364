package object

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore is a content-addressed object store with a 2-character fan-out
// directory layout: objects/ab/cdef0123... Each file holds the zstd
// compressed "type len\0content" envelope.
type FileStore struct {
	Typed
	root string
	alg  Algorithm
}

// NewFileStore creates a FileStore rooted at the given directory. The
// objects/ subdirectory is created lazily on first write.
func NewFileStore(root string, alg Algorithm) *FileStore {
	if alg == "" {
		alg = SHA256
	}
	s := &FileStore{root: root, alg: alg}
	s.Typed = Typed{Raw: s}
	return s
}

// Algorithm reports the digest used for new objects.
func (s *FileStore) Algorithm() Algorithm { return s.alg }

// objectPath returns the filesystem path for a given hash.
func (s *FileStore) objectPath(h Hash) string {
	return filepath.Join(s.root, "objects", string(h[:2]), string(h[2:]))
}

// Has reports whether the store contains an object with the given hash.
func (s *FileStore) Has(h Hash) bool {
	if !h.Valid() {
		return false
	}
	_, err := os.Stat(s.objectPath(h))
	return err == nil
}

// Write stores an object and returns its content hash. Writes are atomic:
// data is written to a temp file and then renamed into place.
func (s *FileStore) Write(objType ObjectType, data []byte) (Hash, error) {
	h := s.alg.HashObject(objType, data)

	// Fast path: already exists.
	if s.Has(h) {
		return h, nil
	}

	compressed, err := CompressZstd(Envelope(objType, data))
	if err != nil {
		return "", fmt.Errorf("object write: %w", err)
	}

	dir := filepath.Join(s.root, "objects", string(h[:2]))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("object write mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("object write tmpfile: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(compressed); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("object write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("object write close: %w", err)
	}

	if err := os.Rename(tmpName, s.objectPath(h)); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("object write rename: %w", err)
	}

	return h, nil
}

// Read retrieves an object by hash, returning its type and raw content.
func (s *FileStore) Read(h Hash) (ObjectType, []byte, error) {
	if !h.Valid() {
		return "", nil, NotFound(h)
	}
	compressed, err := os.ReadFile(s.objectPath(h))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil, NotFound(h)
		}
		return "", nil, fmt.Errorf("object read %s: %w", h, err)
	}
	raw, err := DecompressZstd(compressed)
	if err != nil {
		return "", nil, fmt.Errorf("object read %s: decompress: %w", h, err)
	}
	return ParseEnvelope(h, raw)
}
