package object

import "sync"

type memObject struct {
	objType ObjectType
	data    []byte
}

// MemStore is an in-memory object store. The zero value is not usable; use
// NewMemStore.
type MemStore struct {
	Typed
	alg Algorithm

	mu      sync.RWMutex
	objects map[Hash]memObject
}

// NewMemStore creates an empty in-memory store hashing with alg.
func NewMemStore(alg Algorithm) *MemStore {
	if alg == "" {
		alg = SHA256
	}
	s := &MemStore{alg: alg, objects: make(map[Hash]memObject)}
	s.Typed = Typed{Raw: s}
	return s
}

// Algorithm reports the digest used for new objects.
func (s *MemStore) Algorithm() Algorithm { return s.alg }

// Write stores a serialized object.
func (s *MemStore) Write(objType ObjectType, data []byte) (Hash, error) {
	h := s.alg.HashObject(objType, data)
	s.mu.Lock()
	if _, ok := s.objects[h]; !ok {
		cp := make([]byte, len(data))
		copy(cp, data)
		s.objects[h] = memObject{objType: objType, data: cp}
	}
	s.mu.Unlock()
	return h, nil
}

// Read returns a serialized object.
func (s *MemStore) Read(h Hash) (ObjectType, []byte, error) {
	s.mu.RLock()
	obj, ok := s.objects[h]
	s.mu.RUnlock()
	if !ok {
		return "", nil, NotFound(h)
	}
	return obj.objType, obj.data, nil
}

// Has reports whether h is stored.
func (s *MemStore) Has(h Hash) bool {
	s.mu.RLock()
	_, ok := s.objects[h]
	s.mu.RUnlock()
	return ok
}

// Len returns the number of stored objects.
func (s *MemStore) Len() int {
	s.mu.RLock()
	n := len(s.objects)
	s.mu.RUnlock()
	return n
}
