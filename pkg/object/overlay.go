package object

import "errors"

// Overlay keeps new objects in memory on top of a read-only base. Reads
// check the in-memory layer first, then fall through to the base. Nothing is
// ever written to the base.
type Overlay struct {
	base  Reader
	layer *MemStore
}

var _ Store = (*Overlay)(nil)

// NewOverlay creates an overlay over base. Objects written to the overlay
// are hashed with alg, which should match the base store's algorithm.
func NewOverlay(base Reader, alg Algorithm) *Overlay {
	return &Overlay{base: base, layer: NewMemStore(alg)}
}

// Algorithm reports the hash algorithm of new objects.
func (o *Overlay) Algorithm() Algorithm { return o.layer.Algorithm() }

func (o *Overlay) ReadCommit(h Hash) (*CommitObj, error) {
	c, err := o.layer.ReadCommit(h)
	if errors.Is(err, ErrObjectNotFound) {
		return o.base.ReadCommit(h)
	}
	return c, err
}

func (o *Overlay) ReadTree(h Hash) (*TreeObj, error) {
	t, err := o.layer.ReadTree(h)
	if errors.Is(err, ErrObjectNotFound) {
		return o.base.ReadTree(h)
	}
	return t, err
}

func (o *Overlay) ReadBlob(h Hash) (*Blob, error) {
	b, err := o.layer.ReadBlob(h)
	if errors.Is(err, ErrObjectNotFound) {
		return o.base.ReadBlob(h)
	}
	return b, err
}

func (o *Overlay) WriteBlob(b *Blob) (Hash, error)        { return o.layer.WriteBlob(b) }
func (o *Overlay) WriteTree(t *TreeObj) (Hash, error)     { return o.layer.WriteTree(t) }
func (o *Overlay) WriteCommit(c *CommitObj) (Hash, error) { return o.layer.WriteCommit(c) }
