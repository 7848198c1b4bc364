package object

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// RawStore reads and writes serialized objects. Backends implement RawStore
// and get the typed Store methods through Typed.
type RawStore interface {
	Read(h Hash) (ObjectType, []byte, error)
	Write(objType ObjectType, data []byte) (Hash, error)
}

// Typed adapts a RawStore to Store.
type Typed struct {
	Raw RawStore
}

var _ Store = Typed{}

// WriteBlob serializes and stores a Blob.
func (t Typed) WriteBlob(b *Blob) (Hash, error) {
	return t.Raw.Write(TypeBlob, MarshalBlob(b))
}

// ReadBlob reads and deserializes a Blob.
func (t Typed) ReadBlob(h Hash) (*Blob, error) {
	data, err := t.readType(h, TypeBlob)
	if err != nil {
		return nil, err
	}
	return UnmarshalBlob(data)
}

// WriteTree serializes and stores a TreeObj.
func (t Typed) WriteTree(tr *TreeObj) (Hash, error) {
	return t.Raw.Write(TypeTree, MarshalTree(tr))
}

// ReadTree reads and deserializes a TreeObj.
func (t Typed) ReadTree(h Hash) (*TreeObj, error) {
	data, err := t.readType(h, TypeTree)
	if err != nil {
		return nil, err
	}
	return UnmarshalTree(data)
}

// WriteCommit serializes and stores a CommitObj.
func (t Typed) WriteCommit(c *CommitObj) (Hash, error) {
	return t.Raw.Write(TypeCommit, MarshalCommit(c))
}

// ReadCommit reads and deserializes a CommitObj.
func (t Typed) ReadCommit(h Hash) (*CommitObj, error) {
	data, err := t.readType(h, TypeCommit)
	if err != nil {
		return nil, err
	}
	return UnmarshalCommit(data)
}

func (t Typed) readType(h Hash, want ObjectType) ([]byte, error) {
	objType, data, err := t.Raw.Read(h)
	if err != nil {
		return nil, err
	}
	if objType != want {
		return nil, fmt.Errorf("object %s: type mismatch: got %q, want %q", h, objType, want)
	}
	return data, nil
}

// Envelope builds the canonical "type len\0content" encoding.
func Envelope(objType ObjectType, data []byte) []byte {
	header := fmt.Sprintf("%s %d\x00", objType, len(data))
	raw := make([]byte, 0, len(header)+len(data))
	raw = append(raw, header...)
	return append(raw, data...)
}

// ParseEnvelope splits a "type len\0content" encoding.
func ParseEnvelope(h Hash, raw []byte) (ObjectType, []byte, error) {
	nulIdx := bytes.IndexByte(raw, 0)
	if nulIdx < 0 {
		return "", nil, fmt.Errorf("object read %s: invalid format (no NUL)", h)
	}
	header := string(raw[:nulIdx])
	content := raw[nulIdx+1:]

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return "", nil, fmt.Errorf("object read %s: invalid header %q", h, header)
	}
	objType := ObjectType(parts[0])
	length, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", nil, fmt.Errorf("object read %s: invalid length %q: %w", h, parts[1], err)
	}
	if len(content) != length {
		return "", nil, fmt.Errorf("object read %s: length mismatch (header=%d, actual=%d)", h, length, len(content))
	}
	return objType, content, nil
}
