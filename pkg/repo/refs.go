package repo

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/odvcencio/weave/pkg/object"
	"github.com/odvcencio/weave/pkg/refs"
)

// ErrUnsupported is returned when the ref backend lacks an operation.
var ErrUnsupported = errors.New("operation not supported by ref backend")

// ErrCurrentBranch is returned when deleting the branch HEAD points at.
var ErrCurrentBranch = errors.New("cannot delete the checked out branch")

type symbolicHeadSetter interface {
	SetSymbolicHead(target string) error
}

// ListRefs returns the refs under prefix, sorted by name.
func (r *Repo) ListRefs(prefix string) ([]refs.Ref, error) {
	l, ok := r.Refs.(refs.Lister)
	if !ok {
		return nil, fmt.Errorf("list refs: %w", ErrUnsupported)
	}
	return l.ListRefs(prefix)
}

// DeleteBranch removes a branch and returns the commit it pointed at.
func (r *Repo) DeleteBranch(name string) (object.Hash, error) {
	ref := refs.NormalizeName(name)
	if err := refs.ValidateName(ref); err != nil || ref == "HEAD" {
		return "", fmt.Errorf("delete branch: invalid name %q", name)
	}
	d, ok := r.Refs.(refs.Deleter)
	if !ok {
		return "", fmt.Errorf("delete branch: %w", ErrUnsupported)
	}
	if head, err := r.HeadRef(); err == nil && head == ref {
		return "", fmt.Errorf("delete branch %q: %w", name, ErrCurrentBranch)
	}
	h, err := r.Refs.ReadRef(ref)
	if err != nil {
		return "", fmt.Errorf("delete branch: %w", err)
	}
	if err := d.DeleteRef(ref, h, "branch: deleted"); err != nil {
		return "", fmt.Errorf("delete branch: %w", err)
	}
	r.Log.WithFields(logrus.Fields{"ref": ref, "was": h.Short()}).Info("branch deleted")
	return h, nil
}

// RenameBranch moves a branch to a new name. HEAD follows the branch when
// it pointed at the old name.
func (r *Repo) RenameBranch(oldName, newName string) error {
	oldRef, newRef := refs.NormalizeName(oldName), refs.NormalizeName(newName)
	for _, ref := range []string{oldRef, newRef} {
		if err := refs.ValidateName(ref); err != nil || ref == "HEAD" {
			return fmt.Errorf("rename branch: invalid name %q", ref)
		}
	}
	d, ok := r.Refs.(refs.Deleter)
	if !ok {
		return fmt.Errorf("rename branch: %w", ErrUnsupported)
	}
	h, err := r.Refs.ReadRef(oldRef)
	if err != nil {
		return fmt.Errorf("rename branch: %w", err)
	}
	reason := fmt.Sprintf("branch: renamed %s to %s", oldRef, newRef)
	if err := r.Refs.CompareAndSwapRef(newRef, "", h, reason); err != nil {
		return fmt.Errorf("rename branch: create %q: %w", newRef, err)
	}
	if err := d.DeleteRef(oldRef, h, reason); err != nil {
		if rbErr := d.DeleteRef(newRef, h, "branch: rename rolled back"); rbErr != nil {
			err = errors.Join(err, rbErr)
		}
		return fmt.Errorf("rename branch: remove %q: %w", oldRef, err)
	}
	if head, err := r.HeadRef(); err == nil && head == oldRef {
		if s, ok := r.Refs.(symbolicHeadSetter); ok {
			if err := s.SetSymbolicHead(newRef); err != nil {
				return fmt.Errorf("rename branch: %w", err)
			}
		}
	}
	r.Log.WithFields(logrus.Fields{"from": oldRef, "to": newRef}).Info("branch renamed")
	return nil
}
