package repo

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/odvcencio/weave/pkg/object"
	"github.com/odvcencio/weave/pkg/refs"
)

// ErrUnknownRevision is returned by ResolveRevision for names that match no
// commit or reference.
var ErrUnknownRevision = errors.New("unknown revision")

type symbolicHead interface {
	SymbolicHead() (string, error)
}

// HeadRef returns the branch HEAD points at. Backends without a symbolic
// HEAD report DefaultBranch; a detached HEAD reports "HEAD".
func (r *Repo) HeadRef() (string, error) {
	sh, ok := r.Refs.(symbolicHead)
	if !ok {
		return DefaultBranch, nil
	}
	target, err := sh.SymbolicHead()
	if err != nil {
		return "", err
	}
	if target == "" {
		return "HEAD", nil
	}
	return target, nil
}

// ResolveRevision turns a user-supplied revision into a commit hash.
//
// Accepted forms are a full object hash, HEAD, a full ref name, a branch or
// tag name, each optionally followed by "^" (first parent) or "~N" (N-th
// first-parent ancestor) suffixes.
func (r *Repo) ResolveRevision(rev string) (object.Hash, error) {
	rev = strings.TrimSpace(rev)
	name, suffix := splitRevision(rev)
	if name == "" {
		return "", fmt.Errorf("resolve %q: %w", rev, ErrUnknownRevision)
	}

	h, err := r.resolveName(name)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", rev, err)
	}

	for suffix != "" {
		var steps int
		switch suffix[0] {
		case '^':
			steps, suffix = 1, suffix[1:]
		case '~':
			end := 1
			for end < len(suffix) && suffix[end] >= '0' && suffix[end] <= '9' {
				end++
			}
			steps = 1
			if end > 1 {
				n, err := strconv.Atoi(suffix[1:end])
				if err != nil {
					return "", fmt.Errorf("resolve %q: %w", rev, err)
				}
				steps = n
			}
			suffix = suffix[end:]
		default:
			return "", fmt.Errorf("resolve %q: %w", rev, ErrUnknownRevision)
		}
		for ; steps > 0; steps-- {
			c, err := r.Objects.ReadCommit(h)
			if err != nil {
				return "", fmt.Errorf("resolve %q: %w", rev, err)
			}
			if len(c.Parents) == 0 {
				return "", fmt.Errorf("resolve %q: %s has no parent: %w", rev, h.Short(), ErrUnknownRevision)
			}
			h = c.Parents[0]
		}
	}
	return h, nil
}

func splitRevision(rev string) (string, string) {
	if i := strings.IndexAny(rev, "^~"); i >= 0 {
		return rev[:i], rev[i:]
	}
	return rev, ""
}

func (r *Repo) resolveName(name string) (object.Hash, error) {
	if h, err := object.ParseHash(name); err == nil {
		if _, err := r.Objects.ReadCommit(h); err != nil {
			return "", err
		}
		return h, nil
	}

	var candidates []string
	switch {
	case name == "HEAD":
		head, err := r.HeadRef()
		if err != nil {
			return "", err
		}
		candidates = []string{head}
	case strings.HasPrefix(name, "refs/"):
		candidates = []string{name}
	default:
		candidates = []string{"refs/heads/" + name, "refs/tags/" + name}
	}
	for _, c := range candidates {
		h, err := r.Refs.ReadRef(c)
		if err == nil {
			return h, nil
		}
		if !errors.Is(err, refs.ErrRefNotFound) {
			return "", err
		}
	}
	return "", ErrUnknownRevision
}
