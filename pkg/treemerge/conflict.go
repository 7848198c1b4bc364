package treemerge

import "github.com/odvcencio/weave/pkg/object"

// ConflictKind names why a path could not be merged automatically.
type ConflictKind int

const (
	ConflictContent ConflictKind = iota
	ConflictModifyDelete
	ConflictAddAdd
	ConflictTypeChange
	ConflictMode
)

func (k ConflictKind) String() string {
	switch k {
	case ConflictModifyDelete:
		return "modify/delete"
	case ConflictAddAdd:
		return "add/add"
	case ConflictTypeChange:
		return "type-change"
	case ConflictMode:
		return "mode"
	default:
		return "content"
	}
}

// Conflict describes one unresolved path. A nil side means the path did not
// exist there: deleted on that side, or absent from the ancestor.
type Conflict struct {
	Path     string
	Kind     ConflictKind
	Ancestor *object.TreeEntry
	Ours     *object.TreeEntry
	Theirs   *object.TreeEntry
}

// Result is a merged tree plus the paths that need a decision. An empty
// conflict list is a clean merge.
type Result struct {
	Tree      *Tree
	Conflicts []Conflict
}

// Clean reports whether the merge produced no conflicts.
func (r *Result) Clean() bool { return len(r.Conflicts) == 0 }
