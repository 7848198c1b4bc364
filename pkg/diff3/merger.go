package diff3

// Merger line-merges text files for a tree merge. Binary content is never
// merged and is reported as unmergeable.
type Merger struct{}

// MergeContent implements treemerge.ContentMerger.
func (Merger) MergeContent(_ string, base, ours, theirs []byte) ([]byte, bool, error) {
	if IsBinary(base) || IsBinary(ours) || IsBinary(theirs) {
		return nil, false, nil
	}
	r := Merge(base, ours, theirs)
	return r.Merged, !r.HasConflicts, nil
}
