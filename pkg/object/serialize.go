package object

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Blob
// ---------------------------------------------------------------------------

// MarshalBlob serializes a Blob to raw bytes (identity).
func MarshalBlob(b *Blob) []byte {
	out := make([]byte, len(b.Data))
	copy(out, b.Data)
	return out
}

// UnmarshalBlob deserializes raw bytes into a Blob.
func UnmarshalBlob(data []byte) (*Blob, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return &Blob{Data: out}, nil
}

// ---------------------------------------------------------------------------
// TreeObj
// ---------------------------------------------------------------------------

// MarshalTree serializes a TreeObj. Entries are sorted by Name for
// deterministic output. Each entry is one line:
//
//	mode hash name
//
// The name is last so it may contain spaces.
func MarshalTree(tr *TreeObj) []byte {
	sorted := SortedEntries(tr.Entries)

	var buf bytes.Buffer
	for _, e := range sorted {
		fmt.Fprintf(&buf, "%s %s %s\n", modeOrDefault(e.Mode), e.Hash, e.Name)
	}
	return buf.Bytes()
}

// SortedEntries returns a copy of entries ordered by name.
func SortedEntries(entries []TreeEntry) []TreeEntry {
	sorted := make([]TreeEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Name < sorted[j].Name
	})
	return sorted
}

// UnmarshalTree parses a TreeObj from its serialized form.
func UnmarshalTree(data []byte) (*TreeObj, error) {
	tr := &TreeObj{}
	text := strings.TrimRight(string(data), "\n")
	if text == "" {
		return tr, nil
	}
	for _, line := range strings.Split(text, "\n") {
		parts := strings.SplitN(line, " ", 3)
		if len(parts) != 3 || parts[2] == "" {
			return nil, fmt.Errorf("unmarshal tree: malformed entry %q", line)
		}
		mode, err := parseTreeMode(parts[0])
		if err != nil {
			return nil, fmt.Errorf("unmarshal tree: %w", err)
		}
		tr.Entries = append(tr.Entries, TreeEntry{
			Name: parts[2],
			Mode: mode,
			Hash: Hash(parts[1]),
		})
	}
	return tr, nil
}

func modeOrDefault(mode string) string {
	if strings.TrimSpace(mode) == "" {
		return TreeModeFile
	}
	return mode
}

func parseTreeMode(mode string) (string, error) {
	switch mode {
	case TreeModeDir, TreeModeFile, TreeModeExecutable, TreeModeSymlink, TreeModeGitlink:
		return mode, nil
	default:
		return "", fmt.Errorf("unknown mode %q", mode)
	}
}

// ---------------------------------------------------------------------------
// CommitObj
// ---------------------------------------------------------------------------

// MarshalCommit serializes a CommitObj:
//
//	tree H
//	parent H        (zero or more)
//	author A
//	timestamp T
//	committer C     (optional)
//	committed T     (optional)
//
//	message
func MarshalCommit(c *CommitObj) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "tree %s\n", string(c.TreeHash))
	for _, p := range c.Parents {
		fmt.Fprintf(&buf, "parent %s\n", string(p))
	}
	fmt.Fprintf(&buf, "author %s\n", c.Author)
	fmt.Fprintf(&buf, "timestamp %d\n", c.Timestamp)
	if strings.TrimSpace(c.Committer) != "" {
		fmt.Fprintf(&buf, "committer %s\n", c.Committer)
	}
	if c.CommitterTimestamp != 0 {
		fmt.Fprintf(&buf, "committed %d\n", c.CommitterTimestamp)
	}
	buf.WriteByte('\n')
	buf.WriteString(c.Message)
	return buf.Bytes()
}

// UnmarshalCommit parses a CommitObj from its serialized form.
func UnmarshalCommit(data []byte) (*CommitObj, error) {
	idx := bytes.Index(data, []byte("\n\n"))
	if idx < 0 {
		return nil, fmt.Errorf("unmarshal commit: missing header/message separator")
	}
	header := string(data[:idx])
	message := string(data[idx+2:])

	c := &CommitObj{Message: message}
	for _, line := range strings.Split(header, "\n") {
		key, val, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("unmarshal commit: malformed header line %q", line)
		}
		switch key {
		case "tree":
			c.TreeHash = Hash(val)
		case "parent":
			c.Parents = append(c.Parents, Hash(val))
		case "author":
			c.Author = val
		case "committer":
			c.Committer = val
		case "timestamp", "committed":
			ts, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("unmarshal commit: bad %s %q: %w", key, val, err)
			}
			if key == "timestamp" {
				c.Timestamp = ts
			} else {
				c.CommitterTimestamp = ts
			}
		default:
			return nil, fmt.Errorf("unmarshal commit: unknown header key %q", key)
		}
	}
	return c, nil
}

// Encode serializes a typed object and reports its ObjectType.
func Encode(v any) (ObjectType, []byte, error) {
	switch o := v.(type) {
	case *Blob:
		return TypeBlob, MarshalBlob(o), nil
	case *TreeObj:
		return TypeTree, MarshalTree(o), nil
	case *CommitObj:
		return TypeCommit, MarshalCommit(o), nil
	default:
		return "", nil, fmt.Errorf("encode: unsupported object %T", v)
	}
}
