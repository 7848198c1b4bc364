package diff3

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
)

func TestLineDiff(t *testing.T) {
	got := LineDiff([]byte("a\nb\nc\n"), []byte("a\nx\nc\n"))
	var ops []string
	for _, l := range got {
		ops = append(ops, l.Type.String()+strings.TrimSuffix(l.Content, "\n"))
	}
	want := []string{" a", "-b", "+x", " c"}
	if strings.Join(ops, ",") != strings.Join(want, ",") {
		t.Fatalf("LineDiff = %v, want %v", ops, want)
	}
}

func TestLineDiff_Identical(t *testing.T) {
	a := []byte("same\ncontent\n")
	for _, d := range LineDiff(a, a) {
		if d.Type != Equal {
			t.Errorf("expected all Equal, got type=%v line=%q", d.Type, d.Content)
		}
	}
}

func TestLineDiff_EmptySides(t *testing.T) {
	for _, d := range LineDiff(nil, []byte("a\nb\n")) {
		if d.Type != Insert {
			t.Errorf("expected Insert, got %v", d)
		}
	}
	if n := len(LineDiff([]byte("a\nb\n"), nil)); n != 2 {
		t.Fatalf("got %d ops, want 2 deletes", n)
	}
}

func TestMerge(t *testing.T) {
	tests := []struct {
		name     string
		base     string
		ours     string
		theirs   string
		want     string
		conflict bool
	}{
		{
			name:   "ours adds at top, theirs at bottom",
			base:   "line1\nline2\nline3\n",
			ours:   "new-top\nline1\nline2\nline3\n",
			theirs: "line1\nline2\nline3\nnew-bottom\n",
			want:   "new-top\nline1\nline2\nline3\nnew-bottom\n",
		},
		{
			name:   "ours only",
			base:   "aaa\nbbb\nccc\n",
			ours:   "aaa\nBBB\nccc\n",
			theirs: "aaa\nbbb\nccc\n",
			want:   "aaa\nBBB\nccc\n",
		},
		{
			name:   "theirs only",
			base:   "aaa\nbbb\nccc\n",
			ours:   "aaa\nbbb\nccc\n",
			theirs: "aaa\nBBB\nccc\n",
			want:   "aaa\nBBB\nccc\n",
		},
		{
			name:   "identical change",
			base:   "aaa\nbbb\nccc\n",
			ours:   "aaa\nSAME\nccc\n",
			theirs: "aaa\nSAME\nccc\n",
			want:   "aaa\nSAME\nccc\n",
		},
		{
			name:   "non-overlapping inserts",
			base:   "aaa\nbbb\nccc\nddd\neee\n",
			ours:   "aaa\nOUR-INSERT\nbbb\nccc\nddd\neee\n",
			theirs: "aaa\nbbb\nccc\nddd\nTHEIR-INSERT\neee\n",
			want:   "aaa\nOUR-INSERT\nbbb\nccc\nddd\nTHEIR-INSERT\neee\n",
		},
		{
			name:     "same line changed differently",
			base:     "aaa\nbbb\nccc\n",
			ours:     "aaa\nOURS\nccc\n",
			theirs:   "aaa\nTHEIRS\nccc\n",
			want:     "aaa\n<<<<<<< ours\nOURS\n=======\nTHEIRS\n>>>>>>> theirs\nccc\n",
			conflict: true,
		},
		{
			name:     "delete versus modify",
			base:     "aaa\nbbb\nccc\n",
			ours:     "aaa\nccc\n",
			theirs:   "aaa\nBBB-MOD\nccc\n",
			want:     "aaa\n<<<<<<< ours\n=======\nBBB-MOD\n>>>>>>> theirs\nccc\n",
			conflict: true,
		},
		{
			name:     "both add to empty base",
			base:     "",
			ours:     "hello\n",
			theirs:   "world\n",
			want:     "<<<<<<< ours\nhello\n=======\nworld\n>>>>>>> theirs\n",
			conflict: true,
		},
		{
			name:   "ours empties the file",
			base:   "aaa\nbbb\n",
			ours:   "",
			theirs: "aaa\nbbb\n",
			want:   "",
		},
		{
			name: "all empty",
			want: "",
		},
		{
			name:     "conflict on unterminated last line",
			base:     "a\nb",
			ours:     "a\nB1",
			theirs:   "a\nB2",
			want:     "a\n<<<<<<< ours\nB1\n=======\nB2\n>>>>>>> theirs\n",
			conflict: true,
		},
		{
			name:   "missing final newline on clean merge",
			base:   "a\nb\nc",
			ours:   "A\nb\nc",
			theirs: "a\nb\nC",
			want:   "A\nb\nC",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Merge([]byte(tt.base), []byte(tt.ours), []byte(tt.theirs))
			if r.HasConflicts != tt.conflict {
				t.Fatalf("HasConflicts = %v, want %v\n%s", r.HasConflicts, tt.conflict, r.Merged)
			}
			if string(r.Merged) != tt.want {
				t.Fatalf("merged =\n%q\nwant =\n%q", r.Merged, tt.want)
			}
		})
	}
}

func TestMerge_HunksReassembleOutput(t *testing.T) {
	base := []byte("1\n2\n3\n4\n5\n")
	ours := []byte("1\nX\n3\n4\n5\n")
	theirs := []byte("1\nY\n3\n4\nZ\n")

	r := Merge(base, ours, theirs)
	var joined bytes.Buffer
	conflicts := 0
	for _, h := range r.Hunks {
		joined.Write(h.Merged)
		if h.Type == HunkConflict {
			conflicts++
		}
	}
	if !bytes.Equal(joined.Bytes(), r.Merged) {
		t.Fatalf("hunks reassemble to %q, want %q", joined.Bytes(), r.Merged)
	}
	if conflicts != 1 {
		t.Fatalf("conflict hunks = %d, want 1", conflicts)
	}
	if !bytes.HasSuffix(r.Merged, []byte("Z\n")) {
		t.Fatalf("theirs-only change lost: %q", r.Merged)
	}
}

func TestMerge_LargeFile(t *testing.T) {
	const n = 2000
	base := generateLines(n)
	ours := modifyLine(base, 100, "OURS-CHANGED")
	theirs := modifyLine(base, 1900, "THEIRS-CHANGED")

	r := Merge(base, ours, theirs)
	if r.HasConflicts {
		t.Fatal("expected clean merge for non-overlapping changes")
	}
	if !bytes.Contains(r.Merged, []byte("OURS-CHANGED")) || !bytes.Contains(r.Merged, []byte("THEIRS-CHANGED")) {
		t.Fatal("merged output is missing one side's change")
	}
}

func TestMergerRefusesBinary(t *testing.T) {
	var m Merger
	merged, clean, err := m.MergeContent("img.png", []byte("a\x00"), []byte("b\x00"), []byte("c\x00"))
	if err != nil {
		t.Fatalf("MergeContent: %v", err)
	}
	if merged != nil || clean {
		t.Fatalf("binary merge = %q, %v; want nil, false", merged, clean)
	}
}

func TestMergerCleanEmptyResultIsNotNil(t *testing.T) {
	var m Merger
	merged, clean, err := m.MergeContent("f", []byte("a\n"), []byte(""), []byte("a\n"))
	if err != nil {
		t.Fatalf("MergeContent: %v", err)
	}
	if !clean || merged == nil || len(merged) != 0 {
		t.Fatalf("merge = %q, %v; want empty clean result", merged, clean)
	}
}

func TestIsBinary(t *testing.T) {
	if IsBinary([]byte("plain text\n")) {
		t.Fatal("text reported as binary")
	}
	late := append(bytes.Repeat([]byte("x"), binarySniffLen), 0)
	if IsBinary(late) {
		t.Fatal("NUL past the sniff window should be ignored")
	}
	if !IsBinary([]byte{'a', 0, 'b'}) {
		t.Fatal("NUL byte not detected")
	}
}

func generateLines(n int) []byte {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "line-%04d\n", i)
	}
	return []byte(b.String())
}

func modifyLine(src []byte, idx int, replacement string) []byte {
	lines := strings.Split(string(src), "\n")
	if idx < len(lines) {
		lines[idx] = replacement
	}
	return []byte(strings.Join(lines, "\n"))
}
