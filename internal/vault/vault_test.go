package vault

import (
	"os"
	"path/filepath"
	"testing"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestScan(t *testing.T) {
	root := t.TempDir()
	for _, p := range []string{
		"b.md",
		"a.md",
		"notes/c.MD",
		"notes/skip.txt",
		".obsidian/workspace.md",
		"deep/.trash/old.md",
		"deep/Templates.md",
	} {
		touch(t, filepath.Join(root, p))
	}
	rules := Rules{
		Root:         root,
		Extensions:   []string{".md"},
		ExcludeDirs:  []string{".obsidian", ".trash"},
		ExcludeFiles: []string{"Templates.md"},
	}
	got, err := Scan(rules)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		filepath.Join(root, "a.md"),
		filepath.Join(root, "b.md"),
		filepath.Join(root, "notes", "c.MD"),
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("[%d] got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestScan_missingRoot(t *testing.T) {
	if _, err := Scan(Rules{Root: filepath.Join(t.TempDir(), "absent")}); err == nil {
		t.Error("expected error for missing root")
	}
}

func TestRules_Matches(t *testing.T) {
	root := t.TempDir()
	rules := Rules{
		Root:         root,
		Extensions:   []string{"md"},
		ExcludeDirs:  []string{".git"},
		ExcludeFiles: []string{"README.md"},
	}
	tests := []struct {
		path string
		want bool
	}{
		{filepath.Join(root, "note.md"), true},
		{filepath.Join(root, "sub", "note.md"), true},
		{filepath.Join(root, "note.txt"), false},
		{filepath.Join(root, ".git", "note.md"), false},
		{filepath.Join(root, "README.md"), false},
		{filepath.Join(filepath.Dir(root), "outside.md"), false},
		{root, false},
	}
	for _, tt := range tests {
		if got := rules.Matches(tt.path); got != tt.want {
			t.Errorf("Matches(%s) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestMatchExtension(t *testing.T) {
	if !matchExtension("a.md", nil) {
		t.Error("empty extension list matches everything")
	}
	if !matchExtension("a.Markdown", []string{".markdown"}) {
		t.Error("case-insensitive match")
	}
	if matchExtension("a.mdx", []string{".md"}) {
		t.Error("mdx should not match md")
	}
}
