package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/kioku/internal/models"
)

func TestMetadata_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "metadata.json")
	m := NewMetadata()
	m.Files["/vault/a.md"] = &models.DocumentRecord{
		Path:        "/vault/a.md",
		Size:        120,
		ModTime:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		ContentHash: "abc",
		TokenCount:  30,
		Cost:        0.0039,
	}
	m.FilePaths = []string{"/vault/a.md", "/vault/b.md", "/vault/a.md"}
	m.Tombstones = []int{1, 0}
	m.LastUpdated = time.Date(2026, 1, 2, 3, 5, 0, 0, time.UTC)

	if err := SaveMetadata(path, m); err != nil {
		t.Fatal(err)
	}
	raw, _ := os.ReadFile(path)
	for _, key := range []string{`"files"`, `"file_paths"`, `"tombstones"`, `"last_updated"`, "\n  "} {
		if !strings.Contains(string(raw), key) {
			t.Errorf("metadata file missing %q", key)
		}
	}

	loaded, err := LoadMetadata(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded.FilePaths) != 3 || loaded.FilePaths[2] != "/vault/a.md" {
		t.Errorf("file_paths = %v", loaded.FilePaths)
	}
	if len(loaded.Tombstones) != 2 || loaded.Tombstones[0] != 0 {
		t.Errorf("tombstones should be sorted: %v", loaded.Tombstones)
	}
	rec := loaded.Files["/vault/a.md"]
	if rec == nil || rec.ContentHash != "abc" || rec.Size != 120 {
		t.Errorf("record = %+v", rec)
	}
}

func TestLoadMetadata_Missing(t *testing.T) {
	m, err := LoadMetadata(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Files) != 0 || len(m.FilePaths) != 0 {
		t.Errorf("expected empty metadata, got %+v", m)
	}
}

func TestLoadMetadata_Invalid(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
	}{
		{"not json", "{oops"},
		{"tombstone out of range", `{"files":{},"file_paths":["a"],"tombstones":[3]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, strings.ReplaceAll(tt.name, " ", "_")+".json")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadMetadata(path); err == nil {
				t.Error("expected error")
			}
		})
	}
}
