package indexer

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/kioku/internal/models"
)

func TestClassify(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "note.md")
	if err := os.WriteFile(path, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	info, _ := os.Stat(path)

	tests := []struct {
		name   string
		record *models.DocumentRecord
		want   models.Classification
	}{
		{"no record", nil, models.New},
		{"same size and mtime", &models.DocumentRecord{Size: info.Size(), ModTime: info.ModTime()}, models.Unchanged},
		{"size differs", &models.DocumentRecord{Size: info.Size() + 1, ModTime: info.ModTime()}, models.Changed},
		{"mtime differs", &models.DocumentRecord{Size: info.Size(), ModTime: info.ModTime().Add(-time.Second)}, models.Changed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.record, info); got != tt.want {
				t.Errorf("Classify = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClassify_touchedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "note.md")
	_ = os.WriteFile(path, []byte("hello"), 0644)
	info, _ := os.Stat(path)
	record := &models.DocumentRecord{Size: info.Size(), ModTime: info.ModTime(), ContentHash: ContentHash("hello")}

	later := info.ModTime().Add(time.Minute)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}
	touched, _ := os.Stat(path)
	if Classify(record, touched) != models.Changed {
		t.Error("touching the mtime should classify as changed")
	}
	if NeedsEmbedding(record, ContentHash("hello")) {
		t.Error("identical content should not need embedding")
	}
	if !NeedsEmbedding(record, ContentHash("hello!")) {
		t.Error("different content should need embedding")
	}
}

func TestContentHash(t *testing.T) {
	if ContentHash("a") == ContentHash("b") {
		t.Error("hashes should differ")
	}
	if len(ContentHash("")) != 64 {
		t.Error("expected hex sha256")
	}
}
