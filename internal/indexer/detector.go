package indexer

import (
	"crypto/sha256"
	"encoding/hex"
	"os"

	"github.com/hyperjump/kioku/internal/models"
)

// Classify compares a file's size and mtime to its record. It never reads the file.
func Classify(record *models.DocumentRecord, info os.FileInfo) models.Classification {
	if record == nil {
		return models.New
	}
	if record.Size == info.Size() && record.ModTime.Equal(info.ModTime()) {
		return models.Unchanged
	}
	return models.Changed
}

// NeedsEmbedding reports whether content with hash differs from what record embedded.
func NeedsEmbedding(record *models.DocumentRecord, hash string) bool {
	return record == nil || record.ContentHash != hash
}

// ContentHash returns the hex SHA-256 of cleaned content.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
