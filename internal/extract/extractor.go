// Package extract reads notes and cleans them into the text that gets embedded.
package extract

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// frontmatterPattern matches a YAML frontmatter block at the head of a note.
var frontmatterPattern = regexp.MustCompile(`(?s)\A---\s*\n.*?\n---\s*\n`)

// Extractor extracts cleaned text from markdown notes.
type Extractor struct {
	skipFrontmatter bool
}

// NewExtractor returns an Extractor. When skipFrontmatter is true, a leading
// frontmatter block is removed before trimming.
func NewExtractor(skipFrontmatter bool) *Extractor {
	return &Extractor{skipFrontmatter: skipFrontmatter}
}

// Extract reads the file at path and returns its cleaned content.
func (e *Extractor) Extract(path string) (string, error) {
	raw, err := e.Read(path)
	if err != nil {
		return "", err
	}
	return e.Clean(raw), nil
}

// Read returns the raw file content as valid UTF-8.
func (e *Extractor) Read(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return extractPlain(content), nil
}

// Clean strips frontmatter (if configured) and surrounding whitespace.
func (e *Extractor) Clean(raw string) string {
	if e.skipFrontmatter {
		raw = frontmatterPattern.ReplaceAllString(raw, "")
	}
	return strings.TrimSpace(raw)
}
