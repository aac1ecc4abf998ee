package search

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/kioku/pkg/utils"
)

const (
	// SnippetLength is the rune cap on snippets.
	SnippetLength = 200
	titleScanLines = 10
)

// Title returns the first markdown heading within the first lines of the raw
// file, or the file stem.
func Title(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	f, err := os.Open(path)
	if err != nil {
		return stem
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for i := 0; i < titleScanLines && sc.Scan(); i++ {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "#") {
			return strings.TrimSpace(strings.TrimLeft(line, "#"))
		}
	}
	return stem
}

// Snippet returns the first non-empty paragraph of cleaned content, capped at
// SnippetLength. Without paragraphs it falls back to the flattened content.
func Snippet(content string) string {
	if content == "" {
		return ""
	}
	for _, p := range strings.Split(content, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			return utils.Truncate(p, SnippetLength)
		}
	}
	return utils.Truncate(utils.Flatten(content), SnippetLength)
}
