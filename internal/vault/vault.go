// Package vault enumerates candidate documents under a notes directory.
package vault

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hyperjump/kioku/internal/config"
)

// Rules filter which files under the root are documents.
type Rules struct {
	Root         string
	Extensions   []string
	ExcludeDirs  []string
	ExcludeFiles []string
}

// RulesFromConfig builds Rules from the vault section.
func RulesFromConfig(cfg *config.VaultConfig) Rules {
	return Rules{
		Root:         cfg.Path,
		Extensions:   cfg.Extensions,
		ExcludeDirs:  cfg.ExcludeDirs,
		ExcludeFiles: cfg.ExcludeFiles,
	}
}

// Scan walks the root and returns the absolute paths of matching documents, sorted.
func Scan(rules Rules) ([]string, error) {
	root, err := filepath.Abs(rules.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve vault root: %w", err)
	}
	var paths []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && rules.excludedDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if rules.matchFile(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan vault: %w", err)
	}
	sort.Strings(paths)
	return paths, nil
}

// Matches reports whether path is a document under the rules: inside the root,
// no excluded directory component, matching extension and not an excluded file.
func (r Rules) Matches(path string) bool {
	root, err := filepath.Abs(r.Root)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(root, filepath.Clean(path))
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	parts := strings.Split(filepath.Dir(rel), string(filepath.Separator))
	for _, p := range parts {
		if p != "." && r.excludedDir(p) {
			return false
		}
	}
	return r.matchFile(path)
}

// MatchesExtension reports whether path has one of the tracked extensions.
func (r Rules) MatchesExtension(path string) bool {
	return matchExtension(path, r.Extensions)
}

func (r Rules) matchFile(path string) bool {
	if !matchExtension(path, r.Extensions) {
		return false
	}
	name := filepath.Base(path)
	for _, f := range r.ExcludeFiles {
		if f == name {
			return false
		}
	}
	return true
}

// ExcludesDir reports whether a directory with this base name is skipped.
func (r Rules) ExcludesDir(name string) bool {
	return r.excludedDir(name)
}

func (r Rules) excludedDir(name string) bool {
	for _, d := range r.ExcludeDirs {
		if d == name {
			return true
		}
	}
	return false
}

func matchExtension(path string, extensions []string) bool {
	ext := filepath.Ext(path)
	if len(extensions) == 0 {
		return true
	}
	extNorm := strings.TrimPrefix(strings.ToLower(ext), ".")
	for _, e := range extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == extNorm {
			return true
		}
	}
	return false
}
