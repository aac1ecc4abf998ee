package storage

import (
	"os"
	"path/filepath"
)

// FileUsage is the on-disk footprint of one persisted file.
type FileUsage struct {
	Path   string `json:"path"`
	Bytes  int64  `json:"bytes"`
	Exists bool   `json:"exists"`
}

// DiskUsage stats each path. Directories are summed recursively. Missing paths
// are reported with Exists false; empty paths are ignored.
func DiskUsage(paths ...string) ([]FileUsage, int64, error) {
	var (
		usage []FileUsage
		total int64
	)
	for _, p := range paths {
		if p == "" {
			continue
		}
		info, err := os.Stat(p)
		if err != nil {
			if os.IsNotExist(err) {
				usage = append(usage, FileUsage{Path: p})
				continue
			}
			return nil, 0, err
		}
		size := info.Size()
		if info.IsDir() {
			if size, err = dirSize(p); err != nil {
				return nil, 0, err
			}
		}
		usage = append(usage, FileUsage{Path: p, Bytes: size, Exists: true})
		total += size
	}
	return usage, total, nil
}

func dirSize(dir string) (int64, error) {
	var total int64
	err := filepath.Walk(dir, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total, err
}
