package client

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// VideoExtensions lists the file types picked up by a folder scan.
var VideoExtensions = []string{".flv", ".asf", ".rmvb", ".mpeg", ".mpg", ".wmv", ".avi", ".mp4"}

// IsVideoFile reports whether name carries one of VideoExtensions, ignoring case.
func IsVideoFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, candidate := range VideoExtensions {
		if ext == candidate {
			return true
		}
	}
	return false
}

// ScanFolder returns the video files in dir in lexical order. Subdirectories
// are only descended into when recursive is set.
func ScanFolder(dir string, recursive bool) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && !recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && IsVideoFile(d.Name()) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}
