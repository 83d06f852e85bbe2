// Package fileutil contains the file system helpers shared by the config
// layer and the end to end harness.
package fileutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// MkdirAll creates a directory and all of its parents if needed.
func MkdirAll(dirPath string) error {
	return os.MkdirAll(dirPath, os.ModePerm)
}

// FileExists reports whether a regular file exists at the given path.
func FileExists(filePath string) bool {
	info, err := os.Stat(filePath)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// DirExists reports whether a directory exists at the given path.
func DirExists(dirPath string) bool {
	info, err := os.Stat(dirPath)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// CopyFile copies a regular file, creating or truncating the destination.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		_ = in.Close()
	}()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// FilesWithExt lists the names of regular files directly inside dirPath
// carrying the given extension, e.g. ".wasm". It does not recurse.
func FilesWithExt(dirPath, ext string) ([]string, error) {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return nil, fmt.Errorf("could not list %s: %w", dirPath, err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), ext) {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}
