// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package source selects the input of a pack operation: the one
// directory a pattern names, and the regular files beneath it.
package source

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bureau-foundation/cpack/lib/config"
	"github.com/bureau-foundation/cpack/lib/fanout"
)

// File is a regular file found by [Walk].
type File struct {
	// Name is the path relative to the walked root, slash separated.
	// It becomes the container entry name.
	Name string

	// Path is the file's location on disk.
	Path string

	Size int64
}

// Task returns a compression task reading the whole file.
func (f File) Task() fanout.Task {
	return fanout.FileTask(f.Name, f.Path, f.Size)
}

// ResolveDirectory expands pattern (filepath.Match syntax) and returns
// the single directory it names. Zero or several matching directories is
// a *config.ConfigurationError listing what was found. Matches that are
// not directories are ignored.
func ResolveDirectory(pattern string) (string, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return "", &config.ConfigurationError{Field: "input", Reason: fmt.Sprintf("pattern %q: %v", pattern, err)}
	}
	var directories []string
	for _, match := range matches {
		info, err := os.Stat(match)
		if err != nil || !info.IsDir() {
			continue
		}
		directories = append(directories, match)
	}
	slices.Sort(directories)

	switch len(directories) {
	case 1:
		return directories[0], nil
	case 0:
		return "", &config.ConfigurationError{
			Field:  "input",
			Reason: fmt.Sprintf("pattern %q matches no directory", pattern),
		}
	default:
		return "", &config.ConfigurationError{
			Field:  "input",
			Reason: fmt.Sprintf("pattern %q matches %d directories (%s); exactly one is required", pattern, len(directories), strings.Join(directories, ", ")),
		}
	}
}

// Walk returns every regular file under root, sorted by Name. Symbolic
// links and special files are skipped and logged at warn level; root
// itself may be a symbolic link to a directory.
func Walk(root string, logger *slog.Logger) ([]File, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	resolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	var files []File
	err = filepath.WalkDir(resolved, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		relative, err := filepath.Rel(resolved, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(relative)
		if !entry.Type().IsRegular() {
			logger.Warn("skipping non-regular file", "root", root, "name", name, "type", entry.Type().String())
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		files = append(files, File{Name: name, Path: path, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(files, func(a, b File) int { return strings.Compare(a.Name, b.Name) })
	return files, nil
}

// TotalSize returns the combined size of files.
func TotalSize(files []File) int64 {
	var total int64
	for _, file := range files {
		total += file.Size
	}
	return total
}
