// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package atomicfile writes files so that readers observe either the
// previous content or the complete new content, never a partial write.
//
// Data goes to a temporary file in the destination directory, which is
// fsynced, closed, and renamed over the destination. The parent
// directory is then fsynced so the rename survives power loss. A
// temporary file that is never committed is removed by Abort.
package atomicfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// File is a pending atomic write. Write to it like an *os.File, then call
// Commit to publish it or Abort to discard it. Abort after Commit is a
// no-op, so deferring Abort is always safe.
type File struct {
	*os.File

	path      string
	temporary string
	finished  bool
}

// Create starts an atomic write of path. The parent directory must
// exist.
func Create(path string, perm os.FileMode) (*File, error) {
	directory, base := filepath.Split(path)
	if directory == "" {
		directory = "."
	}
	file, err := os.CreateTemp(directory, "."+base+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("creating temporary file for %s: %w", path, err)
	}
	if err := file.Chmod(perm); err != nil {
		file.Close()
		os.Remove(file.Name())
		return nil, fmt.Errorf("setting mode of temporary file for %s: %w", path, err)
	}
	return &File{File: file, path: path, temporary: file.Name()}, nil
}

// Path returns the destination path.
func (f *File) Path() string { return f.path }

// Preallocate reserves size bytes of disk space for the file where the
// filesystem supports it, so that running out of space fails here rather
// than part way through the write. The file length is unchanged. It is
// a no-op where preallocation is unavailable.
func (f *File) Preallocate(size int64) error {
	if size <= 0 {
		return nil
	}
	if err := preallocate(f.File, size); err != nil {
		return fmt.Errorf("preallocating %d bytes for %s: %w", size, f.path, err)
	}
	return nil
}

// Commit syncs and closes the temporary file, renames it over the
// destination, and syncs the parent directory.
func (f *File) Commit() error {
	if f.finished {
		return errors.New("atomicfile: commit after commit or abort")
	}
	f.finished = true

	if err := f.File.Sync(); err != nil {
		f.File.Close()
		os.Remove(f.temporary)
		return fmt.Errorf("syncing %s: %w", f.path, err)
	}
	if err := f.File.Close(); err != nil {
		os.Remove(f.temporary)
		return fmt.Errorf("closing %s: %w", f.path, err)
	}
	if err := os.Rename(f.temporary, f.path); err != nil {
		os.Remove(f.temporary)
		return fmt.Errorf("renaming %s into place: %w", f.path, err)
	}
	SyncDirectory(filepath.Dir(f.path))
	return nil
}

// Abort discards the pending write.
func (f *File) Abort() {
	if f.finished {
		return
	}
	f.finished = true
	f.File.Close()
	os.Remove(f.temporary)
}

// WriteFile atomically replaces path with data.
func WriteFile(path string, data []byte, perm os.FileMode) error {
	file, err := Create(path, perm)
	if err != nil {
		return err
	}
	defer file.Abort()

	if err := file.Preallocate(int64(len(data))); err != nil {
		return err
	}
	if _, err := file.Write(data); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return file.Commit()
}

// SyncDirectory fsyncs a directory so that entries created or renamed in
// it are durable. Errors are ignored: not every filesystem supports
// syncing directories.
func SyncDirectory(path string) {
	directory, err := os.Open(path)
	if err != nil {
		return
	}
	directory.Sync()
	directory.Close()
}
