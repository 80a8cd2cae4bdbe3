// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"bytes"
	"fmt"
	"log/slog"

	"github.com/klauspost/compress/zip"

	"github.com/bureau-foundation/cpack/lib/atomicfile"
	"github.com/bureau-foundation/cpack/lib/clock"
	"github.com/bureau-foundation/cpack/lib/compressor"
)

// Entry is one content item of a container. Data holds the payload
// already compressed with the container's codec; the writer stores it
// without further transformation.
type Entry struct {
	Name string
	Data []byte
}

// Writer assembles containers. The zero value is usable.
type Writer struct {
	// Clock stamps entry modification times. Defaults to the real
	// clock.
	Clock clock.Clock

	Logger *slog.Logger
}

// WriteResult describes a container written to disk.
type WriteResult struct {
	Path    string
	Size    int64
	Entries int

	// Data is the complete container as written, so callers can hash
	// it without reading the file back.
	Data []byte
}

// Build returns the container bytes: the serialized descriptor as
// compressor.json, then every entry in order. Every ZIP member uses the
// Store method. Entry names are validated and duplicates rejected before
// anything is assembled.
func (w *Writer) Build(descriptor compressor.Descriptor, entries []Entry) ([]byte, error) {
	if err := validateEntries(entries); err != nil {
		return nil, err
	}
	metadata, err := descriptor.Marshal()
	if err != nil {
		return nil, fmt.Errorf("serializing codec descriptor: %w", err)
	}

	modified := w.clock().Now()
	var buffer bytes.Buffer
	archive := zip.NewWriter(&buffer)

	store := func(name string, data []byte) error {
		member, err := archive.CreateHeader(&zip.FileHeader{
			Name:     name,
			Method:   zip.Store,
			Modified: modified,
		})
		if err != nil {
			return fmt.Errorf("adding %q: %w", name, err)
		}
		if _, err := member.Write(data); err != nil {
			return fmt.Errorf("writing %q: %w", name, err)
		}
		return nil
	}

	if err := store(compressor.MetadataName, metadata); err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if err := store(entry.Name, entry.Data); err != nil {
			return nil, err
		}
	}
	if err := archive.Close(); err != nil {
		return nil, fmt.Errorf("finishing container: %w", err)
	}
	return buffer.Bytes(), nil
}

// Write builds the container in memory and writes it to path in a single
// write: to a preallocated temporary file in the same directory, which is
// synced and atomically renamed into place. An existing file at path is
// replaced only once the new container is complete. The parent directory
// must exist.
func (w *Writer) Write(path string, descriptor compressor.Descriptor, entries []Entry) (*WriteResult, error) {
	data, err := w.Build(descriptor, entries)
	if err != nil {
		return nil, err
	}

	file, err := atomicfile.Create(path, 0o644)
	if err != nil {
		return nil, err
	}
	defer file.Abort()

	if err := file.Preallocate(int64(len(data))); err != nil {
		return nil, err
	}
	if _, err := file.Write(data); err != nil {
		return nil, fmt.Errorf("writing container %s: %w", path, err)
	}
	if err := file.Commit(); err != nil {
		return nil, err
	}

	w.logger().Info("container written",
		"path", path,
		"entries", len(entries),
		"bytes", len(data),
		"codec", descriptor.String(),
	)
	return &WriteResult{Path: path, Size: int64(len(data)), Entries: len(entries), Data: data}, nil
}

func (w *Writer) clock() clock.Clock {
	if w.Clock == nil {
		return clock.Real()
	}
	return w.Clock
}

func (w *Writer) logger() *slog.Logger {
	if w.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return w.Logger
}
