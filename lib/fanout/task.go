// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fanout

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

// readSliceSize bounds each read issued by file-backed tasks. The
// context is checked between slices, so cancelling a read of a
// multi-gigabyte range takes effect within one slice.
const readSliceSize = 4 << 20

// Task is one unit of compression work: an identifier plus a way to
// obtain the uncompressed bytes. Read must return the complete input;
// partial reads are errors.
type Task struct {
	// ID identifies the task in results and errors. For directory
	// containers it is the entry name; for chunk sets, the chunk file
	// name.
	ID string

	// Size is the expected uncompressed length, used for logging and
	// progress. Zero when unknown.
	Size int64

	// Read returns the task's uncompressed input.
	Read func(ctx context.Context) ([]byte, error)
}

// BytesTask returns a task over in-memory data.
func BytesTask(id string, data []byte) Task {
	return Task{
		ID:   id,
		Size: int64(len(data)),
		Read: func(ctx context.Context) ([]byte, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return data, nil
		},
	}
}

// FileTask returns a task that reads the whole of the regular file at
// path. size is the length observed when the file was enumerated; a file
// that has changed length by the time it is read is an error.
func FileTask(id, path string, size int64) Task {
	return Task{
		ID:   id,
		Size: size,
		Read: func(ctx context.Context) ([]byte, error) {
			file, err := os.Open(path)
			if err != nil {
				return nil, err
			}
			defer file.Close()

			info, err := file.Stat()
			if err != nil {
				return nil, err
			}
			if !info.Mode().IsRegular() {
				return nil, fmt.Errorf("%s is not a regular file", path)
			}
			if info.Size() != size {
				return nil, fmt.Errorf("%s changed size since enumeration: was %d bytes, now %d", path, size, info.Size())
			}
			return ReadRange(ctx, file, 0, size)
		},
	}
}

// RangeTask returns a task that reads bytes [start, end) of the file at
// path.
func RangeTask(id, path string, start, end int64) Task {
	return Task{
		ID:   id,
		Size: end - start,
		Read: func(ctx context.Context) ([]byte, error) {
			file, err := os.Open(path)
			if err != nil {
				return nil, err
			}
			defer file.Close()
			return ReadRange(ctx, file, start, end-start)
		},
	}
}

// ReadRange reads exactly length bytes starting at offset, in slices of
// at most 4 MiB, checking ctx before each slice. Reaching end of file
// early is reported as io.ErrUnexpectedEOF.
func ReadRange(ctx context.Context, reader io.ReaderAt, offset, length int64) ([]byte, error) {
	if offset < 0 || length < 0 {
		return nil, fmt.Errorf("invalid read range: offset %d, length %d", offset, length)
	}
	buffer := make([]byte, length)
	for done := int64(0); done < length; {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		slice := buffer[done:min(done+readSliceSize, length)]
		read, err := reader.ReadAt(slice, offset+done)
		done += int64(read)
		if err != nil {
			if errors.Is(err, io.EOF) && done == length {
				break
			}
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("reading %d bytes at offset %d: %w", length, offset, io.ErrUnexpectedEOF)
			}
			return nil, fmt.Errorf("reading at offset %d: %w", offset+done, err)
		}
	}
	return buffer, nil
}
