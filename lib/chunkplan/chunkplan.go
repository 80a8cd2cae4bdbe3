// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package chunkplan computes the byte ranges a single large file is split
// into when written as a chunk set.
//
// A file of size S with a header of length H is divided into the header
// range [0, H), stored separately, and a sequence of chunk ranges
// covering [H, S) exactly: contiguous, ascending, each at most the chunk
// size long. Every chunk but the last is exactly the chunk size. No
// zero-length chunk is ever planned, so a file whose body is empty
// (H == S) has no chunks at all, and a body that is an exact multiple of
// the chunk size ends with a full chunk.
//
// Planning is pure arithmetic over sizes; it never touches the file.
package chunkplan

import (
	"fmt"
	"strconv"
)

// HeaderName is the chunk-set file holding the compressed header range.
const HeaderName = "header"

// HeaderIndex is the Index of the header range returned by [Header].
const HeaderIndex = -1

// chunkNameWidth is the minimum number of digits in a chunk file name.
const chunkNameWidth = 5

// Range is a half-open byte range [Start, End) of the source file.
type Range struct {
	// Index is the chunk's position in the plan, starting at 0, or
	// HeaderIndex for the header range.
	Index int

	Start int64
	End   int64
}

// Len returns the number of bytes in the range.
func (r Range) Len() int64 {
	return r.End - r.Start
}

// Name returns the chunk-set file name for the range.
func (r Range) Name() string {
	if r.Index == HeaderIndex {
		return HeaderName
	}
	return ChunkName(r.Index)
}

func (r Range) String() string {
	return fmt.Sprintf("%s[%d, %d)", r.Name(), r.Start, r.End)
}

// Plan returns the chunk ranges covering [headerLength, size) in steps of
// chunkSize. It returns an error when size or headerLength is negative,
// when the header is longer than the file, or when chunkSize is not
// positive.
func Plan(size, headerLength, chunkSize int64) ([]Range, error) {
	switch {
	case size < 0:
		return nil, fmt.Errorf("chunk plan: negative file size %d", size)
	case headerLength < 0:
		return nil, fmt.Errorf("chunk plan: negative header length %d", headerLength)
	case headerLength > size:
		return nil, fmt.Errorf("chunk plan: header length %d exceeds file size %d", headerLength, size)
	case chunkSize <= 0:
		return nil, fmt.Errorf("chunk plan: chunk size must be positive, got %d", chunkSize)
	}

	body := size - headerLength
	count := body / chunkSize
	if body%chunkSize != 0 {
		count++
	}
	ranges := make([]Range, 0, count)
	for cursor := headerLength; cursor < size; cursor += chunkSize {
		// cursor+chunkSize can overflow int64 when chunkSize is huge;
		// compare against the remaining length instead.
		end := size
		if size-cursor > chunkSize {
			end = cursor + chunkSize
		}
		ranges = append(ranges, Range{Index: len(ranges), Start: cursor, End: end})
		if end == size {
			break
		}
	}
	return ranges, nil
}

// Header returns the header range [0, headerLength) and true, or false
// when there is no header.
func Header(headerLength int64) (Range, bool) {
	if headerLength <= 0 {
		return Range{}, false
	}
	return Range{Index: HeaderIndex, Start: 0, End: headerLength}, true
}

// ChunkName returns the file name of chunk index: the decimal index
// zero-padded to five digits ("00000", "00001", ...). Indexes of 100000
// and above use as many digits as they need.
func ChunkName(index int) string {
	return fmt.Sprintf("%0*d", chunkNameWidth, index)
}

// ParseChunkName returns the index encoded in a chunk file name. It
// accepts exactly the names ChunkName produces.
func ParseChunkName(name string) (int, bool) {
	if len(name) < chunkNameWidth {
		return 0, false
	}
	for _, character := range name {
		if character < '0' || character > '9' {
			return 0, false
		}
	}
	index, err := strconv.Atoi(name)
	if err != nil || ChunkName(index) != name {
		return 0, false
	}
	return index, true
}
