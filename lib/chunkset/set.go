// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chunkset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/bureau-foundation/cpack/lib/atomicfile"
	"github.com/bureau-foundation/cpack/lib/chunkplan"
	"github.com/bureau-foundation/cpack/lib/compressor"
)

// Set is an opened chunk set.
type Set struct {
	dir        string
	descriptor compressor.Descriptor
	codec      compressor.Codec
	hasHeader  bool
	chunks     int
	manifest   *Manifest
}

// Open reads the chunk set in dir: its descriptor, whether it has a
// header, its chunk files and, when present, its manifest. Chunk files
// must be numbered contiguously from 00000. When a manifest exists the
// files on disk must match the pieces it records.
func Open(dir string) (*Set, error) {
	metadata, err := os.ReadFile(filepath.Join(dir, compressor.MetadataName))
	if err != nil {
		return nil, err
	}
	descriptor, err := compressor.ParseDescriptor(metadata)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", dir, err)
	}
	codec, err := descriptor.Instantiate()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", dir, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	set := &Set{dir: dir, descriptor: descriptor, codec: codec}
	var indexes []int
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if entry.Name() == chunkplan.HeaderName {
			set.hasHeader = true
			continue
		}
		if index, ok := chunkplan.ParseChunkName(entry.Name()); ok {
			indexes = append(indexes, index)
		}
	}
	slices.Sort(indexes)
	for position, index := range indexes {
		if index != position {
			return nil, &IntegrityError{Dir: dir, Piece: chunkplan.ChunkName(position), Reason: "chunk file is missing"}
		}
	}
	set.chunks = len(indexes)

	manifestData, err := os.ReadFile(filepath.Join(dir, ManifestName))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return set, nil
	case err != nil:
		return nil, err
	}
	manifest, err := UnmarshalManifest(manifestData)
	if err != nil {
		return nil, &IntegrityError{Dir: dir, Piece: ManifestName, Reason: "unreadable manifest", Err: err}
	}
	if (manifest.Header != nil) != set.hasHeader {
		return nil, &IntegrityError{Dir: dir, Piece: chunkplan.HeaderName, Reason: "header presence does not match the manifest"}
	}
	if len(manifest.Chunks) != set.chunks {
		return nil, &IntegrityError{
			Dir:    dir,
			Reason: fmt.Sprintf("%d chunk files on disk, manifest records %d", set.chunks, len(manifest.Chunks)),
		}
	}
	set.manifest = manifest
	return set, nil
}

// Dir returns the chunk-set directory.
func (s *Set) Dir() string { return s.dir }

// Descriptor returns the codec descriptor read from compressor.json.
func (s *Set) Descriptor() compressor.Descriptor { return s.descriptor }

// HasHeader reports whether the set has a header file.
func (s *Set) HasHeader() bool { return s.hasHeader }

// Chunks returns the number of chunk files.
func (s *Set) Chunks() int { return s.chunks }

// Manifest returns the set's manifest, or nil when it has none.
func (s *Set) Manifest() *Manifest { return s.manifest }

// Pieces returns the file names of the set in reassembly order.
func (s *Set) Pieces() []string {
	names := make([]string, 0, s.chunks+1)
	if s.hasHeader {
		names = append(names, chunkplan.HeaderName)
	}
	for index := range s.chunks {
		names = append(names, chunkplan.ChunkName(index))
	}
	return names
}

// Reassemble decodes the header and then every chunk in index order,
// writing the uncompressed bytes to w. It returns the number of bytes
// written. With a manifest, each piece's length and hash are checked
// before it is written; a mismatch is an *IntegrityError.
func (s *Set) Reassemble(ctx context.Context, w io.Writer) (int64, error) {
	var recorded []Piece
	if s.manifest != nil {
		recorded = s.manifest.Pieces()
	}

	var total int64
	for position, name := range s.Pieces() {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		raw, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			return total, err
		}
		data, err := s.codec.Decode(raw)
		if err != nil {
			return total, &IntegrityError{Dir: s.dir, Piece: name, Reason: "decoding failed", Err: err}
		}
		if recorded != nil {
			if err := s.check(recorded[position], raw, data); err != nil {
				return total, err
			}
		}
		written, err := w.Write(data)
		total += int64(written)
		if err != nil {
			return total, fmt.Errorf("writing %s: %w", name, err)
		}
	}
	return total, nil
}

func (s *Set) check(piece Piece, raw, data []byte) error {
	switch {
	case int64(len(raw)) != piece.CompressedSize:
		return &IntegrityError{
			Dir:    s.dir,
			Piece:  piece.Name,
			Reason: fmt.Sprintf("stored size %d, manifest records %d", len(raw), piece.CompressedSize),
		}
	case int64(len(data)) != piece.Len():
		return &IntegrityError{
			Dir:    s.dir,
			Piece:  piece.Name,
			Reason: fmt.Sprintf("decoded to %d bytes, manifest records %d", len(data), piece.Len()),
		}
	}
	if hash := HashBytes(data); hash != piece.Hash {
		return &IntegrityError{
			Dir:    s.dir,
			Piece:  piece.Name,
			Reason: fmt.Sprintf("content hash %s, manifest records %s", hash, piece.Hash),
		}
	}
	return nil
}

// ReassembleFile reassembles the set into the file at path, replacing
// it atomically once every piece has been decoded and checked.
func (s *Set) ReassembleFile(ctx context.Context, path string) (int64, error) {
	file, err := atomicfile.Create(path, 0o644)
	if err != nil {
		return 0, err
	}
	defer file.Abort()

	if s.manifest != nil {
		if err := file.Preallocate(s.manifest.Size); err != nil {
			return 0, err
		}
	}
	total, err := s.Reassemble(ctx, file)
	if err != nil {
		return total, err
	}
	if err := file.Commit(); err != nil {
		return total, err
	}
	return total, nil
}

// Verify decodes every piece and checks it against the manifest without
// writing the output anywhere.
func (s *Set) Verify(ctx context.Context) error {
	_, err := s.Reassemble(ctx, io.Discard)
	return err
}
