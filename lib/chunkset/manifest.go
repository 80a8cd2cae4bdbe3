// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chunkset

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/cpack/lib/chunkplan"
	"github.com/bureau-foundation/cpack/lib/codec"
)

// ManifestName is the chunk-set file holding the Manifest.
const ManifestName = "manifest.cbor"

// ManifestVersion is the current manifest format version.
const ManifestVersion = 1

// Hash is a BLAKE3-256 digest of uncompressed bytes.
type Hash [32]byte

// HashBytes returns the BLAKE3-256 digest of data.
func HashBytes(data []byte) Hash {
	return blake3.Sum256(data)
}

// String returns the hash in lowercase hex.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// MarshalText encodes the hash as hex for JSON output. CBOR stores the
// raw 32 bytes.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText parses a 64-character hex string.
func (h *Hash) UnmarshalText(text []byte) error {
	decoded, err := hex.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("parsing chunk hash: %w", err)
	}
	if len(decoded) != len(h) {
		return fmt.Errorf("chunk hash is %d bytes, want %d", len(decoded), len(h))
	}
	copy(h[:], decoded)
	return nil
}

// Manifest records how a chunk set was cut and what every piece must
// decode to. Stored as manifest.cbor using deterministic CBOR.
type Manifest struct {
	// Version is the manifest format version. Currently 1.
	Version int `json:"version"`

	// Source is the base name of the file the set was cut from.
	Source string `json:"source"`

	// Size is the source file's length in bytes.
	Size int64 `json:"size"`

	HeaderLength int64 `json:"header_length"`
	ChunkSize    int64 `json:"chunk_size"`

	// Header describes the header piece; nil when HeaderLength is 0.
	Header *Piece `json:"header,omitempty"`

	// Chunks lists the chunk pieces in index order.
	Chunks []Piece `json:"chunks"`
}

// Piece is one file of a chunk set: the source range it holds, its
// size on disk and the hash of its uncompressed bytes.
type Piece struct {
	Name           string `json:"name"`
	Start          int64  `json:"start"`
	End            int64  `json:"end"`
	CompressedSize int64  `json:"compressed_size"`
	Hash           Hash   `json:"hash"`
}

// Len returns the uncompressed length of the piece.
func (p Piece) Len() int64 {
	return p.End - p.Start
}

// Pieces returns the header piece, if any, followed by the chunks: the
// order in which they reassemble the source.
func (m *Manifest) Pieces() []Piece {
	pieces := make([]Piece, 0, len(m.Chunks)+1)
	if m.Header != nil {
		pieces = append(pieces, *m.Header)
	}
	return append(pieces, m.Chunks...)
}

// CompressedSize returns the total size of every piece on disk.
func (m *Manifest) CompressedSize() int64 {
	var total int64
	for _, piece := range m.Pieces() {
		total += piece.CompressedSize
	}
	return total
}

// Validate checks that the manifest's pieces are exactly the ones the
// chunk planner produces for its size, header length and chunk size.
func (m *Manifest) Validate() error {
	if m.Version < 1 {
		return fmt.Errorf("version %d is invalid (minimum 1)", m.Version)
	}
	ranges, err := chunkplan.Plan(m.Size, m.HeaderLength, m.ChunkSize)
	if err != nil {
		return err
	}

	header, hasHeader := chunkplan.Header(m.HeaderLength)
	switch {
	case hasHeader && m.Header == nil:
		return fmt.Errorf("header length is %d but no header piece is recorded", m.HeaderLength)
	case !hasHeader && m.Header != nil:
		return fmt.Errorf("header piece recorded but header length is 0")
	case hasHeader:
		if err := checkPiece(*m.Header, header); err != nil {
			return err
		}
	}

	if len(m.Chunks) != len(ranges) {
		return fmt.Errorf("%d chunks recorded, but the layout produces %d", len(m.Chunks), len(ranges))
	}
	for i, chunk := range m.Chunks {
		if err := checkPiece(chunk, ranges[i]); err != nil {
			return err
		}
	}
	return nil
}

func checkPiece(piece Piece, want chunkplan.Range) error {
	if piece.Name != want.Name() || piece.Start != want.Start || piece.End != want.End {
		return fmt.Errorf("piece %s[%d, %d) does not match planned %s", piece.Name, piece.Start, piece.End, want)
	}
	if piece.CompressedSize < 0 {
		return fmt.Errorf("piece %s: compressed size %d is negative", piece.Name, piece.CompressedSize)
	}
	return nil
}

// MarshalManifest encodes a manifest to CBOR.
func MarshalManifest(manifest *Manifest) ([]byte, error) {
	data, err := codec.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("encoding chunk-set manifest: %w", err)
	}
	return data, nil
}

// UnmarshalManifest decodes and validates a CBOR manifest.
func UnmarshalManifest(data []byte) (*Manifest, error) {
	var manifest Manifest
	if err := codec.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("decoding chunk-set manifest: %w", err)
	}
	if err := manifest.Validate(); err != nil {
		return nil, fmt.Errorf("chunk-set manifest: %w", err)
	}
	return &manifest, nil
}
