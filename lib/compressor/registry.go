// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package compressor

import (
	"encoding/json"
	"sort"
)

// Codec compresses and decompresses whole buffers. Implementations are
// stateless with respect to individual calls and safe for concurrent use.
type Codec interface {
	// Encode compresses data. The output is a self-contained frame.
	Encode(data []byte) ([]byte, error)

	// Decode reverses Encode exactly. Payloads that are not valid frames
	// return an error wrapping [ErrCorrupt].
	Decode(data []byte) ([]byte, error)

	// Describe returns the descriptor that rebuilds this codec.
	Describe() Descriptor
}

// Family is one registered codec implementation, keyed by descriptor id.
type Family interface {
	// ID is the descriptor id this family answers to.
	ID() string

	// Fields returns the canonical, ordered serialization fields of d.
	Fields(d Descriptor) []Field

	// Parse reads the family's fields from a decoded JSON object,
	// returning *FormatError for missing or mistyped fields.
	Parse(fields map[string]json.RawMessage) (Descriptor, error)

	// Validate checks parameter ranges.
	Validate(d Descriptor) error

	// New builds a codec from a validated descriptor.
	New(d Descriptor) (Codec, error)
}

// registry is the closed set of codec families. It is populated at
// package initialization and never mutated afterwards.
var registry = map[string]Family{
	BloscID: bloscFamily{},
	ZstdID:  zstdFamily{},
}

// Lookup returns the family registered for id, or
// *UnsupportedCodecError.
func Lookup(id string) (Family, error) {
	family, ok := registry[id]
	if !ok {
		return nil, &UnsupportedCodecError{ID: id}
	}
	return family, nil
}

// Families returns the registered family ids in sorted order.
func Families() []string {
	ids := make([]string, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
