// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR configuration for cpack's binary
// metadata.
//
// Two serialization formats appear on disk with a clear boundary:
//
//   - JSON for the interchange files other tools read: compressor.json
//     inside every container and the checksum sidecars next to it.
//   - CBOR for cpack's own bookkeeping: the chunk-set manifest that
//     records sizes and content hashes of every chunk.
//
// The encoder uses Core Deterministic Encoding, so rewriting a manifest
// from the same chunk set produces identical bytes. The decoder rejects
// duplicate map keys.
//
//	data, err := codec.Marshal(manifest)
//	err = codec.Unmarshal(data, &manifest)
package codec
