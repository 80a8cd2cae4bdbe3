// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package chunkset splits one large file into a directory of
// independently compressed pieces and puts it back together.
//
// A chunk set directory holds:
//
//	compressor.json   codec descriptor, as in a container
//	header            the first HeaderLength bytes, when non-zero
//	00000, 00001, ... consecutive chunk ranges of the remainder
//	manifest.cbor     sizes and BLAKE3 hashes of every piece
//
// Pieces are compressed in parallel by a [fanout.Scheduler] and each is
// written atomically the moment it is ready, so memory use is bounded by
// the number of workers times the chunk size rather than by the file.
// Concatenating the decoded header and chunks in index order reproduces
// the source exactly.
//
// Sets written by other tooling have no manifest. They can still be
// opened and reassembled; only the per-piece checks are skipped.
package chunkset
