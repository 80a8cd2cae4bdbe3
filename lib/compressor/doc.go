// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package compressor implements the self-describing codec layer used by
// cpack containers and chunk sets.
//
// A [Descriptor] is the serializable record of a codec family and its
// parameters. It is written verbatim (never compressed) as the
// compressor.json entry of every container, so a reader can rebuild the
// exact codec without out-of-band knowledge:
//
//	{
//	    "id": "blosc",
//	    "cname": "zstd",
//	    "clevel": 5,
//	    "shuffle": 1,
//	    "blocksize": 0
//	}
//
// [Descriptor.Instantiate] resolves the descriptor's id through a closed
// registry of [Family] implementations and returns a [Codec]. Adding a
// family means adding a registry entry; nothing else branches on the id.
//
// Two families are registered:
//
//   - blosc: a shuffling block compressor. Input is split into blocks,
//     each block is optionally byte- or bit-shuffled by element width
//     (typesize) and compressed with the inner codec named by cname
//     (zstd, lz4, lz4hc, zlib, snappy). The frame header records the
//     applied shuffle and inner codec, so frames decode regardless of
//     which cname the descriptor names.
//
//   - zstd: plain zstd frames, configured by clevel only.
//
// All [Codec] implementations are safe for concurrent use. The
// compression scheduler shares one codec instance across its workers.
package compressor
