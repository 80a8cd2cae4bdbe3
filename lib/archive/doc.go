// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package archive reads and writes cpack containers.
//
// A container is a ZIP archive whose first member, compressor.json, is
// the serialized [compressor.Descriptor] of the codec every other member
// was compressed with. Members are stored (ZIP method 0): their payloads
// are already compressed, and the ZIP layer only provides naming and
// random access. Because the descriptor travels inside the container, a
// [Reader] needs no out-of-band knowledge to decode it.
//
// [Writer] assembles the complete container in memory and writes it with
// one sequential write to a temporary file that is renamed into place,
// so a container on disk is always complete. Containers are never
// modified in place.
//
// [Reader] lists entry names when opened and loads the descriptor on
// first use. [Reader.Extract] takes a [Selection] (all content entries,
// or explicit names) and a [Target] (memory, or a directory root) and
// checks every requested name before producing any output.
package archive
