// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"encoding/binary"
	"math/rand"
)

// PatternData returns size bytes of slowly increasing little-endian
// uint32 values: highly compressible, and shaped like the numeric arrays
// shuffle filters target. The same size always yields the same bytes.
func PatternData(size int) []byte {
	data := make([]byte, size)
	var word [4]byte
	for i := 0; i < size; i += 4 {
		binary.LittleEndian.PutUint32(word[:], uint32(100_000+i/4))
		copy(data[i:], word[:])
	}
	return data
}

// RandomData returns size bytes of pseudo-random noise determined by
// seed.
func RandomData(seed int64, size int) []byte {
	data := make([]byte, size)
	rand.New(rand.NewSource(seed)).Read(data)
	return data
}
