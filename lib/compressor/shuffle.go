// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package compressor

// Shuffle filters rearrange a block so that bytes (or bits) at the same
// position within each element are stored together. Arrays of
// similar-magnitude numbers then expose long runs to the compressor.
// Bytes past the last whole element (or, for bitshuffle, past the last
// group of eight elements) are copied unchanged.

// byteShuffle transposes data in groups of typeSize bytes: all
// byte-position-0 values come first, then all byte-position-1 values,
// and so on.
func byteShuffle(data []byte, typeSize int) []byte {
	output := make([]byte, len(data))
	if typeSize <= 1 {
		copy(output, data)
		return output
	}

	elements := len(data) / typeSize
	for i := 0; i < elements; i++ {
		for b := 0; b < typeSize; b++ {
			output[b*elements+i] = data[i*typeSize+b]
		}
	}
	copy(output[elements*typeSize:], data[elements*typeSize:])
	return output
}

// byteUnshuffle reverses byteShuffle.
func byteUnshuffle(data []byte, typeSize int) []byte {
	output := make([]byte, len(data))
	if typeSize <= 1 {
		copy(output, data)
		return output
	}

	elements := len(data) / typeSize
	for i := 0; i < elements; i++ {
		for b := 0; b < typeSize; b++ {
			output[i*typeSize+b] = data[b*elements+i]
		}
	}
	copy(output[elements*typeSize:], data[elements*typeSize:])
	return output
}

// bitShuffle transposes the bit matrix of the block: bit k of byte b of
// every element is gathered into bit plane b*8+k. Only a multiple of
// eight elements takes part so that each plane is a whole number of
// bytes.
func bitShuffle(data []byte, typeSize int) []byte {
	output := make([]byte, len(data))
	if typeSize < 1 {
		typeSize = 1
	}

	elements := (len(data) / typeSize) &^ 7
	planeBytes := elements / 8
	for i := 0; i < elements; i++ {
		for b := 0; b < typeSize; b++ {
			value := data[i*typeSize+b]
			if value == 0 {
				continue
			}
			for k := 0; k < 8; k++ {
				if value&(1<<k) != 0 {
					plane := b*8 + k
					output[plane*planeBytes+i/8] |= 1 << (i % 8)
				}
			}
		}
	}
	copy(output[elements*typeSize:], data[elements*typeSize:])
	return output
}

// bitUnshuffle reverses bitShuffle.
func bitUnshuffle(data []byte, typeSize int) []byte {
	output := make([]byte, len(data))
	if typeSize < 1 {
		typeSize = 1
	}

	elements := (len(data) / typeSize) &^ 7
	planeBytes := elements / 8
	for plane := 0; plane < typeSize*8; plane++ {
		b, k := plane/8, plane%8
		for j := 0; j < planeBytes; j++ {
			value := data[plane*planeBytes+j]
			if value == 0 {
				continue
			}
			for bit := 0; bit < 8; bit++ {
				if value&(1<<bit) != 0 {
					i := j*8 + bit
					output[i*typeSize+b] |= 1 << k
				}
			}
		}
	}
	copy(output[elements*typeSize:], data[elements*typeSize:])
	return output
}
