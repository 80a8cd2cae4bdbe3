// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package compressor

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"slices"
)

// BloscID is the descriptor id of the shuffling block compressor.
const BloscID = "blosc"

// Frame layout constants. These are format constants: changing them
// breaks every container written so far.
const (
	// bloscHeaderSize is the fixed frame header: version, inner codec
	// version, flags, typesize, then nbytes, blocksize and cbytes as
	// little-endian uint32.
	bloscHeaderSize = 16

	bloscFormatVersion = 2
	bloscInnerVersion  = 1

	// MaxBloscBufferSize is the largest input a single frame can hold.
	MaxBloscBufferSize = math.MaxInt32 - bloscHeaderSize

	// minBlockSize is the floor applied to explicitly requested block
	// sizes.
	minBlockSize = 128

	// maxTypeSize is the widest element the header can record.
	maxTypeSize = 255
)

// Frame flag bits.
const (
	flagByteShuffle byte = 1 << 0
	flagMemcpy      byte = 1 << 1
	flagBitShuffle  byte = 1 << 2
	flagCodeShift        = 5
)

// bloscFamily implements [Family] for id "blosc".
type bloscFamily struct{}

func (bloscFamily) ID() string { return BloscID }

func (bloscFamily) Fields(d Descriptor) []Field {
	fields := []Field{
		{Key: "id", Value: BloscID},
		{Key: "cname", Value: d.Name},
		{Key: "clevel", Value: d.Level},
		{Key: "shuffle", Value: int(d.Shuffle)},
		{Key: "blocksize", Value: d.BlockSize},
	}
	if d.TypeSize > 1 {
		fields = append(fields, Field{Key: "typesize", Value: d.TypeSize})
	}
	return fields
}

func (bloscFamily) Parse(fields map[string]json.RawMessage) (Descriptor, error) {
	var (
		descriptor = Descriptor{ID: BloscID}
		err        error
		shuffle    int
	)
	if descriptor.Name, err = requireString(fields, "cname"); err != nil {
		return Descriptor{}, err
	}
	if descriptor.Level, err = requireInt(fields, "clevel"); err != nil {
		return Descriptor{}, err
	}
	if shuffle, err = requireInt(fields, "shuffle"); err != nil {
		return Descriptor{}, err
	}
	descriptor.Shuffle = Shuffle(shuffle)
	if descriptor.BlockSize, err = requireInt(fields, "blocksize"); err != nil {
		return Descriptor{}, err
	}
	if descriptor.TypeSize, err = optionalInt(fields, "typesize", 1); err != nil {
		return Descriptor{}, err
	}
	return descriptor, nil
}

func (bloscFamily) Validate(d Descriptor) error {
	if !slices.Contains(knownNames, d.Name) {
		return &InvalidParameterError{ID: BloscID, Parameter: "cname", Value: d.Name,
			Reason: fmt.Sprintf("must be one of %v", knownNames)}
	}
	if _, ok := innerCodecs[d.Name]; !ok {
		return &UnsupportedCodecError{ID: BloscID, Name: d.Name}
	}
	if d.Level < 0 || d.Level > 9 {
		return &InvalidParameterError{ID: BloscID, Parameter: "clevel", Value: d.Level, Reason: "must be 0-9"}
	}
	if !d.Shuffle.Valid() {
		return &InvalidParameterError{ID: BloscID, Parameter: "shuffle", Value: int(d.Shuffle),
			Reason: "must be -1 (auto), 0 (none), 1 (byte) or 2 (bit)"}
	}
	if d.BlockSize < 0 || d.BlockSize > MaxBloscBufferSize {
		return &InvalidParameterError{ID: BloscID, Parameter: "blocksize", Value: d.BlockSize,
			Reason: "must be 0 (automatic) or a positive size below 2 GiB"}
	}
	if d.TypeSize < 0 || d.TypeSize > maxTypeSize {
		return &InvalidParameterError{ID: BloscID, Parameter: "typesize", Value: d.TypeSize, Reason: "must be 0-255 (0 means 1)"}
	}
	return nil
}

func (bloscFamily) New(d Descriptor) (Codec, error) {
	if d.TypeSize == 0 {
		d.TypeSize = 1
	}
	return &bloscCodec{descriptor: d, inner: innerCodecs[d.Name]}, nil
}

// bloscCodec is immutable after construction.
type bloscCodec struct {
	descriptor Descriptor
	inner      innerCodec
}

func (c *bloscCodec) Describe() Descriptor { return c.descriptor }

// resolvedShuffle turns AutoShuffle into the concrete filter for the
// configured element width.
func (c *bloscCodec) resolvedShuffle() Shuffle {
	if c.descriptor.Shuffle != AutoShuffle {
		return c.descriptor.Shuffle
	}
	if c.descriptor.TypeSize == 1 {
		return BitShuffle
	}
	return ByteShuffle
}

// blockSize returns the block size for an input of length nbytes.
func (c *bloscCodec) blockSize(nbytes int) int {
	typeSize := c.descriptor.TypeSize
	size := c.descriptor.BlockSize
	if size == 0 {
		size = automaticBlockSize(c.descriptor.Level, c.inner.highRatio)
	} else if size < minBlockSize {
		size = minBlockSize
	}
	if size > nbytes {
		size = nbytes
	}
	if size > typeSize {
		size -= size % typeSize
	}
	return size
}

// automaticBlockSize grows with the compression level; high-ratio codecs
// get four times larger blocks so they can find longer matches.
func automaticBlockSize(level int, highRatio bool) int {
	var size int
	switch {
	case level <= 3:
		size = 32 << 10
	case level <= 5:
		size = 64 << 10
	case level == 6:
		size = 128 << 10
	case level <= 8:
		size = 256 << 10
	default:
		size = 512 << 10
	}
	if highRatio {
		size *= 4
	}
	return size
}

// Encode compresses data into a single frame.
func (c *bloscCodec) Encode(data []byte) ([]byte, error) {
	nbytes := len(data)
	if nbytes > MaxBloscBufferSize {
		return nil, fmt.Errorf("blosc: input of %d bytes exceeds the %d byte frame limit", nbytes, MaxBloscBufferSize)
	}
	if nbytes == 0 || c.descriptor.Level == 0 {
		return c.memcpyFrame(data), nil
	}

	typeSize := c.descriptor.TypeSize
	shuffle := c.resolvedShuffle()
	blockSize := c.blockSize(nbytes)
	blockCount := (nbytes + blockSize - 1) / blockSize

	flags := c.inner.code << flagCodeShift
	switch shuffle {
	case ByteShuffle:
		flags |= flagByteShuffle
	case BitShuffle:
		flags |= flagBitShuffle
	}

	tableEnd := bloscHeaderSize + 4*blockCount
	frame := make([]byte, tableEnd, tableEnd+nbytes/2)
	for index := 0; index < blockCount; index++ {
		start := index * blockSize
		end := min(start+blockSize, nbytes)
		block := data[start:end]

		switch shuffle {
		case ByteShuffle:
			block = byteShuffle(block, typeSize)
		case BitShuffle:
			block = bitShuffle(block, typeSize)
		}

		compressed, err := c.inner.compress(block, c.descriptor.Level)
		if err != nil {
			return nil, fmt.Errorf("blosc: block %d: %w", index, err)
		}
		if compressed == nil {
			compressed = block
		}

		// Fall back to a memcpy frame as soon as the compressed frame
		// can no longer beat the raw data.
		if len(frame)+4+len(compressed) >= nbytes+bloscHeaderSize {
			return c.memcpyFrame(data), nil
		}

		binary.LittleEndian.PutUint32(frame[bloscHeaderSize+4*index:], uint32(len(frame)))
		frame = binary.LittleEndian.AppendUint32(frame, uint32(len(compressed)))
		frame = append(frame, compressed...)
	}

	c.putHeader(frame, flags, nbytes, blockSize)
	return frame, nil
}

// memcpyFrame stores data uncompressed behind a header.
func (c *bloscCodec) memcpyFrame(data []byte) []byte {
	frame := make([]byte, bloscHeaderSize+len(data))
	copy(frame[bloscHeaderSize:], data)
	c.putHeader(frame, c.inner.code<<flagCodeShift|flagMemcpy, len(data), len(data))
	return frame
}

func (c *bloscCodec) putHeader(frame []byte, flags byte, nbytes, blockSize int) {
	frame[0] = bloscFormatVersion
	frame[1] = bloscInnerVersion
	frame[2] = flags
	frame[3] = byte(c.descriptor.TypeSize)
	binary.LittleEndian.PutUint32(frame[4:], uint32(nbytes))
	binary.LittleEndian.PutUint32(frame[8:], uint32(blockSize))
	binary.LittleEndian.PutUint32(frame[12:], uint32(len(frame)))
}

// Decode reverses Encode. The shuffle filter, element width and inner
// codec are read from the frame header, not from the descriptor.
func (c *bloscCodec) Decode(frame []byte) ([]byte, error) {
	if len(frame) < bloscHeaderSize {
		return nil, corruptf("blosc: frame of %d bytes is shorter than the header", len(frame))
	}
	if frame[0] != bloscFormatVersion {
		return nil, corruptf("blosc: unsupported frame version %d", frame[0])
	}
	flags := frame[2]
	typeSize := int(frame[3])
	nbytes := int(binary.LittleEndian.Uint32(frame[4:]))
	blockSize := int(binary.LittleEndian.Uint32(frame[8:]))
	cbytes := int(binary.LittleEndian.Uint32(frame[12:]))
	if cbytes != len(frame) {
		return nil, corruptf("blosc: header records %d bytes, frame has %d", cbytes, len(frame))
	}

	if flags&flagMemcpy != 0 {
		if len(frame)-bloscHeaderSize != nbytes {
			return nil, corruptf("blosc: memcpy frame holds %d bytes, header records %d",
				len(frame)-bloscHeaderSize, nbytes)
		}
		output := make([]byte, nbytes)
		copy(output, frame[bloscHeaderSize:])
		return output, nil
	}

	if nbytes == 0 {
		return []byte{}, nil
	}
	if nbytes > MaxBloscBufferSize {
		return nil, corruptf("blosc: header records %d bytes, above the frame limit", nbytes)
	}
	if blockSize <= 0 || typeSize == 0 {
		return nil, corruptf("blosc: invalid block size %d or typesize %d", blockSize, typeSize)
	}
	inner, ok := innerByCode(flags >> flagCodeShift)
	if !ok {
		return nil, corruptf("blosc: frame uses unsupported inner codec %d", flags>>flagCodeShift)
	}

	blockCount := (nbytes + blockSize - 1) / blockSize
	tableEnd := bloscHeaderSize + 4*blockCount
	if tableEnd > len(frame) {
		return nil, corruptf("blosc: block table of %d entries overruns the frame", blockCount)
	}

	// nbytes is untrusted until the blocks decode, so the output grows
	// with them instead of being sized from the header.
	output := make([]byte, 0, min(nbytes, len(frame)))
	for index := 0; index < blockCount; index++ {
		rawLength := min(blockSize, nbytes-index*blockSize)
		offset := int(binary.LittleEndian.Uint32(frame[bloscHeaderSize+4*index:]))
		if offset < tableEnd || offset+4 > len(frame) {
			return nil, corruptf("blosc: block %d offset %d out of range", index, offset)
		}
		storedLength := int(binary.LittleEndian.Uint32(frame[offset:]))
		payloadStart := offset + 4
		if storedLength > len(frame)-payloadStart {
			return nil, corruptf("blosc: block %d of %d bytes overruns the frame", index, storedLength)
		}
		payload := frame[payloadStart : payloadStart+storedLength]

		var block []byte
		if storedLength == rawLength {
			block = payload
		} else {
			var err error
			block, err = inner.decompress(payload, rawLength)
			if err != nil {
				return nil, fmt.Errorf("blosc: block %d: %w", index, err)
			}
		}

		switch {
		case flags&flagBitShuffle != 0:
			block = bitUnshuffle(block, typeSize)
		case flags&flagByteShuffle != 0:
			block = byteUnshuffle(block, typeSize)
		}
		output = append(output, block...)
	}
	return output, nil
}
