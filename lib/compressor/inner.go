// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package compressor

import (
	"bytes"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// innerCodec compresses individual blosc blocks. compress returns nil
// (and no error) when the output would not be smaller than the input;
// the caller then stores the block raw.
type innerCodec struct {
	name string

	// code is the 3-bit format code stored in the frame flags. lz4 and
	// lz4hc share a code: both produce standard LZ4 blocks.
	code byte

	// highRatio marks codecs that benefit from larger blocks.
	highRatio bool

	compress   func(source []byte, level int) ([]byte, error)
	decompress func(compressed []byte, rawLength int) ([]byte, error)
}

// Inner codec format codes.
const (
	codeBloscLZ byte = 0
	codeLZ4     byte = 1
	codeSnappy  byte = 2
	codeZlib    byte = 3
	codeZstd    byte = 4
)

// innerCodecs maps blosc cnames to implementations. blosclz is absent:
// it is recognised as a name (see knownNames) but has no Go
// implementation here.
var innerCodecs = map[string]innerCodec{
	"lz4": {
		name: "lz4", code: codeLZ4,
		compress: compressLZ4, decompress: decompressLZ4,
	},
	"lz4hc": {
		name: "lz4hc", code: codeLZ4, highRatio: true,
		compress: compressLZ4HC, decompress: decompressLZ4,
	},
	"snappy": {
		name: "snappy", code: codeSnappy,
		compress: compressSnappy, decompress: decompressSnappy,
	},
	"zlib": {
		name: "zlib", code: codeZlib, highRatio: true,
		compress: compressZlib, decompress: decompressZlib,
	},
	"zstd": {
		name: "zstd", code: codeZstd, highRatio: true,
		compress: compressZstd, decompress: decompressZstd,
	},
}

// knownNames lists every cname blosc tooling may write, including those
// this build cannot decode.
var knownNames = []string{"blosclz", "lz4", "lz4hc", "snappy", "zlib", "zstd"}

// innerByCode resolves the codec for a frame's format code.
func innerByCode(code byte) (innerCodec, bool) {
	switch code {
	case codeLZ4:
		return innerCodecs["lz4"], true
	case codeSnappy:
		return innerCodecs["snappy"], true
	case codeZlib:
		return innerCodecs["zlib"], true
	case codeZstd:
		return innerCodecs["zstd"], true
	default:
		return innerCodec{}, false
	}
}

// LZ4: block mode. clevel has no effect on plain lz4.

func compressLZ4(source []byte, _ int) ([]byte, error) {
	destination := make([]byte, lz4.CompressBlockBound(len(source)))
	written, err := lz4.CompressBlock(source, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	// CompressBlock returns 0 for incompressible input.
	if written == 0 || written >= len(source) {
		return nil, nil
	}
	return destination[:written], nil
}

// lz4hcLevels maps clevel 1-9 onto the HC search depths.
var lz4hcLevels = [...]lz4.CompressionLevel{
	lz4.Fast, lz4.Level1, lz4.Level2, lz4.Level3, lz4.Level4,
	lz4.Level5, lz4.Level6, lz4.Level7, lz4.Level8, lz4.Level9,
}

func compressLZ4HC(source []byte, level int) ([]byte, error) {
	level = max(0, min(level, len(lz4hcLevels)-1))
	destination := make([]byte, lz4.CompressBlockBound(len(source)))
	written, err := lz4.CompressBlockHC(source, destination, lz4hcLevels[level], nil, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4hc compress: %w", err)
	}
	if written == 0 || written >= len(source) {
		return nil, nil
	}
	return destination[:written], nil
}

// Expansion limits bound the raw length a frame header may claim for a
// block before any buffer is sized from it. An LZ4 sequence expands by at
// most 255 bytes per input byte; deflate tops out near 1032:1.
const (
	maxLZ4Expansion     = 255
	maxDeflateExpansion = 1032
)

func checkExpansion(name string, compressed []byte, rawLength, ratio int) error {
	if rawLength > ratio*len(compressed)+ratio {
		return corruptf("%s decompress: %d bytes cannot expand to %d", name, len(compressed), rawLength)
	}
	return nil
}

func decompressLZ4(compressed []byte, rawLength int) ([]byte, error) {
	if err := checkExpansion("lz4", compressed, rawLength, maxLZ4Expansion); err != nil {
		return nil, err
	}
	destination := make([]byte, rawLength)
	read, err := lz4.UncompressBlock(compressed, destination)
	if err != nil {
		return nil, corruptf("lz4 decompress: %v", err)
	}
	if read != rawLength {
		return nil, corruptf("lz4 decompress: got %d bytes, expected %d", read, rawLength)
	}
	return destination, nil
}

// Snappy: stateless, no levels.

func compressSnappy(source []byte, _ int) ([]byte, error) {
	compressed := snappy.Encode(nil, source)
	if len(compressed) >= len(source) {
		return nil, nil
	}
	return compressed, nil
}

func decompressSnappy(compressed []byte, rawLength int) ([]byte, error) {
	length, err := snappy.DecodedLen(compressed)
	if err != nil {
		return nil, corruptf("snappy decompress: %v", err)
	}
	if length != rawLength {
		return nil, corruptf("snappy decompress: encoded length %d, expected %d", length, rawLength)
	}
	result, err := snappy.Decode(make([]byte, rawLength), compressed)
	if err != nil {
		return nil, corruptf("snappy decompress: %v", err)
	}
	return result, nil
}

// Zlib: clevel maps directly onto the deflate level.

func compressZlib(source []byte, level int) ([]byte, error) {
	var buffer bytes.Buffer
	writer, err := zlib.NewWriterLevel(&buffer, max(zlib.BestSpeed, min(level, zlib.BestCompression)))
	if err != nil {
		return nil, fmt.Errorf("zlib compress: %w", err)
	}
	if _, err := writer.Write(source); err != nil {
		return nil, fmt.Errorf("zlib compress: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("zlib compress: %w", err)
	}
	if buffer.Len() >= len(source) {
		return nil, nil
	}
	return buffer.Bytes(), nil
}

func decompressZlib(compressed []byte, rawLength int) ([]byte, error) {
	if err := checkExpansion("zlib", compressed, rawLength, maxDeflateExpansion); err != nil {
		return nil, err
	}
	reader, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, corruptf("zlib decompress: %v", err)
	}
	defer reader.Close()

	destination := make([]byte, rawLength)
	if _, err := io.ReadFull(reader, destination); err != nil {
		return nil, corruptf("zlib decompress: %v", err)
	}
	// The stream must end exactly at rawLength.
	var extra [1]byte
	if n, _ := reader.Read(extra[:]); n != 0 {
		return nil, corruptf("zlib decompress: more than %d bytes", rawLength)
	}
	return destination, nil
}

// Zstd: encoders are built once per speed tier. zstd.Encoder and
// zstd.Decoder are safe for concurrent EncodeAll/DecodeAll calls. Zero
// frames are enabled so an empty input still produces a decodable frame.

var (
	zstdEncoders = map[zstd.EncoderLevel]*zstd.Encoder{}
	zstdDecoder  *zstd.Decoder
)

func init() {
	for _, level := range []zstd.EncoderLevel{
		zstd.SpeedFastest, zstd.SpeedDefault, zstd.SpeedBetterCompression, zstd.SpeedBestCompression,
	} {
		encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level), zstd.WithZeroFrames(true))
		if err != nil {
			panic("compressor: zstd encoder initialization failed: " + err.Error())
		}
		zstdEncoders[level] = encoder
	}

	var err error
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("compressor: zstd decoder initialization failed: " + err.Error())
	}
}

// zstdEncoderFor returns the shared encoder for a native zstd level.
func zstdEncoderFor(level int) *zstd.Encoder {
	return zstdEncoders[zstd.EncoderLevelFromZstd(level)]
}

// bloscZstdLevel converts a blosc clevel (1-9) to a native zstd level,
// following the blosc convention of doubling the clevel.
func bloscZstdLevel(clevel int) int {
	if clevel >= 9 {
		return 22
	}
	return max(1, clevel*2-1)
}

func compressZstd(source []byte, level int) ([]byte, error) {
	compressed := zstdEncoderFor(bloscZstdLevel(level)).EncodeAll(source, nil)
	if len(compressed) >= len(source) {
		return nil, nil
	}
	return compressed, nil
}

// decompressZstd checks the frame header before decoding. The output is
// presized only when the frame records its content size and that size
// matches rawLength.
func decompressZstd(compressed []byte, rawLength int) ([]byte, error) {
	var header zstd.Header
	if err := header.Decode(compressed); err != nil {
		return nil, corruptf("zstd decompress: %v", err)
	}
	var destination []byte
	if header.HasFCS {
		if header.FrameContentSize != uint64(rawLength) {
			return nil, corruptf("zstd decompress: frame records %d bytes, expected %d", header.FrameContentSize, rawLength)
		}
		destination = make([]byte, 0, rawLength)
	}
	result, err := zstdDecoder.DecodeAll(compressed, destination)
	if err != nil {
		return nil, corruptf("zstd decompress: %v", err)
	}
	if len(result) != rawLength {
		return nil, corruptf("zstd decompress: got %d bytes, expected %d", len(result), rawLength)
	}
	return result, nil
}
