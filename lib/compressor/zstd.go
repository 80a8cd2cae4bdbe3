// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package compressor

import (
	"encoding/json"
)

// ZstdID is the descriptor id of the plain zstd family.
const ZstdID = "zstd"

// zstdFamily implements [Family] for id "zstd". Its descriptor has the
// same keys as blosc's; only clevel is tunable, the rest are fixed:
//
//	{
//	    "id": "zstd",
//	    "cname": "zstd",
//	    "clevel": 3,
//	    "shuffle": 0,
//	    "blocksize": 0
//	}
type zstdFamily struct{}

func (zstdFamily) ID() string { return ZstdID }

func (zstdFamily) Fields(d Descriptor) []Field {
	return []Field{
		{Key: "id", Value: ZstdID},
		{Key: "cname", Value: "zstd"},
		{Key: "clevel", Value: d.Level},
		{Key: "shuffle", Value: int(NoShuffle)},
		{Key: "blocksize", Value: 0},
	}
}

// Parse requires clevel. cname may be omitted. shuffle and blocksize
// must be integers when present, but are always written as 0.
func (zstdFamily) Parse(fields map[string]json.RawMessage) (Descriptor, error) {
	descriptor := Descriptor{ID: ZstdID, Name: "zstd"}
	var err error
	if _, ok := fields["cname"]; ok {
		if descriptor.Name, err = requireString(fields, "cname"); err != nil {
			return Descriptor{}, err
		}
	}
	if descriptor.Level, err = requireInt(fields, "clevel"); err != nil {
		return Descriptor{}, err
	}
	for _, key := range []string{"shuffle", "blocksize"} {
		if _, err := optionalInt(fields, key, 0); err != nil {
			return Descriptor{}, err
		}
	}
	return descriptor, nil
}

func (zstdFamily) Validate(d Descriptor) error {
	switch {
	case d.Name != "" && d.Name != "zstd":
		return &InvalidParameterError{ID: ZstdID, Parameter: "cname", Value: d.Name, Reason: "must be zstd"}
	case d.Level < 0 || d.Level > 22:
		return &InvalidParameterError{ID: ZstdID, Parameter: "clevel", Value: d.Level,
			Reason: "must be 0-22 (0 selects the zstd default)"}
	}
	return nil
}

func (zstdFamily) New(d Descriptor) (Codec, error) {
	level := d.Level
	if level == 0 {
		level = 3
	}
	return &zstdCodec{
		descriptor: Descriptor{ID: ZstdID, Name: "zstd", Level: d.Level},
		level:      level,
	}, nil
}

type zstdCodec struct {
	descriptor Descriptor
	level      int
}

func (c *zstdCodec) Describe() Descriptor { return c.descriptor }

func (c *zstdCodec) Encode(data []byte) ([]byte, error) {
	return zstdEncoderFor(c.level).EncodeAll(data, nil), nil
}

func (c *zstdCodec) Decode(data []byte) ([]byte, error) {
	result, err := zstdDecoder.DecodeAll(data, nil)
	if err != nil {
		return nil, corruptf("zstd: %v", err)
	}
	if result == nil {
		result = []byte{}
	}
	return result, nil
}
