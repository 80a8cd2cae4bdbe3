// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package compressor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// MetadataName is the reserved container entry (and chunk-set file)
// holding the serialized descriptor. It is always stored uncompressed.
const MetadataName = "compressor.json"

// Shuffle selects the pre-compression filter applied to each block. The
// integer values are the on-disk encoding and match the numbering used
// by blosc tooling.
type Shuffle int

const (
	// AutoShuffle picks BitShuffle for single-byte elements and
	// ByteShuffle otherwise. Resolved at encode time; the frame header
	// records the filter actually applied.
	AutoShuffle Shuffle = -1

	// NoShuffle compresses blocks as-is.
	NoShuffle Shuffle = 0

	// ByteShuffle groups byte i of every element together before
	// compression.
	ByteShuffle Shuffle = 1

	// BitShuffle groups bit i of every element together before
	// compression.
	BitShuffle Shuffle = 2
)

// String returns the human-readable name of a shuffle mode.
func (s Shuffle) String() string {
	switch s {
	case AutoShuffle:
		return "autoshuffle"
	case NoShuffle:
		return "noshuffle"
	case ByteShuffle:
		return "shuffle"
	case BitShuffle:
		return "bitshuffle"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Valid reports whether s is one of the defined shuffle modes.
func (s Shuffle) Valid() bool {
	return s >= AutoShuffle && s <= BitShuffle
}

// ParseShuffle accepts either a mode name ("noshuffle", "shuffle",
// "bitshuffle", "autoshuffle", plus the short forms "none", "byte",
// "bit", "auto") or its integer value.
func ParseShuffle(value string) (Shuffle, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "noshuffle", "none":
		return NoShuffle, nil
	case "shuffle", "byte":
		return ByteShuffle, nil
	case "bitshuffle", "bit":
		return BitShuffle, nil
	case "autoshuffle", "auto":
		return AutoShuffle, nil
	}
	number, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || !Shuffle(number).Valid() {
		return 0, fmt.Errorf("unknown shuffle mode %q", value)
	}
	return Shuffle(number), nil
}

// UnmarshalYAML lets configuration files name the shuffle mode as well
// as give its number.
func (s *Shuffle) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: shuffle must be a scalar", node.Line)
	}
	shuffle, err := ParseShuffle(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*s = shuffle
	return nil
}

// Descriptor describes a codec family and its tunable parameters. The
// zero TypeSize is treated as 1.
type Descriptor struct {
	// ID selects the codec family ("blosc", "zstd").
	ID string `yaml:"id"`

	// Name is the compressor name within the family (blosc cname).
	Name string `yaml:"cname"`

	// Level is the compression level. Its range is family-specific.
	Level int `yaml:"clevel"`

	// Shuffle is the pre-compression filter (blosc only).
	Shuffle Shuffle `yaml:"shuffle"`

	// BlockSize is the requested block size in bytes. Zero selects an
	// automatic size (blosc only).
	BlockSize int `yaml:"blocksize"`

	// TypeSize is the element width the shuffle filters operate on.
	// Zero or one means single bytes (blosc only).
	TypeSize int `yaml:"typesize"`
}

// DefaultDescriptor returns the default codec configuration: blosc with
// zstd at level 5, byte shuffle, automatic block size.
func DefaultDescriptor() Descriptor {
	return Descriptor{
		ID:        BloscID,
		Name:      "zstd",
		Level:     5,
		Shuffle:   ByteShuffle,
		BlockSize: 0,
		TypeSize:  1,
	}
}

// String returns a compact single-line representation for logs.
func (d Descriptor) String() string {
	family, ok := registry[d.ID]
	if !ok {
		return d.ID
	}
	var builder strings.Builder
	builder.WriteString(d.ID)
	for _, field := range family.Fields(d) {
		if field.Key == "id" {
			continue
		}
		fmt.Fprintf(&builder, " %s=%v", field.Key, field.Value)
	}
	return builder.String()
}

// Field is one key/value pair of a descriptor's canonical serialization.
type Field struct {
	Key   string
	Value any
}

// Marshal returns the canonical serialization of d: a JSON object with a
// fixed, family-defined key order, indented by four spaces. The same
// descriptor always produces identical bytes.
func (d Descriptor) Marshal() ([]byte, error) {
	family, err := Lookup(d.ID)
	if err != nil {
		return nil, err
	}
	return marshalFields(family.Fields(d))
}

// marshalFields writes fields as an ordered, 4-space indented JSON
// object. encoding/json sorts map keys, so the object is assembled by
// hand from individually encoded values.
func marshalFields(fields []Field) ([]byte, error) {
	var buffer bytes.Buffer
	buffer.WriteString("{\n")
	for i, field := range fields {
		key, err := json.Marshal(field.Key)
		if err != nil {
			return nil, fmt.Errorf("encoding descriptor key %q: %w", field.Key, err)
		}
		value, err := json.Marshal(field.Value)
		if err != nil {
			return nil, fmt.Errorf("encoding descriptor field %q: %w", field.Key, err)
		}
		buffer.WriteString("    ")
		buffer.Write(key)
		buffer.WriteString(": ")
		buffer.Write(value)
		if i < len(fields)-1 {
			buffer.WriteByte(',')
		}
		buffer.WriteByte('\n')
	}
	buffer.WriteByte('}')
	return buffer.Bytes(), nil
}

// ParseDescriptor decodes a serialized descriptor. The payload must be a
// JSON object with a string "id". For registered families, every field
// the family requires must be present with the right JSON type;
// violations return *FormatError. An unregistered id parses successfully
// into a Descriptor carrying only the id, so that the failure surfaces as
// *UnsupportedCodecError from [Descriptor.Instantiate].
func ParseDescriptor(data []byte) (Descriptor, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Descriptor{}, &FormatError{Reason: err.Error()}
	}
	if fields == nil {
		return Descriptor{}, &FormatError{Reason: "payload is not a JSON object"}
	}

	id, err := requireString(fields, "id")
	if err != nil {
		return Descriptor{}, err
	}

	family, ok := registry[id]
	if !ok {
		return Descriptor{ID: id}, nil
	}
	descriptor, err := family.Parse(fields)
	if err != nil {
		return Descriptor{}, err
	}
	descriptor.ID = id
	return descriptor, nil
}

// ParseDescriptorJSONC is [ParseDescriptor] for hand-written descriptor
// files: // and /* */ comments and trailing commas are stripped first.
func ParseDescriptorJSONC(data []byte) (Descriptor, error) {
	return ParseDescriptor(jsonc.ToJSON(data))
}

// Instantiate builds a working codec for d from the registry.
func (d Descriptor) Instantiate() (Codec, error) {
	family, err := Lookup(d.ID)
	if err != nil {
		return nil, err
	}
	if err := family.Validate(d); err != nil {
		return nil, err
	}
	return family.New(d)
}

// Validate checks d against its family's parameter ranges without
// building a codec.
func (d Descriptor) Validate() error {
	family, err := Lookup(d.ID)
	if err != nil {
		return err
	}
	return family.Validate(d)
}

// requireString returns the string value of key, or a *FormatError when
// the key is absent or not a JSON string.
func requireString(fields map[string]json.RawMessage, key string) (string, error) {
	raw, ok := fields[key]
	if !ok {
		return "", &FormatError{Field: key, Reason: "required field is missing"}
	}
	var value string
	if len(raw) == 0 || raw[0] != '"' {
		return "", &FormatError{Field: key, Reason: "must be a string"}
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", &FormatError{Field: key, Reason: err.Error()}
	}
	return value, nil
}

// requireInt returns the integer value of key, or a *FormatError when the
// key is absent or not an integral JSON number.
func requireInt(fields map[string]json.RawMessage, key string) (int, error) {
	raw, ok := fields[key]
	if !ok {
		return 0, &FormatError{Field: key, Reason: "required field is missing"}
	}
	return parseInt(key, raw)
}

// optionalInt is requireInt with a fallback for absent keys.
func optionalInt(fields map[string]json.RawMessage, key string, fallback int) (int, error) {
	raw, ok := fields[key]
	if !ok {
		return fallback, nil
	}
	return parseInt(key, raw)
}

func parseInt(key string, raw json.RawMessage) (int, error) {
	text := strings.TrimSpace(string(raw))
	value, err := strconv.Atoi(text)
	if err != nil {
		return 0, &FormatError{Field: key, Reason: fmt.Sprintf("must be an integer, got %s", text)}
	}
	return value, nil
}
