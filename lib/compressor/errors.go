// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package compressor

import (
	"errors"
	"fmt"
)

// UnsupportedCodecError reports a descriptor naming a codec family (or,
// within a family, a compressor name) that this build cannot
// instantiate. Callers can use errors.As to extract it:
//
//	var unsupported *compressor.UnsupportedCodecError
//	if errors.As(err, &unsupported) { ... }
type UnsupportedCodecError struct {
	// ID is the descriptor id.
	ID string

	// Name is the compressor name within the family, when the family
	// itself is known but the name is not. Empty otherwise.
	Name string
}

func (e *UnsupportedCodecError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("codec %q: unsupported compressor name %q", e.ID, e.Name)
	}
	return fmt.Sprintf("unsupported codec id %q (supported: %v)", e.ID, Families())
}

// FormatError reports a descriptor payload that is malformed, or that is
// missing a field (or carries a field of the wrong JSON type) required
// by its family.
type FormatError struct {
	// Field is the offending key, or empty when the payload as a whole
	// is unreadable.
	Field string

	// Reason describes the problem.
	Reason string
}

func (e *FormatError) Error() string {
	if e.Field == "" {
		return "malformed codec descriptor: " + e.Reason
	}
	return fmt.Sprintf("malformed codec descriptor: field %q: %s", e.Field, e.Reason)
}

// InvalidParameterError reports a descriptor whose fields are well-formed
// but whose values are outside the range the family accepts (for
// example, a blosc clevel of 12).
type InvalidParameterError struct {
	ID        string
	Parameter string
	Value     any
	Reason    string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("codec %q: invalid %s %v: %s", e.ID, e.Parameter, e.Value, e.Reason)
}

// ErrCorrupt is wrapped by every Decode failure caused by a payload that
// is not a valid frame for the codec.
var ErrCorrupt = errors.New("corrupt compressed data")

// corruptf wraps ErrCorrupt with a formatted detail message.
func corruptf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorrupt, fmt.Sprintf(format, args...))
}
