// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chunkset

import "fmt"

// IntegrityError reports a chunk set whose files do not reassemble to
// the recorded source: a missing or extra piece, a piece that fails to
// decode, or one whose length or hash disagrees with the manifest.
type IntegrityError struct {
	Dir string

	// Piece is the file name of the offending piece, or empty when the
	// problem concerns the set as a whole.
	Piece string

	Reason string

	// Err is the underlying failure, if any.
	Err error
}

func (e *IntegrityError) Error() string {
	location := e.Dir
	if e.Piece != "" {
		location += ": " + e.Piece
	}
	if e.Err != nil {
		return fmt.Sprintf("chunk set %s: %s: %v", location, e.Reason, e.Err)
	}
	return fmt.Sprintf("chunk set %s: %s", location, e.Reason)
}

func (e *IntegrityError) Unwrap() error { return e.Err }
