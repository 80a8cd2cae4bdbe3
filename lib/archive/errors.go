// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"fmt"
	"strings"
)

// EntryNotFoundError reports requested entries that the container does
// not hold. Extraction checks every requested name before producing any
// output, so Names lists all of the missing ones.
type EntryNotFoundError struct {
	Container string
	Names     []string
}

func (e *EntryNotFoundError) Error() string {
	quoted := make([]string, len(e.Names))
	for i, name := range e.Names {
		quoted[i] = fmt.Sprintf("%q", name)
	}
	noun := "entry"
	if len(e.Names) != 1 {
		noun = "entries"
	}
	return fmt.Sprintf("%s: %s not found: %s", e.Container, noun, strings.Join(quoted, ", "))
}

// DecodeError reports an entry whose stored bytes could not be read or
// decompressed.
type DecodeError struct {
	Entry string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding entry %q: %v", e.Entry, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// DuplicateEntryError reports two entries with the same name in one
// write. Nothing is written.
type DuplicateEntryError struct {
	Name string
}

func (e *DuplicateEntryError) Error() string {
	return fmt.Sprintf("duplicate entry name %q", e.Name)
}

// InvalidNameError reports an entry name that is not a clean, relative,
// slash-separated path, or that would escape an extraction root.
type InvalidNameError struct {
	Name   string
	Reason string
}

func (e *InvalidNameError) Error() string {
	return fmt.Sprintf("invalid entry name %q: %s", e.Name, e.Reason)
}
