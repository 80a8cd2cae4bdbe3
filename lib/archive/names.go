// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"strings"

	"github.com/bureau-foundation/cpack/lib/compressor"
)

// ValidateName checks that name can be stored as a content entry: a
// non-empty relative path using forward slashes, with no empty, "." or
// ".." segments, that does not collide with the reserved metadata entry.
// Names are case-sensitive.
func ValidateName(name string) error {
	switch {
	case name == "":
		return &InvalidNameError{Name: name, Reason: "empty"}
	case name == compressor.MetadataName:
		return &InvalidNameError{Name: name, Reason: "reserved for the codec descriptor"}
	case strings.HasPrefix(name, "/"):
		return &InvalidNameError{Name: name, Reason: "must be relative"}
	case strings.ContainsRune(name, '\\'):
		return &InvalidNameError{Name: name, Reason: "must use forward slashes"}
	case strings.ContainsRune(name, 0):
		return &InvalidNameError{Name: name, Reason: "contains a NUL byte"}
	}
	for _, segment := range strings.Split(name, "/") {
		switch segment {
		case "":
			return &InvalidNameError{Name: name, Reason: "contains an empty path segment"}
		case ".", "..":
			return &InvalidNameError{Name: name, Reason: "contains a " + segment + " segment"}
		}
	}
	return nil
}

// validateEntries checks every name and rejects duplicates.
func validateEntries(entries []Entry) error {
	seen := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		if err := ValidateName(entry.Name); err != nil {
			return err
		}
		if _, duplicate := seen[entry.Name]; duplicate {
			return &DuplicateEntryError{Name: entry.Name}
		}
		seen[entry.Name] = struct{}{}
	}
	return nil
}
