// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fanout

import (
	"fmt"
	"strings"
)

// TaskError is the failure of a single task, carrying its identifier.
type TaskError struct {
	// ID is the failed task's identifier.
	ID string

	// Index is the task's position in the submitted list.
	Index int

	Err error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("compressing %q: %v", e.ID, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

// PartialFailureError reports that some tasks failed under the
// ContinueOnError policy. Every failed identifier is listed.
type PartialFailureError struct {
	// Failures holds one error per failed task, in submission order.
	Failures []*TaskError

	// Total is the number of tasks submitted.
	Total int
}

func (e *PartialFailureError) Error() string {
	ids := make([]string, len(e.Failures))
	for i, failure := range e.Failures {
		ids[i] = fmt.Sprintf("%q", failure.ID)
	}
	message := fmt.Sprintf("%d of %d tasks failed: %s", len(e.Failures), e.Total, strings.Join(ids, ", "))
	if len(e.Failures) > 0 {
		message += " (first: " + e.Failures[0].Err.Error() + ")"
	}
	return message
}

// Unwrap exposes the individual task errors to errors.Is and errors.As.
func (e *PartialFailureError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, failure := range e.Failures {
		errs[i] = failure
	}
	return errs
}

// IDs returns the identifiers of the failed tasks.
func (e *PartialFailureError) IDs() []string {
	ids := make([]string, len(e.Failures))
	for i, failure := range e.Failures {
		ids[i] = failure.ID
	}
	return ids
}
