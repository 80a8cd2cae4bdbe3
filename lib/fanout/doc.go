// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package fanout runs compression tasks in parallel on a bounded worker
// pool.
//
// A [Task] names an input and knows how to read it. The [Scheduler]
// reads and compresses tasks concurrently with one shared
// [compressor.Codec] and reports the outcome per task: a result or a
// [TaskError], never silence. [Scheduler.Run] collects everything and
// returns results in submission order, which is what a container writer
// needs before its single write. [Scheduler.Stream] hands each result to
// a sink as soon as it is ready, which is what a chunk-set writer needs
// to keep memory bounded to the chunks in flight.
//
// File-backed tasks read in bounded slices and check their context
// between slices, so cancellation and per-task timeouts take effect
// during long reads as well as between tasks.
package fanout
