// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for cpack packages.
//
// [WriteTree] and [ReadTree] build and snapshot small directory trees
// keyed by slash-separated relative paths, the same naming containers
// use for their entries, so a test can pack a tree and compare the
// extracted result with a single map comparison.
//
// [PatternData] and [RandomData] produce deterministic payloads:
// compressible numeric patterns and incompressible noise.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
package testutil
