// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package pack runs the two end-to-end pack operations.
//
// [Directory] resolves an input directory, compresses every regular file
// in parallel, writes one container in a single atomic write and
// optionally guards it with a checksum sidecar. [File] splits one large
// file into a chunk set. Both report elapsed time from the supplied
// clock so tests can pin it.
package pack
