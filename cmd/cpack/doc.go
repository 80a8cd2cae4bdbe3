// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Cpack packs directories into self-describing compressed containers
// (pack, list, extract, show, verify) and splits single large files into
// chunk sets (split, join). Run "cpack --help" for the command list.
//
// Configuration comes from the file named by --config or $CPACK_CONFIG;
// command-line flags override individual settings.
package main
