// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the small command framework behind the cpack binary.
//
// A [Command] tree dispatches on the first positional argument, parses
// flags with pflag, and suggests the nearest command or flag on typos.
// Leaf commands receive a context, their positional arguments, and a
// logger already scoped with the command name. Every leaf accepts
// --verbose (-v), which lowers the root [Command.Level] to debug.
//
// Parameter structs declare flags with struct tags ([BindFlags]); types
// implementing [pflag.Value] bind directly, so humanized sizes parse on
// the command line the same way they do in configuration files.
// [JSONOutput] adds a --json flag for machine-readable output.
package cli
