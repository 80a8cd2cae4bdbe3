// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the cpack command tree.
package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/cpack/cmd/cpack/cli"
	"github.com/bureau-foundation/cpack/lib/version"
)

// Root builds the complete cpack command tree. Commands log through
// logger; --verbose on any command sets level to debug.
func Root(logger *slog.Logger, level *slog.LevelVar) *cli.Command {
	return &cli.Command{
		Name: "cpack",
		Description: `cpack: self-describing compressed containers.

A container is a ZIP archive whose first entry, compressor.json, names
the codec every other entry was compressed with, so a reader needs
nothing but the file to decode it. Large single files are split into
chunk sets: a directory of independently compressed pieces plus a
manifest recording their ranges and hashes.`,
		Logger: logger,
		Level:  level,
		Subcommands: []*cli.Command{
			packCommand(),
			splitCommand(),
			joinCommand(),
			listCommand(),
			extractCommand(),
			showCommand(),
			verifyCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(_ context.Context, _ []string, _ *slog.Logger) error {
					fmt.Fprintf(cli.Stdout, "cpack %s\n", version.Full())
					return nil
				},
			},
		},
		Examples: []cli.Example{
			{
				Description: "Pack a directory and write an MD5 sidecar",
				Command:     "cpack pack data/run-01 run-01.zip --checksum",
			},
			{
				Description: "Check the container later",
				Command:     "cpack verify run-01.zip",
			},
			{
				Description: "Split a large file into 1 GiB chunks and put it back together",
				Command:     "cpack split volume.raw volume.cpack && cpack join volume.cpack volume.raw",
			},
		},
	}
}
