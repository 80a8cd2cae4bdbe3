// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/cpack/cmd/cpack/cli"
	"github.com/bureau-foundation/cpack/lib/chunkset"
)

func joinCommand() *cli.Command {
	const usage = "cpack join <chunk-set-dir> <file|->"

	return &cli.Command{
		Name:    "join",
		Summary: "Reassemble a chunk set into the original file",
		Description: `Decode the header and every chunk of a chunk set in order and write
the original file. When the set has a manifest, each piece is checked
against the length and hash it records before it is written.

The output file is replaced atomically once every piece has been
decoded; "-" writes to stdout instead.`,
		Usage: usage,
		Examples: []cli.Example{
			{
				Description: "Restore a volume",
				Command:     "cpack join volume.cpack volume.raw",
			},
		},
		Flags: func() *pflag.FlagSet {
			return pflag.NewFlagSet("join", pflag.ContinueOnError)
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if err := requireArgs(args, 2, usage); err != nil {
				return err
			}
			set, err := chunkset.Open(args[0])
			if err != nil {
				return err
			}
			logger.Debug("chunk set opened",
				"dir", set.Dir(),
				"pieces", len(set.Pieces()),
				"manifest", set.Manifest() != nil,
				"codec", set.Descriptor().String(),
			)

			if args[1] == "-" {
				_, err := set.Reassemble(ctx, cli.Stdout)
				return err
			}
			written, err := set.ReassembleFile(ctx, args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cli.Stdout, "%s: %s from %d pieces\n", args[1], humanize.IBytes(uint64(written)), len(set.Pieces()))
			return nil
		},
	}
}
