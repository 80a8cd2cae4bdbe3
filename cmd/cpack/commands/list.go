// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/cpack/cmd/cpack/cli"
	"github.com/bureau-foundation/cpack/lib/archive"
	"github.com/bureau-foundation/cpack/lib/chunkset"
)

type listParams struct {
	cli.JSONOutput
	All bool `flag:"all,a" desc:"include compressor.json"`
}

func listCommand() *cli.Command {
	var params listParams
	const usage = "cpack list <container|chunk-set-dir> [flags]"

	return &cli.Command{
		Name:    "list",
		Summary: "List the entries of a container or the pieces of a chunk set",
		Description: `Print entry names in container order, one per line. For a chunk-set
directory, print its pieces in reassembly order. Nothing is decoded.`,
		Usage: usage,
		Examples: []cli.Example{
			{
				Description: "List entries as a JSON array",
				Command:     "cpack list run-01.zip --json",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("list", &params)
		},
		Run: func(_ context.Context, args []string, _ *slog.Logger) error {
			if err := requireArgs(args, 1, usage); err != nil {
				return err
			}
			names, err := listNames(args[0], params.All)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(names); done {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(cli.Stdout, name)
			}
			return nil
		},
	}
}

func listNames(path string, includeMetadata bool) ([]string, error) {
	if isDirectory(path) {
		set, err := chunkset.Open(path)
		if err != nil {
			return nil, err
		}
		return set.Pieces(), nil
	}
	reader, err := archive.Open(path)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return reader.Entries(includeMetadata), nil
}
