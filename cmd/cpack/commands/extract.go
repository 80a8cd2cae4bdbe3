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
)

type extractParams struct {
	Output     string `flag:"output,o" desc:"directory to extract into" default:"."`
	Stdout     bool   `flag:"stdout" desc:"write the decoded entries to stdout in the order named"`
	Descriptor string `flag:"descriptor" desc:"codec descriptor file, for containers without compressor.json"`
	Workers    int    `flag:"workers,j" desc:"entries decoded in parallel" default:"1"`
}

func extractCommand() *cli.Command {
	var params extractParams
	const usage = "cpack extract <container> [entry...] [flags]"

	return &cli.Command{
		Name:    "extract",
		Summary: "Decode entries from a container",
		Description: `Decode the named entries, or every entry when none are named, and
write them under the output directory, creating parent directories and
replacing existing files. Every name is checked before anything is
written; entries whose names would escape the output directory are
refused.

Naming compressor.json extracts it as stored.`,
		Usage: usage,
		Examples: []cli.Example{
			{
				Description: "Extract everything into ./restored",
				Command:     "cpack extract run-01.zip -o restored",
			},
			{
				Description: "Print one entry",
				Command:     "cpack extract run-01.zip logs/train.log --stdout",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("extract", &params)
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) == 0 {
				return fmt.Errorf("expected a container\n\nUsage:\n  %s", usage)
			}
			codec, err := externalCodec(params.Descriptor)
			if err != nil {
				return err
			}
			options := []archive.Option{archive.WithWorkers(params.Workers), archive.WithLogger(logger)}
			if codec != nil {
				options = append(options, archive.WithCodec(codec))
			}
			reader, err := archive.Open(args[0], options...)
			if err != nil {
				return err
			}
			defer reader.Close()

			selection := archive.All()
			if len(args) > 1 {
				selection = archive.Names(args[1:]...)
			}

			if params.Stdout {
				return extractToStdout(ctx, reader, selection, args[1:])
			}

			extraction, err := reader.Extract(ctx, selection, archive.ToDirectory{Root: params.Output})
			if extraction != nil {
				for _, path := range extraction.Written {
					logger.Debug("entry written", "path", path)
				}
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cli.Stdout, "%d entries extracted to %s\n", len(extraction.Written), params.Output)
			return nil
		},
	}
}

func extractToStdout(ctx context.Context, reader *archive.Reader, selection archive.Selection, names []string) error {
	extraction, err := reader.Extract(ctx, selection, archive.ToMemory{})
	if err != nil {
		return err
	}
	if len(names) == 0 {
		names = reader.Entries(false)
	}
	for _, name := range names {
		if _, err := cli.Stdout.Write(extraction.Files[name]); err != nil {
			return err
		}
	}
	return nil
}
