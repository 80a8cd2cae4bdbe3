// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/cpack/cmd/cpack/cli"
	"github.com/bureau-foundation/cpack/lib/chunkset"
	"github.com/bureau-foundation/cpack/lib/config"
	"github.com/bureau-foundation/cpack/lib/pack"
)

type splitParams struct {
	cli.JSONOutput
	Settings settings

	ChunkSize    config.ByteSize `flag:"chunk-size" desc:"uncompressed bytes per chunk (e.g. 1GiB, 256MB)"`
	HeaderLength config.ByteSize `flag:"header-length" desc:"leading bytes stored in a separate header piece"`
}

func splitCommand() *cli.Command {
	var params splitParams
	const usage = "cpack split <file> <chunk-set-dir> [flags]"

	return &cli.Command{
		Name:    "split",
		Summary: "Compress one large file into a chunk set",
		Description: `Cut a single file into fixed-size chunks and compress each one into
its own file inside a chunk-set directory.

The directory receives compressor.json, an optional header piece holding
the first --header-length bytes, chunk files 00000, 00001, ... and
finally manifest.cbor recording every piece's range and hash. Chunks
are written as soon as they are compressed, so memory use is bounded
by the worker count rather than the file size. Pieces left by an
earlier split with a different layout are removed.`,
		Usage: usage,
		Examples: []cli.Example{
			{
				Description: "Split a volume into 256 MiB chunks, keeping its 4 KiB header apart",
				Command:     "cpack split volume.raw volume.cpack --chunk-size 256MiB --header-length 4KiB",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("split", &params)
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if err := requireArgs(args, 2, usage); err != nil {
				return err
			}
			return runSplit(ctx, args[0], args[1], &params, logger)
		},
	}
}

func runSplit(ctx context.Context, input, output string, params *splitParams, logger *slog.Logger) error {
	cfg, err := params.Settings.resolve()
	if err != nil {
		return err
	}
	if params.Settings.changed("chunk-size") {
		cfg.Chunking.ChunkSize = params.ChunkSize
	}
	if params.Settings.changed("header-length") {
		cfg.Chunking.HeaderLength = params.HeaderLength
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	descriptor, err := cfg.Descriptor()
	if err != nil {
		return err
	}
	sched, err := scheduler(cfg, logger)
	if err != nil {
		return err
	}
	result, err := pack.File(ctx, pack.FileOptions{
		Input:      input,
		Output:     output,
		Descriptor: descriptor,
		Layout: chunkset.Layout{
			ChunkSize:    int64(cfg.Chunking.ChunkSize),
			HeaderLength: int64(cfg.Chunking.HeaderLength),
		},
		Scheduler: sched,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	manifest := result.Manifest
	if done, err := params.EmitJSON(manifest); done {
		return err
	}
	pieces := len(manifest.Chunks)
	if manifest.Header != nil {
		pieces++
	}
	fmt.Fprintf(cli.Stdout, "%s: %d pieces, %s -> %s (%s) in %s\n",
		output, pieces,
		humanize.IBytes(uint64(manifest.Size)), humanize.IBytes(uint64(manifest.CompressedSize())),
		descriptor.String(), result.Elapsed.Round(time.Millisecond))
	return nil
}
