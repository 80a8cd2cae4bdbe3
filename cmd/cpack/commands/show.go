// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/cpack/cmd/cpack/cli"
	"github.com/bureau-foundation/cpack/lib/archive"
	"github.com/bureau-foundation/cpack/lib/chunkset"
	"github.com/bureau-foundation/cpack/lib/codec"
	"github.com/bureau-foundation/cpack/lib/compressor"
)

type showParams struct {
	cli.JSONOutput
	Diag bool `flag:"diag" desc:"print a chunk set's manifest.cbor in CBOR diagnostic notation"`
}

// showResult is the --json output of show.
type showResult struct {
	Path       string             `json:"path"`
	Kind       string             `json:"kind"`
	Codec      string             `json:"codec"`
	Descriptor json.RawMessage    `json:"descriptor"`
	Entries    *int               `json:"entries,omitempty"`
	Manifest   *chunkset.Manifest `json:"manifest,omitempty"`
}

func showCommand() *cli.Command {
	var params showParams
	const usage = "cpack show <container|chunk-set-dir> [flags]"

	return &cli.Command{
		Name:    "show",
		Summary: "Show the codec descriptor and chunk-set manifest",
		Description: `Print the codec descriptor a container or chunk set was written with.
For a chunk set with a manifest, also print every piece: its source
range, compressed size, and BLAKE3 hash.`,
		Usage: usage,
		Examples: []cli.Example{
			{
				Description: "Inspect a chunk set's manifest as CBOR",
				Command:     "cpack show volume.cpack --diag",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("show", &params)
		},
		Run: func(_ context.Context, args []string, _ *slog.Logger) error {
			if err := requireArgs(args, 1, usage); err != nil {
				return err
			}
			path := args[0]
			if params.Diag {
				return diagnoseManifest(path)
			}

			result, err := inspect(path)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(result); done {
				return err
			}
			printShowResult(result)
			return nil
		},
	}
}

func inspect(path string) (*showResult, error) {
	var descriptor compressor.Descriptor
	result := &showResult{Path: path}

	if isDirectory(path) {
		set, err := chunkset.Open(path)
		if err != nil {
			return nil, err
		}
		descriptor = set.Descriptor()
		result.Kind = "chunk-set"
		result.Manifest = set.Manifest()
	} else {
		reader, err := archive.Open(path)
		if err != nil {
			return nil, err
		}
		defer reader.Close()
		descriptor, err = reader.Descriptor()
		if err != nil {
			return nil, err
		}
		entries := len(reader.Entries(false))
		result.Kind = "container"
		result.Entries = &entries
	}

	metadata, err := descriptor.Marshal()
	if err != nil {
		return nil, err
	}
	result.Codec = descriptor.String()
	result.Descriptor = metadata
	return result, nil
}

func printShowResult(result *showResult) {
	fmt.Fprintf(cli.Stdout, "%s (%s)\n", result.Path, result.Kind)
	fmt.Fprintf(cli.Stdout, "codec: %s\n", result.Codec)
	fmt.Fprintf(cli.Stdout, "%s:\n%s\n", compressor.MetadataName, result.Descriptor)
	if result.Entries != nil {
		fmt.Fprintf(cli.Stdout, "entries: %d\n", *result.Entries)
	}
	manifest := result.Manifest
	if manifest == nil {
		if result.Kind == "chunk-set" {
			fmt.Fprintf(cli.Stdout, "no %s\n", chunkset.ManifestName)
		}
		return
	}

	fmt.Fprintf(cli.Stdout, "source: %s, %s, chunk size %s, header %s\n",
		manifest.Source, humanize.IBytes(uint64(manifest.Size)),
		humanize.IBytes(uint64(manifest.ChunkSize)), humanize.IBytes(uint64(manifest.HeaderLength)))
	writer := tabwriter.NewWriter(cli.Stdout, 2, 0, 2, ' ', 0)
	fmt.Fprintln(writer, "PIECE\tSTART\tEND\tCOMPRESSED\tBLAKE3")
	for _, piece := range manifest.Pieces() {
		fmt.Fprintf(writer, "%s\t%d\t%d\t%s\t%s\n",
			piece.Name, piece.Start, piece.End,
			humanize.IBytes(uint64(piece.CompressedSize)), piece.Hash)
	}
	writer.Flush()
}

func diagnoseManifest(dir string) error {
	data, err := os.ReadFile(filepath.Join(dir, chunkset.ManifestName))
	if err != nil {
		return err
	}
	notation, err := codec.Diagnose(data)
	if err != nil {
		return fmt.Errorf("diagnose %s: %w", chunkset.ManifestName, err)
	}
	_, err = fmt.Fprintln(cli.Stdout, notation)
	return err
}
