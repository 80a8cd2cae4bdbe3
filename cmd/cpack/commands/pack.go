// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/cpack/cmd/cpack/cli"
	"github.com/bureau-foundation/cpack/lib/checksum"
	"github.com/bureau-foundation/cpack/lib/fanout"
	"github.com/bureau-foundation/cpack/lib/pack"
)

type packParams struct {
	cli.JSONOutput
	Settings settings

	Checksum  bool   `flag:"checksum" desc:"write a checksum sidecar next to the container"`
	Verify    bool   `flag:"verify" desc:"re-read the container and record whether it matches (implies --checksum)"`
	Algorithm string `flag:"algorithm" desc:"sidecar algorithm (md5, sha256, blake3)"`
}

// packSummary is the --json output of pack.
type packSummary struct {
	Input          string        `json:"input"`
	Container      string        `json:"container"`
	Entries        int           `json:"entries"`
	RawBytes       int64         `json:"raw_bytes"`
	ContainerBytes int64         `json:"container_bytes"`
	Codec          string        `json:"codec"`
	Sidecar        string        `json:"sidecar,omitempty"`
	Digest         string        `json:"digest,omitempty"`
	Verified       *bool         `json:"verified,omitempty"`
	Failed         []string      `json:"failed,omitempty"`
	Elapsed        time.Duration `json:"elapsed_ns"`
}

func packCommand() *cli.Command {
	var params packParams
	const usage = "cpack pack <directory> <container> [flags]"

	return &cli.Command{
		Name:    "pack",
		Summary: "Compress a directory into a container",
		Description: `Compress every regular file under a directory into one container.

The input may be a glob pattern; it must match exactly one directory.
Entry names are paths relative to that directory with forward slashes.
Files are compressed in parallel and the container is written in a
single pass once every entry is ready.

With --on-error=continue, files that cannot be read or compressed are
skipped and reported; the command still exits non-zero.`,
		Usage: usage,
		Examples: []cli.Example{
			{
				Description: "Pack a run directory with the default codec",
				Command:     "cpack pack data/run-01 run-01.zip",
			},
			{
				Description: "Use blosc with lz4 and write a verified SHA-256 sidecar",
				Command:     "cpack pack 'data/run-*' run.zip --cname lz4 --clevel 9 --verify --algorithm sha256",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("pack", &params)
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if err := requireArgs(args, 2, usage); err != nil {
				return err
			}
			return runPack(ctx, args[0], args[1], &params, logger)
		},
	}
}

func runPack(ctx context.Context, input, output string, params *packParams, logger *slog.Logger) error {
	cfg, err := params.Settings.resolve()
	if err != nil {
		return err
	}
	if params.Settings.changed("checksum") {
		cfg.Checksum.Enabled = params.Checksum
	}
	if params.Settings.changed("verify") {
		cfg.Checksum.Verify = params.Verify
	}
	if params.Settings.changed("algorithm") {
		cfg.Checksum.Algorithm = params.Algorithm
	}

	descriptor, err := cfg.Descriptor()
	if err != nil {
		return err
	}
	sched, err := scheduler(cfg, logger)
	if err != nil {
		return err
	}
	options := pack.DirectoryOptions{
		Input:      input,
		Output:     output,
		Descriptor: descriptor,
		Scheduler:  sched,
		Logger:     logger,
	}
	if cfg.Checksum.Enabled || cfg.Checksum.Verify {
		algorithm, err := cfg.Algorithm()
		if err != nil {
			return err
		}
		options.Checksum = &pack.ChecksumOptions{Algorithm: algorithm, Verify: cfg.Checksum.Verify}
	}

	result, packErr := pack.Directory(ctx, options)
	if result == nil {
		return packErr
	}

	summary := packSummary{
		Input:          result.Input,
		Container:      result.Container.Path,
		Entries:        len(result.Entries),
		RawBytes:       result.RawBytes,
		ContainerBytes: result.Container.Size,
		Codec:          descriptor.String(),
		Elapsed:        result.Elapsed,
	}
	if packErr != nil {
		summary.Failed = failedIDs(packErr)
	}
	if result.Sidecar != nil {
		summary.Sidecar = result.SidecarPath
		summary.Digest = string(result.Sidecar.Digest)
		summary.Verified = result.Sidecar.Verification
	}

	if done, err := params.EmitJSON(summary); done {
		if err != nil {
			return err
		}
	} else {
		printPackSummary(summary, result.Sidecar)
	}

	if packErr != nil {
		return packErr
	}
	if result.Sidecar != nil && result.Sidecar.Verification != nil && !*result.Sidecar.Verification {
		return &cli.ExitError{Code: 1}
	}
	return nil
}

func printPackSummary(summary packSummary, sidecar *checksum.Sidecar) {
	fmt.Fprintf(cli.Stdout, "%s: %d entries, %s -> %s (%s) in %s\n",
		summary.Container, summary.Entries,
		humanize.IBytes(uint64(summary.RawBytes)), humanize.IBytes(uint64(summary.ContainerBytes)),
		summary.Codec, summary.Elapsed.Round(time.Millisecond))
	for _, id := range summary.Failed {
		fmt.Fprintf(cli.Stdout, "  failed: %s\n", id)
	}
	if sidecar == nil {
		return
	}
	status := ""
	if sidecar.Verification != nil {
		status = " (verified)"
		if !*sidecar.Verification {
			status = " (MISMATCH)"
		}
	}
	fmt.Fprintf(cli.Stdout, "%s: %s %s%s\n", summary.Sidecar, sidecar.Algorithm, sidecar.Digest, status)
}

// failedIDs lists the entries a partial failure names.
func failedIDs(err error) []string {
	var partial *fanout.PartialFailureError
	if errors.As(err, &partial) {
		return partial.IDs()
	}
	return nil
}
