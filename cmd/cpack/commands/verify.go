// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/cpack/cmd/cpack/cli"
	"github.com/bureau-foundation/cpack/lib/archive"
	"github.com/bureau-foundation/cpack/lib/checksum"
	"github.com/bureau-foundation/cpack/lib/chunkset"
)

type verifyParams struct {
	cli.JSONOutput
	Algorithm string `flag:"algorithm" desc:"sidecar algorithm to check (default: the first sidecar found)"`
	Decode    bool   `flag:"decode" desc:"also decode every entry of the container"`
}

// verifyResult is the --json output of verify.
type verifyResult struct {
	Path      string `json:"path"`
	Kind      string `json:"kind"`
	Algorithm string `json:"algorithm,omitempty"`
	Expected  string `json:"expected,omitempty"`
	Actual    string `json:"actual,omitempty"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
}

func verifyCommand() *cli.Command {
	var params verifyParams
	const usage = "cpack verify <container|chunk-set-dir> [flags]"

	return &cli.Command{
		Name:    "verify",
		Summary: "Check a container against its checksum sidecar, or a chunk set against its manifest",
		Description: `For a container, recompute its digest and compare it with the sidecar
written by "cpack pack --checksum". With --decode every entry is also
decompressed.

For a chunk-set directory, decode every piece and check its length and
BLAKE3 hash against manifest.cbor.

Exits 1 when the check fails.`,
		Usage: usage,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("verify", &params)
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if err := requireArgs(args, 1, usage); err != nil {
				return err
			}
			path := args[0]

			var (
				result *verifyResult
				err    error
			)
			if isDirectory(path) {
				result, err = verifyChunkSet(ctx, path)
			} else {
				result, err = verifyContainer(ctx, path, &params)
			}
			if err != nil {
				return err
			}
			logger.Debug("verified", "path", path, "ok", result.OK)

			if done, err := params.EmitJSON(result); done {
				if err != nil {
					return err
				}
			} else {
				printVerifyResult(result)
			}
			if !result.OK {
				return &cli.ExitError{Code: 1}
			}
			return nil
		},
	}
}

func verifyChunkSet(ctx context.Context, dir string) (*verifyResult, error) {
	result := &verifyResult{Path: dir, Kind: "chunk-set"}
	set, err := chunkset.Open(dir)
	if err == nil {
		if set.Manifest() == nil {
			result.Error = "no " + chunkset.ManifestName + "; pieces decoded without hash checks"
		}
		err = set.Verify(ctx)
	}
	var integrity *chunkset.IntegrityError
	switch {
	case err == nil:
		result.OK = true
	case errors.As(err, &integrity):
		result.Error = err.Error()
	default:
		return nil, err
	}
	return result, nil
}

func verifyContainer(ctx context.Context, path string, params *verifyParams) (*verifyResult, error) {
	result := &verifyResult{Path: path, Kind: "container"}

	sidecar, err := findSidecar(path, params.Algorithm)
	if err != nil {
		return nil, err
	}
	actual, err := checksum.ComputeFile(sidecar.Algorithm, path)
	if err != nil {
		return nil, err
	}
	result.Algorithm = string(sidecar.Algorithm)
	result.Expected = string(sidecar.Digest)
	result.Actual = string(actual)
	result.OK = strings.EqualFold(result.Actual, result.Expected)

	if result.OK && params.Decode {
		reader, err := archive.Open(path)
		if err != nil {
			return nil, err
		}
		defer reader.Close()
		if _, err := reader.Extract(ctx, archive.All(), archive.ToMemory{}); err != nil {
			var decodeError *archive.DecodeError
			if !errors.As(err, &decodeError) {
				return nil, err
			}
			result.OK = false
			result.Error = err.Error()
		}
	}
	return result, nil
}

// findSidecar reads the sidecar for algorithm, or when algorithm is
// empty the first sidecar that exists.
func findSidecar(path, algorithm string) (*checksum.Sidecar, error) {
	if algorithm != "" {
		parsed, err := checksum.ParseAlgorithm(algorithm)
		if err != nil {
			return nil, err
		}
		return checksum.ReadSidecar(path, parsed)
	}
	for _, candidate := range checksum.Algorithms() {
		sidecar, err := checksum.ReadSidecar(path, candidate)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		return sidecar, err
	}
	return nil, fmt.Errorf("no checksum sidecar for %s (looked for %s)", path, checksum.SidecarPath(path, "{md5,sha256,blake3}"))
}

func printVerifyResult(result *verifyResult) {
	status := "OK"
	if !result.OK {
		status = "FAILED"
	}
	switch {
	case result.Kind == "container" && result.OK:
		fmt.Fprintf(cli.Stdout, "%s: %s %s %s\n", result.Path, status, result.Algorithm, result.Actual)
	case result.Kind == "container" && result.Error == "":
		fmt.Fprintf(cli.Stdout, "%s: %s %s expected %s, got %s\n", result.Path, status, result.Algorithm, result.Expected, result.Actual)
	case result.Error != "":
		fmt.Fprintf(cli.Stdout, "%s: %s (%s)\n", result.Path, status, result.Error)
	default:
		fmt.Fprintf(cli.Stdout, "%s: %s\n", result.Path, status)
	}
}
