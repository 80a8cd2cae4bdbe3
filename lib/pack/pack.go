// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/bureau-foundation/cpack/lib/archive"
	"github.com/bureau-foundation/cpack/lib/checksum"
	"github.com/bureau-foundation/cpack/lib/chunkset"
	"github.com/bureau-foundation/cpack/lib/clock"
	"github.com/bureau-foundation/cpack/lib/compressor"
	"github.com/bureau-foundation/cpack/lib/fanout"
	"github.com/bureau-foundation/cpack/lib/source"
)

// ChecksumOptions requests a checksum sidecar next to the container.
type ChecksumOptions struct {
	Algorithm checksum.Algorithm

	// Verify re-reads the written container and records the outcome.
	Verify bool
}

// DirectoryOptions configures [Directory].
type DirectoryOptions struct {
	// Input is a directory path or a pattern that must match exactly
	// one directory.
	Input string

	// Output is the container path. Its parent directory must exist.
	Output string

	Descriptor compressor.Descriptor

	// Scheduler runs the compression. Nil uses the zero Scheduler.
	Scheduler *fanout.Scheduler

	// Checksum, when non-nil, writes a sidecar for the container.
	Checksum *ChecksumOptions

	Clock  clock.Clock
	Logger *slog.Logger
}

// DirectoryResult describes a container written by [Directory].
type DirectoryResult struct {
	// Input is the resolved input directory.
	Input string

	Container *archive.WriteResult

	// Entries lists the names stored, in container order.
	Entries []string

	RawBytes int64

	// Sidecar is set when a checksum was requested.
	Sidecar     *checksum.Sidecar
	SidecarPath string

	Elapsed time.Duration
}

// Directory compresses every regular file under the input directory
// into a single container.
//
// Under the FailFast policy any failure aborts before the container is
// written. Under ContinueOnError the container is written with the
// entries that succeeded and the returned error is the
// *fanout.PartialFailureError naming the rest; the result is non-nil in
// that case.
func Directory(ctx context.Context, options DirectoryOptions) (*DirectoryResult, error) {
	logger := loggerOrDiscard(options.Logger)
	clk := clockOrReal(options.Clock)
	started := clk.Now()

	codec, err := options.Descriptor.Instantiate()
	if err != nil {
		return nil, err
	}
	input, err := source.ResolveDirectory(options.Input)
	if err != nil {
		return nil, err
	}
	files, err := source.Walk(input, logger)
	if err != nil {
		return nil, err
	}
	files = excludeOutputs(files, options.Output, options.Checksum)

	tasks := make([]fanout.Task, len(files))
	for i, file := range files {
		tasks[i] = file.Task()
	}
	logger.Info("packing directory",
		"input", input,
		"files", len(files),
		"bytes", humanize.IBytes(uint64(source.TotalSize(files))),
		"codec", codec.Describe().String(),
	)

	scheduler := options.Scheduler
	if scheduler == nil {
		scheduler = &fanout.Scheduler{Clock: clk, Logger: logger}
	}
	report, err := scheduler.Run(ctx, codec, tasks)
	if err != nil {
		return nil, err
	}
	partial := report.Err()

	entries := make([]archive.Entry, len(report.Results))
	names := make([]string, len(report.Results))
	for i, result := range report.Results {
		entries[i] = archive.Entry{Name: result.ID, Data: result.Data}
		names[i] = result.ID
	}

	writer := &archive.Writer{Clock: clk, Logger: logger}
	container, err := writer.Write(options.Output, codec.Describe(), entries)
	if err != nil {
		return nil, err
	}

	result := &DirectoryResult{
		Input:     input,
		Container: container,
		Entries:   names,
		RawBytes:  report.RawBytes,
	}
	if options.Checksum != nil {
		sidecar, err := checksum.Guard(options.Checksum.Algorithm, options.Output, container.Data, options.Checksum.Verify)
		if err != nil {
			return nil, err
		}
		result.Sidecar = sidecar
		result.SidecarPath = checksum.SidecarPath(options.Output, options.Checksum.Algorithm)
		if sidecar.Verification != nil && !*sidecar.Verification {
			logger.Error("container does not match the bytes written", "path", options.Output, "algorithm", sidecar.Algorithm)
		}
	}
	result.Elapsed = clock.Since(clk, started)

	logger.Info("directory packed",
		"output", options.Output,
		"entries", len(entries),
		"failed", len(report.Failures),
		"raw", humanize.IBytes(uint64(result.RawBytes)),
		"container", humanize.IBytes(uint64(container.Size)),
		"elapsed", result.Elapsed,
	)
	if partial != nil {
		return result, partial
	}
	return result, nil
}

// excludeOutputs drops the container and its sidecar from files when
// the output is written inside the input directory.
func excludeOutputs(files []source.File, output string, options *ChecksumOptions) []source.File {
	excluded := map[string]bool{canonicalPath(output): true}
	if options != nil {
		excluded[canonicalPath(checksum.SidecarPath(output, options.Algorithm))] = true
	}

	kept := files[:0]
	for _, file := range files {
		if excluded[canonicalPath(file.Path)] {
			continue
		}
		kept = append(kept, file)
	}
	return kept
}

// canonicalPath returns path made absolute with symbolic links in its
// directory resolved. The file itself need not exist.
func canonicalPath(path string) string {
	absolute, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	directory, err := filepath.EvalSymlinks(filepath.Dir(absolute))
	if err != nil {
		return absolute
	}
	return filepath.Join(directory, filepath.Base(absolute))
}

// FileOptions configures [File].
type FileOptions struct {
	// Input is the file to split.
	Input string

	// Output is the chunk-set directory, created if needed.
	Output string

	Descriptor compressor.Descriptor
	Layout     chunkset.Layout

	Scheduler *fanout.Scheduler
	Clock     clock.Clock
	Logger    *slog.Logger
}

// FileResult describes a chunk set written by [File].
type FileResult struct {
	Manifest *chunkset.Manifest
	Elapsed  time.Duration
}

// File splits a single file into a chunk set. Chunk sets have no
// partial form: a failed chunk fails the operation under either policy.
func File(ctx context.Context, options FileOptions) (*FileResult, error) {
	logger := loggerOrDiscard(options.Logger)
	clk := clockOrReal(options.Clock)
	started := clk.Now()

	codec, err := options.Descriptor.Instantiate()
	if err != nil {
		return nil, err
	}
	scheduler := options.Scheduler
	if scheduler == nil {
		scheduler = &fanout.Scheduler{Clock: clk, Logger: logger}
	}

	writer := &chunkset.Writer{Scheduler: scheduler, Logger: logger}
	manifest, err := writer.Write(ctx, options.Input, options.Output, codec, options.Layout)
	if err != nil {
		var partial *fanout.PartialFailureError
		if errors.As(err, &partial) {
			return nil, fmt.Errorf("chunk set %s is incomplete: %w", options.Output, err)
		}
		return nil, err
	}
	return &FileResult{Manifest: manifest, Elapsed: clock.Since(clk, started)}, nil
}

func loggerOrDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return logger
}

func clockOrReal(c clock.Clock) clock.Clock {
	if c == nil {
		return clock.Real()
	}
	return c
}
