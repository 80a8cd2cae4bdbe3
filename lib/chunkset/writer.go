// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chunkset

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/bureau-foundation/cpack/lib/atomicfile"
	"github.com/bureau-foundation/cpack/lib/chunkplan"
	"github.com/bureau-foundation/cpack/lib/compressor"
	"github.com/bureau-foundation/cpack/lib/fanout"
)

// DefaultChunkSize is the chunk size used when a Layout leaves it unset.
const DefaultChunkSize = 1 << 30

// Layout controls how a source file is cut.
type Layout struct {
	// ChunkSize is the uncompressed length of every chunk but the last.
	// Zero selects DefaultChunkSize.
	ChunkSize int64

	// HeaderLength is the number of leading bytes stored separately
	// in the header file. Zero means no header.
	HeaderLength int64
}

func (l Layout) chunkSize() int64 {
	if l.ChunkSize == 0 {
		return DefaultChunkSize
	}
	return l.ChunkSize
}

// Writer cuts a single file into a chunk set.
type Writer struct {
	// Scheduler compresses the pieces. A nil Scheduler uses one worker
	// per CPU with the FailFast policy.
	Scheduler *fanout.Scheduler

	Logger *slog.Logger
}

// Write compresses source into outDir, creating it if needed. The
// directory receives compressor.json, the header file when the layout
// has one, chunk files 00000, 00001, ... and finally manifest.cbor.
// Each piece is written atomically as soon as it is compressed.
//
// Chunk and header files left by an earlier run with a different layout
// are removed. The manifest is written last, so a set without one was
// either written by other tooling or interrupted.
func (w *Writer) Write(ctx context.Context, source, outDir string, codec compressor.Codec, layout Layout) (*Manifest, error) {
	logger := w.logger()

	info, err := os.Stat(source)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file", source)
	}
	ranges, err := chunkplan.Plan(info.Size(), layout.HeaderLength, layout.chunkSize())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	metadata, err := codec.Describe().Marshal()
	if err != nil {
		return nil, fmt.Errorf("serializing codec descriptor: %w", err)
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}
	if err := removeIfExists(filepath.Join(outDir, ManifestName)); err != nil {
		return nil, err
	}
	if err := atomicfile.WriteFile(filepath.Join(outDir, compressor.MetadataName), metadata, 0o644); err != nil {
		return nil, err
	}

	pieces := ranges
	header, hasHeader := chunkplan.Header(layout.HeaderLength)
	if hasHeader {
		pieces = append([]chunkplan.Range{header}, ranges...)
	}

	// Hashes are recorded by the reading goroutine and consumed after
	// the scheduler returns.
	hashes := make([]Hash, len(pieces))
	compressed := make([]int64, len(pieces))
	tasks := make([]fanout.Task, len(pieces))
	for i, piece := range pieces {
		task := fanout.RangeTask(piece.Name(), source, piece.Start, piece.End)
		read := task.Read
		task.Read = func(ctx context.Context) ([]byte, error) {
			data, err := read(ctx)
			if err == nil {
				hashes[i] = HashBytes(data)
			}
			return data, err
		}
		tasks[i] = task
	}

	report, err := w.scheduler().Stream(ctx, codec, tasks, func(result fanout.Result) error {
		if err := atomicfile.WriteFile(filepath.Join(outDir, result.ID), result.Data, 0o644); err != nil {
			return err
		}
		compressed[result.Index] = int64(len(result.Data))
		logger.Debug("chunk written", "dir", outDir, "chunk", result.ID, "bytes", len(result.Data))
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := report.Err(); err != nil {
		return nil, err
	}

	if err := removeStale(outDir, len(ranges), hasHeader); err != nil {
		return nil, err
	}

	manifest := &Manifest{
		Version:      ManifestVersion,
		Source:       filepath.Base(source),
		Size:         info.Size(),
		HeaderLength: layout.HeaderLength,
		ChunkSize:    layout.chunkSize(),
		Chunks:       make([]Piece, 0, len(ranges)),
	}
	for i, piece := range pieces {
		recorded := Piece{
			Name:           piece.Name(),
			Start:          piece.Start,
			End:            piece.End,
			CompressedSize: compressed[i],
			Hash:           hashes[i],
		}
		if piece.Index == chunkplan.HeaderIndex {
			manifest.Header = &recorded
			continue
		}
		manifest.Chunks = append(manifest.Chunks, recorded)
	}
	data, err := MarshalManifest(manifest)
	if err != nil {
		return nil, err
	}
	if err := atomicfile.WriteFile(filepath.Join(outDir, ManifestName), data, 0o644); err != nil {
		return nil, err
	}

	logger.Info("chunk set written",
		"source", source,
		"dir", outDir,
		"chunks", len(ranges),
		"header", hasHeader,
		"raw", humanize.IBytes(uint64(report.RawBytes)),
		"compressed", humanize.IBytes(uint64(report.CompressedBytes)),
		"elapsed", report.Elapsed,
	)
	return manifest, nil
}

// removeStale deletes chunk files numbered at or beyond chunks, and the
// header file when the new layout has none.
func removeStale(dir string, chunks int, hasHeader bool) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		name := entry.Name()
		stale := name == chunkplan.HeaderName && !hasHeader
		if index, ok := chunkplan.ParseChunkName(name); ok && index >= chunks {
			stale = true
		}
		if !stale || !entry.Type().IsRegular() {
			continue
		}
		if err := removeIfExists(filepath.Join(dir, name)); err != nil {
			return err
		}
	}
	return nil
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (w *Writer) scheduler() *fanout.Scheduler {
	if w.Scheduler == nil {
		return &fanout.Scheduler{Logger: w.Logger}
	}
	return w.Scheduler
}

func (w *Writer) logger() *slog.Logger {
	if w.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return w.Logger
}
