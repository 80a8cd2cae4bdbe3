// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zip"
	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/cpack/lib/atomicfile"
	"github.com/bureau-foundation/cpack/lib/compressor"
)

// Reader reads a container. Entry names are loaded when the container is
// opened; the codec descriptor is loaded on first use. A Reader is safe
// for concurrent use until Close.
type Reader struct {
	path    string
	file    *os.File
	archive *zip.Reader

	// names lists every member in container order, metadata included.
	names   []string
	members map[string]*zip.File

	external compressor.Codec
	workers  int
	logger   *slog.Logger

	loadOnce   sync.Once
	descriptor compressor.Descriptor
	codec      compressor.Codec
	loadErr    error
}

// Option configures Open.
type Option func(*Reader)

// WithCodec decodes entries with codec instead of the container's own
// descriptor. Required for containers without a compressor.json entry.
func WithCodec(codec compressor.Codec) Option {
	return func(r *Reader) { r.external = codec }
}

// WithWorkers decompresses up to n entries in parallel during Extract.
// The default of 1 decodes sequentially.
func WithWorkers(n int) Option {
	return func(r *Reader) { r.workers = max(1, n) }
}

// WithLogger sets the logger for extraction progress.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reader) { r.logger = logger }
}

// Open opens the container at path and lists its entries.
func Open(path string, options ...Option) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	archive, err := zip.NewReader(file, info.Size())
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		file.Close()
		return nil, fmt.Errorf("opening container %s: %w", path, err)
	}

	reader := &Reader{
		path:    path,
		file:    file,
		archive: archive,
		members: make(map[string]*zip.File, len(archive.File)),
		workers: 1,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, option := range options {
		option(reader)
	}
	for _, member := range archive.File {
		if _, exists := reader.members[member.Name]; exists {
			continue
		}
		reader.names = append(reader.names, member.Name)
		reader.members[member.Name] = member
	}
	return reader, nil
}

// Path returns the container's location.
func (r *Reader) Path() string { return r.path }

// Entries returns the entry names in container order. The metadata entry
// is included only when includeMetadata is set.
func (r *Reader) Entries(includeMetadata bool) []string {
	names := make([]string, 0, len(r.names))
	for _, name := range r.names {
		if name == compressor.MetadataName && !includeMetadata {
			continue
		}
		names = append(names, name)
	}
	return names
}

// HasDescriptor reports whether the container carries compressor.json.
func (r *Reader) HasDescriptor() bool {
	_, ok := r.members[compressor.MetadataName]
	return ok
}

// Descriptor returns the codec descriptor: the container's own when it
// has one, otherwise the descriptor of the codec supplied with
// WithCodec. It fails with *compressor.FormatError when neither exists.
func (r *Reader) Descriptor() (compressor.Descriptor, error) {
	r.load()
	return r.descriptor, r.loadErr
}

// load resolves the descriptor and codec once. The outcome, including a
// failure, is cached.
func (r *Reader) load() {
	r.loadOnce.Do(func() {
		if !r.HasDescriptor() {
			if r.external == nil {
				r.loadErr = fmt.Errorf("%s: %w", r.path, &compressor.FormatError{
					Reason: "container has no " + compressor.MetadataName + " entry and no codec was supplied",
				})
				return
			}
			r.descriptor = r.external.Describe()
			r.codec = r.external
			return
		}

		raw, err := r.ReadRaw(compressor.MetadataName)
		if err != nil {
			r.loadErr = err
			return
		}
		descriptor, err := compressor.ParseDescriptor(raw)
		if err != nil {
			r.loadErr = fmt.Errorf("%s: %w", r.path, err)
			return
		}
		r.descriptor = descriptor
		if r.external != nil {
			r.codec = r.external
			return
		}
		codec, err := descriptor.Instantiate()
		if err != nil {
			r.loadErr = fmt.Errorf("%s: %w", r.path, err)
			return
		}
		r.codec = codec
	})
}

// ReadRaw returns an entry's stored bytes without decompressing them.
func (r *Reader) ReadRaw(name string) ([]byte, error) {
	member, ok := r.members[name]
	if !ok {
		return nil, &EntryNotFoundError{Container: r.path, Names: []string{name}}
	}
	stream, err := member.Open()
	if err != nil {
		return nil, &DecodeError{Entry: name, Err: err}
	}
	defer stream.Close()

	// The recorded size is only a hint; a damaged header must not
	// trigger a huge allocation.
	var buffer bytes.Buffer
	buffer.Grow(int(min(member.UncompressedSize64, maxSizeHint)))
	if _, err := buffer.ReadFrom(stream); err != nil {
		return nil, &DecodeError{Entry: name, Err: err}
	}
	return buffer.Bytes(), nil
}

const maxSizeHint = 1 << 30

// Selection chooses the entries to extract.
type Selection struct {
	all   bool
	names []string
}

// All selects every content entry in container order. The metadata
// entry is not part of All.
func All() Selection { return Selection{all: true} }

// Names selects the named entries. Naming compressor.json explicitly
// returns it raw.
func Names(names ...string) Selection { return Selection{names: names} }

// Target is where extracted entries go: ToMemory or ToDirectory.
type Target interface {
	isTarget()
}

// ToMemory returns decoded entries in Extraction.Files.
type ToMemory struct{}

// ToDirectory writes decoded entries under Root, creating parent
// directories and overwriting existing files.
type ToDirectory struct {
	Root string
}

func (ToMemory) isTarget()    {}
func (ToDirectory) isTarget() {}

// Extraction is the outcome of Extract.
type Extraction struct {
	// Files maps entry names to decoded bytes (ToMemory only).
	Files map[string][]byte

	// Written lists the paths created, in request order (ToDirectory
	// only).
	Written []string
}

// Single returns the decoded bytes when exactly one entry was extracted
// to memory.
func (e *Extraction) Single() ([]byte, bool) {
	if len(e.Files) != 1 {
		return nil, false
	}
	for _, data := range e.Files {
		return data, true
	}
	return nil, false
}

// Extract decodes the selected entries into target.
//
// Every requested name is checked first: if any is missing the call
// fails with *EntryNotFoundError and produces no output. For ToDirectory
// targets, names that would resolve outside Root are likewise rejected
// up front with *InvalidNameError. A decode failure returns
// *DecodeError; files already written stay in place.
func (r *Reader) Extract(ctx context.Context, selection Selection, target Target) (*Extraction, error) {
	names, err := r.resolve(selection)
	if err != nil {
		return nil, err
	}

	var (
		root   string
		toDisk bool
	)
	switch target := target.(type) {
	case ToMemory:
	case ToDirectory:
		root, toDisk = target.Root, true
		for _, name := range names {
			if !filepath.IsLocal(filepath.FromSlash(name)) {
				return nil, &InvalidNameError{Name: name, Reason: "escapes the extraction root"}
			}
		}
	default:
		return nil, fmt.Errorf("unsupported extraction target %T", target)
	}

	var codec compressor.Codec
	for _, name := range names {
		if name != compressor.MetadataName {
			r.load()
			if r.loadErr != nil {
				return nil, r.loadErr
			}
			codec = r.codec
			break
		}
	}

	extraction := &Extraction{}
	if !toDisk {
		extraction.Files = make(map[string][]byte, len(names))
	}
	written := make([]string, len(names))

	var lock sync.Mutex
	group, groupContext := errgroup.WithContext(ctx)
	group.SetLimit(r.workers)
	for index, name := range names {
		if groupContext.Err() != nil {
			break
		}
		group.Go(func() error {
			if err := groupContext.Err(); err != nil {
				return err
			}
			data, err := r.decode(name, codec)
			if err != nil {
				return err
			}
			if !toDisk {
				lock.Lock()
				extraction.Files[name] = data
				lock.Unlock()
				return nil
			}
			path, err := writeUnder(root, name, data)
			if err != nil {
				return err
			}
			written[index] = path
			return nil
		})
	}
	err = group.Wait()

	for _, path := range written {
		if path != "" {
			extraction.Written = append(extraction.Written, path)
		}
	}
	if err != nil {
		return extraction, err
	}
	if err := ctx.Err(); err != nil {
		return extraction, err
	}

	r.logger.Debug("entries extracted", "container", r.path, "entries", len(names), "root", root)
	return extraction, nil
}

// ReadEntry decodes a single entry.
func (r *Reader) ReadEntry(ctx context.Context, name string) ([]byte, error) {
	extraction, err := r.Extract(ctx, Names(name), ToMemory{})
	if err != nil {
		return nil, err
	}
	data, _ := extraction.Single()
	return data, nil
}

// resolve expands a selection to a deduplicated name list, failing with
// every missing name.
func (r *Reader) resolve(selection Selection) ([]string, error) {
	if selection.all {
		return r.Entries(false), nil
	}
	names := make([]string, 0, len(selection.names))
	seen := make(map[string]struct{}, len(selection.names))
	var missing []string
	for _, name := range selection.names {
		if _, duplicate := seen[name]; duplicate {
			continue
		}
		seen[name] = struct{}{}
		if _, ok := r.members[name]; !ok {
			missing = append(missing, name)
			continue
		}
		names = append(names, name)
	}
	if len(missing) > 0 {
		return nil, &EntryNotFoundError{Container: r.path, Names: missing}
	}
	return names, nil
}

// decode returns an entry's decompressed bytes. The metadata entry is
// returned raw.
func (r *Reader) decode(name string, codec compressor.Codec) ([]byte, error) {
	raw, err := r.ReadRaw(name)
	if err != nil {
		return nil, err
	}
	if name == compressor.MetadataName {
		return raw, nil
	}
	data, err := codec.Decode(raw)
	if err != nil {
		return nil, &DecodeError{Entry: name, Err: err}
	}
	return data, nil
}

// writeUnder writes data to root/name, creating parent directories.
func writeUnder(root, name string, data []byte) (string, error) {
	path := filepath.Join(root, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating directory for %q: %w", name, err)
	}
	if err := atomicfile.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing %q: %w", name, err)
	}
	return path, nil
}

// Close releases the container file.
func (r *Reader) Close() error {
	return r.file.Close()
}
