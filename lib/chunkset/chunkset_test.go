// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chunkset

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bureau-foundation/cpack/lib/chunkplan"
	"github.com/bureau-foundation/cpack/lib/compressor"
	"github.com/bureau-foundation/cpack/lib/fanout"
	"github.com/bureau-foundation/cpack/lib/testutil"
)

func defaultCodec(t *testing.T) compressor.Codec {
	t.Helper()
	codec, err := compressor.DefaultDescriptor().Instantiate()
	if err != nil {
		t.Fatalf("Instantiate failed: %v", err)
	}
	return codec
}

func writeSource(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "volume.raw")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func newWriter() *Writer {
	return &Writer{Scheduler: &fanout.Scheduler{Workers: 4}}
}

func dirNames(t *testing.T, dir string) []string {
	t.Helper()
	var names []string
	for name := range testutil.ReadTree(t, dir) {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func TestWriteAndReassemble(t *testing.T) {
	tests := []struct {
		name         string
		size         int
		headerLength int64
		chunkSize    int64
	}{
		{"empty file", 0, 0, 4},
		{"shorter than a chunk", 3, 0, 4},
		{"remainder chunk", 10, 0, 4},
		{"exact multiple", 12, 0, 4},
		{"header and chunks", 10, 3, 4},
		{"header is whole file", 5, 5, 4},
		{"many chunks", 1000, 7, 64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := testutil.RandomData(int64(tt.size), tt.size)
			source := writeSource(t, data)
			outDir := filepath.Join(t.TempDir(), "set")

			manifest, err := newWriter().Write(context.Background(), source, outDir, defaultCodec(t),
				Layout{ChunkSize: tt.chunkSize, HeaderLength: tt.headerLength})
			if err != nil {
				t.Fatalf("Write failed: %v", err)
			}

			ranges, err := chunkplan.Plan(int64(tt.size), tt.headerLength, tt.chunkSize)
			if err != nil {
				t.Fatalf("Plan failed: %v", err)
			}
			want := []string{compressor.MetadataName, ManifestName}
			if tt.headerLength > 0 {
				want = append(want, chunkplan.HeaderName)
			}
			for _, r := range ranges {
				want = append(want, r.Name())
			}
			slices.Sort(want)
			if diff := cmp.Diff(want, dirNames(t, outDir)); diff != "" {
				t.Errorf("chunk set files mismatch (-want +got):\n%s", diff)
			}
			if len(manifest.Chunks) != len(ranges) || manifest.Size != int64(tt.size) {
				t.Errorf("manifest = %d chunks, size %d; want %d chunks, size %d",
					len(manifest.Chunks), manifest.Size, len(ranges), tt.size)
			}

			set, err := Open(outDir)
			if err != nil {
				t.Fatalf("Open failed: %v", err)
			}
			if set.Manifest() == nil {
				t.Fatal("Open did not load the manifest")
			}
			var output bytes.Buffer
			written, err := set.Reassemble(context.Background(), &output)
			if err != nil {
				t.Fatalf("Reassemble failed: %v", err)
			}
			if written != int64(tt.size) || !bytes.Equal(output.Bytes(), data) {
				t.Errorf("Reassemble produced %d bytes, want the %d source bytes", written, tt.size)
			}
		})
	}
}

func TestChunksDecodeToTheirRanges(t *testing.T) {
	data := testutil.PatternData(100)
	source := writeSource(t, data)
	outDir := t.TempDir()
	codec := defaultCodec(t)

	if _, err := newWriter().Write(context.Background(), source, outDir, codec, Layout{ChunkSize: 32, HeaderLength: 4}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	header, _ := chunkplan.Header(4)
	ranges, _ := chunkplan.Plan(100, 4, 32)
	for _, r := range append([]chunkplan.Range{header}, ranges...) {
		raw, err := os.ReadFile(filepath.Join(outDir, r.Name()))
		if err != nil {
			t.Fatalf("reading %s: %v", r.Name(), err)
		}
		decoded, err := codec.Decode(raw)
		if err != nil {
			t.Fatalf("decoding %s: %v", r.Name(), err)
		}
		if !bytes.Equal(decoded, data[r.Start:r.End]) {
			t.Errorf("%s decodes to %d bytes that do not match the source range", r, len(decoded))
		}
	}
}

func TestDescriptorWritten(t *testing.T) {
	source := writeSource(t, []byte("payload"))
	outDir := t.TempDir()
	descriptor := compressor.Descriptor{ID: "blosc", Name: "lz4", Level: 9, Shuffle: compressor.BitShuffle, TypeSize: 1}
	codec, err := descriptor.Instantiate()
	if err != nil {
		t.Fatalf("Instantiate failed: %v", err)
	}
	if _, err := newWriter().Write(context.Background(), source, outDir, codec, Layout{}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	set, err := Open(outDir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if diff := cmp.Diff(codec.Describe(), set.Descriptor()); diff != "" {
		t.Errorf("descriptor mismatch (-want +got):\n%s", diff)
	}
	if set.Manifest().ChunkSize != DefaultChunkSize {
		t.Errorf("ChunkSize = %d, want default %d", set.Manifest().ChunkSize, DefaultChunkSize)
	}
}

func TestStalePiecesRemoved(t *testing.T) {
	source := writeSource(t, testutil.PatternData(10))
	outDir := t.TempDir()
	codec := defaultCodec(t)

	if _, err := newWriter().Write(context.Background(), source, outDir, codec, Layout{ChunkSize: 2, HeaderLength: 2}); err != nil {
		t.Fatalf("first Write failed: %v", err)
	}
	if _, err := newWriter().Write(context.Background(), source, outDir, codec, Layout{ChunkSize: 5}); err != nil {
		t.Fatalf("second Write failed: %v", err)
	}

	want := []string{"00000", "00001", compressor.MetadataName, ManifestName}
	if diff := cmp.Diff(want, dirNames(t, outDir)); diff != "" {
		t.Errorf("files after rewrite mismatch (-want +got):\n%s", diff)
	}
}

func TestUnrelatedFilesKept(t *testing.T) {
	source := writeSource(t, testutil.PatternData(10))
	outDir := t.TempDir()
	testutil.WriteTree(t, outDir, map[string][]byte{"README": []byte("notes"), "0001": []byte("x")})

	if _, err := newWriter().Write(context.Background(), source, outDir, defaultCodec(t), Layout{ChunkSize: 4}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	tree := testutil.ReadTree(t, outDir)
	if string(tree["README"]) != "notes" || string(tree["0001"]) != "x" {
		t.Error("Write removed files that are not chunk-set pieces")
	}
}

func TestManifestDeterministic(t *testing.T) {
	source := writeSource(t, testutil.RandomData(3, 5000))
	codec := defaultCodec(t)

	var manifests [][]byte
	for range 2 {
		outDir := t.TempDir()
		if _, err := newWriter().Write(context.Background(), source, outDir, codec, Layout{ChunkSize: 700, HeaderLength: 100}); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		data, err := os.ReadFile(filepath.Join(outDir, ManifestName))
		if err != nil {
			t.Fatalf("reading manifest: %v", err)
		}
		manifests = append(manifests, data)
	}
	if !bytes.Equal(manifests[0], manifests[1]) {
		t.Error("manifests of identical writes differ")
	}
}

func TestWriteErrors(t *testing.T) {
	source := writeSource(t, []byte("0123456789"))
	codec := defaultCodec(t)

	tests := []struct {
		name   string
		source string
		layout Layout
	}{
		{"header longer than file", source, Layout{HeaderLength: 11}},
		{"negative chunk size", source, Layout{ChunkSize: -1}},
		{"missing source", filepath.Join(t.TempDir(), "absent"), Layout{}},
		{"directory source", t.TempDir(), Layout{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outDir := filepath.Join(t.TempDir(), "set")
			if _, err := newWriter().Write(context.Background(), tt.source, outDir, codec, tt.layout); err == nil {
				t.Fatal("Write should fail")
			}
			if _, err := os.Stat(outDir); !errors.Is(err, os.ErrNotExist) {
				t.Errorf("output directory created for a rejected write: %v", err)
			}
		})
	}
}

func TestWriteCancelled(t *testing.T) {
	source := writeSource(t, testutil.PatternData(1000))
	outDir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newWriter().Write(ctx, source, outDir, defaultCodec(t), Layout{ChunkSize: 100})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Write error = %v, want context.Canceled", err)
	}
	if _, err := os.Stat(filepath.Join(outDir, ManifestName)); !errors.Is(err, os.ErrNotExist) {
		t.Error("manifest written for a cancelled write")
	}
}

func writeSet(t *testing.T, data []byte, layout Layout) string {
	t.Helper()
	outDir := t.TempDir()
	if _, err := newWriter().Write(context.Background(), writeSource(t, data), outDir, defaultCodec(t), layout); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	return outDir
}

func TestOpenMissingChunk(t *testing.T) {
	outDir := writeSet(t, testutil.PatternData(10), Layout{ChunkSize: 2})
	if err := os.Remove(filepath.Join(outDir, "00001")); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	_, err := Open(outDir)
	var integrity *IntegrityError
	if !errors.As(err, &integrity) {
		t.Fatalf("Open error = %v, want *IntegrityError", err)
	}
	if integrity.Piece != "00001" {
		t.Errorf("Piece = %q, want 00001", integrity.Piece)
	}
}

func TestOpenTruncatedSet(t *testing.T) {
	outDir := writeSet(t, testutil.PatternData(10), Layout{ChunkSize: 2})
	if err := os.Remove(filepath.Join(outDir, "00004")); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	var integrity *IntegrityError
	if _, err := Open(outDir); !errors.As(err, &integrity) {
		t.Fatalf("Open error = %v, want *IntegrityError", err)
	}
}

func TestOpenHeaderMismatch(t *testing.T) {
	outDir := writeSet(t, testutil.PatternData(10), Layout{ChunkSize: 4, HeaderLength: 2})
	if err := os.Remove(filepath.Join(outDir, chunkplan.HeaderName)); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	var integrity *IntegrityError
	if _, err := Open(outDir); !errors.As(err, &integrity) {
		t.Fatalf("Open error = %v, want *IntegrityError", err)
	}
}

func TestOpenWithoutManifest(t *testing.T) {
	data := testutil.RandomData(9, 300)
	outDir := writeSet(t, data, Layout{ChunkSize: 64, HeaderLength: 10})
	if err := os.Remove(filepath.Join(outDir, ManifestName)); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	set, err := Open(outDir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if set.Manifest() != nil {
		t.Error("Manifest() should be nil without manifest.cbor")
	}
	if !set.HasHeader() || set.Chunks() != 5 {
		t.Errorf("HasHeader = %v, Chunks = %d; want true, 5", set.HasHeader(), set.Chunks())
	}
	var output bytes.Buffer
	if _, err := set.Reassemble(context.Background(), &output); err != nil {
		t.Fatalf("Reassemble failed: %v", err)
	}
	if !bytes.Equal(output.Bytes(), data) {
		t.Error("reassembled bytes differ from the source")
	}
}

func TestOpenWithoutDescriptor(t *testing.T) {
	outDir := writeSet(t, []byte("abc"), Layout{})
	if err := os.Remove(filepath.Join(outDir, compressor.MetadataName)); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := Open(outDir); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Open error = %v, want not-exist", err)
	}
}

func TestReassembleDetectsReplacedChunk(t *testing.T) {
	outDir := writeSet(t, testutil.PatternData(64), Layout{ChunkSize: 16})
	codec := defaultCodec(t)

	// Same length, different content.
	replacement, err := codec.Encode(testutil.RandomData(1, 16))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(outDir, "00002"), replacement, 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	set, err := Open(outDir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	var integrity *IntegrityError
	if err := set.Verify(context.Background()); !errors.As(err, &integrity) {
		t.Fatalf("Verify error = %v, want *IntegrityError", err)
	}
	if integrity.Piece != "00002" {
		t.Errorf("Piece = %q, want 00002", integrity.Piece)
	}
}

func TestReassembleDetectsCorruptChunk(t *testing.T) {
	outDir := writeSet(t, testutil.PatternData(64), Layout{ChunkSize: 16})
	if err := os.WriteFile(filepath.Join(outDir, "00001"), []byte("not a frame"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	set, err := Open(outDir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	var output bytes.Buffer
	written, err := set.Reassemble(context.Background(), &output)
	var integrity *IntegrityError
	if !errors.As(err, &integrity) || !errors.Is(err, compressor.ErrCorrupt) {
		t.Fatalf("Reassemble error = %v, want *IntegrityError wrapping ErrCorrupt", err)
	}
	if written != 16 {
		t.Errorf("written = %d, want the 16 bytes of chunk 00000", written)
	}
}

func TestReassembleCancelled(t *testing.T) {
	outDir := writeSet(t, testutil.PatternData(64), Layout{ChunkSize: 16})
	set, err := Open(outDir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := set.Reassemble(ctx, &bytes.Buffer{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Reassemble error = %v, want context.Canceled", err)
	}
}

func TestReassembleFile(t *testing.T) {
	data := testutil.RandomData(5, 4096)
	outDir := writeSet(t, data, Layout{ChunkSize: 1000, HeaderLength: 512})
	set, err := Open(outDir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "restored.raw")
	if err := os.WriteFile(path, []byte("stale"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	written, err := set.ReassembleFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ReassembleFile failed: %v", err)
	}
	restored, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if written != int64(len(data)) || !bytes.Equal(restored, data) {
		t.Errorf("restored %d bytes that differ from the source", written)
	}
}

func TestReassembleFileLeavesTargetOnFailure(t *testing.T) {
	outDir := writeSet(t, testutil.PatternData(64), Layout{ChunkSize: 16})
	if err := os.WriteFile(filepath.Join(outDir, "00003"), []byte("garbage"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	set, err := Open(outDir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	target := t.TempDir()
	path := filepath.Join(target, "restored.raw")
	if err := os.WriteFile(path, []byte("previous"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := set.ReassembleFile(context.Background(), path); err == nil {
		t.Fatal("ReassembleFile should fail on a corrupt chunk")
	}
	if diff := cmp.Diff(map[string][]byte{"restored.raw": []byte("previous")}, testutil.ReadTree(t, target)); diff != "" {
		t.Errorf("target directory changed (-want +got):\n%s", diff)
	}
}

func TestManifestValidate(t *testing.T) {
	valid := func() *Manifest {
		return &Manifest{
			Version:      ManifestVersion,
			Size:         10,
			HeaderLength: 2,
			ChunkSize:    4,
			Header:       &Piece{Name: "header", Start: 0, End: 2},
			Chunks: []Piece{
				{Name: "00000", Start: 2, End: 6},
				{Name: "00001", Start: 6, End: 10},
			},
		}
	}
	if err := valid().Validate(); err != nil {
		t.Fatalf("Validate of a consistent manifest failed: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Manifest)
	}{
		{"version zero", func(m *Manifest) { m.Version = 0 }},
		{"missing header", func(m *Manifest) { m.Header = nil }},
		{"unexpected header", func(m *Manifest) { m.HeaderLength = 0 }},
		{"extra chunk", func(m *Manifest) { m.Chunks = append(m.Chunks, Piece{Name: "00002", Start: 10, End: 10}) }},
		{"gap", func(m *Manifest) { m.Chunks[1].Start = 7 }},
		{"wrong name", func(m *Manifest) { m.Chunks[0].Name = "00007" }},
		{"negative compressed size", func(m *Manifest) { m.Chunks[0].CompressedSize = -1 }},
		{"zero chunk size", func(m *Manifest) { m.ChunkSize = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manifest := valid()
			tt.mutate(manifest)
			if err := manifest.Validate(); err == nil {
				t.Error("Validate should fail")
			}
		})
	}
}

func TestManifestRoundTrip(t *testing.T) {
	manifest := &Manifest{
		Version:   ManifestVersion,
		Source:    "disk.img",
		Size:      5,
		ChunkSize: 8,
		Chunks:    []Piece{{Name: "00000", Start: 0, End: 5, CompressedSize: 21, Hash: HashBytes([]byte("hello"))}},
	}
	data, err := MarshalManifest(manifest)
	if err != nil {
		t.Fatalf("MarshalManifest failed: %v", err)
	}
	decoded, err := UnmarshalManifest(data)
	if err != nil {
		t.Fatalf("UnmarshalManifest failed: %v", err)
	}
	if diff := cmp.Diff(manifest, decoded); diff != "" {
		t.Errorf("manifest mismatch (-want +got):\n%s", diff)
	}
}

func TestHashText(t *testing.T) {
	hash := HashBytes([]byte("abc"))
	text, err := hash.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText failed: %v", err)
	}
	var parsed Hash
	if err := parsed.UnmarshalText(text); err != nil {
		t.Fatalf("UnmarshalText failed: %v", err)
	}
	if parsed != hash {
		t.Errorf("parsed %s, want %s", parsed, hash)
	}
	if err := parsed.UnmarshalText([]byte("abcd")); err == nil {
		t.Error("UnmarshalText of a short hash should fail")
	}
}
