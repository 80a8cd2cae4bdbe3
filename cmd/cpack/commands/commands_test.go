// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bureau-foundation/cpack/cmd/cpack/cli"
	"github.com/bureau-foundation/cpack/lib/chunkset"
	"github.com/bureau-foundation/cpack/lib/config"
	"github.com/bureau-foundation/cpack/lib/testutil"
)

// execute runs the cpack command tree with args and returns what it
// wrote to stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv(config.EnvironmentVariable, "")

	var stdout, stderr bytes.Buffer
	previousOut, previousErr := cli.Stdout, cli.Stderr
	cli.Stdout, cli.Stderr = &stdout, &stderr
	defer func() { cli.Stdout, cli.Stderr = previousOut, previousErr }()

	err := Root(slog.New(slog.DiscardHandler), new(slog.LevelVar)).Execute(context.Background(), args)
	return stdout.String(), err
}

func mustExecute(t *testing.T, args ...string) string {
	t.Helper()
	output, err := execute(t, args...)
	if err != nil {
		t.Fatalf("cpack %s: %v", strings.Join(args, " "), err)
	}
	return output
}

func exitCode(err error) int {
	var exitError *cli.ExitError
	if errors.As(err, &exitError) {
		return exitError.ExitCode()
	}
	return -1
}

func sampleTree() map[string][]byte {
	return map[string][]byte{
		"notes.txt":          []byte("first run\n"),
		"logs/train.log":     bytes.Repeat([]byte("step loss=0.125\n"), 500),
		"weights/layer0.bin": testutil.PatternData(20000),
		"empty":              {},
	}
}

func TestPackListExtractVerify(t *testing.T) {
	input := t.TempDir()
	files := sampleTree()
	testutil.WriteTree(t, input, files)
	container := filepath.Join(t.TempDir(), "run.zip")

	output := mustExecute(t, "pack", input, container, "--verify", "--algorithm", "sha256", "--json")
	var summary packSummary
	if err := json.Unmarshal([]byte(output), &summary); err != nil {
		t.Fatalf("pack --json output %q: %v", output, err)
	}
	if summary.Entries != len(files) {
		t.Errorf("Entries = %d, want %d", summary.Entries, len(files))
	}
	if summary.Sidecar != container+".sha256.json" {
		t.Errorf("Sidecar = %q", summary.Sidecar)
	}
	if summary.Verified == nil || !*summary.Verified {
		t.Errorf("Verified = %v, want true", summary.Verified)
	}

	output = mustExecute(t, "list", container, "--json")
	var names []string
	if err := json.Unmarshal([]byte(output), &names); err != nil {
		t.Fatalf("list --json output %q: %v", output, err)
	}
	want := []string{"empty", "logs/train.log", "notes.txt", "weights/layer0.bin"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("list mismatch (-want +got):\n%s", diff)
	}

	output = mustExecute(t, "list", container, "--all")
	if !strings.HasPrefix(output, "compressor.json\n") {
		t.Errorf("list --all should start with compressor.json:\n%s", output)
	}

	restored := t.TempDir()
	mustExecute(t, "extract", container, "-o", restored)
	if diff := cmp.Diff(files, testutil.ReadTree(t, restored)); diff != "" {
		t.Errorf("extracted tree mismatch (-want +got):\n%s", diff)
	}

	output = mustExecute(t, "extract", container, "notes.txt", "--stdout")
	if output != "first run\n" {
		t.Errorf("extract --stdout = %q", output)
	}

	output = mustExecute(t, "verify", container, "--decode")
	if !strings.Contains(output, "OK sha256") {
		t.Errorf("verify output = %q, want OK with the sidecar algorithm", output)
	}
}

func TestVerifyDetectsModifiedContainer(t *testing.T) {
	input := t.TempDir()
	testutil.WriteTree(t, input, sampleTree())
	container := filepath.Join(t.TempDir(), "run.zip")
	mustExecute(t, "pack", input, container, "--checksum")

	data, err := os.ReadFile(container)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	data[len(data)/2] ^= 0xff
	if err := os.WriteFile(container, data, 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	output, err := execute(t, "verify", container)
	if code := exitCode(err); code != 1 {
		t.Fatalf("verify error = %v, want exit code 1", err)
	}
	if !strings.Contains(output, "FAILED md5") {
		t.Errorf("verify output = %q, want a FAILED md5 line", output)
	}
}

func TestVerifyWithoutSidecar(t *testing.T) {
	input := t.TempDir()
	testutil.WriteTree(t, input, sampleTree())
	container := filepath.Join(t.TempDir(), "run.zip")
	mustExecute(t, "pack", input, container)

	_, err := execute(t, "verify", container)
	if err == nil || !strings.Contains(err.Error(), "no checksum sidecar") {
		t.Errorf("verify error = %v, want a missing sidecar error", err)
	}
}

func TestSplitJoin(t *testing.T) {
	data := testutil.RandomData(7, 5000)
	source := filepath.Join(t.TempDir(), "volume.raw")
	if err := os.WriteFile(source, data, 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	setDir := filepath.Join(t.TempDir(), "volume.cpack")

	output := mustExecute(t, "split", source, setDir,
		"--chunk-size", "1KiB", "--header-length", "100",
		"--codec", "zstd", "--clevel", "3", "--json")
	var manifest chunkset.Manifest
	if err := json.Unmarshal([]byte(output), &manifest); err != nil {
		t.Fatalf("split --json output %q: %v", output, err)
	}
	if manifest.Header == nil || manifest.HeaderLength != 100 {
		t.Errorf("manifest header = %+v, length %d; want 100 bytes", manifest.Header, manifest.HeaderLength)
	}
	if len(manifest.Chunks) != 5 {
		t.Errorf("chunks = %d, want 5", len(manifest.Chunks))
	}
	if err := manifest.Validate(); err != nil {
		t.Errorf("manifest from --json does not validate: %v", err)
	}

	target := filepath.Join(t.TempDir(), "restored.raw")
	mustExecute(t, "join", setDir, target)
	restored, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !bytes.Equal(restored, data) {
		t.Error("joined file differs from the source")
	}

	if output := mustExecute(t, "join", setDir, "-"); output != string(data) {
		t.Error("join to stdout differs from the source")
	}

	output = mustExecute(t, "list", setDir)
	wantPieces := "header\n00000\n00001\n00002\n00003\n00004\n"
	if output != wantPieces {
		t.Errorf("list = %q, want %q", output, wantPieces)
	}

	output = mustExecute(t, "verify", setDir)
	if !strings.Contains(output, "OK") {
		t.Errorf("verify output = %q, want OK", output)
	}
}

func TestVerifyDetectsDamagedChunk(t *testing.T) {
	source := filepath.Join(t.TempDir(), "volume.raw")
	if err := os.WriteFile(source, testutil.PatternData(4096), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	setDir := filepath.Join(t.TempDir(), "volume.cpack")
	mustExecute(t, "split", source, setDir, "--chunk-size", "1024")

	if err := os.WriteFile(filepath.Join(setDir, "00002"), []byte("not a compressed frame"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	output, err := execute(t, "verify", setDir, "--json")
	if code := exitCode(err); code != 1 {
		t.Fatalf("verify error = %v, want exit code 1", err)
	}
	var result verifyResult
	if err := json.Unmarshal([]byte(output), &result); err != nil {
		t.Fatalf("verify --json output %q: %v", output, err)
	}
	if result.OK || !strings.Contains(result.Error, "00002") {
		t.Errorf("verify result = %+v, want a failure naming 00002", result)
	}

	if _, err := execute(t, "join", setDir, filepath.Join(t.TempDir(), "out")); err == nil {
		t.Error("join of a damaged set should fail")
	}
}

func TestShow(t *testing.T) {
	input := t.TempDir()
	testutil.WriteTree(t, input, sampleTree())
	container := filepath.Join(t.TempDir(), "run.zip")
	mustExecute(t, "pack", input, container, "--cname", "lz4", "--clevel", "9", "--shuffle", "bit")

	output := mustExecute(t, "show", container, "--json")
	var result showResult
	if err := json.Unmarshal([]byte(output), &result); err != nil {
		t.Fatalf("show --json output %q: %v", output, err)
	}
	if result.Kind != "container" || result.Entries == nil || *result.Entries != 4 {
		t.Errorf("show = %+v, want a container with 4 entries", result)
	}
	var descriptor map[string]any
	if err := json.Unmarshal(result.Descriptor, &descriptor); err != nil {
		t.Fatalf("descriptor %s: %v", result.Descriptor, err)
	}
	wantDescriptor := map[string]any{"id": "blosc", "cname": "lz4", "clevel": 9.0, "shuffle": 2.0, "blocksize": 0.0}
	if diff := cmp.Diff(wantDescriptor, descriptor); diff != "" {
		t.Errorf("descriptor mismatch (-want +got):\n%s", diff)
	}

	output = mustExecute(t, "show", container)
	if !strings.Contains(output, "entries: 4") || !strings.Contains(output, `"cname": "lz4"`) {
		t.Errorf("show output:\n%s", output)
	}
}

func TestShowChunkSet(t *testing.T) {
	source := filepath.Join(t.TempDir(), "volume.raw")
	if err := os.WriteFile(source, testutil.PatternData(3000), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	setDir := filepath.Join(t.TempDir(), "volume.cpack")
	mustExecute(t, "split", source, setDir, "--chunk-size", "1000")

	output := mustExecute(t, "show", setDir)
	for _, want := range []string{"(chunk-set)", "source: volume.raw", "PIECE", "00002"} {
		if !strings.Contains(output, want) {
			t.Errorf("show output missing %q:\n%s", want, output)
		}
	}

	output = mustExecute(t, "show", setDir, "--diag")
	if !strings.Contains(output, `"version": 1`) {
		t.Errorf("show --diag output = %q, want the manifest version", output)
	}
}

func TestConfigFileAndOverrides(t *testing.T) {
	input := t.TempDir()
	testutil.WriteTree(t, input, sampleTree())
	configPath := filepath.Join(t.TempDir(), "cpack.yaml")
	content := "codec:\n  id: zstd\n  clevel: 7\nchecksum:\n  enabled: true\n  algorithm: blake3\n"
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	container := filepath.Join(t.TempDir(), "run.zip")
	output := mustExecute(t, "pack", input, container, "--config", configPath, "--json")
	var summary packSummary
	if err := json.Unmarshal([]byte(output), &summary); err != nil {
		t.Fatalf("pack --json output %q: %v", output, err)
	}
	if summary.Codec != "zstd cname=zstd clevel=7 shuffle=0 blocksize=0" {
		t.Errorf("Codec = %q, want %q", summary.Codec, "zstd cname=zstd clevel=7 shuffle=0 blocksize=0")
	}
	if summary.Sidecar != container+".blake3.json" {
		t.Errorf("Sidecar = %q, want the blake3 sidecar", summary.Sidecar)
	}

	container = filepath.Join(t.TempDir(), "run.zip")
	output = mustExecute(t, "pack", input, container, "--config", configPath, "--clevel", "19", "--checksum=false", "--json")
	summary = packSummary{}
	if err := json.Unmarshal([]byte(output), &summary); err != nil {
		t.Fatalf("pack --json output %q: %v", output, err)
	}
	if summary.Codec != "zstd cname=zstd clevel=19 shuffle=0 blocksize=0" || summary.Sidecar != "" {
		t.Errorf("summary = %+v, want zstd level 19 without a sidecar", summary)
	}
}

func TestInvalidSettings(t *testing.T) {
	input := t.TempDir()
	testutil.WriteTree(t, input, sampleTree())
	container := filepath.Join(t.TempDir(), "run.zip")

	tests := []struct {
		name  string
		args  []string
		field string
	}{
		{"level out of range", []string{"--clevel", "12"}, "codec"},
		{"unknown codec", []string{"--codec", "brotli"}, "codec"},
		{"bad shuffle", []string{"--shuffle", "sideways"}, "--shuffle"},
		{"bad policy", []string{"--on-error", "ignore"}, "on_error"},
		{"bad algorithm", []string{"--checksum", "--algorithm", "crc32"}, "checksum.algorithm"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			args := append([]string{"pack", input, container}, test.args...)
			_, err := execute(t, args...)
			var configError *config.ConfigurationError
			if !errors.As(err, &configError) {
				t.Fatalf("error = %v, want *config.ConfigurationError", err)
			}
			if configError.Field != test.field {
				t.Errorf("Field = %q, want %q", configError.Field, test.field)
			}
		})
	}
	if _, err := os.Stat(container); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("container written despite invalid settings: %v", err)
	}
}

func TestArgumentCount(t *testing.T) {
	for _, args := range [][]string{{"pack", "only-one"}, {"split"}, {"join", "a", "b", "c"}, {"list"}, {"show"}, {"verify"}, {"extract"}} {
		if _, err := execute(t, args...); err == nil || !strings.Contains(err.Error(), "Usage:") {
			t.Errorf("cpack %s error = %v, want a usage error", strings.Join(args, " "), err)
		}
	}
}

func TestVersion(t *testing.T) {
	output := mustExecute(t, "version")
	if !strings.HasPrefix(output, "cpack ") {
		t.Errorf("version output = %q", output)
	}
}

// TestCommandTree walks the production tree: every command is
// documented and answers --help.
func TestCommandTree(t *testing.T) {
	root := Root(nil, nil)
	for _, command := range root.Subcommands {
		if command.Summary == "" {
			t.Errorf("%s: missing Summary", command.Name)
		}
		if _, err := execute(t, command.Name, "--help"); err != nil {
			t.Errorf("cpack %s --help: %v", command.Name, err)
		}
	}
}
