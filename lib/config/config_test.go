// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/cpack/lib/checksum"
	"github.com/bureau-foundation/cpack/lib/compressor"
	"github.com/bureau-foundation/cpack/lib/fanout"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cpack.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if diff := cmp.Diff(compressor.DefaultDescriptor(), cfg.Codec.Descriptor); diff != "" {
		t.Errorf("default codec mismatch (-want +got):\n%s", diff)
	}
	if cfg.Chunking.ChunkSize != 1<<30 {
		t.Errorf("expected chunk_size=1GiB, got %d", cfg.Chunking.ChunkSize)
	}
	if cfg.Checksum.Enabled {
		t.Error("expected checksum disabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config does not validate: %v", err)
	}
}

func TestLoad_RequiresCpackConfig(t *testing.T) {
	t.Setenv(EnvironmentVariable, "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when CPACK_CONFIG not set, got nil")
	}
	if !strings.HasPrefix(err.Error(), "CPACK_CONFIG environment variable not set") {
		t.Errorf("unexpected error message %q", err.Error())
	}
}

func TestLoad_WithCpackConfig(t *testing.T) {
	t.Setenv(EnvironmentVariable, writeConfig(t, "workers: 3\n"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Workers != 3 {
		t.Errorf("expected workers=3, got %d", cfg.Workers)
	}
}

func TestResolve(t *testing.T) {
	t.Run("explicit path wins", func(t *testing.T) {
		t.Setenv(EnvironmentVariable, writeConfig(t, "workers: 1\n"))
		cfg, err := Resolve(writeConfig(t, "workers: 2\n"))
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if cfg.Workers != 2 {
			t.Errorf("expected workers=2 from --config, got %d", cfg.Workers)
		}
	})
	t.Run("environment", func(t *testing.T) {
		t.Setenv(EnvironmentVariable, writeConfig(t, "workers: 1\n"))
		cfg, err := Resolve("")
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if cfg.Workers != 1 {
			t.Errorf("expected workers=1 from CPACK_CONFIG, got %d", cfg.Workers)
		}
	})
	t.Run("defaults", func(t *testing.T) {
		t.Setenv(EnvironmentVariable, "")
		cfg, err := Resolve("")
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if diff := cmp.Diff(Default(), cfg); diff != "" {
			t.Errorf("Resolve without a file differs from Default (-want +got):\n%s", diff)
		}
	})
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
codec:
  id: blosc
  cname: lz4
  clevel: 9
  shuffle: bitshuffle
  blocksize: 65536
  typesize: 4
chunking:
  chunk_size: 64MiB
  header_length: 4096
checksum:
  enabled: true
  verify: true
  algorithm: blake3
workers: 8
task_timeout: 90s
on_error: continue
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	want := &Config{
		Codec: CodecConfig{Descriptor: compressor.Descriptor{
			ID: "blosc", Name: "lz4", Level: 9, Shuffle: compressor.BitShuffle, BlockSize: 65536, TypeSize: 4,
		}},
		Chunking:    ChunkingConfig{ChunkSize: 64 << 20, HeaderLength: 4096},
		Checksum:    ChecksumConfig{Enabled: true, Verify: true, Algorithm: "blake3"},
		Workers:     8,
		TaskTimeout: 90 * time.Second,
		OnError:     "continue",
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("loaded config mismatch (-want +got):\n%s", diff)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}

	policy, err := cfg.Policy()
	if err != nil || policy != fanout.ContinueOnError {
		t.Errorf("Policy() = %v, %v; want ContinueOnError", policy, err)
	}
	algorithm, err := cfg.Algorithm()
	if err != nil || algorithm != checksum.BLAKE3 {
		t.Errorf("Algorithm() = %v, %v; want blake3", algorithm, err)
	}
}

func TestLoadFilePartialKeepsDefaults(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, "codec:\n  clevel: 9\n"))
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Codec.Level != 9 || cfg.Codec.Name != "zstd" || cfg.Codec.ID != compressor.BloscID {
		t.Errorf("codec = %+v, want default blosc/zstd at level 9", cfg.Codec.Descriptor)
	}
	if cfg.Chunking.ChunkSize != DefaultChunkSize {
		t.Errorf("chunk_size = %d, want default", cfg.Chunking.ChunkSize)
	}
}

func TestLoadFileEmpty(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("LoadFile of an empty file failed: %v", err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("empty file differs from Default (-want +got):\n%s", diff)
	}
}

func TestLoadFileErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown key", "wrokers: 3\n"},
		{"bad size", "chunking:\n  chunk_size: lots\n"},
		{"bad shuffle", "codec:\n  shuffle: sideways\n"},
		{"bad duration", "task_timeout: soon\n"},
		{"not yaml", "codec: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadFile(writeConfig(t, tt.content)); err == nil {
				t.Error("LoadFile should fail")
			}
		})
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("LoadFile of a missing file error = %v, want not-exist", err)
	}
}

func TestDescriptorFile(t *testing.T) {
	dir := t.TempDir()
	descriptorPath := filepath.Join(dir, "codec.jsonc")
	descriptorText := `{
    // archival setting
    "id": "zstd",
    "clevel": 19,
}`
	if err := os.WriteFile(descriptorPath, []byte(descriptorText), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	t.Setenv("CODEC_DIR", dir)

	cfg, err := LoadFile(writeConfig(t, "codec:\n  descriptor_file: ${CODEC_DIR}/codec.jsonc\n"))
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Codec.DescriptorFile != descriptorPath {
		t.Errorf("descriptor_file = %q, want %q", cfg.Codec.DescriptorFile, descriptorPath)
	}
	descriptor, err := cfg.Descriptor()
	if err != nil {
		t.Fatalf("Descriptor failed: %v", err)
	}
	if descriptor.ID != "zstd" || descriptor.Level != 19 {
		t.Errorf("descriptor = %+v, want zstd level 19", descriptor)
	}

	cfg.Codec.DescriptorFile = filepath.Join(dir, "absent.json")
	var configErr *ConfigurationError
	if _, err := cfg.Descriptor(); !errors.As(err, &configErr) || configErr.Field != "codec.descriptor_file" {
		t.Errorf("Descriptor with a missing file error = %v, want ConfigurationError on codec.descriptor_file", err)
	}
}

func TestExpandVars(t *testing.T) {
	tests := []struct {
		input    string
		vars     map[string]string
		expected string
	}{
		{
			input:    "${HOME}/codecs",
			vars:     map[string]string{"HOME": "/home/user"},
			expected: "/home/user/codecs",
		},
		{
			input:    "${CPACK_TEST_MISSING:-default}",
			vars:     map[string]string{},
			expected: "default",
		},
		{
			input:    "${PRESENT:-default}",
			vars:     map[string]string{"PRESENT": "value"},
			expected: "value",
		},
		{
			input:    "${A}/${B}",
			vars:     map[string]string{"A": "first", "B": "second"},
			expected: "first/second",
		},
		{
			input:    "no variables here",
			vars:     map[string]string{},
			expected: "no variables here",
		},
	}

	for _, tt := range tests {
		result := expandVars(tt.input, tt.vars)
		if result != tt.expected {
			t.Errorf("expandVars(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		modify    func(*Config)
		wantField string
	}{
		{
			name:   "valid default config",
			modify: func(c *Config) {},
		},
		{
			name:      "unknown codec",
			modify:    func(c *Config) { c.Codec.ID = "brotli" },
			wantField: "codec",
		},
		{
			name:      "level out of range",
			modify:    func(c *Config) { c.Codec.Level = 12 },
			wantField: "codec",
		},
		{
			name:      "zero chunk size",
			modify:    func(c *Config) { c.Chunking.ChunkSize = 0 },
			wantField: "chunking.chunk_size",
		},
		{
			name:      "negative header",
			modify:    func(c *Config) { c.Chunking.HeaderLength = -1 },
			wantField: "chunking.header_length",
		},
		{
			name:      "unknown algorithm",
			modify:    func(c *Config) { c.Checksum.Algorithm = "crc32" },
			wantField: "checksum.algorithm",
		},
		{
			name:      "negative workers",
			modify:    func(c *Config) { c.Workers = -2 },
			wantField: "workers",
		},
		{
			name:      "negative timeout",
			modify:    func(c *Config) { c.TaskTimeout = -time.Second },
			wantField: "task_timeout",
		},
		{
			name:      "unknown policy",
			modify:    func(c *Config) { c.OnError = "retry" },
			wantField: "on_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			var configErr *ConfigurationError
			if !errors.As(err, &configErr) {
				t.Fatalf("Validate() error = %v, want *ConfigurationError", err)
			}
			if configErr.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", configErr.Field, tt.wantField)
			}
		})
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Workers = -1
	cfg.OnError = "sometimes"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate should fail")
	}
	for _, field := range []string{"workers", "on_error"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("error %q does not mention %s", err, field)
		}
	}
}

func TestByteSize(t *testing.T) {
	tests := []struct {
		input string
		want  ByteSize
	}{
		{"0", 0},
		{"4096", 4096},
		{"1GiB", 1 << 30},
		{"512 MiB", 512 << 20},
		{"1 MB", 1_000_000},
	}
	for _, tt := range tests {
		var size ByteSize
		if err := size.Set(tt.input); err != nil {
			t.Errorf("Set(%q) failed: %v", tt.input, err)
			continue
		}
		if size != tt.want {
			t.Errorf("Set(%q) = %d, want %d", tt.input, size, tt.want)
		}
	}

	var size ByteSize
	if err := size.Set("-5"); err == nil {
		t.Error("Set(\"-5\") should fail")
	}

	if got := ByteSize(1 << 30).String(); got != "1.0 GiB" {
		t.Errorf("String() = %q, want 1.0 GiB", got)
	}
	if got := ByteSize(1500).String(); got != "1500" {
		t.Errorf("String() = %q, want 1500", got)
	}
}

func TestByteSizeYAMLRoundTrip(t *testing.T) {
	data, err := yaml.Marshal(ChunkingConfig{ChunkSize: 256 << 20, HeaderLength: 100})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var decoded ChunkingConfig
	if err := yaml.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal of %q failed: %v", data, err)
	}
	if decoded.ChunkSize != 256<<20 || decoded.HeaderLength != 100 {
		t.Errorf("round trip of %q = %+v", data, decoded)
	}
}
