// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/cpack/lib/checksum"
	"github.com/bureau-foundation/cpack/lib/compressor"
	"github.com/bureau-foundation/cpack/lib/fanout"
)

// EnvironmentVariable names the variable [Load] reads the config path
// from.
const EnvironmentVariable = "CPACK_CONFIG"

// DefaultChunkSize is the chunk size used for single-file packing when
// the configuration does not set one.
const DefaultChunkSize ByteSize = 1 << 30

// Config is the complete cpack configuration.
type Config struct {
	// Codec selects the compression codec written into every container
	// and chunk set.
	Codec CodecConfig `yaml:"codec"`

	// Chunking controls how single files are cut into chunk sets.
	Chunking ChunkingConfig `yaml:"chunking"`

	// Checksum controls the sidecar written next to containers.
	Checksum ChecksumConfig `yaml:"checksum"`

	// Workers bounds parallel compression. Zero uses one worker per
	// available CPU.
	Workers int `yaml:"workers"`

	// TaskTimeout bounds reading and compressing a single entry or
	// chunk. Zero disables the limit.
	TaskTimeout time.Duration `yaml:"task_timeout"`

	// OnError is "fail-fast" (default) or "continue".
	OnError string `yaml:"on_error"`
}

// CodecConfig describes the codec either inline or by reference to a
// descriptor file in compressor.json format (comments allowed).
type CodecConfig struct {
	compressor.Descriptor `yaml:",inline"`

	// DescriptorFile, when set, replaces the inline fields. ${HOME} and
	// ${VAR:-default} are expanded.
	DescriptorFile string `yaml:"descriptor_file"`
}

// ChunkingConfig configures single-file packing.
type ChunkingConfig struct {
	// ChunkSize accepts byte counts or humanized sizes ("1GiB", "512 MB").
	ChunkSize ByteSize `yaml:"chunk_size"`

	// HeaderLength is stored separately from the chunks.
	HeaderLength ByteSize `yaml:"header_length"`
}

// ChecksumConfig configures the checksum sidecar.
type ChecksumConfig struct {
	Enabled bool `yaml:"enabled"`

	// Verify re-reads the written container and records whether it
	// matches. Implies Enabled.
	Verify bool `yaml:"verify"`

	// Algorithm is md5 (default), sha256 or blake3.
	Algorithm string `yaml:"algorithm"`
}

// ByteSize is a byte count that parses humanized sizes in YAML and on
// the command line.
type ByteSize int64

// ParseByteSize parses "1048576", "1MiB", "1 MB" and the like.
func ParseByteSize(value string) (ByteSize, error) {
	size, err := humanize.ParseBytes(value)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", value, err)
	}
	if size > 1<<62 {
		return 0, fmt.Errorf("size %q is too large", value)
	}
	return ByteSize(size), nil
}

// String returns the size in IEC units, or as a plain count when it is
// not a whole number of those units.
func (b ByteSize) String() string {
	if b < 0 {
		return strconv.FormatInt(int64(b), 10)
	}
	formatted := humanize.IBytes(uint64(b))
	if parsed, err := ParseByteSize(formatted); err == nil && parsed == b {
		return formatted
	}
	return strconv.FormatInt(int64(b), 10)
}

// Set implements the pflag.Value interface.
func (b *ByteSize) Set(value string) error {
	size, err := ParseByteSize(value)
	if err != nil {
		return err
	}
	*b = size
	return nil
}

// Type implements the pflag.Value interface.
func (b *ByteSize) Type() string { return "size" }

// UnmarshalYAML accepts integers and humanized strings.
func (b *ByteSize) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: size must be a scalar", node.Line)
	}
	if err := b.Set(node.Value); err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	return nil
}

// MarshalYAML writes the humanized form.
func (b ByteSize) MarshalYAML() (any, error) {
	return b.String(), nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Codec: CodecConfig{Descriptor: compressor.DefaultDescriptor()},
		Chunking: ChunkingConfig{
			ChunkSize: DefaultChunkSize,
		},
		Checksum: ChecksumConfig{
			Algorithm: string(checksum.DefaultAlgorithm),
		},
		OnError: fanout.FailFast.String(),
	}
}

// Load loads configuration from the file named by CPACK_CONFIG. It fails
// when the variable is unset.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvironmentVariable)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your cpack.yaml config file, or use --config flag", EnvironmentVariable)
	}
	return LoadFile(configPath)
}

// Resolve loads path when it is non-empty, otherwise the file named by
// CPACK_CONFIG when that is set, otherwise returns Default. Nothing is
// searched for.
func Resolve(path string) (*Config, error) {
	if path != "" {
		return LoadFile(path)
	}
	if os.Getenv(EnvironmentVariable) != "" {
		return Load()
	}
	return Default(), nil
}

// LoadFile loads configuration from path over the defaults. Unknown keys
// are errors.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}
	c.Codec.DescriptorFile = expandVars(c.Codec.DescriptorFile, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Descriptor returns the configured codec descriptor, reading
// DescriptorFile when it is set.
func (c *Config) Descriptor() (compressor.Descriptor, error) {
	if c.Codec.DescriptorFile == "" {
		return c.Codec.Descriptor, nil
	}
	data, err := os.ReadFile(c.Codec.DescriptorFile)
	if err != nil {
		return compressor.Descriptor{}, &ConfigurationError{Field: "codec.descriptor_file", Reason: err.Error()}
	}
	descriptor, err := compressor.ParseDescriptorJSONC(data)
	if err != nil {
		return compressor.Descriptor{}, &ConfigurationError{
			Field:  "codec.descriptor_file",
			Reason: fmt.Sprintf("%s: %v", c.Codec.DescriptorFile, err),
		}
	}
	return descriptor, nil
}

// Policy returns the scheduler failure policy named by OnError.
func (c *Config) Policy() (fanout.Policy, error) {
	policy, err := fanout.ParsePolicy(c.OnError)
	if err != nil {
		return 0, &ConfigurationError{Field: "on_error", Reason: err.Error()}
	}
	return policy, nil
}

// Algorithm returns the checksum algorithm.
func (c *Config) Algorithm() (checksum.Algorithm, error) {
	algorithm, err := checksum.ParseAlgorithm(c.Checksum.Algorithm)
	if err != nil {
		return "", &ConfigurationError{Field: "checksum.algorithm", Reason: err.Error()}
	}
	return algorithm, nil
}

// Validate checks every field and returns all problems joined. Each is
// a *ConfigurationError.
func (c *Config) Validate() error {
	var errs []error

	if descriptor, err := c.Descriptor(); err != nil {
		errs = append(errs, err)
	} else if err := descriptor.Validate(); err != nil {
		errs = append(errs, &ConfigurationError{Field: "codec", Reason: err.Error()})
	}

	if c.Chunking.ChunkSize <= 0 {
		errs = append(errs, &ConfigurationError{Field: "chunking.chunk_size", Reason: "must be positive"})
	}
	if c.Chunking.HeaderLength < 0 {
		errs = append(errs, &ConfigurationError{Field: "chunking.header_length", Reason: "must not be negative"})
	}
	if _, err := c.Algorithm(); err != nil {
		errs = append(errs, err)
	}
	if c.Workers < 0 {
		errs = append(errs, &ConfigurationError{Field: "workers", Reason: fmt.Sprintf("%d is negative", c.Workers)})
	}
	if c.TaskTimeout < 0 {
		errs = append(errs, &ConfigurationError{Field: "task_timeout", Reason: fmt.Sprintf("%s is negative", c.TaskTimeout)})
	}
	if _, err := c.Policy(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ConfigurationError reports an invalid configuration value or input
// selection. Field names the offending setting in YAML notation or the
// command-line input it came from.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Reason)
}
