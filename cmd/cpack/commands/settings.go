// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/cpack/lib/compressor"
	"github.com/bureau-foundation/cpack/lib/config"
	"github.com/bureau-foundation/cpack/lib/fanout"
)

// settings are the flags shared by commands that compress. Values given
// on the command line override the configuration file; anything not
// given keeps the file's (or the default) value.
type settings struct {
	ConfigPath     string
	Workers        int
	TaskTimeout    time.Duration
	OnError        string
	DescriptorFile string

	Codec     string
	Name      string
	Level     int
	Shuffle   string
	BlockSize config.ByteSize
	TypeSize  int

	flags *pflag.FlagSet
}

// AddFlags implements cli.FlagBinder.
func (s *settings) AddFlags(flagSet *pflag.FlagSet) {
	s.flags = flagSet
	flagSet.StringVarP(&s.ConfigPath, "config", "c", "", "configuration file (default $"+config.EnvironmentVariable+")")
	flagSet.IntVarP(&s.Workers, "workers", "j", 0, "parallel compression workers (0 = one per CPU)")
	flagSet.DurationVar(&s.TaskTimeout, "task-timeout", 0, "limit for reading and compressing one entry or chunk")
	flagSet.StringVar(&s.OnError, "on-error", "", "fail-fast or continue")
	flagSet.StringVar(&s.DescriptorFile, "descriptor", "", "codec descriptor file in compressor.json format")
	flagSet.StringVar(&s.Codec, "codec", "", "codec family (blosc, zstd)")
	flagSet.StringVar(&s.Name, "cname", "", "blosc inner compressor (zstd, lz4, lz4hc, zlib, snappy)")
	flagSet.IntVar(&s.Level, "clevel", 0, "compression level")
	flagSet.StringVar(&s.Shuffle, "shuffle", "", "blosc shuffle (none, byte, bit, auto)")
	flagSet.Var(&s.BlockSize, "blocksize", "blosc block size (0 = automatic)")
	flagSet.IntVar(&s.TypeSize, "typesize", 0, "element width for the shuffle filters")
}

func (s *settings) changed(name string) bool {
	return s.flags != nil && s.flags.Changed(name)
}

// resolve loads the configuration and applies the command-line
// overrides. The result has been validated.
func (s *settings) resolve() (*config.Config, error) {
	cfg, err := config.Resolve(s.ConfigPath)
	if err != nil {
		return nil, err
	}
	if s.changed("workers") {
		cfg.Workers = s.Workers
	}
	if s.changed("task-timeout") {
		cfg.TaskTimeout = s.TaskTimeout
	}
	if s.changed("on-error") {
		cfg.OnError = s.OnError
	}
	if s.changed("descriptor") {
		cfg.Codec.DescriptorFile = s.DescriptorFile
	}

	if s.codecChanged() {
		descriptor, err := cfg.Descriptor()
		if err != nil {
			return nil, err
		}
		if err := s.applyCodec(&descriptor); err != nil {
			return nil, err
		}
		cfg.Codec = config.CodecConfig{Descriptor: descriptor}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (s *settings) codecChanged() bool {
	for _, name := range []string{"codec", "cname", "clevel", "shuffle", "blocksize", "typesize"} {
		if s.changed(name) {
			return true
		}
	}
	return false
}

func (s *settings) applyCodec(descriptor *compressor.Descriptor) error {
	if s.changed("codec") && s.Codec != descriptor.ID {
		descriptor.ID = s.Codec
		if s.Codec == compressor.ZstdID {
			*descriptor = compressor.Descriptor{ID: compressor.ZstdID, Name: "zstd", Level: descriptor.Level}
		}
	}
	if s.changed("cname") {
		descriptor.Name = s.Name
	}
	if s.changed("clevel") {
		descriptor.Level = s.Level
	}
	if s.changed("shuffle") {
		shuffle, err := compressor.ParseShuffle(s.Shuffle)
		if err != nil {
			return &config.ConfigurationError{Field: "--shuffle", Reason: err.Error()}
		}
		descriptor.Shuffle = shuffle
	}
	if s.changed("blocksize") {
		descriptor.BlockSize = int(s.BlockSize)
	}
	if s.changed("typesize") {
		descriptor.TypeSize = s.TypeSize
	}
	return nil
}

// scheduler builds the compression scheduler for cfg.
func scheduler(cfg *config.Config, logger *slog.Logger) (*fanout.Scheduler, error) {
	policy, err := cfg.Policy()
	if err != nil {
		return nil, err
	}
	return &fanout.Scheduler{
		Workers:     cfg.Workers,
		Policy:      policy,
		TaskTimeout: cfg.TaskTimeout,
		Logger:      logger,
	}, nil
}

// externalCodec reads a descriptor file for decoding data that carries
// no descriptor of its own. An empty path returns nil.
func externalCodec(path string) (compressor.Codec, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	descriptor, err := compressor.ParseDescriptorJSONC(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return descriptor.Instantiate()
}

// requireArgs checks the positional argument count.
func requireArgs(args []string, want int, usage string) error {
	if len(args) != want {
		return fmt.Errorf("expected %d arguments, got %d\n\nUsage:\n  %s", want, len(args), usage)
	}
	return nil
}

// isDirectory reports whether path names a directory.
func isDirectory(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
