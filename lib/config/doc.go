// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for cpack.
//
// Configuration is loaded from a single file specified by either the
// CPACK_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). [Resolve] applies that precedence and falls back to
// [Default] when neither is given. There is no ~/.config discovery and
// no automatic file search, and no environment variable overrides an
// individual setting.
//
// Sizes accept humanized values ("1GiB", "64 MB") through [ByteSize],
// which also serves as a pflag value so flags and file share one
// syntax. The codec may be given inline or as a path to a descriptor
// file in compressor.json form.
//
// Every invalid value surfaces as a [ConfigurationError] naming the
// field; [Config.Validate] reports all of them at once.
package config
