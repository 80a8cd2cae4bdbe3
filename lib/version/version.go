// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
)

// These variables are set via -ldflags at build time, for example:
//
//	go build -ldflags "-X github.com/bureau-foundation/cpack/lib/version.GitCommit=$(git rev-parse --short HEAD)"
var (
	// GitCommit is the short git SHA of the build.
	GitCommit = "unknown"

	// GitDirty indicates whether there were uncommitted changes.
	GitDirty = "false"

	// BuildTime is the UTC timestamp of the build.
	BuildTime = "unknown"

	// Version is the semantic version. This is set manually for releases.
	Version = "0.1.0-dev"
)

// build is the effective commit information: the injected variables,
// or the toolchain's VCS stamp when nothing was injected.
type build struct {
	commit string
	dirty  bool
	time   string
}

var resolveBuild = sync.OnceValue(func() build {
	return resolve(GitCommit, GitDirty, BuildTime, readSettings())
})

func readSettings() map[string]string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return nil
	}
	settings := make(map[string]string, len(info.Settings))
	for _, setting := range info.Settings {
		settings[setting.Key] = setting.Value
	}
	return settings
}

const shortCommitLength = 7

func resolve(commit, dirty, buildTime string, settings map[string]string) build {
	if commit != "unknown" && commit != "" {
		return build{commit: commit, dirty: dirty == "true", time: buildTime}
	}
	revision, ok := settings["vcs.revision"]
	if !ok || revision == "" {
		return build{commit: commit, dirty: dirty == "true", time: buildTime}
	}
	if len(revision) > shortCommitLength {
		revision = revision[:shortCommitLength]
	}
	result := build{commit: revision, dirty: settings["vcs.modified"] == "true", time: buildTime}
	if stamp, ok := settings["vcs.time"]; ok && buildTime == "unknown" {
		result.time = stamp
	}
	return result
}

func (b build) info() string {
	dirty := ""
	if b.dirty {
		dirty = "-dirty"
	}
	return fmt.Sprintf("%s (%s%s, %s)", Version, b.commit, dirty, b.time)
}

// Info returns a formatted version string suitable for --version output.
func Info() string {
	return resolveBuild().info()
}

// Full returns detailed version information including Go version.
func Full() string {
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s/%s",
		Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// Short returns just the version number.
func Short() string {
	return Version
}

// Commit returns the git commit SHA.
func Commit() string {
	return resolveBuild().commit
}
