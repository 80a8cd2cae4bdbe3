// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"log/slog"
	"os"

	"golang.org/x/term"
)

// NewCommandLogger creates the structured logger commands report
// progress through. When stderr is a terminal it uses slog.TextHandler;
// when stderr is piped or redirected it uses slog.JSONHandler so batch
// jobs get machine-parseable lines. level is shared with the root
// command so --verbose can lower it after flag parsing.
func NewCommandLogger(level *slog.LevelVar) *slog.Logger {
	var handler slog.Handler
	options := &slog.HandlerOptions{Level: level}
	if term.IsTerminal(int(os.Stderr.Fd())) {
		handler = slog.NewTextHandler(os.Stderr, options)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, options)
	}
	return slog.New(handler)
}
