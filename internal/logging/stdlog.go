// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package logging

import (
	"context"
	"log/slog"
	"strings"
)

// slogWriter receives output of the standard library logger. A leading level word such
// as "ERROR:" selects the slog level; anything else is logged at debug.
type slogWriter struct{}

func (w *slogWriter) Write(p []byte) (n int, err error) {
	msg := strings.TrimRight(string(p), "\n")

	for _, prefix := range []struct {
		word  string
		level slog.Level
	}{
		{"ERROR", slog.LevelError},
		{"WARN", slog.LevelWarn},
		{"INFO", slog.LevelInfo},
	} {
		if rest, ok := strings.CutPrefix(msg, prefix.word); ok {
			rest = strings.TrimSpace(strings.TrimPrefix(rest, ":"))
			slog.Log(context.Background(), prefix.level, rest)
			return len(p), nil
		}
	}

	slog.Debug(msg)
	return len(p), nil
}
