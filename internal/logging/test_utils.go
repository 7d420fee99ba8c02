// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package logging

import (
	"log/slog"
	"strings"
	"sync"
)

// TestLogCapture is a thread-safe log writer for test assertions
type TestLogCapture struct {
	mu      sync.RWMutex
	entries []string
}

func (c *TestLogCapture) Write(p []byte) (n int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, string(p))
	return len(p), nil
}

// ContainsAll returns true if all substrings are found in the log entries
func (c *TestLogCapture) ContainsAll(substrs ...string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, substr := range substrs {
		found := false
		for _, entry := range c.entries {
			if strings.Contains(entry, substr) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (c *TestLogCapture) Entries() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.entries...)
}

// CaptureDefault replaces the default logger with one writing to the returned capture
// and returns a function restoring the previous logger.
func CaptureDefault(level slog.Level) (*TestLogCapture, func()) {
	previous := slog.Default()
	capture := &TestLogCapture{}
	slog.SetDefault(slog.New(slog.NewTextHandler(capture, &slog.HandlerOptions{Level: level})))
	return capture, func() { slog.SetDefault(previous) }
}
