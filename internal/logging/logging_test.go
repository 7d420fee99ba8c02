// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

//go:build unit

package logging

import (
	"context"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgmodel "github.com/resuralph/ralphstack/pkg/model"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, NoLoggingLevel, ParseLevel("none"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("chatty"))
}

func TestLogging_StdLogIsRedirected(t *testing.T) {
	capture, restore := CaptureDefault(slog.LevelInfo)
	defer restore()
	log.SetOutput(&slogWriter{})
	flags := log.Flags()
	log.SetFlags(0)
	defer func() {
		log.SetOutput(os.Stderr)
		log.SetFlags(flags)
	}()

	log.Print("ERROR: disk full")
	log.Print("plain message")

	assert.True(t, capture.ContainsAll("level=ERROR", "disk full"))
	assert.False(t, capture.ContainsAll("plain message"))
}

func TestLogging_EchoLoggerForwardsToSlog(t *testing.T) {
	capture, restore := CaptureDefault(slog.LevelInfo)
	defer restore()

	e := echo.New()
	e.HideBanner = true
	e.Logger = NewEchoLogger()
	e.Logger.SetPrefix("http")

	e.Logger.Warnf("slow request %dms", 250)

	assert.True(t, capture.ContainsAll("level=WARN", "http slow request 250ms", "component=api"))
}

func TestMultiLevelHandler_AppliesEachHandlerLevel(t *testing.T) {
	debug, info := &TestLogCapture{}, &TestLogCapture{}
	handler := NewMultiLevelHandler(
		slog.NewTextHandler(debug, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(info, &slog.HandlerOptions{Level: slog.LevelInfo}),
	)
	logger := slog.New(handler).With("stack", "ResuralphPythonStack")

	assert.True(t, handler.Enabled(context.Background(), slog.LevelDebug))
	logger.Debug("Polling status")
	logger.Info("Changeset finished")

	assert.Len(t, debug.Entries(), 2)
	assert.Len(t, info.Entries(), 1)
	assert.True(t, info.ContainsAll("Changeset finished", "stack=ResuralphPythonStack"))
}

func TestSetupCLILogging_WritesToFile(t *testing.T) {
	previous := slog.Default()
	defer slog.SetDefault(previous)

	path := filepath.Join(t.TempDir(), "logs", "ralphstack.log")
	SetupCLILogging(&pkgmodel.LoggingConfig{FilePath: path, FileLogLevel: "debug"}, false)

	slog.Debug("Resolved references", "count", 2)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Resolved references")
}
