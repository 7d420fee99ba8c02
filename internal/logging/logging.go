// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package logging

import (
	"context"
	"errors"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/resuralph/ralphstack/internal/util"
	pkgmodel "github.com/resuralph/ralphstack/pkg/model"
)

const NoLoggingLevel = slog.Level(100) // A level higher than any standard level to disable logging

// ParseLevel accepts debug, info, warn, error and none. Unknown values fall back to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "none", "off":
		return NoLoggingLevel
	default:
		return slog.LevelInfo
	}
}

func SetupInitialLogging() {
	slog.SetDefault(slog.New(consoleHandler(os.Stderr, slog.LevelInfo)))
	redirectStdLog()
}

// SetupCLILogging writes every record to a rotating log file. Records are echoed to
// stderr at the console level only when verbose is set, keeping command output clean.
func SetupCLILogging(cfg *pkgmodel.LoggingConfig, verbose bool) {
	handler := &MultiLevelHandler{}
	if file := fileHandler(cfg); file != nil {
		handler.handlers = append(handler.handlers, file)
	}
	if verbose {
		level := ParseLevel(cfg.ConsoleLogLevel)
		if level == NoLoggingLevel {
			level = slog.LevelDebug
		}
		handler.handlers = append(handler.handlers, consoleHandler(os.Stderr, level))
	}

	slog.SetDefault(slog.New(handler))
	redirectStdLog()
}

// SetupServerLogging logs to the file, stdout and, when configured, an OTLP collector.
// The returned function flushes pending OTLP records.
func SetupServerLogging(cfg *pkgmodel.LoggingConfig, otelCfg *pkgmodel.OTelConfig) func() {
	handler := &MultiLevelHandler{}
	if file := fileHandler(cfg); file != nil {
		handler.handlers = append(handler.handlers, file)
	}
	if level := ParseLevel(cfg.ConsoleLogLevel); level != NoLoggingLevel {
		handler.handlers = append(handler.handlers, consoleHandler(os.Stdout, level))
	}

	shutdown := func() {}
	if otelCfg != nil && otelCfg.Enabled {
		if otelHandler, stop := setupOTelHandler(otelCfg); otelHandler != nil {
			handler.handlers = append(handler.handlers, otelHandler)
			shutdown = stop
		}
	}

	slog.SetDefault(slog.New(handler))
	redirectStdLog()

	return shutdown
}

func consoleHandler(w io.Writer, level slog.Level) slog.Handler {
	return tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	})
}

func fileHandler(cfg *pkgmodel.LoggingConfig) slog.Handler {
	if cfg == nil || cfg.FilePath == "" {
		return nil
	}
	if err := util.EnsureFileFolderHierarchy(cfg.FilePath); err != nil {
		slog.Error("Failed to create log folder hierarchy", "error", err)
		return nil
	}

	lumber := &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    10,
		MaxBackups: 5,
		Compress:   true,
	}

	return tint.NewHandler(lumber, &tint.Options{
		Level:      ParseLevel(cfg.FileLogLevel),
		TimeFormat: time.RFC3339,
		NoColor:    true,
	})
}

// overwrite standard log so it's always redirected to slog, in case some deep dep is using it
func redirectStdLog() {
	lw := &slogWriter{}
	log.Default().SetOutput(lw)
	log.SetFlags(0)
}

// MultiLevelHandler fans records out to handlers that each apply their own level.
type MultiLevelHandler struct {
	handlers []slog.Handler
}

func NewMultiLevelHandler(handlers ...slog.Handler) *MultiLevelHandler {
	return &MultiLevelHandler{handlers: handlers}
}

func (h *MultiLevelHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *MultiLevelHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, r.Level) {
			errs = append(errs, handler.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (h *MultiLevelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := &MultiLevelHandler{handlers: make([]slog.Handler, len(h.handlers))}
	for i, handler := range h.handlers {
		next.handlers[i] = handler.WithAttrs(attrs)
	}
	return next
}

func (h *MultiLevelHandler) WithGroup(name string) slog.Handler {
	next := &MultiLevelHandler{handlers: make([]slog.Handler, len(h.handlers))}
	for i, handler := range h.handlers {
		next.handlers[i] = handler.WithGroup(name)
	}
	return next
}
