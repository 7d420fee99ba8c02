// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	glog "github.com/labstack/gommon/log"
)

// EchoLogger forwards echo's logger to slog.
type EchoLogger struct {
	Logger *slog.Logger
	prefix string
}

func NewEchoLogger() *EchoLogger {
	return &EchoLogger{Logger: slog.Default().With("component", "api")}
}

func (l *EchoLogger) log(level slog.Level, msg string) {
	if l.prefix != "" {
		msg = l.prefix + " " + msg
	}
	l.Logger.Log(context.Background(), level, msg)
}

func (l *EchoLogger) logj(level slog.Level, j glog.JSON) {
	l.Logger.Log(context.Background(), level, "json", "data", j)
}

func (l *EchoLogger) Output() io.Writer { return io.Discard }
func (l *EchoLogger) SetOutput(io.Writer) {}
func (l *EchoLogger) Prefix() string { return l.prefix }
func (l *EchoLogger) SetPrefix(p string) { l.prefix = p }
func (l *EchoLogger) Level() glog.Lvl { return glog.DEBUG }
func (l *EchoLogger) SetLevel(glog.Lvl) {}
func (l *EchoLogger) SetHeader(string) {}
func (l *EchoLogger) Print(i ...any) { l.log(slog.LevelInfo, fmt.Sprint(i...)) }
func (l *EchoLogger) Printj(j glog.JSON) { l.logj(slog.LevelInfo, j) }
func (l *EchoLogger) Debug(i ...any) { l.log(slog.LevelDebug, fmt.Sprint(i...)) }
func (l *EchoLogger) Debugj(j glog.JSON) { l.logj(slog.LevelDebug, j) }
func (l *EchoLogger) Info(i ...any) { l.log(slog.LevelInfo, fmt.Sprint(i...)) }
func (l *EchoLogger) Infoj(j glog.JSON) { l.logj(slog.LevelInfo, j) }
func (l *EchoLogger) Warn(i ...any) { l.log(slog.LevelWarn, fmt.Sprint(i...)) }
func (l *EchoLogger) Warnj(j glog.JSON) { l.logj(slog.LevelWarn, j) }
func (l *EchoLogger) Error(i ...any) { l.log(slog.LevelError, fmt.Sprint(i...)) }
func (l *EchoLogger) Errorj(j glog.JSON) { l.logj(slog.LevelError, j) }

func (l *EchoLogger) Printf(format string, args ...any) {
	l.log(slog.LevelInfo, fmt.Sprintf(format, args...))
}

func (l *EchoLogger) Debugf(format string, args ...any) {
	l.log(slog.LevelDebug, fmt.Sprintf(format, args...))
}

func (l *EchoLogger) Infof(format string, args ...any) {
	l.log(slog.LevelInfo, fmt.Sprintf(format, args...))
}

func (l *EchoLogger) Warnf(format string, args ...any) {
	l.log(slog.LevelWarn, fmt.Sprintf(format, args...))
}

func (l *EchoLogger) Errorf(format string, args ...any) {
	l.log(slog.LevelError, fmt.Sprintf(format, args...))
}

func (l *EchoLogger) Fatal(i ...any) {
	l.log(slog.LevelError, fmt.Sprint(i...))
	os.Exit(1)
}

func (l *EchoLogger) Fatalf(format string, args ...any) {
	l.Fatal(fmt.Sprintf(format, args...))
}

func (l *EchoLogger) Fatalj(j glog.JSON) {
	l.logj(slog.LevelError, j)
	os.Exit(1)
}

func (l *EchoLogger) Panic(i ...any) {
	s := fmt.Sprint(i...)
	l.log(slog.LevelError, s)
	panic(s)
}

func (l *EchoLogger) Panicf(format string, args ...any) {
	l.Panic(fmt.Sprintf(format, args...))
}

func (l *EchoLogger) Panicj(j glog.JSON) {
	l.logj(slog.LevelError, j)
	panic(j)
}
