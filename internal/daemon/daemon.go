// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

// Package daemon runs the long lived ralphstack server: it resumes interrupted commands
// and serves the read-only API until it receives a signal or is stopped.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/resuralph/ralphstack/internal/api"
	"github.com/resuralph/ralphstack/internal/config"
	"github.com/resuralph/ralphstack/internal/imconc"
	"github.com/resuralph/ralphstack/internal/logging"
	"github.com/resuralph/ralphstack/internal/metastructure"
	"github.com/resuralph/ralphstack/internal/metastructure/resource_update"
	"github.com/resuralph/ralphstack/internal/metrics"
	"github.com/resuralph/ralphstack/internal/util"
	pkgmodel "github.com/resuralph/ralphstack/pkg/model"
	"github.com/resuralph/ralphstack/pkg/plugin"
)

const shutdownTimeout = 10 * time.Second

var (
	ErrAlreadyRunning = errors.New("server appears to be already running (PID file exists)")
	ErrNotRunning     = errors.New("server is not running (no PID file found)")
	ErrStalePidFile   = errors.New("server is not running (stale PID file)")
)

func DefaultPidFile() string {
	return filepath.Join(config.DataDir(), "ralphstack.pid")
}

type Daemon struct {
	// PidFile marks the running server. Stop signals the process it names.
	PidFile string

	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	cfg     *pkgmodel.Config
	plugins *plugin.Manager
	metrics *metrics.Metrics
}

func New(cfg *pkgmodel.Config, plugins *plugin.Manager, m *metrics.Metrics) *Daemon {
	ctx, cancel := context.WithCancel(context.Background())
	return &Daemon{
		PidFile: DefaultPidFile(),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		cfg:     cfg,
		plugins: plugins,
		metrics: m,
	}
}

// Start writes the PID file and runs the server in the background. Wait blocks until
// it has shut down.
func (d *Daemon) Start() error {
	if _, err := os.Stat(d.PidFile); err == nil {
		return ErrAlreadyRunning
	}
	if err := util.EnsureFileFolderHierarchy(d.PidFile); err != nil {
		return err
	}
	if err := os.WriteFile(d.PidFile, []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
		return fmt.Errorf("failed to write pid file: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			slog.Info("Received signal", "signal", sig)
			d.cancel()
		case <-d.ctx.Done():
		}
	}()

	go d.run()

	return nil
}

func (d *Daemon) run() {
	// Providers first: the datastore drivers pick up the global tracer on registration
	shutdownTracing := api.SetupGlobalTracerProvider(&d.cfg.OTel)
	shutdownLogging := logging.SetupServerLogging(&d.cfg.Logging, &d.cfg.OTel)
	defer func() {
		shutdownTracing()
		shutdownLogging()
		d.cleanup()
		close(d.done)
	}()

	if d.cfg.Datastore.DatastoreType == pkgmodel.SqliteDatastore {
		if err := util.EnsureFileFolderHierarchy(d.cfg.Datastore.Sqlite.FilePath); err != nil {
			slog.Error("Failed to create data directory", "error", err)
			return
		}
	}

	ms, err := metastructure.NewMetastructure(d.ctx, d.cfg, d.plugins, d.metrics)
	if err != nil {
		slog.Error("Failed to open datastore", "error", err)
		return
	}

	group := imconc.NewConcGroup()
	group.Add(imconc.RoutineFunc(ms.Stop))

	group.Go(func() {
		resumed, err := ms.ReRunIncompleteCommands(d.ctx, logProgress)
		if err != nil {
			slog.Error("Failed to resume incomplete commands", "error", err)
			return
		}
		if len(resumed) > 0 {
			slog.Info("Resumed incomplete commands", "count", len(resumed))
		}
	})

	server := api.NewServer(d.ctx, ms, &d.cfg.Server, &d.cfg.OTel, d.metrics)
	group.Go(server.Start)

	slog.Info("Server started", "stack", d.cfg.StackName, "hostname", d.cfg.Server.Hostname, "port", d.cfg.Server.Port)

	<-d.ctx.Done()

	if group.WaitTimeout(shutdownTimeout) {
		slog.Info("Components stopped gracefully")
	} else {
		slog.Warn("Shutdown timed out, closing the datastore under running commands")
	}
	group.Stop()
}

func logProgress(commandID string, ru resource_update.ResourceUpdate) {
	slog.Info("Resource update", "commandID", commandID, "label", ru.Resource.Label, "operation", ru.Operation, "state", ru.State)
}

// Stop shuts down the server named by the PID file, in this process or another one.
func (d *Daemon) Stop() error {
	pidBytes, err := os.ReadFile(d.PidFile)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotRunning
		}
		return fmt.Errorf("failed to read pid file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(pidBytes)))
	if err != nil {
		return fmt.Errorf("invalid pid file content: %w", err)
	}

	if pid == os.Getpid() {
		d.cancel()
		<-d.done
		return nil
	}

	if alive, err := process.PidExists(int32(pid)); err == nil && !alive {
		d.cleanup()
		return ErrStalePidFile
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process: %w", err)
	}

	if err := proc.Signal(syscall.SIGTERM); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			d.cleanup()
			return ErrStalePidFile
		}
		return fmt.Errorf("failed to send signal to process: %w", err)
	}

	if d.waitForPidFileRemoval(shutdownTimeout) {
		return nil
	}

	slog.Warn("SIGTERM timeout, attempting SIGKILL")
	if err := proc.Signal(syscall.SIGKILL); err != nil {
		return fmt.Errorf("failed to SIGKILL process: %w", err)
	}

	// SIGKILL skips the cleanup of the process
	d.cleanup()
	return nil
}

func (d *Daemon) Wait() {
	<-d.done
}

func (d *Daemon) cleanup() {
	if err := os.Remove(d.PidFile); err != nil && !os.IsNotExist(err) {
		slog.Error("Failed to remove pid file", "error", err)
	}
}

func (d *Daemon) waitForPidFileRemoval(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(d.PidFile); os.IsNotExist(err) {
			return true
		}
		time.Sleep(100 * time.Millisecond)
	}
	return false
}
