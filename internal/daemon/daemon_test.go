// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

//go:build unit

package daemon

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resuralph/ralphstack/internal/config"
	"github.com/resuralph/ralphstack/internal/metrics"
	awsprovider "github.com/resuralph/ralphstack/internal/provider/aws"
	"github.com/resuralph/ralphstack/pkg/plugin"
)

func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Datastore.Sqlite.FilePath = ":memory:"
	cfg.Logging.FilePath = ""
	cfg.Logging.ConsoleLogLevel = "none"
	cfg.Server.Hostname = "127.0.0.1"
	cfg.Server.Port = 0

	d := New(cfg, plugin.NewManager(awsprovider.New()), metrics.New())
	d.PidFile = filepath.Join(t.TempDir(), "run", "ralphstack.pid")
	return d
}

func TestStartAndStopInProcess(t *testing.T) {
	d := newTestDaemon(t)

	require.NoError(t, d.Start())

	pid, err := os.ReadFile(d.PidFile)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(pid))

	second := newTestDaemon(t)
	second.PidFile = d.PidFile
	assert.ErrorIs(t, second.Start(), ErrAlreadyRunning)

	stopped := make(chan error, 1)
	go func() { stopped <- d.Stop() }()

	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(2 * shutdownTimeout):
		t.Fatal("server did not stop")
	}

	_, err = os.Stat(d.PidFile)
	assert.True(t, os.IsNotExist(err))
}

func TestStopWithoutPidFile(t *testing.T) {
	d := newTestDaemon(t)

	assert.ErrorIs(t, d.Stop(), ErrNotRunning)
}

func TestStopWithInvalidPidFile(t *testing.T) {
	d := newTestDaemon(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(d.PidFile), 0o755))
	require.NoError(t, os.WriteFile(d.PidFile, []byte("not a pid"), 0o600))

	err := d.Stop()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid pid file content")
}

func TestStopRemovesStalePidFile(t *testing.T) {
	d := newTestDaemon(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(d.PidFile), 0o755))
	// larger than any pid_max
	require.NoError(t, os.WriteFile(d.PidFile, []byte("2147483646"), 0o600))

	assert.ErrorIs(t, d.Stop(), ErrStalePidFile)

	_, err := os.Stat(d.PidFile)
	assert.True(t, os.IsNotExist(err))
}
