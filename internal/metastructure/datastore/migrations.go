// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package datastore

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/masterminds/semver"
	"github.com/pressly/goose/v3"

	"github.com/resuralph/ralphstack"
	apimodel "github.com/resuralph/ralphstack/internal/api/model"
)

//go:embed migrations_sqlite/*.sql
var embedMigrationsSQLite embed.FS

//go:embed migrations_postgres/*.sql
var embedMigrationsPostgres embed.FS

const toolVersionKey = "tool_version"

func runMigrations(db *sql.DB, dialect string) error {
	var migrationsFS embed.FS
	var migrationsDir string

	switch dialect {
	case "sqlite3":
		migrationsFS = embedMigrationsSQLite
		migrationsDir = "migrations_sqlite"
	case "postgres":
		migrationsFS = embedMigrationsPostgres
		migrationsDir = "migrations_postgres"
	default:
		return fmt.Errorf("unsupported dialect: %s", dialect)
	}

	goose.SetBaseFS(migrationsFS)
	goose.SetTableName("db_version")

	if err := goose.SetDialect(dialect); err != nil {
		slog.Error("Failed to set goose dialect", "dialect", dialect, "error", err)
		return err
	}

	currentVersion, err := goose.GetDBVersion(db)
	if err != nil {
		currentVersion = 0
	}

	migrations, err := goose.CollectMigrations(migrationsDir, 0, goose.MaxVersion)
	if err != nil {
		slog.Error("Failed to collect migrations", "error", err)
		return err
	}

	var targetVersion int64
	if len(migrations) > 0 {
		targetVersion = migrations[len(migrations)-1].Version
	}

	if currentVersion < targetVersion {
		slog.Info("Running database migrations", "currentVersion", currentVersion, "targetVersion", targetVersion)
	}

	startTime := time.Now()
	if err := goose.Up(db, migrationsDir); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return err
	}

	if currentVersion < targetVersion {
		slog.Info("Database migrations completed successfully",
			"previousVersion", currentVersion,
			"currentVersion", targetVersion,
			"duration", time.Since(startTime).Round(time.Millisecond).String())
	}

	return ensureStateVersion(db, dialect, ralphstack.Version)
}

// ensureStateVersion refuses state written by a newer major version and records the
// running version otherwise.
func ensureStateVersion(db *sql.DB, dialect string, toolVersion string) error {
	placeholder := "?"
	if dialect == "postgres" {
		placeholder = "$1"
	}

	var stored string
	err := db.QueryRow(fmt.Sprintf("SELECT value FROM state_metadata WHERE key = '%s'", toolVersionKey)).Scan(&stored)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	write, err := checkStateVersion(stored, toolVersion)
	if err != nil {
		return err
	}
	if !write {
		return nil
	}

	_, err = db.Exec(fmt.Sprintf(`INSERT INTO state_metadata (key, value) VALUES ('%s', %s)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`, toolVersionKey, placeholder), toolVersion)
	return err
}

// checkStateVersion reports whether toolVersion should be recorded as the state version.
// Development builds (0.0.0) neither check nor record.
func checkStateVersion(stored, toolVersion string) (bool, error) {
	tool, err := semver.NewVersion(toolVersion)
	if err != nil || tool.Equal(semver.MustParse("0.0.0")) {
		return false, nil
	}
	if stored == "" {
		return true, nil
	}

	state, err := semver.NewVersion(stored)
	if err != nil {
		return false, fmt.Errorf("invalid state version %q: %w", stored, err)
	}
	if state.Major() > tool.Major() {
		return false, apimodel.StateVersionTooNewError{StateVersion: stored, ToolVersion: toolVersion}
	}

	return tool.GreaterThan(state), nil
}
