// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package datastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/XSAM/otelsql"
	json "github.com/goccy/go-json"
	"github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/resuralph/ralphstack/internal/metastructure/resource_update"
	"github.com/resuralph/ralphstack/internal/metastructure/stack_command"
	"github.com/resuralph/ralphstack/internal/metastructure/stats"
	"github.com/resuralph/ralphstack/internal/metastructure/types"
	metautil "github.com/resuralph/ralphstack/internal/metastructure/util"
	"github.com/resuralph/ralphstack/internal/util"
	pkgmodel "github.com/resuralph/ralphstack/pkg/model"
)

var sqliteTracer trace.Tracer

const sqliteOtelDriverName = "sqlite3-otel"

func init() {
	sqliteTracer = otel.Tracer("ralphstack/datastore/sqlite")

	// Register otelsql-instrumented SQLite driver for automatic query tracing
	sql.Register(sqliteOtelDriverName, otelsql.WrapDriver(&sqlite3.SQLiteDriver{},
		otelsql.WithAttributes(
			attribute.String("db.system", "sqlite"),
		),
		otelsql.WithSpanOptions(otelsql.SpanOptions{
			DisableErrSkip: true,
		}),
	))
}

type DatastoreSQLite struct {
	conn *sql.DB
	ctx  context.Context
}

func NewDatastoreSQLite(ctx context.Context, cfg *pkgmodel.DatastoreConfig) (Datastore, error) {
	filePath := util.ExpandHomePath(cfg.Sqlite.FilePath)
	isMemoryDb := filePath == ":memory:" || strings.HasPrefix(filePath, "file::memory:")

	if filePath != "" && !isMemoryDb {
		if err := util.EnsureFileFolderHierarchy(filePath); err != nil {
			slog.Error("Failed to create datastore folder hierarchy", "error", err)
			return nil, err
		}
	}

	conn, err := sql.Open(sqliteOtelDriverName, filePath)
	if err != nil {
		slog.Error("Failed to connect to sqlite database", "error", err)
		return nil, err
	}

	// WAL lets readers proceed during writes
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		slog.Error("Failed to enable WAL mode", "error", err)
		return nil, err
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=10000"); err != nil {
		slog.Error("Failed to set busy timeout", "error", err)
		return nil, err
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		slog.Error("Failed to enable foreign keys", "error", err)
		return nil, err
	}

	// A single connection avoids "database is locked" errors, and keeps an in-memory
	// database alive for the lifetime of the datastore.
	conn.SetMaxOpenConns(1)

	d := DatastoreSQLite{conn: conn, ctx: ctx}

	if err = runMigrations(conn, "sqlite3"); err != nil {
		return nil, err
	}

	slog.Info("Started SQLite datastore", "filePath", filePath)

	return d, nil
}

func (d DatastoreSQLite) Close() {
	if err := d.conn.Close(); err != nil {
		slog.Error("Error closing database connection", "error", err)
	}
}

func closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		slog.Error("Error closing database rows", "error", err)
	}
}

func extendSQLiteQueryString[T any](queryStr string, queryItem *QueryItem[T], sqlPart string, args *[]any) string {
	if queryItem != nil {
		var operator string

		if queryItem.Constraint == Excluded {
			operator = "!="
		} else if queryItem.Constraint == Required || queryItem.Constraint == Optional {
			operator = "="
		}

		queryStr += fmt.Sprintf(sqlPart, operator)
		operand := ""
		switch v := any(queryItem.Item).(type) {
		case bool:
			if v {
				operand = "1"
			} else {
				operand = "0"
			}
		case string:
			operand = v
		default:
			operand = fmt.Sprintf("%v", v)
		}

		*args = append(*args, operand)
	}

	return queryStr
}

func (d DatastoreSQLite) StoreStackCommand(cmd *stack_command.StackCommand) error {
	ctx, span := sqliteTracer.Start(d.ctx, "StoreStackCommand")
	defer span.End()

	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			slog.Error("Failed to roll back transaction", "error", err)
		}
	}()

	query := fmt.Sprintf(`
		INSERT INTO %s (command_id, timestamp, stack_label, command, state, client_id, modified_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (command_id) DO UPDATE SET state = excluded.state, modified_ts = excluded.modified_ts
	`, CommandsTable)
	if _, err = tx.ExecContext(ctx, query, cmd.ID, cmd.StartTs, cmd.StackLabel, string(cmd.Command), string(cmd.State), cmd.ClientID, cmd.ModifiedTs); err != nil {
		slog.Error("Failed to store stack command", "error", err, "commandID", cmd.ID)
		return err
	}

	for i, update := range cmd.ResourceUpdates {
		if err = storeResourceUpdateSQLite(ctx, tx, cmd.ID, i, update); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func storeResourceUpdateSQLite(ctx context.Context, tx *sql.Tx, commandID string, seq int, update resource_update.ResourceUpdate) error {
	data, err := json.Marshal(update)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO resource_updates (command_id, uri, operation, seq, stack_label, label, type, state, error_code, start_ts, modified_ts, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (command_id, uri, operation) DO UPDATE SET
			state = excluded.state,
			error_code = excluded.error_code,
			start_ts = excluded.start_ts,
			modified_ts = excluded.modified_ts,
			data = excluded.data
	`
	_, err = tx.ExecContext(ctx, query,
		commandID,
		string(update.URI()),
		string(update.Operation),
		seq,
		update.URI().Stack(),
		update.Label(),
		update.Type(),
		string(update.State),
		errorCodeOf(update),
		update.StartTs,
		update.ModifiedTs,
		data)
	if err != nil {
		slog.Error("Failed to store resource update", "error", err, "commandID", commandID, "uri", update.URI())
	}
	return err
}

func (d DatastoreSQLite) StoreResourceUpdate(commandID string, update resource_update.ResourceUpdate) error {
	ctx, span := sqliteTracer.Start(d.ctx, "StoreResourceUpdate")
	defer span.End()

	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			slog.Error("Failed to roll back transaction", "error", err)
		}
	}()

	var seq int
	row := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), -1) + 1 FROM resource_updates WHERE command_id = ?`, commandID)
	if err = row.Scan(&seq); err != nil {
		return err
	}
	if err = storeResourceUpdateSQLite(ctx, tx, commandID, seq, update); err != nil {
		return err
	}

	return tx.Commit()
}

func (d DatastoreSQLite) UpdateStackCommandProgress(commandID string, state types.CommandState, modifiedTs time.Time) error {
	ctx, span := sqliteTracer.Start(d.ctx, "UpdateStackCommandProgress")
	defer span.End()

	query := fmt.Sprintf(`UPDATE %s SET state = ?, modified_ts = ? WHERE command_id = ?`, CommandsTable)
	result, err := d.conn.ExecContext(ctx, query, string(state), modifiedTs, commandID)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("stack command %s not found", commandID)
	}
	return nil
}

func (d DatastoreSQLite) loadStackCommands(ctx context.Context, query string, args ...any) ([]*stack_command.StackCommand, error) {
	rows, err := d.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	var commands []*stack_command.StackCommand
	for rows.Next() {
		var cmd stack_command.StackCommand
		var command, state string
		var clientID sql.NullString
		if err := rows.Scan(&cmd.ID, &cmd.StartTs, &cmd.StackLabel, &command, &state, &clientID, &cmd.ModifiedTs); err != nil {
			closeRows(rows)
			return nil, err
		}
		cmd.Command = pkgmodel.Command(command)
		cmd.State = types.CommandState(state)
		cmd.ClientID = clientID.String
		commands = append(commands, &cmd)
	}
	closeRows(rows)
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, cmd := range commands {
		if cmd.ResourceUpdates, err = d.loadResourceUpdates(ctx, cmd.ID); err != nil {
			return nil, err
		}
	}

	return commands, nil
}

func (d DatastoreSQLite) loadResourceUpdates(ctx context.Context, commandID string) ([]resource_update.ResourceUpdate, error) {
	rows, err := d.conn.QueryContext(ctx, `SELECT data FROM resource_updates WHERE command_id = ? ORDER BY seq`, commandID)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows)

	var updates []resource_update.ResourceUpdate
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var update resource_update.ResourceUpdate
		if err := json.Unmarshal([]byte(data), &update); err != nil {
			return nil, err
		}
		updates = append(updates, update)
	}

	return updates, rows.Err()
}

const stackCommandColumns = "command_id, timestamp, stack_label, command, state, client_id, modified_ts"

func (d DatastoreSQLite) GetStackCommandByID(commandID string) (*stack_command.StackCommand, error) {
	ctx, span := sqliteTracer.Start(d.ctx, "GetStackCommandByID")
	defer span.End()

	commands, err := d.loadStackCommands(ctx, fmt.Sprintf("SELECT %s FROM %s WHERE command_id = ?", stackCommandColumns, CommandsTable), commandID)
	if err != nil || len(commands) == 0 {
		return nil, err
	}
	return commands[0], nil
}

func (d DatastoreSQLite) LoadIncompleteStackCommands() ([]*stack_command.StackCommand, error) {
	ctx, span := sqliteTracer.Start(d.ctx, "LoadIncompleteStackCommands")
	defer span.End()

	query := fmt.Sprintf("SELECT %s FROM %s WHERE state IN (?, ?) ORDER BY timestamp DESC", stackCommandColumns, CommandsTable)
	return d.loadStackCommands(ctx, query, string(types.CommandStatePending), string(types.CommandStateInProgress))
}

func (d DatastoreSQLite) QueryStackCommands(query *StatusQuery) ([]*stack_command.StackCommand, error) {
	ctx, span := sqliteTracer.Start(d.ctx, "QueryStackCommands")
	defer span.End()

	queryStr := fmt.Sprintf("SELECT %s FROM %s WHERE 1=1", stackCommandColumns, CommandsTable)
	args := []any{}

	queryStr = extendSQLiteQueryString(queryStr, query.CommandID, " AND command_id %s ?", &args)
	queryStr = extendSQLiteQueryString(queryStr, query.ClientID, " AND client_id %s ?", &args)
	queryStr = extendSQLiteQueryString(queryStr, query.Command, " AND LOWER(command) %s LOWER(?)", &args)
	if query.Command == nil {
		queryStr += fmt.Sprintf(" AND command != '%s'", pkgmodel.CommandSync)
	}
	queryStr = extendSQLiteQueryString(queryStr, query.Stack, " AND stack_label %s ?", &args)
	queryStr = extendSQLiteQueryString(queryStr, query.Status, " AND LOWER(state) %s LOWER(?)", &args)

	queryStr += " ORDER BY timestamp DESC"
	if query.N > 0 {
		queryStr += " LIMIT ?"
		args = append(args, query.N)
	} else {
		queryStr += fmt.Sprintf(" LIMIT %d", DefaultStackCommandsQueryLimit)
	}

	return d.loadStackCommands(ctx, queryStr, args...)
}

func scanResources(rows *sql.Rows) ([]*pkgmodel.Resource, error) {
	defer closeRows(rows)

	var resources []*pkgmodel.Resource
	for rows.Next() {
		var jsonData, ksuid string
		if err := rows.Scan(&jsonData, &ksuid); err != nil {
			return nil, err
		}

		var resource pkgmodel.Resource
		if err := json.Unmarshal([]byte(jsonData), &resource); err != nil {
			return nil, err
		}
		resource.Ksuid = ksuid

		resources = append(resources, &resource)
	}

	return resources, rows.Err()
}

// liveResourcesQuery selects the latest version of every resource that is not deleted.
const liveResourcesQuery = `
	SELECT data, ksuid
	FROM resources r1
	WHERE NOT EXISTS (
		SELECT 1
		FROM resources r2
		WHERE r1.uri = r2.uri
		AND r2.version > r1.version
	)
	AND r1.operation != '%s'`

func (d DatastoreSQLite) QueryResources(query *ResourceQuery) ([]*pkgmodel.Resource, error) {
	ctx, span := sqliteTracer.Start(d.ctx, "QueryResources")
	defer span.End()

	queryStr := fmt.Sprintf(liveResourcesQuery, resource_update.OperationDelete)
	args := []any{}

	queryStr = extendSQLiteQueryString(queryStr, query.NativeID, " AND native_id %s ?", &args)
	queryStr = extendSQLiteQueryString(queryStr, query.Stack, " AND stack %s ?", &args)
	queryStr = extendSQLiteQueryString(queryStr, query.Type, " AND LOWER(type) %s LOWER(?)", &args)
	queryStr = extendSQLiteQueryString(queryStr, query.Label, " AND label %s ?", &args)
	queryStr = extendSQLiteQueryString(queryStr, query.Managed, " AND managed %s ?", &args)
	queryStr += " ORDER BY type, label"

	rows, err := d.conn.QueryContext(ctx, queryStr, args...)
	if err != nil {
		return nil, err
	}
	return scanResources(rows)
}

func (d DatastoreSQLite) latestResourceVersion(ctx context.Context, uri pkgmodel.ResourceURI) (*pkgmodel.Resource, string, string, error) {
	row := d.conn.QueryRowContext(ctx, `SELECT data, version, operation, ksuid FROM resources WHERE uri = ? ORDER BY version DESC LIMIT 1`, uri)

	var data, version, operation, ksuid string
	if err := row.Scan(&data, &version, &operation, &ksuid); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", "", nil
		}
		return nil, "", "", err
	}

	var resource pkgmodel.Resource
	if err := json.Unmarshal([]byte(data), &resource); err != nil {
		return nil, "", "", err
	}
	resource.Ksuid = ksuid

	return &resource, version, operation, nil
}

func (d DatastoreSQLite) storeResource(ctx context.Context, resource *pkgmodel.Resource, commandID string, operation string) (string, error) {
	existing, version, latestOperation, err := d.latestResourceVersion(ctx, resource.URI())
	if err != nil {
		return "", err
	}

	if resource.Ksuid == "" {
		if existing != nil && latestOperation != string(resource_update.OperationDelete) {
			resource.Ksuid = existing.Ksuid
		} else {
			resource.Ksuid = metautil.NewID()
		}
	}

	if existing == nil && operation == string(resource_update.OperationDelete) {
		return "", nil
	}

	newVersion := nextVersion(version)
	if existing != nil {
		if operation == string(resource_update.OperationDelete) {
			if latestOperation == string(resource_update.OperationDelete) {
				return versionID(existing.Ksuid, version), nil
			}
		} else if latestOperation != string(resource_update.OperationDelete) {
			readWriteEqual, readOnlyEqual := resourcesAreEqual(resource, existing)
			if readWriteEqual && readOnlyEqual {
				return versionID(existing.Ksuid, version), nil
			}
			// Read-only changes update the current version in place
			if readWriteEqual {
				newVersion = version
			}
		}
	}

	data := []byte("{}")
	if operation != string(resource_update.OperationDelete) {
		if data, err = json.Marshal(resource); err != nil {
			return "", err
		}
	}

	query := `
		INSERT OR REPLACE INTO resources (uri, version, command_id, operation, native_id, stack, type, label, data, managed, ksuid)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = d.conn.ExecContext(ctx, query,
		resource.URI(),
		newVersion,
		commandID,
		operation,
		resource.NativeID,
		resource.Stack,
		resource.Type,
		resource.Label,
		data,
		boolToInt(resource.Managed),
		resource.Ksuid)
	if err != nil {
		slog.Error("Failed to store resource", "error", err, "resourceURI", resource.URI())
		return "", err
	}

	return versionID(resource.Ksuid, newVersion), nil
}

func (d DatastoreSQLite) StoreResource(resource *pkgmodel.Resource, commandID string) (string, error) {
	ctx, span := sqliteTracer.Start(d.ctx, "StoreResource")
	defer span.End()

	return d.storeResource(ctx, resource, commandID, string(resource_update.OperationUpdate))
}

func (d DatastoreSQLite) DeleteResource(resource *pkgmodel.Resource, commandID string) (string, error) {
	ctx, span := sqliteTracer.Start(d.ctx, "DeleteResource")
	defer span.End()

	return d.storeResource(ctx, resource, commandID, string(resource_update.OperationDelete))
}

func (d DatastoreSQLite) LoadResource(uri pkgmodel.ResourceURI) (*pkgmodel.Resource, error) {
	ctx, span := sqliteTracer.Start(d.ctx, "LoadResource")
	defer span.End()

	resource, _, operation, err := d.latestResourceVersion(ctx, uri.Stripped())
	if err != nil || resource == nil || operation == string(resource_update.OperationDelete) {
		return nil, err
	}
	return resource, nil
}

func (d DatastoreSQLite) LoadResourceByNativeID(nativeID string, resourceType string) (*pkgmodel.Resource, error) {
	ctx, span := sqliteTracer.Start(d.ctx, "LoadResourceByNativeID")
	defer span.End()

	query := fmt.Sprintf(liveResourcesQuery, resource_update.OperationDelete) + " AND native_id = ? AND type = ? LIMIT 1"
	rows, err := d.conn.QueryContext(ctx, query, nativeID, resourceType)
	if err != nil {
		return nil, err
	}
	resources, err := scanResources(rows)
	if err != nil || len(resources) == 0 {
		return nil, err
	}
	return resources[0], nil
}

func (d DatastoreSQLite) LoadResourcesByStack(stackLabel string) ([]*pkgmodel.Resource, error) {
	ctx, span := sqliteTracer.Start(d.ctx, "LoadResourcesByStack")
	defer span.End()

	query := fmt.Sprintf(liveResourcesQuery, resource_update.OperationDelete) + " AND stack = ? ORDER BY label"
	rows, err := d.conn.QueryContext(ctx, query, stackLabel)
	if err != nil {
		return nil, err
	}
	return scanResources(rows)
}

func (d DatastoreSQLite) latestStackVersion(ctx context.Context, label string) (*pkgmodel.Stack, string, string, error) {
	row := d.conn.QueryRowContext(ctx, `SELECT data, version, operation FROM stacks WHERE label = ? ORDER BY version DESC LIMIT 1`, label)

	var data, version, operation string
	if err := row.Scan(&data, &version, &operation); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", "", nil
		}
		return nil, "", "", err
	}

	var stack pkgmodel.Stack
	if err := json.Unmarshal([]byte(data), &stack); err != nil {
		return nil, "", "", err
	}
	return &stack, version, operation, nil
}

func (d DatastoreSQLite) writeStack(ctx context.Context, label string, data []byte, commandID, operation string) (string, error) {
	_, previous, _, err := d.latestStackVersion(ctx, label)
	if err != nil {
		return "", err
	}

	version := nextVersion(previous)
	_, err = d.conn.ExecContext(ctx,
		`INSERT INTO stacks (label, version, command_id, operation, data, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		label, version, commandID, operation, data, metautil.TimeNow())
	if err != nil {
		slog.Error("Failed to store stack", "error", err, "label", label)
		return "", err
	}

	return version, nil
}

func (d DatastoreSQLite) StoreStack(stack *pkgmodel.Stack, commandID string) (string, error) {
	ctx, span := sqliteTracer.Start(d.ctx, "StoreStack")
	defer span.End()

	stack.UpdatedAt = metautil.TimeNow()
	data, err := json.Marshal(stack)
	if err != nil {
		return "", err
	}
	return d.writeStack(ctx, stack.Label, data, commandID, string(resource_update.OperationUpdate))
}

func (d DatastoreSQLite) DeleteStack(label string, commandID string) (string, error) {
	ctx, span := sqliteTracer.Start(d.ctx, "DeleteStack")
	defer span.End()

	_, version, operation, err := d.latestStackVersion(ctx, label)
	if err != nil {
		return "", err
	}
	if version == "" || operation == string(resource_update.OperationDelete) {
		return version, nil
	}
	return d.writeStack(ctx, label, []byte("{}"), commandID, string(resource_update.OperationDelete))
}

func (d DatastoreSQLite) GetStackByLabel(label string) (*pkgmodel.Stack, error) {
	ctx, span := sqliteTracer.Start(d.ctx, "GetStackByLabel")
	defer span.End()

	stack, _, operation, err := d.latestStackVersion(ctx, label)
	if err != nil || stack == nil || operation == string(resource_update.OperationDelete) {
		return nil, err
	}
	return stack, nil
}

func (d DatastoreSQLite) ListAllStacks() ([]*pkgmodel.Stack, error) {
	ctx, span := sqliteTracer.Start(d.ctx, "ListAllStacks")
	defer span.End()

	rows, err := d.conn.QueryContext(ctx, `
		SELECT data
		FROM stacks s1
		WHERE NOT EXISTS (
			SELECT 1 FROM stacks s2 WHERE s1.label = s2.label AND s2.version > s1.version
		)
		AND s1.operation != ?
		ORDER BY label`, string(resource_update.OperationDelete))
	if err != nil {
		return nil, err
	}
	defer closeRows(rows)

	var stacks []*pkgmodel.Stack
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var stack pkgmodel.Stack
		if err := json.Unmarshal([]byte(data), &stack); err != nil {
			return nil, err
		}
		stacks = append(stacks, &stack)
	}

	return stacks, rows.Err()
}

func (d DatastoreSQLite) countBy(ctx context.Context, query string, args ...any) (map[string]int, error) {
	rows, err := d.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows)

	counts := make(map[string]int)
	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return nil, err
		}
		counts[key] = count
	}

	return counts, rows.Err()
}

func (d DatastoreSQLite) Stats() (*stats.Stats, error) {
	ctx, span := sqliteTracer.Start(d.ctx, "Stats")
	defer span.End()

	res := stats.Stats{}
	var err error

	if res.Commands, err = d.countBy(ctx, fmt.Sprintf("SELECT command, COUNT(*) FROM %s WHERE command != ? GROUP BY command", CommandsTable), pkgmodel.CommandSync); err != nil {
		return nil, err
	}
	if res.States, err = d.countBy(ctx, fmt.Sprintf("SELECT state, COUNT(*) FROM %s WHERE command != ? GROUP BY state", CommandsTable), pkgmodel.CommandSync); err != nil {
		return nil, err
	}

	live := fmt.Sprintf(liveResourcesQuery, resource_update.OperationDelete)
	live = strings.Replace(live, "SELECT data, ksuid", "SELECT type, managed", 1)
	managed, err := d.countBy(ctx, fmt.Sprintf("SELECT CAST(managed AS TEXT), COUNT(*) FROM (%s) GROUP BY managed", live))
	if err != nil {
		return nil, err
	}
	res.ManagedResources = managed["1"]
	res.UnmanagedResources = managed["0"]

	if res.ResourceTypes, err = d.countBy(ctx, fmt.Sprintf("SELECT type, COUNT(*) FROM (%s) GROUP BY type", live)); err != nil {
		return nil, err
	}

	if res.ResourceErrors, err = d.countBy(ctx, `SELECT error_code, COUNT(*) FROM resource_updates WHERE state = ? AND error_code != '' GROUP BY error_code`,
		string(resource_update.ResourceUpdateStateFailed)); err != nil {
		return nil, err
	}

	stacks, err := d.ListAllStacks()
	if err != nil {
		return nil, err
	}
	res.Stacks = len(stacks)

	return &res, nil
}

// CleanUp closes the connection; in-memory databases vanish with it.
func (d DatastoreSQLite) CleanUp() error {
	return d.conn.Close()
}
