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

	"github.com/exaring/otelpgx"
	json "github.com/goccy/go-json"
	pgx "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/resuralph/ralphstack/internal/metastructure/resource_update"
	"github.com/resuralph/ralphstack/internal/metastructure/stack_command"
	"github.com/resuralph/ralphstack/internal/metastructure/stats"
	"github.com/resuralph/ralphstack/internal/metastructure/types"
	metautil "github.com/resuralph/ralphstack/internal/metastructure/util"
	pkgmodel "github.com/resuralph/ralphstack/pkg/model"
)

// tracer groups the SQL queries of one datastore method under a single span
var tracer trace.Tracer

func init() {
	tracer = otel.Tracer("ralphstack/datastore")
}

type DatastorePostgres struct {
	pool *pgxpool.Pool
	cfg  *pkgmodel.DatastoreConfig
	ctx  context.Context
}

// This can be only used in tests or in setups where we have access to admin (non-production)
func ensureDatabaseExists(ctx context.Context, cfg *pkgmodel.DatastoreConfig) error {
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/postgres",
		cfg.Postgres.User, cfg.Postgres.Password, cfg.Postgres.Host, cfg.Postgres.Port)

	conn, err := pgx.Connect(ctx, connStr)
	if err != nil {
		return fmt.Errorf("failed to connect to admin database: %w", err)
	}

	defer func() {
		if err := conn.Close(ctx); err != nil {
			slog.Error("failed to close connection", "error", err)
		}
	}()

	var exists bool
	err = conn.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)", cfg.Postgres.Database).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check if database exists: %w", err)
	}

	if !exists {
		_, err = conn.Exec(ctx, fmt.Sprintf("CREATE DATABASE %s", pgx.Identifier{cfg.Postgres.Database}.Sanitize()))
		if err != nil {
			return fmt.Errorf("failed to create database: %w", err)
		}
	}

	return nil
}

// This can be only used in tests or in setups where we have access to admin (non-production)
func NewDatastorePostgresEnsureDatabase(ctx context.Context, cfg *pkgmodel.DatastoreConfig) (Datastore, error) {
	if err := ensureDatabaseExists(ctx, cfg); err != nil {
		return nil, err
	}

	return NewDatastorePostgres(ctx, cfg)
}

func postgresConnString(cfg *pkgmodel.DatastoreConfig) string {
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
		cfg.Postgres.User, cfg.Postgres.Password, cfg.Postgres.Host, cfg.Postgres.Port, cfg.Postgres.Database)

	params := []string{}
	if cfg.Postgres.ConnectionParams != "" {
		params = append(params, cfg.Postgres.ConnectionParams)
	}
	if cfg.Postgres.Schema != "" {
		params = append(params, "search_path="+cfg.Postgres.Schema)
	}
	if len(params) > 0 {
		connStr += "?" + strings.Join(params, "&")
	}

	return connStr
}

func NewDatastorePostgres(ctx context.Context, cfg *pkgmodel.DatastoreConfig) (Datastore, error) {
	connStr := postgresConnString(cfg)

	migrationDB, err := sql.Open("pgx", connStr)
	if err != nil {
		slog.Error("failed to open database for migrations", "error", err)
		return nil, err
	}
	defer func() {
		if err := migrationDB.Close(); err != nil {
			slog.Warn("failed to close migration database", "error", err)
		}
	}()

	if err = runMigrations(migrationDB, "postgres"); err != nil {
		return nil, err
	}

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		slog.Error("failed to parse postgres connection string", "error", err)
		return nil, err
	}
	// Connection details stay out of span attributes
	poolCfg.ConnConfig.Tracer = otelpgx.NewTracer(otelpgx.WithDisableConnectionDetailsInAttributes())

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		slog.Error("failed to connect to PostgreSQL database", "error", err)
		return nil, err
	}

	if err := otelpgx.RecordStats(pool); err != nil {
		slog.Error("failed to start recording pool stats", "error", err)
	}

	slog.Info("Started PostgreSQL datastore", "host", cfg.Postgres.Host, "port", cfg.Postgres.Port, "database", cfg.Postgres.Database, "schema", cfg.Postgres.Schema)

	return DatastorePostgres{pool: pool, cfg: cfg, ctx: ctx}, nil
}

func extendPostgresQueryString[T any](queryStr string, queryItem *QueryItem[T], sqlPart string, args *[]any) string {
	if queryItem != nil {
		var operator string

		if queryItem.Constraint == Excluded {
			operator = "!="
		} else if queryItem.Constraint == Required || queryItem.Constraint == Optional {
			operator = "="
		}

		queryStr += fmt.Sprintf(sqlPart, operator, len(*args)+1)
		var operand any
		switch v := any(queryItem.Item).(type) {
		case bool, string:
			operand = v
		default:
			operand = fmt.Sprintf("%v", v)
		}

		*args = append(*args, operand)
	}

	return queryStr
}

func storeResourceUpdatePostgres(ctx context.Context, tx pgx.Tx, commandID string, seq int, update resource_update.ResourceUpdate) error {
	data, err := json.Marshal(update)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO resource_updates (command_id, uri, operation, seq, stack_label, label, type, state, error_code, start_ts, modified_ts, data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (command_id, uri, operation) DO UPDATE SET
			state = EXCLUDED.state,
			error_code = EXCLUDED.error_code,
			start_ts = EXCLUDED.start_ts,
			modified_ts = EXCLUDED.modified_ts,
			data = EXCLUDED.data
	`
	_, err = tx.Exec(ctx, query,
		commandID,
		string(update.URI()),
		string(update.Operation),
		seq,
		update.URI().Stack(),
		update.Label(),
		update.Type(),
		string(update.State),
		errorCodeOf(update),
		update.StartTs.UTC(),
		update.ModifiedTs.UTC(),
		data)
	if err != nil {
		slog.Error("failed to store resource update", "error", err, "commandID", commandID, "uri", update.URI())
	}
	return err
}

func rollback(ctx context.Context, tx pgx.Tx) {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		slog.Error("failed to roll back transaction", "error", err)
	}
}

func (d DatastorePostgres) StoreStackCommand(cmd *stack_command.StackCommand) error {
	ctx, span := tracer.Start(context.Background(), "StoreStackCommand")
	defer span.End()

	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer rollback(ctx, tx)

	query := fmt.Sprintf(`
		INSERT INTO %s (command_id, timestamp, stack_label, command, state, client_id, modified_ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (command_id) DO UPDATE SET state = EXCLUDED.state, modified_ts = EXCLUDED.modified_ts
	`, CommandsTable)
	if _, err = tx.Exec(ctx, query, cmd.ID, cmd.StartTs.UTC(), cmd.StackLabel, string(cmd.Command), string(cmd.State), cmd.ClientID, cmd.ModifiedTs.UTC()); err != nil {
		slog.Error("failed to store stack command", "error", err, "commandID", cmd.ID)
		return err
	}

	for i, update := range cmd.ResourceUpdates {
		if err = storeResourceUpdatePostgres(ctx, tx, cmd.ID, i, update); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (d DatastorePostgres) StoreResourceUpdate(commandID string, update resource_update.ResourceUpdate) error {
	ctx, span := tracer.Start(context.Background(), "StoreResourceUpdate")
	defer span.End()

	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer rollback(ctx, tx)

	var seq int
	if err = tx.QueryRow(ctx, `SELECT COALESCE(MAX(seq), -1) + 1 FROM resource_updates WHERE command_id = $1`, commandID).Scan(&seq); err != nil {
		return err
	}
	if err = storeResourceUpdatePostgres(ctx, tx, commandID, seq, update); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (d DatastorePostgres) UpdateStackCommandProgress(commandID string, state types.CommandState, modifiedTs time.Time) error {
	ctx, span := tracer.Start(context.Background(), "UpdateStackCommandProgress")
	defer span.End()

	tag, err := d.pool.Exec(ctx, fmt.Sprintf(`UPDATE %s SET state = $1, modified_ts = $2 WHERE command_id = $3`, CommandsTable),
		string(state), modifiedTs.UTC(), commandID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("stack command %s not found", commandID)
	}
	return nil
}

func (d DatastorePostgres) loadStackCommands(ctx context.Context, query string, args ...any) ([]*stack_command.StackCommand, error) {
	rows, err := d.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	var commands []*stack_command.StackCommand
	for rows.Next() {
		var cmd stack_command.StackCommand
		var command, state string
		var clientID *string
		if err := rows.Scan(&cmd.ID, &cmd.StartTs, &cmd.StackLabel, &command, &state, &clientID, &cmd.ModifiedTs); err != nil {
			rows.Close()
			return nil, err
		}
		cmd.Command = pkgmodel.Command(command)
		cmd.State = types.CommandState(state)
		cmd.ClientID = metautil.StringPtrToString(clientID)
		commands = append(commands, &cmd)
	}
	rows.Close()
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

func (d DatastorePostgres) loadResourceUpdates(ctx context.Context, commandID string) ([]resource_update.ResourceUpdate, error) {
	rows, err := d.pool.Query(ctx, `SELECT data FROM resource_updates WHERE command_id = $1 ORDER BY seq`, commandID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var updates []resource_update.ResourceUpdate
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var update resource_update.ResourceUpdate
		if err := json.Unmarshal(data, &update); err != nil {
			return nil, err
		}
		updates = append(updates, update)
	}

	return updates, rows.Err()
}

func (d DatastorePostgres) GetStackCommandByID(commandID string) (*stack_command.StackCommand, error) {
	ctx, span := tracer.Start(context.Background(), "GetStackCommandByID")
	defer span.End()

	commands, err := d.loadStackCommands(ctx, fmt.Sprintf("SELECT %s FROM %s WHERE command_id = $1", stackCommandColumns, CommandsTable), commandID)
	if err != nil || len(commands) == 0 {
		return nil, err
	}
	return commands[0], nil
}

func (d DatastorePostgres) LoadIncompleteStackCommands() ([]*stack_command.StackCommand, error) {
	ctx, span := tracer.Start(context.Background(), "LoadIncompleteStackCommands")
	defer span.End()

	query := fmt.Sprintf("SELECT %s FROM %s WHERE state IN ($1, $2) ORDER BY timestamp DESC", stackCommandColumns, CommandsTable)
	return d.loadStackCommands(ctx, query, string(types.CommandStatePending), string(types.CommandStateInProgress))
}

func (d DatastorePostgres) QueryStackCommands(query *StatusQuery) ([]*stack_command.StackCommand, error) {
	ctx, span := tracer.Start(context.Background(), "QueryStackCommands")
	defer span.End()

	queryStr := fmt.Sprintf("SELECT %s FROM %s WHERE 1=1", stackCommandColumns, CommandsTable)
	args := []any{}

	queryStr = extendPostgresQueryString(queryStr, query.CommandID, " AND command_id %s $%d", &args)
	queryStr = extendPostgresQueryString(queryStr, query.ClientID, " AND client_id %s $%d", &args)
	queryStr = extendPostgresQueryString(queryStr, query.Command, " AND LOWER(command) %s LOWER($%d)", &args)
	if query.Command == nil {
		queryStr += fmt.Sprintf(" AND command != '%s'", pkgmodel.CommandSync)
	}
	queryStr = extendPostgresQueryString(queryStr, query.Stack, " AND stack_label %s $%d", &args)
	queryStr = extendPostgresQueryString(queryStr, query.Status, " AND LOWER(state) %s LOWER($%d)", &args)

	queryStr += " ORDER BY timestamp DESC"
	if query.N > 0 {
		queryStr += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, query.N)
	} else {
		queryStr += fmt.Sprintf(" LIMIT %d", DefaultStackCommandsQueryLimit)
	}

	return d.loadStackCommands(ctx, queryStr, args...)
}

func scanResourcesPostgres(rows pgx.Rows) ([]*pkgmodel.Resource, error) {
	defer rows.Close()

	var resources []*pkgmodel.Resource
	for rows.Next() {
		var data []byte
		var ksuid string
		if err := rows.Scan(&data, &ksuid); err != nil {
			return nil, err
		}

		var resource pkgmodel.Resource
		if err := json.Unmarshal(data, &resource); err != nil {
			return nil, err
		}
		resource.Ksuid = ksuid

		resources = append(resources, &resource)
	}

	return resources, rows.Err()
}

const liveResourcesQueryPostgres = `
	SELECT DISTINCT ON (uri) *
	FROM resources
	ORDER BY uri, version DESC`

// liveResources wraps the latest-version-per-uri selection so callers can filter on it.
func liveResources(columns string) string {
	return fmt.Sprintf("SELECT %s FROM (%s) latest WHERE operation != '%s'",
		columns, liveResourcesQueryPostgres, resource_update.OperationDelete)
}

func (d DatastorePostgres) QueryResources(query *ResourceQuery) ([]*pkgmodel.Resource, error) {
	ctx, span := tracer.Start(context.Background(), "QueryResources")
	defer span.End()

	queryStr := liveResources("data, ksuid")
	args := []any{}

	queryStr = extendPostgresQueryString(queryStr, query.NativeID, " AND native_id %s $%d", &args)
	queryStr = extendPostgresQueryString(queryStr, query.Stack, " AND stack %s $%d", &args)
	queryStr = extendPostgresQueryString(queryStr, query.Type, " AND LOWER(type) %s LOWER($%d)", &args)
	queryStr = extendPostgresQueryString(queryStr, query.Label, " AND label %s $%d", &args)
	queryStr = extendPostgresQueryString(queryStr, query.Managed, " AND managed %s $%d", &args)
	queryStr += " ORDER BY type, label"

	rows, err := d.pool.Query(ctx, queryStr, args...)
	if err != nil {
		return nil, err
	}
	return scanResourcesPostgres(rows)
}

func (d DatastorePostgres) latestResourceVersion(ctx context.Context, uri pkgmodel.ResourceURI) (*pkgmodel.Resource, string, string, error) {
	row := d.pool.QueryRow(ctx, `SELECT data, version, operation, ksuid FROM resources WHERE uri = $1 ORDER BY version DESC LIMIT 1`, string(uri))

	var data []byte
	var version, operation, ksuid string
	if err := row.Scan(&data, &version, &operation, &ksuid); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", "", nil
		}
		return nil, "", "", err
	}

	var resource pkgmodel.Resource
	if err := json.Unmarshal(data, &resource); err != nil {
		return nil, "", "", err
	}
	resource.Ksuid = ksuid

	return &resource, version, operation, nil
}

func (d DatastorePostgres) storeResource(ctx context.Context, resource *pkgmodel.Resource, commandID string, operation string) (string, error) {
	existing, version, latestOperation, err := d.latestResourceVersion(ctx, resource.URI())
	if err != nil {
		return "", err
	}

	deleting := operation == string(resource_update.OperationDelete)
	if existing == nil && deleting {
		return "", nil
	}

	if resource.Ksuid == "" {
		if existing != nil && latestOperation != string(resource_update.OperationDelete) {
			resource.Ksuid = existing.Ksuid
		} else {
			resource.Ksuid = metautil.NewID()
		}
	}

	newVersion := nextVersion(version)
	if existing != nil {
		if deleting {
			if latestOperation == string(resource_update.OperationDelete) {
				return versionID(existing.Ksuid, version), nil
			}
		} else if latestOperation != string(resource_update.OperationDelete) {
			readWriteEqual, readOnlyEqual := resourcesAreEqual(resource, existing)
			if readWriteEqual && readOnlyEqual {
				return versionID(existing.Ksuid, version), nil
			}
			if readWriteEqual {
				newVersion = version
			}
		}
	}

	data := []byte("{}")
	if !deleting {
		if data, err = json.Marshal(resource); err != nil {
			return "", err
		}
	}

	query := `
		INSERT INTO resources (uri, version, command_id, operation, native_id, stack, type, label, data, managed, ksuid)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (uri, version) DO UPDATE SET
			command_id = EXCLUDED.command_id,
			operation = EXCLUDED.operation,
			native_id = EXCLUDED.native_id,
			data = EXCLUDED.data,
			managed = EXCLUDED.managed
	`
	_, err = d.pool.Exec(ctx, query,
		string(resource.URI()),
		newVersion,
		commandID,
		operation,
		resource.NativeID,
		resource.Stack,
		resource.Type,
		resource.Label,
		data,
		resource.Managed,
		resource.Ksuid)
	if err != nil {
		slog.Error("failed to store resource", "error", err, "resourceURI", resource.URI())
		return "", err
	}

	return versionID(resource.Ksuid, newVersion), nil
}

func (d DatastorePostgres) StoreResource(resource *pkgmodel.Resource, commandID string) (string, error) {
	ctx, span := tracer.Start(context.Background(), "StoreResource")
	defer span.End()

	return d.storeResource(ctx, resource, commandID, string(resource_update.OperationUpdate))
}

func (d DatastorePostgres) DeleteResource(resource *pkgmodel.Resource, commandID string) (string, error) {
	ctx, span := tracer.Start(context.Background(), "DeleteResource")
	defer span.End()

	return d.storeResource(ctx, resource, commandID, string(resource_update.OperationDelete))
}

func (d DatastorePostgres) LoadResource(uri pkgmodel.ResourceURI) (*pkgmodel.Resource, error) {
	ctx, span := tracer.Start(context.Background(), "LoadResource")
	defer span.End()

	resource, _, operation, err := d.latestResourceVersion(ctx, uri.Stripped())
	if err != nil || resource == nil || operation == string(resource_update.OperationDelete) {
		return nil, err
	}
	return resource, nil
}

func (d DatastorePostgres) LoadResourceByNativeID(nativeID string, resourceType string) (*pkgmodel.Resource, error) {
	ctx, span := tracer.Start(context.Background(), "LoadResourceByNativeID")
	defer span.End()

	rows, err := d.pool.Query(ctx, liveResources("data, ksuid")+" AND native_id = $1 AND type = $2 LIMIT 1", nativeID, resourceType)
	if err != nil {
		return nil, err
	}
	resources, err := scanResourcesPostgres(rows)
	if err != nil || len(resources) == 0 {
		return nil, err
	}
	return resources[0], nil
}

func (d DatastorePostgres) LoadResourcesByStack(stackLabel string) ([]*pkgmodel.Resource, error) {
	ctx, span := tracer.Start(context.Background(), "LoadResourcesByStack")
	defer span.End()

	rows, err := d.pool.Query(ctx, liveResources("data, ksuid")+" AND stack = $1 ORDER BY label", stackLabel)
	if err != nil {
		return nil, err
	}
	return scanResourcesPostgres(rows)
}

func (d DatastorePostgres) latestStackVersion(ctx context.Context, label string) (*pkgmodel.Stack, string, string, error) {
	row := d.pool.QueryRow(ctx, `SELECT data, version, operation FROM stacks WHERE label = $1 ORDER BY version DESC LIMIT 1`, label)

	var data []byte
	var version, operation string
	if err := row.Scan(&data, &version, &operation); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", "", nil
		}
		return nil, "", "", err
	}

	var stack pkgmodel.Stack
	if err := json.Unmarshal(data, &stack); err != nil {
		return nil, "", "", err
	}
	return &stack, version, operation, nil
}

func (d DatastorePostgres) writeStack(ctx context.Context, label string, data []byte, commandID, operation string) (string, error) {
	_, previous, _, err := d.latestStackVersion(ctx, label)
	if err != nil {
		return "", err
	}

	version := nextVersion(previous)
	_, err = d.pool.Exec(ctx,
		`INSERT INTO stacks (label, version, command_id, operation, data, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		label, version, commandID, operation, data, metautil.TimeNow())
	if err != nil {
		slog.Error("failed to store stack", "error", err, "label", label)
		return "", err
	}

	return version, nil
}

func (d DatastorePostgres) StoreStack(stack *pkgmodel.Stack, commandID string) (string, error) {
	ctx, span := tracer.Start(context.Background(), "StoreStack")
	defer span.End()

	stack.UpdatedAt = metautil.TimeNow()
	data, err := json.Marshal(stack)
	if err != nil {
		return "", err
	}
	return d.writeStack(ctx, stack.Label, data, commandID, string(resource_update.OperationUpdate))
}

func (d DatastorePostgres) DeleteStack(label string, commandID string) (string, error) {
	ctx, span := tracer.Start(context.Background(), "DeleteStack")
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

func (d DatastorePostgres) GetStackByLabel(label string) (*pkgmodel.Stack, error) {
	ctx, span := tracer.Start(context.Background(), "GetStackByLabel")
	defer span.End()

	stack, _, operation, err := d.latestStackVersion(ctx, label)
	if err != nil || stack == nil || operation == string(resource_update.OperationDelete) {
		return nil, err
	}
	return stack, nil
}

func (d DatastorePostgres) ListAllStacks() ([]*pkgmodel.Stack, error) {
	ctx, span := tracer.Start(context.Background(), "ListAllStacks")
	defer span.End()

	rows, err := d.pool.Query(ctx, `
		SELECT data FROM (
			SELECT DISTINCT ON (label) label, data, operation
			FROM stacks
			ORDER BY label, version DESC
		) latest
		WHERE operation != $1
		ORDER BY label`, string(resource_update.OperationDelete))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stacks []*pkgmodel.Stack
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var stack pkgmodel.Stack
		if err := json.Unmarshal(data, &stack); err != nil {
			return nil, err
		}
		stacks = append(stacks, &stack)
	}

	return stacks, rows.Err()
}

func (d DatastorePostgres) countBy(ctx context.Context, query string, args ...any) (map[string]int, error) {
	rows, err := d.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

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

func (d DatastorePostgres) Stats() (*stats.Stats, error) {
	ctx, span := tracer.Start(context.Background(), "Stats")
	defer span.End()

	res := stats.Stats{}
	var err error

	if res.Commands, err = d.countBy(ctx, fmt.Sprintf("SELECT command, COUNT(*)::int FROM %s WHERE command != $1 GROUP BY command", CommandsTable), string(pkgmodel.CommandSync)); err != nil {
		return nil, err
	}
	if res.States, err = d.countBy(ctx, fmt.Sprintf("SELECT state, COUNT(*)::int FROM %s WHERE command != $1 GROUP BY state", CommandsTable), string(pkgmodel.CommandSync)); err != nil {
		return nil, err
	}

	managed, err := d.countBy(ctx, fmt.Sprintf("SELECT managed::text, COUNT(*)::int FROM (%s) live GROUP BY managed", liveResources("managed")))
	if err != nil {
		return nil, err
	}
	res.ManagedResources = managed["true"]
	res.UnmanagedResources = managed["false"]

	if res.ResourceTypes, err = d.countBy(ctx, fmt.Sprintf("SELECT type, COUNT(*)::int FROM (%s) live GROUP BY type", liveResources("type"))); err != nil {
		return nil, err
	}

	if res.ResourceErrors, err = d.countBy(ctx, `SELECT error_code, COUNT(*)::int FROM resource_updates WHERE state = $1 AND error_code != '' GROUP BY error_code`,
		string(resource_update.ResourceUpdateStateFailed)); err != nil {
		return nil, err
	}

	if err = d.pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*)::int FROM (%s) live", `
		SELECT DISTINCT ON (label) operation FROM stacks ORDER BY label, version DESC`)+" WHERE operation != $1",
		string(resource_update.OperationDelete)).Scan(&res.Stacks); err != nil {
		return nil, err
	}

	return &res, nil
}

func (d DatastorePostgres) Close() {
	d.pool.Close()
}

// This can be only used in tests or in setups where we have access to admin (non-production)
func (d DatastorePostgres) CleanUp() error {
	d.pool.Close()

	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/postgres",
		d.cfg.Postgres.User, d.cfg.Postgres.Password, d.cfg.Postgres.Host, d.cfg.Postgres.Port)

	conn, err := pgx.Connect(d.ctx, connStr)
	if err != nil {
		return fmt.Errorf("failed to connect to admin database: %w", err)
	}

	defer func() {
		if err := conn.Close(d.ctx); err != nil {
			slog.Error("failed to close connection", "error", err)
		}
	}()

	_, err = conn.Exec(d.ctx, fmt.Sprintf("DROP DATABASE IF EXISTS %s", pgx.Identifier{d.cfg.Postgres.Database}.Sanitize()))
	if err != nil {
		return fmt.Errorf("failed to delete database: %w", err)
	}

	return nil
}
