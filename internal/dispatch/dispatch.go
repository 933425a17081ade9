// Package dispatch stitches the two execution domains together: it runs the
// relational portion of a query on a named remote connection, materializes
// the result into the caller's session engine, and runs the visualization
// portion locally.
package dispatch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/vizql/vizql/internal/observability"
	"github.com/vizql/vizql/internal/querylang"
	"github.com/vizql/vizql/internal/registry"
	"github.com/vizql/vizql/internal/session"
	"github.com/vizql/vizql/internal/sqlexec"
	"github.com/vizql/vizql/internal/tabular"
)

var (
	ErrInvalidQuery       = errors.New("dispatch: invalid query")
	ErrConnectionNotFound = errors.New("dispatch: connection not found")
)

// RemoteQueryError wraps a statement the remote backend rejected.
type RemoteQueryError struct {
	Err error
}

func (e *RemoteQueryError) Error() string { return fmt.Sprintf("remote query failed: %v", e.Err) }
func (e *RemoteQueryError) Unwrap() error { return e.Err }

// RemoteConnectionError wraps an infrastructure failure reaching the backend.
type RemoteConnectionError struct {
	Err error
}

func (e *RemoteConnectionError) Error() string {
	return fmt.Sprintf("remote connection failed: %v", e.Err)
}
func (e *RemoteConnectionError) Unwrap() error { return e.Err }

// LocalQueryError wraps a failure in the session's local engine.
type LocalQueryError struct {
	Err error
}

func (e *LocalQueryError) Error() string { return fmt.Sprintf("local query failed: %v", e.Err) }
func (e *LocalQueryError) Unwrap() error { return e.Err }

const DefaultRowLimit = 10000

type Dispatcher struct {
	Registry *registry.Registry
	Sessions *session.Manager
	Language querylang.Language
	RowLimit int
	Logger   *slog.Logger
}

type Result struct {
	Columns      []string
	Rows         [][]any
	RowCount     int
	Truncated    bool
	Chart        querylang.ChartSpec
	CreatedTable string
}

// Dispatch executes a hybrid query. A query with neither a visualization
// clause nor a connection has nothing this endpoint can answer and is
// rejected; the pure-SQL path handles bare statements.
func (d *Dispatcher) Dispatch(ctx context.Context, queryText string, sess *session.Session, connection string) (Result, error) {
	statement, err := d.Language.Split(queryText)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	if !statement.HasViz() && connection == "" {
		return Result{}, fmt.Errorf("%w: query has no visualization clause and no connection", ErrInvalidQuery)
	}
	if statement.SQL == "" {
		return Result{}, fmt.Errorf("%w: query has no relational portion", ErrInvalidQuery)
	}

	var remoteTable tabular.Table
	var createdTable string
	if connection != "" {
		handle, err := d.Registry.GetEngine(ctx, connection)
		if err != nil {
			if errors.Is(err, registry.ErrUnknownConnection) {
				return Result{}, fmt.Errorf("%w: %q", ErrConnectionNotFound, connection)
			}
			return Result{}, &RemoteConnectionError{Err: err}
		}

		remoteTable, err = d.executeRemote(ctx, handle, statement.SQL)
		if err != nil {
			return Result{}, err
		}

		createdTable, err = d.Sessions.MaterializeTable(ctx, sess.ID, tableHint(statement.SQL), remoteTable)
		if err != nil {
			if errors.Is(err, session.ErrNotFound) {
				return Result{}, err
			}
			return Result{}, &LocalQueryError{Err: err}
		}
	}

	if !statement.HasViz() {
		result := d.capped(remoteTable)
		result.CreatedTable = createdTable
		return result, nil
	}

	source := statement.SQL
	if createdTable != "" {
		source = fmt.Sprintf("SELECT * FROM %s", tabular.QuoteIdent(createdTable))
	}
	start := time.Now()
	chart, localTable, err := d.Language.Render(ctx, sess.DB, statement.Viz, source)
	observability.ObserveLocalQuery(time.Since(start))
	if err != nil {
		// The materialized table stays behind; it is valid data the caller
		// can still query.
		return Result{}, &LocalQueryError{Err: err}
	}

	result := d.capped(localTable)
	result.Chart = chart
	result.CreatedTable = createdTable
	return result, nil
}

// DispatchSQL executes a plain SQL statement, remotely when a connection is
// named and otherwise against the session's local engine. Results are capped
// at the configured row limit with a truncation marker.
func (d *Dispatcher) DispatchSQL(ctx context.Context, queryText string, sess *session.Session, connection string) (Result, error) {
	queryText = sqlexec.StripTrailingSemicolons(queryText)
	if queryText == "" {
		return Result{}, fmt.Errorf("%w: empty statement", ErrInvalidQuery)
	}

	limit := d.rowLimit()
	if connection != "" {
		handle, err := d.Registry.GetEngine(ctx, connection)
		if err != nil {
			if errors.Is(err, registry.ErrUnknownConnection) {
				return Result{}, fmt.Errorf("%w: %q", ErrConnectionNotFound, connection)
			}
			return Result{}, &RemoteConnectionError{Err: err}
		}
		start := time.Now()
		// Fetch one row beyond the cap so truncation is detectable.
		table, err := sqlexec.Query(ctx, handle, queryText, limit+1)
		observability.ObserveRemoteQuery(time.Since(start))
		if err != nil {
			return Result{}, classifyRemote(err)
		}
		return d.capped(table), nil
	}

	start := time.Now()
	table, err := sqlexec.Query(ctx, sess.DB, queryText, limit+1)
	observability.ObserveLocalQuery(time.Since(start))
	if err != nil {
		return Result{}, &LocalQueryError{Err: err}
	}
	return d.capped(table), nil
}

func (d *Dispatcher) executeRemote(ctx context.Context, handle *sql.DB, sqlText string) (tabular.Table, error) {
	start := time.Now()
	table, err := sqlexec.Query(ctx, handle, sqlText, 0)
	observability.ObserveRemoteQuery(time.Since(start))
	if err != nil {
		return tabular.Table{}, classifyRemote(err)
	}
	if d.Logger != nil {
		d.Logger.DebugContext(ctx, "remote query executed",
			slog.Int("rows", len(table.Rows)),
			slog.String("duration", time.Since(start).String()),
		)
	}
	return table, nil
}

func (d *Dispatcher) rowLimit() int {
	if d.RowLimit > 0 {
		return d.RowLimit
	}
	return DefaultRowLimit
}

func (d *Dispatcher) capped(table tabular.Table) Result {
	limit := d.rowLimit()
	rows := table.Rows
	truncated := false
	if len(rows) > limit {
		rows = rows[:limit]
		truncated = true
	}
	return Result{
		Columns:   table.ColumnNames(),
		Rows:      rows,
		RowCount:  len(rows),
		Truncated: truncated,
	}
}

func classifyRemote(err error) error {
	var queryErr *sqlexec.QueryError
	if errors.As(err, &queryErr) {
		return &RemoteQueryError{Err: queryErr.Err}
	}
	var connErr *sqlexec.ConnError
	if errors.As(err, &connErr) {
		return &RemoteConnectionError{Err: connErr.Err}
	}
	return &RemoteQueryError{Err: err}
}

var fromTablePattern = regexp.MustCompile(`(?i)\bfrom\s+("?[A-Za-z0-9_.]+"?)`)

// tableHint picks a readable base name for the materialized table from the
// first FROM target, falling back to a generic label for expression-only
// queries.
func tableHint(sqlText string) string {
	match := fromTablePattern.FindStringSubmatch(sqlText)
	if match == nil {
		return "remote_result"
	}
	name := strings.Trim(match[1], `"`)
	if dot := strings.LastIndex(name, "."); dot >= 0 {
		name = name[dot+1:]
	}
	if name == "" {
		return "remote_result"
	}
	return name
}
