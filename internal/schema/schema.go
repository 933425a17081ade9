// Package schema enumerates tables and columns across a session's local
// engine and named remote connections, with optional per-column statistics.
package schema

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/vizql/vizql/internal/registry"
	"github.com/vizql/vizql/internal/session"
	"github.com/vizql/vizql/internal/tabular"
)

var ErrConnectionNotFound = errors.New("schema: connection not found")

const DefaultCategoricalLimit = 20

var numericPrefixes = []string{
	"INTEGER", "BIGINT", "SMALLINT", "TINYINT", "HUGEINT",
	"FLOAT", "DOUBLE", "DECIMAL", "REAL", "NUMERIC", "INT",
}

var textPrefixes = []string{"VARCHAR", "TEXT", "STRING", "CHAR"}

// Column describes one column of a table. Stats fields are populated only
// when the caller asks for them; CategoricalValues stays nil for columns
// whose distinct-value count exceeds the configured cap.
type Column struct {
	Name              string   `json:"column_name"`
	Type              string   `json:"data_type"`
	MinValue          string   `json:"min_value,omitempty"`
	MaxValue          string   `json:"max_value,omitempty"`
	CategoricalValues []string `json:"categorical_values,omitempty"`
}

// TableSchema describes a table. Connection is empty for session-local
// tables.
type TableSchema struct {
	Name       string   `json:"table_name"`
	Connection string   `json:"connection,omitempty"`
	Columns    []Column `json:"columns"`
}

// TableName is a lightweight entry for listings that skip column detail.
type TableName struct {
	Name       string `json:"table_name"`
	Connection string `json:"connection,omitempty"`
}

type Introspector struct {
	Registry         *registry.Registry
	Sessions         *session.Manager
	CategoricalLimit int
	Logger           *slog.Logger
}

// Describe returns full schemas for the session's local tables and, when a
// connection is named, for every table visible through it. An empty
// connection name covers all registered connections.
func (it *Introspector) Describe(ctx context.Context, sess *session.Session, connection string, includeStats bool) ([]TableSchema, error) {
	tables := []TableSchema{}

	localNames, err := it.Sessions.ListTables(sess.ID)
	if err != nil {
		return nil, err
	}
	for _, name := range localNames {
		table, err := it.localTableSchema(ctx, sess.DB, name, includeStats)
		if err != nil {
			return nil, err
		}
		tables = append(tables, table)
	}

	connections, err := it.resolveConnections(connection)
	if err != nil {
		return nil, err
	}
	for _, connName := range connections {
		remote, err := it.remoteTableSchemas(ctx, connName, includeStats)
		if err != nil {
			return nil, err
		}
		tables = append(tables, remote...)
	}
	return tables, nil
}

// TableNames returns name-only entries for the same table set Describe
// covers, without touching column metadata or stats.
func (it *Introspector) TableNames(ctx context.Context, sess *session.Session, connection string) ([]TableName, error) {
	names := []TableName{}

	localNames, err := it.Sessions.ListTables(sess.ID)
	if err != nil {
		return nil, err
	}
	for _, name := range localNames {
		names = append(names, TableName{Name: name})
	}

	connections, err := it.resolveConnections(connection)
	if err != nil {
		return nil, err
	}
	for _, connName := range connections {
		handle, err := it.Registry.GetEngine(ctx, connName)
		if err != nil {
			return nil, err
		}
		remote, err := it.remoteTableNames(ctx, handle, it.Registry.Driver(connName))
		if err != nil {
			return nil, fmt.Errorf("list tables on %q: %w", connName, err)
		}
		for _, name := range remote {
			names = append(names, TableName{Name: name, Connection: connName})
		}
	}
	return names, nil
}

func (it *Introspector) resolveConnections(connection string) ([]string, error) {
	if connection == "" {
		return it.Registry.ListConnections(), nil
	}
	if !it.Registry.Has(connection) {
		return nil, fmt.Errorf("%w: %q", ErrConnectionNotFound, connection)
	}
	return []string{connection}, nil
}

func (it *Introspector) localTableSchema(ctx context.Context, db *sql.DB, tableName string, includeStats bool) (TableSchema, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("DESCRIBE %s", tabular.QuoteIdent(tableName)))
	if err != nil {
		return TableSchema{}, fmt.Errorf("describe %q: %w", tableName, err)
	}
	defer func() { _ = rows.Close() }()

	// DESCRIBE emits more columns than we need; scan positionally and
	// discard the rest.
	allColumns, err := rows.Columns()
	if err != nil {
		return TableSchema{}, err
	}

	var columns []Column
	for rows.Next() {
		targets := make([]any, len(allColumns))
		var name, colType string
		targets[0] = &name
		targets[1] = &colType
		for i := 2; i < len(targets); i++ {
			targets[i] = new(any)
		}
		if err := rows.Scan(targets...); err != nil {
			return TableSchema{}, err
		}
		columns = append(columns, Column{Name: name, Type: colType})
	}
	if err := rows.Err(); err != nil {
		return TableSchema{}, err
	}

	if includeStats {
		for i := range columns {
			if err := it.collectStats(ctx, db, tableName, &columns[i], quoteDouble); err != nil {
				return TableSchema{}, err
			}
		}
	}
	return TableSchema{Name: tableName, Columns: columns}, nil
}

func (it *Introspector) remoteTableSchemas(ctx context.Context, connName string, includeStats bool) ([]TableSchema, error) {
	handle, err := it.Registry.GetEngine(ctx, connName)
	if err != nil {
		return nil, err
	}
	driver := it.Registry.Driver(connName)

	names, err := it.remoteTableNames(ctx, handle, driver)
	if err != nil {
		return nil, fmt.Errorf("list tables on %q: %w", connName, err)
	}

	quote := quoteDouble
	if driver == "mysql" {
		quote = quoteBacktick
	}

	tables := make([]TableSchema, 0, len(names))
	for _, tableName := range names {
		columns, err := it.remoteColumns(ctx, handle, driver, tableName)
		if err != nil {
			return nil, fmt.Errorf("columns of %q on %q: %w", tableName, connName, err)
		}
		if includeStats {
			for i := range columns {
				if err := it.collectStats(ctx, handle, tableName, &columns[i], quote); err != nil {
					if it.Logger != nil {
						it.Logger.WarnContext(ctx, "column stats unavailable",
							slog.String("connection", connName),
							slog.String("table", tableName),
							slog.String("column", columns[i].Name),
							slog.String("error", err.Error()),
						)
					}
				}
			}
		}
		tables = append(tables, TableSchema{Name: tableName, Connection: connName, Columns: columns})
	}
	return tables, nil
}

func (it *Introspector) remoteTableNames(ctx context.Context, handle *sql.DB, driver string) ([]string, error) {
	query := `SELECT table_name FROM information_schema.tables
WHERE table_schema = 'public' AND table_type = 'BASE TABLE' ORDER BY table_name`
	if driver == "mysql" {
		query = `SELECT table_name FROM information_schema.tables
WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE' ORDER BY table_name`
	}

	rows, err := handle.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (it *Introspector) remoteColumns(ctx context.Context, handle *sql.DB, driver, tableName string) ([]Column, error) {
	query := `SELECT column_name, data_type FROM information_schema.columns
WHERE table_schema = 'public' AND table_name = $1 ORDER BY ordinal_position`
	if driver == "mysql" {
		query = `SELECT column_name, data_type FROM information_schema.columns
WHERE table_schema = DATABASE() AND table_name = ? ORDER BY ordinal_position`
	}

	rows, err := handle.QueryContext(ctx, query, tableName)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var columns []Column
	for rows.Next() {
		var name, colType string
		if err := rows.Scan(&name, &colType); err != nil {
			return nil, err
		}
		columns = append(columns, Column{Name: name, Type: colType})
	}
	return columns, rows.Err()
}

// collectStats runs at most one statement per column: a combined MIN/MAX
// aggregate for numeric columns, a capped DISTINCT scan for text columns,
// nothing for everything else.
func (it *Introspector) collectStats(ctx context.Context, db *sql.DB, tableName string, col *Column, quote func(string) string) error {
	switch {
	case isNumericType(col.Type):
		query := fmt.Sprintf("SELECT MIN(%[1]s), MAX(%[1]s) FROM %[2]s", quote(col.Name), quote(tableName))
		var minVal, maxVal sql.NullString
		if err := db.QueryRowContext(ctx, query).Scan(&minVal, &maxVal); err != nil {
			return err
		}
		if minVal.Valid {
			col.MinValue = minVal.String
		}
		if maxVal.Valid {
			col.MaxValue = maxVal.String
		}
	case isTextType(col.Type):
		limit := it.categoricalLimit()
		query := fmt.Sprintf("SELECT DISTINCT %[1]s FROM %[2]s WHERE %[1]s IS NOT NULL LIMIT %[3]d",
			quote(col.Name), quote(tableName), limit+1)
		rows, err := db.QueryContext(ctx, query)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()

		var values []string
		for rows.Next() {
			var value string
			if err := rows.Scan(&value); err != nil {
				return err
			}
			values = append(values, value)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		if len(values) <= limit {
			sort.Strings(values)
			col.CategoricalValues = values
		}
	}
	return nil
}

func (it *Introspector) categoricalLimit() int {
	if it.CategoricalLimit > 0 {
		return it.CategoricalLimit
	}
	return DefaultCategoricalLimit
}

func isNumericType(dataType string) bool {
	return hasAnyPrefix(strings.ToUpper(dataType), numericPrefixes)
}

func isTextType(dataType string) bool {
	return hasAnyPrefix(strings.ToUpper(dataType), textPrefixes)
}

func hasAnyPrefix(value string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(value, prefix) {
			return true
		}
	}
	return false
}

func quoteDouble(name string) string { return tabular.QuoteIdent(name) }

func quoteBacktick(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
