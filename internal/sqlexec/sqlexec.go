// Package sqlexec executes SQL against database/sql handles and collects
// column-typed tabular results, separating query rejections from
// infrastructure failures.
package sqlexec

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vizql/vizql/internal/tabular"
)

// QueryError reports a statement the remote backend rejected.
type QueryError struct {
	Err error
}

func (e *QueryError) Error() string { return fmt.Sprintf("remote query rejected: %v", e.Err) }
func (e *QueryError) Unwrap() error { return e.Err }

// ConnError reports an infrastructure-level failure reaching the backend.
type ConnError struct {
	Err error
}

func (e *ConnError) Error() string { return fmt.Sprintf("remote connection failed: %v", e.Err) }
func (e *ConnError) Unwrap() error { return e.Err }

// Query runs sqlText against db and collects the full result. A positive
// rowLimit wraps the statement in a bounding subquery.
func Query(ctx context.Context, db *sql.DB, sqlText string, rowLimit int) (tabular.Table, error) {
	sqlText = StripTrailingSemicolons(sqlText)
	if sqlText == "" {
		return tabular.Table{}, &QueryError{Err: errors.New("empty statement")}
	}
	if rowLimit > 0 {
		sqlText = fmt.Sprintf("SELECT * FROM (%s) AS q LIMIT %d", sqlText, rowLimit)
	}

	rows, err := db.QueryContext(ctx, sqlText)
	if err != nil {
		return tabular.Table{}, Classify(err)
	}
	defer func() { _ = rows.Close() }()

	table, err := Collect(rows)
	if err != nil {
		return tabular.Table{}, Classify(err)
	}
	return table, nil
}

// Collect drains rows into a Table, mapping driver-declared column types to
// local engine type names and normalizing byte slices to strings.
func Collect(rows *sql.Rows) (tabular.Table, error) {
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return tabular.Table{}, fmt.Errorf("column types: %w", err)
	}
	columns := make([]tabular.Column, 0, len(columnTypes))
	for _, columnType := range columnTypes {
		columns = append(columns, tabular.Column{
			Name: columnType.Name(),
			Type: localTypeFor(columnType.DatabaseTypeName()),
		})
	}

	collected := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return tabular.Table{}, fmt.Errorf("scan row: %w", err)
		}
		collected = append(collected, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return tabular.Table{}, fmt.Errorf("iterate rows: %w", err)
	}
	return tabular.Table{Columns: columns, Rows: collected}, nil
}

// Classify maps a backend error to QueryError or ConnError. Backend-reported
// statement errors mean the query was rejected; everything transport-shaped
// means the backend was unreachable.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var alreadyQuery *QueryError
	var alreadyConn *ConnError
	if errors.As(err, &alreadyQuery) || errors.As(err, &alreadyConn) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08 is connection_exception; everything else the server
		// reported is a statement problem.
		if strings.HasPrefix(pgErr.Code, "08") {
			return &ConnError{Err: err}
		}
		return &QueryError{Err: err}
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return &QueryError{Err: err}
	}

	var netErr net.Error
	switch {
	case errors.As(err, &netErr),
		errors.Is(err, driver.ErrBadConn),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, mysql.ErrInvalidConn):
		return &ConnError{Err: err}
	}
	return &QueryError{Err: err}
}

func StripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}

func localTypeFor(databaseType string) string {
	switch strings.ToUpper(databaseType) {
	case "INT", "INT2", "INT4", "INT8", "INTEGER", "BIGINT", "SMALLINT", "TINYINT", "MEDIUMINT", "SERIAL", "BIGSERIAL", "HUGEINT", "UNSIGNED BIGINT":
		return "BIGINT"
	case "FLOAT", "FLOAT4", "FLOAT8", "DOUBLE", "REAL", "NUMERIC", "DECIMAL":
		return "DOUBLE"
	case "BOOL", "BOOLEAN", "BIT":
		return "BOOLEAN"
	case "DATE":
		return "DATE"
	case "TIMESTAMP", "TIMESTAMPTZ", "DATETIME", "TIMESTAMP WITH TIME ZONE", "TIMESTAMP WITHOUT TIME ZONE":
		return "TIMESTAMP"
	default:
		return "VARCHAR"
	}
}
