// Package tabular carries column-typed row data between execution domains:
// remote result sets, uploaded files, and local analytic tables.
package tabular

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

type Column struct {
	Name string
	Type string
}

type Table struct {
	Columns []Column
	Rows    [][]any
}

func (t Table) ColumnNames() []string {
	names := make([]string, 0, len(t.Columns))
	for _, column := range t.Columns {
		names = append(names, column.Name)
	}
	return names
}

const insertBatchRows = 500

// Materialize creates name in the local engine and loads every row of table
// into it. The caller owns name uniqueness; an existing table is an error.
func Materialize(ctx context.Context, db *sql.DB, name string, table Table) error {
	if len(table.Columns) == 0 {
		return fmt.Errorf("materialize %q: table has no columns", name)
	}

	columnDefs := make([]string, 0, len(table.Columns))
	for _, column := range table.Columns {
		columnType := column.Type
		if columnType == "" {
			columnType = "VARCHAR"
		}
		columnDefs = append(columnDefs, fmt.Sprintf("%s %s", QuoteIdent(column.Name), columnType))
	}
	createSQL := fmt.Sprintf("CREATE TABLE %s (%s)", QuoteIdent(name), strings.Join(columnDefs, ", "))
	if _, err := db.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("create table %q: %w", name, err)
	}

	for offset := 0; offset < len(table.Rows); offset += insertBatchRows {
		end := offset + insertBatchRows
		if end > len(table.Rows) {
			end = len(table.Rows)
		}
		if err := insertBatch(ctx, db, name, table.Columns, table.Rows[offset:end]); err != nil {
			return err
		}
	}
	return nil
}

func insertBatch(ctx context.Context, db *sql.DB, name string, columns []Column, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	rowPlaceholder := "(" + strings.TrimSuffix(strings.Repeat("?,", len(columns)), ",") + ")"
	placeholders := make([]string, 0, len(rows))
	args := make([]any, 0, len(rows)*len(columns))
	for _, row := range rows {
		if len(row) != len(columns) {
			return fmt.Errorf("insert into %q: row has %d values, want %d", name, len(row), len(columns))
		}
		placeholders = append(placeholders, rowPlaceholder)
		args = append(args, row...)
	}
	insertSQL := fmt.Sprintf("INSERT INTO %s VALUES %s", QuoteIdent(name), strings.Join(placeholders, ", "))
	if _, err := db.ExecContext(ctx, insertSQL, args...); err != nil {
		return fmt.Errorf("insert into %q: %w", name, err)
	}
	return nil
}

func QuoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}
