package querylang

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/marcboeker/go-duckdb/v2"
)

func TestSplitWithoutClause(t *testing.T) {
	statement, err := Default{}.Split("SELECT * FROM t;")
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if statement.HasViz() {
		t.Fatal("expected no visualization clause")
	}
	if statement.SQL != "SELECT * FROM t" {
		t.Fatalf("SQL = %q", statement.SQL)
	}
}

func TestSplitWithClause(t *testing.T) {
	statement, err := Default{}.Split("SELECT a, b FROM t VISUALIZE bar x=a y=b color=a")
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if statement.SQL != "SELECT a, b FROM t" {
		t.Fatalf("SQL = %q", statement.SQL)
	}
	if !statement.HasViz() {
		t.Fatal("expected a visualization clause")
	}
	if statement.Viz.Mark != "bar" {
		t.Fatalf("mark = %q", statement.Viz.Mark)
	}
	want := map[string]string{"x": "a", "y": "b", "color": "a"}
	for channel, column := range want {
		if statement.Viz.Encodings[channel] != column {
			t.Fatalf("encoding %q = %q, want %q", channel, statement.Viz.Encodings[channel], column)
		}
	}
}

func TestSplitKeywordCaseInsensitive(t *testing.T) {
	statement, err := Default{}.Split("select a from t visualize point x=a")
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if !statement.HasViz() {
		t.Fatal("lowercase keyword not recognized")
	}
}

func TestSplitIgnoresKeywordInsideLiteralsAndSubqueries(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"string literal", `SELECT 'VISUALIZE bar x=a' AS label FROM t`},
		{"quoted identifier", `SELECT "VISUALIZE" FROM t`},
		{"subquery", `SELECT * FROM (SELECT 1 AS visualize_count) AS q`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			statement, err := Default{}.Split(tt.query)
			if err != nil {
				t.Fatalf("Split() error = %v", err)
			}
			if statement.HasViz() {
				t.Fatalf("Split(%q) found a clause where none is", tt.query)
			}
		})
	}
}

func TestSplitClauseErrors(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"empty clause", "SELECT a FROM t VISUALIZE"},
		{"unknown mark", "SELECT a FROM t VISUALIZE pie x=a"},
		{"missing x", "SELECT a FROM t VISUALIZE bar y=a"},
		{"bad encoding", "SELECT a FROM t VISUALIZE bar x"},
		{"unknown channel", "SELECT a FROM t VISUALIZE bar x=a size=a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := (Default{}).Split(tt.query); err == nil {
				t.Fatalf("Split(%q) expected an error", tt.query)
			}
		})
	}
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("duckdb", "")
	if err != nil {
		t.Fatalf("open duckdb: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestRenderBuildsChartSpec(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.Exec(`CREATE TABLE sales (region VARCHAR, amount BIGINT)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO sales VALUES ('north', 10), ('south', 20)`); err != nil {
		t.Fatalf("insert: %v", err)
	}

	viz := &VizClause{Mark: "bar", Encodings: map[string]string{"x": "region", "y": "amount"}}
	spec, table, err := Default{}.Render(context.Background(), db, viz, "SELECT * FROM sales")
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if spec["mark"] != "bar" {
		t.Fatalf("mark = %v", spec["mark"])
	}
	if len(table.Rows) != 2 {
		t.Fatalf("rows = %d", len(table.Rows))
	}

	encoding, ok := spec["encoding"].(map[string]any)
	if !ok {
		t.Fatalf("encoding = %T", spec["encoding"])
	}
	x, ok := encoding["x"].(map[string]any)
	if !ok || x["field"] != "region" {
		t.Fatalf("x encoding = %v", encoding["x"])
	}

	data, ok := spec["data"].(map[string]any)
	if !ok {
		t.Fatalf("data = %T", spec["data"])
	}
	values, ok := data["values"].([]map[string]any)
	if !ok || len(values) != 2 {
		t.Fatalf("values = %v", data["values"])
	}
	if values[0]["region"] != "north" {
		t.Fatalf("first value = %v", values[0])
	}
}

func TestRenderUnknownColumn(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.Exec(`CREATE TABLE t (a BIGINT)`); err != nil {
		t.Fatalf("create table: %v", err)
	}

	viz := &VizClause{Mark: "point", Encodings: map[string]string{"x": "missing"}}
	if _, _, err := (Default{}).Render(context.Background(), db, viz, "SELECT * FROM t"); err == nil {
		t.Fatal("expected unknown-column error")
	}
}

func TestRenderBadSource(t *testing.T) {
	db := openTestDB(t)
	viz := &VizClause{Mark: "point", Encodings: map[string]string{"x": "a"}}
	if _, _, err := (Default{}).Render(context.Background(), db, viz, "SELECT * FROM nope"); err == nil {
		t.Fatal("expected error for missing source table")
	}
}
