package tabular

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/marcboeker/go-duckdb/v2"
)

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

func TestMaterialize(t *testing.T) {
	db := openTestDB(t)
	table := Table{
		Columns: []Column{
			{Name: "id", Type: "BIGINT"},
			{Name: "name", Type: "VARCHAR"},
			{Name: "score", Type: "DOUBLE"},
		},
		Rows: [][]any{
			{int64(1), "alpha", 1.5},
			{int64(2), "beta", nil},
		},
	}

	if err := Materialize(context.Background(), db, "scores", table); err != nil {
		t.Fatalf("Materialize() error = %v", err)
	}

	var count int64
	if err := db.QueryRow(`SELECT COUNT(*) FROM "scores"`).Scan(&count); err != nil {
		t.Fatalf("count query error = %v", err)
	}
	if count != 2 {
		t.Fatalf("row count = %d", count)
	}

	var name string
	var score sql.NullFloat64
	if err := db.QueryRow(`SELECT name, score FROM "scores" WHERE id = 2`).Scan(&name, &score); err != nil {
		t.Fatalf("select error = %v", err)
	}
	if name != "beta" || score.Valid {
		t.Fatalf("row 2 = (%q, %v)", name, score)
	}
}

func TestMaterializeEmptyTable(t *testing.T) {
	db := openTestDB(t)
	table := Table{Columns: []Column{{Name: "x", Type: "BIGINT"}}}

	if err := Materialize(context.Background(), db, "empty", table); err != nil {
		t.Fatalf("Materialize() error = %v", err)
	}
	var count int64
	if err := db.QueryRow(`SELECT COUNT(*) FROM "empty"`).Scan(&count); err != nil {
		t.Fatalf("count query error = %v", err)
	}
	if count != 0 {
		t.Fatalf("row count = %d", count)
	}
}

func TestMaterializeQuotesIdentifiers(t *testing.T) {
	db := openTestDB(t)
	table := Table{
		Columns: []Column{{Name: "select", Type: "VARCHAR"}},
		Rows:    [][]any{{"keyword"}},
	}
	if err := Materialize(context.Background(), db, "from", table); err != nil {
		t.Fatalf("Materialize() with reserved-word names error = %v", err)
	}
	var value string
	if err := db.QueryRow(`SELECT "select" FROM "from"`).Scan(&value); err != nil {
		t.Fatalf("select error = %v", err)
	}
	if value != "keyword" {
		t.Fatalf("value = %q", value)
	}
}

func TestQuoteIdent(t *testing.T) {
	if got := QuoteIdent(`ta"ble`); got != `"ta""ble"` {
		t.Fatalf("QuoteIdent() = %s", got)
	}
}
