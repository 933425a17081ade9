package dispatch

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vizql/vizql/internal/querylang"
	"github.com/vizql/vizql/internal/registry"
	"github.com/vizql/vizql/internal/session"
)

type fixture struct {
	dispatcher *Dispatcher
	sessions   *session.Manager
	session    *session.Session
	mock       sqlmock.Sqlmock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	reg := registry.New(registry.Options{MaxEngines: 10})
	reg.Register("warehouse", "postgres", func(context.Context) (*sql.DB, error) {
		return db, nil
	})

	sessions := session.NewManager(session.Options{Timeout: time.Minute})
	t.Cleanup(sessions.Shutdown)
	created, err := sessions.Create(context.Background())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	return &fixture{
		dispatcher: &Dispatcher{
			Registry: reg,
			Sessions: sessions,
			Language: querylang.Default{},
			RowLimit: 100,
		},
		sessions: sessions,
		session:  created,
		mock:     mock,
	}
}

func remoteRows(values ...int64) *sqlmock.Rows {
	rows := sqlmock.NewRowsWithColumnDefinition(
		sqlmock.NewColumn("x").OfType("INT8", int64(0)),
	)
	for _, value := range values {
		rows.AddRow(value)
	}
	return rows
}

func TestDispatchRemoteWithVisualization(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectQuery("select * from t").WillReturnRows(remoteRows(1, 2, 3))

	result, err := f.dispatcher.Dispatch(context.Background(), "select * from t VISUALIZE bar x=x", f.session, "warehouse")
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if result.CreatedTable != "_upload_t" {
		t.Fatalf("CreatedTable = %q, want _upload_t", result.CreatedTable)
	}
	if result.Chart == nil {
		t.Fatal("expected a chart spec")
	}
	if result.Chart["mark"] != "bar" {
		t.Fatalf("mark = %v", result.Chart["mark"])
	}
	if result.RowCount != 3 {
		t.Fatalf("RowCount = %d", result.RowCount)
	}

	tables, err := f.sessions.ListTables(f.session.ID)
	if err != nil {
		t.Fatalf("ListTables() error = %v", err)
	}
	if len(tables) != 1 || tables[0] != "_upload_t" {
		t.Fatalf("tables = %v", tables)
	}

	// The materialized copy is queryable after the dispatch.
	var count int64
	if err := f.session.DB.QueryRow(`SELECT COUNT(*) FROM "_upload_t"`).Scan(&count); err != nil {
		t.Fatalf("count query error = %v", err)
	}
	if count != 3 {
		t.Fatalf("materialized rows = %d", count)
	}
}

func TestDispatchRemoteWithoutVisualization(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectQuery("select * from t").WillReturnRows(remoteRows(7))

	result, err := f.dispatcher.Dispatch(context.Background(), "select * from t", f.session, "warehouse")
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if result.Chart != nil {
		t.Fatal("no chart expected without a visualization clause")
	}
	if result.CreatedTable != "_upload_t" {
		t.Fatalf("CreatedTable = %q", result.CreatedTable)
	}
	if result.RowCount != 1 || result.Rows[0][0] != int64(7) {
		t.Fatalf("rows = %v", result.Rows)
	}
}

func TestDispatchLocalVisualization(t *testing.T) {
	f := newFixture(t)
	if _, err := f.session.DB.Exec(`CREATE TABLE nums (x BIGINT)`); err != nil {
		t.Fatalf("create local table: %v", err)
	}
	if _, err := f.session.DB.Exec(`INSERT INTO nums VALUES (1), (2)`); err != nil {
		t.Fatalf("seed local table: %v", err)
	}

	result, err := f.dispatcher.Dispatch(context.Background(), "SELECT x FROM nums VISUALIZE line x=x", f.session, "")
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if result.CreatedTable != "" {
		t.Fatalf("CreatedTable = %q, want none for a local query", result.CreatedTable)
	}
	if result.Chart == nil || result.RowCount != 2 {
		t.Fatalf("chart = %v, rows = %d", result.Chart, result.RowCount)
	}
}

func TestDispatchRejectsBareQuery(t *testing.T) {
	f := newFixture(t)
	_, err := f.dispatcher.Dispatch(context.Background(), "SELECT 1", f.session, "")
	if !errors.Is(err, ErrInvalidQuery) {
		t.Fatalf("Dispatch() error = %v, want ErrInvalidQuery", err)
	}
}

func TestDispatchUnknownConnection(t *testing.T) {
	f := newFixture(t)
	_, err := f.dispatcher.Dispatch(context.Background(), "SELECT 1 VISUALIZE point x=a", f.session, "nope")
	if !errors.Is(err, ErrConnectionNotFound) {
		t.Fatalf("Dispatch() error = %v, want ErrConnectionNotFound", err)
	}
}

func TestDispatchRemoteQueryError(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectQuery("select bogus").
		WillReturnError(&pgconn.PgError{Code: "42703", Message: "column does not exist"})

	var remoteErr *RemoteQueryError
	_, err := f.dispatcher.Dispatch(context.Background(), "select bogus VISUALIZE point x=a", f.session, "warehouse")
	if !errors.As(err, &remoteErr) {
		t.Fatalf("Dispatch() error = %v, want RemoteQueryError", err)
	}
}

func TestDispatchRemoteConnectionError(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectQuery("select 1").
		WillReturnError(&pgconn.PgError{Code: "08006", Message: "connection failure"})

	var connErr *RemoteConnectionError
	_, err := f.dispatcher.Dispatch(context.Background(), "select 1 VISUALIZE point x=a", f.session, "warehouse")
	if !errors.As(err, &connErr) {
		t.Fatalf("Dispatch() error = %v, want RemoteConnectionError", err)
	}
}

func TestDispatchLocalQueryError(t *testing.T) {
	f := newFixture(t)
	var localErr *LocalQueryError
	_, err := f.dispatcher.Dispatch(context.Background(), "SELECT x FROM no_such_table VISUALIZE point x=x", f.session, "")
	if !errors.As(err, &localErr) {
		t.Fatalf("Dispatch() error = %v, want LocalQueryError", err)
	}
}

func TestDispatchSQLLocal(t *testing.T) {
	f := newFixture(t)
	if _, err := f.session.DB.Exec(`CREATE TABLE nums (x BIGINT)`); err != nil {
		t.Fatalf("create local table: %v", err)
	}
	if _, err := f.session.DB.Exec(`INSERT INTO nums VALUES (1), (2), (3)`); err != nil {
		t.Fatalf("seed local table: %v", err)
	}

	result, err := f.dispatcher.DispatchSQL(context.Background(), "SELECT x FROM nums ORDER BY x", f.session, "")
	if err != nil {
		t.Fatalf("DispatchSQL() error = %v", err)
	}
	if result.RowCount != 3 || result.Truncated {
		t.Fatalf("RowCount = %d, Truncated = %v", result.RowCount, result.Truncated)
	}
}

func TestDispatchSQLTruncates(t *testing.T) {
	f := newFixture(t)
	f.dispatcher.RowLimit = 2
	if _, err := f.session.DB.Exec(`CREATE TABLE nums (x BIGINT)`); err != nil {
		t.Fatalf("create local table: %v", err)
	}
	if _, err := f.session.DB.Exec(`INSERT INTO nums VALUES (1), (2), (3)`); err != nil {
		t.Fatalf("seed local table: %v", err)
	}

	result, err := f.dispatcher.DispatchSQL(context.Background(), "SELECT x FROM nums ORDER BY x", f.session, "")
	if err != nil {
		t.Fatalf("DispatchSQL() error = %v", err)
	}
	if result.RowCount != 2 || !result.Truncated {
		t.Fatalf("RowCount = %d, Truncated = %v", result.RowCount, result.Truncated)
	}
}

func TestDispatchSQLRemote(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectQuery("SELECT * FROM (select * from t) AS q LIMIT 101").WillReturnRows(remoteRows(5))

	result, err := f.dispatcher.DispatchSQL(context.Background(), "select * from t", f.session, "warehouse")
	if err != nil {
		t.Fatalf("DispatchSQL() error = %v", err)
	}
	if result.RowCount != 1 || result.Rows[0][0] != int64(5) {
		t.Fatalf("rows = %v", result.Rows)
	}

	// Plain SQL must not register anything in the session.
	tables, err := f.sessions.ListTables(f.session.ID)
	if err != nil {
		t.Fatalf("ListTables() error = %v", err)
	}
	if len(tables) != 0 {
		t.Fatalf("tables = %v", tables)
	}
}

func TestTableHint(t *testing.T) {
	tests := []struct {
		sql  string
		want string
	}{
		{"select * from t", "t"},
		{"SELECT a FROM public.orders WHERE a > 1", "orders"},
		{`SELECT * FROM "Sales"`, "Sales"},
		{"SELECT 1", "remote_result"},
	}
	for _, tt := range tests {
		if got := tableHint(tt.sql); got != tt.want {
			t.Fatalf("tableHint(%q) = %q, want %q", tt.sql, got, tt.want)
		}
	}
}
