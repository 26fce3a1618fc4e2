package link

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func TestQueryRowsUppercasesColumns(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	conn := &Conn{db: db, dialect: &PostgresDialect{ForeignSchema: "src"}}

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name FROM accounts")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow(int64(1), "alice").
			AddRow(int64(2), nil))

	rows, err := conn.QueryRows(context.Background(), "SELECT id, name FROM accounts")
	if err != nil {
		t.Fatalf("QueryRows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0]["ID"] != int64(1) || rows[0]["NAME"] != "alice" {
		t.Errorf("row 0 = %v", rows[0])
	}
	if rows[1]["NAME"] != nil {
		t.Errorf("NULL must scan as nil, got %v", rows[1]["NAME"])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestQueryValue(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	conn := &Conn{db: db, dialect: &PostgresDialect{ForeignSchema: "src"}}

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM accounts")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(7)))

	val, err := conn.QueryValue(context.Background(), "SELECT COUNT(*) FROM accounts")
	if err != nil {
		t.Fatalf("QueryValue: %v", err)
	}
	if val != int64(7) {
		t.Errorf("val = %v, want 7", val)
	}
}

func TestInsertReturningIDPostgres(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	conn := &Conn{db: db, dialect: &PostgresDialect{ForeignSchema: "src"}}

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO t (name) VALUES ($1) RETURNING id")).
		WithArgs("x").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(9)))

	id, err := conn.InsertReturningID(context.Background(), "INSERT INTO t (name) VALUES ($1)", "x")
	if err != nil {
		t.Fatalf("InsertReturningID: %v", err)
	}
	if id != 9 {
		t.Errorf("id = %d, want 9", id)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestExec(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	conn := &Conn{db: db, dialect: &OracleDialect{LinkName: "SRC"}}

	mock.ExpectExec(regexp.QuoteMeta("UPDATE t SET a = :1")).
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := conn.Exec(context.Background(), "UPDATE t SET a = :1", int64(5)); err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
