package dbopen_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/ezpage/dbopen"
)

func TestOpenPragmas(t *testing.T) {
	db := dbopen.OpenMemory(t)

	var fk int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatal(err)
	}
	if fk != 1 {
		t.Fatalf("foreign_keys = %d, want 1", fk)
	}

	var sync int
	if err := db.QueryRow("PRAGMA synchronous").Scan(&sync); err != nil {
		t.Fatal(err)
	}
	if sync != 1 {
		t.Fatalf("synchronous = %d, want 1 (NORMAL)", sync)
	}

	var busy int
	if err := db.QueryRow("PRAGMA busy_timeout").Scan(&busy); err != nil {
		t.Fatal(err)
	}
	if busy != 10_000 {
		t.Fatalf("busy_timeout = %d, want 10000", busy)
	}
}

func TestWithBusyTimeout(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithBusyTimeout(2500))

	var bt int
	if err := db.QueryRow("PRAGMA busy_timeout").Scan(&bt); err != nil {
		t.Fatal(err)
	}
	if bt != 2500 {
		t.Fatalf("busy_timeout = %d, want 2500", bt)
	}
}

func TestWithSchema(t *testing.T) {
	db := dbopen.OpenMemory(t,
		dbopen.WithSchema(`CREATE TABLE IF NOT EXISTS a (id TEXT PRIMARY KEY)`),
		dbopen.WithSchema(`CREATE TABLE IF NOT EXISTS b (id TEXT PRIMARY KEY, a_id TEXT REFERENCES a(id))`),
	)
	if _, err := db.Exec(`INSERT INTO a (id) VALUES ('1')`); err != nil {
		t.Fatalf("insert a: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO b (id, a_id) VALUES ('1', '1')`); err != nil {
		t.Fatalf("insert b: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO b (id, a_id) VALUES ('2', 'missing')`); err == nil {
		t.Fatal("expected foreign key violation")
	}
}

func TestWithMkdirAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "deep", "pages.db")

	db, err := dbopen.Open(path, dbopen.WithMkdirAll())
	if err != nil {
		t.Fatalf("open with mkdirall: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		t.Fatalf("directory not created: %v", err)
	}
}

func TestIsBusy(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("some other error"), false},
		{errors.New("SQLITE_BUSY"), true},
		{errors.New("database is locked"), true},
		{errors.New("prefix: database table is locked (6)"), true},
	}
	for _, tt := range tests {
		if got := dbopen.IsBusy(tt.err); got != tt.want {
			t.Errorf("IsBusy(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestRunTx(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(`CREATE TABLE tx_test (id TEXT PRIMARY KEY, val TEXT)`))

	err := dbopen.RunTx(context.Background(), db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO tx_test (id, val) VALUES ('1', 'hello')`)
		return err
	})
	if err != nil {
		t.Fatalf("RunTx: %v", err)
	}

	var val string
	if err := db.QueryRow(`SELECT val FROM tx_test WHERE id = '1'`).Scan(&val); err != nil {
		t.Fatal(err)
	}
	if val != "hello" {
		t.Fatalf("val = %q, want hello", val)
	}
}

func TestRunTxRollback(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(`CREATE TABLE tx_rb (id TEXT PRIMARY KEY)`))

	sentinel := errors.New("rollback me")
	err := dbopen.RunTx(context.Background(), db, func(tx *sql.Tx) error {
		tx.Exec(`INSERT INTO tx_rb (id) VALUES ('1')`)
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("RunTx error = %v, want sentinel", err)
	}

	var count int
	db.QueryRow(`SELECT COUNT(*) FROM tx_rb`).Scan(&count)
	if count != 0 {
		t.Fatalf("count = %d, want 0 after rollback", count)
	}
}

func TestRunTxContextCancelled(t *testing.T) {
	db := dbopen.OpenMemory(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := dbopen.RunTx(ctx, db, func(*sql.Tx) error { return nil }); err == nil {
		t.Fatal("expected error on cancelled context")
	}
}

func TestExec(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(`CREATE TABLE exec_test (id TEXT PRIMARY KEY)`))

	if _, err := dbopen.Exec(context.Background(), db, `INSERT INTO exec_test (id) VALUES (?)`, "1"); err != nil {
		t.Fatalf("Exec: %v", err)
	}

	var count int
	db.QueryRow(`SELECT COUNT(*) FROM exec_test`).Scan(&count)
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
}
