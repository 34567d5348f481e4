package dbopen

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func TestOpen_Pragmas(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "p.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	for pragma, want := range map[string]string{
		"journal_mode": "wal",
		"foreign_keys": "1",
		"synchronous":  "1",
		"busy_timeout": "10000",
	} {
		var got string
		if err := db.QueryRow("PRAGMA " + pragma).Scan(&got); err != nil {
			t.Fatalf("%s: %v", pragma, err)
		}
		if got != want {
			t.Errorf("%s = %q, want %q", pragma, got, want)
		}
	}
}

func TestOpen_MkdirAllAndSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "visits.db")
	db, err := Open(path, WithMkdirAll(), WithSchema(`CREATE TABLE kv (k TEXT PRIMARY KEY, v TEXT)`), WithSchema(`INSERT INTO kv VALUES ('x', 'y')`))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("database file: %v", err)
	}
	var v string
	if err := db.QueryRow(`SELECT v FROM kv WHERE k = 'x'`).Scan(&v); err != nil || v != "y" {
		t.Fatalf("schemas not applied in order: v=%q err=%v", v, err)
	}
}

func TestOpen_BadSchema(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "bad.db"), WithSchema(`CREATE TABLE (`)); err == nil {
		t.Fatal("expected schema error")
	}
}

func TestIsBusy(t *testing.T) {
	for msg, want := range map[string]bool{
		"":                                    false,
		"no such table: visits":               false,
		"SQLITE_BUSY":                         true,
		"exec: database is locked (5)":        true,
		"insert: database table is locked":    true,
		"constraint failed: UNIQUE (SQLITE_)": false,
	} {
		var err error
		if msg != "" {
			err = errors.New(msg)
		}
		if got := IsBusy(err); got != want {
			t.Errorf("IsBusy(%q) = %v, want %v", msg, got, want)
		}
	}
}

func TestRetry(t *testing.T) {
	busy := errors.New("database is locked")
	other := errors.New("syntax error")
	tests := []struct {
		name  string
		errs  []error
		calls int
		want  error
	}{
		{"ok", []error{nil}, 1, nil},
		{"busy then ok", []error{busy, nil}, 2, nil},
		{"other not retried", []error{other}, 1, other},
		{"busy exhausted", []error{busy, busy, busy, nil}, attempts, busy},
	}
	for _, tt := range tests {
		calls := 0
		err := retry(context.Background(), func() error {
			calls++
			return tt.errs[calls-1]
		})
		if !errors.Is(err, tt.want) && !(err == nil && tt.want == nil) {
			t.Errorf("%s: err %v, want %v", tt.name, err, tt.want)
		}
		if calls != tt.calls {
			t.Errorf("%s: %d calls, want %d", tt.name, calls, tt.calls)
		}
	}
}

func TestRetry_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := retry(ctx, func() error { return errors.New("SQLITE_BUSY") })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}

func TestRunTx(t *testing.T) {
	db := OpenMemory(t, WithSchema(`CREATE TABLE ids (id TEXT PRIMARY KEY)`))
	ctx := context.Background()

	if err := RunTx(ctx, db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO ids VALUES ('kept')`)
		return err
	}); err != nil {
		t.Fatal(err)
	}

	errAbort := errors.New("abort")
	err := RunTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO ids VALUES ('dropped')`); err != nil {
			return err
		}
		return errAbort
	})
	if !errors.Is(err, errAbort) {
		t.Fatalf("err = %v", err)
	}

	if _, err := Exec(ctx, db, `INSERT INTO ids VALUES (?)`, "exec"); err != nil {
		t.Fatal(err)
	}

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM ids`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("rows = %d, want 2 (rolled back insert kept?)", n)
	}
}
