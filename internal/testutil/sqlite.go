package testutil

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// CreateTestDatabase creates a SQLite database at path with an "entries"
// table holding rows rows. The returned handle stays open until the test
// ends, like a live application holding its database.
func CreateTestDatabase(t *testing.T, path string, rows int, wal bool) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("opening %s: %v", path, err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if wal {
		if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
			t.Fatalf("enabling WAL: %v", err)
		}
	}
	if _, err := db.Exec(`CREATE TABLE entries (id INTEGER PRIMARY KEY, description TEXT NOT NULL, amount_cents INTEGER NOT NULL)`); err != nil {
		t.Fatalf("creating table: %v", err)
	}
	InsertEntries(t, db, rows)
	return db
}

// InsertEntries appends n rows to the entries table in one transaction.
func InsertEntries(t *testing.T, db *sql.DB, n int) {
	t.Helper()

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	for i := 0; i < n; i++ {
		// Long descriptions spread rows over many pages.
		desc := fmt.Sprintf("expense %d %s", i, strings.Repeat("x", 200))
		if _, err := tx.Exec("INSERT INTO entries (description, amount_cents) VALUES (?, ?)", desc, i*100); err != nil {
			tx.Rollback()
			t.Fatalf("insert: %v", err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

// CountEntries opens the database at path read-only and counts its rows.
func CountEntries(t *testing.T, path string) int {
	t.Helper()

	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		t.Fatalf("opening %s: %v", path, err)
	}
	defer db.Close()

	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM entries").Scan(&n); err != nil {
		t.Fatalf("counting entries in %s: %v", path, err)
	}
	return n
}

// IntegrityCheck runs PRAGMA integrity_check on the database at path.
func IntegrityCheck(t *testing.T, path string) {
	t.Helper()

	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		t.Fatalf("opening %s: %v", path, err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		t.Fatalf("integrity_check on %s: %v", path, err)
	}
	if result != "ok" {
		t.Errorf("integrity_check on %s = %q", path, result)
	}
}

// EntriesDigest hashes every row of the entries table in id order. Unlike a
// file hash it is stable across WAL checkpoints.
func EntriesDigest(t *testing.T, path string) string {
	t.Helper()

	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		t.Fatalf("opening %s: %v", path, err)
	}
	defer db.Close()

	rows, err := db.Query("SELECT id, description, amount_cents FROM entries ORDER BY id")
	if err != nil {
		t.Fatalf("reading entries in %s: %v", path, err)
	}
	defer rows.Close()

	h := sha256.New()
	for rows.Next() {
		var (
			id, cents int64
			desc      string
		)
		if err := rows.Scan(&id, &desc, &cents); err != nil {
			t.Fatalf("scanning entry in %s: %v", path, err)
		}
		fmt.Fprintf(h, "%d\t%s\t%d\n", id, desc, cents)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("reading entries in %s: %v", path, err)
	}
	return hex.EncodeToString(h.Sum(nil))
}
