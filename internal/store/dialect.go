package store

import (
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Dialect captures the few places where Postgres and SQLite disagree.
type Dialect struct {
	Name string
	// IDColumn is the column definition of a surrogate integer key.
	IDColumn string
	// IntRef is the column type that references an IDColumn.
	IntRef string
	// LockSuffix is appended to a SELECT to lock the selected rows for the
	// rest of the transaction. SQLite serialises writers and has none.
	LockSuffix string
	numbered   bool
}

var (
	Postgres = Dialect{
		Name:       "postgres",
		IDColumn:   "BIGSERIAL PRIMARY KEY",
		IntRef:     "BIGINT",
		LockSuffix: " FOR UPDATE",
		numbered:   true,
	}
	SQLite = Dialect{
		Name:     "sqlite",
		IDColumn: "INTEGER PRIMARY KEY AUTOINCREMENT",
		IntRef:   "INTEGER",
	}
)

// Rebind rewrites ? placeholders into the dialect's bind syntax.
// Queries must not contain literal question marks.
func (d Dialect) Rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// IsUniqueViolation reports whether err came from a unique or primary key
// constraint in either engine.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return false
}
