package storage

import (
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// dialect captures what differs between the SQL backends. Queries are
// written with ? placeholders and rebound by sqlx.
type dialect struct {
	name       string
	bindName   string
	lockClause string
	retryable  func(error) bool
	duplicate  func(error) bool
}

var mysqlDialect = dialect{
	name:       "mysql",
	bindName:   "mysql",
	lockClause: " FOR UPDATE",
	retryable: func(err error) bool {
		var myErr *mysql.MySQLError
		if !errors.As(err, &myErr) {
			return false
		}
		// ER_LOCK_DEADLOCK, ER_LOCK_WAIT_TIMEOUT
		return myErr.Number == 1213 || myErr.Number == 1205
	},
	duplicate: func(err error) bool {
		var myErr *mysql.MySQLError
		return errors.As(err, &myErr) && myErr.Number == 1062
	},
}

var postgresDialect = dialect{
	name:       "postgres",
	bindName:   "postgres",
	lockClause: " FOR UPDATE",
	retryable: func(err error) bool {
		var pqErr *pq.Error
		if !errors.As(err, &pqErr) {
			return false
		}
		switch pqErr.Code {
		case "40001", "40P01", "55P03":
			return true
		}
		return false
	},
	duplicate: func(err error) bool {
		var pqErr *pq.Error
		return errors.As(err, &pqErr) && pqErr.Code == "23505"
	},
}

// SQLite has no row locks; transactions start with BEGIN IMMEDIATE instead,
// which takes the database write lock up front.
var sqliteDialect = dialect{
	name:       "sqlite",
	bindName:   "sqlite3",
	lockClause: "",
	retryable: func(err error) bool {
		var sqliteErr *msqlite.Error
		if !errors.As(err, &sqliteErr) {
			return false
		}
		switch sqliteErr.Code() & 0xff {
		case sqlite3lib.SQLITE_BUSY, sqlite3lib.SQLITE_LOCKED:
			return true
		}
		return false
	},
	duplicate: func(err error) bool {
		var sqliteErr *msqlite.Error
		if !errors.As(err, &sqliteErr) {
			return false
		}
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
		return false
	},
}
