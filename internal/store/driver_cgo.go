//go:build !purego_sqlite

// CGO SQLite driver using mattn/go-sqlite3. This is the default; build with
// -tags purego_sqlite to use the pure Go driver instead.
package store

import (
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const driverName = "sqlite3"

func buildDSN(path string, o options) string {
	return fmt.Sprintf("%s?_journal_mode=%s&_busy_timeout=%d",
		path, o.journalMode, o.busyTimeout.Milliseconds())
}
