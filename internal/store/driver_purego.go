//go:build purego_sqlite

// Pure Go SQLite driver (modernc.org/sqlite), for builds without CGO.
package store

import (
	"fmt"

	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

func buildDSN(path string, o options) string {
	return fmt.Sprintf("%s?_pragma=journal_mode(%s)&_pragma=busy_timeout(%d)",
		path, o.journalMode, o.busyTimeout.Milliseconds())
}
