//go:build !sqlite_cgo

package executor

import (
	// Pure-Go SQLite driver, the default so the module builds without
	// CGo. Build with -tags sqlite_cgo for the CGo driver.
	_ "modernc.org/sqlite"
)

const sqliteDriver = "sqlite"
