//go:build sqlite_cgo

package executor

import (
	_ "github.com/mattn/go-sqlite3"
)

const sqliteDriver = "sqlite3"
