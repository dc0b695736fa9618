//go:build sqlite

package database

import (
	_ "github.com/mattn/go-sqlite3"
)
