// Package sqliteexternal provides optional external SQLite drivers.
//
// The reference engine behind core/sqlite is normally the pure Go
// modernc.org/sqlite. This package swaps in github.com/mattn/go-sqlite3:
//
//	import _ "github.com/FocuswithJustin/vdbecore/contrib/sqlite-external"
//
// Build with:
//
//	CGO_ENABLED=1 go build -tags cgo_sqlite
//
// Checking register machine results against the C library directly rules
// out translation differences in the pure Go build.
package sqliteexternal
