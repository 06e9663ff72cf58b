//go:build cgo_sqlite

package sqlite_test

// These tests compare CGO (mattn/go-sqlite3) and pure Go (modernc.org/sqlite)
// reference engines on the expressions the register machine is checked against.
// Run with: CGO_ENABLED=1 go test -tags cgo_sqlite -v -run Comparison

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite" // Pure Go driver

	"github.com/FocuswithJustin/vdbecore/core/sqlite"
)

func TestComparisonEngines(t *testing.T) {
	cgoDB, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open CGO database: %v", err)
	}
	defer cgoDB.Close()

	pureDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open pure Go database: %v", err)
	}
	defer pureDB.Close()

	for _, tc := range agreementCases {
		t.Run(tc.expr, func(t *testing.T) {
			var cgoVal, pureVal interface{}
			if err := cgoDB.QueryRow("SELECT " + tc.expr).Scan(&cgoVal); err != nil {
				t.Fatalf("CGO query failed: %v", err)
			}
			if err := pureDB.QueryRow("SELECT " + tc.expr).Scan(&pureVal); err != nil {
				t.Fatalf("pure Go query failed: %v", err)
			}
			if b, ok := cgoVal.([]byte); ok {
				cgoVal = string(b)
			}
			if b, ok := pureVal.([]byte); ok {
				pureVal = string(b)
			}
			if cgoVal != pureVal {
				t.Errorf("%s: CGO = %#v, pure Go = %#v", tc.expr, cgoVal, pureVal)
			}
		})
	}
}
