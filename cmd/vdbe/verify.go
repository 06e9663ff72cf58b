package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/FocuswithJustin/vdbecore/core/asm"
	"github.com/FocuswithJustin/vdbecore/core/sqlite"
)

// Listings name the reference query in comment lines:
//
//	# setup: CREATE TABLE t(a)
//	# sql: SELECT 2.3 + 4.5
//
// XML listings use <!-- sql: ... --> and <!-- setup: ... --> comments.
// Setup statements run on the reference database before the query.

// expectations extracts the setup statements and reference query.
func expectations(data []byte) (setup []string, query string) {
	var queryParts []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "#"):
			line = strings.TrimSpace(line[1:])
		case strings.HasPrefix(line, "<!--") && strings.HasSuffix(line, "-->"):
			line = strings.TrimSpace(line[4 : len(line)-3])
		default:
			continue
		}
		if rest, ok := strings.CutPrefix(line, "sql:"); ok {
			queryParts = append(queryParts, strings.TrimSpace(rest))
		} else if rest, ok := strings.CutPrefix(line, "setup:"); ok {
			setup = append(setup, strings.TrimSpace(rest))
		}
	}
	return setup, strings.Join(queryParts, " ")
}

// checker runs listings and compares them with the reference engine. The
// reference database is opened on first use.
type checker struct {
	oracle *sqlite.Oracle
}

func newChecker() *checker {
	return &checker{}
}

func (c *checker) Close() error {
	if c.oracle == nil {
		return nil
	}
	return c.oracle.Close()
}

// compare checks rows against the reference query. Every comparison gets
// a fresh reference database so setup statements do not leak.
func (c *checker) compare(ctx context.Context, rows [][]interface{}, setup []string, query string) error {
	if c.oracle != nil {
		c.oracle.Close()
	}
	o, err := sqlite.NewOracle()
	if err != nil {
		return err
	}
	c.oracle = o

	for _, stmt := range setup {
		if err := o.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("reference setup %q: %w", stmt, err)
		}
	}
	res, err := o.Query(ctx, query)
	if err != nil {
		return err
	}
	if d := sqlite.Diff(rows, res.Rows); d != "" {
		return fmt.Errorf("differs from SQLite for %q: %s", query, d)
	}
	return nil
}

// check runs one listing. It returns a short note for the report.
func (c *checker) check(ctx context.Context, g *Globals, name string, data []byte) (string, error) {
	l, err := asm.Assemble(name, data)
	if err != nil {
		return "", err
	}
	v, err := l.NewVDBE(g.config())
	if err != nil {
		return "", err
	}
	defer v.Finalize()
	rows, err := runRows(ctx, v)
	if err != nil {
		return "", err
	}

	setup, query := expectations(data)
	if query == "" {
		return fmt.Sprintf(" (%d rows)", len(rows)), nil
	}
	if err := c.compare(ctx, rows, setup, query); err != nil {
		return "", err
	}
	return fmt.Sprintf(" (%d rows match SQLite)", len(rows)), nil
}

// VerifyCmd checks a listing's rows against SQLite.
type VerifyCmd struct {
	Listing string   `arg:"" help:"Listing file, or bundle.tar.gz:entry"`
	SQL     string   `name:"sql" help:"Reference query; defaults to the listing's # sql: lines"`
	Setup   []string `name:"setup" help:"Statements to run on the reference database first"`
	Bind    []string `name:"bind" short:"b" help:"Parameter values, also passed to the reference query"`
}

// Run executes the verify command.
func (c *VerifyCmd) Run(g *Globals, ctx context.Context) error {
	l, err := loadListing(c.Listing)
	if err != nil {
		return err
	}
	v, err := l.NewVDBE(g.config())
	if err != nil {
		return err
	}
	defer v.Finalize()
	if err := bind(v, c.Bind); err != nil {
		return err
	}
	rows, err := runRows(ctx, v)
	if err != nil {
		return err
	}

	setup, query := c.Setup, c.SQL
	if query == "" {
		_, data, err := listingSource(c.Listing)
		if err != nil {
			return err
		}
		var embedded []string
		embedded, query = expectations(data)
		setup = append(embedded, setup...)
	}
	if query == "" {
		return fmt.Errorf("no reference query: pass --sql or add a # sql: line")
	}

	o, err := sqlite.NewOracle()
	if err != nil {
		return err
	}
	defer o.Close()
	for _, stmt := range setup {
		if err := o.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("reference setup %q: %w", stmt, err)
		}
	}
	args := make([]interface{}, len(c.Bind))
	for i, s := range c.Bind {
		if args[i], err = parseValue(s); err != nil {
			return err
		}
	}
	res, err := o.Query(ctx, query, args...)
	if err != nil {
		return err
	}
	if d := sqlite.Diff(rows, res.Rows); d != "" {
		return fmt.Errorf("differs from SQLite: %s", d)
	}
	fmt.Fprintf(stdout, "ok: %d rows match SQLite\n", len(rows))
	return nil
}
