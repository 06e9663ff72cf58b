package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/FocuswithJustin/vdbecore/internal/archive"
	"github.com/FocuswithJustin/vdbecore/internal/logging"
)

// RunCmd runs a listing and prints its rows.
type RunCmd struct {
	Listing string   `arg:"" help:"Listing file, or bundle.tar.gz:entry"`
	Bind    []string `name:"bind" short:"b" help:"Parameter values in order: NULL, 42, 1.5, 'text' or x'ab'"`
	Header  bool     `name:"header" help:"Print column names first"`
	Stats   bool     `name:"stats" help:"Print statement counters after the rows"`
}

// Run executes the run command.
func (c *RunCmd) Run(g *Globals, ctx context.Context) error {
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
	ctx = logging.WithStatementID(ctx, v.StatementID)

	if c.Header && v.ColumnCount() > 0 {
		names := make([]string, v.ColumnCount())
		for i := range names {
			names[i] = v.ColumnName(i)
		}
		fmt.Fprintln(stdout, strings.Join(names, "|"))
	}
	rows, err := runRows(ctx, v)
	for _, row := range rows {
		fmt.Fprintln(stdout, formatRow(row))
	}
	if err != nil {
		return err
	}
	if c.Stats {
		n := v.Counters()
		fmt.Fprintf(stdout, "steps: %d, fullscan: %d, sort: %d, autoindex: %d, changes: %d\n",
			n.VMStep, n.FullscanStep, n.Sort, n.AutoIndex, v.NumChanges)
	}
	return nil
}

// ExplainCmd prints an assembled program.
type ExplainCmd struct {
	Listing string `arg:"" help:"Listing file, or bundle.tar.gz:entry"`
}

// Run executes the explain command.
func (c *ExplainCmd) Run(g *Globals) error {
	l, err := loadListing(c.Listing)
	if err != nil {
		return err
	}
	v, err := l.NewVDBE(g.config())
	if err != nil {
		return err
	}
	fmt.Fprint(stdout, v.ExplainProgram())
	return nil
}

// BatchCmd runs every listing in a bundle or directory. Listings with a
// "# sql:" line are checked against SQLite as well.
type BatchCmd struct {
	Source   string `arg:"" help:"Bundle (.tar.gz, .tar.xz) or directory of listings"`
	FailFast bool   `name:"fail-fast" help:"Stop at the first failure"`
}

// Run executes the batch command.
func (c *BatchCmd) Run(g *Globals, ctx context.Context) error {
	entries, err := batchEntries(c.Source)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return fmt.Errorf("no listings found in %s", c.Source)
	}

	checker := newChecker()
	defer checker.Close()

	failed := 0
	for _, e := range entries {
		msg, err := checker.check(ctx, g, e.Name, e.Content)
		if err != nil {
			failed++
			fmt.Fprintf(stdout, "FAIL %s: %v\n", e.Name, err)
			if c.FailFast {
				break
			}
			continue
		}
		fmt.Fprintf(stdout, "ok   %s%s\n", e.Name, msg)
	}
	fmt.Fprintf(stdout, "%d listings, %d failed\n", len(entries), failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d listings failed", failed, len(entries))
	}
	return nil
}

func batchEntries(source string) ([]archive.Entry, error) {
	if archive.IsBundle(source) {
		return archive.Listings(source)
	}
	var entries []archive.Entry
	err := filepath.WalkDir(source, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !archive.IsListing(p) {
			return nil
		}
		data, err := archive.ReadListing(p)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(source, p)
		if err != nil {
			return err
		}
		entries = append(entries, archive.Entry{Name: filepath.ToSlash(rel), Content: data})
		return nil
	})
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, err
}

// PackCmd packs a directory into a bundle.
type PackCmd struct {
	Dir    string `arg:"" help:"Directory of listings" type:"existingdir"`
	Bundle string `arg:"" help:"Output bundle (.tar.gz or .tar.xz)"`
}

// Run executes the pack command.
func (c *PackCmd) Run() error {
	if err := archive.CreateBundleFromPath(c.Dir, c.Bundle); err != nil {
		return err
	}
	entries, err := archive.Listings(c.Bundle)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "packed %d listings into %s\n", len(entries), c.Bundle)
	return nil
}
