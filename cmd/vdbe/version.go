package main

import (
	"context"
	"fmt"

	"github.com/FocuswithJustin/vdbecore/core/sqlite"
)

// VersionCmd prints version information.
type VersionCmd struct{}

// Run executes the version command.
func (c *VersionCmd) Run(ctx context.Context) error {
	fmt.Fprintf(stdout, "vdbe version %s\n", version)

	info := sqlite.GetInfo()
	o, err := sqlite.NewOracle()
	if err != nil {
		return err
	}
	defer o.Close()
	v, err := o.Version(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "reference SQLite %s (%s, %s)\n", v, info.DriverType, info.Package)
	return nil
}
