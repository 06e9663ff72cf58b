package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/FocuswithJustin/vdbecore/core/vdbe"
)

// RecordCmd encodes values into a record, or decodes one.
type RecordCmd struct {
	Values   []string `arg:"" optional:"" help:"Field values: NULL, 42, 1.5, 'text' or x'ab'; the hex record with --decode"`
	Affinity string   `name:"affinity" help:"Affinity string applied to the fields, one letter A-E per field"`
	Decode   bool     `name:"decode" short:"d" help:"Decode the hex record given as the only argument"`
}

// Run executes the record command.
func (c *RecordCmd) Run(g *Globals) error {
	if c.Decode {
		return c.decode()
	}

	fields := make([]*vdbe.Mem, len(c.Values))
	for i, s := range c.Values {
		val, err := parseValue(s)
		if err != nil {
			return err
		}
		fields[i] = toMem(val)
	}
	cfg := g.config()
	out := vdbe.NewMem()
	if err := vdbe.MakeRecord(out, fields, c.Affinity, cfg.FileFormat, cfg.MaxRecordSize); err != nil {
		return err
	}
	rec := out.BlobValue()
	sum := blake3.Sum256(rec)
	fmt.Fprintf(stdout, "record: %s\n", hex.EncodeToString(rec))
	fmt.Fprintf(stdout, "bytes:  %d\n", len(rec))
	fmt.Fprintf(stdout, "blake3: %s\n", hex.EncodeToString(sum[:]))
	return nil
}

func (c *RecordCmd) decode() error {
	if len(c.Values) != 1 {
		return fmt.Errorf("--decode takes one hex record")
	}
	buf, err := hex.DecodeString(strings.TrimSpace(c.Values[0]))
	if err != nil {
		return fmt.Errorf("invalid hex record: %w", err)
	}
	mems, err := vdbe.DecodeRecord(buf)
	if err != nil {
		return err
	}
	for i, m := range mems {
		fmt.Fprintf(stdout, "%d: %s\n", i, formatValue(m.Value()))
	}
	return nil
}
