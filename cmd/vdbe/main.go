// Command vdbe assembles, runs, traces and checks register machine
// programs.
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/FocuswithJustin/vdbecore/core/asm"
	"github.com/FocuswithJustin/vdbecore/core/vdbe"
	"github.com/FocuswithJustin/vdbecore/internal/archive"
	"github.com/FocuswithJustin/vdbecore/internal/logging"
)

const version = "0.1.0"

// stdout receives command output. Tests replace it.
var stdout io.Writer = os.Stdout

// Globals are the flags shared by every command.
type Globals struct {
	LogLevel   string `name:"log-level" default:"warn" enum:"debug,info,warn,error" help:"Log level (${enum})"`
	LogFormat  string `name:"log-format" default:"text" enum:"text,json" help:"Log format (${enum})"`
	NoCache    bool   `name:"no-cache" help:"Disable the register snapshot cache"`
	DebugCache bool   `name:"debug-cache" help:"Cross-check every cached register read"`
	Registry   bool   `name:"registry" help:"Call built-in functions through the function registry"`
	FileFormat int    `name:"file-format" default:"4" help:"Record format version"`
	TraceLog   bool   `name:"trace-log" help:"Log every executed instruction at debug level"`
}

// CLI defines the command-line interface for vdbe.
var CLI struct {
	Globals

	Run     RunCmd     `cmd:"" help:"Run a listing and print its rows"`
	Explain ExplainCmd `cmd:"" help:"Print the assembled program"`
	Record  RecordCmd  `cmd:"" help:"Encode or decode a record"`
	Verify  VerifyCmd  `cmd:"" help:"Check a listing's rows against SQLite"`
	Batch   BatchCmd   `cmd:"" help:"Run every listing in a bundle or directory"`
	Pack    PackCmd    `cmd:"" help:"Pack a directory of listings into a bundle"`
	Trace   TraceCmd   `cmd:"" help:"Run a listing and stream its instruction trace"`
	Version VersionCmd `cmd:"" help:"Print version information"`
}

// config builds the machine configuration from the global flags.
func (g *Globals) config() vdbe.Config {
	cfg := vdbe.DefaultConfig()
	cfg.UseCache = !g.NoCache
	cfg.DebugCache = g.DebugCache
	cfg.NativeFunctions = !g.Registry
	cfg.TraceLogging = g.TraceLog
	if g.FileFormat > 0 {
		cfg.FileFormat = g.FileFormat
	}
	return cfg
}

func (g *Globals) initLogging() {
	format := logging.FormatText
	if g.LogFormat == "json" {
		format = logging.FormatJSON
	}
	logging.InitLogger(logging.ParseLevel(g.LogLevel), format)
}

// listingSource reads a listing file, or one entry of a bundle when spec
// has the form bundle.tar.gz:entry. It returns the name that selects the
// listing form along with the data.
func listingSource(spec string) (string, []byte, error) {
	for _, ext := range []string{".tar.gz:", ".tar.xz:"} {
		if i := strings.Index(spec, ext); i >= 0 {
			bundle, entry := spec[:i+len(ext)-1], spec[i+len(ext):]
			data, err := archive.ReadFile(bundle, entry)
			return entry, data, err
		}
	}
	data, err := archive.ReadListing(spec)
	return spec, data, err
}

// loadListing assembles the listing named by spec.
func loadListing(spec string) (*asm.Listing, error) {
	name, data, err := listingSource(spec)
	if err != nil {
		return nil, err
	}
	return asm.Assemble(name, data)
}

// runRows steps v to completion and returns its rows.
func runRows(ctx context.Context, v *vdbe.VDBE) ([][]interface{}, error) {
	var rows [][]interface{}
	for {
		st, err := v.Step(ctx)
		if err != nil {
			return rows, err
		}
		if st == vdbe.StatusDone {
			return rows, nil
		}
		rows = append(rows, v.Row())
	}
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("vdbe"),
		kong.Description("Register machine for compiled SQL programs"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Bind(&CLI.Globals),
	)
	CLI.Globals.initLogging()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx.BindTo(sigCtx, (*context.Context)(nil))

	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
