package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/FocuswithJustin/vdbecore/core/vdbe"
	"github.com/FocuswithJustin/vdbecore/internal/logging"
	"github.com/FocuswithJustin/vdbecore/internal/tracehub"
)

// TraceCmd runs a listing with an instruction tracer. Without --addr the
// trace is printed as JSON lines; with it the trace is served to
// WebSocket clients on /trace.
type TraceCmd struct {
	Listing string        `arg:"" help:"Listing file, or bundle.tar.gz:entry"`
	Bind    []string      `name:"bind" short:"b" help:"Parameter values in order"`
	Addr    string        `name:"addr" help:"Serve the trace over WebSocket on this address, e.g. :8090"`
	Origins []string      `name:"origin" help:"Allowed WebSocket origins; same-origin only when empty"`
	Clients int           `name:"clients" default:"1" help:"Wait for this many clients before running"`
	Wait    time.Duration `name:"wait" default:"30s" help:"How long to wait for clients"`
	Linger  time.Duration `name:"linger" default:"1s" help:"How long to keep serving after the statement ends"`
}

// jsonTracer writes each event as one JSON line.
type jsonTracer struct {
	enc *json.Encoder
}

func (t *jsonTracer) Trace(ev vdbe.TraceEvent) {
	if err := t.enc.Encode(ev); err != nil {
		logging.Error("failed to write trace event", "error", err)
	}
}

func newJSONTracer(w io.Writer) *jsonTracer {
	return &jsonTracer{enc: json.NewEncoder(w)}
}

// Run executes the trace command.
func (c *TraceCmd) Run(g *Globals, ctx context.Context) error {
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

	if c.Addr == "" {
		v.Tracer = newJSONTracer(stdout)
		_, err := runRows(ctx, v)
		return err
	}

	ln, err := net.Listen("tcp", c.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", c.Addr, err)
	}
	hubCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	hub := tracehub.NewHub(c.Origins...)
	go hub.Run(hubCtx)

	mux := http.NewServeMux()
	mux.Handle("/trace", logging.CombinedMiddleware(hub))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go srv.Serve(ln)
	defer srv.Close()

	logging.ServerStartup("trace", "ws", ln.Addr().(*net.TCPAddr).Port, "statement_id", v.StatementID)
	fmt.Fprintf(stdout, "serving trace on ws://%s/trace\n", ln.Addr())

	if err := waitForClients(ctx, hub, c.Clients, c.Wait); err != nil {
		return err
	}
	v.Tracer = hub
	rows, err := runRows(ctx, v)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%d rows, %d events dropped\n", len(rows), hub.Dropped())

	select {
	case <-time.After(c.Linger):
	case <-ctx.Done():
	}
	return nil
}

func waitForClients(ctx context.Context, hub *tracehub.Hub, n int, wait time.Duration) error {
	deadline := time.NewTimer(wait)
	defer deadline.Stop()
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for hub.Clients() < n {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("no trace client connected within %s", wait)
		case <-tick.C:
		}
	}
	return nil
}
