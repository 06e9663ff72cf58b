package tracehub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/FocuswithJustin/vdbecore/core/vdbe"
	"github.com/FocuswithJustin/vdbecore/internal/logging"
)

// startHub runs a hub behind a test server and connects one client.
func startHub(t *testing.T, h *Hub) *websocket.Conn {
	t.Helper()
	return startHandler(t, h, h)
}

func startHandler(t *testing.T, h *Hub, handler http.Handler) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for h.Clients() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("bad message %s: %v", data, err)
	}
	return msg
}

func TestHubBroadcast(t *testing.T) {
	h := NewHub()
	conn := startHub(t, h)

	h.Trace(vdbe.TraceEvent{StatementID: "s1", PC: 3, Opcode: "Add", P1: 1, P2: 2, P3: 3})
	msg := readMessage(t, conn)
	if msg.Type != TypeInstruction || msg.Event.PC != 3 || msg.Event.Opcode != "Add" {
		t.Errorf("message = %+v", msg)
	}
	if msg.Timestamp == "" {
		t.Error("message has no timestamp")
	}
}

func TestHubBehindMiddleware(t *testing.T) {
	h := NewHub()
	conn := startHandler(t, h, logging.CombinedMiddleware(h))

	h.Trace(vdbe.TraceEvent{PC: 0, Opcode: "Halt"})
	if msg := readMessage(t, conn); msg.Type != TypeHalt {
		t.Errorf("message type = %q, want %q", msg.Type, TypeHalt)
	}
}

func TestHubTracesStatement(t *testing.T) {
	h := NewHub()
	conn := startHub(t, h)

	v := vdbe.New()
	v.Tracer = h
	v.AllocMemory(2)
	v.AddOp(vdbe.OpInteger, 7, 0, 0)
	v.AddOp(vdbe.OpResultRow, 0, 1, 0)
	v.AddOp(vdbe.OpHalt, 0, 0, 0)
	for {
		st, err := v.Step(context.Background())
		if err != nil {
			t.Fatalf("Step() error = %v", err)
		}
		if st == vdbe.StatusDone {
			break
		}
	}

	var types []string
	for i := 0; i < 3; i++ {
		msg := readMessage(t, conn)
		if msg.Event.StatementID != v.StatementID {
			t.Errorf("statement id = %s, want %s", msg.Event.StatementID, v.StatementID)
		}
		types = append(types, msg.Type)
	}
	want := []string{TypeInstruction, TypeInstruction, TypeHalt}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("message types = %v, want %v", types, want)
			break
		}
	}
}

func TestHubErrorEvent(t *testing.T) {
	h := NewHub()
	conn := startHub(t, h)

	h.Trace(vdbe.TraceEvent{Opcode: "Halt", Status: vdbe.StatusError.String(), Error: "boom"})
	msg := readMessage(t, conn)
	if msg.Type != TypeError || msg.Event.Error != "boom" {
		t.Errorf("message = %+v, want an error event", msg)
	}
}

func TestHubDropsWithoutRunning(t *testing.T) {
	h := NewHub()
	for i := 0; i < sendBuffer+10; i++ {
		h.Trace(vdbe.TraceEvent{PC: i})
	}
	if got := h.Dropped(); got != 10 {
		t.Errorf("Dropped() = %d, want 10", got)
	}
}

func TestHubOrigins(t *testing.T) {
	h := NewHub("http://allowed.example")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	srv := httptest.NewServer(h)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	header := http.Header{"Origin": []string{"http://evil.example"}}
	if _, _, err := websocket.DefaultDialer.Dial(url, header); err == nil {
		t.Error("Dial() from a foreign origin succeeded")
	}

	header = http.Header{"Origin": []string{"http://allowed.example"}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("Dial() from an allowed origin error = %v", err)
	}
	conn.Close()
}
