package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/osintkit/deepscan/pkg/bus"
	"github.com/osintkit/deepscan/pkg/profile"
)

func newTestBridge(t *testing.T, opts ...Option) (*Server, *bus.Hub, string) {
	t.Helper()
	d := bus.NewDispatcher(nil)
	d.Handle(bus.ActionGetScanStatus, func(context.Context, json.RawMessage) bus.Response {
		resp := bus.OK()
		resp.Status = profile.StatusIdle
		return resp
	})

	hub := bus.NewHub(nil)
	s := New(d, hub, opts...)
	t.Cleanup(s.Close)

	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return s, hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string, header http.Header) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatal(err)
	}
	var f frame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("reading frame: %v", err)
	}
	return f
}

func TestConnectedFrame(t *testing.T) {
	s, _, url := newTestBridge(t)
	conn := dial(t, url, nil)

	f := readFrame(t, conn)
	if f.Source != SourceTag {
		t.Errorf("source = %q", f.Source)
	}
	if f.Event != "connected" {
		t.Errorf("event = %q", f.Event)
	}
	if s.ClientCount() != 1 {
		t.Errorf("ClientCount = %d", s.ClientCount())
	}
}

func TestRequestReply(t *testing.T) {
	_, _, url := newTestBridge(t)
	conn := dial(t, url, nil)
	readFrame(t, conn) // connected

	err := conn.WriteJSON(frame{
		Source:    SourceTag,
		RequestID: "req-1",
		Action:    bus.ActionGetScanStatus,
	})
	if err != nil {
		t.Fatal(err)
	}

	f := readFrame(t, conn)
	if f.RequestID != "req-1" {
		t.Errorf("requestId = %q", f.RequestID)
	}
	if f.Response == nil || !f.Response.Success {
		t.Fatalf("response = %+v", f.Response)
	}
	if f.Response.Status != profile.StatusIdle {
		t.Errorf("status = %q", f.Response.Status)
	}
}

func TestUnknownActionReply(t *testing.T) {
	_, _, url := newTestBridge(t)
	conn := dial(t, url, nil)
	readFrame(t, conn)

	if err := conn.WriteJSON(frame{Source: SourceTag, RequestID: "req-2", Action: "selfDestruct"}); err != nil {
		t.Fatal(err)
	}
	f := readFrame(t, conn)
	if f.Response == nil || f.Response.Success || f.Response.Error != "Unknown action" {
		t.Errorf("response = %+v", f.Response)
	}
}

func TestIgnoresUntaggedFrames(t *testing.T) {
	_, _, url := newTestBridge(t)
	conn := dial(t, url, nil)
	readFrame(t, conn)

	// No source tag: dropped without a reply.
	if err := conn.WriteJSON(frame{RequestID: "evil", Action: bus.ActionGetScanStatus}); err != nil {
		t.Fatal(err)
	}
	// Tagged frame following it gets the only reply.
	if err := conn.WriteJSON(frame{Source: SourceTag, RequestID: "good", Action: bus.ActionGetScanStatus}); err != nil {
		t.Fatal(err)
	}

	f := readFrame(t, conn)
	if f.RequestID != "good" {
		t.Errorf("requestId = %q, untagged frame must not be dispatched", f.RequestID)
	}
}

func TestEventBroadcast(t *testing.T) {
	_, hub, url := newTestBridge(t)
	first := dial(t, url, nil)
	second := dial(t, url, nil)
	readFrame(t, first)
	readFrame(t, second)

	hub.Publish(bus.Event{Kind: bus.EventScanProgress, Data: map[string]any{"progress": 50}})

	for _, conn := range []*websocket.Conn{first, second} {
		f := readFrame(t, conn)
		if f.Event != bus.EventScanProgress {
			t.Errorf("event = %q", f.Event)
		}
		data, ok := f.Data.(map[string]any)
		if !ok || data["progress"] != float64(50) {
			t.Errorf("data = %v", f.Data)
		}
	}
}

func TestOriginAllowList(t *testing.T) {
	_, _, url := newTestBridge(t, WithAllowedOrigins("https://app.example.com", "https://*.trusted.example"))

	if _, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example"}}); err == nil {
		t.Error("dial succeeded from a disallowed origin")
	}

	conn := dial(t, url, http.Header{"Origin": {"https://app.example.com"}})
	readFrame(t, conn)
}

func TestOriginDefaultLocalhostOnly(t *testing.T) {
	_, _, url := newTestBridge(t)

	if _, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example"}}); err == nil {
		t.Error("dial succeeded from a non-localhost origin")
	}

	conn := dial(t, url, http.Header{"Origin": {"http://localhost:3000"}})
	readFrame(t, conn)
}

func TestHandlerContextOutlivesUpgrade(t *testing.T) {
	d := bus.NewDispatcher(nil)
	d.Handle(bus.ActionGetScanStatus, func(ctx context.Context, _ json.RawMessage) bus.Response {
		// Handlers run long after ServeHTTP has returned; the dispatched
		// context must still be live then.
		time.Sleep(50 * time.Millisecond)
		if err := ctx.Err(); err != nil {
			return bus.Fail("context dead: " + err.Error())
		}
		select {
		case <-ctx.Done():
			return bus.Fail("context dead: " + ctx.Err().Error())
		default:
		}
		return bus.OK()
	})

	hub := bus.NewHub(nil)
	s := New(d, hub)
	t.Cleanup(s.Close)
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)

	conn := dial(t, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	readFrame(t, conn) // connected

	if err := conn.WriteJSON(frame{Source: SourceTag, RequestID: "req-ctx", Action: bus.ActionGetScanStatus}); err != nil {
		t.Fatal(err)
	}
	f := readFrame(t, conn)
	if f.Response == nil || !f.Response.Success {
		t.Fatalf("response = %+v", f.Response)
	}
}
