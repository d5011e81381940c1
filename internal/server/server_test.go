package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/nyxikitty/mpp-server/internal/audit"
	"github.com/nyxikitty/mpp-server/internal/conn"
	"github.com/nyxikitty/mpp-server/internal/events"
	"github.com/nyxikitty/mpp-server/internal/hub"
	"github.com/nyxikitty/mpp-server/internal/metrics"
	"github.com/nyxikitty/mpp-server/internal/store"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	l := zerolog.Nop()
	var a *audit.Log
	var e *events.Publisher
	h := hub.New(store.New(), metrics.New(), a, e, &l)
	s := NewServer(h, NewGate(100, 100), conn.Options{Production: false}, &l)
	ts := httptest.NewServer(s.echo)
	t.Cleanup(ts.Close)
	return ts
}

func TestHealthzReportsCounters(t *testing.T) {
	ts := newTestServer(t)

	resp, err := ts.Client().Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("get /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	var summary map[string]any
	if err := json.Unmarshal(body, &summary); err != nil {
		t.Fatalf("decode healthz body: %v", err)
	}
	if _, ok := summary["active_clients"]; !ok {
		t.Fatalf("expected active_clients in summary, got %v", summary)
	}
}

func TestWebSocketUpgradeAndDispatch(t *testing.T) {
	ts := newTestServer(t)
	wsURL := strings.Replace(ts.URL, "http", "ws", 1) + "/ws"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close(websocket.StatusNormalClosure, "done")

	if err := c.Write(ctx, websocket.MessageText, []byte(`[{"m":"hi"}]`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, data, err := c.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), `"m":"hi"`) {
		t.Fatalf("expected a hi reply, got %s", data)
	}
}

func TestGateRejectsBurstOfConnections(t *testing.T) {
	l := zerolog.Nop()
	var a *audit.Log
	var e *events.Publisher
	h := hub.New(store.New(), metrics.New(), a, e, &l)
	s := NewServer(h, NewGate(1, 1), conn.Options{Production: false}, &l)
	ts := httptest.NewServer(s.echo)
	t.Cleanup(ts.Close)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/ws", nil)
	req.Header.Set("Connection", "close")

	resp1, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("first request: %v", err)
	}
	resp1.Body.Close()

	resp2, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("second request: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected second rapid attempt gated, got %d", resp2.StatusCode)
	}
}
