package statusd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/chatmover/internal/progress"
	"github.com/nextlevelbuilder/chatmover/internal/ratelimit"
	"github.com/nextlevelbuilder/chatmover/pkg/events"
)

func startServer(t *testing.T) (*Server, string) {
	t.Helper()
	store := progress.NewStore(filepath.Join(t.TempDir(), "progress.json"))
	if err := store.InitConversation("42", "Alice", "private", 10); err != nil {
		t.Fatal(err)
	}
	s := New("127.0.0.1:0", store, ratelimit.New(time.Second, time.Second, time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	addr, start := StartTestServer(s, ctx)
	go start()
	return s, addr
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestEventStream(t *testing.T) {
	s, addr := startServer(t)

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	waitFor(t, "client registration", func() bool { return s.ClientCount() == 1 })

	events.Emit(s.Sink(), events.EventDialogStarted, 42, map[string]any{"name": "Alice"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var e events.Event
	if err := json.Unmarshal(data, &e); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if e.Type != events.EventDialogStarted {
		t.Errorf("type = %q, want %q", e.Type, events.EventDialogStarted)
	}
	if e.ConvID != 42 {
		t.Errorf("convId = %d, want 42", e.ConvID)
	}
	if e.Data["name"] != "Alice" {
		t.Errorf("data = %v, want name Alice", e.Data)
	}
}

func TestProgressEndpoint(t *testing.T) {
	_, addr := startServer(t)

	resp, err := http.Get(fmt.Sprintf("http://%s/progress", addr))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var got struct {
		Progress *progress.Global   `json:"progress"`
		Rate     ratelimit.Snapshot `json:"rate"`
		Clients  int                `json:"clients"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Progress.Dialogs) != 1 {
		t.Errorf("dialogs = %d, want 1", len(got.Progress.Dialogs))
	}
	if got.Rate.DelayMs != 1000 {
		t.Errorf("rate delay = %dms, want 1000", got.Rate.DelayMs)
	}
	if got.Clients != 0 {
		t.Errorf("clients = %d, want 0", got.Clients)
	}
}

func TestHealthz(t *testing.T) {
	_, addr := startServer(t)

	resp, err := http.Get(fmt.Sprintf("http://%s/healthz", addr))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `"status":"ok"`) {
		t.Errorf("body = %s, want ok status", body)
	}
}

func TestRejectsForeignOrigin(t *testing.T) {
	_, addr := startServer(t)

	header := http.Header{"Origin": []string{"http://evil.example"}}
	conn, resp, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws", header)
	if err == nil {
		conn.Close()
		t.Fatal("handshake succeeded for a foreign origin")
	}
	if resp != nil && resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
}

func TestLocalOriginAccepted(t *testing.T) {
	s, addr := startServer(t)

	header := http.Header{"Origin": []string{"http://localhost:3000"}}
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws", header)
	if err != nil {
		t.Fatalf("dial with local origin: %v", err)
	}
	defer conn.Close()
	waitFor(t, "client registration", func() bool { return s.ClientCount() == 1 })
}
