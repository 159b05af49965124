package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"foodphotographer/internal/menu"
	"foodphotographer/internal/studio"
)

type wsTestMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	Dish      *struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"dish"`
	State *struct {
		Version   uint64 `json:"version"`
		Phase     string `json:"phase"`
		CanSubmit bool   `json:"can_submit"`
		Dishes    []struct {
			Status string `json:"status"`
		} `json:"dishes"`
	} `json:"state"`
}

func readWS(t *testing.T, conn *websocket.Conn) wsTestMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg wsTestMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return msg
}

func TestSessionWebSocket(t *testing.T) {
	models := &fakeModels{
		entries: []menu.Entry{{Name: "Paella", Description: "Saffron rice with seafood."}},
		release: make(chan struct{}),
	}
	srv, h := newTestServer(t, models)
	ts := httptest.NewServer(h)
	defer ts.Close()
	sess := createSession(t, srv, h)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/sessions/" + sess.ID() + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v (resp %v)", err, resp)
	}
	defer conn.Close()

	hello := readWS(t, conn)
	if hello.Type != "hello" || hello.SessionID != sess.ID() || hello.State == nil || hello.State.Phase != "idle" {
		t.Fatalf("hello = %+v", hello)
	}

	if rec, _ := doJSON(t, h, http.MethodPost, "/api/sessions/"+sess.ID()+"/menu", map[string]string{"menu_text": "Paella"}); rec.Code != http.StatusOK {
		t.Fatalf("submit = %d", rec.Code)
	}

	started := readWS(t, conn)
	if started.Type != "extraction_started" {
		t.Fatalf("first event = %+v", started)
	}
	extracted := readWS(t, conn)
	if extracted.Type != "dishes_extracted" || extracted.State == nil || extracted.State.Phase != "generating" || extracted.State.CanSubmit {
		t.Fatalf("second event = %+v", extracted)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"sync"}`)); err != nil {
		t.Fatalf("write sync: %v", err)
	}
	snap := readWS(t, conn)
	if snap.Type != "snapshot" || snap.State == nil || len(snap.State.Dishes) != 1 || snap.State.Dishes[0].Status != "generating" {
		t.Fatalf("snapshot = %+v", snap)
	}

	close(models.release)
	ready := readWS(t, conn)
	if ready.Type != "dish_ready" || ready.Dish == nil || ready.Dish.Status != "ready" {
		t.Fatalf("ready event = %+v", ready)
	}
	if ready.State == nil || ready.State.Phase != "idle" || !ready.State.CanSubmit {
		t.Errorf("state after last dish = %+v", ready.State)
	}
}

// The first completion's state is taken while its sibling is still generating,
// and its delivery is held until the sibling has finished. The socket must still
// end on the settled state.
func TestSessionWebSocketEndsOnLatestState(t *testing.T) {
	first, second := make(chan struct{}), make(chan struct{})
	models := &fakeModels{
		entries: []menu.Entry{
			{Name: "Gazpacho", Description: "Cold tomato soup."},
			{Name: "Churros", Description: "Fried dough with chocolate."},
		},
		gate: map[string]chan struct{}{"Gazpacho": first, "Churros": second},
	}
	srv, h := newTestServer(t, models)
	sess := createSession(t, srv, h)

	snapshot := srv.hub.snapshot
	var hold sync.Once
	srv.hub.snapshot = func(id string) (studio.State, bool) {
		st, ok := snapshot(id)
		ready := 0
		for _, d := range st.Dishes {
			if d.Status == menu.StatusReady {
				ready++
			}
		}
		if ok && ready == 1 {
			hold.Do(func() {
				close(second)
				deadline := time.Now().Add(2 * time.Second)
				for !sess.CanSubmit() && time.Now().Before(deadline) {
					time.Sleep(5 * time.Millisecond)
				}
				time.Sleep(100 * time.Millisecond)
			})
		}
		return st, ok
	}
	ts := httptest.NewServer(h)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/sessions/" + sess.ID() + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if hello := readWS(t, conn); hello.Type != "hello" {
		t.Fatalf("hello = %+v", hello)
	}

	if rec, _ := doJSON(t, h, http.MethodPost, "/api/sessions/"+sess.ID()+"/menu", map[string]string{"menu_text": "tapas"}); rec.Code != http.StatusOK {
		t.Fatalf("submit = %d", rec.Code)
	}
	for _, want := range []string{"extraction_started", "dishes_extracted"} {
		if got := readWS(t, conn); got.Type != want {
			t.Fatalf("event = %q, want %q", got.Type, want)
		}
	}
	close(first)

	var last wsTestMessage
	var version uint64
	for ready := 0; ready < 2; {
		msg := readWS(t, conn)
		if msg.State == nil {
			t.Fatalf("message without state: %+v", msg)
		}
		if msg.State.Version < version {
			t.Errorf("%s carried version %d after %d", msg.Type, msg.State.Version, version)
		}
		version = msg.State.Version
		if msg.Type == "dish_ready" {
			ready++
		}
		last = msg
	}
	if last.State.Phase != "idle" || !last.State.CanSubmit {
		t.Errorf("last state phase = %s can_submit = %v, want idle and submittable", last.State.Phase, last.State.CanSubmit)
	}
	for i, d := range last.State.Dishes {
		if d.Status != "ready" {
			t.Errorf("dish %d status = %s", i, d.Status)
		}
	}
}

func TestSessionWebSocketUnknownSession(t *testing.T) {
	_, h := newTestServer(t, &fakeModels{})
	ts := httptest.NewServer(h)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/sessions/missing/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("resp = %v", resp)
	}
}
