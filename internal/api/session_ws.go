package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"foodphotographer/internal/studio"
)

const (
	wsWriteWait  = 7 * time.Second
	wsPongWait   = 70 * time.Second
	wsPingPeriod = 25 * time.Second
	wsReadLimit  = 1 << 16
)

var sessionWSUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Session ids are unguessable and the access gate already ran.
		return true
	},
}

// wsMessage is what clients receive: the event fields plus the session state
// after the change.
type wsMessage struct {
	studio.Event
	State *studio.State `json:"state,omitempty"`
}

// sessionHub fans session events out to the WebSocket clients watching that session.
// Each room serializes its sends, and every message takes its state snapshot
// while holding that lock, so clients never see an older state after a newer one.
type sessionHub struct {
	log      *zap.Logger
	snapshot func(id string) (studio.State, bool)

	mu    sync.Mutex
	rooms map[string]*sessionRoom
}

type sessionRoom struct {
	send    sync.Mutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func newSessionHub(log *zap.Logger) *sessionHub {
	return &sessionHub{log: log, rooms: map[string]*sessionRoom{}}
}

// join registers c and returns the room size.
func (h *sessionHub) join(sessionID string, c *wsClient) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.rooms[sessionID]
	if room == nil {
		room = &sessionRoom{clients: map[*wsClient]struct{}{}}
		h.rooms[sessionID] = room
	}
	room.clients[c] = struct{}{}
	return len(room.clients)
}

// leave drops c and returns how many clients remain.
func (h *sessionHub) leave(sessionID string, c *wsClient) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.rooms[sessionID]
	if room == nil {
		return 0
	}
	delete(room.clients, c)
	if len(room.clients) == 0 {
		delete(h.rooms, sessionID)
	}
	return len(room.clients)
}

// broadcast sends one message per call to the clients of sessionID, or only to
// target when it is set. build receives the state taken under the room's send
// lock.
func (h *sessionHub) broadcast(sessionID string, target *wsClient, build func(*studio.State) any) error {
	h.mu.Lock()
	room := h.rooms[sessionID]
	h.mu.Unlock()
	if room == nil {
		return nil
	}

	room.send.Lock()
	defer room.send.Unlock()

	h.mu.Lock()
	var clients []*wsClient
	for c := range room.clients {
		if target == nil || c == target {
			clients = append(clients, c)
		}
	}
	h.mu.Unlock()
	if len(clients) == 0 {
		return nil
	}

	var state *studio.State
	if h.snapshot != nil {
		if st, ok := h.snapshot(sessionID); ok {
			state = &st
		}
	}
	raw, err := json.Marshal(build(state))
	if err != nil {
		return err
	}

	var firstErr error
	for _, c := range clients {
		if err := c.writeText(raw); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			h.leave(sessionID, c)
			_ = c.close()
		}
	}
	return firstErr
}

// Publish implements studio.Notifier.
func (h *sessionHub) Publish(ev studio.Event) {
	if h == nil || ev.SessionID == "" {
		return
	}
	err := h.broadcast(ev.SessionID, nil, func(st *studio.State) any {
		return wsMessage{Event: ev, State: st}
	})
	if err != nil {
		h.log.Debug("broadcast incomplete",
			zap.String("event", string(ev.Type)),
			zap.String("session", ev.SessionID),
			zap.Error(err),
		)
	}
}

// sendState writes a state-only message such as hello or snapshot to c.
func (h *sessionHub) sendState(sessionID string, c *wsClient, kind string) error {
	return h.broadcast(sessionID, c, func(st *studio.State) any {
		return map[string]any{
			"type":       kind,
			"session_id": sessionID,
			"at":         time.Now().UTC(),
			"state":      st,
		}
	})
}

func (h *sessionHub) closeAll() {
	h.mu.Lock()
	rooms := h.rooms
	h.rooms = map[string]*sessionRoom{}
	h.mu.Unlock()

	for _, room := range rooms {
		for c := range room.clients {
			_ = c.close()
		}
	}
}

func (c *wsClient) writeText(raw []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.conn.WriteMessage(websocket.TextMessage, raw)
}

func (c *wsClient) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(wsWriteWait))
}

func (c *wsClient) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}

func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFromContext(r.Context())
	sessionID := sess.ID()
	log := s.hub.log.With(zap.String("session", sessionID), zap.String("remote", r.RemoteAddr))

	conn, err := sessionWSUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Info("ws upgrade failed", zap.Error(err))
		return
	}

	client := &wsClient{conn: conn}
	log.Debug("ws connected", zap.Int("clients", s.hub.join(sessionID, client)))
	defer func() {
		log.Debug("ws disconnected", zap.Int("clients", s.hub.leave(sessionID, client)))
		_ = client.close()
	}()

	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		sess.Touch()
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	if err := s.hub.sendState(sessionID, client, "hello"); err != nil {
		log.Info("ws hello failed", zap.Error(err))
		return
	}

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if len(raw) == 0 {
				continue
			}
			var msg struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(raw, &msg); err != nil {
				log.Debug("ws message invalid json", zap.Error(err))
				continue
			}
			typ := strings.ToLower(strings.TrimSpace(msg.Type))
			if typ != "sync" && typ != "refresh" {
				log.Debug("ws message ignored", zap.String("type", typ))
				continue
			}
			if err := s.hub.sendState(sessionID, client, "snapshot"); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-readDone:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
			sess.Touch()
			if err := client.ping(); err != nil {
				log.Info("ws ping failed", zap.Error(err))
				return
			}
		}
	}
}
