package main

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kwv/floorplan/editor"
)

const (
	hubWriteWait  = 5 * time.Second
	hubPongWait   = 60 * time.Second
	hubPingPeriod = hubPongWait * 9 / 10
	hubSendBuffer = 32
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 16 * 1024,
}

// Hub fans session events out to connected editor UIs. Slow clients whose
// buffer fills up are disconnected rather than blocking the session.
type Hub struct {
	mu      sync.Mutex
	clients map[*hubClient]struct{}
}

type hubClient struct {
	conn *websocket.Conn
	send chan editor.Event
	once sync.Once
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*hubClient]struct{})}
}

// Broadcast queues ev for every client. It never blocks and is safe to
// use as an editor.Listener.
func (h *Hub) Broadcast(ev editor.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- ev:
		default:
			log.Printf("[HTTP] websocket client %s too slow, dropping", c.conn.RemoteAddr())
			h.removeLocked(c)
		}
	}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.removeLocked(c)
	}
}

func (h *Hub) removeLocked(c *hubClient) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	c.once.Do(func() { close(c.send) })
}

func (h *Hub) remove(c *hubClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

// ServeWS upgrades the request and streams events to the client. The
// first message is a state event carrying the current snapshot.
func (h *Hub) ServeWS(session *editor.Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[HTTP] websocket upgrade failed: %v", err)
			return
		}
		c := &hubClient{conn: conn, send: make(chan editor.Event, hubSendBuffer)}

		st := session.State()
		hello := editor.Event{
			Type:    editor.EventState,
			PlanID:  session.PlanID(),
			Version: st.Present.Metadata.Version,
			Dirty:   st.IsDirty,
		}
		if st.SelectedSpaceID != nil {
			hello.SelectedSpaceID = *st.SelectedSpaceID
		}
		c.send <- hello

		h.mu.Lock()
		h.clients[c] = struct{}{}
		h.mu.Unlock()
		log.Printf("[HTTP] websocket client connected from %s", r.RemoteAddr)

		go c.writePump()
		c.readPump()
		h.remove(c)
	}
}

// readPump discards client messages and detects disconnects.
func (c *hubClient) readPump() {
	defer c.conn.Close()
	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(hubPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(hubPongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *hubClient) writePump() {
	ticker := time.NewTicker(hubPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case ev, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(hubWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				log.Printf("[HTTP] websocket write failed: %v", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(hubWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
