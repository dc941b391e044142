// Package ws broadcasts coordination events to WebSocket subscribers.
// Delivery is fire-and-forget: a slow or dead subscriber is dropped, never
// waited on, and no event is part of any operation's return contract.
package ws

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/mistakeknot/rowlock/internal/core"
)

const writeTimeout = 5 * time.Second

// Hub tracks subscriber connections keyed by sheet name. The empty sheet
// key subscribes to events for every sheet.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]map[*websocket.Conn]struct{}
}

func NewHub() *Hub {
	return &Hub{conns: make(map[string]map[*websocket.Conn]struct{})}
}

// Handler accepts subscriber connections at /ws, with an optional
// ?sheet= filter.
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sheet := strings.TrimSpace(r.URL.Query().Get("sheet"))
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}

		h.add(sheet, conn)
		defer h.remove(sheet, conn)

		// Subscribers only listen; drain until the peer goes away.
		ctx := r.Context()
		for {
			var v any
			if err := wsjson.Read(ctx, conn, &v); err != nil {
				return
			}
		}
	}
}

type connEntry struct {
	conn  *websocket.Conn
	sheet string
}

// Broadcast sends the event to every subscriber of the sheet and every
// subscriber of all sheets. Write failures close and drop the connection.
func (h *Hub) Broadcast(sheet string, event core.Event) {
	entries := h.snapshot(sheet)
	for _, e := range entries {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := wsjson.Write(ctx, e.conn, event)
		cancel()
		if err != nil {
			go func(e connEntry) {
				e.conn.Close(websocket.StatusGoingAway, "write error")
				h.remove(e.sheet, e.conn)
			}(e)
		}
	}
}

func (h *Hub) snapshot(sheet string) []connEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []connEntry
	for conn := range h.conns[sheet] {
		out = append(out, connEntry{conn: conn, sheet: sheet})
	}
	if sheet != "" {
		for conn := range h.conns[""] {
			out = append(out, connEntry{conn: conn, sheet: ""})
		}
	}
	return out
}

func (h *Hub) add(sheet string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	perSheet, ok := h.conns[sheet]
	if !ok {
		perSheet = make(map[*websocket.Conn]struct{})
		h.conns[sheet] = perSheet
	}
	perSheet[conn] = struct{}{}
}

func (h *Hub) remove(sheet string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	perSheet, ok := h.conns[sheet]
	if !ok {
		return
	}
	delete(perSheet, conn)
	if len(perSheet) == 0 {
		delete(h.conns, sheet)
	}
}

// Subscribers reports the current connection count, for diagnostics.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, conns := range h.conns {
		n += len(conns)
	}
	return n
}
