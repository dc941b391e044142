package ws

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/mistakeknot/rowlock/internal/core"
)

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) core.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var ev core.Event
	if err := wsjson.Read(ctx, conn, &ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	return ev
}

func TestBroadcastToSheetSubscribers(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()
	wsURL := "ws" + srv.URL[len("http"):]

	ordersConn := dial(t, wsURL+"/ws?sheet=orders")
	allConn := dial(t, wsURL+"/ws")

	// Both connections must be registered before broadcasting.
	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.Subscribers() != 2 {
		t.Fatalf("subscribers = %d, want 2", hub.Subscribers())
	}

	hub.Broadcast("orders", core.Event{Type: core.EventAppendCompleted, Sheet: "orders"})

	for _, conn := range []*websocket.Conn{ordersConn, allConn} {
		ev := readEvent(t, conn)
		if ev.Type != core.EventAppendCompleted || ev.Sheet != "orders" {
			t.Fatalf("event = %+v", ev)
		}
	}
}

func TestBroadcastSkipsOtherSheets(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()
	wsURL := "ws" + srv.URL[len("http"):]

	otherConn := dial(t, wsURL+"/ws?sheet=other")
	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers() < 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	hub.Broadcast("orders", core.Event{Type: core.EventAppendCompleted, Sheet: "orders"})
	hub.Broadcast("other", core.Event{Type: core.EventReservationCreated, Sheet: "other"})

	// The first event the subscriber sees is the one for its sheet.
	ev := readEvent(t, otherConn)
	if ev.Sheet != "other" {
		t.Fatalf("leaked event for sheet %q", ev.Sheet)
	}
}
