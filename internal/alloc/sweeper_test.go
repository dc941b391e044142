package alloc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mistakeknot/rowlock/internal/core"
)

type captureBus struct {
	mu     sync.Mutex
	events []core.Event
}

func (b *captureBus) Broadcast(sheet string, ev core.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
}

func (b *captureBus) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

func TestSweeperExpiresStaleReservations(t *testing.T) {
	l := NewLedger()
	bus := &captureBus{}
	res, _ := l.Reserve("orders", 5, "agent")

	// TTL of zero makes every reservation stale immediately.
	sw := NewSweeper(l, bus, 10*time.Millisecond, 0)
	sw.Start(context.Background())
	defer sw.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, _ := l.Get(res.ID)
		if got.Status == core.StatusExpired {
			if bus.count() == 0 {
				t.Fatal("expiry not broadcast")
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("reservation never expired")
}

func TestSweeperStopWithoutStart(t *testing.T) {
	sw := NewSweeper(NewLedger(), nil, time.Millisecond, time.Hour)

	done := make(chan struct{})
	go func() {
		sw.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked on a sweeper that was never started")
	}
}

func TestSweeperStopTerminates(t *testing.T) {
	sw := NewSweeper(NewLedger(), nil, time.Millisecond, time.Hour)
	sw.Start(context.Background())

	done := make(chan struct{})
	go func() {
		sw.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}
