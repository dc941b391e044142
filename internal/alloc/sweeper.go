package alloc

import (
	"context"
	"log"
	"time"

	"github.com/mistakeknot/rowlock/internal/core"
)

// Broadcaster is the interface for emitting coordination events to
// subscribed observers.
type Broadcaster interface {
	Broadcast(sheet string, event core.Event)
}

// Sweeper runs a background goroutine that periodically expires reservations
// older than the configured TTL. Expiry is an optional retention policy:
// nothing in the coordinator requires it, and expired ranges stay claimed
// either way. Reservations with a write in flight are never swept.
type Sweeper struct {
	ledger   *Ledger
	bus      Broadcaster
	interval time.Duration
	ttl      time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewSweeper creates a Sweeper. Call Start to begin sweeping.
func NewSweeper(ledger *Ledger, bus Broadcaster, interval, ttl time.Duration) *Sweeper {
	return &Sweeper{
		ledger:   ledger,
		bus:      bus,
		interval: interval,
		ttl:      ttl,
		done:     make(chan struct{}),
	}
}

// Start launches the background sweep goroutine.
func (sw *Sweeper) Start(ctx context.Context) {
	ctx, sw.cancel = context.WithCancel(ctx)

	go func() {
		defer close(sw.done)

		ticker := time.NewTicker(sw.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sw.runSweep()
			}
		}
	}()
}

// Stop cancels the sweep goroutine and waits for it to finish. Stop on a
// sweeper that was never started is a no-op.
func (sw *Sweeper) Stop() {
	if sw.cancel == nil {
		return
	}
	sw.cancel()
	<-sw.done
}

func (sw *Sweeper) runSweep() {
	expired := sw.ledger.ExpireBefore(time.Now().UTC().Add(-sw.ttl))
	if len(expired) == 0 {
		return
	}

	log.Printf("sweeper: expired %d stale reservation(s)", len(expired))

	if sw.bus == nil {
		return
	}
	for _, res := range expired {
		res := res
		sw.bus.Broadcast(res.Sheet, core.Event{
			Type:        core.EventReservationExpired,
			Sheet:       res.Sheet,
			AgentID:     res.AgentID,
			Reservation: &res,
			CreatedAt:   time.Now().UTC(),
		})
	}
}
