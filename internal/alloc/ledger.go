// Package alloc is the allocation ledger: per-sheet high-water marks, row
// reservations, and in-flight append claims, all guarded by one mutex. The
// ledger does no I/O and never touches the tabular engine; it only decides
// which rows belong to whom.
package alloc

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mistakeknot/rowlock/internal/core"
)

// Ledger tracks the claimed region of every sheet. The claimed rows of a
// sheet are the union of the committed high-water region, every reservation's
// range (expired ones stay claimed forever), and any append claims currently
// being written. All read-modify-write sequences happen inside the single
// mutex, so overlapping grants cannot be produced by interleaving.
type Ledger struct {
	mu           sync.Mutex
	sheets       map[string]*sheetState
	reservations map[string]*reservation
}

type sheetState struct {
	highWater int64
	resIDs    []string
	claims    map[string]int64 // claim id -> end row
}

type reservation struct {
	core.Reservation
	inFlight bool
}

func NewLedger() *Ledger {
	return &Ledger{
		sheets:       make(map[string]*sheetState),
		reservations: make(map[string]*reservation),
	}
}

func (l *Ledger) sheet(name string) *sheetState {
	st, ok := l.sheets[name]
	if !ok {
		st = &sheetState{claims: make(map[string]int64)}
		l.sheets[name] = st
	}
	return st
}

// nextFreeLocked computes the first row above every claimed range.
// Callers must hold l.mu.
func (l *Ledger) nextFreeLocked(st *sheetState) int64 {
	high := st.highWater
	for _, id := range st.resIDs {
		if res := l.reservations[id]; res != nil && res.EndRow > high {
			high = res.EndRow
		}
	}
	for _, end := range st.claims {
		if end > high {
			high = end
		}
	}
	return high + 1
}

// NextFreeRow returns the next unclaimed row of the sheet. Never reads the
// engine; the answer comes entirely from ledger bookkeeping.
func (l *Ledger) NextFreeRow(sheet string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nextFreeLocked(l.sheet(sheet))
}

// Reserve grants an exclusive contiguous range of rowCount rows on the sheet,
// creating sheet state lazily. The grant and the next-free computation happen
// under the same lock acquisition, so two concurrent reservations can never
// overlap.
func (l *Ledger) Reserve(sheet string, rowCount int64, agentID string) (core.Reservation, error) {
	if rowCount <= 0 {
		return core.Reservation{}, fmt.Errorf("%w: row count must be positive, got %d", core.ErrInvalidRequest, rowCount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.sheet(sheet)
	start := l.nextFreeLocked(st)
	res := &reservation{Reservation: core.Reservation{
		ID:         uuid.NewString(),
		AgentID:    agentID,
		Sheet:      sheet,
		StartRow:   start,
		EndRow:     start + rowCount - 1,
		RowCount:   rowCount,
		Status:     core.StatusActive,
		ReservedAt: time.Now().UTC(),
	}}
	l.reservations[res.ID] = res
	st.resIDs = append(st.resIDs, res.ID)
	return res.Reservation, nil
}

// AdvanceHighWater moves the committed high-water mark forward. Attempts to
// move it backward are ignored; the mark is monotonic.
func (l *Ledger) AdvanceHighWater(sheet string, newMax int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	st := l.sheet(sheet)
	if newMax > st.highWater {
		st.highWater = newMax
	}
}

// HighWater returns the committed high-water mark for the sheet, zero if the
// sheet is unknown.
func (l *Ledger) HighWater(sheet string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if st, ok := l.sheets[sheet]; ok {
		return st.highWater
	}
	return 0
}

// Get returns a snapshot of the reservation.
func (l *Ledger) Get(id string) (core.Reservation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	res, ok := l.reservations[id]
	if !ok {
		return core.Reservation{}, fmt.Errorf("%w: reservation %s", core.ErrNotFound, id)
	}
	return res.Reservation, nil
}

// BeginWrite atomically verifies the reservation is active with no other
// write in flight and marks it in flight. A second concurrent writer fails
// here instead of racing the completion check.
func (l *Ledger) BeginWrite(id string) (core.Reservation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	res, ok := l.reservations[id]
	if !ok {
		return core.Reservation{}, fmt.Errorf("%w: reservation %s", core.ErrNotFound, id)
	}
	if res.Status != core.StatusActive {
		return core.Reservation{}, fmt.Errorf("%w: reservation %s is %s", core.ErrInvalidState, id, res.Status)
	}
	if res.inFlight {
		return core.Reservation{}, fmt.Errorf("%w: reservation %s already has a write in flight", core.ErrInvalidState, id)
	}
	res.inFlight = true
	return res.Reservation, nil
}

// EndWrite clears the in-flight mark after a failed write, leaving the
// reservation active for a retry.
func (l *Ledger) EndWrite(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if res, ok := l.reservations[id]; ok {
		res.inFlight = false
	}
}

// Complete transitions an active reservation to completed and records how
// many rows were written. A second completion fails with ErrInvalidState and
// leaves the first call's records_written untouched.
func (l *Ledger) Complete(id string, recordsWritten int64) (core.Reservation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	res, ok := l.reservations[id]
	if !ok {
		return core.Reservation{}, fmt.Errorf("%w: reservation %s", core.ErrNotFound, id)
	}
	if res.Status != core.StatusActive {
		return core.Reservation{}, fmt.Errorf("%w: reservation %s is %s", core.ErrInvalidState, id, res.Status)
	}
	now := time.Now().UTC()
	res.Status = core.StatusCompleted
	res.CompletedAt = &now
	res.RecordsWritten = recordsWritten
	res.inFlight = false
	return res.Reservation, nil
}

// Expire transitions an active reservation to expired. The range stays
// claimed forever; reclaiming it would require proving no writer still holds
// a reference, which this design does not attempt.
func (l *Ledger) Expire(id string) (core.Reservation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	res, ok := l.reservations[id]
	if !ok {
		return core.Reservation{}, fmt.Errorf("%w: reservation %s", core.ErrNotFound, id)
	}
	if res.Status != core.StatusActive {
		return core.Reservation{}, fmt.Errorf("%w: reservation %s is %s", core.ErrInvalidState, id, res.Status)
	}
	res.Status = core.StatusExpired
	return res.Reservation, nil
}

// ExpireBefore expires every active reservation granted before the cutoff,
// skipping those with a write in flight. Returns snapshots of what expired.
func (l *Ledger) ExpireBefore(cutoff time.Time) []core.Reservation {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []core.Reservation
	for _, res := range l.reservations {
		if res.Status != core.StatusActive || res.inFlight {
			continue
		}
		if res.ReservedAt.Before(cutoff) {
			res.Status = core.StatusExpired
			out = append(out, res.Reservation)
		}
	}
	return out
}

// ActiveReservations returns snapshots of the sheet's active reservations.
func (l *Ledger) ActiveReservations(sheet string) []core.Reservation {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.sheets[sheet]
	if !ok {
		return nil
	}
	var out []core.Reservation
	for _, id := range st.resIDs {
		if res := l.reservations[id]; res != nil && res.Status == core.StatusActive {
			out = append(out, res.Reservation)
		}
	}
	return out
}

// Snapshot returns high-water marks and active reservations for every sheet
// the ledger knows about.
func (l *Ledger) Snapshot() core.OperationStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	status := core.OperationStatus{
		SheetRows:          make(map[string]int64, len(l.sheets)),
		ActiveReservations: make(map[string][]core.Reservation, len(l.sheets)),
	}
	for name, st := range l.sheets {
		status.SheetRows[name] = st.highWater
		var active []core.Reservation
		for _, id := range st.resIDs {
			if res := l.reservations[id]; res != nil && res.Status == core.StatusActive {
				active = append(active, res.Reservation)
			}
		}
		if len(active) > 0 {
			status.ActiveReservations[name] = active
		}
	}
	return status
}

// ClaimAppend stakes out rows for an append that is about to start writing.
// The claim keeps concurrent appends and reservations off the range until
// Release is called. When the sheet is still empty (no committed rows, no
// grants) and the append carries headers, an extra row is claimed so the
// headers can occupy row 1. The emptiness check and the claim happen under
// one lock acquisition.
func (l *Ledger) ClaimAppend(sheet string, rowCount int64, withHeaders bool) (start int64, claimID string, headersAdded bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	st := l.sheet(sheet)
	start = l.nextFreeLocked(st)
	if withHeaders && start == 1 {
		headersAdded = true
		rowCount++
	}
	claimID = uuid.NewString()
	st.claims[claimID] = start + rowCount - 1
	return start, claimID, headersAdded
}

// Release drops an append claim and advances the high-water mark to the last
// row actually written (zero if nothing was). If the append was cancelled or
// failed partway and another grant has since landed above the claim, the
// unwritten remainder stays as a permanent gap; rows are never reused.
func (l *Ledger) Release(sheet, claimID string, lastWritten int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	st := l.sheet(sheet)
	delete(st.claims, claimID)
	if lastWritten > st.highWater {
		st.highWater = lastWritten
	}
}
