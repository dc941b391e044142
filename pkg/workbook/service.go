// Package workbook is the embeddable entry point: one Service per shared
// workbook, safe for any number of concurrent callers. It composes the
// coordinator with the spillover cache, the optional audit journal, the
// optional expiry sweeper, and an optional event broadcaster.
package workbook

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/mistakeknot/rowlock/internal/alloc"
	"github.com/mistakeknot/rowlock/internal/audit"
	"github.com/mistakeknot/rowlock/internal/cache"
	"github.com/mistakeknot/rowlock/internal/config"
	"github.com/mistakeknot/rowlock/internal/coord"
	"github.com/mistakeknot/rowlock/internal/core"
)

// re-exported so embedders don't import internal packages.
type (
	Reservation     = core.Reservation
	Record          = core.Record
	Bounds          = core.Bounds
	AppendResult    = core.AppendResult
	WriteResult     = core.WriteResult
	RowsResult      = core.RowsResult
	CacheRef        = core.CacheRef
	OperationStatus = core.OperationStatus
	Event           = core.Event
)

// Sentinel errors callers match with errors.Is.
var (
	ErrInvalidRequest = core.ErrInvalidRequest
	ErrEmptyInput     = core.ErrEmptyInput
	ErrNotFound       = core.ErrNotFound
	ErrSheetNotFound  = core.ErrSheetNotFound
	ErrInvalidState   = core.ErrInvalidState
	ErrOverflow       = core.ErrOverflow
)

// Broadcaster receives fire-and-forget coordination events.
type Broadcaster = alloc.Broadcaster

type Service struct {
	cfg     config.Config
	coord   *coord.Coordinator
	spill   *cache.Spillover
	journal *audit.Log
	bus     Broadcaster
	sweeper *alloc.Sweeper
}

type Option func(*Service)

// WithBroadcaster wires an event sink (typically the ws.Hub).
func WithBroadcaster(bus Broadcaster) Option {
	return func(s *Service) { s.bus = bus }
}

// WithJournal enables the SQLite audit journal. The Service owns the
// journal and closes it on Close.
func WithJournal(journal *audit.Log) Option {
	return func(s *Service) { s.journal = journal }
}

// New creates a Service for one workbook.
func New(cfg config.Config, opts ...Option) *Service {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = config.Default().ChunkSize
	}
	s := &Service{cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}

	coordOpts := []coord.Option{coord.WithChunkSize(cfg.ChunkSize)}
	if s.bus != nil {
		coordOpts = append(coordOpts, coord.WithBroadcaster(s.bus))
	}
	s.coord = coord.New(coordOpts...)
	s.spill = cache.New(cfg.SpillThresholdBytes, cfg.SpillMaxEntries, cfg.SpillTTL())

	if cfg.SweepExpired {
		s.sweeper = alloc.NewSweeper(s.coord.Ledger(), s.bus, cfg.SweepInterval(), cfg.ReservationTTL())
	}
	return s
}

// Start launches the expiry sweeper when the config enables it. Safe to
// skip entirely; nothing else depends on it.
func (s *Service) Start(ctx context.Context) {
	if s.sweeper != nil {
		s.sweeper.Start(ctx)
	}
}

// Close stops background work and releases the journal.
func (s *Service) Close() error {
	if s.sweeper != nil {
		s.sweeper.Stop()
	}
	if s.journal != nil {
		return s.journal.Close()
	}
	return nil
}

// ReserveRows grants an exclusive row range for a later write. Cheap ledger
// bookkeeping; never blocks behind physical writes.
func (s *Service) ReserveRows(sheet string, rowCount int64, agentID string) (Reservation, error) {
	res, err := s.coord.Reserve(sheet, rowCount, agentID)
	if err != nil {
		return Reservation{}, err
	}
	s.journalReservation(res)
	return res, nil
}

// AppendRequest mirrors coord.AppendRequest for embedders.
type AppendRequest = coord.AppendRequest

// AppendRecords writes records past the last claimed row of the sheet,
// chunked, with cooperative cancellation through ctx. A cancelled call
// returns the committed prefix with Cancelled set, not an error.
func (s *Service) AppendRecords(ctx context.Context, req AppendRequest) (AppendResult, error) {
	result, err := s.coord.Append(ctx, req)
	if err == nil {
		s.journalOperation(audit.Operation{
			Kind:        audit.KindAppend,
			Sheet:       req.Sheet,
			AgentID:     req.AgentID,
			StartRow:    result.StartRow,
			EndRow:      result.EndRow,
			RowsWritten: result.RowsWritten,
			Cancelled:   result.Cancelled,
		})
	}
	return result, err
}

// WriteToReservation fills a granted range and completes the reservation.
func (s *Service) WriteToReservation(ctx context.Context, reservationID string, records []Record) (WriteResult, error) {
	result, err := s.coord.WriteToReservation(ctx, reservationID, records)
	if err != nil {
		return WriteResult{}, err
	}
	if done, gerr := s.coord.GetReservation(reservationID); gerr == nil {
		s.journalReservation(done)
	}
	s.journalOperation(audit.Operation{
		Kind:        audit.KindReservedWrite,
		Sheet:       result.Sheet,
		StartRow:    result.StartRow,
		EndRow:      result.EndRow,
		RowsWritten: result.RowsWritten,
	})
	return result, nil
}

// GetReservation returns a snapshot of a reservation.
func (s *Service) GetReservation(id string) (Reservation, error) {
	return s.coord.GetReservation(id)
}

// ExpireReservation is the manual policy hook: Active -> Expired. The range
// stays permanently claimed.
func (s *Service) ExpireReservation(id string) (Reservation, error) {
	res, err := s.coord.Ledger().Expire(id)
	if err != nil {
		return Reservation{}, err
	}
	s.journalReservation(res)
	if s.bus != nil {
		s.bus.Broadcast(res.Sheet, core.Event{
			Type:        core.EventReservationExpired,
			Sheet:       res.Sheet,
			AgentID:     res.AgentID,
			Reservation: &res,
			CreatedAt:   time.Now().UTC(),
		})
	}
	return res, nil
}

// ReadResult carries either the inline rows or a cache reference, never
// both.
type ReadResult struct {
	Rows *RowsResult
	Ref  *CacheRef
}

// ReadSheetData reads a region of the sheet. maxRows (when positive) caps
// how many data rows are returned. Results whose serialized size exceeds
// the spill threshold are stored in the cache and returned as a CacheRef;
// LoadCachedData resolves the key to the identical payload.
func (s *Service) ReadSheetData(sheet string, bounds Bounds, includeHeaders bool, maxRows int64) (ReadResult, error) {
	if maxRows > 0 {
		start := bounds.StartRow
		if start < 1 {
			start = 1
		}
		if includeHeaders && start < 2 {
			start = 2
		}
		capEnd := start + maxRows - 1
		if bounds.EndRow == 0 || bounds.EndRow > capEnd {
			bounds.EndRow = capEnd
		}
	}

	rows, err := s.coord.ReadRange(sheet, bounds, includeHeaders)
	if err != nil {
		return ReadResult{}, err
	}

	payload, err := json.Marshal(rows)
	if err != nil {
		return ReadResult{}, fmt.Errorf("serialize result: %w", err)
	}
	if !s.spill.ShouldSpill(len(payload)) {
		return ReadResult{Rows: &rows}, nil
	}

	key := s.spill.MakeKey()
	expires := s.spill.Set(key, payload, rows.RowsRead, rows.ColumnsRead)
	return ReadResult{Ref: &CacheRef{
		Key:         key,
		RowsRead:    rows.RowsRead,
		ColumnsRead: rows.ColumnsRead,
		ExpiresAt:   expires,
	}}, nil
}

// LoadCachedData resolves a spill key to the payload that would have been
// returned inline. Absent or expired keys yield ErrNotFound.
func (s *Service) LoadCachedData(key string) (json.RawMessage, error) {
	entry, ok := s.spill.Get(key)
	if !ok {
		return nil, fmt.Errorf("%w: cache key %s", core.ErrNotFound, key)
	}
	return json.RawMessage(entry.Payload), nil
}

// Status snapshots sheet row counts and active reservations by sheet.
func (s *Service) Status() OperationStatus {
	return s.coord.Status()
}

// Journal failures never fail the operation they observe; they are logged
// and dropped.
func (s *Service) journalReservation(res Reservation) {
	if s.journal == nil {
		return
	}
	if err := s.journal.RecordReservation(res); err != nil {
		log.Printf("workbook: journal reservation %s: %v", res.ID, err)
	}
}

func (s *Service) journalOperation(op audit.Operation) {
	if s.journal == nil {
		return
	}
	if err := s.journal.RecordOperation(op); err != nil {
		log.Printf("workbook: journal operation: %v", err)
	}
}
