// Package coord serializes all physical mutation of the workbook and builds
// the append and reserved-write operations on top of the allocation ledger.
// The grid instance is owned exclusively by the Coordinator and never leaks
// to callers.
package coord

import (
	"context"
	"fmt"
	"time"

	"github.com/mistakeknot/rowlock/internal/alloc"
	"github.com/mistakeknot/rowlock/internal/core"
	"github.com/mistakeknot/rowlock/internal/grid"
)

// Coordinator funnels every workbook mutation through two critical sections:
// the ledger's allocation lock for bookkeeping and the grid's update lock for
// per-chunk physical writes.
type Coordinator struct {
	ledger    *alloc.Ledger
	grid      *grid.Grid
	bus       alloc.Broadcaster
	chunkSize int
}

type Option func(*Coordinator)

// WithBroadcaster wires fire-and-forget event notifications. Events are
// best-effort and never part of an operation's return contract.
func WithBroadcaster(bus alloc.Broadcaster) Option {
	return func(c *Coordinator) { c.bus = bus }
}

// WithChunkSize overrides the default chunk size for writes that don't
// specify their own.
func WithChunkSize(n int) Option {
	return func(c *Coordinator) { c.chunkSize = n }
}

func New(opts ...Option) *Coordinator {
	c := &Coordinator{
		ledger:    alloc.NewLedger(),
		grid:      grid.New(),
		chunkSize: DefaultChunkSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ledger exposes the allocation ledger for the sweeper and diagnostics.
func (c *Coordinator) Ledger() *alloc.Ledger {
	return c.ledger
}

// Reserve grants an exclusive row range for a later WriteToReservation call.
// Always cheap: no engine access, just ledger bookkeeping.
func (c *Coordinator) Reserve(sheet string, rowCount int64, agentID string) (core.Reservation, error) {
	res, err := c.ledger.Reserve(sheet, rowCount, agentID)
	if err != nil {
		return core.Reservation{}, err
	}
	c.emit(core.Event{
		Type:        core.EventReservationCreated,
		Sheet:       sheet,
		AgentID:     agentID,
		Reservation: &res,
	})
	return res, nil
}

// AppendRequest carries the input for Append.
type AppendRequest struct {
	Sheet     string
	Records   []core.Record
	Headers   []string
	AgentID   string
	ChunkSize int
}

// Append writes records after the last claimed row of the sheet. If the
// sheet is empty and headers are supplied, the headers occupy row 1 and data
// starts at row 2. The target range is claimed in the ledger before any
// physical write, so concurrent appends never observe the same start row.
//
// Cancellation is cooperative: the token is polled between chunks, and rows
// already written when it fires are committed and reported as a partial
// result with Cancelled set — not an error. An engine failure likewise
// reports the committed prefix, alongside the error.
func (c *Coordinator) Append(ctx context.Context, req AppendRequest) (core.AppendResult, error) {
	if len(req.Records) == 0 {
		return core.AppendResult{}, core.ErrEmptyInput
	}
	chunkSize := req.ChunkSize
	if chunkSize <= 0 {
		chunkSize = c.chunkSize
	}

	rowCount := int64(len(req.Records))
	start, claimID, headersAdded := c.ledger.ClaimAppend(req.Sheet, rowCount, len(req.Headers) > 0)

	// Nothing is committed until Release, which advances the high-water
	// mark to the last row actually written.
	lastWritten := int64(0)
	defer func() {
		c.ledger.Release(req.Sheet, claimID, lastWritten)
	}()

	dataStart := start
	if headersAdded {
		if err := ctx.Err(); err != nil {
			return core.AppendResult{Sheet: req.Sheet, Cancelled: true}, nil
		}
		herr := c.grid.Update(func(tx *grid.Tx) error {
			for i, h := range req.Headers {
				if err := tx.SetCell(req.Sheet, start, int64(i)+1, h); err != nil {
					return err
				}
			}
			return nil
		})
		if herr != nil {
			return core.AppendResult{Sheet: req.Sheet}, fmt.Errorf("write headers: %w", herr)
		}
		lastWritten = start
		dataStart = start + 1
	}

	writer := &chunkWriter{
		grid:      c.grid,
		chunkSize: chunkSize,
		progress:  c.progressFunc(req.Sheet, req.AgentID),
	}
	written, cancelled, werr := writer.writeRows(ctx, req.Sheet, dataStart, req.Records)
	if written > 0 {
		lastWritten = dataStart + written - 1
	}

	result := core.AppendResult{
		Sheet:        req.Sheet,
		RowsWritten:  written,
		HeadersAdded: headersAdded,
		Cancelled:    cancelled,
	}
	if written > 0 {
		result.StartRow = dataStart
		result.EndRow = dataStart + written - 1
	}
	if werr != nil {
		return result, werr
	}

	c.emit(core.Event{
		Type:    core.EventAppendCompleted,
		Sheet:   req.Sheet,
		AgentID: req.AgentID,
		Progress: &core.Progress{
			Written: written,
			Total:   int64(len(req.Records)),
			Percent: percent(written, int64(len(req.Records))),
		},
	})
	return result, nil
}

// WriteToReservation fills a previously granted range and completes the
// reservation. Overflow is all-or-nothing: when records exceed the reserved
// row count, zero rows are written. A cancelled or failed write leaves the
// reservation active so the caller can retry the whole write; nothing
// advances the high-water mark on this path (the range was already claimed
// at grant time).
func (c *Coordinator) WriteToReservation(ctx context.Context, reservationID string, records []core.Record) (core.WriteResult, error) {
	if len(records) == 0 {
		return core.WriteResult{}, core.ErrEmptyInput
	}

	res, err := c.ledger.BeginWrite(reservationID)
	if err != nil {
		return core.WriteResult{}, err
	}

	if int64(len(records)) > res.RowCount {
		c.ledger.EndWrite(reservationID)
		return core.WriteResult{}, &core.OverflowError{
			ReservationID: reservationID,
			Reserved:      res.RowCount,
			Requested:     int64(len(records)),
		}
	}

	writer := &chunkWriter{
		grid:      c.grid,
		chunkSize: c.chunkSize,
		progress:  c.progressFunc(res.Sheet, res.AgentID),
	}
	written, cancelled, werr := writer.writeRows(ctx, res.Sheet, res.StartRow, records)
	if werr != nil {
		c.ledger.EndWrite(reservationID)
		return core.WriteResult{}, werr
	}
	if cancelled {
		c.ledger.EndWrite(reservationID)
		return core.WriteResult{}, fmt.Errorf("reservation write: %w", ctx.Err())
	}

	done, err := c.ledger.Complete(reservationID, written)
	if err != nil {
		return core.WriteResult{}, err
	}
	c.emit(core.Event{
		Type:        core.EventReservationCompleted,
		Sheet:       done.Sheet,
		AgentID:     done.AgentID,
		Reservation: &done,
	})
	return core.WriteResult{
		ReservationID: reservationID,
		Sheet:         done.Sheet,
		RowsWritten:   written,
		StartRow:      res.StartRow,
		EndRow:        res.StartRow + written - 1,
	}, nil
}

// Complete marks a reservation completed without writing. Exposed for
// callers that filled the range through earlier partial writes.
func (c *Coordinator) Complete(reservationID string, recordsWritten int64) (core.Reservation, error) {
	return c.ledger.Complete(reservationID, recordsWritten)
}

// GetReservation returns a snapshot of a reservation.
func (c *Coordinator) GetReservation(id string) (core.Reservation, error) {
	return c.ledger.Get(id)
}

// ReadRange copies the requested region out of the sheet under the shared
// read lock. The lock is held only while copying, never across any
// caller-visible time.
func (c *Coordinator) ReadRange(sheet string, bounds core.Bounds, includeHeaders bool) (core.RowsResult, error) {
	result := core.RowsResult{Sheet: sheet}

	err := c.grid.View(func(tx *grid.RTx) error {
		if !tx.SheetExists(sheet) {
			return fmt.Errorf("%w: %q", core.ErrSheetNotFound, sheet)
		}

		dataBounds := bounds
		if includeHeaders {
			headerRows, err := tx.RowRange(sheet, core.Bounds{
				StartRow: 1, EndRow: 1,
				StartCol: bounds.StartCol, EndCol: bounds.EndCol,
			})
			if err != nil {
				return err
			}
			if len(headerRows) == 1 {
				result.Headers = make([]string, len(headerRows[0]))
				for i, v := range headerRows[0] {
					if v != nil {
						result.Headers[i] = fmt.Sprint(v)
					}
				}
			}
			// Row 1 holds the headers; data starts below it.
			if dataBounds.StartRow < 2 {
				dataBounds.StartRow = 2
			}
		}

		rows, err := tx.RowRange(sheet, dataBounds)
		if err != nil {
			return err
		}
		result.Data = rows
		result.RowsRead = len(rows)
		if len(rows) > 0 {
			result.ColumnsRead = len(rows[0])
		} else if len(result.Headers) > 0 {
			result.ColumnsRead = len(result.Headers)
		}
		return nil
	})
	if err != nil {
		return core.RowsResult{}, err
	}
	return result, nil
}

// Status snapshots sheet row counts and active reservations.
func (c *Coordinator) Status() core.OperationStatus {
	return c.ledger.Snapshot()
}

func (c *Coordinator) progressFunc(sheet, agentID string) func(written, total int64) {
	if c.bus == nil {
		return nil
	}
	return func(written, total int64) {
		c.emit(core.Event{
			Type:    core.EventAppendProgress,
			Sheet:   sheet,
			AgentID: agentID,
			Progress: &core.Progress{
				Written: written,
				Total:   total,
				Percent: percent(written, total),
			},
		})
	}
}

func (c *Coordinator) emit(ev core.Event) {
	if c.bus == nil {
		return
	}
	ev.CreatedAt = time.Now().UTC()
	c.bus.Broadcast(ev.Sheet, ev)
}

func percent(written, total int64) float64 {
	if total <= 0 {
		return 100
	}
	return float64(written) / float64(total) * 100
}
