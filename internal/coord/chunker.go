package coord

import (
	"context"
	"fmt"

	"github.com/mistakeknot/rowlock/internal/core"
	"github.com/mistakeknot/rowlock/internal/grid"
)

// DefaultChunkSize is the number of records written per engine transaction
// when the caller doesn't specify one.
const DefaultChunkSize = 10_000

// chunkWriter drives a large batch into the engine in bounded slices. The
// mutation lock is held for one chunk at a time, so a long write only ever
// blocks other operations for the duration of a single chunk. The
// cancellation token is polled between chunks, never inside one; a chunk
// that has started always finishes.
type chunkWriter struct {
	grid      *grid.Grid
	chunkSize int
	progress  func(written, total int64)
}

// writeRows writes records to consecutive rows starting at startRow. It
// returns the number of rows written and whether it stopped early because
// the token was cancelled. Rows written before a cancellation or engine
// failure stay written; the caller decides what that means for the ledger.
func (w *chunkWriter) writeRows(ctx context.Context, sheet string, startRow int64, records []core.Record) (written int64, cancelled bool, err error) {
	size := w.chunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}
	total := int64(len(records))

	for off := 0; off < len(records); off += size {
		select {
		case <-ctx.Done():
			return written, true, nil
		default:
		}

		end := off + size
		if end > len(records) {
			end = len(records)
		}
		chunk := records[off:end]

		uerr := w.grid.Update(func(tx *grid.Tx) error {
			for i, rec := range chunk {
				if err := tx.SetRow(sheet, startRow+written+int64(i), rec); err != nil {
					return err
				}
			}
			return nil
		})
		if uerr != nil {
			return written, false, fmt.Errorf("engine write at row %d: %w", startRow+written, uerr)
		}
		written += int64(len(chunk))

		if w.progress != nil && total > int64(size) {
			w.progress(written, total)
		}
	}
	return written, false, nil
}
