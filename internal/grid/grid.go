// Package grid holds the in-memory tabular engine. The engine's internal
// structures are not safe for concurrent mutation, so all access goes through
// Update (exclusive) or View (shared); the sheet handles those callbacks
// receive must not escape the callback.
package grid

import (
	"fmt"
	"sync"

	"github.com/mistakeknot/rowlock/internal/core"
)

// Grid is a collection of named sheets behind a single reader-writer lock.
type Grid struct {
	mu     sync.RWMutex
	sheets map[string]*sheet
}

type sheet struct {
	rows   map[int64][]any
	maxRow int64
	maxCol int64
}

func New() *Grid {
	return &Grid{sheets: make(map[string]*sheet)}
}

// Tx is the mutation handle passed to Update callbacks.
type Tx struct {
	g *Grid
}

// RTx is the read handle passed to View callbacks.
type RTx struct {
	g *Grid
}

// Update runs fn while holding the exclusive mutation lock. One chunk of a
// chunked write maps to one Update call, so the lock is never held across an
// entire multi-chunk operation.
func (g *Grid) Update(fn func(tx *Tx) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return fn(&Tx{g: g})
}

// View runs fn while holding the shared read lock.
func (g *Grid) View(fn func(tx *RTx) error) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return fn(&RTx{g: g})
}

// SetCell writes a single cell, creating the sheet lazily. Rows and columns
// are 1-based.
func (t *Tx) SetCell(name string, row, col int64, value any) error {
	if row < 1 || col < 1 {
		return fmt.Errorf("%w: cell (%d,%d) out of range", core.ErrInvalidRequest, row, col)
	}
	sh, ok := t.g.sheets[name]
	if !ok {
		sh = &sheet{rows: make(map[int64][]any)}
		t.g.sheets[name] = sh
	}
	cells := sh.rows[row]
	for int64(len(cells)) < col {
		cells = append(cells, nil)
	}
	cells[col-1] = value
	sh.rows[row] = cells
	if row > sh.maxRow {
		sh.maxRow = row
	}
	if col > sh.maxCol {
		sh.maxCol = col
	}
	return nil
}

// SetRow writes a full record starting at column 1.
func (t *Tx) SetRow(name string, row int64, rec core.Record) error {
	for i, v := range rec {
		if err := t.SetCell(name, row, int64(i)+1, v); err != nil {
			return err
		}
	}
	return nil
}

func (r *RTx) SheetExists(name string) bool {
	_, ok := r.g.sheets[name]
	return ok
}

func (r *RTx) MaxRow(name string) int64 {
	return r.g.maxRow(name)
}

func (r *RTx) MaxCol(name string) int64 {
	if sh, ok := r.g.sheets[name]; ok {
		return sh.maxCol
	}
	return 0
}

// RowRange copies the requested rectangle out of the sheet. Rows are padded
// to the column span so every returned record has the same width. Bounds are
// clamped to the sheet's extent.
func (r *RTx) RowRange(name string, b core.Bounds) ([]core.Record, error) {
	sh, ok := r.g.sheets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrSheetNotFound, name)
	}

	startRow, endRow := b.StartRow, b.EndRow
	if startRow < 1 {
		startRow = 1
	}
	if endRow < 1 || endRow > sh.maxRow {
		endRow = sh.maxRow
	}
	startCol, endCol := b.StartCol, b.EndCol
	if startCol < 1 {
		startCol = 1
	}
	if endCol < 1 || endCol > sh.maxCol {
		endCol = sh.maxCol
	}
	if startRow > endRow || startCol > endCol {
		return nil, nil
	}

	width := endCol - startCol + 1
	out := make([]core.Record, 0, endRow-startRow+1)
	for row := startRow; row <= endRow; row++ {
		rec := make(core.Record, width)
		cells := sh.rows[row]
		for col := startCol; col <= endCol; col++ {
			if col <= int64(len(cells)) {
				rec[col-startCol] = cells[col-1]
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

func (g *Grid) maxRow(name string) int64 {
	if sh, ok := g.sheets[name]; ok {
		return sh.maxRow
	}
	return 0
}
