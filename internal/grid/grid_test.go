package grid

import (
	"errors"
	"testing"

	"github.com/mistakeknot/rowlock/internal/core"
)

func TestSetCellAndRowRange(t *testing.T) {
	g := New()
	err := g.Update(func(tx *Tx) error {
		if err := tx.SetCell("inventory", 1, 1, "sku"); err != nil {
			return err
		}
		if err := tx.SetCell("inventory", 2, 3, 42); err != nil {
			return err
		}
		return tx.SetRow("inventory", 3, core.Record{"a", "b", "c"})
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	err = g.View(func(tx *RTx) error {
		if got := tx.MaxRow("inventory"); got != 3 {
			t.Errorf("max row = %d, want 3", got)
		}
		if got := tx.MaxCol("inventory"); got != 3 {
			t.Errorf("max col = %d, want 3", got)
		}
		rows, err := tx.RowRange("inventory", core.Bounds{})
		if err != nil {
			return err
		}
		if len(rows) != 3 {
			t.Fatalf("rows = %d, want 3", len(rows))
		}
		if rows[0][0] != "sku" {
			t.Errorf("cell (1,1) = %v", rows[0][0])
		}
		if rows[1][2] != 42 {
			t.Errorf("cell (2,3) = %v", rows[1][2])
		}
		// Sparse cells pad to the column span.
		if rows[0][2] != nil {
			t.Errorf("cell (1,3) = %v, want nil", rows[0][2])
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestRowRangeBounds(t *testing.T) {
	g := New()
	_ = g.Update(func(tx *Tx) error {
		for row := int64(1); row <= 5; row++ {
			if err := tx.SetRow("data", row, core.Record{row, row * 10}); err != nil {
				return err
			}
		}
		return nil
	})

	err := g.View(func(tx *RTx) error {
		rows, err := tx.RowRange("data", core.Bounds{StartRow: 2, EndRow: 4, StartCol: 2, EndCol: 2})
		if err != nil {
			return err
		}
		if len(rows) != 3 {
			t.Fatalf("rows = %d, want 3", len(rows))
		}
		if rows[0][0] != int64(20) || rows[2][0] != int64(40) {
			t.Errorf("unexpected slice: %v", rows)
		}
		// End bounds past the sheet extent clamp instead of failing.
		rows, err = tx.RowRange("data", core.Bounds{StartRow: 4, EndRow: 99})
		if err != nil {
			return err
		}
		if len(rows) != 2 {
			t.Errorf("clamped rows = %d, want 2", len(rows))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestRowRangeUnknownSheet(t *testing.T) {
	g := New()
	err := g.View(func(tx *RTx) error {
		_, err := tx.RowRange("missing", core.Bounds{})
		return err
	})
	if !errors.Is(err, core.ErrSheetNotFound) {
		t.Fatalf("err = %v, want ErrSheetNotFound", err)
	}
}

func TestSetCellRejectsZeroIndex(t *testing.T) {
	g := New()
	err := g.Update(func(tx *Tx) error {
		return tx.SetCell("s", 0, 1, "x")
	})
	if !errors.Is(err, core.ErrInvalidRequest) {
		t.Fatalf("err = %v, want ErrInvalidRequest", err)
	}
}
