package core

import "time"

// ReservationStatus is the lifecycle state of a row reservation.
type ReservationStatus string

const (
	StatusActive    ReservationStatus = "active"
	StatusCompleted ReservationStatus = "completed"
	StatusExpired   ReservationStatus = "expired"
)

// Record is one row of cell values, leftmost column first.
type Record []any

// Reservation is an exclusive grant of a contiguous row range on one sheet.
// Instances handed to callers are snapshots; mutating one has no effect on
// the ledger.
type Reservation struct {
	ID             string            `json:"id"`
	AgentID        string            `json:"agent_id"`
	Sheet          string            `json:"sheet"`
	StartRow       int64             `json:"start_row"`
	EndRow         int64             `json:"end_row"`
	RowCount       int64             `json:"row_count"`
	Status         ReservationStatus `json:"status"`
	ReservedAt     time.Time         `json:"reserved_at"`
	CompletedAt    *time.Time        `json:"completed_at,omitempty"`
	RecordsWritten int64             `json:"records_written,omitempty"`
}

// IsActive reports whether the reservation still holds its range for a
// future write.
func (r Reservation) IsActive() bool {
	return r.Status == StatusActive
}

// AppendResult describes a completed (possibly cancelled-partway) append.
type AppendResult struct {
	Sheet        string `json:"sheet"`
	RowsWritten  int64  `json:"rows_written"`
	StartRow     int64  `json:"start_row"`
	EndRow       int64  `json:"end_row"`
	HeadersAdded bool   `json:"headers_added"`
	Cancelled    bool   `json:"cancelled"`
}

// WriteResult describes a successful write into a reservation.
type WriteResult struct {
	ReservationID string `json:"reservation_id"`
	Sheet         string `json:"sheet"`
	RowsWritten   int64  `json:"rows_written"`
	StartRow      int64  `json:"start_row"`
	EndRow        int64  `json:"end_row"`
}

// Bounds selects a rectangular region of a sheet. Zero fields mean "from the
// beginning" / "to the end" on the respective axis. Rows and columns are
// 1-based.
type Bounds struct {
	StartRow int64 `json:"start_row,omitempty"`
	EndRow   int64 `json:"end_row,omitempty"`
	StartCol int64 `json:"start_col,omitempty"`
	EndCol   int64 `json:"end_col,omitempty"`
}

// RowsResult is the inline form of a range read.
type RowsResult struct {
	Sheet       string   `json:"sheet"`
	Data        []Record `json:"data"`
	Headers     []string `json:"headers,omitempty"`
	RowsRead    int      `json:"rows_read"`
	ColumnsRead int      `json:"columns_read"`
}

// CacheRef is returned instead of RowsResult when the serialized result
// exceeded the spillover threshold. The full payload is retrievable by key
// until the entry expires.
type CacheRef struct {
	Key         string    `json:"cache_key"`
	RowsRead    int       `json:"rows_read"`
	ColumnsRead int       `json:"columns_read"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// OperationStatus is a point-in-time snapshot of the allocation state,
// for diagnostics.
type OperationStatus struct {
	SheetRows          map[string]int64         `json:"sheet_rows"`
	ActiveReservations map[string][]Reservation `json:"active_reservations"`
}
