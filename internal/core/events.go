package core

import "time"

type EventType string

const (
	EventReservationCreated   EventType = "reservation.created"
	EventReservationCompleted EventType = "reservation.completed"
	EventReservationExpired   EventType = "reservation.expired"
	EventAppendProgress       EventType = "append.progress"
	EventAppendCompleted      EventType = "append.completed"
)

// Event is a fire-and-forget notification emitted during coordination.
// Delivery is best-effort; events are never part of an operation's return
// contract.
type Event struct {
	Type        EventType    `json:"type"`
	Sheet       string       `json:"sheet,omitempty"`
	AgentID     string       `json:"agent_id,omitempty"`
	Reservation *Reservation `json:"reservation,omitempty"`
	Progress    *Progress    `json:"progress,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Progress reports how far a chunked write has advanced.
type Progress struct {
	Written int64   `json:"written"`
	Total   int64   `json:"total"`
	Percent float64 `json:"percent"`
}
