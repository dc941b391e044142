// Package cache holds oversized read results out-of-band so callers get a
// small reference key instead of a huge inline payload.
package cache

import (
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Entry is one cached payload. The stored bytes are exactly what would have
// been returned inline, so a follow-up load is byte-identical.
type Entry struct {
	Payload     []byte
	RowsRead    int
	ColumnsRead int
	ExpiresAt   time.Time
}

// Spillover is a size-triggered TTL cache. Entries are independent of
// sheets and reservations; expiry or capacity eviction is the only way an
// entry disappears besides explicit overwrite.
type Spillover struct {
	lru       *expirable.LRU[string, Entry]
	threshold int
	ttl       time.Duration
}

// New creates a Spillover cache. threshold is the serialized-size bound in
// bytes above which results spill; capacity bounds the number of live
// entries; ttl is applied to every entry.
func New(threshold, capacity int, ttl time.Duration) *Spillover {
	if capacity <= 0 {
		capacity = 64
	}
	return &Spillover{
		lru:       expirable.NewLRU[string, Entry](capacity, nil, ttl),
		threshold: threshold,
		ttl:       ttl,
	}
}

// ShouldSpill reports whether a payload of the given serialized size belongs
// in the cache rather than inline.
func (s *Spillover) ShouldSpill(size int) bool {
	return s.threshold > 0 && size > s.threshold
}

// MakeKey returns a fresh collision-resistant cache key.
func (s *Spillover) MakeKey() string {
	return "spill-" + uuid.NewString()
}

// Set stores the payload under key and returns the entry's expiry time.
func (s *Spillover) Set(key string, payload []byte, rows, cols int) time.Time {
	expires := time.Now().UTC().Add(s.ttl)
	s.lru.Add(key, Entry{
		Payload:     payload,
		RowsRead:    rows,
		ColumnsRead: cols,
		ExpiresAt:   expires,
	})
	return expires
}

// Get returns the entry for key, or false if it is absent or expired.
func (s *Spillover) Get(key string) (Entry, bool) {
	return s.lru.Get(key)
}

// Len reports the number of live entries.
func (s *Spillover) Len() int {
	return s.lru.Len()
}
