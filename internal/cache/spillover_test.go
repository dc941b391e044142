package cache

import (
	"bytes"
	"testing"
	"time"
)

func TestRoundTrip(t *testing.T) {
	s := New(100, 8, time.Minute)
	payload := bytes.Repeat([]byte("x"), 500)

	key := s.MakeKey()
	s.Set(key, payload, 10, 5)

	got, ok := s.Get(key)
	if !ok {
		t.Fatal("entry missing")
	}
	if !bytes.Equal(got.Payload, payload) {
		t.Fatal("payload not byte-identical")
	}
	if got.RowsRead != 10 || got.ColumnsRead != 5 {
		t.Fatalf("counts = %d/%d", got.RowsRead, got.ColumnsRead)
	}
}

func TestShouldSpill(t *testing.T) {
	s := New(100, 8, time.Minute)
	if s.ShouldSpill(100) {
		t.Error("size at threshold should stay inline")
	}
	if !s.ShouldSpill(101) {
		t.Error("size above threshold should spill")
	}
}

func TestExpiry(t *testing.T) {
	s := New(10, 8, 20*time.Millisecond)
	key := s.MakeKey()
	s.Set(key, []byte("payload"), 1, 1)

	time.Sleep(60 * time.Millisecond)
	if _, ok := s.Get(key); ok {
		t.Fatal("entry survived past its ttl")
	}
}

func TestUnknownKey(t *testing.T) {
	s := New(10, 8, time.Minute)
	if _, ok := s.Get("spill-unknown"); ok {
		t.Fatal("lookup of unknown key succeeded")
	}
}

func TestKeysAreUnique(t *testing.T) {
	s := New(10, 8, time.Minute)
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		k := s.MakeKey()
		if seen[k] {
			t.Fatalf("duplicate key %s", k)
		}
		seen[k] = true
	}
}
