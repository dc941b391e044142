package server

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/mistakeknot/rowlock/internal/core"
)

type fixedStatus core.OperationStatus

func (f fixedStatus) Status() core.OperationStatus { return core.OperationStatus(f) }

func TestStatusEndpoint(t *testing.T) {
	srv, err := New(Config{
		Addr: "127.0.0.1:0",
		Status: fixedStatus{
			SheetRows: map[string]int64{"orders": 42},
		},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	go srv.Serve()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	resp, err := http.Get("http://" + srv.Addr() + "/api/status")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var status core.OperationStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.SheetRows["orders"] != 42 {
		t.Fatalf("snapshot = %+v", status)
	}
}

func TestStatusRejectsNonGet(t *testing.T) {
	srv, err := New(Config{Addr: "127.0.0.1:0", Status: fixedStatus{}})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	go srv.Serve()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	resp, err := http.Post("http://"+srv.Addr()+"/api/status", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", resp.StatusCode)
	}
}

func TestNewRequiresAddr(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for empty addr")
	}
}
