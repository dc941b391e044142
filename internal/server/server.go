// Package server hosts the observation endpoints: the WebSocket event feed
// and a read-only status snapshot. It is not a dispatch surface; workbook
// operations are only reachable through the library API.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"

	"github.com/mistakeknot/rowlock/internal/core"
)

// StatusSource provides the point-in-time allocation snapshot served at
// /api/status.
type StatusSource interface {
	Status() core.OperationStatus
}

type Config struct {
	Addr   string
	Status StatusSource
	WSFeed http.HandlerFunc
}

type Server struct {
	http *http.Server
	ln   net.Listener
}

func New(cfg Config) (*Server, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("addr required")
	}

	mux := http.NewServeMux()
	if cfg.WSFeed != nil {
		mux.HandleFunc("/ws", cfg.WSFeed)
	}
	if cfg.Status != nil {
		mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(cfg.Status.Status())
		})
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", cfg.Addr, err)
	}
	return &Server{
		http: &http.Server{Handler: mux},
		ln:   ln,
	}, nil
}

// Addr returns the bound address, useful when the config used port 0.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Serve blocks until Shutdown is called or the listener fails.
func (s *Server) Serve() error {
	err := s.http.Serve(s.ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
