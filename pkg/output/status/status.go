// Package status serves the rover's latest state over HTTP, for dashboards
// that poll rather than subscribe.
package status

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ericogr/conveyor-rover/pkg/config"
	"github.com/ericogr/conveyor-rover/pkg/control"
	"github.com/ericogr/conveyor-rover/pkg/output"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

const shutdownTimeout = 2 * time.Second

// Snapshot is the state reported by GET /status.
type Snapshot struct {
	Movement        control.Action `json:"movement"`
	Code            string         `json:"code,omitempty"`
	ConveyorRunning bool           `json:"conveyor_running"`
	TriggerDistance float64        `json:"trigger_distance_cm,omitempty"`
	Events          int            `json:"events"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

type StatusOutput struct {
	mu   sync.RWMutex
	snap Snapshot
	srv  *http.Server
}

// NewStatus starts an HTTP server on cfg.Listen.
func NewStatus(cfg config.StatusConfig) (output.Output, error) {
	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("status listen: %w", err)
	}
	s := &StatusOutput{}
	s.srv = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("status server: %v", err)
		}
	}()
	log.Printf("status server listening on %s", ln.Addr())
	return s, nil
}

func (s *StatusOutput) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/status", s.getStatus)
	return r
}

func (s *StatusOutput) getStatus(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, s.Snapshot())
}

func (s *StatusOutput) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

func (s *StatusOutput) Publish(e control.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch e.Kind {
	case control.EventDrive:
		s.snap.Movement = e.Action
		s.snap.Code = e.Code
	case control.EventConveyorStart:
		s.snap.ConveyorRunning = true
		s.snap.TriggerDistance = e.Distance
	case control.EventConveyorStop:
		s.snap.ConveyorRunning = false
	}
	s.snap.Events++
	s.snap.UpdatedAt = e.Timestamp
	return nil
}

func (s *StatusOutput) Close() error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
