// Package web exposes the device groups over HTTP: manual triggers,
// statistics, LED updates and a websocket stream of debug device frames.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"lautenbacher.net/ledtrigger/config"
	"lautenbacher.net/ledtrigger/device"
	"lautenbacher.net/ledtrigger/led"
	"lautenbacher.net/ledtrigger/trigger"
)

// Group pairs a device group with the trigger it is subscribed to.
type Group struct {
	Trigger *trigger.UpdateTrigger
	Devices *device.Group
}

// GroupStatus is the response of GET /api/groups/{group}/stats.
type GroupStatus struct {
	Group            string        `json:"group"`
	State            string        `json:"state"`
	LastUpdateMillis float64       `json:"lastUpdateMillis"`
	Updates          uint64        `json:"updates"`
	Devices          []string      `json:"devices"`
	Stats            trigger.Stats `json:"stats"`
}

type Server struct {
	cfile  string
	hub    *Hub
	groups map[string]Group
}

// NewServer creates the API for groups. cfile is the config file edited
// through /api/config; an empty cfile disables that route. hub may be
// nil if no device streams frames.
func NewServer(cfile string, hub *Hub, groups ...Group) *Server {
	s := &Server{
		cfile:  cfile,
		hub:    hub,
		groups: make(map[string]Group, len(groups)),
	}
	for _, g := range groups {
		s.groups[g.Devices.UID()] = g
	}
	return s
}

// Handler returns the routes of the API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	if s.cfile != "" {
		mux.Handle("/api/config", config.ConfigHandler(s.cfile))
	}
	mux.HandleFunc("POST /api/groups/{group}/trigger", s.handleTrigger)
	mux.HandleFunc("GET /api/groups/{group}/stats", s.handleStats)
	mux.HandleFunc("PUT /api/devices/{device}/leds", s.handleSetLeds)
	if s.hub != nil {
		mux.HandleFunc("GET /ws/frames", s.hub.HandleFramesWS)
	}
	return withCORS(mux)
}

// ListenAndServe serves the API on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server starting", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server on %s: %w", addr, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		slog.Info("HTTP server stopped")
		return nil
	}
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	g, ok := s.groups[r.PathValue("group")]
	if !ok {
		http.Error(w, "Unknown group", http.StatusNotFound)
		return
	}
	g.Trigger.TriggerUpdate()
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	g, ok := s.groups[r.PathValue("group")]
	if !ok {
		http.Error(w, "Unknown group", http.StatusNotFound)
		return
	}
	status := GroupStatus{
		Group:            g.Devices.UID(),
		State:            g.Trigger.State().String(),
		LastUpdateMillis: g.Trigger.LastUpdateTime(),
		Updates:          g.Devices.Updates(),
		Devices:          []string{},
		Stats:            g.Trigger.Stats(),
	}
	for _, d := range g.Devices.Devices() {
		status.Devices = append(status.Devices, d.UID())
	}
	writeJSON(w, status)
}

// handleSetLeds stores the LEDs in the request body on the device and
// wakes the trigger of the owning group.
func (s *Server) handleSetLeds(w http.ResponseWriter, r *http.Request) {
	uid := r.PathValue("device")
	g, dev, ok := s.findDevice(uid)
	if !ok {
		http.Error(w, "Unknown device", http.StatusNotFound)
		return
	}

	var leds []led.Led
	if err := json.NewDecoder(r.Body).Decode(&leds); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := dev.SetLeds(leds); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, device.ErrLedIndex) {
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		return
	}
	g.Trigger.TriggerUpdate()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) findDevice(uid string) (Group, device.Device, bool) {
	for _, g := range s.groups {
		if d, ok := g.Devices.Device(uid); ok {
			return g, d, true
		}
	}
	return Group{}, nil, false
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		h.ServeHTTP(w, r)
	})
}
