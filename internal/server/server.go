package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"tradeview/internal/model"
	"tradeview/internal/render"
	"tradeview/internal/session"
)

// broadcastInterval is the cadence at which dashboard state is pushed to
// websocket clients. It is the server-side equivalent of the dashboard's
// render tick.
const broadcastInterval = time.Second

// Server serves the dashboard API: JSON snapshots, the chart-switch
// operation, and the websocket state stream.
type Server struct {
	manager *session.Manager
	hub     *Hub
	http    *http.Server
}

// NewServer wires the routes and returns a server listening on addr once
// Start is called.
func NewServer(manager *session.Manager, addr string) *Server {
	s := &Server{manager: manager, hub: NewHub()}

	router := mux.NewRouter()
	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/chart", s.handleChart).Methods(http.MethodGet)
	api.HandleFunc("/chart.svg", s.handleChartSVG).Methods(http.MethodGet)
	api.HandleFunc("/chart/{symbol}/{interval}", s.handleSwitch).Methods(http.MethodPut)
	api.HandleFunc("/signals", s.handleSignals).Methods(http.MethodGet)
	router.HandleFunc("/ws", s.hub.serveWs)

	s.http = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	return s
}

// Start runs the hub, the broadcast loop and the HTTP listener until the
// context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go s.hub.Run(ctx)
	go s.broadcastLoop(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("http shutdown error")
		}
	}()

	log.Info().Str("addr", s.http.Addr).Msg("dashboard server listening")
	if err := s.http.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// broadcastLoop pushes the current dashboard state to all clients on a
// fixed cadence.
func (s *Server) broadcastLoop(ctx context.Context) {
	ticker := time.NewTicker(broadcastInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			payload, err := json.Marshal(s.manager.Snapshot())
			if err != nil {
				log.Error().Err(err).Msg("failed to encode dashboard state")
				continue
			}
			s.hub.Broadcast(payload)
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleChart returns the full dashboard state for initial render.
func (s *Server) handleChart(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.Snapshot())
}

// handleSwitch changes the displayed (symbol, interval) pair.
func (s *Server) handleSwitch(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	symbol := vars["symbol"]
	interval := model.Interval(vars["interval"])

	if err := s.manager.Switch(symbol, interval); err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, session.ErrInvalidPair) {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"symbol": symbol, "interval": string(interval)})
}

// snapshotLayout is the fixed geometry of the server-rendered chart image.
var snapshotLayout = render.Layout{
	Width:        960,
	Height:       540,
	PaddingTop:   24,
	PaddingLeft:  12,
	PaddingRight: 64,
	VolumeHeight: 90,
}

// handleChartSVG renders the active chart as a standalone SVG snapshot.
func (s *Server) handleChartSVG(w http.ResponseWriter, _ *http.Request) {
	current := s.manager.Current()
	if current == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no active chart session"})
		return
	}

	surface := render.NewSVGSurface(snapshotLayout.Width, snapshotLayout.Height)
	render.NewRenderer(snapshotLayout, render.DefaultTheme).Draw(current.Frame(), surface)

	w.Header().Set("Content-Type", "image/svg+xml")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(surface.Finish()); err != nil {
		log.Warn().Err(err).Msg("failed to write chart snapshot")
	}
}

// handleSignals returns only the merged signal view.
func (s *Server) handleSignals(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.Snapshot().Signals)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("failed to write response")
	}
}
