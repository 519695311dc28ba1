package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"kerigma/internal/config"
	"kerigma/internal/events"
	"kerigma/internal/logging"
	"kerigma/internal/models"
	"kerigma/internal/offline"

	"github.com/rs/zerolog"
)

// Queue is the part of the offline manager exposed over HTTP.
type Queue interface {
	Pending() []models.PendingAction
	IsOnline() bool
	IsSyncing() bool
	Enqueue(ctx context.Context, actionType string, payload any) (models.PendingAction, error)
	SyncPendingActions(ctx context.Context) models.SyncResult
	ClearPendingActions(ctx context.Context) error
}

// Switch flips the connectivity flag when it is driven externally.
type Switch interface {
	SetOnline(online bool) bool
}

// EventLog returns recent lifecycle events, oldest first.
type EventLog interface {
	Recent(n int) []events.Record
}

// HTTPServer exposes the offline queue for operators and local clients.
type HTTPServer struct {
	cfg    config.APIConfig
	queue  Queue
	sw     Switch
	events EventLog
	server *http.Server
	auth   *HTTPAuth
	logger zerolog.Logger
}

// NewHTTPServer builds the server. sw may be nil when connectivity is probed,
// in which case the connectivity endpoint answers 409. history may be nil.
func NewHTTPServer(cfg config.APIConfig, queue Queue, sw Switch, history EventLog, logger *zerolog.Logger) *HTTPServer {
	srv := &HTTPServer{
		cfg:    cfg,
		queue:  queue,
		sw:     sw,
		events: history,
		auth:   NewHTTPAuth(cfg),
		logger: logging.Component(logger, "http"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", srv.handleHealth)
	mux.HandleFunc("GET /api/v1/pending", srv.handlePending)
	mux.HandleFunc("DELETE /api/v1/pending", srv.handleClear)
	mux.HandleFunc("POST /api/v1/actions", srv.handleEnqueue)
	mux.HandleFunc("POST /api/v1/sync", srv.handleSync)
	mux.HandleFunc("POST /api/v1/connectivity", srv.handleConnectivity)
	mux.HandleFunc("GET /api/v1/events", srv.handleEvents)

	handler := requestIDMiddleware(loggingMiddleware(srv.logger, srv.auth.Wrap(mux)))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      time.Minute,
	}

	return srv
}

func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Addr() string {
	return s.server.Addr
}

func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type pendingResponse struct {
	Online  bool                   `json:"online"`
	Syncing bool                   `json:"syncing"`
	Count   int                    `json:"count"`
	Actions []models.PendingAction `json:"actions"`
}

func (s *HTTPServer) handlePending(w http.ResponseWriter, _ *http.Request) {
	actions := s.queue.Pending()
	writeJSON(w, http.StatusOK, pendingResponse{
		Online:  s.queue.IsOnline(),
		Syncing: s.queue.IsSyncing(),
		Count:   len(actions),
		Actions: actions,
	})
}

func (s *HTTPServer) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.queue.ClearPendingActions(r.Context()); err != nil {
		s.logger.Error().Err(err).Str("request_id", RequestID(r.Context())).Msg("clear pending actions")
		writeError(w, http.StatusInternalServerError, "failed to clear pending actions")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type enqueueRequest struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func (s *HTTPServer) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var body enqueueRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	action, err := s.queue.Enqueue(r.Context(), body.Type, body.Payload)
	switch {
	case errors.Is(err, models.ErrEmptyActionType):
		writeError(w, http.StatusBadRequest, "type is required")
		return
	case errors.Is(err, offline.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "queue is shutting down")
		return
	case err != nil:
		s.logger.Error().Err(err).Str("request_id", RequestID(r.Context())).Msg("enqueue action")
		writeError(w, http.StatusInternalServerError, "failed to store action")
		return
	}

	writeJSON(w, http.StatusCreated, action)
}

type syncResponse struct {
	models.SyncResult
	Error string `json:"error,omitempty"`
}

func (s *HTTPServer) handleSync(w http.ResponseWriter, r *http.Request) {
	res := s.queue.SyncPendingActions(r.Context())
	resp := syncResponse{SyncResult: res}
	if res.Err != nil {
		resp.Error = res.Err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

type connectivityRequest struct {
	Online *bool `json:"online"`
}

func (s *HTTPServer) handleConnectivity(w http.ResponseWriter, r *http.Request) {
	if s.sw == nil {
		writeError(w, http.StatusConflict, "connectivity is probed, not signalled")
		return
	}

	var body connectivityRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10)).Decode(&body); err != nil || body.Online == nil {
		writeError(w, http.StatusBadRequest, "online is required")
		return
	}

	changed := s.sw.SetOnline(*body.Online)
	writeJSON(w, http.StatusOK, map[string]bool{"online": *body.Online, "changed": changed})
}

func (s *HTTPServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeJSON(w, http.StatusOK, map[string]any{"events": []events.Record{}})
		return
	}

	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	writeJSON(w, http.StatusOK, map[string]any{"events": s.events.Recent(limit)})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
