// Package api exposes the sync core to the desktop UI over a local HTTP API.
//
//	GET  /api/health
//	POST /api/auth/login           {email, password}
//	POST /api/auth/logout
//	GET  /api/sync/stats
//	GET  /api/sync/pending
//	POST /api/sync/manual
//	POST /api/sync/enqueue         {type, data}
//	POST /api/sync/clear
//	GET  /api/connectivity
//	POST /api/connectivity         {online}
//	GET  /api/tools/{kind}
//	PUT  /api/tools/{kind}         raw JSON state; also queues the change
//	GET  /api/backup/export
//	POST /api/backup/import
//	GET  /ws                       notification stream
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Nyvram23/Utility-Box/internal/backup"
	"github.com/Nyvram23/Utility-Box/internal/errors"
	"github.com/Nyvram23/Utility-Box/internal/logging"
	"github.com/Nyvram23/Utility-Box/internal/models"
)

// Syncer is the orchestrator surface used by the handlers.
type Syncer interface {
	Authenticate(ctx context.Context, email, password string) (*models.AuthResult, error)
	Logout()
	ClearSyncData()
	ManualSync(ctx context.Context) *models.SyncResult
	Enqueue(kind models.Kind, payload json.RawMessage) (string, error)
	Pending() []models.QueueEntry
	Stats() models.SyncStats
	SetOnline(online bool)
}

// ToolStore reads and writes tool domain state.
type ToolStore interface {
	Read(kind models.Kind) (json.RawMessage, error)
	Write(kind models.Kind, data json.RawMessage) error
}

// Deps are the collaborators served by the router.
type Deps struct {
	Sync   Syncer
	Tools  ToolStore
	Backup *backup.Service
	// Stream serves the WebSocket notification stream. Optional.
	Stream http.Handler
}

// NewRouter builds the HTTP handler for the local API.
func NewRouter(deps Deps) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	h := &handler{deps: deps}

	r.Get("/api/health", h.health)

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/login", h.login)
		r.Post("/logout", h.logout)
	})

	r.Route("/api/sync", func(r chi.Router) {
		r.Get("/stats", h.stats)
		r.Get("/pending", h.pending)
		r.Post("/manual", h.manualSync)
		r.Post("/enqueue", h.enqueue)
		r.Post("/clear", h.clear)
	})

	r.Get("/api/connectivity", h.connectivity)
	r.Post("/api/connectivity", h.setConnectivity)

	r.Get("/api/tools/{kind}", h.readTool)
	r.Put("/api/tools/{kind}", h.writeTool)

	if deps.Backup != nil {
		r.Get("/api/backup/export", h.exportBackup)
		r.Post("/api/backup/import", h.importBackup)
	}

	if deps.Stream != nil {
		r.Handle("/ws", deps.Stream)
	}

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logging.Debug("HTTP request", map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  middleware.GetReqID(r.Context()),
		})
	})
}

// errorResponse is the body of every failed request.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("Failed to encode response", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := errors.CodeOf(err)
	writeJSON(w, statusFor(code), errorResponse{Error: string(code), Message: err.Error()})
}

func statusFor(code errors.ErrorCode) int {
	switch code {
	case errors.ErrInvalid, errors.ErrCorruptedBackup:
		return http.StatusBadRequest
	case errors.ErrInvalidCredentials, errors.ErrNotAuthenticated:
		return http.StatusUnauthorized
	case errors.ErrNotFound, errors.ErrUnknownEndpoint:
		return http.StatusNotFound
	case errors.ErrQueueFull:
		return http.StatusTooManyRequests
	case errors.ErrSyncInProgress:
		return http.StatusConflict
	case errors.ErrOffline:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
