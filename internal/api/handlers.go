package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Nyvram23/Utility-Box/internal/backup"
	"github.com/Nyvram23/Utility-Box/internal/errors"
	"github.com/Nyvram23/Utility-Box/internal/logging"
	"github.com/Nyvram23/Utility-Box/internal/models"
)

// maxBodyBytes bounds request bodies, including tool state and backups.
const maxBodyBytes = 16 << 20

type handler struct {
	deps Deps
}

func decodeBody(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v); err != nil {
		return errors.Wrap(errors.ErrInvalid, "invalid request body", err)
	}
	return nil
}

// health handles GET /api/health
func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "utilitybox-desktop",
	})
}

// =====================================================
// Auth
// =====================================================

// login handles POST /api/auth/login
func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &request); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.deps.Sync.Authenticate(r.Context(), request.Email, request.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// logout handles POST /api/auth/logout
func (h *handler) logout(w http.ResponseWriter, r *http.Request) {
	h.deps.Sync.Logout()
	w.WriteHeader(http.StatusNoContent)
}

// =====================================================
// Sync
// =====================================================

// stats handles GET /api/sync/stats
func (h *handler) stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Sync.Stats())
}

// pending handles GET /api/sync/pending
func (h *handler) pending(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Sync.Pending())
}

// manualSync handles POST /api/sync/manual. Refusals are reported in the
// result body with 200, matching what the UI shows as a warning toast.
func (h *handler) manualSync(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Sync.ManualSync(r.Context()))
}

// enqueue handles POST /api/sync/enqueue
func (h *handler) enqueue(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := decodeBody(r, &request); err != nil {
		writeError(w, err)
		return
	}

	kind, err := models.ParseKind(request.Type)
	if err != nil {
		writeError(w, errors.Wrap(errors.ErrInvalid, "invalid type", err))
		return
	}

	id, err := h.deps.Sync.Enqueue(kind, request.Data)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id})
}

// clear handles POST /api/sync/clear
func (h *handler) clear(w http.ResponseWriter, r *http.Request) {
	h.deps.Sync.ClearSyncData()
	w.WriteHeader(http.StatusNoContent)
}

// =====================================================
// Connectivity
// =====================================================

// connectivity handles GET /api/connectivity
func (h *handler) connectivity(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"online": h.deps.Sync.Stats().IsOnline})
}

// setConnectivity handles POST /api/connectivity. The UI forwards the
// browser's online/offline events here.
func (h *handler) setConnectivity(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Online *bool `json:"online"`
	}
	if err := decodeBody(r, &request); err != nil {
		writeError(w, err)
		return
	}
	if request.Online == nil {
		writeError(w, errors.New(errors.ErrInvalid, "online is required"))
		return
	}

	h.deps.Sync.SetOnline(*request.Online)
	writeJSON(w, http.StatusOK, map[string]bool{"online": *request.Online})
}

// =====================================================
// Tools
// =====================================================

func kindParam(r *http.Request) (models.Kind, error) {
	kind, err := models.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		return "", errors.Wrap(errors.ErrNotFound, "unknown tool", err)
	}
	return kind, nil
}

// readTool handles GET /api/tools/{kind}
func (h *handler) readTool(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	data, err := h.deps.Tools.Read(kind)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// writeTool handles PUT /api/tools/{kind}. The new state is saved locally
// and queued for sync.
func (h *handler) writeTool(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var data json.RawMessage
	if err := decodeBody(r, &data); err != nil {
		writeError(w, err)
		return
	}

	if err := h.deps.Tools.Write(kind, data); err != nil {
		writeError(w, err)
		return
	}

	id, err := h.deps.Sync.Enqueue(kind, data)
	if err != nil {
		// the local write stands; the change just is not queued
		writeJSON(w, http.StatusOK, map[string]string{"queued": "", "error": string(errors.CodeOf(err))})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"queued": id})
}

// =====================================================
// Backup
// =====================================================

// exportBackup handles GET /api/backup/export. The document is rendered in
// full before anything is written, so a failure is still a JSON error.
func (h *handler) exportBackup(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if _, err := h.deps.Backup.Export(&buf); err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/gzip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", backup.DefaultFileName(time.Now())))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		logging.Warn("Backup download interrupted", map[string]interface{}{"error": err.Error()})
	}
}

// importBackup handles POST /api/backup/import with the gzip document as body.
func (h *handler) importBackup(w http.ResponseWriter, r *http.Request) {
	result, err := h.deps.Backup.Import(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"imported":    result.ImportedCount,
		"skipped":     result.SkippedCount,
		"exported_at": result.ExportedAt,
	})
}
