package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/veldtkamp/clipdock/internal/bundle"
	"github.com/veldtkamp/clipdock/internal/export"
	"github.com/veldtkamp/clipdock/internal/pending"
	"github.com/veldtkamp/clipdock/internal/queue"
	"github.com/veldtkamp/clipdock/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Deps holds everything the HTTP surface needs.
type Deps struct {
	Orchestrator *export.Orchestrator
	Jobs         *queue.Processor
	Token        string
}

// NewHandler builds the chi router for the extension-facing API.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(BearerAuth(deps.Token))

	r.Post("/export/prepare", handlePrepare(deps))
	r.Post("/export/confirm", handleConfirm(deps))
	r.Get("/jobs", handleListJobs(deps))
	r.Get("/jobs/due", handleDueJobs(deps))
	r.Post("/jobs/{id}/complete", handleCompleteJob(deps))
	r.Post("/jobs/{id}/fail", handleFailJob(deps))
	r.Post("/jobs/{id}/retry", handleRetryJob(deps))
	r.Delete("/jobs/{id}", handleCancelJob(deps))
	r.Post("/jobs/clear-failed", handleClearFailed(deps))
	r.Get("/badge", handleBadge(deps))

	return r
}

type prepareRequest struct {
	Note      *bundle.RawNote `json:"note"`
	BypassPII bool            `json:"bypass_pii"`
}

func handlePrepare(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req prepareRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		res, err := deps.Orchestrator.PrepareExport(r.Context(), req.Note, req.BypassPII)
		if err != nil {
			// Only genuinely exceptional faults reach here; policy failures
			// are data inside res. Surface a generic reason, keep the detail
			// in the log.
			slog.Error("prepare export failed", "error", err)
			writeJSON(w, http.StatusInternalServerError, export.Result{Reason: export.ReasonUnexpectedError})
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

type confirmRequest struct {
	Nonce string `json:"nonce"`
}

func handleConfirm(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req confirmRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Nonce == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "nonce is required")
			return
		}

		res, err := deps.Orchestrator.Confirm(r.Context(), req.Nonce)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "no pending confirmation for nonce")
			return
		}
		if errors.Is(err, pending.ErrExpired) {
			httpError(w, http.StatusGone, "expired", "pending confirmation expired")
			return
		}
		if err != nil {
			slog.Error("confirm export failed", "error", err)
			writeJSON(w, http.StatusInternalServerError, export.Result{Reason: export.ReasonUnexpectedError})
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleListJobs(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		views, err := deps.Jobs.JobsForDisplay()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list jobs: %v", err)
			return
		}
		if views == nil {
			views = []queue.JobView{}
		}
		writeJSON(w, http.StatusOK, views)
	}
}

func handleDueJobs(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobs, err := deps.Jobs.Due()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to collect due jobs: %v", err)
			return
		}
		if jobs == nil {
			jobs = []storage.ExportJob{}
		}
		writeJSON(w, http.StatusOK, jobs)
	}
}

func handleCompleteJob(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		err := deps.Jobs.RecordCompletion(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to complete job: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
	}
}

type failRequest struct {
	Error string `json:"error"`
}

func handleFailJob(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var req failRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Error == "" {
			req.Error = "delivery failed"
		}

		job, err := deps.Jobs.RecordFailure(id, req.Error)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to record failure: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":   job.Status,
			"attempts": job.Attempts,
		})
	}
}

func handleRetryJob(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		job, err := deps.Jobs.Retry(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to retry job: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": job.Status})
	}
}

func handleCancelJob(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		err := deps.Jobs.Cancel(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to cancel job: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
	}
}

func handleClearFailed(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := deps.Jobs.ClearFailed()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to clear jobs: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"cleared": n})
	}
}

func handleBadge(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		badge, err := deps.Jobs.BadgeCounts()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to aggregate badge: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, badge)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
