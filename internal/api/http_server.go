package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Jem1004/pklapps-v2-sub000/internal/config"
	"github.com/Jem1004/pklapps-v2-sub000/internal/models"
	"github.com/Jem1004/pklapps-v2-sub000/internal/report"
	"github.com/Jem1004/pklapps-v2-sub000/internal/service"
	"github.com/Jem1004/pklapps-v2-sub000/internal/submit"

	"github.com/rs/zerolog"
)

// HTTPServer exposes the agent's caller-facing API on loopback for
// the local UI process. It is not an outward service surface.
type HTTPServer struct {
	svc    *service.SubmissionService
	writer *report.Writer
	server *http.Server
	logger *zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, svc *service.SubmissionService, writer *report.Writer, logger *zerolog.Logger) *HTTPServer {
	mux := http.NewServeMux()
	srv := &HTTPServer{svc: svc, writer: writer, logger: logger}

	mux.HandleFunc("/api/v1/submissions", srv.handleSubmit)
	mux.HandleFunc("/api/v1/queue/count", srv.handleQueueCount)
	mux.HandleFunc("/api/v1/sync", srv.handleSync)
	mux.HandleFunc("/api/v1/credentials/suggestions", srv.handleSuggestions)
	mux.HandleFunc("/api/v1/credentials/validate", srv.handleValidate)
	mux.HandleFunc("/api/v1/status", srv.handleStatus)
	mux.HandleFunc("/api/v1/reports/queue", srv.handleQueueReport)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", cfg.Port),
		Handler:           srv.loggingMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return srv
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	if s.logger != nil {
		s.logger.Info().Str("addr", s.server.Addr).Msg("local API listening")
	}
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var sub models.Submission
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&sub); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if sub.ClientTime.IsZero() {
		sub.ClientTime = time.Now()
	}
	if sub.TimezoneLabel == "" {
		sub.TimezoneLabel = time.Now().Format("-0700")
	}

	result, err := s.svc.Submit(r.Context(), sub)
	resp := map[string]any{
		"status":  string(result.Status),
		"message": result.Message,
	}
	if result.LocalID != "" {
		resp["local_id"] = result.LocalID
	}
	if err != nil && result.Status == submit.StatusFailed {
		resp["kind"] = string(result.Kind)
		writeJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleQueueCount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	submissionType := strings.TrimSpace(r.URL.Query().Get("type"))
	if submissionType == "" {
		writeError(w, http.StatusBadRequest, "type is required")
		return
	}

	count, err := s.svc.QueueCount(r.Context(), submissionType)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to count queue")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"type": submissionType, "count": count})
}

func (s *HTTPServer) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	result, err := s.svc.SyncNow(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "sync failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"synced":    result.SyncedCount,
		"failed":    result.FailedCount,
		"remaining": result.RemainingCount,
	})
}

func (s *HTTPServer) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ownerID := strings.TrimSpace(r.URL.Query().Get("owner_id"))
	if ownerID == "" {
		writeError(w, http.StatusBadRequest, "owner_id is required")
		return
	}
	prefix := strings.TrimSpace(r.URL.Query().Get("prefix"))

	suggestions, err := s.svc.CredentialSuggestions(r.Context(), ownerID, prefix)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load suggestions")
		return
	}
	if suggestions == nil {
		suggestions = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
}

func (s *HTTPServer) handleValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	result := s.svc.ValidateCredential(body.Value)
	errs := result.Errors
	if errs == nil {
		errs = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": result.Valid, "errors": errs})
}

func (s *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	attendance, _ := s.svc.QueueCount(r.Context(), models.TypeAttendance)
	journal, _ := s.svc.QueueCount(r.Context(), models.TypeJournal)
	writeJSON(w, http.StatusOK, map[string]any{
		"connectivity": string(s.svc.Connectivity()),
		"queue": map[string]int{
			models.TypeAttendance: attendance,
			models.TypeJournal:    journal,
		},
	})
}

func (s *HTTPServer) handleQueueReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.writer == nil {
		writeError(w, http.StatusServiceUnavailable, "report writer not configured")
		return
	}

	path, err := s.writer.WriteQueueReport(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to write report")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"path": path})
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		if s.logger != nil {
			s.logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", recorder.status).
				Dur("dur", time.Since(start)).
				Msg("http request")
		}
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
