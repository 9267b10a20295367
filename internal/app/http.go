package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"noteboard/api/internal/auth"
	"noteboard/api/internal/board"
	"noteboard/api/internal/identity"
	"noteboard/api/internal/search"
	"noteboard/api/internal/wire"
)

type HTTPServer struct {
	board      *board.Service
	identities *identity.Provider
	corsOrigin string
	pingPeriod time.Duration
	upgrader   websocket.Upgrader
}

func NewHTTPServer(notes *board.Service, identities *identity.Provider, corsOrigin string, pingPeriod time.Duration) *HTTPServer {
	if pingPeriod <= 0 {
		pingPeriod = 30 * time.Second
	}
	s := &HTTPServer{
		board:      notes,
		identities: identities,
		corsOrigin: corsOrigin,
		pingPeriod: pingPeriod,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *HTTPServer) Handler() http.Handler {
	r := mux.NewRouter()
	r.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	api := r.PathPrefix("/api").Subrouter()
	api.Methods(http.MethodGet, http.MethodHead).Path("/health").HandlerFunc(s.handleHealth)
	api.Methods(http.MethodGet, http.MethodHead).Path("/ready").HandlerFunc(s.handleReady)

	api.Methods(http.MethodPost).Path("/session").HandlerFunc(s.handleSessionStart)
	api.Methods(http.MethodGet).Path("/session").HandlerFunc(s.handleSessionGet)
	api.Methods(http.MethodDelete).Path("/session").HandlerFunc(s.handleSessionEnd)

	api.Methods(http.MethodGet).Path("/notes/search").HandlerFunc(s.handleSearch)
	api.Methods(http.MethodGet).Path("/notes").HandlerFunc(s.handleListNotes)
	api.Methods(http.MethodPost).Path("/notes").HandlerFunc(s.handleCreateNote)
	api.Methods(http.MethodDelete).Path("/notes/{id}").HandlerFunc(s.handleDeleteNote)

	api.Methods(http.MethodGet).Path("/ws").HandlerFunc(s.handleSync)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})
	return s.withMiddleware(r)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}

	if err := s.board.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}

	// Search falls back to the snapshot, so a sick index only degrades.
	searchStatus := "ok"
	if !s.board.SearchHealthy() {
		searchStatus = "degraded"
	}
	checks["search"] = map[string]any{"status": searchStatus, "backend": s.board.SearchBackend()}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	session, err := s.identities.Start(r.Context())
	if err != nil {
		log.Printf("app: start session: %v", err)
		writeError(w, http.StatusInternalServerError, "SESSION_FAILED", "Failed to create session", nil)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"token":     session.Token,
		"identity":  session.Identity,
		"expiresAt": session.ExpiresAt.Unix(),
	})
}

func (s *HTTPServer) handleSessionGet(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "identity": nil})
		return
	}
	who, err := s.identities.Resolve(r.Context(), token)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "identity": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"authenticated": true, "identity": who})
}

func (s *HTTPServer) handleSessionEnd(w http.ResponseWriter, r *http.Request) {
	if token := bearerToken(r); token != "" {
		if err := s.identities.Release(r.Context(), token); err != nil {
			log.Printf("app: release session: %v", err)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleListNotes(w http.ResponseWriter, r *http.Request) {
	snap, err := s.board.Snapshot(r.Context())
	if err != nil {
		writeMappedError(w, err)
		return
	}
	frame := wire.NewSnapshotFrame(snap)
	writeJSON(w, http.StatusOK, map[string]any{
		"version": frame.Version,
		"count":   frame.Count,
		"notes":   frame.Notes,
	})
}

func (s *HTTPServer) handleCreateNote(w http.ResponseWriter, r *http.Request) {
	who, ok := s.requireIdentity(w, r)
	if !ok {
		return
	}
	var body struct {
		Text string `json:"text"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	note, err := s.board.Create(r.Context(), body.Text, who)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"note": wire.FromNote(note)})
}

func (s *HTTPServer) handleDeleteNote(w http.ResponseWriter, r *http.Request) {
	who, ok := s.requireIdentity(w, r)
	if !ok {
		return
	}
	if err := s.board.Delete(r.Context(), mux.Vars(r)["id"], who); err != nil {
		writeMappedError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	query := search.Query{
		Text:   values.Get("q"),
		UserID: values.Get("userId"),
	}
	if raw := values.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeMappedError(w, domainError(http.StatusBadRequest, "INVALID_QUERY", "limit must be a non-negative integer", map[string]any{"limit": raw}))
			return
		}
		query.Limit = limit
	}
	resp, err := s.board.Search(r.Context(), query)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results": resp.Results,
		"total":   resp.Total,
		"query":   resp.Query,
		"backend": s.board.SearchBackend(),
	})
}

func (s *HTTPServer) requireIdentity(w http.ResponseWriter, r *http.Request) (identity.Identity, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return identity.Identity{}, false
	}
	who, err := s.identities.Resolve(r.Context(), token)
	if err != nil {
		writeMappedError(w, err)
		return identity.Identity{}, false
	}
	return who, true
}

func (s *HTTPServer) checkOrigin(r *http.Request) bool {
	if s.corsOrigin == "" || s.corsOrigin == "*" {
		return true
	}
	origin := r.Header.Get("Origin")
	return origin == "" || origin == s.corsOrigin
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		setCORSHeaders(w.Header(), s.corsOrigin)
		w.Header().Set("X-Request-ID", requestID)

		m := httpsnoop.CaptureMetrics(next, w, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			m.Code,
			m.Duration.Milliseconds(),
		)
	})
}

type requestIDKey struct{}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func writeMappedError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	if status == http.StatusInternalServerError {
		log.Printf("app: %v", err)
	}
	writeError(w, status, code, message, details)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	switch {
	case errors.Is(err, board.ErrEmptyText):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Note text is required", nil
	case errors.Is(err, board.ErrTextTooLong):
		return http.StatusUnprocessableEntity, "TEXT_TOO_LONG", err.Error(), map[string]any{"maxLength": board.MaxNoteLength}
	case errors.Is(err, board.ErrNotOwner):
		return http.StatusForbidden, "FORBIDDEN", "Only the note's creator may delete it", nil
	case errors.Is(err, board.ErrNoIdentity):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	case errors.Is(err, sql.ErrNoRows):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
