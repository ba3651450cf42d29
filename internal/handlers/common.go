// Package handlers exposes the import wizard over HTTP.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/bistro-cms/menuimport/internal/review"
	"github.com/bistro-cms/menuimport/internal/storage"
	"github.com/bistro-cms/menuimport/internal/store"
	"github.com/bistro-cms/menuimport/internal/wizard"
)

type Handler struct {
	sessionStore   *storage.SessionStore
	store          store.Store
	pipeline       *wizard.Pipeline
	logger         *slog.Logger
	httpClient     *http.Client
	processTimeout time.Duration

	mu      sync.Mutex
	running map[string]context.CancelFunc
	wg      sync.WaitGroup
}

type Option func(*Handler)

// WithProcessTimeout bounds one rasterize plus extract run
func WithProcessTimeout(d time.Duration) Option {
	return func(h *Handler) { h.processTimeout = d }
}

// WithHTTPClient sets the client used to fetch menu files by URL
func WithHTTPClient(c *http.Client) Option {
	return func(h *Handler) { h.httpClient = c }
}

func WithSessionStore(s *storage.SessionStore) Option {
	return func(h *Handler) { h.sessionStore = s }
}

func New(st store.Store, pipeline *wizard.Pipeline, logger *slog.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		sessionStore:   storage.New(),
		store:          st,
		pipeline:       pipeline,
		logger:         logger,
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		processTimeout: 5 * time.Minute,
		running:        make(map[string]context.CancelFunc),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Wait blocks until background processing has finished
func (h *Handler) Wait() { h.wg.Wait() }

// Shutdown cancels background processing and waits for it to stop
func (h *Handler) Shutdown() {
	h.mu.Lock()
	for _, cancel := range h.running {
		cancel()
	}
	h.mu.Unlock()
	h.wg.Wait()
}

// Sessions exposes the session store so the server can expire idle sessions
func (h *Handler) Sessions() *storage.SessionStore { return h.sessionStore }

// Routes registers every endpoint on a new mux
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/sessions", h.HandleListSessions)
	mux.HandleFunc("POST /api/sessions", h.HandleCreateSession)
	mux.HandleFunc("GET /api/sessions/{id}", h.HandleSessionDetail)
	mux.HandleFunc("DELETE /api/sessions/{id}", h.HandleCloseSession)

	mux.HandleFunc("POST /api/sessions/{id}/files", h.HandleUpload)
	mux.HandleFunc("DELETE /api/sessions/{id}/files/{fileID}", h.HandleRemoveFile)

	mux.HandleFunc("GET /api/categories", h.HandleCategories)
	mux.HandleFunc("PUT /api/sessions/{id}/category", h.HandleSetCategory)
	mux.HandleFunc("PUT /api/sessions/{id}/options", h.HandleSetOptions)
	mux.HandleFunc("POST /api/sessions/{id}/next", h.HandleNext)
	mux.HandleFunc("POST /api/sessions/{id}/back", h.HandleBack)

	mux.HandleFunc("POST /api/sessions/{id}/process", h.HandleProcess)
	mux.HandleFunc("PATCH /api/sessions/{id}/candidates/{index}", h.HandleEditCandidate)
	mux.HandleFunc("DELETE /api/sessions/{id}/candidates/{index}", h.HandleRemoveCandidate)
	mux.HandleFunc("POST /api/sessions/{id}/commit", h.HandleCommit)

	mux.HandleFunc("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			h.logger.Error("Unable to write healthcheck", "err", err)
		}
	})
	return mux
}

// sessionView is the JSON shape of a session
type sessionView struct {
	wizard.State
	Rows      []review.Row `json:"rows,omitempty"`
	CanCommit bool         `json:"can_commit"`
}

func viewOf(s wizard.State) sessionView {
	return sessionView{State: s, Rows: s.Candidates.Rows(), CanCommit: wizard.CanCommit(s)}
}

type outcomeResponse struct {
	Outcome wizard.Outcome `json:"outcome"`
	Session sessionView    `json:"session"`
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, data any) {
	h.writeJSONStatus(w, http.StatusOK, data)
}

func (h *Handler) writeJSONStatus(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Unable to encode JSON response", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message string, code int) {
	if code >= http.StatusInternalServerError {
		h.logger.Error(message)
	} else {
		h.logger.Debug(message, "status", code)
	}
	http.Error(w, message, code)
}

// writeOutcome reports a stage result together with the session it left behind
func (h *Handler) writeOutcome(w http.ResponseWriter, s wizard.State, o wizard.Outcome) {
	h.writeJSONStatus(w, statusFor(o), outcomeResponse{Outcome: o, Session: viewOf(s)})
}

// writeStepError reports an error from a pure step function
func (h *Handler) writeStepError(w http.ResponseWriter, s wizard.State, err error) {
	if errors.Is(err, storage.ErrSessionNotFound) {
		h.writeError(w, "Session not found", http.StatusNotFound)
		return
	}
	h.writeOutcome(w, s, wizard.Classify(err))
}

func statusFor(o wizard.Outcome) int {
	switch {
	case errors.Is(o.Err, wizard.ErrWrongStep), errors.Is(o.Err, wizard.ErrBusy),
		errors.Is(o.Err, wizard.ErrCommitted), errors.Is(o.Err, wizard.ErrFirstStep):
		return http.StatusConflict
	case errors.Is(o.Err, review.ErrIndex):
		return http.StatusNotFound
	}
	switch o.Kind {
	case wizard.KindOK, wizard.KindNothingFound:
		return http.StatusOK
	case wizard.KindValidation, wizard.KindRasterFailed:
		return http.StatusUnprocessableEntity
	case wizard.KindConflict:
		return http.StatusConflict
	case wizard.KindExtractionFailed:
		return http.StatusBadGateway
	case wizard.KindCanceled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Session helpers
func (h *Handler) getSessionOrError(w http.ResponseWriter, sessionID string) (wizard.State, bool) {
	session, exists := h.sessionStore.Get(sessionID)
	if !exists {
		h.writeError(w, "Session not found", http.StatusNotFound)
		return wizard.State{}, false
	}
	return session, true
}

// step applies a pure wizard step to the stored session and writes the result
func (h *Handler) step(w http.ResponseWriter, r *http.Request, fn func(wizard.State) (wizard.State, error)) {
	id := r.PathValue("id")
	next, err := h.sessionStore.Update(id, fn)
	if err != nil {
		h.writeStepError(w, next, err)
		return
	}
	h.writeOutcome(w, next, wizard.Outcome{Kind: wizard.KindOK})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
