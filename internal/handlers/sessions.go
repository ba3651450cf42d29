package handlers

import (
	"net/http"

	"github.com/bistro-cms/menuimport/internal/wizard"
	"github.com/google/uuid"
)

func (h *Handler) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.sessionStore.GetAll()
	sessionList := make([]sessionView, 0, len(sessions))
	for _, session := range sessions {
		sessionList = append(sessionList, viewOf(session))
	}
	h.writeJSON(w, sessionList)
}

func (h *Handler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	session := wizard.New(uuid.NewString())
	h.sessionStore.Set(session)
	h.logger.Info("Session created", "session_id", session.ID)
	h.writeJSONStatus(w, http.StatusCreated, viewOf(session))
}

func (h *Handler) HandleSessionDetail(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, r.PathValue("id"))
	if !ok {
		return
	}
	h.writeJSON(w, viewOf(session))
}

// HandleCloseSession discards the session. A running extraction is
// canceled and its result dropped; nothing reaches the store.
func (h *Handler) HandleCloseSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := h.getSessionOrError(w, id); !ok {
		return
	}
	h.mu.Lock()
	if cancel, running := h.running[id]; running {
		cancel()
		delete(h.running, id)
	}
	h.mu.Unlock()

	h.sessionStore.Delete(id)
	h.logger.Info("Session closed", "session_id", id)
	w.WriteHeader(http.StatusNoContent)
}
