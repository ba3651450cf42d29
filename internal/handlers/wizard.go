package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bistro-cms/menuimport/internal/models"
	"github.com/bistro-cms/menuimport/internal/review"
	"github.com/bistro-cms/menuimport/internal/store"
	"github.com/bistro-cms/menuimport/internal/wizard"
)

func (h *Handler) HandleCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.store.ListCategories(r.Context())
	if err != nil {
		h.writeError(w, "Failed to list categories: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if categories == nil {
		categories = []models.Category{}
	}
	h.writeJSON(w, categories)
}

func (h *Handler) HandleSetCategory(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, r.PathValue("id"))
	if !ok {
		return
	}
	var request struct {
		CategoryID string `json:"category_id"`
	}
	if err := decodeJSON(w, r, &request); err != nil {
		h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if _, err := h.store.GetCategory(r.Context(), request.CategoryID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.writeStepError(w, session, models.ValidationErrors{{Field: "category_id", Message: "category does not exist"}})
			return
		}
		h.logger.Error("Failed to look up category", "category_id", request.CategoryID, "error", err)
		h.writeError(w, "Failed to look up category: "+err.Error(), http.StatusInternalServerError)
		return
	}
	h.step(w, r, func(s wizard.State) (wizard.State, error) {
		return wizard.SetCategory(s, request.CategoryID)
	})
}

type optionsRequest struct {
	ClearExisting     bool   `json:"clear_existing"`
	Featured          bool   `json:"featured"`
	SpecialScheduling bool   `json:"special_scheduling"`
	StartDate         string `json:"start_date"`
	EndDate           string `json:"end_date"`
	Policy            string `json:"policy"`
}

// toSpec parses dates given as RFC 3339 timestamps or plain YYYY-MM-DD days
func (o optionsRequest) toSpec() (models.ImportSpec, error) {
	spec := models.ImportSpec{
		ClearExisting:     o.ClearExisting,
		Featured:          o.Featured,
		SpecialScheduling: o.SpecialScheduling,
	}
	var errs models.ValidationErrors
	policy, err := models.ParsePolicy(o.Policy)
	if err != nil {
		errs = append(errs, models.ValidationError{Field: "policy", Message: err.Error()})
	}
	spec.Policy = policy

	for _, d := range []struct {
		field string
		raw   string
		dst   **time.Time
	}{
		{"start_date", o.StartDate, &spec.StartDate},
		{"end_date", o.EndDate, &spec.EndDate},
	} {
		if strings.TrimSpace(d.raw) == "" {
			continue
		}
		t, err := parseDate(d.raw)
		if err != nil {
			errs = append(errs, models.ValidationError{Field: d.field, Message: err.Error()})
			continue
		}
		*d.dst = &t
	}
	if len(errs) > 0 {
		return spec, errs
	}
	return spec, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid date %q, use YYYY-MM-DD or RFC 3339", s)
}

func (h *Handler) HandleSetOptions(w http.ResponseWriter, r *http.Request) {
	var request optionsRequest
	if err := decodeJSON(w, r, &request); err != nil {
		h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	h.step(w, r, func(s wizard.State) (wizard.State, error) {
		spec, err := request.toSpec()
		if err != nil {
			return s, err
		}
		return wizard.SetOptions(s, spec)
	})
}

func (h *Handler) HandleNext(w http.ResponseWriter, r *http.Request) {
	h.step(w, r, wizard.Next)
}

func (h *Handler) HandleBack(w http.ResponseWriter, r *http.Request) {
	h.step(w, r, wizard.Back)
}

// HandleProcess starts rasterization and extraction in the background and
// answers 202 at once. Clients poll the session for progress and outcome.
func (h *Handler) HandleProcess(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	started, err := h.sessionStore.Update(id, wizard.Begin)
	if err != nil {
		h.writeStepError(w, started, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.processTimeout)
	h.mu.Lock()
	h.running[id] = cancel
	h.mu.Unlock()

	h.wg.Add(1)
	go h.process(ctx, cancel, started)

	h.writeJSONStatus(w, http.StatusAccepted, viewOf(started))
}

func (h *Handler) process(ctx context.Context, cancel context.CancelFunc, s wizard.State) {
	defer h.wg.Done()
	defer func() {
		cancel()
		h.mu.Lock()
		delete(h.running, s.ID)
		h.mu.Unlock()
	}()

	final, out := h.pipeline.Process(ctx, s, func(p wizard.Progress) {
		_, _ = h.sessionStore.Update(s.ID, func(cur wizard.State) (wizard.State, error) {
			cur.Progress = &p
			return cur, nil
		})
	})
	if final.Notice == "" && !out.OK() {
		final.Notice = out.Message
	}

	if _, err := h.sessionStore.Update(s.ID, func(wizard.State) (wizard.State, error) { return final, nil }); err != nil {
		h.logger.Info("Session closed during processing, result dropped", "session_id", s.ID)
		return
	}
	h.logger.Info("Processing finished", "session_id", s.ID, "outcome", out.Kind, "candidates", len(final.Candidates))
}

func candidateIndex(r *http.Request) (int, error) {
	i, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", review.ErrIndex, r.PathValue("index"))
	}
	return i, nil
}

func (h *Handler) HandleEditCandidate(w http.ResponseWriter, r *http.Request) {
	var edit review.Edit
	if err := decodeJSON(w, r, &edit); err != nil {
		h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	h.step(w, r, func(s wizard.State) (wizard.State, error) {
		i, err := candidateIndex(r)
		if err != nil {
			return s, err
		}
		return wizard.EditCandidate(s, i, edit)
	})
}

func (h *Handler) HandleRemoveCandidate(w http.ResponseWriter, r *http.Request) {
	h.step(w, r, func(s wizard.State) (wizard.State, error) {
		i, err := candidateIndex(r)
		if err != nil {
			return s, err
		}
		return wizard.RemoveCandidate(s, i)
	})
}

// HandleCommit claims the session, runs the commit and stores the result.
// A failed commit returns the session to review unchanged.
func (h *Handler) HandleCommit(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	claimed, err := h.sessionStore.Update(id, func(s wizard.State) (wizard.State, error) {
		if !wizard.CanCommit(s) {
			if s.Step != wizard.StepReview || s.Busy {
				return s, claimErr(s)
			}
			return s, models.ValidationErrors{{Field: "items", Message: wizard.ErrNotReady.Error()}}
		}
		s.Busy = true
		return s, nil
	})
	if err != nil {
		h.writeStepError(w, claimed, err)
		return
	}

	claimed.Busy = false
	// a started commit runs to completion even if the client goes away
	final, out := h.pipeline.Commit(context.WithoutCancel(r.Context()), claimed)
	stored, err := h.sessionStore.Update(id, func(wizard.State) (wizard.State, error) { return final, nil })
	if err != nil {
		h.writeStepError(w, final, err)
		return
	}
	if out.OK() {
		h.logger.Info("Import committed", "session_id", id, "imported", final.Result.Imported, "skipped", final.Result.Skipped)
	}
	h.writeOutcome(w, stored, out)
}

func claimErr(s wizard.State) error {
	switch {
	case s.Busy:
		return wizard.ErrBusy
	case s.Step == wizard.StepDone:
		return wizard.ErrCommitted
	default:
		return fmt.Errorf("%w: at %s, need %s", wizard.ErrWrongStep, s.Step, wizard.StepReview)
	}
}
