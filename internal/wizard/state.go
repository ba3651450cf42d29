// Package wizard drives one operator through upload, category, options and
// review. State is a plain value; every step function returns a new State
// and never performs I/O. The I/O stages live on Pipeline.
package wizard

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bistro-cms/menuimport/internal/importer"
	"github.com/bistro-cms/menuimport/internal/intake"
	"github.com/bistro-cms/menuimport/internal/models"
	"github.com/bistro-cms/menuimport/internal/review"
)

type Step int

const (
	StepUpload Step = iota
	StepCategory
	StepOptions
	StepReview
	StepDone
)

var stepNames = []string{"upload", "category", "options", "review", "done"}

func (s Step) String() string {
	if s < 0 || int(s) >= len(stepNames) {
		return fmt.Sprintf("step(%d)", int(s))
	}
	return stepNames[s]
}

func (s Step) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Step) UnmarshalText(b []byte) error {
	for i, n := range stepNames {
		if n == string(b) {
			*s = Step(i)
			return nil
		}
	}
	return fmt.Errorf("unknown wizard step %q", b)
}

var (
	ErrWrongStep  = errors.New("action is not available at this step")
	ErrFirstStep  = errors.New("already at the first step")
	ErrCommitted  = errors.New("the import has been committed; start a new session")
	ErrBusy       = errors.New("processing is still running")
	ErrNotReady   = errors.New("nothing to commit")
	ErrNoFiles    = errors.New("add at least one menu file")
	ErrNoCategory = errors.New("choose a target category")
)

// Progress describes the running I/O stage, e.g. rasterize page 3 of 7
type Progress struct {
	Stage string `json:"stage"`
	Done  int    `json:"done"`
	Total int    `json:"total"`
}

type State struct {
	ID         string              `json:"id"`
	Step       Step                `json:"step"`
	Files      []models.SourceFile `json:"files"`
	Spec       models.ImportSpec   `json:"spec"`
	Candidates review.List         `json:"candidates,omitempty"`
	Busy       bool                `json:"busy"`
	Progress   *Progress           `json:"progress,omitempty"`
	// Notice carries the non-error message shown when extraction found nothing
	Notice string           `json:"notice,omitempty"`
	Result *importer.Result `json:"result,omitempty"`
}

// New starts a wizard at the upload step with the default duplicate policy.
func New(id string) State {
	return State{ID: id, Step: StepUpload, Spec: models.ImportSpec{Policy: models.PolicyUpdateExisting}}
}

func (s State) at(step Step) error {
	if s.Busy {
		return ErrBusy
	}
	if s.Step == StepDone {
		return ErrCommitted
	}
	if s.Step != step {
		return fmt.Errorf("%w: at %s, need %s", ErrWrongStep, s.Step, step)
	}
	return nil
}

// AddFiles runs intake on the candidates. Accepted files are kept even when
// some are rejected; the rejections come back as ValidationErrors.
func AddFiles(s State, candidates []intake.Candidate) (State, error) {
	if err := s.at(StepUpload); err != nil {
		return s, err
	}
	next, _, rejected := intake.AddFiles(s.Files, candidates)
	s.Files = next
	if len(rejected) == 0 {
		return s, nil
	}
	errs := make(models.ValidationErrors, len(rejected))
	for i, r := range rejected {
		errs[i] = models.ValidationError{Field: "files", Message: r.Name + ": " + r.Reason}
	}
	return s, errs
}

func RemoveFile(s State, id string) (State, error) {
	if err := s.at(StepUpload); err != nil {
		return s, err
	}
	s.Files = intake.RemoveFile(s.Files, id)
	return s, nil
}

func SetCategory(s State, categoryID string) (State, error) {
	if err := s.at(StepCategory); err != nil {
		return s, err
	}
	categoryID = strings.TrimSpace(categoryID)
	if categoryID == "" {
		return s, models.ValidationErrors{{Field: "category_id", Message: ErrNoCategory.Error()}}
	}
	s.Spec.CategoryID = categoryID
	return s, nil
}

// SetOptions stores the import options. The category chosen earlier is kept
// and special scheduling forces clear-existing.
func SetOptions(s State, spec models.ImportSpec) (State, error) {
	if err := s.at(StepOptions); err != nil {
		return s, err
	}
	spec.CategoryID = s.Spec.CategoryID
	s.Spec = spec.Normalize()
	return s, nil
}

// Next moves forward when the current step is complete. Options move to
// review only when candidates are already present; otherwise run
// Pipeline.Process. Review moves on only through Pipeline.Commit.
func Next(s State) (State, error) {
	if s.Busy {
		return s, ErrBusy
	}
	switch s.Step {
	case StepUpload:
		if len(s.Files) == 0 {
			return s, models.ValidationErrors{{Field: "files", Message: ErrNoFiles.Error()}}
		}
	case StepCategory:
		if s.Spec.CategoryID == "" {
			return s, models.ValidationErrors{{Field: "category_id", Message: ErrNoCategory.Error()}}
		}
	case StepOptions:
		if err := s.Spec.Validate(); err != nil {
			return s, err
		}
		if !s.Candidates.Ready() {
			return s, fmt.Errorf("%w: extract the menu first", ErrWrongStep)
		}
	case StepReview:
		return s, fmt.Errorf("%w: commit to finish", ErrWrongStep)
	case StepDone:
		return s, ErrCommitted
	}
	s.Step++
	s.Notice = ""
	return s, nil
}

// Back returns to the previous step. Going back to upload drops the
// candidates because the files they came from may change.
func Back(s State) (State, error) {
	if s.Busy {
		return s, ErrBusy
	}
	switch s.Step {
	case StepDone:
		return s, ErrCommitted
	case StepUpload:
		return s, ErrFirstStep
	case StepCategory:
		s.Candidates = nil
	}
	s.Step--
	s.Notice = ""
	return s, nil
}

func EditCandidate(s State, i int, e review.Edit) (State, error) {
	if err := s.at(StepReview); err != nil {
		return s, err
	}
	next, err := s.Candidates.Edit(i, e)
	if err != nil {
		return s, err
	}
	s.Candidates = next
	return s, nil
}

func RemoveCandidate(s State, i int) (State, error) {
	if err := s.at(StepReview); err != nil {
		return s, err
	}
	next, err := s.Candidates.Remove(i)
	if err != nil {
		return s, err
	}
	s.Candidates = next
	return s, nil
}

// CanCommit reports whether the commit action is enabled
func CanCommit(s State) bool {
	return s.Step == StepReview && !s.Busy && s.Candidates.Ready()
}
