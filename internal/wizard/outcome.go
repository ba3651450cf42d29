package wizard

import (
	"context"
	"errors"

	"github.com/bistro-cms/menuimport/internal/models"
	"github.com/bistro-cms/menuimport/internal/raster"
)

// Kind selects the recovery offered to the operator
type Kind string

const (
	KindOK               Kind = "ok"
	KindValidation       Kind = "validation"
	KindRasterFailed     Kind = "raster_failed"
	KindExtractionFailed Kind = "extraction_failed"
	KindNothingFound     Kind = "nothing_found"
	KindConflict         Kind = "conflict"
	KindCommitFailed     Kind = "commit_failed"
	KindCanceled         Kind = "canceled"
)

// Outcome is what a stage reports back to the wizard shell
type Outcome struct {
	Kind    Kind                     `json:"kind"`
	Message string                   `json:"message,omitempty"`
	Fields  []models.ValidationError `json:"fields,omitempty"`
	// Names lists the colliding item names on a conflict
	Names []string `json:"names,omitempty"`
	Err   error    `json:"-"`
}

func (o Outcome) OK() bool { return o.Kind == KindOK }

// Classify maps an error from any stage onto the outcome taxonomy.
func Classify(err error) Outcome {
	if err == nil {
		return Outcome{Kind: KindOK}
	}
	o := Outcome{Message: err.Error(), Err: err}

	var (
		verrs    models.ValidationErrors
		verr     models.ValidationError
		rerr     *raster.Error
		xerr     *models.ExtractionError
		conflict *models.ConflictError
		cerr     *models.CommitError
	)
	switch {
	case errors.As(err, &verrs):
		o.Kind = KindValidation
		o.Fields = verrs
	case errors.As(err, &verr):
		o.Kind = KindValidation
		o.Fields = []models.ValidationError{verr}
	case errors.Is(err, models.ErrNothingFound):
		o.Kind = KindNothingFound
	case errors.As(err, &conflict):
		o.Kind = KindConflict
		o.Names = conflict.Names
	case errors.As(err, &cerr):
		o.Kind = KindCommitFailed
		o.Message = cerr.Error() + "; nothing was changed, try the commit again"
	case errors.As(err, &xerr):
		o.Kind = KindExtractionFailed
	case errors.As(err, &rerr):
		o.Kind = KindRasterFailed
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		o.Kind = KindCanceled
	default:
		o.Kind = KindValidation
		o.Fields = []models.ValidationError{{Message: err.Error()}}
	}
	return o
}
