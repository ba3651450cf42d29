package wizard

import (
	"context"
	"errors"
	"log/slog"

	"github.com/bistro-cms/menuimport/internal/importer"
	"github.com/bistro-cms/menuimport/internal/metrics"
	"github.com/bistro-cms/menuimport/internal/models"
	"github.com/bistro-cms/menuimport/internal/raster"
	"github.com/bistro-cms/menuimport/internal/review"
)

type Rasterizer interface {
	Rasterize(ctx context.Context, files []models.SourceFile, progress raster.Progress) ([]models.PageImage, error)
}

type Extractor interface {
	Extract(ctx context.Context, pages []models.PageImage) ([]models.CandidateItem, error)
}

type Committer interface {
	Commit(ctx context.Context, items []models.CandidateItem, spec models.ImportSpec) (importer.Result, error)
}

// Pipeline runs the I/O stages of the wizard. It holds no session state.
type Pipeline struct {
	raster    Rasterizer
	extractor Extractor
	committer Committer
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewPipeline(r Rasterizer, e Extractor, c Committer, m *metrics.Metrics, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{raster: r, extractor: e, committer: c, metrics: m, logger: logger}
}

// Begin marks s busy for Process. Callers that run Process in the background
// store the returned state first so a second trigger is refused.
func Begin(s State) (State, error) {
	if err := s.at(StepOptions); err != nil {
		return s, err
	}
	if len(s.Files) == 0 {
		return s, models.ValidationErrors{{Field: "files", Message: ErrNoFiles.Error()}}
	}
	if err := s.Spec.Normalize().Validate(); err != nil {
		return s, err
	}
	s.Busy = true
	s.Notice = ""
	s.Progress = &Progress{Stage: "rasterize"}
	return s, nil
}

// Process rasterizes the files and extracts candidates. On success the
// wizard moves to review; on any failure it stays at options with no
// candidates. report, when set, receives every progress change.
func (p *Pipeline) Process(ctx context.Context, s State, report func(Progress)) (State, Outcome) {
	if !s.Busy {
		var err error
		if s, err = Begin(s); err != nil {
			return s, Classify(err)
		}
	}
	s.Candidates = nil
	finish := func(o Outcome) (State, Outcome) {
		s.Busy = false
		s.Progress = nil
		return s, o
	}
	emit := func(pr Progress) {
		if report != nil {
			report(pr)
		}
	}

	pages, err := p.raster.Rasterize(ctx, s.Files, func(done, total int) {
		emit(Progress{Stage: "rasterize", Done: done, Total: total})
	})
	if err != nil {
		var rerr *raster.Error
		if !errors.As(err, &rerr) && !errors.Is(err, context.Canceled) {
			err = &raster.Error{Err: err}
		}
		p.logger.Warn("Rasterization failed", "session", s.ID, "error", err)
		return finish(Classify(err))
	}
	p.metrics.PagesRasterized(len(pages))

	emit(Progress{Stage: "extract", Done: 0, Total: 1})
	items, err := p.extractor.Extract(ctx, pages)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			var xerr *models.ExtractionError
			if !errors.As(err, &xerr) {
				err = &models.ExtractionError{Err: err}
			}
		}
		p.logger.Warn("Extraction failed", "session", s.ID, "pages", len(pages), "error", err)
		return finish(Classify(err))
	}
	emit(Progress{Stage: "extract", Done: 1, Total: 1})

	if len(items) == 0 {
		s.Notice = models.ErrNothingFound.Error() + "; try clearer scans or fewer pages"
		return finish(Outcome{Kind: KindNothingFound, Message: s.Notice})
	}

	s.Candidates = review.List(items)
	s.Step = StepReview
	p.logger.Info("Candidates ready for review",
		"session", s.ID,
		"pages", len(pages),
		"items", len(items),
		"low_confidence", len(s.Candidates.Flagged()))
	return finish(Outcome{Kind: KindOK})
}

// Commit writes the reviewed candidates. Success ends the wizard and drops
// the uploaded files; failures leave the review untouched for another try.
func (p *Pipeline) Commit(ctx context.Context, s State) (State, Outcome) {
	if err := s.at(StepReview); err != nil {
		return s, Classify(err)
	}
	if !CanCommit(s) {
		return s, Classify(models.ValidationErrors{{Field: "items", Message: ErrNotReady.Error()}})
	}

	res, err := p.committer.Commit(ctx, s.Candidates, s.Spec)
	if err != nil {
		return s, Classify(err)
	}

	s.Result = &res
	s.Step = StepDone
	s.Files = nil
	s.Candidates = nil
	return s, Outcome{Kind: KindOK}
}
