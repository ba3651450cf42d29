// Package importer writes reviewed candidates into one menu category.
package importer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bistro-cms/menuimport/internal/metrics"
	"github.com/bistro-cms/menuimport/internal/models"
	"github.com/bistro-cms/menuimport/internal/store"
)

// Result reports what a commit applied
type Result struct {
	Imported int   `json:"imported" yaml:"imported"`
	Skipped  int   `json:"skipped" yaml:"skipped"`
	Cleared  int64 `json:"cleared" yaml:"cleared"`
}

type Committer struct {
	store   store.Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*Committer)

func WithLogger(l *slog.Logger) Option { return func(c *Committer) { c.logger = l } }

func WithMetrics(m *metrics.Metrics) Option { return func(c *Committer) { c.metrics = m } }

// WithClock replaces time.Now when deciding whether a special starts in the future
func WithClock(now func() time.Time) Option { return func(c *Committer) { c.now = now } }

func New(s store.Store, opts ...Option) *Committer {
	c := &Committer{store: s, logger: slog.Default(), now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Commit applies items to spec.CategoryID in a single transaction. It
// returns models.ValidationErrors for bad input, *models.ConflictError when
// fail-on-duplicate finds a collision and *models.CommitError when the store
// fails. In every error case nothing is written.
func (c *Committer) Commit(ctx context.Context, items []models.CandidateItem, spec models.ImportSpec) (Result, error) {
	spec = spec.Normalize()
	res, err := c.commit(ctx, items, spec)
	outcome := "ok"
	var (
		verr     models.ValidationErrors
		conflict *models.ConflictError
	)
	switch {
	case err == nil:
	case errors.As(err, &verr):
		outcome = "validation"
	case errors.As(err, &conflict):
		outcome = "conflict"
	default:
		outcome = "failed"
	}
	c.metrics.Commit(string(spec.Policy), outcome, res.Imported, res.Skipped)
	return res, err
}

func (c *Committer) commit(ctx context.Context, items []models.CandidateItem, spec models.ImportSpec) (Result, error) {
	if err := spec.Validate(); err != nil {
		return Result{}, err
	}
	if len(items) == 0 {
		return Result{}, models.ValidationErrors{{Field: "items", Message: "nothing to import"}}
	}
	if _, err := c.store.GetCategory(ctx, spec.CategoryID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Result{}, models.ValidationErrors{{Field: "category_id", Message: "category does not exist"}}
		}
		return Result{}, &models.CommitError{Err: err}
	}

	strategy, err := StrategyFor(spec.Policy)
	if err != nil {
		return Result{}, models.ValidationErrors{{Field: "policy", Message: err.Error()}}
	}

	mapped, repeated, err := MapItems(items, spec, c.now())
	if err != nil {
		return Result{}, err
	}

	var res Result
	err = c.store.WithTx(ctx, func(tx store.Tx) error {
		if spec.ClearExisting {
			n, err := tx.DeleteItems(ctx, spec.CategoryID, spec.SpecialScheduling)
			if err != nil {
				return err
			}
			res.Cleared = n
		}
		imported, skipped, err := strategy.Apply(ctx, tx, spec.CategoryID, mapped)
		if err != nil {
			return err
		}
		res.Imported = imported
		res.Skipped = skipped + repeated
		return nil
	})
	if err != nil {
		var conflict *models.ConflictError
		if errors.As(err, &conflict) {
			c.logger.Info("Import rejected: duplicate names", "category", spec.CategoryID, "names", conflict.Names)
			return Result{}, err
		}
		c.logger.Error("Import rolled back", "category", spec.CategoryID, "policy", spec.Policy, "error", err)
		return Result{}, &models.CommitError{Err: err}
	}

	c.logger.Info("Import committed",
		"category", spec.CategoryID,
		"policy", spec.Policy,
		"imported", res.Imported,
		"skipped", res.Skipped,
		"cleared", res.Cleared,
		"special", spec.SpecialScheduling)
	return res, nil
}
