package importer

import (
	"context"
	"errors"
	"fmt"

	"github.com/bistro-cms/menuimport/internal/models"
	"github.com/bistro-cms/menuimport/internal/store"
)

// Strategy applies a batch of mapped items to one category inside an open
// transaction. Adding a duplicate policy means adding a Strategy to the registry.
type Strategy interface {
	Policy() models.DuplicatePolicy
	Apply(ctx context.Context, tx store.Tx, categoryID string, items []models.MenuItem) (imported, skipped int, err error)
}

var registry = map[models.DuplicatePolicy]Strategy{}

func register(s Strategy) { registry[s.Policy()] = s }

func init() {
	register(updateExisting{})
	register(skipDuplicates{})
	register(failOnDuplicate{})
}

// StrategyFor returns the strategy registered for p
func StrategyFor(p models.DuplicatePolicy) (Strategy, error) {
	s, ok := registry[p]
	if !ok {
		return nil, fmt.Errorf("no strategy for duplicate policy %q", p)
	}
	return s, nil
}

// updateExisting overwrites matching names in place and inserts the rest.
type updateExisting struct{}

func (updateExisting) Policy() models.DuplicatePolicy { return models.PolicyUpdateExisting }

func (updateExisting) Apply(ctx context.Context, tx store.Tx, _ string, items []models.MenuItem) (int, int, error) {
	for _, it := range items {
		if err := tx.UpsertItem(ctx, it); err != nil {
			return 0, 0, err
		}
	}
	return len(items), 0, nil
}

// skipDuplicates leaves matching names untouched.
type skipDuplicates struct{}

func (skipDuplicates) Policy() models.DuplicatePolicy { return models.PolicySkipDuplicates }

func (skipDuplicates) Apply(ctx context.Context, tx store.Tx, _ string, items []models.MenuItem) (int, int, error) {
	var imported, skipped int
	for _, it := range items {
		ok, err := tx.InsertItemIfAbsent(ctx, it)
		if err != nil {
			return 0, 0, err
		}
		if ok {
			imported++
		} else {
			skipped++
		}
	}
	return imported, skipped, nil
}

// failOnDuplicate rejects the whole batch when any name is already taken.
type failOnDuplicate struct{}

func (failOnDuplicate) Policy() models.DuplicatePolicy { return models.PolicyFailOnDuplicate }

func (failOnDuplicate) Apply(ctx context.Context, tx store.Tx, categoryID string, items []models.MenuItem) (int, int, error) {
	names := make([]string, len(items))
	for i, it := range items {
		names[i] = it.Name
	}
	taken, err := tx.ExistingNames(ctx, categoryID, names)
	if err != nil {
		return 0, 0, err
	}
	if len(taken) > 0 {
		return 0, 0, &models.ConflictError{CategoryID: categoryID, Names: taken}
	}
	for _, it := range items {
		err := tx.InsertItem(ctx, it)
		if errors.Is(err, store.ErrDuplicate) {
			// a concurrent writer took the name after the check
			return 0, 0, &models.ConflictError{CategoryID: categoryID, Names: []string{it.Name}}
		}
		if err != nil {
			return 0, 0, err
		}
	}
	return len(items), 0, nil
}
