package importer

import (
	"fmt"
	"strings"
	"time"

	"github.com/bistro-cms/menuimport/internal/models"
	"github.com/google/uuid"
)

// MapItems turns reviewed candidates into store payloads for spec. Names
// repeated inside the batch are rejected under fail-on-duplicate; other
// policies keep the first occurrence and report the rest as skipped. Sort
// positions are assigned after that pass, so they are contiguous from 0.
func MapItems(items []models.CandidateItem, spec models.ImportSpec, now time.Time) ([]models.MenuItem, int, error) {
	var errs models.ValidationErrors
	for i, c := range items {
		if strings.TrimSpace(c.Name) == "" {
			errs = append(errs, models.ValidationError{
				Field:   fmt.Sprintf("items[%d].name", i),
				Message: "name is required",
			})
		}
		if c.Price != nil && c.Price.IsNegative() {
			errs = append(errs, models.ValidationError{
				Field:   fmt.Sprintf("items[%d].price", i),
				Message: models.ErrNegativePrice.Error(),
			})
		}
	}
	if len(errs) > 0 {
		return nil, 0, errs
	}

	seen := make(map[string]bool, len(items))
	var repeated []string
	kept := make([]models.CandidateItem, 0, len(items))
	for _, c := range items {
		name := strings.TrimSpace(c.Name)
		if seen[name] {
			repeated = append(repeated, name)
			continue
		}
		seen[name] = true
		kept = append(kept, c)
	}
	if len(repeated) > 0 && spec.Policy == models.PolicyFailOnDuplicate {
		return nil, 0, &models.ConflictError{CategoryID: spec.CategoryID, Names: repeated}
	}

	available := true
	if spec.SpecialScheduling && spec.StartDate != nil && spec.StartDate.After(now) {
		available = false
	}

	out := make([]models.MenuItem, 0, len(kept))
	for i, c := range kept {
		it := models.MenuItem{
			ID:          uuid.NewString(),
			CategoryID:  spec.CategoryID,
			Name:        strings.TrimSpace(c.Name),
			Price:       c.Price,
			IsAvailable: available,
			IsFeatured:  spec.Featured,
			IsSpecial:   spec.SpecialScheduling,
			SortOrder:   i,
		}
		if d := strings.TrimSpace(c.Description); d != "" {
			it.Description = &d
		}
		if len(c.Tags) > 0 {
			it.Tags = append([]string(nil), c.Tags...)
		}
		if spec.SpecialScheduling {
			it.SpecialStart = spec.StartDate
			it.SpecialEnd = spec.EndDate
		}
		out = append(out, it)
	}
	return out, len(repeated), nil
}
