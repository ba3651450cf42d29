// Package review holds the operator's editable list of extracted candidates.
// List values are never modified in place; every edit returns a new List.
package review

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bistro-cms/menuimport/internal/models"
)

var ErrIndex = errors.New("no candidate at that position")

type List []models.CandidateItem

// Edit carries the fields the operator changed. Nil fields are left alone.
type Edit struct {
	Name        *string   `json:"name,omitempty"`
	Description *string   `json:"description,omitempty"`
	Price       *string   `json:"price,omitempty"`
	Tags        *[]string `json:"tags,omitempty"`
}

// Row is a candidate as shown for review
type Row struct {
	Index         int                  `json:"index"`
	Item          models.CandidateItem `json:"item"`
	LowConfidence bool                 `json:"low_confidence"`
}

func (l List) clone() List {
	next := make(List, len(l))
	copy(next, l)
	return next
}

func (l List) check(i int) error {
	if i < 0 || i >= len(l) {
		return fmt.Errorf("%w: %d (have %d)", ErrIndex, i, len(l))
	}
	return nil
}

// Remove deletes the candidate at i
func (l List) Remove(i int) (List, error) {
	if err := l.check(i); err != nil {
		return l, err
	}
	next := make(List, 0, len(l)-1)
	next = append(next, l[:i]...)
	next = append(next, l[i+1:]...)
	return next, nil
}

// Edit applies e to the candidate at i. Content is not validated here;
// a price that cannot be used is recorded as a price issue instead.
func (l List) Edit(i int, e Edit) (List, error) {
	if err := l.check(i); err != nil {
		return l, err
	}
	next := l.clone()
	next[i] = applyEdit(next[i], e)
	return next, nil
}

func applyEdit(item models.CandidateItem, e Edit) models.CandidateItem {
	if e.Name != nil {
		item.Name = strings.TrimSpace(*e.Name)
	}
	if e.Description != nil {
		item.Description = strings.TrimSpace(*e.Description)
	}
	if e.Price != nil {
		price, err := models.ParsePrice(*e.Price)
		if err != nil {
			item.Price = nil
			item.PriceIssue = err.Error()
		} else {
			item.Price = price
			item.PriceIssue = ""
		}
	}
	if e.Tags != nil {
		item.Tags = cleanTags(*e.Tags)
	}
	return item
}

// Rows returns every candidate with its low-confidence mark
func (l List) Rows() []Row {
	rows := make([]Row, len(l))
	for i, it := range l {
		rows[i] = Row{Index: i, Item: it, LowConfidence: it.LowConfidence()}
	}
	return rows
}

// Flagged returns the positions of low-confidence candidates
func (l List) Flagged() []int {
	var idx []int
	for i, it := range l {
		if it.LowConfidence() {
			idx = append(idx, i)
		}
	}
	return idx
}

// Ready reports whether there is anything left to commit
func (l List) Ready() bool {
	return len(l) > 0
}

func cleanTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[strings.ToLower(t)] {
			continue
		}
		seen[strings.ToLower(t)] = true
		out = append(out, t)
	}
	return out
}
