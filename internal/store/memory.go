package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bistro-cms/menuimport/internal/models"
	"github.com/google/uuid"
)

// Memory keeps everything in process. Transactions work on a copy that
// replaces the live data only when fn succeeds.
type Memory struct {
	mu         sync.Mutex
	categories map[string]models.Category
	items      []models.MenuItem
}

func NewMemory() *Memory {
	return &Memory{categories: make(map[string]models.Category)}
}

func (m *Memory) ListCategories(_ context.Context) ([]models.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.Category, 0, len(m.categories))
	for _, c := range m.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SectionName != out[j].SectionName {
			return out[i].SectionName < out[j].SectionName
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (m *Memory) GetCategory(_ context.Context, id string) (models.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.categories[id]
	if !ok {
		return models.Category{}, fmt.Errorf("category %s: %w", id, ErrNotFound)
	}
	return c, nil
}

func (m *Memory) CreateCategory(_ context.Context, section, name string) (models.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.categories {
		if c.SectionName == section && c.Name == name {
			return c, nil
		}
	}
	c := models.Category{ID: uuid.NewString(), Name: name, SectionName: section}
	m.categories[c.ID] = c
	return c, nil
}

func (m *Memory) ListItems(_ context.Context, categoryID string) ([]models.MenuItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.MenuItem
	for _, it := range m.items {
		if it.CategoryID == categoryID {
			out = append(out, it)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out, nil
}

func (m *Memory) WithTx(ctx context.Context, fn func(Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{items: append([]models.MenuItem(nil), m.items...)}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		return err
	}
	m.items = tx.items
	return nil
}

func (m *Memory) RefreshSpecials(_ context.Context, now time.Time) (activated, expired int64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.items {
		it := &m.items[i]
		if !it.IsSpecial || it.SpecialStart == nil || it.SpecialEnd == nil {
			continue
		}
		switch {
		case !it.IsAvailable && !it.SpecialStart.After(now) && it.SpecialEnd.After(now):
			it.IsAvailable = true
			activated++
		case it.IsAvailable && !it.SpecialEnd.After(now):
			it.IsAvailable = false
			expired++
		}
	}
	return activated, expired, nil
}

func (m *Memory) Close() error { return nil }

type memTx struct {
	items []models.MenuItem
}

func (t *memTx) find(categoryID, name string) int {
	for i, it := range t.items {
		if it.CategoryID == categoryID && it.Name == name {
			return i
		}
	}
	return -1
}

func (t *memTx) DeleteItems(_ context.Context, categoryID string, specialsOnly bool) (int64, error) {
	kept := t.items[:0:0]
	var n int64
	for _, it := range t.items {
		if it.CategoryID == categoryID && (!specialsOnly || it.IsSpecial) {
			n++
			continue
		}
		kept = append(kept, it)
	}
	t.items = kept
	return n, nil
}

func (t *memTx) ExistingNames(_ context.Context, categoryID string, names []string) ([]string, error) {
	var out []string
	for _, n := range names {
		if t.find(categoryID, n) >= 0 {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (t *memTx) UpsertItem(_ context.Context, item models.MenuItem) error {
	if i := t.find(item.CategoryID, item.Name); i >= 0 {
		item.ID = t.items[i].ID
		t.items[i] = item
		return nil
	}
	t.items = append(t.items, item)
	return nil
}

func (t *memTx) InsertItemIfAbsent(_ context.Context, item models.MenuItem) (bool, error) {
	if t.find(item.CategoryID, item.Name) >= 0 {
		return false, nil
	}
	t.items = append(t.items, item)
	return true, nil
}

func (t *memTx) InsertItem(_ context.Context, item models.MenuItem) error {
	if t.find(item.CategoryID, item.Name) >= 0 {
		return fmt.Errorf("insert %q: %w", item.Name, ErrDuplicate)
	}
	t.items = append(t.items, item)
	return nil
}
