// Package store defines persistence for menu categories and items.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/bistro-cms/menuimport/internal/models"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("an item with that name already exists in the category")
)

// Store is implemented by the memory, sqlite and postgres backends.
type Store interface {
	ListCategories(ctx context.Context) ([]models.Category, error)
	GetCategory(ctx context.Context, id string) (models.Category, error)
	CreateCategory(ctx context.Context, section, name string) (models.Category, error)
	ListItems(ctx context.Context, categoryID string) ([]models.MenuItem, error)

	// WithTx runs fn in one transaction. Any error from fn rolls back every write.
	WithTx(ctx context.Context, fn func(Tx) error) error

	// RefreshSpecials makes specials whose window has opened available and
	// hides specials whose window has closed.
	RefreshSpecials(ctx context.Context, now time.Time) (activated, expired int64, err error)

	Close() error
}

// Tx is the write surface used by an import. Every call is scoped to one category.
type Tx interface {
	DeleteItems(ctx context.Context, categoryID string, specialsOnly bool) (int64, error)
	ExistingNames(ctx context.Context, categoryID string, names []string) ([]string, error)
	// UpsertItem inserts or replaces the item matched by (category, name)
	UpsertItem(ctx context.Context, item models.MenuItem) error
	// InsertItemIfAbsent reports whether the item was inserted
	InsertItemIfAbsent(ctx context.Context, item models.MenuItem) (bool, error)
	// InsertItem fails with ErrDuplicate when the name is taken
	InsertItem(ctx context.Context, item models.MenuItem) error
}
