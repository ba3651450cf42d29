// Package postgres is the production store backed by pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bistro-cms/menuimport/internal/models"
	"github.com/bistro-cms/menuimport/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// DB is the subset of *pgxpool.Pool the store needs; pgxmock satisfies it too.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// querier is satisfied by both DB and pgx.Tx
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type Store struct {
	db DB
}

func New(db DB) *Store {
	return &Store{db: db}
}

// Connect opens a pool and checks that the server answers.
func Connect(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

const categoryColumns = `id::text, name, section_name`

func (s *Store) ListCategories(ctx context.Context) ([]models.Category, error) {
	rows, err := s.db.Query(ctx, `SELECT `+categoryColumns+` FROM menu_categories ORDER BY section_name, sort_order, name`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []models.Category
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.SectionName); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) GetCategory(ctx context.Context, id string) (models.Category, error) {
	var c models.Category
	err := s.db.QueryRow(ctx, `SELECT `+categoryColumns+` FROM menu_categories WHERE id::text = $1`, id).
		Scan(&c.ID, &c.Name, &c.SectionName)
	if errors.Is(err, pgx.ErrNoRows) {
		return c, fmt.Errorf("category %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return c, fmt.Errorf("get category: %w", err)
	}
	return c, nil
}

func (s *Store) CreateCategory(ctx context.Context, section, name string) (models.Category, error) {
	c := models.Category{SectionName: section, Name: name}
	err := s.db.QueryRow(ctx, `
		INSERT INTO menu_categories (id, section_name, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (section_name, name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id::text`,
		uuid.NewString(), section, name,
	).Scan(&c.ID)
	if err != nil {
		return c, fmt.Errorf("create category: %w", err)
	}
	return c, nil
}

func (s *Store) ListItems(ctx context.Context, categoryID string) ([]models.MenuItem, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id::text, category_id::text, name, description, price::text, tags,
		       is_available, is_featured, is_special, special_start, special_end, sort_order
		FROM menu_items
		WHERE category_id = $1
		ORDER BY sort_order, name`, categoryID)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var out []models.MenuItem
	for rows.Next() {
		var (
			it    models.MenuItem
			price *string
		)
		if err := rows.Scan(&it.ID, &it.CategoryID, &it.Name, &it.Description, &price, &it.Tags,
			&it.IsAvailable, &it.IsFeatured, &it.IsSpecial, &it.SpecialStart, &it.SpecialEnd, &it.SortOrder); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		if price != nil {
			d, err := decimal.NewFromString(*price)
			if err != nil {
				return nil, fmt.Errorf("item %s price: %w", it.ID, err)
			}
			it.Price = &d
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *Store) WithTx(ctx context.Context, fn func(store.Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&txn{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *Store) RefreshSpecials(ctx context.Context, now time.Time) (int64, int64, error) {
	on, err := s.db.Exec(ctx, `
		UPDATE menu_items SET is_available = TRUE, updated_at = now()
		WHERE is_special AND NOT is_available AND special_start <= $1 AND special_end > $1`, now)
	if err != nil {
		return 0, 0, fmt.Errorf("activate specials: %w", err)
	}
	off, err := s.db.Exec(ctx, `
		UPDATE menu_items SET is_available = FALSE, updated_at = now()
		WHERE is_special AND is_available AND special_end <= $1`, now)
	if err != nil {
		return on.RowsAffected(), 0, fmt.Errorf("expire specials: %w", err)
	}
	return on.RowsAffected(), off.RowsAffected(), nil
}

func (s *Store) Close() error {
	s.db.Close()
	return nil
}

type txn struct {
	q querier
}

func (t *txn) DeleteItems(ctx context.Context, categoryID string, specialsOnly bool) (int64, error) {
	sql := `DELETE FROM menu_items WHERE category_id = $1`
	if specialsOnly {
		sql += ` AND is_special`
	}
	tag, err := t.q.Exec(ctx, sql, categoryID)
	if err != nil {
		return 0, fmt.Errorf("clear category: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (t *txn) ExistingNames(ctx context.Context, categoryID string, names []string) ([]string, error) {
	rows, err := t.q.Query(ctx, `SELECT name FROM menu_items WHERE category_id = $1 AND name = ANY($2) ORDER BY name`, categoryID, names)
	if err != nil {
		return nil, fmt.Errorf("find existing names: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

const insertItem = `
	INSERT INTO menu_items (id, category_id, name, description, price, tags,
	                        is_available, is_featured, is_special, special_start, special_end, sort_order)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

const upsertTail = `
	ON CONFLICT (category_id, name) DO UPDATE SET
		description = EXCLUDED.description,
		price = EXCLUDED.price,
		tags = EXCLUDED.tags,
		is_available = EXCLUDED.is_available,
		is_featured = EXCLUDED.is_featured,
		is_special = EXCLUDED.is_special,
		special_start = EXCLUDED.special_start,
		special_end = EXCLUDED.special_end,
		sort_order = EXCLUDED.sort_order,
		updated_at = now()`

func itemArgs(it models.MenuItem) []any {
	var price *string
	if it.Price != nil {
		p := it.Price.StringFixed(2)
		price = &p
	}
	tags := it.Tags
	if tags == nil {
		tags = []string{}
	}
	return []any{it.ID, it.CategoryID, it.Name, it.Description, price, tags,
		it.IsAvailable, it.IsFeatured, it.IsSpecial, it.SpecialStart, it.SpecialEnd, it.SortOrder}
}

func (t *txn) UpsertItem(ctx context.Context, it models.MenuItem) error {
	if _, err := t.q.Exec(ctx, insertItem+upsertTail, itemArgs(it)...); err != nil {
		return fmt.Errorf("upsert %q: %w", it.Name, err)
	}
	return nil
}

func (t *txn) InsertItemIfAbsent(ctx context.Context, it models.MenuItem) (bool, error) {
	tag, err := t.q.Exec(ctx, insertItem+` ON CONFLICT (category_id, name) DO NOTHING`, itemArgs(it)...)
	if err != nil {
		return false, fmt.Errorf("insert %q: %w", it.Name, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *txn) InsertItem(ctx context.Context, it models.MenuItem) error {
	_, err := t.q.Exec(ctx, insertItem, itemArgs(it)...)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("insert %q: %w", it.Name, store.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("insert %q: %w", it.Name, err)
	}
	return nil
}
