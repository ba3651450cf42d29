// Package sqlite is a single-file store for local runs and the CLI.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bistro-cms/menuimport/internal/models"
	"github.com/bistro-cms/menuimport/internal/store"
	"github.com/bistro-cms/menuimport/internal/store/migrations"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// timestamps are stored as UTC text so they compare lexically
const timeLayout = "2006-01-02T15:04:05Z"

type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database file and applies pending migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := path
	if strings.Contains(dsn, "?") {
		dsn += "&_pragma=foreign_keys(1)"
	} else {
		dsn += "?_pragma=foreign_keys(1)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// one writer at a time
	db.SetMaxOpenConns(1)

	if err := migrations.Up(ctx, db, "sqlite"); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// DB exposes the handle for migrations and version checks.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) ListCategories(ctx context.Context) ([]models.Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, section_name FROM menu_categories ORDER BY section_name, sort_order, name`)
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
	err := s.db.QueryRowContext(ctx, `SELECT id, name, section_name FROM menu_categories WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.SectionName)
	if errors.Is(err, sql.ErrNoRows) {
		return c, fmt.Errorf("category %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return c, fmt.Errorf("get category: %w", err)
	}
	return c, nil
}

func (s *Store) CreateCategory(ctx context.Context, section, name string) (models.Category, error) {
	c := models.Category{SectionName: section, Name: name}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO menu_categories (id, section_name, name) VALUES (?, ?, ?)
		ON CONFLICT (section_name, name) DO UPDATE SET name = excluded.name
		RETURNING id`,
		uuid.NewString(), section, name,
	).Scan(&c.ID)
	if err != nil {
		return c, fmt.Errorf("create category: %w", err)
	}
	return c, nil
}

func (s *Store) ListItems(ctx context.Context, categoryID string) ([]models.MenuItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, category_id, name, description, price, tags,
		       is_available, is_featured, is_special, special_start, special_end, sort_order
		FROM menu_items
		WHERE category_id = ?
		ORDER BY sort_order, name`, categoryID)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var out []models.MenuItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func scanItem(rows *sql.Rows) (models.MenuItem, error) {
	var (
		it                 models.MenuItem
		desc, price, start sql.NullString
		end                sql.NullString
		tags               string
	)
	if err := rows.Scan(&it.ID, &it.CategoryID, &it.Name, &desc, &price, &tags,
		&it.IsAvailable, &it.IsFeatured, &it.IsSpecial, &start, &end, &it.SortOrder); err != nil {
		return it, fmt.Errorf("scan item: %w", err)
	}
	if desc.Valid {
		it.Description = &desc.String
	}
	if price.Valid {
		d, err := decimal.NewFromString(price.String)
		if err != nil {
			return it, fmt.Errorf("item %s price: %w", it.ID, err)
		}
		it.Price = &d
	}
	if err := json.Unmarshal([]byte(tags), &it.Tags); err != nil {
		return it, fmt.Errorf("item %s tags: %w", it.ID, err)
	}
	var err error
	if it.SpecialStart, err = parseTime(start); err != nil {
		return it, err
	}
	if it.SpecialEnd, err = parseTime(end); err != nil {
		return it, err
	}
	return it, nil
}

func parseTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid {
		return nil, nil
	}
	t, err := time.Parse(timeLayout, v.String)
	if err != nil {
		return nil, fmt.Errorf("parse timestamp %q: %w", v.String, err)
	}
	return &t, nil
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

func (s *Store) WithTx(ctx context.Context, fn func(store.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&txn{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *Store) RefreshSpecials(ctx context.Context, now time.Time) (int64, int64, error) {
	ts := now.UTC().Format(timeLayout)
	on, err := s.db.ExecContext(ctx, `
		UPDATE menu_items SET is_available = 1, updated_at = ?
		WHERE is_special = 1 AND is_available = 0 AND special_start <= ? AND special_end > ?`, ts, ts, ts)
	if err != nil {
		return 0, 0, fmt.Errorf("activate specials: %w", err)
	}
	activated, _ := on.RowsAffected()

	off, err := s.db.ExecContext(ctx, `
		UPDATE menu_items SET is_available = 0, updated_at = ?
		WHERE is_special = 1 AND is_available = 1 AND special_end <= ?`, ts, ts)
	if err != nil {
		return activated, 0, fmt.Errorf("expire specials: %w", err)
	}
	expired, _ := off.RowsAffected()
	return activated, expired, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type txn struct {
	tx *sql.Tx
}

func (t *txn) DeleteItems(ctx context.Context, categoryID string, specialsOnly bool) (int64, error) {
	q := `DELETE FROM menu_items WHERE category_id = ?`
	if specialsOnly {
		q += ` AND is_special = 1`
	}
	res, err := t.tx.ExecContext(ctx, q, categoryID)
	if err != nil {
		return 0, fmt.Errorf("clear category: %w", err)
	}
	return res.RowsAffected()
}

func (t *txn) ExistingNames(ctx context.Context, categoryID string, names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(names)+1)
	args = append(args, categoryID)
	for _, n := range names {
		args = append(args, n)
	}
	marks := strings.TrimSuffix(strings.Repeat("?,", len(names)), ",")
	rows, err := t.tx.QueryContext(ctx,
		`SELECT name FROM menu_items WHERE category_id = ? AND name IN (`+marks+`) ORDER BY name`, args...)
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
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const upsertTail = `
	ON CONFLICT (category_id, name) DO UPDATE SET
		description = excluded.description,
		price = excluded.price,
		tags = excluded.tags,
		is_available = excluded.is_available,
		is_featured = excluded.is_featured,
		is_special = excluded.is_special,
		special_start = excluded.special_start,
		special_end = excluded.special_end,
		sort_order = excluded.sort_order,
		updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')`

func itemArgs(it models.MenuItem) ([]any, error) {
	var price any
	if it.Price != nil {
		price = it.Price.StringFixed(2)
	}
	tags := it.Tags
	if tags == nil {
		tags = []string{}
	}
	encoded, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("encode tags: %w", err)
	}
	var desc any
	if it.Description != nil {
		desc = *it.Description
	}
	return []any{it.ID, it.CategoryID, it.Name, desc, price, string(encoded),
		it.IsAvailable, it.IsFeatured, it.IsSpecial, formatTime(it.SpecialStart), formatTime(it.SpecialEnd), it.SortOrder}, nil
}

func (t *txn) exec(ctx context.Context, q string, it models.MenuItem) (sql.Result, error) {
	args, err := itemArgs(it)
	if err != nil {
		return nil, err
	}
	return t.tx.ExecContext(ctx, q, args...)
}

func (t *txn) UpsertItem(ctx context.Context, it models.MenuItem) error {
	if _, err := t.exec(ctx, insertItem+upsertTail, it); err != nil {
		return fmt.Errorf("upsert %q: %w", it.Name, err)
	}
	return nil
}

func (t *txn) InsertItemIfAbsent(ctx context.Context, it models.MenuItem) (bool, error) {
	res, err := t.exec(ctx, insertItem+` ON CONFLICT (category_id, name) DO NOTHING`, it)
	if err != nil {
		return false, fmt.Errorf("insert %q: %w", it.Name, err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (t *txn) InsertItem(ctx context.Context, it models.MenuItem) error {
	_, err := t.exec(ctx, insertItem, it)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("insert %q: %w", it.Name, store.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("insert %q: %w", it.Name, err)
	}
	return nil
}
