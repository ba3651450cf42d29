package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/bistro-cms/menuimport/internal/models"
	"github.com/bistro-cms/menuimport/internal/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func q(s string) string { return regexp.QuoteMeta(s) }

func sampleItem() models.MenuItem {
	price := decimal.RequireFromString("12.5")
	desc := "Tomato, basil"
	return models.MenuItem{
		ID:          "0b8f8f43-46d1-4cf4-8d4c-7f0f3d7e0c11",
		CategoryID:  "6a1c1a5e-2f53-4c55-9a53-0d1c1f7b9e20",
		Name:        "Margherita",
		Description: &desc,
		Price:       &price,
		Tags:        []string{"vegetarian"},
		IsAvailable: true,
		SortOrder:   0,
	}
}

func TestListCategories(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(q("FROM menu_categories ORDER BY section_name")).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "section_name"}).
			AddRow("c1", "Mains", "Dinner").
			AddRow("c2", "Desserts", "Dinner"))

	cats, err := New(mock).ListCategories(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.Category{
		{ID: "c1", Name: "Mains", SectionName: "Dinner"},
		{ID: "c2", Name: "Desserts", SectionName: "Dinner"},
	}, cats)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCategoryNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(q("WHERE id::text = $1")).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err = New(mock).GetCategory(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxCommitsClearAndUpsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	item := sampleItem()

	mock.ExpectBegin()
	mock.ExpectExec(q("DELETE FROM menu_items WHERE category_id = $1 AND is_special")).
		WithArgs(item.CategoryID).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectExec(q("ON CONFLICT (category_id, name) DO UPDATE SET")).
		WithArgs(itemArgs(item)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	ctx := context.Background()
	var cleared int64
	err = New(mock).WithTx(ctx, func(tx store.Tx) error {
		n, err := tx.DeleteItems(ctx, item.CategoryID, true)
		if err != nil {
			return err
		}
		cleared = n
		return tx.UpsertItem(ctx, item)
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), cleared)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxRollsBackOnError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	item := sampleItem()

	mock.ExpectBegin()
	mock.ExpectExec(q("DELETE FROM menu_items WHERE category_id = $1")).
		WithArgs(item.CategoryID).
		WillReturnResult(pgxmock.NewResult("DELETE", 5))
	mock.ExpectExec(q("INSERT INTO menu_items")).
		WithArgs(itemArgs(item)...).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	ctx := context.Background()
	err = New(mock).WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.DeleteItems(ctx, item.CategoryID, false); err != nil {
			return err
		}
		return tx.InsertItem(ctx, item)
	})
	assert.ErrorContains(t, err, "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertItemDuplicate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	item := sampleItem()

	mock.ExpectBegin()
	mock.ExpectExec(q("INSERT INTO menu_items")).
		WithArgs(itemArgs(item)...).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value"})
	mock.ExpectRollback()

	ctx := context.Background()
	err = New(mock).WithTx(ctx, func(tx store.Tx) error {
		return tx.InsertItem(ctx, item)
	})
	assert.ErrorIs(t, err, store.ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertItemIfAbsent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	item := sampleItem()

	mock.ExpectBegin()
	mock.ExpectExec(q("ON CONFLICT (category_id, name) DO NOTHING")).
		WithArgs(itemArgs(item)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectCommit()

	ctx := context.Background()
	var inserted bool
	err = New(mock).WithTx(ctx, func(tx store.Tx) error {
		var err error
		inserted, err = tx.InsertItemIfAbsent(ctx, item)
		return err
	})
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExistingNames(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	names := []string{"Wings", "Nachos", "Soup"}

	mock.ExpectBegin()
	mock.ExpectQuery(q("AND name = ANY($2)")).
		WithArgs("cat", names).
		WillReturnRows(pgxmock.NewRows([]string{"name"}).AddRow("Nachos").AddRow("Wings"))
	mock.ExpectCommit()

	ctx := context.Background()
	var got []string
	err = New(mock).WithTx(ctx, func(tx store.Tx) error {
		var err error
		got, err = tx.ExistingNames(ctx, "cat", names)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Nachos", "Wings"}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshSpecials(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Date(2026, 11, 1, 6, 0, 0, 0, time.UTC)

	mock.ExpectExec(q("SET is_available = TRUE")).
		WithArgs(now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 4))
	mock.ExpectExec(q("SET is_available = FALSE")).
		WithArgs(now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	activated, expired, err := New(mock).RefreshSpecials(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(4), activated)
	assert.Equal(t, int64(2), expired)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestItemArgs(t *testing.T) {
	args := itemArgs(models.MenuItem{Name: "Bread"})
	require.Len(t, args, 12)
	assert.Nil(t, args[4].(*string), "no price is NULL")
	assert.Equal(t, []string{}, args[5], "tags column is NOT NULL")

	args = itemArgs(sampleItem())
	assert.Equal(t, "12.50", *args[4].(*string))
}
