package importer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bistro-cms/menuimport/internal/models"
	"github.com/bistro-cms/menuimport/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

func price(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func setup(t *testing.T) (*store.Memory, models.Category, *Committer) {
	t.Helper()
	m := store.NewMemory()
	cat, err := m.CreateCategory(context.Background(), "Dinner", "Appetizers")
	require.NoError(t, err)
	return m, cat, New(m, WithClock(func() time.Time { return now }))
}

func seed(t *testing.T, m *store.Memory, items ...models.MenuItem) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, m.WithTx(ctx, func(tx store.Tx) error {
		for _, it := range items {
			if err := tx.InsertItem(ctx, it); err != nil {
				return err
			}
		}
		return nil
	}))
}

func names(items []models.MenuItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Name
	}
	return out
}

func TestCommitEndToEndCount(t *testing.T) {
	ctx := context.Background()
	m, cat, c := setup(t)

	items := []models.CandidateItem{
		{Name: "Wings", Price: price("12"), Confidence: 0.95},
		{Name: "Nachos", Price: price("9.5"), Confidence: 0.6},
		{Name: "Calamari", Confidence: 0.9},
		{Name: "Bruschetta", Tags: []string{"vegetarian"}, Confidence: 0.99},
	}
	res, err := c.Commit(ctx, items, models.ImportSpec{CategoryID: cat.ID})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Imported)

	stored, err := m.ListItems(ctx, cat.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Wings", "Nachos", "Calamari", "Bruschetta"}, names(stored))
	for i, it := range stored {
		assert.Equal(t, i, it.SortOrder)
		assert.True(t, it.IsAvailable)
		assert.Nil(t, it.SpecialStart)
	}
	assert.Nil(t, stored[2].Price, "missing price stays absent")
}

func TestDuplicatePolicies(t *testing.T) {
	existing := models.MenuItem{ID: "old", Name: "Wings", Price: price("10"), IsAvailable: true}
	incoming := []models.CandidateItem{
		{Name: "Wings", Price: price("14"), Confidence: 0.9},
		{Name: "Sliders", Price: price("11"), Confidence: 0.9},
	}

	tests := []struct {
		name         string
		policy       models.DuplicatePolicy
		wantErr      bool
		wantImported int
		wantSkipped  int
		wantWings    string
		wantNames    []string
	}{
		{"update existing overwrites in place", models.PolicyUpdateExisting, false, 2, 0, "14", []string{"Wings", "Sliders"}},
		{"skip duplicates leaves the record", models.PolicySkipDuplicates, false, 1, 1, "10", []string{"Wings", "Sliders"}},
		{"fail on duplicate rejects the batch", models.PolicyFailOnDuplicate, true, 0, 0, "10", []string{"Wings"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			m, cat, c := setup(t)
			e := existing
			e.CategoryID = cat.ID
			seed(t, m, e)

			res, err := c.Commit(ctx, incoming, models.ImportSpec{CategoryID: cat.ID, Policy: tt.policy})
			if tt.wantErr {
				var conflict *models.ConflictError
				require.ErrorAs(t, err, &conflict)
				assert.Equal(t, []string{"Wings"}, conflict.Names)
				assert.Contains(t, err.Error(), string(models.PolicyUpdateExisting))
				assert.Contains(t, err.Error(), string(models.PolicySkipDuplicates))
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantImported, res.Imported)
			assert.Equal(t, tt.wantSkipped, res.Skipped)

			stored, _ := m.ListItems(ctx, cat.ID)
			assert.ElementsMatch(t, tt.wantNames, names(stored))
			for _, it := range stored {
				if it.Name == "Wings" {
					assert.Equal(t, tt.wantWings, it.Price.String())
				}
			}
		})
	}
}

func TestUpdateExistingIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m, cat, c := setup(t)
	items := []models.CandidateItem{{Name: "Wings", Price: price("12"), Confidence: 1}}
	spec := models.ImportSpec{CategoryID: cat.ID, Policy: models.PolicyUpdateExisting}

	_, err := c.Commit(ctx, items, spec)
	require.NoError(t, err)
	first, _ := m.ListItems(ctx, cat.ID)

	_, err = c.Commit(ctx, items, spec)
	require.NoError(t, err)
	second, _ := m.ListItems(ctx, cat.ID)

	assert.Equal(t, first, second)
}

func TestSpecialScheduling(t *testing.T) {
	ctx := context.Background()
	m, cat, c := setup(t)
	seed(t, m,
		models.MenuItem{ID: "perm", CategoryID: cat.ID, Name: "Soup", IsAvailable: true},
		models.MenuItem{ID: "old-special", CategoryID: cat.ID, Name: "Last Week", IsSpecial: true},
	)

	start := now.Add(48 * time.Hour)
	end := start.Add(7 * 24 * time.Hour)
	res, err := c.Commit(ctx, []models.CandidateItem{{Name: "Lobster Roll", Confidence: 0.9}}, models.ImportSpec{
		CategoryID:        cat.ID,
		SpecialScheduling: true,
		StartDate:         &start,
		EndDate:           &end,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)
	assert.Equal(t, int64(1), res.Cleared, "only the previous special is cleared")

	stored, _ := m.ListItems(ctx, cat.ID)
	assert.ElementsMatch(t, []string{"Soup", "Lobster Roll"}, names(stored))
	for _, it := range stored {
		if it.Name == "Lobster Roll" {
			assert.True(t, it.IsSpecial)
			assert.False(t, it.IsAvailable, "availability waits for the start date")
			assert.Equal(t, start, *it.SpecialStart)
			assert.Equal(t, end, *it.SpecialEnd)
		}
	}
}

func TestClearExistingWholeCategory(t *testing.T) {
	ctx := context.Background()
	m, cat, c := setup(t)
	other, _ := m.CreateCategory(ctx, "Dinner", "Mains")
	seed(t, m,
		models.MenuItem{ID: "a", CategoryID: cat.ID, Name: "Soup"},
		models.MenuItem{ID: "b", CategoryID: other.ID, Name: "Steak"},
	)

	res, err := c.Commit(ctx, []models.CandidateItem{{Name: "Fries", Confidence: 1}},
		models.ImportSpec{CategoryID: cat.ID, ClearExisting: true, Featured: true})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Cleared)

	stored, _ := m.ListItems(ctx, cat.ID)
	require.Len(t, stored, 1)
	assert.True(t, stored[0].IsFeatured)

	untouched, _ := m.ListItems(ctx, other.ID)
	assert.Equal(t, []string{"Steak"}, names(untouched))
}

func TestCommitValidation(t *testing.T) {
	start := now
	tests := []struct {
		name  string
		items []models.CandidateItem
		spec  func(cat string) models.ImportSpec
		field string
	}{
		{
			name:  "missing category",
			items: []models.CandidateItem{{Name: "A"}},
			spec:  func(string) models.ImportSpec { return models.ImportSpec{} },
			field: "category_id",
		},
		{
			name:  "unknown category",
			items: []models.CandidateItem{{Name: "A"}},
			spec:  func(string) models.ImportSpec { return models.ImportSpec{CategoryID: "ghost"} },
			field: "category_id",
		},
		{
			name:  "special without end date",
			items: []models.CandidateItem{{Name: "A"}},
			spec: func(cat string) models.ImportSpec {
				return models.ImportSpec{CategoryID: cat, SpecialScheduling: true, StartDate: &start}
			},
			field: "end_date",
		},
		{
			name:  "end before start",
			items: []models.CandidateItem{{Name: "A"}},
			spec: func(cat string) models.ImportSpec {
				end := start.Add(-time.Hour)
				return models.ImportSpec{CategoryID: cat, SpecialScheduling: true, StartDate: &start, EndDate: &end}
			},
			field: "end_date",
		},
		{
			name:  "blank name",
			items: []models.CandidateItem{{Name: "A"}, {Name: "  "}},
			spec:  func(cat string) models.ImportSpec { return models.ImportSpec{CategoryID: cat} },
			field: "items[1].name",
		},
		{
			name:  "empty batch",
			items: nil,
			spec:  func(cat string) models.ImportSpec { return models.ImportSpec{CategoryID: cat} },
			field: "items",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, cat, c := setup(t)
			_, err := c.Commit(context.Background(), tt.items, tt.spec(cat.ID))
			var verr models.ValidationErrors
			require.ErrorAs(t, err, &verr)
			fields := make([]string, len(verr))
			for i, v := range verr {
				fields[i] = v.Field
			}
			assert.Contains(t, fields, tt.field)

			stored, _ := m.ListItems(context.Background(), cat.ID)
			assert.Empty(t, stored)
		})
	}
}

func TestRepeatedNamesInBatch(t *testing.T) {
	items := []models.CandidateItem{
		{Name: "Wings", Price: price("10")},
		{Name: "Soup"},
		{Name: "Wings", Price: price("12")},
	}

	t.Run("first occurrence wins", func(t *testing.T) {
		ctx := context.Background()
		m, cat, c := setup(t)
		res, err := c.Commit(ctx, items, models.ImportSpec{CategoryID: cat.ID})
		require.NoError(t, err)
		assert.Equal(t, Result{Imported: 2, Skipped: 1}, res)

		stored, _ := m.ListItems(ctx, cat.ID)
		require.Len(t, stored, 2)
		assert.Equal(t, "10", stored[0].Price.String())
		assert.Equal(t, 1, stored[1].SortOrder)
	})

	t.Run("fail on duplicate rejects", func(t *testing.T) {
		_, cat, c := setup(t)
		_, err := c.Commit(context.Background(), items, models.ImportSpec{CategoryID: cat.ID, Policy: models.PolicyFailOnDuplicate})
		var conflict *models.ConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, []string{"Wings"}, conflict.Names)
	})
}

// flakyStore fails the nth write inside a transaction.
type flakyStore struct {
	*store.Memory
	failAt int
}

func (f *flakyStore) WithTx(ctx context.Context, fn func(store.Tx) error) error {
	return f.Memory.WithTx(ctx, func(tx store.Tx) error {
		return fn(&flakyTx{Tx: tx, left: f.failAt})
	})
}

type flakyTx struct {
	store.Tx
	left int
}

func (t *flakyTx) UpsertItem(ctx context.Context, it models.MenuItem) error {
	t.left--
	if t.left == 0 {
		return errors.New("connection reset")
	}
	return t.Tx.UpsertItem(ctx, it)
}

func TestCommitFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	cat, _ := mem.CreateCategory(ctx, "Dinner", "Mains")
	seed(t, mem, models.MenuItem{ID: "x", CategoryID: cat.ID, Name: "Steak"})

	c := New(&flakyStore{Memory: mem, failAt: 2})
	_, err := c.Commit(ctx, []models.CandidateItem{{Name: "Fish"}, {Name: "Chicken"}, {Name: "Tofu"}},
		models.ImportSpec{CategoryID: cat.ID, ClearExisting: true})

	var cerr *models.CommitError
	require.ErrorAs(t, err, &cerr)
	assert.ErrorContains(t, err, "connection reset")

	stored, _ := mem.ListItems(ctx, cat.ID)
	assert.Equal(t, []string{"Steak"}, names(stored), "clear and partial writes are undone")
}

func TestStrategyRegistry(t *testing.T) {
	for _, p := range models.Policies {
		s, err := StrategyFor(p)
		require.NoError(t, err)
		assert.Equal(t, p, s.Policy())
	}
	_, err := StrategyFor("merge")
	assert.Error(t, err)
}
