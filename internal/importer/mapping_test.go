package importer

import (
	"testing"
	"time"

	"github.com/bistro-cms/menuimport/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapItemsAvailability(t *testing.T) {
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	end := now.Add(72 * time.Hour)

	tests := []struct {
		name string
		spec models.ImportSpec
		want bool
	}{
		{"regular item", models.ImportSpec{CategoryID: "c"}, true},
		{"special already running", models.ImportSpec{CategoryID: "c", SpecialScheduling: true, StartDate: &past, EndDate: &end}, true},
		{"special starting later", models.ImportSpec{CategoryID: "c", SpecialScheduling: true, StartDate: &future, EndDate: &end}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := MapItems([]models.CandidateItem{{Name: "Tacos"}}, tt.spec.Normalize(), now)
			require.NoError(t, err)
			require.Len(t, out, 1)
			assert.Equal(t, tt.want, out[0].IsAvailable)
			assert.Equal(t, tt.spec.SpecialScheduling, out[0].IsSpecial)
		})
	}
}

func TestMapItemsPayload(t *testing.T) {
	items := []models.CandidateItem{
		{Name: "  Pad Thai ", Description: "rice noodles", Price: price("13.5"), Tags: []string{"spicy"}},
		{Name: "Spring Rolls", PriceIssue: "not a number: \"MP\""},
	}
	out, skipped, err := MapItems(items, models.ImportSpec{CategoryID: "cat", Featured: true}, now)
	require.NoError(t, err)
	assert.Zero(t, skipped)
	require.Len(t, out, 2)

	assert.Equal(t, "Pad Thai", out[0].Name)
	assert.Equal(t, "cat", out[0].CategoryID)
	require.NotNil(t, out[0].Description)
	assert.Equal(t, "rice noodles", *out[0].Description)
	assert.Equal(t, "13.5", out[0].Price.String())
	assert.Equal(t, []string{"spicy"}, out[0].Tags)
	assert.True(t, out[0].IsFeatured)
	assert.NotEmpty(t, out[0].ID)

	assert.Nil(t, out[1].Description)
	assert.Nil(t, out[1].Price, "rejected price is committed as absent")
	assert.Nil(t, out[1].Tags)
	assert.Equal(t, 1, out[1].SortOrder)
	assert.Nil(t, out[1].SpecialStart)
}

func TestMapItemsRejectsNegativePrice(t *testing.T) {
	_, _, err := MapItems([]models.CandidateItem{{Name: "Refund", Price: price("-2")}}, models.ImportSpec{CategoryID: "c"}, now)
	var verr models.ValidationErrors
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "items[0].price", verr[0].Field)
}
