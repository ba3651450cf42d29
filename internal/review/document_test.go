package review

import (
	"bytes"
	"strings"
	"testing"

	"github.com/bistro-cms/menuimport/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentRoundTrip(t *testing.T) {
	l := append(sample(), models.CandidateItem{Name: "Oysters", PriceIssue: `price "MP" is not a number`, Confidence: 0.9})

	var buf bytes.Buffer
	require.NoError(t, WriteDocument(&buf, NewDocument(l)))
	out := buf.String()
	assert.Contains(t, out, `price: "9.50"`)
	assert.Contains(t, out, "low_confidence: true")

	doc, err := ReadDocument(&buf)
	require.NoError(t, err)
	back := doc.List()
	require.Len(t, back, 4)
	assert.Equal(t, "9.5", back[0].Price.String())
	assert.Equal(t, 0.55, back[1].Confidence)
	assert.Nil(t, back[3].Price)
	assert.NotEmpty(t, back[3].PriceIssue)
}

func TestDocumentEditsFollowReviewRules(t *testing.T) {
	in := `files: [menu.pdf]
extracted_at: 2026-10-15T09:00:00Z
items:
  - name: "  Fish Tacos "
    price: "$14"
    tags: [spicy, Spicy, " "]
    confidence: 0.7
  - name: Lobster
    price: market
    confidence: 0.9
`
	doc, err := ReadDocument(strings.NewReader(in))
	require.NoError(t, err)
	l := doc.List()
	require.Len(t, l, 2)
	assert.Equal(t, "Fish Tacos", l[0].Name)
	assert.Equal(t, "14", l[0].Price.String())
	assert.Equal(t, []string{"spicy"}, l[0].Tags)
	assert.Nil(t, l[1].Price)
	assert.NotEmpty(t, l[1].PriceIssue)
}

func TestReadDocumentRejectsUnknownFields(t *testing.T) {
	_, err := ReadDocument(strings.NewReader("items:\n  - name: Soup\n    cost: 3\n"))
	assert.Error(t, err)
}

func TestDocumentListBlankPrice(t *testing.T) {
	doc := Document{Items: []DocItem{
		{Name: "Bread Basket", Confidence: 0.95},
		{Name: "Oysters", PriceIssue: "market price", Confidence: 0.8},
	}}

	l := doc.List()
	require.Len(t, l, 2)
	assert.Nil(t, l[0].Price)
	assert.Empty(t, l[0].PriceIssue)
	assert.Equal(t, 0.95, l[0].Confidence)
	assert.Equal(t, "market price", l[1].PriceIssue)
}
