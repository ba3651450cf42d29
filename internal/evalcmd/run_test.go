package evalcmd

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/bistro-cms/menuimport/internal/eval/dataset"
	"github.com/bistro-cms/menuimport/internal/models"
	"github.com/bistro-cms/menuimport/internal/raster"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRaster struct{}

func (fakeRaster) Rasterize(_ context.Context, files []models.SourceFile, _ raster.Progress) ([]models.PageImage, error) {
	pages := make([]models.PageImage, 0, len(files))
	for _, f := range files {
		pages = append(pages, models.PageImage{SourceFileID: f.ID, Page: 1, Ordinal: len(pages), Data: f.Data})
	}
	return pages, nil
}

// fakeExtractor reads the item names back out of the page bytes, one per line
type fakeExtractor struct {
	mu    sync.Mutex
	calls int
}

func (e *fakeExtractor) Extract(_ context.Context, pages []models.PageImage) ([]models.CandidateItem, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	var items []models.CandidateItem
	for _, p := range pages {
		for _, line := range strings.Split(strings.TrimSpace(string(p.Data)), "\n") {
			if line == "fail" {
				return nil, &models.ExtractionError{Provider: "fake", Err: errors.New("model refused")}
			}
			name, price, _ := strings.Cut(line, "=")
			item := models.CandidateItem{Name: name, Confidence: 0.9}
			if price != "" {
				d := decimal.RequireFromString(price)
				item.Price = &d
			}
			items = append(items, item)
		}
	}
	return items, nil
}

func writeMenus(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lunch.pdf"), []byte("Wings=9\nNachos=8"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "drinks.png"), []byte("Lemonade=3"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.pdf"), []byte("fail"), 0o644))
	return dir
}

func records() []dataset.MenuRecord {
	return []dataset.MenuRecord{
		{ID: "lunch", Files: []string{"lunch.pdf"}, Expected: []dataset.ExpectedItem{{Name: "Wings", Price: "9"}, {Name: "Nachos", Price: "8.50"}}},
		{ID: "drinks", Files: []string{"drinks.png"}, Expected: []dataset.ExpectedItem{{Name: "Lemonade"}, {Name: "Iced Tea"}}},
		{ID: "missing", Files: []string{"nowhere.pdf"}},
		{ID: "refused", Files: []string{"broken.pdf"}},
	}
}

func TestRunnerScoresRecordsInOrder(t *testing.T) {
	dir := writeMenus(t)
	ext := &fakeExtractor{}
	runner := NewRunner(fakeRaster{}, ext, 3, 0, nil)

	results, err := runner.Run(context.Background(), dir, records())
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.Equal(t, "lunch", results[0].ID)
	require.NotNil(t, results[0].Comparison)
	assert.Equal(t, 2, len(results[0].Comparison.Matches))
	assert.Equal(t, 1, results[0].Comparison.PriceCorrect)
	assert.Equal(t, 1, results[0].Pages)

	assert.InDelta(t, 0.5, results[1].Comparison.Recall(), 1e-9)

	assert.Contains(t, results[2].Error, "nowhere.pdf")
	assert.Contains(t, results[3].Error, "model refused")
	assert.Equal(t, 3, ext.calls, "unreadable records never reach extraction")
}

func TestRunnerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewRunner(fakeRaster{}, &fakeExtractor{}, 1, 0, nil).Run(ctx, writeMenus(t), records())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReadFilesAppliesIntakeRules(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.docx")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	_, err := readFiles([]string{path})
	assert.ErrorContains(t, err, "unsupported file type")
}

type fakeApp struct{ ext *fakeExtractor }

func (fakeApp) Logger() *slog.Logger            { return slog.Default() }
func (fakeApp) Rasterizer() (Rasterizer, error) { return fakeRaster{}, nil }
func (a fakeApp) Extractor(provider, model string) (Extractor, ExtractorInfo, error) {
	return a.ext, ExtractorInfo{Provider: "fake", Model: "fake-vision:1"}, nil
}

func TestExecuteRunAndReport(t *testing.T) {
	dir := writeMenus(t)
	datasetPath := filepath.Join(dir, "labels.jsonl")
	lines := `{"id":"lunch","files":["lunch.pdf"],"expected":[{"name":"Wings","price":"9"},{"name":"Nachos","price":"8"}]}
{"id":"drinks","restaurant":"Corner Cafe","files":["drinks.png"],"expected":[{"name":"Lemonade"}]}
`
	require.NoError(t, os.WriteFile(datasetPath, []byte(lines), 0o644))
	outDir := filepath.Join(dir, "evals")

	var out bytes.Buffer
	err := executeRun(context.Background(), &out, fakeApp{ext: &fakeExtractor{}}, runOptions{
		datasetPath: datasetPath,
		outputDir:   outDir,
		sampleSize:  -1,
		concurrency: 2,
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Recall: 100.00%")

	saved, err := filepath.Glob(filepath.Join(outDir, "fake-vision_1-*.yaml"))
	require.NoError(t, err)
	require.Len(t, saved, 1)

	var report bytes.Buffer
	require.NoError(t, executeReport(&report, saved[0], "text"))
	assert.Contains(t, report.String(), "[2] drinks (Corner Cafe)")
	assert.Contains(t, report.String(), "Price Accuracy: 100.00%")

	var csvOut bytes.Buffer
	require.NoError(t, executeReport(&csvOut, saved[0], "csv"))
	assert.Len(t, strings.Split(strings.TrimSpace(csvOut.String()), "\n"), 3)

	assert.ErrorContains(t, executeReport(&report, saved[0], "xml"), "unsupported format")
}
