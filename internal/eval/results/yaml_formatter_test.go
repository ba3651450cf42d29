package results

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/bistro-cms/menuimport/internal/eval/dataset"
	"github.com/bistro-cms/menuimport/internal/eval/metrics"
	"github.com/bistro-cms/menuimport/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndLoad(t *testing.T) {
	agg := metrics.AggregateEvaluationResults([]metrics.EvaluationResult{
		{
			ID:         "harbor-lunch",
			Restaurant: "Harbor Grill",
			Pages:      2,
			Comparison: metrics.CompareMenu(
				[]dataset.ExpectedItem{{Name: "Clam Chowder"}, {Name: "Fish Tacos"}},
				[]models.CandidateItem{{Name: "Clam Chowder", Confidence: 0.9}},
			),
			ProcessingTime: 1500 * time.Millisecond,
		},
		{ID: "broken", Error: "could not read broken.pdf"},
	}, "ollama", "qwen2.5vl:7b")

	spec := Build(EvalConfig{Provider: "ollama", Model: "qwen2.5vl:7b", Timestamp: "2026-10-15_09-00-00"}, agg)
	path, err := Save(t.TempDir(), spec)
	require.NoError(t, err)
	assert.Equal(t, "qwen2.5vl_7b-2026-10-15_09-00-00.yaml", filepath.Base(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Config.SampleSize)
	assert.Equal(t, 1, loaded.Summary.Failed)
	assert.InDelta(t, 0.5, loaded.Summary.Recall, 1e-9)
	assert.Len(t, loaded.Summary.Calibration, 4)
	require.Len(t, loaded.Results, 2)
	assert.Equal(t, []string{"Fish Tacos"}, loaded.Results[0].Missing)
	assert.InDelta(t, 1.5, loaded.Results[0].Seconds, 1e-9)
	assert.Equal(t, "could not read broken.pdf", loaded.Results[1].Error)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
