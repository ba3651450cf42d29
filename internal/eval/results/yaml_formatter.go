// Package results stores evaluation runs as YAML under evals/.
package results

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bistro-cms/menuimport/internal/eval/metrics"
	"gopkg.in/yaml.v3"
)

// EvalConfig is the configuration section of the eval YAML
type EvalConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	DatasetPath string  `yaml:"datasetpath"`
	SampleSize  int     `yaml:"samplesize"`
	Concurrency int     `yaml:"concurrency"`
	Timestamp   string  `yaml:"timestamp"`
}

// EvalSummary holds the pooled numbers of a run
type EvalSummary struct {
	Records       int           `yaml:"records"`
	Failed        int           `yaml:"failed"`
	Expected      int           `yaml:"expected"`
	Extracted     int           `yaml:"extracted"`
	Matched       int           `yaml:"matched"`
	Precision     float64       `yaml:"precision"`
	Recall        float64       `yaml:"recall"`
	F1            float64       `yaml:"f1"`
	MeanF1        float64       `yaml:"meanf1"`
	PriceAccuracy float64       `yaml:"priceaccuracy"`
	AverageTime   time.Duration `yaml:"averagetime"`
	Calibration   []Calibration `yaml:"calibration"`
}

// Calibration is one confidence band
type Calibration struct {
	Band     string  `yaml:"band"`
	Items    int     `yaml:"items"`
	Accuracy float64 `yaml:"accuracy"`
}

// EvalResult is a single record's outcome
type EvalResult struct {
	Identifier    string   `yaml:"identifier"`
	Restaurant    string   `yaml:"restaurant,omitempty"`
	Pages         int      `yaml:"pages"`
	Error         string   `yaml:"error,omitempty"`
	Precision     float64  `yaml:"precision"`
	Recall        float64  `yaml:"recall"`
	PriceAccuracy float64  `yaml:"priceaccuracy"`
	Missing       []string `yaml:"missing,omitempty"`
	Extra         []string `yaml:"extra,omitempty"`
	Seconds       float64  `yaml:"seconds"`
}

// EvalSpec is the complete saved evaluation
type EvalSpec struct {
	Config  EvalConfig   `yaml:"config"`
	Summary EvalSummary  `yaml:"summary"`
	Results []EvalResult `yaml:"results"`
}

// Build converts aggregated results into the saved form
func Build(cfg EvalConfig, agg *metrics.AggregateResults) EvalSpec {
	if cfg.Timestamp == "" {
		cfg.Timestamp = agg.EvaluationDate.Format("2006-01-02_15-04-05")
	}
	cfg.SampleSize = agg.SampleSize

	spec := EvalSpec{
		Config: cfg,
		Summary: EvalSummary{
			Records:       agg.TotalRecords,
			Failed:        agg.FailureCount,
			Expected:      agg.Expected,
			Extracted:     agg.Extracted,
			Matched:       agg.Matched,
			Precision:     agg.Precision,
			Recall:        agg.Recall,
			F1:            agg.F1,
			MeanF1:        agg.MeanF1,
			PriceAccuracy: agg.PriceAccuracy,
			AverageTime:   agg.AverageProcessingTime,
		},
		Results: make([]EvalResult, 0, len(agg.Results)),
	}
	for _, b := range agg.Calibration {
		spec.Summary.Calibration = append(spec.Summary.Calibration, Calibration{
			Band:     fmt.Sprintf("%.2f-%.2f", b.Low, b.High),
			Items:    b.Count,
			Accuracy: b.Accuracy(),
		})
	}

	for _, r := range agg.Results {
		res := EvalResult{
			Identifier: r.ID,
			Restaurant: r.Restaurant,
			Pages:      r.Pages,
			Error:      r.Error,
			Seconds:    r.ProcessingTime.Seconds(),
		}
		if r.Comparison != nil {
			res.Precision = r.Comparison.Precision()
			res.Recall = r.Comparison.Recall()
			res.PriceAccuracy = r.Comparison.PriceAccuracy()
			res.Missing = r.Comparison.Missing
			res.Extra = r.Comparison.Extra
		}
		spec.Results = append(spec.Results, res)
	}
	return spec
}

// Save writes spec to dir/<model>-<timestamp>.yaml and returns the path
func Save(dir string, spec EvalSpec) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s directory: %w", dir, err)
	}

	// model names such as qwen2.5vl:7b carry characters awkward in file names
	model := strings.NewReplacer("/", "_", ":", "_", " ", "_").Replace(spec.Config.Model)
	filename := filepath.Join(dir, fmt.Sprintf("%s-%s.yaml", model, spec.Config.Timestamp))

	data, err := yaml.Marshal(&spec)
	if err != nil {
		return "", fmt.Errorf("failed to marshal YAML: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write YAML file: %w", err)
	}
	return filename, nil
}

// Load reads a saved evaluation
func Load(path string) (*EvalSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read results: %w", err)
	}
	var spec EvalSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse results %s: %w", path, err)
	}
	return &spec, nil
}
