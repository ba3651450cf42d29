package evalcmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/bistro-cms/menuimport/internal/eval/dataset"
	"github.com/bistro-cms/menuimport/internal/eval/metrics"
	"github.com/bistro-cms/menuimport/internal/eval/results"
	"github.com/bistro-cms/menuimport/internal/intake"
	"github.com/bistro-cms/menuimport/internal/models"
	"github.com/bistro-cms/menuimport/internal/raster"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

type Rasterizer interface {
	Rasterize(ctx context.Context, files []models.SourceFile, progress raster.Progress) ([]models.PageImage, error)
}

type Extractor interface {
	Extract(ctx context.Context, pages []models.PageImage) ([]models.CandidateItem, error)
}

// Runner drives labelled records through rasterization and extraction
type Runner struct {
	raster      Rasterizer
	extractor   Extractor
	limiter     *rate.Limiter
	concurrency int
	logger      *slog.Logger
}

// NewRunner builds a runner. perMinute caps extraction calls; 0 or less means unlimited.
func NewRunner(r Rasterizer, e Extractor, concurrency int, perMinute float64, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if concurrency < 1 {
		concurrency = 1
	}
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Limit(perMinute / 60)
	}
	return &Runner{
		raster:      r,
		extractor:   e,
		limiter:     rate.NewLimiter(limit, 1),
		concurrency: concurrency,
		logger:      logger,
	}
}

// Run evaluates every record and returns results in dataset order. A record
// that fails is reported in its result; only cancellation stops the run.
func (r *Runner) Run(ctx context.Context, dir string, records []dataset.MenuRecord) ([]metrics.EvaluationResult, error) {
	results := make([]metrics.EvaluationResult, len(records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, record := range records {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r.logger.Info("Processing record", "id", record.ID, "progress", fmt.Sprintf("%d/%d", i+1, len(records)))
			results[i] = r.processRecord(gctx, dir, record)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, ctx.Err()
}

func (r *Runner) processRecord(ctx context.Context, dir string, record dataset.MenuRecord) metrics.EvaluationResult {
	start := time.Now()
	result := metrics.EvaluationResult{
		ID:         record.ID,
		Restaurant: record.Restaurant,
	}
	fail := func(err error) metrics.EvaluationResult {
		result.Error = err.Error()
		result.ProcessingTime = time.Since(start)
		r.logger.Warn("Record failed", "id", record.ID, "error", err)
		return result
	}

	files, err := readFiles(record.ResolveFiles(dir))
	if err != nil {
		return fail(err)
	}

	pages, err := r.raster.Rasterize(ctx, files, nil)
	if err != nil {
		return fail(err)
	}
	result.Pages = len(pages)

	if err := r.limiter.Wait(ctx); err != nil {
		return fail(err)
	}
	items, err := r.extractor.Extract(ctx, pages)
	if err != nil {
		return fail(err)
	}

	result.Extracted = items
	result.Comparison = metrics.CompareMenu(record.Expected, items)
	result.ProcessingTime = time.Since(start)

	r.logger.Info("Record scored",
		"id", record.ID,
		"pages", result.Pages,
		"items", len(items),
		"recall", fmt.Sprintf("%.2f", result.Comparison.Recall()),
		"precision", fmt.Sprintf("%.2f", result.Comparison.Precision()),
	)
	return result
}

// readFiles applies the same intake rules the wizard uses for uploads
func readFiles(paths []string) ([]models.SourceFile, error) {
	candidates := make([]intake.Candidate, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", p, err)
		}
		name := filepath.Base(p)
		candidates = append(candidates, intake.Candidate{
			Name: name,
			Kind: intake.KindFromName(name),
			Size: int64(len(data)),
			Data: data,
		})
	}
	_, accepted, rejected := intake.AddFiles(nil, candidates)
	if len(rejected) > 0 {
		return nil, fmt.Errorf("%s: %s", rejected[0].Name, rejected[0].Reason)
	}
	return accepted, nil
}

type runOptions struct {
	datasetPath string
	outputDir   string
	sampleSize  int
	provider    string
	model       string
	concurrency int
	perMinute   float64
}

func executeRun(ctx context.Context, w io.Writer, app App, opts runOptions) error {
	logger := app.Logger()
	logger.Info("Starting evaluation run", "dataset", opts.datasetPath, "provider", opts.provider, "model", opts.model)

	loader := dataset.NewLoader(opts.datasetPath, logger)
	records, err := loader.Load(opts.sampleSize)
	if err != nil {
		return fmt.Errorf("failed to load dataset: %w", err)
	}
	logger.Info("Dataset loaded", "records", len(records))

	rasterizer, err := app.Rasterizer()
	if err != nil {
		return err
	}
	extractor, info, err := app.Extractor(opts.provider, opts.model)
	if err != nil {
		return err
	}

	runner := NewRunner(rasterizer, extractor, opts.concurrency, opts.perMinute, logger)
	evaluated, err := runner.Run(ctx, loader.Dir(), records)
	if err != nil {
		return fmt.Errorf("evaluation interrupted: %w", err)
	}

	agg := metrics.AggregateEvaluationResults(evaluated, info.Provider, info.Model)
	agg.PrintSummary(w)

	spec := results.Build(results.EvalConfig{
		Provider:    info.Provider,
		Model:       info.Model,
		Temperature: info.Temperature,
		DatasetPath: opts.datasetPath,
		Concurrency: opts.concurrency,
	}, agg)
	path, err := results.Save(opts.outputDir, spec)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "\nResults saved to: %s\n", path)
	fmt.Fprintf(w, "Print them again with:\n  menuimport eval report --results %s\n", path)
	return nil
}
