package metrics

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/bistro-cms/menuimport/internal/models"
)

// EvaluationResult is the outcome for a single labelled menu
type EvaluationResult struct {
	ID             string
	Restaurant     string
	Pages          int
	Extracted      []models.CandidateItem
	Comparison     *MenuComparison
	ProcessingTime time.Duration
	Error          string // set when rasterizing or extraction failed
}

// AggregateResults rolls per-record comparisons up into dataset-wide numbers.
// Precision, Recall and PriceAccuracy are pooled over all items; MeanF1 averages per record.
type AggregateResults struct {
	TotalRecords int
	SuccessCount int
	FailureCount int

	Expected      int
	Extracted     int
	Matched       int
	ExactMatches  int
	FuzzyMatches  int
	PriceCompared int
	PriceCorrect  int

	Precision     float64
	Recall        float64
	F1            float64
	MeanF1        float64
	PriceAccuracy float64

	Calibration []Bucket

	AverageProcessingTime time.Duration
	TotalProcessingTime   time.Duration

	Results []EvaluationResult

	EvaluationDate time.Time
	Provider       string
	Model          string
	SampleSize     int
}

// AggregateEvaluationResults aggregates multiple evaluation results
func AggregateEvaluationResults(results []EvaluationResult, provider, model string) *AggregateResults {
	agg := &AggregateResults{
		TotalRecords:   len(results),
		Results:        results,
		EvaluationDate: time.Now(),
		Provider:       provider,
		Model:          model,
		SampleSize:     len(results),
		Calibration:    newBuckets(),
	}

	var totalDuration, successDuration time.Duration
	var f1Scores []float64

	for _, result := range results {
		totalDuration += result.ProcessingTime

		if result.Error != "" {
			agg.FailureCount++
			continue
		}
		agg.SuccessCount++
		successDuration += result.ProcessingTime

		cmp := result.Comparison
		if cmp == nil {
			continue
		}
		agg.Expected += cmp.ExpectedCount
		agg.Extracted += cmp.ExtractedCount
		agg.Matched += len(cmp.Matches)
		agg.PriceCompared += cmp.PriceCompared
		agg.PriceCorrect += cmp.PriceCorrect
		for _, m := range cmp.Matches {
			if m.Method == "exact" {
				agg.ExactMatches++
			} else {
				agg.FuzzyMatches++
			}
		}
		mergeBuckets(agg.Calibration, cmp.Calibration)
		f1Scores = append(f1Scores, cmp.F1())
	}

	agg.Precision = ratio(agg.Matched, agg.Extracted)
	agg.Recall = ratio(agg.Matched, agg.Expected)
	agg.F1 = f1(agg.Precision, agg.Recall)
	agg.MeanF1 = calculateAverage(f1Scores)
	agg.PriceAccuracy = ratio(agg.PriceCorrect, agg.PriceCompared)

	if agg.SuccessCount > 0 {
		agg.AverageProcessingTime = successDuration / time.Duration(agg.SuccessCount)
	}
	agg.TotalProcessingTime = totalDuration

	return agg
}

// calculateAverage calculates the average of a slice of scores
func calculateAverage(scores []float64) float64 {
	if len(scores) == 0 {
		return 0.0
	}
	sum := 0.0
	for _, score := range scores {
		sum += score
	}
	return sum / float64(len(scores))
}

// PrintSummary writes a human-readable summary of the evaluation
func (a *AggregateResults) PrintSummary(w io.Writer) {
	fmt.Fprintln(w, "\n"+strings.Repeat("=", 70))
	fmt.Fprintln(w, "MENU EXTRACTION EVALUATION SUMMARY")
	fmt.Fprintln(w, strings.Repeat("=", 70))
	fmt.Fprintf(w, "Evaluation Date: %s\n", a.EvaluationDate.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Provider: %s\n", a.Provider)
	fmt.Fprintf(w, "Model: %s\n", a.Model)
	fmt.Fprintf(w, "Sample Size: %d records\n", a.SampleSize)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "PROCESSING STATISTICS")
	fmt.Fprintln(w, strings.Repeat("-", 70))
	fmt.Fprintf(w, "Total Records: %d\n", a.TotalRecords)
	fmt.Fprintf(w, "Successful: %d (%.1f%%)\n", a.SuccessCount, ratio(a.SuccessCount, a.TotalRecords)*100)
	fmt.Fprintf(w, "Failed: %d (%.1f%%)\n", a.FailureCount, ratio(a.FailureCount, a.TotalRecords)*100)
	fmt.Fprintf(w, "Average Processing Time: %s\n", a.AverageProcessingTime)
	fmt.Fprintf(w, "Total Processing Time: %s\n", a.TotalProcessingTime)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "ITEM ACCURACY")
	fmt.Fprintln(w, strings.Repeat("-", 70))
	fmt.Fprintf(w, "Expected Items: %d\n", a.Expected)
	fmt.Fprintf(w, "Extracted Items: %d\n", a.Extracted)
	fmt.Fprintf(w, "Matched: %d (exact %d, fuzzy %d)\n", a.Matched, a.ExactMatches, a.FuzzyMatches)
	fmt.Fprintf(w, "Precision: %.2f%%\n", a.Precision*100)
	fmt.Fprintf(w, "Recall: %.2f%%\n", a.Recall*100)
	fmt.Fprintf(w, "F1: %.3f (mean per record %.3f)\n", a.F1, a.MeanF1)
	fmt.Fprintf(w, "Price Accuracy: %.2f%% of %d priced matches\n", a.PriceAccuracy*100, a.PriceCompared)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "CONFIDENCE CALIBRATION")
	fmt.Fprintln(w, strings.Repeat("-", 70))
	for _, b := range a.Calibration {
		fmt.Fprintf(w, "  %.2f-%.2f: %4d items, %.1f%% matched\n", b.Low, b.High, b.Count, b.Accuracy()*100)
	}
	fmt.Fprintln(w, strings.Repeat("=", 70))
}
