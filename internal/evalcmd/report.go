package evalcmd

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/bistro-cms/menuimport/internal/eval/results"
)

func executeReport(w io.Writer, path, format string) error {
	spec, err := results.Load(path)
	if err != nil {
		return err
	}

	switch format {
	case "text":
		return printTextReport(w, spec)
	case "json":
		return printJSONReport(w, spec)
	case "csv":
		return printCSVReport(w, spec)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func printTextReport(w io.Writer, spec *results.EvalSpec) error {
	s := spec.Summary
	fmt.Fprintln(w, "========================================")
	fmt.Fprintln(w, "Menu Extraction Evaluation Report")
	fmt.Fprintln(w, "========================================")
	fmt.Fprintf(w, "Provider: %s\n", spec.Config.Provider)
	fmt.Fprintf(w, "Model:    %s\n", spec.Config.Model)
	fmt.Fprintf(w, "Dataset:  %s\n", spec.Config.DatasetPath)
	fmt.Fprintf(w, "Run:      %s\n", spec.Config.Timestamp)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Records:        %d (%d failed)\n", s.Records, s.Failed)
	fmt.Fprintf(w, "Items:          %d expected, %d extracted, %d matched\n", s.Expected, s.Extracted, s.Matched)
	fmt.Fprintf(w, "Precision:      %.2f%%\n", s.Precision*100)
	fmt.Fprintf(w, "Recall:         %.2f%%\n", s.Recall*100)
	fmt.Fprintf(w, "F1:             %.3f\n", s.F1)
	fmt.Fprintf(w, "Price Accuracy: %.2f%%\n", s.PriceAccuracy*100)
	fmt.Fprintf(w, "Average Time:   %s\n", s.AverageTime)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Confidence Calibration:")
	for _, c := range s.Calibration {
		fmt.Fprintf(w, "  %s: %d items, %.1f%% matched\n", c.Band, c.Items, c.Accuracy*100)
	}

	fmt.Fprintln(w, "\nDetailed Results:")
	fmt.Fprintln(w, "========================================")
	for i, r := range spec.Results {
		fmt.Fprintf(w, "\n[%d] %s", i+1, r.Identifier)
		if r.Restaurant != "" {
			fmt.Fprintf(w, " (%s)", r.Restaurant)
		}
		fmt.Fprintln(w)

		if r.Error != "" {
			fmt.Fprintf(w, "  Error: %s\n", r.Error)
			continue
		}
		fmt.Fprintf(w, "  Pages: %d  Precision: %.2f%%  Recall: %.2f%%  Price: %.2f%%\n",
			r.Pages, r.Precision*100, r.Recall*100, r.PriceAccuracy*100)
		if len(r.Missing) > 0 {
			fmt.Fprintf(w, "  Missing: %s\n", truncate(strings.Join(r.Missing, ", "), 100))
		}
		if len(r.Extra) > 0 {
			fmt.Fprintf(w, "  Extra:   %s\n", truncate(strings.Join(r.Extra, ", "), 100))
		}
	}
	return nil
}

func printJSONReport(w io.Writer, spec *results.EvalSpec) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(spec)
}

func printCSVReport(w io.Writer, spec *results.EvalSpec) error {
	writer := csv.NewWriter(w)

	header := []string{"ID", "Restaurant", "Pages", "Precision", "Recall", "Price Accuracy", "Missing", "Extra", "Error"}
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, r := range spec.Results {
		row := []string{
			r.Identifier,
			r.Restaurant,
			fmt.Sprintf("%d", r.Pages),
			fmt.Sprintf("%.4f", r.Precision),
			fmt.Sprintf("%.4f", r.Recall),
			fmt.Sprintf("%.4f", r.PriceAccuracy),
			fmt.Sprintf("%d", len(r.Missing)),
			fmt.Sprintf("%d", len(r.Extra)),
			r.Error,
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
