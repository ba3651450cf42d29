package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/bistro-cms/menuimport/internal/intake"
	"github.com/bistro-cms/menuimport/internal/models"
	"github.com/bistro-cms/menuimport/internal/review"
	"github.com/spf13/cobra"
)

func newExtractCmd(a *app) *cobra.Command {
	var output string
	var provider string
	var model string

	cmd := &cobra.Command{
		Use:   "extract FILE...",
		Short: "Extract menu items from files into a review document",
		Long: `Renders the given PDFs and images, sends the pages to the extraction
service and writes the candidates as a YAML review document.

Edit the document (fix names and prices, delete rows), then import it with
"menuimport commit". Items the model was unsure about are marked
low_confidence.`,
		Example: `  menuimport extract dinner.pdf specials.jpg -o dinner.yaml
  menuimport extract menu.pdf --provider ollama --model qwen2.5vl:7b`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.extract(cmd.Context(), args, provider, model, output, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the review document here instead of stdout")
	cmd.Flags().StringVar(&provider, "provider", "", "Extraction provider (defaults to extract.provider)")
	cmd.Flags().StringVar(&model, "model", "", "Model name (defaults to extract.model)")

	return cmd
}

func (a *app) extract(ctx context.Context, paths []string, provider, model, output string, stdout io.Writer) error {
	candidates := make([]intake.Candidate, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", p, err)
		}
		candidates = append(candidates, intake.Candidate{
			Name: filepath.Base(p),
			Kind: intake.KindFromName(p),
			Size: int64(len(data)),
			Data: data,
		})
	}
	_, files, rejected := intake.AddFiles(nil, candidates)
	if len(rejected) > 0 {
		errs := make(models.ValidationErrors, 0, len(rejected))
		for _, r := range rejected {
			errs = append(errs, models.ValidationError{Field: r.Name, Message: r.Reason})
		}
		return errs
	}

	extractor, err := a.extractor(provider, model, nil)
	if err != nil {
		return err
	}

	pages, err := a.rasterizer().Rasterize(ctx, files, func(done, total int) {
		a.logger.Info("Rendered page", "page", done, "of", total)
	})
	if err != nil {
		return err
	}
	items, err := extractor.Extract(ctx, pages)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return models.ErrNothingFound
	}

	list := review.List(items)
	doc := review.NewDocument(list)
	doc.Files = paths
	doc.Provider = extractor.Provider()
	doc.Model = extractor.Model()
	doc.ExtractedAt = time.Now().UTC()

	w := stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", output, err)
		}
		defer f.Close()
		w = f
	}
	if err := review.WriteDocument(w, doc); err != nil {
		return err
	}

	a.logger.Info("Extraction finished", "items", len(items), "low_confidence", len(list.Flagged()), "output", output)
	return nil
}
