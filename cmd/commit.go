package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/bistro-cms/menuimport/internal/importer"
	"github.com/bistro-cms/menuimport/internal/models"
	"github.com/bistro-cms/menuimport/internal/review"
	"github.com/spf13/cobra"
)

type commitOptions struct {
	category  string
	policy    string
	clear     bool
	featured  bool
	special   bool
	startDate string
	endDate   string
}

func newCommitCmd(a *app) *cobra.Command {
	var opts commitOptions

	cmd := &cobra.Command{
		Use:   "commit REVIEW.yaml",
		Short: "Import a reviewed document into a category",
		Long: `Reads a review document written by "menuimport extract" and commits
its items to a category in one transaction. Either every item is written or
nothing changes.

Duplicate policies decide what happens to names the category already has:
update-existing (default) overwrites them, skip-duplicates leaves them alone
and fail-on-duplicate aborts the whole import.`,
		Example: `  menuimport commit dinner.yaml --category 7c1e...
  menuimport commit specials.yaml --category 7c1e... --special --start 2026-11-01 --end 2026-11-30`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.commit(cmd.Context(), args[0], opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.category, "category", "", "Target category id")
	cmd.Flags().StringVar(&opts.policy, "policy", string(models.PolicyUpdateExisting), "Duplicate policy (update-existing, skip-duplicates, fail-on-duplicate)")
	cmd.Flags().BoolVar(&opts.clear, "clear", false, "Remove the category's items first")
	cmd.Flags().BoolVar(&opts.featured, "featured", false, "Mark every imported item as featured")
	cmd.Flags().BoolVar(&opts.special, "special", false, "Import as specials with a date window (clears existing specials)")
	cmd.Flags().StringVar(&opts.startDate, "start", "", "Special window start (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.endDate, "end", "", "Special window end (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("category")

	return cmd
}

func (o commitOptions) spec() (models.ImportSpec, error) {
	policy, err := models.ParsePolicy(o.policy)
	if err != nil {
		return models.ImportSpec{}, err
	}
	spec := models.ImportSpec{
		CategoryID:        o.category,
		ClearExisting:     o.clear,
		Featured:          o.featured,
		SpecialScheduling: o.special,
		Policy:            policy,
	}
	for _, d := range []struct {
		raw string
		dst **time.Time
	}{
		{o.startDate, &spec.StartDate},
		{o.endDate, &spec.EndDate},
	} {
		if d.raw == "" {
			continue
		}
		t, err := time.Parse(time.DateOnly, d.raw)
		if err != nil {
			return spec, fmt.Errorf("invalid date %q, use YYYY-MM-DD", d.raw)
		}
		*d.dst = &t
	}
	return spec, nil
}

func (a *app) commit(ctx context.Context, path string, opts commitOptions, stdout io.Writer) error {
	spec, err := opts.spec()
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open review document: %w", err)
	}
	doc, err := review.ReadDocument(f)
	f.Close()
	if err != nil {
		return err
	}
	items := doc.List()
	for _, i := range items.Flagged() {
		a.logger.Warn("Committing low-confidence item", "name", items[i].Name, "confidence", items[i].Confidence)
	}

	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	result, err := importer.New(st, importer.WithLogger(a.logger)).Commit(ctx, items, spec)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Imported %d item(s), skipped %d", result.Imported, result.Skipped)
	if result.Cleared > 0 {
		fmt.Fprintf(stdout, ", cleared %d", result.Cleared)
	}
	fmt.Fprintln(stdout)
	return nil
}
