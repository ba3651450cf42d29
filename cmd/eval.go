package cmd

import (
	"github.com/bistro-cms/menuimport/internal/evalcmd"
	"github.com/spf13/cobra"
)

func newEvalCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Menu extraction evaluation tools",
		Long: `Evaluation tools for measuring how well a vision model reads menus.

Runs labelled menus through the same rasterize and extract stages the
wizard uses, scores the items against a transcription and keeps the results
as YAML for later comparison between providers and models.`,
	}

	cmd.AddCommand(evalcmd.NewRunCmd(evalApp{a}))
	cmd.AddCommand(evalcmd.NewReportCmd())

	return cmd
}
