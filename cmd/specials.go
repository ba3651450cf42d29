package cmd

import (
	"fmt"

	"github.com/bistro-cms/menuimport/internal/scheduler"
	"github.com/spf13/cobra"
)

func newSpecialsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "specials",
		Short: "Manage scheduled specials",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "refresh",
		Short: "Show specials whose window opened and hide those whose window closed",
		Long: `Runs one pass of the specials job that "serve" runs on a schedule.
Useful from an external cron when the server runs with the scheduler off.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			activated, expired, err := scheduler.New(st, a.cfg.Scheduler.Spec, nil, a.logger).Refresh(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Activated %d, expired %d\n", activated, expired)
			return nil
		},
	})

	return cmd
}
