package cmd

import (
	"database/sql"
	"fmt"

	"github.com/bistro-cms/menuimport/internal/store/migrations"
	"github.com/bistro-cms/menuimport/internal/store/postgres"
	"github.com/bistro-cms/menuimport/internal/store/sqlite"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Long: `Applies the embedded migrations for the configured store driver and
prints the resulting schema version. Other commands migrate on start as
well; this is for deploy pipelines that migrate ahead of a rollout.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sc := a.cfg.Store

			var (
				db      *sql.DB
				dialect string
			)
			switch sc.Driver {
			case "sqlite":
				st, err := sqlite.Open(ctx, sc.DSN)
				if err != nil {
					return err
				}
				defer st.Close()
				db, dialect = st.DB(), "sqlite"
			case "postgres":
				pool, err := postgres.Connect(ctx, sc.DSN, sc.MaxConns)
				if err != nil {
					return err
				}
				defer pool.Close()
				db, dialect = stdlib.OpenDBFromPool(pool), "postgres"
				defer db.Close()
				if err := migrations.Up(ctx, db, dialect); err != nil {
					return err
				}
			default:
				return fmt.Errorf("store driver %s has no schema", sc.Driver)
			}

			version, err := migrations.Version(ctx, db, dialect)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s schema at version %d\n", dialect, version)
			return nil
		},
	}
}
