package cli

import (
	"context"
	"fmt"

	"odometer/internal/app"

	"github.com/spf13/cobra"
)

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	var target int64

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Long: `Applies the embedded schema migrations. With --target only the migrations up
to that version are applied; a database already at or past the target is left
untouched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, true, func(ctx context.Context, a *app.App) error {
				schema := a.Schema()
				if target > 0 {
					if err := schema.ApplyMigration(ctx, target); err != nil {
						return err
					}
				} else if err := a.Database().Migrate(ctx); err != nil {
					return err
				}

				version, err := schema.CurrentVersion(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(opts.stdout, "schema at version %d\n", version)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&target, "target", 0, "migrate up to this version only")
	return cmd
}

func newVersionCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the applied and latest schema versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, true, func(ctx context.Context, a *app.App) error {
				schema := a.Schema()
				current, err := schema.CurrentVersion(ctx)
				if err != nil {
					return err
				}
				latest, err := schema.LatestVersion()
				if err != nil {
					return err
				}
				tracked, err := schema.GooseVersion(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(opts.stdout, "current: %d\nlatest:  %d\ngoose:   %d\n", current, latest, tracked)
				return nil
			})
		},
	}
}
