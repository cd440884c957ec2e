package cli

import (
	"context"
	"fmt"

	"classroom-quiz-service/internal/config"
	pgmigrations "classroom-quiz-service/internal/infra/postgres/migrations"
	"github.com/spf13/cobra"
)

// NewMigrateCmd applies database migrations.
func NewMigrateCmd(configPath *string) *cobra.Command {
	var rollback bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if rollback {
				if cfg.Postgres.URL == "" {
					return fmt.Errorf("postgres url not configured")
				}
				return pgmigrations.Rollback(cmd.Context(), cfg.Postgres.URL)
			}
			return runMigrationsWithConfig(cmd.Context(), cfg)
		},
	}
	cmd.Flags().BoolVar(&rollback, "rollback", false, "undo the last migration group")
	return cmd
}

func runMigrationsWithConfig(ctx context.Context, cfg config.Config) error {
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}
	return pgmigrations.Apply(ctx, cfg.Postgres.URL)
}
