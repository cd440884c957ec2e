package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

//go:embed 20261019_create_classroom_quiz.sql
var createClassroomQuizSQL string

// Migrations holds every schema change, applied in registration order.
var Migrations = migrate.NewMigrations()

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, createClassroomQuizSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS live_quiz_players, live_quiz_questions, live_quiz_sessions, quiz_questions, quiz_sets`)
			return err
		},
	)
}
