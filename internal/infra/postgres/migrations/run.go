package migrations

import (
	"context"
	"database/sql"
	"log"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
)

func migrator(dsn string) (*migrate.Migrator, *bun.DB) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	return migrate.NewMigrator(db, Migrations), db
}

// Apply runs every pending migration against dsn.
func Apply(ctx context.Context, dsn string) error {
	m, db := migrator(dsn)
	defer db.Close()

	if err := m.Init(ctx); err != nil {
		return err
	}
	group, err := m.Migrate(ctx)
	if err != nil {
		return err
	}
	if group.IsZero() {
		log.Printf("no new migrations")
		return nil
	}
	log.Printf("migrated to %s", group)
	return nil
}

// Rollback undoes the last applied migration group.
func Rollback(ctx context.Context, dsn string) error {
	m, db := migrator(dsn)
	defer db.Close()

	if err := m.Init(ctx); err != nil {
		return err
	}
	group, err := m.Rollback(ctx)
	if err != nil {
		return err
	}
	if group.IsZero() {
		log.Printf("nothing to roll back")
		return nil
	}
	log.Printf("rolled back %s", group)
	return nil
}
