package migrations

import "github.com/uptrace/bun/migrate"

// Migrations holds every schema change. Each file registers itself in init
// and bun derives the migration name from the file name.
var Migrations = migrate.NewMigrations()
