// Package migrations embeds SQL migration files for use at runtime.
// Migrations are embedded so they work regardless of working directory.
package migrations

import (
	"embed"
	"io/fs"
)

//go:embed postgres/*.sql
var postgresFS embed.FS

//go:embed sqlite/*.sql
var sqliteFS embed.FS

// Postgres is the migration filesystem for the Postgres backend, rooted at
// the directory containing the .sql files.
var Postgres fs.FS = mustSub(postgresFS, "postgres")

// SQLite is the migration filesystem for the SQLite backend.
var SQLite fs.FS = mustSub(sqliteFS, "sqlite")

func mustSub(fsys fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(err)
	}
	return sub
}
