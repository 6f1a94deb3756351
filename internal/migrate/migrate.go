package migrate

import (
	"database/sql"

	"github.com/cockroachdb/errors"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// DefaultDir is where the schema migrations live relative to the working
// directory of the service.
const DefaultDir = "db/migrations"

// Run applies all pending migrations in dir using goose. It opens and
// closes its own DB handle so it is independent of the app store.
func Run(dsn, dir string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return errors.Wrap(err, "open db")
	}
	defer db.Close()

	return Up(db, dir)
}

// Up applies pending migrations on an existing handle.
func Up(db *sql.DB, dir string) error {
	if dir == "" {
		dir = DefaultDir
	}
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Wrap(err, "set dialect")
	}
	if err := goose.Up(db, dir); err != nil {
		return errors.Wrapf(err, "goose up %s", dir)
	}
	return nil
}
