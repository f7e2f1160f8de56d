// Package database provides the SQLite connection used for a driver's
// local state, currently the product model (TSL) cache.
//
// The database runs with WAL mode and a busy timeout, a single open
// connection and owner-only file permissions. Schema changes are applied
// from migration files passed in by the caller:
//
//	db, err := database.Open(ctx, database.Config{Path: path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	steps, err := database.LoadMigrations(migrations.FS, ".")
//	if err != nil {
//	    return err
//	}
//	if err := db.Migrate(ctx, steps); err != nil {
//	    return err
//	}
package database
