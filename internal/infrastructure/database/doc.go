// Package database provides the SQLite connection behind the mount event
// journal.
//
// It handles:
//   - Opening the database with WAL mode and a busy timeout
//   - Schema migrations from *.up.sql / *.down.sql files, applied in version
//     order and recorded in schema_migrations
//   - Health checks
//
// The journal is write-mostly history for operators. Nothing in it is read
// back to rebuild mount state: every run starts from what the kernel and the
// device links report.
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
