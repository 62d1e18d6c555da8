// Package migration applies versioned SQL files to a SQLite database.
//
// Migration files are read from an fs.FS, usually an embedded directory, and
// follow the naming convention {version}_{description}.sql (for example
// "001_initial_schema.sql"). Each file runs inside its own transaction and is
// recorded in the schema_migrations table together with its checksum, so a
// second run only applies what is missing and an edited file is reported
// instead of silently skipped.
//
// Example usage:
//
//	manager := NewManager(db, migrationsFS, logger)
//	if err := manager.RunMigrations(ctx); err != nil {
//		return fmt.Errorf("migrate: %w", err)
//	}
package migration
