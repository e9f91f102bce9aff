package subst

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteConfig configures the SQLite storage driver.
type SQLiteConfig struct {
	// Path is the database file path, or ":memory:" for a private
	// in-memory database.
	Path string

	// TablePrefix allows customizing the table name prefix.
	// Default: "subst_"
	TablePrefix string

	// QueryTimeout is the default timeout for queries.
	// Default: 30 seconds
	QueryTimeout time.Duration
}

// SQLiteStorage implements TemplateStorage using SQLite. It is suitable for
// single-process use.
type SQLiteStorage struct {
	sqlStorage
}

// SQLiteStorageDriver is the driver for creating SQLiteStorage instances.
type SQLiteStorageDriver struct{}

func init() {
	RegisterStorageDriver(StorageDriverNameSQLite, &SQLiteStorageDriver{})
}

// Open creates a new SQLiteStorage instance.
// The connection string is the database path.
func (d *SQLiteStorageDriver) Open(connectionString string) (TemplateStorage, error) {
	return NewSQLiteStorage(SQLiteConfig{Path: connectionString})
}

// NewSQLiteStorage opens (or creates) a SQLite database and applies the
// schema migrations.
func NewSQLiteStorage(config SQLiteConfig) (*SQLiteStorage, error) {
	if config.Path == "" {
		return nil, &StorageError{Message: ErrMsgStorageOpenFailed}
	}
	if config.TablePrefix == "" {
		config.TablePrefix = SQLTablePrefix
	}
	if config.QueryTimeout == 0 {
		config.QueryTimeout = SQLDefaultQueryTimeout
	}

	db, err := sql.Open(sqliteDriverName, config.Path)
	if err != nil {
		return nil, NewStorageError(ErrMsgStorageOpenFailed, config.Path, err)
	}

	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), config.QueryTimeout)
	defer cancel()

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, NewStorageError(ErrMsgStorageOpenFailed, config.Path, err)
	}

	storage := &SQLiteStorage{
		sqlStorage: sqlStorage{
			db: db,
			dialect: sqlDialect{
				rebind:        rebindQuestion,
				migrations:    sqliteMigrations,
				migrationsDDL: sqliteMigrationsDDL,
			},
			tablePrefix:  config.TablePrefix,
			queryTimeout: config.QueryTimeout,
		},
	}

	if err := storage.RunMigrations(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return storage, nil
}

const sqliteDriverName = "sqlite"

const sqliteMigrationsDDL = `
	CREATE TABLE IF NOT EXISTS %s (
		version     INTEGER PRIMARY KEY,
		applied_at  TEXT DEFAULT CURRENT_TIMESTAMP,
		description TEXT
	)`

func sqliteMigrations(prefix string) []sqlMigration {
	table := prefix + "templates"
	return []sqlMigration{
		{
			Version:     1,
			Description: "Initial schema with templates table",
			SQL: fmt.Sprintf(`
				CREATE TABLE IF NOT EXISTS %[1]s (
					id                TEXT PRIMARY KEY,
					name              TEXT NOT NULL,
					source            TEXT NOT NULL,
					version           INTEGER NOT NULL DEFAULT 1,
					template_defaults TEXT,
					metadata          TEXT,
					tags              TEXT,
					created_at        INTEGER NOT NULL,
					updated_at        INTEGER NOT NULL,
					UNIQUE (name, version)
				);
				CREATE INDEX IF NOT EXISTS idx_%[1]s_name_version ON %[1]s(name, version DESC);
			`, table),
		},
	}
}
