package subst

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/itsatony/go-subst/internal"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// sqlDialect captures the differences between the SQL backends.
type sqlDialect struct {
	// rebind rewrites ? placeholders into the driver's native form.
	rebind func(query string) string
	// txOptions are used for the version-allocating transaction in Save.
	txOptions *sql.TxOptions
	// migrations returns the schema migrations for a table prefix.
	migrations func(prefix string) []sqlMigration
	// migrationsDDL creates the migrations bookkeeping table.
	migrationsDDL string
}

// sqlMigration is one schema step applied by RunMigrations.
type sqlMigration struct {
	Version     int
	Description string
	SQL         string
}

// sqlStorage implements TemplateStorage over database/sql. It is shared by
// the SQLite and PostgreSQL backends.
type sqlStorage struct {
	db           *sql.DB
	dialect      sqlDialect
	tablePrefix  string
	queryTimeout time.Duration
	mu           sync.RWMutex
	closed       bool
}

const sqlTemplateColumns = "id, name, source, version, template_defaults, metadata, tags, created_at, updated_at"

func (s *sqlStorage) tableName() string {
	return s.tablePrefix + "templates"
}

func (s *sqlStorage) migrationsTableName() string {
	return s.tablePrefix + "schema_migrations"
}

func (s *sqlStorage) q(format string, args ...any) string {
	return s.dialect.rebind(fmt.Sprintf(format, args...))
}

// Get retrieves the latest version of a template by name.
func (s *sqlStorage) Get(ctx context.Context, name string) (*StoredTemplate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, NewStorageClosedError()
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	row := s.db.QueryRowContext(ctx, s.q(`
		SELECT %s FROM %s
		WHERE name = ?
		ORDER BY version DESC
		LIMIT 1`, sqlTemplateColumns, s.tableName()), name)

	tmpl, err := scanStoredTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NewTemplateNotFoundError(name)
	}
	if err != nil {
		return nil, NewStorageError(ErrMsgStorageQueryFailed, name, err)
	}
	return tmpl, nil
}

// GetVersion retrieves a specific version of a template.
func (s *sqlStorage) GetVersion(ctx context.Context, name string, version int) (*StoredTemplate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, NewStorageClosedError()
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	row := s.db.QueryRowContext(ctx, s.q(`
		SELECT %s FROM %s
		WHERE name = ? AND version = ?`, sqlTemplateColumns, s.tableName()), name, version)

	tmpl, err := scanStoredTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NewStorageVersionNotFoundError(name, version)
	}
	if err != nil {
		return nil, NewStorageError(ErrMsgStorageQueryFailed, name, err)
	}
	return tmpl, nil
}

// Save stores a template, creating a new version if one exists.
func (s *sqlStorage) Save(ctx context.Context, tmpl *StoredTemplate) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if tmpl.Name == "" {
		return &StorageError{Message: ErrMsgStorageNameRequired}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return NewStorageClosedError()
	}

	defaultsJSON, metadataJSON, tagsJSON, err := encodeStoredTemplate(tmpl)
	if err != nil {
		return NewStorageError(ErrMsgStorageEncodeFailed, tmpl.Name, err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, s.dialect.txOptions)
	if err != nil {
		return NewStorageError(ErrMsgStorageQueryFailed, tmpl.Name, err)
	}
	defer func() { _ = tx.Rollback() }()

	var maxVersion int
	err = tx.QueryRowContext(ctx,
		s.q("SELECT COALESCE(MAX(version), 0) FROM %s WHERE name = ?", s.tableName()),
		tmpl.Name).Scan(&maxVersion)
	if err != nil {
		return NewStorageError(ErrMsgStorageQueryFailed, tmpl.Name, err)
	}

	now := time.Now()
	newID := generateTemplateID()
	nextVersion := maxVersion + 1

	_, err = tx.ExecContext(ctx, s.q(`
		INSERT INTO %s (%s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.tableName(), sqlTemplateColumns),
		string(newID), tmpl.Name, tmpl.Source, nextVersion,
		defaultsJSON, metadataJSON, tagsJSON,
		now.UnixNano(), now.UnixNano())
	if err != nil {
		return NewStorageError(ErrMsgStorageQueryFailed, tmpl.Name, err)
	}

	if err := tx.Commit(); err != nil {
		return NewStorageError(ErrMsgStorageQueryFailed, tmpl.Name, err)
	}

	tmpl.ID = newID
	tmpl.Version = nextVersion
	tmpl.CreatedAt = now
	tmpl.UpdatedAt = now
	return nil
}

// Delete removes all versions of a template by name.
func (s *sqlStorage) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return NewStorageClosedError()
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	result, err := s.db.ExecContext(ctx, s.q("DELETE FROM %s WHERE name = ?", s.tableName()), name)
	if err != nil {
		return NewStorageError(ErrMsgStorageQueryFailed, name, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return NewStorageError(ErrMsgStorageQueryFailed, name, err)
	}
	if affected == 0 {
		return NewTemplateNotFoundError(name)
	}
	return nil
}

// Exists checks if a template with the given name exists.
func (s *sqlStorage) Exists(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false, NewStorageClosedError()
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	var count int
	err := s.db.QueryRowContext(ctx,
		s.q("SELECT COUNT(*) FROM %s WHERE name = ?", s.tableName()), name).Scan(&count)
	if err != nil {
		return false, NewStorageError(ErrMsgStorageQueryFailed, name, err)
	}
	return count > 0, nil
}

// List returns the latest version of each matching template, ordered by the
// creation time of its first version.
func (s *sqlStorage) List(ctx context.Context, query *TemplateQuery) ([]*StoredTemplate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, NewStorageClosedError()
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	table := s.tableName()
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT %s FROM %s t
		WHERE t.version = (SELECT MAX(v.version) FROM %s v WHERE v.name = t.name)
		ORDER BY (SELECT MIN(c.created_at) FROM %s c WHERE c.name = t.name), t.name`,
		qualify("t", sqlTemplateColumns), table, table, table))
	if err != nil {
		return nil, NewStorageError(ErrMsgStorageQueryFailed, "", err)
	}
	defer rows.Close()

	var latest []*StoredTemplate
	for rows.Next() {
		tmpl, err := scanStoredTemplate(rows)
		if err != nil {
			return nil, NewStorageError(ErrMsgStorageQueryFailed, "", err)
		}
		latest = append(latest, tmpl)
	}
	if err := rows.Err(); err != nil {
		return nil, NewStorageError(ErrMsgStorageQueryFailed, "", err)
	}

	return applyTemplateQuery(latest, query), nil
}

// ListVersions returns all version numbers for a template, newest first.
func (s *sqlStorage) ListVersions(ctx context.Context, name string) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, NewStorageClosedError()
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		s.q("SELECT version FROM %s WHERE name = ? ORDER BY version DESC", s.tableName()), name)
	if err != nil {
		return nil, NewStorageError(ErrMsgStorageQueryFailed, name, err)
	}
	defer rows.Close()

	versions := []int{}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, NewStorageError(ErrMsgStorageQueryFailed, name, err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, NewStorageError(ErrMsgStorageQueryFailed, name, err)
	}
	return versions, nil
}

// Close releases database connections.
func (s *sqlStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return NewStorageClosedError()
	}
	s.closed = true
	return s.db.Close()
}

// RunMigrations applies pending schema migrations.
func (s *sqlStorage) RunMigrations(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(s.dialect.migrationsDDL, s.migrationsTableName())); err != nil {
		return NewStorageError(ErrMsgStorageMigrationFailed, "", err)
	}

	applied, err := s.appliedMigrations(ctx)
	if err != nil {
		return err
	}

	for _, m := range s.dialect.migrations(s.tablePrefix) {
		if applied[m.Version] {
			continue
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return NewStorageError(ErrMsgStorageMigrationFailed, "", err)
		}

		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			_ = tx.Rollback()
			return NewStorageError(ErrMsgStorageMigrationFailed, "",
				fmt.Errorf("migration %d failed: %w", m.Version, err))
		}

		if _, err := tx.ExecContext(ctx,
			s.q("INSERT INTO %s (version, description) VALUES (?, ?)", s.migrationsTableName()),
			m.Version, m.Description); err != nil {
			_ = tx.Rollback()
			return NewStorageError(ErrMsgStorageMigrationFailed, "", err)
		}

		if err := tx.Commit(); err != nil {
			return NewStorageError(ErrMsgStorageMigrationFailed, "", err)
		}
	}

	return nil
}

// CurrentSchemaVersion returns the highest applied migration version.
func (s *sqlStorage) CurrentSchemaVersion(ctx context.Context) (int, error) {
	var version sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT MAX(version) FROM %s", s.migrationsTableName())).Scan(&version)
	if err != nil {
		return 0, NewStorageError(ErrMsgStorageQueryFailed, "", err)
	}
	if !version.Valid {
		return 0, nil
	}
	return int(version.Int64), nil
}

func (s *sqlStorage) appliedMigrations(ctx context.Context) (map[int]bool, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT version FROM %s", s.migrationsTableName()))
	if err != nil {
		return nil, NewStorageError(ErrMsgStorageMigrationFailed, "", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, NewStorageError(ErrMsgStorageMigrationFailed, "", err)
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanStoredTemplate(row rowScanner) (*StoredTemplate, error) {
	var (
		id           string
		name         string
		source       string
		version      int
		defaultsJSON sql.NullString
		metadataJSON sql.NullString
		tagsJSON     sql.NullString
		createdAt    int64
		updatedAt    int64
	)

	err := row.Scan(&id, &name, &source, &version, &defaultsJSON, &metadataJSON, &tagsJSON,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	tmpl := &StoredTemplate{
		ID:        TemplateID(id),
		Name:      name,
		Source:    source,
		Version:   version,
		CreatedAt: time.Unix(0, createdAt),
		UpdatedAt: time.Unix(0, updatedAt),
	}

	if isJSONValue(defaultsJSON) {
		defaults := orderedmap.New[string, any]()
		if err := json.Unmarshal([]byte(defaultsJSON.String), defaults); err != nil {
			return nil, fmt.Errorf("%s: defaults: %w", ErrMsgStorageDecodeFailed, err)
		}
		internal.RestoreUndefined(defaults)
		tmpl.Defaults = defaults
	}
	if isJSONValue(metadataJSON) {
		if err := json.Unmarshal([]byte(metadataJSON.String), &tmpl.Metadata); err != nil {
			return nil, fmt.Errorf("%s: metadata: %w", ErrMsgStorageDecodeFailed, err)
		}
	}
	if isJSONValue(tagsJSON) {
		if err := json.Unmarshal([]byte(tagsJSON.String), &tmpl.Tags); err != nil {
			return nil, fmt.Errorf("%s: tags: %w", ErrMsgStorageDecodeFailed, err)
		}
	}

	return tmpl, nil
}

func encodeStoredTemplate(tmpl *StoredTemplate) (defaults, metadata, tags sql.NullString, err error) {
	if tmpl.Defaults != nil {
		if defaults, err = jsonString(tmpl.Defaults); err != nil {
			return
		}
	}
	if tmpl.Metadata != nil {
		if metadata, err = jsonString(tmpl.Metadata); err != nil {
			return
		}
	}
	if tmpl.Tags != nil {
		tags, err = jsonString(tmpl.Tags)
	}
	return
}

func jsonString(v any) (sql.NullString, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func isJSONValue(s sql.NullString) bool {
	return s.Valid && s.String != "" && s.String != "null"
}

// qualify prefixes every column in a comma separated list with alias.
func qualify(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// rebindQuestion leaves ? placeholders unchanged.
func rebindQuestion(query string) string {
	return query
}

// rebindDollar rewrites ? placeholders as $1, $2, ...
func rebindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
