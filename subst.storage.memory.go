package subst

import (
	"context"
	"sync"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// MemoryStorage is an in-memory implementation of TemplateStorage.
// Templates are kept in the order they were first saved.
// All data is lost when the process terminates.
type MemoryStorage struct {
	mu        sync.RWMutex
	templates *orderedmap.OrderedMap[string, []*StoredTemplate] // name -> versions (newest first)
	closed    bool
}

// MemoryStorageDriver is the driver for creating MemoryStorage instances.
type MemoryStorageDriver struct{}

func init() {
	RegisterStorageDriver(StorageDriverNameMemory, &MemoryStorageDriver{})
}

// Open creates a new MemoryStorage instance.
// The connection string is ignored for memory storage.
func (d *MemoryStorageDriver) Open(connectionString string) (TemplateStorage, error) {
	return NewMemoryStorage(), nil
}

// NewMemoryStorage creates a new in-memory template storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		templates: orderedmap.New[string, []*StoredTemplate](),
	}
}

// Get retrieves the latest version of a template by name.
func (s *MemoryStorage) Get(ctx context.Context, name string) (*StoredTemplate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, NewStorageClosedError()
	}

	versions, ok := s.templates.Get(name)
	if !ok || len(versions) == 0 {
		return nil, NewTemplateNotFoundError(name)
	}

	return copyStoredTemplate(versions[0]), nil
}

// GetVersion retrieves a specific version of a template.
func (s *MemoryStorage) GetVersion(ctx context.Context, name string, version int) (*StoredTemplate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, NewStorageClosedError()
	}

	versions, _ := s.templates.Get(name)
	for _, tmpl := range versions {
		if tmpl.Version == version {
			return copyStoredTemplate(tmpl), nil
		}
	}

	return nil, NewStorageVersionNotFoundError(name, version)
}

// Save stores a template, creating a new version if one exists.
func (s *MemoryStorage) Save(ctx context.Context, tmpl *StoredTemplate) error {
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

	now := time.Now()
	versions, _ := s.templates.Get(tmpl.Name)

	nextVersion := 1
	if len(versions) > 0 {
		nextVersion = versions[0].Version + 1
	}

	stored := copyStoredTemplate(tmpl)
	stored.ID = generateTemplateID()
	stored.Version = nextVersion
	stored.CreatedAt = now
	stored.UpdatedAt = now

	tmpl.ID = stored.ID
	tmpl.Version = stored.Version
	tmpl.CreatedAt = stored.CreatedAt
	tmpl.UpdatedAt = stored.UpdatedAt

	s.templates.Set(tmpl.Name, append([]*StoredTemplate{stored}, versions...))
	return nil
}

// Delete removes all versions of a template by name.
func (s *MemoryStorage) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return NewStorageClosedError()
	}

	if _, ok := s.templates.Delete(name); !ok {
		return NewTemplateNotFoundError(name)
	}
	return nil
}

// Exists checks if a template with the given name exists.
func (s *MemoryStorage) Exists(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false, NewStorageClosedError()
	}

	versions, ok := s.templates.Get(name)
	return ok && len(versions) > 0, nil
}

// List returns the latest version of each matching template in insertion order.
func (s *MemoryStorage) List(ctx context.Context, query *TemplateQuery) ([]*StoredTemplate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, NewStorageClosedError()
	}

	latest := make([]*StoredTemplate, 0, s.templates.Len())
	for pair := s.templates.Oldest(); pair != nil; pair = pair.Next() {
		if len(pair.Value) > 0 {
			latest = append(latest, copyStoredTemplate(pair.Value[0]))
		}
	}
	return applyTemplateQuery(latest, query), nil
}

// ListVersions returns all version numbers for a template, newest first.
func (s *MemoryStorage) ListVersions(ctx context.Context, name string) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, NewStorageClosedError()
	}

	versions, _ := s.templates.Get(name)
	result := make([]int, len(versions))
	for i, tmpl := range versions {
		result[i] = tmpl.Version
	}
	return result, nil
}

// Close marks the storage as closed.
func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.templates = orderedmap.New[string, []*StoredTemplate]()
	return nil
}
