package subst

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// TemplateID is a unique identifier for a stored template version.
// Uses a prefixed UUID (e.g., "tmpl_2f0c1c9e-...").
type TemplateID string

// StoredTemplate is a template version as held by a storage backend.
type StoredTemplate struct {
	// ID is the unique identifier for this template version.
	ID TemplateID `json:"id"`

	// Name is the template name used for lookups.
	Name string `json:"name"`

	// Source is the raw template text.
	Source string `json:"source"`

	// Version is the version number (1, 2, 3, ...).
	Version int `json:"version"`

	// Defaults are the template's own shortcut replacements, applied after
	// the manager's global defaults.
	Defaults *Map `json:"defaults,omitempty"`

	// Metadata contains arbitrary key-value pairs for user-defined data.
	Metadata map[string]string `json:"metadata,omitempty"`

	// Tags for categorization and querying.
	Tags []string `json:"tags,omitempty"`

	// CreatedAt is when this version was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when this version was last modified.
	UpdatedAt time.Time `json:"updated_at"`
}

// TemplateQuery filters List results. A nil query matches everything.
type TemplateQuery struct {
	// NamePrefix filters to names starting with this prefix.
	NamePrefix string

	// Tags filters to templates having ALL specified tags.
	Tags []string

	// Limit is the maximum number of results (0 = no limit).
	Limit int
}

// TemplateStorage is the interface for pluggable storage backends.
// Implementations must be safe for concurrent use.
type TemplateStorage interface {
	// Get retrieves the latest version of a template by name.
	Get(ctx context.Context, name string) (*StoredTemplate, error)

	// GetVersion retrieves a specific version of a template.
	GetVersion(ctx context.Context, name string, version int) (*StoredTemplate, error)

	// Save stores a template as a new version. ID, Version, CreatedAt and
	// UpdatedAt are set by the storage and written back to tmpl.
	Save(ctx context.Context, tmpl *StoredTemplate) error

	// Delete removes all versions of a template by name.
	Delete(ctx context.Context, name string) error

	// Exists checks if a template with the given name exists.
	Exists(ctx context.Context, name string) (bool, error)

	// List returns the latest version of every matching template, in the
	// order the templates were first saved.
	List(ctx context.Context, query *TemplateQuery) ([]*StoredTemplate, error)

	// ListVersions returns all version numbers for a template, newest first.
	ListVersions(ctx context.Context, name string) ([]int, error)

	// Close releases any resources held by the storage.
	Close() error
}

// StorageDriver is a factory for creating storage instances.
// Drivers register themselves during init().
type StorageDriver interface {
	// Open creates a new storage instance with the given connection string.
	// The format of the connection string is driver-specific.
	Open(connectionString string) (TemplateStorage, error)
}

// Storage driver registry
var (
	storageDriversMu sync.RWMutex
	storageDrivers   = make(map[string]StorageDriver)
)

// RegisterStorageDriver registers a storage driver by name.
// Panics if a driver with the same name is already registered.
func RegisterStorageDriver(name string, driver StorageDriver) {
	storageDriversMu.Lock()
	defer storageDriversMu.Unlock()

	if driver == nil {
		panic(ErrMsgNilStorageDriver)
	}
	if _, exists := storageDrivers[name]; exists {
		panic(ErrMsgDriverAlreadyRegistered + ": " + name)
	}
	storageDrivers[name] = driver
}

// OpenStorage opens a storage connection using the named driver.
//
// Example:
//
//	storage, err := subst.OpenStorage("memory", "")
//	storage, err := subst.OpenStorage("filesystem", "/path/to/templates")
//	storage, err := subst.OpenStorage("sqlite", "file:templates.db")
func OpenStorage(driverName, connectionString string) (TemplateStorage, error) {
	storageDriversMu.RLock()
	driver, ok := storageDrivers[driverName]
	storageDriversMu.RUnlock()

	if !ok {
		return nil, NewStorageDriverNotFoundError(driverName)
	}

	return driver.Open(connectionString)
}

// ListStorageDrivers returns the sorted names of all registered drivers.
func ListStorageDrivers() []string {
	storageDriversMu.RLock()
	defer storageDriversMu.RUnlock()

	names := make([]string, 0, len(storageDrivers))
	for name := range storageDrivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Storage error message constants
const (
	ErrMsgNilStorageDriver        = "storage driver is nil"
	ErrMsgDriverAlreadyRegistered = "storage driver already registered"
	ErrMsgStorageDriverNotFound   = "storage driver not found"
	ErrMsgStorageClosed           = "storage is closed"
	ErrMsgVersionNotFound         = "template version not found"
	ErrMsgStorageNameRequired     = "template name is required"
	ErrMsgStorageQueryFailed      = "storage query failed"
	ErrMsgStorageEncodeFailed     = "failed to encode stored template"
	ErrMsgStorageDecodeFailed     = "failed to decode stored template"
	ErrMsgStorageOpenFailed       = "failed to open storage"
	ErrMsgStorageMigrationFailed  = "storage migration failed"
	ErrMsgStorageIOFailed         = "storage file operation failed"
	ErrMsgStorageInvalidName      = "template name is not allowed by this storage"
)

// NewStorageDriverNotFoundError creates an error for missing storage driver.
func NewStorageDriverNotFoundError(name string) error {
	return &StorageError{
		Message: ErrMsgStorageDriverNotFound,
		Name:    name,
	}
}

// NewStorageVersionNotFoundError creates an error for version not found.
func NewStorageVersionNotFoundError(name string, version int) error {
	return &StorageError{
		Message: ErrMsgVersionNotFound,
		Name:    name,
		Version: version,
	}
}

// NewStorageClosedError creates an error for operations on closed storage.
func NewStorageClosedError() error {
	return &StorageError{
		Message: ErrMsgStorageClosed,
	}
}

// NewStorageError wraps a backend failure.
func NewStorageError(msg, name string, cause error) error {
	return &StorageError{
		Message: msg,
		Name:    name,
		Cause:   cause,
	}
}

// StorageError represents a storage-related error.
type StorageError struct {
	Message string
	Name    string
	Version int
	Cause   error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	msg := e.Message
	if e.Name != "" && e.Version > 0 {
		msg += ": " + e.Name + " v" + strconv.Itoa(e.Version)
	} else if e.Name != "" {
		msg += ": " + e.Name
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// generateTemplateID generates a unique template ID.
func generateTemplateID() TemplateID {
	return TemplateID(TemplateIDPrefix + uuid.NewString())
}

// matchesTemplateQuery checks a template against the query filters.
func matchesTemplateQuery(tmpl *StoredTemplate, query *TemplateQuery) bool {
	if query == nil {
		return true
	}
	if query.NamePrefix != "" && !strings.HasPrefix(tmpl.Name, query.NamePrefix) {
		return false
	}
	for _, tag := range query.Tags {
		if !containsString(tmpl.Tags, tag) {
			return false
		}
	}
	return true
}

// applyTemplateQuery filters an ordered result set and applies the limit.
func applyTemplateQuery(all []*StoredTemplate, query *TemplateQuery) []*StoredTemplate {
	results := make([]*StoredTemplate, 0, len(all))
	for _, tmpl := range all {
		if !matchesTemplateQuery(tmpl, query) {
			continue
		}
		results = append(results, tmpl)
		if query != nil && query.Limit > 0 && len(results) == query.Limit {
			break
		}
	}
	return results
}

func containsString(slice []string, s string) bool {
	for _, item := range slice {
		if item == s {
			return true
		}
	}
	return false
}

// copyStoredTemplate creates a copy of a StoredTemplate. Defaults are copied
// one level deep.
func copyStoredTemplate(tmpl *StoredTemplate) *StoredTemplate {
	if tmpl == nil {
		return nil
	}
	return &StoredTemplate{
		ID:        tmpl.ID,
		Name:      tmpl.Name,
		Source:    tmpl.Source,
		Version:   tmpl.Version,
		Defaults:  copyMap(tmpl.Defaults),
		Metadata:  copyStringMap(tmpl.Metadata),
		Tags:      copyStringSlice(tmpl.Tags),
		CreatedAt: tmpl.CreatedAt,
		UpdatedAt: tmpl.UpdatedAt,
	}
}

func copyMap(m *Map) *Map {
	if m == nil {
		return nil
	}
	out := orderedmap.New[string, any]()
	for pair := m.Oldest(); pair != nil; pair = pair.Next() {
		out.Set(pair.Key, pair.Value)
	}
	return out
}

func copyStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	result := make(map[string]string, len(m))
	for k, v := range m {
		result[k] = v
	}
	return result
}

func copyStringSlice(s []string) []string {
	if s == nil {
		return nil
	}
	result := make([]string, len(s))
	copy(result, s)
	return result
}
