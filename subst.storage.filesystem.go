package subst

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/itsatony/go-subst/internal"
)

// FilesystemStorage stores templates as JSON files, one file per version.
//
// Directory structure:
//
//	<root>/
//	  <template-name>/
//	    v1.json
//	    v2.json
//	    ...
type FilesystemStorage struct {
	mu     sync.RWMutex
	root   string
	closed bool
}

// FilesystemStorageDriver is the driver for creating FilesystemStorage instances.
type FilesystemStorageDriver struct{}

func init() {
	RegisterStorageDriver(StorageDriverNameFilesystem, &FilesystemStorageDriver{})
}

// Open creates a new FilesystemStorage instance.
// The connection string is the root directory path.
func (d *FilesystemStorageDriver) Open(connectionString string) (TemplateStorage, error) {
	return NewFilesystemStorage(connectionString)
}

// NewFilesystemStorage creates a new filesystem-based template storage.
// The root directory will be created if it doesn't exist.
func NewFilesystemStorage(root string) (*FilesystemStorage, error) {
	if root == "" {
		return nil, &StorageError{Message: ErrMsgStorageOpenFailed}
	}

	if err := os.MkdirAll(root, FilesystemDirPermissions); err != nil {
		return nil, NewStorageError(ErrMsgStorageOpenFailed, root, err)
	}

	return &FilesystemStorage{root: root}, nil
}

// Get retrieves the latest version of a template by name.
func (s *FilesystemStorage) Get(ctx context.Context, name string) (*StoredTemplate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateTemplateNameForFilesystem(name); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, NewStorageClosedError()
	}

	versions, err := s.listVersionsInternal(name)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, NewTemplateNotFoundError(name)
	}

	return s.loadTemplate(name, versions[0])
}

// GetVersion retrieves a specific version of a template.
func (s *FilesystemStorage) GetVersion(ctx context.Context, name string, version int) (*StoredTemplate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateTemplateNameForFilesystem(name); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, NewStorageClosedError()
	}

	return s.loadTemplate(name, version)
}

// Save stores a template, creating a new version if one exists.
func (s *FilesystemStorage) Save(ctx context.Context, tmpl *StoredTemplate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateTemplateNameForFilesystem(tmpl.Name); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return NewStorageClosedError()
	}

	templateDir := filepath.Join(s.root, tmpl.Name)
	if err := os.MkdirAll(templateDir, FilesystemDirPermissions); err != nil {
		return NewStorageError(ErrMsgStorageIOFailed, templateDir, err)
	}

	versions, err := s.listVersionsInternal(tmpl.Name)
	if err != nil {
		return err
	}
	nextVersion := 1
	if len(versions) > 0 {
		nextVersion = versions[0] + 1
	}

	now := time.Now()
	stored := copyStoredTemplate(tmpl)
	stored.ID = generateTemplateID()
	stored.Version = nextVersion
	stored.CreatedAt = now
	stored.UpdatedAt = now

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return NewStorageError(ErrMsgStorageEncodeFailed, tmpl.Name, err)
	}

	filename := s.versionPath(tmpl.Name, nextVersion)
	if err := os.WriteFile(filename, data, FilesystemFilePermissions); err != nil {
		return NewStorageError(ErrMsgStorageIOFailed, filename, err)
	}

	tmpl.ID = stored.ID
	tmpl.Version = stored.Version
	tmpl.CreatedAt = stored.CreatedAt
	tmpl.UpdatedAt = stored.UpdatedAt
	return nil
}

// Delete removes all versions of a template by name.
func (s *FilesystemStorage) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateTemplateNameForFilesystem(name); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return NewStorageClosedError()
	}

	templateDir := filepath.Join(s.root, name)
	if _, err := os.Stat(templateDir); os.IsNotExist(err) {
		return NewTemplateNotFoundError(name)
	}
	if err := os.RemoveAll(templateDir); err != nil {
		return NewStorageError(ErrMsgStorageIOFailed, name, err)
	}
	return nil
}

// Exists checks if a template with the given name exists.
func (s *FilesystemStorage) Exists(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := validateTemplateNameForFilesystem(name); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false, NewStorageClosedError()
	}

	versions, err := s.listVersionsInternal(name)
	if err != nil {
		return false, err
	}
	return len(versions) > 0, nil
}

// List returns the latest version of each matching template, ordered by the
// creation time of its first version.
func (s *FilesystemStorage) List(ctx context.Context, query *TemplateQuery) ([]*StoredTemplate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, NewStorageClosedError()
	}

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, NewStorageError(ErrMsgStorageIOFailed, s.root, err)
	}

	type listed struct {
		first  time.Time
		latest *StoredTemplate
	}
	var all []listed

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		versions, err := s.listVersionsInternal(name)
		if err != nil || len(versions) == 0 {
			continue
		}
		latest, err := s.loadTemplate(name, versions[0])
		if err != nil {
			continue
		}
		first := latest
		if oldest := versions[len(versions)-1]; oldest != latest.Version {
			if loaded, err := s.loadTemplate(name, oldest); err == nil {
				first = loaded
			}
		}
		all = append(all, listed{first: first.CreatedAt, latest: latest})
	}

	sort.SliceStable(all, func(i, j int) bool {
		if !all[i].first.Equal(all[j].first) {
			return all[i].first.Before(all[j].first)
		}
		return all[i].latest.Name < all[j].latest.Name
	})

	latest := make([]*StoredTemplate, len(all))
	for i, l := range all {
		latest[i] = l.latest
	}
	return applyTemplateQuery(latest, query), nil
}

// ListVersions returns all version numbers for a template, newest first.
func (s *FilesystemStorage) ListVersions(ctx context.Context, name string) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateTemplateNameForFilesystem(name); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, NewStorageClosedError()
	}

	return s.listVersionsInternal(name)
}

// Close marks the storage as closed.
func (s *FilesystemStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *FilesystemStorage) versionPath(name string, version int) string {
	return filepath.Join(s.root, name, FilesystemVersionPrefix+strconv.Itoa(version)+FilesystemVersionSuffix)
}

// listVersionsInternal returns version numbers sorted descending.
// Called with the lock held.
func (s *FilesystemStorage) listVersionsInternal(name string) ([]int, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, name))
	if err != nil {
		if os.IsNotExist(err) {
			return []int{}, nil
		}
		return nil, NewStorageError(ErrMsgStorageIOFailed, name, err)
	}

	versions := []int{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		filename := entry.Name()
		if !strings.HasPrefix(filename, FilesystemVersionPrefix) || !strings.HasSuffix(filename, FilesystemVersionSuffix) {
			continue
		}
		versionStr := strings.TrimSuffix(strings.TrimPrefix(filename, FilesystemVersionPrefix), FilesystemVersionSuffix)
		if version, err := strconv.Atoi(versionStr); err == nil && version > 0 {
			versions = append(versions, version)
		}
	}

	sort.Sort(sort.Reverse(sort.IntSlice(versions)))
	return versions, nil
}

func (s *FilesystemStorage) loadTemplate(name string, version int) (*StoredTemplate, error) {
	filename := s.versionPath(name, version)
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewStorageVersionNotFoundError(name, version)
		}
		return nil, NewStorageError(ErrMsgStorageIOFailed, filename, err)
	}

	var tmpl StoredTemplate
	if err := json.Unmarshal(data, &tmpl); err != nil {
		return nil, NewStorageError(ErrMsgStorageDecodeFailed, filename, err)
	}
	internal.RestoreUndefined(tmpl.Defaults)
	return &tmpl, nil
}

// validateTemplateNameForFilesystem rejects names that would escape the
// storage root or are not valid directory names.
func validateTemplateNameForFilesystem(name string) error {
	if name == "" {
		return &StorageError{Message: ErrMsgStorageNameRequired}
	}
	if strings.Contains(name, "..") || strings.ContainsAny(name, "/\\:*?\"<>|") {
		return &StorageError{Message: ErrMsgStorageInvalidName, Name: name}
	}
	return nil
}
