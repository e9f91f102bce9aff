package subst

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockStorageDriver implements StorageDriver for testing
type mockStorageDriver struct {
	storage TemplateStorage
	err     error
}

func (d *mockStorageDriver) Open(connectionString string) (TemplateStorage, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.storage, nil
}

func TestStorageDriverRegistry(t *testing.T) {
	t.Run("built-in drivers", func(t *testing.T) {
		drivers := ListStorageDrivers()
		assert.Contains(t, drivers, StorageDriverNameMemory)
		assert.Contains(t, drivers, StorageDriverNameFilesystem)
		assert.Contains(t, drivers, StorageDriverNameSQLite)
		assert.Contains(t, drivers, StorageDriverNamePostgres)
		assert.IsNonDecreasing(t, drivers)
	})

	t.Run("open memory", func(t *testing.T) {
		storage, err := OpenStorage(StorageDriverNameMemory, "")
		require.NoError(t, err)
		assert.IsType(t, &MemoryStorage{}, storage)
	})

	t.Run("unknown driver", func(t *testing.T) {
		_, err := OpenStorage("nope", "")
		require.Error(t, err)

		var storageErr *StorageError
		require.True(t, errors.As(err, &storageErr))
		assert.Equal(t, ErrMsgStorageDriverNotFound, storageErr.Message)
	})

	t.Run("register custom driver", func(t *testing.T) {
		mem := NewMemoryStorage()
		RegisterStorageDriver("test-custom", &mockStorageDriver{storage: mem})

		storage, err := OpenStorage("test-custom", "")
		require.NoError(t, err)
		assert.Same(t, mem, storage)
	})

	t.Run("driver open error", func(t *testing.T) {
		boom := errors.New("boom")
		RegisterStorageDriver("test-failing", &mockStorageDriver{err: boom})

		_, err := OpenStorage("test-failing", "")
		assert.ErrorIs(t, err, boom)
	})

	t.Run("duplicate registration panics", func(t *testing.T) {
		assert.Panics(t, func() {
			RegisterStorageDriver(StorageDriverNameMemory, &MemoryStorageDriver{})
		})
	})

	t.Run("nil driver panics", func(t *testing.T) {
		assert.Panics(t, func() {
			RegisterStorageDriver("test-nil", nil)
		})
	})
}

func TestTemplateQuery(t *testing.T) {
	all := []*StoredTemplate{
		{Name: "greeting.en", Tags: []string{"public", "en"}},
		{Name: "greeting.de", Tags: []string{"public", "de"}},
		{Name: "footer", Tags: []string{"internal"}},
	}

	t.Run("nil query", func(t *testing.T) {
		assert.Len(t, applyTemplateQuery(all, nil), 3)
	})

	t.Run("name prefix", func(t *testing.T) {
		got := applyTemplateQuery(all, &TemplateQuery{NamePrefix: "greeting."})
		require.Len(t, got, 2)
		assert.Equal(t, "greeting.en", got[0].Name)
	})

	t.Run("all tags must match", func(t *testing.T) {
		got := applyTemplateQuery(all, &TemplateQuery{Tags: []string{"public", "de"}})
		require.Len(t, got, 1)
		assert.Equal(t, "greeting.de", got[0].Name)
	})

	t.Run("limit", func(t *testing.T) {
		got := applyTemplateQuery(all, &TemplateQuery{Limit: 1})
		require.Len(t, got, 1)
		assert.Equal(t, "greeting.en", got[0].Name)
	})
}

func TestGenerateTemplateID(t *testing.T) {
	a := generateTemplateID()
	b := generateTemplateID()
	assert.NotEqual(t, a, b)
	assert.Contains(t, string(a), TemplateIDPrefix)
}

func TestCopyStoredTemplate(t *testing.T) {
	original := &StoredTemplate{
		Name:     "t",
		Defaults: NewMap(P("a", "1")),
		Metadata: map[string]string{"k": "v"},
		Tags:     []string{"x"},
	}

	cp := copyStoredTemplate(original)
	cp.Defaults.Set("b", "2")
	cp.Metadata["k"] = "changed"
	cp.Tags[0] = "y"

	assert.Equal(t, 1, original.Defaults.Len())
	assert.Equal(t, "v", original.Metadata["k"])
	assert.Equal(t, "x", original.Tags[0])
	assert.Nil(t, copyStoredTemplate(nil))
}

// testTemplateStorage runs the behaviour every TemplateStorage backend
// shares. newStorage must return an empty storage.
func testTemplateStorage(t *testing.T, newStorage func(t *testing.T) TemplateStorage) {
	ctx := context.Background()

	t.Run("save assigns versions", func(t *testing.T) {
		s := newStorage(t)

		first := &StoredTemplate{Name: "greeting", Source: "Hello ${name}"}
		require.NoError(t, s.Save(ctx, first))
		assert.Equal(t, 1, first.Version)
		assert.NotEmpty(t, first.ID)
		assert.False(t, first.CreatedAt.IsZero())

		second := &StoredTemplate{Name: "greeting", Source: "Hi ${name}"}
		require.NoError(t, s.Save(ctx, second))
		assert.Equal(t, 2, second.Version)
		assert.NotEqual(t, first.ID, second.ID)

		got, err := s.Get(ctx, "greeting")
		require.NoError(t, err)
		assert.Equal(t, "Hi ${name}", got.Source)
		assert.Equal(t, 2, got.Version)

		old, err := s.GetVersion(ctx, "greeting", 1)
		require.NoError(t, err)
		assert.Equal(t, "Hello ${name}", old.Source)

		versions, err := s.ListVersions(ctx, "greeting")
		require.NoError(t, err)
		assert.Equal(t, []int{2, 1}, versions)
	})

	t.Run("round trips defaults metadata and tags", func(t *testing.T) {
		s := newStorage(t)

		tmpl := &StoredTemplate{
			Name:     "card",
			Source:   "${title}",
			Defaults: NewMap(P("title", "Untitled"), P("author", "anon")),
			Metadata: map[string]string{"owner": "docs"},
			Tags:     []string{"public"},
		}
		require.NoError(t, s.Save(ctx, tmpl))

		got, err := s.Get(ctx, "card")
		require.NoError(t, err)
		require.NotNil(t, got.Defaults)
		assert.Equal(t, []string{"title", "author"}, mapKeys(got.Defaults))
		title, _ := got.Defaults.Get("title")
		assert.Equal(t, "Untitled", title)
		assert.Equal(t, "docs", got.Metadata["owner"])
		assert.Equal(t, []string{"public"}, got.Tags)
	})

	t.Run("round trips undefined defaults", func(t *testing.T) {
		s := newStorage(t)

		tmpl := &StoredTemplate{
			Name:   "sparse",
			Source: "${x} ${user.nick}",
			Defaults: NewMap(
				P("x", Undefined),
				P("user", map[string]any{"nick": Undefined, "name": "Ann"}),
			),
		}
		require.NoError(t, s.Save(ctx, tmpl))

		got, err := s.Get(ctx, "sparse")
		require.NoError(t, err)

		x, ok := got.Defaults.Get("x")
		require.True(t, ok)
		assert.Equal(t, Undefined, x)

		defs, err := NormalizeAll(got.Defaults)
		require.NoError(t, err)
		assert.Contains(t, defs, D("user.nick", Undefined))
		assert.Contains(t, defs, D("user.name", "Ann"))
	})

	t.Run("missing templates", func(t *testing.T) {
		s := newStorage(t)

		_, err := s.Get(ctx, "missing")
		require.Error(t, err)
		assert.True(t, IsTemplateNotFoundError(err))

		_, err = s.GetVersion(ctx, "missing", 1)
		require.Error(t, err)
		assert.True(t, IsTemplateNotFoundError(err))

		err = s.Delete(ctx, "missing")
		require.Error(t, err)
		assert.True(t, IsTemplateNotFoundError(err))

		exists, err := s.Exists(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, exists)

		versions, err := s.ListVersions(ctx, "missing")
		require.NoError(t, err)
		assert.Empty(t, versions)
	})

	t.Run("delete removes every version", func(t *testing.T) {
		s := newStorage(t)

		require.NoError(t, s.Save(ctx, &StoredTemplate{Name: "t", Source: "1"}))
		require.NoError(t, s.Save(ctx, &StoredTemplate{Name: "t", Source: "2"}))

		exists, err := s.Exists(ctx, "t")
		require.NoError(t, err)
		assert.True(t, exists)

		require.NoError(t, s.Delete(ctx, "t"))

		exists, err = s.Exists(ctx, "t")
		require.NoError(t, err)
		assert.False(t, exists)

		require.NoError(t, s.Save(ctx, &StoredTemplate{Name: "t", Source: "again"}))
		got, err := s.Get(ctx, "t")
		require.NoError(t, err)
		assert.Equal(t, 1, got.Version)
	})

	t.Run("list returns latest versions", func(t *testing.T) {
		s := newStorage(t)

		require.NoError(t, s.Save(ctx, &StoredTemplate{Name: "a", Source: "a1", Tags: []string{"x"}}))
		require.NoError(t, s.Save(ctx, &StoredTemplate{Name: "b", Source: "b1"}))
		require.NoError(t, s.Save(ctx, &StoredTemplate{Name: "a", Source: "a2", Tags: []string{"x"}}))

		list, err := s.List(ctx, nil)
		require.NoError(t, err)
		require.Len(t, list, 2)

		sources := map[string]string{}
		for _, tmpl := range list {
			sources[tmpl.Name] = tmpl.Source
		}
		assert.Equal(t, map[string]string{"a": "a2", "b": "b1"}, sources)

		tagged, err := s.List(ctx, &TemplateQuery{Tags: []string{"x"}})
		require.NoError(t, err)
		require.Len(t, tagged, 1)
		assert.Equal(t, "a", tagged[0].Name)
	})

	t.Run("empty name", func(t *testing.T) {
		s := newStorage(t)
		require.Error(t, s.Save(ctx, &StoredTemplate{Source: "x"}))
	})

	t.Run("cancelled context", func(t *testing.T) {
		s := newStorage(t)

		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := s.Get(cancelled, "t")
		assert.ErrorIs(t, err, context.Canceled)
		assert.ErrorIs(t, s.Save(cancelled, &StoredTemplate{Name: "t"}), context.Canceled)
	})

	t.Run("closed storage", func(t *testing.T) {
		s := newStorage(t)
		require.NoError(t, s.Close())

		_, err := s.Get(ctx, "t")
		require.Error(t, err)

		var storageErr *StorageError
		require.True(t, errors.As(err, &storageErr))
		assert.Equal(t, ErrMsgStorageClosed, storageErr.Message)
	})

	t.Run("backs a template manager", func(t *testing.T) {
		s := newStorage(t)
		tm := MustNewTemplateManager(WithStorage(s))

		_, err := tm.AddWithDefaults(ctx, "welcome", "${greeting}, ${who}!", map[string]any{"greeting": "Hello"})
		require.NoError(t, err)

		tmpl, err := tm.Get(ctx, "welcome")
		require.NoError(t, err)

		out, err := tmpl.Process(ctx, map[string]any{"who": "Ann"})
		require.NoError(t, err)
		assert.Equal(t, "Hello, Ann!", out)
	})

	t.Run("undefined defaults reach the undefined policy", func(t *testing.T) {
		s := newStorage(t)
		tm := MustNewTemplateManager(
			WithStorage(s),
			WithResolverOptions(WithUndefinedReplacement("REPL")),
		)

		_, err := tm.AddWithDefaults(ctx, "sparse", "with ${x}", map[string]any{"x": Undefined})
		require.NoError(t, err)

		tmpl, err := tm.Get(ctx, "sparse")
		require.NoError(t, err)

		out, err := tmpl.Process(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, "with REPL", out)
	})
}
