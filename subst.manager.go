package subst

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/itsatony/go-subst/internal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ManagerOption is a functional option for configuring a TemplateManager.
type ManagerOption func(*managerConfig)

// managerConfig holds the internal configuration for a TemplateManager.
type managerConfig struct {
	defaults       any
	resolverOpts   []Option
	storage        TemplateStorage
	scriptType     string
	logger         *zap.Logger
	tracing        bool
	tracerProvider trace.TracerProvider
}

// WithDefaultReplacements sets replacements applied to every template,
// before the template's own defaults.
func WithDefaultReplacements(defaults any) ManagerOption {
	return func(c *managerConfig) {
		c.defaults = defaults
	}
}

// WithResolverOptions sets the options of the manager's resolver.
func WithResolverOptions(opts ...Option) ManagerOption {
	return func(c *managerConfig) {
		c.resolverOpts = append(c.resolverOpts, opts...)
	}
}

// WithStorage sets the template storage backend.
// Default: a new MemoryStorage
func WithStorage(storage TemplateStorage) ManagerOption {
	return func(c *managerConfig) {
		c.storage = storage
	}
}

// WithScriptType sets the script type recognised by LoadMarkup.
// Default: "text/x-template-manager"
func WithScriptType(scriptType string) ManagerOption {
	return func(c *managerConfig) {
		if scriptType != "" {
			c.scriptType = scriptType
		}
	}
}

// WithManagerLogger sets the logger for the manager and its resolver.
// Default: nil (no logging)
func WithManagerLogger(logger *zap.Logger) ManagerOption {
	return func(c *managerConfig) {
		c.logger = logger
	}
}

// WithTracing enables OpenTelemetry spans around Template.Process using the
// global tracer provider.
func WithTracing(enabled bool) ManagerOption {
	return func(c *managerConfig) {
		c.tracing = enabled
	}
}

// WithTracerProvider enables tracing with a specific provider.
func WithTracerProvider(provider trace.TracerProvider) ManagerOption {
	return func(c *managerConfig) {
		c.tracing = provider != nil
		c.tracerProvider = provider
	}
}

// TemplateManager is a registry of named templates processed by a shared
// Resolver. It is safe for concurrent use when its storage is.
type TemplateManager struct {
	storage    TemplateStorage
	resolver   *Resolver
	normalizer *normalizer
	flattener  *internal.Flattener
	scriptType string
	spans      SpanManager
	logger     *zap.Logger
}

// NewTemplateManager creates a TemplateManager.
func NewTemplateManager(opts ...ManagerOption) (*TemplateManager, error) {
	config := &managerConfig{
		scriptType: DefaultScriptType,
	}
	for _, opt := range opts {
		opt(config)
	}

	logger := config.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	resolverOpts := append([]Option{WithLogger(logger)}, config.resolverOpts...)
	resolver, err := New(config.defaults, resolverOpts...)
	if err != nil {
		return nil, err
	}

	storage := config.storage
	if storage == nil {
		storage = NewMemoryStorage()
	}

	var spans SpanManager = NoopSpanManager{}
	if config.tracing {
		spans = NewSpanManager(config.tracerProvider)
	}

	logger.Debug(LogMsgManagerCreated, zap.Int(LogFieldDefinitions, len(resolver.defaults)))

	return &TemplateManager{
		storage:    storage,
		resolver:   resolver,
		normalizer: newNormalizer(logger),
		flattener:  internal.NewFlattener(nil, logger),
		scriptType: config.scriptType,
		spans:      spans,
		logger:     logger,
	}, nil
}

// MustNewTemplateManager creates a TemplateManager and panics on error.
func MustNewTemplateManager(opts ...ManagerOption) *TemplateManager {
	m, err := NewTemplateManager(opts...)
	if err != nil {
		panic(err)
	}
	return m
}

// Resolver returns the manager's resolver.
func (m *TemplateManager) Resolver() *Resolver {
	return m.resolver
}

// Storage returns the manager's storage backend.
func (m *TemplateManager) Storage() TemplateStorage {
	return m.storage
}

// Add registers a new template. The name must not be blank and must not be
// registered yet.
func (m *TemplateManager) Add(ctx context.Context, name, source string) (*Template, error) {
	return m.AddWithDefaults(ctx, name, source, nil)
}

// AddWithDefaults registers a new template with its own default
// replacements. Backends other than memory persist defaults as JSON.
func (m *TemplateManager) AddWithDefaults(ctx context.Context, name, source string, defaults any) (*Template, error) {
	if err := validateTemplateName(name); err != nil {
		return nil, err
	}

	defaultsMap, err := m.toMap(defaults)
	if err != nil {
		return nil, err
	}

	exists, err := m.storage.Exists(ctx, name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, NewTemplateExistsError(name)
	}

	stored := &StoredTemplate{Name: name, Source: source, Defaults: defaultsMap}
	if err := m.storage.Save(ctx, stored); err != nil {
		return nil, err
	}

	m.logger.Debug(LogMsgTemplateAdded,
		zap.String(LogFieldTemplate, name),
		zap.Int(LogFieldVersion, stored.Version),
	)
	return m.newTemplate(stored)
}

// Update saves source as a new version of an existing template. The
// template's defaults carry over.
func (m *TemplateManager) Update(ctx context.Context, name, source string) (*Template, error) {
	if err := validateTemplateName(name); err != nil {
		return nil, err
	}

	current, err := m.storage.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	return m.save(ctx, name, source, current.Defaults)
}

// Put saves source under name, creating the template or adding a version.
func (m *TemplateManager) Put(ctx context.Context, name, source string) (*Template, error) {
	if err := validateTemplateName(name); err != nil {
		return nil, err
	}

	var defaults *Map
	current, err := m.storage.Get(ctx, name)
	switch {
	case err == nil:
		defaults = current.Defaults
	case !IsTemplateNotFoundError(err):
		return nil, err
	}
	return m.save(ctx, name, source, defaults)
}

func (m *TemplateManager) save(ctx context.Context, name, source string, defaults *Map) (*Template, error) {
	stored := &StoredTemplate{Name: name, Source: source, Defaults: defaults}
	if err := m.storage.Save(ctx, stored); err != nil {
		return nil, err
	}
	m.logger.Debug(LogMsgTemplateAdded,
		zap.String(LogFieldTemplate, name),
		zap.Int(LogFieldVersion, stored.Version),
	)
	return m.newTemplate(stored)
}

// Get returns the latest version of a template.
func (m *TemplateManager) Get(ctx context.Context, name string) (*Template, error) {
	if err := validateTemplateName(name); err != nil {
		return nil, err
	}

	stored, err := m.storage.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	return m.newTemplate(stored)
}

// GetVersion returns a specific version of a template.
func (m *TemplateManager) GetVersion(ctx context.Context, name string, version int) (*Template, error) {
	if err := validateTemplateName(name); err != nil {
		return nil, err
	}

	stored, err := m.storage.GetVersion(ctx, name, version)
	if err != nil {
		return nil, err
	}
	return m.newTemplate(stored)
}

// Remove deletes every version of a template. Removing an unknown name is
// not an error.
func (m *TemplateManager) Remove(ctx context.Context, name string) error {
	if err := validateTemplateName(name); err != nil {
		return err
	}

	if err := m.storage.Delete(ctx, name); err != nil && !IsTemplateNotFoundError(err) {
		return err
	}
	m.logger.Debug(LogMsgTemplateRemoved, zap.String(LogFieldTemplate, name))
	return nil
}

// Has reports whether a template is registered.
func (m *TemplateManager) Has(ctx context.Context, name string) (bool, error) {
	if err := validateTemplateName(name); err != nil {
		return false, err
	}
	return m.storage.Exists(ctx, name)
}

// Names returns the registered template names in the storage's list order.
func (m *TemplateManager) Names(ctx context.Context) ([]string, error) {
	templates, err := m.storage.List(ctx, nil)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(templates))
	for i, t := range templates {
		names[i] = t.Name
	}
	return names, nil
}

// Empty removes every template.
func (m *TemplateManager) Empty(ctx context.Context) error {
	names, err := m.Names(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := m.storage.Delete(ctx, name); err != nil && !IsTemplateNotFoundError(err) {
			return err
		}
	}
	m.logger.Debug(LogMsgTemplatesEmptied, zap.Int(LogFieldCount, len(names)))
	return nil
}

// LoadDir registers every file in dir with the extension ext (default
// ".tmpl") as a template named by its base name. Existing templates get a
// new version. It returns the loaded names in directory order.
func (m *TemplateManager) LoadDir(ctx context.Context, dir, ext string) ([]string, error) {
	if ext == "" {
		ext = DefaultTemplateExt
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, NewMarkupError(ErrMsgTemplateDirFailed, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ext {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		name, err := m.LoadFile(ctx, path)
		if err != nil {
			return names, err
		}
		names = append(names, name)
	}
	return names, nil
}

// LoadFile registers a single template file under its base name without
// extension and returns that name.
func (m *TemplateManager) LoadFile(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", NewMarkupError(ErrMsgTemplateDirFailed, err)
	}

	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	if _, err := m.Put(ctx, name, strings.TrimSpace(string(data))); err != nil {
		return "", err
	}
	m.logger.Debug(LogMsgFileTemplateLoaded,
		zap.String(LogFieldTemplate, name),
		zap.String(LogFieldPath, path),
	)
	return name, nil
}

// Close closes the underlying storage.
func (m *TemplateManager) Close() error {
	return m.storage.Close()
}

// toMap converts template defaults to an ordered map and checks that they
// normalize.
func (m *TemplateManager) toMap(defaults any) (*Map, error) {
	if defaults == nil {
		return nil, nil
	}
	if _, err := m.normalizer.all(defaults); err != nil {
		return nil, err
	}
	if om, ok := defaults.(*Map); ok {
		return copyMap(om), nil
	}
	if !m.flattener.IsComposite(defaults) {
		return nil, NewInvalidPatternError(defaults)
	}

	out := NewMap()
	err := m.flattener.Each(defaults, func(key any, value any) error {
		out.Set(internal.KeyString(key), value)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (m *TemplateManager) newTemplate(stored *StoredTemplate) (*Template, error) {
	var defaults []Definition
	if stored.Defaults != nil {
		defs, err := m.normalizer.all(stored.Defaults)
		if err != nil {
			return nil, err
		}
		defaults = defs
	}
	return &Template{
		name:     stored.Name,
		source:   stored.Source,
		version:  stored.Version,
		defaults: defaults,
		manager:  m,
	}, nil
}

// validateTemplateName rejects empty or whitespace-only names.
func validateTemplateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return NewInvalidTemplateNameError(name)
	}
	return nil
}

// Template is a handle on one stored template version.
type Template struct {
	name     string
	source   string
	version  int
	defaults []Definition
	manager  *TemplateManager
}

// Name returns the template name.
func (t *Template) Name() string {
	return t.name
}

// Version returns the stored version number.
func (t *Template) Version() int {
	return t.version
}

// Raw returns the unprocessed template text.
func (t *Template) Raw() string {
	return t.source
}

// Defaults returns a copy of the template's own normalized defaults.
func (t *Template) Defaults() []Definition {
	out := make([]Definition, len(t.defaults))
	copy(out, t.defaults)
	return out
}

// Process resolves the template. Replacements apply in the order manager
// defaults, template defaults, extra.
func (t *Template) Process(ctx context.Context, extra any) (result string, err error) {
	spans := t.manager.spans
	ctx, span := spans.StartProcessSpan(ctx, t.name, t.version)
	defer func() { spans.EndSpanWithError(span, err) }()

	extraDefs, err := t.manager.normalizer.all(extra)
	if err != nil {
		return "", err
	}

	defs := make([]Definition, 0, len(t.defaults)+len(extraDefs))
	defs = append(defs, t.defaults...)
	defs = append(defs, extraDefs...)

	span.SetAttributes(
		attribute.Int(AttrKeyDefinitions, len(t.manager.resolver.defaults)+len(defs)),
		attribute.Int(AttrKeyTemplateLength, len(t.source)),
	)

	return t.manager.resolver.ResolveContext(ctx, t.source, defs)
}
