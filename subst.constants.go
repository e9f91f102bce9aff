package subst

import "time"

// Classic definition keys recognised on map-shaped entries
const (
	KeyPattern     = "pattern"
	KeyReplacement = "replacement"
)

// Default configuration values
const (
	// DefaultMaxPasses of 0 leaves the fixed-point loop unbounded.
	DefaultMaxPasses  = 0
	DefaultRegexCache = true
	DefaultScriptType = "text/x-template-manager"
)

// Markup attribute names read by LoadMarkup
const (
	AttrType      = "type"
	AttrName      = "name"
	AttrDataName  = "data-name"
	ElementScript = "script"
)

// Template file loading
const (
	DefaultTemplateExt = ".tmpl"
)

// Type names reported by InvalidPatternError for values without a Go type
const (
	TypeNameNil       = "nil"
	TypeNameUndefined = "undefined"
)

// Replacement file formats
const (
	FormatYAML = "yaml"
	FormatYML  = "yml"
	FormatJSON = "json"
	FormatEnv  = "env"
)

// Storage driver names
const (
	StorageDriverNameMemory     = "memory"
	StorageDriverNameFilesystem = "filesystem"
	StorageDriverNameSQLite     = "sqlite"
	StorageDriverNamePostgres   = "postgres"
)

// Template ID generation
const (
	TemplateIDPrefix = "tmpl_"
)

// Filesystem storage constants
const (
	FilesystemDirPermissions  = 0755
	FilesystemFilePermissions = 0644
	FilesystemVersionPrefix   = "v"
	FilesystemVersionSuffix   = ".json"
)

// SQL storage defaults
const (
	SQLTablePrefix              = "subst_"
	SQLDefaultQueryTimeout      = 30 * time.Second
	PostgresDefaultMaxOpenConns = 25
	PostgresDefaultMaxIdleConns = 5
	PostgresDefaultConnLifetime = 5 * time.Minute
)

// Cache configuration defaults
const (
	DefaultCacheTTL             = 5 * time.Minute
	DefaultCacheCleanupInterval = 10 * time.Minute
)

// Watcher defaults
const (
	DefaultWatchDebounce = 250 * time.Millisecond
)

// Tracing
const (
	TracerName              = "github.com/itsatony/go-subst"
	SpanNameTemplateProcess = "subst.template.process"
	SpanNameResolve         = "subst.resolve"
	AttrKeyTemplateName     = "subst.template.name"
	AttrKeyTemplateVersion  = "subst.template.version"
	AttrKeyDefinitions      = "subst.definitions"
	AttrKeyTemplateLength   = "subst.template.length"
)

// Metadata keys for cuserr.WithMetadata
const (
	MetaKeyValue        = "value"
	MetaKeyType         = "type"
	MetaKeyKind         = "kind"
	MetaKeyTemplateName = "template_name"
	MetaKeyMaxPasses    = "max_passes"
	MetaKeyPath         = "path"
	MetaKeyFormat       = "format"
	MetaKeyPattern      = "pattern"
)

// Error kinds stored under MetaKeyKind
const (
	ErrKindInvalidPattern         = "invalid_pattern"
	ErrKindMaxPasses              = "max_passes_exceeded"
	ErrKindInvalidTemplateName    = "invalid_template_name"
	ErrKindTemplateExists         = "template_exists"
	ErrKindTemplateNotFound       = "template_not_found"
	ErrKindMarkup                 = "markup"
	ErrKindReplacementFile        = "replacement_file"
	ErrKindUnsupportedReplacement = "unsupported_replacement"
	ErrKindWatch                  = "watch"
)

// Log messages
const (
	LogMsgResolverCreated       = "resolver created"
	LogMsgResolveStart          = "resolve started"
	LogMsgResolveEnd            = "resolve reached fixed point"
	LogMsgResolveNoDefinitions  = "no definitions, template returned unchanged"
	LogMsgReplacementFuncFailed = "replacement function failed"
	LogMsgIncompleteClassic     = "incomplete classic definition treated as undefined"
	LogMsgManagerCreated        = "template manager created"
	LogMsgTemplateAdded         = "template added"
	LogMsgTemplateRemoved       = "template removed"
	LogMsgTemplatesEmptied      = "templates emptied"
	LogMsgMarkupTemplateLoaded  = "markup template loaded"
	LogMsgFileTemplateLoaded    = "file template loaded"
	LogMsgWatcherEvent          = "template directory changed"
	LogMsgWatcherSyncFailed     = "template directory sync failed"
)

// Log field keys
const (
	LogFieldPattern     = "pattern"
	LogFieldDefinitions = "definitions"
	LogFieldPasses      = "passes"
	LogFieldTemplate    = "template"
	LogFieldVersion     = "version"
	LogFieldCount       = "count"
	LogFieldPath        = "path"
	LogFieldOp          = "op"
)
