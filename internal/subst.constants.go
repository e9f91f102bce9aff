package internal

// Placeholder delimiters
const (
	PlaceholderOpen  = "${"
	PlaceholderClose = "}"
)

// PathSeparator joins nested keys when a replacement value is flattened.
const PathSeparator = "."

// UndefinedJSONKey is the single key of the JSON object an UndefinedValue
// encodes to, so persisted replacements decode back to the sentinel.
const UndefinedJSONKey = "$undefined"

// CaseInsensitiveFlag prefixes every compiled placeholder expression.
const CaseInsensitiveFlag = "(?i)"

// Log messages
const (
	LogMsgPatternCompiled  = "placeholder pattern compiled"
	LogMsgPatternCacheHit  = "placeholder pattern cache hit"
	LogMsgFlattenDroppedFn = "function dropped while flattening replacement"
	LogMsgFlattenDecodeErr = "struct replacement could not be decoded, using it as a leaf"
)

// Log field keys
const (
	LogFieldPattern = "pattern"
	LogFieldPath    = "path"
	LogFieldType    = "type"
	LogFieldError   = "error"
)
