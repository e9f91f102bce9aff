package subst

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/itsatony/go-cuserr"
)

// Error message constants
const (
	// Normalizer errors
	ErrFmtInvalidPattern = "'pattern' must be a string, not '%s' ('%v'); this error may occur if using an incomplete classic resolver definition - be sure all classic resolver definitions have both a 'pattern' and 'replacement'"

	// Resolver errors
	ErrMsgMaxPassesExceeded      = "placeholder resolution did not reach a fixed point"
	ErrFmtUnsupportedReplacement = "replacement for '%s' is a function of unsupported type '%s'"

	// Watcher errors
	ErrMsgWatcherCreateFailed = "failed to create file watcher"
	ErrMsgWatchDirFailed      = "failed to watch template directory"

	// Registry errors
	ErrMsgInvalidTemplateName = "invalid template name"
	ErrMsgTemplateExists      = "duplicate template name"
	ErrMsgTemplateNotFound    = "template does not exist"
	ErrMsgMarkupParseFailed   = "failed to parse template markup"
	ErrMsgMarkupMissingName   = "embedded template has no name"
	ErrMsgTemplateDirFailed   = "failed to read template directory"

	// Replacement loading errors
	ErrMsgUnsupportedFormat   = "unsupported replacement file format"
	ErrMsgReplacementDecode   = "failed to decode replacement file"
	ErrMsgReplacementNotAMap  = "replacement file must contain a mapping at the top level"
	ErrMsgReplacementReadFile = "failed to read replacement file"
)

// Error code constants for categorization
const (
	ErrCodePattern  = "SUBST_PATTERN"
	ErrCodeResolve  = "SUBST_RESOLVE"
	ErrCodeRegistry = "SUBST_REGISTRY"
	ErrCodeLoad     = "SUBST_LOAD"
	ErrCodeWatch    = "SUBST_WATCH"
)

// NewInvalidPatternError creates the error raised when a definition's pattern
// is not a non-empty string.
func NewInvalidPatternError(pattern any) error {
	typeName := typeNameOf(pattern)
	value := valueTextOf(pattern)
	return cuserr.NewValidationError(ErrCodePattern, fmt.Sprintf(ErrFmtInvalidPattern, typeName, value)).
		WithMetadata(MetaKeyKind, ErrKindInvalidPattern).
		WithMetadata(MetaKeyType, typeName).
		WithMetadata(MetaKeyValue, value)
}

// NewMaxPassesExceededError creates the error returned when a bounded resolve
// is still changing the template after maxPasses passes.
func NewMaxPassesExceededError(maxPasses int) error {
	return cuserr.NewValidationError(ErrCodeResolve, ErrMsgMaxPassesExceeded).
		WithMetadata(MetaKeyKind, ErrKindMaxPasses).
		WithMetadata(MetaKeyMaxPasses, strconv.Itoa(maxPasses))
}

// NewUnsupportedReplacementError creates the error returned when a
// replacement is a function whose signature cannot be invoked.
func NewUnsupportedReplacementError(pattern string, fn any) error {
	typeName := fmt.Sprintf("%T", fn)
	return cuserr.NewValidationError(ErrCodeResolve, fmt.Sprintf(ErrFmtUnsupportedReplacement, pattern, typeName)).
		WithMetadata(MetaKeyKind, ErrKindUnsupportedReplacement).
		WithMetadata(MetaKeyPattern, pattern).
		WithMetadata(MetaKeyType, typeName)
}

// NewWatchError creates an error for a watcher that cannot be set up.
func NewWatchError(msg, dir string, cause error) error {
	return cuserr.WrapStdError(cause, ErrCodeWatch, msg).
		WithMetadata(MetaKeyKind, ErrKindWatch).
		WithMetadata(MetaKeyPath, dir)
}

// NewInvalidTemplateNameError creates an error for nil, empty or blank names.
func NewInvalidTemplateNameError(name string) error {
	return cuserr.NewValidationError(ErrCodeRegistry, ErrMsgInvalidTemplateName).
		WithMetadata(MetaKeyKind, ErrKindInvalidTemplateName).
		WithMetadata(MetaKeyTemplateName, name)
}

// NewTemplateExistsError creates a duplicate template error.
func NewTemplateExistsError(name string) error {
	return cuserr.NewValidationError(ErrCodeRegistry, ErrMsgTemplateExists).
		WithMetadata(MetaKeyKind, ErrKindTemplateExists).
		WithMetadata(MetaKeyTemplateName, name)
}

// NewTemplateNotFoundError creates a missing template error.
func NewTemplateNotFoundError(name string) error {
	return cuserr.NewNotFoundError(MetaKeyTemplateName, ErrMsgTemplateNotFound).
		WithMetadata(MetaKeyKind, ErrKindTemplateNotFound).
		WithMetadata(MetaKeyTemplateName, name)
}

// NewMarkupError creates an error for markup that cannot be loaded.
func NewMarkupError(msg string, cause error) error {
	var err *cuserr.CustomError
	if cause != nil {
		err = cuserr.WrapStdError(cause, ErrCodeRegistry, msg)
	} else {
		err = cuserr.NewValidationError(ErrCodeRegistry, msg)
	}
	return err.WithMetadata(MetaKeyKind, ErrKindMarkup)
}

// NewReplacementFileError creates an error for replacement files that cannot
// be read or decoded.
func NewReplacementFileError(msg, path, format string, cause error) error {
	var err *cuserr.CustomError
	if cause != nil {
		err = cuserr.WrapStdError(cause, ErrCodeLoad, msg)
	} else {
		err = cuserr.NewValidationError(ErrCodeLoad, msg)
	}
	return err.
		WithMetadata(MetaKeyKind, ErrKindReplacementFile).
		WithMetadata(MetaKeyPath, path).
		WithMetadata(MetaKeyFormat, format)
}

// IsInvalidPatternError reports whether err is an invalid pattern error.
func IsInvalidPatternError(err error) bool {
	return errorKind(err) == ErrKindInvalidPattern
}

// IsMaxPassesExceededError reports whether err stopped a bounded resolve.
func IsMaxPassesExceededError(err error) bool {
	return errorKind(err) == ErrKindMaxPasses
}

// IsUnsupportedReplacementError reports whether err rejected a replacement
// function signature.
func IsUnsupportedReplacementError(err error) bool {
	return errorKind(err) == ErrKindUnsupportedReplacement
}

// IsWatchError reports whether err came from setting up a Watcher.
func IsWatchError(err error) bool {
	return errorKind(err) == ErrKindWatch
}

// IsInvalidTemplateNameError reports whether err rejected a template name.
func IsInvalidTemplateNameError(err error) bool {
	return errorKind(err) == ErrKindInvalidTemplateName
}

// IsTemplateExistsError reports whether err is a duplicate template error.
func IsTemplateExistsError(err error) bool {
	return errorKind(err) == ErrKindTemplateExists
}

// IsTemplateNotFoundError reports whether err means the template is missing,
// whether it came from the registry or from a storage backend.
func IsTemplateNotFoundError(err error) bool {
	if errorKind(err) == ErrKindTemplateNotFound {
		return true
	}
	var storageErr *StorageError
	return errors.As(err, &storageErr) && storageErr.Message == ErrMsgVersionNotFound
}

func errorKind(err error) string {
	var customErr *cuserr.CustomError
	if !errors.As(err, &customErr) {
		return ""
	}
	kind, _ := customErr.GetMetadata(MetaKeyKind)
	return kind
}

func typeNameOf(v any) string {
	switch v.(type) {
	case nil:
		return TypeNameNil
	case UndefinedValue:
		return TypeNameUndefined
	default:
		return fmt.Sprintf("%T", v)
	}
}

func valueTextOf(v any) string {
	switch v.(type) {
	case nil:
		return TypeNameNil
	case UndefinedValue:
		return TypeNameUndefined
	default:
		return fmt.Sprintf("%v", v)
	}
}
