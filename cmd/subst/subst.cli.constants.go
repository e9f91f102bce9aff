package main

import "os"

// CLI identity
const (
	CLIName        = "subst"
	CLIDescription = "Resolve ${pattern} placeholders in text and manage named templates"
	ConfigFileName = ".subst"
	ConfigFileType = "yaml"
	EnvPrefix      = "SUBST"
)

// Command names
const (
	CmdNameResolve   = "resolve"
	CmdNameTemplates = "templates"
	CmdNameAdd       = "add"
	CmdNameGet       = "get"
	CmdNameProcess   = "process"
	CmdNameList      = "list"
	CmdNameRemove    = "remove"
	CmdNameLoad      = "load"
	CmdNameWatch     = "watch"
	CmdNameVersion   = "version"
)

// Flag names - long form
const (
	FlagConfig        = "config"
	FlagVerbose       = "verbose"
	FlagStorageDriver = "storage-driver"
	FlagStorageDSN    = "storage-dsn"
	FlagTemplate      = "template"
	FlagFile          = "file"
	FlagReplacements  = "replacements"
	FlagSet           = "set"
	FlagNull          = "null"
	FlagUndefined     = "undefined"
	FlagMaxPasses     = "max-passes"
	FlagNoCache       = "no-regex-cache"
	FlagVersion       = "version"
	FlagDir           = "dir"
	FlagExt           = "ext"
	FlagName          = "name"
	FlagMarkup        = "markup"
	FlagDebounce      = "debounce"
	FlagPrefix        = "prefix"
)

// Flag names - short form
const (
	FlagConfigShort       = "c"
	FlagVerboseShort      = "v"
	FlagTemplateShort     = "t"
	FlagFileShort         = "f"
	FlagReplacementsShort = "r"
	FlagSetShort          = "s"
	FlagNameShort         = "n"
)

// Config keys read through viper
const (
	ConfigKeyVerbose       = "verbose"
	ConfigKeyStorageDriver = "storage.driver"
	ConfigKeyStorageDSN    = "storage.dsn"
	ConfigKeyReplacements  = "replacements"
	ConfigKeyNull          = "null"
	ConfigKeyUndefined     = "undefined"
	ConfigKeyMaxPasses     = "max_passes"
	ConfigKeyTemplateDir   = "templates.dir"
	ConfigKeyTemplateExt   = "templates.ext"
)

// Flag default values
const (
	FlagDefaultStorageDriver = "memory"
	FlagDefaultMaxPasses     = 0
)

// Exit codes
const (
	ExitCodeSuccess         = 0
	ExitCodeError           = 1
	ExitCodeUsageError      = 2
	ExitCodeValidationError = 3
	ExitCodeInputError      = 4
)

// Input source indicators
const (
	InputSourceStdin = "-"
	SetSeparator     = "="
)

// File permissions
const (
	FilePermissions os.FileMode = 0o644
)

// Error messages - ALL must be constants
const (
	ErrMsgMissingTemplate    = "template source required"
	ErrMsgConflictingSources = "use only one of --template and --file"
	ErrMsgReadFileFailed     = "failed to read file"
	ErrMsgReadStdinFailed    = "failed to read from stdin"
	ErrMsgWriteOutputFailed  = "failed to write output"
	ErrMsgInvalidSet         = "invalid --set value, expected key=value"
	ErrMsgResolveFailed      = "resolve failed"
	ErrMsgConfigReadFailed   = "failed to read config file"
	ErrMsgOpenStorageFailed  = "failed to open storage"
	ErrMsgLoggerFailed       = "failed to build logger"
	ErrMsgTemplateFailed     = "template operation failed"
	ErrMsgWatchFailed        = "watch failed"
	ErrMsgMissingDir         = "--dir is required"
)

// Output formats
const (
	FmtErrorWithCause = "%s: %v\n"
	FmtError          = "%s\n"
	FmtListEntry      = "%s\tv%d\n"
)

// Version information, set with -ldflags at build time.
var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)
