package main

import (
	"errors"
	"io"
	"os"
	"strings"

	"github.com/itsatony/go-subst"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// app holds the state shared by every command of one invocation.
type app struct {
	v       *viper.Viper
	stdin   io.Reader
	stdout  io.Writer
	stderr  io.Writer
	logger  *zap.Logger
	cfgFile string
	manager *subst.TemplateManager
}

func newApp(stdin io.Reader, stdout, stderr io.Writer) *app {
	return &app{
		v:      viper.New(),
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
		logger: zap.NewNop(),
	}
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:               CLIName,
		Short:             CLIDescription,
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: a.initConfig,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.cfgFile, FlagConfig, FlagConfigShort, "", "config file (default: ./"+ConfigFileName+"."+ConfigFileType+")")
	flags.BoolP(FlagVerbose, FlagVerboseShort, false, "log debug output to stderr")
	flags.String(FlagStorageDriver, FlagDefaultStorageDriver, "template storage driver ("+strings.Join(subst.ListStorageDrivers(), ", ")+")")
	flags.String(FlagStorageDSN, "", "storage connection string (directory, database path or DSN)")

	_ = a.v.BindPFlag(ConfigKeyVerbose, flags.Lookup(FlagVerbose))
	_ = a.v.BindPFlag(ConfigKeyStorageDriver, flags.Lookup(FlagStorageDriver))
	_ = a.v.BindPFlag(ConfigKeyStorageDSN, flags.Lookup(FlagStorageDSN))

	root.AddCommand(
		a.resolveCommand(),
		a.templatesCommand(),
		a.watchCommand(),
		a.versionCommand(),
	)
	return root
}

// initConfig reads the config file and environment, then builds the logger.
func (a *app) initConfig(cmd *cobra.Command, _ []string) error {
	a.v.SetEnvPrefix(EnvPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	a.v.AutomaticEnv()

	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else {
		a.v.SetConfigName(ConfigFileName)
		a.v.SetConfigType(ConfigFileType)
		a.v.AddConfigPath(".")
	}

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if a.cfgFile != "" || !errors.As(err, &notFound) {
			return newCLIError(ExitCodeInputError, ErrMsgConfigReadFailed, err)
		}
	}

	if a.v.GetBool(ConfigKeyVerbose) {
		a.logger = newCLILogger(a.stderr)
	}
	a.logger.Debug("config loaded", zap.String("file", a.v.ConfigFileUsed()), zap.String("command", cmd.Name()))
	return nil
}

// bindFlags binds command-local flags to config keys.
func (a *app) bindFlags(flags *pflag.FlagSet, keys map[string]string) {
	for flag, key := range keys {
		if f := flags.Lookup(flag); f != nil {
			_ = a.v.BindPFlag(key, f)
		}
	}
}

// templateManager opens the configured storage and wraps it in a manager.
func (a *app) templateManager(opts ...subst.ManagerOption) (*subst.TemplateManager, error) {
	driver := a.v.GetString(ConfigKeyStorageDriver)
	storage, err := subst.OpenStorage(driver, a.v.GetString(ConfigKeyStorageDSN))
	if err != nil {
		return nil, newCLIError(ExitCodeError, ErrMsgOpenStorageFailed, err)
	}

	opts = append([]subst.ManagerOption{
		subst.WithStorage(storage),
		subst.WithManagerLogger(a.logger),
	}, opts...)

	m, err := subst.NewTemplateManager(opts...)
	if err != nil {
		_ = storage.Close()
		return nil, resolveError(err)
	}
	a.manager = m
	return m, nil
}

func (a *app) close() {
	if a.manager != nil {
		_ = a.manager.Close()
	}
	_ = a.logger.Sync()
}

// newCLILogger builds a development console logger writing to w.
func newCLILogger(w io.Writer) *zap.Logger {
	if w == nil {
		w = os.Stderr
	}
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		zapcore.AddSync(w),
		zapcore.DebugLevel,
	)
	return zap.New(core, zap.Development())
}

// resolveError maps library errors to CLI exit codes.
func resolveError(err error) error {
	switch {
	case subst.IsInvalidPatternError(err),
		subst.IsMaxPassesExceededError(err),
		subst.IsInvalidTemplateNameError(err),
		subst.IsTemplateExistsError(err):
		return newCLIError(ExitCodeValidationError, ErrMsgResolveFailed, err)
	case subst.IsTemplateNotFoundError(err):
		return newCLIError(ExitCodeInputError, ErrMsgTemplateFailed, err)
	default:
		return newCLIError(ExitCodeError, ErrMsgTemplateFailed, err)
	}
}
