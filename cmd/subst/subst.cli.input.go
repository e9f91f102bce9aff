package main

import (
	"io"
	"os"
	"strings"

	"github.com/itsatony/go-subst"
	"github.com/spf13/cobra"
)

// readSource returns template text from --template, --file or stdin, in
// that order. A --file of "-" also reads stdin.
func (a *app) readSource(cmd *cobra.Command) (string, error) {
	flags := cmd.Flags()
	text, _ := flags.GetString(FlagTemplate)
	file, _ := flags.GetString(FlagFile)

	if flags.Changed(FlagTemplate) && file != "" {
		return "", newCLIError(ExitCodeUsageError, ErrMsgConflictingSources, nil)
	}
	if flags.Changed(FlagTemplate) {
		return text, nil
	}
	if file != "" && file != InputSourceStdin {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", newCLIError(ExitCodeInputError, ErrMsgReadFileFailed, err)
		}
		return string(data), nil
	}

	if a.stdin == nil {
		return "", newCLIError(ExitCodeUsageError, ErrMsgMissingTemplate, nil)
	}
	data, err := io.ReadAll(a.stdin)
	if err != nil {
		return "", newCLIError(ExitCodeInputError, ErrMsgReadStdinFailed, err)
	}
	return string(data), nil
}

// addReplacementFlags registers the flags that build a replacement map.
func addReplacementFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringSliceP(FlagReplacements, FlagReplacementsShort, nil, "replacement file (yaml, json or env), repeatable")
	flags.StringArrayP(FlagSet, FlagSetShort, nil, "replacement as key=value, repeatable")
}

// addResolverFlags registers the flags that configure the resolver.
func addResolverFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String(FlagNull, "", "text for null replacements (default: leave placeholder)")
	flags.String(FlagUndefined, "", "text for undefined replacements (default: leave placeholder)")
	flags.Int(FlagMaxPasses, FlagDefaultMaxPasses, "maximum substitution passes (0 = unbounded)")
	flags.Bool(FlagNoCache, false, "compile placeholder expressions on every use")
}

// bindResolverFlags binds replacement and resolver flags to config keys.
func (a *app) bindResolverFlags(cmd *cobra.Command, _ []string) error {
	a.bindFlags(cmd.Flags(), map[string]string{
		FlagReplacements: ConfigKeyReplacements,
		FlagNull:         ConfigKeyNull,
		FlagUndefined:    ConfigKeyUndefined,
		FlagMaxPasses:    ConfigKeyMaxPasses,
	})
	return nil
}

// replacements merges replacement files followed by --set values.
func (a *app) replacements(cmd *cobra.Command) (*subst.Map, error) {
	var maps []*subst.Map
	for _, path := range a.v.GetStringSlice(ConfigKeyReplacements) {
		m, err := subst.LoadReplacementsFile(path)
		if err != nil {
			return nil, newCLIError(ExitCodeInputError, ErrMsgReadFileFailed, err)
		}
		maps = append(maps, m)
	}

	sets, _ := cmd.Flags().GetStringArray(FlagSet)
	set, err := parseSetValues(sets)
	if err != nil {
		return nil, err
	}
	maps = append(maps, set)

	return subst.MergeMaps(maps...), nil
}

// parseSetValues turns key=value strings into an ordered map. Keys may be
// dotted patterns.
func parseSetValues(values []string) (*subst.Map, error) {
	m := subst.NewMap()
	for _, kv := range values {
		key, value, ok := strings.Cut(kv, SetSeparator)
		if !ok || strings.TrimSpace(key) == "" {
			return nil, newCLIError(ExitCodeUsageError, ErrMsgInvalidSet, nil)
		}
		m.Set(strings.TrimSpace(key), value)
	}
	return m, nil
}

// resolverOptions builds resolver options from flags and config.
func (a *app) resolverOptions(cmd *cobra.Command) []subst.Option {
	opts := []subst.Option{subst.WithLogger(a.logger)}
	if a.v.IsSet(ConfigKeyNull) {
		opts = append(opts, subst.WithNullReplacement(a.v.GetString(ConfigKeyNull)))
	}
	if a.v.IsSet(ConfigKeyUndefined) {
		opts = append(opts, subst.WithUndefinedReplacement(a.v.GetString(ConfigKeyUndefined)))
	}
	if n := a.v.GetInt(ConfigKeyMaxPasses); n > 0 {
		opts = append(opts, subst.WithMaxPasses(n))
	}
	if noCache, _ := cmd.Flags().GetBool(FlagNoCache); noCache {
		opts = append(opts, subst.WithRegexCache(false))
	}
	return opts
}

// writeResult prints resolved text followed by a newline.
func (a *app) writeResult(text string) error {
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	if _, err := io.WriteString(a.stdout, text); err != nil {
		return newCLIError(ExitCodeError, ErrMsgWriteOutputFailed, err)
	}
	return nil
}
