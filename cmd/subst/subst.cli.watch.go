package main

import (
	"path/filepath"
	"time"

	"github.com/itsatony/go-subst"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func (a *app) watchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   CmdNameWatch,
		Short: "Keep a template directory loaded and re-render a template on change",
		Long: `Load every template file in --dir, print the processed --name template,
and print it again whenever the directory changes. Runs until interrupted.`,
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			a.bindFlags(cmd.Flags(), map[string]string{
				FlagDir: ConfigKeyTemplateDir,
				FlagExt: ConfigKeyTemplateExt,
			})
			return a.bindResolverFlags(cmd, args)
		},
		RunE: a.runWatch,
	}
	cmd.Flags().String(FlagDir, "", "template directory")
	cmd.Flags().String(FlagExt, subst.DefaultTemplateExt, "template file extension")
	cmd.Flags().StringP(FlagName, FlagNameShort, "", "template to render (default: none, only list changes)")
	cmd.Flags().Duration(FlagDebounce, subst.DefaultWatchDebounce, "quiet period before a reload")
	addReplacementFlags(cmd)
	addResolverFlags(cmd)
	return cmd
}

func (a *app) runWatch(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	dir := a.v.GetString(ConfigKeyTemplateDir)
	if dir == "" {
		return newCLIError(ExitCodeUsageError, ErrMsgMissingDir, nil)
	}
	ext := a.v.GetString(ConfigKeyTemplateExt)
	name, _ := cmd.Flags().GetString(FlagName)
	debounce, _ := cmd.Flags().GetDuration(FlagDebounce)

	replacements, err := a.replacements(cmd)
	if err != nil {
		return err
	}

	m, err := subst.NewTemplateManager(
		subst.WithManagerLogger(a.logger),
		subst.WithResolverOptions(a.resolverOptions(cmd)...),
	)
	if err != nil {
		return resolveError(err)
	}
	a.manager = m

	if _, err := m.LoadDir(ctx, filepath.Clean(dir), ext); err != nil {
		return resolveError(err)
	}
	if err := a.render(cmd, m, name, replacements); err != nil {
		return err
	}

	w, err := subst.NewWatcher(m, subst.WatchConfig{Dir: dir, Ext: ext, Debounce: debounce})
	if err != nil {
		return newCLIError(ExitCodeError, ErrMsgWatchFailed, err)
	}
	defer w.Stop()

	changes, err := w.Start(ctx)
	if err != nil {
		return newCLIError(ExitCodeError, ErrMsgWatchFailed, err)
	}

	for names := range changes {
		a.logger.Debug("templates changed",
			zap.Strings("names", names),
			zap.Time("at", time.Now()),
		)
		if err := a.render(cmd, m, name, replacements); err != nil {
			// Keep watching; the next save may fix the template.
			if cliErr, ok := err.(*cliError); ok {
				cliErr.print(a.stderr)
			}
		}
	}
	return nil
}

// render prints the processed template, or nothing when name is empty.
func (a *app) render(cmd *cobra.Command, m *subst.TemplateManager, name string, replacements *subst.Map) error {
	if name == "" {
		return nil
	}
	tmpl, err := m.Get(cmd.Context(), name)
	if err != nil {
		return resolveError(err)
	}
	out, err := tmpl.Process(cmd.Context(), replacements)
	if err != nil {
		return resolveError(err)
	}
	return a.writeResult(out)
}
