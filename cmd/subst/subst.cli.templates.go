package main

import (
	"fmt"
	"os"

	"github.com/itsatony/go-subst"
	"github.com/spf13/cobra"
)

func (a *app) templatesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     CmdNameTemplates,
		Aliases: []string{"tpl"},
		Short:   "Manage named templates in the configured storage",
	}

	cmd.AddCommand(
		a.templatesAddCommand(),
		a.templatesGetCommand(),
		a.templatesProcessCommand(),
		a.templatesListCommand(),
		a.templatesRemoveCommand(),
		a.templatesLoadCommand(),
	)
	return cmd
}

func (a *app) templatesAddCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   CmdNameAdd + " <name>",
		Short: "Store a template, adding a version when the name exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := a.readSource(cmd)
			if err != nil {
				return err
			}
			m, err := a.templateManager()
			if err != nil {
				return err
			}
			tmpl, err := m.Put(cmd.Context(), args[0], source)
			if err != nil {
				return resolveError(err)
			}
			fmt.Fprintf(a.stdout, FmtListEntry, tmpl.Name(), tmpl.Version())
			return nil
		},
	}
	cmd.Flags().StringP(FlagTemplate, FlagTemplateShort, "", "template text")
	cmd.Flags().StringP(FlagFile, FlagFileShort, "", `template file (use "-" for stdin)`)
	return cmd
}

func (a *app) templatesGetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   CmdNameGet + " <name>",
		Short: "Print the raw text of a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.templateManager()
			if err != nil {
				return err
			}
			tmpl, err := a.lookup(cmd, m, args[0])
			if err != nil {
				return err
			}
			return a.writeResult(tmpl.Raw())
		},
	}
	cmd.Flags().Int(FlagVersion, 0, "template version (default: latest)")
	return cmd
}

func (a *app) templatesProcessCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     CmdNameProcess + " <name>",
		Short:   "Resolve a stored template",
		Args:    cobra.ExactArgs(1),
		PreRunE: a.bindResolverFlags,
		RunE: func(cmd *cobra.Command, args []string) error {
			replacements, err := a.replacements(cmd)
			if err != nil {
				return err
			}
			m, err := a.templateManager(subst.WithResolverOptions(a.resolverOptions(cmd)...))
			if err != nil {
				return err
			}
			tmpl, err := a.lookup(cmd, m, args[0])
			if err != nil {
				return err
			}
			out, err := tmpl.Process(cmd.Context(), replacements)
			if err != nil {
				return resolveError(err)
			}
			return a.writeResult(out)
		},
	}
	cmd.Flags().Int(FlagVersion, 0, "template version (default: latest)")
	addReplacementFlags(cmd)
	addResolverFlags(cmd)
	return cmd
}

func (a *app) templatesListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   CmdNameList,
		Short: "List stored templates with their latest version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := a.templateManager()
			if err != nil {
				return err
			}
			prefix, _ := cmd.Flags().GetString(FlagPrefix)
			templates, err := m.Storage().List(cmd.Context(), &subst.TemplateQuery{NamePrefix: prefix})
			if err != nil {
				return resolveError(err)
			}
			for _, t := range templates {
				fmt.Fprintf(a.stdout, FmtListEntry, t.Name, t.Version)
			}
			return nil
		},
	}
	cmd.Flags().String(FlagPrefix, "", "only list names with this prefix")
	return cmd
}

func (a *app) templatesRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   CmdNameRemove + " <name>...",
		Short: "Remove templates and all their versions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.templateManager()
			if err != nil {
				return err
			}
			for _, name := range args {
				if err := m.Remove(cmd.Context(), name); err != nil {
					return resolveError(err)
				}
			}
			return nil
		},
	}
}

func (a *app) templatesLoadCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   CmdNameLoad,
		Short: "Load templates from a directory or from markup script elements",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			a.bindFlags(cmd.Flags(), map[string]string{
				FlagDir: ConfigKeyTemplateDir,
				FlagExt: ConfigKeyTemplateExt,
			})
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := a.templateManager()
			if err != nil {
				return err
			}

			if markup, _ := cmd.Flags().GetString(FlagMarkup); markup != "" {
				f, err := os.Open(markup)
				if err != nil {
					return newCLIError(ExitCodeInputError, ErrMsgReadFileFailed, err)
				}
				defer f.Close()
				n, err := m.LoadMarkup(cmd.Context(), f)
				if err != nil {
					return resolveError(err)
				}
				fmt.Fprintf(a.stdout, "%d\n", n)
				return nil
			}

			dir := a.v.GetString(ConfigKeyTemplateDir)
			if dir == "" {
				return newCLIError(ExitCodeUsageError, ErrMsgMissingDir, nil)
			}
			names, err := m.LoadDir(cmd.Context(), dir, a.v.GetString(ConfigKeyTemplateExt))
			if err != nil {
				return resolveError(err)
			}
			for _, name := range names {
				fmt.Fprintln(a.stdout, name)
			}
			return nil
		},
	}
	cmd.Flags().String(FlagDir, "", "template directory")
	cmd.Flags().String(FlagExt, subst.DefaultTemplateExt, "template file extension")
	cmd.Flags().String(FlagMarkup, "", "markup file with <script> templates")
	return cmd
}

// lookup fetches the latest or the --version of a template.
func (a *app) lookup(cmd *cobra.Command, m *subst.TemplateManager, name string) (*subst.Template, error) {
	version, _ := cmd.Flags().GetInt(FlagVersion)

	var (
		tmpl *subst.Template
		err  error
	)
	if version > 0 {
		tmpl, err = m.GetVersion(cmd.Context(), name, version)
	} else {
		tmpl, err = m.Get(cmd.Context(), name)
	}
	if err != nil {
		return nil, resolveError(err)
	}
	return tmpl, nil
}
