package main

import (
	"github.com/itsatony/go-subst"
	"github.com/spf13/cobra"
)

func (a *app) resolveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   CmdNameResolve,
		Short: "Resolve placeholders in a template",
		Long: `Resolve ${pattern} placeholders in a template until it stops changing.

The template comes from --template, --file or stdin. Replacements come from
--replacements files (yaml, json, env) and --set key=value pairs, applied in
that order.`,
		Example: `  subst resolve -t 'Hello ${user.name}' -s user.name=Alice
  subst resolve -f page.tmpl -r vars.yaml --undefined ''
  echo '${greeting}' | subst resolve -r vars.env`,
		Args:    cobra.NoArgs,
		PreRunE: a.bindResolverFlags,
		RunE:    a.runResolve,
	}

	cmd.Flags().StringP(FlagTemplate, FlagTemplateShort, "", "template text")
	cmd.Flags().StringP(FlagFile, FlagFileShort, "", `template file (use "-" for stdin)`)
	addReplacementFlags(cmd)
	addResolverFlags(cmd)
	return cmd
}

func (a *app) runResolve(cmd *cobra.Command, _ []string) error {
	source, err := a.readSource(cmd)
	if err != nil {
		return err
	}

	replacements, err := a.replacements(cmd)
	if err != nil {
		return err
	}

	r, err := subst.New(nil, a.resolverOptions(cmd)...)
	if err != nil {
		return resolveError(err)
	}

	out, err := r.ResolveContext(cmd.Context(), source, replacements)
	if err != nil {
		return resolveError(err)
	}
	return a.writeResult(out)
}
