package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stackpilot/stackpilot/pkg/config"
	"github.com/stackpilot/stackpilot/pkg/errdefs"
)

// globalOpts are the flags shared by every subcommand.
type globalOpts struct {
	stackFile     string
	overridesFile string
}

// envFlags is the standard environment selector: at most one of the three,
// or all of them.
type envFlags struct {
	dev     bool
	staging bool
	prod    bool
	all     bool
}

func (f *envFlags) register(cmd *cobra.Command, allName string) {
	cmd.Flags().BoolVar(&f.dev, "dev", false, "target the dev environment")
	cmd.Flags().BoolVar(&f.staging, "staging", false, "target the staging environment")
	cmd.Flags().BoolVar(&f.prod, "prod", false, "target the prod environment")
	cmd.Flags().BoolVar(&f.all, allName, false, "target every enabled environment")
}

// environments resolves the selector against the stack config, falling back
// to the operator's default environment when no flag is given.
func (f *envFlags) environments(stack *config.Stack, ov *config.Overrides) ([]config.Environment, error) {
	picked := 0
	env := config.Environment(ov.Environment)
	if f.dev {
		picked++
		env = config.EnvDev
	}
	if f.staging {
		picked++
		env = config.EnvStaging
	}
	if f.prod {
		picked++
		env = config.EnvProd
	}
	if picked > 1 {
		return nil, fmt.Errorf("at most one of --dev, --staging, --prod may be set")
	}
	if !f.all {
		if _, err := config.ParseEnvironment(string(env)); err != nil {
			return nil, err
		}
	}
	return stack.TargetEnvironments(f.all, env), nil
}

func newRootCmd() *cobra.Command {
	opts := &globalOpts{}

	root := &cobra.Command{
		Use:           "stackpilot",
		Short:         "Provision and deploy a web stack on Google Cloud Run",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.stackFile, "config", "stack.yaml",
		"path to the shared stack configuration")
	root.PersistentFlags().StringVar(&opts.overridesFile, "overrides", config.DefaultOverridesFile,
		"path to the operator override file")

	root.AddCommand(
		newBootstrapCmd(opts),
		newDeployCmd(opts),
		newSimulateCmd(opts),
		newStatusCmd(opts),
		newVerifyCmd(opts),
		newDestroyCmd(opts),
	)

	return root
}

// load reads both configuration layers. Errors here are almost always a
// missing key, so they surface as MissingConfiguration with the file named.
func (o *globalOpts) load() (*config.Stack, *config.Overrides, error) {
	stack, err := config.Load(o.stackFile)
	if err != nil {
		return nil, nil, err
	}
	ov, err := config.LoadOverrides(o.overridesFile)
	if err != nil {
		return nil, nil, err
	}
	return stack, ov, nil
}

// confirm asks the operator before an action that cannot be undone. yes
// short-circuits for unattended runs.
func confirm(prompt string, yes bool) (bool, error) {
	if yes {
		return true, nil
	}

	fmt.Printf("%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("failed to read confirmation: %w", err)
	}

	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

// remediate prints a follow-up hint for error classes that have one.
func remediate(err error) string {
	switch {
	case errdefs.IsInsufficientPermissions(err):
		return "check the active credentials and their project roles"
	case errdefs.IsRegistryNotFound(err):
		return "run \"stackpilot bootstrap\" for this environment first"
	case errdefs.IsExternalToolMissing(err):
		return "install the missing tool, or use --remote to build without Docker"
	}
	return ""
}
