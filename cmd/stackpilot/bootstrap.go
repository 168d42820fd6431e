package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/stackpilot/stackpilot/pkg/config"
	"github.com/stackpilot/stackpilot/pkg/provision"
	"github.com/stackpilot/stackpilot/pkg/trigger"
)

func newBootstrapCmd(opts *globalOpts) *cobra.Command {
	envs := &envFlags{}
	var developer string
	var yes bool

	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Provision every resource an environment needs",
		Long: `Bootstrap creates the project, links billing, enables the required APIs, and
provisions the registry, database, service accounts, role bindings, Cloud Run
services, and CI/CD triggers for the selected environments. It is idempotent:
re-running against a healthy environment changes nothing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stack, ov, err := opts.load()
			if err != nil {
				return err
			}
			if developer != "" {
				ov.Developer = developer
			}

			targets, err := envs.environments(stack, ov)
			if err != nil {
				return err
			}

			for _, env := range targets {
				cfg, err := config.Resolve(stack, ov, env)
				if err != nil {
					return err
				}
				if err := bootstrapEnvironment(cmd, cfg, yes); err != nil {
					return err
				}
			}
			return nil
		},
	}

	envs.register(cmd, "all")
	cmd.Flags().StringVar(&developer, "developer", "", "developer handle for dev project naming")
	cmd.Flags().BoolVar(&yes, "yes", false, "allow destructive repairs without prompting")

	return cmd
}

func bootstrapEnvironment(cmd *cobra.Command, cfg config.Resolved, yes bool) error {
	ctx := cmd.Context()

	fmt.Printf("\n%s %s (%s)\n", color.CyanString("bootstrapping"), cfg.ProjectID, cfg.Environment)

	prov, err := provision.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer prov.Close()
	prov.AssumeYes = yes

	results, err := prov.Bootstrap(ctx)
	printStepSummary(results)
	if err != nil {
		if hint := remediate(err); hint != "" {
			fmt.Println(color.YellowString("hint: %s", hint))
		}
		return err
	}

	configureTriggers(ctx, cfg)

	fmt.Println(color.GreenString("environment %s is ready", cfg.ProjectID))
	return nil
}

// configureTriggers registers the CI/CD triggers. Trouble here is reported
// and left for a later re-run; the environment itself is already usable.
func configureTriggers(ctx context.Context, cfg config.Resolved) {
	tc, err := trigger.NewConfigurator(ctx, cfg)
	if err != nil {
		fmt.Println(color.YellowString("warning: could not reach Cloud Build for trigger setup: %v", err))
		return
	}
	defer tc.Close()

	n := tc.Configure(ctx, trigger.Definitions(cfg.ServiceName))
	if n > 0 {
		fmt.Printf("  %s %d build triggers\n", color.GreenString("configured"), n)
	}
}

func printStepSummary(results []provision.StepResult) {
	for _, r := range results {
		switch r.Action {
		case provision.ActionCreated:
			fmt.Printf("  %s %s\n", color.GreenString("created"), r.Descriptor)
		case provision.ActionConfigured:
			fmt.Printf("  %s %s\n", color.CyanString("configured"), r.Descriptor)
		case provision.ActionWarned:
			fmt.Printf("  %s %s: %v\n", color.YellowString("warning"), r.Descriptor, r.Err)
		default:
			fmt.Printf("  %s %s\n", color.New(color.Faint).Sprint("exists"), r.Descriptor)
		}
	}
}
