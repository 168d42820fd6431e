package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/stackpilot/stackpilot/pkg/config"
	"github.com/stackpilot/stackpilot/pkg/deploy"
	"github.com/stackpilot/stackpilot/pkg/verify"
)

func newDeployCmd(opts *globalOpts) *cobra.Command {
	envs := &envFlags{}
	var backend, frontend, all bool
	var yes, remote bool

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Build, push, and roll out application images",
		Long: `Deploy builds the selected components, pushes them to Artifact Registry,
rolls the Cloud Run services forward to the new images, and verifies the
backend's health endpoint. Prod deploys ask for confirmation unless --yes
is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stack, ov, err := opts.load()
			if err != nil {
				return err
			}

			components, err := selectComponents(backend, frontend, all)
			if err != nil {
				return err
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

				if env == config.EnvProd {
					ok, err := confirm(
						fmt.Sprintf("deploy %v to PROD (%s)?", components, cfg.ProjectID), yes)
					if err != nil {
						return err
					}
					if !ok {
						fmt.Println("prod deploy cancelled")
						continue
					}
				}

				if err := deployEnvironment(cmd, cfg, components, remote); err != nil {
					return err
				}
			}
			return nil
		},
	}

	envs.register(cmd, "all_envs")
	cmd.Flags().BoolVar(&all, "all", false, "deploy both components")
	cmd.Flags().BoolVar(&backend, "backend", false, "deploy the backend only")
	cmd.Flags().BoolVar(&frontend, "frontend", false, "deploy the frontend only")
	cmd.Flags().BoolVar(&yes, "yes", false, "skip the prod confirmation prompt")
	cmd.Flags().BoolVar(&remote, "remote", false, "build on Cloud Build instead of the local Docker daemon")

	return cmd
}

func selectComponents(backend, frontend, all bool) ([]deploy.Component, error) {
	if backend && frontend {
		all = true
	}
	switch {
	case all || (!backend && !frontend):
		return deploy.AllComponents, nil
	case backend:
		return []deploy.Component{deploy.ComponentBackend}, nil
	default:
		return []deploy.Component{deploy.ComponentFrontend}, nil
	}
}

func deployEnvironment(cmd *cobra.Command, cfg config.Resolved, components []deploy.Component, remote bool) error {
	ctx := cmd.Context()

	fmt.Printf("\n%s %s (%s)\n", color.CyanString("deploying to"), cfg.ProjectID, cfg.Environment)

	d, err := deploy.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer d.Close()
	d.Remote = remote

	record, err := d.Deploy(ctx, components)
	if err != nil {
		if hint := remediate(err); hint != "" {
			fmt.Println(color.YellowString("hint: %s", hint))
		}
		return err
	}

	if record.BackendURL != "" {
		fmt.Printf("  backend   %s\n", color.GreenString(record.BackendURL))
	}
	if record.FrontendURL != "" {
		fmt.Printf("  frontend  %s\n", color.GreenString(record.FrontendURL))
	}

	if record.BackendURL != "" {
		if err := verifyBackend(cmd, cfg, record.BackendURL); err != nil {
			return err
		}
	}

	fmt.Println(color.GreenString("deployed %s", cfg.ProjectID))
	return nil
}

// verifyBackend runs the single post-deploy health probe and, on failure,
// pulls the service's recent logs so the operator sees why.
func verifyBackend(cmd *cobra.Command, cfg config.Resolved, url string) error {
	ctx := cmd.Context()

	report, err := verify.Check(ctx, url, cfg.HealthPath)
	if err == nil {
		fmt.Printf("  health    %s (%s)\n", color.GreenString("ok"), report.URL)
		return nil
	}

	fmt.Println(color.RedString("health check failed: %v", err))

	entries, logErr := deploy.TailLogs(ctx, cfg, cfg.BackendService, 20)
	if logErr != nil {
		fmt.Println(color.YellowString("could not fetch service logs: %v", logErr))
		return err
	}
	for _, e := range entries {
		fmt.Printf("  %s %-8s %s\n", e.Timestamp, e.Severity, e.Payload)
	}
	return err
}
