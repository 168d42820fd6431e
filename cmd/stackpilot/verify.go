package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/stackpilot/stackpilot/pkg/config"
	"github.com/stackpilot/stackpilot/pkg/deploy"
	"github.com/stackpilot/stackpilot/pkg/verify"
)

func newVerifyCmd(opts *globalOpts) *cobra.Command {
	envs := &envFlags{}

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Re-run the health check against a deployed environment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stack, ov, err := opts.load()
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

				rec, err := deploy.LoadRecord(deploy.RecordPath(env))
				if err != nil {
					return fmt.Errorf("no deployment record for %s: deploy first (%w)", env, err)
				}
				if rec.BackendURL == "" {
					return fmt.Errorf("deployment record for %s has no backend URL", env)
				}

				report, err := verify.Check(cmd.Context(), rec.BackendURL, cfg.HealthPath)
				if err != nil {
					fmt.Println(color.RedString("unhealthy: %v", err))
					return err
				}
				fmt.Printf("%s %s (status %q)\n", color.GreenString("healthy"), report.URL, report.Status)
			}
			return nil
		},
	}

	envs.register(cmd, "all")
	return cmd
}
