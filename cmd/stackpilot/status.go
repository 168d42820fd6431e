package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/stackpilot/stackpilot/pkg/config"
	"github.com/stackpilot/stackpilot/pkg/deploy"
)

func newStatusCmd(opts *globalOpts) *cobra.Command {
	envs := &envFlags{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of the deployed services",
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
				if err := printStatus(cmd, cfg); err != nil {
					return err
				}
			}
			return nil
		},
	}

	envs.register(cmd, "all")
	return cmd
}

func printStatus(cmd *cobra.Command, cfg config.Resolved) error {
	ctx := cmd.Context()

	fmt.Printf("\n%s (%s)\n", color.CyanString(cfg.ProjectID), cfg.Environment)

	d, err := deploy.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer d.Close()

	statuses, err := d.Status(ctx)
	if err != nil {
		return err
	}

	for _, s := range statuses {
		state := color.RedString("not deployed")
		if s.Ready {
			state = color.GreenString("ready")
		} else if s.URL != "" {
			state = color.YellowString("not ready")
		}
		fmt.Printf("  %-30s %-12s %s\n", s.Service, state, s.URL)
	}

	recordPath := deploy.RecordPath(cfg.Environment)
	if _, statErr := os.Stat(recordPath); statErr == nil {
		if rec, err := deploy.LoadRecord(recordPath); err == nil {
			fmt.Printf("  last deploy: %s\n", rec.DeployedAt.Format("2006-01-02 15:04:05 MST"))
		} else {
			fmt.Println(color.YellowString("  deployment record unreadable: %v", err))
		}
	}

	return nil
}
