package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/stackpilot/stackpilot/pkg/config"
	"github.com/stackpilot/stackpilot/pkg/deploy"
)

func newDestroyCmd(opts *globalOpts) *cobra.Command {
	envs := &envFlags{}
	var yes bool

	cmd := &cobra.Command{
		Use:   "destroy",
		Short: "Delete an environment's Cloud Run services",
		Long: `Destroy removes the Cloud Run services for the selected environments.
Container images and the Firestore database are left in place, so a
subsequent deploy restores the environment quickly.`,
		Args: cobra.NoArgs,
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

				ok, err := confirm(
					fmt.Sprintf("delete services %s and %s in %s?",
						cfg.BackendService, cfg.FrontendService, cfg.ProjectID), yes)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Println("destroy cancelled")
					continue
				}

				d, err := deploy.New(cmd.Context(), cfg)
				if err != nil {
					return err
				}
				err = d.Destroy(cmd.Context())
				d.Close()
				if err != nil {
					return err
				}
				fmt.Println(color.GreenString("destroyed services in %s", cfg.ProjectID))
			}
			return nil
		},
	}

	envs.register(cmd, "all")
	cmd.Flags().BoolVar(&yes, "yes", false, "skip the confirmation prompt")

	return cmd
}
