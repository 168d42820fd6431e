package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/stackpilot/stackpilot/pkg/config"
	"github.com/stackpilot/stackpilot/pkg/trigger"
)

func newSimulateCmd(opts *globalOpts) *cobra.Command {
	var branch, tag, prTitle string

	cmd := &cobra.Command{
		Use:   "simulate <dev|main|tag|pr>",
		Short: "Show which environment a repository event would deploy",
		Long: `Simulate evaluates a hypothetical push or pull request against the CI/CD
trigger rules locally, without touching Cloud Build. Useful for checking
where a branch or tag will land before pushing it.`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"dev", "main", "tag", "pr"},
		RunE: func(cmd *cobra.Command, args []string) error {
			stack, _, err := opts.load()
			if err != nil {
				return err
			}

			event, err := buildEvent(args[0], branch, tag, prTitle)
			if err != nil {
				return err
			}

			defs := trigger.Definitions(config.ResolveResourceName(stack.ServiceName))
			outcomes := trigger.Simulate(defs, event)

			fmt.Printf("event: %s\n", describeEvent(event))
			fired := false
			for _, o := range outcomes {
				if o.Fires {
					fired = true
					fmt.Printf("  %s %s → %s (%s)\n",
						color.GreenString("fires"), o.Trigger, o.Environment, o.Reason)
				} else {
					fmt.Printf("  %s %s (%s)\n",
						color.New(color.Faint).Sprint("skips"), o.Trigger, o.Reason)
				}
			}
			if !fired {
				fmt.Println(color.YellowString("no trigger fires; nothing would deploy"))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&branch, "branch", "feature/example", "branch name for dev simulations")
	cmd.Flags().StringVar(&tag, "tag", "v1.0.0", "tag name for tag simulations")
	cmd.Flags().StringVar(&prTitle, "pr-title", "Example change", "title for pull request simulations")

	return cmd
}

func buildEvent(kind, branch, tag, prTitle string) (trigger.Event, error) {
	switch kind {
	case "dev":
		return trigger.Event{Branch: branch}, nil
	case "main":
		return trigger.Event{Branch: "main"}, nil
	case "tag":
		return trigger.Event{Tag: tag}, nil
	case "pr":
		return trigger.Event{PullRequest: true, PRTitle: prTitle}, nil
	}
	return trigger.Event{}, fmt.Errorf("unknown event %q: expected dev, main, tag, or pr", kind)
}

func describeEvent(ev trigger.Event) string {
	switch {
	case ev.PullRequest:
		return fmt.Sprintf("pull request %q", ev.PRTitle)
	case ev.Tag != "":
		return fmt.Sprintf("push of tag %s", ev.Tag)
	default:
		return fmt.Sprintf("push to branch %s", ev.Branch)
	}
}
