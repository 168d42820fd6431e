// Package trigger registers the Cloud Build triggers that turn pushes into
// deployments: feature branches roll dev, main rolls staging, version tags
// roll prod. Registration problems never fail a bootstrap; an environment
// without CI/CD is still usable through manual deploys.
package trigger

import (
	"context"
	"fmt"

	cloudbuild "cloud.google.com/go/cloudbuild/apiv1/v2"
	"cloud.google.com/go/cloudbuild/apiv1/v2/cloudbuildpb"
	"google.golang.org/api/iterator"

	"github.com/stackpilot/stackpilot/pkg/config"
	"github.com/stackpilot/stackpilot/pkg/logging"
)

const mainBranchPattern = "^main$"

// Definition declares one trigger: what it watches and which environment it
// deploys. Patterns are RE2 and evaluated by the platform; the dev trigger
// inverts the main-branch match rather than encoding negation in the
// pattern, which RE2 cannot express.
type Definition struct {
	Name        string
	Description string
	Environment config.Environment

	BranchPattern string
	InvertBranch  bool
	TagPattern    string
}

// Definitions returns the three triggers for a service, in environment
// order.
func Definitions(serviceName string) []Definition {
	return []Definition{
		{
			Name:          serviceName + "-deploy-dev",
			Description:   "Deploy feature branch pushes to the dev environment",
			Environment:   config.EnvDev,
			BranchPattern: mainBranchPattern,
			InvertBranch:  true,
		},
		{
			Name:          serviceName + "-deploy-staging",
			Description:   "Deploy main to the staging environment",
			Environment:   config.EnvStaging,
			BranchPattern: mainBranchPattern,
		},
		{
			Name:        serviceName + "-deploy-prod",
			Description: "Deploy version tags to the prod environment",
			Environment: config.EnvProd,
			TagPattern:  `^v\d+\.\d+\.\d+$`,
		},
	}
}

// Configurator upserts build triggers for one project.
type Configurator struct {
	cfg    config.Resolved
	client *cloudbuild.Client
}

// NewConfigurator creates a trigger configurator.
func NewConfigurator(ctx context.Context, cfg config.Resolved) (*Configurator, error) {
	client, err := cloudbuild.NewClient(ctx, cfg.ClientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Cloud Build client: %w", err)
	}
	return &Configurator{cfg: cfg, client: client}, nil
}

// Close releases the underlying client.
func (c *Configurator) Close() error {
	return c.client.Close()
}

// Configure upserts every trigger definition. Each failure is logged with
// remediation steps and counted, but never propagated: the returned error is
// reserved for being unable to talk to the platform at all.
func (c *Configurator) Configure(ctx context.Context, defs []Definition) int {
	if c.cfg.SkipTriggers {
		logging.Info("trigger registration skipped by configuration")
		return 0
	}
	if c.cfg.GitHub == nil {
		logging.Warn("no github repository configured, skipping trigger registration",
			"remediation", "add a github: {owner, repo} section to stack.yaml")
		return 0
	}

	existing, err := c.listByName(ctx)
	if err != nil {
		logging.Warn("could not list existing triggers", "error", err.Error())
		existing = map[string]string{}
	}

	configured := 0
	for _, def := range defs {
		if err := c.upsert(ctx, def, existing); err != nil {
			c.reportFailure(def, err)
			continue
		}
		configured++
	}
	return configured
}

func (c *Configurator) listByName(ctx context.Context) (map[string]string, error) {
	it := c.client.ListBuildTriggers(ctx, &cloudbuildpb.ListBuildTriggersRequest{
		ProjectId: c.cfg.ProjectID,
	})

	byName := map[string]string{}
	for {
		t, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list triggers: %w", err)
		}
		byName[t.Name] = t.Id
	}
	return byName, nil
}

func (c *Configurator) upsert(ctx context.Context, def Definition, existing map[string]string) error {
	trigger := c.render(def)

	if id, ok := existing[def.Name]; ok {
		trigger.Id = id
		_, err := c.client.UpdateBuildTrigger(ctx, &cloudbuildpb.UpdateBuildTriggerRequest{
			ProjectId: c.cfg.ProjectID,
			TriggerId: id,
			Trigger:   trigger,
		})
		if err != nil {
			return fmt.Errorf("failed to update trigger %s: %w", def.Name, err)
		}
		logging.Info("updated trigger", "trigger", def.Name)
		return nil
	}

	_, err := c.client.CreateBuildTrigger(ctx, &cloudbuildpb.CreateBuildTriggerRequest{
		ProjectId: c.cfg.ProjectID,
		Trigger:   trigger,
	})
	if err != nil {
		return fmt.Errorf("failed to create trigger %s: %w", def.Name, err)
	}
	logging.Info("created trigger", "trigger", def.Name, "environment", string(def.Environment))
	return nil
}

func (c *Configurator) render(def Definition) *cloudbuildpb.BuildTrigger {
	events := &cloudbuildpb.GitHubEventsConfig{
		Owner: c.cfg.GitHub.Owner,
		Name:  c.cfg.GitHub.Repo,
	}

	if def.TagPattern != "" {
		events.Event = &cloudbuildpb.GitHubEventsConfig_Push{
			Push: &cloudbuildpb.PushFilter{
				GitRef: &cloudbuildpb.PushFilter_Tag{Tag: def.TagPattern},
			},
		}
	} else {
		events.Event = &cloudbuildpb.GitHubEventsConfig_Push{
			Push: &cloudbuildpb.PushFilter{
				GitRef:      &cloudbuildpb.PushFilter_Branch{Branch: def.BranchPattern},
				InvertRegex: def.InvertBranch,
			},
		}
	}

	return &cloudbuildpb.BuildTrigger{
		Name:        def.Name,
		Description: def.Description,
		Github:      events,
		BuildTemplate: &cloudbuildpb.BuildTrigger_Filename{
			Filename: "cloudbuild.yaml",
		},
		Substitutions: map[string]string{
			"_ENVIRONMENT": string(def.Environment),
		},
	}
}

// reportFailure tells the operator how to finish the job by hand. A GitHub
// integration that was never connected is the common cause.
func (c *Configurator) reportFailure(def Definition, err error) {
	logging.Warn("trigger registration failed", "trigger", def.Name, "error", err.Error())

	if !c.cfg.GitHubConnected {
		logging.Warn("the GitHub repository may not be connected to Cloud Build",
			"remediation", fmt.Sprintf(
				"connect %s/%s at https://console.cloud.google.com/cloud-build/triggers/connect?project=%s and re-run bootstrap",
				c.cfg.GitHub.Owner, c.cfg.GitHub.Repo, c.cfg.ProjectID))
	}
}
