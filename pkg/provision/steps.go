package provision

import (
	"context"
	"fmt"

	artifactregistry "google.golang.org/api/artifactregistry/v1"

	"github.com/stackpilot/stackpilot/pkg/probe"
)

// plan is the fixed, ordered list of resources for one environment. Later
// steps depend on earlier ones being ready (role bindings require their
// service account; services require the APIs); the ordering here is the
// only thing enforcing that.
func (p *Provisioner) plan() []Step {
	cfg := p.cfg

	return []Step{
		{
			Descriptor: probe.Descriptor{Kind: "platform APIs", Name: cfg.ProjectID},
			Critical:   true,
			Configure:  p.ensureAPIsEnabled,
		},
		{
			Descriptor: probe.Descriptor{Kind: "artifact repository", Name: cfg.RepoName, Location: cfg.Region},
			Critical:   true,
			Probe:      p.probeRepository,
			Create:     p.createRepository,
		},
		{
			Descriptor: probe.Descriptor{Kind: "firestore database", Name: defaultDatabaseID, Location: cfg.Region},
			Critical:   true,
			Probe:      p.probeDatabase,
			Create:     p.createDatabase,
			Configure:  p.repairDatabaseMode,
		},
		{
			Descriptor: probe.Descriptor{Kind: "service account", Name: p.deployerEmail()},
			Critical:   true,
			Probe:      p.probeServiceAccount(deployerAccountID),
			Create:     p.createServiceAccount(deployerAccountID, "CI/CD deployer"),
		},
		{
			Descriptor: probe.Descriptor{Kind: "service account", Name: p.runtimeEmail()},
			Critical:   true,
			Probe:      p.probeServiceAccount(runtimeAccountID),
			Create:     p.createServiceAccount(runtimeAccountID, "application runtime"),
		},
		{
			Descriptor: probe.Descriptor{Kind: "role bindings", Name: p.deployerEmail()},
			Critical:   true,
			Configure:  p.bindRoles(p.deployerEmail(), deployerRoles),
		},
		{
			Descriptor: probe.Descriptor{Kind: "role bindings", Name: p.runtimeEmail()},
			Critical:   false,
			Configure:  p.bindRoles(p.runtimeEmail(), runtimeRoles),
		},
		{
			Descriptor: probe.Descriptor{Kind: "cloud run service", Name: cfg.BackendService, Location: cfg.Region},
			Critical:   true,
			Probe:      p.probeService(cfg.BackendService),
			Create:     p.createPlaceholderService(cfg.BackendService),
		},
		{
			Descriptor: probe.Descriptor{Kind: "cloud run service", Name: cfg.FrontendService, Location: cfg.Region},
			Critical:   true,
			Probe:      p.probeService(cfg.FrontendService),
			Create:     p.createPlaceholderService(cfg.FrontendService),
		},
		{
			Descriptor: probe.Descriptor{Kind: "public invoker binding", Name: cfg.BackendService, Location: cfg.Region},
			Critical:   false,
			Configure: func(ctx context.Context) error {
				return EnsurePublicInvoker(ctx, p.runClient, p.serviceFullName(cfg.BackendService))
			},
		},
		{
			Descriptor: probe.Descriptor{Kind: "public invoker binding", Name: cfg.FrontendService, Location: cfg.Region},
			Critical:   false,
			Configure: func(ctx context.Context) error {
				return EnsurePublicInvoker(ctx, p.runClient, p.serviceFullName(cfg.FrontendService))
			},
		},
		{
			Descriptor: probe.Descriptor{Kind: "escrowed runtime key", Name: p.runtimeKeySecretName()},
			Critical:   false,
			Probe:      p.probeEscrowedKey,
			Create:     p.escrowRuntimeKey,
		},
	}
}

func (p *Provisioner) registryParent() string {
	return fmt.Sprintf("projects/%s/locations/%s", p.cfg.ProjectID, p.cfg.Region)
}

func (p *Provisioner) probeRepository(ctx context.Context) error {
	name := fmt.Sprintf("%s/repositories/%s", p.registryParent(), p.cfg.RepoName)
	_, err := p.artifacts.Projects.Locations.Repositories.Get(name).Context(ctx).Do()
	return err
}

func (p *Provisioner) createRepository(ctx context.Context) error {
	repo := &artifactregistry.Repository{
		Format:      "DOCKER",
		Description: fmt.Sprintf("Container images for %s", p.cfg.ProjectID),
	}

	_, err := p.artifacts.Projects.Locations.Repositories.Create(p.registryParent(), repo).
		RepositoryId(p.cfg.RepoName).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to create artifact repository: %w", err)
	}
	return nil
}
