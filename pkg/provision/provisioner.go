package provision

import (
	"context"
	"fmt"
	"time"

	run "cloud.google.com/go/run/apiv2"
	"google.golang.org/api/cloudbilling/v1"
	"google.golang.org/api/cloudresourcemanager/v1"
	"google.golang.org/api/serviceusage/v1"

	artifactregistry "google.golang.org/api/artifactregistry/v1"
	firestoreadmin "google.golang.org/api/firestore/v1"
	iamadmin "google.golang.org/api/iam/v1"

	"github.com/stackpilot/stackpilot/pkg/config"
	"github.com/stackpilot/stackpilot/pkg/errdefs"
	"github.com/stackpilot/stackpilot/pkg/logging"
	"github.com/stackpilot/stackpilot/pkg/probe"
	"github.com/stackpilot/stackpilot/pkg/secrets"
)

// requiredAPIs are enabled before any other resource is touched. Order
// within the list does not matter; the list as a whole must come first.
var requiredAPIs = []string{
	"run.googleapis.com",
	"artifactregistry.googleapis.com",
	"firestore.googleapis.com",
	"cloudbuild.googleapis.com",
	"secretmanager.googleapis.com",
	"iam.googleapis.com",
}

// Provisioner idempotently creates and configures every resource an
// environment needs. Running it twice against the same identity leaves the
// platform in the same state as a single run.
type Provisioner struct {
	cfg config.Resolved

	// AssumeYes permits destructive repairs, such as recreating an empty
	// database that was created in the wrong mode, without prompting.
	AssumeYes bool

	projects  *cloudresourcemanager.Service
	billing   *cloudbilling.APIService
	usage     *serviceusage.Service
	artifacts *artifactregistry.Service
	dbAdmin   *firestoreadmin.Service
	iam       *iamadmin.Service
	runClient *run.ServicesClient
	escrow    *secrets.Escrow
}

// New creates a Provisioner with all platform clients initialized. The
// caller owns Close.
func New(ctx context.Context, cfg config.Resolved) (*Provisioner, error) {
	opts := cfg.ClientOptions()

	projects, err := cloudresourcemanager.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Resource Manager client: %w", err)
	}

	billing, err := cloudbilling.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Billing client: %w", err)
	}

	usage, err := serviceusage.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Service Usage client: %w", err)
	}

	artifacts, err := artifactregistry.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Artifact Registry client: %w", err)
	}

	dbAdmin, err := firestoreadmin.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore admin client: %w", err)
	}

	iamSvc, err := iamadmin.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create IAM client: %w", err)
	}

	runClient, err := run.NewServicesClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Cloud Run client: %w", err)
	}

	escrow, err := secrets.NewEscrow(ctx, cfg.ProjectID, opts...)
	if err != nil {
		runClient.Close()
		return nil, fmt.Errorf("failed to create Secret Manager client: %w", err)
	}

	return &Provisioner{
		cfg:       cfg,
		projects:  projects,
		billing:   billing,
		usage:     usage,
		artifacts: artifacts,
		dbAdmin:   dbAdmin,
		iam:       iamSvc,
		runClient: runClient,
		escrow:    escrow,
	}, nil
}

// Close releases the gRPC-backed clients.
func (p *Provisioner) Close() error {
	return p.runClient.Close()
}

// Bootstrap converges the environment onto its desired state: project and
// billing first (everything else depends on them), then the ordered
// resource plan. Returns the per-step results so callers can report what
// actually changed.
func (p *Provisioner) Bootstrap(ctx context.Context) ([]StepResult, error) {
	logging.Info("bootstrapping environment",
		"project", p.cfg.ProjectID, "environment", string(p.cfg.Environment))

	if err := p.ensureProject(ctx); err != nil {
		return nil, &errdefs.ProvisioningFailedError{Resource: "project " + p.cfg.ProjectID, Err: err}
	}
	if err := p.ensureBillingLinked(ctx); err != nil {
		return nil, &errdefs.ProvisioningFailedError{Resource: "billing for " + p.cfg.ProjectID, Err: err}
	}

	results, err := Apply(ctx, p.plan())
	if err != nil {
		return results, err
	}

	logging.Info("bootstrap complete",
		"project", p.cfg.ProjectID, "mutations", Mutations(results))
	return results, nil
}

// ensureProject creates the project if it doesn't exist.
func (p *Provisioner) ensureProject(ctx context.Context) error {
	d := probe.Descriptor{Kind: "project", Name: p.cfg.ProjectID}

	state, err := probe.Check(ctx, d, func(ctx context.Context) error {
		_, err := p.projects.Projects.Get(p.cfg.ProjectID).Context(ctx).Do()
		return err
	})
	if err != nil {
		return err
	}
	if state == probe.Exists {
		logging.Info("project exists", "project", p.cfg.ProjectID)
		return nil
	}

	logging.Info("creating project", "project", p.cfg.ProjectID)

	newProject := &cloudresourcemanager.Project{
		ProjectId: p.cfg.ProjectID,
		Name:      p.cfg.ProjectID,
	}
	if p.cfg.OrganizationID != "" {
		newProject.Parent = &cloudresourcemanager.ResourceId{
			Type: "organization",
			Id:   p.cfg.OrganizationID,
		}
	}

	op, err := p.projects.Projects.Create(newProject).Context(ctx).Do()
	if err != nil {
		if probe.IsAlreadyExists(err) {
			return nil
		}
		return fmt.Errorf("failed to create project: %w", err)
	}

	return p.waitForProjectCreation(ctx, op.Name)
}

// ensureBillingLinked links the billing account to the project. An already
// billing-linked project is left untouched.
func (p *Provisioner) ensureBillingLinked(ctx context.Context) error {
	projectName := fmt.Sprintf("projects/%s", p.cfg.ProjectID)

	billingInfo, err := p.billing.Projects.GetBillingInfo(projectName).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to get billing info: %w", err)
	}

	if billingInfo.BillingEnabled {
		logging.Info("billing already linked", "project", p.cfg.ProjectID)
		return nil
	}

	logging.Info("linking billing account", "project", p.cfg.ProjectID)

	updateReq := &cloudbilling.ProjectBillingInfo{
		BillingAccountName: fmt.Sprintf("billingAccounts/%s", p.cfg.BillingAccountID),
	}
	if _, err := p.billing.Projects.UpdateBillingInfo(projectName, updateReq).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to link billing account %s: %w", p.cfg.BillingAccountID, err)
	}

	return nil
}

// ensureAPIsEnabled enables every required API, skipping the already-enabled.
func (p *Provisioner) ensureAPIsEnabled(ctx context.Context) error {
	for _, api := range requiredAPIs {
		serviceName := fmt.Sprintf("projects/%s/services/%s", p.cfg.ProjectID, api)

		service, err := p.usage.Services.Get(serviceName).Context(ctx).Do()
		if err == nil && service.State == "ENABLED" {
			logging.Debug("API already enabled", "api", api)
			continue
		}

		logging.Info("enabling API", "api", api)
		enableReq := &serviceusage.EnableServiceRequest{}
		op, err := p.usage.Services.Enable(serviceName, enableReq).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("failed to enable API %s: %w", api, err)
		}

		if !op.Done {
			if err := p.waitForAPIEnablement(ctx, op.Name, api); err != nil {
				return err
			}
		}
	}

	return nil
}

// waitForProjectCreation polls the project creation operation until it completes.
func (p *Provisioner) waitForProjectCreation(ctx context.Context, operationName string) error {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	timeout := time.After(3 * time.Minute)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout:
			return fmt.Errorf("timeout waiting for project %s creation (3 minutes elapsed)", p.cfg.ProjectID)
		case <-ticker.C:
			op, err := p.projects.Operations.Get(operationName).Context(ctx).Do()
			if err != nil {
				return fmt.Errorf("failed to check project creation status: %w", err)
			}

			if op.Done {
				if op.Error != nil {
					return fmt.Errorf("project creation failed: %s", op.Error.Message)
				}
				logging.Info("project created", "project", p.cfg.ProjectID)
				return nil
			}

			logging.Debug("still creating project", "project", p.cfg.ProjectID)
		}
	}
}

// waitForAPIEnablement polls the API enablement operation until it completes.
func (p *Provisioner) waitForAPIEnablement(ctx context.Context, operationName, apiName string) error {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	timeout := time.After(5 * time.Minute)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout:
			return fmt.Errorf("timeout waiting for API %s enablement (5 minutes elapsed)", apiName)
		case <-ticker.C:
			op, err := p.usage.Operations.Get(operationName).Context(ctx).Do()
			if err != nil {
				return fmt.Errorf("failed to check API enablement status: %w", err)
			}

			if op.Done {
				if op.Error != nil {
					return fmt.Errorf("API enablement failed for %s: %s", apiName, op.Error.Message)
				}
				logging.Debug("API enabled", "api", apiName)
				return nil
			}
		}
	}
}
