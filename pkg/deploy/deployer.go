package deploy

import (
	"context"
	"fmt"
	"sort"
	"time"

	cloudbuild "cloud.google.com/go/cloudbuild/apiv1/v2"
	run "cloud.google.com/go/run/apiv2"
	"cloud.google.com/go/run/apiv2/runpb"
	"cloud.google.com/go/storage"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/stackpilot/stackpilot/pkg/config"
	"github.com/stackpilot/stackpilot/pkg/logging"
	"github.com/stackpilot/stackpilot/pkg/provision"
	"github.com/stackpilot/stackpilot/pkg/registry"
	"github.com/stackpilot/stackpilot/pkg/secrets"
)

// Deployer rolls one environment's Cloud Run services forward to freshly
// built images.
type Deployer struct {
	cfg config.Resolved

	runClient     *run.ServicesClient
	buildClient   *cloudbuild.Client
	storageClient *storage.Client
	registry      *registry.ArtifactRegistry

	// runtimeSecrets are injected into the services as environment
	// variables at deploy time, fetched once per run.
	runtimeSecrets map[string]string

	// Remote switches image builds from the local Docker daemon to Cloud
	// Build. Local is the default; remote needs no Docker installation.
	Remote bool
}

// New creates a Deployer with every client it needs for a full rollout.
func New(ctx context.Context, cfg config.Resolved) (*Deployer, error) {
	runClient, err := run.NewServicesClient(ctx, cfg.ClientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Cloud Run client: %w", err)
	}

	buildClient, err := cloudbuild.NewClient(ctx, cfg.ClientOptions()...)
	if err != nil {
		runClient.Close()
		return nil, fmt.Errorf("failed to create Cloud Build client: %w", err)
	}

	storageClient, err := storage.NewClient(ctx, cfg.ClientOptions()...)
	if err != nil {
		runClient.Close()
		buildClient.Close()
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}

	reg, err := registry.New(ctx, cfg)
	if err != nil {
		runClient.Close()
		buildClient.Close()
		storageClient.Close()
		return nil, err
	}

	runtimeSecrets, err := secrets.FetchRuntime(ctx, cfg)
	if err != nil {
		runClient.Close()
		buildClient.Close()
		storageClient.Close()
		return nil, err
	}

	return &Deployer{
		cfg:            cfg,
		runClient:      runClient,
		buildClient:    buildClient,
		storageClient:  storageClient,
		registry:       reg,
		runtimeSecrets: runtimeSecrets,
	}, nil
}

// Close releases the underlying clients.
func (d *Deployer) Close() error {
	d.buildClient.Close()
	d.storageClient.Close()
	return d.runClient.Close()
}

// Deploy builds, pushes, and rolls out the requested components, then writes
// the deployment record. Services are deployed in the order given.
func (d *Deployer) Deploy(ctx context.Context, components []Component) (*DeploymentRecord, error) {
	if err := d.registry.Verify(ctx); err != nil {
		return nil, err
	}
	if !d.Remote {
		if err := d.registry.Authenticate(ctx); err != nil {
			return nil, err
		}
	}

	tag := ImageTag(ctx)
	logging.Info("deploying",
		"environment", string(d.cfg.Environment),
		"project", d.cfg.ProjectID,
		"tag", tag)

	record := &DeploymentRecord{
		Environment: string(d.cfg.Environment),
		ProjectID:   d.cfg.ProjectID,
		Images:      map[string]string{},
		DeployedAt:  time.Now().UTC(),
	}

	for _, spec := range BuildSpecs(d.cfg.ServiceName, components) {
		pinned, err := d.buildAndPush(ctx, spec, tag)
		if err != nil {
			return nil, err
		}
		record.Images[string(spec.Component)] = pinned

		service := d.serviceFor(spec.Component)
		if err := d.deployService(ctx, service, pinned); err != nil {
			return nil, fmt.Errorf("failed to deploy %s: %w", service, err)
		}

		url, err := d.waitForService(ctx, service)
		if err != nil {
			return nil, err
		}

		if err := provision.EnsurePublicInvoker(ctx, d.runClient, d.serviceFullName(service)); err != nil {
			logging.Warn("could not re-assert public access", "service", service, "error", err.Error())
		}

		switch spec.Component {
		case ComponentBackend:
			record.BackendURL = url
		case ComponentFrontend:
			record.FrontendURL = url
		}
	}

	path := RecordPath(d.cfg.Environment)
	if prev, err := LoadRecord(path); err == nil {
		record.FillFrom(prev)
	}
	if err := WriteRecord(path, record); err != nil {
		return record, err
	}

	logging.Info("deployment complete", "record", path)
	return record, nil
}

// buildAndPush produces a digest-pinned image reference for one component,
// locally or through Cloud Build.
func (d *Deployer) buildAndPush(ctx context.Context, spec BuildSpec, tag string) (string, error) {
	if d.Remote {
		return d.buildRemote(ctx, spec, tag)
	}

	local, err := Build(ctx, spec, tag)
	if err != nil {
		return "", err
	}

	uri, err := d.registry.Push(ctx, local, spec.ImageName, tag)
	if err != nil {
		return "", err
	}

	digest, err := d.registry.Digest(ctx, uri)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s/%s@%s", d.registry.URL(), spec.ImageName, digest), nil
}

func (d *Deployer) serviceFor(c Component) string {
	if c == ComponentFrontend {
		return d.cfg.FrontendService
	}
	return d.cfg.BackendService
}

func (d *Deployer) serviceFullName(service string) string {
	return fmt.Sprintf("projects/%s/locations/%s/services/%s",
		d.cfg.ProjectID, d.cfg.Region, service)
}

// deployService creates the service or updates it in place, preserving
// whatever template settings a previous revision carried and swapping only
// the image and environment.
func (d *Deployer) deployService(ctx context.Context, serviceName, image string) error {
	parent := fmt.Sprintf("projects/%s/locations/%s", d.cfg.ProjectID, d.cfg.Region)
	fullName := d.serviceFullName(serviceName)

	existing, err := d.runClient.GetService(ctx, &runpb.GetServiceRequest{Name: fullName})
	serviceExists := err == nil

	envVars := d.envVars()

	container := &runpb.Container{
		Image: image,
		Env:   envVars,
	}

	template := &runpb.RevisionTemplate{
		Containers: []*runpb.Container{container},
	}
	d.applyRunConfig(template, container)

	service := &runpb.Service{
		Template: template,
		Ingress:  runpb.IngressTraffic_INGRESS_TRAFFIC_ALL,
	}

	if serviceExists {
		logging.Info("updating service", "service", serviceName, "image", image)

		service.Name = fullName
		if existing.Template != nil && len(existing.Template.Containers) > 0 {
			service.Template = existing.Template
			service.Template.Containers[0].Image = image
			service.Template.Containers[0].Env = envVars
		}

		op, err := d.runClient.UpdateService(ctx, &runpb.UpdateServiceRequest{Service: service})
		if err != nil {
			return fmt.Errorf("failed to update service: %w", err)
		}
		if _, err := op.Wait(ctx); err != nil {
			return fmt.Errorf("failed waiting for service update: %w", err)
		}
		return nil
	}

	logging.Info("creating service", "service", serviceName, "image", image)

	op, err := d.runClient.CreateService(ctx, &runpb.CreateServiceRequest{
		Parent:    parent,
		Service:   service,
		ServiceId: serviceName,
	})
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	if _, err := op.Wait(ctx); err != nil {
		return fmt.Errorf("failed waiting for service creation: %w", err)
	}
	return nil
}

// envVars merges configured variables with Vault-fetched secrets. Secrets
// win on key collisions. Order is fixed so revisions diff cleanly.
func (d *Deployer) envVars() []*runpb.EnvVar {
	merged := make(map[string]string, len(d.cfg.EnvironmentVariables)+len(d.runtimeSecrets))
	for k, v := range d.cfg.EnvironmentVariables {
		merged[k] = v
	}
	for k, v := range d.runtimeSecrets {
		merged[k] = v
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	envVars := make([]*runpb.EnvVar, 0, len(keys))
	for _, k := range keys {
		envVars = append(envVars, &runpb.EnvVar{
			Name:   k,
			Values: &runpb.EnvVar_Value{Value: merged[k]},
		})
	}
	return envVars
}

func (d *Deployer) applyRunConfig(template *runpb.RevisionTemplate, container *runpb.Container) {
	rc := d.cfg.CloudRun
	if rc == nil {
		return
	}

	resources := &runpb.ResourceRequirements{Limits: map[string]string{
		"cpu":    "1",
		"memory": "512Mi",
	}}
	if rc.CPU != "" {
		resources.Limits["cpu"] = rc.CPU
	}
	if rc.Memory != "" {
		resources.Limits["memory"] = rc.Memory
	}
	container.Resources = resources

	scaling := &runpb.RevisionScaling{}
	if rc.MinInstances > 0 {
		scaling.MinInstanceCount = rc.MinInstances
	}
	if rc.MaxInstances > 0 {
		scaling.MaxInstanceCount = rc.MaxInstances
	}
	template.Scaling = scaling

	if rc.MaxConcurrency > 0 {
		template.MaxInstanceRequestConcurrency = rc.MaxConcurrency
	}
	if rc.TimeoutSeconds > 0 {
		template.Timeout = durationpb.New(time.Duration(rc.TimeoutSeconds) * time.Second)
	}
}

// waitForService polls until the service's terminal condition settles and
// returns its public URL.
func (d *Deployer) waitForService(ctx context.Context, serviceName string) (string, error) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	timeout := time.After(10 * time.Minute)
	fullName := d.serviceFullName(serviceName)

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timeout:
			return "", fmt.Errorf("timeout waiting for service %s to become ready", serviceName)
		case <-ticker.C:
			service, err := d.runClient.GetService(ctx, &runpb.GetServiceRequest{Name: fullName})
			if err != nil {
				return "", fmt.Errorf("failed to get service status: %w", err)
			}

			if service.TerminalCondition == nil {
				continue
			}

			switch service.TerminalCondition.State {
			case runpb.Condition_CONDITION_SUCCEEDED:
				return service.Uri, nil
			case runpb.Condition_CONDITION_FAILED:
				message := service.TerminalCondition.Message
				if message == "" {
					message = "unknown error"
				}
				return "", fmt.Errorf("service %s failed to deploy: %s", serviceName, message)
			default:
				logging.Debug("service still deploying",
					"service", serviceName,
					"state", service.TerminalCondition.State.String())
			}
		}
	}
}

// Status reports the observed state of both services without changing
// anything.
func (d *Deployer) Status(ctx context.Context) ([]ServiceStatus, error) {
	statuses := make([]ServiceStatus, 0, 2)

	for _, name := range []string{d.cfg.BackendService, d.cfg.FrontendService} {
		service, err := d.runClient.GetService(ctx, &runpb.GetServiceRequest{
			Name: d.serviceFullName(name),
		})
		if err != nil {
			statuses = append(statuses, ServiceStatus{Service: name})
			continue
		}

		status := ServiceStatus{
			Service:  name,
			URL:      service.Uri,
			Revision: service.LatestReadyRevision,
		}
		if service.TerminalCondition != nil {
			status.Ready = service.TerminalCondition.State == runpb.Condition_CONDITION_SUCCEEDED
		}
		statuses = append(statuses, status)
	}

	return statuses, nil
}

// Destroy deletes both services. Images stay in the registry for a fast
// redeploy.
func (d *Deployer) Destroy(ctx context.Context) error {
	for _, name := range []string{d.cfg.BackendService, d.cfg.FrontendService} {
		op, err := d.runClient.DeleteService(ctx, &runpb.DeleteServiceRequest{
			Name: d.serviceFullName(name),
		})
		if err != nil {
			logging.Warn("could not delete service", "service", name, "error", err.Error())
			continue
		}
		if _, err := op.Wait(ctx); err != nil {
			return fmt.Errorf("failed waiting for deletion of %s: %w", name, err)
		}
		logging.Info("deleted service", "service", name)
	}
	return nil
}
