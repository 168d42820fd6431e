package provision

import (
	"context"
	"fmt"

	run "cloud.google.com/go/run/apiv2"
	"cloud.google.com/go/run/apiv2/runpb"

	"cloud.google.com/go/iam/apiv1/iampb"

	"github.com/stackpilot/stackpilot/pkg/logging"
	"github.com/stackpilot/stackpilot/pkg/probe"
)

// placeholderImage keeps a freshly provisioned service routable before the
// first real deploy replaces it.
const placeholderImage = "us-docker.pkg.dev/cloudrun/container/hello"

func (p *Provisioner) serviceFullName(service string) string {
	return fmt.Sprintf("projects/%s/locations/%s/services/%s",
		p.cfg.ProjectID, p.cfg.Region, service)
}

func (p *Provisioner) probeService(service string) func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := p.runClient.GetService(ctx, &runpb.GetServiceRequest{
			Name: p.serviceFullName(service),
		})
		return err
	}
}

func (p *Provisioner) createPlaceholderService(service string) func(context.Context) error {
	return func(ctx context.Context) error {
		parent := fmt.Sprintf("projects/%s/locations/%s", p.cfg.ProjectID, p.cfg.Region)

		op, err := p.runClient.CreateService(ctx, &runpb.CreateServiceRequest{
			Parent:    parent,
			ServiceId: service,
			Service: &runpb.Service{
				Template: &runpb.RevisionTemplate{
					Containers: []*runpb.Container{
						{Image: placeholderImage},
					},
					ServiceAccount: p.runtimeEmail(),
				},
			},
		})
		if err != nil {
			return fmt.Errorf("failed to create service %s: %w", service, err)
		}

		if _, err := op.Wait(ctx); err != nil {
			return fmt.Errorf("service %s did not become ready: %w", service, err)
		}

		logging.Info("created placeholder service", "service", service)
		return nil
	}
}

// EnsurePublicInvoker grants allUsers permission to invoke the service. The
// grant survives redeploys, but deploys re-assert it so a service created
// out of band still ends up reachable.
func EnsurePublicInvoker(ctx context.Context, client *run.ServicesClient, serviceName string) error {
	policy, err := client.GetIamPolicy(ctx, &iampb.GetIamPolicyRequest{Resource: serviceName})
	if err != nil {
		return fmt.Errorf("failed to get service IAM policy: %w", err)
	}

	const role = "roles/run.invoker"
	const member = "allUsers"

	for _, b := range policy.Bindings {
		if b.Role != role {
			continue
		}
		for _, m := range b.Members {
			if m == member {
				return nil
			}
		}
		b.Members = append(b.Members, member)
		return setServicePolicy(ctx, client, serviceName, policy)
	}

	policy.Bindings = append(policy.Bindings, &iampb.Binding{
		Role:    role,
		Members: []string{member},
	})
	return setServicePolicy(ctx, client, serviceName, policy)
}

func setServicePolicy(ctx context.Context, client *run.ServicesClient, serviceName string, policy *iampb.Policy) error {
	_, err := client.SetIamPolicy(ctx, &iampb.SetIamPolicyRequest{
		Resource: serviceName,
		Policy:   policy,
	})
	if err != nil {
		if probe.IsAlreadyExists(err) {
			return nil
		}
		return fmt.Errorf("failed to set service IAM policy: %w", err)
	}
	return nil
}
