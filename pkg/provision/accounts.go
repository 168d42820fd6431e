package provision

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"google.golang.org/api/cloudresourcemanager/v1"

	iamadmin "google.golang.org/api/iam/v1"

	"github.com/stackpilot/stackpilot/pkg/logging"
	"github.com/stackpilot/stackpilot/pkg/probe"
)

const (
	deployerAccountID = "deployer"
	runtimeAccountID  = "app-runtime"
)

// deployerRoles let the CI/CD pipeline push images and roll out revisions.
var deployerRoles = []string{
	"roles/run.admin",
	"roles/storage.admin",
	"roles/artifactregistry.writer",
	"roles/iam.serviceAccountUser",
}

// runtimeRoles are what the deployed application itself needs.
var runtimeRoles = []string{
	"roles/datastore.user",
}

func (p *Provisioner) deployerEmail() string {
	return serviceAccountEmail(deployerAccountID, p.cfg.ProjectID)
}

func (p *Provisioner) runtimeEmail() string {
	return serviceAccountEmail(runtimeAccountID, p.cfg.ProjectID)
}

func serviceAccountEmail(accountID, projectID string) string {
	return fmt.Sprintf("%s@%s.iam.gserviceaccount.com", accountID, projectID)
}

func (p *Provisioner) serviceAccountName(accountID string) string {
	return fmt.Sprintf("projects/%s/serviceAccounts/%s",
		p.cfg.ProjectID, serviceAccountEmail(accountID, p.cfg.ProjectID))
}

func (p *Provisioner) probeServiceAccount(accountID string) func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := p.iam.Projects.ServiceAccounts.Get(p.serviceAccountName(accountID)).Context(ctx).Do()
		return err
	}
}

func (p *Provisioner) createServiceAccount(accountID, displayName string) func(context.Context) error {
	return func(ctx context.Context) error {
		req := &iamadmin.CreateServiceAccountRequest{
			AccountId: accountID,
			ServiceAccount: &iamadmin.ServiceAccount{
				DisplayName: displayName,
			},
		}

		_, err := p.iam.Projects.ServiceAccounts.Create("projects/"+p.cfg.ProjectID, req).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("failed to create service account %s: %w", accountID, err)
		}
		return nil
	}
}

// bindRoles grants roles to a service account at the project level. The
// account must already exist; a freshly created one can take a few seconds
// to become visible to IAM, so the existence check retries across that
// propagation window before giving up.
func (p *Provisioner) bindRoles(email string, roles []string) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := p.waitForAccountVisible(ctx, email); err != nil {
			return err
		}

		policy, err := p.projects.Projects.GetIamPolicy(p.cfg.ProjectID,
			&cloudresourcemanager.GetIamPolicyRequest{}).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("failed to get IAM policy: %w", err)
		}

		member := "serviceAccount:" + email
		changed := false
		for _, role := range roles {
			if mergeBinding(policy, role, member) {
				changed = true
			}
		}
		if !changed {
			logging.Info("role bindings already present", "member", member)
			return nil
		}

		_, err = p.projects.Projects.SetIamPolicy(p.cfg.ProjectID,
			&cloudresourcemanager.SetIamPolicyRequest{Policy: policy}).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("failed to set IAM policy for %s: %w", member, err)
		}

		logging.Info("granted roles", "member", member, "roles", roles)
		return nil
	}
}

func (p *Provisioner) waitForAccountVisible(ctx context.Context, email string) error {
	name := fmt.Sprintf("projects/%s/serviceAccounts/%s", p.cfg.ProjectID, email)

	const attempts = 3
	for i := 0; i < attempts; i++ {
		_, err := p.iam.Projects.ServiceAccounts.Get(name).Context(ctx).Do()
		if err == nil {
			return nil
		}
		state, cerr := probe.Classify(err)
		if cerr != nil {
			return cerr
		}
		if state == probe.Unauthorized {
			return fmt.Errorf("not authorized to read service account %s", email)
		}
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(5 * time.Second):
			}
		}
	}
	return fmt.Errorf("service account %s does not exist", email)
}

// mergeBinding adds member to the binding for role, creating the binding if
// needed. It reports whether the policy was modified.
func mergeBinding(policy *cloudresourcemanager.Policy, role, member string) bool {
	for _, b := range policy.Bindings {
		if b.Role != role {
			continue
		}
		for _, m := range b.Members {
			if m == member {
				return false
			}
		}
		b.Members = append(b.Members, member)
		return true
	}
	policy.Bindings = append(policy.Bindings, &cloudresourcemanager.Binding{
		Role:    role,
		Members: []string{member},
	})
	return true
}

func (p *Provisioner) runtimeKeySecretName() string {
	return "firebase-admin-key-" + string(p.cfg.Environment)
}

func (p *Provisioner) probeEscrowedKey(ctx context.Context) error {
	_, err := p.escrow.Get(ctx, p.runtimeKeySecretName())
	return err
}

// escrowRuntimeKey mints a key for the runtime service account and parks it
// in Secret Manager, where the application reads it at startup.
func (p *Provisioner) escrowRuntimeKey(ctx context.Context) error {
	key, err := p.iam.Projects.ServiceAccounts.Keys.Create(
		p.serviceAccountName(runtimeAccountID),
		&iamadmin.CreateServiceAccountKeyRequest{}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to create key for %s: %w", p.runtimeEmail(), err)
	}

	// PrivateKeyData is the base64 encoding of the JSON key file.
	payload, err := decodeKeyData(key.PrivateKeyData)
	if err != nil {
		return err
	}

	return p.escrow.Put(ctx, p.runtimeKeySecretName(), payload)
}

func decodeKeyData(data string) ([]byte, error) {
	payload, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode service account key: %w", err)
	}
	return payload, nil
}
