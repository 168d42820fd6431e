package secrets

import (
	"context"
	"encoding/base64"
	"fmt"

	"google.golang.org/api/option"
	secretmanager "google.golang.org/api/secretmanager/v1"

	"github.com/stackpilot/stackpilot/pkg/probe"
)

// Escrow stores generated credential material (service-account keys) in the
// platform's secret store so operators never have to pass key files around.
// Rotation and revocation remain operator-driven.
type Escrow struct {
	svc       *secretmanager.Service
	projectID string
}

// NewEscrow creates a Secret Manager escrow for the given project.
func NewEscrow(ctx context.Context, projectID string, opts ...option.ClientOption) (*Escrow, error) {
	svc, err := secretmanager.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Secret Manager client: %w", err)
	}
	return &Escrow{svc: svc, projectID: projectID}, nil
}

// Put upserts a secret and adds the payload as a new version. Creating a
// secret that already exists is tolerated; the payload always lands as the
// latest version.
func (e *Escrow) Put(ctx context.Context, name string, payload []byte) error {
	parent := fmt.Sprintf("projects/%s", e.projectID)

	secret := &secretmanager.Secret{
		Replication: &secretmanager.Replication{
			Automatic: &secretmanager.Automatic{},
		},
	}

	_, err := e.svc.Projects.Secrets.Create(parent, secret).SecretId(name).Context(ctx).Do()
	if err != nil && !probe.IsAlreadyExists(err) {
		return fmt.Errorf("failed to create secret %s: %w", name, err)
	}

	version := &secretmanager.AddSecretVersionRequest{
		Payload: &secretmanager.SecretPayload{
			Data: base64.StdEncoding.EncodeToString(payload),
		},
	}

	secretName := fmt.Sprintf("%s/secrets/%s", parent, name)
	if _, err := e.svc.Projects.Secrets.AddVersion(secretName, version).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to add version to secret %s: %w", name, err)
	}

	return nil
}

// Get reads the latest version of a secret.
func (e *Escrow) Get(ctx context.Context, name string) ([]byte, error) {
	versionName := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", e.projectID, name)

	resp, err := e.svc.Projects.Secrets.Versions.Access(versionName).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to access secret %s: %w", name, err)
	}

	data, err := base64.StdEncoding.DecodeString(resp.Payload.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode secret %s: %w", name, err)
	}

	return data, nil
}
