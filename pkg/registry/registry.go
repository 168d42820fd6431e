// Package registry pushes locally built Docker images to Artifact Registry
// and resolves what was actually pushed. Bootstrap owns repository creation;
// at deploy time a missing repository is an error, not something to fix up.
package registry

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	artifactregistry "google.golang.org/api/artifactregistry/v1"

	"github.com/stackpilot/stackpilot/pkg/config"
	"github.com/stackpilot/stackpilot/pkg/errdefs"
	"github.com/stackpilot/stackpilot/pkg/logging"
	"github.com/stackpilot/stackpilot/pkg/probe"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// ArtifactRegistry is a handle on one Docker repository in one region.
type ArtifactRegistry struct {
	projectID string
	region    string
	repoName  string

	svc    *artifactregistry.Service
	tokens oauth2.TokenSource
}

// New builds a registry handle from the resolved deployment config.
func New(ctx context.Context, cfg config.Resolved) (*ArtifactRegistry, error) {
	svc, err := artifactregistry.NewService(ctx, cfg.ClientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Artifact Registry client: %w", err)
	}

	tokens, err := tokenSource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &ArtifactRegistry{
		projectID: cfg.ProjectID,
		region:    cfg.Region,
		repoName:  cfg.RepoName,
		svc:       svc,
		tokens:    tokens,
	}, nil
}

// Host is the registry endpoint Docker authenticates against.
func (r *ArtifactRegistry) Host() string {
	return r.region + "-docker.pkg.dev"
}

// URL is the repository prefix pushed images live under.
func (r *ArtifactRegistry) URL() string {
	return fmt.Sprintf("%s/%s/%s", r.Host(), r.projectID, r.repoName)
}

// Verify confirms the repository exists before anything is built or pushed.
// A deploy never creates the repository; that belongs to bootstrap.
func (r *ArtifactRegistry) Verify(ctx context.Context) error {
	d := probe.Descriptor{Kind: "artifact repository", Name: r.repoName, Location: r.region}

	state, err := probe.Check(ctx, d, func(ctx context.Context) error {
		repoName := fmt.Sprintf("projects/%s/locations/%s/repositories/%s",
			r.projectID, r.region, r.repoName)
		_, err := r.svc.Projects.Locations.Repositories.Get(repoName).Context(ctx).Do()
		return err
	})
	if err != nil {
		return err
	}
	if state == probe.NotFound {
		return &errdefs.RegistryNotFoundError{Repository: r.repoName, Project: r.projectID}
	}
	return nil
}

// Authenticate logs the local Docker daemon into the registry using a
// short-lived OAuth access token.
func (r *ArtifactRegistry) Authenticate(ctx context.Context) error {
	tok, err := r.tokens.Token()
	if err != nil {
		return fmt.Errorf("failed to obtain access token: %w", err)
	}

	cmd := exec.CommandContext(ctx, "docker", "login",
		"--username", "oauth2accesstoken", "--password-stdin", r.Host())
	cmd.Stdin = strings.NewReader(tok.AccessToken)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("docker login to %s failed: %s: %w", r.Host(), strings.TrimSpace(string(output)), err)
	}

	logging.Debug("authenticated with registry", "host", r.Host())
	return nil
}

// Push tags the local image into the repository and pushes it. It returns
// the remote image URI.
func (r *ArtifactRegistry) Push(ctx context.Context, localImage, imageName, tag string) (string, error) {
	uri := fmt.Sprintf("%s/%s:%s", r.URL(), imageName, tag)

	if err := dockerTag(ctx, localImage, uri); err != nil {
		return "", fmt.Errorf("failed to tag %s: %w", localImage, err)
	}
	if err := dockerPush(ctx, uri); err != nil {
		return "", fmt.Errorf("failed to push %s: %w", uri, err)
	}

	return uri, nil
}

// Digest asks the registry what manifest a tag resolved to, so deploys can
// pin revisions to content rather than a movable tag.
func (r *ArtifactRegistry) Digest(ctx context.Context, imageURI string) (string, error) {
	ref, err := name.ParseReference(imageURI)
	if err != nil {
		return "", fmt.Errorf("invalid image reference %s: %w", imageURI, err)
	}

	tok, err := r.tokens.Token()
	if err != nil {
		return "", fmt.Errorf("failed to obtain access token: %w", err)
	}

	desc, err := remote.Get(ref,
		remote.WithContext(ctx),
		remote.WithAuth(&authn.Bearer{Token: tok.AccessToken}))
	if err != nil {
		return "", fmt.Errorf("failed to resolve digest for %s: %w", imageURI, err)
	}

	return desc.Digest.String(), nil
}

func tokenSource(ctx context.Context, cfg config.Resolved) (oauth2.TokenSource, error) {
	if cfg.CredentialsFile != "" {
		data, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read credentials file: %w", err)
		}
		creds, err := google.CredentialsFromJSON(ctx, data, cloudPlatformScope)
		if err != nil {
			return nil, fmt.Errorf("failed to load credentials: %w", err)
		}
		return creds.TokenSource, nil
	}

	tokens, err := google.DefaultTokenSource(ctx, cloudPlatformScope)
	if err != nil {
		return nil, fmt.Errorf("failed to find default credentials: %w", err)
	}
	return tokens, nil
}

func dockerTag(ctx context.Context, source, target string) error {
	logging.Debug("tagging image", "source", source, "target", target)
	return runDocker(ctx, "tag", source, target)
}

func dockerPush(ctx context.Context, image string) error {
	logging.Info("pushing image", "image", image)
	return runDocker(ctx, "push", image)
}

func runDocker(ctx context.Context, args ...string) error {
	if _, err := exec.LookPath("docker"); err != nil {
		return &errdefs.ExternalToolMissingError{
			Tool: "docker",
			Hint: "install Docker and ensure the daemon is running",
		}
	}

	cmd := exec.CommandContext(ctx, "docker", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("docker %s failed: %s: %w", args[0], strings.TrimSpace(string(output)), err)
	}
	return nil
}
