// Package config provides types and functions for loading and resolving
// stackpilot configuration. A run combines two read-only sources: a shared
// stack config (stack.yaml, checked into the repo) and a per-operator
// override file (.stackpilot.env). Resolution produces a fully-populated
// Resolved struct that is passed by value into every component; nothing
// downstream reads the process environment mid-run.
package config

import (
	"fmt"
	"os"

	"google.golang.org/api/option"
	"gopkg.in/yaml.v3"

	"github.com/stackpilot/stackpilot/pkg/errdefs"
)

// Environment is the deployment target. The set is closed; anything else is
// rejected at resolution time.
type Environment string

const (
	EnvDev     Environment = "dev"
	EnvStaging Environment = "staging"
	EnvProd    Environment = "prod"
)

// Environments lists all valid environments in bootstrap order.
var Environments = []Environment{EnvDev, EnvStaging, EnvProd}

// ParseEnvironment validates and converts an environment name.
func ParseEnvironment(s string) (Environment, error) {
	switch Environment(s) {
	case EnvDev, EnvStaging, EnvProd:
		return Environment(s), nil
	}
	return "", fmt.Errorf("unknown environment %q (must be dev, staging, or prod)", s)
}

// Stack is the shared project configuration, loaded from stack.yaml.
//
// Example:
//
//	project_name: acme
//	service_name: acme-api
//	repo_name: acme-images
//	region: us-central1
type Stack struct {
	// Base project name; environment and developer suffixes derive from it
	ProjectName string `yaml:"project_name"`

	// Base Cloud Run service name; "-backend" / "-frontend" suffixes apply
	ServiceName string `yaml:"service_name"`

	// Artifact Registry repository name
	RepoName string `yaml:"repo_name"`

	// Region for all regional resources (registry, services, database)
	Region string `yaml:"region"`

	// Environments enabled for this stack (defaults to dev, staging, prod)
	Environments []string `yaml:"environments,omitempty"`

	// Health check path served by the backend (default: /health)
	HealthCheck HealthCheckConfig `yaml:"health_check,omitempty"`

	// Cloud Run resource and scaling settings - optional
	CloudRun *CloudRunConfig `yaml:"cloud_run,omitempty"`

	// GitHub repository the build triggers watch - optional
	GitHub *GitHubConfig `yaml:"github,omitempty"`

	// Vault connection for runtime secrets - optional
	Vault *VaultConfig `yaml:"vault,omitempty"`

	// Secrets maps env var names to Vault secret references - optional
	Secrets map[string]SecretRefConfig `yaml:"secrets,omitempty"`

	// Plain environment variables applied to deployed services - optional
	EnvironmentVariables map[string]string `yaml:"environment_variables,omitempty"`
}

// HealthCheckConfig defines the post-deploy verification probe.
type HealthCheckConfig struct {
	// Path of the health endpoint (e.g., /health, /api/health)
	Path string `yaml:"path,omitempty"`
}

// GitHubConfig identifies the source repository for CI/CD triggers.
type GitHubConfig struct {
	// Owner is the GitHub organization or user
	Owner string `yaml:"owner"`

	// Repo is the repository name
	Repo string `yaml:"repo"`
}

// CloudRunConfig specifies Cloud Run resource limits and scaling.
type CloudRunConfig struct {
	// CPU allocation (e.g., "1", "2") - default: "1"
	CPU string `yaml:"cpu,omitempty"`

	// Memory allocation (e.g., "512Mi", "1Gi") - default: "512Mi"
	Memory string `yaml:"memory,omitempty"`

	// Maximum concurrent requests per container - default: 80
	MaxConcurrency int32 `yaml:"max_concurrency,omitempty"`

	// Minimum instances to keep warm - default: 0 (scale to zero)
	MinInstances int32 `yaml:"min_instances,omitempty"`

	// Maximum instances to scale to - default: 100
	MaxInstances int32 `yaml:"max_instances,omitempty"`

	// Request timeout in seconds - default: 300
	TimeoutSeconds int32 `yaml:"timeout_seconds,omitempty"`
}

// VaultConfig holds the Vault server address and auth settings.
type VaultConfig struct {
	// Address of the Vault server (e.g., "https://vault.example.com:8200")
	Address string `yaml:"address"`

	// AuthMethod is "token" or "approle"
	AuthMethod string `yaml:"auth_method"`

	// Role for approle authentication
	RoleID string `yaml:"role_id,omitempty"`

	// TLSSkipVerify skips TLS certificate verification (dev only)
	TLSSkipVerify bool `yaml:"tls_skip_verify,omitempty"`
}

// SecretRefConfig references a key within a Vault KV v2 secret.
type SecretRefConfig struct {
	// Path is the full Vault path (e.g., "secret/data/acme/firebase")
	Path string `yaml:"path"`

	// Key within the secret data
	Key string `yaml:"key"`
}

// Load reads the shared stack config from disk, parses it, and validates it.
func Load(filename string) (*Stack, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read stack config: %w", err)
	}

	var stack Stack
	if err := yaml.Unmarshal(data, &stack); err != nil {
		return nil, fmt.Errorf("failed to parse stack config: %w", err)
	}

	if err := stack.Validate(filename); err != nil {
		return nil, err
	}

	return &stack, nil
}

// Validate checks the stack config for required fields.
func (s *Stack) Validate(source string) error {
	if s.ProjectName == "" {
		return &errdefs.MissingConfigurationError{Field: "project_name", Source: source}
	}
	if s.ServiceName == "" {
		return &errdefs.MissingConfigurationError{Field: "service_name", Source: source}
	}
	if s.RepoName == "" {
		return &errdefs.MissingConfigurationError{Field: "repo_name", Source: source}
	}
	if s.Region == "" {
		return &errdefs.MissingConfigurationError{Field: "region", Source: source}
	}
	for _, env := range s.Environments {
		if _, err := ParseEnvironment(env); err != nil {
			return fmt.Errorf("invalid stack config: %w", err)
		}
	}
	return nil
}

// Resolved is the fully-resolved configuration for a single run against a
// single environment. It is computed once at startup and never mutated.
type Resolved struct {
	Environment Environment

	// ProjectID is the environment-qualified identity (see ResolveIdentity)
	ProjectID string

	Region   string
	RepoName string

	// ServiceName is the normalized base name images and services derive from
	ServiceName string

	// BackendService and FrontendService are the Cloud Run service names
	BackendService  string
	FrontendService string

	BillingAccountID string
	OrganizationID   string
	Developer        string

	HealthPath string

	CloudRun *CloudRunConfig
	GitHub   *GitHubConfig
	Vault    *VaultConfig
	Secrets  map[string]SecretRefConfig

	// VaultToken and VaultSecretID come from the operator overrides
	VaultToken    string
	VaultSecretID string

	EnvironmentVariables map[string]string

	// CredentialsFile is a service account key path; empty means ADC
	CredentialsFile string

	// GitHubConnected indicates the VCS integration is already linked, so
	// trigger registration failures are reported without setup instructions
	GitHubConnected bool

	// SkipTriggers disables trigger registration entirely
	SkipTriggers bool
}

// Resolve combines the shared stack config and operator overrides into the
// configuration for one environment. It fails with MissingConfiguration if
// any required field is absent; no partial resolution is returned.
func Resolve(s *Stack, o *Overrides, env Environment) (Resolved, error) {
	if _, err := ParseEnvironment(string(env)); err != nil {
		return Resolved{}, err
	}
	if env == EnvDev && o.Developer == "" {
		return Resolved{}, &errdefs.MissingConfigurationError{Field: "DEV_SCHEMA_NAME", Source: o.Source}
	}
	if o.BillingAccountID == "" {
		return Resolved{}, &errdefs.MissingConfigurationError{Field: "GCP_BILLING_ACCOUNT_ID", Source: o.Source}
	}

	identity := ResolveIdentity(s.ProjectName, env, o.Developer)
	service := ResolveResourceName(s.ServiceName)

	healthPath := s.HealthCheck.Path
	if healthPath == "" {
		healthPath = "/health"
	}

	return Resolved{
		Environment:          env,
		ProjectID:            identity,
		Region:               s.Region,
		RepoName:             ResolveResourceName(s.RepoName),
		ServiceName:          service,
		BackendService:       service + "-backend",
		FrontendService:      service + "-frontend",
		BillingAccountID:     o.BillingAccountID,
		OrganizationID:       o.OrganizationID,
		Developer:            o.Developer,
		HealthPath:           healthPath,
		CloudRun:             s.CloudRun,
		GitHub:               s.GitHub,
		Vault:                s.Vault,
		Secrets:              s.Secrets,
		VaultToken:           o.VaultToken,
		VaultSecretID:        o.VaultSecretID,
		EnvironmentVariables: s.EnvironmentVariables,
		CredentialsFile:      o.CredentialsFile,
		GitHubConnected:      o.GitHubConnected,
		SkipTriggers:         o.SkipTriggers,
	}, nil
}

// TargetEnvironments returns the environments a run should cover: the
// enabled list when all is true, otherwise the single explicit env.
func (s *Stack) TargetEnvironments(all bool, env Environment) []Environment {
	if !all {
		return []Environment{env}
	}
	if len(s.Environments) == 0 {
		return Environments
	}
	out := make([]Environment, 0, len(s.Environments))
	for _, e := range s.Environments {
		out = append(out, Environment(e))
	}
	return out
}

// ClientOptions returns the google API client options for this run: an
// explicit key file when configured, otherwise application default
// credentials.
func (r Resolved) ClientOptions() []option.ClientOption {
	if r.CredentialsFile != "" {
		return []option.ClientOption{option.WithCredentialsFile(r.CredentialsFile)}
	}
	return nil
}
