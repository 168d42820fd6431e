package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stackpilot/stackpilot/pkg/errdefs"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeFile(t, "stack.yaml", `
project_name: acme
service_name: acme-api
repo_name: acme-images
region: us-central1
environments:
  - dev
  - staging
  - prod
health_check:
  path: /api/health
cloud_run:
  cpu: "1"
  memory: 512Mi
  max_instances: 10
environment_variables:
  LOG_LEVEL: info
`)

	stack, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if stack.ProjectName != "acme" {
		t.Errorf("ProjectName = %q, want %q", stack.ProjectName, "acme")
	}
	if stack.Region != "us-central1" {
		t.Errorf("Region = %q, want %q", stack.Region, "us-central1")
	}
	if len(stack.Environments) != 3 {
		t.Errorf("Environments = %v, want 3 entries", stack.Environments)
	}
	if stack.HealthCheck.Path != "/api/health" {
		t.Errorf("HealthCheck.Path = %q, want %q", stack.HealthCheck.Path, "/api/health")
	}
	if stack.CloudRun == nil || stack.CloudRun.MaxInstances != 10 {
		t.Errorf("CloudRun not parsed: %+v", stack.CloudRun)
	}
	if stack.EnvironmentVariables["LOG_LEVEL"] != "info" {
		t.Errorf("EnvironmentVariables = %v", stack.EnvironmentVariables)
	}
}

func TestLoadMissingFields(t *testing.T) {
	tests := []struct {
		name    string
		content string
		field   string
	}{
		{
			name:    "missing project_name",
			content: "service_name: api\nrepo_name: images\nregion: us-central1\n",
			field:   "project_name",
		},
		{
			name:    "missing service_name",
			content: "project_name: acme\nrepo_name: images\nregion: us-central1\n",
			field:   "service_name",
		},
		{
			name:    "missing repo_name",
			content: "project_name: acme\nservice_name: api\nregion: us-central1\n",
			field:   "repo_name",
		},
		{
			name:    "missing region",
			content: "project_name: acme\nservice_name: api\nrepo_name: images\n",
			field:   "region",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "stack.yaml", tt.content)
			_, err := Load(path)
			if err == nil {
				t.Fatal("Load() should fail on missing field")
			}
			var missing *errdefs.MissingConfigurationError
			if !errors.As(err, &missing) {
				t.Fatalf("expected MissingConfigurationError, got %T: %v", err, err)
			}
			if missing.Field != tt.field {
				t.Errorf("missing field = %q, want %q", missing.Field, tt.field)
			}
		})
	}
}

func TestLoadNonExistentFile(t *testing.T) {
	if _, err := Load("/nonexistent/stack.yaml"); err == nil {
		t.Error("Load() should fail on a missing file")
	}
}

func TestLoadInvalidEnvironment(t *testing.T) {
	path := writeFile(t, "stack.yaml", `
project_name: acme
service_name: api
repo_name: images
region: us-central1
environments: [dev, qa]
`)
	if _, err := Load(path); err == nil {
		t.Error("Load() should reject unknown environment names")
	}
}

func TestResolve(t *testing.T) {
	stack := &Stack{
		ProjectName: "acme",
		ServiceName: "acme-api",
		RepoName:    "acme-images",
		Region:      "us-central1",
	}
	overrides := &Overrides{
		BillingAccountID: "000000-AAAAAA-111111",
		Developer:        "alice",
		Source:           ".stackpilot.env",
	}

	resolved, err := Resolve(stack, overrides, EnvDev)
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}

	if resolved.ProjectID != "acme-dev-alice" {
		t.Errorf("ProjectID = %q, want %q", resolved.ProjectID, "acme-dev-alice")
	}
	if resolved.BackendService != "acme-api-backend" {
		t.Errorf("BackendService = %q, want %q", resolved.BackendService, "acme-api-backend")
	}
	if resolved.FrontendService != "acme-api-frontend" {
		t.Errorf("FrontendService = %q, want %q", resolved.FrontendService, "acme-api-frontend")
	}
	if resolved.HealthPath != "/health" {
		t.Errorf("HealthPath = %q, want default /health", resolved.HealthPath)
	}
}

func TestResolveProdStripsDeveloper(t *testing.T) {
	stack := &Stack{ProjectName: "acme", ServiceName: "api", RepoName: "images", Region: "us-central1"}
	overrides := &Overrides{BillingAccountID: "000000-AAAAAA-111111", Developer: "alice"}

	resolved, err := Resolve(stack, overrides, EnvProd)
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if resolved.ProjectID != "acme-prod" {
		t.Errorf("ProjectID = %q, want %q", resolved.ProjectID, "acme-prod")
	}
}

func TestResolveRequiresDeveloperForDev(t *testing.T) {
	stack := &Stack{ProjectName: "acme", ServiceName: "api", RepoName: "images", Region: "us-central1"}
	overrides := &Overrides{BillingAccountID: "000000-AAAAAA-111111", Source: ".stackpilot.env"}

	_, err := Resolve(stack, overrides, EnvDev)
	if err == nil {
		t.Fatal("Resolve() should require a developer handle for dev")
	}
	if !errdefs.IsMissingConfiguration(err) {
		t.Errorf("expected MissingConfigurationError, got %T: %v", err, err)
	}
}

func TestResolveRequiresBillingAccount(t *testing.T) {
	stack := &Stack{ProjectName: "acme", ServiceName: "api", RepoName: "images", Region: "us-central1"}
	overrides := &Overrides{Developer: "alice"}

	_, err := Resolve(stack, overrides, EnvDev)
	if !errdefs.IsMissingConfiguration(err) {
		t.Errorf("expected MissingConfigurationError for billing account, got %v", err)
	}
}

func TestResolveRejectsUnknownEnvironment(t *testing.T) {
	stack := &Stack{ProjectName: "acme", ServiceName: "api", RepoName: "images", Region: "us-central1"}
	overrides := &Overrides{BillingAccountID: "000000-AAAAAA-111111"}

	if _, err := Resolve(stack, overrides, Environment("qa")); err == nil {
		t.Error("Resolve() should reject unknown environments")
	}
}

func TestTargetEnvironments(t *testing.T) {
	stack := &Stack{Environments: []string{"dev", "staging"}}

	got := stack.TargetEnvironments(true, EnvDev)
	if len(got) != 2 || got[0] != EnvDev || got[1] != EnvStaging {
		t.Errorf("TargetEnvironments(all) = %v", got)
	}

	got = stack.TargetEnvironments(false, EnvProd)
	if len(got) != 1 || got[0] != EnvProd {
		t.Errorf("TargetEnvironments(single) = %v", got)
	}

	// No explicit list falls back to the full closed set.
	empty := &Stack{}
	if got := empty.TargetEnvironments(true, EnvDev); len(got) != 3 {
		t.Errorf("TargetEnvironments(all, no list) = %v, want all three", got)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := writeFile(t, ".stackpilot.env", `
GCP_BILLING_ACCOUNT_ID=000000-AAAAAA-111111
DEV_SCHEMA_NAME=alice
MODE=staging
GITHUB_CONNECTED=true
SKIP_TRIGGERS=false
`)

	o, err := LoadOverrides(path)
	if err != nil {
		t.Fatalf("LoadOverrides() failed: %v", err)
	}

	if o.BillingAccountID != "000000-AAAAAA-111111" {
		t.Errorf("BillingAccountID = %q", o.BillingAccountID)
	}
	if o.Developer != "alice" {
		t.Errorf("Developer = %q, want alice", o.Developer)
	}
	if o.Environment != "staging" {
		t.Errorf("Environment = %q, want staging", o.Environment)
	}
	if !o.GitHubConnected {
		t.Error("GitHubConnected should be true")
	}
	if o.SkipTriggers {
		t.Error("SkipTriggers should be false")
	}
}

func TestLoadOverridesMissingFile(t *testing.T) {
	o, err := LoadOverrides(filepath.Join(t.TempDir(), "absent.env"))
	if err != nil {
		t.Fatalf("LoadOverrides() on missing file should not error, got: %v", err)
	}
	if o.Environment != string(EnvDev) {
		t.Errorf("default Environment = %q, want dev", o.Environment)
	}
}
