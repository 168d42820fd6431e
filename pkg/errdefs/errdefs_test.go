package errdefs

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestMissingConfigurationError(t *testing.T) {
	tests := []struct {
		name string
		err  *MissingConfigurationError
		want string
	}{
		{
			name: "with source",
			err:  &MissingConfigurationError{Field: "project_name", Source: "stack.yaml"},
			want: "missing configuration: project_name is required in stack.yaml",
		},
		{
			name: "without source",
			err:  &MissingConfigurationError{Field: "developer"},
			want: "missing configuration: developer is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
			if !IsMissingConfiguration(tt.err) {
				t.Error("IsMissingConfiguration() = false, want true")
			}
		})
	}
}

func TestProvisioningFailedUnwrap(t *testing.T) {
	cause := errors.New("quota exceeded")
	err := &ProvisioningFailedError{Resource: "firestore database", Err: cause}

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the wrapped cause")
	}
	if !strings.Contains(err.Error(), "firestore database") {
		t.Errorf("Error() should name the failed resource, got: %s", err.Error())
	}
}

func TestProvisioningFailedThroughWrapping(t *testing.T) {
	// Matchers must see through fmt.Errorf %w chains, since call sites wrap.
	inner := &ProvisioningFailedError{Resource: "service account", Err: errors.New("denied")}
	wrapped := fmt.Errorf("bootstrap dev: %w", inner)

	if !IsProvisioningFailed(wrapped) {
		t.Error("IsProvisioningFailed() should match through wrapping")
	}
	var target *ProvisioningFailedError
	if !errors.As(wrapped, &target) || target.Resource != "service account" {
		t.Errorf("errors.As lost the resource name, got %+v", target)
	}
}

func TestInsufficientPermissionsRemediation(t *testing.T) {
	err := &InsufficientPermissionsError{
		Resource:    "project acme-dev-alice",
		Remediation: "gcloud auth application-default login",
	}
	if !strings.Contains(err.Error(), "gcloud auth application-default login") {
		t.Errorf("Error() should include the remediation command, got: %s", err.Error())
	}
	if !IsInsufficientPermissions(err) {
		t.Error("IsInsufficientPermissions() = false, want true")
	}
}

func TestRegistryNotFoundError(t *testing.T) {
	err := &RegistryNotFoundError{Repository: "acme-images", Project: "acme-prod"}
	msg := err.Error()
	if !strings.Contains(msg, "acme-images") || !strings.Contains(msg, "acme-prod") {
		t.Errorf("Error() should name repository and project, got: %s", msg)
	}
	if !strings.Contains(msg, "bootstrap") {
		t.Errorf("Error() should point at the remediation command, got: %s", msg)
	}
	if !IsRegistryNotFound(err) {
		t.Error("IsRegistryNotFound() = false, want true")
	}
}

func TestHealthCheckFailedError(t *testing.T) {
	tests := []struct {
		name string
		err  *HealthCheckFailedError
		want string
	}{
		{
			name: "unreachable",
			err:  &HealthCheckFailedError{URL: "https://api.example.com/health"},
			want: "unreachable",
		},
		{
			name: "degraded",
			err:  &HealthCheckFailedError{URL: "https://api.example.com/health", StatusCode: 200, Status: "degraded"},
			want: `status "degraded"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); !strings.Contains(got, tt.want) {
				t.Errorf("Error() = %q, want substring %q", got, tt.want)
			}
		})
	}
}

func TestExternalToolMissingError(t *testing.T) {
	err := &ExternalToolMissingError{Tool: "docker", Hint: "install Docker Desktop or docker-ce"}
	if !strings.Contains(err.Error(), `"docker"`) {
		t.Errorf("Error() should quote the tool name, got: %s", err.Error())
	}
}
