// Package errdefs defines the error taxonomy shared by all stackpilot
// packages. Callers match on these types with errors.As rather than
// pattern-matching message strings from external tools.
package errdefs

import (
	"errors"
	"fmt"
)

// MissingConfigurationError indicates a required config or override field
// was absent. Resolution aborts immediately; no partial result is returned.
type MissingConfigurationError struct {
	// Field is the config key that was missing (e.g., "project_name")
	Field string

	// Source is where the field was expected (e.g., "stack.yaml", ".stackpilot.env")
	Source string
}

func (e *MissingConfigurationError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("missing configuration: %s is required in %s", e.Field, e.Source)
	}
	return fmt.Sprintf("missing configuration: %s is required", e.Field)
}

// InsufficientPermissionsError indicates an existence probe came back
// Unauthorized. Proceeding to create under an ambiguous permission state
// risks an inconsistent partial resource set, so this is always terminal.
type InsufficientPermissionsError struct {
	// Resource is the descriptor string of the resource that was probed
	Resource string

	// Remediation is the exact command the operator should run, when known
	Remediation string

	Err error
}

func (e *InsufficientPermissionsError) Error() string {
	msg := fmt.Sprintf("insufficient permissions probing %s", e.Resource)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Remediation != "" {
		msg += fmt.Sprintf(" (try: %s)", e.Remediation)
	}
	return msg
}

func (e *InsufficientPermissionsError) Unwrap() error { return e.Err }

// ProvisioningFailedError indicates a resource that later steps strictly
// require could not be created or configured.
type ProvisioningFailedError struct {
	// Resource names the step that failed (e.g., "firestore database")
	Resource string

	Err error
}

func (e *ProvisioningFailedError) Error() string {
	return fmt.Sprintf("provisioning failed at %s: %v", e.Resource, e.Err)
}

func (e *ProvisioningFailedError) Unwrap() error { return e.Err }

// RegistryNotFoundError indicates a deploy was attempted before the image
// repository exists. Bootstrap must run first.
type RegistryNotFoundError struct {
	// Repository is the Artifact Registry repository name
	Repository string

	// Project is the project the repository was expected in
	Project string
}

func (e *RegistryNotFoundError) Error() string {
	return fmt.Sprintf("registry %s not found in project %s: run 'stackpilot bootstrap' first", e.Repository, e.Project)
}

// HealthCheckFailedError indicates the post-deploy health probe reported
// the service unhealthy.
type HealthCheckFailedError struct {
	// URL that was probed
	URL string

	// StatusCode of the HTTP response, 0 if the request itself failed
	StatusCode int

	// Status is the reported application status (e.g., "degraded")
	Status string
}

func (e *HealthCheckFailedError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("health check failed: %s unreachable", e.URL)
	}
	return fmt.Sprintf("health check failed: %s returned HTTP %d status %q", e.URL, e.StatusCode, e.Status)
}

// ExternalToolMissingError indicates a required command-line tool was not
// found on PATH.
type ExternalToolMissingError struct {
	// Tool is the binary name (e.g., "docker")
	Tool string

	// Hint tells the operator how to install it
	Hint string
}

func (e *ExternalToolMissingError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("required tool %q not found on PATH (%s)", e.Tool, e.Hint)
	}
	return fmt.Sprintf("required tool %q not found on PATH", e.Tool)
}

// IsMissingConfiguration reports whether err is a MissingConfigurationError.
func IsMissingConfiguration(err error) bool {
	var target *MissingConfigurationError
	return errors.As(err, &target)
}

// IsInsufficientPermissions reports whether err is an InsufficientPermissionsError.
func IsInsufficientPermissions(err error) bool {
	var target *InsufficientPermissionsError
	return errors.As(err, &target)
}

// IsProvisioningFailed reports whether err is a ProvisioningFailedError.
func IsProvisioningFailed(err error) bool {
	var target *ProvisioningFailedError
	return errors.As(err, &target)
}

// IsRegistryNotFound reports whether err is a RegistryNotFoundError.
func IsRegistryNotFound(err error) bool {
	var target *RegistryNotFoundError
	return errors.As(err, &target)
}

// IsHealthCheckFailed reports whether err is a HealthCheckFailedError.
func IsHealthCheckFailed(err error) bool {
	var target *HealthCheckFailedError
	return errors.As(err, &target)
}

// IsExternalToolMissing reports whether err is an ExternalToolMissingError.
func IsExternalToolMissing(err error) bool {
	var target *ExternalToolMissingError
	return errors.As(err, &target)
}
