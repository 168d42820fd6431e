// Package probe wraps external describe/list calls with a uniform
// interpretation of their outcome. Every provisioning step asks the same
// question first: does the resource exist, is it missing, or are we not
// allowed to know? The answer decides whether the create path runs at all.
package probe

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/stackpilot/stackpilot/pkg/errdefs"
)

// Result is the tri-state outcome of an existence probe.
type Result int

const (
	// NotFound means the describe call returned a clean 404: create it.
	NotFound Result = iota

	// Exists means the resource is already there: skip creation.
	Exists

	// Unauthorized means the platform refused to answer. Creating under an
	// ambiguous permission state risks an inconsistent partial resource
	// set, so this is always a hard stop.
	Unauthorized
)

func (r Result) String() string {
	switch r {
	case NotFound:
		return "not found"
	case Exists:
		return "exists"
	case Unauthorized:
		return "unauthorized"
	}
	return "unknown"
}

// Descriptor identifies a provisioned entity. Existence is the only state
// tracked; the platform owns everything richer.
type Descriptor struct {
	// Kind of resource (e.g., "project", "artifact repository", "service")
	Kind string

	// Name of the resource
	Name string

	// Location (region or project), empty for global resources
	Location string
}

func (d Descriptor) String() string {
	if d.Location == "" {
		return d.Kind + " " + d.Name
	}
	return d.Kind + " " + d.Name + " in " + d.Location
}

// Classify maps the error from a describe call onto the tri-state result.
// Errors that fit none of the states are surfaced unchanged; the prober
// never retries.
func Classify(err error) (Result, error) {
	if err == nil {
		return Exists, nil
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 404:
			return NotFound, nil
		case 401, 403:
			return Unauthorized, nil
		}
		return NotFound, err
	}

	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		switch st.Code() {
		case codes.NotFound:
			return NotFound, nil
		case codes.PermissionDenied, codes.Unauthenticated:
			return Unauthorized, nil
		}
	}

	return NotFound, err
}

// Check runs a single describe call against the platform and interprets the
// outcome. Unauthorized is converted to InsufficientPermissions so callers
// abort rather than proceed into an ambiguous create.
func Check(ctx context.Context, d Descriptor, describe func(context.Context) error) (Result, error) {
	result, err := Classify(describe(ctx))
	if err != nil {
		return result, err
	}
	if result == Unauthorized {
		return result, &errdefs.InsufficientPermissionsError{
			Resource:    d.String(),
			Remediation: "gcloud auth application-default login",
		}
	}
	return result, nil
}

// IsAlreadyExists reports whether a create call failed only because the
// resource is already there. The scripts this replaces pattern-matched the
// CLI output; here the structured codes are checked first and the message
// match is kept as a fallback for APIs that return bare 409 text.
func IsAlreadyExists(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == 409 {
		return true
	}
	if st, ok := status.FromError(err); ok && st.Code() == codes.AlreadyExists {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "already exists")
}
