package probe

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/stackpilot/stackpilot/pkg/errdefs"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		want    Result
		wantErr bool
	}{
		{
			name: "nil means exists",
			err:  nil,
			want: Exists,
		},
		{
			name: "REST 404",
			err:  &googleapi.Error{Code: 404, Message: "not found"},
			want: NotFound,
		},
		{
			name: "REST 403",
			err:  &googleapi.Error{Code: 403, Message: "forbidden"},
			want: Unauthorized,
		},
		{
			name: "REST 401",
			err:  &googleapi.Error{Code: 401, Message: "unauthenticated"},
			want: Unauthorized,
		},
		{
			name:    "REST 500 surfaces the error",
			err:     &googleapi.Error{Code: 500, Message: "backend error"},
			wantErr: true,
		},
		{
			name: "gRPC NotFound",
			err:  status.Error(codes.NotFound, "no such service"),
			want: NotFound,
		},
		{
			name: "gRPC PermissionDenied",
			err:  status.Error(codes.PermissionDenied, "denied"),
			want: Unauthorized,
		},
		{
			name: "gRPC Unauthenticated",
			err:  status.Error(codes.Unauthenticated, "who are you"),
			want: Unauthorized,
		},
		{
			name:    "opaque error surfaces",
			err:     errors.New("connection reset"),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Classify(tt.err)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Classify() should surface unexpected errors")
				}
				return
			}
			if err != nil {
				t.Fatalf("Classify() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCheckUnauthorizedIsHardStop(t *testing.T) {
	d := Descriptor{Kind: "project", Name: "acme-dev-alice"}

	calls := 0
	_, err := Check(context.Background(), d, func(context.Context) error {
		calls++
		return &googleapi.Error{Code: 403, Message: "forbidden"}
	})

	if !errdefs.IsInsufficientPermissions(err) {
		t.Fatalf("expected InsufficientPermissionsError, got %T: %v", err, err)
	}
	if calls != 1 {
		t.Errorf("Check() issued %d queries, want exactly 1 (no retries)", calls)
	}
}

func TestCheckSingleQuery(t *testing.T) {
	d := Descriptor{Kind: "service", Name: "acme-api-backend", Location: "us-central1"}

	calls := 0
	result, err := Check(context.Background(), d, func(context.Context) error {
		calls++
		return status.Error(codes.NotFound, "absent")
	})
	if err != nil {
		t.Fatalf("Check() failed: %v", err)
	}
	if result != NotFound {
		t.Errorf("Check() = %v, want NotFound", result)
	}
	if calls != 1 {
		t.Errorf("Check() issued %d queries, want exactly 1", calls)
	}
}

func TestDescriptorString(t *testing.T) {
	tests := []struct {
		d    Descriptor
		want string
	}{
		{Descriptor{Kind: "project", Name: "acme-prod"}, "project acme-prod"},
		{Descriptor{Kind: "service", Name: "api", Location: "us-central1"}, "service api in us-central1"},
	}
	for _, tt := range tests {
		if got := tt.d.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestIsAlreadyExists(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"REST 409", &googleapi.Error{Code: 409, Message: "conflict"}, true},
		{"gRPC AlreadyExists", status.Error(codes.AlreadyExists, "dup"), true},
		{"message fallback", errors.New("resource already exists in project"), true},
		{"unrelated", errors.New("quota exceeded"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsAlreadyExists(tt.err); got != tt.want {
				t.Errorf("IsAlreadyExists(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
