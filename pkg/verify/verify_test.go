package verify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackpilot/stackpilot/pkg/errdefs"
)

func healthServer(t *testing.T, statusCode int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(statusCode)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCheckHealthy(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"status ok", `{"status":"ok"}`},
		{"status healthy", `{"status":"healthy","version":"1.4.2"}`},
		{"uppercase status", `{"status":"OK"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := healthServer(t, http.StatusOK, tt.body)

			report, err := Check(context.Background(), srv.URL, "/health")
			require.NoError(t, err)
			assert.True(t, report.Healthy)
			assert.Equal(t, http.StatusOK, report.StatusCode)
		})
	}
}

func TestCheckUnhealthy(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		body       string
	}{
		{"degraded status", http.StatusOK, `{"status":"degraded"}`},
		{"server error", http.StatusInternalServerError, `{"status":"ok"}`},
		{"not found", http.StatusNotFound, `not found`},
		{"non-json body", http.StatusOK, `<html>maintenance</html>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := healthServer(t, tt.statusCode, tt.body)

			report, err := Check(context.Background(), srv.URL, "/health")
			require.Error(t, err)
			assert.True(t, errdefs.IsHealthCheckFailed(err))
			assert.False(t, report.Healthy)
		})
	}
}

func TestCheckUnreachable(t *testing.T) {
	srv := healthServer(t, http.StatusOK, `{"status":"ok"}`)
	url := srv.URL
	srv.Close()

	report, err := Check(context.Background(), url, "/health")
	require.Error(t, err)
	assert.True(t, errdefs.IsHealthCheckFailed(err))
	assert.False(t, report.Healthy)
}

func TestCheckJoinsPath(t *testing.T) {
	srv := healthServer(t, http.StatusOK, `{"status":"ok"}`)

	// A trailing slash on the service URL must not produce a double slash.
	report, err := Check(context.Background(), srv.URL+"/", "/health")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/health", report.URL)
}
