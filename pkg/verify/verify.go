// Package verify performs the post-deploy health check: one GET against the
// backend's health endpoint, no retries. A deploy that needs retries to look
// healthy is not healthy.
package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/stackpilot/stackpilot/pkg/errdefs"
	"github.com/stackpilot/stackpilot/pkg/logging"
)

// requestTimeout bounds the single probe; cold starts on a fresh revision
// can take several seconds.
const requestTimeout = 30 * time.Second

// Report is the outcome of a health check.
type Report struct {
	URL        string `json:"url"`
	Healthy    bool   `json:"healthy"`
	StatusCode int    `json:"statusCode"`
	Status     string `json:"status"`
}

// healthResponse is the shape the backend serves; only status matters here.
type healthResponse struct {
	Status string `json:"status"`
}

// Check probes url+path once. Healthy means HTTP 200 with a JSON body whose
// status field is "ok" or "healthy". Anything else returns a
// HealthCheckFailedError alongside the report.
func Check(ctx context.Context, url, path string) (Report, error) {
	endpoint := strings.TrimSuffix(url, "/") + path
	report := Report{URL: endpoint}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return report, fmt.Errorf("failed to build health request: %w", err)
	}

	client := &http.Client{Timeout: requestTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return report, &errdefs.HealthCheckFailedError{URL: endpoint, Status: err.Error()}
	}
	defer resp.Body.Close()

	report.StatusCode = resp.StatusCode

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return report, &errdefs.HealthCheckFailedError{URL: endpoint, StatusCode: resp.StatusCode, Status: "unreadable response body"}
	}

	var health healthResponse
	if err := json.Unmarshal(body, &health); err != nil {
		report.Status = strings.TrimSpace(string(body))
	} else {
		report.Status = health.Status
	}

	if resp.StatusCode == http.StatusOK && healthyStatus(report.Status) {
		report.Healthy = true
		logging.Info("health check passed", "url", endpoint, "status", report.Status)
		return report, nil
	}

	return report, &errdefs.HealthCheckFailedError{
		URL:        endpoint,
		StatusCode: resp.StatusCode,
		Status:     report.Status,
	}
}

func healthyStatus(status string) bool {
	switch strings.ToLower(status) {
	case "ok", "healthy":
		return true
	}
	return false
}
