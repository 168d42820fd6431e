// Package deploy builds application images, pushes them to the registry,
// and rolls Cloud Run services forward to them.
package deploy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/stackpilot/stackpilot/pkg/config"
)

// Component selects which half of the application a deploy touches.
type Component string

const (
	ComponentBackend  Component = "backend"
	ComponentFrontend Component = "frontend"
)

// AllComponents is the full deploy set, backend first so the frontend never
// points at an API older than itself.
var AllComponents = []Component{ComponentBackend, ComponentFrontend}

// ServiceStatus is the observed state of one Cloud Run service.
type ServiceStatus struct {
	Service  string `json:"service"`
	URL      string `json:"url"`
	Ready    bool   `json:"ready"`
	Revision string `json:"revision,omitempty"`
}

// DeploymentRecord is written after a successful deploy so later commands
// (verify, status) know where the environment lives without re-querying.
type DeploymentRecord struct {
	Environment string            `json:"environment"`
	ProjectID   string            `json:"projectId"`
	BackendURL  string            `json:"backendUrl"`
	FrontendURL string            `json:"frontendUrl"`
	Images      map[string]string `json:"images,omitempty"`
	DeployedAt  time.Time         `json:"deployedAt"`
}

// FillFrom copies URLs and image pins from a previous record for components
// this run did not deploy, so a partial deploy never erases where the other
// half of the application lives.
func (r *DeploymentRecord) FillFrom(prev *DeploymentRecord) {
	if prev == nil {
		return
	}
	if r.BackendURL == "" {
		r.BackendURL = prev.BackendURL
	}
	if r.FrontendURL == "" {
		r.FrontendURL = prev.FrontendURL
	}
	for component, image := range prev.Images {
		if _, ok := r.Images[component]; !ok {
			if r.Images == nil {
				r.Images = map[string]string{}
			}
			r.Images[component] = image
		}
	}
}

// RecordPath is where the record for an environment is kept, relative to the
// repository root.
func RecordPath(env config.Environment) string {
	return filepath.Join(".stackpilot", fmt.Sprintf("deploy-%s.json", env))
}

// WriteRecord persists the record, creating the state directory on first use.
func WriteRecord(path string, rec *DeploymentRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode deployment record: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write deployment record: %w", err)
	}
	return nil
}

// LoadRecord reads a previously written record.
func LoadRecord(path string) (*DeploymentRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read deployment record: %w", err)
	}

	var rec DeploymentRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse deployment record: %w", err)
	}
	return &rec, nil
}
