package deploy

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/stackpilot/stackpilot/pkg/errdefs"
	"github.com/stackpilot/stackpilot/pkg/logging"
)

// BuildSpec describes one local Docker build.
type BuildSpec struct {
	Component  Component
	Dir        string
	Dockerfile string
	ImageName  string
}

// BuildSpecs returns the conventional build layout: each component lives in
// a directory of the same name with its own Dockerfile.
func BuildSpecs(serviceName string, components []Component) []BuildSpec {
	specs := make([]BuildSpec, 0, len(components))
	for _, c := range components {
		specs = append(specs, BuildSpec{
			Component:  c,
			Dir:        string(c),
			Dockerfile: "Dockerfile",
			ImageName:  fmt.Sprintf("%s-%s", serviceName, c),
		})
	}
	return specs
}

// ImageTag derives the tag for this build from the current git commit. A
// working tree that is not a git checkout still deploys, under "latest".
func ImageTag(ctx context.Context) string {
	if _, err := exec.LookPath("git"); err != nil {
		logging.Warn("git not found, tagging image as latest")
		return "latest"
	}

	out, err := exec.CommandContext(ctx, "git", "rev-parse", "--short", "HEAD").Output()
	if err != nil {
		logging.Warn("not a git checkout, tagging image as latest")
		return "latest"
	}
	return strings.TrimSpace(string(out))
}

// Build runs a local Docker build and returns the local image reference.
// Cloud Run executes amd64 images only, so the target platform is always
// pinned regardless of the host architecture.
func Build(ctx context.Context, spec BuildSpec, tag string) (string, error) {
	if _, err := exec.LookPath("docker"); err != nil {
		return "", &errdefs.ExternalToolMissingError{
			Tool: "docker",
			Hint: "install Docker and ensure the daemon is running",
		}
	}

	local := fmt.Sprintf("%s:%s", spec.ImageName, tag)

	args := []string{
		"build",
		"--platform", "linux/amd64",
		"-t", local,
		"-f", spec.Dockerfile,
		".",
	}

	logging.Info("building image", "component", string(spec.Component), "image", local)

	cmd := exec.CommandContext(ctx, "docker", args...)
	cmd.Dir = spec.Dir
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("docker build of %s failed: %s: %w",
			spec.Component, lastLines(string(output), 20), err)
	}

	return local, nil
}

// lastLines trims build output to its tail, which is where Docker puts the
// actual failure.
func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) <= n {
		return strings.Join(lines, "\n")
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}
