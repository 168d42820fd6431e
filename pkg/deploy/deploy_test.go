package deploy

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stackpilot/stackpilot/pkg/config"
)

func TestBuildSpecs(t *testing.T) {
	specs := BuildSpecs("acme", AllComponents)
	if len(specs) != 2 {
		t.Fatalf("expected 2 specs, got %d", len(specs))
	}
	if specs[0].Component != ComponentBackend {
		t.Error("backend must be built and deployed first")
	}
	if specs[0].ImageName != "acme-backend" || specs[1].ImageName != "acme-frontend" {
		t.Errorf("unexpected image names: %s, %s", specs[0].ImageName, specs[1].ImageName)
	}
	if specs[0].Dir != "backend" || specs[1].Dir != "frontend" {
		t.Errorf("unexpected build dirs: %s, %s", specs[0].Dir, specs[1].Dir)
	}
}

func TestRecordRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state", "deploy-dev.json")

	rec := &DeploymentRecord{
		Environment: "dev",
		ProjectID:   "acme-dev-alice",
		BackendURL:  "https://acme-backend-xyz.a.run.app",
		FrontendURL: "https://acme-frontend-xyz.a.run.app",
		Images: map[string]string{
			"backend": "us-central1-docker.pkg.dev/acme-dev-alice/images/acme-backend@sha256:abc",
		},
	}

	if err := WriteRecord(path, rec); err != nil {
		t.Fatalf("WriteRecord failed: %v", err)
	}

	got, err := LoadRecord(path)
	if err != nil {
		t.Fatalf("LoadRecord failed: %v", err)
	}
	if got.ProjectID != rec.ProjectID || got.BackendURL != rec.BackendURL {
		t.Errorf("record mismatch: %+v", got)
	}
	if got.FrontendURL != rec.FrontendURL || got.Environment != rec.Environment {
		t.Errorf("record mismatch: %+v", got)
	}
}

func TestRecordPath(t *testing.T) {
	got := RecordPath(config.EnvStaging)
	want := filepath.Join(".stackpilot", "deploy-staging.json")
	if got != want {
		t.Errorf("RecordPath = %q, want %q", got, want)
	}
}

func TestCreateTarGz(t *testing.T) {
	tmpDir := t.TempDir()

	if err := os.WriteFile(filepath.Join(tmpDir, "main.py"), []byte("app = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(tmpDir, "app"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "app", "api.py"), []byte("routes = []\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	// Hidden entries stay out of the build context.
	if err := os.WriteFile(filepath.Join(tmpDir, ".env"), []byte("SECRET=1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	tarFile := filepath.Join(t.TempDir(), "source.tgz")
	if err := createTarGz(tmpDir, tarFile); err != nil {
		t.Fatalf("createTarGz failed: %v", err)
	}

	f, err := os.Open(tarFile)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatal(err)
	}
	tr := tar.NewReader(gz)

	names := map[string]bool{}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		names[hdr.Name] = true
	}

	if !names["main.py"] || !names[filepath.Join("app", "api.py")] {
		t.Errorf("missing expected entries: %v", names)
	}
	if names[".env"] {
		t.Error("hidden files must not be archived")
	}
}

func TestLastLines(t *testing.T) {
	if got := lastLines("a\nb\nc", 2); got != "b\nc" {
		t.Errorf("lastLines = %q", got)
	}
	if got := lastLines("a\nb", 5); got != "a\nb" {
		t.Errorf("short input should pass through, got %q", got)
	}
}

func TestFillFromKeepsUndeployedComponents(t *testing.T) {
	prev := &DeploymentRecord{
		Environment: "dev",
		ProjectID:   "acme-dev-alice",
		BackendURL:  "https://acme-backend.run.app",
		FrontendURL: "https://acme-frontend.run.app",
		Images: map[string]string{
			"backend":  "img@sha256:aaa",
			"frontend": "img@sha256:bbb",
		},
	}

	// A frontend-only deploy produces a record with no backend entries.
	next := &DeploymentRecord{
		Environment: "dev",
		ProjectID:   "acme-dev-alice",
		FrontendURL: "https://acme-frontend-v2.run.app",
		Images:      map[string]string{"frontend": "img@sha256:ccc"},
	}

	next.FillFrom(prev)

	if next.BackendURL != "https://acme-backend.run.app" {
		t.Errorf("backend URL lost on partial deploy: %q", next.BackendURL)
	}
	if next.FrontendURL != "https://acme-frontend-v2.run.app" {
		t.Errorf("deployed frontend URL must win: %q", next.FrontendURL)
	}
	if next.Images["backend"] != "img@sha256:aaa" {
		t.Errorf("backend image pin lost: %q", next.Images["backend"])
	}
	if next.Images["frontend"] != "img@sha256:ccc" {
		t.Errorf("deployed frontend image must win: %q", next.Images["frontend"])
	}
}

func TestFillFromFirstDeploy(t *testing.T) {
	next := &DeploymentRecord{Environment: "dev", FrontendURL: "https://f.run.app"}

	next.FillFrom(nil)

	if next.BackendURL != "" || next.FrontendURL != "https://f.run.app" {
		t.Errorf("FillFrom(nil) must be a no-op, got %+v", next)
	}
}
