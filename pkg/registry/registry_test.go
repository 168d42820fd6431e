package registry

import "testing"

func TestRegistryURLs(t *testing.T) {
	r := &ArtifactRegistry{
		projectID: "acme-dev-alice",
		region:    "us-central1",
		repoName:  "app-images",
	}

	if got, want := r.Host(), "us-central1-docker.pkg.dev"; got != want {
		t.Errorf("Host() = %q, want %q", got, want)
	}
	if got, want := r.URL(), "us-central1-docker.pkg.dev/acme-dev-alice/app-images"; got != want {
		t.Errorf("URL() = %q, want %q", got, want)
	}
}
