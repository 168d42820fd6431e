package provision

import (
	"testing"

	"google.golang.org/api/cloudresourcemanager/v1"
)

func TestMergeBinding(t *testing.T) {
	policy := &cloudresourcemanager.Policy{
		Bindings: []*cloudresourcemanager.Binding{
			{Role: "roles/run.admin", Members: []string{"serviceAccount:deployer@p.iam.gserviceaccount.com"}},
		},
	}

	if mergeBinding(policy, "roles/run.admin", "serviceAccount:deployer@p.iam.gserviceaccount.com") {
		t.Error("existing member must not count as a change")
	}

	if !mergeBinding(policy, "roles/run.admin", "serviceAccount:other@p.iam.gserviceaccount.com") {
		t.Error("new member on an existing binding is a change")
	}
	if got := len(policy.Bindings[0].Members); got != 2 {
		t.Errorf("expected 2 members, got %d", got)
	}

	if !mergeBinding(policy, "roles/datastore.user", "serviceAccount:other@p.iam.gserviceaccount.com") {
		t.Error("new role is a change")
	}
	if got := len(policy.Bindings); got != 2 {
		t.Errorf("expected 2 bindings, got %d", got)
	}
}

func TestServiceAccountEmail(t *testing.T) {
	got := serviceAccountEmail("deployer", "acme-dev-alice")
	want := "deployer@acme-dev-alice.iam.gserviceaccount.com"
	if got != want {
		t.Errorf("serviceAccountEmail = %q, want %q", got, want)
	}
}
