package main

import (
	"reflect"
	"testing"

	"github.com/stackpilot/stackpilot/pkg/config"
	"github.com/stackpilot/stackpilot/pkg/deploy"
)

func TestSelectComponents(t *testing.T) {
	tests := []struct {
		name                   string
		backend, frontend, all bool
		want                   []deploy.Component
	}{
		{"default deploys everything", false, false, false, deploy.AllComponents},
		{"explicit all", false, false, true, deploy.AllComponents},
		{"backend only", true, false, false, []deploy.Component{deploy.ComponentBackend}},
		{"frontend only", false, true, false, []deploy.Component{deploy.ComponentFrontend}},
		{"both flags mean all", true, true, false, deploy.AllComponents},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := selectComponents(tt.backend, tt.frontend, tt.all)
			if err != nil {
				t.Fatalf("selectComponents failed: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("selectComponents = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEnvFlagsEnvironments(t *testing.T) {
	stack := &config.Stack{
		ProjectName: "acme",
		ServiceName: "acme",
		RepoName:    "images",
		Region:      "us-central1",
	}
	ov := &config.Overrides{Environment: "dev"}

	t.Run("defaults to the override environment", func(t *testing.T) {
		f := &envFlags{}
		got, err := f.environments(stack, ov)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(got, []config.Environment{config.EnvDev}) {
			t.Errorf("environments = %v", got)
		}
	})

	t.Run("explicit flag wins", func(t *testing.T) {
		f := &envFlags{prod: true}
		got, err := f.environments(stack, ov)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(got, []config.Environment{config.EnvProd}) {
			t.Errorf("environments = %v", got)
		}
	})

	t.Run("all expands to every environment", func(t *testing.T) {
		f := &envFlags{all: true}
		got, err := f.environments(stack, ov)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 3 {
			t.Errorf("expected 3 environments, got %v", got)
		}
	})

	t.Run("conflicting flags are rejected", func(t *testing.T) {
		f := &envFlags{dev: true, prod: true}
		if _, err := f.environments(stack, ov); err == nil {
			t.Error("expected an error for conflicting flags")
		}
	})
}

func TestBuildEvent(t *testing.T) {
	if _, err := buildEvent("nightly", "", "", ""); err == nil {
		t.Error("unknown event kinds must be rejected")
	}

	ev, err := buildEvent("main", "ignored", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if ev.Branch != "main" {
		t.Errorf("main event should force the main branch, got %q", ev.Branch)
	}
}
