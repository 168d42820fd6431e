package trigger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackpilot/stackpilot/pkg/config"
)

func firing(t *testing.T, outcomes []Outcome) []config.Environment {
	t.Helper()
	var envs []config.Environment
	for _, o := range outcomes {
		if o.Fires {
			envs = append(envs, o.Environment)
		}
	}
	return envs
}

func TestSimulateFeatureBranchDeploysDev(t *testing.T) {
	defs := Definitions("acme")

	outcomes := Simulate(defs, Event{Branch: "feature/login-flow"})
	require.Len(t, outcomes, 3)

	assert.Equal(t, []config.Environment{config.EnvDev}, firing(t, outcomes))
}

func TestSimulateMainDeploysStagingOnly(t *testing.T) {
	outcomes := Simulate(Definitions("acme"), Event{Branch: "main"})

	assert.Equal(t, []config.Environment{config.EnvStaging}, firing(t, outcomes))

	for _, o := range outcomes {
		if o.Environment == config.EnvDev {
			assert.False(t, o.Fires, "main must not deploy dev")
		}
	}
}

func TestSimulateVersionTagDeploysProd(t *testing.T) {
	outcomes := Simulate(Definitions("acme"), Event{Tag: "v1.2.3"})

	assert.Equal(t, []config.Environment{config.EnvProd}, firing(t, outcomes))
}

func TestSimulateNonVersionTagDeploysNothing(t *testing.T) {
	outcomes := Simulate(Definitions("acme"), Event{Tag: "release-candidate"})

	assert.Empty(t, firing(t, outcomes))
}

func TestSimulatePullRequestDeploysNothing(t *testing.T) {
	outcomes := Simulate(Definitions("acme"), Event{PullRequest: true, PRTitle: "Add login flow"})

	assert.Empty(t, firing(t, outcomes))
	for _, o := range outcomes {
		assert.Contains(t, o.Reason, "pull request")
	}
}

func TestDefinitionsNaming(t *testing.T) {
	defs := Definitions("acme")
	require.Len(t, defs, 3)

	assert.Equal(t, "acme-deploy-dev", defs[0].Name)
	assert.True(t, defs[0].InvertBranch)
	assert.Equal(t, "acme-deploy-staging", defs[1].Name)
	assert.Equal(t, "acme-deploy-prod", defs[2].Name)
	assert.NotEmpty(t, defs[2].TagPattern)
}
