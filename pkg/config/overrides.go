package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// DefaultOverridesFile is the conventional operator override file name.
const DefaultOverridesFile = ".stackpilot.env"

// Overrides is the per-operator configuration, loaded from an env-format
// file. It carries everything that varies per operator rather than per
// project: billing, the developer handle, and feature flags.
type Overrides struct {
	// BillingAccountID in XXXXXX-XXXXXX-XXXXXX format
	BillingAccountID string

	// OrganizationID to create projects under - optional
	OrganizationID string

	// Developer handle, appended to dev project identities
	Developer string

	// Environment is the default target (MODE key); CLI flags override it
	Environment string

	// CredentialsFile is a service account key path; empty means ADC
	CredentialsFile string

	// VaultToken authenticates to Vault when auth_method is "token"
	VaultToken string

	// VaultSecretID pairs with the stack's role_id for approle auth
	VaultSecretID string

	// GitHubConnected marks the Cloud Build GitHub app as already installed
	GitHubConnected bool

	// SkipTriggers disables trigger registration
	SkipTriggers bool

	// Source is the file these overrides were read from, for diagnostics
	Source string
}

// LoadOverrides reads the operator override file. A missing file is not an
// error: every field has either a CLI flag or a validation check downstream,
// and CI environments typically inject flags instead of a file.
func LoadOverrides(filename string) (*Overrides, error) {
	v := viper.New()
	v.SetConfigFile(filename)
	v.SetConfigType("env")

	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return &Overrides{Environment: string(EnvDev), Source: filename}, nil
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read overrides file %s: %w", filename, err)
	}

	o := &Overrides{
		BillingAccountID: v.GetString("GCP_BILLING_ACCOUNT_ID"),
		OrganizationID:   v.GetString("GCP_ORGANIZATION_ID"),
		Developer:        v.GetString("DEV_SCHEMA_NAME"),
		Environment:      v.GetString("MODE"),
		CredentialsFile:  v.GetString("SERVICE_ACCOUNT_KEY_PATH"),
		VaultToken:       v.GetString("VAULT_TOKEN"),
		VaultSecretID:    v.GetString("VAULT_SECRET_ID"),
		GitHubConnected:  v.GetBool("GITHUB_CONNECTED"),
		SkipTriggers:     v.GetBool("SKIP_TRIGGERS"),
		Source:           filename,
	}
	if o.Environment == "" {
		o.Environment = string(EnvDev)
	}

	return o, nil
}
