// Package secrets sources secret material for deployments. Runtime secrets
// for the deployed services come from HashiCorp Vault's KV v2 engine and are
// merged into the service environment at deploy time; generated
// service-account keys are escrowed to the platform's secret store.
package secrets

import (
	"context"
	"fmt"

	vault "github.com/hashicorp/vault/api"

	"github.com/stackpilot/stackpilot/pkg/config"
)

// VaultClient wraps the Vault API client for KV v2 secret retrieval.
type VaultClient struct {
	client   *vault.Client
	cfg      *config.VaultConfig
	token    string
	secretID string
}

// NewVaultClient creates a Vault client from the stack's vault block and the
// operator's credentials. It does not authenticate yet.
func NewVaultClient(cfg *config.VaultConfig, token, secretID string) (*VaultClient, error) {
	if cfg == nil || cfg.Address == "" {
		return nil, fmt.Errorf("vault address is required")
	}

	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSSkipVerify {
		tlsConfig := &vault.TLSConfig{
			Insecure: true,
		}
		if err := vaultConfig.ConfigureTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	return &VaultClient{
		client:   client,
		cfg:      cfg,
		token:    token,
		secretID: secretID,
	}, nil
}

// Authenticate authenticates using the configured method. Must be called
// before Fetch.
func (c *VaultClient) Authenticate(ctx context.Context) error {
	switch c.cfg.AuthMethod {
	case "token":
		if c.token == "" {
			return fmt.Errorf("VAULT_TOKEN is required for token authentication")
		}
		c.client.SetToken(c.token)
		return nil

	case "approle":
		return c.authenticateWithAppRole(ctx)

	default:
		return fmt.Errorf("unsupported vault auth method: %s", c.cfg.AuthMethod)
	}
}

func (c *VaultClient) authenticateWithAppRole(ctx context.Context) error {
	if c.cfg.RoleID == "" {
		return fmt.Errorf("vault role_id is required for approle authentication")
	}
	if c.secretID == "" {
		return fmt.Errorf("VAULT_SECRET_ID is required for approle authentication")
	}

	data := map[string]interface{}{
		"role_id":   c.cfg.RoleID,
		"secret_id": c.secretID,
	}

	resp, err := c.client.Logical().WriteWithContext(ctx, "auth/approle/login", data)
	if err != nil {
		return fmt.Errorf("approle login failed: %w", err)
	}
	if resp == nil || resp.Auth == nil {
		return fmt.Errorf("approle login returned no auth token")
	}

	c.client.SetToken(resp.Auth.ClientToken)
	return nil
}

// Fetch retrieves every referenced secret and returns a map of environment
// variable names to values. For KV v2 the path must include "/data/" after
// the mount point (e.g., "secret/data/acme/firebase").
func (c *VaultClient) Fetch(ctx context.Context, refs map[string]config.SecretRefConfig) (map[string]string, error) {
	values := make(map[string]string, len(refs))

	for name, ref := range refs {
		value, err := c.read(ctx, ref.Path, ref.Key)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch secret %s: %w", name, err)
		}
		values[name] = value
	}

	return values, nil
}

func (c *VaultClient) read(ctx context.Context, path, key string) (string, error) {
	secret, err := c.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return "", fmt.Errorf("failed to read secret at %s: %w", path, err)
	}
	if secret == nil {
		return "", fmt.Errorf("secret not found at path: %s", path)
	}

	// KV v2 nests the payload under "data"
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("unexpected secret format at path: %s", path)
	}

	value, ok := data[key]
	if !ok {
		return "", fmt.Errorf("key %s not found in secret at path: %s", key, path)
	}

	valueStr, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("value for key %s is not a string at path: %s", key, path)
	}

	return valueStr, nil
}

// FetchRuntime resolves the run's secret references into environment
// variables, authenticating first. Returns nil when no Vault is configured.
func FetchRuntime(ctx context.Context, cfg config.Resolved) (map[string]string, error) {
	if cfg.Vault == nil || len(cfg.Secrets) == 0 {
		return nil, nil
	}

	client, err := NewVaultClient(cfg.Vault, cfg.VaultToken, cfg.VaultSecretID)
	if err != nil {
		return nil, err
	}
	if err := client.Authenticate(ctx); err != nil {
		return nil, fmt.Errorf("vault authentication failed: %w", err)
	}

	return client.Fetch(ctx, cfg.Secrets)
}
