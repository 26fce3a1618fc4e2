package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/vault/api"
)

// resolveVault fetches a single field of a Vault secret. The reference is
// "path#key", e.g. "secret/data/crossval/prod#target_password"; the client
// picks up its address and token from VAULT_ADDR and VAULT_TOKEN.
func resolveVault(ref string) (string, error) {
	path, key, ok := strings.Cut(ref, "#")
	if !ok {
		return "", fmt.Errorf("malformed Vault reference %q, want path#key", ref)
	}

	addr := os.Getenv("VAULT_ADDR")
	if addr == "" {
		return "", fmt.Errorf("VAULT_ADDR is not set")
	}
	token := os.Getenv("VAULT_TOKEN")
	if token == "" {
		return "", fmt.Errorf("VAULT_TOKEN is not set")
	}

	cfg := api.DefaultConfig()
	cfg.Address = addr
	client, err := api.NewClient(cfg)
	if err != nil {
		return "", fmt.Errorf("building Vault client: %w", err)
	}
	client.SetToken(token)

	secret, err := client.Logical().Read(path)
	if err != nil {
		return "", fmt.Errorf("reading Vault path %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("Vault path %s holds no secret", path)
	}

	// A KV v2 mount nests the fields one level down.
	fields := secret.Data
	if nested, ok := fields["data"].(map[string]any); ok {
		fields = nested
	}

	val, ok := fields[key]
	if !ok {
		return "", fmt.Errorf("Vault secret %s has no field %q", path, key)
	}
	str, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("Vault field %q at %s is not a string", key, path)
	}
	return str, nil
}
