package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validYAML() string {
	return `version: 1
target:
  type: oracle
  host: dbhost
  port: 1521
  database: ORCL
  username: validator
  password: secret
link:
  name: SRC_LINK
tables:
  - source_table: ORDERS
    natural_keys: [ID]
`
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "crossval.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML()))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Concurrency != 5 {
		t.Errorf("Concurrency = %d, want 5", cfg.Concurrency)
	}
	if cfg.Target.MaxConnections != 20 {
		t.Errorf("MaxConnections = %d, want 20", cfg.Target.MaxConnections)
	}
	if cfg.Store.ProgressTable != "DATA_VALIDATION_PROGRESS" {
		t.Errorf("ProgressTable = %q", cfg.Store.ProgressTable)
	}
	if cfg.Details.MaxPerTable != 100 {
		t.Errorf("MaxPerTable = %d, want 100", cfg.Details.MaxPerTable)
	}
	if cfg.Tables[0].ChunkSize != 10000 {
		t.Errorf("ChunkSize = %d, want 10000", cfg.Tables[0].ChunkSize)
	}
	if cfg.Tables[0].TargetTable != "ORDERS" {
		t.Errorf("TargetTable = %q, want source name", cfg.Tables[0].TargetTable)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(s string) string
		wantErr string
	}{
		{
			"wrong version",
			func(s string) string { return strings.Replace(s, "version: 1", "version: 9", 1) },
			"unsupported config version",
		},
		{
			"negative chunk size",
			func(s string) string { return s + "    chunk_size: -5\n" },
			"chunk_size must be greater than zero",
		},
		{
			"no natural keys",
			func(s string) string { return strings.Replace(s, "natural_keys: [ID]", "natural_keys: []", 1) },
			"natural_keys must not be empty",
		},
		{
			"key excluded",
			func(s string) string { return s + "    exclude_columns: [id]\n" },
			"cannot be excluded",
		},
		{
			"incremental without column",
			func(s string) string { return s + "    incremental: true\n" },
			"incremental_column is required",
		},
		{
			"oracle without link",
			func(s string) string { return strings.Replace(s, "  name: SRC_LINK", "  name: \"\"", 1) },
			"link.name is required",
		},
		{
			"unknown target type",
			func(s string) string { return strings.Replace(s, "type: oracle", "type: mysql", 1) },
			"unsupported target type",
		},
	}

	for _, tc := range cases {
		_, err := Load(writeConfig(t, tc.mutate(validYAML())))
		if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
			t.Errorf("%s: err = %v, want containing %q", tc.name, err, tc.wantErr)
		}
	}
}

func TestResolveValueEnv(t *testing.T) {
	t.Setenv("CROSSVAL_TEST_SECRET", "hunter2")

	got, err := ResolveValue("${ENV:CROSSVAL_TEST_SECRET}")
	if err != nil {
		t.Fatalf("ResolveValue: %v", err)
	}
	if got != "hunter2" {
		t.Errorf("resolved = %q, want hunter2", got)
	}

	if _, err := ResolveValue("${ENV:CROSSVAL_TEST_UNSET}"); err == nil {
		t.Error("expected error for unset environment variable")
	}

	plain, err := ResolveValue("just-a-password")
	if err != nil || plain != "just-a-password" {
		t.Errorf("plain value must pass through, got %q %v", plain, err)
	}
}

func TestResolveValueVaultReferenceFormat(t *testing.T) {
	_, err := ResolveValue("${VAULT:secret/data/crossval-no-field}")
	if err == nil {
		t.Fatal("expected error for a Vault reference without a field key")
	}
	if !strings.Contains(err.Error(), "want path#key") {
		t.Errorf("error = %v, want the path#key format hint", err)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML()))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	path := filepath.Join(t.TempDir(), "out.yaml")
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("reloading: %v", err)
	}
	if loaded.Target.Host != "dbhost" || loaded.Tables[0].SourceTable != "ORDERS" {
		t.Errorf("round trip lost data: %+v", loaded)
	}
}
