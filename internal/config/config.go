package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	CurrentVersion = 1
	DefaultPath    = "~/.crossval/crossval.yaml"
)

// Config is the top-level configuration.
type Config struct {
	Version     int            `yaml:"version"`
	Target      TargetConfig   `yaml:"target"`
	Link        LinkConfig     `yaml:"link"`
	Tables      []TableMapping `yaml:"tables"`
	Concurrency int            `yaml:"max_concurrent_validations,omitempty"`
	Store       StoreConfig    `yaml:"store,omitempty"`
	Details     DetailConfig   `yaml:"details,omitempty"`
	RunWindow   *WindowConfig  `yaml:"run_window,omitempty"`
	Email       EmailConfig    `yaml:"email,omitempty"`
	Logging     LogConfig      `yaml:"logging,omitempty"`
}

// TargetConfig defines the target database connection. All validation queries
// run on the target; the source is reached through the cross-database link.
type TargetConfig struct {
	Type           string `yaml:"type"` // oracle or postgresql
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	Database       string `yaml:"database"` // service name for Oracle
	Schema         string `yaml:"schema,omitempty"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	SSL            bool   `yaml:"ssl,omitempty"`
	MaxConnections int    `yaml:"max_connections,omitempty"`
}

// LinkConfig names the path from the target back to the source: a database
// link for Oracle, a postgres_fdw foreign schema for PostgreSQL.
type LinkConfig struct {
	Name          string `yaml:"name,omitempty"`           // Oracle db link
	ForeignSchema string `yaml:"foreign_schema,omitempty"` // postgres_fdw schema
}

// TableMapping describes one table to validate. Immutable per run.
type TableMapping struct {
	SourceTable    string   `yaml:"source_table"`
	TargetTable    string   `yaml:"target_table"`
	NaturalKeys    []string `yaml:"natural_keys"`
	ExcludeColumns []string `yaml:"exclude_columns,omitempty"`
	ChunkSize      int      `yaml:"chunk_size,omitempty"`
	Where          string   `yaml:"where,omitempty"`
	Incremental    bool     `yaml:"incremental,omitempty"`
	IncrementalCol string   `yaml:"incremental_column,omitempty"`
}

// StoreConfig names the tables used for progress and result persistence.
type StoreConfig struct {
	ProgressTable string `yaml:"progress_table,omitempty"`
	ResultsTable  string `yaml:"results_table,omitempty"`
	DetailsTable  string `yaml:"details_table,omitempty"`
}

// DetailConfig controls mismatch detail capture.
type DetailConfig struct {
	Enabled     bool `yaml:"enabled,omitempty"`
	MaxPerTable int  `yaml:"max_per_table,omitempty"`
}

// WindowConfig restricts when new table validations may start.
// Times are "HH:MM"; weekdays use English day names.
type WindowConfig struct {
	Start    string   `yaml:"start"`
	End      string   `yaml:"end"`
	Weekdays []string `yaml:"weekdays,omitempty"`
}

// EmailConfig defines the validation report delivery.
type EmailConfig struct {
	Enabled  bool     `yaml:"enabled,omitempty"`
	SMTPHost string   `yaml:"smtp_host,omitempty"`
	SMTPPort int      `yaml:"smtp_port,omitempty"`
	Username string   `yaml:"username,omitempty"`
	Password string   `yaml:"password,omitempty"`
	From     string   `yaml:"from,omitempty"`
	To       []string `yaml:"to,omitempty"`
	UseTLS   bool     `yaml:"use_tls,omitempty"`
}

// LogConfig defines logging settings.
type LogConfig struct {
	Level     string `yaml:"level,omitempty"`     // debug, info, warn, error
	Directory string `yaml:"directory,omitempty"` // default ~/.crossval/logs/
}

// Load reads and parses the config file from the given path.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ExpandHome(DefaultPath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentVersion)
	}

	if err := cfg.resolveSecrets(); err != nil {
		return nil, fmt.Errorf("resolving secrets: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to the given path.
func (c *Config) Save(path string) error {
	if path == "" {
		path = ExpandHome(DefaultPath)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

func (c *Config) applyDefaults() {
	if c.Target.MaxConnections == 0 {
		c.Target.MaxConnections = 20
	}
	if c.Target.MaxConnections > 50 {
		c.Target.MaxConnections = 50
	}
	if c.Concurrency == 0 {
		c.Concurrency = 5
	}
	if c.Store.ProgressTable == "" {
		c.Store.ProgressTable = "DATA_VALIDATION_PROGRESS"
	}
	if c.Store.ResultsTable == "" {
		c.Store.ResultsTable = "DATA_VALIDATION_RESULTS"
	}
	if c.Store.DetailsTable == "" {
		c.Store.DetailsTable = "DATA_VALIDATION_DETAILS"
	}
	if c.Details.MaxPerTable == 0 {
		c.Details.MaxPerTable = 100
	}
	if c.Email.SMTPPort == 0 {
		c.Email.SMTPPort = 587
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Directory == "" {
		c.Logging.Directory = ExpandHome("~/.crossval/logs/")
	}
	for i := range c.Tables {
		if c.Tables[i].ChunkSize == 0 {
			c.Tables[i].ChunkSize = 10000
		}
		if c.Tables[i].TargetTable == "" {
			c.Tables[i].TargetTable = c.Tables[i].SourceTable
		}
	}
}

// Validate rejects configurations that would corrupt a run: a chunk size that
// never advances, a mapping with no total order to paginate on, or a natural
// key that is also excluded from comparison.
func (c *Config) Validate() error {
	switch c.Target.Type {
	case "oracle", "postgresql":
	default:
		return fmt.Errorf("unsupported target type %q (expected oracle or postgresql)", c.Target.Type)
	}
	if c.Target.Type == "oracle" && c.Link.Name == "" {
		return fmt.Errorf("link.name is required for an oracle target")
	}
	if c.Target.Type == "postgresql" && c.Link.ForeignSchema == "" {
		return fmt.Errorf("link.foreign_schema is required for a postgresql target")
	}
	if len(c.Tables) == 0 {
		return fmt.Errorf("no tables configured")
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("max_concurrent_validations must be at least 1")
	}

	for _, m := range c.Tables {
		if m.SourceTable == "" {
			return fmt.Errorf("table mapping with empty source_table")
		}
		if m.ChunkSize <= 0 {
			return fmt.Errorf("table %s: chunk_size must be greater than zero", m.SourceTable)
		}
		if len(m.NaturalKeys) == 0 {
			return fmt.Errorf("table %s: natural_keys must not be empty", m.SourceTable)
		}
		excluded := make(map[string]bool, len(m.ExcludeColumns))
		for _, col := range m.ExcludeColumns {
			excluded[strings.ToUpper(col)] = true
		}
		for _, key := range m.NaturalKeys {
			if excluded[strings.ToUpper(key)] {
				return fmt.Errorf("table %s: natural key %s cannot be excluded", m.SourceTable, key)
			}
		}
		if m.Incremental && m.IncrementalCol == "" {
			return fmt.Errorf("table %s: incremental_column is required in incremental mode", m.SourceTable)
		}
	}
	return nil
}

var secretPattern = regexp.MustCompile(`\$\{(ENV|VAULT|AWS_SM):([^}]+)\}`)

func (c *Config) resolveSecrets() error {
	var err error
	c.Target.Password, err = ResolveValue(c.Target.Password)
	if err != nil {
		return fmt.Errorf("target password: %w", err)
	}
	c.Email.Password, err = ResolveValue(c.Email.Password)
	if err != nil {
		return fmt.Errorf("email password: %w", err)
	}
	return nil
}

// ResolveValue resolves secret references in a string value.
func ResolveValue(val string) (string, error) {
	matches := secretPattern.FindStringSubmatch(val)
	if matches == nil {
		return val, nil
	}

	provider := matches[1]
	ref := matches[2]

	switch provider {
	case "ENV":
		v := os.Getenv(ref)
		if v == "" {
			return "", fmt.Errorf("environment variable %s not set", ref)
		}
		return v, nil
	case "VAULT":
		return resolveVault(ref)
	case "AWS_SM":
		return resolveAWSSecretsManager(ref)
	default:
		return "", fmt.Errorf("unknown secrets provider: %s", provider)
	}
}

// ExpandHome expands ~ to the user's home directory.
func ExpandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
