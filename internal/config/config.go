package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/gobwas/glob"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where the hook looks for its configuration when no flag or
// MFAGATE_CONFIG override is given.
const DefaultPath = "/etc/mfagate/config.yaml"

type Config struct {
	Policy  PolicyConfig  `yaml:"policy"`
	Enroll  EnrollConfig  `yaml:"enroll"`
	Logging LoggingConfig `yaml:"logging"`
	Audit   AuditConfig   `yaml:"audit"`
}

// PolicyConfig is the static policy: exemption groups and the location of
// the per-user enrollment marker.
type PolicyConfig struct {
	// NoMFAGroups fully exempt their members. Glob patterns.
	NoMFAGroups []string `yaml:"no_mfa_groups"`

	// OptionalMFAGroups mark voluntary participation; for gating purposes
	// they are exempt the same way.
	OptionalMFAGroups []string `yaml:"optional_mfa_groups"`

	// MarkerPath is the enrollment marker location; %u expands to the
	// username. The marker is owned by the enrollment tool, never written
	// here.
	MarkerPath string `yaml:"marker_path" env:"MFAGATE_MARKER_PATH"`
}

type EnrollConfig struct {
	Command string   `yaml:"command" env:"MFAGATE_ENROLL_CMD"`
	Args    []string `yaml:"args"`

	// Deadline bounds the enrollment command's wall-clock runtime.
	// "0" disables the driver-side deadline.
	Deadline string `yaml:"deadline" env:"MFAGATE_ENROLL_DEADLINE"`

	// TimeoutExitCode is the reserved status an external deadline
	// supervisor uses to signal expiry (timeout(1) convention).
	TimeoutExitCode int `yaml:"timeout_exit_code"`
}

type LoggingConfig struct {
	Level string `yaml:"level" env:"MFAGATE_LOG_LEVEL"`
}

type AuditConfig struct {
	// Output is the JSONL audit log path; empty disables the file sink.
	Output   string             `yaml:"output" env:"MFAGATE_AUDIT_OUTPUT"`
	Rotation RotationConfig     `yaml:"rotation"`
	Storage  AuditStorageConfig `yaml:"storage"`
}

type RotationConfig struct {
	MaxSizeMB  int `yaml:"max_size_mb"`
	MaxBackups int `yaml:"max_backups"`
}

type AuditStorageConfig struct {
	// SQLitePath enables the queryable sqlite sink when non-empty.
	SQLitePath string `yaml:"sqlite_path" env:"MFAGATE_SQLITE_PATH"`
}

// Load reads configuration from path, then applies defaults and environment
// overrides. A missing file is not an error: a login hook must never break
// login because its config is absent, so built-in defaults apply.
func Load(path string) (*Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case os.IsNotExist(err):
		// defaults only
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	applyDefaults(&cfg)
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromBytes loads configuration from bytes without applying environment
// overrides. Intended for testing where env vars should not interfere.
func LoadFromBytes(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&cfg)
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DeadlineDuration returns the parsed enrollment deadline; zero disables it.
func (c EnrollConfig) DeadlineDuration() time.Duration {
	d, err := time.ParseDuration(c.Deadline)
	if err != nil {
		return 0
	}
	return d
}

// SlogLevel maps the configured level onto slog's scale. Unknown values
// fall back to info; validation rejects them at load time anyway.
func (c LoggingConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ExemptionGroups returns both exemption-group pattern sets combined.
func (c PolicyConfig) ExemptionGroups() []string {
	out := make([]string, 0, len(c.NoMFAGroups)+len(c.OptionalMFAGroups))
	out = append(out, c.NoMFAGroups...)
	out = append(out, c.OptionalMFAGroups...)
	return out
}

func applyDefaults(cfg *Config) {
	if cfg.Policy.NoMFAGroups == nil {
		cfg.Policy.NoMFAGroups = []string{"no-mfa"}
	}
	if cfg.Policy.OptionalMFAGroups == nil {
		cfg.Policy.OptionalMFAGroups = []string{"mfa-optional"}
	}
	if cfg.Policy.MarkerPath == "" {
		cfg.Policy.MarkerPath = "/var/lib/mfagate/enrolled/%u"
	}
	if cfg.Enroll.Command == "" {
		cfg.Enroll.Command = "mfa-enroll"
	}
	if cfg.Enroll.Deadline == "" {
		cfg.Enroll.Deadline = "5m"
	}
	if cfg.Enroll.TimeoutExitCode == 0 {
		cfg.Enroll.TimeoutExitCode = 124
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Audit.Rotation.MaxSizeMB <= 0 {
		cfg.Audit.Rotation.MaxSizeMB = 50
	}
	if cfg.Audit.Rotation.MaxBackups <= 0 {
		cfg.Audit.Rotation.MaxBackups = 3
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Policy.MarkerPath == "" {
		return fmt.Errorf("policy.marker_path is empty")
	}
	for _, pat := range cfg.Policy.ExemptionGroups() {
		if _, err := glob.Compile(pat); err != nil {
			return fmt.Errorf("compile exemption group %q: %w", pat, err)
		}
	}
	if _, err := time.ParseDuration(cfg.Enroll.Deadline); err != nil {
		return fmt.Errorf("parse enroll.deadline %q: %w", cfg.Enroll.Deadline, err)
	}
	if cfg.Enroll.TimeoutExitCode < 1 || cfg.Enroll.TimeoutExitCode > 255 {
		return fmt.Errorf("enroll.timeout_exit_code %d out of range 1..255", cfg.Enroll.TimeoutExitCode)
	}
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown logging.level %q", cfg.Logging.Level)
	}
	return nil
}
