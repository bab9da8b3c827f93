package exegol

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/viant/exegol/model"
	"github.com/viant/exegol/policy"
	"github.com/viant/exegol/service/orchestrator"
	"github.com/viant/exegol/service/runner"
)

// EnvPrefix prefixes every environment variable read by LoadConfig.
const EnvPrefix = "EXEGOL"

// State backends.
const (
	BackendFS     = "fs"
	BackendSQLite = "sqlite"
)

// Config is a serialisable representation of the pipeline configuration. It
// can be populated from JSON, YAML or the EXEGOL_* environment.
type Config struct {
	StateDir     string `json:"stateDir" yaml:"stateDir" mapstructure:"state_dir"`
	LogDir       string `json:"logDir" yaml:"logDir" mapstructure:"log_dir"`
	WorkspaceDir string `json:"workspaceDir" yaml:"workspaceDir" mapstructure:"workspace_dir"`
	AgentsPath   string `json:"agentsPath" yaml:"agentsPath" mapstructure:"agents_path"`

	SandboxMode    string        `json:"sandboxMode" yaml:"sandboxMode" mapstructure:"sandbox_mode"`
	SandboxImage   string        `json:"sandboxImage" yaml:"sandboxImage" mapstructure:"sandbox_image"`
	SandboxTimeout time.Duration `json:"sandboxTimeout" yaml:"sandboxTimeout" mapstructure:"sandbox_timeout"`

	StateBackend string `json:"stateBackend" yaml:"stateBackend" mapstructure:"state_backend"`
	TestCommand  string `json:"testCommand" yaml:"testCommand" mapstructure:"test_command"`
	DemoAgent    string `json:"demoAgent,omitempty" yaml:"demoAgent,omitempty" mapstructure:"demo_agent"`
	Concurrency  int    `json:"concurrency" yaml:"concurrency" mapstructure:"concurrency"`

	// Workers > 0 routes dispatches through a processor pool of that size.
	Workers int `json:"workers" yaml:"workers" mapstructure:"workers"`

	LogLevel    string `json:"logLevel" yaml:"logLevel" mapstructure:"log_level"`
	TraceFile   string `json:"traceFile,omitempty" yaml:"traceFile,omitempty" mapstructure:"trace_file"`
	MetricsAddr string `json:"metricsAddr,omitempty" yaml:"metricsAddr,omitempty" mapstructure:"metrics_addr"`

	Policy *policy.Config `json:"policy,omitempty" yaml:"policy,omitempty" mapstructure:"-"`
}

// DefaultConfig returns defaults relative to baseDir.
func DefaultConfig(baseDir string) *Config {
	return &Config{
		StateDir:       filepath.Join(baseDir, "state"),
		LogDir:         filepath.Join(baseDir, "logs"),
		WorkspaceDir:   filepath.Join(baseDir, "exegol_workspace"),
		AgentsPath:     filepath.Join(baseDir, "agents.md"),
		SandboxMode:    runner.ModeNoop,
		SandboxImage:   runner.DefaultImage,
		SandboxTimeout: runner.DefaultTimeout,
		StateBackend:   BackendFS,
		TestCommand:    model.DefaultTestCommand,
		Concurrency:    orchestrator.DefaultConcurrency,
		LogLevel:       "info",
	}
}

// Validate returns an error describing the first invalid setting or nil.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config was nil")
	}
	for name, value := range map[string]string{"stateDir": c.StateDir, "logDir": c.LogDir, "workspaceDir": c.WorkspaceDir, "agentsPath": c.AgentsPath} {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%s was empty", name)
		}
	}
	if _, err := runner.ParseMode(c.SandboxMode); err != nil {
		return err
	}
	switch c.StateBackend {
	case BackendFS, BackendSQLite:
	default:
		return fmt.Errorf("unsupported state backend: %q", c.StateBackend)
	}
	if c.SandboxTimeout <= 0 {
		return fmt.Errorf("sandboxTimeout must be > 0")
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be > 0")
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0")
	}
	if c.Policy != nil {
		switch strings.ToLower(c.Policy.Mode) {
		case "", policy.ModeAsk, policy.ModeAuto, policy.ModeDeny:
		default:
			return fmt.Errorf("unsupported policy mode: %q", c.Policy.Mode)
		}
	}
	return nil
}

// LoadConfig overlays v (flags bound by the caller plus EXEGOL_* variables)
// onto DefaultConfig(baseDir).
func LoadConfig(v *viper.Viper, baseDir string) (*Config, error) {
	cfg := DefaultConfig(baseDir)
	if v == nil {
		v = viper.New()
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	fields := map[string]*string{
		"state_dir":     &cfg.StateDir,
		"log_dir":       &cfg.LogDir,
		"workspace_dir": &cfg.WorkspaceDir,
		"agents_path":   &cfg.AgentsPath,
		"sandbox_mode":  &cfg.SandboxMode,
		"sandbox_image": &cfg.SandboxImage,
		"state_backend": &cfg.StateBackend,
		"test_command":  &cfg.TestCommand,
		"demo_agent":    &cfg.DemoAgent,
		"log_level":     &cfg.LogLevel,
		"trace_file":    &cfg.TraceFile,
		"metrics_addr":  &cfg.MetricsAddr,
	}
	for key, target := range fields {
		if v.IsSet(key) {
			*target = v.GetString(key)
		}
	}
	if v.IsSet("sandbox_timeout") {
		cfg.SandboxTimeout = v.GetDuration("sandbox_timeout")
	}
	if v.IsSet("concurrency") {
		cfg.Concurrency = v.GetInt("concurrency")
	}
	if v.IsSet("workers") {
		cfg.Workers = v.GetInt("workers")
	}
	if v.IsSet("policy_mode") || v.IsSet("policy_allow") || v.IsSet("policy_block") {
		cfg.Policy = &policy.Config{
			Mode:      v.GetString("policy_mode"),
			AllowList: v.GetStringSlice("policy_allow"),
			BlockList: v.GetStringSlice("policy_block"),
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
