// internal/config/config.go
package config

import (
	"fmt"
	"time"
)

// Config is the root conductord configuration.
type Config struct {
	Server    ServerConfig              `koanf:"server"`
	Logging   LoggingConfig             `koanf:"logging"`
	Engine    EngineConfig              `koanf:"engine"`
	State     StateConfig               `koanf:"state"`
	Domains   map[string]DomainConfig   `koanf:"domains"`
	Review    ReviewConfig              `koanf:"review"`
	Agents    map[string]AgentConfig    `koanf:"agents"`
	Workflows map[string]WorkflowConfig `koanf:"workflows"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// EngineConfig tunes the orchestration engine.
type EngineConfig struct {
	// MaxRetries is the default number of re-attempts after a transient
	// step failure. A step is attempted at most MaxRetries+1 times.
	MaxRetries int `koanf:"max_retries"`

	// MaxReviewCycles bounds remediation rounds after a rejected review.
	MaxReviewCycles int `koanf:"max_review_cycles"`

	// StepTimeout bounds a single agent invocation.
	StepTimeout Duration `koanf:"step_timeout"`

	// ReviewTimeout bounds a single review gate call.
	ReviewTimeout Duration `koanf:"review_timeout"`

	// StepTypes carries per-step-type overrides keyed by step type tag.
	StepTypes map[string]StepTypeConfig `koanf:"step_types"`
}

// StepTypeConfig overrides engine behavior for one step type.
type StepTypeConfig struct {
	// MaxRetries overrides EngineConfig.MaxRetries when >= 0.
	MaxRetries *int `koanf:"max_retries"`

	// Remediable marks the step type as eligible for review remediation:
	// after a rejected review the originating agent is re-invoked with the
	// required fixes instead of failing the run outright.
	Remediable bool `koanf:"remediable"`
}

// StateConfig configures run-state persistence.
type StateConfig struct {
	// Backend selects the store implementation: "memory" or "file".
	Backend string `koanf:"backend"`

	// Dir is the state directory for the file backend.
	Dir string `koanf:"dir"`
}

// DomainConfig defines boundary, naming and structure rules for one domain
// (e.g. frontend, backend).
type DomainConfig struct {
	Directories       []string          `koanf:"directories"`
	Extensions        []string          `koanf:"extensions"`
	NamingConventions map[string]string `koanf:"naming_conventions"`
	RequireTests      bool              `koanf:"require_tests"`
	MaxFileSize       int64             `koanf:"max_file_size"`
	MaxFunctionLength int               `koanf:"max_function_length"`
}

// ReviewConfig tunes review gate thresholds.
type ReviewConfig struct {
	// CoverageThreshold is the minimum fraction (0-100) of produced source
	// files that must have an accompanying test file.
	CoverageThreshold float64 `koanf:"coverage_threshold"`

	// BlockingSeverity is the lowest severity that blocks approval
	// ("critical", "high", "medium", "low").
	BlockingSeverity string `koanf:"blocking_severity"`
}

// AgentConfig wires one named agent.
type AgentConfig struct {
	Enabled        bool     `koanf:"enabled"`
	AllowedActions []string `koanf:"allowed_actions"`
	Workspace      string   `koanf:"workspace"`
	APIToken       Secret   `koanf:"api_token"`
}

// WorkflowConfig declares one named workflow.
type WorkflowConfig struct {
	// Inputs are the context keys the caller must supply at run start.
	Inputs []string     `koanf:"inputs"`
	Steps  []StepConfig `koanf:"steps"`
}

// StepConfig declares one workflow step.
type StepConfig struct {
	Type          string         `koanf:"type"`
	Agent         string         `koanf:"agent"`
	Params        map[string]any `koanf:"params"`
	RequireReview bool           `koanf:"require_review"`
	ReviewType    string         `koanf:"review_type"`
	Optional      bool           `koanf:"optional"`
	Outputs       []string       `koanf:"outputs"`
}

// Default engine bounds.
const (
	DefaultMaxRetries      = 2
	DefaultMaxReviewCycles = 2
	DefaultStepTimeout     = 2 * time.Minute
	DefaultReviewTimeout   = 30 * time.Second
)

// Validate checks config for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be 0-65535, got %d", c.Server.Port)
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging format must be 'json' or 'console', got %q", c.Logging.Format)
	}

	if c.Engine.MaxRetries < 0 {
		return fmt.Errorf("engine max_retries must be >= 0, got %d", c.Engine.MaxRetries)
	}
	if c.Engine.MaxReviewCycles < 0 {
		return fmt.Errorf("engine max_review_cycles must be >= 0, got %d", c.Engine.MaxReviewCycles)
	}
	if c.Engine.StepTimeout.Duration() <= 0 {
		return fmt.Errorf("engine step_timeout must be > 0")
	}
	if c.Engine.ReviewTimeout.Duration() <= 0 {
		return fmt.Errorf("engine review_timeout must be > 0")
	}
	for name, st := range c.Engine.StepTypes {
		if st.MaxRetries != nil && *st.MaxRetries < 0 {
			return fmt.Errorf("step type %q: max_retries must be >= 0", name)
		}
	}

	switch c.State.Backend {
	case "memory", "file":
	default:
		return fmt.Errorf("state backend must be 'memory' or 'file', got %q", c.State.Backend)
	}
	if c.State.Backend == "file" && c.State.Dir == "" {
		return fmt.Errorf("state dir is required for the file backend")
	}

	if c.Review.CoverageThreshold < 0 || c.Review.CoverageThreshold > 100 {
		return fmt.Errorf("review coverage_threshold must be 0-100, got %v", c.Review.CoverageThreshold)
	}
	switch c.Review.BlockingSeverity {
	case "critical", "high", "medium", "low":
	default:
		return fmt.Errorf("review blocking_severity must be one of critical/high/medium/low, got %q", c.Review.BlockingSeverity)
	}

	for name, d := range c.Domains {
		if name == "" {
			return fmt.Errorf("domain name cannot be empty")
		}
		if len(d.Directories) == 0 {
			return fmt.Errorf("domain %q: at least one directory is required", name)
		}
	}

	for name, wf := range c.Workflows {
		if len(wf.Steps) == 0 {
			return fmt.Errorf("workflow %q: at least one step is required", name)
		}
		for i, step := range wf.Steps {
			if step.Type == "" {
				return fmt.Errorf("workflow %q step %d: type is required", name, i)
			}
			if step.Agent == "" {
				return fmt.Errorf("workflow %q step %d: agent is required", name, i)
			}
			if step.RequireReview && step.ReviewType == "" {
				return fmt.Errorf("workflow %q step %d: review_type is required when require_review is set", name, i)
			}
		}
	}

	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9290
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Engine.MaxRetries == 0 {
		cfg.Engine.MaxRetries = DefaultMaxRetries
	}
	if cfg.Engine.MaxReviewCycles == 0 {
		cfg.Engine.MaxReviewCycles = DefaultMaxReviewCycles
	}
	if cfg.Engine.StepTimeout == 0 {
		cfg.Engine.StepTimeout = Duration(DefaultStepTimeout)
	}
	if cfg.Engine.ReviewTimeout == 0 {
		cfg.Engine.ReviewTimeout = Duration(DefaultReviewTimeout)
	}

	if cfg.State.Backend == "" {
		cfg.State.Backend = "memory"
	}

	if cfg.Review.CoverageThreshold == 0 {
		cfg.Review.CoverageThreshold = 80
	}
	if cfg.Review.BlockingSeverity == "" {
		cfg.Review.BlockingSeverity = "high"
	}
}
