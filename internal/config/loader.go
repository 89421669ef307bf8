// Package config provides configuration loading for conductord.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const maxConfigFileSize = 1024 * 1024 // 1MB

// Load loads configuration from a YAML file, then overrides with environment
// variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (CONDUCTOR_SERVER_PORT, CONDUCTOR_ENGINE_MAX_RETRIES, ...)
//  2. YAML config file
//  3. Hardcoded defaults
//
// Workflow definitions, domain rules and agent wiring all live in the same
// document, mirroring the original config.yaml layout:
//
//	engine:
//	  max_retries: 2
//	workflows:
//	  create_feature:
//	    steps:
//	      - type: create_component
//	        agent: developer
//	        require_review: true
//	        review_type: domain_validation
//	        outputs: [component, files]
//
// If configPath is empty, only environment variables and defaults apply.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if info.Size() > maxConfigFileSize {
			return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Override with environment variables. The CONDUCTOR_ prefix is stripped
	// and the first underscore separates section from field:
	//
	//	CONDUCTOR_SERVER_PORT          -> server.port
	//	CONDUCTOR_ENGINE_MAX_RETRIES   -> engine.max_retries
	//	CONDUCTOR_LOGGING_LEVEL        -> logging.level
	if err := k.Load(env.Provider("CONDUCTOR_", ".", func(s string) string {
		lower := strings.ToLower(strings.TrimPrefix(s, "CONDUCTOR_"))
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadBytes parses configuration from raw YAML. Used by tests and by callers
// that receive definitions from an API rather than a file.
func LoadBytes(content []byte) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}
