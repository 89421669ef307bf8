package state

import (
	"fmt"

	"github.com/fyrsmithlabs/conductor/internal/config"
	"github.com/fyrsmithlabs/conductor/internal/engine"
)

// FromConfig builds the configured store backend.
func FromConfig(cfg config.StateConfig) (engine.Store, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemoryStore(), nil
	case "file":
		return NewFileStore(cfg.Dir)
	default:
		return nil, fmt.Errorf("unknown state backend: %q", cfg.Backend)
	}
}
