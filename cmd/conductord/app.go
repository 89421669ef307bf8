package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/conductor/internal/agent"
	"github.com/fyrsmithlabs/conductor/internal/config"
	"github.com/fyrsmithlabs/conductor/internal/engine"
	"github.com/fyrsmithlabs/conductor/internal/logging"
	"github.com/fyrsmithlabs/conductor/internal/review"
	"github.com/fyrsmithlabs/conductor/internal/rules"
	"github.com/fyrsmithlabs/conductor/internal/state"
)

// app holds the wired components shared by the serve, run and validate
// commands.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	store  engine.Store
	runner *engine.Runner
	orch   *engine.Orchestrator
	defs   map[string]*engine.WorkflowDefinition
}

// newApp loads configuration and wires the engine: domain rules, review
// gate, built-in agents, state store, orchestrator and runner.
func newApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	rs := rules.FromConfig(cfg.Domains, cfg.Review)
	gate := review.NewGate(rs, logger)

	registry := agent.NewRegistry()
	if err := registerAgents(registry, cfg, rs, gate, logger); err != nil {
		return nil, err
	}

	store, err := state.FromConfig(cfg.State)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize state store: %w", err)
	}

	orch := engine.New(cfg.Engine, registry, gate, store, logger)
	defs := engine.DefinitionsFromConfig(cfg.Workflows)
	runner := engine.NewRunner(orch, defs, store, logger)

	logger.Info("engine wired",
		zap.Strings("agents", registry.Names()),
		zap.Strings("workflows", runner.Workflows()),
		zap.String("state_backend", cfg.State.Backend))

	return &app{
		cfg:    cfg,
		logger: logger,
		store:  store,
		runner: runner,
		orch:   orch,
		defs:   defs,
	}, nil
}

// registerAgents wires the enabled built-in agents.
func registerAgents(registry *agent.Registry, cfg *config.Config, rs *rules.RuleSet, gate *review.Gate, logger *zap.Logger) error {
	for name, agentCfg := range cfg.Agents {
		if !agentCfg.Enabled {
			continue
		}
		var a agent.Agent
		switch name {
		case "developer":
			a = agent.NewDeveloper(agentCfg, rs, logger)
		case "reviewer":
			a = agent.NewReviewer(agentCfg, gate, logger)
		default:
			return fmt.Errorf("no built-in agent named %q", name)
		}
		if err := registry.Register(a); err != nil {
			return fmt.Errorf("failed to register agent %q: %w", name, err)
		}
	}
	return nil
}

func (a *app) close() {
	logging.Sync(a.logger)
}
