package cli

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/agentmesh/agentmesh/internal/codegen"
	"github.com/agentmesh/agentmesh/internal/config"
	"github.com/agentmesh/agentmesh/internal/llm/configbuilder"
	"github.com/agentmesh/agentmesh/internal/logging"
	"github.com/agentmesh/agentmesh/internal/negotiation"
	"github.com/agentmesh/agentmesh/internal/observability"
	"github.com/agentmesh/agentmesh/internal/session"
)

// engine bundles the shared wiring both demo entrypoints need.
type engine struct {
	cfg       *config.Config
	logger    *zap.Logger
	strategy  *negotiation.ModelStrategy
	generator codegen.Generator
	metrics   *observability.Metrics
}

func buildEngine(opts *Options) (*engine, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(logging.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
	if err != nil {
		return nil, err
	}

	registry, err := configbuilder.BuildRegistryFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("build registry: %w", err)
	}

	strategy := negotiation.NewModelStrategy(registry, cfg.Strategy)

	generator, err := codegen.NewLLMGenerator(strategy, cfg.CodeGen.OutputPath, cfg.CodeGen.Language, logger)
	if err != nil {
		return nil, err
	}

	return &engine{
		cfg:       cfg,
		logger:    logger,
		strategy:  strategy,
		generator: generator,
		metrics:   observability.NewMetrics(),
	}, nil
}

func (e *engine) sessionConfig() session.Config {
	n := e.cfg.Negotiation
	return session.Config{
		MaxRounds:      n.MaxRounds,
		RoundTimeout:   n.RoundTimeout,
		LLMTimeout:     n.LLMTimeout,
		LLMRetries:     n.LLMRetries,
		CodeGenTimeout: n.CodeGenTimeout,
		InboxCapacity:  n.InboxCapacity,
	}
}
