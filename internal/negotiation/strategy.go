package negotiation

import (
	"strings"

	"github.com/agentmesh/agentmesh/internal/config"
	"github.com/agentmesh/agentmesh/internal/llm"
)

// Task names used for model routing.
const (
	TaskDesigner  = "designer"
	TaskEvaluator = "evaluator"
	TaskCodeGen   = "codegen"
)

// ModelStrategy chooses models for the different negotiation tasks.
type ModelStrategy struct {
	registry *llm.Registry
	cfg      config.StrategyConfig
}

// NewModelStrategy builds a strategy selector.
func NewModelStrategy(reg *llm.Registry, cfg config.StrategyConfig) *ModelStrategy {
	return &ModelStrategy{registry: reg, cfg: cfg}
}

// ResolveModel picks a model id based on task/override; falls back to default
// registry resolution.
func (s *ModelStrategy) ResolveModel(task string, override string) (llm.Provider, llm.ModelRoute, error) {
	if s == nil || s.registry == nil {
		return nil, llm.ModelRoute{}, nil
	}
	task = strings.ToLower(strings.TrimSpace(task))
	modelID := firstNonEmpty(
		override,
		s.cfg.Overrides[task],
		taskModel(task, s.cfg),
		s.cfg.DefaultModel,
	)
	if modelID != "" {
		if p, route, err := s.registry.Resolve(modelID); err == nil {
			return p, route, nil
		}
	}
	for _, fb := range s.cfg.Fallbacks {
		if p, route, err := s.registry.Resolve(fb); err == nil {
			return p, route, nil
		}
	}
	return s.registry.Resolve("")
}

// PickWithBudget chooses a model honoring max_expensive; expensiveUsed is the
// count so far in the session.
func (s *ModelStrategy) PickWithBudget(task, override string, expensiveUsed int) (llm.Provider, llm.ModelRoute, string, bool, error) {
	prov, route, err := s.ResolveModel(task, override)
	if err != nil {
		return nil, llm.ModelRoute{}, "", false, err
	}
	if prov == nil {
		return nil, llm.ModelRoute{}, "", false, nil
	}
	chosen := route.Name
	isExp := s.registry.IsExpensive(chosen)
	if s.cfg.MaxExpensive > 0 && isExp && expensiveUsed >= s.cfg.MaxExpensive {
		for _, fb := range s.cfg.Fallbacks {
			p, r, err := s.registry.Resolve(fb)
			if err != nil {
				continue
			}
			chosen = r.Name
			prov = p
			route = r
			isExp = s.registry.IsExpensive(chosen)
			break
		}
	}
	if s.cfg.MaxExpensive > 0 && isExp && expensiveUsed >= s.cfg.MaxExpensive && s.cfg.DefaultModel != "" {
		if p, r, err := s.registry.Resolve(s.cfg.DefaultModel); err == nil {
			chosen = r.Name
			prov = p
			route = r
			isExp = s.registry.IsExpensive(chosen)
		}
	}
	return prov, route, chosen, isExp, nil
}

func taskModel(task string, cfg config.StrategyConfig) string {
	switch task {
	case TaskDesigner:
		return cfg.DesignerModel
	case TaskEvaluator:
		return cfg.EvaluatorModel
	case TaskCodeGen:
		return cfg.CodeGenModel
	default:
		return ""
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
