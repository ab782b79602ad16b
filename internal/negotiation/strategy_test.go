package negotiation

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentmesh/agentmesh/internal/config"
	"github.com/agentmesh/agentmesh/internal/llm"
	llmmock "github.com/agentmesh/agentmesh/internal/llm/mock"
)

func newStrategyRegistry(t *testing.T) *llm.Registry {
	t.Helper()
	reg := llm.NewRegistry()
	reg.RegisterProvider("mock", &llmmock.Provider{})
	reg.RegisterModel("cheap", llm.ModelRoute{Provider: "mock", Model: "cheap-model"}, true)
	reg.RegisterModel("fancy", llm.ModelRoute{Provider: "mock", Model: "fancy-model"}, false)
	reg.MarkExpensive("fancy", true)
	return reg
}

func TestResolveModelPerTask(t *testing.T) {
	s := NewModelStrategy(newStrategyRegistry(t), config.StrategyConfig{
		DesignerModel:  "fancy",
		EvaluatorModel: "cheap",
	})

	_, route, err := s.ResolveModel(TaskDesigner, "")
	require.NoError(t, err)
	require.Equal(t, "fancy-model", route.Model)

	_, route, err = s.ResolveModel(TaskEvaluator, "")
	require.NoError(t, err)
	require.Equal(t, "cheap-model", route.Model)

	// unknown task falls through to the registry default
	_, route, err = s.ResolveModel("judge", "")
	require.NoError(t, err)
	require.Equal(t, "cheap-model", route.Model)
}

func TestResolveModelOverrideWins(t *testing.T) {
	s := NewModelStrategy(newStrategyRegistry(t), config.StrategyConfig{
		EvaluatorModel: "cheap",
		Overrides:      map[string]string{TaskEvaluator: "fancy"},
	})

	_, route, err := s.ResolveModel(TaskEvaluator, "")
	require.NoError(t, err)
	require.Equal(t, "fancy-model", route.Model, "override beats task model")

	_, route, err = s.ResolveModel(TaskEvaluator, "cheap")
	require.NoError(t, err)
	require.Equal(t, "cheap-model", route.Model, "explicit override beats config")
}

func TestResolveModelFallbackOnUnknown(t *testing.T) {
	s := NewModelStrategy(newStrategyRegistry(t), config.StrategyConfig{
		DesignerModel: "missing",
		Fallbacks:     []string{"fancy"},
	})

	_, route, err := s.ResolveModel(TaskDesigner, "")
	require.NoError(t, err)
	require.Equal(t, "fancy-model", route.Model)
}

func TestPickWithBudgetDropsToFallback(t *testing.T) {
	s := NewModelStrategy(newStrategyRegistry(t), config.StrategyConfig{
		CodeGenModel: "fancy",
		Fallbacks:    []string{"cheap"},
		MaxExpensive: 1,
	})

	_, _, chosen, isExp, err := s.PickWithBudget(TaskCodeGen, "", 0)
	require.NoError(t, err)
	require.Equal(t, "fancy", chosen)
	require.True(t, isExp)

	_, _, chosen, isExp, err = s.PickWithBudget(TaskCodeGen, "", 1)
	require.NoError(t, err)
	require.Equal(t, "cheap", chosen)
	require.False(t, isExp)
}
