package negotiation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentmesh/agentmesh/internal/config"
	"github.com/agentmesh/agentmesh/internal/llm"
	llmmock "github.com/agentmesh/agentmesh/internal/llm/mock"
)

func newTestStrategy(t *testing.T, p llm.Provider) *ModelStrategy {
	t.Helper()
	reg := llm.NewRegistry()
	reg.RegisterProvider("mock", p)
	reg.RegisterModel("default", llm.ModelRoute{Provider: "mock", Model: "m"}, true)
	return NewModelStrategy(reg, config.StrategyConfig{})
}

func assistantJSON(status, candidate, summary string) llm.ChatResponse {
	payload, _ := json.Marshal(map[string]string{
		"status":               status,
		"candidate_protocol":   candidate,
		"modification_summary": summary,
	})
	return llm.ChatResponse{Message: llm.ChatMessage{Role: llm.RoleAssistant, Content: string(payload)}}
}

func TestGenerateInitialProtocol(t *testing.T) {
	mockProvider := &llmmock.Provider{
		ChatFn: func(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
			require.Contains(t, req.Messages[0].Content, "protocol design expert")
			require.Contains(t, req.Messages[1].Content, "--[ requirement ]--")
			require.Contains(t, req.Messages[1].Content, "echo service")
			return llm.ChatResponse{Message: llm.ChatMessage{Role: llm.RoleAssistant, Content: "# Requirements\necho"}}, nil
		},
	}

	n := NewNegotiator(newTestStrategy(t, mockProvider), RoleRequester, nil, nil)
	protocol, err := n.GenerateInitialProtocol(context.Background(), "echo service", "{text:string}", "{text:string}")
	require.NoError(t, err)
	require.Equal(t, "# Requirements\necho", protocol)
}

func TestGenerateInitialProtocolEmptyResponse(t *testing.T) {
	mockProvider := &llmmock.Provider{
		ChatFn: func(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
			return llm.ChatResponse{Message: llm.ChatMessage{Role: llm.RoleAssistant, Content: "   "}}, nil
		},
	}

	n := NewNegotiator(newTestStrategy(t, mockProvider), RoleRequester, nil, nil)
	_, err := n.GenerateInitialProtocol(context.Background(), "echo", "in", "out")
	require.ErrorIs(t, err, ErrLLM)
}

func TestEvaluateProposalAsRequester(t *testing.T) {
	mockProvider := &llmmock.Provider{
		ChatFn: func(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
			require.True(t, req.JSONResponse)
			require.Contains(t, req.Messages[0].Content, "service requester")
			require.Contains(t, req.Messages[1].Content, "--[ counterparty_latest_protocol ]--")
			require.Contains(t, req.Messages[1].Content, "# P1")
			return assistantJSON("accepted", "", "lgtm"), nil
		},
	}

	n := NewNegotiator(newTestStrategy(t, mockProvider), RoleRequester, nil, nil)
	result, selfRound, err := n.EvaluateProposal(context.Background(), Proposal{
		PeerRound:     2,
		PeerCandidate: "# P1",
		PeerSummary:   "added userId",
	})
	require.NoError(t, err)
	require.Equal(t, StatusAccepted, result.Status)
	require.Equal(t, 3, selfRound, "self round is peer round + 1")
}

func TestEvaluateProposalAsProviderResolvesCapabilityTool(t *testing.T) {
	callCount := 0
	mockProvider := &llmmock.Provider{
		ChatFn: func(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
			callCount++
			require.NotEmpty(t, req.Tools, "provider evaluation must offer the capability tool")
			require.Equal(t, capabilityToolName, req.Tools[0].Name)

			if callCount == 1 {
				return llm.ChatResponse{Message: llm.ChatMessage{
					Role: llm.RoleAssistant,
					ToolCalls: []llm.ToolCall{{
						ID:   "call-1",
						Type: "function",
						Function: llm.ToolFunctionCall{
							Name:      capabilityToolName,
							Arguments: json.RawMessage(`{"requirement":"r","input_description":"i","output_description":"o"}`),
						},
					}},
				}}, nil
			}

			// the tool answer must have been threaded back
			last := req.Messages[len(req.Messages)-1]
			require.Equal(t, llm.RoleTool, last.Role)
			require.Contains(t, last.Content, "can serve education history")
			require.Equal(t, "call-1", last.ToolCallID)
			return assistantJSON("accepted", "", "capable"), nil
		},
	}

	capability := func(ctx context.Context, requirement, inputDesc, outputDesc string) (string, error) {
		require.Equal(t, "r", requirement)
		require.Equal(t, "i", inputDesc)
		require.Equal(t, "o", outputDesc)
		return "can serve education history", nil
	}

	n := NewNegotiator(newTestStrategy(t, mockProvider), RoleProvider, capability, nil)
	result, selfRound, err := n.EvaluateProposal(context.Background(), Proposal{
		PeerRound:     1,
		PeerCandidate: "# P0",
	})
	require.NoError(t, err)
	require.Equal(t, StatusAccepted, result.Status)
	require.Equal(t, 2, selfRound)
	require.Equal(t, []string{"can serve education history"}, n.CapabilityHistory())
	require.Equal(t, 2, callCount)
}

func TestEvaluateProposalCapabilityCallbackFailureIsSoft(t *testing.T) {
	callCount := 0
	mockProvider := &llmmock.Provider{
		ChatFn: func(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
			callCount++
			if callCount == 1 {
				return llm.ChatResponse{Message: llm.ChatMessage{
					Role: llm.RoleAssistant,
					ToolCalls: []llm.ToolCall{{
						ID:       "call-1",
						Function: llm.ToolFunctionCall{Name: capabilityToolName, Arguments: json.RawMessage(`{}`)},
					}},
				}}, nil
			}
			last := req.Messages[len(req.Messages)-1]
			require.Contains(t, last.Content, "Error getting capability info")
			return assistantJSON("rejected", "", "cannot verify capabilities"), nil
		},
	}

	capability := func(ctx context.Context, requirement, inputDesc, outputDesc string) (string, error) {
		return "", fmt.Errorf("lookup backend down")
	}

	n := NewNegotiator(newTestStrategy(t, mockProvider), RoleProvider, capability, nil)
	result, _, err := n.EvaluateProposal(context.Background(), Proposal{PeerRound: 1, PeerCandidate: "# P0"})
	require.NoError(t, err)
	require.Equal(t, StatusRejected, result.Status)
}

func TestEvaluateProposalUnparseableOutput(t *testing.T) {
	mockProvider := &llmmock.Provider{
		ChatFn: func(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
			return llm.ChatResponse{Message: llm.ChatMessage{Role: llm.RoleAssistant, Content: "sure, sounds good"}}, nil
		},
	}

	n := NewNegotiator(newTestStrategy(t, mockProvider), RoleRequester, nil, nil)
	_, _, err := n.EvaluateProposal(context.Background(), Proposal{PeerRound: 1, PeerCandidate: "# P0"})
	require.ErrorIs(t, err, ErrLLM)
}

func TestEvaluateHonorsExpensiveModelBudget(t *testing.T) {
	var models []string
	mockProvider := &llmmock.Provider{
		ChatFn: func(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
			models = append(models, req.Model)
			return assistantJSON("negotiating", "# P", "tweak"), nil
		},
	}

	reg := llm.NewRegistry()
	reg.RegisterProvider("mock", mockProvider)
	reg.RegisterModel("cheap", llm.ModelRoute{Provider: "mock", Model: "cheap-model"}, true)
	reg.RegisterModel("fancy", llm.ModelRoute{Provider: "mock", Model: "fancy-model"}, false)
	reg.MarkExpensive("fancy", true)
	strategy := NewModelStrategy(reg, config.StrategyConfig{
		EvaluatorModel: "fancy",
		Fallbacks:      []string{"cheap"},
		MaxExpensive:   1,
	})

	n := NewNegotiator(strategy, RoleRequester, nil, nil)
	_, _, err := n.EvaluateProposal(context.Background(), Proposal{PeerRound: 1, PeerCandidate: "# P0"})
	require.NoError(t, err)
	_, _, err = n.EvaluateProposal(context.Background(), Proposal{PeerRound: 3, PeerCandidate: "# P1"})
	require.NoError(t, err)

	require.Equal(t, []string{"fancy-model", "cheap-model"}, models,
		"second evaluation drops to the fallback once the expensive budget is spent")
}

func TestProviderPromptCarriesCapabilityHistory(t *testing.T) {
	var sawHistory bool
	mockProvider := &llmmock.Provider{
		ChatFn: func(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
			if strings.Contains(req.Messages[1].Content, "previous capability answer") {
				sawHistory = true
			}
			return assistantJSON("accepted", "", "ok"), nil
		},
	}

	n := NewNegotiator(newTestStrategy(t, mockProvider), RoleProvider, nil, nil)
	n.capabilityHistory = []string{"previous capability answer"}

	_, _, err := n.EvaluateProposal(context.Background(), Proposal{PeerRound: 1, PeerCandidate: "# P0"})
	require.NoError(t, err)
	require.True(t, sawHistory, "capability history should appear in the provider prompt")
}
