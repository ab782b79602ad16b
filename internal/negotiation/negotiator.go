package negotiation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/agentmesh/agentmesh/internal/llm"
)

// CapabilityInfoFunc answers a provider-side capability query. Provider role
// only; the engine treats the answer as opaque text for the LLM.
type CapabilityInfoFunc func(ctx context.Context, requirement, inputDesc, outputDesc string) (string, error)

const capabilityToolName = "get_capability_info"

// maxToolRounds bounds the provider's tool-use loop within one evaluation.
const maxToolRounds = 8

var capabilityToolParameters = json.RawMessage(`{
  "type": "object",
  "properties": {
    "requirement": {
      "type": "string",
      "description": "Protocol requirements description"
    },
    "input_description": {
      "type": "string",
      "description": "Protocol document description of request or input data, including fields, field formats, field descriptions, and whether they are required"
    },
    "output_description": {
      "type": "string",
      "description": "Protocol document description of response or output data, including fields, field formats, field descriptions, and whether they are required"
    }
  },
  "required": ["requirement", "input_description", "output_description"]
}`)

// Negotiator asks the LLM to produce or judge protocol proposals. It is
// stateless over negotiation history (the session owns that); it keeps only
// the requester inputs, the growing capability-info history, and the count of
// expensive-model calls made so far.
type Negotiator struct {
	strategy   *ModelStrategy
	role       Role
	capability CapabilityInfoFunc
	logger     *zap.Logger

	requirement       string
	inputDescription  string
	outputDescription string
	capabilityHistory []string
	expensiveUsed     int
}

// NewNegotiator builds a per-session negotiator for the given role.
func NewNegotiator(strategy *ModelStrategy, role Role, capability CapabilityInfoFunc, logger *zap.Logger) *Negotiator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Negotiator{
		strategy:   strategy,
		role:       role,
		capability: capability,
		logger:     logger,
	}
}

// Role returns the negotiator's side of the table.
func (n *Negotiator) Role() Role {
	return n.role
}

// CapabilityHistory returns capability responses gathered so far.
func (n *Negotiator) CapabilityHistory() []string {
	return n.capabilityHistory
}

// GenerateInitialProtocol prompts the LLM for the first protocol draft.
// Requester only. Round 1 by construction.
func (n *Negotiator) GenerateInitialProtocol(ctx context.Context, requirement, inputDesc, outputDesc string) (string, error) {
	n.requirement = requirement
	n.inputDescription = inputDesc
	n.outputDescription = outputDesc

	resp, err := n.chat(ctx, TaskDesigner, []llm.ChatMessage{
		{Role: llm.RoleSystem, Content: initialSystemPrompt},
		{Role: llm.RoleUser, Content: buildInitialUserPrompt(requirement, inputDesc, outputDesc)},
	}, nil, false)
	if err != nil {
		return "", fmt.Errorf("%w: generate initial protocol: %v", ErrLLM, err)
	}

	protocol := strings.TrimSpace(resp.Message.Content)
	if protocol == "" {
		return "", fmt.Errorf("%w: empty initial protocol", ErrLLM)
	}

	n.logger.Info("generated initial protocol", zap.Int("bytes", len(protocol)))
	return protocol, nil
}

// Proposal is the peer input to one evaluation round.
type Proposal struct {
	PeerRound        int
	PeerCandidate    string
	PeerSummary      string
	PrevSelfProposal string
}

// EvaluateProposal judges the peer's latest candidate and returns the result
// together with the next outbound sequence number (peer round + 1).
func (n *Negotiator) EvaluateProposal(ctx context.Context, p Proposal) (Result, int, error) {
	selfRound := p.PeerRound + 1

	var (
		content string
		err     error
	)
	if n.role == RoleProvider {
		content, err = n.evaluateAsProvider(ctx, p)
	} else {
		content, err = n.evaluateAsRequester(ctx, p)
	}
	if err != nil {
		return Result{}, selfRound, err
	}

	result, err := ParseResult(content)
	if err != nil {
		return Result{}, selfRound, err
	}

	n.logger.Info("evaluated proposal",
		zap.String("role", string(n.role)),
		zap.String("status", string(result.Status)),
		zap.Int("self_round", selfRound))
	return result, selfRound, nil
}

func (n *Negotiator) evaluateAsRequester(ctx context.Context, p Proposal) (string, error) {
	userPrompt := buildRequesterEvaluationPrompt(
		n.requirement, n.inputDescription, n.outputDescription,
		p.PeerCandidate, p.PrevSelfProposal, p.PeerSummary)

	resp, err := n.chat(ctx, TaskEvaluator, []llm.ChatMessage{
		{Role: llm.RoleSystem, Content: evaluationSystemPromptRequester},
		{Role: llm.RoleUser, Content: userPrompt},
	}, nil, true)
	if err != nil {
		return "", fmt.Errorf("%w: requester evaluation: %v", ErrLLM, err)
	}
	return resp.Message.Content, nil
}

// evaluateAsProvider runs the tool-use loop: the model may request capability
// info any number of times (bounded) before settling on a verdict.
func (n *Negotiator) evaluateAsProvider(ctx context.Context, p Proposal) (string, error) {
	tools := []llm.ToolSpec{{
		Name:        capabilityToolName,
		Description: "Get capability information to check if requirements can be met",
		Parameters:  capabilityToolParameters,
	}}

	messages := []llm.ChatMessage{
		{Role: llm.RoleSystem, Content: evaluationSystemPromptProvider},
		{Role: llm.RoleUser, Content: buildProviderEvaluationPrompt(p.PeerCandidate, p.PrevSelfProposal, p.PeerSummary, n.capabilityHistory)},
	}

	for round := 0; round < maxToolRounds; round++ {
		resp, err := n.chat(ctx, TaskEvaluator, messages, tools, true)
		if err != nil {
			return "", fmt.Errorf("%w: provider evaluation: %v", ErrLLM, err)
		}

		if len(resp.Message.ToolCalls) == 0 {
			return resp.Message.Content, nil
		}

		messages = append(messages, resp.Message)
		for _, call := range resp.Message.ToolCalls {
			if call.Function.Name != capabilityToolName {
				messages = append(messages, llm.ChatMessage{
					Role:       llm.RoleTool,
					Content:    fmt.Sprintf("unknown tool %q", call.Function.Name),
					ToolCallID: call.ID,
				})
				continue
			}
			info := n.resolveCapabilityCall(ctx, call.Function.Arguments)
			n.capabilityHistory = append(n.capabilityHistory, info)
			messages = append(messages, llm.ChatMessage{
				Role:       llm.RoleTool,
				Content:    info,
				ToolCallID: call.ID,
			})
		}
	}

	return "", fmt.Errorf("%w: tool loop exceeded %d rounds", ErrLLM, maxToolRounds)
}

// resolveCapabilityCall invokes the host callback. Callback failure is folded
// into the answer text so the model can still decide.
func (n *Negotiator) resolveCapabilityCall(ctx context.Context, rawArgs json.RawMessage) string {
	if n.capability == nil {
		return ""
	}

	var args struct {
		Requirement       string `json:"requirement"`
		InputDescription  string `json:"input_description"`
		OutputDescription string `json:"output_description"`
	}
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		n.logger.Warn("malformed capability tool arguments", zap.Error(err))
		return fmt.Sprintf("Error getting capability info: %v", err)
	}

	info, err := n.capability(ctx, args.Requirement, args.InputDescription, args.OutputDescription)
	if err != nil {
		n.logger.Warn("capability callback failed", zap.Error(err))
		return fmt.Sprintf("Error getting capability info: %v", err)
	}
	return info
}

// chat routes one completion through the strategy, honoring the session's
// expensive-model budget.
func (n *Negotiator) chat(ctx context.Context, task string, messages []llm.ChatMessage, tools []llm.ToolSpec, jsonResponse bool) (llm.ChatResponse, error) {
	provider, route, chosen, isExpensive, err := n.strategy.PickWithBudget(task, "", n.expensiveUsed)
	if err != nil {
		return llm.ChatResponse{}, err
	}
	if provider == nil {
		return llm.ChatResponse{}, fmt.Errorf("no model available for task %s", task)
	}
	if isExpensive {
		n.expensiveUsed++
	}
	n.logger.Debug("model selected",
		zap.String("task", task), zap.String("model", chosen), zap.Bool("expensive", isExpensive))

	return provider.Chat(ctx, llm.ChatRequest{
		Model:        route.Model,
		Messages:     messages,
		MaxTokens:    route.MaxTokens,
		Temperature:  route.Temperature,
		Tools:        tools,
		JSONResponse: jsonResponse,
	})
}
