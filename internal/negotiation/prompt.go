package negotiation

import (
	"encoding/json"
	"fmt"
	"strings"
)

// initialSystemPrompt drives the first protocol draft on the requester side.
const initialSystemPrompt = `You are a protocol design expert. Your task is to design a communication protocol document based on given requirements and input/output descriptions.
The protocol document should be clear, complete, and follow standard specifications and industry best practices.

1. Please follow these requirements when designing protocol documents:
- Request and response formats should use JSON whenever possible, strictly following RFC8259 specification
  - Use JSON Schema (draft-2020-12) to describe data formats, clearly specify required and optional fields
  - Field names should follow camelCase and be concise and clear
  - Character encoding should consistently use UTF-8
- For special scenarios like efficient data transmission, other formats like binary can be used
- Please use request/response pattern to design the protocol

2. Request/Response Design Specifications:
- When protocol has multiple requests/responses, use messageType and messageId for distinction, response message's messageType and messageId should match request message's messageType and messageId
- Response messages must carry code field to distinguish between success and failure, using HTTP standard status codes

3. Error Handling Requirements:
- Use standard HTTP status codes
- Use 200 series status codes for successful responses
- Use 400 series status codes for client errors
- Use 500 series status codes for server errors
- Custom error codes can be used for special errors
- Provide clear error description messages

4. Please reply in markdown format, including the following sections, where optional sections can be omitted:
# Requirements
# Protocol Flow
## Interaction Flow
## State Transitions [Optional]
## Timeout Handling [Optional]
# Data Format
## Request Message Format
## Response Message Format
# Error Handling`

// evaluationSystemPromptProvider instructs the provider-side judge. The model
// may call the get_capability_info tool before deciding.
const evaluationSystemPromptProvider = `You are a senior communication protocol negotiation expert. Your goal is to negotiate a protocol that both parties can accept for data communication. As a service provider, you aim to meet the service requester's needs as much as possible.

# Input Information
Your decision inputs include:
- requirement: Requirements are included in the Protocol content
- counterparty_latest_protocol: The latest protocol proposal from the counterparty
- your_previous_protocol: Your previous protocol proposal (if any)
- counterparty_modification_summary: Summary of modifications to the counterparty's protocol proposal (if your_previous_protocol exists)
- capability_info_history: List of previous capability information obtained from get_capability_info tool

# Decision Process
1. Compare the counterparty's protocol with your capabilities using capability_info_history
2. Evaluate data formats: required fields, data types, constraints, and whether you can produce all output fields
3. Review protocol design: flow feasibility, error handling, edge cases
4. Make decision:
   - ACCEPTED: if you can fully implement the protocol
   - REJECTED: if there are major capability mismatches
   - NEGOTIATING: if minor adjustments are needed (provide detailed modification suggestions)

# Decision Tools
You can use the get_capability_info tool to obtain your capability information.

# Output
Output format is NegotiationResult:
{
    "status": "negotiating/accepted/rejected",
    "candidate_protocol": "complete protocol content when status is negotiating, empty string otherwise",
    "modification_summary": "summary of your modifications or reasons for rejection"
}

Note: When status is "negotiating", candidate_protocol should contain the complete protocol content, not just the modifications.`

// evaluationSystemPromptRequester instructs the requester-side judge.
const evaluationSystemPromptRequester = `You are a senior communication protocol negotiation expert. Your goal is to negotiate a protocol that both parties can accept for data communication. As a service requester, your goal is to have the service provider meet your requirements as much as possible.

# Input Information
Your decision inputs include:
- requirement: Your original requirements for the protocol
- input_description: Your expected input format description
- output_description: Your expected output format description
- counterparty_latest_protocol: The latest protocol proposal from the counterparty
- your_previous_protocol: Your previous protocol proposal (if any)
- counterparty_modification_summary: Summary of modifications to the counterparty's protocol proposal (if your_previous_protocol exists)

# Decision Process
1. Compare the counterparty's protocol with your original requirements
2. Evaluate data formats against input_description and output_description
3. Review protocol design: flow, error handling, edge cases
4. Make decision:
   - ACCEPTED: if the protocol fully meets your requirements
   - REJECTED: if there are major incompatibilities
   - NEGOTIATING: if minor modifications are needed (provide detailed modification suggestions)

# Output
Output format is NegotiationResult:
{
    "status": "negotiating/accepted/rejected",
    "candidate_protocol": "complete protocol content when status is negotiating, empty string otherwise",
    "modification_summary": "summary of your modifications or reasons for rejection"
}

Note: When status is "negotiating", candidate_protocol should contain the complete protocol content, not just the modifications.`

func buildInitialUserPrompt(requirement, inputDesc, outputDesc string) string {
	var b strings.Builder
	b.WriteString("Please design a protocol with:\n\n")
	writeSection(&b, "requirement", requirement)
	writeSection(&b, "input_description", inputDesc)
	writeSection(&b, "output_description", outputDesc)
	b.WriteString("The protocol should be practical and implementable.")
	return b.String()
}

func buildRequesterEvaluationPrompt(requirement, inputDesc, outputDesc, peerCandidate, prevSelf, peerSummary string) string {
	var b strings.Builder
	b.WriteString("Please evaluate this protocol proposal:\n\n")
	writeSection(&b, "requirement", requirement)
	writeSection(&b, "input_description", inputDesc)
	writeSection(&b, "output_description", outputDesc)
	writeSection(&b, "counterparty_latest_protocol", peerCandidate)
	writeSection(&b, "your_previous_protocol", prevSelf)
	writeSection(&b, "counterparty_modification_summary", orNone(peerSummary))
	return strings.TrimRight(b.String(), "\n")
}

func buildProviderEvaluationPrompt(peerCandidate, prevSelf, peerSummary string, capabilityHistory []string) string {
	history, _ := json.MarshalIndent(capabilityHistory, "", "  ")
	var b strings.Builder
	b.WriteString("Please evaluate this protocol proposal:\n\n")
	writeSection(&b, "counterparty_latest_protocol", peerCandidate)
	writeSection(&b, "your_previous_protocol", prevSelf)
	writeSection(&b, "counterparty_modification_summary", orNone(peerSummary))
	writeSection(&b, "capability_info_history", string(history))
	return strings.TrimRight(b.String(), "\n")
}

func writeSection(b *strings.Builder, name, content string) {
	fmt.Fprintf(b, "--[ %s ]--\n%s\n--[END]--\n\n", name, content)
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "None"
	}
	return s
}
