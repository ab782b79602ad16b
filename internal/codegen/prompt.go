package codegen

import (
	"fmt"
	"strings"

	"github.com/agentmesh/agentmesh/internal/negotiation"
)

// requesterSystemPrompt drives handler generation for the requesting side.
const requesterSystemPrompt = `You are an experienced protocol architect and system developer. Given a negotiated communication protocol document, implement the requester-side handler.

Requirements:
- Implement a single send_request entry point that encodes the request message described in the protocol document, sends it through an injected send callback, and decodes the response.
- The return value must be a mapping that always carries a code field (HTTP-style status codes from the protocol's error table), plus the response data fields on success or an error description on failure.
- Protocol-internal fields such as messageType and messageId must not leak to the caller.
- Validate inputs against the protocol's request schema before sending.
- Handle every error case listed in the protocol document.

Output exactly one fenced code block containing the complete source file. Do not output anything else.`

// providerSystemPrompt drives handler generation for the providing side.
const providerSystemPrompt = `You are an experienced protocol architect and system developer. Given a negotiated communication protocol document, implement the provider-side handler.

Requirements:
- Implement a handle_message entry point that decodes the request message described in the protocol document, dispatches to a business callback, and encodes the response.
- Response messages must echo the request's messageType and messageId and carry a code field using the protocol's error table.
- Validate inbound messages against the protocol's request schema; respond with the protocol's client-error code on validation failure.
- Handle every error case listed in the protocol document.

Output exactly one fenced code block containing the complete source file. Do not output anything else.`

func systemPrompt(role negotiation.Role) string {
	if role == negotiation.RoleProvider {
		return providerSystemPrompt
	}
	return requesterSystemPrompt
}

func buildUserPrompt(protocolDoc, language string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Target language: %s\n\n", language)
	b.WriteString("--[ protocol_document ]--\n")
	b.WriteString(protocolDoc)
	if !strings.HasSuffix(protocolDoc, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("--[END]--\n")
	return b.String()
}
