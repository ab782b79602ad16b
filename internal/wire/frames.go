// Package wire implements the meta-protocol frame encoding shared by both
// negotiation parties. Field names are part of the wire contract and must be
// preserved case-sensitively.
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/oklog/ulid/v2"

	"github.com/agentmesh/agentmesh/internal/negotiation"
)

// ProtocolType occupies the top 2 bits of the 1-byte frame header.
type ProtocolType byte

const (
	ProtocolMeta         ProtocolType = 0 // negotiation frames
	ProtocolApplication  ProtocolType = 1 // negotiated application traffic
	ProtocolNatural      ProtocolType = 2 // natural language traffic
	ProtocolVerification ProtocolType = 3 // verification traffic
)

// Kind tags the JSON body of a meta-protocol frame.
type Kind string

const (
	KindProtocolNegotiation        Kind = "protocolNegotiation"
	KindCodeGeneration             Kind = "codeGeneration"
	KindTestCasesNegotiation       Kind = "testCasesNegotiation"
	KindFixErrorNegotiation        Kind = "fixErrorNegotiation"
	KindNaturalLanguageNegotiation Kind = "naturalLanguageNegotiation"
)

// Frame is any decodable meta-protocol message body.
type Frame interface {
	Kind() Kind
}

// ProtocolNegotiation carries one negotiation round.
type ProtocolNegotiation struct {
	Action              Kind               `json:"action"`
	SequenceID          uint32             `json:"sequenceId"`
	CandidateProtocols  string             `json:"candidateProtocols"`
	Status              negotiation.Status `json:"status"`
	ModificationSummary string             `json:"modificationSummary,omitempty"`
}

func (ProtocolNegotiation) Kind() Kind { return KindProtocolNegotiation }

// NewProtocolNegotiation builds a negotiation frame.
func NewProtocolNegotiation(seq uint32, candidate string, status negotiation.Status, summary string) ProtocolNegotiation {
	return ProtocolNegotiation{
		Action:              KindProtocolNegotiation,
		SequenceID:          seq,
		CandidateProtocols:  candidate,
		Status:              status,
		ModificationSummary: summary,
	}
}

// CodeGeneration reports local code generation outcome after agreement.
type CodeGeneration struct {
	Action  Kind `json:"action"`
	Success bool `json:"success"`
}

func (CodeGeneration) Kind() Kind { return KindCodeGeneration }

// NewCodeGeneration builds a code-generation ack frame.
func NewCodeGeneration(success bool) CodeGeneration {
	return CodeGeneration{Action: KindCodeGeneration, Success: success}
}

// TestCasesNegotiation is reserved for a future negotiation phase.
type TestCasesNegotiation struct {
	Action              Kind               `json:"action"`
	TestCases           string             `json:"testCases"`
	Status              negotiation.Status `json:"status"`
	ModificationSummary string             `json:"modificationSummary,omitempty"`
}

func (TestCasesNegotiation) Kind() Kind { return KindTestCasesNegotiation }

// NewTestCasesNegotiation builds a reserved test-cases frame.
func NewTestCasesNegotiation(testCases string, status negotiation.Status, summary string) TestCasesNegotiation {
	return TestCasesNegotiation{
		Action:              KindTestCasesNegotiation,
		TestCases:           testCases,
		Status:              status,
		ModificationSummary: summary,
	}
}

// FixErrorNegotiation is reserved for a future negotiation phase.
type FixErrorNegotiation struct {
	Action           Kind               `json:"action"`
	ErrorDescription string             `json:"errorDescription"`
	Status           negotiation.Status `json:"status"`
}

func (FixErrorNegotiation) Kind() Kind { return KindFixErrorNegotiation }

// NewFixErrorNegotiation builds a reserved fix-error frame.
func NewFixErrorNegotiation(description string, status negotiation.Status) FixErrorNegotiation {
	return FixErrorNegotiation{
		Action:           KindFixErrorNegotiation,
		ErrorDescription: description,
		Status:           status,
	}
}

// NaturalLanguageNegotiation is reserved for a future negotiation phase.
type NaturalLanguageNegotiation struct {
	Action    Kind   `json:"action"`
	Type      string `json:"type"` // REQUEST or RESPONSE
	MessageID string `json:"messageId"`
	Message   string `json:"message"`
}

func (NaturalLanguageNegotiation) Kind() Kind { return KindNaturalLanguageNegotiation }

// NewNaturalLanguageNegotiation builds a reserved natural-language frame with
// a fresh message id.
func NewNaturalLanguageNegotiation(message string, isRequest bool) NaturalLanguageNegotiation {
	typ := "RESPONSE"
	if isRequest {
		typ = "REQUEST"
	}
	return NaturalLanguageNegotiation{
		Action:    KindNaturalLanguageNegotiation,
		Type:      typ,
		MessageID: ulid.Make().String(),
		Message:   message,
	}
}

// Encode serializes a frame as a 1-byte meta-protocol header followed by the
// JSON body.
func Encode(f Frame) ([]byte, error) {
	body, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("marshal %s frame: %w", f.Kind(), err)
	}
	out := make([]byte, 0, len(body)+1)
	out = append(out, EncodeHeader(ProtocolMeta))
	return append(out, body...), nil
}

// EncodeHeader packs the protocol type into the header byte (top 2 bits; the
// remaining 6 are reserved).
func EncodeHeader(pt ProtocolType) byte {
	return byte(pt) << 6
}

// DecodeHeader extracts the protocol type from a header byte.
func DecodeHeader(b byte) ProtocolType {
	return ProtocolType(b >> 6)
}

// Decode parses a framed delivery. The caller receives the typed frame; an
// error is returned for non-meta frames, malformed JSON, or an unknown kind.
func Decode(data []byte) (Frame, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("frame too short: %d bytes", len(data))
	}
	if pt := DecodeHeader(data[0]); pt != ProtocolMeta {
		return nil, fmt.Errorf("unexpected protocol type %d for meta frame", pt)
	}

	var envelope struct {
		Action Kind `json:"action"`
	}
	body := data[1:]
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode frame envelope: %w", err)
	}

	switch envelope.Action {
	case KindProtocolNegotiation:
		var f ProtocolNegotiation
		if err := json.Unmarshal(body, &f); err != nil {
			return nil, fmt.Errorf("decode %s: %w", envelope.Action, err)
		}
		if !f.Status.Valid() {
			return nil, fmt.Errorf("decode %s: unknown status %q", envelope.Action, f.Status)
		}
		return f, nil
	case KindCodeGeneration:
		var f CodeGeneration
		if err := json.Unmarshal(body, &f); err != nil {
			return nil, fmt.Errorf("decode %s: %w", envelope.Action, err)
		}
		return f, nil
	case KindTestCasesNegotiation:
		var f TestCasesNegotiation
		if err := json.Unmarshal(body, &f); err != nil {
			return nil, fmt.Errorf("decode %s: %w", envelope.Action, err)
		}
		return f, nil
	case KindFixErrorNegotiation:
		var f FixErrorNegotiation
		if err := json.Unmarshal(body, &f); err != nil {
			return nil, fmt.Errorf("decode %s: %w", envelope.Action, err)
		}
		return f, nil
	case KindNaturalLanguageNegotiation:
		var f NaturalLanguageNegotiation
		if err := json.Unmarshal(body, &f); err != nil {
			return nil, fmt.Errorf("decode %s: %w", envelope.Action, err)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("unknown frame kind %q", envelope.Action)
	}
}
