package negotiation

import (
	"encoding/json"
	"fmt"

	"github.com/agentmesh/agentmesh/internal/extract"
)

// Result is the strictly validated verdict produced by one LLM evaluation.
type Result struct {
	Status              Status `json:"status"`
	CandidateProtocol   string `json:"candidate_protocol"`
	ModificationSummary string `json:"modification_summary"`
}

// Validate enforces the result invariant: a candidate protocol is present
// exactly when the status is negotiating.
func (r Result) Validate() error {
	if !r.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrLLM, r.Status)
	}
	if r.Status == StatusNegotiating && r.CandidateProtocol == "" {
		return fmt.Errorf("%w: negotiating result without candidate protocol", ErrLLM)
	}
	return nil
}

// ParseResult extracts and validates a Result from raw LLM text. The JSON may
// arrive fenced or bare. Terminal results have their candidate cleared: the
// wire mandates an empty candidateProtocols on ACCEPT and REJECT.
func ParseResult(content string) (Result, error) {
	block, ok := extract.JSONBlock(content)
	if !ok {
		return Result{}, fmt.Errorf("%w: no JSON object in LLM output", ErrLLM)
	}

	var raw struct {
		Status              string `json:"status"`
		CandidateProtocol   string `json:"candidate_protocol"`
		ModificationSummary string `json:"modification_summary"`
	}
	if err := json.Unmarshal([]byte(block), &raw); err != nil {
		return Result{}, fmt.Errorf("%w: decode result: %v", ErrLLM, err)
	}

	status, err := ParseStatus(raw.Status)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrLLM, err)
	}

	result := Result{
		Status:              status,
		CandidateProtocol:   raw.CandidateProtocol,
		ModificationSummary: raw.ModificationSummary,
	}
	if status.Terminal() {
		result.CandidateProtocol = ""
	}
	if err := result.Validate(); err != nil {
		return Result{}, err
	}
	return result, nil
}
