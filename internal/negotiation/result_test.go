package negotiation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseResultFencedJSON(t *testing.T) {
	content := "Here is my verdict:\n```json\n{\"status\":\"negotiating\",\"candidate_protocol\":\"# P1\",\"modification_summary\":\"added userId\"}\n```"

	result, err := ParseResult(content)
	require.NoError(t, err)
	require.Equal(t, StatusNegotiating, result.Status)
	require.Equal(t, "# P1", result.CandidateProtocol)
	require.Equal(t, "added userId", result.ModificationSummary)
}

func TestParseResultBareJSON(t *testing.T) {
	result, err := ParseResult(`{"status":"accepted","candidate_protocol":"","modification_summary":"ok"}`)
	require.NoError(t, err)
	require.Equal(t, StatusAccepted, result.Status)
	require.Empty(t, result.CandidateProtocol)
}

func TestParseResultClearsCandidateOnTerminal(t *testing.T) {
	// the wire mandates an empty candidate on terminal statuses even when
	// the model echoes one back
	result, err := ParseResult(`{"status":"accepted","candidate_protocol":"# leftover","modification_summary":"ok"}`)
	require.NoError(t, err)
	require.Empty(t, result.CandidateProtocol)
}

func TestParseResultRejectsMissingCandidate(t *testing.T) {
	_, err := ParseResult(`{"status":"negotiating","candidate_protocol":"","modification_summary":"hmm"}`)
	require.ErrorIs(t, err, ErrLLM)
}

func TestParseResultRejectsGarbage(t *testing.T) {
	_, err := ParseResult("I think this protocol looks great!")
	require.ErrorIs(t, err, ErrLLM)

	_, err = ParseResult(`{"status":"perhaps","candidate_protocol":""}`)
	require.ErrorIs(t, err, ErrLLM)
}

func TestStatusTerminal(t *testing.T) {
	require.False(t, StatusNegotiating.Terminal())
	require.True(t, StatusAccepted.Terminal())
	require.True(t, StatusRejected.Terminal())
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus("negotiating")
	require.NoError(t, err)
	require.Equal(t, StatusNegotiating, st)

	_, err = ParseStatus("NEGOTIATING")
	require.Error(t, err)
}
