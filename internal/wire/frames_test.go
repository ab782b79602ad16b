package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentmesh/agentmesh/internal/negotiation"
)

func TestProtocolNegotiationRoundTrip(t *testing.T) {
	in := NewProtocolNegotiation(3, "# Protocol\ncontent", negotiation.StatusNegotiating, "added userId")

	data, err := Encode(in)
	require.NoError(t, err)
	require.Equal(t, byte(0), data[0], "meta frames carry protocol type 0")

	out, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestCodeGenerationRoundTrip(t *testing.T) {
	for _, success := range []bool{true, false} {
		data, err := Encode(NewCodeGeneration(success))
		require.NoError(t, err)

		out, err := Decode(data)
		require.NoError(t, err)
		require.Equal(t, NewCodeGeneration(success), out)
	}
}

func TestReservedFramesRoundTrip(t *testing.T) {
	frames := []Frame{
		NewTestCasesNegotiation("case 1", negotiation.StatusNegotiating, "init"),
		NewFixErrorNegotiation("field mismatch", negotiation.StatusNegotiating),
	}
	for _, f := range frames {
		data, err := Encode(f)
		require.NoError(t, err)

		out, err := Decode(data)
		require.NoError(t, err)
		require.Equal(t, f, out)
	}
}

func TestNaturalLanguageFrameHasMessageID(t *testing.T) {
	f := NewNaturalLanguageNegotiation("hello", true)
	require.Equal(t, "REQUEST", f.Type)
	require.NotEmpty(t, f.MessageID)

	data, err := Encode(f)
	require.NoError(t, err)
	out, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, f, out)
}

func TestWireFieldNamesAreStable(t *testing.T) {
	data, err := Encode(NewProtocolNegotiation(1, "p", negotiation.StatusAccepted, "ok"))
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data[1:], &raw))
	for _, field := range []string{"action", "sequenceId", "candidateProtocols", "status", "modificationSummary"} {
		require.Contains(t, raw, field)
	}
}

func TestDecodeRejectsUnknownKind(t *testing.T) {
	body := []byte(`{"action":"somethingElse"}`)
	_, err := Decode(append([]byte{EncodeHeader(ProtocolMeta)}, body...))
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown frame kind")
}

func TestDecodeRejectsUnknownStatus(t *testing.T) {
	body := []byte(`{"action":"protocolNegotiation","sequenceId":1,"candidateProtocols":"","status":"maybe"}`)
	_, err := Decode(append([]byte{EncodeHeader(ProtocolMeta)}, body...))
	require.Error(t, err)
}

func TestDecodeRejectsNonMetaProtocolType(t *testing.T) {
	body := []byte(`{"action":"codeGeneration","success":true}`)
	_, err := Decode(append([]byte{EncodeHeader(ProtocolApplication)}, body...))
	require.Error(t, err)
}

func TestDecodeRejectsShortFrame(t *testing.T) {
	_, err := Decode([]byte{0})
	require.Error(t, err)
}

func TestHeaderRoundTrip(t *testing.T) {
	for _, pt := range []ProtocolType{ProtocolMeta, ProtocolApplication, ProtocolNatural, ProtocolVerification} {
		require.Equal(t, pt, DecodeHeader(EncodeHeader(pt)))
	}
}
