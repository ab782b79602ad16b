package negotiation

import "errors"

// Error taxonomy for the negotiation engine. Sessions handle these locally
// and surface the terminal outcome as a (success, modulePath) pair; the
// specific kind reaches operators through structured logs.
var (
	// ErrLLM marks unparseable or schema-invalid LLM output.
	ErrLLM = errors.New("llm error")
	// ErrProtocol marks out-of-sequence frames, unknown statuses, or
	// duplicate acceptance. Fatal for the session.
	ErrProtocol = errors.New("protocol error")
	// ErrTransport marks send/recv failure. Fatal.
	ErrTransport = errors.New("transport error")
	// ErrTimeout marks an expired round, LLM, or code-gen wait.
	ErrTimeout = errors.New("timeout")
	// ErrCodeGen marks code generator failure. The wire handshake still
	// completes; the overall result is failure.
	ErrCodeGen = errors.New("code generation error")
	// ErrConvergence marks round-cap exhaustion without a terminal status.
	ErrConvergence = errors.New("convergence failure")
)
