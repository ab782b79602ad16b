// Package session implements the per-peer negotiation state machine and the
// multiplexing of inbound frames across sessions.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/agentmesh/agentmesh/internal/codegen"
	"github.com/agentmesh/agentmesh/internal/negotiation"
	"github.com/agentmesh/agentmesh/internal/observability"
	"github.com/agentmesh/agentmesh/internal/wire"
)

// SendFunc transmits one encoded frame to the peer.
type SendFunc func(ctx context.Context, data []byte) error

// Config bounds one negotiation session.
type Config struct {
	MaxRounds      int
	RoundTimeout   time.Duration
	LLMTimeout     time.Duration
	LLMRetries     int
	CodeGenTimeout time.Duration
	InboxCapacity  int
}

func (c Config) withDefaults() Config {
	if c.MaxRounds <= 0 {
		c.MaxRounds = 10
	}
	if c.RoundTimeout <= 0 {
		c.RoundTimeout = 60 * time.Second
	}
	if c.LLMTimeout <= 0 {
		c.LLMTimeout = 120 * time.Second
	}
	if c.LLMRetries < 0 {
		c.LLMRetries = 0
	}
	if c.CodeGenTimeout <= 0 {
		c.CodeGenTimeout = 60 * time.Second
	}
	if c.InboxCapacity < 1 {
		c.InboxCapacity = 16
	}
	return c
}

// Session owns one run of the negotiation state machine against one peer.
// Negotiation state is mutated only by the driver task; inbound frames arrive
// through bounded inboxes fed by the multiplexer. The mutex-guarded flags
// (disposed, codeGenSeen) are also set by Dispose and HandleCodeGeneration.
type Session struct {
	id         string
	role       negotiation.Role
	peerDID    string
	cfg        Config
	negotiator *negotiation.Negotiator
	generator  codegen.Generator
	send       SendFunc
	logger     *zap.Logger
	metrics    *observability.Metrics

	inbox        chan wire.ProtocolNegotiation
	codeGenInbox chan wire.CodeGeneration

	mu          sync.Mutex
	status      negotiation.Status
	disposed    bool
	codeGenSeen bool

	// driver-task-owned; never touched from the Handle* methods
	selfRound      int
	peerRound      int
	history        []negotiation.HistoryEntry
	agreedProtocol string
}

// New builds a session. The send callback wraps the peer transport; the
// generator may be nil when the host does not want code generation (the
// session then reports failure after agreement).
func New(role negotiation.Role, peerDID string, cfg Config, neg *negotiation.Negotiator, gen codegen.Generator, send SendFunc, logger *zap.Logger, metrics *observability.Metrics) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	id := ulid.Make().String()
	return &Session{
		id:           id,
		role:         role,
		peerDID:      peerDID,
		cfg:          cfg,
		negotiator:   neg,
		generator:    gen,
		send:         send,
		logger:       logger.With(zap.String("session_id", id), zap.String("peer_did", peerDID), zap.String("role", string(role))),
		metrics:      metrics,
		inbox:        make(chan wire.ProtocolNegotiation, cfg.InboxCapacity),
		codeGenInbox: make(chan wire.CodeGeneration, 1),
		status:       negotiation.StatusNegotiating,
	}
}

// ID returns the session correlation id.
func (s *Session) ID() string {
	return s.id
}

// PeerDID identifies the remote party.
func (s *Session) PeerDID() string {
	return s.peerDID
}

// Role returns the session's negotiation role.
func (s *Session) Role() negotiation.Role {
	return s.role
}

// Status returns the current negotiation status.
func (s *Session) Status() negotiation.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// AgreedProtocol returns the agreed protocol document once the session
// reached acceptance, empty otherwise.
func (s *Session) AgreedProtocol() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != negotiation.StatusAccepted {
		return ""
	}
	return s.agreedProtocol
}

// HandleProtocolNegotiation enqueues one inbound negotiation frame. Frames
// arriving after a terminal status, after disposal, or past the inbox bound
// are dropped.
func (s *Session) HandleProtocolNegotiation(f wire.ProtocolNegotiation) {
	s.mu.Lock()
	terminal := s.disposed || s.status.Terminal()
	s.mu.Unlock()
	if terminal {
		s.logger.Debug("dropping negotiation frame on terminal session", zap.Uint32("seq", f.SequenceID))
		return
	}

	select {
	case s.inbox <- f:
		s.metrics.RecordFrame(string(wire.KindProtocolNegotiation), "in")
	default:
		s.logger.Warn("negotiation inbox full, dropping frame", zap.Uint32("seq", f.SequenceID))
	}
}

// HandleCodeGeneration enqueues the peer's code-generation ack. Exactly one
// ack is accepted per session; later ones are refused.
func (s *Session) HandleCodeGeneration(f wire.CodeGeneration) {
	s.mu.Lock()
	if s.disposed || s.codeGenSeen {
		s.mu.Unlock()
		s.logger.Debug("refusing extra code generation frame")
		return
	}
	s.codeGenSeen = true
	s.mu.Unlock()

	select {
	case s.codeGenInbox <- f:
		s.metrics.RecordFrame(string(wire.KindCodeGeneration), "in")
	default:
		s.logger.Debug("refusing extra code generation frame")
	}
}

// Dispose marks the session dead; subsequent inbound frames are dropped.
func (s *Session) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disposed = true
}

// NegotiateProtocol drives the requester side: propose an initial protocol,
// loop until terminal status, then run the code-generation handshake.
func (s *Session) NegotiateProtocol(ctx context.Context, requirement, inputDesc, outputDesc string) (bool, string) {
	if s.role != negotiation.RoleRequester {
		s.logger.Error("negotiate_protocol called on non-requester session")
		return false, ""
	}

	s.metrics.IncActiveSessions(string(s.role))
	defer s.metrics.DecActiveSessions(string(s.role))
	started := time.Now()

	s.logger.Info("starting protocol negotiation",
		zap.String("requirement", requirement))

	protocol, err := s.generateInitialWithRetry(ctx, requirement, inputDesc, outputDesc)
	if err != nil {
		s.logger.Error("initial protocol generation failed", zap.Error(err))
		s.finish(negotiation.StatusRejected, "llm_error", started)
		return false, ""
	}

	s.selfRound = 1
	s.history = append(s.history, negotiation.HistoryEntry{
		Round:             s.selfRound,
		CandidateProtocol: protocol,
		AuthoredBy:        negotiation.AuthorSelf,
	})
	if err := s.sendNegotiation(ctx, wire.NewProtocolNegotiation(uint32(s.selfRound), protocol, negotiation.StatusNegotiating, "")); err != nil {
		s.finish(negotiation.StatusRejected, "transport_error", started)
		return false, ""
	}

	return s.finishNegotiation(ctx, started)
}

// WaitRemoteNegotiation drives the provider side: wait for the requester's
// first proposal, loop until terminal status, then run the code-generation
// handshake.
func (s *Session) WaitRemoteNegotiation(ctx context.Context) (bool, string) {
	if s.role != negotiation.RoleProvider {
		s.logger.Error("wait_remote_negotiation called on non-provider session")
		return false, ""
	}

	s.metrics.IncActiveSessions(string(s.role))
	defer s.metrics.DecActiveSessions(string(s.role))
	started := time.Now()

	s.logger.Info("waiting for remote negotiation")
	return s.finishNegotiation(ctx, started)
}

// finishNegotiation runs the round loop and, on acceptance, the
// code-generation handshake.
func (s *Session) finishNegotiation(ctx context.Context, started time.Time) (bool, string) {
	ok, outcome := s.runRounds(ctx)
	if !ok {
		s.finish(negotiation.StatusRejected, outcome, started)
		return false, ""
	}
	s.finish(negotiation.StatusAccepted, outcome, started)

	success, modulePath := s.codeGenHandshake(ctx)
	if !success {
		return false, ""
	}
	return true, modulePath
}

// runRounds consumes one inbound frame per iteration until a terminal
// status. It returns ok=true only on acceptance; outcome labels the result
// for metrics and logs.
func (s *Session) runRounds(ctx context.Context) (bool, string) {
	for {
		frame, err := s.awaitFrame(ctx)
		if err != nil {
			// peer may be gone: fail silently, no outbound reject
			s.logger.Error("negotiation wait failed", zap.Error(err))
			if errors.Is(err, negotiation.ErrTimeout) {
				return false, "timeout"
			}
			return false, "cancelled"
		}

		// both sides share one interleaved sequence space: the next inbound
		// id follows the last id either side produced
		seq := int(frame.SequenceID)
		expected := s.selfRound + 1
		if s.peerRound > s.selfRound {
			expected = s.peerRound + 1
		}
		switch {
		case seq <= s.peerRound:
			s.logger.Debug("dropping duplicate frame", zap.Int("seq", seq), zap.Int("peer_round", s.peerRound))
			continue
		case seq != expected:
			s.logger.Error("out-of-sequence frame",
				zap.Int("seq", seq), zap.Int("expected", expected), zap.Error(negotiation.ErrProtocol))
			reject := wire.NewProtocolNegotiation(uint32(seq+1), "", negotiation.StatusRejected, "protocol error")
			_ = s.sendNegotiation(ctx, reject)
			return false, "protocol_error"
		}
		s.peerRound = seq

		s.logger.Info("processing negotiation frame",
			zap.Int("seq", seq), zap.String("status", string(frame.Status)))

		switch frame.Status {
		case negotiation.StatusAccepted:
			// peer accepted our last proposal
			s.agreedProtocol = s.lastSelfProposal()
			return true, "accepted"
		case negotiation.StatusRejected:
			return false, "rejected_by_peer"
		}

		s.history = append(s.history, negotiation.HistoryEntry{
			Round:               seq,
			CandidateProtocol:   frame.CandidateProtocols,
			ModificationSummary: frame.ModificationSummary,
			AuthoredBy:          negotiation.AuthorPeer,
		})

		result, selfRound, err := s.evaluateWithRetry(ctx, frame)
		if err != nil {
			s.logger.Error("evaluation failed after retries", zap.Error(err))
			reject := wire.NewProtocolNegotiation(uint32(s.peerRound+1), "", negotiation.StatusRejected, "protocol evaluation failed")
			_ = s.sendNegotiation(ctx, reject)
			return false, "llm_error"
		}
		s.selfRound = selfRound

		if result.Status == negotiation.StatusNegotiating && s.selfRound > s.cfg.MaxRounds {
			s.logger.Error("negotiation round cap exceeded",
				zap.Int("max_rounds", s.cfg.MaxRounds), zap.Error(negotiation.ErrConvergence))
			reject := wire.NewProtocolNegotiation(uint32(s.selfRound), "", negotiation.StatusRejected, "negotiation did not converge")
			_ = s.sendNegotiation(ctx, reject)
			return false, "convergence_failure"
		}

		switch result.Status {
		case negotiation.StatusNegotiating:
			s.history = append(s.history, negotiation.HistoryEntry{
				Round:               s.selfRound,
				CandidateProtocol:   result.CandidateProtocol,
				ModificationSummary: result.ModificationSummary,
				AuthoredBy:          negotiation.AuthorSelf,
			})
			out := wire.NewProtocolNegotiation(uint32(s.selfRound), result.CandidateProtocol, negotiation.StatusNegotiating, result.ModificationSummary)
			if err := s.sendNegotiation(ctx, out); err != nil {
				return false, "transport_error"
			}
		case negotiation.StatusAccepted:
			// we accept the peer's candidate; the ACCEPT frame carries no protocol
			s.agreedProtocol = frame.CandidateProtocols
			out := wire.NewProtocolNegotiation(uint32(s.selfRound), "", negotiation.StatusAccepted, result.ModificationSummary)
			if err := s.sendNegotiation(ctx, out); err != nil {
				return false, "transport_error"
			}
			return true, "accepted"
		case negotiation.StatusRejected:
			out := wire.NewProtocolNegotiation(uint32(s.selfRound), "", negotiation.StatusRejected, result.ModificationSummary)
			_ = s.sendNegotiation(ctx, out)
			return false, "rejected"
		}
	}
}

// codeGenHandshake generates local code, exchanges acks, and combines both
// outcomes. Local failure still completes the wire handshake.
func (s *Session) codeGenHandshake(ctx context.Context) (bool, string) {
	var (
		modulePath string
		err        error
	)
	if s.generator == nil {
		err = fmt.Errorf("%w: no code generator configured", negotiation.ErrCodeGen)
	} else {
		modulePath, err = s.generator.Generate(ctx, s.agreedProtocol, s.role)
	}
	codeOk := err == nil
	if err != nil {
		s.logger.Error("code generation failed", zap.Error(err))
		s.metrics.RecordCodeGen("error")
		modulePath = ""
	} else {
		s.metrics.RecordCodeGen("ok")
	}

	if err := s.sendFrame(ctx, wire.NewCodeGeneration(codeOk)); err != nil {
		s.logger.Error("sending code generation ack failed", zap.Error(err))
		return false, ""
	}

	select {
	case ack := <-s.codeGenInbox:
		s.logger.Info("received code generation ack", zap.Bool("peer_success", ack.Success))
		if !codeOk || !ack.Success {
			return false, ""
		}
		return true, modulePath
	case <-time.After(s.cfg.CodeGenTimeout):
		s.logger.Error("timeout waiting for code generation ack", zap.Error(negotiation.ErrTimeout))
		return false, ""
	case <-ctx.Done():
		s.logger.Error("cancelled waiting for code generation ack", zap.Error(ctx.Err()))
		return false, ""
	}
}

func (s *Session) awaitFrame(ctx context.Context) (wire.ProtocolNegotiation, error) {
	select {
	case f := <-s.inbox:
		return f, nil
	case <-time.After(s.cfg.RoundTimeout):
		return wire.ProtocolNegotiation{}, fmt.Errorf("%w: no frame within %s", negotiation.ErrTimeout, s.cfg.RoundTimeout)
	case <-ctx.Done():
		return wire.ProtocolNegotiation{}, ctx.Err()
	}
}

func (s *Session) generateInitialWithRetry(ctx context.Context, requirement, inputDesc, outputDesc string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= s.cfg.LLMRetries; attempt++ {
		if attempt > 0 {
			s.metrics.RecordLLMRetry(string(s.role))
		}
		llmCtx, cancel := context.WithTimeout(ctx, s.cfg.LLMTimeout)
		protocol, err := s.negotiator.GenerateInitialProtocol(llmCtx, requirement, inputDesc, outputDesc)
		cancel()
		if err == nil {
			return protocol, nil
		}
		lastErr = err
		s.logger.Warn("initial protocol generation attempt failed", zap.Int("attempt", attempt+1), zap.Error(err))
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
	return "", lastErr
}

func (s *Session) evaluateWithRetry(ctx context.Context, frame wire.ProtocolNegotiation) (negotiation.Result, int, error) {
	proposal := negotiation.Proposal{
		PeerRound:        int(frame.SequenceID),
		PeerCandidate:    frame.CandidateProtocols,
		PeerSummary:      frame.ModificationSummary,
		PrevSelfProposal: s.lastSelfProposal(),
	}

	var (
		lastErr   error
		selfRound = proposal.PeerRound + 1
	)
	for attempt := 0; attempt <= s.cfg.LLMRetries; attempt++ {
		if attempt > 0 {
			s.metrics.RecordLLMRetry(string(s.role))
		}
		llmCtx, cancel := context.WithTimeout(ctx, s.cfg.LLMTimeout)
		result, round, err := s.negotiator.EvaluateProposal(llmCtx, proposal)
		cancel()
		if err == nil {
			return result, round, nil
		}
		lastErr = err
		s.logger.Warn("evaluation attempt failed", zap.Int("attempt", attempt+1), zap.Error(err))
		if ctx.Err() != nil {
			return negotiation.Result{}, selfRound, ctx.Err()
		}
	}
	return negotiation.Result{}, selfRound, lastErr
}

func (s *Session) sendNegotiation(ctx context.Context, f wire.ProtocolNegotiation) error {
	return s.sendFrame(ctx, f)
}

func (s *Session) sendFrame(ctx context.Context, f wire.Frame) error {
	data, err := wire.Encode(f)
	if err != nil {
		return err
	}
	if err := s.send(ctx, data); err != nil {
		s.metrics.RecordTransportError("send")
		return fmt.Errorf("%w: %v", negotiation.ErrTransport, err)
	}
	s.metrics.RecordFrame(string(f.Kind()), "out")
	return nil
}

func (s *Session) lastSelfProposal() string {
	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].AuthoredBy == negotiation.AuthorSelf {
			return s.history[i].CandidateProtocol
		}
	}
	return ""
}

// finish records the terminal status exactly once.
func (s *Session) finish(status negotiation.Status, outcome string, started time.Time) {
	s.mu.Lock()
	if !s.status.Terminal() {
		s.status = status
	}
	s.mu.Unlock()

	rounds := s.selfRound
	if s.peerRound > rounds {
		rounds = s.peerRound
	}
	s.metrics.RecordSession(string(s.role), outcome, rounds, time.Since(started))
	s.logger.Info("negotiation finished",
		zap.String("status", string(status)), zap.String("outcome", outcome), zap.Int("rounds", rounds))
}
