package session

import (
	"sync"

	"go.uber.org/zap"

	"github.com/agentmesh/agentmesh/internal/observability"
	"github.com/agentmesh/agentmesh/internal/wire"
)

// NewProviderSessionFunc builds a configured provider session the first time
// a frame arrives from an unknown DID. The host typically also starts the
// session driver inside this hook.
type NewProviderSessionFunc func(peerDID string) (*Session, error)

// Mux routes inbound frames from the transport to the owning session.
type Mux struct {
	mu          sync.Mutex
	sessions    map[string]*Session
	newProvider NewProviderSessionFunc
	logger      *zap.Logger
	metrics     *observability.Metrics
}

// NewMux builds a multiplexer. newProvider may be nil on requester-only
// hosts; frames from unknown DIDs are then dropped.
func NewMux(newProvider NewProviderSessionFunc, logger *zap.Logger, metrics *observability.Metrics) *Mux {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mux{
		sessions:    make(map[string]*Session),
		newProvider: newProvider,
		logger:      logger,
		metrics:     metrics,
	}
}

// Register binds a session to its peer DID.
func (m *Mux) Register(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.PeerDID()] = s
}

// Remove disposes the session for a DID and drops the mapping.
func (m *Mux) Remove(peerDID string) {
	m.mu.Lock()
	s, ok := m.sessions[peerDID]
	delete(m.sessions, peerDID)
	m.mu.Unlock()
	if ok {
		s.Dispose()
	}
}

// Get returns the session registered for a DID.
func (m *Mux) Get(peerDID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[peerDID]
	return s, ok
}

// Len reports the number of registered sessions.
func (m *Mux) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// HandleInbound decodes one framed delivery and dispatches it by kind.
// Decode failures and unknown kinds are logged and dropped.
func (m *Mux) HandleInbound(peerDID string, data []byte) {
	frame, err := wire.Decode(data)
	if err != nil {
		m.logger.Warn("dropping undecodable frame", zap.String("peer_did", peerDID), zap.Error(err))
		m.metrics.RecordTransportError("decode")
		return
	}

	sess, err := m.sessionFor(peerDID)
	if err != nil {
		m.logger.Error("provider session creation failed", zap.String("peer_did", peerDID), zap.Error(err))
		return
	}
	if sess == nil {
		m.logger.Warn("no session for peer, dropping frame",
			zap.String("peer_did", peerDID), zap.String("kind", string(frame.Kind())))
		return
	}

	switch f := frame.(type) {
	case wire.ProtocolNegotiation:
		sess.HandleProtocolNegotiation(f)
	case wire.CodeGeneration:
		sess.HandleCodeGeneration(f)
	case wire.TestCasesNegotiation, wire.FixErrorNegotiation, wire.NaturalLanguageNegotiation:
		// reserved for future negotiation phases
		m.metrics.RecordFrame(string(frame.Kind()), "in")
		m.logger.Info("acknowledging reserved frame kind",
			zap.String("peer_did", peerDID), zap.String("kind", string(frame.Kind())))
	default:
		m.logger.Warn("unknown frame type", zap.String("peer_did", peerDID))
	}
}

func (m *Mux) sessionFor(peerDID string) (*Session, error) {
	m.mu.Lock()
	sess, ok := m.sessions[peerDID]
	m.mu.Unlock()
	if ok {
		return sess, nil
	}
	if m.newProvider == nil {
		return nil, nil
	}

	created, err := m.newProvider(peerDID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// a racing registration wins
	if existing, ok := m.sessions[peerDID]; ok {
		created.Dispose()
		return existing, nil
	}
	m.sessions[peerDID] = created
	return created, nil
}
