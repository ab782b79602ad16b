package negotiation

import "fmt"

// Status is the negotiation state carried both in LLM results and on the wire.
type Status string

const (
	StatusNegotiating Status = "negotiating"
	StatusAccepted    Status = "accepted"
	StatusRejected    Status = "rejected"
)

// Terminal reports whether the status ends the negotiation.
func (s Status) Terminal() bool {
	return s == StatusAccepted || s == StatusRejected
}

// Valid reports whether the status is one of the known values.
func (s Status) Valid() bool {
	switch s {
	case StatusNegotiating, StatusAccepted, StatusRejected:
		return true
	}
	return false
}

// ParseStatus converts a wire/LLM string into a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown negotiation status %q", s)
	}
	return st, nil
}

// Role distinguishes the two negotiation parties.
type Role string

const (
	// RoleRequester initiates negotiation and carries the original
	// requirement plus input/output descriptions.
	RoleRequester Role = "requester"
	// RoleProvider responds to proposals and consults capability info.
	RoleProvider Role = "provider"
)

// Author marks who produced a history entry.
type Author string

const (
	AuthorSelf Author = "self"
	AuthorPeer Author = "peer"
)

// HistoryEntry is one round of the negotiation transcript. Append-only
// within a session.
type HistoryEntry struct {
	Round               int
	CandidateProtocol   string
	ModificationSummary string
	AuthoredBy          Author
}
