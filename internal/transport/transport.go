// Package transport defines the duplex message channel the negotiation
// engine runs over. Framing, ordering, and peer authentication are the
// channel's responsibility; the engine treats deliveries as opaque frames.
package transport

import "context"

// Conn is an ordered duplex message channel to one authenticated peer.
type Conn interface {
	// PeerDID identifies the remote party.
	PeerDID() string
	// Send transmits one framed message.
	Send(ctx context.Context, data []byte) error
	// Close tears the channel down; pending deliveries are dropped.
	Close() error
}

// Handler consumes one framed inbound delivery.
type Handler func(data []byte)
