package realtime

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/gosuda/ideaboard/internal/auth"
	"github.com/gosuda/ideaboard/internal/event"
)

type Transport string

const (
	TransportWebSocket Transport = "websocket"
	TransportSSE       Transport = "sse"
)

// State is the lifecycle stage of a connection.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticating
	StateConnected
	StateDisconnecting
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Message is one frame queued for a connection.
type Message struct {
	ID   uint64
	Type string
	Data []byte
}

// Conn is a live client connection. The hub goroutine owns send and rooms;
// transports only read from send.
type Conn struct {
	ID          uuid.UUID
	Transport   Transport
	Principal   *auth.Principal
	ConnectedAt time.Time

	state atomic.Int32
	send  chan Message
	rooms map[string]struct{}

	// dropReason is written by the hub before send is closed.
	dropReason string
}

func newConn(t Transport, principal *auth.Principal, buffer int) *Conn {
	return &Conn{
		ID:        uuid.New(),
		Transport: t,
		Principal: principal,
		send:      make(chan Message, buffer),
		rooms:     make(map[string]struct{}),
	}
}

func (c *Conn) State() State {
	return State(c.state.Load())
}

// advance moves the connection to next when it is currently in one of from.
func (c *Conn) advance(next State, from ...State) bool {
	for _, f := range from {
		if c.state.CompareAndSwap(int32(f), int32(next)) {
			return true
		}
	}
	return false
}

// fail marks a connected connection as failed.
func (c *Conn) fail() {
	c.advance(StateFailed, StateConnecting, StateAuthenticating, StateConnected)
}

// disconnect marks an orderly shutdown.
func (c *Conn) disconnect() {
	c.advance(StateDisconnecting, StateConnected)
}

func (c *Conn) close() {
	c.state.Store(int32(StateClosed))
}

// presence returns the presence record this connection announces, or nil
// for connections that do not announce presence.
func (c *Conn) presence() *event.Presence {
	if c.Transport != TransportWebSocket || c.Principal == nil {
		return nil
	}
	return &event.Presence{
		UserID:       c.Principal.ID,
		Name:         c.Principal.Name,
		ConnectionID: c.ID,
	}
}
