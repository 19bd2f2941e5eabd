// Package realtime pushes committed board events to live clients over
// WebSocket and a server-sent events fallback.
//
// One Hub exists per process. Its Run loop is the only goroutine that
// touches the connection registry, room membership and replay ring, so
// none of them need locks. Mutations hand events to Broadcast, which
// queues them without blocking; a pump publishes them on the Bus and the
// loop fans each one out, in publish order, to the connections of its room.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/ideaboard/internal/event"
	"github.com/gosuda/ideaboard/internal/realtime/wire"
)

// ErrClosed is returned when the hub is not running.
var ErrClosed = errors.New("realtime: hub closed")

const DefaultRoom = "board:default"

type Options struct {
	// Channel is the bus channel events travel on.
	Channel     string
	DefaultRoom string

	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration

	ReplaySize int
	SendBuffer int
	QueueSize  int

	// OriginPatterns lists hosts allowed to open WebSocket connections
	// from another origin.
	OriginPatterns []string
}

func (o *Options) withDefaults() {
	if o.Channel == "" {
		o.Channel = "ideaboard:events"
	}
	if o.DefaultRoom == "" {
		o.DefaultRoom = DefaultRoom
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 25 * time.Second
	}
	if o.HeartbeatTimeout <= 0 {
		o.HeartbeatTimeout = 10 * time.Second
	}
	if o.ReplaySize < 0 {
		o.ReplaySize = 0
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 1024
	}
}

// frame is the unit carried on the bus.
type frame struct {
	Room    string         `json:"room"`
	Exclude uuid.UUID      `json:"exclude"`
	Event   event.Envelope `json:"event"`
}

type Hub struct {
	bus  Bus
	opts Options

	outbox  chan frame
	calls   chan func()
	stopped chan struct{}
	running atomic.Bool

	dropped   atomic.Uint64
	published atomic.Uint64

	// epoch names this hub instance. Event ids restart at one for every
	// epoch, so a cursor from another epoch never resumes here.
	epoch uuid.UUID

	// Owned by the Run goroutine.
	conns  map[uuid.UUID]*Conn
	rooms  map[string]map[uuid.UUID]*Conn
	ring   *replayRing
	nextID uint64
}

func NewHub(bus Bus, opts Options) *Hub {
	opts.withDefaults()
	return &Hub{
		bus:     bus,
		opts:    opts,
		epoch:   uuid.New(),
		outbox:  make(chan frame, opts.QueueSize),
		calls:   make(chan func()),
		stopped: make(chan struct{}),
		conns:   make(map[uuid.UUID]*Conn),
		rooms:   make(map[string]map[uuid.UUID]*Conn),
		ring:    newReplayRing(opts.ReplaySize),
	}
}

func (h *Hub) Options() Options { return h.opts }

// Epoch identifies this hub instance in event cursors.
func (h *Hub) Epoch() uuid.UUID { return h.epoch }

// Run subscribes to the bus and serves the hub until ctx is done. All
// connections are closed on return. Run must be called once.
func (h *Hub) Run(ctx context.Context) error {
	if !h.running.CompareAndSwap(false, true) {
		return errors.New("realtime.Hub.Run: already running")
	}

	messages, cleanup, err := h.bus.Subscribe(ctx, h.opts.Channel)
	if err != nil {
		close(h.stopped)
		return fmt.Errorf("realtime.Hub.Run: subscribe: %w", err)
	}
	defer cleanup()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.pump(ctx)
	}()
	defer wg.Wait()
	defer h.shutdown()

	log.Info().Str("channel", h.opts.Channel).Msg("realtime hub started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-h.calls:
			fn()
		case b, ok := <-messages:
			if !ok {
				log.Error().Msg("realtime hub: bus subscription closed")
				return fmt.Errorf("realtime.Hub.Run: %w", ErrClosed)
			}
			h.deliverRaw(b)
		}
	}
}

// Broadcast queues p for every connection in the default room. It never
// blocks; when the queue is full the event is dropped and logged.
func (h *Hub) Broadcast(_ context.Context, p event.Payload) {
	h.publish(frame{Room: h.opts.DefaultRoom, Event: event.New(p)})
}

// BroadcastTo queues p for the connections in room.
func (h *Hub) BroadcastTo(_ context.Context, room string, p event.Payload) {
	h.publish(frame{Room: room, Event: event.New(p)})
}

func (h *Hub) publish(f frame) {
	select {
	case h.outbox <- f:
	default:
		h.dropped.Add(1)
		log.Warn().Str("room", f.Room).Str("type", string(f.Event.Type)).Msg("realtime: broadcast queue full, event dropped")
	}
}

// pump publishes queued frames in order.
func (h *Hub) pump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-h.outbox:
			b, err := json.Marshal(f)
			if err != nil {
				log.Error().Err(err).Str("type", string(f.Event.Type)).Msg("realtime: encode frame")
				continue
			}

			pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = h.bus.Publish(pctx, h.opts.Channel, b)
			cancel()
			if err != nil {
				h.dropped.Add(1)
				log.Error().Err(err).Str("type", string(f.Event.Type)).Msg("realtime: publish frame")
				continue
			}
			h.published.Add(1)
		}
	}
}

// call runs fn on the hub goroutine and waits for it.
func (h *Hub) call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	select {
	case h.calls <- func() { fn(); close(done) }:
	case <-h.stopped:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	<-done
	return nil
}

// ---------------------------------------------------------------------------
// Hub goroutine
// ---------------------------------------------------------------------------

func (h *Hub) deliverRaw(b []byte) {
	var f frame
	if err := json.Unmarshal(b, &f); err != nil {
		log.Warn().Err(err).Msg("realtime: discard undecodable frame")
		return
	}
	h.deliver(f)
}

func (h *Hub) deliver(f frame) {
	h.nextID++
	env := f.Event
	env.ID = h.nextID
	env.Epoch = h.epoch

	data, err := event.Encode(env)
	if err != nil {
		log.Error().Err(err).Str("type", string(env.Type)).Msg("realtime: encode envelope")
		return
	}

	h.ring.add(replayEntry{id: env.ID, room: f.Room, typ: string(env.Type), data: data})

	msg := Message{ID: env.ID, Type: string(env.Type), Data: data}
	for id, c := range h.rooms[f.Room] {
		if id == f.Exclude {
			continue
		}
		h.send(c, msg)
	}
}

// send queues m for c, dropping c when its buffer is full.
func (h *Hub) send(c *Conn, m Message) {
	select {
	case c.send <- m:
	default:
		log.Warn().Str("conn_id", c.ID.String()).Str("transport", string(c.Transport)).Msg("realtime: send buffer full, dropping connection")
		c.fail()
		h.remove(c, "slow consumer")
	}
}

func (h *Hub) add(c *Conn, rooms ...string) {
	c.ConnectedAt = time.Now().UTC()
	h.conns[c.ID] = c
	for _, room := range rooms {
		h.joinRoom(c, room)
	}
	c.advance(StateConnected, StateAuthenticating, StateConnecting)

	if p := c.presence(); p != nil {
		h.publish(frame{Room: h.opts.DefaultRoom, Exclude: c.ID, Event: event.New(event.PresenceJoined{Presence: *p})})
	}
	log.Debug().Str("conn_id", c.ID.String()).Str("transport", string(c.Transport)).Msg("realtime: connection registered")
}

// remove deregisters c and closes its send channel. It is a no-op for
// connections that are not registered.
func (h *Hub) remove(c *Conn, reason string) {
	if _, ok := h.conns[c.ID]; !ok {
		return
	}
	delete(h.conns, c.ID)
	for room := range c.rooms {
		h.leaveRoom(c, room)
	}
	c.dropReason = reason
	close(c.send)

	if p := c.presence(); p != nil {
		h.publish(frame{Room: h.opts.DefaultRoom, Exclude: c.ID, Event: event.New(event.PresenceLeft{Presence: *p})})
	}
	log.Debug().Str("conn_id", c.ID.String()).Str("reason", reason).Msg("realtime: connection removed")
}

func (h *Hub) joinRoom(c *Conn, room string) {
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[uuid.UUID]*Conn)
		h.rooms[room] = members
	}
	members[c.ID] = c
	c.rooms[room] = struct{}{}
}

func (h *Hub) leaveRoom(c *Conn, room string) {
	delete(c.rooms, room)
	if members, ok := h.rooms[room]; ok {
		delete(members, c.ID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

func (h *Hub) shutdown() {
	for _, c := range h.conns {
		c.disconnect()
		h.remove(c, "server shutting down")
	}
	close(h.stopped)
	log.Info().Msg("realtime hub stopped")
}

func (h *Hub) online(room string) []event.Presence {
	users := make([]event.Presence, 0, len(h.rooms[room]))
	for _, c := range h.rooms[room] {
		if p := c.presence(); p != nil {
			users = append(users, *p)
		}
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].Name != users[j].Name {
			return users[i].Name < users[j].Name
		}
		return users[i].ConnectionID.String() < users[j].ConnectionID.String()
	})
	return users
}

// ---------------------------------------------------------------------------
// Registry API used by transports
// ---------------------------------------------------------------------------

// attach registers c in room. When resume is set, the events after it that
// are still in the replay ring are returned; reset reports that the client
// missed events the ring no longer holds or that resume belongs to another
// epoch.
func (h *Hub) attach(ctx context.Context, c *Conn, room string, resume *event.Cursor) (backlog []Message, last event.Cursor, reset bool, err error) {
	err = h.call(ctx, func() {
		h.add(c, room)
		last = event.Cursor{Epoch: h.epoch, ID: h.nextID}
		if resume == nil {
			return
		}
		if resume.Epoch != h.epoch {
			reset = true
			return
		}
		entries, ok := h.ring.since(resume.ID, c.rooms)
		if !ok {
			reset = true
			return
		}
		for _, e := range entries {
			backlog = append(backlog, Message{ID: e.id, Type: e.typ, Data: e.data})
		}
	})
	return backlog, last, reset, err
}

func (h *Hub) detach(c *Conn, reason string) {
	_ = h.call(context.Background(), func() { h.remove(c, reason) })
	c.close()
}

// reply queues a control frame for c.
func (h *Hub) reply(ctx context.Context, c *Conn, typ string, payload any) error {
	data, err := wire.EncodeControl(typ, payload)
	if err != nil {
		return err
	}
	return h.call(ctx, func() {
		if _, ok := h.conns[c.ID]; ok {
			h.send(c, Message{Type: typ, Data: data})
		}
	})
}

func (h *Hub) join(ctx context.Context, c *Conn, room string) error {
	return h.call(ctx, func() {
		if _, ok := h.conns[c.ID]; ok {
			h.joinRoom(c, room)
		}
	})
}

func (h *Hub) leave(ctx context.Context, c *Conn, room string) error {
	return h.call(ctx, func() {
		if _, ok := h.conns[c.ID]; ok {
			h.leaveRoom(c, room)
		}
	})
}

// Online lists the users connected to room on this node.
func (h *Hub) Online(ctx context.Context, room string) ([]event.Presence, error) {
	var users []event.Presence
	err := h.call(ctx, func() { users = h.online(room) })
	return users, err
}

// Stats is a point-in-time view of the registry.
type Stats struct {
	Connections    int               `json:"connections"`
	ByTransport    map[Transport]int `json:"byTransport"`
	Rooms          map[string]int    `json:"rooms"`
	Epoch          uuid.UUID         `json:"epoch"`
	LastEventID    uint64            `json:"lastEventId"`
	ReplayBuffered int               `json:"replayBuffered"`
	Published      uint64            `json:"published"`
	Dropped        uint64            `json:"dropped"`
}

func (h *Hub) Stats(ctx context.Context) (Stats, error) {
	s := Stats{
		ByTransport: make(map[Transport]int),
		Rooms:       make(map[string]int),
		Epoch:       h.epoch,
		Published:   h.published.Load(),
		Dropped:     h.dropped.Load(),
	}
	err := h.call(ctx, func() {
		s.Connections = len(h.conns)
		for _, c := range h.conns {
			s.ByTransport[c.Transport]++
		}
		for room, members := range h.rooms {
			s.Rooms[room] = len(members)
		}
		s.LastEventID = h.nextID
		s.ReplayBuffered = h.ring.len()
	})
	return s, err
}
