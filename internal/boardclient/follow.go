package boardclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/ideaboard/internal/event"
	"github.com/gosuda/ideaboard/internal/realtime/wire"
)

const (
	defaultMinBackoff = 500 * time.Millisecond
	defaultMaxBackoff = 30 * time.Second
	wsReadLimit       = 1 << 20
)

type Transport string

const (
	TransportWebSocket Transport = "websocket"
	TransportSSE       Transport = "sse"
)

// Status describes the follower's connection for display.
type Status struct {
	Transport    Transport
	Connected    bool
	ConnectionID string
	Err          error
}

type FollowOptions struct {
	// Room to follow instead of the server's default room.
	Room string
	// SSEOnly skips the WebSocket attempt.
	SSEOnly    bool
	MinBackoff time.Duration
	MaxBackoff time.Duration
	// HTTPClient is used for the SSE stream and the WebSocket handshake.
	// It must not set a total timeout. Defaults to http.DefaultClient.
	HTTPClient *http.Client
	OnStatus   func(Status)
}

// Follower keeps a Store in sync with the server. It prefers the WebSocket
// channel, which needs a bearer token, and falls back to the event stream.
// Every reconnect resumes from the store's last event id; when the server
// can no longer replay from there the board is fetched again.
type Follower struct {
	client *Client
	store  *Store
	opts   FollowOptions

	loaded bool
	noWS   bool
}

func NewFollower(client *Client, store *Store, opts FollowOptions) *Follower {
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = defaultMinBackoff
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = max(defaultMaxBackoff, opts.MinBackoff)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	return &Follower{client: client, store: store, opts: opts, noWS: opts.SSEOnly}
}

// Run follows the board until ctx is done. It returns ctx's error.
func (f *Follower) Run(ctx context.Context) error {
	backoff := f.opts.MinBackoff
	for {
		welcomed, err := f.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if welcomed {
			backoff = f.opts.MinBackoff
		}
		log.Warn().Err(err).Dur("retry_in", backoff).Msg("boardclient: stream ended")
		f.status(Status{Err: err})

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, f.opts.MaxBackoff)
	}
}

// session runs one connection and reports whether it got as far as the
// welcome frame.
func (f *Follower) session(ctx context.Context) (bool, error) {
	if !f.noWS && f.client.bearer() != "" {
		welcomed, err := f.followWS(ctx)
		var hs *handshakeError
		if !errors.As(err, &hs) {
			return welcomed, err
		}
		if hs.status == http.StatusUnauthorized || hs.status == http.StatusForbidden {
			f.noWS = true
		}
		log.Info().Err(err).Msg("boardclient: websocket unavailable, using event stream")
	}
	return f.followSSE(ctx)
}

type handshakeError struct {
	status int
	err    error
}

func (e *handshakeError) Error() string {
	return fmt.Sprintf("handshake (status %d): %v", e.status, e.err)
}

func (e *handshakeError) Unwrap() error { return e.err }

func (f *Follower) streamURL(path string, ws bool) string {
	u, _ := url.Parse(f.client.BaseURL() + path)
	if ws {
		if u.Scheme == "https" {
			u.Scheme = "wss"
		} else {
			u.Scheme = "ws"
		}
	}
	q := u.Query()
	if at := f.resumeCursor(); at != "" {
		q.Set("lastEventId", at)
	}
	if f.opts.Room != "" && !ws {
		q.Set("room", f.opts.Room)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (f *Follower) followWS(ctx context.Context) (bool, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+f.client.bearer())

	conn, resp, err := websocket.Dial(ctx, f.streamURL("/ws", true), &websocket.DialOptions{
		HTTPClient: f.opts.HTTPClient,
		HTTPHeader: header,
	})
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return false, &handshakeError{status: status, err: err}
	}
	defer conn.CloseNow()
	conn.SetReadLimit(wsReadLimit)

	welcomed := false
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return welcomed, err
		}
		frame, err := wire.DecodeFrame(data)
		if err != nil {
			log.Warn().Err(err).Msg("boardclient: undecodable frame")
			continue
		}

		if frame.Type == wire.TypeWelcome && !welcomed {
			welcomed = true
			if f.opts.Room != "" {
				if err := wsjson.Write(ctx, conn, wire.ClientMessage{Type: wire.ClientJoin, Room: f.opts.Room}); err != nil {
					return welcomed, err
				}
			}
			if err := wsjson.Write(ctx, conn, wire.ClientMessage{Type: wire.ClientPresence}); err != nil {
				return welcomed, err
			}
		}
		if err := f.handle(ctx, TransportWebSocket, frame); err != nil {
			_ = conn.Close(websocket.StatusNormalClosure, "refetch failed")
			return welcomed, err
		}
	}
}

func (f *Follower) followSSE(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.streamURL("/events", false), nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "text/event-stream")
	if tok := f.client.bearer(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	if at := f.resumeCursor(); at != "" {
		req.Header.Set("Last-Event-ID", at)
	}

	resp, err := f.opts.HTTPClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, &APIError{Status: resp.StatusCode, Title: http.StatusText(resp.StatusCode)}
	}

	welcomed := false
	r := wire.NewSSEReader(resp.Body)
	for {
		msg, err := r.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return welcomed, err
		}
		frame, err := wire.DecodeFrame(msg.Data)
		if err != nil {
			log.Warn().Err(err).Msg("boardclient: undecodable frame")
			continue
		}
		if frame.Type == wire.TypeWelcome {
			welcomed = true
		}
		if err := f.handle(ctx, TransportSSE, frame); err != nil {
			return welcomed, err
		}
	}
}

// handle applies one frame to the store. It fails only when a required
// refetch fails, which ends the session.
func (f *Follower) handle(ctx context.Context, transport Transport, frame wire.Frame) error {
	if frame.IsEvent() {
		f.store.Apply(*frame.Event)
		return nil
	}

	switch frame.Type {
	case wire.TypeWelcome:
		var w wire.Welcome
		if err := json.Unmarshal(frame.Payload, &w); err != nil {
			return fmt.Errorf("decode welcome: %w", err)
		}
		f.status(Status{Transport: transport, Connected: true, ConnectionID: w.ConnectionID.String()})
		// A fresh follower, a restarted server or a server whose ids are
		// behind ours needs the whole board. Ids from another epoch say
		// nothing about what the store has seen.
		at := f.store.Cursor()
		if !f.loaded || w.Epoch != at.Epoch || w.LastEventID < at.ID {
			return f.refetch(ctx, w.Cursor())
		}

	case wire.TypeReset:
		var rs wire.Reset
		if err := json.Unmarshal(frame.Payload, &rs); err != nil {
			return fmt.Errorf("decode reset: %w", err)
		}
		log.Info().Str("cursor", rs.Cursor().String()).Msg("boardclient: cannot resume, refetching board")
		return f.refetch(ctx, rs.Cursor())

	case wire.TypePresenceList:
		var pl wire.PresenceList
		if err := json.Unmarshal(frame.Payload, &pl); err != nil {
			return fmt.Errorf("decode presence list: %w", err)
		}
		f.store.SetOnline(pl.Users)

	case wire.TypeError:
		var e wire.Error
		_ = json.Unmarshal(frame.Payload, &e)
		log.Warn().Str("message", e.Message).Msg("boardclient: server error frame")

	case wire.TypePong, wire.TypeRoomJoined, wire.TypeRoomLeft:
	default:
		log.Debug().Str("type", frame.Type).Msg("boardclient: ignoring frame")
	}
	return nil
}

// resumeCursor is the lastEventId to reconnect with, empty before the first
// load.
func (f *Follower) resumeCursor() string {
	if !f.loaded {
		return ""
	}
	return f.store.Cursor().String()
}

func (f *Follower) refetch(ctx context.Context, at event.Cursor) error {
	snap, err := f.client.Board(ctx)
	if err != nil {
		return err
	}
	f.store.Load(snap, at)
	f.loaded = true
	return nil
}

func (f *Follower) status(s Status) {
	if f.opts.OnStatus != nil {
		f.opts.OnStatus(s)
	}
}

// ParseTransport accepts "auto", "ws" or "sse".
func ParseTransport(s string) (sseOnly bool, err error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto", "ws", "websocket":
		return false, nil
	case "sse":
		return true, nil
	default:
		return false, fmt.Errorf("boardclient: unknown transport %q", s)
	}
}
