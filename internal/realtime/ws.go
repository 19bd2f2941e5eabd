package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/ideaboard/internal/realtime/wire"
	"github.com/gosuda/ideaboard/internal/server/middleware"
)

// ServeWS upgrades an authenticated request to a WebSocket connection on the
// default room. Requests without a principal are refused before the
// upgrade. A lastEventId query parameter carrying an event cursor replays
// missed events, or sends a reset frame when the replay ring no longer holds
// them or the cursor came from another hub epoch.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	c := newConn(TransportWebSocket, nil, h.opts.SendBuffer)
	c.advance(StateAuthenticating, StateConnecting)

	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		c.fail()
		c.close()
		http.Error(w, `{"title":"Unauthorized","status":401,"detail":"missing or invalid credentials"}`, http.StatusUnauthorized)
		return
	}
	c.Principal = principal

	resume, err := lastEventID(r)
	if err != nil {
		c.fail()
		c.close()
		http.Error(w, `{"title":"Bad Request","status":400,"detail":"invalid last event id"}`, http.StatusBadRequest)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.opts.OriginPatterns})
	if err != nil {
		c.fail()
		c.close()
		log.Debug().Err(err).Msg("websocket accept")
		return
	}
	defer ws.CloseNow()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backlog, last, reset, err := h.attach(ctx, c, h.opts.DefaultRoom, resume)
	if err != nil {
		c.fail()
		c.close()
		_ = ws.Close(websocket.StatusTryAgainLater, "server unavailable")
		return
	}
	defer h.detach(c, "disconnected")

	logger := log.With().Str("conn_id", c.ID.String()).Str("user_id", principal.ID.String()).Logger()
	logger.Debug().Msg("websocket connected")

	welcome, err := wire.EncodeControl(wire.TypeWelcome, wire.Welcome{
		ConnectionID: c.ID,
		Room:         h.opts.DefaultRoom,
		Epoch:        last.Epoch,
		LastEventID:  last.ID,
	})
	if err == nil {
		err = h.write(ctx, ws, welcome)
	}
	if err == nil && reset {
		var data []byte
		if data, err = wire.EncodeControl(wire.TypeReset, wire.Reset{Epoch: last.Epoch, LastEventID: last.ID}); err == nil {
			err = h.write(ctx, ws, data)
		}
	}
	for i := 0; err == nil && i < len(backlog); i++ {
		err = h.write(ctx, ws, backlog[i].Data)
	}
	if err != nil {
		c.fail()
		return
	}

	go h.readLoop(ctx, cancel, c, ws)
	go h.heartbeat(ctx, cancel, c, ws)

	status, reason := h.writeLoop(ctx, c, ws)
	_ = ws.Close(status, reason)
	logger.Debug().Str("state", c.State().String()).Str("reason", reason).Msg("websocket closed")
}

func (h *Hub) write(ctx context.Context, ws *websocket.Conn, data []byte) error {
	wctx, cancel := context.WithTimeout(ctx, h.opts.HeartbeatTimeout)
	defer cancel()
	return ws.Write(wctx, websocket.MessageText, data)
}

// writeLoop drains c.send until the connection ends and returns the close
// status to send.
func (h *Hub) writeLoop(ctx context.Context, c *Conn, ws *websocket.Conn) (websocket.StatusCode, string) {
	for {
		select {
		case <-ctx.Done():
			if c.State() == StateFailed {
				return websocket.StatusPolicyViolation, "heartbeat timeout"
			}
			return websocket.StatusNormalClosure, "connection closed"
		case m, ok := <-c.send:
			if !ok {
				if c.State() == StateFailed {
					return websocket.StatusPolicyViolation, c.dropReason
				}
				return websocket.StatusGoingAway, c.dropReason
			}
			if err := h.write(ctx, ws, m.Data); err != nil {
				c.fail()
				return websocket.StatusInternalError, "write failed"
			}
		}
	}
}

// readLoop handles client messages. Reading also services ping replies.
func (h *Hub) readLoop(ctx context.Context, cancel context.CancelFunc, c *Conn, ws *websocket.Conn) {
	defer cancel()

	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			switch {
			case ctx.Err() != nil:
			case isNormalClose(err):
				c.disconnect()
			default:
				c.fail()
			}
			return
		}

		var msg wire.ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			if err := h.reply(ctx, c, wire.TypeError, wire.Error{Message: "malformed message"}); err != nil {
				return
			}
			continue
		}

		if err := h.handleClient(ctx, c, msg); err != nil {
			return
		}
	}
}

func (h *Hub) handleClient(ctx context.Context, c *Conn, msg wire.ClientMessage) error {
	switch msg.Type {
	case wire.ClientPing:
		return h.reply(ctx, c, wire.TypePong, nil)
	case wire.ClientJoin:
		room := strings.TrimSpace(msg.Room)
		if room == "" {
			return h.reply(ctx, c, wire.TypeError, wire.Error{Message: "room is required"})
		}
		if err := h.join(ctx, c, room); err != nil {
			return err
		}
		return h.reply(ctx, c, wire.TypeRoomJoined, wire.RoomChange{Room: room})
	case wire.ClientLeave:
		room := strings.TrimSpace(msg.Room)
		if err := h.leave(ctx, c, room); err != nil {
			return err
		}
		return h.reply(ctx, c, wire.TypeRoomLeft, wire.RoomChange{Room: room})
	case wire.ClientPresence:
		room := msg.Room
		if room == "" {
			room = h.opts.DefaultRoom
		}
		users, err := h.Online(ctx, room)
		if err != nil {
			return err
		}
		return h.reply(ctx, c, wire.TypePresenceList, wire.PresenceList{Room: room, Users: users})
	default:
		return h.reply(ctx, c, wire.TypeError, wire.Error{Message: "unknown message type " + msg.Type})
	}
}

// heartbeat pings the client every interval. A ping without a pong within
// the timeout fails the connection.
func (h *Hub) heartbeat(ctx context.Context, cancel context.CancelFunc, c *Conn, ws *websocket.Conn) {
	ticker := time.NewTicker(h.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pctx, pcancel := context.WithTimeout(ctx, h.opts.HeartbeatTimeout)
			err := ws.Ping(pctx)
			pcancel()
			if err != nil {
				if ctx.Err() == nil {
					log.Debug().Err(err).Str("conn_id", c.ID.String()).Msg("websocket heartbeat failed")
					c.fail()
					cancel()
				}
				return
			}
		}
	}
}

func isNormalClose(err error) bool {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	default:
		return false
	}
}
