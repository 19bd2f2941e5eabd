package realtime

import (
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/ideaboard/internal/event"
	"github.com/gosuda/ideaboard/internal/realtime/wire"
	"github.com/gosuda/ideaboard/internal/server/middleware"
)

// sseRetryMillis is the reconnection delay suggested to EventSource clients.
const sseRetryMillis = 3000

// ServeSSE streams board events as server-sent events. Authentication is
// optional. A Last-Event-ID header or lastEventId query parameter resumes
// from the replay buffer; when that is no longer possible the stream opens
// with a reset frame telling the client to refetch the board.
func (h *Hub) ServeSSE(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)

	resume, err := lastEventID(r)
	if err != nil {
		http.Error(w, `{"title":"Bad Request","status":400,"detail":"invalid last event id"}`, http.StatusBadRequest)
		return
	}

	room := strings.TrimSpace(r.URL.Query().Get("room"))
	if room == "" {
		room = h.opts.DefaultRoom
	}

	principal, _ := middleware.PrincipalFromContext(r.Context())
	c := newConn(TransportSSE, principal, h.opts.SendBuffer)
	c.advance(StateAuthenticating, StateConnecting)

	ctx := r.Context()
	backlog, last, reset, err := h.attach(ctx, c, room, resume)
	if err != nil {
		c.fail()
		c.close()
		http.Error(w, `{"title":"Service Unavailable","status":503,"detail":"realtime hub unavailable"}`, http.StatusServiceUnavailable)
		return
	}
	defer h.detach(c, "disconnected")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	logger := log.With().Str("conn_id", c.ID.String()).Str("transport", string(TransportSSE)).Logger()

	fail := func(err error) {
		c.fail()
		logger.Debug().Err(err).Msg("sse write failed")
	}

	if err := wire.WriteSSERetry(w, sseRetryMillis); err != nil {
		fail(err)
		return
	}

	welcome, err := wire.EncodeControl(wire.TypeWelcome, wire.Welcome{ConnectionID: c.ID, Room: room, Epoch: last.Epoch, LastEventID: last.ID})
	if err != nil {
		fail(err)
		return
	}
	if err := wire.WriteSSE(w, "", wire.TypeWelcome, welcome); err != nil {
		fail(err)
		return
	}

	if reset {
		data, err := wire.EncodeControl(wire.TypeReset, wire.Reset{Epoch: last.Epoch, LastEventID: last.ID})
		if err == nil {
			err = wire.WriteSSE(w, last.String(), wire.TypeReset, data)
		}
		if err != nil {
			fail(err)
			return
		}
	}
	for _, m := range backlog {
		if err := wire.WriteSSE(w, h.cursor(m), m.Type, m.Data); err != nil {
			fail(err)
			return
		}
	}
	if err := rc.Flush(); err != nil {
		fail(err)
		return
	}

	ticker := time.NewTicker(h.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.disconnect()
			return
		case m, ok := <-c.send:
			if !ok {
				logger.Debug().Str("reason", c.dropReason).Msg("sse stream dropped")
				return
			}
			_ = rc.SetWriteDeadline(time.Now().Add(h.opts.HeartbeatTimeout))
			if err := wire.WriteSSE(w, h.cursor(m), m.Type, m.Data); err != nil {
				fail(err)
				return
			}
			if err := rc.Flush(); err != nil {
				fail(err)
				return
			}
		case <-ticker.C:
			_ = rc.SetWriteDeadline(time.Now().Add(h.opts.HeartbeatTimeout))
			if err := wire.WriteSSEComment(w, "heartbeat"); err != nil {
				fail(err)
				return
			}
			if err := rc.Flush(); err != nil {
				fail(err)
				return
			}
		}
	}
}

// cursor is the SSE id for m. Control frames carry none.
func (h *Hub) cursor(m Message) string {
	if m.ID == 0 {
		return ""
	}
	return event.Cursor{Epoch: h.epoch, ID: m.ID}.String()
}

// lastEventID reads the resume cursor, preferring the header EventSource
// sends on reconnect.
func lastEventID(r *http.Request) (*event.Cursor, error) {
	raw := r.Header.Get("Last-Event-ID")
	if raw == "" {
		raw = r.URL.Query().Get("lastEventId")
	}
	if raw == "" {
		return nil, nil //nolint:nilnil // absent is not an error
	}
	c, err := event.ParseCursor(raw)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
