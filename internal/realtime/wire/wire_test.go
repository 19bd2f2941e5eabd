package wire_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/ideaboard/internal/event"
	"github.com/gosuda/ideaboard/internal/realtime/wire"
)

func TestDecodeFrame(t *testing.T) {
	t.Parallel()

	t.Run("board event", func(t *testing.T) {
		t.Parallel()

		env := event.New(event.CardDeleted{CardID: uuid.New()})
		env.ID = 7
		b, err := event.Encode(env)
		require.NoError(t, err)

		f, err := wire.DecodeFrame(b)
		require.NoError(t, err)
		require.True(t, f.IsEvent())
		assert.Equal(t, string(event.TypeCardDeleted), f.Type)
		assert.Equal(t, uint64(7), f.Event.ID)
		assert.Equal(t, env.Payload, f.Event.Payload)
	})

	t.Run("control frame", func(t *testing.T) {
		t.Parallel()

		id, epoch := uuid.New(), uuid.New()
		b, err := wire.EncodeControl(wire.TypeWelcome, wire.Welcome{ConnectionID: id, Room: "board:default", Epoch: epoch, LastEventID: 3})
		require.NoError(t, err)

		f, err := wire.DecodeFrame(b)
		require.NoError(t, err)
		assert.False(t, f.IsEvent())
		assert.Equal(t, wire.TypeWelcome, f.Type)

		var w wire.Welcome
		require.NoError(t, json.Unmarshal(f.Payload, &w))
		assert.Equal(t, id, w.ConnectionID)
		assert.Equal(t, event.Cursor{Epoch: epoch, ID: 3}, w.Cursor())
	})

	t.Run("control without payload", func(t *testing.T) {
		t.Parallel()

		b, err := wire.EncodeControl(wire.TypePong, nil)
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"pong"}`, string(b))

		f, err := wire.DecodeFrame(b)
		require.NoError(t, err)
		assert.Equal(t, wire.TypePong, f.Type)
	})

	t.Run("malformed", func(t *testing.T) {
		t.Parallel()

		_, err := wire.DecodeFrame([]byte("{"))
		require.Error(t, err)

		_, err = wire.DecodeFrame([]byte(`{"type":"card.deleted","payload":"nope"}`))
		require.Error(t, err)
	})
}

func TestWriteSSE(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		id   string
		typ  string
		data string
		want string
	}{
		{
			name: "with id",
			id:   "3f1c2a9e-5b7d-4e0a-9c61-2d8f4b6a0e15:12",
			typ:  "card.created",
			data: `{"a":1}`,
			want: "id: 3f1c2a9e-5b7d-4e0a-9c61-2d8f4b6a0e15:12\nevent: card.created\ndata: {\"a\":1}\n\n",
		},
		{
			name: "empty id omitted",
			typ:  "welcome",
			data: `{}`,
			want: "event: welcome\ndata: {}\n\n",
		},
		{
			name: "multi-line data",
			id:   "e:1",
			data: "a\nb",
			want: "id: e:1\ndata: a\ndata: b\n\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			require.NoError(t, wire.WriteSSE(&buf, tt.id, tt.typ, []byte(tt.data)))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestSSEReader(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, wire.WriteSSERetry(&buf, 3000))
	require.NoError(t, wire.WriteSSE(&buf, "", wire.TypeWelcome, []byte(`{"type":"welcome"}`)))
	require.NoError(t, wire.WriteSSEComment(&buf, "heartbeat"))
	require.NoError(t, wire.WriteSSE(&buf, "e:4", "card.moved", []byte("line1\nline2")))
	buf.WriteString("event: orphan\n\n")
	require.NoError(t, wire.WriteSSE(&buf, "", "vote.added", []byte("x")))

	r := wire.NewSSEReader(strings.NewReader(buf.String()))

	ev, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, wire.TypeWelcome, ev.Event)
	assert.Empty(t, ev.ID)

	ev, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, "e:4", ev.ID)
	assert.Equal(t, "card.moved", ev.Event)
	assert.Equal(t, "line1\nline2", string(ev.Data))

	ev, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, "vote.added", ev.Event)
	assert.Equal(t, "e:4", ev.ID, "id carries over")

	_, err = r.Next()
	assert.True(t, errors.Is(err, io.EOF))
}
