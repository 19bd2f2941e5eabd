package event_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/ideaboard/internal/event"
)

func TestParseCursor(t *testing.T) {
	t.Parallel()

	epoch := uuid.New()

	tests := []struct {
		name    string
		in      string
		want    event.Cursor
		wantErr bool
	}{
		{name: "epoch and id", in: epoch.String() + ":42", want: event.Cursor{Epoch: epoch, ID: 42}},
		{name: "surrounding space", in: " " + epoch.String() + ":0 ", want: event.Cursor{Epoch: epoch}},
		{name: "bare id has no epoch", in: "7", want: event.Cursor{ID: 7}},
		{name: "bad epoch", in: "nope:7", wantErr: true},
		{name: "bad id", in: epoch.String() + ":x", wantErr: true},
		{name: "negative id", in: epoch.String() + ":-1", wantErr: true},
		{name: "empty", in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := event.ParseCursor(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, event.ErrInvalidCursor)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCursor_StringRoundTrip(t *testing.T) {
	t.Parallel()

	c := event.Cursor{Epoch: uuid.New(), ID: 19}
	parsed, err := event.ParseCursor(c.String())
	require.NoError(t, err)
	assert.Equal(t, c, parsed)

	assert.Empty(t, event.Cursor{}.String())
	assert.True(t, event.Cursor{}.IsZero())
}

func TestEnvelope_EpochTravelsWithID(t *testing.T) {
	t.Parallel()

	env := event.New(event.CardDeleted{CardID: uuid.New()})
	env.ID = 3
	env.Epoch = uuid.New()

	b, err := event.Encode(env)
	require.NoError(t, err)
	decoded, err := event.Decode(b)
	require.NoError(t, err)
	assert.Equal(t, env.Cursor(), decoded.Cursor())

	undelivered, err := event.Encode(event.New(event.CardDeleted{CardID: uuid.New()}))
	require.NoError(t, err)
	assert.NotContains(t, string(undelivered), `"epoch"`)
}
