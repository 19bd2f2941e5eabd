package boardclient_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/ideaboard/internal/auth"
	"github.com/gosuda/ideaboard/internal/board"
	"github.com/gosuda/ideaboard/internal/boardclient"
	"github.com/gosuda/ideaboard/internal/config"
	"github.com/gosuda/ideaboard/internal/domain"
	"github.com/gosuda/ideaboard/internal/event"
	"github.com/gosuda/ideaboard/internal/realtime"
	"github.com/gosuda/ideaboard/internal/realtime/wire"
	"github.com/gosuda/ideaboard/internal/server"
	"github.com/gosuda/ideaboard/internal/store/memory"
)

const testSecret = "boardclient-test-secret-at-least-32-chars"

func newBoardServer(t *testing.T) (*httptest.Server, *board.Service) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	store := memory.New()
	hub := realtime.NewHub(realtime.NewLocalBus(), realtime.Options{ReplaySize: 64})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = hub.Run(ctx)
	}()

	cfg := &config.Config{
		JWT: config.JWTConfig{Secret: testSecret, AccessTTL: time.Minute, RefreshTTL: time.Hour},
		Server: config.ServerConfig{
			ReadTimeout: 5 * time.Second, WriteTimeout: 5 * time.Second,
			RateLimit: 100, RateBurst: 200, IPRateLimit: 100, IPRateBurst: 200,
		},
	}
	authSvc := auth.NewService(store.Users(), testSecret, time.Minute, time.Hour)
	boardSvc := board.NewService(store, hub)

	srv := httptest.NewServer(server.New(ctx, cfg, boardSvc, authSvc, hub, server.Options{}).Handler())
	t.Cleanup(func() {
		cancel()
		<-done
		srv.Close()
	})
	return srv, boardSvc
}

func register(t *testing.T, base, email string) string {
	t.Helper()

	body, err := json.Marshal(map[string]string{"email": email, "password": "correct-horse-battery", "name": "Tester"})
	require.NoError(t, err)
	resp, err := http.Post(base+"/api/v1/auth/register", "application/json", bytes.NewReader(body)) //nolint:noctx // test helper
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		AccessToken string `json:"accessToken"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out.AccessToken
}

type statusLog struct {
	mu  sync.Mutex
	all []boardclient.Status
}

func (l *statusLog) record(s boardclient.Status) {
	l.mu.Lock()
	l.all = append(l.all, s)
	l.mu.Unlock()
}

func (l *statusLog) connectedVia() boardclient.Transport {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.all) - 1; i >= 0; i-- {
		if l.all[i].Connected {
			return l.all[i].Transport
		}
	}
	return ""
}

func follow(t *testing.T, f *boardclient.Follower) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.ErrorIs(t, <-done, context.Canceled)
	})
}

func TestFollower_WebSocketRoundTrip(t *testing.T) {
	t.Parallel()

	srv, svc := newBoardServer(t)
	ctx := context.Background()

	todo, err := svc.CreateColumn(ctx, "Todo")
	require.NoError(t, err)

	token := register(t, srv.URL, "alice@example.com")
	client, err := boardclient.NewClient(boardclient.ClientConfig{BaseURL: srv.URL, Token: token})
	require.NoError(t, err)

	var statuses statusLog
	store := boardclient.NewStore(boardclient.WithMutator(client))
	follow(t, boardclient.NewFollower(client, store, boardclient.FollowOptions{OnStatus: statuses.record}))

	require.Eventually(t, func() bool {
		return statuses.connectedVia() == boardclient.TransportWebSocket && len(store.Columns()) == 1
	}, 5*time.Second, 10*time.Millisecond)

	done, err := svc.CreateColumn(ctx, "Done")
	require.NoError(t, err)
	card, err := client.CreateCard(ctx, todo.ID, "Ship it", "Release the follower")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := store.Card(card.ID)
		return ok && len(store.Columns()) == 2
	}, 5*time.Second, 10*time.Millisecond)

	result, err := store.MoveCard(ctx, card.ID, done.ID, 0)
	require.NoError(t, err)
	require.NoError(t, <-result)

	_, err = store.AddComment(ctx, card.ID, "looks good")
	require.NoError(t, err)

	// Let the echoes of the move and the comment arrive, then check nothing
	// was applied twice.
	require.Eventually(t, func() bool {
		return store.LastEventID() > 0 && len(store.Online()) == 1
	}, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		snap, err := client.Board(ctx)
		if err != nil {
			return false
		}
		var serverCard *domain.Card
		for _, c := range snap.Cards {
			if c.ID == card.ID {
				serverCard = c
			}
		}
		local, ok := store.Card(card.ID)
		return ok && serverCard != nil &&
			local.ColumnID == serverCard.ColumnID && local.Position == serverCard.Position &&
			len(local.Comments) == len(serverCard.Comments) && len(local.Comments) == 1
	}, 5*time.Second, 20*time.Millisecond)
}

func TestFollower_AnonymousUsesEventStream(t *testing.T) {
	t.Parallel()

	srv, svc := newBoardServer(t)
	ctx := context.Background()

	col, err := svc.CreateColumn(ctx, "Ideas")
	require.NoError(t, err)

	writer, err := boardclient.NewClient(boardclient.ClientConfig{BaseURL: srv.URL, Token: register(t, srv.URL, "bob@example.com")})
	require.NoError(t, err)
	reader, err := boardclient.NewClient(boardclient.ClientConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	var statuses statusLog
	store := boardclient.NewStore()
	follow(t, boardclient.NewFollower(reader, store, boardclient.FollowOptions{OnStatus: statuses.record}))

	require.Eventually(t, func() bool {
		return statuses.connectedVia() == boardclient.TransportSSE && len(store.Columns()) == 1
	}, 5*time.Second, 10*time.Millisecond)

	card, err := writer.CreateCard(ctx, col.ID, "Dark mode", "Everyone asks for it")
	require.NoError(t, err)
	_, err = writer.AddVote(ctx, card.ID)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		c, ok := store.Card(card.ID)
		return ok && len(c.Votes) == 1
	}, 5*time.Second, 10*time.Millisecond)
}

// scriptedStream serves /events from a list of per-connection scripts and
// counts board fetches. Fetches after the first return later when it is set.
type scriptedStream struct {
	scripts []func(w http.ResponseWriter, r *http.Request)
	conns   atomic.Int32
	fetches atomic.Int32
	snap    *board.Snapshot
	later   *board.Snapshot
}

func (s *scriptedStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/v1/board":
		snap := s.snap
		if s.fetches.Add(1) > 1 && s.later != nil {
			snap = s.later
		}
		_ = json.NewEncoder(w).Encode(snap)
	case "/events":
		n := int(s.conns.Add(1)) - 1
		if n >= len(s.scripts) {
			<-r.Context().Done()
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		s.scripts[n](w, r)
		w.(http.Flusher).Flush()
	default:
		http.NotFound(w, r)
	}
}

func writeControl(t *testing.T, w http.ResponseWriter, at event.Cursor, typ string, payload any) {
	t.Helper()
	data, err := wire.EncodeControl(typ, payload)
	assert.NoError(t, err)
	assert.NoError(t, wire.WriteSSE(w, at.String(), typ, data))
}

func writeEvent(t *testing.T, w http.ResponseWriter, at event.Cursor, p event.Payload) {
	t.Helper()
	env := event.New(p)
	env.ID, env.Epoch = at.ID, at.Epoch
	data, err := event.Encode(env)
	assert.NoError(t, err)
	assert.NoError(t, wire.WriteSSE(w, at.String(), string(env.Type), data))
}

func welcome(epoch uuid.UUID, last uint64) wire.Welcome {
	return wire.Welcome{ConnectionID: uuid.New(), Room: "board:default", Epoch: epoch, LastEventID: last}
}

func TestFollower_ResumesAndRefetchesOnReset(t *testing.T) {
	t.Parallel()

	col := domain.Column{ID: uuid.New(), Name: "Todo"}
	first := domain.Card{ID: uuid.New(), Title: "first", ColumnID: col.ID}
	second := domain.Card{ID: uuid.New(), Title: "second", ColumnID: col.ID, Position: 1}

	epoch := uuid.New()
	resumedFrom := make(chan string, 1)
	stream := &scriptedStream{snap: &board.Snapshot{Columns: []*domain.Column{&col}, Cards: []*domain.Card{&first}}}
	stream.scripts = []func(http.ResponseWriter, *http.Request){
		func(w http.ResponseWriter, r *http.Request) {
			assert.Empty(t, r.Header.Get("Last-Event-ID"))
			writeControl(t, w, event.Cursor{}, wire.TypeWelcome, welcome(epoch, 5))
			writeEvent(t, w, event.Cursor{Epoch: epoch, ID: 6}, event.CardCreated{Card: second})
		},
		func(w http.ResponseWriter, r *http.Request) {
			resumedFrom <- r.Header.Get("Last-Event-ID")
			writeControl(t, w, event.Cursor{}, wire.TypeWelcome, welcome(epoch, 40))
			writeControl(t, w, event.Cursor{Epoch: epoch, ID: 40}, wire.TypeReset, wire.Reset{Epoch: epoch, LastEventID: 40})
		},
	}
	srv := httptest.NewServer(stream)
	t.Cleanup(srv.Close)

	client, err := boardclient.NewClient(boardclient.ClientConfig{BaseURL: srv.URL})
	require.NoError(t, err)
	store := boardclient.NewStore()
	follow(t, boardclient.NewFollower(client, store, boardclient.FollowOptions{MinBackoff: 10 * time.Millisecond}))

	select {
	case id := <-resumedFrom:
		assert.Equal(t, event.Cursor{Epoch: epoch, ID: 6}.String(), id)
	case <-time.After(5 * time.Second):
		t.Fatal("follower did not reconnect")
	}

	require.Eventually(t, func() bool {
		return stream.fetches.Load() == 2 && store.LastEventID() == 40
	}, 5*time.Second, 10*time.Millisecond)

	// The refetched snapshot does not hold the card from event 6.
	_, ok := store.Card(second.ID)
	assert.False(t, ok)
	_, ok = store.Card(first.ID)
	assert.True(t, ok)
}

// A restarted server numbers events from one again under a new epoch. Its
// welcome can name an id at or past the follower's, yet none of the
// follower's ids mean anything there, so the board must be refetched and
// the new epoch's events applied rather than dropped as duplicates.
func TestFollower_RefetchesAfterServerRestart(t *testing.T) {
	t.Parallel()

	col := domain.Column{ID: uuid.New(), Name: "Todo"}
	first := domain.Card{ID: uuid.New(), Title: "first", ColumnID: col.ID}
	second := domain.Card{ID: uuid.New(), Title: "second", ColumnID: col.ID, Position: 1}
	third := domain.Card{ID: uuid.New(), Title: "third", ColumnID: col.ID, Position: 1}
	fourth := domain.Card{ID: uuid.New(), Title: "fourth", ColumnID: col.ID, Position: 2}

	before, after := uuid.New(), uuid.New()
	resumedFrom := make(chan string, 1)
	stream := &scriptedStream{
		snap: &board.Snapshot{Columns: []*domain.Column{&col}, Cards: []*domain.Card{&first}},
		// While the server was down, second was deleted and third created.
		later: &board.Snapshot{Columns: []*domain.Column{&col}, Cards: []*domain.Card{&first, &third}},
	}
	stream.scripts = []func(http.ResponseWriter, *http.Request){
		func(w http.ResponseWriter, _ *http.Request) {
			writeControl(t, w, event.Cursor{}, wire.TypeWelcome, welcome(before, 5))
			writeEvent(t, w, event.Cursor{Epoch: before, ID: 6}, event.CardCreated{Card: second})
		},
		func(w http.ResponseWriter, r *http.Request) {
			resumedFrom <- r.Header.Get("Last-Event-ID")
			writeControl(t, w, event.Cursor{}, wire.TypeWelcome, welcome(after, 9))
			writeEvent(t, w, event.Cursor{Epoch: after, ID: 10}, event.CardCreated{Card: fourth})
		},
	}
	srv := httptest.NewServer(stream)
	t.Cleanup(srv.Close)

	client, err := boardclient.NewClient(boardclient.ClientConfig{BaseURL: srv.URL})
	require.NoError(t, err)
	store := boardclient.NewStore()
	follow(t, boardclient.NewFollower(client, store, boardclient.FollowOptions{MinBackoff: 10 * time.Millisecond}))

	select {
	case id := <-resumedFrom:
		assert.Equal(t, event.Cursor{Epoch: before, ID: 6}.String(), id)
	case <-time.After(5 * time.Second):
		t.Fatal("follower did not reconnect")
	}

	require.Eventually(t, func() bool {
		_, ok := store.Card(fourth.ID)
		return stream.fetches.Load() == 2 && ok
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, event.Cursor{Epoch: after, ID: 10}, store.Cursor())
	titles := make([]string, 0, 3)
	for _, c := range store.Column(col.ID) {
		titles = append(titles, c.Title)
	}
	assert.Equal(t, []string{"first", "third", "fourth"}, titles)
}

func TestParseTransport(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]bool{"": false, "auto": false, "WS": false, "sse": true} {
		got, err := boardclient.ParseTransport(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := boardclient.ParseTransport("carrier-pigeon")
	assert.Error(t, err)
}
