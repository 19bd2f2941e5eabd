package boardclient_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/ideaboard/internal/board"
	"github.com/gosuda/ideaboard/internal/boardclient"
	"github.com/gosuda/ideaboard/internal/domain"
	"github.com/gosuda/ideaboard/internal/event"
)

type mockMutator struct {
	moveCardFn   func(ctx context.Context, id, toColumnID uuid.UUID, position int) (*domain.Card, error)
	addCommentFn func(ctx context.Context, cardID uuid.UUID, body string) (*domain.Comment, error)
	addVoteFn    func(ctx context.Context, cardID uuid.UUID) (*domain.Vote, error)
	createPollFn func(ctx context.Context, cardID uuid.UUID, in boardclient.PollInput) (*domain.Poll, error)
}

func (m *mockMutator) MoveCard(ctx context.Context, id, toColumnID uuid.UUID, position int) (*domain.Card, error) {
	return m.moveCardFn(ctx, id, toColumnID, position)
}

func (m *mockMutator) AddComment(ctx context.Context, cardID uuid.UUID, body string) (*domain.Comment, error) {
	return m.addCommentFn(ctx, cardID, body)
}

func (m *mockMutator) AddVote(ctx context.Context, cardID uuid.UUID) (*domain.Vote, error) {
	return m.addVoteFn(ctx, cardID)
}

func (m *mockMutator) CreatePoll(ctx context.Context, cardID uuid.UUID, in boardclient.PollInput) (*domain.Poll, error) {
	return m.createPollFn(ctx, cardID, in)
}

// fixture is a board with columns todo and done. todo holds a0, a1, a2 and
// done holds b0.
type fixture struct {
	todo, done     domain.Column
	a0, a1, a2, b0 domain.Card
	alice          uuid.UUID
}

func newFixture() fixture {
	f := fixture{
		todo:  domain.Column{ID: uuid.New(), Name: "Todo", Position: 0},
		done:  domain.Column{ID: uuid.New(), Name: "Done", Position: 1},
		alice: uuid.New(),
	}
	card := func(title string, col uuid.UUID, pos int) domain.Card {
		return domain.Card{
			ID: uuid.New(), Title: title, Description: title + " description",
			ColumnID: col, Position: pos, CreatedBy: f.alice,
			Creator: domain.UserSummary{ID: f.alice, Name: "Alice"},
		}
	}
	f.a0 = card("a0", f.todo.ID, 0)
	f.a1 = card("a1", f.todo.ID, 1)
	f.a2 = card("a2", f.todo.ID, 2)
	f.b0 = card("b0", f.done.ID, 0)
	return f
}

func (f fixture) snapshot() *board.Snapshot {
	todo, done := f.todo, f.done
	a0, a1, a2, b0 := f.a0, f.a1, f.a2, f.b0
	return &board.Snapshot{
		Columns: []*domain.Column{&todo, &done},
		Cards:   []*domain.Card{&a0, &a1, &a2, &b0},
	}
}

func (f fixture) store(opts ...boardclient.Option) *boardclient.Store {
	s := boardclient.NewStore(opts...)
	s.Load(f.snapshot(), event.Cursor{Epoch: fixtureEpoch, ID: 10})
	return s
}

// fixtureEpoch is the hub epoch every fixture snapshot and numbered envelope
// belongs to.
var fixtureEpoch = uuid.MustParse("6f1d8c2e-3a4b-4c5d-8e9f-0a1b2c3d4e5f")

func envelope(id uint64, p event.Payload) event.Envelope {
	env := event.New(p)
	env.ID = id
	if id != 0 {
		env.Epoch = fixtureEpoch
	}
	return env
}

// layout returns card titles per column in position order.
func layout(s *boardclient.Store) map[string][]string {
	out := make(map[string][]string)
	for _, col := range s.Columns() {
		titles := []string{}
		for i, c := range s.Column(col.ID) {
			if c.Position != i {
				titles = append(titles, "!gap")
			}
			titles = append(titles, c.Title)
		}
		out[col.Name] = titles
	}
	return out
}

func TestApply_SkipsSeenEventIDs(t *testing.T) {
	t.Parallel()

	f := newFixture()
	s := f.store()
	assert.Equal(t, uint64(10), s.LastEventID())

	assert.False(t, s.Apply(envelope(10, event.CardDeleted{CardID: f.a0.ID})), "id already covered by the snapshot")
	_, ok := s.Card(f.a0.ID)
	assert.True(t, ok)

	assert.True(t, s.Apply(envelope(11, event.CardDeleted{CardID: f.a0.ID})))
	assert.Equal(t, uint64(11), s.LastEventID())
	assert.False(t, s.Apply(envelope(11, event.CardDeleted{CardID: f.a0.ID})))

	assert.Equal(t, map[string][]string{"Todo": {"a1", "a2"}, "Done": {"b0"}}, layout(s))
}

func TestApply_NewEpochRestartsIDs(t *testing.T) {
	t.Parallel()

	f := newFixture()
	s := f.store()

	restarted := uuid.New()
	env := event.New(event.CardDeleted{CardID: f.a0.ID})
	env.ID, env.Epoch = 2, restarted

	assert.True(t, s.Apply(env), "a low id from another epoch is not a duplicate")
	assert.Equal(t, event.Cursor{Epoch: restarted, ID: 2}, s.Cursor())
	assert.False(t, s.Apply(env))

	assert.Equal(t, map[string][]string{"Todo": {"a1", "a2"}, "Done": {"b0"}}, layout(s))
}

func TestApply_CardMoved(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		move func(f fixture) event.CardMoved
		want map[string][]string
	}{
		{
			name: "across_columns",
			move: func(f fixture) event.CardMoved {
				return event.CardMoved{CardID: f.a0.ID, FromColumnID: f.todo.ID, ToColumnID: f.done.ID, Position: 0}
			},
			want: map[string][]string{"Todo": {"a1", "a2"}, "Done": {"a0", "b0"}},
		},
		{
			name: "down_within_column",
			move: func(f fixture) event.CardMoved {
				return event.CardMoved{CardID: f.a0.ID, FromColumnID: f.todo.ID, ToColumnID: f.todo.ID, Position: 2}
			},
			want: map[string][]string{"Todo": {"a1", "a2", "a0"}, "Done": {"b0"}},
		},
		{
			name: "up_within_column",
			move: func(f fixture) event.CardMoved {
				return event.CardMoved{CardID: f.a2.ID, FromColumnID: f.todo.ID, ToColumnID: f.todo.ID, Position: 0}
			},
			want: map[string][]string{"Todo": {"a2", "a0", "a1"}, "Done": {"b0"}},
		},
		{
			name: "past_the_end_is_clamped",
			move: func(f fixture) event.CardMoved {
				return event.CardMoved{CardID: f.b0.ID, FromColumnID: f.done.ID, ToColumnID: f.todo.ID, Position: 9}
			},
			want: map[string][]string{"Todo": {"a0", "a1", "a2", "b0"}, "Done": {}},
		},
		{
			name: "unknown_card_is_ignored",
			move: func(f fixture) event.CardMoved {
				return event.CardMoved{CardID: uuid.New(), FromColumnID: f.todo.ID, ToColumnID: f.done.ID}
			},
			want: map[string][]string{"Todo": {"a0", "a1", "a2"}, "Done": {"b0"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture()
			s := f.store()
			move := tt.move(f)

			s.Apply(envelope(11, move))
			assert.Equal(t, tt.want, layout(s))

			// An unsequenced redelivery is computed from the current
			// placement and changes nothing.
			s.Apply(envelope(0, move))
			assert.Equal(t, tt.want, layout(s))
		})
	}
}

func TestApply_CreatedEntitiesAreUpserted(t *testing.T) {
	t.Parallel()

	f := newFixture()
	s := f.store()

	card := domain.Card{ID: uuid.New(), Title: "a3", ColumnID: f.todo.ID, Position: 3}
	s.Apply(envelope(0, event.CardCreated{Card: card}))
	s.Apply(envelope(0, event.CardCreated{Card: card}))
	assert.Equal(t, []string{"a0", "a1", "a2", "a3"}, layout(s)["Todo"])

	comment := domain.Comment{ID: uuid.New(), CardID: f.a0.ID, Body: "first"}
	s.Apply(envelope(0, event.CommentAdded{Comment: comment}))
	s.Apply(envelope(0, event.CommentAdded{Comment: comment}))
	comment.Body = "edited"
	s.Apply(envelope(0, event.CommentUpdated{Comment: comment}))

	got, ok := s.Card(f.a0.ID)
	require.True(t, ok)
	require.Len(t, got.Comments, 1)
	assert.Equal(t, "edited", got.Comments[0].Body)

	vote := domain.Vote{ID: uuid.New(), CardID: f.a0.ID, UserID: f.alice}
	s.Apply(envelope(0, event.VoteAdded{Vote: vote}))
	s.Apply(envelope(0, event.VoteAdded{Vote: vote}))
	got, _ = s.Card(f.a0.ID)
	assert.Len(t, got.Votes, 1)

	s.Apply(envelope(0, event.VoteRemoved{CardID: f.a0.ID, UserID: f.alice}))
	s.Apply(envelope(0, event.CommentDeleted{CommentID: comment.ID, CardID: f.a0.ID}))
	got, _ = s.Card(f.a0.ID)
	assert.Empty(t, got.Votes)
	assert.Empty(t, got.Comments)
}

func TestApply_CardUpdatedKeepsPlacement(t *testing.T) {
	t.Parallel()

	f := newFixture()
	s := f.store()

	updated := f.a1
	updated.Title = "renamed"
	updated.Position = 0
	s.Apply(envelope(11, event.CardUpdated{Card: updated}))

	assert.Equal(t, []string{"a0", "renamed", "a2"}, layout(s)["Todo"])
}

func TestApply_Polls(t *testing.T) {
	t.Parallel()

	f := newFixture()
	s := f.store()

	yes, no := uuid.New(), uuid.New()
	poll := domain.Poll{
		ID: uuid.New(), CardID: f.a0.ID, Question: "Ship it?", IsActive: true,
		Options: []domain.PollOption{{ID: yes, Text: "yes"}, {ID: no, Text: "no", Position: 1}},
	}
	s.Apply(envelope(0, event.PollCreated{Poll: poll}))
	s.Apply(envelope(0, event.PollCreated{Poll: poll}))

	bob := uuid.New()
	s.Apply(envelope(0, event.PollVoted{
		PollID: poll.ID, CardID: f.a0.ID,
		Votes:      []domain.PollVote{{ID: uuid.New(), PollID: poll.ID, OptionID: yes, UserID: bob}},
		Counts:     map[uuid.UUID]int{yes: 1},
		TotalVotes: 1,
	}))

	got, _ := s.Card(f.a0.ID)
	require.Len(t, got.Polls, 1)
	assert.Equal(t, 1, got.Polls[0].TotalVotes)
	assert.Equal(t, 1, got.Polls[0].Options[0].VoteCount)
	assert.Len(t, got.Polls[0].Options[0].Votes, 1)
	assert.Equal(t, 0, got.Polls[0].Options[1].VoteCount)
	assert.Empty(t, got.Polls[0].Options[1].Votes)

	s.Apply(envelope(0, event.PollDeleted{PollID: poll.ID, CardID: f.a0.ID}))
	got, _ = s.Card(f.a0.ID)
	assert.Empty(t, got.Polls)
}

func TestApply_SecretPollKeepsOnlyTallies(t *testing.T) {
	t.Parallel()

	f := newFixture()
	s := f.store()

	opt := uuid.New()
	poll := domain.Poll{
		ID: uuid.New(), CardID: f.b0.ID, Question: "Who?", IsSecret: true, IsActive: true,
		Options: []domain.PollOption{{ID: opt, Text: "me"}, {ID: uuid.New(), Text: "you", Position: 1}},
	}
	s.Apply(envelope(0, event.PollCreated{Poll: poll}))
	s.Apply(envelope(0, event.PollVoted{PollID: poll.ID, CardID: f.b0.ID, Counts: map[uuid.UUID]int{opt: 2}, TotalVotes: 2}))

	got, _ := s.Card(f.b0.ID)
	require.Len(t, got.Polls, 1)
	assert.Equal(t, 2, got.Polls[0].Options[0].VoteCount)
	assert.Empty(t, got.Polls[0].Options[0].Votes)
	assert.Equal(t, 2, got.Polls[0].TotalVotes)
}

func TestApply_Columns(t *testing.T) {
	t.Parallel()

	f := newFixture()
	s := f.store()

	review := domain.Column{ID: uuid.New(), Name: "Review", Position: 2}
	s.Apply(envelope(0, event.ColumnCreated{Column: review}))
	s.Apply(envelope(0, event.ColumnCreated{Column: review}))
	require.Len(t, s.Columns(), 3)

	s.Apply(envelope(0, event.ColumnsReordered{Columns: []domain.Column{
		{ID: review.ID, Position: 0}, {ID: f.todo.ID, Position: 1}, {ID: f.done.ID, Position: 2},
	}}))
	names := func() []string {
		var out []string
		for _, c := range s.Columns() {
			out = append(out, c.Name)
		}
		return out
	}
	assert.Equal(t, []string{"Review", "Todo", "Done"}, names())

	review.Name = "QA"
	review.Position = 0
	s.Apply(envelope(0, event.ColumnUpdated{Column: review}))
	s.Apply(envelope(0, event.ColumnDeleted{ColumnID: review.ID}))
	assert.Equal(t, []string{"Todo", "Done"}, names())
	for i, c := range s.Columns() {
		assert.Equal(t, i, c.Position)
	}
}

func TestApply_Presence(t *testing.T) {
	t.Parallel()

	s := newFixture().store()
	p := event.Presence{UserID: uuid.New(), Name: "Bob", ConnectionID: uuid.New()}

	s.Apply(envelope(11, event.PresenceJoined{Presence: p}))
	s.Apply(envelope(0, event.PresenceJoined{Presence: p}))
	assert.Equal(t, []event.Presence{p}, s.Online())

	s.Apply(envelope(12, event.PresenceLeft{Presence: p}))
	assert.Empty(t, s.Online())
}

func TestStore_ReadsAreCopies(t *testing.T) {
	t.Parallel()

	f := newFixture()
	s := f.store()

	got, _ := s.Card(f.a0.ID)
	got.Title = "mutated"
	got.Comments = append(got.Comments, domain.Comment{ID: uuid.New()})

	again, _ := s.Card(f.a0.ID)
	assert.Equal(t, "a0", again.Title)
	assert.Empty(t, again.Comments)
}

func TestMoveCard_AppliesOptimistically(t *testing.T) {
	t.Parallel()

	f := newFixture()
	release := make(chan struct{})
	m := &mockMutator{moveCardFn: func(context.Context, uuid.UUID, uuid.UUID, int) (*domain.Card, error) {
		<-release
		return &domain.Card{}, nil
	}}
	s := f.store(boardclient.WithMutator(m))

	result, err := s.MoveCard(context.Background(), f.a2.ID, f.done.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"Todo": {"a0", "a1"}, "Done": {"b0", "a2"}}, layout(s), "visible before the server answers")

	close(release)
	require.NoError(t, <-result)

	// The broadcast echo of the same move is a no-op.
	s.Apply(envelope(11, event.CardMoved{CardID: f.a2.ID, FromColumnID: f.todo.ID, ToColumnID: f.done.ID, Position: 1}))
	assert.Equal(t, map[string][]string{"Todo": {"a0", "a1"}, "Done": {"b0", "a2"}}, layout(s))
}

func TestMoveCard_Rejected(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		policy       boardclient.RevertPolicy
		touch        bool
		wantReverted bool
	}{
		{name: "reverts_untouched_card", policy: boardclient.RevertIfUntouched, wantReverted: true},
		{name: "keeps_card_touched_since", policy: boardclient.RevertIfUntouched, touch: true},
		{name: "leave_and_notify", policy: boardclient.LeaveAndNotify},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture()
			release := make(chan struct{})
			m := &mockMutator{moveCardFn: func(context.Context, uuid.UUID, uuid.UUID, int) (*domain.Card, error) {
				<-release
				return nil, &boardclient.APIError{Status: 400, Title: "Bad Request", Detail: "no"}
			}}

			var (
				mu    sync.Mutex
				notes []boardclient.Notification
			)
			s := f.store(
				boardclient.WithMutator(m),
				boardclient.WithRevertPolicy(tt.policy),
				boardclient.WithHooks(boardclient.Hooks{OnNotify: func(n boardclient.Notification) {
					mu.Lock()
					notes = append(notes, n)
					mu.Unlock()
				}}),
			)

			result, err := s.MoveCard(context.Background(), f.a0.ID, f.done.ID, 0)
			require.NoError(t, err)
			if tt.touch {
				renamed := f.a0
				renamed.Title = "a0"
				s.Apply(envelope(11, event.CardUpdated{Card: renamed}))
			}
			close(release)

			err = <-result
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrValidation)
			s.Wait()

			optimistic := map[string][]string{"Todo": {"a1", "a2"}, "Done": {"a0", "b0"}}
			original := map[string][]string{"Todo": {"a0", "a1", "a2"}, "Done": {"b0"}}
			if tt.wantReverted {
				assert.Equal(t, original, layout(s))
			} else {
				assert.Equal(t, optimistic, layout(s))
			}

			mu.Lock()
			defer mu.Unlock()
			require.Len(t, notes, 1)
			assert.Equal(t, boardclient.LevelError, notes[0].Level)
		})
	}
}

func TestMoveCard_Invalid(t *testing.T) {
	t.Parallel()

	f := newFixture()
	called := false
	m := &mockMutator{moveCardFn: func(context.Context, uuid.UUID, uuid.UUID, int) (*domain.Card, error) {
		called = true
		return nil, nil
	}}
	s := f.store(boardclient.WithMutator(m))

	_, err := s.MoveCard(context.Background(), f.a0.ID, f.todo.ID, 3)
	require.ErrorIs(t, err, domain.ErrValidation)
	_, err = s.MoveCard(context.Background(), f.a0.ID, uuid.New(), 0)
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = s.MoveCard(context.Background(), uuid.New(), f.todo.ID, 0)
	require.ErrorIs(t, err, domain.ErrNotFound)

	assert.False(t, called)
	assert.Equal(t, map[string][]string{"Todo": {"a0", "a1", "a2"}, "Done": {"b0"}}, layout(s))

	_, err = boardclient.NewStore().MoveCard(context.Background(), f.a0.ID, f.todo.ID, 0)
	assert.ErrorIs(t, err, boardclient.ErrNoMutator)
}

func TestAddComment_EchoDoesNotDuplicate(t *testing.T) {
	t.Parallel()

	f := newFixture()
	created := domain.Comment{ID: uuid.New(), CardID: f.b0.ID, Body: "nice", CreatedAt: time.Now()}
	m := &mockMutator{addCommentFn: func(_ context.Context, cardID uuid.UUID, body string) (*domain.Comment, error) {
		assert.Equal(t, f.b0.ID, cardID)
		assert.Equal(t, "nice", body)
		c := created
		return &c, nil
	}}

	var changes []event.Type
	s := f.store(boardclient.WithMutator(m), boardclient.WithHooks(boardclient.Hooks{
		OnChange: func(typ event.Type) { changes = append(changes, typ) },
	}))
	changes = nil

	_, err := s.AddComment(context.Background(), f.b0.ID, "nice")
	require.NoError(t, err)
	s.Apply(envelope(11, event.CommentAdded{Comment: created}))

	got, _ := s.Card(f.b0.ID)
	assert.Len(t, got.Comments, 1)
	assert.Equal(t, []event.Type{"", event.TypeCommentAdded}, changes)
}

func TestMutations_NotifyOnFailure(t *testing.T) {
	t.Parallel()

	f := newFixture()
	boom := errors.New("connection refused")
	m := &mockMutator{
		addCommentFn: func(context.Context, uuid.UUID, string) (*domain.Comment, error) { return nil, boom },
		addVoteFn:    func(context.Context, uuid.UUID) (*domain.Vote, error) { return nil, boom },
		createPollFn: func(context.Context, uuid.UUID, boardclient.PollInput) (*domain.Poll, error) { return nil, boom },
	}

	var notes []boardclient.Notification
	s := f.store(boardclient.WithMutator(m), boardclient.WithHooks(boardclient.Hooks{
		OnNotify: func(n boardclient.Notification) { notes = append(notes, n) },
	}))
	ctx := context.Background()

	_, err := s.AddComment(ctx, f.a0.ID, "x")
	require.ErrorIs(t, err, boom)
	_, err = s.AddVote(ctx, f.a0.ID)
	require.ErrorIs(t, err, boom)
	_, err = s.CreatePoll(ctx, f.a0.ID, boardclient.PollInput{Question: "q", Options: []string{"a", "b"}})
	require.ErrorIs(t, err, boom)

	require.Len(t, notes, 3)
	got, _ := s.Card(f.a0.ID)
	assert.Empty(t, got.Comments)
	assert.Empty(t, got.Votes)
	assert.Empty(t, got.Polls)
}
