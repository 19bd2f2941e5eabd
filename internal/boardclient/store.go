// Package boardclient keeps a live replica of the board on the client side.
//
// A Store holds one snapshot of columns and cards and merges into it both
// the caller's optimistic changes and the events pushed by the server. Every
// event is applied idempotently: created entities are upserted by id and
// moves are computed from the card's current placement, so a duplicate
// delivery or the echo of the caller's own mutation leaves the snapshot as
// it was. A Follower feeds the store from the realtime endpoints.
package boardclient

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/ideaboard/internal/board"
	"github.com/gosuda/ideaboard/internal/domain"
	"github.com/gosuda/ideaboard/internal/event"
	"github.com/gosuda/ideaboard/internal/ordering"
)

// ErrNoMutator is returned by mutating calls on a store built without one.
var ErrNoMutator = errors.New("boardclient: store has no mutator")

// RevertPolicy decides what happens to an optimistic move the server
// rejected.
type RevertPolicy int

const (
	// RevertIfUntouched puts the card back unless an authoritative event
	// changed it after the optimistic move.
	RevertIfUntouched RevertPolicy = iota
	// LeaveAndNotify keeps the optimistic placement until the next event
	// or reload corrects it.
	LeaveAndNotify
)

type Level int

const (
	LevelInfo Level = iota
	LevelError
)

// Notification is a transient, user-facing message.
type Notification struct {
	Level   Level
	Message string
	Err     error
}

// Hooks observe the store. They run outside the store lock.
type Hooks struct {
	// OnChange runs after the snapshot changed. typ is empty for a full load
	// and for local optimistic changes.
	OnChange func(typ event.Type)
	OnNotify func(Notification)
}

type Option func(*Store)

func WithMutator(m Mutator) Option { return func(s *Store) { s.mutator = m } }

func WithHooks(h Hooks) Option { return func(s *Store) { s.hooks = h } }

func WithRevertPolicy(p RevertPolicy) Option { return func(s *Store) { s.policy = p } }

type Store struct {
	mu      sync.RWMutex
	columns map[uuid.UUID]*domain.Column
	cards   map[uuid.UUID]*domain.Card
	online  map[uuid.UUID]event.Presence // by connection id

	// epoch and lastID are the cursor of the newest applied event. Ids are
	// only ordered within one epoch.
	epoch  uuid.UUID
	lastID uint64

	// touched counts authoritative changes per card so a failed optimistic
	// move can tell whether it is still the latest word on the card.
	touched map[uuid.UUID]uint64

	mutator Mutator
	hooks   Hooks
	policy  RevertPolicy
	wg      sync.WaitGroup
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		columns: make(map[uuid.UUID]*domain.Column),
		cards:   make(map[uuid.UUID]*domain.Card),
		online:  make(map[uuid.UUID]event.Presence),
		touched: make(map[uuid.UUID]uint64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load replaces the snapshot. at is the cursor of the newest event the
// snapshot is known to include; later events still apply.
func (s *Store) Load(snap *board.Snapshot, at event.Cursor) {
	s.mu.Lock()
	s.columns = make(map[uuid.UUID]*domain.Column, len(snap.Columns))
	for _, c := range snap.Columns {
		col := *c
		s.columns[col.ID] = &col
	}
	s.cards = make(map[uuid.UUID]*domain.Card, len(snap.Cards))
	touched := make(map[uuid.UUID]uint64, len(snap.Cards))
	for _, c := range snap.Cards {
		card := cloneCard(c)
		s.cards[card.ID] = card
		touched[card.ID] = s.touched[card.ID] + 1
	}
	s.touched = touched
	s.epoch, s.lastID = at.Epoch, at.ID
	s.mu.Unlock()

	s.changed("")
}

// Cursor is the resume point to hand the server on reconnect.
func (s *Store) Cursor() event.Cursor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return event.Cursor{Epoch: s.epoch, ID: s.lastID}
}

// LastEventID is the id part of Cursor.
func (s *Store) LastEventID() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastID
}

// Apply merges an authoritative event. It reports false when the event was
// already applied, judged by its id within the current epoch. An event from
// another epoch is applied and moves the store onto that epoch.
func (s *Store) Apply(env event.Envelope) bool {
	s.mu.Lock()
	if env.ID != 0 {
		if env.Epoch == s.epoch && env.ID <= s.lastID {
			s.mu.Unlock()
			return false
		}
		s.epoch, s.lastID = env.Epoch, env.ID
	}
	s.apply(env.Payload)
	s.mu.Unlock()

	s.changed(env.Type)
	return true
}

func (s *Store) apply(p event.Payload) {
	switch p := p.(type) {
	case event.CardCreated:
		s.upsertCard(p.Card)
	case event.CardUpdated:
		s.upsertCard(p.Card)
	case event.CardMoved:
		if _, ok := s.cards[p.CardID]; ok {
			s.moveCard(p.CardID, p.ToColumnID, p.Position)
			s.touched[p.CardID]++
		}
	case event.CardDeleted:
		s.removeCard(p.CardID)

	case event.VoteAdded:
		if card, ok := s.cards[p.CardID]; ok {
			card.Votes = upsertVote(card.Votes, p.Vote)
		}
	case event.VoteRemoved:
		if card, ok := s.cards[p.CardID]; ok {
			card.Votes = removeWhere(card.Votes, func(v domain.Vote) bool { return v.UserID == p.UserID })
		}

	case event.CommentAdded:
		s.upsertComment(p.Comment)
	case event.CommentUpdated:
		s.upsertComment(p.Comment)
	case event.CommentDeleted:
		if card, ok := s.cards[p.CardID]; ok {
			card.Comments = removeWhere(card.Comments, func(c domain.Comment) bool { return c.ID == p.CommentID })
		}

	case event.ColumnCreated:
		s.upsertColumn(p.Column)
	case event.ColumnUpdated:
		s.upsertColumn(p.Column)
	case event.ColumnDeleted:
		s.removeColumn(p.ColumnID)
	case event.ColumnsReordered:
		for _, c := range p.Columns {
			if col, ok := s.columns[c.ID]; ok {
				col.Position = c.Position
			}
		}

	case event.PollCreated:
		s.upsertPoll(p.Poll)
	case event.PollUpdated:
		s.upsertPoll(p.Poll)
	case event.PollDeleted:
		if card, ok := s.cards[p.CardID]; ok {
			card.Polls = removeWhere(card.Polls, func(poll domain.Poll) bool { return poll.ID == p.PollID })
		}
	case event.PollVoted:
		s.applyPollVotes(p)

	case event.PresenceJoined:
		s.online[p.ConnectionID] = p.Presence
	case event.PresenceLeft:
		delete(s.online, p.ConnectionID)
	}
}

// SetOnline replaces the presence list, as returned by a presence query.
func (s *Store) SetOnline(users []event.Presence) {
	s.mu.Lock()
	s.online = make(map[uuid.UUID]event.Presence, len(users))
	for _, p := range users {
		s.online[p.ConnectionID] = p
	}
	s.mu.Unlock()
	s.changed("")
}

// ---------------------------------------------------------------------------
// Reads
// ---------------------------------------------------------------------------

// Columns returns the columns in board order.
func (s *Store) Columns() []domain.Column {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedColumns()
}

func (s *Store) sortedColumns() []domain.Column {
	out := make([]domain.Column, 0, len(s.columns))
	for _, c := range s.columns {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

// Cards returns every card ordered by column then position.
func (s *Store) Cards() []domain.Card {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rank := make(map[uuid.UUID]int, len(s.columns))
	for _, c := range s.columns {
		rank[c.ID] = c.Position
	}
	out := make([]domain.Card, 0, len(s.cards))
	for _, c := range s.cards {
		out = append(out, *cloneCard(c))
	}
	sort.Slice(out, func(i, j int) bool {
		ri, rj := rank[out[i].ColumnID], rank[out[j].ColumnID]
		if ri != rj {
			return ri < rj
		}
		if out[i].ColumnID != out[j].ColumnID {
			return out[i].ColumnID.String() < out[j].ColumnID.String()
		}
		return out[i].Position < out[j].Position
	})
	return out
}

// Column returns the cards of one column in position order.
func (s *Store) Column(id uuid.UUID) []domain.Card {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Card, 0)
	for _, c := range s.cards {
		if c.ColumnID == id {
			out = append(out, *cloneCard(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

func (s *Store) Card(id uuid.UUID) (domain.Card, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cards[id]
	if !ok {
		return domain.Card{}, false
	}
	return *cloneCard(c), true
}

// Online lists the users with a live bidirectional connection, one entry per
// connection.
func (s *Store) Online() []event.Presence {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]event.Presence, 0, len(s.online))
	for _, p := range s.online {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ConnectionID.String() < out[j].ConnectionID.String()
	})
	return out
}

// ---------------------------------------------------------------------------
// Local mutations
// ---------------------------------------------------------------------------

// MoveCard moves a card locally at once and sends the move to the server in
// the background. The returned channel yields the server's verdict. When the
// server rejects the move, a notification is raised and the card is put back
// according to the store's RevertPolicy.
func (s *Store) MoveCard(ctx context.Context, id, toColumnID uuid.UUID, position int) (<-chan error, error) {
	if s.mutator == nil {
		return nil, ErrNoMutator
	}

	s.mu.Lock()
	card, ok := s.cards[id]
	if !ok {
		s.mu.Unlock()
		return nil, domain.Errorf(domain.ErrNotFound, "card not found")
	}
	if _, ok := s.columns[toColumnID]; !ok {
		s.mu.Unlock()
		return nil, domain.Errorf(domain.ErrNotFound, "column not found")
	}
	from := ordering.Placement{Scope: card.ColumnID, Position: card.Position}
	if _, err := ordering.Move(from, ordering.Placement{Scope: toColumnID, Position: position}, s.count(toColumnID)); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.moveCard(id, toColumnID, position)
	seen := s.touched[id]
	s.mu.Unlock()
	s.changed("")

	result := make(chan error, 1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_, err := s.mutator.MoveCard(ctx, id, toColumnID, position)
		if err != nil {
			s.rejectMove(id, from, seen, err)
		}
		result <- err
	}()
	return result, nil
}

func (s *Store) rejectMove(id uuid.UUID, from ordering.Placement, seen uint64, cause error) {
	reverted := false
	s.mu.Lock()
	if s.policy == RevertIfUntouched && s.touched[id] == seen {
		if _, ok := s.columns[from.Scope]; ok {
			s.moveCard(id, from.Scope, from.Position)
			reverted = true
		}
	}
	s.mu.Unlock()

	log.Warn().Err(cause).Str("card_id", id.String()).Bool("reverted", reverted).Msg("boardclient: move rejected")
	if reverted {
		s.changed("")
	}
	s.notify(Notification{Level: LevelError, Message: "Could not move the card", Err: cause})
}

// AddComment posts a comment and merges the result. The broadcast echo of
// the same comment then replaces it in place.
func (s *Store) AddComment(ctx context.Context, cardID uuid.UUID, body string) (*domain.Comment, error) {
	if s.mutator == nil {
		return nil, ErrNoMutator
	}
	c, err := s.mutator.AddComment(ctx, cardID, body)
	if err != nil {
		s.notify(Notification{Level: LevelError, Message: "Could not add the comment", Err: err})
		return nil, fmt.Errorf("boardclient.Store.AddComment: %w", err)
	}
	s.mu.Lock()
	s.upsertComment(*c)
	s.mu.Unlock()
	s.changed("")
	return c, nil
}

// AddVote votes on a card and merges the result.
func (s *Store) AddVote(ctx context.Context, cardID uuid.UUID) (*domain.Vote, error) {
	if s.mutator == nil {
		return nil, ErrNoMutator
	}
	v, err := s.mutator.AddVote(ctx, cardID)
	if err != nil {
		s.notify(Notification{Level: LevelError, Message: "Could not vote", Err: err})
		return nil, fmt.Errorf("boardclient.Store.AddVote: %w", err)
	}
	s.mu.Lock()
	if card, ok := s.cards[cardID]; ok {
		card.Votes = upsertVote(card.Votes, *v)
	}
	s.mu.Unlock()
	s.changed("")
	return v, nil
}

// CreatePoll adds a poll to a card and merges the result.
func (s *Store) CreatePoll(ctx context.Context, cardID uuid.UUID, in PollInput) (*domain.Poll, error) {
	if s.mutator == nil {
		return nil, ErrNoMutator
	}
	p, err := s.mutator.CreatePoll(ctx, cardID, in)
	if err != nil {
		s.notify(Notification{Level: LevelError, Message: "Could not create the poll", Err: err})
		return nil, fmt.Errorf("boardclient.Store.CreatePoll: %w", err)
	}
	s.mu.Lock()
	s.upsertPoll(*p)
	s.mu.Unlock()
	s.changed("")
	return p, nil
}

// Wait blocks until every background mutation has finished.
func (s *Store) Wait() {
	s.wg.Wait()
}

// ---------------------------------------------------------------------------
// Snapshot edits, called with mu held
// ---------------------------------------------------------------------------

func (s *Store) count(columnID uuid.UUID) int {
	n := 0
	for _, c := range s.cards {
		if c.ColumnID == columnID {
			n++
		}
	}
	return n
}

func (s *Store) upsertCard(c domain.Card) {
	s.touched[c.ID]++
	if old, ok := s.cards[c.ID]; ok {
		next := cloneCard(&c)
		// Card payloads carry the server's placement; a pending local move is
		// kept until its card.moved arrives.
		next.ColumnID, next.Position = old.ColumnID, old.Position
		s.cards[c.ID] = next
		return
	}
	if c.Position > s.count(c.ColumnID) {
		c.Position = s.count(c.ColumnID)
	}
	s.shift(ordering.Shift{Scope: c.ColumnID, From: c.Position, To: ordering.Unbounded, Delta: 1})
	s.cards[c.ID] = cloneCard(&c)
}

// moveCard places a card at position within toColumnID, computed from its
// current placement so repeating a move is a no-op. Out of range positions
// are clamped to the end of the column.
func (s *Store) moveCard(id, toColumnID uuid.UUID, position int) {
	card, ok := s.cards[id]
	if !ok {
		return
	}

	n := s.count(toColumnID)
	if card.ColumnID != toColumnID {
		n++
	}
	if position > n-1 {
		position = n - 1
	}
	if position < 0 {
		position = 0
	}

	from := ordering.Placement{Scope: card.ColumnID, Position: card.Position}
	to := ordering.Placement{Scope: toColumnID, Position: position}
	destCount := n
	if card.ColumnID != toColumnID {
		destCount = n - 1
	}
	plan, err := ordering.Move(from, to, destCount)
	if err != nil {
		log.Warn().Err(err).Str("card_id", id.String()).Msg("boardclient: unplaceable move")
		return
	}
	for _, sh := range plan.Shifts {
		s.shiftExcept(sh, id)
	}
	card.ColumnID, card.Position = toColumnID, position
}

func (s *Store) removeCard(id uuid.UUID) {
	card, ok := s.cards[id]
	if !ok {
		return
	}
	delete(s.cards, id)
	delete(s.touched, id)
	for _, sh := range ordering.Remove(ordering.Placement{Scope: card.ColumnID, Position: card.Position}).Shifts {
		s.shift(sh)
	}
}

func (s *Store) shift(sh ordering.Shift) {
	s.shiftExcept(sh, uuid.Nil)
}

func (s *Store) shiftExcept(sh ordering.Shift, skip uuid.UUID) {
	for id, c := range s.cards {
		if id != skip {
			c.Position = sh.Apply(c.ColumnID, c.Position)
		}
	}
}

func (s *Store) upsertColumn(c domain.Column) {
	if col, ok := s.columns[c.ID]; ok {
		*col = c
		return
	}
	s.columns[c.ID] = &c
}

func (s *Store) removeColumn(id uuid.UUID) {
	col, ok := s.columns[id]
	if !ok {
		return
	}
	delete(s.columns, id)
	for _, c := range s.columns {
		if c.Position > col.Position {
			c.Position--
		}
	}
	for cid, card := range s.cards {
		if card.ColumnID == id {
			delete(s.cards, cid)
		}
	}
}

func (s *Store) upsertComment(c domain.Comment) {
	card, ok := s.cards[c.CardID]
	if !ok {
		return
	}
	for i := range card.Comments {
		if card.Comments[i].ID == c.ID {
			card.Comments[i] = c
			return
		}
	}
	card.Comments = append(card.Comments, c)
}

func (s *Store) upsertPoll(p domain.Poll) {
	card, ok := s.cards[p.CardID]
	if !ok {
		return
	}
	p = clonePoll(p)
	for i := range card.Polls {
		if card.Polls[i].ID == p.ID {
			card.Polls[i] = p
			return
		}
	}
	card.Polls = append(card.Polls, p)
}

// applyPollVotes replaces a poll's votes and tallies. Secret polls arrive
// without voter identities; only their counts change.
func (s *Store) applyPollVotes(p event.PollVoted) {
	card, ok := s.cards[p.CardID]
	if !ok {
		return
	}
	for i := range card.Polls {
		poll := &card.Polls[i]
		if poll.ID != p.PollID {
			continue
		}
		byOption := make(map[uuid.UUID][]domain.PollVote)
		for _, v := range p.Votes {
			byOption[v.OptionID] = append(byOption[v.OptionID], v)
		}
		for j := range poll.Options {
			opt := &poll.Options[j]
			if !poll.IsSecret {
				opt.Votes = nonNil(byOption[opt.ID])
			}
			opt.VoteCount = p.Counts[opt.ID]
		}
		poll.TotalVotes = p.TotalVotes
		return
	}
}

func upsertVote(votes []domain.Vote, v domain.Vote) []domain.Vote {
	for i := range votes {
		if votes[i].ID == v.ID || votes[i].UserID == v.UserID {
			votes[i] = v
			return votes
		}
	}
	return append(votes, v)
}

func removeWhere[T any](items []T, match func(T) bool) []T {
	out := items[:0]
	for _, it := range items {
		if !match(it) {
			out = append(out, it)
		}
	}
	return out
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func cloneCard(c *domain.Card) *domain.Card {
	out := *c
	out.Votes = append([]domain.Vote{}, c.Votes...)
	out.Comments = append([]domain.Comment{}, c.Comments...)
	out.Polls = make([]domain.Poll, len(c.Polls))
	for i, p := range c.Polls {
		out.Polls[i] = clonePoll(p)
	}
	return &out
}

func clonePoll(p domain.Poll) domain.Poll {
	opts := make([]domain.PollOption, len(p.Options))
	for i, o := range p.Options {
		o.Votes = append([]domain.PollVote{}, o.Votes...)
		opts[i] = o
	}
	p.Options = opts
	return p
}

// ---------------------------------------------------------------------------
// Hooks
// ---------------------------------------------------------------------------

func (s *Store) changed(typ event.Type) {
	if s.hooks.OnChange != nil {
		s.hooks.OnChange(typ)
	}
}

func (s *Store) notify(n Notification) {
	if s.hooks.OnNotify != nil {
		s.hooks.OnNotify(n)
	}
}
