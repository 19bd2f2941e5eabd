package v1_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	v1 "github.com/gosuda/ideaboard/internal/api/v1"
	"github.com/gosuda/ideaboard/internal/auth"
	"github.com/gosuda/ideaboard/internal/board"
	"github.com/gosuda/ideaboard/internal/domain"
	"github.com/gosuda/ideaboard/internal/event"
	"github.com/gosuda/ideaboard/internal/realtime"
	"github.com/gosuda/ideaboard/internal/server/middleware"
	"github.com/gosuda/ideaboard/internal/store/memory"
)

// ---------------------------------------------------------------------------
// Context helpers: inject the authenticated principal for *Ctx requests
// ---------------------------------------------------------------------------

func userCtx(u *domain.User) context.Context {
	return middleware.WithPrincipal(context.Background(), &auth.Principal{ID: u.ID, Name: u.Name, Email: u.Email})
}

// ---------------------------------------------------------------------------
// Board fixture: real service over the in-memory store
// ---------------------------------------------------------------------------

type recorder struct {
	mu     sync.Mutex
	events []event.Payload
}

func (r *recorder) Broadcast(_ context.Context, p event.Payload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, p)
}

func (r *recorder) types() []event.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]event.Type, len(r.events))
	for i, p := range r.events {
		out[i] = p.Type()
	}
	return out
}

type fixture struct {
	api    humatest.TestAPI
	store  *memory.Store
	events *recorder
	alice  *domain.User
	bob    *domain.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	_, api := humatest.New(t)
	store := memory.New()
	events := &recorder{}
	svc := board.NewService(store, events)

	f := &fixture{api: api, store: store, events: events}
	f.alice = f.user(t, "Alice")
	f.bob = f.user(t, "Bob")

	v1.RegisterBoardRoutes(api, svc, &mockStats{})
	v1.RegisterColumnRoutes(api, svc)
	v1.RegisterCardRoutes(api, svc)
	v1.RegisterCommentRoutes(api, svc)
	v1.RegisterPollRoutes(api, svc)
	return f
}

func (f *fixture) user(t *testing.T, name string) *domain.User {
	t.Helper()
	now := time.Now().UTC()
	u := &domain.User{ID: uuid.New(), Email: name + "@example.com", Name: name, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, f.store.Users().Create(context.Background(), u))
	return u
}

func (f *fixture) column(t *testing.T, name string) *domain.Column {
	t.Helper()
	now := time.Now().UTC()
	c := &domain.Column{ID: uuid.New(), Name: name, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, f.store.Columns().Create(context.Background(), c))
	return c
}

func (f *fixture) card(t *testing.T, owner *domain.User, col *domain.Column, title string) *domain.Card {
	t.Helper()
	now := time.Now().UTC()
	c := &domain.Card{ID: uuid.New(), Title: title, ColumnID: col.ID, CreatedBy: owner.ID, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, f.store.Cards().Create(context.Background(), c))
	return c
}

// ---------------------------------------------------------------------------
// Mock RealtimeStats
// ---------------------------------------------------------------------------

type mockStats struct {
	statsFunc func(ctx context.Context) (realtime.Stats, error)
}

func (m *mockStats) Stats(ctx context.Context) (realtime.Stats, error) {
	if m.statsFunc == nil {
		return realtime.Stats{}, nil
	}
	return m.statsFunc(ctx)
}

// ---------------------------------------------------------------------------
// Mock AuthService
// ---------------------------------------------------------------------------

type mockAuthService struct {
	registerFunc     func(ctx context.Context, email, password, name string) (*domain.User, error)
	loginFunc        func(ctx context.Context, email, password string) (string, string, error)
	refreshTokenFunc func(ctx context.Context, refreshToken string) (string, error)
	getUserFunc      func(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

func (m *mockAuthService) Register(ctx context.Context, email, password, name string) (*domain.User, error) {
	return m.registerFunc(ctx, email, password, name)
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) (accessToken, refreshToken string, err error) {
	return m.loginFunc(ctx, email, password)
}

func (m *mockAuthService) RefreshToken(ctx context.Context, refreshToken string) (string, error) {
	return m.refreshTokenFunc(ctx, refreshToken)
}

func (m *mockAuthService) GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return m.getUserFunc(ctx, id)
}
