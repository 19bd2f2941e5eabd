package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/ideaboard/internal/auth"
	"github.com/gosuda/ideaboard/internal/domain"
)

// --- configurable mock UserRepository for service tests ---

type mockServiceRepo struct {
	getByEmailUser *domain.User
	getByEmailErr  error

	getByIDUser *domain.User
	getByIDErr  error

	createErr   error
	createdUser *domain.User // captures the user passed to Create.
}

func (m *mockServiceRepo) Create(_ context.Context, u *domain.User) error {
	m.createdUser = u
	return m.createErr
}

func (m *mockServiceRepo) GetByID(context.Context, uuid.UUID) (*domain.User, error) {
	return m.getByIDUser, m.getByIDErr
}

func (m *mockServiceRepo) GetByEmail(context.Context, string) (*domain.User, error) {
	return m.getByEmailUser, m.getByEmailErr
}

// --- test constants ---

const (
	testJWTSecret = "test-secret-key-for-unit-tests"
	testEmail     = "alice@example.com"
	testPassword  = "correct-horse-battery-staple"
	testUserName  = "Alice"
)

var (
	testAccessTTL  = 15 * time.Minute
	testRefreshTTL = 7 * 24 * time.Hour
)

func newTestService(repo *mockServiceRepo) *auth.Service {
	return auth.NewService(repo, testJWTSecret, testAccessTTL, testRefreshTTL)
}

// --- Register tests ---

func TestRegister(t *testing.T) {
	t.Parallel()

	t.Run("happy path creates user with correct fields", func(t *testing.T) {
		t.Parallel()

		repo := &mockServiceRepo{getByEmailErr: domain.ErrNotFound}
		svc := newTestService(repo)

		user, err := svc.Register(t.Context(), "  Alice@Example.com ", testPassword, " "+testUserName+" ")

		require.NoError(t, err)
		require.NotNil(t, user)
		assert.Equal(t, testEmail, user.Email, "email must be normalized")
		assert.Equal(t, testUserName, user.Name)
		assert.NotEqual(t, uuid.Nil, user.ID)
		assert.False(t, user.CreatedAt.IsZero())
		assert.Same(t, user, repo.createdUser)
	})

	t.Run("password is hashed not stored as plaintext", func(t *testing.T) {
		t.Parallel()

		repo := &mockServiceRepo{getByEmailErr: domain.ErrNotFound}
		svc := newTestService(repo)

		user, err := svc.Register(t.Context(), testEmail, testPassword, testUserName)

		require.NoError(t, err)
		assert.NotEqual(t, testPassword, user.PasswordHash)
		assert.Contains(t, user.PasswordHash, "$", "argon2id hash must contain salt$hash separator")
	})

	t.Run("invalid input is a validation error", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			name     string
			email    string
			password string
			userName string
		}{
			{name: "bad email", email: "not-an-email", password: testPassword, userName: testUserName},
			{name: "short password", email: testEmail, password: "short", userName: testUserName},
			{name: "blank name", email: testEmail, password: testPassword, userName: "   "},
		}
		for _, tc := range tests {
			repo := &mockServiceRepo{getByEmailErr: domain.ErrNotFound}
			_, err := newTestService(repo).Register(t.Context(), tc.email, tc.password, tc.userName)
			require.ErrorIs(t, err, domain.ErrValidation, tc.name)
			assert.Nil(t, repo.createdUser, tc.name)
		}
	})

	t.Run("user already exists returns ErrUserAlreadyExists", func(t *testing.T) {
		t.Parallel()

		repo := &mockServiceRepo{getByEmailUser: &domain.User{ID: uuid.New(), Email: testEmail}}
		svc := newTestService(repo)

		user, err := svc.Register(t.Context(), testEmail, testPassword, testUserName)

		assert.Nil(t, user)
		assert.ErrorIs(t, err, auth.ErrUserAlreadyExists)
	})

	t.Run("repo conflict on create maps to ErrUserAlreadyExists", func(t *testing.T) {
		t.Parallel()

		repo := &mockServiceRepo{getByEmailErr: domain.ErrNotFound, createErr: domain.ErrConflict}
		_, err := newTestService(repo).Register(t.Context(), testEmail, testPassword, testUserName)

		assert.ErrorIs(t, err, auth.ErrUserAlreadyExists)
	})

	t.Run("repo Create error is propagated", func(t *testing.T) {
		t.Parallel()

		repoErr := errors.New("database connection refused")
		repo := &mockServiceRepo{getByEmailErr: domain.ErrNotFound, createErr: repoErr}

		user, err := newTestService(repo).Register(t.Context(), testEmail, testPassword, testUserName)

		assert.Nil(t, user)
		assert.ErrorIs(t, err, repoErr)
	})
}

// --- Login tests ---

func TestLogin(t *testing.T) {
	t.Parallel()

	registerAndGetUser := func(t *testing.T) *domain.User {
		t.Helper()

		repo := &mockServiceRepo{getByEmailErr: domain.ErrNotFound}
		_, err := newTestService(repo).Register(t.Context(), testEmail, testPassword, testUserName)
		require.NoError(t, err)
		require.NotNil(t, repo.createdUser)
		return repo.createdUser
	}

	t.Run("happy path returns two valid tokens", func(t *testing.T) {
		t.Parallel()

		registered := registerAndGetUser(t)
		svc := newTestService(&mockServiceRepo{getByEmailUser: registered})

		accessToken, refreshToken, err := svc.Login(t.Context(), testEmail, testPassword)

		require.NoError(t, err)
		assert.NotEqual(t, accessToken, refreshToken)

		claims, err := auth.ValidateToken(testJWTSecret, accessToken)
		require.NoError(t, err)
		assert.Equal(t, registered.ID.String(), claims.UserID)
		assert.Equal(t, testUserName, claims.Name)
		assert.Equal(t, "access", claims.TokenType)

		claims, err = auth.ValidateToken(testJWTSecret, refreshToken)
		require.NoError(t, err)
		assert.Equal(t, "refresh", claims.TokenType)
	})

	t.Run("wrong password returns ErrInvalidCredentials", func(t *testing.T) {
		t.Parallel()

		registered := registerAndGetUser(t)
		svc := newTestService(&mockServiceRepo{getByEmailUser: registered})

		accessToken, refreshToken, err := svc.Login(t.Context(), testEmail, "wrong-password")

		assert.Empty(t, accessToken)
		assert.Empty(t, refreshToken)
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	})

	t.Run("user not found returns ErrInvalidCredentials", func(t *testing.T) {
		t.Parallel()

		svc := newTestService(&mockServiceRepo{getByEmailErr: domain.ErrNotFound})

		_, _, err := svc.Login(t.Context(), "nobody@example.com", testPassword)

		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	})

	t.Run("corrupt stored hash never verifies", func(t *testing.T) {
		t.Parallel()

		user := &domain.User{ID: uuid.New(), Email: testEmail, PasswordHash: "zz$zz"}
		svc := newTestService(&mockServiceRepo{getByEmailUser: user})

		_, _, err := svc.Login(t.Context(), testEmail, testPassword)

		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	})
}

// --- RefreshToken tests ---

func TestRefreshToken(t *testing.T) {
	t.Parallel()

	user := &domain.User{ID: uuid.New(), Name: testUserName, Email: testEmail}

	t.Run("happy path issues new access token from valid refresh token", func(t *testing.T) {
		t.Parallel()

		svc := newTestService(&mockServiceRepo{getByIDUser: user})
		refreshToken, err := auth.IssueRefreshToken(testJWTSecret, user, testRefreshTTL)
		require.NoError(t, err)

		newAccess, err := svc.RefreshToken(t.Context(), refreshToken)
		require.NoError(t, err)

		claims, err := auth.ValidateToken(testJWTSecret, newAccess)
		require.NoError(t, err)
		assert.Equal(t, "access", claims.TokenType)
		assert.Equal(t, user.ID.String(), claims.UserID)
	})

	t.Run("uses current name from repo not stale token name", func(t *testing.T) {
		t.Parallel()

		renamed := &domain.User{ID: user.ID, Name: "Alice Liddell", Email: testEmail}
		svc := newTestService(&mockServiceRepo{getByIDUser: renamed})

		refreshToken, err := auth.IssueRefreshToken(testJWTSecret, user, testRefreshTTL)
		require.NoError(t, err)

		newAccess, err := svc.RefreshToken(t.Context(), refreshToken)
		require.NoError(t, err)

		claims, err := auth.ValidateToken(testJWTSecret, newAccess)
		require.NoError(t, err)
		assert.Equal(t, "Alice Liddell", claims.Name)
	})

	t.Run("access token rejected with ErrInvalidToken", func(t *testing.T) {
		t.Parallel()

		accessToken, err := auth.IssueAccessToken(testJWTSecret, user, testAccessTTL)
		require.NoError(t, err)

		newAccess, err := newTestService(&mockServiceRepo{}).RefreshToken(t.Context(), accessToken)

		assert.Empty(t, newAccess)
		assert.ErrorIs(t, err, auth.ErrInvalidToken)
	})

	t.Run("expired token returns error", func(t *testing.T) {
		t.Parallel()

		expired, err := auth.IssueRefreshToken(testJWTSecret, user, -1*time.Second)
		require.NoError(t, err)

		_, err = newTestService(&mockServiceRepo{}).RefreshToken(t.Context(), expired)
		assert.ErrorIs(t, err, auth.ErrInvalidToken)
	})

	t.Run("user deleted after token issued returns ErrUserNotFound", func(t *testing.T) {
		t.Parallel()

		svc := newTestService(&mockServiceRepo{getByIDErr: domain.ErrNotFound})
		refreshToken, err := auth.IssueRefreshToken(testJWTSecret, user, testRefreshTTL)
		require.NoError(t, err)

		_, err = svc.RefreshToken(t.Context(), refreshToken)
		assert.ErrorIs(t, err, auth.ErrUserNotFound)
	})
}

// --- GetUser tests ---

func TestGetUser(t *testing.T) {
	t.Parallel()

	userID := uuid.New()

	t.Run("happy path returns user", func(t *testing.T) {
		t.Parallel()

		expected := &domain.User{ID: userID, Email: testEmail, Name: testUserName}
		user, err := newTestService(&mockServiceRepo{getByIDUser: expected}).GetUser(t.Context(), userID)

		require.NoError(t, err)
		assert.Equal(t, expected, user)
	})

	t.Run("missing user maps to ErrUserNotFound", func(t *testing.T) {
		t.Parallel()

		user, err := newTestService(&mockServiceRepo{getByIDErr: domain.ErrNotFound}).GetUser(t.Context(), userID)

		assert.Nil(t, user)
		assert.ErrorIs(t, err, auth.ErrUserNotFound)
	})

	t.Run("other repo errors propagate", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("connection reset")
		user, err := newTestService(&mockServiceRepo{getByIDErr: boom}).GetUser(t.Context(), userID)

		assert.Nil(t, user)
		assert.ErrorIs(t, err, boom)
	})
}
