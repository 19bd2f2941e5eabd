package boardclient_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/ideaboard/internal/boardclient"
	"github.com/gosuda/ideaboard/internal/domain"
)

func TestNewClient_RejectsBadURL(t *testing.T) {
	t.Parallel()

	_, err := boardclient.NewClient(boardclient.ClientConfig{BaseURL: "localhost:8080"})
	require.Error(t, err)

	c, err := boardclient.NewClient(boardclient.ClientConfig{BaseURL: "http://localhost:8080/"})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", c.BaseURL())
}

func TestClient_Requests(t *testing.T) {
	t.Parallel()

	cardID := uuid.New()
	colID := uuid.New()

	var got struct {
		method, path, auth, contentType string
		body                            map[string]any
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.method, got.path = r.Method, r.URL.Path
		got.auth = r.Header.Get("Authorization")
		got.contentType = r.Header.Get("Content-Type")
		got.body = nil
		if raw, _ := io.ReadAll(r.Body); len(raw) > 0 {
			_ = json.Unmarshal(raw, &got.body)
		}

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/cards/" + cardID.String() + "/move":
			_ = json.NewEncoder(w).Encode(domain.Card{ID: cardID, ColumnID: colID, Position: 2})
		case "/api/v1/cards/" + cardID.String() + "/votes":
			if r.Method == http.MethodDelete {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(domain.Vote{ID: uuid.New(), CardID: cardID})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)

	c, err := boardclient.NewClient(boardclient.ClientConfig{BaseURL: srv.URL, Token: "tok-1"})
	require.NoError(t, err)
	ctx := context.Background()

	card, err := c.MoveCard(ctx, cardID, colID, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, card.Position)
	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "Bearer tok-1", got.auth)
	assert.Equal(t, "application/json", got.contentType)
	assert.Equal(t, map[string]any{"columnId": colID.String(), "position": float64(2)}, got.body)

	c.SetToken("tok-2")
	vote, err := c.AddVote(ctx, cardID)
	require.NoError(t, err)
	assert.Equal(t, cardID, vote.CardID)
	assert.Equal(t, "Bearer tok-2", got.auth)
	assert.Empty(t, got.contentType)

	require.NoError(t, c.RemoveVote(ctx, cardID))
	assert.Equal(t, http.MethodDelete, got.method)
}

func TestClient_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		status   int
		body     string
		wantKind error
		wantText string
	}{
		{
			name:     "huma_validation",
			status:   http.StatusBadRequest,
			body:     `{"title":"Bad Request","status":400,"detail":"position 9 out of range 0..2"}`,
			wantKind: domain.ErrValidation,
			wantText: "position 9 out of range 0..2",
		},
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"title":"Unauthorized","status":401}`, wantKind: domain.ErrUnauthorized},
		{name: "forbidden", status: http.StatusForbidden, wantKind: domain.ErrForbidden},
		{name: "not_found_plain_text", status: http.StatusNotFound, body: "404 page not found", wantKind: domain.ErrNotFound},
		{name: "server_error", status: http.StatusInternalServerError, body: `{"title":"Internal Server Error","status":500}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			t.Cleanup(srv.Close)

			c, err := boardclient.NewClient(boardclient.ClientConfig{BaseURL: srv.URL})
			require.NoError(t, err)

			_, err = c.Board(context.Background())
			require.Error(t, err)
			assert.True(t, boardclient.IsStatus(err, tt.status))

			var apiErr *boardclient.APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.Status)
			if tt.wantKind != nil {
				assert.ErrorIs(t, err, tt.wantKind)
			} else {
				assert.NoError(t, apiErr.Unwrap())
			}
			if tt.wantText != "" {
				assert.Contains(t, err.Error(), tt.wantText)
			}
		})
	}
}
