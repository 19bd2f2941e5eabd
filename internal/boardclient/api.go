package boardclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gosuda/ideaboard/internal/board"
	"github.com/gosuda/ideaboard/internal/domain"
	"github.com/gosuda/ideaboard/internal/realtime"
)

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 4 << 20

// Mutator performs board mutations on the server. *Client implements it.
type Mutator interface {
	MoveCard(ctx context.Context, id, toColumnID uuid.UUID, position int) (*domain.Card, error)
	AddComment(ctx context.Context, cardID uuid.UUID, body string) (*domain.Comment, error)
	AddVote(ctx context.Context, cardID uuid.UUID) (*domain.Vote, error)
	CreatePoll(ctx context.Context, cardID uuid.UUID, in PollInput) (*domain.Poll, error)
}

type PollInput struct {
	Question      string     `json:"question"`
	Options       []string   `json:"options"`
	AllowMultiple bool       `json:"allowMultiple,omitempty"`
	IsSecret      bool       `json:"isSecret,omitempty"`
	EndsAt        *time.Time `json:"endsAt,omitempty"`
}

// APIError is a non-2xx response. It unwraps to the domain error matching
// its status so callers can test it with errors.Is.
type APIError struct {
	Status int    `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("ideaboard: %d %s: %s", e.Status, e.Title, e.Detail)
	}
	return fmt.Sprintf("ideaboard: %d %s", e.Status, e.Title)
}

func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return domain.ErrValidation
	case http.StatusUnauthorized:
		return domain.ErrUnauthorized
	case http.StatusForbidden:
		return domain.ErrForbidden
	case http.StatusNotFound:
		return domain.ErrNotFound
	case http.StatusConflict:
		return domain.ErrConflict
	default:
		return nil
	}
}

type ClientConfig struct {
	// BaseURL is the server root, e.g. "http://localhost:8080".
	BaseURL string
	// Token is the bearer access token. Empty for anonymous reads.
	Token string
	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// Client speaks the board's REST API under /api/v1.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

func NewClient(cfg ClientConfig) (*Client, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		return nil, fmt.Errorf("boardclient: base URL must be http or https (got %q)", cfg.BaseURL)
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{baseURL: base, httpClient: hc, token: cfg.Token}, nil
}

// SetToken replaces the bearer token, e.g. after a refresh.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// BaseURL returns the server root the client was built with.
func (c *Client) BaseURL() string { return c.baseURL }

// Board fetches the full board snapshot.
func (c *Client) Board(ctx context.Context) (*board.Snapshot, error) {
	var snap board.Snapshot
	if err := c.do(ctx, http.MethodGet, "/board", nil, &snap); err != nil {
		return nil, fmt.Errorf("boardclient.Client.Board: %w", err)
	}
	return &snap, nil
}

// Stats fetches the server's realtime statistics.
func (c *Client) Stats(ctx context.Context) (*realtime.Stats, error) {
	var st realtime.Stats
	if err := c.do(ctx, http.MethodGet, "/realtime/stats", nil, &st); err != nil {
		return nil, fmt.Errorf("boardclient.Client.Stats: %w", err)
	}
	return &st, nil
}

func (c *Client) CreateCard(ctx context.Context, columnID uuid.UUID, title, description string) (*domain.Card, error) {
	body := map[string]any{"columnId": columnID, "title": title, "description": description}
	var card domain.Card
	if err := c.do(ctx, http.MethodPost, "/cards", body, &card); err != nil {
		return nil, fmt.Errorf("boardclient.Client.CreateCard: %w", err)
	}
	return &card, nil
}

func (c *Client) MoveCard(ctx context.Context, id, toColumnID uuid.UUID, position int) (*domain.Card, error) {
	body := map[string]any{"columnId": toColumnID, "position": position}
	var card domain.Card
	if err := c.do(ctx, http.MethodPost, "/cards/"+id.String()+"/move", body, &card); err != nil {
		return nil, fmt.Errorf("boardclient.Client.MoveCard: %w", err)
	}
	return &card, nil
}

func (c *Client) AddComment(ctx context.Context, cardID uuid.UUID, text string) (*domain.Comment, error) {
	var comment domain.Comment
	if err := c.do(ctx, http.MethodPost, "/cards/"+cardID.String()+"/comments", map[string]string{"body": text}, &comment); err != nil {
		return nil, fmt.Errorf("boardclient.Client.AddComment: %w", err)
	}
	return &comment, nil
}

func (c *Client) AddVote(ctx context.Context, cardID uuid.UUID) (*domain.Vote, error) {
	var vote domain.Vote
	if err := c.do(ctx, http.MethodPost, "/cards/"+cardID.String()+"/votes", nil, &vote); err != nil {
		return nil, fmt.Errorf("boardclient.Client.AddVote: %w", err)
	}
	return &vote, nil
}

func (c *Client) RemoveVote(ctx context.Context, cardID uuid.UUID) error {
	if err := c.do(ctx, http.MethodDelete, "/cards/"+cardID.String()+"/votes", nil, nil); err != nil {
		return fmt.Errorf("boardclient.Client.RemoveVote: %w", err)
	}
	return nil
}

func (c *Client) CreatePoll(ctx context.Context, cardID uuid.UUID, in PollInput) (*domain.Poll, error) {
	var poll domain.Poll
	if err := c.do(ctx, http.MethodPost, "/cards/"+cardID.String()+"/polls", in, &poll); err != nil {
		return nil, fmt.Errorf("boardclient.Client.CreatePoll: %w", err)
	}
	return &poll, nil
}

func (c *Client) VotePoll(ctx context.Context, pollID uuid.UUID, optionIDs ...uuid.UUID) (*domain.Poll, error) {
	var poll domain.Poll
	body := map[string][]uuid.UUID{"optionIds": optionIDs}
	if err := c.do(ctx, http.MethodPost, "/polls/"+pollID.String()+"/votes", body, &poll); err != nil {
		return nil, fmt.Errorf("boardclient.Client.VotePoll: %w", err)
	}
	return &poll, nil
}

// do sends one request relative to /api/v1. in is JSON-encoded when non-nil;
// out is decoded from a 2xx body when non-nil.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/api/v1"+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.bearer(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Title: http.StatusText(resp.StatusCode)}
		if len(raw) > 0 {
			// huma error bodies carry title and detail; anything else keeps
			// the status text.
			_ = json.Unmarshal(raw, apiErr)
			apiErr.Status = resp.StatusCode
		}
		return apiErr
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}
