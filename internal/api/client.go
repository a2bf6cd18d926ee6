// Package api is the REST mutation client for the livepoll server. Each call
// returns the server's snapshot or a typed failure; the server is the sole
// arbiter of version conflicts.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/livepoll/pollstream/internal/models"
)

const (
	minTitleLength = 3
	minOptions     = 2
	maxOptions     = 10
)

// TokenSource supplies the current bearer token, empty when signed out.
type TokenSource interface {
	Token() string
}

// Config holds REST client settings.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client issues request/response mutations against the server.
type Client struct {
	base           string
	http           *http.Client
	tokens         TokenSource
	logger         *zap.Logger
	onUnauthorized func()
}

// New creates a client. tokens may be nil for anonymous use.
func New(cfg Config, tokens TokenSource, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		base:   strings.TrimRight(cfg.BaseURL, "/"),
		http:   &http.Client{Timeout: timeout},
		tokens: tokens,
		logger: logger,
	}
}

// SetUnauthorizedHook registers the callback invoked on any 401, before the
// call fails. The session uses it to clear the stored credential and emit
// its logout signal.
func (c *Client) SetUnauthorizedHook(fn func()) {
	c.onUnauthorized = fn
}

// NewOption names one option to create.
type NewOption struct {
	OptionName string `json:"option_name"`
}

// CreatePollRequest is the body for creating a poll.
type CreatePollRequest struct {
	Title   string      `json:"title"`
	Options []NewOption `json:"options"`
}

// UpdateOption edits one existing option under its own version check.
type UpdateOption struct {
	UUID       string `json:"uuid"`
	VersionID  int64  `json:"version_id"`
	OptionName string `json:"option_name"`
}

// UpdatePollRequest is the body for updating a poll. VersionID must be the
// caller's last-observed poll version.
type UpdatePollRequest struct {
	Title     *string        `json:"title,omitempty"`
	Options   []UpdateOption `json:"options,omitempty"`
	VersionID int64          `json:"version_id"`
}

// VoteResponse is the server's reply to a vote cast.
type VoteResponse struct {
	Message    string             `json:"message"`
	PollUUID   string             `json:"poll_uuid"`
	OptionUUID string             `json:"option_uuid"`
	Summary    models.VoteSummary `json:"summary"`
}

// LikeResponse is the server's reply to a like toggle. It carries no
// authoritative like count; the broadcast event is the count source.
type LikeResponse struct {
	PollUUID string `json:"poll_uuid"`
	UserID   int64  `json:"user_id"`
	IsLiked  bool   `json:"is_liked"`
}

// LoginResponse carries the identity token.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// ListPolls fetches every poll. The server may reply with a bare array or a
// {"polls": [...]} wrapper.
func (c *Client) ListPolls(ctx context.Context) ([]models.Poll, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/poll/", nil, &raw); err != nil {
		return nil, err
	}
	var polls []models.Poll
	if err := json.Unmarshal(raw, &polls); err == nil {
		return polls, nil
	}
	var wrapped struct {
		Polls []models.Poll `json:"polls"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, errOf(KindTransport, 0, "unexpected poll list shape")
	}
	return wrapped.Polls, nil
}

// GetPoll fetches one poll by uuid.
func (c *Client) GetPoll(ctx context.Context, pollUUID string) (models.Poll, error) {
	var p models.Poll
	err := c.do(ctx, http.MethodGet, "/poll/"+pollUUID, nil, &p)
	return p, err
}

// CreatePoll creates a poll and returns the server snapshot.
func (c *Client) CreatePoll(ctx context.Context, req CreatePollRequest) (models.Poll, error) {
	var p models.Poll
	if err := validateTitle(req.Title); err != nil {
		return p, err
	}
	valid := req.Options[:0:0]
	for _, o := range req.Options {
		if strings.TrimSpace(o.OptionName) != "" {
			valid = append(valid, o)
		}
	}
	if len(valid) < minOptions {
		return p, errOf(KindValidation, 0, fmt.Sprintf("please provide at least %d options", minOptions))
	}
	if len(valid) > maxOptions {
		return p, errOf(KindValidation, 0, fmt.Sprintf("polls may have at most %d options", maxOptions))
	}
	req.Options = valid
	err := c.do(ctx, http.MethodPost, "/poll/", req, &p)
	return p, err
}

// UpdatePoll edits title and/or options under the poll's version check.
func (c *Client) UpdatePoll(ctx context.Context, pollUUID string, req UpdatePollRequest) (models.Poll, error) {
	var p models.Poll
	if req.Title != nil {
		if err := validateTitle(*req.Title); err != nil {
			return p, err
		}
	}
	if req.VersionID <= 0 {
		return p, errOf(KindValidation, 0, "poll version information is missing")
	}
	err := c.do(ctx, http.MethodPut, "/poll/"+pollUUID, req, &p)
	return p, err
}

// DeletePoll removes a poll. Deletion reaches all clients via broadcast.
func (c *Client) DeletePoll(ctx context.Context, pollUUID string) error {
	return c.do(ctx, http.MethodDelete, "/poll/"+pollUUID, nil, nil)
}

// AddOptions appends options to a poll and returns the updated snapshot.
func (c *Client) AddOptions(ctx context.Context, pollUUID string, options []NewOption) (models.Poll, error) {
	var p models.Poll
	if len(options) == 0 {
		return p, errOf(KindValidation, 0, "no options to add")
	}
	body := struct {
		Options []NewOption `json:"options"`
	}{Options: options}
	err := c.do(ctx, http.MethodPost, "/poll/"+pollUUID+"/options", body, &p)
	return p, err
}

// RemoveOptions deletes options from a poll and returns the remaining set
// with recomputed totals.
func (c *Client) RemoveOptions(ctx context.Context, pollUUID string, optionUUIDs []string) (models.Poll, error) {
	var p models.Poll
	if len(optionUUIDs) == 0 {
		return p, errOf(KindValidation, 0, "no options to remove")
	}
	body := struct {
		OptionUUIDs []string `json:"option_uuids"`
	}{OptionUUIDs: optionUUIDs}
	err := c.do(ctx, http.MethodDelete, "/poll/"+pollUUID+"/options", body, &p)
	return p, err
}

// Vote casts the viewer's vote for one option.
func (c *Client) Vote(ctx context.Context, pollUUID, optionUUID string) (VoteResponse, error) {
	var out VoteResponse
	if optionUUID == "" {
		return out, errOf(KindValidation, 0, "no option selected")
	}
	body := struct {
		OptionUUID string `json:"option_uuid"`
	}{OptionUUID: optionUUID}
	err := c.do(ctx, http.MethodPost, "/poll/"+pollUUID+"/vote", body, &out)
	return out, err
}

// ToggleLike flips the viewer's like on a poll.
func (c *Client) ToggleLike(ctx context.Context, pollUUID string) (LikeResponse, error) {
	var out LikeResponse
	err := c.do(ctx, http.MethodPost, "/poll/"+pollUUID+"/like", nil, &out)
	return out, err
}

// Login exchanges credentials for an identity token.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResponse, error) {
	var out LoginResponse
	body := struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}{Email: email, Password: password}
	err := c.do(ctx, http.MethodPost, "/auth/login", body, &out)
	return out, err
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, email, password, name string) error {
	body := struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"name"`
	}{Email: email, Password: password, Name: name}
	return c.do(ctx, http.MethodPost, "/auth/register", body, nil)
}

// Me fetches the viewer's profile, including vote and like records.
func (c *Client) Me(ctx context.Context) (models.CurrentUser, error) {
	var out models.CurrentUser
	err := c.do(ctx, http.MethodGet, "/auth/me", nil, &out)
	return out, err
}

func validateTitle(title string) error {
	if len(strings.TrimSpace(title)) < minTitleLength {
		return errOf(KindValidation, 0, fmt.Sprintf("poll title must be at least %d characters long", minTitleLength))
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return errOf(KindTransport, 0, "encode request: "+err.Error())
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return errOf(KindTransport, 0, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errOf(KindTransport, 0, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.logger.Warn("unauthorized", zap.String("path", path))
		if c.onUnauthorized != nil {
			c.onUnauthorized()
		}
		return errOf(KindUnauthorized, resp.StatusCode, "unauthorized")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := serverMessage(resp.Body)
		if msg == "" {
			msg = "request failed"
		}
		kind := KindTransport
		if resp.StatusCode == http.StatusConflict || strings.Contains(strings.ToLower(msg), "version") {
			kind = KindConflict
		}
		return errOf(kind, resp.StatusCode, msg)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errOf(KindTransport, resp.StatusCode, "decode response: "+err.Error())
	}
	return nil
}

// serverMessage pulls a human-readable message out of an error body. The
// server replies with {"detail": ...}; {"error": ...} is accepted too.
func serverMessage(r io.Reader) string {
	var body struct {
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	if err := json.NewDecoder(r).Decode(&body); err != nil {
		return ""
	}
	if body.Detail != "" {
		return body.Detail
	}
	return body.Error
}
