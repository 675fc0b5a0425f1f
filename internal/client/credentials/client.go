// Package credentials is the Go client of the Gamefolio credential API. It
// holds the signed-in session, publishes session changes and enforces the
// local validation, timeout and cooldown rules before any request is sent.
package credentials

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gamefolio/backend/internal/apperr"
	"github.com/gamefolio/backend/internal/logging"
	"github.com/gamefolio/backend/internal/models"
)

const (
	DefaultTimeout = 15 * time.Second
	MinTimeout     = 10 * time.Second
	MaxTimeout     = 30 * time.Second

	DefaultCooldown = 60 * time.Second

	genericFailure = "Something went wrong. Please try again."
)

// Options configure a Client.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	Cooldown   time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger

	// RetryBase is the first sign-up retry delay. Zero selects 500ms.
	RetryBase time.Duration
}

// Session is the signed-in state held by the client.
type Session struct {
	User             models.Account `json:"user"`
	AccessToken      string         `json:"accessToken"`
	AccessExpiresAt  time.Time      `json:"accessExpiresAt"`
	RefreshToken     string         `json:"refreshToken"`
	RefreshExpiresAt time.Time      `json:"refreshExpiresAt"`
}

// Client talks to the credential and profile endpoints.
type Client struct {
	baseURL   string
	timeout   time.Duration
	http      *http.Client
	logger    *slog.Logger
	retryBase time.Duration
	now       func() time.Time

	resetCooldown  *Cooldown
	resendCooldown *Cooldown

	mu      sync.RWMutex
	session *Session

	subsMu sync.Mutex
	subs   map[chan Event]struct{}
}

// New constructs a client for the API rooted at opts.BaseURL, for example
// "https://gamefolio.example/api/v1".
func New(opts Options) *Client {
	cooldown := opts.Cooldown
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	retryBase := opts.RetryBase
	if retryBase <= 0 {
		retryBase = 500 * time.Millisecond
	}
	return &Client{
		baseURL:        strings.TrimSuffix(opts.BaseURL, "/"),
		timeout:        ClampTimeout(opts.Timeout),
		http:           httpClient,
		logger:         logger,
		retryBase:      retryBase,
		now:            time.Now,
		resetCooldown:  NewCooldown(cooldown),
		resendCooldown: NewCooldown(cooldown),
		subs:           make(map[chan Event]struct{}),
	}
}

// ClampTimeout returns the default for zero and otherwise bounds d to the
// supported 10-30s range.
func ClampTimeout(d time.Duration) time.Duration {
	switch {
	case d <= 0:
		return DefaultTimeout
	case d < MinTimeout:
		return MinTimeout
	case d > MaxTimeout:
		return MaxTimeout
	default:
		return d
	}
}

// Session returns a copy of the current session, or nil when signed out.
func (c *Client) Session() *Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return nil
	}
	s := *c.session
	return &s
}

// SetSession installs a session restored from storage and announces it as a
// sign-in.
func (c *Client) SetSession(s *Session) {
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
	if s != nil {
		c.publish(Event{Type: EventSignedIn, Session: c.Session()})
	}
}

func (c *Client) accessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return ""
	}
	return c.session.AccessToken
}

type errorBody struct {
	Error      string              `json:"error"`
	Code       string              `json:"code"`
	RetryAfter int                 `json:"retryAfter"`
	Details    []apperr.FieldError `json:"details"`
}

// do sends a JSON request raced against the client timeout. A nil out
// discards the response body.
func (c *Client) do(ctx context.Context, action, method, path string, in, out any, authenticated bool) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return apperr.Internal(fmt.Errorf("encode %s request: %w", action, err))
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return apperr.Internal(fmt.Errorf("build %s request: %w", action, err))
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authenticated {
		token := c.accessToken()
		if token == "" {
			return apperr.Unauthorized("Not signed in")
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if requestID := logging.RequestIDFromContext(ctx); requestID != "" {
		req.Header.Set("X-Request-ID", requestID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return c.fail(ctx, action, transportError(ctx, action, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return c.fail(ctx, action, decodeError(resp))
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctx.Err() != nil {
			return c.fail(ctx, action, apperr.Timeout(action).WithCause(err))
		}
		return c.fail(ctx, action, apperr.Internal(fmt.Errorf("decode %s response: %w", action, err)))
	}
	return nil
}

func (c *Client) fail(ctx context.Context, action string, err error) error {
	attrs := []any{
		slog.String("action", action),
		slog.Time("at", c.now().UTC()),
		slog.String("kind", string(apperr.KindOf(err))),
		slog.Any("error", err),
	}
	if s := c.Session(); s != nil {
		attrs = append(attrs, slog.String("user_id", s.User.ID))
	}
	if requestID := logging.RequestIDFromContext(ctx); requestID != "" {
		attrs = append(attrs, slog.String("request_id", requestID))
	}
	c.logger.Warn("credential request failed", attrs...)
	return err
}

func transportError(ctx context.Context, action string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperr.Timeout(action).WithCause(err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return apperr.UpstreamUnavailable("Gamefolio").WithCause(err)
}

// knownMessages maps message fragments of responses without a machine
// readable code onto the error taxonomy.
var knownMessages = []struct {
	fragment string
	build    func(msg string, retryAfter int) *apperr.Error
}{
	{"rate limit", func(_ string, s int) *apperr.Error { return apperr.RateLimited(s) }},
	{"already registered", func(msg string, _ int) *apperr.Error { return apperr.DuplicateAccount(msg) }},
	{"already exists", func(msg string, _ int) *apperr.Error { return apperr.DuplicateAccount(msg) }},
	{"invalid login credentials", func(string, int) *apperr.Error { return apperr.InvalidCredentials() }},
	{"email not confirmed", func(string, int) *apperr.Error { return apperr.EmailUnconfirmed() }},
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	retryAfter := 0
	if v := resp.Header.Get("Retry-After"); v != "" {
		_, _ = fmt.Sscanf(v, "%d", &retryAfter)
	}

	var body errorBody
	if err := json.Unmarshal(raw, &body); err != nil || (body.Code == "" && body.Error == "") {
		body = errorBody{Error: strings.TrimSpace(string(raw))}
	}
	if body.RetryAfter == 0 {
		body.RetryAfter = retryAfter
	}

	if body.Code == "" {
		lower := strings.ToLower(body.Error)
		for _, known := range knownMessages {
			if strings.Contains(lower, known.fragment) {
				return known.build(body.Error, body.RetryAfter)
			}
		}
	}

	message := body.Error
	if body.Code == "" || message == "" {
		message = genericFailure
	}
	e := apperr.FromCode(resp.StatusCode, body.Code, message)
	e.RetryAfter = body.RetryAfter
	e.Details = body.Details
	return e
}
