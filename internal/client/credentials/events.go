package credentials

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gamefolio/backend/internal/apperr"
)

// EventType names a session change.
type EventType string

const (
	EventSignedIn       EventType = "SIGNED_IN"
	EventTokenRefreshed EventType = "TOKEN_REFRESHED"
	EventSignedOut      EventType = "SIGNED_OUT"
	EventUserUpdated    EventType = "USER_UPDATED"
)

// Event carries the session after a change. Session is nil after sign-out.
type Event struct {
	Type    EventType
	Session *Session
}

const subscriberBuffer = 8

// Subscribe registers a listener for session changes. Slow listeners miss
// events rather than block the client.
func (c *Client) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	c.subsMu.Lock()
	c.subs[ch] = struct{}{}
	c.subsMu.Unlock()

	cancelled := false
	return ch, func() {
		c.subsMu.Lock()
		defer c.subsMu.Unlock()
		if cancelled {
			return
		}
		cancelled = true
		delete(c.subs, ch)
		close(ch)
	}
}

func (c *Client) publish(event Event) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for ch := range c.subs {
		select {
		case ch <- event:
		default:
			c.logger.Warn("session subscriber lagging, event dropped", "type", string(event.Type))
		}
	}
}

type serverEvent struct {
	Type   string    `json:"type"`
	UserID string    `json:"userId"`
	At     time.Time `json:"at"`
}

// Listen follows the server's session event stream until ctx ends or the
// stream closes. USER_UPDATED is republished so the session re-derives its
// gate flags; a server-side SIGNED_OUT clears the local session.
func (c *Client) Listen(ctx context.Context) error {
	token := c.accessToken()
	if token == "" {
		return apperr.Unauthorized("Not signed in")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/events?access_token="+url.QueryEscape(token), nil)
	if err != nil {
		return fmt.Errorf("build event stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil
		}
		return apperr.UpstreamUnavailable("Session events").WithCause(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	var eventType string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			eventType = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			var ev serverEvent
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
				c.logger.Warn("malformed session event", "error", err)
				continue
			}
			if ev.Type == "" {
				ev.Type = eventType
			}
			c.applyServerEvent(EventType(ev.Type))
		case line == "":
			eventType = ""
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("read event stream: %w", err)
	}
	return nil
}

func (c *Client) applyServerEvent(t EventType) {
	switch t {
	case EventSignedOut:
		c.clearSession()
	case EventUserUpdated:
		if s := c.Session(); s != nil {
			c.publish(Event{Type: EventUserUpdated, Session: s})
		}
	}
}

func (c *Client) clearSession() {
	c.mu.Lock()
	had := c.session != nil
	c.session = nil
	c.mu.Unlock()
	if had {
		c.publish(Event{Type: EventSignedOut})
	}
}
