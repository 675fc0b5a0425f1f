package credentials

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/gamefolio/backend/internal/apperr"
	"github.com/gamefolio/backend/internal/gate"
	"github.com/gamefolio/backend/internal/models"
)

const signUpAttempts = 3

// SignUpResult reports whether the new account must confirm its email.
type SignUpResult struct {
	EmailConfirmationRequired bool `json:"emailConfirmationRequired"`
}

type signInResponse struct {
	User   models.Account       `json:"user"`
	Tokens models.SessionTokens `json:"tokens"`
}

type refreshResponse struct {
	UserID string               `json:"userId"`
	Tokens models.SessionTokens `json:"tokens"`
}

// SignUp registers an account. Passwords failing the local requirements are
// rejected without contacting the server.
func (c *Client) SignUp(ctx context.Context, email, password string) (SignUpResult, error) {
	email = strings.TrimSpace(email)
	if err := gate.ValidatePassword(password); err != nil {
		return SignUpResult{}, err
	}

	backoff := retry.WithMaxRetries(signUpAttempts-1, retry.NewExponential(c.retryBase))
	var result SignUpResult
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := c.do(ctx, "sign_up", http.MethodPost, "/auth/signup", map[string]string{
			"email":    email,
			"password": password,
		}, &result, false)
		if retryableSignUp(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return SignUpResult{}, err
	}
	return result, nil
}

func retryableSignUp(err error) bool {
	if err == nil {
		return false
	}
	if apperr.KindOf(err) == apperr.KindTimeout {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// SignIn authenticates with an email or a username and installs the session.
func (c *Client) SignIn(ctx context.Context, identifier, password string) (*Session, error) {
	var resp signInResponse
	err := c.do(ctx, "sign_in", http.MethodPost, "/auth/login", map[string]string{
		"identifier": strings.TrimSpace(identifier),
		"password":   password,
	}, &resp, false)
	if err != nil {
		return nil, err
	}

	session := &Session{
		User:             resp.User,
		AccessToken:      resp.Tokens.AccessToken,
		AccessExpiresAt:  resp.Tokens.AccessExpiresAt,
		RefreshToken:     resp.Tokens.RefreshToken,
		RefreshExpiresAt: resp.Tokens.RefreshExpiresAt,
	}
	c.SetSession(session)
	return c.Session(), nil
}

// SignOut revokes the refresh token and always clears the local session.
func (c *Client) SignOut(ctx context.Context) {
	s := c.Session()
	if s == nil {
		return
	}
	if err := c.do(ctx, "sign_out", http.MethodPost, "/auth/logout", map[string]string{
		"refreshToken": s.RefreshToken,
	}, nil, true); err != nil {
		c.logger.Info("server sign-out failed, clearing local session anyway", "error", err)
	}
	c.clearSession()
}

// Refresh rotates the refresh token and installs the new pair.
func (c *Client) Refresh(ctx context.Context) (*Session, error) {
	s := c.Session()
	if s == nil {
		return nil, apperr.Unauthorized("Not signed in")
	}

	var resp refreshResponse
	if err := c.do(ctx, "refresh", http.MethodPost, "/auth/refresh", map[string]string{
		"refreshToken": s.RefreshToken,
	}, &resp, false); err != nil {
		if apperr.KindOf(err) == apperr.KindUnauthorized {
			c.clearSession()
		}
		return nil, err
	}

	c.mu.Lock()
	if c.session == nil || c.session.RefreshToken != s.RefreshToken {
		c.mu.Unlock()
		return nil, apperr.Unauthorized("Session changed during refresh")
	}
	c.session.AccessToken = resp.Tokens.AccessToken
	c.session.AccessExpiresAt = resp.Tokens.AccessExpiresAt
	c.session.RefreshToken = resp.Tokens.RefreshToken
	c.session.RefreshExpiresAt = resp.Tokens.RefreshExpiresAt
	c.mu.Unlock()

	refreshed := c.Session()
	c.publish(Event{Type: EventTokenRefreshed, Session: refreshed})
	return refreshed, nil
}

const refreshLead = time.Minute

// AutoRefresh refreshes the access token shortly before it expires until ctx
// ends or the session is gone.
func (c *Client) AutoRefresh(ctx context.Context) error {
	for {
		s := c.Session()
		if s == nil {
			return nil
		}
		wait := s.AccessExpiresAt.Sub(c.now()) - refreshLead
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		if _, err := c.Refresh(ctx); err != nil {
			if apperr.KindOf(err) == apperr.KindUnauthorized {
				return err
			}
			c.logger.Warn("token refresh failed, retrying", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.retryBase):
			}
		}
	}
}

// ResetPassword requests a password reset email. Calls within the cooldown
// are refused locally.
func (c *Client) ResetPassword(ctx context.Context, email string) error {
	return c.cooldownCall(ctx, c.resetCooldown, "reset_password", "/auth/password-reset", email)
}

// ResendConfirmation sends the confirmation email again, guarded by its own
// cooldown.
func (c *Client) ResendConfirmation(ctx context.Context, email string) error {
	return c.cooldownCall(ctx, c.resendCooldown, "resend_confirmation", "/auth/resend-confirmation", email)
}

// ResetCooldown exposes the password reset countdown.
func (c *Client) ResetCooldown() *Cooldown { return c.resetCooldown }

// ResendCooldown exposes the confirmation resend countdown.
func (c *Client) ResendCooldown() *Cooldown { return c.resendCooldown }

func (c *Client) cooldownCall(ctx context.Context, cd *Cooldown, action, path, email string) error {
	if left := cd.Start(); left > 0 {
		return apperr.RateLimited(seconds(left))
	}
	err := c.do(ctx, action, http.MethodPost, path, map[string]string{"email": strings.TrimSpace(email)}, nil, false)
	if err != nil && apperr.KindOf(err) == apperr.KindValidation {
		cd.Cancel()
	}
	return err
}

// Me is the signed-in account with its profile and first-run flags.
type Me struct {
	User struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
	Profile models.Profile `json:"profile"`
	Gate    gate.State     `json:"gate"`
}

// Availability is the server's answer for a candidate username.
type Availability struct {
	Username  string `json:"username"`
	Valid     bool   `json:"valid"`
	Available bool   `json:"available"`
	Message   string `json:"message,omitempty"`
}

// Profile fetches the caller's profile.
func (c *Client) Profile(ctx context.Context) (Me, error) {
	var me Me
	if err := c.do(ctx, "fetch_profile", http.MethodGet, "/me", nil, &me, true); err != nil {
		return Me{}, err
	}
	return me, nil
}

// UsernameAvailable asks whether name is free. Invalid names are answered
// locally.
func (c *Client) UsernameAvailable(ctx context.Context, name string) (Availability, error) {
	name = strings.TrimSpace(name)
	if err := gate.ValidateUsername(name); err != nil {
		return Availability{Username: name, Message: apperr.As(err).Message}, nil
	}
	var result Availability
	if err := c.do(ctx, "check_username", http.MethodGet, "/usernames/"+url.PathEscape(name)+"/availability", nil, &result, false); err != nil {
		return Availability{}, err
	}
	return result, nil
}

// SetUsername saves the caller's handle and returns the updated profile.
func (c *Client) SetUsername(ctx context.Context, name string) (models.Profile, error) {
	var profile models.Profile
	if err := c.do(ctx, "set_username", http.MethodPut, "/me/username", map[string]string{
		"username": strings.TrimSpace(name),
	}, &profile, true); err != nil {
		return models.Profile{}, err
	}
	return profile, nil
}

// CompleteOnboarding saves the favorite games and returns the updated profile.
func (c *Client) CompleteOnboarding(ctx context.Context, games []string) (models.Profile, error) {
	if err := gate.ValidateFavoriteGames(games); err != nil {
		return models.Profile{}, err
	}
	var profile models.Profile
	if err := c.do(ctx, "complete_onboarding", http.MethodPut, "/me/onboarding", map[string][]string{
		"favoriteGames": games,
	}, &profile, true); err != nil {
		return models.Profile{}, err
	}
	return profile, nil
}
