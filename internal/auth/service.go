package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/gamefolio/backend/internal/apperr"
	"github.com/gamefolio/backend/internal/gate"
	"github.com/gamefolio/backend/internal/logging"
	"github.com/gamefolio/backend/internal/models"
	"github.com/gamefolio/backend/internal/repositories"
)

// AccountStore captures the persistence operations required by the service.
type AccountStore interface {
	Create(ctx context.Context, account models.Account) error
	FindByEmail(ctx context.Context, email string) (models.Account, error)
	FindByID(ctx context.Context, id string) (models.Account, error)
	FindByUsername(ctx context.Context, username string) (models.Account, error)
	MarkConfirmed(ctx context.Context, id string, at time.Time) error
	UpdatePassword(ctx context.Context, id, passwordHash string, at time.Time) error
}

// ProfileBootstrapper ensures a profile row exists for a signed-in user.
type ProfileBootstrapper interface {
	Ensure(ctx context.Context, userID string) error
}

// Notifier delivers account emails.
type Notifier interface {
	SendConfirmation(ctx context.Context, email, link string) error
	SendPasswordReset(ctx context.Context, email, link string) error
}

// Options tune the credential flows.
type Options struct {
	PublicURL        string
	ConfirmationTTL  time.Duration
	ResetTTL         time.Duration
	EmailCooldown    time.Duration
	RequireConfirmed bool
}

// Service implements sign-up, sign-in and the account email flows.
type Service struct {
	Accounts  AccountStore
	Profiles  ProfileBootstrapper
	Sessions  *Manager
	Tokens    OneTimeTokens
	Cooldowns Cooldowns
	Notifier  Notifier
	Events    EventBus
	Options   Options
	NowFunc   func() time.Time
}

// SignUpResult reports whether the new account must confirm its email.
type SignUpResult struct {
	EmailConfirmationRequired bool `json:"emailConfirmationRequired"`
}

// SignInResult is the outcome of a successful sign-in.
type SignInResult struct {
	Account models.Account       `json:"user"`
	Tokens  models.SessionTokens `json:"tokens"`
}

// RefreshResult is the outcome of a refresh-token rotation.
type RefreshResult struct {
	UserID string               `json:"userId"`
	Tokens models.SessionTokens `json:"tokens"`
}

// SignUp registers a new account. No session is created: the caller signs in
// once the email is confirmed.
func (s *Service) SignUp(ctx context.Context, email, password string) (SignUpResult, error) {
	ctx, span := logging.StartSpan(ctx, "signUp")
	defer span.End()

	email = normalizeEmail(email)
	if err := gate.ValidatePassword(password); err != nil {
		span.Fail(err)
		return SignUpResult{}, err
	}

	if _, err := s.Accounts.FindByEmail(ctx, email); err == nil {
		err := apperr.DuplicateAccount("An account with this email already exists")
		span.Fail(err)
		return SignUpResult{}, err
	} else if !errors.Is(err, repositories.ErrNotFound) {
		span.Fail(err)
		return SignUpResult{}, apperr.Internal(fmt.Errorf("look up account: %w", err))
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return SignUpResult{}, apperr.Internal(fmt.Errorf("hash password: %w", err))
	}

	now := s.now()
	account := models.Account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hashed),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if !s.Options.RequireConfirmed {
		account.EmailConfirmedAt = &now
	}

	if err := s.Accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			err := apperr.DuplicateAccount("An account with this email already exists")
			span.Fail(err)
			return SignUpResult{}, err
		}
		span.Fail(err)
		return SignUpResult{}, apperr.Internal(fmt.Errorf("create account: %w", err))
	}

	if !s.Options.RequireConfirmed {
		return SignUpResult{}, nil
	}

	// The account exists at this point; a failed email is recoverable through
	// resend-confirmation.
	if err := s.sendConfirmation(ctx, account); err != nil {
		logging.FromContext(ctx).Error("send confirmation email failed", "userId", account.ID, "error", err)
	}
	return SignUpResult{EmailConfirmationRequired: true}, nil
}

// SignIn authenticates by email or username and bootstraps the profile.
func (s *Service) SignIn(ctx context.Context, identifier, password string) (SignInResult, error) {
	ctx, span := logging.StartSpan(ctx, "signIn")
	defer span.End()

	account, err := s.lookupIdentifier(ctx, identifier)
	if err != nil {
		span.Fail(err)
		return SignInResult{}, err
	}

	if bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)) != nil {
		err := apperr.InvalidCredentials()
		span.Fail(fmt.Errorf("password mismatch for %s: %w", account.ID, err))
		return SignInResult{}, err
	}

	if s.Options.RequireConfirmed && !account.Confirmed() {
		err := apperr.EmailUnconfirmed()
		span.Fail(err)
		return SignInResult{}, err
	}

	if err := s.Profiles.Ensure(ctx, account.ID); err != nil {
		span.Fail(err)
		return SignInResult{}, apperr.Internal(fmt.Errorf("bootstrap profile: %w", err))
	}

	tokens, err := s.Sessions.Issue(ctx, account.ID, account.Email)
	if err != nil {
		span.Fail(err)
		return SignInResult{}, apperr.Internal(fmt.Errorf("issue session: %w", err))
	}

	s.publish(ctx, EventSignedIn, account.ID)
	return SignInResult{Account: account, Tokens: tokens}, nil
}

func (s *Service) lookupIdentifier(ctx context.Context, identifier string) (models.Account, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return models.Account{}, apperr.InvalidCredentials()
	}

	var (
		account models.Account
		err     error
	)
	if strings.Contains(identifier, "@") {
		account, err = s.Accounts.FindByEmail(ctx, normalizeEmail(identifier))
	} else {
		account, err = s.Accounts.FindByUsername(ctx, identifier)
	}
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.Account{}, apperr.InvalidCredentials()
		}
		return models.Account{}, apperr.Internal(fmt.Errorf("look up account: %w", err))
	}
	return account, nil
}

// SignOut revokes one refresh token of the caller. Unknown tokens are not an
// error. Without a token every session is revoked and the other devices are
// told through a SIGNED_OUT event.
func (s *Service) SignOut(ctx context.Context, userID, refreshToken string) error {
	if refreshToken == "" {
		if err := s.Sessions.RevokeAll(ctx, userID); err != nil {
			return apperr.Internal(fmt.Errorf("revoke sessions: %w", err))
		}
		s.publish(ctx, EventSignedOut, userID)
		return nil
	}

	if err := s.Sessions.RevokeOwned(ctx, userID, refreshToken); err != nil {
		if errors.Is(err, ErrSessionNotOwned) {
			return apperr.Forbidden("SESSION_NOT_OWNED", "That session belongs to another account")
		}
		return apperr.Internal(fmt.Errorf("revoke session: %w", err))
	}
	return nil
}

// Refresh rotates a refresh token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (RefreshResult, error) {
	session, tokens, err := s.Sessions.Refresh(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrRefreshTokenExpired) {
			return RefreshResult{}, apperr.Unauthorized("Your session has expired. Please sign in again.").WithCause(err)
		}
		return RefreshResult{}, apperr.Internal(fmt.Errorf("refresh session: %w", err))
	}
	s.publish(ctx, EventTokenRefreshed, session.UserID)
	return RefreshResult{UserID: session.UserID, Tokens: tokens}, nil
}

// Authenticate validates a bearer access token.
func (s *Service) Authenticate(accessToken string) (Claims, error) {
	claims, err := s.Sessions.Verify(accessToken)
	if err != nil {
		return Claims{}, apperr.Unauthorized("Invalid or expired access token").WithCause(err)
	}
	return claims, nil
}

// ConfirmEmail consumes a confirmation token.
func (s *Service) ConfirmEmail(ctx context.Context, token string) error {
	userID, err := s.Tokens.Consume(ctx, PurposeConfirmEmail, token)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return apperr.Validation("This confirmation link is invalid or has expired")
		}
		return apperr.Internal(fmt.Errorf("consume confirmation token: %w", err))
	}
	if err := s.Accounts.MarkConfirmed(ctx, userID, s.now()); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return apperr.NotFound("Account")
		}
		return apperr.Internal(fmt.Errorf("confirm account: %w", err))
	}
	s.publish(ctx, EventUserUpdated, userID)
	return nil
}

// ResendConfirmation re-sends the confirmation email. Unknown and already
// confirmed addresses succeed silently.
func (s *Service) ResendConfirmation(ctx context.Context, email string) error {
	ctx, span := logging.StartSpan(ctx, "resendConfirmation")
	defer span.End()

	email = normalizeEmail(email)
	if err := s.cooldown(ctx, "resend:"+email); err != nil {
		span.Fail(err)
		return err
	}

	account, err := s.Accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil
		}
		return apperr.Internal(fmt.Errorf("look up account: %w", err))
	}
	if account.Confirmed() {
		return nil
	}
	if err := s.sendConfirmation(ctx, account); err != nil {
		span.Fail(err)
		return apperr.UpstreamUnavailable("Email delivery").WithCause(err)
	}
	return nil
}

// RequestPasswordReset emails a reset link. Unknown addresses succeed silently.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	ctx, span := logging.StartSpan(ctx, "resetPassword")
	defer span.End()

	email = normalizeEmail(email)
	if err := s.cooldown(ctx, "reset:"+email); err != nil {
		span.Fail(err)
		return err
	}

	account, err := s.Accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil
		}
		return apperr.Internal(fmt.Errorf("look up account: %w", err))
	}

	token, err := s.Tokens.Issue(ctx, PurposePasswordReset, account.ID, s.Options.ResetTTL)
	if err != nil {
		return apperr.Internal(fmt.Errorf("issue reset token: %w", err))
	}
	if err := s.Notifier.SendPasswordReset(ctx, account.Email, s.link("/reset-password", token)); err != nil {
		span.Fail(err)
		return apperr.UpstreamUnavailable("Email delivery").WithCause(err)
	}
	return nil
}

// ResetPassword sets a new password from a reset token and signs the user out
// everywhere.
func (s *Service) ResetPassword(ctx context.Context, token, password string) error {
	if err := gate.ValidatePassword(password); err != nil {
		return err
	}
	userID, err := s.Tokens.Consume(ctx, PurposePasswordReset, token)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return apperr.Validation("This reset link is invalid or has expired")
		}
		return apperr.Internal(fmt.Errorf("consume reset token: %w", err))
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return apperr.Internal(fmt.Errorf("hash password: %w", err))
	}
	if err := s.Accounts.UpdatePassword(ctx, userID, string(hashed), s.now()); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return apperr.NotFound("Account")
		}
		return apperr.Internal(fmt.Errorf("update password: %w", err))
	}
	if err := s.Sessions.RevokeAll(ctx, userID); err != nil {
		logging.FromContext(ctx).Error("revoke sessions after reset failed", "userId", userID, "error", err)
	}
	s.publish(ctx, EventSignedOut, userID)
	return nil
}

// NotifyUserUpdated tells a user's sessions to re-derive their gate state.
func (s *Service) NotifyUserUpdated(ctx context.Context, userID string) {
	s.publish(ctx, EventUserUpdated, userID)
}

// Subscribe streams session events for userID.
func (s *Service) Subscribe(ctx context.Context, userID string) (<-chan Event, func(), error) {
	return s.Events.Subscribe(ctx, userID)
}

func (s *Service) sendConfirmation(ctx context.Context, account models.Account) error {
	token, err := s.Tokens.Issue(ctx, PurposeConfirmEmail, account.ID, s.Options.ConfirmationTTL)
	if err != nil {
		return fmt.Errorf("issue confirmation token: %w", err)
	}
	return s.Notifier.SendConfirmation(ctx, account.Email, s.link("/auth/confirm", token))
}

func (s *Service) cooldown(ctx context.Context, key string) error {
	if s.Cooldowns == nil || s.Options.EmailCooldown <= 0 {
		return nil
	}
	remaining, err := s.Cooldowns.Start(ctx, key, s.Options.EmailCooldown)
	if err != nil {
		return apperr.Internal(fmt.Errorf("start cooldown: %w", err))
	}
	if remaining > 0 {
		return apperr.RateLimited(int((remaining + time.Second - 1) / time.Second))
	}
	return nil
}

func (s *Service) publish(ctx context.Context, eventType EventType, userID string) {
	if s.Events == nil || userID == "" {
		return
	}
	event := Event{Type: eventType, UserID: userID, At: s.now()}
	if err := s.Events.Publish(ctx, event); err != nil {
		logging.FromContext(ctx).Warn("publish session event failed", "type", eventType, "userId", userID, "error", err)
	}
}

func (s *Service) link(path, token string) string {
	return strings.TrimRight(s.Options.PublicURL, "/") + path + "?token=" + url.QueryEscape(token)
}

func (s *Service) now() time.Time {
	if s.NowFunc != nil {
		return s.NowFunc()
	}
	return time.Now().UTC()
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}
