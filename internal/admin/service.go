// Package admin implements the moderation operations available to admins.
package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gamefolio/backend/internal/apperr"
	"github.com/gamefolio/backend/internal/logging"
	"github.com/gamefolio/backend/internal/models"
	"github.com/gamefolio/backend/internal/repositories"
	"github.com/gamefolio/backend/internal/storage"
)

const (
	defaultUserPage = 50
	maxUserPage     = 200
	activityLimit   = 100
)

// Accounts reads and mutates accounts and roles.
type Accounts interface {
	FindByID(ctx context.Context, id string) (models.Account, error)
	FindByEmail(ctx context.Context, email string) (models.Account, error)
	Delete(ctx context.Context, id string) error
	Role(ctx context.Context, userID string) (string, error)
	SetRole(ctx context.Context, userID, role string) error
	ListWithRoles(ctx context.Context, limit, offset int) ([]models.UserWithRole, error)
}

// Profiles holds the moderation flags of profiles.
type Profiles interface {
	FindByUserID(ctx context.Context, userID string) (models.Profile, error)
	SetBanned(ctx context.Context, userID string, banned bool, at time.Time) error
	ResetOnboarding(ctx context.Context, userID string, at time.Time) error
}

// ClipObjects lists the storage keys owned by a user.
type ClipObjects interface {
	ObjectKeysForUser(ctx context.Context, userID string) ([]string, error)
}

// ClipDeleter removes a clip and its objects.
type ClipDeleter interface {
	Delete(ctx context.Context, id, actorID string, asAdmin bool) error
}

// ObjectStore removes stored objects.
type ObjectStore interface {
	Delete(ctx context.Context, bucket storage.Bucket, keys ...string) error
}

// SessionRevoker signs a user out everywhere.
type SessionRevoker interface {
	RevokeAll(ctx context.Context, userID string) error
}

// PasswordResetter starts the password reset email flow.
type PasswordResetter interface {
	RequestPasswordReset(ctx context.Context, email string) error
}

// UserNotifier pushes a session refresh to a user's clients.
type UserNotifier interface {
	NotifyUserUpdated(ctx context.Context, userID string)
}

// SystemNotifier writes moderation notices to a user's inbox.
type SystemNotifier interface {
	System(ctx context.Context, userID, message string) error
}

// ActivityLog records and lists actions.
type ActivityLog interface {
	Record(ctx context.Context, userID, actionType, resourceType, resourceID string, details map[string]any)
	List(ctx context.Context, limit int) ([]models.ActivityLog, error)
}

// Service implements the admin panel.
type Service struct {
	Accounts Accounts
	Profiles Profiles
	Clips    ClipObjects
	Deleter  ClipDeleter
	Objects  ObjectStore
	Sessions SessionRevoker
	Resetter PasswordResetter
	Events   UserNotifier
	Notices  SystemNotifier
	Activity ActivityLog
	NowFunc  func() time.Time
}

// Users lists accounts with their handle, role and ban flag.
func (s *Service) Users(ctx context.Context, limit, offset int) ([]models.UserWithRole, error) {
	if limit <= 0 {
		limit = defaultUserPage
	}
	if limit > maxUserPage {
		limit = maxUserPage
	}
	if offset < 0 {
		offset = 0
	}
	users, err := s.Accounts.ListWithRoles(ctx, limit, offset)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("list users: %w", err))
	}
	return users, nil
}

// IsAdmin reports whether userID holds the admin role.
func (s *Service) IsAdmin(ctx context.Context, userID string) (bool, error) {
	role, err := s.Accounts.Role(ctx, userID)
	if err != nil {
		return false, apperr.Internal(fmt.Errorf("load role: %w", err))
	}
	return role == models.RoleAdmin, nil
}

// ToggleRole switches a user between user and admin and returns the new role.
func (s *Service) ToggleRole(ctx context.Context, adminID, userID string) (string, error) {
	if err := s.notSelf(adminID, userID, "change your own role"); err != nil {
		return "", err
	}
	if err := s.ensureAccount(ctx, userID); err != nil {
		return "", err
	}
	current, err := s.Accounts.Role(ctx, userID)
	if err != nil {
		return "", apperr.Internal(fmt.Errorf("load role: %w", err))
	}
	next := models.RoleAdmin
	if current == models.RoleAdmin {
		next = models.RoleUser
	}
	if err := s.Accounts.SetRole(ctx, userID, next); err != nil {
		return "", apperr.Internal(fmt.Errorf("set role: %w", err))
	}
	s.record(ctx, adminID, "toggle_role", userID, map[string]any{"role": next})
	return next, nil
}

// ToggleBan bans or unbans a user and returns the new flag. A ban signs the
// user out everywhere.
func (s *Service) ToggleBan(ctx context.Context, adminID, userID string) (bool, error) {
	if err := s.notSelf(adminID, userID, "ban yourself"); err != nil {
		return false, err
	}
	profile, err := s.Profiles.FindByUserID(ctx, userID)
	if err != nil {
		return false, notFoundOr(err, "User", "load profile")
	}
	banned := !profile.Banned
	if err := s.Profiles.SetBanned(ctx, userID, banned, s.now()); err != nil {
		return false, notFoundOr(err, "User", "set banned")
	}

	if banned && s.Sessions != nil {
		if err := s.Sessions.RevokeAll(ctx, userID); err != nil {
			logging.FromContext(ctx).Warn("revoke sessions of banned user failed", "userId", userID, "error", err)
		}
	}
	if s.Notices != nil {
		message := "Your account has been suspended by a moderator."
		if !banned {
			message = "Your account has been reinstated."
		}
		if err := s.Notices.System(ctx, userID, message); err != nil {
			logging.FromContext(ctx).Warn("ban notice failed", "userId", userID, "error", err)
		}
	}
	s.notify(ctx, userID)
	s.record(ctx, adminID, "toggle_ban", userID, map[string]any{"banned": banned})
	return banned, nil
}

// ResetOnboarding clears a user's favorite games so the onboarding step is
// shown again.
func (s *Service) ResetOnboarding(ctx context.Context, adminID, userID string) error {
	if err := s.Profiles.ResetOnboarding(ctx, userID, s.now()); err != nil {
		return notFoundOr(err, "User", "reset onboarding")
	}
	s.notify(ctx, userID)
	s.record(ctx, adminID, "reset_onboarding", userID, nil)
	return nil
}

// DeleteUser removes an account, everything it owns, and its stored objects.
func (s *Service) DeleteUser(ctx context.Context, adminID, userID string) error {
	ctx, span := logging.StartSpan(ctx, "adminDeleteUser")
	defer span.End()

	if err := s.notSelf(adminID, userID, "delete your own account"); err != nil {
		return err
	}
	keys, err := s.Clips.ObjectKeysForUser(ctx, userID)
	if err != nil {
		span.Fail(err)
		return apperr.Internal(fmt.Errorf("list user objects: %w", err))
	}
	if err := s.Accounts.Delete(ctx, userID); err != nil {
		span.Fail(err)
		return notFoundOr(err, "User", "delete account")
	}

	if s.Sessions != nil {
		if err := s.Sessions.RevokeAll(ctx, userID); err != nil {
			logging.FromContext(ctx).Warn("revoke sessions of deleted user failed", "userId", userID, "error", err)
		}
	}
	if s.Objects != nil {
		if err := s.Objects.Delete(ctx, storage.BucketClips, keys...); err != nil {
			logging.FromContext(ctx).Warn("delete clip objects failed", "userId", userID, "error", err)
		}
		if err := s.Objects.Delete(ctx, storage.BucketAvatars, userID+"/avatar"); err != nil {
			logging.FromContext(ctx).Warn("delete avatar failed", "userId", userID, "error", err)
		}
	}
	s.record(ctx, adminID, "delete_user", userID, map[string]any{"objects": len(keys)})
	return nil
}

// DeleteClip removes any clip.
func (s *Service) DeleteClip(ctx context.Context, adminID, clipID string) error {
	return s.Deleter.Delete(ctx, clipID, adminID, true)
}

// RecentActivity returns the latest recorded actions.
func (s *Service) RecentActivity(ctx context.Context) ([]models.ActivityLog, error) {
	entries, err := s.Activity.List(ctx, activityLimit)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("list activity: %w", err))
	}
	return entries, nil
}

// SendPasswordReset emails a reset link to a user.
func (s *Service) SendPasswordReset(ctx context.Context, adminID, userID string) error {
	account, err := s.Accounts.FindByID(ctx, userID)
	if err != nil {
		return notFoundOr(err, "User", "load account")
	}
	if err := s.Resetter.RequestPasswordReset(ctx, account.Email); err != nil {
		return err
	}
	s.record(ctx, adminID, "send_password_reset", userID, nil)
	return nil
}

// MakeAdmin grants the admin role to the account registered under email.
func (s *Service) MakeAdmin(ctx context.Context, email string) (models.Account, error) {
	account, err := s.Accounts.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return models.Account{}, notFoundOr(err, "User", "load account")
	}
	if err := s.Accounts.SetRole(ctx, account.ID, models.RoleAdmin); err != nil {
		return models.Account{}, apperr.Internal(fmt.Errorf("set role: %w", err))
	}
	return account, nil
}

func (s *Service) ensureAccount(ctx context.Context, userID string) error {
	if _, err := s.Accounts.FindByID(ctx, userID); err != nil {
		return notFoundOr(err, "User", "load account")
	}
	return nil
}

func (s *Service) notSelf(adminID, userID, action string) error {
	if adminID == userID {
		return apperr.Forbidden("SELF_MODERATION", "You cannot "+action)
	}
	return nil
}

func (s *Service) notify(ctx context.Context, userID string) {
	if s.Events != nil {
		s.Events.NotifyUserUpdated(ctx, userID)
	}
}

func (s *Service) record(ctx context.Context, adminID, action, userID string, details map[string]any) {
	if s.Activity != nil {
		s.Activity.Record(ctx, adminID, action, "user", userID, details)
	}
}

func (s *Service) now() time.Time {
	if s.NowFunc != nil {
		return s.NowFunc()
	}
	return time.Now().UTC()
}

func notFoundOr(err error, resource, action string) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return apperr.NotFound(resource)
	}
	return apperr.Internal(fmt.Errorf("%s: %w", action, err))
}
