// Package profiles manages gamefolios: the placeholder profile created on
// first sign-in, the username and onboarding steps, settings, avatars and
// follows.
package profiles

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gamefolio/backend/internal/apperr"
	"github.com/gamefolio/backend/internal/gate"
	"github.com/gamefolio/backend/internal/logging"
	"github.com/gamefolio/backend/internal/models"
	"github.com/gamefolio/backend/internal/repositories"
	"github.com/gamefolio/backend/internal/storage"
)

const (
	maxBioLength    = 500
	maxSocialLinks  = 8
	avatarFallback  = "https://api.dicebear.com/7.x/bottts/svg?seed="
	avatarObjectKey = "avatar"
)

// Store captures the persistence operations required by the service.
type Store interface {
	Insert(ctx context.Context, userID, username string) (bool, error)
	FindByUserID(ctx context.Context, userID string) (models.Profile, error)
	FindByUsername(ctx context.Context, username string) (models.Profile, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	SetUsername(ctx context.Context, userID, username string, at time.Time) (models.Profile, error)
	CompleteOnboarding(ctx context.Context, userID string, games []string, at time.Time) (models.Profile, error)
	UpdateSettings(ctx context.Context, userID, bio string, links map[string]string, at time.Time) (models.Profile, error)
	SetAvatar(ctx context.Context, userID, avatarURL string, at time.Time) (models.Profile, error)
	IncrementViews(ctx context.Context, userID string) error
	Follow(ctx context.Context, followerID, followeeID string) (bool, error)
	Unfollow(ctx context.Context, followerID, followeeID string) (bool, error)
	IsFollowing(ctx context.Context, followerID, followeeID string) (bool, error)
}

// ObjectStore uploads avatar images.
type ObjectStore interface {
	Put(ctx context.Context, bucket storage.Bucket, key string, r io.Reader, contentType string) (string, error)
}

// ActivityRecorder logs profile actions without blocking.
type ActivityRecorder interface {
	Record(ctx context.Context, userID, actionType, resourceType, resourceID string, details map[string]any)
}

// UserNotifier tells a user's sessions that their gate state changed.
type UserNotifier interface {
	NotifyUserUpdated(ctx context.Context, userID string)
}

// Bootstrapper creates the placeholder profile on first sign-in.
type Bootstrapper struct {
	Store Store
}

// Ensure inserts a placeholder profile unless one exists. It is idempotent.
func (b Bootstrapper) Ensure(ctx context.Context, userID string) error {
	created, err := b.Store.Insert(ctx, userID, gate.PlaceholderUsername(userID))
	if err != nil {
		return fmt.Errorf("ensure profile: %w", err)
	}
	if created {
		logging.FromContext(ctx).Info("profile bootstrapped", "user_id", userID)
	}
	return nil
}

// Service implements the profile operations.
type Service struct {
	Store    Store
	Objects  ObjectStore
	Activity ActivityRecorder
	Events   UserNotifier
	NowFunc  func() time.Time
}

// Me is the caller's profile with its derived gate state.
type Me struct {
	Profile models.Profile `json:"profile"`
	Gate    gate.State     `json:"gate"`
}

// Availability is the result of a username availability query.
type Availability struct {
	Username  string `json:"username"`
	Valid     bool   `json:"valid"`
	Available bool   `json:"available"`
	Message   string `json:"message,omitempty"`
}

// PublicProfile is a gamefolio as seen by another user.
type PublicProfile struct {
	models.Profile
	IsFollowing bool `json:"isFollowing"`
}

// Me loads the caller's profile, creating the placeholder if the bootstrap
// was missed.
func (s *Service) Me(ctx context.Context, userID string) (Me, error) {
	profile, err := s.Store.FindByUserID(ctx, userID)
	if errors.Is(err, repositories.ErrNotFound) {
		if err := (Bootstrapper{Store: s.Store}).Ensure(ctx, userID); err != nil {
			return Me{}, apperr.Internal(err)
		}
		profile, err = s.Store.FindByUserID(ctx, userID)
	}
	if err != nil {
		return Me{}, apperr.Internal(fmt.Errorf("load profile: %w", err))
	}
	profile.AvatarURL = AvatarOrDefault(profile)
	return Me{Profile: profile, Gate: gate.Derive(profile)}, nil
}

// Gate returns the caller's profile for the server-side route gates.
func (s *Service) Gate(ctx context.Context, userID string) (models.Profile, error) {
	me, err := s.Me(ctx, userID)
	if err != nil {
		return models.Profile{}, err
	}
	return me.Profile, nil
}

// Availability reports whether name is a valid, unclaimed handle. Names are
// compared case-insensitively.
func (s *Service) Availability(ctx context.Context, name string) (Availability, error) {
	name = strings.TrimSpace(name)
	result := Availability{Username: name}
	if err := gate.ValidateUsername(name); err != nil {
		result.Message = apperr.As(err).Message
		return result, nil
	}
	result.Valid = true

	exists, err := s.Store.UsernameExists(ctx, name)
	if err != nil {
		return Availability{}, apperr.Internal(fmt.Errorf("check username: %w", err))
	}
	result.Available = !exists
	if exists {
		result.Message = "This username is already taken"
	}
	return result, nil
}

// SetUsername claims a handle for the caller.
func (s *Service) SetUsername(ctx context.Context, userID, name string) (models.Profile, error) {
	ctx, span := logging.StartSpan(ctx, "setUsername")
	defer span.End()

	name = strings.TrimSpace(name)
	if err := gate.ValidateUsername(name); err != nil {
		span.Fail(err)
		return models.Profile{}, err
	}

	profile, err := s.Store.SetUsername(ctx, userID, name, s.now())
	switch {
	case errors.Is(err, repositories.ErrConflict):
		err := usernameTaken()
		span.Fail(err)
		return models.Profile{}, err
	case errors.Is(err, repositories.ErrNotFound):
		return models.Profile{}, apperr.NotFound("Profile")
	case err != nil:
		span.Fail(err)
		return models.Profile{}, apperr.Internal(fmt.Errorf("set username: %w", err))
	}

	s.record(ctx, userID, "set_username", map[string]any{"username": name})
	s.notify(ctx, userID)
	profile.AvatarURL = AvatarOrDefault(profile)
	return profile, nil
}

// CompleteOnboarding stores exactly five favorite games. The username step
// must be done first.
func (s *Service) CompleteOnboarding(ctx context.Context, userID string, games []string) (models.Profile, error) {
	ctx, span := logging.StartSpan(ctx, "completeOnboarding")
	defer span.End()

	if err := gate.ValidateFavoriteGames(games); err != nil {
		span.Fail(err)
		return models.Profile{}, err
	}
	games = gate.NormalizeFavoriteGames(games)

	current, err := s.Store.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.Profile{}, apperr.NotFound("Profile")
		}
		return models.Profile{}, apperr.Internal(fmt.Errorf("load profile: %w", err))
	}
	if gate.NeedsUsername(current.Username) {
		err := apperr.Forbidden("USERNAME_REQUIRED", "Choose a username first")
		span.Fail(err)
		return models.Profile{}, err
	}

	profile, err := s.Store.CompleteOnboarding(ctx, userID, games, s.now())
	if err != nil {
		span.Fail(err)
		return models.Profile{}, apperr.Internal(fmt.Errorf("complete onboarding: %w", err))
	}

	s.record(ctx, userID, "complete_onboarding", map[string]any{"favorite_games": games})
	s.notify(ctx, userID)
	profile.AvatarURL = AvatarOrDefault(profile)
	return profile, nil
}

// UpdateSettings replaces the bio and social links.
func (s *Service) UpdateSettings(ctx context.Context, userID, bio string, links map[string]string) (models.Profile, error) {
	bio = strings.TrimSpace(bio)
	if len([]rune(bio)) > maxBioLength {
		return models.Profile{}, apperr.Validation("Bio is too long",
			apperr.FieldError{Field: "bio", Message: fmt.Sprintf("At most %d characters", maxBioLength)})
	}
	cleaned, err := cleanLinks(links)
	if err != nil {
		return models.Profile{}, err
	}

	profile, err := s.Store.UpdateSettings(ctx, userID, bio, cleaned, s.now())
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.Profile{}, apperr.NotFound("Profile")
		}
		return models.Profile{}, apperr.Internal(fmt.Errorf("update settings: %w", err))
	}
	s.record(ctx, userID, "update_profile", nil)
	profile.AvatarURL = AvatarOrDefault(profile)
	return profile, nil
}

// UploadAvatar overwrites the caller's avatar object and stores its URL.
func (s *Service) UploadAvatar(ctx context.Context, userID string, r io.Reader, contentType string) (models.Profile, error) {
	if !strings.HasPrefix(contentType, "image/") {
		return models.Profile{}, apperr.Validation("Avatar must be an image",
			apperr.FieldError{Field: "avatar", Message: "Unsupported content type " + contentType})
	}
	if s.Objects == nil {
		return models.Profile{}, apperr.UpstreamUnavailable("Storage")
	}

	location, err := s.Objects.Put(ctx, storage.BucketAvatars, userID+"/"+avatarObjectKey, r, contentType)
	if err != nil {
		return models.Profile{}, apperr.UpstreamUnavailable("Storage").WithCause(err)
	}
	// The key never changes, so a version parameter busts browser caches.
	location += "?v=" + strconv.FormatInt(s.now().UnixMilli(), 10)

	profile, err := s.Store.SetAvatar(ctx, userID, location, s.now())
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.Profile{}, apperr.NotFound("Profile")
		}
		return models.Profile{}, apperr.Internal(fmt.Errorf("set avatar: %w", err))
	}
	s.record(ctx, userID, "upload_avatar", nil)
	return profile, nil
}

// Public loads a gamefolio by handle and counts the view when the viewer is
// someone else. viewerID may be empty.
func (s *Service) Public(ctx context.Context, username, viewerID string) (PublicProfile, error) {
	profile, err := s.lookup(ctx, username)
	if err != nil {
		return PublicProfile{}, err
	}

	result := PublicProfile{Profile: profile}
	result.AvatarURL = AvatarOrDefault(profile)
	if viewerID == "" || viewerID == profile.UserID {
		return result, nil
	}

	if err := s.Store.IncrementViews(ctx, profile.UserID); err != nil {
		logging.FromContext(ctx).Warn("increment profile views failed", "user_id", profile.UserID, "error", err)
	} else {
		result.Views++
	}
	following, err := s.Store.IsFollowing(ctx, viewerID, profile.UserID)
	if err != nil {
		return PublicProfile{}, apperr.Internal(fmt.Errorf("check follow: %w", err))
	}
	result.IsFollowing = following
	return result, nil
}

// Resolve returns the user id behind a handle.
func (s *Service) Resolve(ctx context.Context, username string) (string, error) {
	profile, err := s.lookup(ctx, username)
	if err != nil {
		return "", err
	}
	return profile.UserID, nil
}

// Follow makes followerID follow the owner of username.
func (s *Service) Follow(ctx context.Context, followerID, username string) error {
	target, err := s.lookup(ctx, username)
	if err != nil {
		return err
	}
	if target.UserID == followerID {
		return apperr.Validation("You cannot follow yourself")
	}
	created, err := s.Store.Follow(ctx, followerID, target.UserID)
	if err != nil {
		return apperr.Internal(fmt.Errorf("follow: %w", err))
	}
	if created {
		s.record(ctx, followerID, "follow", map[string]any{"followee_id": target.UserID})
	}
	return nil
}

// Unfollow removes a follow edge. Unfollowing someone not followed is a no-op.
func (s *Service) Unfollow(ctx context.Context, followerID, username string) error {
	target, err := s.lookup(ctx, username)
	if err != nil {
		return err
	}
	if _, err := s.Store.Unfollow(ctx, followerID, target.UserID); err != nil {
		return apperr.Internal(fmt.Errorf("unfollow: %w", err))
	}
	return nil
}

func (s *Service) lookup(ctx context.Context, username string) (models.Profile, error) {
	profile, err := s.Store.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.Profile{}, apperr.NotFound("Profile")
		}
		return models.Profile{}, apperr.Internal(fmt.Errorf("load profile: %w", err))
	}
	return profile, nil
}

func (s *Service) record(ctx context.Context, userID, action string, details map[string]any) {
	if s.Activity != nil {
		s.Activity.Record(ctx, userID, action, "profile", userID, details)
	}
}

func (s *Service) notify(ctx context.Context, userID string) {
	if s.Events != nil {
		s.Events.NotifyUserUpdated(ctx, userID)
	}
}

func (s *Service) now() time.Time {
	if s.NowFunc != nil {
		return s.NowFunc()
	}
	return time.Now().UTC()
}

// AvatarOrDefault returns the stored avatar or a generated one seeded by the
// handle.
func AvatarOrDefault(p models.Profile) string {
	if p.AvatarURL != "" {
		return p.AvatarURL
	}
	seed := p.Handle()
	if seed == "" {
		seed = p.UserID
	}
	return avatarFallback + url.QueryEscape(seed)
}

func usernameTaken() *apperr.Error {
	return apperr.Conflict("USERNAME_TAKEN", "This username is already taken")
}

func cleanLinks(links map[string]string) (map[string]string, error) {
	if len(links) > maxSocialLinks {
		return nil, apperr.Validation("Too many social links",
			apperr.FieldError{Field: "socialLinks", Message: fmt.Sprintf("At most %d links", maxSocialLinks)})
	}
	cleaned := make(map[string]string, len(links))
	for name, raw := range links {
		name = strings.ToLower(strings.TrimSpace(name))
		raw = strings.TrimSpace(raw)
		if name == "" || raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, apperr.Validation("Invalid social link",
				apperr.FieldError{Field: "socialLinks." + name, Message: "Must be an http or https URL"})
		}
		cleaned[name] = u.String()
	}
	return cleaned, nil
}
