package handlers

import (
	"context"
	"io"

	"github.com/gamefolio/backend/internal/auth"
	"github.com/gamefolio/backend/internal/clips"
	"github.com/gamefolio/backend/internal/games"
	"github.com/gamefolio/backend/internal/models"
	"github.com/gamefolio/backend/internal/profiles"
)

// AuthService implements the credential flows.
type AuthService interface {
	SignUp(ctx context.Context, email, password string) (auth.SignUpResult, error)
	SignIn(ctx context.Context, identifier, password string) (auth.SignInResult, error)
	SignOut(ctx context.Context, userID, refreshToken string) error
	Refresh(ctx context.Context, refreshToken string) (auth.RefreshResult, error)
	Authenticate(accessToken string) (auth.Claims, error)
	ConfirmEmail(ctx context.Context, token string) error
	ResendConfirmation(ctx context.Context, email string) error
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, password string) error
	Subscribe(ctx context.Context, userID string) (<-chan auth.Event, func(), error)
}

// ProfileService implements the gamefolio operations.
type ProfileService interface {
	Me(ctx context.Context, userID string) (profiles.Me, error)
	Gate(ctx context.Context, userID string) (models.Profile, error)
	Availability(ctx context.Context, name string) (profiles.Availability, error)
	SetUsername(ctx context.Context, userID, name string) (models.Profile, error)
	CompleteOnboarding(ctx context.Context, userID string, games []string) (models.Profile, error)
	UpdateSettings(ctx context.Context, userID, bio string, links map[string]string) (models.Profile, error)
	UploadAvatar(ctx context.Context, userID string, r io.Reader, contentType string) (models.Profile, error)
	Public(ctx context.Context, username, viewerID string) (profiles.PublicProfile, error)
	Resolve(ctx context.Context, username string) (string, error)
	Follow(ctx context.Context, followerID, username string) error
	Unfollow(ctx context.Context, followerID, username string) error
}

// ClipService implements uploads and clip interactions.
type ClipService interface {
	Create(ctx context.Context, userID string, in clips.Upload) (models.Clip, error)
	Get(ctx context.Context, id, viewerID string) (models.Clip, error)
	ByUser(ctx context.Context, ownerID, viewerID string, page clips.Page) ([]models.Clip, error)
	Feed(ctx context.Context, userID string, page clips.Page) ([]models.Clip, error)
	Liked(ctx context.Context, userID string, page clips.Page) ([]models.Clip, error)
	Explore(ctx context.Context, game, query string, page clips.Page) ([]models.Clip, error)
	Rename(ctx context.Context, id, userID, title string) (models.Clip, error)
	Delete(ctx context.Context, id, actorID string, asAdmin bool) error
	Like(ctx context.Context, userID, clipID string) (clips.LikeResult, error)
	Share(ctx context.Context, clipID string) (int64, error)
	Comment(ctx context.Context, userID, clipID, content string) (models.Comment, error)
	Comments(ctx context.Context, clipID, viewerID string) ([]models.Comment, error)
}

// GameService answers catalog and game page queries.
type GameService interface {
	Search(ctx context.Context, query string) ([]games.Game, error)
	Popular(ctx context.Context) ([]games.Game, error)
	Trending(ctx context.Context) ([]models.GameCount, error)
	ClipsFor(ctx context.Context, game string) ([]models.Clip, error)
	Stats(ctx context.Context, game string) (models.GameStats, error)
}

// NotificationService lists a user's notifications.
type NotificationService interface {
	List(ctx context.Context, userID string) ([]models.Notification, error)
	Unread(ctx context.Context, userID string) (int64, error)
}

// AdminService implements moderation.
type AdminService interface {
	Users(ctx context.Context, limit, offset int) ([]models.UserWithRole, error)
	ToggleRole(ctx context.Context, adminID, userID string) (string, error)
	ToggleBan(ctx context.Context, adminID, userID string) (bool, error)
	ResetOnboarding(ctx context.Context, adminID, userID string) error
	DeleteUser(ctx context.Context, adminID, userID string) error
	DeleteClip(ctx context.Context, adminID, clipID string) error
	RecentActivity(ctx context.Context) ([]models.ActivityLog, error)
	SendPasswordReset(ctx context.Context, adminID, userID string) error
}

// ReadinessCheck reports whether a backing service is reachable.
type ReadinessCheck func(ctx context.Context) error
