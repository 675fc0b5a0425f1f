package models

import "time"

// Account holds the login credentials of a Gamefolio user.
type Account struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	PasswordHash     string     `json:"-"`
	EmailConfirmedAt *time.Time `json:"emailConfirmedAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// Confirmed reports whether the account has confirmed its email address.
func (a Account) Confirmed() bool {
	return a.EmailConfirmedAt != nil
}

// Profile is the public gamefolio of a user. Username is nil until the
// account signs in for the first time.
type Profile struct {
	UserID              string            `json:"userId"`
	Username            *string           `json:"username"`
	Bio                 string            `json:"bio"`
	AvatarURL           string            `json:"avatarUrl"`
	FavoriteGames       []string          `json:"favoriteGames"`
	OnboardingCompleted bool              `json:"onboardingCompleted"`
	SocialLinks         map[string]string `json:"socialLinks"`
	Followers           int64             `json:"followers"`
	Following           int64             `json:"following"`
	Views               int64             `json:"views"`
	Banned              bool              `json:"banned"`
	CreatedAt           time.Time         `json:"createdAt"`
	UpdatedAt           time.Time         `json:"updatedAt"`
}

// Handle returns the username or an empty string.
func (p Profile) Handle() string {
	if p.Username == nil {
		return ""
	}
	return *p.Username
}

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

const (
	VisibilityPublic  = "public"
	VisibilityPrivate = "private"
)

// Clip is an uploaded gameplay video.
type Clip struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	Username     string    `json:"username,omitempty"`
	UserAvatar   string    `json:"userAvatar,omitempty"`
	Title        string    `json:"title"`
	Game         string    `json:"game"`
	VideoURL     string    `json:"videoUrl"`
	ThumbnailURL string    `json:"thumbnailUrl"`
	VideoKey     string    `json:"-"`
	ThumbnailKey string    `json:"-"`
	Visibility   string    `json:"visibility"`
	Likes        int64     `json:"likes"`
	Comments     int64     `json:"comments"`
	Shares       int64     `json:"shares"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Comment is an append-only remark on a clip.
type Comment struct {
	ID        string    `json:"id"`
	ClipID    string    `json:"clipId"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

const (
	NotificationLike    = "like"
	NotificationComment = "comment"
	NotificationFollow  = "follow"
	NotificationMention = "mention"
	NotificationSystem  = "system"
)

// Notification informs a recipient about another user's action.
type Notification struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	ActorID       string    `json:"actorId,omitempty"`
	ActorUsername string    `json:"actorUsername,omitempty"`
	ActorAvatar   string    `json:"actorAvatar,omitempty"`
	Type          string    `json:"type"`
	ClipID        string    `json:"clipId,omitempty"`
	Message       string    `json:"message"`
	Read          bool      `json:"read"`
	CreatedAt     time.Time `json:"createdAt"`
}

// ActivityLog records a user or admin action for the moderation panel.
type ActivityLog struct {
	ID           string         `json:"id"`
	UserID       string         `json:"userId"`
	ActionType   string         `json:"actionType"`
	ResourceType string         `json:"resourceType"`
	ResourceID   string         `json:"resourceId"`
	Details      map[string]any `json:"details,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// UserWithRole is a row of the admin user listing.
type UserWithRole struct {
	Account
	Username *string `json:"username"`
	Role     string  `json:"role"`
	Banned   bool    `json:"banned"`
}

// GameCount is a game name with the number of public clips referencing it.
type GameCount struct {
	Game      string `json:"game"`
	ClipCount int64  `json:"clipCount"`
}

// GameStats aggregates clip counters for a single game.
type GameStats struct {
	Game       string `json:"game"`
	ClipCount  int64  `json:"clipCount"`
	Creators   int64  `json:"creators"`
	TotalLikes int64  `json:"totalLikes"`
}

// SessionTokens groups the bearer credentials issued to authenticated users.
type SessionTokens struct {
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

// RefreshSession is a persisted refresh token.
type RefreshSession struct {
	RefreshToken string
	UserID       string
	Email        string
	ExpiresAt    time.Time
}
