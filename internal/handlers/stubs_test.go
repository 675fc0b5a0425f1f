package handlers

import (
	"context"
	"io"

	"github.com/golang-jwt/jwt/v5"

	"github.com/gamefolio/backend/internal/apperr"
	"github.com/gamefolio/backend/internal/auth"
	"github.com/gamefolio/backend/internal/clips"
	"github.com/gamefolio/backend/internal/gate"
	"github.com/gamefolio/backend/internal/games"
	"github.com/gamefolio/backend/internal/models"
	"github.com/gamefolio/backend/internal/profiles"
)

// Embedded interfaces leave unexercised methods nil; calling one panics and
// fails the test.

type authStub struct {
	AuthService
	signUp      func(email, password string) (auth.SignUpResult, error)
	signIn      func(identifier, password string) (auth.SignInResult, error)
	signOut     func(userID, refresh string) error
	resetReq    func(email string) error
	events      chan auth.Event
	subscribers []string
}

func (a *authStub) Authenticate(token string) (auth.Claims, error) {
	switch token {
	case "member", "admin", "newbie":
		return auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: token}, Email: token + "@example.com"}, nil
	}
	return auth.Claims{}, apperr.Unauthorized("Invalid or expired session")
}

func (a *authStub) SignUp(_ context.Context, email, password string) (auth.SignUpResult, error) {
	return a.signUp(email, password)
}

func (a *authStub) SignIn(_ context.Context, identifier, password string) (auth.SignInResult, error) {
	return a.signIn(identifier, password)
}

func (a *authStub) SignOut(_ context.Context, userID, refresh string) error {
	return a.signOut(userID, refresh)
}

func (a *authStub) RequestPasswordReset(_ context.Context, email string) error {
	return a.resetReq(email)
}

func (a *authStub) Subscribe(_ context.Context, userID string) (<-chan auth.Event, func(), error) {
	a.subscribers = append(a.subscribers, userID)
	return a.events, func() {}, nil
}

type profileStub struct {
	ProfileService
	profiles map[string]models.Profile
	settings struct {
		bio   string
		links map[string]string
	}
	followed []string
}

func onboardedProfile(userID, handle string) models.Profile {
	return models.Profile{
		UserID:              userID,
		Username:            &handle,
		FavoriteGames:       []string{"a", "b", "c", "d", "e"},
		OnboardingCompleted: true,
		SocialLinks:         map[string]string{"twitch": "https://twitch.tv/" + handle},
	}
}

func newProfileStub() *profileStub {
	placeholder := gate.PlaceholderPrefix + "1234abcd"
	return &profileStub{profiles: map[string]models.Profile{
		"member": onboardedProfile("member", "member_one"),
		"admin":  onboardedProfile("admin", "the_admin"),
		"newbie": {UserID: "newbie", Username: &placeholder},
	}}
}

func (p *profileStub) Gate(_ context.Context, userID string) (models.Profile, error) {
	profile, ok := p.profiles[userID]
	if !ok {
		return models.Profile{}, apperr.NotFound("Profile")
	}
	return profile, nil
}

func (p *profileStub) Me(ctx context.Context, userID string) (profiles.Me, error) {
	profile, err := p.Gate(ctx, userID)
	if err != nil {
		return profiles.Me{}, err
	}
	return profiles.Me{Profile: profile, Gate: gate.Derive(profile)}, nil
}

func (p *profileStub) UpdateSettings(_ context.Context, userID, bio string, links map[string]string) (models.Profile, error) {
	p.settings.bio = bio
	p.settings.links = links
	profile := p.profiles[userID]
	profile.Bio = bio
	profile.SocialLinks = links
	return profile, nil
}

func (p *profileStub) Follow(_ context.Context, followerID, username string) error {
	p.followed = append(p.followed, followerID+"->"+username)
	return nil
}

type clipStub struct {
	ClipService
	created []clips.Upload
	video   string
	feedFor string
	explore [2]string
}

func (c *clipStub) Create(_ context.Context, userID string, in clips.Upload) (models.Clip, error) {
	data, err := io.ReadAll(in.Video)
	if err != nil {
		return models.Clip{}, err
	}
	c.video = string(data)
	c.created = append(c.created, in)
	return models.Clip{ID: "clip-1", UserID: userID, Title: in.Title, Game: in.Game, Visibility: models.VisibilityPublic}, nil
}

func (c *clipStub) Feed(_ context.Context, userID string, _ clips.Page) ([]models.Clip, error) {
	c.feedFor = userID
	return []models.Clip{{ID: "feed-1"}}, nil
}

func (c *clipStub) Get(_ context.Context, id, _ string) (models.Clip, error) {
	if id != "clip-1" {
		return models.Clip{}, apperr.NotFound("Clip")
	}
	return models.Clip{ID: id}, nil
}

func (c *clipStub) Explore(_ context.Context, game, query string, _ clips.Page) ([]models.Clip, error) {
	c.explore = [2]string{game, query}
	return []models.Clip{}, nil
}

type gameStub struct {
	GameService
}

func (gameStub) Popular(context.Context) ([]games.Game, error) {
	return games.FallbackPopular(), nil
}

type roleStub map[string]string

func (r roleStub) Role(_ context.Context, userID string) (string, error) {
	if role, ok := r[userID]; ok {
		return role, nil
	}
	return models.RoleUser, nil
}

type adminStub struct {
	AdminService
	banned []string
}

func (a *adminStub) ToggleBan(_ context.Context, adminID, userID string) (bool, error) {
	if adminID == userID {
		return false, apperr.Forbidden("SELF_MODERATION", "Admins cannot moderate themselves")
	}
	a.banned = append(a.banned, userID)
	return true, nil
}
