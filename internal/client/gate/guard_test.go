package gate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamefolio/backend/internal/apperr"
	"github.com/gamefolio/backend/internal/client/session"
	rules "github.com/gamefolio/backend/internal/gate"
	"github.com/gamefolio/backend/internal/models"
)

func TestDecideOrder(t *testing.T) {
	guard := Guard{}
	cases := []struct {
		name string
		snap session.Snapshot
		want Decision
	}{
		{"loading renders nothing", session.Snapshot{Status: session.Loading}, Decision{Outcome: Blank}},
		{"anonymous goes home", session.Snapshot{Status: session.Anonymous}, Decision{Outcome: Redirect, Target: "/"}},
		{"username before onboarding", session.Snapshot{Status: session.Authenticated, Gate: rules.State{NeedsUsername: true, NeedsOnboarding: true}}, Decision{Outcome: UsernameStep}},
		{"onboarding", session.Snapshot{Status: session.Authenticated, Gate: rules.State{NeedsOnboarding: true}}, Decision{Outcome: OnboardingStep}},
		{"content", session.Snapshot{Status: session.Authenticated}, Decision{Outcome: Content}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, guard.Decide(tc.snap))
		})
	}
}

func TestDecideCustomRedirect(t *testing.T) {
	d := Guard{RedirectTo: "/login"}.Decide(session.Snapshot{Status: session.Anonymous})
	assert.Equal(t, "/login", d.Target)
}

type fakeSession struct {
	snap session.Snapshot
}

func (f *fakeSession) Current() session.Snapshot { return f.snap }

func (f *fakeSession) Await(context.Context) (session.Snapshot, error) { return f.snap, nil }

func (f *fakeSession) MarkUsernameSet(_ context.Context, p models.Profile) error {
	f.snap.Gate = rules.Derive(p)
	return nil
}

func (f *fakeSession) MarkOnboarded(_ context.Context, p models.Profile) error {
	f.snap.Gate = rules.Derive(p)
	return nil
}

type fakeProfiles struct {
	taken     map[string]bool
	usernames []string
	games     [][]string
}

func (f *fakeProfiles) SetUsername(_ context.Context, name string) (models.Profile, error) {
	f.usernames = append(f.usernames, name)
	if f.taken[name] {
		return models.Profile{}, apperr.Conflict("USERNAME_TAKEN", "Username is already taken")
	}
	return models.Profile{UserID: "u1", Username: &name}, nil
}

func (f *fakeProfiles) CompleteOnboarding(_ context.Context, games []string) (models.Profile, error) {
	f.games = append(f.games, games)
	if err := rules.ValidateFavoriteGames(games); err != nil {
		return models.Profile{}, err
	}
	name := "ada_l"
	return models.Profile{UserID: "u1", Username: &name, FavoriteGames: games, OnboardingCompleted: true}, nil
}

type scriptedSteps struct {
	names    []string
	games    [][]string
	previous []error
}

func (s *scriptedSteps) Username(_ context.Context, previous error) (string, error) {
	s.previous = append(s.previous, previous)
	if len(s.names) == 0 {
		return "", errors.New("no more names")
	}
	name := s.names[0]
	s.names = s.names[1:]
	return name, nil
}

func (s *scriptedSteps) FavoriteGames(_ context.Context, previous error) ([]string, error) {
	s.previous = append(s.previous, previous)
	if len(s.games) == 0 {
		return nil, errors.New("no more games")
	}
	games := s.games[0]
	s.games = s.games[1:]
	return games, nil
}

func TestRunWalksBothSteps(t *testing.T) {
	sess := &fakeSession{snap: session.Snapshot{
		Status: session.Authenticated,
		Gate:   rules.State{NeedsUsername: true, NeedsOnboarding: true},
	}}
	profiles := &fakeProfiles{taken: map[string]bool{"taken_name": true}}
	five := []string{"Halo", "Doom", "Celeste", "Hades", "Tetris"}
	steps := &scriptedSteps{
		names: []string{"taken_name", "ada_l"},
		games: [][]string{{"Halo"}, five},
	}

	decision, err := Guard{Session: sess, Profiles: profiles}.Run(context.Background(), steps)
	require.NoError(t, err)
	assert.Equal(t, Content, decision.Outcome)
	assert.Equal(t, []string{"taken_name", "ada_l"}, profiles.usernames)
	assert.Len(t, profiles.games, 2)

	require.Len(t, steps.previous, 4)
	assert.Nil(t, steps.previous[0])
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(steps.previous[1]))
	assert.Nil(t, steps.previous[2])
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(steps.previous[3]))
}

func TestRunRedirectsAnonymous(t *testing.T) {
	sess := &fakeSession{snap: session.Snapshot{Status: session.Anonymous}}
	decision, err := Guard{Session: sess}.Run(context.Background(), &scriptedSteps{})
	require.NoError(t, err)
	assert.Equal(t, Redirect, decision.Outcome)
}

func TestRunStopsOnStepError(t *testing.T) {
	sess := &fakeSession{snap: session.Snapshot{Status: session.Authenticated, Gate: rules.State{NeedsUsername: true}}}
	decision, err := Guard{Session: sess, Profiles: &fakeProfiles{}}.Run(context.Background(), &scriptedSteps{})
	require.Error(t, err)
	assert.Equal(t, UsernameStep, decision.Outcome)
}
