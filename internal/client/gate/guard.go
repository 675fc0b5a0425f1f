// Package gate decides what a signed-in screen may show and drives the
// username and onboarding steps that stand in front of protected content.
package gate

import (
	"context"

	"github.com/gamefolio/backend/internal/apperr"
	"github.com/gamefolio/backend/internal/client/session"
	"github.com/gamefolio/backend/internal/models"
)

// Outcome is what a gated screen renders.
type Outcome int

const (
	Blank Outcome = iota
	Redirect
	UsernameStep
	OnboardingStep
	Content
)

func (o Outcome) String() string {
	switch o {
	case Redirect:
		return "redirect"
	case UsernameStep:
		return "username"
	case OnboardingStep:
		return "onboarding"
	case Content:
		return "content"
	default:
		return "blank"
	}
}

// Decision is the result of evaluating a snapshot. Target is set for
// redirects.
type Decision struct {
	Outcome Outcome
	Target  string
}

// SessionView is the session store surface the guard reads and updates.
type SessionView interface {
	Current() session.Snapshot
	Await(ctx context.Context) (session.Snapshot, error)
	MarkUsernameSet(ctx context.Context, profile models.Profile) error
	MarkOnboarded(ctx context.Context, profile models.Profile) error
}

// ProfileWriter saves the first-run steps.
type ProfileWriter interface {
	SetUsername(ctx context.Context, name string) (models.Profile, error)
	CompleteOnboarding(ctx context.Context, games []string) (models.Profile, error)
}

// Steps collects input for each first-run step. previous is the error that
// rejected the last answer, or nil on the first prompt.
type Steps interface {
	Username(ctx context.Context, previous error) (string, error)
	FavoriteGames(ctx context.Context, previous error) ([]string, error)
}

// Guard gates protected content behind sign-in, username and onboarding.
type Guard struct {
	Session  SessionView
	Profiles ProfileWriter

	// RedirectTo is where anonymous visitors are sent. Empty means "/".
	RedirectTo string
}

// Decide evaluates a snapshot. The checks run in a fixed order so the
// username step always precedes onboarding.
func (g Guard) Decide(snap session.Snapshot) Decision {
	switch {
	case snap.Status == session.Loading:
		return Decision{Outcome: Blank}
	case snap.Status == session.Anonymous:
		target := g.RedirectTo
		if target == "" {
			target = "/"
		}
		return Decision{Outcome: Redirect, Target: target}
	case snap.Gate.NeedsUsername:
		return Decision{Outcome: UsernameStep}
	case snap.Gate.NeedsOnboarding:
		return Decision{Outcome: OnboardingStep}
	default:
		return Decision{Outcome: Content}
	}
}

// Run walks the caller through any pending step and returns once the
// decision is Content or Redirect.
func (g Guard) Run(ctx context.Context, steps Steps) (Decision, error) {
	snap, err := g.Session.Await(ctx)
	if err != nil {
		return Decision{}, err
	}

	var previous error
	for {
		decision := g.Decide(snap)
		switch decision.Outcome {
		case Content, Redirect:
			return decision, nil
		case Blank:
			if snap, err = g.Session.Await(ctx); err != nil {
				return Decision{}, err
			}
			continue
		case UsernameStep:
			previous, err = g.usernameStep(ctx, steps, previous)
		case OnboardingStep:
			previous, err = g.onboardingStep(ctx, steps, previous)
		}
		if err != nil {
			return decision, err
		}
		snap = g.Session.Current()
	}
}

func (g Guard) usernameStep(ctx context.Context, steps Steps, previous error) (rejected, err error) {
	name, err := steps.Username(ctx, previous)
	if err != nil {
		return nil, err
	}
	profile, err := g.Profiles.SetUsername(ctx, name)
	if retryable(err) {
		return err, nil
	}
	if err != nil {
		return nil, err
	}
	return nil, g.Session.MarkUsernameSet(ctx, profile)
}

func (g Guard) onboardingStep(ctx context.Context, steps Steps, previous error) (rejected, err error) {
	games, err := steps.FavoriteGames(ctx, previous)
	if err != nil {
		return nil, err
	}
	profile, err := g.Profiles.CompleteOnboarding(ctx, games)
	if retryable(err) {
		return err, nil
	}
	if err != nil {
		return nil, err
	}
	return nil, g.Session.MarkOnboarded(ctx, profile)
}

// retryable reports errors the user can fix by answering the step again.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	switch apperr.KindOf(err) {
	case apperr.KindValidation, apperr.KindConflict, apperr.KindDuplicateAccount:
		return true
	default:
		return false
	}
}
