// Package gate derives the first-run requirements of a profile and validates
// the inputs collected while satisfying them. Everything here is pure so the
// server middleware and the client guard share one definition.
package gate

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/gamefolio/backend/internal/apperr"
	"github.com/gamefolio/backend/internal/models"
)

// PlaceholderPrefix marks handles generated during profile bootstrap.
const PlaceholderPrefix = "user_"

// FavoriteGamesRequired is the exact number of games onboarding collects.
const FavoriteGamesRequired = 5

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// State is the pair of first-run flags derived from a profile.
type State struct {
	NeedsUsername   bool `json:"needsUsername"`
	NeedsOnboarding bool `json:"needsOnboarding"`
}

// Step names the next first-run step.
type Step string

const (
	StepNone       Step = ""
	StepUsername   Step = "username"
	StepOnboarding Step = "onboarding"
)

// Next returns the step that must be completed first. The username step
// always precedes onboarding.
func (s State) Next() Step {
	switch {
	case s.NeedsUsername:
		return StepUsername
	case s.NeedsOnboarding:
		return StepOnboarding
	default:
		return StepNone
	}
}

// Complete reports whether no first-run step is pending.
func (s State) Complete() bool {
	return !s.NeedsUsername && !s.NeedsOnboarding
}

// Derive computes the first-run flags for an already fetched profile.
func Derive(p models.Profile) State {
	return State{
		NeedsUsername:   NeedsUsername(p.Username),
		NeedsOnboarding: NeedsOnboarding(p),
	}
}

// NeedsUsername reports whether the handle is unset or still a placeholder.
func NeedsUsername(username *string) bool {
	return username == nil || *username == "" || strings.HasPrefix(*username, PlaceholderPrefix)
}

// NeedsOnboarding reports whether the favorite games step is still pending.
func NeedsOnboarding(p models.Profile) bool {
	return !p.OnboardingCompleted || p.FavoriteGames == nil || len(p.FavoriteGames) < FavoriteGamesRequired
}

// PlaceholderUsername returns the bootstrap handle for a user id.
func PlaceholderUsername(userID string) string {
	prefix := userID
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return PlaceholderPrefix + prefix
}

var usernamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{2,29}$`)

// ValidUsername reports whether name is an acceptable handle.
func ValidUsername(name string) bool {
	return usernamePattern.MatchString(name)
}

// ValidateUsername returns a ValidationError describing why name is rejected.
func ValidateUsername(name string) error {
	if ReservedUsername(name) {
		// user_ handles are reserved for bootstrap placeholders and would
		// keep the username step pending forever.
		return apperr.Validation("Username is reserved",
			apperr.FieldError{Field: "username", Message: "Usernames may not start with user_"})
	}
	if ValidUsername(name) {
		return nil
	}
	return apperr.Validation("Invalid username",
		apperr.FieldError{Field: "username", Message: "Must start with a letter and contain 3-30 letters, numbers or underscores"})
}

// ReservedUsername reports whether a syntactically valid name collides with
// the placeholder namespace.
func ReservedUsername(name string) bool {
	return strings.HasPrefix(strings.ToLower(name), PlaceholderPrefix)
}

// PasswordRequirement is a single password rule.
type PasswordRequirement string

const (
	RequireLength    PasswordRequirement = "length"
	RequireUppercase PasswordRequirement = "uppercase"
	RequireLowercase PasswordRequirement = "lowercase"
	RequireDigit     PasswordRequirement = "digit"
	RequireSpecial   PasswordRequirement = "special"
)

var requirementMessages = map[PasswordRequirement]string{
	RequireLength:    fmt.Sprintf("At least %d characters", MinPasswordLength),
	RequireUppercase: "At least one uppercase letter",
	RequireLowercase: "At least one lowercase letter",
	RequireDigit:     "At least one number",
	RequireSpecial:   "At least one special character",
}

// UnmetPasswordRequirements lists the rules password does not satisfy, in a
// stable order.
func UnmetPasswordRequirements(password string) []PasswordRequirement {
	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r) || unicode.IsSpace(r):
			special = true
		}
	}

	var unmet []PasswordRequirement
	if len([]rune(password)) < MinPasswordLength {
		unmet = append(unmet, RequireLength)
	}
	if !upper {
		unmet = append(unmet, RequireUppercase)
	}
	if !lower {
		unmet = append(unmet, RequireLowercase)
	}
	if !digit {
		unmet = append(unmet, RequireDigit)
	}
	if !special {
		unmet = append(unmet, RequireSpecial)
	}
	return unmet
}

// ValidatePassword returns a ValidationError listing every unmet rule.
func ValidatePassword(password string) error {
	unmet := UnmetPasswordRequirements(password)
	if len(unmet) == 0 {
		return nil
	}
	details := make([]apperr.FieldError, 0, len(unmet))
	for _, req := range unmet {
		details = append(details, apperr.FieldError{Field: "password", Message: requirementMessages[req]})
	}
	return apperr.Validation("Password does not meet the requirements", details...)
}

// NormalizeFavoriteGames trims names and drops blanks and case-insensitive
// duplicates, keeping the first spelling.
func NormalizeFavoriteGames(games []string) []string {
	seen := make(map[string]struct{}, len(games))
	out := make([]string, 0, len(games))
	for _, g := range games {
		g = strings.TrimSpace(g)
		if g == "" {
			continue
		}
		key := strings.ToLower(g)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, g)
	}
	return out
}

// ValidateFavoriteGames requires exactly FavoriteGamesRequired distinct names.
func ValidateFavoriteGames(games []string) error {
	if len(NormalizeFavoriteGames(games)) != FavoriteGamesRequired || len(games) != FavoriteGamesRequired {
		return apperr.Validation(fmt.Sprintf("Please select %d games", FavoriteGamesRequired),
			apperr.FieldError{Field: "favoriteGames", Message: fmt.Sprintf("Exactly %d distinct games are required", FavoriteGamesRequired)})
	}
	return nil
}
