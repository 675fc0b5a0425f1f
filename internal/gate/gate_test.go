package gate

import (
	"errors"
	"strings"
	"testing"

	"github.com/gamefolio/backend/internal/apperr"
	"github.com/gamefolio/backend/internal/models"
)

func strPtr(s string) *string { return &s }

func TestValidUsername(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"abc", true},
		{"Player_One", true},
		{"a12", true},
		{strings.Repeat("a", 30), true},
		{strings.Repeat("a", 31), false},
		{"ab", false},
		{"1abc", false},
		{"_abc", false},
		{"ab-c", false},
		{"ab c", false},
		{"", false},
		{"émile", false},
	}

	for _, tt := range tests {
		if got := ValidUsername(tt.name); got != tt.want {
			t.Errorf("ValidUsername(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestValidateUsernameReturnsValidationError(t *testing.T) {
	err := ValidateUsername("9lives")
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := ValidateUsername("ninelives"); err != nil {
		t.Fatalf("expected valid username, got %v", err)
	}
	err = ValidateUsername("User_pro")
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected placeholder prefix to be rejected, got %v", err)
	}
	if msg := apperr.As(err).Message; msg != "Username is reserved" {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestDeriveOrdering(t *testing.T) {
	five := []string{"a", "b", "c", "d", "e"}

	tests := []struct {
		name    string
		profile models.Profile
		want    State
		next    Step
	}{
		{
			name:    "fresh bootstrap",
			profile: models.Profile{Username: strPtr("user_1234abcd")},
			want:    State{NeedsUsername: true, NeedsOnboarding: true},
			next:    StepUsername,
		},
		{
			name:    "nil username",
			profile: models.Profile{OnboardingCompleted: true, FavoriteGames: five},
			want:    State{NeedsUsername: true},
			next:    StepUsername,
		},
		{
			name:    "username set, onboarding pending",
			profile: models.Profile{Username: strPtr("ace")},
			want:    State{NeedsOnboarding: true},
			next:    StepOnboarding,
		},
		{
			name:    "flag set but too few games",
			profile: models.Profile{Username: strPtr("ace"), OnboardingCompleted: true, FavoriteGames: five[:4]},
			want:    State{NeedsOnboarding: true},
			next:    StepOnboarding,
		},
		{
			name:    "games present but flag unset",
			profile: models.Profile{Username: strPtr("ace"), FavoriteGames: five},
			want:    State{NeedsOnboarding: true},
			next:    StepOnboarding,
		},
		{
			name:    "complete",
			profile: models.Profile{Username: strPtr("ace"), OnboardingCompleted: true, FavoriteGames: five},
			want:    State{},
			next:    StepNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Derive(tt.profile)
			if got != tt.want {
				t.Fatalf("Derive() = %+v, want %+v", got, tt.want)
			}
			if got.Next() != tt.next {
				t.Fatalf("Next() = %q, want %q", got.Next(), tt.next)
			}
		})
	}
}

func TestPlaceholderUsername(t *testing.T) {
	got := PlaceholderUsername("0f8fad5b-d9cb-469f-a165-70867728950e")
	if got != "user_0f8fad5b" {
		t.Fatalf("unexpected placeholder %q", got)
	}
	if !NeedsUsername(&got) {
		t.Fatal("placeholder must keep the username step pending")
	}
}

func TestValidatePasswordListsEveryUnmetRule(t *testing.T) {
	err := ValidatePassword("abc")
	appErr := apperr.As(err)
	if appErr == nil || appErr.Kind != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}

	got := UnmetPasswordRequirements("abc")
	want := []PasswordRequirement{RequireLength, RequireUppercase, RequireDigit, RequireSpecial}
	if len(got) != len(want) {
		t.Fatalf("unmet = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unmet = %v, want %v", got, want)
		}
	}
	if len(appErr.Details) != len(want) {
		t.Fatalf("expected %d details, got %d", len(want), len(appErr.Details))
	}

	if err := ValidatePassword("Str0ng!pass"); err != nil {
		t.Fatalf("expected strong password to pass, got %v", err)
	}
}

func TestValidateFavoriteGames(t *testing.T) {
	if err := ValidateFavoriteGames([]string{"Valorant", "Dota 2", "Minecraft", "Elden Ring", "Roblox"}); err != nil {
		t.Fatalf("expected five games to pass, got %v", err)
	}
	if err := ValidateFavoriteGames([]string{"Valorant", "Dota 2", "Minecraft", "Elden Ring"}); err == nil {
		t.Fatal("expected four games to fail")
	}
	if err := ValidateFavoriteGames([]string{"Valorant", "valorant", "Minecraft", "Elden Ring", "Roblox"}); err == nil {
		t.Fatal("expected duplicate games to fail")
	}
}
