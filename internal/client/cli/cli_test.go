package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamefolio/backend/internal/client/credentials"
	"github.com/gamefolio/backend/internal/models"
)

func stubPasswords(t *testing.T, passwords ...string) {
	t.Helper()
	orig := readPassword
	t.Cleanup(func() { readPassword = orig })
	readPassword = func(int) ([]byte, error) {
		if len(passwords) == 0 {
			return nil, errors.New("no password scripted")
		}
		pw := passwords[0]
		passwords = passwords[1:]
		return []byte(pw), nil
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type testEnv struct {
	app     *App
	out     *bytes.Buffer
	session string
}

func newTestEnv(t *testing.T, handler http.Handler, input string) *testEnv {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	out := &bytes.Buffer{}
	sessionFile := filepath.Join(t.TempDir(), "session.json")
	return &testEnv{
		app: &App{
			Client: credentials.New(credentials.Options{
				BaseURL:   srv.URL,
				Logger:    logger,
				RetryBase: time.Millisecond,
			}),
			SessionFile: sessionFile,
			In:          bufio.NewReader(strings.NewReader(input)),
			Out:         out,
			Logger:      logger,
			Debounce:    time.Millisecond,
		},
		out:     out,
		session: sessionFile,
	}
}

func tokens() map[string]any {
	return map[string]any{
		"accessToken":      "access-1",
		"accessExpiresAt":  time.Now().Add(15 * time.Minute),
		"refreshToken":     "refresh-1",
		"refreshExpiresAt": time.Now().Add(24 * time.Hour),
	}
}

func apiMux(t *testing.T) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["password"] != "Sup3r$ecret" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid email or password", "code": "INVALID_CREDENTIALS"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"user":   map[string]any{"id": "u1", "email": "ada@example.com"},
			"tokens": tokens(),
		})
	})
	mux.HandleFunc("POST /auth/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func TestLoginSavesSession(t *testing.T) {
	stubPasswords(t, "Sup3r$ecret")
	mux := apiMux(t)
	mux.HandleFunc("GET /me", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"user":    map[string]any{"id": "u1", "email": "ada@example.com"},
			"profile": map[string]any{"userId": "u1", "username": "user_u1"},
			"gate":    map[string]any{"needsUsername": true, "needsOnboarding": true},
		})
	})
	env := newTestEnv(t, mux, "")

	require.NoError(t, Run(context.Background(), env.app, []string{"login", "ada@example.com"}))
	assert.Contains(t, env.out.String(), "Signed in as ada@example.com")
	assert.Contains(t, env.out.String(), "gamefolio onboard")

	saved, err := loadSession(env.session)
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, "refresh-1", saved.RefreshToken)

	info, err := os.Stat(env.session)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoginWrongPassword(t *testing.T) {
	stubPasswords(t, "nope")
	env := newTestEnv(t, apiMux(t), "ada@example.com\n")

	err := Run(context.Background(), env.app, []string{"login"})
	require.Error(t, err)
	assert.Equal(t, "Invalid email or password", err.Error())
	_, statErr := os.Stat(env.session)
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}

func TestLogoutRemovesSession(t *testing.T) {
	env := newTestEnv(t, apiMux(t), "")
	require.NoError(t, saveSession(env.session, &credentials.Session{
		AccessToken:     "access-1",
		AccessExpiresAt: time.Now().Add(time.Hour),
		RefreshToken:    "refresh-1",
	}))

	require.NoError(t, Run(context.Background(), env.app, []string{"logout"}))
	_, err := os.Stat(env.session)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestSignUpWeakPasswordListsRequirements(t *testing.T) {
	stubPasswords(t, "weak", "weak")
	var calls atomic.Int32
	env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}), "")

	err := Run(context.Background(), env.app, []string{"signup", "ada@example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "\n  - ")
	assert.Zero(t, calls.Load())
}

func TestSignUpMismatchedConfirmation(t *testing.T) {
	stubPasswords(t, "Sup3r$ecret", "Sup3r$ecreT")
	env := newTestEnv(t, http.NotFoundHandler(), "")

	err := Run(context.Background(), env.app, []string{"signup", "ada@example.com"})
	require.EqualError(t, err, "passwords do not match")
}

func TestResetPrintsNeutralMessage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/password-reset", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	env := newTestEnv(t, mux, "")

	require.NoError(t, Run(context.Background(), env.app, []string{"reset", "ada@example.com"}))
	assert.Contains(t, env.out.String(), "reset link is on its way")
}

func TestWhoamiRequiresSession(t *testing.T) {
	env := newTestEnv(t, http.NotFoundHandler(), "")
	err := Run(context.Background(), env.app, []string{"whoami"})
	assert.ErrorIs(t, err, errNotSignedIn)
}

func TestOnboardWalksBothSteps(t *testing.T) {
	var username atomic.Value
	username.Store("user_u1")
	var onboarded atomic.Bool

	mux := apiMux(t)
	mux.HandleFunc("GET /me", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"user":    map[string]any{"id": "u1", "email": "ada@example.com"},
			"profile": map[string]any{"userId": "u1", "username": username.Load()},
		})
	})
	mux.HandleFunc("GET /usernames/{name}/availability", func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		writeJSON(w, http.StatusOK, map[string]any{"username": name, "valid": true, "available": name != "taken_name"})
	})
	mux.HandleFunc("PUT /me/username", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		username.Store(body["username"])
		writeJSON(w, http.StatusOK, map[string]any{"userId": "u1", "username": body["username"]})
	})
	mux.HandleFunc("PUT /me/onboarding", func(w http.ResponseWriter, r *http.Request) {
		var body map[string][]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		onboarded.Store(true)
		writeJSON(w, http.StatusOK, map[string]any{
			"userId":              "u1",
			"username":            username.Load(),
			"favoriteGames":       body["favoriteGames"],
			"onboardingCompleted": true,
		})
	})

	input := strings.Join([]string{
		"1x",         // invalid locally
		"taken_name", // taken
		"ada_l",
		"Halo, Doom",
		"Halo, Doom, Celeste, Hades, Tetris",
	}, "\n") + "\n"
	env := newTestEnv(t, mux, input)
	require.NoError(t, saveSession(env.session, &credentials.Session{
		User:            models.Account{ID: "u1", Email: "ada@example.com"},
		AccessToken:     "access-1",
		AccessExpiresAt: time.Now().Add(time.Hour),
		RefreshToken:    "refresh-1",
	}))

	require.NoError(t, Run(context.Background(), env.app, []string{"onboard"}))
	assert.Equal(t, "ada_l", username.Load())
	assert.True(t, onboarded.Load())

	out := env.out.String()
	assert.Contains(t, out, "That username is taken")
	assert.Contains(t, out, "Exactly 5 distinct games are required")
	assert.Contains(t, out, "You're all set.")
}

func TestSplitGames(t *testing.T) {
	assert.Equal(t, []string{"Halo", "Doom"}, splitGames(" Halo ,, Doom ,"))
	assert.Empty(t, splitGames(""))
}
