package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamefolio/backend/internal/apperr"
	"github.com/gamefolio/backend/internal/auth"
	"github.com/gamefolio/backend/internal/middleware"
	"github.com/gamefolio/backend/internal/models"
)

func postJSON(t *testing.T, h http.Handler, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestAuthHandlerSignUp(t *testing.T) {
	var gotEmail string
	stub := &authStub{signUp: func(email, _ string) (auth.SignUpResult, error) {
		gotEmail = email
		return auth.SignUpResult{EmailConfirmationRequired: true}, nil
	}}
	handler := http.HandlerFunc(AuthHandler{Auth: stub}.SignUp)

	rec := postJSON(t, handler, "/api/v1/auth/signup", `{"email":"new@example.com","password":"Str0ng!pass"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "new@example.com", gotEmail)
	assert.True(t, decodeBody[auth.SignUpResult](t, rec).EmailConfirmationRequired)
}

func TestAuthHandlerSignUpValidation(t *testing.T) {
	handler := http.HandlerFunc(AuthHandler{Auth: &authStub{}}.SignUp)

	cases := []struct {
		name  string
		body  string
		field string
	}{
		{"missing email", `{"password":"Str0ng!pass"}`, "email"},
		{"bad email", `{"email":"nope","password":"Str0ng!pass"}`, "email"},
		{"missing password", `{"email":"a@example.com"}`, "password"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postJSON(t, handler, "/api/v1/auth/signup", tc.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			body := decodeBody[middleware.ErrorBody](t, rec)
			assert.Equal(t, "VALIDATION_ERROR", body.Code)
			require.Len(t, body.Details, 1)
			assert.Equal(t, tc.field, body.Details[0].Field)
		})
	}

	rec := postJSON(t, handler, "/api/v1/auth/signup", `{"email":"a@example.com","password":"x","admin":true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, handler, "/api/v1/auth/signup", "")
	assert.Equal(t, "Request body is required", decodeBody[middleware.ErrorBody](t, rec).Error)
}

func TestAuthHandlerSignUpDuplicate(t *testing.T) {
	stub := &authStub{signUp: func(string, string) (auth.SignUpResult, error) {
		return auth.SignUpResult{}, apperr.DuplicateAccount("An account with this email already exists")
	}}
	rec := postJSON(t, http.HandlerFunc(AuthHandler{Auth: stub}.SignUp), "/", `{"email":"a@example.com","password":"Str0ng!pass"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "DUPLICATE_ACCOUNT", decodeBody[middleware.ErrorBody](t, rec).Code)
}

func TestAuthHandlerLogin(t *testing.T) {
	var gotIdentifier string
	stub := &authStub{signIn: func(identifier, password string) (auth.SignInResult, error) {
		gotIdentifier = identifier
		if password != "Str0ng!pass" {
			return auth.SignInResult{}, apperr.InvalidCredentials()
		}
		return auth.SignInResult{
			Account: models.Account{ID: "member", Email: "member@example.com"},
			Tokens:  models.SessionTokens{AccessToken: "access", RefreshToken: "refresh"},
		}, nil
	}}
	handler := http.HandlerFunc(AuthHandler{Auth: stub}.Login)

	rec := postJSON(t, handler, "/", `{"identifier":" member_one ","password":"Str0ng!pass"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "member_one", gotIdentifier)
	result := decodeBody[auth.SignInResult](t, rec)
	assert.Equal(t, "access", result.Tokens.AccessToken)
	assert.Equal(t, "member", result.Account.ID)

	rec = postJSON(t, handler, "/", `{"email":"member@example.com","password":"Str0ng!pass"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "member@example.com", gotIdentifier)

	rec = postJSON(t, handler, "/", `{"identifier":"member_one","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "INVALID_CREDENTIALS", decodeBody[middleware.ErrorBody](t, rec).Code)

	rec = postJSON(t, handler, "/", `{"password":"Str0ng!pass"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthHandlerLogoutWithoutBody(t *testing.T) {
	var revoked [2]string
	stub := &authStub{signOut: func(userID, refresh string) error {
		revoked = [2]string{userID, refresh}
		return nil
	}}
	handler := middleware.Authenticate(stub)(http.HandlerFunc(AuthHandler{Auth: stub}.Logout))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer member")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, [2]string{"member", ""}, revoked)
}

func TestAuthHandlerPasswordResetHidesUnknownEmails(t *testing.T) {
	calls := 0
	stub := &authStub{resetReq: func(string) error {
		calls++
		return nil
	}}
	rec := postJSON(t, http.HandlerFunc(AuthHandler{Auth: stub}.RequestPasswordReset), "/", `{"email":"ghost@example.com"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, calls)
}

func TestAuthHandlerPasswordResetCooldown(t *testing.T) {
	stub := &authStub{resetReq: func(string) error { return apperr.RateLimited(42) }}
	rec := postJSON(t, http.HandlerFunc(AuthHandler{Auth: stub}.RequestPasswordReset), "/", `{"email":"a@example.com"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "42", rec.Header().Get("Retry-After"))
	assert.Equal(t, 42, decodeBody[middleware.ErrorBody](t, rec).RetryAfter)
}

func TestAuthHandlerEventsStreamsSessionChanges(t *testing.T) {
	stub := &authStub{events: make(chan auth.Event, 2)}
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	stub.events <- auth.Event{Type: auth.EventUserUpdated, UserID: "member", At: at}
	stub.events <- auth.Event{Type: auth.EventSignedOut, UserID: "member", At: at}
	close(stub.events)

	handler := middleware.Authenticate(stub)(http.HandlerFunc(AuthHandler{Auth: stub, KeepAlive: time.Hour}.Events))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/events?access_token=member", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, []string{"member"}, stub.subscribers)

	body := rec.Body.String()
	var eventNames []string
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		if name, ok := strings.CutPrefix(scanner.Text(), "event: "); ok {
			eventNames = append(eventNames, name)
		}
	}
	assert.Equal(t, []string{"USER_UPDATED", "SIGNED_OUT"}, eventNames)
	assert.Contains(t, body, `data: {"type":"USER_UPDATED","userId":"member","at":"2026-03-04T05:06:07Z"}`)
}
