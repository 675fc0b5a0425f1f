package handlers

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamefolio/backend/internal/middleware"
	"github.com/gamefolio/backend/internal/models"
)

type routerFixture struct {
	router   http.Handler
	auth     *authStub
	profiles *profileStub
	clips    *clipStub
	admin    *adminStub
}

func newRouterFixture(checks map[string]ReadinessCheck) routerFixture {
	f := routerFixture{
		auth:     &authStub{},
		profiles: newProfileStub(),
		clips:    &clipStub{},
		admin:    &adminStub{},
	}
	f.router = NewRouter(Dependencies{
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Auth:        f.auth,
		Profiles:    f.profiles,
		Clips:       f.clips,
		Games:       gameStub{},
		Admin:       f.admin,
		Roles:       roleStub{"admin": models.RoleAdmin},
		Readiness:   checks,
		CORSOrigins: []string{"https://gamefolio.example"},
	})
	return f
}

func (f routerFixture) do(method, path, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	f := newRouterFixture(map[string]ReadinessCheck{
		"database": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return nil },
	})
	rec := f.do(http.MethodGet, "/healthz", "", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	rec = f.do(http.MethodGet, "/readyz", "", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	ready := decodeBody[readinessResponse](t, rec)
	assert.Equal(t, map[string]string{"database": "ok", "redis": "ok"}, ready.Checks)

	rec = f.do(http.MethodPost, "/healthz", "", nil, "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestReadyzReportsFailingDependency(t *testing.T) {
	f := newRouterFixture(map[string]ReadinessCheck{
		"database": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("dial tcp: refused") },
	})
	rec := f.do(http.MethodGet, "/readyz", "", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	ready := decodeBody[readinessResponse](t, rec)
	assert.Equal(t, "unavailable", ready.Status)
	assert.Equal(t, "unavailable", ready.Checks["redis"])
	assert.Equal(t, "ok", ready.Checks["database"])
}

func TestMeIsReachableBeforeOnboarding(t *testing.T) {
	f := newRouterFixture(nil)
	rec := f.do(http.MethodGet, "/api/v1/me", "newbie", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	me := decodeBody[meResponse](t, rec)
	assert.Equal(t, "newbie@example.com", me.User.Email)
	assert.True(t, me.Gate.NeedsUsername)
	assert.True(t, me.Gate.NeedsOnboarding)
}

func TestGatedRoutesRefuseIncompleteProfiles(t *testing.T) {
	f := newRouterFixture(nil)

	rec := f.do(http.MethodGet, "/api/v1/clips/feed", "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodGet, "/api/v1/clips/feed", "newbie", nil, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "USERNAME_REQUIRED", decodeBody[middleware.ErrorBody](t, rec).Code)

	rec = f.do(http.MethodGet, "/api/v1/clips/feed", "member", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "member", f.clips.feedFor)
}

func TestPublicRoutesServeAnonymousViewers(t *testing.T) {
	f := newRouterFixture(nil)

	rec := f.do(http.MethodGet, "/api/v1/explore?game=Valorant&q=%20ace%20", "", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, [2]string{"Valorant", "ace"}, f.clips.explore)

	rec = f.do(http.MethodGet, "/api/v1/clips/clip-1", "", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/api/v1/clips/missing", "", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodGet, "/api/v1/games/popular", "", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[gameListResponse](t, rec).Games, 25)
}

func TestUpdateSettingsKeepsOmittedFields(t *testing.T) {
	f := newRouterFixture(nil)
	rec := f.do(http.MethodPatch, "/api/v1/me/profile", "member", strings.NewReader(`{"bio":"Clutch or kick"}`), "application/json")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Clutch or kick", f.profiles.settings.bio)
	assert.Equal(t, map[string]string{"twitch": "https://twitch.tv/member_one"}, f.profiles.settings.links)
}

func TestFollowRoute(t *testing.T) {
	f := newRouterFixture(nil)
	rec := f.do(http.MethodPost, "/api/v1/users/the_admin/follow", "member", nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"member->the_admin"}, f.profiles.followed)
}

func TestClipUpload(t *testing.T) {
	f := newRouterFixture(nil)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("title", "1v5 clutch"))
	require.NoError(t, mw.WriteField("game", "Valorant"))
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="video"; filename="clutch.mp4"`)
	header.Set("Content-Type", "video/mp4")
	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write([]byte("fake-mp4"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	rec := f.do(http.MethodPost, "/api/v1/clips", "member", &body, mw.FormDataContentType())
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, f.clips.created, 1)
	upload := f.clips.created[0]
	assert.Equal(t, "1v5 clutch", upload.Title)
	assert.Equal(t, "clutch.mp4", upload.Filename)
	assert.Equal(t, "video/mp4", upload.ContentType)
	assert.Nil(t, upload.Thumbnail)
	assert.Equal(t, "fake-mp4", f.clips.video)
}

func TestClipUploadRequiresVideo(t *testing.T) {
	f := newRouterFixture(nil)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("title", "no video"))
	require.NoError(t, mw.Close())

	rec := f.do(http.MethodPost, "/api/v1/clips", "member", &body, mw.FormDataContentType())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.clips.created)
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	f := newRouterFixture(nil)

	rec := f.do(http.MethodPost, "/api/v1/admin/users/member/ban", "member", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, f.admin.banned)

	rec = f.do(http.MethodPost, "/api/v1/admin/users/member/ban", "admin", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[banResponse](t, rec).Banned)

	rec = f.do(http.MethodPost, "/api/v1/admin/users/admin/ban", "admin", nil, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "SELF_MODERATION", decodeBody[middleware.ErrorBody](t, rec).Code)
}

func TestCORSPreflight(t *testing.T) {
	f := newRouterFixture(nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/clips/feed", nil)
	req.Header.Set("Origin", "https://gamefolio.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	req.Header.Set("Access-Control-Request-Headers", "Authorization")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, "https://gamefolio.example", rec.Header().Get("Access-Control-Allow-Origin"))
}
