package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/gamefolio/backend/internal/middleware"
	"github.com/gamefolio/backend/internal/models"
)

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Logger        *slog.Logger
	Auth          AuthService
	Profiles      ProfileService
	Clips         ClipService
	Games         GameService
	Notifications NotificationService
	Admin         AdminService
	Roles         middleware.RoleLookup
	Readiness     map[string]ReadinessCheck

	// Per-IP limiters for the credential endpoints. Nil disables limiting.
	SignUpLimiter middleware.RateLimiter
	LoginLimiter  middleware.RateLimiter
	EmailLimiter  middleware.RateLimiter

	CORSOrigins    []string
	MaxUploadBytes int64
	KeepAlive      time.Duration
}

// NewRouter wires the HTTP handlers into a chi router.
func NewRouter(deps Dependencies) http.Handler {
	health := HealthHandler{Checks: deps.Readiness}
	authH := AuthHandler{Auth: deps.Auth, KeepAlive: deps.KeepAlive}
	profiles := ProfileHandler{Profiles: deps.Profiles, Clips: deps.Clips}
	clipsH := ClipHandler{Clips: deps.Clips, MaxUploadBytes: deps.MaxUploadBytes}
	gamesH := GameHandler{Games: deps.Games}
	notifications := NotificationHandler{Notifications: deps.Notifications}
	adminH := AdminHandler{Admin: deps.Admin}

	authenticate := middleware.Authenticate(deps.Auth)
	optional := middleware.OptionalAuthenticate(deps.Auth)
	onboarded := middleware.RequireOnboarded(deps.Profiles)

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimw.CleanPath)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Retry-After", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", health.Live)
	r.Get("/readyz", health.Ready)

	r.Route("/api/v1", func(api chi.Router) {
		api.Route("/auth", func(ar chi.Router) {
			ar.With(middleware.RateLimit(deps.SignUpLimiter, "signup")).Post("/signup", authH.SignUp)
			ar.With(middleware.RateLimit(deps.LoginLimiter, "login")).Post("/login", authH.Login)
			ar.Post("/refresh", authH.Refresh)
			ar.Post("/confirm", authH.ConfirmEmail)
			ar.Post("/password-reset/confirm", authH.ResetPassword)
			ar.Group(func(limited chi.Router) {
				limited.Use(middleware.RateLimit(deps.EmailLimiter, "email"))
				limited.Post("/resend-confirmation", authH.ResendConfirmation)
				limited.Post("/password-reset", authH.RequestPasswordReset)
			})
			ar.Group(func(signedIn chi.Router) {
				signedIn.Use(authenticate)
				signedIn.Post("/logout", authH.Logout)
				signedIn.Get("/events", authH.Events)
			})
		})

		// Public reads. A bearer token, when present, identifies the viewer.
		api.Group(func(pub chi.Router) {
			pub.Use(optional)
			pub.Get("/usernames/{name}/availability", profiles.Availability)
			pub.Get("/users/{username}", profiles.Public)
			pub.Get("/users/{username}/clips", profiles.UserClips)
			pub.Get("/explore", clipsH.Explore)
			pub.Get("/clips/{id}", clipsH.Get)
			pub.Get("/clips/{id}/comments", clipsH.Comments)
			pub.Post("/clips/{id}/share", clipsH.Share)
			pub.Get("/games/search", gamesH.Search)
			pub.Get("/games/popular", gamesH.Popular)
			pub.Get("/games/trending", gamesH.Trending)
			pub.Get("/games/{name}/clips", gamesH.Clips)
			pub.Get("/games/{name}/stats", gamesH.Stats)
		})

		// Signed in but not yet through the username and onboarding steps.
		api.Group(func(me chi.Router) {
			me.Use(authenticate)
			me.Get("/me", profiles.Me)
			me.Put("/me/username", profiles.SetUsername)
			me.Put("/me/onboarding", profiles.CompleteOnboarding)
		})

		api.Group(func(gated chi.Router) {
			gated.Use(authenticate, onboarded)
			gated.Patch("/me/profile", profiles.UpdateSettings)
			gated.Put("/me/avatar", profiles.UploadAvatar)
			gated.Post("/users/{username}/follow", profiles.Follow)
			gated.Delete("/users/{username}/follow", profiles.Unfollow)
			gated.Post("/clips", clipsH.Upload)
			gated.Get("/clips/feed", clipsH.Feed)
			gated.Get("/clips/liked", clipsH.Liked)
			gated.Patch("/clips/{id}", clipsH.Rename)
			gated.Delete("/clips/{id}", clipsH.Delete)
			gated.Post("/clips/{id}/like", clipsH.Like)
			gated.Post("/clips/{id}/comments", clipsH.Comment)
			gated.Get("/notifications", notifications.List)
			gated.Get("/notifications/unread", notifications.Unread)
		})

		api.Route("/admin", func(adm chi.Router) {
			adm.Use(authenticate, middleware.RequireRole(models.RoleAdmin, deps.Roles))
			adm.Get("/users", adminH.Users)
			adm.Post("/users/{id}/role", adminH.ToggleRole)
			adm.Post("/users/{id}/ban", adminH.ToggleBan)
			adm.Post("/users/{id}/reset-onboarding", adminH.ResetOnboarding)
			adm.Post("/users/{id}/password-reset", adminH.SendPasswordReset)
			adm.Delete("/users/{id}", adminH.DeleteUser)
			adm.Delete("/clips/{id}", adminH.DeleteClip)
			adm.Get("/activity", adminH.Activity)
		})
	})

	return r
}
