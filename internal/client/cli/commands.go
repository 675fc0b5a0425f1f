package cli

import (
	"context"
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gamefolio/backend/internal/apperr"
	"github.com/gamefolio/backend/internal/client/gate"
	"github.com/gamefolio/backend/internal/client/session"
)

func signUpCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "signup [email]",
		Short: "Create an account",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			email, err := argOrPrompt(args, app.In, app.Out, "Email")
			if err != nil {
				return err
			}
			password, err := readSecret(app.Out, "Password")
			if err != nil {
				return err
			}
			confirm, err := readSecret(app.Out, "Confirm password")
			if err != nil {
				return err
			}
			if password != confirm {
				return errors.New("passwords do not match")
			}

			result, err := app.Client.SignUp(cmd.Context(), email, password)
			if err != nil {
				return describe(err)
			}
			if result.EmailConfirmationRequired {
				app.printf("Account created. Check %s for a confirmation link before signing in.\n", email)
				return nil
			}
			app.printf("Account created. Run \"gamefolio login\" to sign in.\n")
			return nil
		},
	}
}

func loginCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "login [email-or-username]",
		Short: "Sign in with an email address or username",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			identifier, err := argOrPrompt(args, app.In, app.Out, "Email or username")
			if err != nil {
				return err
			}
			password, err := readSecret(app.Out, "Password")
			if err != nil {
				return err
			}

			s, err := app.Client.SignIn(cmd.Context(), identifier, password)
			if err != nil {
				return describe(err)
			}
			app.printf("Signed in as %s.\n", s.User.Email)

			me, err := app.Client.Profile(cmd.Context())
			if err != nil {
				app.Logger.Debug("profile lookup after sign-in failed", "error", err)
				return nil
			}
			if !me.Gate.Complete() {
				app.printf("Finish setting up your gamefolio with \"gamefolio onboard\".\n")
			}
			return nil
		},
	}
}

func logoutCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app.Client.SignOut(cmd.Context())
			app.printf("Signed out.\n")
			return nil
		},
	}
}

func resetCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "reset [email]",
		Short: "Email a password reset link",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			email, err := argOrPrompt(args, app.In, app.Out, "Email")
			if err != nil {
				return err
			}
			if err := app.Client.ResetPassword(cmd.Context(), email); err != nil {
				return describe(err)
			}
			app.printf("If %s has an account, a reset link is on its way.\n", email)
			return nil
		},
	}
}

func resendCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "resend [email]",
		Short: "Send the confirmation email again",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			email, err := argOrPrompt(args, app.In, app.Out, "Email")
			if err != nil {
				return err
			}
			if err := app.Client.ResendConfirmation(cmd.Context(), email); err != nil {
				return describe(err)
			}
			app.printf("Confirmation email sent to %s.\n", email)
			return nil
		},
	}
}

func whoamiCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account and pending setup steps",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := app.ensureFresh(cmd.Context()); err != nil {
				return err
			}
			me, err := app.Client.Profile(cmd.Context())
			if err != nil {
				return describe(err)
			}
			username := "(not chosen)"
			if !me.Gate.NeedsUsername && me.Profile.Username != nil {
				username = *me.Profile.Username
			}
			app.printf("email:    %s\nusername: %s\n", me.User.Email, username)
			switch {
			case me.Gate.NeedsUsername:
				app.printf("next:     choose a username (gamefolio onboard)\n")
			case me.Gate.NeedsOnboarding:
				app.printf("next:     pick your favorite games (gamefolio onboard)\n")
			default:
				app.printf("games:    %s\n", strings.Join(me.Profile.FavoriteGames, ", "))
			}
			return nil
		},
	}
}

func onboardCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "onboard",
		Short: "Choose a username and favorite games",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			if err := app.ensureFresh(ctx); err != nil {
				return err
			}

			store := session.NewStore(app.Client, app.Logger)
			done := make(chan error, 1)
			go func() { done <- store.Run(ctx) }()
			defer func() {
				cancel()
				<-done
			}()

			availability := gate.NewAvailability(app.Client, app.Debounce)
			defer availability.Close()

			guard := gate.Guard{Session: store, Profiles: app.Client}
			decision, err := guard.Run(ctx, &promptSteps{app: app, availability: availability})
			if err != nil {
				return describe(err)
			}
			if decision.Outcome == gate.Redirect {
				return errNotSignedIn
			}
			app.printf("You're all set.\n")
			return nil
		},
	}
}

func watchCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print session changes pushed by the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := app.ensureFresh(ctx); err != nil {
				return err
			}
			events, stop := app.Client.Subscribe()
			defer stop()
			go func() {
				for ev := range events {
					app.printf("%s\n", ev.Type)
				}
			}()
			return describe(app.Client.Listen(ctx))
		},
	}
}

// describe turns client errors into the message shown to the user.
func describe(err error) error {
	if err == nil {
		return nil
	}
	e := apperr.As(err)
	if e == nil {
		return err
	}
	msg := e.Message
	for _, d := range e.Details {
		msg += "\n  - " + d.Message
	}
	return errors.New(msg)
}

// promptSteps asks for the first-run answers on the terminal.
type promptSteps struct {
	app          *App
	availability *gate.Availability
}

func (p *promptSteps) Username(ctx context.Context, previous error) (string, error) {
	if previous != nil {
		p.app.printf("%s\n", describe(previous))
	}
	for {
		name, err := readLine(p.app.In, p.app.Out, "Username")
		if err != nil {
			return "", err
		}
		result, err := p.availability.Resolve(ctx, name)
		if err != nil {
			return "", err
		}
		if result.Err != nil {
			p.app.printf("Could not check availability: %s\n", describe(result.Err))
			continue
		}
		if p.availability.CanSubmit() {
			return name, nil
		}
		msg := result.Availability.Message
		if msg == "" {
			msg = "That username is taken"
		}
		p.app.printf("%s\n", msg)
	}
}

func (p *promptSteps) FavoriteGames(ctx context.Context, previous error) ([]string, error) {
	if previous != nil {
		p.app.printf("%s\n", describe(previous))
	}
	line, err := readLine(p.app.In, p.app.Out, "Five favorite games (comma separated)")
	if err != nil {
		return nil, err
	}
	return splitGames(line), nil
}

