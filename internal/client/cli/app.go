// Package cli is the gamefolio command line client. It signs users in,
// walks them through the first-run steps and keeps the session on disk
// between invocations.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/gamefolio/backend/internal/client/credentials"
	"github.com/gamefolio/backend/internal/config"
	"github.com/gamefolio/backend/internal/logging"
)

// App holds what every command needs.
type App struct {
	Client      *credentials.Client
	SessionFile string
	In          *bufio.Reader
	Out         io.Writer
	Logger      *slog.Logger

	// Debounce is the availability quiet period used by onboard.
	Debounce time.Duration

	loaded bool
}

// Execute loads the CLI configuration and runs the command named by args.
func Execute(ctx context.Context, args []string) error {
	cfg, err := config.LoadCLI()
	if err != nil {
		return err
	}
	logger := logging.New(os.Stderr, cfg.LogLevel)

	app := &App{
		Client: credentials.New(credentials.Options{
			BaseURL:  cfg.APIURL,
			Timeout:  cfg.Timeout,
			Cooldown: cfg.Cooldown,
			Logger:   logger,
		}),
		SessionFile: cfg.SessionFile,
		In:          bufio.NewReader(os.Stdin),
		Out:         os.Stdout,
		Logger:      logger,
	}

	return Run(ctx, app, args)
}

// Run executes one command and saves the session it leaves behind, also
// when the command failed after rotating tokens.
func Run(ctx context.Context, app *App, args []string) error {
	root := NewRootCommand(app)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if !app.loaded {
		return err
	}
	return errors.Join(err, saveSession(app.SessionFile, app.Client.Session()))
}

// NewRootCommand builds the command tree around app.
func NewRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "gamefolio",
		Short:         "Sign in to Gamefolio and set up your gamefolio",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			s, err := loadSession(app.SessionFile)
			if err != nil {
				return err
			}
			if s != nil {
				app.Client.SetSession(s)
			}
			app.loaded = true
			return nil
		},
	}
	root.SetOut(app.Out)
	root.SetErr(app.Out)

	root.AddCommand(
		signUpCommand(app),
		loginCommand(app),
		logoutCommand(app),
		resetCommand(app),
		resendCommand(app),
		whoamiCommand(app),
		onboardCommand(app),
		watchCommand(app),
	)
	return root
}

const refreshMargin = 30 * time.Second

var errNotSignedIn = errors.New("not signed in, run \"gamefolio login\" first")

// ensureFresh refreshes an access token that is about to expire.
func (a *App) ensureFresh(ctx context.Context) error {
	s := a.Client.Session()
	if s == nil {
		return errNotSignedIn
	}
	if time.Until(s.AccessExpiresAt) > refreshMargin {
		return nil
	}
	if _, err := a.Client.Refresh(ctx); err != nil {
		return fmt.Errorf("session expired, sign in again: %w", err)
	}
	return nil
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.Out, format, args...)
}
