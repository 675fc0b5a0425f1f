package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// CLIConfig configures the gamefolio command line client.
type CLIConfig struct {
	APIURL      string        `env:"API_URL" envDefault:"http://localhost:8080/api/v1"`
	Timeout     time.Duration `env:"TIMEOUT" envDefault:"15s"`
	Cooldown    time.Duration `env:"COOLDOWN" envDefault:"60s"`
	SessionFile string        `env:"SESSION_FILE"`
	LogLevel    string        `env:"LOG_LEVEL" envDefault:"warn"`
}

// LoadCLI reads GAMEFOLIO_CLI_ variables, after an optional .env file. The
// session file defaults to the user config directory.
func LoadCLI() (CLIConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return CLIConfig{}, fmt.Errorf("load .env: %w", err)
	}

	cfg, err := env.ParseAsWithOptions[CLIConfig](env.Options{Prefix: "GAMEFOLIO_CLI_"})
	if err != nil {
		return CLIConfig{}, fmt.Errorf("parse environment: %w", err)
	}
	if u, err := url.Parse(cfg.APIURL); err != nil || u.Scheme == "" || u.Host == "" {
		return CLIConfig{}, fmt.Errorf("invalid api url %q", cfg.APIURL)
	}
	if cfg.Timeout < 10*time.Second || cfg.Timeout > 30*time.Second {
		return CLIConfig{}, fmt.Errorf("timeout %s outside the 10s-30s range", cfg.Timeout)
	}
	if cfg.SessionFile == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return CLIConfig{}, fmt.Errorf("locate config dir: %w", err)
		}
		cfg.SessionFile = filepath.Join(dir, "gamefolio", "session.json")
	}
	return cfg, nil
}
