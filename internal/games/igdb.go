package games

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/gamefolio/backend/internal/config"
)

const igdbFields = "fields name, cover.url, genres.name, summary, first_release_date;"

// IGDBClient queries the IGDB v4 API with a Twitch app access token.
type IGDBClient struct {
	baseURL  string
	clientID string
	http     *http.Client
}

// NewIGDBClient returns a client whose token is fetched and refreshed by the
// oauth2 client-credentials flow.
func NewIGDBClient(cfg config.IGDBConfig) (*IGDBClient, error) {
	if !cfg.Enabled() {
		return nil, ErrCatalogUnavailable
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	creds := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Timeout: timeout})
	client := creds.Client(tokenCtx)
	client.Timeout = timeout

	return &IGDBClient{
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		clientID: cfg.ClientID,
		http:     client,
	}, nil
}

// Search finds games by name.
func (c *IGDBClient) Search(ctx context.Context, query string) ([]Game, error) {
	body := fmt.Sprintf("search %s; %s where version_parent = null; limit 20;", quoteApicalypse(query), igdbFields)
	return c.games(ctx, body)
}

// Popular returns the most rated games.
func (c *IGDBClient) Popular(ctx context.Context) ([]Game, error) {
	body := igdbFields + " where version_parent = null & total_rating_count != null; sort total_rating_count desc; limit 20;"
	return c.games(ctx, body)
}

type igdbGame struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Cover *struct {
		URL string `json:"url"`
	} `json:"cover"`
	Genres []struct {
		Name string `json:"name"`
	} `json:"genres"`
	Summary          string `json:"summary"`
	FirstReleaseDate int64  `json:"first_release_date"`
}

func (c *IGDBClient) games(ctx context.Context, body string) ([]Game, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/games", strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build igdb request: %w", err)
	}
	req.Header.Set("Client-ID", c.clientID)
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("igdb request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("igdb returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var raw []igdbGame
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode igdb response: %w", err)
	}

	out := make([]Game, 0, len(raw))
	for _, g := range raw {
		out = append(out, convertGame(g))
	}
	return out, nil
}

func convertGame(g igdbGame) Game {
	game := Game{
		ID:          strconv.FormatInt(g.ID, 10),
		Name:        g.Name,
		CoverURL:    DefaultCover,
		Description: g.Summary,
	}
	if g.Cover != nil && g.Cover.URL != "" {
		game.CoverURL = coverURL(g.Cover.URL)
	}
	if g.FirstReleaseDate > 0 {
		game.ReleaseDate = time.Unix(g.FirstReleaseDate, 0).UTC().Format(time.RFC3339)
	}
	for _, genre := range g.Genres {
		game.Genres = append(game.Genres, genre.Name)
	}
	return game
}

// coverURL upgrades IGDB's protocol-relative thumbnail URL to the large cover.
func coverURL(raw string) string {
	u := strings.Replace(raw, "t_thumb", "t_cover_big", 1)
	if strings.HasPrefix(u, "//") {
		u = "https:" + u
	}
	return u
}

func quoteApicalypse(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}
