package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/desertthunder/spotlake/internal/shared"
	"golang.org/x/oauth2"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"

	// Refresh this long before the reported expiry to avoid racing the clock.
	refreshMargin = 60 * time.Second
)

// Scopes required for a full extraction run.
var Scopes = []string{
	"user-read-private",
	"user-read-recently-played",
	"user-top-read",
	"user-library-read",
	"playlist-read-private",
	"playlist-read-collaborative",
}

// Token is the persisted OAuth2 access/refresh token pair.
type Token struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// TokenStore persists the current token triple between runs.
//
// Load returns (nil, nil) when no token has been saved yet.
type TokenStore interface {
	Load() (*Token, error)
	Save(token *Token) error
}

// FileTokenStore stores the token triple as a JSON file.
type FileTokenStore struct {
	path string
}

// NewFileTokenStore creates a FileTokenStore writing to the given path.
func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{path: path}
}

// Load reads the token file, returning (nil, nil) when it does not exist.
func (s *FileTokenStore) Load() (*Token, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var token Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}

	return &token, nil
}

// Save writes the token file with owner-only permissions.
func (s *FileTokenStore) Save(token *Token) error {
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create token directory: %w", err)
		}
	}

	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}

	return nil
}

// MemoryTokenStore is an in-memory TokenStore for tests and one-shot runs.
type MemoryTokenStore struct {
	mu    sync.Mutex
	token *Token
	saves int
}

func (s *MemoryTokenStore) Load() (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, nil
}

func (s *MemoryTokenStore) Save(token *Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.saves++
	return nil
}

// Saves reports how many times Save has been called.
func (s *MemoryTokenStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// TokenManager owns the token triple for a process, refreshing it before
// expiry and persisting the result through a TokenStore.
//
// All access is serialized through a single mutex so at most one refresh is
// in flight per process; callers that blocked behind a refresh observe the
// fresh token instead of triggering a second one.
type TokenManager struct {
	store  TokenStore
	now    func() time.Time
	margin time.Duration

	// refresh exchanges a refresh token for a new triple. Overridable in tests.
	refresh func(ctx context.Context, refreshToken string) (*Token, error)

	mu        sync.Mutex
	current   *Token
	refreshes int
}

// OAuthConfig returns the oauth2.Config for the Spotify authorization code flow.
func OAuthConfig(clientID, clientSecret, redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyAuthURL,
			TokenURL: spotifyTokenURL,
		},
	}
}

// NewTokenManager creates a TokenManager backed by the given store and OAuth2 config.
func NewTokenManager(conf *oauth2.Config, store TokenStore) *TokenManager {
	return &TokenManager{
		store:  store,
		now:    time.Now,
		margin: refreshMargin,
		refresh: func(ctx context.Context, refreshToken string) (*Token, error) {
			src := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
			tok, err := src.Token()
			if err != nil {
				return nil, err
			}

			refreshed := &Token{
				AccessToken:  tok.AccessToken,
				RefreshToken: tok.RefreshToken,
				ExpiresAt:    tok.Expiry,
			}
			// Spotify omits the refresh token when it has not rotated.
			if refreshed.RefreshToken == "" {
				refreshed.RefreshToken = refreshToken
			}
			return refreshed, nil
		},
	}
}

// Valid returns a usable access token, refreshing first when the cached one
// is within the safety margin of its expiry.
//
// Fails with [shared.ErrNotAuthenticated] when no token has ever been saved
// and with [shared.ErrRefreshFailed] when the refresh call is rejected; both
// are fatal for a pipeline run.
func (m *TokenManager) Valid(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		token, err := m.store.Load()
		if err != nil {
			return "", err
		}
		if token == nil {
			return "", fmt.Errorf("%w: run the auth flow first", shared.ErrNotAuthenticated)
		}
		m.current = token
	}

	if m.now().Before(m.current.ExpiresAt.Add(-m.margin)) {
		return m.current.AccessToken, nil
	}

	return m.refreshLocked(ctx)
}

// ForceRefresh discards the cached access token and refreshes immediately.
// Used by the HTTP client when the API answers 401 despite an unexpired token.
func (m *TokenManager) ForceRefresh(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		token, err := m.store.Load()
		if err != nil {
			return "", err
		}
		if token == nil {
			return "", fmt.Errorf("%w: run the auth flow first", shared.ErrNotAuthenticated)
		}
		m.current = token
	}

	return m.refreshLocked(ctx)
}

// Seed replaces the current token triple, persisting it through the store.
// Called by the interactive auth flow with the initial authorization result.
func (m *TokenManager) Seed(token *Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Save(token); err != nil {
		return err
	}
	m.current = token
	return nil
}

// Refreshes reports how many refresh calls have been performed.
func (m *TokenManager) Refreshes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshes
}

func (m *TokenManager) refreshLocked(ctx context.Context) (string, error) {
	if m.current.RefreshToken == "" {
		return "", shared.ErrNoRefreshToken
	}

	m.refreshes++
	refreshed, err := m.refresh(ctx, m.current.RefreshToken)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			code := 0
			if retrieveErr.Response != nil {
				code = retrieveErr.Response.StatusCode
			}
			if code == http.StatusUnauthorized || retrieveErr.ErrorCode == "invalid_grant" {
				return "", fmt.Errorf("%w: %v", shared.ErrRefreshFailed, err)
			}
		}
		return "", fmt.Errorf("%w: %v", shared.ErrRefreshFailed, err)
	}

	if err := m.store.Save(refreshed); err != nil {
		return "", fmt.Errorf("failed to persist refreshed token: %w", err)
	}

	m.current = refreshed
	return m.current.AccessToken, nil
}
