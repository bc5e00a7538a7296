package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spotlake/internal/shared"
	"golang.org/x/time/rate"
)

const spotifyBaseURL = "https://api.spotify.com/v1"

// APIError is a failed Spotify API request. Retriable errors are those the
// client already retried through its backoff budget (429, 5xx, transport);
// non-retriable ones surface immediately.
type APIError struct {
	Status    int
	Retriable bool
	Message   string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("spotify API error: status %d", e.Status)
	}
	return fmt.Sprintf("spotify API error: status %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error { return shared.ErrAPIRequest }

// IsRetriable reports whether err is an APIError that exhausted its retries,
// as opposed to a request that can never succeed.
func IsRetriable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retriable
	}
	return false
}

// Client is a rate-limited Spotify Web API client with bounded retries.
//
// A single [rate.Limiter] gates every attempt, including retries, so
// concurrent callers share one backoff budget against the API's global
// per-application ceiling.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     *TokenManager
	limiter    *rate.Limiter
	logger     *log.Logger

	maxAttempts int
	baseBackoff time.Duration
	maxBackoff  time.Duration

	// sleep is injected so backoff is testable without real delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// ClientOpts contains optional configuration for creating a Client.
type ClientOpts struct {
	BaseURL     string
	HTTPClient  *http.Client
	Limiter     *rate.Limiter
	Logger      *log.Logger
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	Sleep       func(ctx context.Context, d time.Duration) error
}

// NewClient creates a Client that authenticates through the given TokenManager.
func NewClient(tokens *TokenManager, opts ClientOpts) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = spotifyBaseURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Limiter == nil {
		opts.Limiter = rate.NewLimiter(rate.Limit(5), 1)
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = time.Second
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 30 * time.Second
	}
	if opts.Sleep == nil {
		opts.Sleep = func(ctx context.Context, d time.Duration) error {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
				return nil
			}
		}
	}

	return &Client{
		baseURL:     opts.BaseURL,
		httpClient:  opts.HTTPClient,
		tokens:      tokens,
		limiter:     opts.Limiter,
		logger:      opts.Logger,
		maxAttempts: opts.MaxAttempts,
		baseBackoff: opts.BaseBackoff,
		maxBackoff:  opts.MaxBackoff,
		sleep:       opts.Sleep,
	}
}

// get performs an authenticated GET with retry and backoff.
//
// Policy: 429 waits Retry-After when present, otherwise exponential backoff
// with jitter; 5xx and transport errors use the same backoff; 401 triggers
// one forced token refresh and a retry that does not count against the
// attempt budget; any other 4xx fails immediately as non-retriable.
func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	attempt := 0
	refreshed := false
	lastStatus := 0

	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		token, err := c.tokens.Valid(ctx)
		if err != nil {
			return err
		}

		status, retryAfter, message, err := c.do(ctx, token, path, params, out)

		switch {
		case err == nil && status >= 200 && status < 300:
			return nil

		case status == http.StatusUnauthorized:
			if refreshed {
				return &APIError{Status: status, Retriable: false, Message: "unauthorized after token refresh"}
			}
			c.logger.Warn("unauthorized response, forcing token refresh", "path", path)
			if _, err := c.tokens.ForceRefresh(ctx); err != nil {
				return err
			}
			refreshed = true
			continue

		case status == http.StatusTooManyRequests || status >= 500 || err != nil:
			lastStatus = status
			attempt++
			if attempt >= c.maxAttempts {
				return fmt.Errorf("%w: %w", shared.ErrRetriesExhausted,
					&APIError{Status: lastStatus, Retriable: true, Message: message})
			}

			wait := retryAfter
			if wait <= 0 {
				wait = c.backoff(attempt - 1)
			}
			c.logger.Warn("retrying request", "path", path, "status", status, "attempt", attempt, "wait", wait)
			if err := c.sleep(ctx, wait); err != nil {
				return err
			}

		default:
			return &APIError{Status: status, Retriable: false, Message: message}
		}
	}
}

// do performs a single HTTP attempt, returning the status, any Retry-After
// delay, and the error body for non-2xx responses.
func (c *Client) do(ctx context.Context, token, path string, params url.Values, out any) (int, time.Duration, string, error) {
	apiURL := c.baseURL + path
	if len(params) > 0 {
		apiURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return 0, 0, "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, 0, "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return resp.StatusCode, parseRetryAfter(resp.Header), strings.TrimSpace(string(body)), nil
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, 0, "", fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return resp.StatusCode, 0, "", nil
}

// backoff returns base * 2^attempt plus up to 50% jitter, capped at maxBackoff.
func (c *Client) backoff(attempt int) time.Duration {
	d := c.baseBackoff << uint(attempt)
	if d > c.maxBackoff {
		d = c.maxBackoff
	}
	d += time.Duration(rand.Int64N(int64(d/2) + 1))
	if d > c.maxBackoff {
		d = c.maxBackoff
	}
	return d
}

func parseRetryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// CurrentUser retrieves the authenticated user's profile.
func (c *Client) CurrentUser(ctx context.Context) (*UserPayload, error) {
	var user UserPayload
	if err := c.get(ctx, "/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UserPlaylists retrieves a page of the current user's playlists.
func (c *Client) UserPlaylists(ctx context.Context, limit, offset int) (*PlaylistPage, error) {
	params := pageParams(limit, offset)

	var page PlaylistPage
	if err := c.get(ctx, "/me/playlists", params, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// PlaylistTracks retrieves a page of tracks in a playlist. The playlist
// items endpoint accepts pages of up to 100.
func (c *Client) PlaylistTracks(ctx context.Context, playlistID string, limit, offset int) (*PlaylistTrackPage, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	params := url.Values{
		"limit":  {strconv.Itoa(limit)},
		"offset": {strconv.Itoa(offset)},
	}

	var page PlaylistTrackPage
	if err := c.get(ctx, fmt.Sprintf("/playlists/%s/tracks", playlistID), params, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// AudioFeatures retrieves audio features for up to 100 tracks.
// Tracks without features come back as nulls and are dropped.
func (c *Client) AudioFeatures(ctx context.Context, trackIDs []string) ([]AudioFeaturesPayload, error) {
	if len(trackIDs) == 0 {
		return nil, fmt.Errorf("%w: no track IDs provided", shared.ErrMissingArgument)
	}
	if len(trackIDs) > 100 {
		return nil, fmt.Errorf("%w: maximum 100 track IDs allowed", shared.ErrInvalidArgument)
	}

	params := url.Values{"ids": {strings.Join(trackIDs, ",")}}

	var response struct {
		AudioFeatures []*AudioFeaturesPayload `json:"audio_features"`
	}
	if err := c.get(ctx, "/audio-features", params, &response); err != nil {
		return nil, err
	}

	features := make([]AudioFeaturesPayload, 0, len(response.AudioFeatures))
	for _, f := range response.AudioFeatures {
		if f != nil {
			features = append(features, *f)
		}
	}
	return features, nil
}

// Artists retrieves up to 50 artists by ID. Unknown IDs come back as nulls
// and are dropped.
func (c *Client) Artists(ctx context.Context, artistIDs []string) ([]ArtistPayload, error) {
	if len(artistIDs) == 0 {
		return nil, fmt.Errorf("%w: no artist IDs provided", shared.ErrMissingArgument)
	}
	if len(artistIDs) > 50 {
		return nil, fmt.Errorf("%w: maximum 50 artist IDs allowed", shared.ErrInvalidArgument)
	}

	params := url.Values{"ids": {strings.Join(artistIDs, ",")}}

	var response struct {
		Artists []*ArtistPayload `json:"artists"`
	}
	if err := c.get(ctx, "/artists", params, &response); err != nil {
		return nil, err
	}

	artists := make([]ArtistPayload, 0, len(response.Artists))
	for _, a := range response.Artists {
		if a != nil {
			artists = append(artists, *a)
		}
	}
	return artists, nil
}

// RecentlyPlayed retrieves up to limit recently played tracks (max 50).
func (c *Client) RecentlyPlayed(ctx context.Context, limit int) (*RecentlyPlayedPage, error) {
	params := url.Values{"limit": {strconv.Itoa(clampLimit(limit))}}

	var page RecentlyPlayedPage
	if err := c.get(ctx, "/me/player/recently-played", params, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// TopTracks retrieves the user's top tracks for a time range.
func (c *Client) TopTracks(ctx context.Context, timeRange string, limit int) (*TopTracksPage, error) {
	params := url.Values{
		"time_range": {timeRange},
		"limit":      {strconv.Itoa(clampLimit(limit))},
	}

	var page TopTracksPage
	if err := c.get(ctx, "/me/top/tracks", params, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// TopArtists retrieves the user's top artists for a time range.
func (c *Client) TopArtists(ctx context.Context, timeRange string, limit int) (*TopArtistsPage, error) {
	params := url.Values{
		"time_range": {timeRange},
		"limit":      {strconv.Itoa(clampLimit(limit))},
	}

	var page TopArtistsPage
	if err := c.get(ctx, "/me/top/artists", params, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func pageParams(limit, offset int) url.Values {
	return url.Values{
		"limit":  {strconv.Itoa(clampLimit(limit))},
		"offset": {strconv.Itoa(offset)},
	}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 50 {
		return 50
	}
	return limit
}
