// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"testing"

	"github.com/desertthunder/spotlake/internal/spotify"
)

// MockAPI is a configurable test double for [spotify.API]. Each field, when
// set, overrides the corresponding method; unset methods return empty pages.
type MockAPI struct {
	CurrentUserFunc    func(ctx context.Context) (*spotify.UserPayload, error)
	UserPlaylistsFunc  func(ctx context.Context, limit, offset int) (*spotify.PlaylistPage, error)
	PlaylistTracksFunc func(ctx context.Context, playlistID string, limit, offset int) (*spotify.PlaylistTrackPage, error)
	AudioFeaturesFunc  func(ctx context.Context, trackIDs []string) ([]spotify.AudioFeaturesPayload, error)
	ArtistsFunc        func(ctx context.Context, artistIDs []string) ([]spotify.ArtistPayload, error)
	RecentlyPlayedFunc func(ctx context.Context, limit int) (*spotify.RecentlyPlayedPage, error)
	TopTracksFunc      func(ctx context.Context, timeRange string, limit int) (*spotify.TopTracksPage, error)
	TopArtistsFunc     func(ctx context.Context, timeRange string, limit int) (*spotify.TopArtistsPage, error)
}

func (m *MockAPI) CurrentUser(ctx context.Context) (*spotify.UserPayload, error) {
	if m.CurrentUserFunc != nil {
		return m.CurrentUserFunc(ctx)
	}
	return &spotify.UserPayload{ID: "mock-user"}, nil
}

func (m *MockAPI) UserPlaylists(ctx context.Context, limit, offset int) (*spotify.PlaylistPage, error) {
	if m.UserPlaylistsFunc != nil {
		return m.UserPlaylistsFunc(ctx, limit, offset)
	}
	return &spotify.PlaylistPage{}, nil
}

func (m *MockAPI) PlaylistTracks(ctx context.Context, playlistID string, limit, offset int) (*spotify.PlaylistTrackPage, error) {
	if m.PlaylistTracksFunc != nil {
		return m.PlaylistTracksFunc(ctx, playlistID, limit, offset)
	}
	return &spotify.PlaylistTrackPage{}, nil
}

func (m *MockAPI) AudioFeatures(ctx context.Context, trackIDs []string) ([]spotify.AudioFeaturesPayload, error) {
	if m.AudioFeaturesFunc != nil {
		return m.AudioFeaturesFunc(ctx, trackIDs)
	}
	return nil, nil
}

func (m *MockAPI) Artists(ctx context.Context, artistIDs []string) ([]spotify.ArtistPayload, error) {
	if m.ArtistsFunc != nil {
		return m.ArtistsFunc(ctx, artistIDs)
	}
	return nil, nil
}

func (m *MockAPI) RecentlyPlayed(ctx context.Context, limit int) (*spotify.RecentlyPlayedPage, error) {
	if m.RecentlyPlayedFunc != nil {
		return m.RecentlyPlayedFunc(ctx, limit)
	}
	return &spotify.RecentlyPlayedPage{}, nil
}

func (m *MockAPI) TopTracks(ctx context.Context, timeRange string, limit int) (*spotify.TopTracksPage, error) {
	if m.TopTracksFunc != nil {
		return m.TopTracksFunc(ctx, timeRange, limit)
	}
	return &spotify.TopTracksPage{}, nil
}

func (m *MockAPI) TopArtists(ctx context.Context, timeRange string, limit int) (*spotify.TopArtistsPage, error) {
	if m.TopArtistsFunc != nil {
		return m.TopArtistsFunc(ctx, timeRange, limit)
	}
	return &spotify.TopArtistsPage{}, nil
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// RoundTripFunc adapts a function to [http.RoundTripper] so tests can vary
// responses per request.
type RoundTripFunc func(*http.Request) (*http.Response, error)

func (f RoundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

func MustGetwd(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	return wd
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}

var _ io.ReadCloser = (*FCloser)(nil)
