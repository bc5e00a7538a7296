package spotify

import (
	"context"
	"errors"
	"iter"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spotlake/internal/shared"
)

const playlistPageSize = 50

// TimeRanges are the ranking windows the top-items endpoints accept.
var TimeRanges = []string{"short_term", "medium_term", "long_term"}

// API is the subset of the Spotify client the extractor consumes.
type API interface {
	CurrentUser(ctx context.Context) (*UserPayload, error)
	UserPlaylists(ctx context.Context, limit, offset int) (*PlaylistPage, error)
	PlaylistTracks(ctx context.Context, playlistID string, limit, offset int) (*PlaylistTrackPage, error)
	AudioFeatures(ctx context.Context, trackIDs []string) ([]AudioFeaturesPayload, error)
	Artists(ctx context.Context, artistIDs []string) ([]ArtistPayload, error)
	RecentlyPlayed(ctx context.Context, limit int) (*RecentlyPlayedPage, error)
	TopTracks(ctx context.Context, timeRange string, limit int) (*TopTracksPage, error)
	TopArtists(ctx context.Context, timeRange string, limit int) (*TopArtistsPage, error)
}

// Limits bounds every extraction so API usage and warehouse growth stay
// predictable. Zero values are not defaulted here; config owns defaults.
type Limits struct {
	MaxPlaylists           int
	MaxTracksPerPlaylist   int
	MaxRecentlyPlayed      int
	TopItemsLimit          int
	AudioFeaturesBatchSize int
	ArtistBatchSize        int
}

// Extractor walks the paginated and batched Spotify endpoints, producing
// bounded record sets. Paginated walks are lazy, finite sequences consumed
// exactly once; batch lookups are best-effort per chunk.
type Extractor struct {
	api    API
	limits Limits
	logger *log.Logger
}

// NewExtractor creates an Extractor bounded by the given limits.
func NewExtractor(api API, limits Limits, logger *log.Logger) *Extractor {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Extractor{api: api, limits: limits, logger: logger}
}

// UserProfile extracts the current user's profile. A failure here is fatal
// for the run; every other entity type hangs off the user.
func (e *Extractor) UserProfile(ctx context.Context) (*UserPayload, error) {
	return e.api.CurrentUser(ctx)
}

// Playlists yields the user's playlists, most recent first, stopping at the
// configured maximum or the end of the listing, whichever comes first. The
// final page is truncated rather than over-fetched.
func (e *Extractor) Playlists(ctx context.Context) iter.Seq2[SimplePlaylistPayload, error] {
	return func(yield func(SimplePlaylistPayload, error) bool) {
		maxItems := e.limits.MaxPlaylists
		offset := 0

		for offset < maxItems {
			limit := min(playlistPageSize, maxItems-offset)
			page, err := e.api.UserPlaylists(ctx, limit, offset)
			if err != nil {
				yield(SimplePlaylistPayload{}, err)
				return
			}

			items := page.Items
			if len(items) > limit {
				items = items[:limit]
			}
			for _, item := range items {
				if !yield(item, nil) {
					return
				}
			}

			if page.Next == nil || len(items) == 0 {
				return
			}
			offset += len(items)
		}
	}
}

// PlaylistTracks yields the entries of one playlist up to the configured
// per-playlist maximum. Local and missing tracks are skipped; they still
// count against the bound, matching the position window the API reports.
func (e *Extractor) PlaylistTracks(ctx context.Context, playlistID string) iter.Seq2[PlaylistTrackPayload, error] {
	return func(yield func(PlaylistTrackPayload, error) bool) {
		maxItems := e.limits.MaxTracksPerPlaylist
		offset := 0

		for offset < maxItems {
			limit := min(100, maxItems-offset)
			page, err := e.api.PlaylistTracks(ctx, playlistID, limit, offset)
			if err != nil {
				yield(PlaylistTrackPayload{}, err)
				return
			}

			items := page.Items
			if len(items) > limit {
				items = items[:limit]
			}
			for _, item := range items {
				if item.Track == nil || item.Track.IsLocal {
					continue
				}
				if !yield(item, nil) {
					return
				}
			}

			if page.Next == nil || len(items) == 0 {
				return
			}
			offset += len(items)
		}
	}
}

// AudioFeatures extracts audio features for the given track IDs, chunked at
// the configured batch size. A failed chunk is logged and skipped; those
// records are simply absent from the run. Auth failures abort immediately.
func (e *Extractor) AudioFeatures(ctx context.Context, trackIDs []string) ([]AudioFeaturesPayload, []error) {
	return extractBatched(ctx, UniqueIDs(trackIDs), e.limits.AudioFeaturesBatchSize,
		e.api.AudioFeatures, e.logger, "audio features")
}

// Artists extracts full artist objects for the given artist IDs, chunked at
// the configured batch size with the same best-effort policy as AudioFeatures.
func (e *Extractor) Artists(ctx context.Context, artistIDs []string) ([]ArtistPayload, []error) {
	return extractBatched(ctx, UniqueIDs(artistIDs), e.limits.ArtistBatchSize,
		e.api.Artists, e.logger, "artists")
}

// RecentlyPlayed extracts up to the configured number of recently played tracks.
func (e *Extractor) RecentlyPlayed(ctx context.Context) ([]PlayHistoryPayload, error) {
	page, err := e.api.RecentlyPlayed(ctx, e.limits.MaxRecentlyPlayed)
	if err != nil {
		return nil, err
	}

	items := page.Items
	if len(items) > e.limits.MaxRecentlyPlayed {
		items = items[:e.limits.MaxRecentlyPlayed]
	}
	return items, nil
}

// TopTracks extracts the user's top tracks for one ranking window.
func (e *Extractor) TopTracks(ctx context.Context, timeRange string) ([]TrackPayload, error) {
	page, err := e.api.TopTracks(ctx, timeRange, e.limits.TopItemsLimit)
	if err != nil {
		return nil, err
	}

	items := page.Items
	if len(items) > e.limits.TopItemsLimit {
		items = items[:e.limits.TopItemsLimit]
	}
	return items, nil
}

// TopArtists extracts the user's top artists for one ranking window.
func (e *Extractor) TopArtists(ctx context.Context, timeRange string) ([]ArtistPayload, error) {
	page, err := e.api.TopArtists(ctx, timeRange, e.limits.TopItemsLimit)
	if err != nil {
		return nil, err
	}

	items := page.Items
	if len(items) > e.limits.TopItemsLimit {
		items = items[:e.limits.TopItemsLimit]
	}
	return items, nil
}

// UniqueIDs deduplicates IDs preserving first-seen order and dropping empties.
func UniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	return unique
}

// extractBatched walks ids in ceil(n/batchSize) calls, collecting results and
// recording per-chunk failures without aborting the entity type.
func extractBatched[T any](
	ctx context.Context,
	ids []string,
	batchSize int,
	fetch func(ctx context.Context, ids []string) ([]T, error),
	logger *log.Logger,
	label string,
) ([]T, []error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var results []T
	var errs []error

	for start := 0; start < len(ids); start += batchSize {
		end := min(start+batchSize, len(ids))

		batch, err := fetch(ctx, ids[start:end])
		if err != nil {
			if errors.Is(err, shared.ErrNotAuthenticated) || errors.Is(err, shared.ErrRefreshFailed) {
				return results, append(errs, err)
			}
			logger.Warn("skipping failed batch", "entity", label, "batch", start/batchSize+1, "error", err)
			errs = append(errs, err)
			continue
		}

		results = append(results, batch...)
	}

	return results, errs
}
