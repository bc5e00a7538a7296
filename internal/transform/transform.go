package transform

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/desertthunder/spotlake/internal/spotify"
)

// ValidationError rejects a single malformed record. It is collected per
// record by the orchestrator and never aborts a batch.
type ValidationError struct {
	Entity string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s record: %s: %s", e.Entity, e.Field, e.Reason)
}

func invalid(entity, field, reason string) error {
	return &ValidationError{Entity: entity, Field: field, Reason: reason}
}

// Transformer converts raw API payloads into canonical records, stamping
// each with the run's extraction timestamp.
type Transformer struct {
	extractedAt time.Time
}

// New creates a Transformer for one pipeline run. extractedAt is assigned
// once per run so every loaded row is attributable to it.
func New(extractedAt time.Time) *Transformer {
	return &Transformer{extractedAt: extractedAt.UTC()}
}

// ExtractedAt returns the run timestamp stamped onto every record.
func (t *Transformer) ExtractedAt() time.Time {
	return t.extractedAt
}

// User validates and normalizes a user profile payload.
func (t *Transformer) User(p *spotify.UserPayload) (*UserProfile, error) {
	if p == nil || p.ID == "" {
		return nil, invalid("user", "user_id", "missing required field")
	}

	return &UserProfile{
		UserID:      p.ID,
		DisplayName: p.DisplayName,
		Followers:   p.Followers.Total,
		Country:     p.Country,
		Product:     p.Product,
		ExtractedAt: t.extractedAt,
	}, nil
}

// Playlist validates and normalizes a playlist payload.
func (t *Transformer) Playlist(p spotify.SimplePlaylistPayload) (*Playlist, error) {
	if p.ID == "" {
		return nil, invalid("playlist", "playlist_id", "missing required field")
	}

	return &Playlist{
		PlaylistID:     p.ID,
		Name:           p.Name,
		Description:    p.Description,
		OwnerID:        p.Owner.ID,
		Public:         p.Public,
		Collaborative:  p.Collaborative,
		FollowersCount: p.Followers.Total,
		TracksCount:    p.Tracks.Total,
		ExtractedAt:    t.extractedAt,
	}, nil
}

// Track validates and normalizes a track payload. Release dates arrive as
// YYYY, YYYY-MM or YYYY-MM-DD and are padded to full dates.
func (t *Transformer) Track(p spotify.TrackPayload) (*Track, error) {
	if p.ID == "" {
		return nil, invalid("track", "track_id", "missing required field")
	}
	if p.Popularity < 0 || p.Popularity > 100 {
		return nil, invalid("track", "popularity", "must be between 0 and 100")
	}
	if p.DurationMS < 0 {
		return nil, invalid("track", "duration_ms", "must not be negative")
	}

	artistIDs := make([]string, 0, len(p.Artists))
	for _, a := range p.Artists {
		if a.ID != "" {
			artistIDs = append(artistIDs, a.ID)
		}
	}

	return &Track{
		TrackID:     p.ID,
		Name:        p.Name,
		ArtistIDs:   artistIDs,
		AlbumID:     p.Album.ID,
		AlbumName:   p.Album.Name,
		ReleaseDate: normalizeReleaseDate(p.Album.ReleaseDate),
		DurationMS:  p.DurationMS,
		Popularity:  p.Popularity,
		Explicit:    p.Explicit,
		ExternalURL: p.ExternalURLs.Spotify,
		ExtractedAt: t.extractedAt,
	}, nil
}

// AudioFeatures validates an audio features payload against its declared
// ranges: unit-interval measures, key in [-1, 11], mode in {0, 1}, time
// signature 3-7 (0 when the analysis did not produce one).
func (t *Transformer) AudioFeatures(p spotify.AudioFeaturesPayload) (*AudioFeatures, error) {
	if p.ID == "" {
		return nil, invalid("audio_features", "track_id", "missing required field")
	}

	for field, v := range map[string]float64{
		"danceability":     p.Danceability,
		"energy":           p.Energy,
		"speechiness":      p.Speechiness,
		"acousticness":     p.Acousticness,
		"instrumentalness": p.Instrumentalness,
		"liveness":         p.Liveness,
		"valence":          p.Valence,
	} {
		if v < 0 || v > 1 {
			return nil, invalid("audio_features", field, "must be between 0.0 and 1.0")
		}
	}
	if p.Key < -1 || p.Key > 11 {
		return nil, invalid("audio_features", "key", "must be between -1 and 11")
	}
	if p.Mode != 0 && p.Mode != 1 {
		return nil, invalid("audio_features", "mode", "must be 0 or 1")
	}
	if p.Tempo < 0 {
		return nil, invalid("audio_features", "tempo", "must not be negative")
	}
	if p.TimeSignature != 0 && (p.TimeSignature < 3 || p.TimeSignature > 7) {
		return nil, invalid("audio_features", "time_signature", "must be between 3 and 7")
	}

	return &AudioFeatures{
		TrackID:          p.ID,
		Danceability:     p.Danceability,
		Energy:           p.Energy,
		Key:              p.Key,
		Loudness:         p.Loudness,
		Mode:             p.Mode,
		Speechiness:      p.Speechiness,
		Acousticness:     p.Acousticness,
		Instrumentalness: p.Instrumentalness,
		Liveness:         p.Liveness,
		Valence:          p.Valence,
		Tempo:            p.Tempo,
		TimeSignature:    p.TimeSignature,
		ExtractedAt:      t.extractedAt,
	}, nil
}

// Artist validates and normalizes an artist payload.
func (t *Transformer) Artist(p spotify.ArtistPayload) (*Artist, error) {
	if p.ID == "" {
		return nil, invalid("artist", "artist_id", "missing required field")
	}
	if p.Popularity < 0 || p.Popularity > 100 {
		return nil, invalid("artist", "popularity", "must be between 0 and 100")
	}

	return &Artist{
		ArtistID:    p.ID,
		Name:        p.Name,
		Genres:      p.Genres,
		Popularity:  p.Popularity,
		Followers:   p.Followers.Total,
		ExternalURL: p.ExternalURLs.Spotify,
		ExtractedAt: t.extractedAt,
	}, nil
}

// PlaylistTrack validates a playlist/track edge. position is the 1-based
// position of the entry within the playlist walk.
func (t *Transformer) PlaylistTrack(playlistID string, position int, p spotify.PlaylistTrackPayload) (*PlaylistTrackLink, error) {
	if playlistID == "" {
		return nil, invalid("playlist_track", "playlist_id", "missing required field")
	}
	if p.Track == nil || p.Track.ID == "" {
		return nil, invalid("playlist_track", "track_id", "missing required field")
	}

	addedAt, err := parseTimestamp(p.AddedAt)
	if err != nil {
		return nil, invalid("playlist_track", "added_at", "not a valid timestamp")
	}

	return &PlaylistTrackLink{
		PlaylistID:  playlistID,
		TrackID:     p.Track.ID,
		AddedAt:     addedAt,
		AddedBy:     p.AddedBy.ID,
		Position:    position,
		ExtractedAt: t.extractedAt,
	}, nil
}

// PlayEvent validates a recently-played entry. PlayedAt is required; it is
// half of the natural key and the partition column.
func (t *Transformer) PlayEvent(p spotify.PlayHistoryPayload) (*PlayEvent, error) {
	if p.Track.ID == "" {
		return nil, invalid("play_event", "track_id", "missing required field")
	}
	if p.PlayedAt == "" {
		return nil, invalid("play_event", "played_at", "missing required field")
	}

	playedAt, err := parseTimestamp(p.PlayedAt)
	if err != nil || playedAt.IsZero() {
		return nil, invalid("play_event", "played_at", "not a valid timestamp")
	}

	var contextType, contextURI string
	if p.Context != nil {
		contextType = p.Context.Type
		contextURI = p.Context.URI
	}

	return &PlayEvent{
		TrackID:     p.Track.ID,
		PlayedAt:    playedAt,
		ContextType: contextType,
		ContextURI:  contextURI,
		ExtractedAt: t.extractedAt,
	}, nil
}

// TopItem validates one ranking entry for a time range. position is 1-based.
func (t *Transformer) TopItem(kind TopItemKind, itemID, timeRange string, position int) (*TopItemSnapshot, error) {
	if itemID == "" {
		return nil, invalid("top_item", "item_id", "missing required field")
	}
	if !slices.Contains(spotify.TimeRanges, timeRange) {
		return nil, invalid("top_item", "time_range",
			fmt.Sprintf("must be one of %s", strings.Join(spotify.TimeRanges, ", ")))
	}
	if position < 1 {
		return nil, invalid("top_item", "position", "must be at least 1")
	}

	return &TopItemSnapshot{
		Kind:        kind,
		ItemID:      itemID,
		TimeRange:   timeRange,
		Position:    position,
		ExtractedAt: t.extractedAt,
	}, nil
}

// normalizeReleaseDate pads the partial dates Spotify reports (YYYY or
// YYYY-MM) to full YYYY-MM-DD dates.
func normalizeReleaseDate(date string) string {
	if date == "" {
		return ""
	}
	switch strings.Count(date, "-") {
	case 0:
		return date + "-01-01"
	case 1:
		return date + "-01"
	default:
		return date
	}
}

// parseTimestamp accepts RFC3339 timestamps; empty strings parse to the
// zero time without error.
func parseTimestamp(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	ts, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, err
	}
	return ts.UTC(), nil
}
