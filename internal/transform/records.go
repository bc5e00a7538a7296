// package transform normalizes raw Spotify payloads into the canonical
// per-entity records the loader persists. Transforms are pure: no I/O, and
// every record carries the run's single extraction timestamp.
package transform

import "time"

// UserProfile is the canonical user record, keyed by UserID.
type UserProfile struct {
	UserID      string
	DisplayName string
	Followers   int
	Country     string
	Product     string
	ExtractedAt time.Time
}

// Playlist is the canonical playlist record, keyed by PlaylistID.
type Playlist struct {
	PlaylistID     string
	Name           string
	Description    string
	OwnerID        string
	Public         bool
	Collaborative  bool
	FollowersCount int
	TracksCount    int
	ExtractedAt    time.Time
}

// Track is the canonical track record, keyed by TrackID. ArtistIDs may
// reference artists not loaded in the same run; the loader tolerates
// forward references.
type Track struct {
	TrackID     string
	Name        string
	ArtistIDs   []string
	AlbumID     string
	AlbumName   string
	ReleaseDate string // normalized to YYYY-MM-DD, empty when unknown
	DurationMS  int
	Popularity  int
	Explicit    bool
	ExternalURL string
	ExtractedAt time.Time
}

// AudioFeatures is 1:1 with Track, keyed by TrackID.
type AudioFeatures struct {
	TrackID          string
	Danceability     float64
	Energy           float64
	Key              int
	Loudness         float64
	Mode             int
	Speechiness      float64
	Acousticness     float64
	Instrumentalness float64
	Liveness         float64
	Valence          float64
	Tempo            float64
	TimeSignature    int
	ExtractedAt      time.Time
}

// Artist is the canonical artist record, keyed by ArtistID.
type Artist struct {
	ArtistID    string
	Name        string
	Genres      []string
	Popularity  int
	Followers   int
	ExternalURL string
	ExtractedAt time.Time
}

// PlaylistTrackLink is the playlist/track edge, keyed by
// (PlaylistID, TrackID, AddedAt).
type PlaylistTrackLink struct {
	PlaylistID  string
	TrackID     string
	AddedAt     time.Time
	AddedBy     string
	Position    int
	ExtractedAt time.Time
}

// PlayEvent is an append-only playback fact, keyed by (TrackID, PlayedAt)
// and partitioned by PlayedAt.
type PlayEvent struct {
	TrackID     string
	PlayedAt    time.Time
	ContextType string
	ContextURI  string
	ExtractedAt time.Time
}

// TopItemKind distinguishes top-track from top-artist snapshots.
type TopItemKind string

const (
	TopTrack  TopItemKind = "track"
	TopArtist TopItemKind = "artist"
)

// TopItemSnapshot is one ranking entry from one extraction run, keyed by
// (ItemID, TimeRange, ExtractedAt) and partitioned by ExtractedAt.
type TopItemSnapshot struct {
	Kind        TopItemKind
	ItemID      string
	TimeRange   string
	Position    int
	ExtractedAt time.Time
}
