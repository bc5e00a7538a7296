package spotify

type followers struct {
	Total int `json:"total"`
}

type externalURLs struct {
	Spotify string `json:"spotify"`
}

// UserPayload represents a Spotify user profile.
type UserPayload struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Country     string    `json:"country"`
	Product     string    `json:"product"` // premium, free, etc.
	Followers   followers `json:"followers"`
}

// Owner identifies the owner of a playlist.
type Owner struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type playlistTracksRef struct {
	Total int `json:"total"`
}

// SimplePlaylistPayload represents a simplified playlist object (used in lists).
type SimplePlaylistPayload struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Description   string            `json:"description"`
	Owner         Owner             `json:"owner"`
	Public        bool              `json:"public"`
	Collaborative bool              `json:"collaborative"`
	Followers     followers         `json:"followers"`
	Tracks        playlistTracksRef `json:"tracks"`
}

// ArtistRef is the compact artist object embedded in tracks.
type ArtistRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// AlbumPayload represents a Spotify album.
type AlbumPayload struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ReleaseDate string `json:"release_date"`
}

// TrackPayload represents a Spotify track.
type TrackPayload struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Artists      []ArtistRef  `json:"artists"`
	Album        AlbumPayload `json:"album"`
	DurationMS   int          `json:"duration_ms"`
	Popularity   int          `json:"popularity"`
	Explicit     bool         `json:"explicit"`
	IsLocal      bool         `json:"is_local"`
	ExternalURLs externalURLs `json:"external_urls"`
}

// PlaylistTrackPayload represents a track within a playlist context.
type PlaylistTrackPayload struct {
	AddedAt string        `json:"added_at"`
	AddedBy Owner         `json:"added_by"`
	Track   *TrackPayload `json:"track"`
}

// ArtistPayload represents a full Spotify artist object.
type ArtistPayload struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Genres       []string     `json:"genres"`
	Popularity   int          `json:"popularity"`
	Followers    followers    `json:"followers"`
	ExternalURLs externalURLs `json:"external_urls"`
}

// AudioFeaturesPayload represents the audio analysis summary for a track.
type AudioFeaturesPayload struct {
	ID               string  `json:"id"`
	Danceability     float64 `json:"danceability"`
	Energy           float64 `json:"energy"`
	Key              int     `json:"key"`
	Loudness         float64 `json:"loudness"`
	Mode             int     `json:"mode"`
	Speechiness      float64 `json:"speechiness"`
	Acousticness     float64 `json:"acousticness"`
	Instrumentalness float64 `json:"instrumentalness"`
	Liveness         float64 `json:"liveness"`
	Valence          float64 `json:"valence"`
	Tempo            float64 `json:"tempo"`
	TimeSignature    int     `json:"time_signature"`
}

// PlayContext describes where a playback happened (playlist, album, ...).
type PlayContext struct {
	Type string `json:"type"`
	URI  string `json:"uri"`
}

// PlayHistoryPayload represents one recently-played entry.
type PlayHistoryPayload struct {
	Track    TrackPayload `json:"track"`
	PlayedAt string       `json:"played_at"`
	Context  *PlayContext `json:"context"`
}

// PlaylistPage represents a paginated response of playlists.
type PlaylistPage struct {
	Items    []SimplePlaylistPayload `json:"items"`
	Total    int                     `json:"total"`
	Limit    int                     `json:"limit"`
	Offset   int                     `json:"offset"`
	Next     *string                 `json:"next"`
	Previous *string                 `json:"previous"`
}

// PlaylistTrackPage represents a paginated response of playlist tracks.
type PlaylistTrackPage struct {
	Items    []PlaylistTrackPayload `json:"items"`
	Total    int                    `json:"total"`
	Limit    int                    `json:"limit"`
	Offset   int                    `json:"offset"`
	Next     *string                `json:"next"`
	Previous *string                `json:"previous"`
}

// RecentlyPlayedPage represents the cursor-paged recently-played response.
type RecentlyPlayedPage struct {
	Items []PlayHistoryPayload `json:"items"`
	Next  *string              `json:"next"`
}

// TopTracksPage represents a page of the user's top tracks ranking.
type TopTracksPage struct {
	Items []TrackPayload `json:"items"`
	Total int            `json:"total"`
	Next  *string        `json:"next"`
}

// TopArtistsPage represents a page of the user's top artists ranking.
type TopArtistsPage struct {
	Items []ArtistPayload `json:"items"`
	Total int             `json:"total"`
	Next  *string         `json:"next"`
}
