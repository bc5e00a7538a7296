package warehouse

// ColumnType enumerates the column types the warehouse backends understand.
type ColumnType int

const (
	String ColumnType = iota
	Integer
	Float
	Boolean
	Timestamp
	Date
	StringList
)

// Column is one field of a table definition.
type Column struct {
	Name     string
	Type     ColumnType
	Required bool
}

// Table is a fixed, versionless table definition. KeyColumns form the
// natural key used for merge matching; PartitionBy names the timestamp
// column append-only tables are partitioned and pruned by.
type Table struct {
	Name        string
	Columns     []Column
	KeyColumns  []string
	PartitionBy string
	AppendOnly  bool
}

// ColumnNames returns the column names in declaration order.
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// NonKeyColumns returns the names of columns outside the natural key.
func (t Table) NonKeyColumns() []string {
	keys := make(map[string]struct{}, len(t.KeyColumns))
	for _, k := range t.KeyColumns {
		keys[k] = struct{}{}
	}

	var names []string
	for _, c := range t.Columns {
		if _, ok := keys[c.Name]; !ok {
			names = append(names, c.Name)
		}
	}
	return names
}

var (
	// Users holds one profile row per Spotify user, upserted by user_id.
	Users = Table{
		Name: "users",
		Columns: []Column{
			{Name: "user_id", Type: String, Required: true},
			{Name: "display_name", Type: String},
			{Name: "followers", Type: Integer},
			{Name: "country", Type: String},
			{Name: "product", Type: String},
			{Name: "extracted_at", Type: Timestamp, Required: true},
		},
		KeyColumns: []string{"user_id"},
	}

	// Playlists is upserted by playlist_id, bounded to the most recently
	// listed playlists per run.
	Playlists = Table{
		Name: "playlists",
		Columns: []Column{
			{Name: "playlist_id", Type: String, Required: true},
			{Name: "name", Type: String},
			{Name: "description", Type: String},
			{Name: "owner_id", Type: String},
			{Name: "public", Type: Boolean},
			{Name: "collaborative", Type: Boolean},
			{Name: "followers_count", Type: Integer},
			{Name: "tracks_count", Type: Integer},
			{Name: "extracted_at", Type: Timestamp, Required: true},
		},
		KeyColumns: []string{"playlist_id"},
	}

	// Tracks is upserted by track_id, deduplicated across playlists.
	Tracks = Table{
		Name: "tracks",
		Columns: []Column{
			{Name: "track_id", Type: String, Required: true},
			{Name: "name", Type: String},
			{Name: "artists", Type: StringList},
			{Name: "album_id", Type: String},
			{Name: "album_name", Type: String},
			{Name: "release_date", Type: Date},
			{Name: "duration_ms", Type: Integer},
			{Name: "popularity", Type: Integer},
			{Name: "explicit", Type: Boolean},
			{Name: "external_urls", Type: String},
			{Name: "extracted_at", Type: Timestamp, Required: true},
		},
		KeyColumns: []string{"track_id"},
	}

	// AudioFeatures is 1:1 with tracks, upserted by track_id.
	AudioFeatures = Table{
		Name: "track_audio_features",
		Columns: []Column{
			{Name: "track_id", Type: String, Required: true},
			{Name: "danceability", Type: Float},
			{Name: "energy", Type: Float},
			{Name: "key", Type: Integer},
			{Name: "loudness", Type: Float},
			{Name: "mode", Type: Integer},
			{Name: "speechiness", Type: Float},
			{Name: "acousticness", Type: Float},
			{Name: "instrumentalness", Type: Float},
			{Name: "liveness", Type: Float},
			{Name: "valence", Type: Float},
			{Name: "tempo", Type: Float},
			{Name: "time_signature", Type: Integer},
			{Name: "extracted_at", Type: Timestamp, Required: true},
		},
		KeyColumns: []string{"track_id"},
	}

	// Artists is upserted by artist_id, deduplicated across tracks.
	Artists = Table{
		Name: "artists",
		Columns: []Column{
			{Name: "artist_id", Type: String, Required: true},
			{Name: "name", Type: String},
			{Name: "genres", Type: StringList},
			{Name: "popularity", Type: Integer},
			{Name: "followers", Type: Integer},
			{Name: "external_urls", Type: String},
			{Name: "extracted_at", Type: Timestamp, Required: true},
		},
		KeyColumns: []string{"artist_id"},
	}

	// PlaylistTracks is the playlist/track edge, upserted by its
	// composite key. track_id may be a forward reference within a run.
	PlaylistTracks = Table{
		Name: "playlist_tracks",
		Columns: []Column{
			{Name: "playlist_id", Type: String, Required: true},
			{Name: "track_id", Type: String, Required: true},
			{Name: "added_at", Type: Timestamp},
			{Name: "added_by", Type: String},
			{Name: "position", Type: Integer},
			{Name: "extracted_at", Type: Timestamp, Required: true},
		},
		KeyColumns: []string{"playlist_id", "track_id", "added_at"},
	}

	// PlayHistory is append-only and partitioned by played_at; rows are
	// point-in-time facts, retained or pruned by age, never updated.
	PlayHistory = Table{
		Name: "play_history",
		Columns: []Column{
			{Name: "track_id", Type: String, Required: true},
			{Name: "played_at", Type: Timestamp, Required: true},
			{Name: "context_type", Type: String},
			{Name: "context_uri", Type: String},
			{Name: "extracted_at", Type: Timestamp, Required: true},
		},
		KeyColumns:  []string{"track_id", "played_at"},
		PartitionBy: "played_at",
		AppendOnly:  true,
	}

	// TopTracks snapshots the track ranking per window per run,
	// partitioned by extracted_at.
	TopTracks = Table{
		Name: "top_tracks",
		Columns: []Column{
			{Name: "track_id", Type: String, Required: true},
			{Name: "time_range", Type: String, Required: true},
			{Name: "position", Type: Integer, Required: true},
			{Name: "extracted_at", Type: Timestamp, Required: true},
		},
		KeyColumns:  []string{"track_id", "time_range", "extracted_at"},
		PartitionBy: "extracted_at",
		AppendOnly:  true,
	}

	// TopArtists snapshots the artist ranking per window per run,
	// partitioned by extracted_at.
	TopArtists = Table{
		Name: "top_artists",
		Columns: []Column{
			{Name: "artist_id", Type: String, Required: true},
			{Name: "time_range", Type: String, Required: true},
			{Name: "position", Type: Integer, Required: true},
			{Name: "extracted_at", Type: Timestamp, Required: true},
		},
		KeyColumns:  []string{"artist_id", "time_range", "extracted_at"},
		PartitionBy: "extracted_at",
		AppendOnly:  true,
	}
)

// AllTables lists every table in load order.
var AllTables = []Table{
	Users, Playlists, Tracks, AudioFeatures, Artists,
	PlaylistTracks, PlayHistory, TopTracks, TopArtists,
}
