package warehouse

import (
	"time"

	"github.com/desertthunder/spotlake/internal/transform"
)

// Row builders convert canonical records into column form. Partial dates
// and zero timestamps become nil so backends store NULL.

func UserRow(r *transform.UserProfile) Row {
	return Row{
		"user_id":      r.UserID,
		"display_name": r.DisplayName,
		"followers":    r.Followers,
		"country":      r.Country,
		"product":      r.Product,
		"extracted_at": r.ExtractedAt,
	}
}

func PlaylistRow(r *transform.Playlist) Row {
	return Row{
		"playlist_id":     r.PlaylistID,
		"name":            r.Name,
		"description":     r.Description,
		"owner_id":        r.OwnerID,
		"public":          r.Public,
		"collaborative":   r.Collaborative,
		"followers_count": r.FollowersCount,
		"tracks_count":    r.TracksCount,
		"extracted_at":    r.ExtractedAt,
	}
}

func TrackRow(r *transform.Track) Row {
	return Row{
		"track_id":      r.TrackID,
		"name":          r.Name,
		"artists":       r.ArtistIDs,
		"album_id":      r.AlbumID,
		"album_name":    r.AlbumName,
		"release_date":  nullableString(r.ReleaseDate),
		"duration_ms":   r.DurationMS,
		"popularity":    r.Popularity,
		"explicit":      r.Explicit,
		"external_urls": r.ExternalURL,
		"extracted_at":  r.ExtractedAt,
	}
}

func AudioFeaturesRow(r *transform.AudioFeatures) Row {
	return Row{
		"track_id":         r.TrackID,
		"danceability":     r.Danceability,
		"energy":           r.Energy,
		"key":              r.Key,
		"loudness":         r.Loudness,
		"mode":             r.Mode,
		"speechiness":      r.Speechiness,
		"acousticness":     r.Acousticness,
		"instrumentalness": r.Instrumentalness,
		"liveness":         r.Liveness,
		"valence":          r.Valence,
		"tempo":            r.Tempo,
		"time_signature":   r.TimeSignature,
		"extracted_at":     r.ExtractedAt,
	}
}

func ArtistRow(r *transform.Artist) Row {
	return Row{
		"artist_id":     r.ArtistID,
		"name":          r.Name,
		"genres":        r.Genres,
		"popularity":    r.Popularity,
		"followers":     r.Followers,
		"external_urls": r.ExternalURL,
		"extracted_at":  r.ExtractedAt,
	}
}

func PlaylistTrackRow(r *transform.PlaylistTrackLink) Row {
	return Row{
		"playlist_id":  r.PlaylistID,
		"track_id":     r.TrackID,
		"added_at":     nullableTime(r.AddedAt),
		"added_by":     r.AddedBy,
		"position":     r.Position,
		"extracted_at": r.ExtractedAt,
	}
}

func PlayEventRow(r *transform.PlayEvent) Row {
	return Row{
		"track_id":     r.TrackID,
		"played_at":    r.PlayedAt,
		"context_type": r.ContextType,
		"context_uri":  r.ContextURI,
		"extracted_at": r.ExtractedAt,
	}
}

// TopItemRow maps a ranking snapshot onto the top_tracks or top_artists
// shape; the table's first key column names the ID field.
func TopItemRow(table Table, r *transform.TopItemSnapshot) Row {
	return Row{
		table.KeyColumns[0]: r.ItemID,
		"time_range":        r.TimeRange,
		"position":          r.Position,
		"extracted_at":      r.ExtractedAt,
	}
}

func nullableString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableTime(v time.Time) any {
	if v.IsZero() {
		return nil
	}
	return v
}
