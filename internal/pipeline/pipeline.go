// package pipeline orchestrates a full sync run: extract every entity type
// from Spotify, transform payloads into canonical records, and load them
// into the warehouse in dependency order.
//
// A run moves through extracting → transforming → loading and finishes
// succeeded, partial, or failed. The user profile and playlist listing are
// required; every other entity type is best-effort, and its failure degrades
// the run to partial rather than aborting it. Authentication failures abort
// immediately.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spotlake/internal/shared"
	"github.com/desertthunder/spotlake/internal/spotify"
	"github.com/desertthunder/spotlake/internal/transform"
	"github.com/desertthunder/spotlake/internal/warehouse"
)

// Status is the terminal state of a run.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusPartial   Status = "partial"
	StatusFailed    Status = "failed"
)

// EntityCount tracks what happened to one entity type during a run.
type EntityCount struct {
	Extracted int `json:"extracted"`
	Rejected  int `json:"rejected"`
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
}

// RunError is an entity-level failure recorded in the summary. Stage is
// "extract" or "load".
type RunError struct {
	Entity  string `json:"entity"`
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// Summary is the final report of a run.
type Summary struct {
	RunID      string                  `json:"run_id"`
	StartedAt  time.Time               `json:"started_at"`
	FinishedAt time.Time               `json:"finished_at"`
	Status     Status                  `json:"status"`
	Counts     map[string]*EntityCount `json:"counts"`
	Errors     []RunError              `json:"errors,omitempty"`
}

func (s *Summary) count(entity string) *EntityCount {
	c, ok := s.Counts[entity]
	if !ok {
		c = &EntityCount{}
		s.Counts[entity] = c
	}
	return c
}

func (s *Summary) addError(entity, stage string, err error) {
	s.Errors = append(s.Errors, RunError{Entity: entity, Stage: stage, Message: err.Error()})
}

// Extractor is the subset of the Spotify extractor the orchestrator consumes.
type Extractor interface {
	UserProfile(ctx context.Context) (*spotify.UserPayload, error)
	Playlists(ctx context.Context) iter.Seq2[spotify.SimplePlaylistPayload, error]
	PlaylistTracks(ctx context.Context, playlistID string) iter.Seq2[spotify.PlaylistTrackPayload, error]
	AudioFeatures(ctx context.Context, trackIDs []string) ([]spotify.AudioFeaturesPayload, []error)
	Artists(ctx context.Context, artistIDs []string) ([]spotify.ArtistPayload, []error)
	RecentlyPlayed(ctx context.Context) ([]spotify.PlayHistoryPayload, error)
	TopTracks(ctx context.Context, timeRange string) ([]spotify.TrackPayload, error)
	TopArtists(ctx context.Context, timeRange string) ([]spotify.ArtistPayload, error)
}

// Orchestrator runs the sync pipeline end to end.
type Orchestrator struct {
	extractor Extractor
	loader    *warehouse.Loader
	logger    *log.Logger
	now       func() time.Time
}

func New(extractor Extractor, loader *warehouse.Loader, logger *log.Logger) *Orchestrator {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Orchestrator{
		extractor: extractor,
		loader:    loader,
		logger:    logger,
		now:       time.Now,
	}
}

// extraction holds everything pulled from the API before transformation.
// Track and artist payloads are deduplicated by ID across sources
// (playlists, recently played, top items).
type extraction struct {
	user           *spotify.UserPayload
	playlists      []spotify.SimplePlaylistPayload
	playlistTracks map[string][]spotify.PlaylistTrackPayload
	tracks         []spotify.TrackPayload
	features       []spotify.AudioFeaturesPayload
	artists        []spotify.ArtistPayload
	recent         []spotify.PlayHistoryPayload
	topTracks      map[string][]spotify.TrackPayload
	topArtists     map[string][]spotify.ArtistPayload
}

// records holds the canonical rows per table, ready to load.
type records struct {
	tables map[string][]warehouse.Row
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks the run.
func (o *Orchestrator) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// Run executes one full sync. The returned summary is always non-nil; the
// error is non-nil only when the run failed outright (auth failure, required
// entity failure, schema failure, or cancellation).
func (o *Orchestrator) Run(ctx context.Context, progress chan<- ProgressUpdate) (*Summary, error) {
	summary := &Summary{
		RunID:     shared.GenerateID(),
		StartedAt: o.now().UTC(),
		Counts:    make(map[string]*EntityCount),
	}
	defer func() {
		summary.FinishedAt = o.now().UTC()
	}()

	fail := func(err error) (*Summary, error) {
		summary.Status = StatusFailed
		o.sendProgress(progress, finishedUpdate(StatusFailed))
		o.logger.Error("run failed", "run_id", summary.RunID, "error", err)
		return summary, err
	}

	o.logger.Info("starting run", "run_id", summary.RunID)

	if err := o.loader.EnsureSchema(ctx); err != nil {
		return fail(err)
	}

	ex, err := o.extract(ctx, progress, summary)
	if err != nil {
		return fail(err)
	}

	rec, err := o.transformAll(ctx, progress, summary, ex)
	if err != nil {
		return fail(err)
	}

	if err := o.load(ctx, progress, summary, rec); err != nil {
		return fail(err)
	}

	summary.Status = StatusSucceeded
	if len(summary.Errors) > 0 {
		summary.Status = StatusPartial
	}
	o.sendProgress(progress, finishedUpdate(summary.Status))
	o.logger.Info("run finished", "run_id", summary.RunID, "status", summary.Status)
	return summary, nil
}

func (o *Orchestrator) extract(ctx context.Context, progress chan<- ProgressUpdate, summary *Summary) (*extraction, error) {
	ex := &extraction{
		playlistTracks: make(map[string][]spotify.PlaylistTrackPayload),
		topTracks:      make(map[string][]spotify.TrackPayload),
		topArtists:     make(map[string][]spotify.ArtistPayload),
	}

	trackIndex := make(map[string]struct{})
	addTrack := func(t spotify.TrackPayload) {
		if t.ID == "" {
			return
		}
		if _, ok := trackIndex[t.ID]; ok {
			return
		}
		trackIndex[t.ID] = struct{}{}
		ex.tracks = append(ex.tracks, t)
	}

	var artistIDs []string

	o.sendProgress(progress, extractingUpdate(warehouse.Users.Name, 1, 1))
	user, err := o.extractor.UserProfile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to extract user profile: %w", err)
	}
	ex.user = user
	summary.count(warehouse.Users.Name).Extracted = 1

	o.sendProgress(progress, extractingUpdate(warehouse.Playlists.Name, 1, 1))
	for playlist, err := range o.extractor.Playlists(ctx) {
		if err != nil {
			return nil, fmt.Errorf("failed to extract playlists: %w", err)
		}
		ex.playlists = append(ex.playlists, playlist)
	}
	summary.count(warehouse.Playlists.Name).Extracted = len(ex.playlists)

	for i, playlist := range ex.playlists {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		o.sendProgress(progress, extractingUpdate(warehouse.PlaylistTracks.Name, i+1, len(ex.playlists)))

		walkErr := error(nil)
		for entry, err := range o.extractor.PlaylistTracks(ctx, playlist.ID) {
			if err != nil {
				walkErr = err
				break
			}
			ex.playlistTracks[playlist.ID] = append(ex.playlistTracks[playlist.ID], entry)
			addTrack(*entry.Track)
			for _, ref := range entry.Track.Artists {
				artistIDs = append(artistIDs, ref.ID)
			}
		}
		if walkErr != nil {
			if isAuthError(walkErr) {
				return nil, walkErr
			}
			o.logger.Warn("skipping playlist tracks", "playlist", playlist.ID, "error", walkErr)
			summary.addError(warehouse.PlaylistTracks.Name, "extract", walkErr)
		}
	}
	entryCount := 0
	for _, entries := range ex.playlistTracks {
		entryCount += len(entries)
	}
	summary.count(warehouse.PlaylistTracks.Name).Extracted = entryCount

	o.sendProgress(progress, extractingUpdate(warehouse.PlayHistory.Name, 1, 1))
	recent, err := o.extractor.RecentlyPlayed(ctx)
	if err != nil {
		if isAuthError(err) {
			return nil, err
		}
		o.logger.Warn("skipping recently played", "error", err)
		summary.addError(warehouse.PlayHistory.Name, "extract", err)
	}
	ex.recent = recent
	summary.count(warehouse.PlayHistory.Name).Extracted = len(recent)
	for _, entry := range recent {
		addTrack(entry.Track)
		for _, ref := range entry.Track.Artists {
			artistIDs = append(artistIDs, ref.ID)
		}
	}

	for i, timeRange := range spotify.TimeRanges {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		o.sendProgress(progress, extractingUpdate(warehouse.TopTracks.Name, i+1, len(spotify.TimeRanges)))

		topTracks, err := o.extractor.TopTracks(ctx, timeRange)
		if err != nil {
			if isAuthError(err) {
				return nil, err
			}
			o.logger.Warn("skipping top tracks", "time_range", timeRange, "error", err)
			summary.addError(warehouse.TopTracks.Name, "extract", err)
		} else {
			ex.topTracks[timeRange] = topTracks
			summary.count(warehouse.TopTracks.Name).Extracted += len(topTracks)
			for _, t := range topTracks {
				addTrack(t)
				for _, ref := range t.Artists {
					artistIDs = append(artistIDs, ref.ID)
				}
			}
		}

		topArtists, err := o.extractor.TopArtists(ctx, timeRange)
		if err != nil {
			if isAuthError(err) {
				return nil, err
			}
			o.logger.Warn("skipping top artists", "time_range", timeRange, "error", err)
			summary.addError(warehouse.TopArtists.Name, "extract", err)
		} else {
			ex.topArtists[timeRange] = topArtists
			summary.count(warehouse.TopArtists.Name).Extracted += len(topArtists)
			ex.artists = append(ex.artists, topArtists...)
			for _, a := range topArtists {
				artistIDs = append(artistIDs, a.ID)
			}
		}
	}
	summary.count(warehouse.Tracks.Name).Extracted = len(ex.tracks)

	trackIDs := make([]string, 0, len(ex.tracks))
	for _, t := range ex.tracks {
		trackIDs = append(trackIDs, t.ID)
	}

	o.sendProgress(progress, extractingUpdate(warehouse.AudioFeatures.Name, 1, 1))
	features, errs := o.extractor.AudioFeatures(ctx, trackIDs)
	for _, err := range errs {
		if isAuthError(err) {
			return nil, err
		}
		summary.addError(warehouse.AudioFeatures.Name, "extract", err)
	}
	ex.features = features
	summary.count(warehouse.AudioFeatures.Name).Extracted = len(features)

	o.sendProgress(progress, extractingUpdate(warehouse.Artists.Name, 1, 1))
	fullArtists, errs := o.extractor.Artists(ctx, spotify.UniqueIDs(artistIDs))
	for _, err := range errs {
		if isAuthError(err) {
			return nil, err
		}
		summary.addError(warehouse.Artists.Name, "extract", err)
	}
	ex.artists = dedupeArtists(append(fullArtists, ex.artists...))
	summary.count(warehouse.Artists.Name).Extracted = len(ex.artists)

	return ex, nil
}

// transformAll converts payloads into warehouse rows. Each rejected record
// is counted against its entity and skipped; siblings are unaffected. A
// rejected user profile fails the run since every other entity hangs off it.
func (o *Orchestrator) transformAll(ctx context.Context, progress chan<- ProgressUpdate, summary *Summary, ex *extraction) (*records, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t := transform.New(o.now())
	rec := &records{tables: make(map[string][]warehouse.Row)}

	add := func(table warehouse.Table, row warehouse.Row) {
		rec.tables[table.Name] = append(rec.tables[table.Name], row)
	}
	reject := func(entity string, err error) {
		summary.count(entity).Rejected++
		o.logger.Warn("rejected record", "entity", entity, "error", err)
	}

	o.sendProgress(progress, transformingUpdate(warehouse.Users.Name, 1))
	user, err := t.User(ex.user)
	if err != nil {
		return nil, fmt.Errorf("failed to transform user profile: %w", err)
	}
	add(warehouse.Users, warehouse.UserRow(user))

	o.sendProgress(progress, transformingUpdate(warehouse.Playlists.Name, len(ex.playlists)))
	for _, p := range ex.playlists {
		record, err := t.Playlist(p)
		if err != nil {
			reject(warehouse.Playlists.Name, err)
			continue
		}
		add(warehouse.Playlists, warehouse.PlaylistRow(record))
	}

	o.sendProgress(progress, transformingUpdate(warehouse.Tracks.Name, len(ex.tracks)))
	for _, p := range ex.tracks {
		record, err := t.Track(p)
		if err != nil {
			reject(warehouse.Tracks.Name, err)
			continue
		}
		add(warehouse.Tracks, warehouse.TrackRow(record))
	}

	o.sendProgress(progress, transformingUpdate(warehouse.AudioFeatures.Name, len(ex.features)))
	for _, p := range ex.features {
		record, err := t.AudioFeatures(p)
		if err != nil {
			reject(warehouse.AudioFeatures.Name, err)
			continue
		}
		add(warehouse.AudioFeatures, warehouse.AudioFeaturesRow(record))
	}

	o.sendProgress(progress, transformingUpdate(warehouse.Artists.Name, len(ex.artists)))
	for _, p := range ex.artists {
		record, err := t.Artist(p)
		if err != nil {
			reject(warehouse.Artists.Name, err)
			continue
		}
		add(warehouse.Artists, warehouse.ArtistRow(record))
	}

	for playlistID, entries := range ex.playlistTracks {
		for i, entry := range entries {
			record, err := t.PlaylistTrack(playlistID, i+1, entry)
			if err != nil {
				reject(warehouse.PlaylistTracks.Name, err)
				continue
			}
			add(warehouse.PlaylistTracks, warehouse.PlaylistTrackRow(record))
		}
	}

	o.sendProgress(progress, transformingUpdate(warehouse.PlayHistory.Name, len(ex.recent)))
	for _, p := range ex.recent {
		record, err := t.PlayEvent(p)
		if err != nil {
			reject(warehouse.PlayHistory.Name, err)
			continue
		}
		add(warehouse.PlayHistory, warehouse.PlayEventRow(record))
	}

	for timeRange, tracks := range ex.topTracks {
		for i, track := range tracks {
			record, err := t.TopItem(transform.TopTrack, track.ID, timeRange, i+1)
			if err != nil {
				reject(warehouse.TopTracks.Name, err)
				continue
			}
			add(warehouse.TopTracks, warehouse.TopItemRow(warehouse.TopTracks, record))
		}
	}
	for timeRange, artists := range ex.topArtists {
		for i, artist := range artists {
			record, err := t.TopItem(transform.TopArtist, artist.ID, timeRange, i+1)
			if err != nil {
				reject(warehouse.TopArtists.Name, err)
				continue
			}
			add(warehouse.TopArtists, warehouse.TopItemRow(warehouse.TopArtists, record))
		}
	}

	return rec, nil
}

// load writes each table in dependency order. A failed table load is
// recorded and skipped; tables already committed stay committed.
func (o *Orchestrator) load(ctx context.Context, progress chan<- ProgressUpdate, summary *Summary, rec *records) error {
	for i, table := range warehouse.AllTables {
		if err := ctx.Err(); err != nil {
			return err
		}

		rows := rec.tables[table.Name]
		o.sendProgress(progress, loadingUpdate(table.Name, i+1, len(warehouse.AllTables)))

		result, err := o.loader.Load(ctx, table, rows)
		if err != nil {
			summary.addError(table.Name, "load", err)
			continue
		}

		c := summary.count(table.Name)
		c.Inserted = int(result.Inserted)
		c.Updated = int(result.Updated)
	}
	return nil
}

func isAuthError(err error) bool {
	return errors.Is(err, shared.ErrNotAuthenticated) ||
		errors.Is(err, shared.ErrRefreshFailed) ||
		errors.Is(err, shared.ErrAuthFailed)
}

func dedupeArtists(artists []spotify.ArtistPayload) []spotify.ArtistPayload {
	seen := make(map[string]struct{}, len(artists))
	out := make([]spotify.ArtistPayload, 0, len(artists))
	for _, a := range artists {
		if a.ID == "" {
			continue
		}
		if _, ok := seen[a.ID]; ok {
			continue
		}
		seen[a.ID] = struct{}{}
		out = append(out, a)
	}
	return out
}
