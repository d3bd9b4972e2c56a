// Package engine is the facade the presentation layer talks to: ingest,
// query, clear, rehash. It owns the pipeline parameters, the store and
// the worker pool; callers never touch those directly.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/songprint/songprint/internal/fingerprint"
	"github.com/songprint/songprint/internal/model"
	"github.com/songprint/songprint/internal/store"
	"github.com/songprint/songprint/pkg/logger"
)

type Service struct {
	index   *store.Index
	sql     *store.SQLStore // nil when persistence is disabled
	log     *logger.Logger
	decoder Decoder
	history HistorySink

	minScore int
	workers  int

	rehashMu sync.Mutex // one rehash at a time
}

// New builds a Service. With a DB path configured, the persisted store is
// loaded and its parameter set takes precedence over WithParams.
func New(opts ...Option) (*Service, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if !cfg.Params.Valid() {
		return nil, fmt.Errorf("invalid parameters %+v", cfg.Params)
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}

	s := &Service{
		log:      cfg.Logger,
		decoder:  cfg.Decoder,
		history:  cfg.History,
		minScore: cfg.MinScore,
		workers:  cfg.Workers,
	}

	if cfg.DBPath == "" {
		s.index = store.NewIndex(cfg.Params)
		return s, nil
	}

	sql, err := store.OpenSQL(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	ix, err := sql.LoadIndex()
	if err != nil {
		sql.Close()
		return nil, fmt.Errorf("loading store: %w", err)
	}
	s.sql = sql
	s.index = ix

	if n := ix.Current().NumSongs(); n > 0 {
		s.log.Infof("loaded %d songs from %s", n, cfg.DBPath)
	}
	return s, nil
}

func (s *Service) Close() error {
	if s.sql == nil {
		return nil
	}
	return s.sql.Close()
}

// GetParameters returns the parameter set the active store was built under.
func (s *Service) GetParameters() fingerprint.Params {
	return s.index.Current().Params()
}

// IngestRequest carries one song into the library. SongID is optional; a
// UUID is generated when empty. SourcePath is what rehash will re-decode,
// so songs ingested from raw samples alone cannot survive a rehash.
type IngestRequest struct {
	SongID     string
	Title      string
	SourcePath string
	Samples    []float64
	SampleRate int
}

// Ingest fingerprints one song and adds it to the store. The returned
// count is the number of fingerprints recorded.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	params := s.GetParameters()
	if len(req.Samples) == 0 || req.SampleRate <= 0 {
		return 0, fmt.Errorf("ingest %q: %w", req.Title, model.ErrInvalidAudio)
	}
	if req.SampleRate != params.SampleRate {
		return 0, fmt.Errorf("ingest %q: decoded at %d Hz, store expects %d Hz: %w",
			req.Title, req.SampleRate, params.SampleRate, model.ErrInvalidAudio)
	}

	songID := req.SongID
	if songID == "" {
		songID = uuid.NewString()
	}
	if _, err := s.index.Current().Song(songID); err == nil {
		return 0, fmt.Errorf("ingest %q: %w", songID, model.ErrDuplicateSong)
	}

	fps, err := fingerprint.Pipeline(req.Samples, req.SampleRate, params)
	if err != nil {
		return 0, fmt.Errorf("ingest %q: %w", req.Title, err)
	}

	song := model.Song{
		ID:         songID,
		Title:      req.Title,
		SourcePath: req.SourcePath,
		DurationMs: int(float64(len(req.Samples)) / float64(req.SampleRate) * 1000),
		AddedAt:    time.Now(),
	}

	if s.sql != nil {
		if err := s.sql.SaveSong(song, fps); err != nil {
			return 0, fmt.Errorf("ingest %q: persisting: %w", songID, err)
		}
	}
	if err := s.index.Insert(song, fps); err != nil {
		if s.sql != nil {
			// keep disk and memory in agreement
			if derr := s.sql.DeleteSong(songID); derr != nil {
				s.log.Warnf("rollback of song %s failed: %v", songID, derr)
			}
		}
		return 0, fmt.Errorf("ingest %q: %w", songID, err)
	}

	s.log.Infof("ingested %q (%s): %d fingerprints", song.Title, songID, len(fps))
	return len(fps), nil
}

// BatchIngest fingerprints many songs on the worker pool. Each song
// succeeds or fails on its own; one bad file never aborts the batch.
// Cancelling ctx stops between songs, and already-inserted songs stay.
// Results come back in request order.
func (s *Service) BatchIngest(ctx context.Context, reqs []IngestRequest) []model.IngestResult {
	results := make([]model.IngestResult, len(reqs))

	type job struct {
		idx int
		req IngestRequest
	}
	jobs := make(chan job)

	var wg sync.WaitGroup
	for w := 0; w < s.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				res := model.IngestResult{SongID: j.req.SongID, Source: j.req.SourcePath}
				if err := ctx.Err(); err != nil {
					res.Err = err
				} else {
					n, err := s.Ingest(ctx, j.req)
					res.FingerprintCount = n
					res.Err = err
				}
				results[j.idx] = res
			}
		}()
	}

	for i, req := range reqs {
		jobs <- job{idx: i, req: req}
	}
	close(jobs)
	wg.Wait()
	return results
}

// Query fingerprints the clip and ranks candidate songs against the
// current store version. The whole query runs against the version handle
// taken here, so a concurrent rehash cannot mix parameter sets under it.
// An empty store or a clip yielding no fingerprints gives an empty
// ranking, not an error.
func (s *Service) Query(ctx context.Context, samples []float64, sampleRate, topK int) (model.RankedMatches, error) {
	return s.QueryLabeled(ctx, "", samples, sampleRate, topK)
}

// QueryLabeled is Query with a caller-supplied label for the history sink.
func (s *Service) QueryLabeled(ctx context.Context, label string, samples []float64, sampleRate, topK int) (model.RankedMatches, error) {
	if err := ctx.Err(); err != nil {
		return model.RankedMatches{}, err
	}
	v := s.index.Current()
	params := v.Params()

	if len(samples) == 0 || sampleRate <= 0 {
		return model.RankedMatches{}, fmt.Errorf("query: %w", model.ErrInvalidAudio)
	}
	if sampleRate != params.SampleRate {
		return model.RankedMatches{}, fmt.Errorf("query: decoded at %d Hz, store expects %d Hz: %w",
			sampleRate, params.SampleRate, model.ErrInvalidAudio)
	}

	fps, err := fingerprint.Pipeline(samples, sampleRate, params)
	if err != nil {
		return model.RankedMatches{}, fmt.Errorf("query: %w", err)
	}

	ranked := rankMatches(v, fps, topK, s.minScore)
	if s.history != nil {
		s.history(label, ranked)
	}
	return ranked, nil
}

// ClearDatabase drops every song, on disk and in memory. Parameters are
// kept; an empty store under the old settings is still a valid store.
func (s *Service) ClearDatabase() error {
	// In-memory first: it holds the rebuild latch, and refusing there
	// keeps the durable rows untouched while a rehash is running.
	if err := s.index.Clear(); err != nil {
		return err
	}
	if s.sql != nil {
		if err := s.sql.Clear(); err != nil {
			return fmt.Errorf("clearing store: %w", err)
		}
	}
	s.log.Infof("database cleared")
	return nil
}

// ListSongs returns the library sorted by ID.
func (s *Service) ListSongs() []model.Song {
	return s.index.Current().Songs()
}

// GetSong returns one library entry.
func (s *Service) GetSong(songID string) (model.Song, error) {
	return s.index.Current().Song(songID)
}

// DeleteSong removes a song from disk and memory.
func (s *Service) DeleteSong(songID string) error {
	if _, err := s.index.Current().Song(songID); err != nil {
		return err
	}
	if s.sql != nil {
		if err := s.sql.DeleteSong(songID); err != nil {
			return fmt.Errorf("deleting song %s: %w", songID, err)
		}
	}
	return s.index.Delete(songID)
}

// UpdateSongTitle edits metadata only; fingerprints are untouched so no
// rehash is required.
func (s *Service) UpdateSongTitle(songID, title string) error {
	if err := s.index.UpdateMeta(songID, title); err != nil {
		return err
	}
	if s.sql != nil {
		if err := s.sql.UpdateMeta(songID, title); err != nil {
			return fmt.Errorf("updating song %s: %w", songID, err)
		}
	}
	return nil
}
