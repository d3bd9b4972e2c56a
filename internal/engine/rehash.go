package engine

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/songprint/songprint/internal/fingerprint"
	"github.com/songprint/songprint/internal/model"
	"github.com/songprint/songprint/internal/store"
)

// Rehash rebuilds the whole store under newParams: every song is
// re-decoded from its source path and re-fingerprinted into a fresh
// build, which replaces the active store only if every song succeeded.
// Fingerprints from different parameter sets are not comparable, so a
// mixed store is never allowed to exist; any failure aborts the swap and
// the report names the songs that failed. In-flight queries are
// unaffected either way: they hold the version they started with.
//
// Store mutations are rejected for the duration (store.Index latch).
// Cancelling ctx aborts between songs.
func (s *Service) Rehash(ctx context.Context, newParams fingerprint.Params) (model.RehashReport, error) {
	s.rehashMu.Lock()
	defer s.rehashMu.Unlock()

	report := model.RehashReport{Failed: make(map[string]error)}

	if !newParams.Valid() {
		return report, fmt.Errorf("rehash: invalid parameters %+v", newParams)
	}
	cur := s.index.Current()
	if newParams == cur.Params() {
		s.log.Infof("rehash skipped: parameters unchanged")
		report.Succeeded = songIDs(cur.Songs())
		return report, nil
	}
	if s.decoder == nil && cur.NumSongs() > 0 {
		return report, fmt.Errorf("rehash: no decoder configured to re-read sources")
	}

	if err := s.index.BeginRebuild(); err != nil {
		return report, fmt.Errorf("rehash: %w", err)
	}

	songs := cur.Songs()
	build := store.NewBuild(newParams)
	s.log.Infof("rehashing %d songs: rate=%d gate=%.1fdB fan=%d",
		len(songs), newParams.SampleRate, newParams.LoudnessGateDB, newParams.FanValue)

	var mu sync.Mutex // guards report
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for _, song := range songs {
		song := song
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err // abandon remaining songs
			}
			if err := s.refingerprint(gctx, song, newParams, build); err != nil {
				mu.Lock()
				report.Failed[song.ID] = err
				mu.Unlock()
				return nil // collect, keep going
			}
			mu.Lock()
			report.Succeeded = append(report.Succeeded, song.ID)
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()

	if err != nil || len(report.Failed) > 0 {
		s.index.AbortRebuild()
		if err != nil {
			s.log.Warnf("rehash cancelled: %v", err)
			return report, fmt.Errorf("rehash: %w", err)
		}
		s.log.Warnf("rehash aborted: %d of %d songs failed", len(report.Failed), len(songs))
		return report, fmt.Errorf("rehash: %d songs failed: %w", len(report.Failed), model.ErrRehashAborted)
	}

	if s.sql != nil {
		if err := s.sql.Replace(build); err != nil {
			s.index.AbortRebuild()
			return report, fmt.Errorf("rehash: persisting rebuilt store: %w", err)
		}
	}
	s.index.Publish(build)
	s.log.Infof("rehash complete: %d songs under new parameters", len(report.Succeeded))
	return report, nil
}

func (s *Service) refingerprint(ctx context.Context, song model.Song, params fingerprint.Params, build *store.Build) error {
	if song.SourcePath == "" {
		return model.ErrNoSourcePath
	}
	samples, rate, err := s.decoder.Decode(ctx, song.SourcePath, params.SampleRate)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", song.SourcePath, err)
	}
	if rate != params.SampleRate {
		return fmt.Errorf("decoded %s at %d Hz, want %d Hz: %w",
			song.SourcePath, rate, params.SampleRate, model.ErrInvalidAudio)
	}
	fps, err := fingerprint.Pipeline(samples, rate, params)
	if err != nil {
		return err
	}
	return build.Add(song, fps)
}

func songIDs(songs []model.Song) []string {
	ids := make([]string, len(songs))
	for i, s := range songs {
		ids[i] = s.ID
	}
	return ids
}
