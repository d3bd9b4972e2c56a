// Package store holds the fingerprint index: a hash-keyed posting table
// with a durable SQLite layer behind it. The in-memory side is versioned;
// matching always runs against one version, and a rehash publishes a new
// version with a pointer swap instead of mutating the live one.
package store

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/songprint/songprint/internal/fingerprint"
	"github.com/songprint/songprint/internal/model"
)

// Version is one published build of the index. Ordinary inserts append to
// the current version under its lock, one whole song per critical section,
// so a reader never observes a partially written song. Once a rebuild
// replaces it, a Version is never written again.
type Version struct {
	mu      sync.RWMutex
	params  fingerprint.Params
	songs   map[string]model.Song
	buckets map[uint64][]model.Posting
}

func newVersion(params fingerprint.Params) *Version {
	return &Version{
		params:  params,
		songs:   make(map[string]model.Song),
		buckets: make(map[uint64][]model.Posting),
	}
}

// Params returns the parameter set this version was fingerprinted under.
func (v *Version) Params() fingerprint.Params { return v.params }

// Lookup returns the postings recorded for hash, in insertion order.
// Unknown hashes return nil. The returned slice must not be modified.
func (v *Version) Lookup(hash uint64) []model.Posting {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.buckets[hash]
}

// Song returns the entry for id, or model.ErrSongNotFound.
func (v *Version) Song(id string) (model.Song, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	s, ok := v.songs[id]
	if !ok {
		return model.Song{}, model.ErrSongNotFound
	}
	return s, nil
}

// Songs returns all entries sorted by ID.
func (v *Version) Songs() []model.Song {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]model.Song, 0, len(v.songs))
	for _, s := range v.songs {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// NumSongs returns the number of song entries.
func (v *Version) NumSongs() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.songs)
}

func (v *Version) insert(song model.Song, fps []fingerprint.Fingerprint) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.songs[song.ID]; ok {
		return model.ErrDuplicateSong
	}
	for _, fp := range fps {
		v.buckets[fp.Hash] = append(v.buckets[fp.Hash], model.Posting{
			SongID:     song.ID,
			AnchorTime: fp.AnchorTime,
		})
	}
	song.FingerprintCount = len(fps)
	v.songs[song.ID] = song
	return nil
}

func (v *Version) delete(songID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.songs[songID]; !ok {
		return model.ErrSongNotFound
	}
	delete(v.songs, songID)
	for hash, postings := range v.buckets {
		kept := postings[:0]
		for _, p := range postings {
			if p.SongID != songID {
				kept = append(kept, p)
			}
		}
		if len(kept) == 0 {
			delete(v.buckets, hash)
		} else {
			v.buckets[hash] = kept
		}
	}
	return nil
}

func (v *Version) updateMeta(songID, title string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	s, ok := v.songs[songID]
	if !ok {
		return model.ErrSongNotFound
	}
	s.Title = title
	v.songs[songID] = s
	return nil
}

// Index is the shared mutable resource of the system: a current Version
// plus the rebuild latch. All writes go through it.
type Index struct {
	cur        atomic.Pointer[Version]
	writeMu    sync.Mutex
	rebuilding atomic.Bool
}

// NewIndex returns an empty index under the given parameters.
func NewIndex(params fingerprint.Params) *Index {
	ix := &Index{}
	ix.cur.Store(newVersion(params))
	return ix
}

// Current returns the live version. Matching holds on to the returned
// handle for the whole query so a concurrent rehash cannot mix versions
// under it.
func (ix *Index) Current() *Version { return ix.cur.Load() }

// Insert adds one song's fingerprints to the current version. It fails
// with model.ErrRebuildInProgress while a rehash is running, and with
// model.ErrDuplicateSong if the ID is already present; it never dedups.
func (ix *Index) Insert(song model.Song, fps []fingerprint.Fingerprint) error {
	ix.writeMu.Lock()
	defer ix.writeMu.Unlock()
	if ix.rebuilding.Load() {
		return model.ErrRebuildInProgress
	}
	return ix.cur.Load().insert(song, fps)
}

// Delete removes a song and all its postings.
func (ix *Index) Delete(songID string) error {
	ix.writeMu.Lock()
	defer ix.writeMu.Unlock()
	if ix.rebuilding.Load() {
		return model.ErrRebuildInProgress
	}
	return ix.cur.Load().delete(songID)
}

// UpdateMeta edits song metadata in place. Metadata is not hashed, so no
// rehash is needed; the rebuild latch still applies, or the edit would be
// silently overwritten when the rebuilt version publishes.
func (ix *Index) UpdateMeta(songID, title string) error {
	ix.writeMu.Lock()
	defer ix.writeMu.Unlock()
	if ix.rebuilding.Load() {
		return model.ErrRebuildInProgress
	}
	return ix.cur.Load().updateMeta(songID, title)
}

// Clear publishes a fresh empty version under the same parameters. Like
// every other mutation it is rejected while a rehash is running: a clear
// landing mid-rebuild would be undone by the publish.
func (ix *Index) Clear() error {
	ix.writeMu.Lock()
	defer ix.writeMu.Unlock()
	if ix.rebuilding.Load() {
		return model.ErrRebuildInProgress
	}
	ix.cur.Store(newVersion(ix.cur.Load().params))
	return nil
}

// BeginRebuild latches the index against mutations while a rehash runs.
func (ix *Index) BeginRebuild() error {
	if !ix.rebuilding.CompareAndSwap(false, true) {
		return model.ErrRebuildInProgress
	}
	return nil
}

// AbortRebuild releases the latch leaving the current version untouched.
func (ix *Index) AbortRebuild() {
	ix.rebuilding.Store(false)
}

// Publish swaps the completed build in as the current version and
// releases the rebuild latch. In-flight readers keep the version they
// started with.
func (ix *Index) Publish(b *Build) {
	ix.writeMu.Lock()
	defer ix.writeMu.Unlock()
	ix.cur.Store(b.version)
	ix.rebuilding.Store(false)
}

// Build accumulates a full store rebuild off to the side. Add is safe for
// concurrent use by rehash workers; nothing is visible to readers until
// Index.Publish.
type Build struct {
	version *Version
}

// NewBuild starts an empty build under the new parameter set.
func NewBuild(params fingerprint.Params) *Build {
	return &Build{version: newVersion(params)}
}

// Add records one re-fingerprinted song into the build.
func (b *Build) Add(song model.Song, fps []fingerprint.Fingerprint) error {
	return b.version.insert(song, fps)
}

// Songs lists the songs added so far, sorted by ID.
func (b *Build) Songs() []model.Song { return b.version.Songs() }

// Params returns the build's parameter set.
func (b *Build) Params() fingerprint.Params { return b.version.params }
