package store

import (
	"path/filepath"
	"testing"

	"github.com/songprint/songprint/internal/fingerprint"
	"github.com/songprint/songprint/internal/model"
)

func setupTestDB(t *testing.T) *SQLStore {
	t.Helper()
	s, err := OpenSQL(filepath.Join(t.TempDir(), "test_songprint.sqlite3"))
	if err != nil {
		t.Fatalf("OpenSQL failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLStoreFreshDatabaseGetsDefaults(t *testing.T) {
	s := setupTestDB(t)
	ix, err := s.LoadIndex()
	if err != nil {
		t.Fatalf("LoadIndex failed: %v", err)
	}
	if got := ix.Current().Params(); got != fingerprint.DefaultParams() {
		t.Errorf("fresh db params = %+v, want defaults", got)
	}
	if ix.Current().NumSongs() != 0 {
		t.Error("fresh db should have no songs")
	}
}

func TestSQLStoreSaveAndReload(t *testing.T) {
	s := setupTestDB(t)
	if _, err := s.LoadIndex(); err != nil {
		t.Fatal(err)
	}

	song := model.Song{ID: "s1", Title: "Test Song", SourcePath: "/music/t.wav", DurationMs: 4000}
	fps := []fingerprint.Fingerprint{
		{Hash: 12345, AnchorTime: 1},
		{Hash: 12345, AnchorTime: 9},
		{Hash: 1 << 63, AnchorTime: 3}, // exercises the signed bit-cast
	}
	if err := s.SaveSong(song, fps); err != nil {
		t.Fatalf("SaveSong failed: %v", err)
	}

	ix, err := s.LoadIndex()
	if err != nil {
		t.Fatalf("LoadIndex after save failed: %v", err)
	}
	v := ix.Current()

	loaded, err := v.Song("s1")
	if err != nil {
		t.Fatalf("song missing after reload: %v", err)
	}
	if loaded.Title != song.Title || loaded.SourcePath != song.SourcePath {
		t.Errorf("metadata lost: %+v", loaded)
	}
	if loaded.FingerprintCount != 3 {
		t.Errorf("FingerprintCount = %d, want 3", loaded.FingerprintCount)
	}
	if got := v.Lookup(12345); len(got) != 2 {
		t.Errorf("Lookup(12345): %d postings, want 2", len(got))
	}
	if got := v.Lookup(1 << 63); len(got) != 1 {
		t.Errorf("high-bit hash did not round-trip: %d postings", len(got))
	}
}

func TestSQLStoreDeleteSong(t *testing.T) {
	s := setupTestDB(t)
	if _, err := s.LoadIndex(); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveSong(model.Song{ID: "s1"}, testFps(1, 2)); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveSong(model.Song{ID: "s2"}, testFps(3)); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteSong("s1"); err != nil {
		t.Fatalf("DeleteSong failed: %v", err)
	}
	ix, err := s.LoadIndex()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ix.Current().Song("s1"); err == nil {
		t.Error("deleted song still persisted")
	}
	if _, err := ix.Current().Song("s2"); err != nil {
		t.Errorf("unrelated song lost: %v", err)
	}
}

func TestSQLStoreClearKeepsParams(t *testing.T) {
	s := setupTestDB(t)
	if _, err := s.LoadIndex(); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveSong(model.Song{ID: "s1"}, testFps(1)); err != nil {
		t.Fatal(err)
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	ix, err := s.LoadIndex()
	if err != nil {
		t.Fatal(err)
	}
	if ix.Current().NumSongs() != 0 {
		t.Error("songs survived Clear")
	}
	if ix.Current().Params() != fingerprint.DefaultParams() {
		t.Error("Clear should keep the parameter set")
	}
}

func TestSQLStoreReplace(t *testing.T) {
	s := setupTestDB(t)
	if _, err := s.LoadIndex(); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveSong(model.Song{ID: "old"}, testFps(1)); err != nil {
		t.Fatal(err)
	}

	newParams := fingerprint.Params{SampleRate: 11025, LoudnessGateDB: -35, FanValue: 8}
	b := NewBuild(newParams)
	if err := b.Add(model.Song{ID: "old", Title: "rebuilt"}, testFps(7, 8)); err != nil {
		t.Fatal(err)
	}

	if err := s.Replace(b); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}

	ix, err := s.LoadIndex()
	if err != nil {
		t.Fatal(err)
	}
	v := ix.Current()
	if v.Params() != newParams {
		t.Errorf("params after replace = %+v, want %+v", v.Params(), newParams)
	}
	song, err := v.Song("old")
	if err != nil {
		t.Fatalf("rebuilt song missing: %v", err)
	}
	if song.FingerprintCount != 2 {
		t.Errorf("FingerprintCount = %d, want 2", song.FingerprintCount)
	}
}
