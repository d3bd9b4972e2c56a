package engine

import (
	"testing"

	"github.com/songprint/songprint/internal/fingerprint"
	"github.com/songprint/songprint/internal/model"
	"github.com/songprint/songprint/internal/store"
)

// fabricated fingerprints let these tests control vote counts exactly
func fabFps(pairs ...[2]uint32) []fingerprint.Fingerprint {
	fps := make([]fingerprint.Fingerprint, len(pairs))
	for i, p := range pairs {
		fps[i] = fingerprint.Fingerprint{Hash: uint64(p[0]), AnchorTime: p[1]}
	}
	return fps
}

func TestRankMatchesScoresBestOffset(t *testing.T) {
	ix := store.NewIndex(fingerprint.DefaultParams())
	// song a: three hashes at consecutive anchors
	if err := ix.Insert(model.Song{ID: "a", Title: "A"},
		fabFps([2]uint32{1, 10}, [2]uint32{2, 11}, [2]uint32{3, 12})); err != nil {
		t.Fatal(err)
	}

	// query hits all three hashes, each shifted by the same 10 frames,
	// plus one colliding hash voting a stray offset
	query := fabFps([2]uint32{1, 0}, [2]uint32{2, 1}, [2]uint32{3, 2}, [2]uint32{1, 7})

	ranked := rankMatches(ix.Current(), query, 5, 3)
	if ranked.Best == nil {
		t.Fatal("no best match")
	}
	if ranked.Best.SongID != "a" || ranked.Best.Offset != 10 || ranked.Best.Score != 3 {
		t.Errorf("best = %+v, want song a, offset 10, score 3", ranked.Best)
	}
}

func TestRankMatchesScatteredCollisionsScoreLow(t *testing.T) {
	ix := store.NewIndex(fingerprint.DefaultParams())
	// song b shares hashes with the query but at inconsistent offsets
	if err := ix.Insert(model.Song{ID: "b"},
		fabFps([2]uint32{1, 10}, [2]uint32{2, 40}, [2]uint32{3, 90})); err != nil {
		t.Fatal(err)
	}

	query := fabFps([2]uint32{1, 0}, [2]uint32{2, 1}, [2]uint32{3, 2})
	ranked := rankMatches(ix.Current(), query, 5, 1)

	if len(ranked.Matches) != 1 {
		t.Fatalf("got %d matches, want 1", len(ranked.Matches))
	}
	// three raw hits, but no two agree on an offset
	if ranked.Matches[0].Score != 1 {
		t.Errorf("score = %d, want 1 (scattered votes must not add up)", ranked.Matches[0].Score)
	}
}

func TestRankMatchesTieBreakBySongID(t *testing.T) {
	ix := store.NewIndex(fingerprint.DefaultParams())
	if err := ix.Insert(model.Song{ID: "b"}, fabFps([2]uint32{1, 5}, [2]uint32{2, 6})); err != nil {
		t.Fatal(err)
	}
	if err := ix.Insert(model.Song{ID: "a"}, fabFps([2]uint32{1, 5}, [2]uint32{2, 6})); err != nil {
		t.Fatal(err)
	}

	query := fabFps([2]uint32{1, 0}, [2]uint32{2, 1})
	ranked := rankMatches(ix.Current(), query, 5, 1)

	if len(ranked.Matches) != 2 {
		t.Fatalf("got %d matches, want 2", len(ranked.Matches))
	}
	if ranked.Matches[0].SongID != "a" || ranked.Matches[1].SongID != "b" {
		t.Errorf("equal scores must rank by song ID: %+v", ranked.Matches)
	}
}

func TestRankMatchesMinScore(t *testing.T) {
	ix := store.NewIndex(fingerprint.DefaultParams())
	if err := ix.Insert(model.Song{ID: "a"}, fabFps([2]uint32{1, 5})); err != nil {
		t.Fatal(err)
	}

	query := fabFps([2]uint32{1, 0})
	ranked := rankMatches(ix.Current(), query, 5, 3)

	if ranked.Best != nil {
		t.Errorf("score below threshold still produced a best match: %+v", ranked.Best)
	}
	if len(ranked.Matches) != 1 {
		t.Errorf("low-score candidates should still be listed: %+v", ranked.Matches)
	}
}

func TestRankMatchesTopK(t *testing.T) {
	ix := store.NewIndex(fingerprint.DefaultParams())
	for _, id := range []string{"a", "b", "c", "d"} {
		if err := ix.Insert(model.Song{ID: id}, fabFps([2]uint32{1, 5})); err != nil {
			t.Fatal(err)
		}
	}

	query := fabFps([2]uint32{1, 0})
	ranked := rankMatches(ix.Current(), query, 2, 1)
	if len(ranked.Matches) != 2 {
		t.Errorf("topK=2 returned %d matches", len(ranked.Matches))
	}
}

func TestRankMatchesEmptyQuery(t *testing.T) {
	ix := store.NewIndex(fingerprint.DefaultParams())
	ranked := rankMatches(ix.Current(), nil, 5, 1)
	if ranked.Best != nil || len(ranked.Matches) != 0 {
		t.Errorf("empty query produced %+v", ranked)
	}
}
