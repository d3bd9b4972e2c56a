package engine

import (
	"sort"

	"github.com/songprint/songprint/internal/fingerprint"
	"github.com/songprint/songprint/internal/model"
	"github.com/songprint/songprint/internal/store"
)

// rankMatches scores candidate songs for a set of query fingerprints by
// offset-aligned voting against one store version.
//
// Raw hash hits are cheap and collide freely; what separates a real match
// is that its hits agree on a single alignment offset (the clip's position
// inside the song). So the score is the histogram count at the best
// offset, not the total hit count.
func rankMatches(v *store.Version, fps []fingerprint.Fingerprint, topK, minScore int) model.RankedMatches {
	if len(fps) == 0 {
		return model.RankedMatches{}
	}

	// votes[songID][offset] = count, offset in frames
	votes := make(map[string]map[int]int)
	for _, fp := range fps {
		for _, p := range v.Lookup(fp.Hash) {
			offset := int(p.AnchorTime) - int(fp.AnchorTime)
			m, ok := votes[p.SongID]
			if !ok {
				m = make(map[int]int)
				votes[p.SongID] = m
			}
			m[offset]++
		}
	}

	matches := make([]model.Match, 0, len(votes))
	for songID, offsets := range votes {
		best, bestCount := 0, 0
		for off, cnt := range offsets {
			// equal counts resolve to the smaller offset so repeated
			// runs rank identically
			if cnt > bestCount || (cnt == bestCount && off < best) {
				bestCount = cnt
				best = off
			}
		}
		m := model.Match{SongID: songID, Offset: best, Score: bestCount}
		if song, err := v.Song(songID); err == nil {
			m.Title = song.Title
		}
		matches = append(matches, m)
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].SongID < matches[j].SongID
	})
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}

	ranked := model.RankedMatches{Matches: matches}
	if len(matches) > 0 && matches[0].Score >= minScore {
		best := matches[0]
		ranked.Best = &best
	}
	return ranked
}
