package model

import "time"

// Song is a library entry. Metadata may be edited after ingest; the
// fingerprint set only changes on rehash.
type Song struct {
	ID               string // UUID
	Title            string
	SourcePath       string // original audio file, needed for rehash
	DurationMs       int
	FingerprintCount int
	AddedAt          time.Time
}

// Posting is the stored value for one hash bucket occurrence.
// AnchorTime is the frame index of the anchor peak in the source audio.
type Posting struct {
	SongID     string
	AnchorTime uint32
}

// Match is a candidate song for a query, scored by the number of hash
// hits that agree on a single alignment offset.
type Match struct {
	SongID string
	Title  string
	// Offset is dbAnchorTime - queryAnchorTime, in spectrogram frames.
	// For a clip taken from the stored song it is the clip's position.
	Offset int
	Score  int
}

// RankedMatches is the result of one query. Best is nil when no candidate
// reached the confidence threshold ("no confident match"), even if Matches
// is non-empty.
type RankedMatches struct {
	Best    *Match
	Matches []Match
}

// IngestResult is the per-song outcome of a batch ingest.
type IngestResult struct {
	SongID           string
	Source           string
	FingerprintCount int
	Err              error
}

// RehashReport lists the per-song outcome of a store rebuild. The rebuild
// is all-or-nothing: any entry in Failed means the old store was kept.
type RehashReport struct {
	Succeeded []string
	Failed    map[string]error
}
