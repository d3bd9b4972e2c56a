package model

import "errors"

var (
	// ErrInvalidAudio is returned for empty sample buffers or a
	// non-positive sample rate, on both the ingest and query paths.
	ErrInvalidAudio = errors.New("invalid audio: empty samples or non-positive sample rate")

	// ErrDuplicateSong is returned when ingesting a song ID that already
	// exists. The store never dedups; re-ingesting requires a delete first.
	ErrDuplicateSong = errors.New("song already ingested")

	// ErrSongNotFound is returned by lookups and metadata edits for an
	// unknown song ID.
	ErrSongNotFound = errors.New("song not found")

	// ErrRebuildInProgress is returned by store mutations while a rehash
	// is rebuilding it. Writes are rejected, not queued.
	ErrRebuildInProgress = errors.New("store rebuild in progress")

	// ErrRehashAborted is returned when a rebuild failed for at least one
	// song. The previous store remains active.
	ErrRehashAborted = errors.New("rehash aborted, previous store kept")

	// ErrNoSourcePath marks a song that cannot be re-fingerprinted because
	// it was ingested from raw samples without a source file.
	ErrNoSourcePath = errors.New("song has no source path to re-decode")
)
