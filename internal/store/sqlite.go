package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/songprint/songprint/internal/fingerprint"
	"github.com/songprint/songprint/internal/model"
)

const insertBatchSize = 500

// songRow and fingerprintRow are the persisted schema. The hash is kept
// as a bit-cast int64 because SQLite integers are signed.
type songRow struct {
	ID               string `gorm:"primaryKey;type:varchar(36)"`
	Title            string `gorm:"index:idx_song_title"`
	SourcePath       string
	DurationMs       int
	FingerprintCount int
	CreatedAt        time.Time
}

type fingerprintRow struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	Hash       int64  `gorm:"index:idx_hash"`
	SongID     string `gorm:"type:varchar(36);index:idx_song"`
	AnchorTime uint32
}

type settingRow struct {
	Key   string `gorm:"primaryKey"`
	Value string
}

func (songRow) TableName() string        { return "songs" }
func (fingerprintRow) TableName() string { return "fingerprints" }
func (settingRow) TableName() string     { return "settings" }

const (
	settingSampleRate   = "sample_rate"
	settingLoudnessGate = "loudness_gate_db"
	settingFanValue     = "fan_value"
)

// SQLStore is the durable representation of songs, fingerprint
// occurrences and the active parameter set. It exists to survive process
// restarts; all matching runs against the in-memory Index it loads.
type SQLStore struct {
	db *gorm.DB
}

// OpenSQL opens (creating if needed) the SQLite database at path and
// migrates the schema.
func OpenSQL(path string) (*SQLStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&songRow{}, &fingerprintRow{}, &settingRow{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// LoadIndex reads the persisted parameter set, songs and occurrences into
// a fresh in-memory Index. A database with no parameter rows gets the
// defaults written back so the active set is always durable.
func (s *SQLStore) LoadIndex() (*Index, error) {
	params, found, err := s.loadParams()
	if err != nil {
		return nil, err
	}
	if !found {
		params = fingerprint.DefaultParams()
		if err := s.saveParams(s.db, params); err != nil {
			return nil, err
		}
	}

	ix := NewIndex(params)
	v := ix.Current()

	var songs []songRow
	if err := s.db.Find(&songs).Error; err != nil {
		return nil, fmt.Errorf("loading songs: %w", err)
	}
	for _, r := range songs {
		v.songs[r.ID] = model.Song{
			ID:               r.ID,
			Title:            r.Title,
			SourcePath:       r.SourcePath,
			DurationMs:       r.DurationMs,
			FingerprintCount: r.FingerprintCount,
			AddedAt:          r.CreatedAt,
		}
	}

	// Stream occurrences in primary-key batches to keep insertion order
	// stable and memory bounded.
	var rows []fingerprintRow
	err = s.db.FindInBatches(&rows, 10000, func(tx *gorm.DB, batch int) error {
		for _, r := range rows {
			hash := uint64(r.Hash)
			v.buckets[hash] = append(v.buckets[hash], model.Posting{
				SongID:     r.SongID,
				AnchorTime: r.AnchorTime,
			})
		}
		return nil
	}).Error
	if err != nil {
		return nil, fmt.Errorf("loading fingerprints: %w", err)
	}
	return ix, nil
}

// SaveSong persists one song and its occurrences in a single transaction,
// so a crash mid-write never leaves a partial song on disk.
func (s *SQLStore) SaveSong(song model.Song, fps []fingerprint.Fingerprint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		row := songRow{
			ID:               song.ID,
			Title:            song.Title,
			SourcePath:       song.SourcePath,
			DurationMs:       song.DurationMs,
			FingerprintCount: len(fps),
			CreatedAt:        song.AddedAt,
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("creating song: %w", err)
		}
		return insertFingerprints(tx, song.ID, fps)
	})
}

func insertFingerprints(tx *gorm.DB, songID string, fps []fingerprint.Fingerprint) error {
	entries := make([]fingerprintRow, 0, len(fps))
	for _, fp := range fps {
		entries = append(entries, fingerprintRow{
			Hash:       int64(fp.Hash),
			SongID:     songID,
			AnchorTime: fp.AnchorTime,
		})
	}
	if len(entries) == 0 {
		return nil
	}
	if err := tx.CreateInBatches(entries, insertBatchSize).Error; err != nil {
		return fmt.Errorf("batch insert fingerprints: %w", err)
	}
	return nil
}

// DeleteSong removes a song and its occurrences atomically.
func (s *SQLStore) DeleteSong(songID string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("song_id = ?", songID).Delete(&fingerprintRow{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", songID).Delete(&songRow{}).Error
	})
}

// UpdateMeta edits persisted song metadata without touching fingerprints.
func (s *SQLStore) UpdateMeta(songID, title string) error {
	return s.db.Model(&songRow{}).Where("id = ?", songID).Update("title", title).Error
}

// Clear drops every song and occurrence but keeps the parameter set.
func (s *SQLStore) Clear() error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&fingerprintRow{}).Error; err != nil {
			return err
		}
		return tx.Where("1 = 1").Delete(&songRow{}).Error
	})
}

// Replace rewrites the whole database from a completed rebuild: all
// songs, all occurrences and the new parameter set, in one transaction.
// Either the new store lands in full or the old rows stay.
func (s *SQLStore) Replace(b *Build) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&fingerprintRow{}).Error; err != nil {
			return err
		}
		if err := tx.Where("1 = 1").Delete(&songRow{}).Error; err != nil {
			return err
		}
		v := b.version
		for _, song := range v.Songs() {
			row := songRow{
				ID:               song.ID,
				Title:            song.Title,
				SourcePath:       song.SourcePath,
				DurationMs:       song.DurationMs,
				FingerprintCount: song.FingerprintCount,
				CreatedAt:        song.AddedAt,
			}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("creating song %s: %w", song.ID, err)
			}
		}
		entries := make([]fingerprintRow, 0, insertBatchSize)
		for hash, postings := range v.buckets {
			for _, p := range postings {
				entries = append(entries, fingerprintRow{
					Hash:       int64(hash),
					SongID:     p.SongID,
					AnchorTime: p.AnchorTime,
				})
				if len(entries) >= insertBatchSize {
					if err := tx.CreateInBatches(entries, insertBatchSize).Error; err != nil {
						return fmt.Errorf("batch insert fingerprints: %w", err)
					}
					entries = entries[:0]
				}
			}
		}
		if len(entries) > 0 {
			if err := tx.CreateInBatches(entries, insertBatchSize).Error; err != nil {
				return fmt.Errorf("batch insert last fingerprints: %w", err)
			}
		}
		return s.saveParams(tx, v.params)
	})
}

func (s *SQLStore) loadParams() (fingerprint.Params, bool, error) {
	var rows []settingRow
	if err := s.db.Find(&rows).Error; err != nil {
		return fingerprint.Params{}, false, fmt.Errorf("loading settings: %w", err)
	}
	if len(rows) == 0 {
		return fingerprint.Params{}, false, nil
	}
	params := fingerprint.DefaultParams()
	for _, r := range rows {
		switch r.Key {
		case settingSampleRate:
			v, err := strconv.Atoi(r.Value)
			if err != nil {
				return params, false, fmt.Errorf("bad %s setting %q: %w", r.Key, r.Value, err)
			}
			params.SampleRate = v
		case settingLoudnessGate:
			v, err := strconv.ParseFloat(r.Value, 64)
			if err != nil {
				return params, false, fmt.Errorf("bad %s setting %q: %w", r.Key, r.Value, err)
			}
			params.LoudnessGateDB = v
		case settingFanValue:
			v, err := strconv.Atoi(r.Value)
			if err != nil {
				return params, false, fmt.Errorf("bad %s setting %q: %w", r.Key, r.Value, err)
			}
			params.FanValue = v
		}
	}
	return params, true, nil
}

func (s *SQLStore) saveParams(tx *gorm.DB, params fingerprint.Params) error {
	rows := []settingRow{
		{Key: settingSampleRate, Value: strconv.Itoa(params.SampleRate)},
		{Key: settingLoudnessGate, Value: strconv.FormatFloat(params.LoudnessGateDB, 'f', -1, 64)},
		{Key: settingFanValue, Value: strconv.Itoa(params.FanValue)},
	}
	for _, r := range rows {
		if err := tx.Save(&r).Error; err != nil {
			return fmt.Errorf("saving setting %s: %w", r.Key, err)
		}
	}
	return nil
}
