package engine

import (
	"context"
	"runtime"

	"github.com/songprint/songprint/internal/fingerprint"
	"github.com/songprint/songprint/internal/model"
	"github.com/songprint/songprint/pkg/logger"
)

// Decoder turns an audio file into mono samples at the requested rate.
// Decoding is treated as a supplied capability; the engine itself never
// parses container formats. Rehash depends on it to re-read sources.
type Decoder interface {
	Decode(ctx context.Context, path string, sampleRate int) (samples []float64, rate int, err error)
}

// HistorySink receives the outcome of every query. How (or whether) it is
// persisted is the caller's business.
type HistorySink func(label string, result model.RankedMatches)

type Config struct {
	DBPath   string // empty disables the durable layer (useful in tests)
	Params   fingerprint.Params
	MinScore int // best-offset votes required for a confident match
	Workers  int // parallel songs during batch ingest and rehash
	Logger   *logger.Logger
	Decoder  Decoder
	History  HistorySink
}

type Option func(*Config)

func WithDBPath(path string) Option {
	return func(c *Config) { c.DBPath = path }
}

// WithParams sets the initial parameter set. A persisted store's own
// parameters win over this on load.
func WithParams(p fingerprint.Params) Option {
	return func(c *Config) { c.Params = p }
}

func WithMinScore(n int) Option {
	return func(c *Config) { c.MinScore = n }
}

func WithWorkers(n int) Option {
	return func(c *Config) { c.Workers = n }
}

func WithLogger(log *logger.Logger) Option {
	return func(c *Config) { c.Logger = log }
}

func WithDecoder(d Decoder) Option {
	return func(c *Config) { c.Decoder = d }
}

func WithHistorySink(h HistorySink) Option {
	return func(c *Config) { c.History = h }
}

func defaultConfig() *Config {
	return &Config{
		DBPath:   "songprint.sqlite3",
		Params:   fingerprint.DefaultParams(),
		MinScore: 5,
		Workers:  runtime.NumCPU(),
		Logger:   logger.GetLogger(),
	}
}
