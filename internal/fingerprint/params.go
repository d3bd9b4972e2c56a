// Package fingerprint turns mono audio into compact peak-pair hashes:
// STFT spectrogram, gated local-max peaks, fan-out pairing. The same
// pipeline serves ingest and query.
package fingerprint

import "math"

// Pipeline geometry. These are properties of the hash format itself:
// changing any of them invalidates every stored fingerprint, so they are
// compile-time constants rather than part of Params.
const (
	// STFT frame size and advance, in samples.
	WindowSize int = 1024
	HopSize    int = 512

	// A peak must dominate its +/-PeakTimeRadius x +/-PeakFreqRadius
	// spectrogram neighborhood.
	PeakTimeRadius = 3
	PeakFreqRadius = 5

	// An anchor pairs only with targets whose frame delta lies in
	// [MinDeltaFrames, MaxDeltaFrames] and whose absolute bin delta is
	// at most MaxFreqDelta.
	MinDeltaFrames = 1
	MaxDeltaFrames = 200
	MaxFreqDelta   = 127
)

// Params is the tunable half of the pipeline. One Params value is
// threaded through every stage and persisted with the store version;
// fingerprints made under different Params are not comparable.
type Params struct {
	SampleRate     int     // Hz the pipeline expects its input at
	LoudnessGateDB float64 // spectrogram cells below this are never peaks
	FanValue       int     // max targets paired per anchor
}

// DefaultParams returns the parameter set a fresh store starts with.
func DefaultParams() Params {
	return Params{
		SampleRate:     22050,
		LoudnessGateDB: -40.0,
		FanValue:       5,
	}
}

// Valid reports whether p is usable by the pipeline.
func (p Params) Valid() bool {
	return p.SampleRate >= 8000 && p.SampleRate <= 44100 &&
		p.FanValue >= 2 && p.FanValue <= 10 &&
		!math.IsNaN(p.LoudnessGateDB)
}

// FrameDuration returns the duration of one frame hop in seconds, which
// converts an alignment offset in frames to a position in the song.
func FrameDuration(sampleRate int) float64 {
	return float64(HopSize) / float64(sampleRate)
}
