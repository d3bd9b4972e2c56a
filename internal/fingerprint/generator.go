package fingerprint

import (
	"encoding/binary"

	"github.com/OneOfOne/xxhash"
)

// Fingerprint is one hashed peak pair, keyed by the anchor peak's frame
// index. The owning song is bound when the store ingests it.
type Fingerprint struct {
	Hash       uint64
	AnchorTime uint32
}

// Generate pairs each peak (as anchor, in time order) with up to
// params.FanValue subsequent peaks whose frame delta lies in
// [MinDeltaFrames, MaxDeltaFrames] and whose bin delta is at most
// MaxFreqDelta, and hashes each pair. ExtractPeaks already returns peaks
// time-sorted, which this relies on.
//
// The hash covers (anchor bin, target bin, frame delta) only, so the same
// pair hashes identically on ingest and query. It is not collision
// resistant and does not need to be; offset voting absorbs collisions.
func Generate(peaks []Peak, params Params) []Fingerprint {
	if len(peaks) == 0 {
		return nil
	}
	fps := make([]Fingerprint, 0, len(peaks)*params.FanValue)
	for i, anchor := range peaks {
		paired := 0
		for j := i + 1; j < len(peaks) && paired < params.FanValue; j++ {
			target := peaks[j]
			dt := target.Time - anchor.Time
			if dt < MinDeltaFrames {
				continue
			}
			if dt > MaxDeltaFrames {
				break // peaks are time-sorted, nothing closer follows
			}
			df := target.Freq - anchor.Freq
			if df < 0 {
				df = -df
			}
			if df > MaxFreqDelta {
				continue
			}
			fps = append(fps, Fingerprint{
				Hash:       hashPair(anchor.Freq, target.Freq, dt),
				AnchorTime: uint32(anchor.Time),
			})
			paired++
		}
	}
	return fps
}

// hashPair packs (anchor bin, target bin, frame delta) into 12 bytes and
// runs xxhash64 over them.
func hashPair(anchorFreq, targetFreq, deltaFrames int) uint64 {
	var buf [12]byte
	binary.LittleEndian.PutUint32(buf[0:4], uint32(anchorFreq))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(targetFreq))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(deltaFrames))
	return xxhash.Checksum64(buf[:])
}

// Pipeline runs spectrogram, peak extraction and pairing in one call.
// Ingest and query both use it so the two paths cannot drift apart.
func Pipeline(samples []float64, sampleRate int, params Params) ([]Fingerprint, error) {
	spec, err := Spectrogram(samples, sampleRate)
	if err != nil {
		return nil, err
	}
	peaks := ExtractPeaks(spec, params.LoudnessGateDB)
	return Generate(peaks, params), nil
}
