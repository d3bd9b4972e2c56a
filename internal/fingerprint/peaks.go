package fingerprint

// Peak is a locally dominant time-frequency point of the spectrogram.
type Peak struct {
	Time  int     // frame index
	Freq  int     // frequency bin index
	MagDB float64 // magnitude in dB
}

// ExtractPeaks selects spectrogram cells that exceed the loudness gate and
// dominate their +/-PeakTimeRadius x +/-PeakFreqRadius neighborhood. Peaks
// come back sorted by (time, frequency), which the scan order guarantees.
//
// Ties are resolved deterministically: on equal magnitude the cell earliest
// in (time, frequency) scan order wins and the later cell is suppressed, so
// identical input always yields an identical peak set. An empty result is
// valid; silence simply has nothing to say.
func ExtractPeaks(spec [][]float64, gateDB float64) []Peak {
	if len(spec) == 0 {
		return nil
	}
	numFrames := len(spec)
	numBins := len(spec[0])

	peaks := make([]Peak, 0, numFrames)
	for t := 0; t < numFrames; t++ {
		for f := 0; f < numBins; f++ {
			v := spec[t][f]
			if v < gateDB {
				continue
			}
			if isNeighborhoodMax(spec, t, f, v) {
				peaks = append(peaks, Peak{Time: t, Freq: f, MagDB: v})
			}
		}
	}
	return peaks
}

func isNeighborhoodMax(spec [][]float64, t, f int, v float64) bool {
	for dt := -PeakTimeRadius; dt <= PeakTimeRadius; dt++ {
		tt := t + dt
		if tt < 0 || tt >= len(spec) {
			continue
		}
		row := spec[tt]
		for df := -PeakFreqRadius; df <= PeakFreqRadius; df++ {
			ff := f + df
			if ff < 0 || ff >= len(row) || (dt == 0 && df == 0) {
				continue
			}
			n := row[ff]
			if n > v {
				return false
			}
			// equal magnitude: earlier scan-order cell keeps the peak
			if n == v && (tt < t || (tt == t && ff < f)) {
				return false
			}
		}
	}
	return true
}
