package fingerprint

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/window"
	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/songprint/songprint/internal/model"
)

// magnitude floor to avoid log(0)
const magEps = 1e-10

// Spectrogram computes a time-major dB magnitude spectrogram of mono
// samples: spec[frame][bin], WindowSize/2 positive-frequency bins per
// frame. Successive frames advance by HopSize samples; the trailing
// partial window is dropped so the frame count is exactly
// (len(samples)-WindowSize)/HopSize + 1.
//
// Returns model.ErrInvalidAudio for empty input or a bad sample rate.
// Input shorter than one window yields an empty spectrogram, which is a
// valid (uninformative) result.
func Spectrogram(samples []float64, sampleRate int) ([][]float64, error) {
	if len(samples) == 0 || sampleRate <= 0 {
		return nil, model.ErrInvalidAudio
	}
	if len(samples) < WindowSize {
		return [][]float64{}, nil
	}

	numFrames := (len(samples)-WindowSize)/HopSize + 1
	spec := make([][]float64, 0, numFrames)

	// One FFT plan and scratch buffers reused across all frames.
	fft := fourier.NewFFT(WindowSize)
	frame := make([]float64, WindowSize)
	coeff := make([]complex128, WindowSize/2+1)

	for start := 0; start+WindowSize <= len(samples); start += HopSize {
		copy(frame, samples[start:start+WindowSize])
		window.Apply(frame, window.Hamming)
		coeff = fft.Coefficients(coeff, frame)

		mags := make([]float64, WindowSize/2)
		for i := range mags {
			mags[i] = 20 * math.Log10(cmplx.Abs(coeff[i])+magEps)
		}
		spec = append(spec, mags)
	}
	return spec, nil
}
