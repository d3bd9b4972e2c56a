package fingerprint

import (
	"errors"
	"math"
	"testing"

	"github.com/songprint/songprint/internal/model"
)

// synthTone builds a deterministic sequence of 100ms tones whose pitches
// are driven by a small LCG, so every test run sees identical audio.
func synthTone(seed uint32, seconds float64, sampleRate int) []float64 {
	n := int(seconds * float64(sampleRate))
	samples := make([]float64, n)
	state := seed
	toneLen := sampleRate / 10
	freq := 440.0
	for i := 0; i < n; i++ {
		if i%toneLen == 0 {
			state = state*1664525 + 1013904223
			freq = 300.0 + float64(state%40)*55.0
		}
		samples[i] = 0.8 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return samples
}

func TestSpectrogramFrameCount(t *testing.T) {
	tests := []struct {
		name       string
		numSamples int
		wantFrames int
	}{
		{"exactly one window", WindowSize, 1},
		{"one hop past a window", WindowSize + HopSize, 2},
		{"partial tail dropped", WindowSize + HopSize - 1, 1},
		{"one second", 22050, (22050-WindowSize)/HopSize + 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, err := Spectrogram(make([]float64, tt.numSamples), 22050)
			if err != nil {
				t.Fatalf("Spectrogram failed: %v", err)
			}
			if len(spec) != tt.wantFrames {
				t.Errorf("got %d frames, want %d", len(spec), tt.wantFrames)
			}
		})
	}
}

func TestSpectrogramBinCount(t *testing.T) {
	spec, err := Spectrogram(synthTone(1, 1.0, 22050), 22050)
	if err != nil {
		t.Fatalf("Spectrogram failed: %v", err)
	}
	for i, frame := range spec {
		if len(frame) != WindowSize/2 {
			t.Fatalf("frame %d has %d bins, want %d", i, len(frame), WindowSize/2)
		}
	}
}

func TestSpectrogramDeterministic(t *testing.T) {
	samples := synthTone(7, 2.0, 22050)

	a, err := Spectrogram(samples, 22050)
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	b, err := Spectrogram(samples, 22050)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	if len(a) != len(b) {
		t.Fatalf("frame counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		for j := range a[i] {
			if a[i][j] != b[i][j] {
				t.Fatalf("frame %d bin %d differs: %v vs %v", i, j, a[i][j], b[i][j])
			}
		}
	}
}

func TestSpectrogramInvalidAudio(t *testing.T) {
	if _, err := Spectrogram(nil, 22050); !errors.Is(err, model.ErrInvalidAudio) {
		t.Errorf("empty samples: got %v, want ErrInvalidAudio", err)
	}
	if _, err := Spectrogram(make([]float64, 4096), 0); !errors.Is(err, model.ErrInvalidAudio) {
		t.Errorf("zero sample rate: got %v, want ErrInvalidAudio", err)
	}
	if _, err := Spectrogram(make([]float64, 4096), -44100); !errors.Is(err, model.ErrInvalidAudio) {
		t.Errorf("negative sample rate: got %v, want ErrInvalidAudio", err)
	}
}

func TestSpectrogramShorterThanWindow(t *testing.T) {
	spec, err := Spectrogram(make([]float64, WindowSize-1), 22050)
	if err != nil {
		t.Fatalf("short input should not error: %v", err)
	}
	if len(spec) != 0 {
		t.Errorf("got %d frames for sub-window input, want 0", len(spec))
	}
}

func TestSpectrogramLocatesTone(t *testing.T) {
	// a pure 1 kHz tone should put its energy near bin freq*N/rate
	const rate = 22050
	const freq = 1000.0
	samples := make([]float64, rate)
	for i := range samples {
		samples[i] = math.Sin(2 * math.Pi * freq * float64(i) / rate)
	}

	spec, err := Spectrogram(samples, rate)
	if err != nil {
		t.Fatalf("Spectrogram failed: %v", err)
	}

	wantBin := int(freq * WindowSize / rate)
	frame := spec[len(spec)/2]
	maxBin := 0
	for i, v := range frame {
		if v > frame[maxBin] {
			maxBin = i
		}
	}
	if maxBin < wantBin-1 || maxBin > wantBin+1 {
		t.Errorf("energy at bin %d, want ~%d", maxBin, wantBin)
	}
}
