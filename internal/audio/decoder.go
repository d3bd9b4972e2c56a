// Package audio turns WAV and MP3 files into mono float64 samples at the
// rate the fingerprint pipeline expects. It is the "decode" capability
// the engine depends on; nothing downstream knows about containers.
package audio

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	mp3 "github.com/hajimehoshi/go-mp3"

	"github.com/songprint/songprint/internal/model"
)

// SupportedExt reports whether path has a decodable extension.
func SupportedExt(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".mp3":
		return true
	}
	return false
}

// FileDecoder decodes local audio files. It satisfies engine.Decoder.
type FileDecoder struct{}

// Decode reads path, downmixes to mono and resamples to sampleRate.
func (FileDecoder) Decode(ctx context.Context, path string, sampleRate int) ([]float64, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	if sampleRate <= 0 {
		return nil, 0, model.ErrInvalidAudio
	}

	var (
		samples []float64
		native  int
		err     error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		samples, native, err = decodeWAV(path)
	case ".mp3":
		samples, native, err = decodeMP3(path)
	default:
		return nil, 0, fmt.Errorf("unsupported audio format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, 0, err
	}
	if len(samples) == 0 || native <= 0 {
		return nil, 0, fmt.Errorf("decoding %s: %w", path, model.ErrInvalidAudio)
	}
	return Resample(samples, native, sampleRate), sampleRate, nil
}

func decodeWAV(path string) ([]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("opening wav: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("%s: not a valid WAV file", path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("reading wav pcm: %w", err)
	}
	if buf.Format == nil || buf.Format.NumChannels <= 0 {
		return nil, 0, fmt.Errorf("%s: missing wav format: %w", path, model.ErrInvalidAudio)
	}

	channels := buf.Format.NumChannels
	bitDepth := int(dec.BitDepth)
	if bitDepth <= 0 || bitDepth > 32 {
		bitDepth = 16
	}
	scale := float64(int64(1) << (bitDepth - 1))
	frames := len(buf.Data) / channels

	samples := make([]float64, frames)
	for i := 0; i < frames; i++ {
		sum := 0.0
		for c := 0; c < channels; c++ {
			sum += float64(buf.Data[i*channels+c]) / scale
		}
		samples[i] = sum / float64(channels)
	}
	return samples, buf.Format.SampleRate, nil
}

// decodeMP3 reads an MP3; go-mp3 always yields 16-bit stereo frames.
func decodeMP3(path string) ([]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("opening mp3: %w", err)
	}
	defer f.Close()

	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, 0, fmt.Errorf("decoding mp3: %w", err)
	}

	var samples []float64
	buf := make([]byte, 8192)
	for {
		n, err := dec.Read(buf)
		for i := 0; i+3 < n; i += 4 {
			left := int16(buf[i]) | int16(buf[i+1])<<8
			right := int16(buf[i+2]) | int16(buf[i+3])<<8
			samples = append(samples, (float64(left)+float64(right))/2/32768.0)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("reading mp3 frames: %w", err)
		}
	}
	return samples, dec.SampleRate(), nil
}

// Resample converts samples from one rate to another by linear
// interpolation. Good enough for fingerprinting, where peak geometry
// survives interpolation error; not meant for playback quality.
func Resample(samples []float64, from, to int) []float64 {
	if from == to || len(samples) == 0 {
		return samples
	}
	ratio := float64(from) / float64(to)
	n := int(float64(len(samples)) / ratio)
	out := make([]float64, n)
	for i := range out {
		pos := float64(i) * ratio
		j := int(pos)
		if j >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := pos - float64(j)
		out[i] = samples[j]*(1-frac) + samples[j+1]*frac
	}
	return out
}
