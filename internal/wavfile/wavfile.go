// Package wavfile writes captured float samples as 16-bit PCM WAV files.
package wavfile

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	bitDepth  = 16
	pcmFormat = 1

	// frames converted per encoder write
	chunkFrames = 8192
)

// ToInt16 converts a normalized sample to 16-bit PCM. Input is clamped to
// [-1, 1], scaled by 32767 and truncated toward zero; NaN becomes 0.
func ToInt16(s float32) int16 {
	if math.IsNaN(float64(s)) {
		return 0
	}
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	return int16(s * math.MaxInt16)
}

// Encode writes samples to a new file at path. On error the file at path may
// be left partially written.
func Encode(samples []float32, sampleRate uint32, channels uint16, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFileCreate, err)
	}

	if err := EncodeTo(f, samples, sampleRate, channels); err != nil {
		f.Close()
		return err
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	return nil
}

// EncodeTo writes a complete WAV stream to ws. samples are interleaved by
// channel and written in order; a trailing partial frame is padded with
// silence.
func EncodeTo(ws io.WriteSeeker, samples []float32, sampleRate uint32, channels uint16) error {
	if channels == 0 {
		return fmt.Errorf("%w: channel count must be positive", ErrWrite)
	}
	nch := int(channels)

	enc := wav.NewEncoder(ws, int(sampleRate), bitDepth, nch, pcmFormat)

	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: nch,
			SampleRate:  int(sampleRate),
		},
		SourceBitDepth: bitDepth,
		Data:           make([]int, 0, min(len(samples), chunkFrames*nch)+nch),
	}

	// Writing an empty buffer first makes the encoder emit its header and
	// data chunk even when there is nothing recorded.
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}

	step := chunkFrames * nch
	for start := 0; start < len(samples); start += step {
		chunk := samples[start:min(start+step, len(samples))]

		buf.Data = buf.Data[:0]
		for _, s := range chunk {
			buf.Data = append(buf.Data, int(ToInt16(s)))
		}
		for len(buf.Data)%nch != 0 {
			buf.Data = append(buf.Data, 0)
		}

		if err := enc.Write(buf); err != nil {
			return fmt.Errorf("%w: %w", ErrWrite, err)
		}
	}

	if err := enc.Close(); err != nil {
		return fmt.Errorf("%w: finalize header: %w", ErrWrite, err)
	}
	return nil
}

// Info describes a WAV file on disk.
type Info struct {
	SampleRate uint32
	Channels   uint16
	BitDepth   uint16
	Format     uint16
	Samples    int // interleaved sample count
}

// Inspect reads the header of the WAV file at path.
func Inspect(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, err
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return Info{}, fmt.Errorf("%w: %s", ErrNotWav, path)
	}
	if err := d.FwdToPCM(); err != nil {
		return Info{}, fmt.Errorf("%w: %s: %w", ErrNotWav, path, err)
	}

	info := Info{
		SampleRate: d.SampleRate,
		Channels:   d.NumChans,
		BitDepth:   d.BitDepth,
		Format:     d.WavAudioFormat,
	}
	if d.BitDepth > 0 {
		info.Samples = d.PCMSize / int(d.BitDepth/8)
	}
	return info, nil
}
