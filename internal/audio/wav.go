// Package audio holds the WAV helpers used for the silence artifact, the mock
// synthesizer and native segment concatenation.
package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	// DefaultSampleRate matches the PCM the speech API returns for wav output.
	DefaultSampleRate = 24000
	bitDepth          = 16
	monoChannels      = 1
	pcmFormat         = 1
)

// ErrFormatMismatch is returned when WAV segments disagree on sample layout.
var ErrFormatMismatch = errors.New("wav segments have different formats")

// WriteSilence encodes d of 16-bit mono silence at sampleRate into w.
func WriteSilence(w io.WriteSeeker, d time.Duration, sampleRate int) error {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	samples := int(int64(d) * int64(sampleRate) / int64(time.Second))
	buffer := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: monoChannels, SampleRate: sampleRate},
		Data:           make([]int, samples),
		SourceBitDepth: bitDepth,
	}
	enc := wav.NewEncoder(w, sampleRate, bitDepth, monoChannels, pcmFormat)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}

// EnsureSilenceFile writes one second of silence to path unless a file is
// already there, in which case the existing artifact is used verbatim.
func EnsureSilenceFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create silence dir: %w", err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create silence file: %w", err)
	}
	if err := WriteSilence(file, time.Second, DefaultSampleRate); err != nil {
		file.Close()
		os.Remove(path)
		return err
	}
	return file.Close()
}

// SilenceBytes returns an encoded WAV of d silence. The encoder needs a seekable
// sink, so the payload goes through a temporary file.
func SilenceBytes(d time.Duration, sampleRate int) ([]byte, error) {
	file, err := os.CreateTemp("", "loqa_tts_silence_*.wav")
	if err != nil {
		return nil, fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(file.Name())
	defer file.Close()

	if err := WriteSilence(file, d, sampleRate); err != nil {
		return nil, err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return io.ReadAll(file)
}

// ConcatWAV decodes every source in order and writes their samples back to
// back into dst. All sources must share sample rate, bit depth and channels.
func ConcatWAV(dst string, sources []string) error {
	if len(sources) == 0 {
		return errors.New("no wav sources")
	}

	var (
		combined *goaudio.IntBuffer
		depth    int
	)
	for _, src := range sources {
		buf, srcDepth, err := decodeWAV(src)
		if err != nil {
			return err
		}
		if combined == nil {
			combined = buf
			depth = srcDepth
			continue
		}
		if buf.Format.SampleRate != combined.Format.SampleRate ||
			buf.Format.NumChannels != combined.Format.NumChannels ||
			srcDepth != depth {
			return fmt.Errorf("%w: %s", ErrFormatMismatch, filepath.Base(src))
		}
		combined.Data = append(combined.Data, buf.Data...)
	}

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	enc := wav.NewEncoder(out, combined.Format.SampleRate, depth, combined.Format.NumChannels, pcmFormat)
	if err := enc.Write(combined); err != nil {
		out.Close()
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		out.Close()
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return out.Close()
}

func decodeWAV(path string) (*goaudio.IntBuffer, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	dec := wav.NewDecoder(file)
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("%s is not a valid wav file", filepath.Base(path))
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return buf, int(dec.BitDepth), nil
}
