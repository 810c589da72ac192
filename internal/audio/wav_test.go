package audio

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/wav"
)

func writeSilence(t *testing.T, path string, d time.Duration, rate int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := WriteSilence(f, d, rate); err != nil {
		t.Fatalf("write silence: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func sampleCount(t *testing.T, path string) int {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	buf, err := wav.NewDecoder(f).FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return len(buf.Data)
}

func TestEnsureSilenceFileCreatesOneSecond(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "silence.wav")
	if err := EnsureSilenceFile(path); err != nil {
		t.Fatalf("ensure silence: %v", err)
	}
	if got := sampleCount(t, path); got != DefaultSampleRate {
		t.Fatalf("expected 1s of silence (%d samples), got %d", DefaultSampleRate, got)
	}
}

func TestEnsureSilenceFileKeepsExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "silence.mp3")
	if err := os.WriteFile(path, []byte("bundled"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := EnsureSilenceFile(path); err != nil {
		t.Fatalf("ensure silence: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "bundled" {
		t.Fatalf("existing artifact was overwritten")
	}
}

func TestSilenceBytes(t *testing.T) {
	data, err := SilenceBytes(100*time.Millisecond, 8000)
	if err != nil {
		t.Fatalf("silence bytes: %v", err)
	}
	// 44 byte header + 800 samples * 2 bytes
	if len(data) != 44+1600 {
		t.Fatalf("unexpected payload size %d", len(data))
	}
}

func TestConcatWAV(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.wav")
	b := filepath.Join(dir, "b.wav")
	writeSilence(t, a, 500*time.Millisecond, 8000)
	writeSilence(t, b, 250*time.Millisecond, 8000)

	out := filepath.Join(dir, "out.wav")
	if err := ConcatWAV(out, []string{a, b}); err != nil {
		t.Fatalf("concat: %v", err)
	}
	if got := sampleCount(t, out); got != 6000 {
		t.Fatalf("expected 750ms (6000 samples), got %d", got)
	}
}

func TestConcatWAVRejectsMismatchedRates(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.wav")
	b := filepath.Join(dir, "b.wav")
	writeSilence(t, a, 100*time.Millisecond, 8000)
	writeSilence(t, b, 100*time.Millisecond, 16000)

	err := ConcatWAV(filepath.Join(dir, "out.wav"), []string{a, b})
	if !errors.Is(err, ErrFormatMismatch) {
		t.Fatalf("expected ErrFormatMismatch, got %v", err)
	}
}

func TestConcatWAVRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.wav")
	if err := os.WriteFile(bad, []byte("not audio"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := ConcatWAV(filepath.Join(dir, "out.wav"), []string{bad}); err == nil {
		t.Fatal("expected error for invalid wav")
	}
}
