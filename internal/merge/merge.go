// Package merge concatenates synthesized audio segments into one artifact.
package merge

import (
	"context"
	"errors"
	"fmt"

	"github.com/loqalabs/loqa-tts/internal/audio"
	"github.com/loqalabs/loqa-tts/internal/config"
	"github.com/loqalabs/loqa-tts/internal/speech"
)

// ErrNoSegments is returned when a merge is requested for an empty segment list.
var ErrNoSegments = errors.New("no segments to merge")

// Segment is one synthesized chunk persisted to a scratch file.
type Segment struct {
	Index  int
	Path   string
	Format speech.Format
}

// Merger joins segments, in slice order, into a single file at dst encoded in
// the segments' format.
type Merger interface {
	Merge(ctx context.Context, segments []Segment, dst string) error
}

// Native concatenates WAV segments in-process.
type Native struct{}

func (Native) Merge(ctx context.Context, segments []Segment, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(segments) == 0 {
		return ErrNoSegments
	}
	paths := make([]string, 0, len(segments))
	for _, seg := range segments {
		if seg.Format != speech.FormatWAV {
			return fmt.Errorf("native merge supports wav only, segment %d is %s", seg.Index, seg.Format)
		}
		paths = append(paths, seg.Path)
	}
	return audio.ConcatWAV(dst, paths)
}

// Auto sends WAV segments to the native merger and everything else to the
// external tool.
type Auto struct {
	Native Merger
	Tool   Merger
}

func (a Auto) Merge(ctx context.Context, segments []Segment, dst string) error {
	if len(segments) == 0 {
		return ErrNoSegments
	}
	if segments[0].Format == speech.FormatWAV && a.Native != nil {
		return a.Native.Merge(ctx, segments, dst)
	}
	if a.Tool == nil {
		return fmt.Errorf("no merger available for %s", segments[0].Format)
	}
	return a.Tool.Merge(ctx, segments, dst)
}

// New builds the merger selected by cfg.Mode.
func New(cfg config.MergeConfig) (Merger, error) {
	switch cfg.Mode {
	case "native":
		return Native{}, nil
	case "ffmpeg":
		return NewFFmpeg(cfg)
	case "auto", "":
		tool, err := NewFFmpeg(cfg)
		if err != nil {
			return nil, err
		}
		return Auto{Native: Native{}, Tool: tool}, nil
	default:
		return nil, fmt.Errorf("unknown merge mode %q", cfg.Mode)
	}
}
