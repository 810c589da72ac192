package merge

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/loqalabs/loqa-tts/internal/config"
	"github.com/mattn/go-shellwords"
)

// FFmpeg concatenates segments with ffmpeg's concat demuxer, copying streams
// without re-encoding.
type FFmpeg struct {
	cmd []string
	mu  sync.Mutex
}

// NewFFmpeg parses cfg.Command and resolves its executable against the
// ffmpeg_path hint.
func NewFFmpeg(cfg config.MergeConfig) (*FFmpeg, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse merge command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("merge command empty")
	}
	args[0] = cfg.FFmpegBinary(args[0])
	return &FFmpeg{cmd: args}, nil
}

func (f *FFmpeg) Merge(ctx context.Context, segments []Segment, dst string) error {
	if len(segments) == 0 {
		return ErrNoSegments
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	list, err := os.CreateTemp("", "loqa_tts_concat_*.txt")
	if err != nil {
		return fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(list.Name())

	// the concat demuxer resolves relative entries against the list's directory
	for _, seg := range segments {
		path, err := filepath.Abs(seg.Path)
		if err != nil {
			list.Close()
			return fmt.Errorf("resolve segment %d: %w", seg.Index, err)
		}
		if _, err := fmt.Fprintf(list, "file '%s'\n", escapeConcatPath(path)); err != nil {
			list.Close()
			return fmt.Errorf("write concat list: %w", err)
		}
	}
	if err := list.Close(); err != nil {
		return fmt.Errorf("close concat list: %w", err)
	}

	base := f.cmd[0]
	args := append([]string{}, f.cmd[1:]...)
	args = append(args, "-y", "-f", "concat", "-safe", "0", "-i", list.Name(), "-c", "copy", dst)

	command := exec.CommandContext(ctx, base, args...)
	var stderr bytes.Buffer
	command.Stderr = &stderr
	if err := command.Run(); err != nil {
		return fmt.Errorf("ffmpeg concat failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	if info, err := os.Stat(dst); err != nil || info.Size() == 0 {
		return fmt.Errorf("ffmpeg concat produced no output at %s", dst)
	}
	return nil
}

// escapeConcatPath quotes a path for the concat demuxer's single-quoted syntax.
func escapeConcatPath(path string) string {
	return strings.ReplaceAll(path, "'", `'\''`)
}
