package speech

import (
	"context"
	"time"

	"github.com/loqalabs/loqa-tts/internal/audio"
)

type mockSynth struct {
	sampleRate int
}

// NewMockSynth returns a synthesizer producing short silent WAV clips regardless
// of the requested format. Pair it with the wav format in development.
func NewMockSynth(sampleRate int) Synthesizer {
	return &mockSynth{sampleRate: sampleRate}
}

func (m *mockSynth) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(50 * time.Millisecond):
	}
	return audio.SilenceBytes(200*time.Millisecond, m.sampleRate)
}
