package speech

import (
	"context"
	"fmt"
	"slices"
)

type Model string

const (
	ModelTTS1   Model = "tts-1"
	ModelTTS1HD Model = "tts-1-hd"
)

type Voice string

const (
	VoiceAlloy   Voice = "alloy"
	VoiceEcho    Voice = "echo"
	VoiceFable   Voice = "fable"
	VoiceOnyx    Voice = "onyx"
	VoiceNova    Voice = "nova"
	VoiceShimmer Voice = "shimmer"
)

// Format is the encoding requested from the speech API.
type Format string

const (
	FormatMP3  Format = "mp3"
	FormatOpus Format = "opus"
	FormatAAC  Format = "aac"
	FormatFLAC Format = "flac"
	FormatWAV  Format = "wav"
)

// Models, Voices and Formats list the choices offered by the UI, in display order.
var (
	Models  = []Model{ModelTTS1, ModelTTS1HD}
	Voices  = []Voice{VoiceAlloy, VoiceEcho, VoiceFable, VoiceOnyx, VoiceNova, VoiceShimmer}
	Formats = []Format{FormatMP3, FormatOpus, FormatAAC, FormatFLAC, FormatWAV}
)

// Extension returns the file extension for artifacts in this format.
func (f Format) Extension() string {
	return "." + string(f)
}

// Request contains parameters to synthesize speech.
type Request struct {
	Text   string
	Model  Model
	Voice  Voice
	Format Format
	Speed  float64
}

// Validate checks the enumerated fields. Speed is left to the API.
func (r Request) Validate() error {
	if !slices.Contains(Models, r.Model) {
		return fmt.Errorf("unsupported model %q", r.Model)
	}
	if !slices.Contains(Voices, r.Voice) {
		return fmt.Errorf("unsupported voice %q", r.Voice)
	}
	if !slices.Contains(Formats, r.Format) {
		return fmt.Errorf("unsupported output format %q", r.Format)
	}
	return nil
}

// WithText returns a copy of r carrying text.
func (r Request) WithText(text string) Request {
	r.Text = text
	return r
}

// Synthesizer is the contract for producing encoded audio from text. One call
// maps to exactly one request against the backend.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) ([]byte, error)
}
