package protocol

import "time"

// TTSRequest asks the service to synthesize text. Empty fields take the
// configured defaults.
type TTSRequest struct {
	RequestID string  `json:"request_id,omitempty"`
	Text      string  `json:"text"`
	Model     string  `json:"model,omitempty"`
	Voice     string  `json:"voice,omitempty"`
	Format    string  `json:"format,omitempty"`
	Speed     float64 `json:"speed,omitempty"`
}

// TTSStatus announces the outcome of a synthesis request on the bus.
type TTSStatus struct {
	RequestID string    `json:"request_id"`
	Completed bool      `json:"completed"`
	Chunks    int       `json:"chunks"`
	Format    string    `json:"format,omitempty"`
	Artifact  string    `json:"artifact,omitempty"`
	Checksum  string    `json:"checksum,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectTTSRequest = "tts.request"
	SubjectTTSDone    = "tts.request.done"
	SubjectTTSFailed  = "tts.request.failed"
)
