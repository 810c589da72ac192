package pipeline

import (
	"errors"
	"fmt"
)

// Kind classifies why a request failed.
type Kind int

const (
	KindSynthesis Kind = iota + 1
	KindMerge
	KindStorage
)

func (k Kind) String() string {
	switch k {
	case KindSynthesis:
		return "synthesis"
	case KindMerge:
		return "merge"
	case KindStorage:
		return "storage"
	default:
		return "unknown"
	}
}

// Sentinels matched by errors.Is against an *Error of the same kind.
var (
	ErrSynthesis = errors.New("speech synthesis failed")
	ErrMerge     = errors.New("audio merge failed")
	ErrStorage   = errors.New("audio artifact storage failed")
)

// Error is returned by Pipeline.Synthesize. Chunk is the zero-based chunk index
// for synthesis failures and -1 otherwise.
type Error struct {
	Kind  Kind
	Chunk int
	Err   error
}

func (e *Error) Error() string {
	if e.Kind == KindSynthesis && e.Chunk >= 0 {
		return fmt.Sprintf("%s failed for chunk %d: %v", e.Kind, e.Chunk, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	switch target {
	case ErrSynthesis:
		return e.Kind == KindSynthesis
	case ErrMerge:
		return e.Kind == KindMerge
	case ErrStorage:
		return e.Kind == KindStorage
	}
	return false
}

const userMessage = "An error occurred while generating speech. Please check your API key and come back try again."

// UserMessage maps any pipeline failure to the single message shown to end
// users. Technical detail stays in the logs.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	return userMessage
}

func synthesisError(chunk int, err error) error {
	return &Error{Kind: KindSynthesis, Chunk: chunk, Err: err}
}

func mergeError(err error) error {
	return &Error{Kind: KindMerge, Chunk: -1, Err: err}
}

func storageError(err error) error {
	return &Error{Kind: KindStorage, Chunk: -1, Err: err}
}
