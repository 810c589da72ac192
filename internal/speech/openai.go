package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures the OpenAI speech backend.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string // optional; for compatible self-hosted servers
	HTTPClient *http.Client
}

// OpenAISynthesizer calls the OpenAI /audio/speech endpoint.
type OpenAISynthesizer struct {
	client *openai.Client
	logger *slog.Logger
}

func NewOpenAISynthesizer(cfg OpenAIConfig, logger *slog.Logger) (*OpenAISynthesizer, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("missing API key")
	}
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		config.HTTPClient = cfg.HTTPClient
	} else {
		config.HTTPClient = &http.Client{Timeout: 90 * time.Second}
	}
	return &OpenAISynthesizer{
		client: openai.NewClientWithConfig(config),
		logger: logger.With(slog.String("component", "openai-speech")),
	}, nil
}

func (s *OpenAISynthesizer) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	start := time.Now()
	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(req.Model),
		Input:          req.Text,
		Voice:          openai.SpeechVoice(req.Voice),
		ResponseFormat: openai.SpeechResponseFormat(req.Format),
		Speed:          req.Speed,
	})
	if err != nil {
		return nil, fmt.Errorf("create speech: %w", err)
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("read speech response: %w", err)
	}
	s.logger.Debug("speech synthesized",
		slog.String("model", string(req.Model)),
		slog.String("voice", string(req.Voice)),
		slog.String("format", string(req.Format)),
		slog.Int("bytes", len(data)),
		slog.Duration("latency", time.Since(start)))
	return data, nil
}
