package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("OPENAI_KEY", "sk-test")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.TTS.MaxTextLength != 4000 {
		t.Fatalf("expected default max text length 4000, got %d", cfg.TTS.MaxTextLength)
	}
	if cfg.OpenAI.APIKey != "sk-test" {
		t.Fatalf("expected api key from OPENAI_KEY, got %q", cfg.OpenAI.APIKey)
	}
}

func TestLoadMissingAPIKey(t *testing.T) {
	t.Setenv("OPENAI_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("LOQA_TTS_OPENAI_API_KEY", "")
	_, err := Load("")
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestLoadPlaceholderAPIKey(t *testing.T) {
	t.Setenv("OPENAI_KEY", PlaceholderAPIKey)
	_, err := Load("")
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected placeholder key to be rejected, got %v", err)
	}
}

func TestMockModeNeedsNoKey(t *testing.T) {
	t.Setenv("OPENAI_KEY", "")
	t.Setenv("LOQA_TTS_MODE", "mock")
	if _, err := Load(""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("OPENAI_KEY", "sk-env")
	t.Setenv("SERVER_NAME", "127.0.0.1")
	t.Setenv("FFMPEG_PATH", "/opt/ffmpeg/bin")
	t.Setenv("LOQA_TTS_HTTP_PORT", "9000")
	t.Setenv("LOQA_TTS_MAX_TEXT_LENGTH", "1000")
	t.Setenv("LOQA_TTS_CALL_TIMEOUT_MS", "5000")
	t.Setenv("LOQA_TTS_DEFAULT_SPEED", "1.5")
	t.Setenv("LOQA_TTS_MERGE_MODE", "native")
	t.Setenv("LOQA_TTS_EVENT_STORE_RETENTION_MODE", "persistent")
	t.Setenv("LOQA_TTS_EVENT_STORE_RETENTION_DAYS", "7")
	t.Setenv("LOQA_TTS_BUS_ENABLED", "true")
	t.Setenv("LOQA_TTS_BUS_SERVERS", "nats://one:4222, nats://two:4222")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.Bind != "127.0.0.1" {
		t.Fatalf("expected SERVER_NAME override, got %q", cfg.HTTP.Bind)
	}
	if cfg.HTTP.Port != 9000 {
		t.Fatalf("expected port override, got %d", cfg.HTTP.Port)
	}
	if cfg.Merge.FFmpegPath != "/opt/ffmpeg/bin" {
		t.Fatalf("expected FFMPEG_PATH override, got %q", cfg.Merge.FFmpegPath)
	}
	if cfg.TTS.MaxTextLength != 1000 || cfg.TTS.CallTimeoutMS != 5000 {
		t.Fatalf("expected tts overrides, got %+v", cfg.TTS)
	}
	if cfg.TTS.DefaultSpeed != 1.5 {
		t.Fatalf("expected speed override, got %v", cfg.TTS.DefaultSpeed)
	}
	if cfg.Merge.Mode != "native" {
		t.Fatalf("expected merge mode override")
	}
	if cfg.EventStore.RetentionMode != "persistent" || cfg.EventStore.RetentionDays != 7 {
		t.Fatalf("expected event store overrides, got %+v", cfg.EventStore)
	}
	if !cfg.Bus.Enabled || len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected bus overrides, got %+v", cfg.Bus)
	}
}

func TestLoadYAML(t *testing.T) {
	t.Setenv("OPENAI_KEY", "")
	path := filepath.Join(t.TempDir(), "loqa-tts.yaml")
	data := []byte(`runtime_name: speaker
openai:
  api_key: sk-file
tts:
  max_text_length: 200
merge:
  mode: ffmpeg
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RuntimeName != "speaker" || cfg.OpenAI.APIKey != "sk-file" {
		t.Fatalf("expected yaml values, got %+v", cfg)
	}
	if cfg.TTS.MaxTextLength != 200 {
		t.Fatalf("expected max text length 200, got %d", cfg.TTS.MaxTextLength)
	}
	if cfg.TTS.DefaultVoice != "nova" {
		t.Fatalf("expected defaults to survive partial yaml, got %q", cfg.TTS.DefaultVoice)
	}
}

func TestValidateRejectsBadMode(t *testing.T) {
	t.Setenv("OPENAI_KEY", "sk-test")
	t.Setenv("LOQA_TTS_MERGE_MODE", "sox")
	if _, err := Load(""); err == nil {
		t.Fatal("expected invalid merge mode to fail validation")
	}
}

func TestFFmpegBinaryHint(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "ffmpeg")
	if err := os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("write binary: %v", err)
	}

	if got := (MergeConfig{FFmpegPath: dir}).FFmpegBinary("ffmpeg"); got != bin {
		t.Fatalf("expected directory hint to resolve to %s, got %s", bin, got)
	}
	if got := (MergeConfig{FFmpegPath: bin}).FFmpegBinary("ffmpeg"); got != bin {
		t.Fatalf("expected binary hint to be used as-is, got %s", got)
	}
	if got := (MergeConfig{}).FFmpegBinary("ffmpeg"); got != "ffmpeg" {
		t.Fatalf("expected bare name without hint, got %s", got)
	}
}

func TestEmbeddedBusValidation(t *testing.T) {
	t.Setenv("OPENAI_KEY", "sk-test")
	t.Setenv("LOQA_TTS_BUS_ENABLED", "true")
	t.Setenv("LOQA_TTS_BUS_EMBEDDED", "true")
	t.Setenv("LOQA_TTS_BUS_SERVE_REQUESTS", "true")
	t.Setenv("LOQA_TTS_BUS_PORT", "0")
	if _, err := Load(""); err == nil {
		t.Fatal("expected invalid embedded port to be rejected")
	}

	t.Setenv("LOQA_TTS_BUS_PORT", "4333")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.Bus.Embedded || cfg.Bus.Port != 4333 || !cfg.Bus.ServeRequests {
		t.Fatalf("expected embedded bus settings, got %+v", cfg.Bus)
	}
}
