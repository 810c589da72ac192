package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// PlaceholderAPIKey is the value shipped in sample env files. It is treated as unset.
const PlaceholderAPIKey = "<YOUR_OPENAI_KEY>"

// ErrMissingAPIKey is returned by Load when the speech API credential is absent.
var ErrMissingAPIKey = errors.New("please provide your OpenAI API key (OPENAI_KEY)")

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
	StdoutTraces bool   `yaml:"stdout_traces"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	OpenAI      OpenAIConfig     `yaml:"openai"`
	TTS         TTSConfig        `yaml:"tts"`
	Merge       MergeConfig      `yaml:"merge"`
	Output      OutputConfig     `yaml:"output"`
	Silence     SilenceConfig    `yaml:"silence"`
	EventStore  EventStoreConfig `yaml:"event_store"`
	Bus         BusConfig        `yaml:"bus"`
}

type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

type TTSConfig struct {
	Mode          string  `yaml:"mode"` // openai, exec, mock
	Command       string  `yaml:"command"`
	MaxTextLength int     `yaml:"max_text_length"`
	CallTimeoutMS int     `yaml:"call_timeout_ms"`
	DefaultModel  string  `yaml:"default_model"`
	DefaultVoice  string  `yaml:"default_voice"`
	DefaultFormat string  `yaml:"default_format"`
	DefaultSpeed  float64 `yaml:"default_speed"`
}

type MergeConfig struct {
	Mode       string `yaml:"mode"` // auto, ffmpeg, native
	Command    string `yaml:"command"`
	FFmpegPath string `yaml:"ffmpeg_path"`
}

type OutputConfig struct {
	Directory string `yaml:"directory"`
}

type SilenceConfig struct {
	Path string `yaml:"path"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
	ServeRequests  bool     `yaml:"serve_requests"`
}

func Default() Config {
	return Config{
		RuntimeName: "loqa-tts",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 7860,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPInsecure: true,
		},
		OpenAI: OpenAIConfig{
			BaseURL: "https://api.openai.com/v1",
		},
		TTS: TTSConfig{
			Mode:          "openai",
			MaxTextLength: 4000,
			CallTimeoutMS: 90000,
			DefaultModel:  "tts-1",
			DefaultVoice:  "nova",
			DefaultFormat: "mp3",
			DefaultSpeed:  1.0,
		},
		Merge: MergeConfig{
			Mode:    "auto",
			Command: "ffmpeg -hide_banner -loglevel error",
		},
		Output: OutputConfig{
			Directory: "./data/output",
		},
		Silence: SilenceConfig{
			Path: "./data/1-second-of-silence.wav",
		},
		EventStore: EventStoreConfig{
			Path:          "./data/loqa-tts.db",
			RetentionMode: "ephemeral",
			RetentionDays: 30,
			MaxSessions:   10000,
		},
		Bus: BusConfig{
			Enabled:        false,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
	}
}

// Load reads the YAML file at path (if any), loads a .env file from the working
// directory, applies environment overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// a missing .env is fine
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	// legacy variable names, kept for existing .env files
	overrideString(&cfg.OpenAI.APIKey, "OPENAI_API_KEY")
	overrideString(&cfg.OpenAI.APIKey, "OPENAI_KEY")
	overrideString(&cfg.HTTP.Bind, "SERVER_NAME")
	overrideString(&cfg.Merge.FFmpegPath, "FFMPEG_PATH")

	overrideString(&cfg.RuntimeName, "LOQA_TTS_RUNTIME_NAME")
	overrideString(&cfg.Environment, "LOQA_TTS_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "LOQA_TTS_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "LOQA_TTS_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "LOQA_TTS_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "LOQA_TTS_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "LOQA_TTS_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Telemetry.StdoutTraces, "LOQA_TTS_TELEMETRY_STDOUT_TRACES")
	overrideString(&cfg.OpenAI.APIKey, "LOQA_TTS_OPENAI_API_KEY")
	overrideString(&cfg.OpenAI.BaseURL, "LOQA_TTS_OPENAI_BASE_URL")
	overrideString(&cfg.TTS.Mode, "LOQA_TTS_MODE")
	overrideString(&cfg.TTS.Command, "LOQA_TTS_COMMAND")
	overrideInt(&cfg.TTS.MaxTextLength, "LOQA_TTS_MAX_TEXT_LENGTH")
	overrideInt(&cfg.TTS.CallTimeoutMS, "LOQA_TTS_CALL_TIMEOUT_MS")
	overrideString(&cfg.TTS.DefaultModel, "LOQA_TTS_DEFAULT_MODEL")
	overrideString(&cfg.TTS.DefaultVoice, "LOQA_TTS_DEFAULT_VOICE")
	overrideString(&cfg.TTS.DefaultFormat, "LOQA_TTS_DEFAULT_FORMAT")
	overrideFloat(&cfg.TTS.DefaultSpeed, "LOQA_TTS_DEFAULT_SPEED")
	overrideString(&cfg.Merge.Mode, "LOQA_TTS_MERGE_MODE")
	overrideString(&cfg.Merge.Command, "LOQA_TTS_MERGE_COMMAND")
	overrideString(&cfg.Merge.FFmpegPath, "LOQA_TTS_MERGE_FFMPEG_PATH")
	overrideString(&cfg.Output.Directory, "LOQA_TTS_OUTPUT_DIRECTORY")
	overrideString(&cfg.Silence.Path, "LOQA_TTS_SILENCE_PATH")
	overrideString(&cfg.EventStore.Path, "LOQA_TTS_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "LOQA_TTS_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "LOQA_TTS_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxSessions, "LOQA_TTS_EVENT_STORE_MAX_SESSIONS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "LOQA_TTS_EVENT_STORE_VACUUM_ON_START")
	overrideBool(&cfg.Bus.Enabled, "LOQA_TTS_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "LOQA_TTS_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "LOQA_TTS_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "LOQA_TTS_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "LOQA_TTS_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "LOQA_TTS_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "LOQA_TTS_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "LOQA_TTS_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "LOQA_TTS_BUS_CONNECT_TIMEOUT_MS")
	overrideBool(&cfg.Bus.ServeRequests, "LOQA_TTS_BUS_SERVE_REQUESTS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

// HasAPIKey reports whether a usable speech API credential is configured.
func (c Config) HasAPIKey() bool {
	key := strings.TrimSpace(c.OpenAI.APIKey)
	return key != "" && key != PlaceholderAPIKey
}

// FFmpegBinary resolves the merge command's executable against the optional
// ffmpeg_path hint. The hint may name the binary itself or its directory.
func (c MergeConfig) FFmpegBinary(name string) string {
	hint := strings.TrimSpace(c.FFmpegPath)
	if hint == "" || strings.ContainsRune(name, filepath.Separator) {
		return name
	}
	if info, err := os.Stat(hint); err == nil && !info.IsDir() {
		return hint
	}
	candidate := filepath.Join(hint, name)
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return name
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	switch strings.ToLower(cfg.Telemetry.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return errors.New("telemetry.log_level must be one of debug|info|warn|error")
	}
	switch cfg.TTS.Mode {
	case "openai":
		if !cfg.HasAPIKey() {
			return ErrMissingAPIKey
		}
	case "exec":
		if cfg.TTS.Command == "" {
			return errors.New("tts.command must be set when mode=exec")
		}
	case "mock":
	default:
		return errors.New("tts.mode must be one of openai|exec|mock")
	}
	if cfg.TTS.MaxTextLength <= 0 {
		return errors.New("tts.max_text_length must be positive")
	}
	if cfg.TTS.CallTimeoutMS <= 0 {
		return errors.New("tts.call_timeout_ms must be positive")
	}
	switch cfg.Merge.Mode {
	case "auto", "ffmpeg", "native":
	default:
		return errors.New("merge.mode must be one of auto|ffmpeg|native")
	}
	if cfg.Merge.Mode != "native" && strings.TrimSpace(cfg.Merge.Command) == "" {
		return errors.New("merge.command must be set unless mode=native")
	}
	if cfg.Output.Directory == "" {
		return errors.New("output.directory must not be empty")
	}
	if cfg.Silence.Path == "" {
		return errors.New("silence.path must not be empty")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionMode != "ephemeral" && cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	return nil
}
