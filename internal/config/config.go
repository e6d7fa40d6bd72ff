package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains all runtime settings for the tutoring service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool
	StaticDir        string

	LogLevel  string
	LogFormat string

	TempAudioRoot    string
	AudioURLPrefix   string
	HistoryMaxTurns  int
	AudioKeepPerKind int

	SessionStore    string
	SessionIdleTTL  time.Duration
	RedisURL        string
	RedisSessionTTL time.Duration
	DatabaseURL     string

	ScenariosFile string

	LLMProvider     string
	MistralAPIKey   string
	MistralBaseURL  string
	MistralModel    string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	OpenAIChatModel string
	LLMTimeout      time.Duration
	LLMMaxTokens    int
	LLMRandomSeed   int

	TTSProvider         string
	TTSFallbackProvider string
	TTSMaxRetries       int
	TTSRetryBackoff     time.Duration
	TTSTimeout          time.Duration
	TTSMaxChars         int

	OpenAITTSModel string
	OpenAITTSVoice string

	MinimaxAPIKey  string
	MinimaxBaseURL string
	MinimaxVoiceID string

	GoogleTTSAPIKey       string
	GoogleCredentialsFile string
	GoogleTTSVoice        string

	ElevenLabsAPIKey    string
	ElevenLabsWSBaseURL string
	ElevenLabsTTSVoice  string
	ElevenLabsTTSModel  string

	LocalTTSCommand string
	LocalTTSFormat  string
}

// LoadEnvFile merges a dotenv file into the process environment. Variables
// already set win over file values and a missing file is ignored.
func LoadEnvFile(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	if err := LoadEnvFile(envOrDefault("APP_ENV_FILE", ".env")); err != nil {
		return Config{}, err
	}

	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":5000"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "parlons"),
		StaticDir:        stringsTrimSpace("APP_STATIC_DIR"),
		LogLevel:         envOrDefault("APP_LOG_LEVEL", "info"),
		LogFormat:        envOrDefault("APP_LOG_FORMAT", "console"),
		TempAudioRoot:    envOrDefault("TEMP_AUDIO_ROOT", "temp_audio"),
		AudioURLPrefix:   envOrDefault("AUDIO_URL_PREFIX", "/temp_audio"),
		SessionStore:     strings.ToLower(envOrDefault("SESSION_STORE", "memory")),
		RedisURL:         stringsTrimSpace("REDIS_URL"),
		DatabaseURL:      stringsTrimSpace("DATABASE_URL"),
		ScenariosFile:    stringsTrimSpace("SCENARIOS_FILE"),

		LLMProvider:     strings.ToLower(envOrDefault("LLM_PROVIDER", "auto")),
		MistralAPIKey:   stringsTrimSpace("MISTRAL_API_KEY"),
		MistralBaseURL:  envOrDefault("MISTRAL_BASE_URL", "https://api.mistral.ai"),
		MistralModel:    envOrDefault("MISTRAL_MODEL", "mistral-tiny"),
		OpenAIAPIKey:    stringsTrimSpace("OPENAI_API_KEY"),
		OpenAIBaseURL:   envOrDefault("OPENAI_BASE_URL", "https://api.openai.com"),
		OpenAIChatModel: envOrDefault("OPENAI_CHAT_MODEL", "gpt-4o-mini"),

		TTSProvider:         strings.ToLower(envOrDefault("TTS_PROVIDER", "dummy")),
		TTSFallbackProvider: strings.ToLower(stringsTrimSpace("TTS_FALLBACK_PROVIDER")),

		OpenAITTSModel: envOrDefault("OPENAI_TTS_MODEL", "gpt-4o-mini-tts"),
		OpenAITTSVoice: envOrDefault("OPENAI_TTS_VOICE", "coral"),

		MinimaxAPIKey:  stringsTrimSpace("MINIMAX_API_KEY"),
		MinimaxBaseURL: envOrDefault("MINIMAX_BASE_URL", "https://api.minimaxi.chat"),
		MinimaxVoiceID: envOrDefault("MINIMAX_VOICE_ID", "female-001"),

		GoogleTTSAPIKey:       stringsTrimSpace("GOOGLE_TTS_API_KEY"),
		GoogleCredentialsFile: stringsTrimSpace("GOOGLE_APPLICATION_CREDENTIALS"),
		GoogleTTSVoice:        envOrDefault("GOOGLE_TTS_VOICE", "fr-FR-Wavenet-A"),

		ElevenLabsAPIKey:    stringsTrimSpace("ELEVENLABS_API_KEY"),
		ElevenLabsWSBaseURL: envOrDefault("ELEVENLABS_WS_BASE_URL", "wss://api.elevenlabs.io"),
		ElevenLabsTTSVoice:  stringsTrimSpace("ELEVENLABS_TTS_VOICE_ID"),
		ElevenLabsTTSModel:  envOrDefault("ELEVENLABS_TTS_MODEL_ID", "eleven_multilingual_v2"),

		LocalTTSCommand: stringsTrimSpace("LOCAL_TTS_COMMAND"),
		LocalTTSFormat:  envOrDefault("LOCAL_TTS_FORMAT", "wav"),

		ShutdownTimeout:  15 * time.Second,
		HistoryMaxTurns:  20,
		AudioKeepPerKind: 2,
		RedisSessionTTL:  24 * time.Hour,
		LLMTimeout:       30 * time.Second,
		LLMMaxTokens:     160,
		LLMRandomSeed:    42,
		TTSMaxRetries:    2,
		TTSRetryBackoff:  time.Second,
		TTSTimeout:       45 * time.Second,
	}

	var err error
	if cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout); err != nil {
		return Config{}, err
	}
	if cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin); err != nil {
		return Config{}, err
	}
	if cfg.HistoryMaxTurns, err = intFromEnv("HISTORY_MAX_TURNS", cfg.HistoryMaxTurns); err != nil {
		return Config{}, err
	}
	if cfg.AudioKeepPerKind, err = intFromEnv("AUDIO_KEEP_PER_KIND", cfg.AudioKeepPerKind); err != nil {
		return Config{}, err
	}
	if cfg.SessionIdleTTL, err = durationFromEnv("SESSION_IDLE_TTL", cfg.SessionIdleTTL); err != nil {
		return Config{}, err
	}
	if cfg.RedisSessionTTL, err = durationFromEnv("REDIS_SESSION_TTL", cfg.RedisSessionTTL); err != nil {
		return Config{}, err
	}
	if cfg.LLMTimeout, err = durationFromEnv("LLM_TIMEOUT", cfg.LLMTimeout); err != nil {
		return Config{}, err
	}
	if cfg.LLMMaxTokens, err = intFromEnv("LLM_MAX_TOKENS", cfg.LLMMaxTokens); err != nil {
		return Config{}, err
	}
	if cfg.LLMRandomSeed, err = intFromEnv("LLM_RANDOM_SEED", cfg.LLMRandomSeed); err != nil {
		return Config{}, err
	}
	if cfg.TTSMaxRetries, err = intFromEnv("TTS_MAX_RETRIES", cfg.TTSMaxRetries); err != nil {
		return Config{}, err
	}
	if cfg.TTSRetryBackoff, err = durationFromEnv("TTS_RETRY_BACKOFF", cfg.TTSRetryBackoff); err != nil {
		return Config{}, err
	}
	if cfg.TTSTimeout, err = durationFromEnv("TTS_TIMEOUT", cfg.TTSTimeout); err != nil {
		return Config{}, err
	}
	if cfg.TTSMaxChars, err = intFromEnv("TTS_MAX_CHARS", cfg.TTSMaxChars); err != nil {
		return Config{}, err
	}

	if cfg.HistoryMaxTurns <= 0 {
		return Config{}, fmt.Errorf("HISTORY_MAX_TURNS must be positive")
	}
	if cfg.AudioKeepPerKind <= 0 {
		return Config{}, fmt.Errorf("AUDIO_KEEP_PER_KIND must be positive")
	}
	if cfg.TTSMaxRetries < 1 {
		return Config{}, fmt.Errorf("TTS_MAX_RETRIES must be at least 1")
	}
	if cfg.TTSRetryBackoff < 0 || cfg.TTSTimeout <= 0 || cfg.LLMTimeout <= 0 {
		return Config{}, fmt.Errorf("TTS_RETRY_BACKOFF, TTS_TIMEOUT and LLM_TIMEOUT must be positive")
	}
	if cfg.LLMMaxTokens < 0 || cfg.TTSMaxChars < 0 {
		return Config{}, fmt.Errorf("LLM_MAX_TOKENS and TTS_MAX_CHARS must be >= 0")
	}
	if cfg.SessionIdleTTL < 0 {
		return Config{}, fmt.Errorf("SESSION_IDLE_TTL must be >= 0")
	}
	switch cfg.SessionStore {
	case "memory", "redis", "postgres":
	default:
		return Config{}, fmt.Errorf("SESSION_STORE must be memory, redis or postgres")
	}
	if cfg.SessionStore == "redis" && cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("REDIS_URL is required when SESSION_STORE=redis")
	}
	if cfg.SessionStore == "postgres" && cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required when SESSION_STORE=postgres")
	}

	if cfg.TempAudioRoot, err = filepath.Abs(cfg.TempAudioRoot); err != nil {
		return Config{}, fmt.Errorf("TEMP_AUDIO_ROOT: %w", err)
	}
	if !strings.HasPrefix(cfg.AudioURLPrefix, "/") {
		cfg.AudioURLPrefix = "/" + cfg.AudioURLPrefix
	}
	cfg.AudioURLPrefix = strings.TrimRight(cfg.AudioURLPrefix, "/")
	if cfg.AudioURLPrefix == "" {
		return Config{}, fmt.Errorf("AUDIO_URL_PREFIX must not be the root path")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
