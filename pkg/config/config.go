// Package config loads LCSE runtime configuration from the environment,
// in the ConfigReader-over-env style: every option has a named env var and
// a hard default, and a .env file is loaded first if present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/collectline/lcse/pkg/logger"
)

// Config holds every recognized option of spec §6 plus the ambient
// server/db/log options the engine needs to boot.
type Config struct {
	Addr     string `env:"ADDR"`
	Mode     string `env:"MODE"`
	DBDriver string `env:"DB_DRIVER"`
	DSN      string `env:"DSN"`

	Log logger.Config

	Language LanguageConfig
	ASR      ASRConfig
	TTS      TTSConfig
	Intent   IntentConfig
	Buffer   BufferConfig
	Wait     WaitConfig
	Call     CallConfig
	Transfer TransferConfig
	Rate     RateConfig
	Redis    RedisConfig
	Session  SessionConfig
}

type IntentConfig struct {
	BaseURL string `env:"INTENT_LLM_BASE_URL"`
	APIKey  string `env:"INTENT_LLM_API_KEY"`
	Model   string `env:"INTENT_LLM_MODEL" default:"gpt-4o-mini"`
}

type RedisConfig struct {
	Addr string `env:"REDIS_ADDR"`
}

type SessionConfig struct {
	TTLMinutes     int `env:"SESSION_TTL_MINUTES" default:"120"`
	LocalCacheSize int `env:"SESSION_LOCAL_CACHE_SIZE" default:"1000"`
}

type LanguageConfig struct {
	DefaultStateMap map[string]string
}

type ASRConfig struct {
	BaseURL       string `env:"ASR_BASE_URL"`
	APIKey        string `env:"ASR_API_KEY"`
	MaxRetries    int    `env:"ASR_MAX_RETRIES" default:"2"`
	RetryDelayMs  int    `env:"ASR_RETRY_DELAY_MS" default:"600"`
	MinAudioMs    int    `env:"ASR_MIN_AUDIO_MS" default:"1000"`
	MinAudioBytes int    `env:"ASR_MIN_AUDIO_BYTES" default:"500"`
}

type TTSConfig struct {
	BaseURL         string `env:"TTS_BASE_URL"`
	APIKey          string `env:"TTS_API_KEY"`
	ChunkMs         int    `env:"TTS_CHUNK_MS" default:"20"`
	ProcessingTailMs int   `env:"TTS_PROCESSING_TAIL_MS" default:"500"`
}

type BufferConfig struct {
	MinUtteranceMs int `env:"BUFFER_MIN_UTTERANCE_MS" default:"1000"`
	QuietWindowMs  int `env:"BUFFER_QUIET_WINDOW_MS" default:"600"`
	HardCapMs      int `env:"BUFFER_HARD_CAP_MS" default:"12000"`
}

type WaitConfig struct {
	ConfirmationS   int `env:"WAIT_CONFIRMATION_S" default:"7"`
	AgentResponseS  int `env:"WAIT_AGENT_RESPONSE_S" default:"7"`
	RepeatMax       int `env:"REPEAT_MAX" default:"2"`
}

type CallConfig struct {
	MaxDurationS  int `env:"CALL_MAX_DURATION_S" default:"600"`
	DrainDelayMs  int `env:"CALL_DRAIN_DELAY_MS" default:"1500"`
}

type TransferConfig struct {
	BaseURL           string `env:"TRANSFER_BASE_URL"`
	APIKey            string `env:"TRANSFER_API_KEY"`
	AgentNumber       string `env:"TRANSFER_AGENT_NUMBER" validate:"e164"`
	OnRepeatedUnclear string `env:"TRANSFER_ON_REPEATED_UNCLEAR" default:"transfer"`
}

type RateConfig struct {
	ASRPerMin    int `env:"RATE_ASR_PER_MIN" default:"20"`
	ASRMinGapMs  int `env:"RATE_ASR_MIN_GAP_MS" default:"3000"`
}

// GlobalConfig is the process-wide configuration, populated by Load.
var GlobalConfig *Config

// defaultStateMap is the finite state->language table of spec §4.5; default
// on miss is English. Keys are normalized (lower-cased, full state names).
var defaultStateMap = map[string]string{
	"uttar pradesh":   "hi",
	"bihar":           "hi",
	"madhya pradesh":  "hi",
	"rajasthan":       "hi",
	"haryana":         "hi",
	"delhi":           "hi",
	"jharkhand":       "hi",
	"chhattisgarh":    "hi",
	"tamil nadu":      "ta",
	"andhra pradesh":  "te",
	"telangana":       "te",
	"karnataka":       "kn",
	"kerala":          "ml",
	"gujarat":         "gu",
	"maharashtra":     "mr",
	"west bengal":     "bn",
	"punjab":          "pa",
	"odisha":          "or",
}

// Load reads the environment (after loading a .env file if present) into a
// fresh Config, applying defaults and validating transfer.agent_number.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Addr:     getString("ADDR", ":8000"),
		Mode:     getString("MODE", "dev"),
		DBDriver: getString("DB_DRIVER", "sqlite"),
		DSN:      getString("DSN", "lcse.db"),
		Log: logger.Config{
			Level:      getString("LOG_LEVEL", "info"),
			FilePath:   getString("LOG_FILE_PATH", ""),
			MaxSizeMB:  getInt("LOG_MAX_SIZE_MB", 100),
			MaxBackups: getInt("LOG_MAX_BACKUPS", 5),
			MaxAgeDays: getInt("LOG_MAX_AGE_DAYS", 28),
			Console:    getBool("LOG_CONSOLE", true),
		},
		Language: LanguageConfig{DefaultStateMap: defaultStateMap},
		ASR: ASRConfig{
			BaseURL:       getString("ASR_BASE_URL", ""),
			APIKey:        getString("ASR_API_KEY", ""),
			MaxRetries:    getInt("ASR_MAX_RETRIES", 2),
			RetryDelayMs:  getInt("ASR_RETRY_DELAY_MS", 600),
			MinAudioMs:    getInt("ASR_MIN_AUDIO_MS", 1000),
			MinAudioBytes: getInt("ASR_MIN_AUDIO_BYTES", 500),
		},
		TTS: TTSConfig{
			BaseURL:          getString("TTS_BASE_URL", ""),
			APIKey:           getString("TTS_API_KEY", ""),
			ChunkMs:          getInt("TTS_CHUNK_MS", 20),
			ProcessingTailMs: getInt("TTS_PROCESSING_TAIL_MS", 500),
		},
		Buffer: BufferConfig{
			MinUtteranceMs: getInt("BUFFER_MIN_UTTERANCE_MS", 1000),
			QuietWindowMs:  getInt("BUFFER_QUIET_WINDOW_MS", 600),
			HardCapMs:      getInt("BUFFER_HARD_CAP_MS", 12000),
		},
		Wait: WaitConfig{
			ConfirmationS:  getInt("WAIT_CONFIRMATION_S", 7),
			AgentResponseS: getInt("WAIT_AGENT_RESPONSE_S", 7),
			RepeatMax:      getInt("REPEAT_MAX", 2),
		},
		Call: CallConfig{
			MaxDurationS: getInt("CALL_MAX_DURATION_S", 600),
			DrainDelayMs: getInt("CALL_DRAIN_DELAY_MS", 1500),
		},
		Intent: IntentConfig{
			BaseURL: getString("INTENT_LLM_BASE_URL", ""),
			APIKey:  getString("INTENT_LLM_API_KEY", ""),
			Model:   getString("INTENT_LLM_MODEL", "gpt-4o-mini"),
		},
		Transfer: TransferConfig{
			BaseURL:           getString("TRANSFER_BASE_URL", ""),
			APIKey:            getString("TRANSFER_API_KEY", ""),
			AgentNumber:       getString("TRANSFER_AGENT_NUMBER", ""),
			OnRepeatedUnclear: getString("TRANSFER_ON_REPEATED_UNCLEAR", "transfer"),
		},
		Rate: RateConfig{
			ASRPerMin:   getInt("RATE_ASR_PER_MIN", 20),
			ASRMinGapMs: getInt("RATE_ASR_MIN_GAP_MS", 3000),
		},
		Redis: RedisConfig{
			Addr: getString("REDIS_ADDR", "127.0.0.1:6379"),
		},
		Session: SessionConfig{
			TTLMinutes:     getInt("SESSION_TTL_MINUTES", 120),
			LocalCacheSize: getInt("SESSION_LOCAL_CACHE_SIZE", 1000),
		},
	}

	if cfg.Transfer.OnRepeatedUnclear != "transfer" && cfg.Transfer.OnRepeatedUnclear != "goodbye" {
		return nil, fmt.Errorf("config: transfer.on_repeated_unclear must be 'transfer' or 'goodbye', got %q", cfg.Transfer.OnRepeatedUnclear)
	}

	v := validator.New()
	if err := v.Var(cfg.Transfer.AgentNumber, "required,e164"); err != nil {
		return nil, fmt.Errorf("config: transfer.agent_number invalid: %w", err)
	}

	GlobalConfig = cfg
	return cfg, nil
}

func getString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
