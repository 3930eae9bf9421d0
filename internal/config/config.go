package config

import (
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/yegors/co-subtitles/internal/language"
)

// Config represents the main application configuration structure
// containing all configuration sections
type Config struct {
	Server      ServerConfig      `toml:"server"`      // HTTP server settings
	Logging     LoggingConfig     `toml:"logging"`     // Application logging settings
	Audio       AudioConfig       `toml:"audio"`       // Ingest settings
	Subtitles   SubtitlesConfig   `toml:"subtitles"`   // Windowing and render timing
	Speech      SpeechConfig      `toml:"speech"`      // Speech recognition provider
	Translation TranslationConfig `toml:"translation"` // Translation provider
	WebRTC      WebRTCConfig      `toml:"webrtc"`      // Peer connection settings
	Languages   LanguagesConfig   `toml:"languages"`   // Default language pair
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port               int      `toml:"port"`                  // Primary HTTP port for the server
	Host               string   `toml:"host"`                  // Host address to bind to (e.g., 127.0.0.1 for localhost only, 0.0.0.0 for all interfaces)
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`  // List of origins allowed for CORS requests (use ["*"] for all origins)
	ReadTimeoutSecs    int      `toml:"read_timeout_seconds"`  // Maximum duration for reading the entire request (0 = no timeout)
	WriteTimeoutSecs   int      `toml:"write_timeout_seconds"` // Maximum duration for writing the response (0 = no timeout, recommended for websockets)
	IdleTimeoutSecs    int      `toml:"idle_timeout_seconds"`  // Maximum duration to wait for the next request when keep-alives are enabled
	StaticFilesDir     string   `toml:"static_files_dir"`      // Directory holding the browser frontend (e.g., "www")
	OfferTimeoutSecs   int      `toml:"offer_timeout_seconds"` // Upper bound for answering a WebRTC offer, ICE gathering included
}

// LoggingConfig contains application logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`  // Log level: "debug", "info", "warn", or "error"
	Format string `toml:"format"` // Log format: "json" (structured) or "console" (human-readable)
}

// AudioConfig contains the ingest stage settings
type AudioConfig struct {
	SampleRate      int     `toml:"sample_rate"`       // Rate sent to the recognizer, in Hz
	ChunkSamples    int     `toml:"chunk_samples"`     // Samples per recognition chunk (1600 = 100 ms at 16 kHz)
	VolumeGain      float64 `toml:"volume_gain"`       // Multiplier applied to the RMS level before clamping to [0, 1]
	VoiceIntervalMs int     `toml:"voice_interval_ms"` // How often the volume level is pushed to the page
}

// SubtitlesConfig contains the windowing and render timing settings
type SubtitlesConfig struct {
	WindowSize     int `toml:"window_size"`      // Tokens per subtitle line
	SlowIntervalMs int `toml:"slow_interval_ms"` // Delay after a line break, also the scroll animation length
	FastIntervalMs int `toml:"fast_interval_ms"` // Delay between ticks without a line break
}

// SpeechConfig selects and configures the speech recognition provider
type SpeechConfig struct {
	// Provider is "google" or "openai"
	Provider             string `toml:"provider"`
	Punctuation          bool   `toml:"punctuation"`            // Ask the recognizer for automatic punctuation
	StreamLimitSeconds   int    `toml:"stream_limit_seconds"`   // Reopen recognition streams before the provider's hard limit (0 disables rotation)
	TranslatePollMs      int    `toml:"translate_poll_ms"`      // How often the translation unit looks for a new transcript
	InitialBackoffMs     int    `toml:"initial_backoff_ms"`     // First delay after a failed recognition stream
	MaxBackoffMs         int    `toml:"max_backoff_ms"`         // Upper bound for the retry delay
	GoogleCredentials    string `toml:"google_credentials"`     // Service account JSON for Cloud Speech, empty for application default credentials
	GoogleModel          string `toml:"google_model"`           // Optional recognition model, e.g. "latest_long"
	OpenAIAPIKey         string `toml:"openai_api_key"`         // API key for realtime transcription
	OpenAIBaseURL        string `toml:"openai_base_url"`        // Optional proxy base URL
	OpenAIModel          string `toml:"openai_model"`           // e.g. "gpt-4o-transcribe"
	OpenAINoiseReduction string `toml:"openai_noise_reduction"` // "near_field", "far_field" or empty
	OpenAIPrompt         string `toml:"openai_prompt"`          // Optional vocabulary hint
	TimeoutSeconds       int    `toml:"timeout_seconds"`        // HTTP timeout for session creation
}

// TranslationConfig selects and configures the translation provider
type TranslationConfig struct {
	// Provider is "gemini", "google", "openai" or "none"
	Provider          string  `toml:"provider"`
	GeminiAPIKey      string  `toml:"gemini_api_key"`
	GeminiBaseURL     string  `toml:"gemini_base_url"`
	GeminiModel       string  `toml:"gemini_model"`
	GoogleCredentials string  `toml:"google_credentials"`
	GoogleAPIKey      string  `toml:"google_api_key"`
	GoogleModel       string  `toml:"google_model"` // "nmt" or "base"
	OpenAIAPIKey      string  `toml:"openai_api_key"`
	OpenAIBaseURL     string  `toml:"openai_base_url"`
	OpenAIModel       string  `toml:"openai_model"`
	MaxTokens         int     `toml:"max_tokens"`
	Temperature       float64 `toml:"temperature"`
	TimeoutSeconds    int     `toml:"timeout_seconds"`
}

// WebRTCConfig contains peer connection settings
type WebRTCConfig struct {
	ICEServers []string `toml:"ice_servers"` // STUN/TURN URLs handed to every peer connection
}

// LanguagesConfig contains the default language pair, by display name or code
type LanguagesConfig struct {
	DefaultAudio       string `toml:"default_audio"`
	DefaultTranslation string `toml:"default_translation"`
}

// Provider names
const (
	ProviderGoogle = "google"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderNone   = "none"
)

// Default returns a configuration with every default applied and secrets
// taken from the environment
func Default() *Config {
	c := &Config{}
	c.Speech.Punctuation = true
	c.applyEnv()
	c.applyDefaults()
	return c
}

// Load loads the configuration from the specified file path
func Load(path string) (*Config, error) {
	var config Config

	// Check if the file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	// Punctuation defaults to on, so seed it before decoding
	config.Speech.Punctuation = true

	if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	config.applyEnv()
	return &config, nil
}

// LoadWithFallback loads the configuration by checking multiple locations in order of preference
func LoadWithFallback(preferredPath string) (*Config, error) {
	// List of paths to check in order of preference
	searchPaths := []string{
		preferredPath,         // User-specified path (if provided)
		"configs/config.toml", // configs/ folder
		"config.toml",         // Root directory
	}

	// Remove duplicates while preserving order
	uniquePaths := make([]string, 0, len(searchPaths))
	seen := make(map[string]bool)
	for _, path := range searchPaths {
		if path != "" && !seen[path] {
			uniquePaths = append(uniquePaths, path)
			seen[path] = true
		}
	}

	var lastErr error
	for _, path := range uniquePaths {
		if _, err := os.Stat(path); err == nil {
			config, err := Load(path)
			if err != nil {
				lastErr = fmt.Errorf("failed to load config from %s: %w", path, err)
				continue
			}
			return config, nil
		}
		lastErr = fmt.Errorf("config file not found: %s", path)
	}

	return nil, fmt.Errorf("config file not found in any of the expected locations: %v. Last error: %w", uniquePaths, lastErr)
}

// applyEnv fills secrets that are not in the file from the environment
func (c *Config) applyEnv() {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		if c.Speech.OpenAIAPIKey == "" {
			c.Speech.OpenAIAPIKey = key
		}
		if c.Translation.OpenAIAPIKey == "" {
			c.Translation.OpenAIAPIKey = key
		}
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" && c.Translation.GeminiAPIKey == "" {
		c.Translation.GeminiAPIKey = key
	}
	if creds := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); creds != "" {
		if c.Speech.GoogleCredentials == "" {
			c.Speech.GoogleCredentials = creds
		}
		if c.Translation.GoogleCredentials == "" {
			c.Translation.GoogleCredentials = creds
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.ReadTimeoutSecs == 0 {
		c.Server.ReadTimeoutSecs = 15
	}
	if c.Server.IdleTimeoutSecs == 0 {
		c.Server.IdleTimeoutSecs = 60
	}
	if c.Server.StaticFilesDir == "" {
		c.Server.StaticFilesDir = "www"
	}
	if c.Server.OfferTimeoutSecs == 0 {
		c.Server.OfferTimeoutSecs = 10
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}

	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = 16000
	}
	if c.Audio.ChunkSamples == 0 {
		c.Audio.ChunkSamples = c.Audio.SampleRate / 10
	}
	if c.Audio.VolumeGain == 0 {
		c.Audio.VolumeGain = 20
	}
	if c.Audio.VoiceIntervalMs == 0 {
		c.Audio.VoiceIntervalMs = 100
	}

	if c.Subtitles.WindowSize == 0 {
		c.Subtitles.WindowSize = 10
	}
	if c.Subtitles.SlowIntervalMs == 0 {
		c.Subtitles.SlowIntervalMs = 300
	}
	if c.Subtitles.FastIntervalMs == 0 {
		c.Subtitles.FastIntervalMs = 100
	}

	if c.Speech.Provider == "" {
		c.Speech.Provider = ProviderGoogle
	}
	if c.Speech.StreamLimitSeconds == 0 {
		c.Speech.StreamLimitSeconds = 296
	}
	if c.Speech.TranslatePollMs == 0 {
		c.Speech.TranslatePollMs = 100
	}
	if c.Speech.InitialBackoffMs == 0 {
		c.Speech.InitialBackoffMs = 250
	}
	if c.Speech.MaxBackoffMs == 0 {
		c.Speech.MaxBackoffMs = 5000
	}
	if c.Speech.OpenAIModel == "" {
		c.Speech.OpenAIModel = "gpt-4o-transcribe"
	}
	if c.Speech.TimeoutSeconds == 0 {
		c.Speech.TimeoutSeconds = 30
	}

	if c.Translation.Provider == "" {
		c.Translation.Provider = ProviderGemini
	}
	if c.Translation.GeminiModel == "" {
		c.Translation.GeminiModel = "gemini-2.0-flash"
	}
	if c.Translation.OpenAIModel == "" {
		c.Translation.OpenAIModel = "gpt-4o-mini"
	}
	if c.Translation.MaxTokens == 0 {
		c.Translation.MaxTokens = 512
	}
	if c.Translation.TimeoutSeconds == 0 {
		c.Translation.TimeoutSeconds = 10
	}

	if c.WebRTC.ICEServers == nil {
		c.WebRTC.ICEServers = []string{"stun:stun.l.google.com:19302"}
	}

	if c.Languages.DefaultAudio == "" {
		c.Languages.DefaultAudio = language.DefaultAudio
	}
	if c.Languages.DefaultTranslation == "" {
		c.Languages.DefaultTranslation = language.DefaultTranslation
	}
}

// Validate fills defaults and validates the configuration
func (c *Config) Validate() error {
	c.applyDefaults()

	// Validate server config
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.ReadTimeoutSecs < 0 || c.Server.WriteTimeoutSecs < 0 || c.Server.IdleTimeoutSecs < 0 {
		return fmt.Errorf("server timeouts must not be negative")
	}
	if c.Server.OfferTimeoutSecs < 0 {
		return fmt.Errorf("invalid offer_timeout_seconds: %d", c.Server.OfferTimeoutSecs)
	}

	// Validate static files directory exists
	if _, err := os.Stat(c.Server.StaticFilesDir); os.IsNotExist(err) {
		return fmt.Errorf("static files directory does not exist: %s", c.Server.StaticFilesDir)
	}

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, c.Logging.Level) {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be 'json' or 'console')", c.Logging.Format)
	}

	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("invalid audio sample_rate: %d", c.Audio.SampleRate)
	}
	if c.Audio.ChunkSamples <= 0 {
		return fmt.Errorf("invalid audio chunk_samples: %d", c.Audio.ChunkSamples)
	}
	if c.Audio.VolumeGain <= 0 {
		return fmt.Errorf("invalid audio volume_gain: %f", c.Audio.VolumeGain)
	}

	if c.Subtitles.WindowSize <= 0 {
		return fmt.Errorf("invalid subtitles window_size: %d (must be positive)", c.Subtitles.WindowSize)
	}
	if c.Subtitles.SlowIntervalMs <= 0 || c.Subtitles.FastIntervalMs <= 0 {
		return fmt.Errorf("subtitle intervals must be positive")
	}
	if c.Subtitles.FastIntervalMs > c.Subtitles.SlowIntervalMs {
		return fmt.Errorf("fast_interval_ms (%d) must not exceed slow_interval_ms (%d)", c.Subtitles.FastIntervalMs, c.Subtitles.SlowIntervalMs)
	}

	switch c.Speech.Provider {
	case ProviderGoogle:
	case ProviderOpenAI:
		if c.Speech.OpenAIAPIKey == "" {
			return fmt.Errorf("openai_api_key is required when speech provider is openai")
		}
	default:
		return fmt.Errorf("invalid speech provider: %s (must be 'google' or 'openai')", c.Speech.Provider)
	}
	if c.Speech.StreamLimitSeconds < 0 {
		return fmt.Errorf("invalid stream_limit_seconds: %d", c.Speech.StreamLimitSeconds)
	}
	if c.Speech.MaxBackoffMs < c.Speech.InitialBackoffMs {
		return fmt.Errorf("max_backoff_ms (%d) must not be below initial_backoff_ms (%d)", c.Speech.MaxBackoffMs, c.Speech.InitialBackoffMs)
	}

	switch c.Translation.Provider {
	case ProviderGemini:
		if c.Translation.GeminiAPIKey == "" {
			return fmt.Errorf("gemini_api_key is required when translation provider is gemini")
		}
	case ProviderOpenAI:
		if c.Translation.OpenAIAPIKey == "" {
			return fmt.Errorf("openai_api_key is required when translation provider is openai")
		}
	case ProviderGoogle, ProviderNone:
	default:
		return fmt.Errorf("invalid translation provider: %s (must be 'gemini', 'google', 'openai' or 'none')", c.Translation.Provider)
	}

	if _, ok := language.Lookup(c.Languages.DefaultAudio); !ok {
		return fmt.Errorf("unknown default_audio language: %s", c.Languages.DefaultAudio)
	}
	if _, ok := language.Lookup(c.Languages.DefaultTranslation); !ok {
		return fmt.Errorf("unknown default_translation language: %s", c.Languages.DefaultTranslation)
	}

	return nil
}

// Addr returns the listen address of the HTTP server
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

// SlowInterval returns the render delay after a line break
func (s SubtitlesConfig) SlowInterval() time.Duration { return ms(s.SlowIntervalMs) }

// FastInterval returns the render delay without a line break
func (s SubtitlesConfig) FastInterval() time.Duration { return ms(s.FastIntervalMs) }

// VoiceInterval returns the volume push cadence
func (a AudioConfig) VoiceInterval() time.Duration { return ms(a.VoiceIntervalMs) }

// StreamLimit returns how long a recognition stream may stay open
func (s SpeechConfig) StreamLimit() time.Duration {
	return time.Duration(s.StreamLimitSeconds) * time.Second
}

// PollInterval returns the translation poll cadence
func (s SpeechConfig) PollInterval() time.Duration { return ms(s.TranslatePollMs) }

// InitialBackoff returns the first retry delay
func (s SpeechConfig) InitialBackoff() time.Duration { return ms(s.InitialBackoffMs) }

// MaxBackoff returns the retry delay cap
func (s SpeechConfig) MaxBackoff() time.Duration { return ms(s.MaxBackoffMs) }

// OfferTimeout returns the bound for answering an offer
func (s ServerConfig) OfferTimeout() time.Duration {
	return time.Duration(s.OfferTimeoutSecs) * time.Second
}
