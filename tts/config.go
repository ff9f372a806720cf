package tts

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/clarityread/readaloud/tts/chunk"
	"github.com/clarityread/readaloud/tts/guard"
	"github.com/clarityread/readaloud/tts/highlight"
)

// Supported parameter ranges.
const (
	MinRate  = 0.5
	MaxRate  = 1.6
	MinPitch = 0.5
	MaxPitch = 2.0
)

// DefaultBenignErrorPattern matches engine errors caused by canceling or
// superseding an utterance.
const DefaultBenignErrorPattern = `(?i)\b(interrupted|canceled|cancelled|aborted)\b`

// ClampRate limits rate to [MinRate, MaxRate].
func ClampRate(rate float64) float64 {
	return clamp(rate, MinRate, MaxRate)
}

// ClampPitch limits pitch to [MinPitch, MaxPitch].
func ClampPitch(pitch float64) float64 {
	return clamp(pitch, MinPitch, MaxPitch)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ControllerConfig holds the policy knobs of the controller.
type ControllerConfig struct {
	MaxChunkChars      int           // Longest chunk submitted to the engine
	SpeedReadWords     int           // Words per chunk in speed-read mode
	DuplicateWindow    time.Duration // Identical requests inside this window are dropped
	RetryRateStep      float64       // Rate reduction for the single retry
	RetryRateFloor     float64       // Lowest rate a retry may use
	BenignErrorPattern string        // Engine errors matching this skip to the next chunk
	AdvanceDelay       time.Duration // Pause between the end of a chunk and the next submit
	StopSettle         time.Duration // Start after Stop waits this long before speaking
	FallbackGrace      time.Duration // Wait for boundary events before estimating
	StatsTick          time.Duration
	StatsFlushEvery    time.Duration
	Overlay            highlight.Options
}

// DefaultControllerConfig returns the standard policy.
func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		MaxChunkChars:      chunk.DefaultMaxChars,
		SpeedReadWords:     40,
		DuplicateWindow:    guard.DefaultWindow,
		RetryRateStep:      0.2,
		RetryRateFloor:     0.6,
		BenignErrorPattern: DefaultBenignErrorPattern,
		AdvanceDelay:       50 * time.Millisecond,
		StopSettle:         250 * time.Millisecond,
		FallbackGrace:      800 * time.Millisecond,
		StatsTick:          time.Second,
		StatsFlushEvery:    10 * time.Second,
		Overlay:            highlight.DefaultOptions(),
	}
}

// Config contains all read-aloud configuration options.
type Config struct {
	Engine    string  `yaml:"engine"`
	Voice     string  `yaml:"voice"`
	Language  string  `yaml:"language"`
	Rate      float64 `yaml:"rate"`
	Pitch     float64 `yaml:"pitch"`
	Highlight bool    `yaml:"highlight"`

	MaxChunkChars int `yaml:"max_chunk_chars"`

	SpeedRead SpeedReadConfig `yaml:"speed_read"`
	Policy    PolicyConfig    `yaml:"policy"`
	Stats     StatsConfig     `yaml:"stats"`
	Cache     CacheConfig     `yaml:"cache"`

	// Engine-specific configurations
	Command CommandConfig `yaml:"command"`
	Piper   PiperConfig   `yaml:"piper"`
	Google  GoogleConfig  `yaml:"google"`
	Mock    MockConfig    `yaml:"mock"`
}

// SpeedReadConfig contains speed-read mode settings.
type SpeedReadConfig struct {
	WordsPerChunk int     `yaml:"words_per_chunk"`
	Rate          float64 `yaml:"rate"`
}

// PolicyConfig exposes the controller policy constants.
type PolicyConfig struct {
	DuplicateWindow    time.Duration `yaml:"duplicate_window"`
	RetryRateStep      float64       `yaml:"retry_rate_step"`
	RetryRateFloor     float64       `yaml:"retry_rate_floor"`
	BenignErrorPattern string        `yaml:"benign_error_pattern"`
	AdvanceDelay       time.Duration `yaml:"advance_delay"`
	StopSettle         time.Duration `yaml:"stop_settle"`
	FallbackGrace      time.Duration `yaml:"fallback_grace"`
}

// StatsConfig contains reading time statistics settings.
type StatsConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Path       string        `yaml:"path"`
	FlushEvery time.Duration `yaml:"flush_every"`
}

// CacheConfig contains synthesized audio cache settings.
type CacheConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Dir       string `yaml:"dir"`
	MaxSizeMB int64  `yaml:"max_size_mb"`
}

// CommandConfig configures the subprocess engine (espeak-ng, say).
type CommandConfig struct {
	Binary             string  `yaml:"binary"`
	MaxSpawnsPerSecond float64 `yaml:"max_spawns_per_second"`
}

// PiperConfig contains Piper TTS engine specific settings.
type PiperConfig struct {
	Binary     string        `yaml:"binary"`
	Model      string        `yaml:"model"`
	SpeakerID  int           `yaml:"speaker_id"`
	SampleRate int           `yaml:"sample_rate"`
	Timeout    time.Duration `yaml:"timeout"`
}

// GoogleConfig contains Google Cloud TTS engine specific settings.
type GoogleConfig struct {
	CredentialsFile string        `yaml:"credentials_file"`
	LanguageCode    string        `yaml:"language_code"`
	VoiceName       string        `yaml:"voice_name"`
	SampleRate      int           `yaml:"sample_rate"`
	Timeout         time.Duration `yaml:"timeout"`
}

// MockConfig contains mock engine settings.
type MockConfig struct {
	WordsPerMinute int     `yaml:"words_per_minute"`
	Boundaries     bool    `yaml:"boundaries"`
	FailureRate    float64 `yaml:"failure_rate"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	policy := DefaultControllerConfig()
	return Config{
		Engine:        "auto",
		Language:      "en",
		Rate:          1.0,
		Pitch:         1.0,
		Highlight:     true,
		MaxChunkChars: policy.MaxChunkChars,

		SpeedRead: SpeedReadConfig{
			WordsPerChunk: policy.SpeedReadWords,
			Rate:          1.4,
		},
		Policy: PolicyConfig{
			DuplicateWindow:    policy.DuplicateWindow,
			RetryRateStep:      policy.RetryRateStep,
			RetryRateFloor:     policy.RetryRateFloor,
			BenignErrorPattern: policy.BenignErrorPattern,
			AdvanceDelay:       policy.AdvanceDelay,
			StopSettle:         policy.StopSettle,
			FallbackGrace:      policy.FallbackGrace,
		},
		Stats: StatsConfig{
			Enabled:    true,
			FlushEvery: policy.StatsFlushEvery,
		},
		Cache: CacheConfig{
			Enabled:   true,
			MaxSizeMB: 100,
		},

		Command: CommandConfig{
			MaxSpawnsPerSecond: 5,
		},
		Piper: PiperConfig{
			Binary:     "piper",
			Model:      "en_US-lessac-medium",
			SampleRate: 22050,
			Timeout:    30 * time.Second,
		},
		Google: GoogleConfig{
			LanguageCode: "en-US",
			VoiceName:    "en-US-Standard-C",
			SampleRate:   24000,
			Timeout:      10 * time.Second,
		},
		Mock: MockConfig{
			WordsPerMinute: 180,
			Boundaries:     true,
		},
	}
}

// Engines lists the valid engine names.
var Engines = []string{"auto", "mock", "command", "piper", "google"}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	engineValid := false
	for _, e := range Engines {
		if strings.EqualFold(c.Engine, e) {
			engineValid = true
			c.Engine = strings.ToLower(c.Engine)
			break
		}
	}
	if !engineValid {
		return fmt.Errorf("%w: engine %q must be one of %v", ErrInvalidConfig, c.Engine, Engines)
	}

	if c.Rate < MinRate || c.Rate > MaxRate {
		return fmt.Errorf("%w: rate must be between %.1f and %.1f, got %.2f", ErrInvalidConfig, MinRate, MaxRate, c.Rate)
	}
	if c.Pitch < MinPitch || c.Pitch > MaxPitch {
		return fmt.Errorf("%w: pitch must be between %.1f and %.1f, got %.2f", ErrInvalidConfig, MinPitch, MaxPitch, c.Pitch)
	}
	if c.MaxChunkChars <= 0 {
		return fmt.Errorf("%w: max_chunk_chars must be positive, got %d", ErrInvalidConfig, c.MaxChunkChars)
	}
	if c.SpeedRead.WordsPerChunk <= 0 {
		return fmt.Errorf("%w: speed_read.words_per_chunk must be positive, got %d", ErrInvalidConfig, c.SpeedRead.WordsPerChunk)
	}

	if c.Policy.RetryRateFloor < MinRate || c.Policy.RetryRateFloor > MaxRate {
		return fmt.Errorf("%w: policy.retry_rate_floor must be between %.1f and %.1f", ErrInvalidConfig, MinRate, MaxRate)
	}
	if c.Policy.RetryRateStep < 0 {
		return fmt.Errorf("%w: policy.retry_rate_step cannot be negative", ErrInvalidConfig)
	}
	if _, err := regexp.Compile(c.Policy.BenignErrorPattern); err != nil {
		return fmt.Errorf("%w: policy.benign_error_pattern: %v", ErrInvalidConfig, err)
	}

	switch c.Engine {
	case "piper":
		if c.Piper.Model == "" {
			return fmt.Errorf("%w: piper model cannot be empty", ErrInvalidConfig)
		}
		if c.Piper.Timeout < time.Second {
			return fmt.Errorf("%w: piper timeout must be at least 1 second, got %v", ErrInvalidConfig, c.Piper.Timeout)
		}
	case "google":
		if c.Google.Timeout < time.Second {
			return fmt.Errorf("%w: google timeout must be at least 1 second, got %v", ErrInvalidConfig, c.Google.Timeout)
		}
	case "mock":
		if c.Mock.WordsPerMinute < 50 || c.Mock.WordsPerMinute > 500 {
			return fmt.Errorf("%w: mock words_per_minute must be between 50 and 500, got %d", ErrInvalidConfig, c.Mock.WordsPerMinute)
		}
		if c.Mock.FailureRate < 0 || c.Mock.FailureRate > 1 {
			return fmt.Errorf("%w: mock failure_rate must be between 0 and 1, got %f", ErrInvalidConfig, c.Mock.FailureRate)
		}
	}

	return nil
}

// ToControllerConfig converts the file config into controller policy.
func (c *Config) ToControllerConfig() ControllerConfig {
	cc := DefaultControllerConfig()
	cc.MaxChunkChars = c.MaxChunkChars
	cc.SpeedReadWords = c.SpeedRead.WordsPerChunk
	if c.Policy.DuplicateWindow > 0 {
		cc.DuplicateWindow = c.Policy.DuplicateWindow
	}
	cc.RetryRateStep = c.Policy.RetryRateStep
	cc.RetryRateFloor = c.Policy.RetryRateFloor
	if c.Policy.BenignErrorPattern != "" {
		cc.BenignErrorPattern = c.Policy.BenignErrorPattern
	}
	if c.Policy.AdvanceDelay > 0 {
		cc.AdvanceDelay = c.Policy.AdvanceDelay
	}
	if c.Policy.StopSettle > 0 {
		cc.StopSettle = c.Policy.StopSettle
	}
	if c.Policy.FallbackGrace > 0 {
		cc.FallbackGrace = c.Policy.FallbackGrace
	}
	if c.Stats.FlushEvery > 0 {
		cc.StatsFlushEvery = c.Stats.FlushEvery
	}
	return cc
}
