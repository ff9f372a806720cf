package tts

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// LoadConfigFromViper loads read-aloud configuration from Viper.
func LoadConfigFromViper() (Config, error) {
	cfg := DefaultConfig()

	if viper.IsSet("tts.engine") {
		cfg.Engine = viper.GetString("tts.engine")
	}
	if viper.IsSet("tts.voice") {
		cfg.Voice = viper.GetString("tts.voice")
	}
	if viper.IsSet("tts.language") {
		cfg.Language = viper.GetString("tts.language")
	}
	if viper.IsSet("tts.rate") {
		cfg.Rate = viper.GetFloat64("tts.rate")
	}
	if viper.IsSet("tts.pitch") {
		cfg.Pitch = viper.GetFloat64("tts.pitch")
	}
	if viper.IsSet("tts.highlight") {
		cfg.Highlight = viper.GetBool("tts.highlight")
	}
	if viper.IsSet("tts.max_chunk_chars") {
		cfg.MaxChunkChars = viper.GetInt("tts.max_chunk_chars")
	}

	if viper.IsSet("tts.speed_read.words_per_chunk") {
		cfg.SpeedRead.WordsPerChunk = viper.GetInt("tts.speed_read.words_per_chunk")
	}
	if viper.IsSet("tts.speed_read.rate") {
		cfg.SpeedRead.Rate = viper.GetFloat64("tts.speed_read.rate")
	}

	cfg.Policy = loadPolicyConfig(cfg.Policy)

	if viper.IsSet("tts.stats.enabled") {
		cfg.Stats.Enabled = viper.GetBool("tts.stats.enabled")
	}
	if viper.IsSet("tts.stats.path") {
		cfg.Stats.Path = viper.GetString("tts.stats.path")
	}
	cfg.Stats.FlushEvery = durationOr("tts.stats.flush_every", cfg.Stats.FlushEvery)

	if viper.IsSet("tts.cache.enabled") {
		cfg.Cache.Enabled = viper.GetBool("tts.cache.enabled")
	}
	if viper.IsSet("tts.cache.dir") {
		cfg.Cache.Dir = viper.GetString("tts.cache.dir")
	}
	if viper.IsSet("tts.cache.max_size_mb") {
		cfg.Cache.MaxSizeMB = viper.GetInt64("tts.cache.max_size_mb")
	}

	cfg.Command = loadCommandConfig(cfg.Command)
	cfg.Piper = loadPiperConfig(cfg.Piper)
	cfg.Google = loadGoogleConfig(cfg.Google)
	cfg.Mock = loadMockConfig(cfg.Mock)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid read-aloud configuration: %w", err)
	}

	return cfg, nil
}

func loadPolicyConfig(cfg PolicyConfig) PolicyConfig {
	cfg.DuplicateWindow = durationOr("tts.policy.duplicate_window", cfg.DuplicateWindow)
	if viper.IsSet("tts.policy.retry_rate_step") {
		cfg.RetryRateStep = viper.GetFloat64("tts.policy.retry_rate_step")
	}
	if viper.IsSet("tts.policy.retry_rate_floor") {
		cfg.RetryRateFloor = viper.GetFloat64("tts.policy.retry_rate_floor")
	}
	if viper.IsSet("tts.policy.benign_error_pattern") {
		cfg.BenignErrorPattern = viper.GetString("tts.policy.benign_error_pattern")
	}
	cfg.AdvanceDelay = durationOr("tts.policy.advance_delay", cfg.AdvanceDelay)
	cfg.StopSettle = durationOr("tts.policy.stop_settle", cfg.StopSettle)
	cfg.FallbackGrace = durationOr("tts.policy.fallback_grace", cfg.FallbackGrace)
	return cfg
}

func loadCommandConfig(cfg CommandConfig) CommandConfig {
	if viper.IsSet("tts.command.binary") {
		cfg.Binary = viper.GetString("tts.command.binary")
	}
	if viper.IsSet("tts.command.max_spawns_per_second") {
		cfg.MaxSpawnsPerSecond = viper.GetFloat64("tts.command.max_spawns_per_second")
	}
	return cfg
}

func loadPiperConfig(cfg PiperConfig) PiperConfig {
	if viper.IsSet("tts.piper.binary") {
		cfg.Binary = viper.GetString("tts.piper.binary")
	}
	if viper.IsSet("tts.piper.model") {
		cfg.Model = viper.GetString("tts.piper.model")
	}
	if viper.IsSet("tts.piper.speaker_id") {
		cfg.SpeakerID = viper.GetInt("tts.piper.speaker_id")
	}
	if viper.IsSet("tts.piper.sample_rate") {
		cfg.SampleRate = viper.GetInt("tts.piper.sample_rate")
	}
	cfg.Timeout = durationOr("tts.piper.timeout", cfg.Timeout)
	return cfg
}

func loadGoogleConfig(cfg GoogleConfig) GoogleConfig {
	if viper.IsSet("tts.google.credentials_file") {
		cfg.CredentialsFile = viper.GetString("tts.google.credentials_file")
	}
	if viper.IsSet("tts.google.language_code") {
		cfg.LanguageCode = viper.GetString("tts.google.language_code")
	}
	if viper.IsSet("tts.google.voice_name") {
		cfg.VoiceName = viper.GetString("tts.google.voice_name")
	}
	if viper.IsSet("tts.google.sample_rate") {
		cfg.SampleRate = viper.GetInt("tts.google.sample_rate")
	}
	cfg.Timeout = durationOr("tts.google.timeout", cfg.Timeout)
	return cfg
}

func loadMockConfig(cfg MockConfig) MockConfig {
	if viper.IsSet("tts.mock.words_per_minute") {
		cfg.WordsPerMinute = viper.GetInt("tts.mock.words_per_minute")
	}
	if viper.IsSet("tts.mock.boundaries") {
		cfg.Boundaries = viper.GetBool("tts.mock.boundaries")
	}
	if viper.IsSet("tts.mock.failure_rate") {
		cfg.FailureRate = viper.GetFloat64("tts.mock.failure_rate")
	}
	return cfg
}

// durationOr reads key as a duration string, keeping def when unset or
// unparsable.
func durationOr(key string, def time.Duration) time.Duration {
	if !viper.IsSet(key) {
		return def
	}
	if d, err := time.ParseDuration(viper.GetString(key)); err == nil {
		return d
	}
	return def
}

// SetDefaults sets default values in Viper for the read-aloud configuration.
func SetDefaults() {
	defaults := DefaultConfig()

	viper.SetDefault("tts.engine", defaults.Engine)
	viper.SetDefault("tts.language", defaults.Language)
	viper.SetDefault("tts.rate", defaults.Rate)
	viper.SetDefault("tts.pitch", defaults.Pitch)
	viper.SetDefault("tts.highlight", defaults.Highlight)
	viper.SetDefault("tts.max_chunk_chars", defaults.MaxChunkChars)

	viper.SetDefault("tts.speed_read.words_per_chunk", defaults.SpeedRead.WordsPerChunk)
	viper.SetDefault("tts.speed_read.rate", defaults.SpeedRead.Rate)

	viper.SetDefault("tts.policy.duplicate_window", defaults.Policy.DuplicateWindow.String())
	viper.SetDefault("tts.policy.retry_rate_step", defaults.Policy.RetryRateStep)
	viper.SetDefault("tts.policy.retry_rate_floor", defaults.Policy.RetryRateFloor)
	viper.SetDefault("tts.policy.benign_error_pattern", defaults.Policy.BenignErrorPattern)
	viper.SetDefault("tts.policy.advance_delay", defaults.Policy.AdvanceDelay.String())
	viper.SetDefault("tts.policy.stop_settle", defaults.Policy.StopSettle.String())
	viper.SetDefault("tts.policy.fallback_grace", defaults.Policy.FallbackGrace.String())

	viper.SetDefault("tts.stats.enabled", defaults.Stats.Enabled)
	viper.SetDefault("tts.stats.flush_every", defaults.Stats.FlushEvery.String())

	viper.SetDefault("tts.cache.enabled", defaults.Cache.Enabled)
	viper.SetDefault("tts.cache.max_size_mb", defaults.Cache.MaxSizeMB)

	viper.SetDefault("tts.command.max_spawns_per_second", defaults.Command.MaxSpawnsPerSecond)

	viper.SetDefault("tts.piper.binary", defaults.Piper.Binary)
	viper.SetDefault("tts.piper.model", defaults.Piper.Model)
	viper.SetDefault("tts.piper.sample_rate", defaults.Piper.SampleRate)
	viper.SetDefault("tts.piper.timeout", defaults.Piper.Timeout.String())

	viper.SetDefault("tts.google.language_code", defaults.Google.LanguageCode)
	viper.SetDefault("tts.google.voice_name", defaults.Google.VoiceName)
	viper.SetDefault("tts.google.sample_rate", defaults.Google.SampleRate)
	viper.SetDefault("tts.google.timeout", defaults.Google.Timeout.String())

	viper.SetDefault("tts.mock.words_per_minute", defaults.Mock.WordsPerMinute)
	viper.SetDefault("tts.mock.boundaries", defaults.Mock.Boundaries)
	viper.SetDefault("tts.mock.failure_rate", defaults.Mock.FailureRate)
}
