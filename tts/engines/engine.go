// Package engines builds speech engines from configuration and provides
// helpers shared by them: voice matching and primary/secondary fallback.
package engines

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"time"

	"github.com/charmbracelet/log"

	"github.com/clarityread/readaloud/tts"
	"github.com/clarityread/readaloud/tts/cache"
	"github.com/clarityread/readaloud/tts/engines/command"
	"github.com/clarityread/readaloud/tts/engines/google"
	"github.com/clarityread/readaloud/tts/engines/mock"
	"github.com/clarityread/readaloud/tts/engines/pcm"
	"github.com/clarityread/readaloud/tts/engines/piper"
)

// fallbackFailures is how many real failures of the primary engine in a
// row switch "auto" over to the secondary one.
const fallbackFailures = 3

// New builds the engine named by cfg.Engine. The returned engine should
// be released with Close.
func New(ctx context.Context, cfg tts.Config, logger *log.Logger) (tts.Engine, error) {
	if logger == nil {
		logger = log.Default()
	}

	switch cfg.Engine {
	case "mock":
		return mock.New(mock.Options{
			Auto:           true,
			WordsPerMinute: cfg.Mock.WordsPerMinute,
			Boundaries:     cfg.Mock.Boundaries,
			FailureRate:    cfg.Mock.FailureRate,
		}), nil

	case "command":
		return newCommand(cfg, logger), nil

	case "piper":
		return newPiper(cfg, logger)

	case "google":
		synth, err := google.New(ctx, google.Config{
			CredentialsFile: cfg.Google.CredentialsFile,
			LanguageCode:    cfg.Google.LanguageCode,
			VoiceName:       cfg.Google.VoiceName,
			SampleRate:      cfg.Google.SampleRate,
			Logger:          logger.WithPrefix("google"),
		})
		if err != nil {
			return nil, err
		}
		return newPCM(synth, cfg, cfg.Google.Timeout, logger)

	case "auto", "":
		primary, err := newPiper(cfg, logger)
		if err != nil {
			return nil, err
		}
		secondary := newCommand(cfg, logger)
		benign, err := regexp.Compile(cfg.Policy.BenignErrorPattern)
		if err != nil {
			logger.Warn("bad benign error pattern, using default", "pattern", cfg.Policy.BenignErrorPattern, "err", err)
			benign = nil
		}
		return NewFallbackEngine(primary, secondary, fallbackFailures, benign, logger.WithPrefix("fallback")), nil
	}

	return nil, fmt.Errorf("%w: unknown engine %q", tts.ErrInvalidConfig, cfg.Engine)
}

func newCommand(cfg tts.Config, logger *log.Logger) *command.Engine {
	return command.New(command.Options{
		Binary:             cfg.Command.Binary,
		MaxSpawnsPerSecond: cfg.Command.MaxSpawnsPerSecond,
		Logger:             logger.WithPrefix("command"),
	})
}

func newPiper(cfg tts.Config, logger *log.Logger) (*pcm.Engine, error) {
	synth := piper.New(piper.Config{
		Binary:     cfg.Piper.Binary,
		Model:      cfg.Piper.Model,
		SpeakerID:  cfg.Piper.SpeakerID,
		SampleRate: cfg.Piper.SampleRate,
	})
	return newPCM(synth, cfg, cfg.Piper.Timeout, logger)
}

func newPCM(synth pcm.Synthesizer, cfg tts.Config, timeout time.Duration, logger *log.Logger) (*pcm.Engine, error) {
	opts := pcm.Options{Timeout: timeout, Logger: logger.WithPrefix(synth.Name())}
	if cfg.Cache.Enabled && cfg.Cache.Dir != "" {
		c, err := cache.Open(cfg.Cache.Dir, cfg.Cache.MaxSizeMB<<20)
		if err != nil {
			return nil, fmt.Errorf("failed to open audio cache: %w", err)
		}
		opts.Cache = c
	}
	return pcm.New(synth, opts), nil
}

// Close releases an engine built by New.
func Close(e tts.Engine) error {
	if c, ok := e.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Close closes both engines.
func (f *FallbackEngine) Close() error {
	return errors.Join(Close(f.primary), Close(f.fallback))
}
