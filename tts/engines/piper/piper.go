// Package piper synthesizes speech with the Piper command line tool.
package piper

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mitchellh/go-homedir"

	"github.com/clarityread/readaloud/tts"
	"github.com/clarityread/readaloud/tts/audio"
	"github.com/clarityread/readaloud/tts/engines/pcm"
)

// Config configures the Piper synthesizer.
type Config struct {
	// Binary is the piper executable; looked up in common places when empty.
	Binary string
	// Model is a model name or a path to an .onnx file.
	Model      string
	SpeakerID  int
	SampleRate int
}

// Synthesizer runs one piper process per clip.
type Synthesizer struct {
	cfg    Config
	binary string
}

// New creates a Piper synthesizer.
func New(cfg Config) *Synthesizer {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 22050
	}
	if m, err := homedir.Expand(cfg.Model); err == nil {
		cfg.Model = m
	}
	return &Synthesizer{cfg: cfg, binary: findBinary(cfg.Binary)}
}

// Name implements pcm.Synthesizer.
func (s *Synthesizer) Name() string { return "piper" }

// Format implements pcm.Synthesizer.
func (s *Synthesizer) Format() audio.Format {
	return audio.Format{SampleRate: s.cfg.SampleRate, Channels: 1}
}

// Available implements pcm.Synthesizer.
func (s *Synthesizer) Available() bool {
	return s.binary != "" && s.cfg.Model != ""
}

// Voices implements pcm.Synthesizer. A piper model is a single voice.
func (s *Synthesizer) Voices() []tts.Voice {
	name := ModelName(s.cfg.Model)
	return []tts.Voice{{
		ID:       name,
		Name:     name,
		Language: ModelLanguage(name),
		Default:  true,
	}}
}

// Args returns the piper arguments for req.
func (s *Synthesizer) Args(req pcm.Request) []string {
	args := []string{"--model", s.cfg.Model, "--output-raw", "--quiet"}
	if s.cfg.SpeakerID > 0 {
		args = append(args, "--speaker", strconv.Itoa(s.cfg.SpeakerID))
	}
	if req.Rate > 0 && req.Rate != 1 {
		// Piper stretches phoneme length; a faster rate is a shorter length.
		args = append(args, "--length_scale", strconv.FormatFloat(1/req.Rate, 'f', 3, 64))
	}
	return args
}

// Synthesize implements pcm.Synthesizer.
func (s *Synthesizer) Synthesize(ctx context.Context, req pcm.Request) ([]byte, error) {
	if s.binary == "" {
		return nil, fmt.Errorf("piper binary not found")
	}

	cmd := exec.CommandContext(ctx, s.binary, s.Args(req)...)
	cmd.Stdin = strings.NewReader(strings.ReplaceAll(req.Text, "\n", " ") + "\n")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("piper failed: %w: %s", err, lastLine(msg))
		}
		return nil, fmt.Errorf("piper failed: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("piper generated no audio")
	}
	// Drop a trailing odd byte so samples stay aligned.
	return out[:len(out)&^1], nil
}

// ModelName returns the voice name of a model path, e.g.
// "en_US-lessac-medium" for "/voices/en_US-lessac-medium.onnx".
func ModelName(model string) string {
	if model == "" {
		return "default"
	}
	name := filepath.Base(model)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// ModelLanguage derives a BCP 47 tag from a piper voice name.
func ModelLanguage(name string) string {
	lang, _, _ := strings.Cut(name, "-")
	base, _, _ := strings.Cut(lang, "_")
	if len(base) < 2 || len(base) > 3 {
		return ""
	}
	return strings.ReplaceAll(lang, "_", "-")
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// findBinary looks for piper in the configured path, then on PATH, then in
// common install locations.
func findBinary(configured string) string {
	locations := []string{"piper"}
	if configured != "" {
		if p, err := homedir.Expand(configured); err == nil {
			configured = p
		}
		locations = []string{configured}
	} else if home, err := os.UserHomeDir(); err == nil {
		locations = append(locations,
			filepath.Join(home, ".local", "bin", "piper"),
			filepath.Join(home, "bin", "piper"),
			"/usr/local/bin/piper",
		)
	}

	for _, loc := range locations {
		if path, err := exec.LookPath(loc); err == nil {
			return path
		}
	}
	return ""
}
