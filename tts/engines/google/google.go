// Package google synthesizes speech with Google Cloud Text-to-Speech.
package google

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"github.com/charmbracelet/log"
	"github.com/mitchellh/go-homedir"
	"google.golang.org/api/option"
	texttospeechpb "google.golang.org/genproto/googleapis/cloud/texttospeech/v1"

	"github.com/clarityread/readaloud/tts"
	"github.com/clarityread/readaloud/tts/audio"
	"github.com/clarityread/readaloud/tts/engines/pcm"
)

// Config configures the Google synthesizer.
type Config struct {
	CredentialsFile string
	LanguageCode    string
	VoiceName       string
	SampleRate      int
	Logger          *log.Logger
}

// client is the part of the Cloud API the synthesizer uses.
type client interface {
	SynthesizeSpeech(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest) (*texttospeechpb.SynthesizeSpeechResponse, error)
	ListVoices(ctx context.Context, req *texttospeechpb.ListVoicesRequest) (*texttospeechpb.ListVoicesResponse, error)
	Close() error
}

type apiClient struct{ c *texttospeech.Client }

func (a apiClient) SynthesizeSpeech(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest) (*texttospeechpb.SynthesizeSpeechResponse, error) {
	return a.c.SynthesizeSpeech(ctx, req)
}

func (a apiClient) ListVoices(ctx context.Context, req *texttospeechpb.ListVoicesRequest) (*texttospeechpb.ListVoicesResponse, error) {
	return a.c.ListVoices(ctx, req)
}

func (a apiClient) Close() error { return a.c.Close() }

// Synthesizer renders LINEAR16 audio through the Cloud API.
type Synthesizer struct {
	client client
	cfg    Config
	logger *log.Logger

	voicesOnce sync.Once
	voices     []tts.Voice
}

// New connects to the Cloud API. Credentials come from CredentialsFile or
// the application default credentials.
func New(ctx context.Context, cfg Config) (*Synthesizer, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		path, err := homedir.Expand(cfg.CredentialsFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, option.WithCredentialsFile(path))
	}

	c, err := texttospeech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create TTS client: %w", err)
	}
	return newSynthesizer(apiClient{c}, cfg), nil
}

func newSynthesizer(c client, cfg Config) *Synthesizer {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 24000
	}
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = "en-US"
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default().WithPrefix("google")
	}
	return &Synthesizer{client: c, cfg: cfg, logger: cfg.Logger}
}

// Name implements pcm.Synthesizer.
func (s *Synthesizer) Name() string { return "google" }

// Format implements pcm.Synthesizer.
func (s *Synthesizer) Format() audio.Format {
	return audio.Format{SampleRate: s.cfg.SampleRate, Channels: 1}
}

// Available implements pcm.Synthesizer.
func (s *Synthesizer) Available() bool { return s.client != nil }

// Request builds the API request for req.
func (s *Synthesizer) Request(req pcm.Request) *texttospeechpb.SynthesizeSpeechRequest {
	name := s.cfg.VoiceName
	if req.Voice != "" {
		name = req.Voice
	}
	lang := s.cfg.LanguageCode
	if l := voiceLanguage(name); l != "" {
		lang = l
	}

	cfg := &texttospeechpb.AudioConfig{
		AudioEncoding:   texttospeechpb.AudioEncoding_LINEAR16,
		SampleRateHertz: int32(s.cfg.SampleRate),
	}
	// Chirp voices reject rate and pitch.
	if !strings.Contains(strings.ToLower(name), "chirp") {
		if req.Rate > 0 {
			cfg.SpeakingRate = req.Rate
		}
		if req.Pitch > 0 {
			cfg.Pitch = semitones(req.Pitch)
		}
	}

	return &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: req.Text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: lang,
			Name:         name,
		},
		AudioConfig: cfg,
	}
}

// Synthesize implements pcm.Synthesizer.
func (s *Synthesizer) Synthesize(ctx context.Context, req pcm.Request) ([]byte, error) {
	resp, err := s.client.SynthesizeSpeech(ctx, s.Request(req))
	if err != nil {
		return nil, fmt.Errorf("failed to synthesize: %w", err)
	}
	return StripWAV(resp.GetAudioContent()), nil
}

// Voices implements pcm.Synthesizer. The list is fetched once.
func (s *Synthesizer) Voices() []tts.Voice {
	s.voicesOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		resp, err := s.client.ListVoices(ctx, &texttospeechpb.ListVoicesRequest{})
		if err != nil {
			s.logger.Warn("failed to list voices", "err", err)
			s.voices = []tts.Voice{{ID: s.cfg.VoiceName, Name: s.cfg.VoiceName, Language: s.cfg.LanguageCode, Default: true}}
			return
		}
		for _, v := range resp.GetVoices() {
			lang := ""
			if codes := v.GetLanguageCodes(); len(codes) > 0 {
				lang = codes[0]
			}
			s.voices = append(s.voices, tts.Voice{
				ID:       v.GetName(),
				Name:     v.GetName(),
				Language: lang,
				Default:  v.GetName() == s.cfg.VoiceName,
			})
		}
	})
	return s.voices
}

// Close releases the API connection.
func (s *Synthesizer) Close() error { return s.client.Close() }

// semitones maps a pitch multiplier onto the API's semitone scale.
func semitones(pitch float64) float64 {
	st := 12 * math.Log2(pitch)
	return math.Max(-20, math.Min(20, st))
}

// voiceLanguage returns "en-US" for "en-US-Standard-C".
func voiceLanguage(name string) string {
	parts := strings.SplitN(name, "-", 3)
	if len(parts) < 3 {
		return ""
	}
	return parts[0] + "-" + parts[1]
}

// StripWAV returns the PCM samples of a RIFF/WAVE clip. Data that isn't
// a WAV file is returned unchanged.
func StripWAV(b []byte) []byte {
	if len(b) < 12 || !bytes.Equal(b[:4], []byte("RIFF")) || !bytes.Equal(b[8:12], []byte("WAVE")) {
		return b
	}
	for off := 12; off+8 <= len(b); {
		id := string(b[off : off+4])
		size := int(binary.LittleEndian.Uint32(b[off+4 : off+8]))
		off += 8
		if id == "data" {
			end := min(off+size, len(b))
			return b[off:end]
		}
		off += size + size&1
	}
	return nil
}
