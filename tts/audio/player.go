// Package audio plays raw PCM through the system audio device.
package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// ErrEmpty is returned when asked to play no audio.
var ErrEmpty = errors.New("audio data is empty")

// Format describes signed 16-bit little endian PCM.
type Format struct {
	SampleRate int
	Channels   int
}

// DefaultFormat is the format most local voices produce.
func DefaultFormat() Format {
	return Format{SampleRate: 22050, Channels: 1}
}

// Validate checks the format is playable.
func (f Format) Validate() error {
	if f.SampleRate < 8000 || f.SampleRate > 96000 {
		return fmt.Errorf("sample rate must be between 8000 and 96000 Hz, got %d", f.SampleRate)
	}
	if f.Channels != 1 && f.Channels != 2 {
		return fmt.Errorf("channels must be 1 (mono) or 2 (stereo), got %d", f.Channels)
	}
	return nil
}

// Duration returns how long n bytes of audio play for.
func (f Format) Duration(n int) time.Duration {
	frame := 2 * f.Channels
	if frame == 0 || f.SampleRate == 0 {
		return 0
	}
	return time.Duration(n/frame) * time.Second / time.Duration(f.SampleRate)
}

// Player plays one clip at a time. The audio device allows a single
// context per process, so create one Player and share it.
type Player struct {
	ctx    *oto.Context
	format Format
	poll   time.Duration

	mu      sync.Mutex
	current *oto.Player
	paused  bool
}

// NewPlayer opens the audio device.
func NewPlayer(format Format) (*Player, error) {
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("invalid format: %w", err)
	}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   format.SampleRate,
		ChannelCount: format.Channels,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-ready

	return &Player{ctx: ctx, format: format, poll: 20 * time.Millisecond}, nil
}

// Format returns the format the device was opened with.
func (p *Player) Format() Format { return p.format }

// Play blocks until pcm has been played or ctx is done. A paused clip
// keeps Play blocked until it is resumed.
func (p *Player) Play(ctx context.Context, pcm []byte) error {
	if len(pcm) == 0 {
		return ErrEmpty
	}

	// The reader must own its bytes for the whole playback.
	data := make([]byte, len(pcm))
	copy(data, pcm)

	pl := p.ctx.NewPlayer(bytes.NewReader(data))
	p.mu.Lock()
	if p.current != nil {
		p.current.Pause()
	}
	p.current = pl
	p.paused = false
	pl.Play()
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		if p.current == pl {
			p.current = nil
			p.paused = false
		}
		p.mu.Unlock()
		_ = pl.Close()
	}()

	ticker := time.NewTicker(p.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			pl.Pause()
			return ctx.Err()
		case <-ticker.C:
			p.mu.Lock()
			done := p.current != pl || (!p.paused && !pl.IsPlaying())
			p.mu.Unlock()
			if done {
				return pl.Err()
			}
		}
	}
}

// Pause suspends the current clip.
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != nil && !p.paused {
		p.current.Pause()
		p.paused = true
	}
}

// Resume continues a paused clip.
func (p *Player) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != nil && p.paused {
		p.current.Play()
		p.paused = false
	}
}

// Stop halts the current clip; its Play call returns.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != nil {
		p.current.Pause()
		p.current = nil
		p.paused = false
	}
}
