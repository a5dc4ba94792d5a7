package audio

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
)

// PlaybackRate is the rate the speaker is opened at; other rates are resampled.
const PlaybackRate beep.SampleRate = 44100

// Player plays encoded audio through the default output device.
type Player struct {
	once    sync.Once
	initErr error
}

func NewPlayer() *Player {
	return &Player{}
}

func (p *Player) init() error {
	p.once.Do(func() {
		p.initErr = speaker.Init(PlaybackRate, PlaybackRate.N(time.Second/10))
	})
	return p.initErr
}

// PlayFile decodes the file by extension and blocks until it finished playing
// or ctx ends.
func (p *Player) PlayFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	return p.Play(ctx, f, FormatOf(path))
}

// Play takes ownership of r.
func (p *Player) Play(ctx context.Context, r io.ReadCloser, format string) error {
	streamer, fmtInfo, err := Decode(r, format)
	if err != nil {
		r.Close()
		return err
	}
	defer streamer.Close()

	if err := p.init(); err != nil {
		return fmt.Errorf("speaker init: %w", err)
	}

	var s beep.Streamer = streamer
	if fmtInfo.SampleRate != PlaybackRate {
		s = beep.Resample(4, fmtInfo.SampleRate, PlaybackRate, streamer)
	}

	done := make(chan struct{})
	var closeOnce sync.Once
	speaker.Play(beep.Seq(s, beep.Callback(func() {
		closeOnce.Do(func() { close(done) })
	})))

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		speaker.Clear()
		return ctx.Err()
	}
}

// Decode picks a decoder for the given format name ("mp3" or "wav").
func Decode(r io.ReadCloser, format string) (beep.StreamSeekCloser, beep.Format, error) {
	switch strings.ToLower(format) {
	case "mp3":
		s, f, err := mp3.Decode(r)
		if err != nil {
			return nil, beep.Format{}, fmt.Errorf("decode mp3: %w", err)
		}
		return s, f, nil
	case "wav":
		s, f, err := wav.Decode(r)
		if err != nil {
			return nil, beep.Format{}, fmt.Errorf("decode wav: %w", err)
		}
		return s, f, nil
	default:
		return nil, beep.Format{}, fmt.Errorf("unsupported audio format %q", format)
	}
}

// FormatOf returns the format name implied by a file extension.
func FormatOf(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}
