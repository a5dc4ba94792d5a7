package tts

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Player plays an encoded audio file until done or ctx ends.
type Player interface {
	PlayFile(ctx context.Context, path string) error
}

// MediaSynth asks a generator (edge-tts and the like) to render the text
// into a temporary file and plays the result.
type MediaSynth struct {
	Command string
	// Args must contain {out}; {text} and {voice} are optional.
	Args   []string
	Voice  string
	Format string
	Player Player
}

func (s *MediaSynth) Speak(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if s.Command == "" {
		return ErrEmptyCommand
	}
	if s.Player == nil {
		return fmt.Errorf("tts: media synth without player")
	}

	format := s.Format
	if format == "" {
		format = "mp3"
	}

	dir, err := os.MkdirTemp("", "vist-tts-*")
	if err != nil {
		return fmt.Errorf("temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	out := filepath.Join(dir, "speech."+format)
	if err := s.render(ctx, text, out); err != nil {
		return err
	}

	if err := s.Player.PlayFile(ctx, out); err != nil {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		return fmt.Errorf("play: %w", err)
	}
	return nil
}

func (s *MediaSynth) render(ctx context.Context, text, out string) error {
	cmd := exec.CommandContext(ctx, s.Command, expandArgs(s.Args, text, out, s.Voice)...)
	if !usesPlaceholder(s.Args, "{text}") {
		cmd.Stdin = strings.NewReader(text)
	}
	cmd.WaitDelay = killGrace

	if msg, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		return fmt.Errorf("%s: %w: %s", s.Command, err, strings.TrimSpace(string(msg)))
	}

	if st, err := os.Stat(out); err != nil || st.Size() == 0 {
		return fmt.Errorf("%s produced no audio", s.Command)
	}
	return nil
}
