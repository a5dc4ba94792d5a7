package tts

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CommandSynth runs a helper program that speaks by itself. The text goes to
// the helper's stdin unless an argument carries {text}; the helper is killed
// when ctx ends.
type CommandSynth struct {
	Command string
	Args    []string
	Voice   string
}

func (s *CommandSynth) Speak(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if s.Command == "" {
		return ErrEmptyCommand
	}

	cmd := exec.CommandContext(ctx, s.Command, expandArgs(s.Args, text, "", s.Voice)...)
	if !usesPlaceholder(s.Args, "{text}") {
		cmd.Stdin = strings.NewReader(text)
	}
	cmd.WaitDelay = killGrace
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s: %w: %s", s.Command, err, msg)
		}
		return fmt.Errorf("%s: %w", s.Command, err)
	}
	return nil
}
