//go:build !espeak

package tts

import "context"

// Espeak speaks through the espeak-ng binary.
type Espeak struct {
	Voice string
}

func NewEspeak(voice string) *Espeak {
	return &Espeak{Voice: voice}
}

func (e *Espeak) Speak(ctx context.Context, text string) error {
	args := []string{"--stdin"}
	if e.Voice != "" {
		args = append(args, "-v", e.Voice)
	}
	s := CommandSynth{Command: "espeak-ng", Args: args}
	return s.Speak(ctx, text)
}
