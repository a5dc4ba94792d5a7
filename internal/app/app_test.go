package app

import (
	"context"
	"testing"

	"vist/internal/config"
	"vist/internal/tts"
)

type nopPlayer struct{}

func (nopPlayer) PlayFile(context.Context, string) error { return nil }

func TestNewSynth(t *testing.T) {
	if s := NewSynth(config.SynthConfig{Kind: config.SynthNone}, nopPlayer{}); s != nil {
		t.Fatalf("kind none must not build a synth, got %T", s)
	}
	if s := NewSynth(config.SynthConfig{}, nopPlayer{}); s != nil {
		t.Fatalf("empty kind must not build a synth, got %T", s)
	}

	m, ok := NewSynth(config.SynthConfig{Kind: config.SynthMedia, Command: "edge-tts", Format: "wav"}, nopPlayer{}).(*tts.MediaSynth)
	if !ok || m.Command != "edge-tts" || m.Format != "wav" || m.Player == nil {
		t.Fatalf("unexpected media synth %+v", m)
	}
	c, ok := NewSynth(config.SynthConfig{Kind: config.SynthCommand, Command: "say", Voice: "Alex"}, nil).(*tts.CommandSynth)
	if !ok || c.Command != "say" || c.Voice != "Alex" {
		t.Fatalf("unexpected command synth %+v", c)
	}
	if _, ok := NewSynth(config.SynthConfig{Kind: config.SynthEspeak}, nil).(*tts.Espeak); !ok {
		t.Fatalf("expected espeak synth")
	}
}

func TestBuild(t *testing.T) {
	cfg, err := config.DefaultConfig()
	if err != nil {
		t.Fatalf("defaults: %v", err)
	}
	cfg.Backend.UID = "u-1"
	cfg.Speech.Duck.Enabled = false

	a, err := Build(cfg, Options{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer a.Close()

	if a.Assistant == nil || a.Backend.UID() != "u-1" {
		t.Fatalf("unexpected app %+v", a)
	}
	msgs := a.Assistant.Messages()
	if len(msgs) != 1 || msgs[0].Text != "Hi there, how can I help you today?" {
		t.Fatalf("unexpected greeting %+v", msgs)
	}
}

func TestBuildRejectsBadNarration(t *testing.T) {
	cfg, _ := config.DefaultConfig()
	cfg.Assistant.Narrate = "whisper"
	if _, err := Build(cfg, Options{NoSpeech: true}); err == nil {
		t.Fatalf("expected narration mode error")
	}
}

func TestNewBackendRejectsBadURL(t *testing.T) {
	cfg, _ := config.DefaultConfig()
	cfg.Backend.URL = "localhost"
	if _, err := NewBackend(cfg); err == nil {
		t.Fatalf("expected url error")
	}
}
