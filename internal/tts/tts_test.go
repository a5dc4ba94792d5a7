package tts

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func requireSh(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestCommandSynthStdin(t *testing.T) {
	requireSh(t)
	out := filepath.Join(t.TempDir(), "said.txt")
	s := &CommandSynth{Command: "sh", Args: []string{"-c", "cat > " + out}}

	if err := s.Speak(context.Background(), "xin chào"); err != nil {
		t.Fatalf("speak: %v", err)
	}
	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "xin chào" {
		t.Fatalf("helper got %q", got)
	}
}

func TestCommandSynthFailure(t *testing.T) {
	requireSh(t)
	s := &CommandSynth{Command: "sh", Args: []string{"-c", "echo broken >&2; exit 3"}}
	err := s.Speak(context.Background(), "hello")
	if err == nil || !strings.Contains(err.Error(), "broken") {
		t.Fatalf("expected stderr in error, got %v", err)
	}
}

func TestCommandSynthCancel(t *testing.T) {
	requireSh(t)
	s := &CommandSynth{Command: "sh", Args: []string{"-c", "sleep 5"}}
	stop := errors.New("superseded")
	ctx, cancel := context.WithCancelCause(context.Background())
	time.AfterFunc(50*time.Millisecond, func() { cancel(stop) })

	start := time.Now()
	err := s.Speak(ctx, "long text")
	if !errors.Is(err, stop) {
		t.Fatalf("expected cancel cause, got %v", err)
	}
	if time.Since(start) > 3*time.Second {
		t.Fatalf("helper was not killed promptly")
	}
}

func TestCommandSynthSkipsBlank(t *testing.T) {
	s := &CommandSynth{}
	if err := s.Speak(context.Background(), "   "); err != nil {
		t.Fatalf("blank text should be a no-op, got %v", err)
	}
	if err := s.Speak(context.Background(), "x"); !errors.Is(err, ErrEmptyCommand) {
		t.Fatalf("expected ErrEmptyCommand, got %v", err)
	}
}

type recordingPlayer struct {
	path string
	data string
}

func (p *recordingPlayer) PlayFile(_ context.Context, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	p.path, p.data = path, string(b)
	return nil
}

func TestMediaSynthRendersAndPlays(t *testing.T) {
	requireSh(t)
	p := &recordingPlayer{}
	s := &MediaSynth{
		Command: "sh",
		Args:    []string{"-c", `printf '%s|%s' "$1" "$2" > "$3"`, "sh", "{text}", "{voice}", "{out}"},
		Voice:   "vi-VN-HoaiMyNeural",
		Player:  p,
	}

	if err := s.Speak(context.Background(), "hello"); err != nil {
		t.Fatalf("speak: %v", err)
	}
	if p.data != "hello|vi-VN-HoaiMyNeural" {
		t.Fatalf("unexpected rendered data %q", p.data)
	}
	if filepath.Ext(p.path) != ".mp3" {
		t.Fatalf("expected default mp3 extension, got %s", p.path)
	}
	if _, err := os.Stat(p.path); !os.IsNotExist(err) {
		t.Fatalf("temporary audio should be removed")
	}
}

func TestMediaSynthNoOutput(t *testing.T) {
	requireSh(t)
	s := &MediaSynth{Command: "sh", Args: []string{"-c", "true", "{out}"}, Player: &recordingPlayer{}}
	if err := s.Speak(context.Background(), "hello"); err == nil {
		t.Fatalf("expected error when nothing was rendered")
	}
}

func TestExpandArgs(t *testing.T) {
	got := expandArgs([]string{"--text={text}", "{out}", "-v", "{voice}"}, "hi", "/tmp/o.mp3", "en")
	want := []string{"--text=hi", "/tmp/o.mp3", "-v", "en"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("arg %d: got %q want %q", i, got[i], want[i])
		}
	}
}
