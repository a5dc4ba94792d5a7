//go:build whisper

package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"vist/internal/audio"
)

type Options struct {
	Language      string // "auto", "en", "vi", ...
	TranslateToEn bool
	Threads       int // <=0 means runtime.NumCPU()
	InitialPrompt string
	BeamSize      int // 0 keeps greedy decoding
	SplitOnWord   bool
	Temperature   float32
	Duration      time.Duration
}

type Segment struct {
	Text     string
	StartSec float64
	EndSec   float64
}

type Result struct {
	Text     string
	Segments []Segment
	Language string
}

// Transcriber wraps a loaded whisper.cpp model.
type Transcriber struct {
	mu    sync.Mutex
	model whisper.Model
}

func NewTranscriber(modelPath string) (*Transcriber, error) {
	if modelPath == "" {
		return nil, errors.New("empty model path")
	}
	m, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	return &Transcriber{model: m}, nil
}

func (t *Transcriber) Close() error {
	if t.model == nil {
		return nil
	}
	return t.model.Close()
}

// TranscribePCM expects mono float32 samples at 16 kHz in [-1, 1].
func (t *Transcriber) TranscribePCM(ctx context.Context, pcm16k []float32, opt Options) (Result, error) {
	if t.model == nil {
		return Result{}, errors.New("nil model")
	}
	if len(pcm16k) == 0 {
		return Result{}, ErrNoSpeech
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	wctx, err := t.model.NewContext()
	if err != nil {
		return Result{}, fmt.Errorf("new context: %w", err)
	}

	if opt.Language == "" {
		opt.Language = "auto"
	}
	if err := wctx.SetLanguage(opt.Language); err != nil {
		return Result{}, fmt.Errorf("set language: %w", err)
	}
	wctx.SetTranslate(opt.TranslateToEn)

	threads := opt.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	wctx.SetThreads(uint(threads))

	if opt.Duration > 0 {
		wctx.SetDuration(opt.Duration)
	}
	if opt.SplitOnWord {
		wctx.SetSplitOnWord(true)
	}
	if opt.BeamSize > 0 {
		wctx.SetBeamSize(opt.BeamSize)
	}
	if opt.InitialPrompt != "" {
		wctx.SetInitialPrompt(opt.InitialPrompt)
	}
	if opt.Temperature != 0 {
		wctx.SetTemperature(opt.Temperature)
	}

	if err := wctx.Process(pcm16k, nil, nil, nil); err != nil {
		return Result{}, fmt.Errorf("process: %w", err)
	}

	var (
		segs  []Segment
		parts []string
	)
	for {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		s, err := wctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Result{}, fmt.Errorf("next segment: %w", err)
		}
		segs = append(segs, Segment{Text: s.Text, StartSec: s.Start.Seconds(), EndSec: s.End.Seconds()})
		parts = append(parts, strings.TrimSpace(s.Text))
	}

	lang := wctx.DetectedLanguage()
	if lang == "" {
		lang = wctx.Language()
	}

	return Result{Text: strings.TrimSpace(strings.Join(parts, " ")), Segments: segs, Language: lang}, nil
}

// WhisperRecognizer records one utterance from the default microphone and
// transcribes it in process.
type WhisperRecognizer struct {
	Transcriber *Transcriber
	Recorder    *audio.Recorder
	VAD         audio.VAD
	Options     Options

	mu      sync.Mutex
	running bool
}

func (w *WhisperRecognizer) Recognize(ctx context.Context, onListening func()) (string, error) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return "", ErrBusy
	}
	w.running = true
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	pcm, err := w.Recorder.RecordUtterance(ctx, w.VAD, onListening)
	if err != nil {
		if errors.Is(err, audio.ErrDeviceUnavailable) {
			return "", fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
		return "", err
	}
	if len(pcm) == 0 {
		return "", ErrNoSpeech
	}

	res, err := w.Transcriber.TranscribePCM(ctx, pcm, w.Options)
	if err != nil {
		return "", err
	}
	if isBlankTranscript(res.Text) {
		return "", ErrNoSpeech
	}
	return res.Text, nil
}

// whisper emits bracketed annotations for silence and noise.
func isBlankTranscript(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return true
	}
	switch strings.ToLower(s) {
	case "[blank_audio]", "[silence]", "(silence)", "[music]", "[noise]":
		return true
	}
	return false
}
