// Package app assembles an Assistant and its collaborators from configuration.
package app

import (
	"errors"
	"fmt"
	"log/slog"

	"vist/internal/assistant"
	"vist/internal/audio"
	"vist/internal/backend"
	"vist/internal/config"
	"vist/internal/conversation"
	"vist/internal/notify"
	"vist/internal/proxy"
	"vist/internal/speech"
	"vist/internal/tts"
	"vist/pkg/stt"
)

type App struct {
	Assistant *assistant.Assistant
	Backend   *backend.Client
	Player    *audio.Player
	Notifier  *notify.Notifier

	closers []func()
}

// Options adjust a build beyond the config file.
type Options struct {
	Logger *slog.Logger
	// NoSpeech leaves narration unconfigured, for quiet front ends.
	NoSpeech bool
}

// NewBackend builds the backend client, honouring backend.proxy and backend.timeout.
func NewBackend(cfg config.Config) (*backend.Client, error) {
	httpClient, err := proxy.NewClient(cfg.Backend.Proxy, cfg.Backend.Timeout)
	if err != nil {
		return nil, fmt.Errorf("proxy: %w", err)
	}
	return backend.New(cfg.Backend.URL, cfg.Backend.UID, httpClient)
}

func Build(cfg config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client, err := NewBackend(cfg)
	if err != nil {
		return nil, err
	}

	a := &App{Backend: client, Player: audio.NewPlayer()}
	a.Notifier = notify.New(notify.Options{
		Earcon:  cfg.Notify.Earcon,
		Desktop: cfg.Notify.Desktop,
		Player:  a.Player,
		Logger:  logger,
	})

	var speaker assistant.Speaker
	if !opts.NoSpeech {
		speaker = a.newSpeaker(cfg.Speech, logger)
	}

	rec, closeRec, err := newRecognizer(cfg.Recognition, logger)
	if err != nil {
		return nil, err
	}
	if closeRec != nil {
		a.closers = append(a.closers, closeRec)
	}

	mode, err := assistant.ParseNarrationMode(cfg.Assistant.Narrate)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Assistant, err = assistant.New(assistant.Options{
		Backend:        client,
		Speaker:        speaker,
		Recognizer:     rec,
		Continuous:     cfg.Assistant.Continuous,
		Greeting:       cfg.Assistant.Greeting,
		DisplayName:    cfg.Assistant.DisplayName,
		Narration:      mode,
		HistoryLimit:   cfg.Assistant.HistoryLimit,
		ImageTimeout:   cfg.Assistant.ImageTimeout,
		RequestTimeout: cfg.Backend.Timeout,
		Clock:          conversation.Clock{Format: cfg.Assistant.TimeFormat},
		OnListening:    a.Notifier.Listening,
		Logger:         logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Close releases recognizer resources. The speaker is closed by the assistant loop.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) newSpeaker(cfg config.SpeechConfig, logger *slog.Logger) assistant.Speaker {
	var ducker speech.Ducker
	if cfg.Duck.Enabled {
		ducker = audio.NewDucker(audio.DuckOptions{
			SelfNames: cfg.Duck.SelfNames,
			Factor:    cfg.Duck.Factor,
			MinVolume: cfg.Duck.MinVolume,
			Fade:      cfg.Duck.Fade,
		})
	}
	return speech.NewCoordinator(speech.Options{
		Primary:  NewSynth(cfg.Primary, a.Player),
		Fallback: NewSynth(cfg.Fallback, a.Player),
		Ducker:   ducker,
		Logger:   logger,
	})
}

// NewSynth returns nil for kind none or an empty kind.
func NewSynth(cfg config.SynthConfig, player tts.Player) speech.Synthesizer {
	switch cfg.Kind {
	case config.SynthMedia:
		return &tts.MediaSynth{Command: cfg.Command, Args: cfg.Args, Voice: cfg.Voice, Format: cfg.Format, Player: player}
	case config.SynthCommand:
		return &tts.CommandSynth{Command: cfg.Command, Args: cfg.Args, Voice: cfg.Voice}
	case config.SynthEspeak:
		return tts.NewEspeak(cfg.Voice)
	}
	return nil
}

// ErrWhisperUnavailable is returned for recognition.kind whisper in builds without the whisper tag.
var ErrWhisperUnavailable = errors.New("recognition.kind whisper requires a build with -tags whisper")

func newHelperRecognizer(cfg config.RecognitionConfig, logger *slog.Logger) stt.Recognizer {
	if cfg.Command == "" {
		return nil
	}
	return &stt.HelperRecognizer{
		Command:         cfg.Command,
		Args:            cfg.Args,
		ListeningMarker: cfg.ListeningMarker,
		ResultPrefix:    cfg.ResultPrefix,
		ErrorPrefix:     cfg.ErrorPrefix,
		Logger:          logger,
	}
}
