//go:build whisper

package app

import (
	"fmt"
	"log/slog"

	"vist/internal/audio"
	"vist/internal/config"
	"vist/pkg/stt"
)

func newRecognizer(cfg config.RecognitionConfig, logger *slog.Logger) (stt.Recognizer, func(), error) {
	if cfg.Kind != config.RecognizerWhisper {
		return newHelperRecognizer(cfg, logger), nil, nil
	}

	rec := audio.NewRecorder()
	if err := rec.Init(); err != nil {
		return nil, nil, fmt.Errorf("init audio: %w", err)
	}
	tr, err := stt.NewTranscriber(cfg.WhisperModel)
	if err != nil {
		rec.Close()
		return nil, nil, fmt.Errorf("init whisper: %w", err)
	}
	logger.Debug("loaded whisper", "model", cfg.WhisperModel)

	vad := audio.DefaultVAD()
	if cfg.MaxDuration > 0 {
		vad.MaxLength = cfg.MaxDuration
	}
	r := &stt.WhisperRecognizer{
		Transcriber: tr,
		Recorder:    rec,
		VAD:         vad,
		Options:     stt.Options{Language: cfg.Language},
	}
	return r, func() {
		_ = tr.Close()
		rec.Close()
	}, nil
}
