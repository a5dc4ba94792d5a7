//go:build !whisper

package app

import (
	"log/slog"

	"vist/internal/config"
	"vist/pkg/stt"
)

func newRecognizer(cfg config.RecognitionConfig, logger *slog.Logger) (stt.Recognizer, func(), error) {
	if cfg.Kind == config.RecognizerWhisper {
		return nil, nil, ErrWhisperUnavailable
	}
	return newHelperRecognizer(cfg, logger), nil, nil
}
